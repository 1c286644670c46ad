package insight

import (
	"fmt"
	"strings"

	"github.com/Proton-105/flowkat/internal/domain"
)

// NotEnoughData is returned instead of an analysis when the window is empty.
const NotEnoughData = "Недостаточно данных для анализа. Добавьте больше записей об энергии."

// defaultRecommendation is used when the model answer has no recognizable list.
const defaultRecommendation = "Продолжай отслеживать свою энергию"

var systemPrompts = map[string]string{
	ProviderOpenAI:     "Ты эксперт по продуктивности и энергии. Отвечай на русском языке тёплым и человечным тоном.",
	ProviderPerplexity: "Ты эксперт по продуктивности и энергии. Отвечай кратко и конкретно на русском языке.",
}

const promptTemplate = `Ты персональный коуч по энергии и благополучию.
Мягко проанализируй записи пользователя за неделю, найди закономерности и дай бережные рекомендации.

Записи за неделю:
%s

Структура ответа:
1) **Общая картина недели** (3-5 предложений): настроение, подъёмы и спады, накопление усталости или восстановление.
2) **Ключевые паттерны** (4-6 пунктов): какие теги и их сочетания поднимают или снижают энергию, что повторяется в заметках.
3) **Главные темы недели** (2-3 пункта).
4) **Рекомендации** (4-7 действий): что продолжать, что уменьшить, что попробовать. Каждое действие отдельной строкой, начиная с "-".

Пиши живым тёплым языком, короткими абзацами, опираясь только на данные пользователя.`

func systemPrompt(provider string) string {
	if p, ok := systemPrompts[provider]; ok {
		return p
	}
	return systemPrompts[ProviderOpenAI]
}

// BuildPrompt renders the entries, newest first, into the user message.
func BuildPrompt(entries []domain.Entry) string {
	lines := make([]string, 0, len(entries))
	for _, e := range entries {
		tags := "нет"
		if len(e.Tags) > 0 {
			tags = strings.Join(e.Tags, ", ")
		}
		thoughts := strings.TrimSpace(e.Thoughts)
		if thoughts == "" {
			thoughts = "нет"
		}
		lines = append(lines, fmt.Sprintf("Дата: %s, Оценка: %d/%d, Теги: %s, Мысли: %s",
			e.Date.Format(domain.DateLayout), e.Score, domain.MaxScore, tags, thoughts))
	}

	return fmt.Sprintf(promptTemplate, strings.Join(lines, "\n"))
}

var recommendationHeadings = []string{"рекомендаци", "действи", "recommendation", "action"}

// ExtractRecommendations collects list items that follow a heading mentioning
// recommendations or actions. Items start with "-", "•" or a digit.
func ExtractRecommendations(text string) []string {
	var (
		out     []string
		collect bool
	)

	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		if isHeading(line) {
			collect = true
			continue
		}
		if !collect || !isListItem(line) {
			continue
		}

		item := strings.TrimLeft(line, "•-0123456789. )*")
		item = strings.TrimSpace(item)
		if item != "" {
			out = append(out, item)
		}
	}

	if len(out) == 0 {
		return []string{defaultRecommendation}
	}
	return out
}

func isHeading(line string) bool {
	lower := strings.ToLower(line)
	for _, h := range recommendationHeadings {
		if strings.Contains(lower, h) {
			return true
		}
	}
	return false
}

func isListItem(line string) bool {
	if strings.HasPrefix(line, "-") || strings.HasPrefix(line, "•") {
		return true
	}
	return line[0] >= '0' && line[0] <= '9'
}
