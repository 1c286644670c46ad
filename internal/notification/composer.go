package notification

import (
	"fmt"
	"math"
	"strings"

	"github.com/Proton-105/flowkat/internal/domain"
	"github.com/Proton-105/flowkat/internal/i18n"
)

// Trend framings.
const (
	TrendImproving = "improving"
	TrendDeclining = "declining"
	TrendStable    = "stable"
)

// TrendFraming classifies a weekly trend. Only an exact zero is stable.
func TrendFraming(trend float64) string {
	switch {
	case trend > 0:
		return TrendImproving
	case trend < 0:
		return TrendDeclining
	default:
		return TrendStable
	}
}

// Composer renders notification texts from the message catalog.
type Composer struct {
	tr i18n.Translator
}

// NewComposer creates a composer for one language.
func NewComposer(tr i18n.Translator) *Composer {
	return &Composer{tr: tr}
}

func (c *Composer) greeting(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return c.tr.T("greeting.anonymous")
	}
	return c.tr.Format("greeting.named", map[string]string{"name": name})
}

// Daily renders the reminder to fill in today's entry.
func (c *Composer) Daily(name string) string {
	return c.tr.Format("notification.daily", map[string]string{"greeting": c.greeting(name)})
}

// Weekly renders the Monday summary.
func (c *Composer) Weekly(name string, stats domain.WeeklyStats) string {
	trend := c.tr.Format("notification.weekly_trend."+TrendFraming(stats.Trend), map[string]string{
		"delta": fmt.Sprintf("%.1f", math.Abs(stats.Trend)),
	})

	return c.tr.Format("notification.weekly", map[string]string{
		"greeting": c.greeting(name),
		"count":    fmt.Sprintf("%d", stats.Count),
		"average":  fmt.Sprintf("%.1f", stats.Average),
		"trend":    trend,
	})
}

// Burnout renders the low-energy warning.
func (c *Composer) Burnout(name string, risk domain.BurnoutRisk) string {
	return c.tr.Format("notification.burnout", map[string]string{
		"greeting": c.greeting(name),
		"days":     fmt.Sprintf("%d", risk.Days),
		"average":  fmt.Sprintf("%.1f", risk.AvgScore),
	})
}

// Test renders the message sent on demand from the settings screen.
func (c *Composer) Test(name, reminderTime, timezone string) string {
	return c.tr.Format("notification.test", map[string]string{
		"greeting": c.greeting(name),
		"time":     reminderTime,
		"timezone": timezone,
	})
}
