// Package entry implements the energy journal: saving daily entries and
// summarizing them.
package entry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	validator "github.com/go-playground/validator/v10"

	"github.com/Proton-105/flowkat/internal/domain"
	apperrors "github.com/Proton-105/flowkat/internal/errors"
)

// RecentWindowDays is the length of the trailing window in List statistics.
const RecentWindowDays = 14

// Store is the persistence the service needs.
type Store interface {
	Upsert(ctx context.Context, entry *domain.Entry) error
	ListByUser(ctx context.Context, userID int64) ([]domain.Entry, error)
	Delete(ctx context.Context, userID, entryID int64) error
}

// Input is the body of a save request.
type Input struct {
	Date     string   `json:"date"`
	Score    *int     `json:"score"`
	Thoughts string   `json:"thoughts" validate:"max=10000"`
	Category string   `json:"category" validate:"max=100"`
	Tags     []string `json:"tags" validate:"max=30,dive,max=50"`
}

// View is an entry as rendered for clients.
type View struct {
	ID       int64    `json:"id"`
	Date     string   `json:"date"`
	Score    int      `json:"score"`
	Thoughts string   `json:"thoughts"`
	Category string   `json:"category"`
	Tags     []string `json:"tags"`
	Week     string   `json:"week,omitempty"`
	Month    string   `json:"month,omitempty"`
}

// ListResult is the response of List.
type ListResult struct {
	Entries      []View            `json:"entries"`
	Stats        domain.EntryStats `json:"stats"`
	Recent       domain.EntryStats `json:"recent"`
	CurrentMonth domain.EntryStats `json:"currentMonth"`
}

// Service provides journal operations.
type Service struct {
	store    Store
	validate *validator.Validate
	loc      *time.Location
	log      *slog.Logger
	now      func() time.Time
}

// NewService constructs the entry service. loc decides what "today" is for
// the trailing and monthly statistics.
func NewService(store Store, loc *time.Location, log *slog.Logger) *Service {
	if loc == nil {
		loc = time.UTC
	}
	if log == nil {
		log = slog.Default()
	}

	return &Service{
		store:    store,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		loc:      loc,
		log:      log.With(slog.String("component", "entry")),
		now:      time.Now,
	}
}

// Save validates the input and upserts the entry for its date.
func (s *Service) Save(ctx context.Context, userID int64, in Input) (*View, error) {
	if strings.TrimSpace(in.Date) == "" || in.Score == nil {
		return nil, apperrors.NewValidationError("Дата и оценка обязательны")
	}
	if !domain.ValidScore(*in.Score) {
		return nil, apperrors.NewValidationError(fmt.Sprintf("Оценка должна быть от %d до %d", domain.MinScore, domain.MaxScore))
	}
	date, err := domain.ParseEntryDate(in.Date)
	if err != nil {
		return nil, apperrors.NewValidationError("Неверный формат даты")
	}
	if err := s.validate.Struct(in); err != nil {
		return nil, apperrors.NewValidationError("Слишком длинный текст, категория или теги")
	}

	entry := &domain.Entry{
		UserID:   userID,
		Date:     date,
		Score:    *in.Score,
		Thoughts: in.Thoughts,
		Category: strings.TrimSpace(in.Category),
		Tags:     cleanTags(in.Tags),
	}

	if err := s.store.Upsert(ctx, entry); err != nil {
		return nil, apperrors.NewDatabaseError(err)
	}

	s.log.Debug("entry saved", slog.Int64("user_id", userID), slog.String("date", date.Format(domain.DateLayout)))

	view := toView(*entry)
	view.Week, view.Month = "", ""
	return &view, nil
}

// List returns every entry of the user, newest first, with aggregates.
func (s *Service) List(ctx context.Context, userID int64) (*ListResult, error) {
	entries, err := s.store.ListByUser(ctx, userID)
	if err != nil {
		return nil, apperrors.NewDatabaseError(err)
	}

	today := domain.DateOf(s.now().In(s.loc))
	recentFrom := today.AddDate(0, 0, -(RecentWindowDays - 1))
	monthFrom := time.Date(today.Year(), today.Month(), 1, 0, 0, 0, 0, time.UTC)
	monthTo := monthFrom.AddDate(0, 1, 0)

	result := &ListResult{Entries: make([]View, 0, len(entries))}
	var recent, month []domain.Entry
	for _, e := range entries {
		result.Entries = append(result.Entries, toView(e))

		d := domain.DateOf(e.Date)
		if !d.Before(recentFrom) && !d.After(today) {
			recent = append(recent, e)
		}
		if !d.Before(monthFrom) && d.Before(monthTo) {
			month = append(month, e)
		}
	}

	result.Stats = ComputeStats(entries)
	result.Recent = ComputeStats(recent)
	result.CurrentMonth = ComputeStats(month)

	return result, nil
}

// Delete removes one of the user's entries.
func (s *Service) Delete(ctx context.Context, userID, entryID int64) error {
	if entryID <= 0 {
		return apperrors.NewValidationError("ID записи обязателен")
	}

	err := s.store.Delete(ctx, userID, entryID)
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return apperrors.NewNotFoundError("Запись не найдена")
	case err != nil:
		return apperrors.NewDatabaseError(err)
	}

	s.log.Info("entry deleted", slog.Int64("user_id", userID), slog.Int64("entry_id", entryID))
	return nil
}

// ComputeStats buckets scores into good (>=4), neutral (3) and bad (<=2).
// The average is rounded to two decimals.
func ComputeStats(entries []domain.Entry) domain.EntryStats {
	var stats domain.EntryStats
	if len(entries) == 0 {
		return stats
	}

	sum := 0
	for _, e := range entries {
		sum += e.Score
		switch {
		case e.Score >= 4:
			stats.Good++
		case e.Score == 3:
			stats.Neutral++
		default:
			stats.Bad++
		}
	}

	stats.Total = len(entries)
	stats.Average = Round2(float64(sum) / float64(stats.Total))
	return stats
}

// Round2 rounds to two decimal places.
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func toView(e domain.Entry) View {
	tags := e.Tags
	if tags == nil {
		tags = []string{}
	}
	_, week := e.Date.ISOWeek()

	return View{
		ID:       e.ID,
		Date:     e.Date.Format(domain.DisplayDateLayout),
		Score:    e.Score,
		Thoughts: e.Thoughts,
		Category: e.Category,
		Tags:     tags,
		Week:     fmt.Sprintf("Неделя %d", week),
		Month:    e.Date.Format("January 2006"),
	}
}

func cleanTags(tags []string) []string {
	out := make([]string, 0, len(tags))
	for _, tag := range tags {
		if tag = strings.TrimSpace(tag); tag != "" {
			out = append(out, tag)
		}
	}
	return out
}
