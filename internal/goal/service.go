// Package goal manages monthly target scores.
package goal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Proton-105/flowkat/internal/domain"
	"github.com/Proton-105/flowkat/internal/entry"
	apperrors "github.com/Proton-105/flowkat/internal/errors"
)

// Store persists goals.
type Store interface {
	Get(ctx context.Context, userID int64, year, month int) (*domain.MonthlyGoal, error)
	Upsert(ctx context.Context, goal *domain.MonthlyGoal) error
}

// EntryRange loads entries for progress.
type EntryRange interface {
	ListRange(ctx context.Context, userID int64, from, to time.Time) ([]domain.Entry, error)
}

// Input is the body of a save request.
type Input struct {
	Year      int      `json:"year"`
	Month     int      `json:"month"`
	GoalScore *float64 `json:"goalScore"`
}

// View is a goal as rendered for clients. Progress is the month's average
// score so far and is nil when there are no entries.
type View struct {
	ID        int64     `json:"id"`
	Year      int       `json:"year"`
	Month     int       `json:"month"`
	GoalScore float64   `json:"goalScore"`
	Progress  *float64  `json:"progress"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Service provides goal operations.
type Service struct {
	goals   Store
	entries EntryRange
	loc     *time.Location
	log     *slog.Logger
	now     func() time.Time
}

// NewService constructs the goal service. loc decides the current month.
func NewService(goals Store, entries EntryRange, loc *time.Location, log *slog.Logger) *Service {
	if loc == nil {
		loc = time.UTC
	}
	if log == nil {
		log = slog.Default()
	}

	return &Service{
		goals:   goals,
		entries: entries,
		loc:     loc,
		log:     log.With(slog.String("component", "goal")),
		now:     time.Now,
	}
}

// Get returns the goal for year/month, defaulting to the current month when
// either is zero. A missing goal yields nil without error.
func (s *Service) Get(ctx context.Context, userID int64, year, month int) (*View, error) {
	if year == 0 || month == 0 {
		now := s.now().In(s.loc)
		year, month = now.Year(), int(now.Month())
	}
	if err := validatePeriod(year, month); err != nil {
		return nil, err
	}

	goal, err := s.goals.Get(ctx, userID, year, month)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, apperrors.NewDatabaseError(err)
	}

	return s.view(ctx, goal)
}

// Save validates and upserts a goal.
func (s *Service) Save(ctx context.Context, userID int64, in Input) (*View, error) {
	if in.Year == 0 || in.Month == 0 || in.GoalScore == nil {
		return nil, apperrors.NewValidationError("year, month и goalScore обязательны")
	}
	if err := validatePeriod(in.Year, in.Month); err != nil {
		return nil, err
	}
	if *in.GoalScore < domain.MinGoalScore || *in.GoalScore > domain.MaxGoalScore {
		return nil, apperrors.NewValidationError(fmt.Sprintf("goalScore должен быть от %d до %d", domain.MinGoalScore, domain.MaxGoalScore))
	}

	goal := &domain.MonthlyGoal{
		UserID:    userID,
		Year:      in.Year,
		Month:     in.Month,
		GoalScore: *in.GoalScore,
	}
	if err := s.goals.Upsert(ctx, goal); err != nil {
		return nil, apperrors.NewDatabaseError(err)
	}

	s.log.Info("goal saved", slog.Int64("user_id", userID), slog.Int("year", in.Year), slog.Int("month", in.Month))
	return s.view(ctx, goal)
}

func (s *Service) view(ctx context.Context, goal *domain.MonthlyGoal) (*View, error) {
	view := &View{
		ID:        goal.ID,
		Year:      goal.Year,
		Month:     goal.Month,
		GoalScore: goal.GoalScore,
		CreatedAt: goal.CreatedAt,
		UpdatedAt: goal.UpdatedAt,
	}

	if s.entries == nil {
		return view, nil
	}

	from := time.Date(goal.Year, time.Month(goal.Month), 1, 0, 0, 0, 0, time.UTC)
	entries, err := s.entries.ListRange(ctx, goal.UserID, from, from.AddDate(0, 1, 0))
	if err != nil {
		return nil, apperrors.NewDatabaseError(err)
	}
	if stats := entry.ComputeStats(entries); stats.Total > 0 {
		view.Progress = &stats.Average
	}

	return view, nil
}

func validatePeriod(year, month int) error {
	if month < 1 || month > 12 {
		return apperrors.NewValidationError("month должен быть от 1 до 12")
	}
	if year < 2000 || year > 2100 {
		return apperrors.NewValidationError("Некорректный год")
	}
	return nil
}
