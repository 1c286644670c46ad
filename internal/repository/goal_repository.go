package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/Proton-105/flowkat/internal/domain"
)

// GoalRepository defines persistence for monthly goals.
type GoalRepository interface {
	Get(ctx context.Context, userID int64, year, month int) (*domain.MonthlyGoal, error)
	Upsert(ctx context.Context, goal *domain.MonthlyGoal) error
}

type goalRepository struct {
	base
}

// NewGoalRepository creates a new SQL-backed goal repository.
func NewGoalRepository(db *sql.DB, log *slog.Logger, opts ...Option) GoalRepository {
	return &goalRepository{base: newBase(db, log, opts)}
}

func (r *goalRepository) Get(ctx context.Context, userID int64, year, month int) (*domain.MonthlyGoal, error) {
	const query = `
		SELECT id, user_id, year, month, goal_score, created_at, updated_at
		FROM monthly_goals
		WHERE user_id = $1 AND year = $2 AND month = $3
	`

	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	var goal domain.MonthlyGoal
	err := r.db.QueryRowContext(ctx, query, userID, year, month).Scan(
		&goal.ID,
		&goal.UserID,
		&goal.Year,
		&goal.Month,
		&goal.GoalScore,
		&goal.CreatedAt,
		&goal.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("select goal: %w", err)
	}

	return &goal, nil
}

func (r *goalRepository) Upsert(ctx context.Context, goal *domain.MonthlyGoal) error {
	const query = `
		INSERT INTO monthly_goals (user_id, year, month, goal_score)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (user_id, year, month) DO UPDATE SET
			goal_score = EXCLUDED.goal_score,
			updated_at = NOW()
		RETURNING id, created_at, updated_at
	`

	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	if err := r.db.QueryRowContext(ctx, query, goal.UserID, goal.Year, goal.Month, goal.GoalScore).
		Scan(&goal.ID, &goal.CreatedAt, &goal.UpdatedAt); err != nil {
		r.log.Error("failed to upsert goal", slog.Int64("user_id", goal.UserID), slog.Any("error", err))
		return fmt.Errorf("upsert goal: %w", err)
	}

	return nil
}
