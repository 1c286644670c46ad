package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/Proton-105/flowkat/internal/domain"
)

// AnalysisRepository caches the last AI analysis per user.
type AnalysisRepository interface {
	Get(ctx context.Context, userID int64) (*domain.AIAnalysis, error)
	Upsert(ctx context.Context, analysis *domain.AIAnalysis) error
}

type analysisRepository struct {
	base
}

// NewAnalysisRepository creates a new SQL-backed analysis repository.
func NewAnalysisRepository(db *sql.DB, log *slog.Logger, opts ...Option) AnalysisRepository {
	return &analysisRepository{base: newBase(db, log, opts)}
}

func (r *analysisRepository) Get(ctx context.Context, userID int64) (*domain.AIAnalysis, error) {
	const query = `
		SELECT user_id, provider, analysis, recommendations, total_entries, updated_at
		FROM ai_analyses
		WHERE user_id = $1
	`

	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	var (
		analysis domain.AIAnalysis
		recs     []byte
	)
	err := r.db.QueryRowContext(ctx, query, userID).Scan(
		&analysis.UserID,
		&analysis.Provider,
		&analysis.Analysis,
		&recs,
		&analysis.TotalEntries,
		&analysis.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("select analysis: %w", err)
	}

	if len(recs) > 0 {
		if err := json.Unmarshal(recs, &analysis.Recommendations); err != nil {
			return nil, fmt.Errorf("decode recommendations: %w", err)
		}
	}

	return &analysis, nil
}

func (r *analysisRepository) Upsert(ctx context.Context, analysis *domain.AIAnalysis) error {
	const query = `
		INSERT INTO ai_analyses (user_id, provider, analysis, recommendations, total_entries, updated_at)
		VALUES ($1, $2, $3, $4, $5, NOW())
		ON CONFLICT (user_id) DO UPDATE SET
			provider = EXCLUDED.provider,
			analysis = EXCLUDED.analysis,
			recommendations = EXCLUDED.recommendations,
			total_entries = EXCLUDED.total_entries,
			updated_at = NOW()
		RETURNING updated_at
	`

	recs := analysis.Recommendations
	if recs == nil {
		recs = []string{}
	}
	payload, err := json.Marshal(recs)
	if err != nil {
		return fmt.Errorf("encode recommendations: %w", err)
	}

	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	if err := r.db.QueryRowContext(
		ctx,
		query,
		analysis.UserID,
		analysis.Provider,
		analysis.Analysis,
		string(payload),
		analysis.TotalEntries,
	).Scan(&analysis.UpdatedAt); err != nil {
		r.log.Error("failed to upsert analysis", slog.Int64("user_id", analysis.UserID), slog.Any("error", err))
		return fmt.Errorf("upsert analysis: %w", err)
	}

	return nil
}
