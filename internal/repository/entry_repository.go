package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/Proton-105/flowkat/internal/domain"
)

// EntryRepository defines persistence operations for energy entries.
type EntryRepository interface {
	Upsert(ctx context.Context, entry *domain.Entry) error
	ListByUser(ctx context.Context, userID int64) ([]domain.Entry, error)
	ListRange(ctx context.Context, userID int64, from, to time.Time) ([]domain.Entry, error)
	Recent(ctx context.Context, userID int64, limit int) ([]domain.Entry, error)
	Delete(ctx context.Context, userID, entryID int64) error
}

const entryColumns = `id, user_id, entry_date, score, thoughts, category, tags, created_at, updated_at`

type entryRepository struct {
	base
}

// NewEntryRepository creates a new SQL-backed entry repository.
func NewEntryRepository(db *sql.DB, log *slog.Logger, opts ...Option) EntryRepository {
	return &entryRepository{base: newBase(db, log, opts)}
}

// Upsert inserts or overwrites the entry for (user, date). The entry's
// tag_analytics rows are replaced within the same transaction.
func (r *entryRepository) Upsert(ctx context.Context, entry *domain.Entry) error {
	const upsertEntry = `
		INSERT INTO energy_entries (user_id, entry_date, score, thoughts, category, tags)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (user_id, entry_date) DO UPDATE SET
			score = EXCLUDED.score,
			thoughts = EXCLUDED.thoughts,
			category = EXCLUDED.category,
			tags = EXCLUDED.tags,
			updated_at = NOW()
		RETURNING id, created_at, updated_at
	`
	const clearTags = `DELETE FROM tag_analytics WHERE entry_id = $1`
	const insertTag = `
		INSERT INTO tag_analytics (entry_id, user_id, tag, score, entry_date)
		VALUES ($1, $2, $3, $4, $5)
	`

	tags := entry.Tags
	if tags == nil {
		tags = []string{}
	}
	payload, err := json.Marshal(tags)
	if err != nil {
		return fmt.Errorf("encode tags: %w", err)
	}

	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin entry upsert: %w", err)
	}

	date := entry.Date.Format(domain.DateLayout)
	if err := tx.QueryRowContext(
		ctx,
		upsertEntry,
		entry.UserID,
		date,
		entry.Score,
		entry.Thoughts,
		entry.Category,
		string(payload),
	).Scan(&entry.ID, &entry.CreatedAt, &entry.UpdatedAt); err != nil {
		r.rollback(tx, "upsert entry")
		r.log.Error("failed to upsert entry", slog.Int64("user_id", entry.UserID), slog.Any("error", err))
		return fmt.Errorf("upsert entry: %w", err)
	}

	if _, err := tx.ExecContext(ctx, clearTags, entry.ID); err != nil {
		r.rollback(tx, "clear tags")
		r.log.Error("failed to clear tag analytics", slog.Int64("entry_id", entry.ID), slog.Any("error", err))
		return fmt.Errorf("clear tag analytics: %w", err)
	}

	for _, tag := range entry.Tags {
		if _, err := tx.ExecContext(ctx, insertTag, entry.ID, entry.UserID, tag, entry.Score, date); err != nil {
			r.rollback(tx, "insert tag")
			r.log.Error("failed to insert tag analytics", slog.Int64("entry_id", entry.ID), slog.Any("error", err))
			return fmt.Errorf("insert tag analytics: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit entry upsert: %w", err)
	}

	return nil
}

// ListByUser returns every entry of the user, newest date first.
func (r *entryRepository) ListByUser(ctx context.Context, userID int64) ([]domain.Entry, error) {
	const query = `SELECT ` + entryColumns + ` FROM energy_entries WHERE user_id = $1 ORDER BY entry_date DESC`
	return r.query(ctx, query, userID)
}

// ListRange returns entries with from <= date < to, newest first.
func (r *entryRepository) ListRange(ctx context.Context, userID int64, from, to time.Time) ([]domain.Entry, error) {
	const query = `
		SELECT ` + entryColumns + `
		FROM energy_entries
		WHERE user_id = $1 AND entry_date >= $2 AND entry_date < $3
		ORDER BY entry_date DESC
	`
	return r.query(ctx, query, userID, from.Format(domain.DateLayout), to.Format(domain.DateLayout))
}

// Recent returns at most limit entries ordered by date descending.
func (r *entryRepository) Recent(ctx context.Context, userID int64, limit int) ([]domain.Entry, error) {
	const query = `SELECT ` + entryColumns + ` FROM energy_entries WHERE user_id = $1 ORDER BY entry_date DESC LIMIT $2`
	return r.query(ctx, query, userID, limit)
}

// Delete removes an entry owned by userID. Rows of other users are never touched.
func (r *entryRepository) Delete(ctx context.Context, userID, entryID int64) error {
	const query = `DELETE FROM energy_entries WHERE id = $1 AND user_id = $2`

	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	res, err := r.db.ExecContext(ctx, query, entryID, userID)
	if err != nil {
		return fmt.Errorf("delete entry: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete entry: %w", err)
	}
	if affected == 0 {
		return domain.ErrNotFound
	}

	return nil
}

func (r *entryRepository) query(ctx context.Context, query string, args ...any) ([]domain.Entry, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("select entries: %w", err)
	}
	defer rows.Close()

	entries := make([]domain.Entry, 0)
	for rows.Next() {
		var (
			entry domain.Entry
			tags  []byte
		)
		if err := rows.Scan(
			&entry.ID,
			&entry.UserID,
			&entry.Date,
			&entry.Score,
			&entry.Thoughts,
			&entry.Category,
			&tags,
			&entry.CreatedAt,
			&entry.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan entry: %w", err)
		}
		entry.Date = domain.DateOf(entry.Date)
		if len(tags) > 0 {
			if err := json.Unmarshal(tags, &entry.Tags); err != nil {
				return nil, fmt.Errorf("decode tags: %w", err)
			}
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate entries: %w", err)
	}

	return entries, nil
}
