// Package repository implements PostgreSQL-backed stores for users, entries, goals and analyses.
package repository

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"time"

	"github.com/lib/pq"
)

const uniqueViolation = "23505"

// Option configures a repository.
type Option func(*base)

// WithQueryTimeout bounds each repository call.
func WithQueryTimeout(d time.Duration) Option {
	return func(b *base) {
		b.timeout = d
	}
}

type base struct {
	db      *sql.DB
	log     *slog.Logger
	timeout time.Duration
}

func newBase(db *sql.DB, log *slog.Logger, opts []Option) base {
	if log == nil {
		log = slog.Default()
	}
	b := base{db: db, log: log}
	for _, opt := range opts {
		opt(&b)
	}
	return b
}

func (b base) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if b.timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, b.timeout)
}

func (b base) rollback(tx *sql.Tx, op string) {
	if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		b.log.Error("rollback error", slog.String("op", op), slog.Any("error", err))
	}
}

func isUniqueViolation(err error, constraint string) bool {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) || string(pqErr.Code) != uniqueViolation {
		return false
	}
	return constraint == "" || pqErr.Constraint == constraint
}

func nullInt64(v *int64) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *v, Valid: true}
}

func int64Ptr(v sql.NullInt64) *int64 {
	if !v.Valid {
		return nil
	}
	out := v.Int64
	return &out
}

func timePtr(v sql.NullTime) *time.Time {
	if !v.Valid {
		return nil
	}
	out := v.Time.UTC()
	return &out
}
