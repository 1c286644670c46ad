// Package idempotency replays the stored response of a mutating request sent
// again with the same Idempotency-Key.
package idempotency

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// DefaultTTL is how long a completed response is replayed.
const DefaultTTL = 24 * time.Hour

const lockTTL = 5 * time.Minute

var ErrRequestInProgress = errors.New("request with this key is already in progress")

// Operation runs the guarded request and returns its response.
type Operation func(ctx context.Context) (*Record, error)

type Result struct {
	Record    *Record
	FromCache bool
}

type Manager interface {
	Execute(ctx context.Context, key string, ttl time.Duration, fn Operation) (*Result, error)
}

type manager struct {
	store Store
	log   *slog.Logger
}

func NewManager(store Store, log *slog.Logger) Manager {
	if log == nil {
		log = slog.Default()
	}

	return &manager{
		store: store,
		log:   log,
	}
}

// Key scopes a client supplied key to the caller and the route.
func Key(userID int64, method, path, clientKey string) string {
	h := sha256.New()
	fmt.Fprintf(h, "%d:%s:%s:%s", userID, method, path, clientKey)
	return hex.EncodeToString(h.Sum(nil))
}

// Execute runs fn once per key. A completed record is replayed; a key whose
// first request is still running yields ErrRequestInProgress. Server errors
// are not stored so the client can retry.
func (m *manager) Execute(ctx context.Context, key string, ttl time.Duration, fn Operation) (*Result, error) {
	if fn == nil {
		return nil, errors.New("operation fn cannot be nil")
	}

	locked, err := m.store.Lock(ctx, key, lockTTL)
	if err != nil {
		return nil, err
	}

	if !locked {
		record, err := m.store.Get(ctx, key)
		if err != nil {
			return nil, err
		}
		if record != nil && record.Status == StatusCompleted {
			return &Result{Record: record, FromCache: true}, nil
		}
		return nil, ErrRequestInProgress
	}

	record, err := m.store.Get(ctx, key)
	if err == nil && record != nil && record.Status == StatusCompleted {
		_ = m.store.ReleaseLock(ctx, key)
		return &Result{Record: record, FromCache: true}, nil
	}

	record, err = fn(ctx)
	if err != nil || record == nil {
		_ = m.store.ReleaseLock(ctx, key)
		return nil, err
	}

	if record.StatusCode < 500 {
		record.Status = StatusCompleted
		if err := m.store.Set(ctx, key, record, ttl); err != nil {
			m.log.Warn("failed to store idempotent response", slog.String("key", key), slog.Any("error", err))
		}
	}
	// the record is written before the lock is released so a retry never runs twice
	_ = m.store.ReleaseLock(ctx, key)

	return &Result{Record: record}, nil
}
