// Package lifecycle runs shutdown hooks for the long-running binaries.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Hook describes a named shutdown hook.
type Hook struct {
	Name string
	Fn   func(ctx context.Context) error
}

// Shutdown runs hooks in reverse registration order, so resources registered
// first (database, Redis) close after the components that use them.
type Shutdown struct {
	mu      sync.Mutex
	hooks   []Hook
	log     *slog.Logger
	timeout time.Duration
}

// NewShutdown constructs a coordinator whose Execute is bounded by timeout.
func NewShutdown(log *slog.Logger, timeout time.Duration) *Shutdown {
	if log == nil {
		log = slog.Default()
	}
	if timeout <= 0 {
		timeout = 15 * time.Second
	}

	return &Shutdown{log: log, timeout: timeout}
}

// Register adds a named shutdown hook.
func (s *Shutdown) Register(name string, fn func(context.Context) error) {
	if fn == nil {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.hooks = append(s.hooks, Hook{Name: name, Fn: fn})
}

// RegisterCloser adds a hook for a Close method without a context.
func (s *Shutdown) RegisterCloser(name string, close func() error) {
	if close == nil {
		return
	}
	s.Register(name, func(context.Context) error { return close() })
}

// Execute runs every hook even when earlier ones fail and joins their errors.
func (s *Shutdown) Execute(ctx context.Context) error {
	s.mu.Lock()
	hooks := append([]Hook(nil), s.hooks...)
	s.hooks = nil
	s.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	start := time.Now()
	s.log.Info("shutdown sequence started", slog.Int("hook_count", len(hooks)))

	var errs []error
	for i := len(hooks) - 1; i >= 0; i-- {
		h := hooks[i]
		if err := h.Fn(ctx); err != nil {
			s.log.Error("shutdown hook failed", slog.String("hook", h.Name), slog.Any("error", err))
			errs = append(errs, fmt.Errorf("%s: %w", h.Name, err))
			continue
		}
		s.log.Debug("shutdown hook completed", slog.String("hook", h.Name))
	}

	s.log.Info("shutdown sequence finished", slog.Duration("elapsed", time.Since(start)))
	return errors.Join(errs...)
}
