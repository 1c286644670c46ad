// Package health aggregates dependency checks for the liveness and readiness probes.
package health

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Proton-105/flowkat/internal/middleware"
)

const defaultTimeout = 3 * time.Second

// Checkable represents a component that can report its health status.
type Checkable interface {
	HealthCheck(ctx context.Context) error
}

// CheckFunc adapts a function to Checkable.
type CheckFunc func(ctx context.Context) error

func (f CheckFunc) HealthCheck(ctx context.Context) error { return f(ctx) }

// Report is the readiness response body.
type Report struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}

// Checker aggregates health checks for multiple components.
type Checker struct {
	log      *slog.Logger
	timeout  time.Duration
	required map[string]Checkable
	optional map[string]Checkable
}

// NewChecker instantiates a Checker with the provided logger.
func NewChecker(log *slog.Logger) *Checker {
	if log == nil {
		log = slog.Default()
	}
	return &Checker{
		log:      log,
		timeout:  defaultTimeout,
		required: make(map[string]Checkable),
		optional: make(map[string]Checkable),
	}
}

// AddCheck registers a component whose failure makes the service not ready.
func (c *Checker) AddCheck(name string, check Checkable) {
	if name == "" || check == nil {
		return
	}
	c.required[name] = check
}

// AddOptional registers a component that is reported but never fails readiness.
func (c *Checker) AddOptional(name string, check Checkable) {
	if name == "" || check == nil {
		return
	}
	c.optional[name] = check
}

// Check runs every registered check concurrently.
func (c *Checker) Check(ctx context.Context) Report {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	type outcome struct {
		name     string
		err      error
		required bool
	}

	var (
		mu       sync.Mutex
		group    errgroup.Group
		outcomes = make([]outcome, 0, len(c.required)+len(c.optional))
	)
	// A failing check reports its error and never cancels the others.
	run := func(name string, check Checkable, required bool) {
		group.Go(func() error {
			err := check.HealthCheck(ctx)
			mu.Lock()
			outcomes = append(outcomes, outcome{name: name, err: err, required: required})
			mu.Unlock()
			return nil
		})
	}
	for name, check := range c.required {
		run(name, check, true)
	}
	for name, check := range c.optional {
		run(name, check, false)
	}
	_ = group.Wait()

	report := Report{Status: "ok", Checks: make(map[string]string, len(outcomes))}
	for _, o := range outcomes {
		if o.err == nil {
			report.Checks[o.name] = "OK"
			continue
		}
		report.Checks[o.name] = o.err.Error()
		c.log.Error("health check failed", slog.String("component", o.name), slog.Any("error", o.err))
		if o.required {
			report.Status = "unavailable"
		} else if report.Status == "ok" {
			report.Status = "degraded"
		}
	}

	return report
}

// Names lists registered checks, for startup logging.
func (c *Checker) Names() []string {
	names := make([]string, 0, len(c.required)+len(c.optional))
	for name := range c.required {
		names = append(names, name)
	}
	for name := range c.optional {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// LivenessHandler always answers 200 while the process is serving.
func LivenessHandler(w http.ResponseWriter, _ *http.Request) {
	middleware.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// ReadinessHandler answers 503 when a required check fails.
func (c *Checker) ReadinessHandler(w http.ResponseWriter, r *http.Request) {
	report := c.Check(r.Context())
	status := http.StatusOK
	if report.Status == "unavailable" {
		status = http.StatusServiceUnavailable
	}
	middleware.WriteJSON(w, status, report)
}

// DBChecker verifies connectivity to a PostgreSQL database.
type DBChecker struct {
	db *sql.DB
}

// NewDBChecker constructs a DBChecker.
func NewDBChecker(db *sql.DB) *DBChecker {
	return &DBChecker{db: db}
}

// HealthCheck pings the database to ensure it is reachable.
func (c *DBChecker) HealthCheck(ctx context.Context) error {
	if c == nil || c.db == nil {
		return sql.ErrConnDone
	}
	return c.db.PingContext(ctx)
}

// Pinger is satisfied by the application Redis client.
type Pinger interface {
	Ping(ctx context.Context) error
}

// RedisChecker verifies connectivity to a Redis instance.
type RedisChecker struct {
	pinger Pinger
}

// NewRedisChecker constructs a RedisChecker.
func NewRedisChecker(pinger Pinger) *RedisChecker {
	return &RedisChecker{pinger: pinger}
}

// HealthCheck issues a PING command against Redis.
func (c *RedisChecker) HealthCheck(ctx context.Context) error {
	if c == nil || c.pinger == nil {
		return errors.New("redis is not configured")
	}
	return c.pinger.Ping(ctx)
}
