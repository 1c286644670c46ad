// Package httpapi exposes the journal over JSON HTTP.
package httpapi

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/Proton-105/flowkat/internal/auth"
	"github.com/Proton-105/flowkat/internal/domain"
	"github.com/Proton-105/flowkat/internal/entry"
	"github.com/Proton-105/flowkat/internal/goal"
	"github.com/Proton-105/flowkat/internal/idempotency"
	"github.com/Proton-105/flowkat/internal/insight"
	"github.com/Proton-105/flowkat/internal/middleware"
	"github.com/Proton-105/flowkat/internal/notification"
	"github.com/Proton-105/flowkat/internal/profile"
	"github.com/Proton-105/flowkat/internal/ratelimit"
	"github.com/Proton-105/flowkat/pkg/logger"
)

type AuthService interface {
	middleware.Authenticator
	Register(ctx context.Context, in auth.RegisterInput) (*auth.Session, error)
	Login(ctx context.Context, email, password string) (*auth.Session, error)
	Telegram(ctx context.Context, fields map[string]string) (*auth.Session, error)
	Me(ctx context.Context, userID int64) (*domain.User, error)
}

type EntryService interface {
	Save(ctx context.Context, userID int64, in entry.Input) (*entry.View, error)
	List(ctx context.Context, userID int64) (*entry.ListResult, error)
	Delete(ctx context.Context, userID, entryID int64) error
}

type GoalService interface {
	Get(ctx context.Context, userID int64, year, month int) (*goal.View, error)
	Save(ctx context.Context, userID int64, in goal.Input) (*goal.View, error)
}

type ProfileService interface {
	Get(ctx context.Context, userID int64) (*domain.Profile, error)
	Update(ctx context.Context, userID int64, in profile.UpdateInput) (*domain.Profile, error)
	IssueLinkCode(ctx context.Context, userID int64) (*profile.LinkCode, error)
}

type InsightService interface {
	Analyze(ctx context.Context, userID int64, provider string) (*insight.Result, error)
	Latest(ctx context.Context, userID int64) (*insight.Result, error)
}

type Notifier interface {
	Run(ctx context.Context, now time.Time) (notification.Summary, error)
	SendTest(ctx context.Context, userID int64) error
}

// NotificationQueue hands notification work to the background worker.
type NotificationQueue interface {
	EnqueuePass(ctx context.Context, at time.Time) (string, error)
	EnqueueTest(ctx context.Context, userID int64) (string, error)
}

// Deps are the collaborators of the API. Queue, Limiter, Idempotency,
// Health and Metrics are optional.
type Deps struct {
	Auth        AuthService
	Entries     EntryService
	Goals       GoalService
	Profiles    ProfileService
	Insights    InsightService
	Notifier    Notifier
	Queue       NotificationQueue
	Limiter     *middleware.RateLimiter
	Idempotency idempotency.Manager
	Errors      *middleware.ErrorWriter
	Health      interface {
		ReadinessHandler(w http.ResponseWriter, r *http.Request)
	}
	Liveness   http.HandlerFunc
	Metrics    http.Handler
	CronSecret string
	Log        *slog.Logger
}

type api struct {
	Deps
	now func() time.Time
}

// NewHandler builds the routed handler with the full middleware chain.
func NewHandler(d Deps) http.Handler {
	if d.Log == nil {
		d.Log = slog.Default()
	}
	a := &api{Deps: d, now: time.Now}

	mux := http.NewServeMux()
	a.routes(mux)

	var h http.Handler = mux
	h = middleware.Metrics(h)
	h = middleware.CORS(h)
	h = middleware.Logging(d.Log)(h)
	h = middleware.Recover(d.Log, d.Errors)(h)
	h = logger.Middleware(h)
	return h
}

func (a *api) routes(mux *http.ServeMux) {
	authed := func(h http.HandlerFunc, scopes ...ratelimit.Scope) http.Handler {
		var out http.Handler = h
		for _, s := range scopes {
			out = a.Limiter.Limit(s)(out)
		}
		out = middleware.Idempotency(a.Idempotency, a.Log)(out)
		out = a.Limiter.Limit(ratelimit.ScopeUser)(out)
		return middleware.Auth(a.Auth, a.Errors)(out)
	}
	public := func(h http.HandlerFunc) http.Handler {
		return a.Limiter.Limit(ratelimit.ScopeAuth)(h)
	}

	mux.Handle("POST /api/auth/register", public(a.register))
	mux.Handle("POST /api/auth/login", public(a.login))
	mux.Handle("POST /api/auth/telegram", public(a.telegramLogin))
	mux.Handle("POST /api/auth", public(a.authAction))
	mux.Handle("GET /api/auth/me", authed(a.me))
	mux.Handle("GET /api/auth", authed(a.me))

	mux.Handle("GET /api/entries", authed(a.listEntries))
	mux.Handle("POST /api/entries", authed(a.saveEntry))
	mux.Handle("PUT /api/entries", authed(a.saveEntry))
	mux.Handle("DELETE /api/entries", authed(a.deleteEntry))
	mux.Handle("DELETE /api/entries/{id}", authed(a.deleteEntry))

	mux.Handle("GET /api/goals", authed(a.getGoal))
	mux.Handle("POST /api/goals", authed(a.saveGoal))
	mux.Handle("PUT /api/goals", authed(a.saveGoal))

	mux.Handle("GET /api/profile", authed(a.getProfile))
	mux.Handle("PUT /api/profile", authed(a.updateProfile))
	mux.Handle("POST /api/profile/telegram-link", authed(a.telegramLink))

	mux.Handle("GET /api/insights", authed(a.latestInsight))
	mux.Handle("POST /api/insights/analyze", authed(a.analyze, ratelimit.ScopeInsights))

	mux.HandleFunc("POST /api/notifications/check", a.checkNotifications)
	mux.HandleFunc("GET /api/notifications/check", a.checkNotifications)
	mux.Handle("POST /api/notifications/test", authed(a.testNotification))

	for _, path := range []string{
		"/api/auth", "/api/auth/register", "/api/auth/login", "/api/auth/telegram", "/api/auth/me",
		"/api/entries", "/api/entries/{id}", "/api/goals", "/api/profile", "/api/profile/telegram-link",
		"/api/insights", "/api/insights/analyze", "/api/notifications/check", "/api/notifications/test",
	} {
		mux.HandleFunc(path, methodNotAllowed)
	}

	if a.Liveness != nil {
		mux.HandleFunc("GET /healthz", a.Liveness)
	}
	if a.Health != nil {
		mux.HandleFunc("GET /readyz", a.Health.ReadinessHandler)
	}
	if a.Metrics != nil {
		mux.Handle("GET /metrics", a.Metrics)
	}
	mux.HandleFunc("/", notFound)
}

func methodNotAllowed(w http.ResponseWriter, _ *http.Request) {
	middleware.WriteError(w, http.StatusMethodNotAllowed, "Метод не поддерживается")
}

func notFound(w http.ResponseWriter, _ *http.Request) {
	middleware.WriteError(w, http.StatusNotFound, "Не найдено")
}
