package httpapi

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/Proton-105/flowkat/internal/auth"
	"github.com/Proton-105/flowkat/internal/domain"
	"github.com/Proton-105/flowkat/internal/entry"
	apperrors "github.com/Proton-105/flowkat/internal/errors"
	"github.com/Proton-105/flowkat/internal/goal"
	"github.com/Proton-105/flowkat/internal/insight"
	"github.com/Proton-105/flowkat/internal/jobs"
	"github.com/Proton-105/flowkat/internal/middleware"
	"github.com/Proton-105/flowkat/internal/notification"
	"github.com/Proton-105/flowkat/internal/profile"
	"github.com/Proton-105/flowkat/internal/ratelimit"
	"github.com/Proton-105/flowkat/pkg/config"
)

const validToken = "valid-token"

type mockAuth struct{ mock.Mock }

func (m *mockAuth) Authenticate(token string) (*auth.Claims, error) {
	if token == validToken {
		return &auth.Claims{UserID: 7}, nil
	}
	return nil, apperrors.NewUnauthorizedError("Невалидный или истекший токен")
}

func (m *mockAuth) Register(ctx context.Context, in auth.RegisterInput) (*auth.Session, error) {
	args := m.Called(ctx, in)
	s, _ := args.Get(0).(*auth.Session)
	return s, args.Error(1)
}

func (m *mockAuth) Login(ctx context.Context, email, password string) (*auth.Session, error) {
	args := m.Called(ctx, email, password)
	s, _ := args.Get(0).(*auth.Session)
	return s, args.Error(1)
}

func (m *mockAuth) Telegram(ctx context.Context, fields map[string]string) (*auth.Session, error) {
	args := m.Called(ctx, fields)
	s, _ := args.Get(0).(*auth.Session)
	return s, args.Error(1)
}

func (m *mockAuth) Me(ctx context.Context, userID int64) (*domain.User, error) {
	args := m.Called(ctx, userID)
	u, _ := args.Get(0).(*domain.User)
	return u, args.Error(1)
}

type mockEntries struct{ mock.Mock }

func (m *mockEntries) Save(ctx context.Context, userID int64, in entry.Input) (*entry.View, error) {
	args := m.Called(ctx, userID, in)
	v, _ := args.Get(0).(*entry.View)
	return v, args.Error(1)
}

func (m *mockEntries) List(ctx context.Context, userID int64) (*entry.ListResult, error) {
	args := m.Called(ctx, userID)
	v, _ := args.Get(0).(*entry.ListResult)
	return v, args.Error(1)
}

func (m *mockEntries) Delete(ctx context.Context, userID, entryID int64) error {
	return m.Called(ctx, userID, entryID).Error(0)
}

type mockGoals struct{ mock.Mock }

func (m *mockGoals) Get(ctx context.Context, userID int64, year, month int) (*goal.View, error) {
	args := m.Called(ctx, userID, year, month)
	v, _ := args.Get(0).(*goal.View)
	return v, args.Error(1)
}

func (m *mockGoals) Save(ctx context.Context, userID int64, in goal.Input) (*goal.View, error) {
	args := m.Called(ctx, userID, in)
	v, _ := args.Get(0).(*goal.View)
	return v, args.Error(1)
}

type mockProfiles struct{ mock.Mock }

func (m *mockProfiles) Get(ctx context.Context, userID int64) (*domain.Profile, error) {
	args := m.Called(ctx, userID)
	v, _ := args.Get(0).(*domain.Profile)
	return v, args.Error(1)
}

func (m *mockProfiles) Update(ctx context.Context, userID int64, in profile.UpdateInput) (*domain.Profile, error) {
	args := m.Called(ctx, userID, in)
	v, _ := args.Get(0).(*domain.Profile)
	return v, args.Error(1)
}

func (m *mockProfiles) IssueLinkCode(ctx context.Context, userID int64) (*profile.LinkCode, error) {
	args := m.Called(ctx, userID)
	v, _ := args.Get(0).(*profile.LinkCode)
	return v, args.Error(1)
}

type mockInsights struct{ mock.Mock }

func (m *mockInsights) Analyze(ctx context.Context, userID int64, provider string) (*insight.Result, error) {
	args := m.Called(ctx, userID, provider)
	v, _ := args.Get(0).(*insight.Result)
	return v, args.Error(1)
}

func (m *mockInsights) Latest(ctx context.Context, userID int64) (*insight.Result, error) {
	args := m.Called(ctx, userID)
	v, _ := args.Get(0).(*insight.Result)
	return v, args.Error(1)
}

type mockNotifier struct{ mock.Mock }

func (m *mockNotifier) Run(ctx context.Context, now time.Time) (notification.Summary, error) {
	args := m.Called(ctx, now)
	return args.Get(0).(notification.Summary), args.Error(1)
}

func (m *mockNotifier) SendTest(ctx context.Context, userID int64) error {
	return m.Called(ctx, userID).Error(0)
}

type mockQueue struct{ mock.Mock }

func (m *mockQueue) EnqueuePass(ctx context.Context, at time.Time) (string, error) {
	args := m.Called(ctx, at)
	return args.String(0), args.Error(1)
}

func (m *mockQueue) EnqueueTest(ctx context.Context, userID int64) (string, error) {
	args := m.Called(ctx, userID)
	return args.String(0), args.Error(1)
}

type fixture struct {
	auth     *mockAuth
	entries  *mockEntries
	goals    *mockGoals
	profiles *mockProfiles
	insights *mockInsights
	notifier *mockNotifier
	queue    *mockQueue
	handler  http.Handler
}

func newFixture(t *testing.T, limits *config.RateLimitConfig) *fixture {
	t.Helper()

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	errs := middleware.NewErrorWriter(apperrors.NewHandler(log, false))

	f := &fixture{
		auth:     &mockAuth{},
		entries:  &mockEntries{},
		goals:    &mockGoals{},
		profiles: &mockProfiles{},
		insights: &mockInsights{},
		notifier: &mockNotifier{},
		queue:    &mockQueue{},
	}

	var limiter *middleware.RateLimiter
	if limits != nil {
		limiter = middleware.NewRateLimiter(ratelimit.NewMemoryLimiter(log), ratelimit.NewRules(*limits), errs, log)
	}

	f.handler = NewHandler(Deps{
		Auth:       f.auth,
		Entries:    f.entries,
		Goals:      f.goals,
		Profiles:   f.profiles,
		Insights:   f.insights,
		Notifier:   f.notifier,
		Queue:      f.queue,
		Limiter:    limiter,
		Errors:     errs,
		CronSecret: "cron-secret",
		Log:        log,
	})

	t.Cleanup(func() {
		f.auth.AssertExpectations(t)
		f.entries.AssertExpectations(t)
		f.goals.AssertExpectations(t)
		f.profiles.AssertExpectations(t)
		f.insights.AssertExpectations(t)
		f.notifier.AssertExpectations(t)
		f.queue.AssertExpectations(t)
	})
	return f
}

func (f *fixture) do(method, target, body string, headers map[string]string) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

func authed() map[string]string {
	return map[string]string{"X-Auth-Token": validToken}
}

func TestPreflightReturns200(t *testing.T) {
	f := newFixture(t, nil)

	rec := f.do(http.MethodOptions, "/api/entries", "", nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestMissingTokenIs401(t *testing.T) {
	f := newFixture(t, nil)

	rec := f.do(http.MethodGet, "/api/entries", "", nil)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.JSONEq(t, `{"error":"Невалидный или истекший токен"}`, rec.Body.String())
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestUnknownMethodIs405(t *testing.T) {
	f := newFixture(t, nil)

	rec := f.do(http.MethodPatch, "/api/entries", "", authed())

	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	assert.JSONEq(t, `{"error":"Метод не поддерживается"}`, rec.Body.String())
}

func TestRegisterReturns201(t *testing.T) {
	f := newFixture(t, nil)
	f.auth.On("Register", mock.Anything, auth.RegisterInput{Email: "a@b.c", Password: "secret1", Name: "Аня"}).
		Return(&auth.Session{Token: "t", User: domain.Profile{ID: 1, Email: "a@b.c"}}, nil)

	rec := f.do(http.MethodPost, "/api/auth/register", `{"email":"a@b.c","password":"secret1","name":"Аня"}`, nil)

	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Contains(t, rec.Body.String(), `"token":"t"`)
	assert.Equal(t, "application/json; charset=utf-8", rec.Header().Get("Content-Type"))
}

func TestAuthActionLogin(t *testing.T) {
	f := newFixture(t, nil)
	f.auth.On("Login", mock.Anything, "a@b.c", "bad").
		Return(nil, apperrors.NewUnauthorizedError("Неверный email или пароль"))

	rec := f.do(http.MethodPost, "/api/auth", `{"action":"login","email":"a@b.c","password":"bad"}`, nil)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.JSONEq(t, `{"error":"Неверный email или пароль"}`, rec.Body.String())
}

func TestTelegramLoginStringifiesNumbers(t *testing.T) {
	f := newFixture(t, nil)
	want := map[string]string{"id": "123456789", "auth_date": "1709290000", "hash": "abc", "first_name": "Ivan"}
	f.auth.On("Telegram", mock.Anything, want).Return(&auth.Session{Token: "tg"}, nil)

	rec := f.do(http.MethodPost, "/api/auth/telegram",
		`{"id":123456789,"auth_date":1709290000,"hash":"abc","first_name":"Ivan","username":null}`, nil)

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestMe(t *testing.T) {
	f := newFixture(t, nil)
	f.auth.On("Me", mock.Anything, int64(7)).Return(&domain.User{ID: 7, Email: "a@b.c", FullName: "Аня"}, nil)

	rec := f.do(http.MethodGet, "/api/auth/me", "", map[string]string{"Authorization": "Bearer " + validToken})

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"name":"Аня"`)
}

func TestSaveEntry(t *testing.T) {
	f := newFixture(t, nil)
	score := 4
	f.entries.On("Save", mock.Anything, int64(7), entry.Input{Date: "05.03.2024", Score: &score, Tags: []string{"спорт"}}).
		Return(&entry.View{ID: 3, Date: "05.03.2024", Score: 4}, nil)

	rec := f.do(http.MethodPost, "/api/entries", `{"date":"05.03.2024","score":4,"tags":["спорт"]}`, authed())

	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Contains(t, rec.Body.String(), `"id":3`)
}

func TestSaveEntryRejectsBadJSON(t *testing.T) {
	f := newFixture(t, nil)

	rec := f.do(http.MethodPost, "/api/entries", `{"date":`, authed())

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDeleteEntryByPathAndQuery(t *testing.T) {
	f := newFixture(t, nil)
	f.entries.On("Delete", mock.Anything, int64(7), int64(11)).Return(nil).Once()
	f.entries.On("Delete", mock.Anything, int64(7), int64(12)).Return(apperrors.NewNotFoundError("Запись не найдена")).Once()

	rec := f.do(http.MethodDelete, "/api/entries/11", "", authed())
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(http.MethodDelete, "/api/entries?id=12", "", authed())
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = f.do(http.MethodDelete, "/api/entries", "", authed())
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetGoalReturnsNullWhenMissing(t *testing.T) {
	f := newFixture(t, nil)
	f.goals.On("Get", mock.Anything, int64(7), 2024, 3).Return(nil, nil)

	rec := f.do(http.MethodGet, "/api/goals?year=2024&month=3", "", authed())

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "null", strings.TrimSpace(rec.Body.String()))
}

func TestGetGoalRejectsBadQuery(t *testing.T) {
	f := newFixture(t, nil)

	rec := f.do(http.MethodGet, "/api/goals?month=march", "", authed())

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestTelegramLinkCode(t *testing.T) {
	f := newFixture(t, nil)
	f.profiles.On("IssueLinkCode", mock.Anything, int64(7)).
		Return(&profile.LinkCode{Code: "abc", Command: "/start abc"}, nil)

	rec := f.do(http.MethodPost, "/api/profile/telegram-link", "", authed())

	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Contains(t, rec.Body.String(), `"command":"/start abc"`)
}

func TestAnalyzePassesProvider(t *testing.T) {
	f := newFixture(t, nil)
	f.insights.On("Analyze", mock.Anything, int64(7), "perplexity").
		Return(&insight.Result{Analysis: "ok", Recommendations: []string{"спать"}, TotalEntries: 3}, nil)

	rec := f.do(http.MethodPost, "/api/insights/analyze?provider=perplexity", "", authed())

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"total_entries":3`)
}

func TestAnalyzeIsRateLimited(t *testing.T) {
	f := newFixture(t, &config.RateLimitConfig{
		Enabled:  true,
		Auth:     config.RateLimitRule{Limit: 10, Window: "1m"},
		PerUser:  config.RateLimitRule{Limit: 100, Window: "1m"},
		Insights: config.RateLimitRule{Limit: 1, Window: "1h"},
	})
	f.insights.On("Analyze", mock.Anything, int64(7), "").Return(&insight.Result{Analysis: "ok"}, nil).Once()

	first := f.do(http.MethodPost, "/api/insights/analyze", "", authed())
	second := f.do(http.MethodPost, "/api/insights/analyze", "", authed())

	assert.Equal(t, http.StatusOK, first.Code)
	assert.Equal(t, http.StatusTooManyRequests, second.Code)
	assert.NotEmpty(t, second.Header().Get("Retry-After"))
}

func TestCheckNotificationsRequiresSecret(t *testing.T) {
	f := newFixture(t, nil)

	rec := f.do(http.MethodPost, "/api/notifications/check", "", map[string]string{CronSecretHeader: "wrong"})

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestCheckNotificationsRunsPass(t *testing.T) {
	f := newFixture(t, nil)
	f.notifier.On("Run", mock.Anything, mock.AnythingOfType("time.Time")).
		Return(notification.Summary{Checked: 4, Daily: 2, Total: 2}, nil)

	rec := f.do(http.MethodPost, "/api/notifications/check", "", map[string]string{CronSecretHeader: "cron-secret"})

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"checked":4`)
	assert.Contains(t, rec.Body.String(), `"sent":2`)
	assert.Contains(t, rec.Body.String(), `"time"`)
}

func TestCheckNotificationsListFailure(t *testing.T) {
	f := newFixture(t, nil)
	f.notifier.On("Run", mock.Anything, mock.AnythingOfType("time.Time")).
		Return(notification.Summary{}, errors.New("db down"))

	rec := f.do(http.MethodGet, "/api/notifications/check?secret=cron-secret", "", nil)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestTestNotification(t *testing.T) {
	f := newFixture(t, nil)
	f.notifier.On("SendTest", mock.Anything, int64(7)).
		Return(apperrors.NewValidationError("Telegram не привязан"))

	rec := f.do(http.MethodPost, "/api/notifications/test", "", authed())

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.JSONEq(t, `{"error":"Telegram не привязан"}`, rec.Body.String())
}

func TestTestNotificationQueued(t *testing.T) {
	f := newFixture(t, nil)
	f.queue.On("EnqueueTest", mock.Anything, int64(7)).Return("task-1", nil)

	rec := f.do(http.MethodPost, "/api/notifications/test?async=1", "", authed())

	require.Equal(t, http.StatusAccepted, rec.Code)
	assert.JSONEq(t, `{"success":true,"status":"queued","task_id":"task-1"}`, rec.Body.String())
	f.notifier.AssertNotCalled(t, "SendTest", mock.Anything, mock.Anything)
}

func TestCheckNotificationsQueuedPass(t *testing.T) {
	f := newFixture(t, nil)
	f.queue.On("EnqueuePass", mock.Anything, mock.AnythingOfType("time.Time")).Return("", jobs.ErrPassQueued)

	rec := f.do(http.MethodPost, "/api/notifications/check?async=1", "", map[string]string{CronSecretHeader: "cron-secret"})

	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.JSONEq(t, `{"status":"already_queued"}`, rec.Body.String())
}

func TestUnknownRouteIs404(t *testing.T) {
	f := newFixture(t, nil)

	rec := f.do(http.MethodGet, "/api/unknown", "", nil)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}
