package middleware

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Proton-105/flowkat/internal/auth"
	apperrors "github.com/Proton-105/flowkat/internal/errors"
	"github.com/Proton-105/flowkat/internal/idempotency"
	"github.com/Proton-105/flowkat/internal/ratelimit"
	"github.com/Proton-105/flowkat/pkg/config"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testErrors() *ErrorWriter {
	return NewErrorWriter(apperrors.NewHandler(testLogger(), false))
}

type staticAuth map[string]int64

func (a staticAuth) Authenticate(token string) (*auth.Claims, error) {
	if id, ok := a[token]; ok {
		return &auth.Claims{UserID: id}, nil
	}
	return nil, apperrors.NewUnauthorizedError("Невалидный или истекший токен")
}

func echoUser(w http.ResponseWriter, r *http.Request) {
	id, _ := UserID(r.Context())
	WriteJSON(w, http.StatusOK, map[string]int64{"user": id})
}

func TestCORSPreflight(t *testing.T) {
	called := false
	h := CORS(http.HandlerFunc(func(http.ResponseWriter, *http.Request) { called = true }))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodOptions, "/api/entries", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, called)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, rec.Header().Get("Access-Control-Allow-Headers"), "X-Auth-Token")
}

func TestAuthAcceptsBothHeaders(t *testing.T) {
	h := Auth(staticAuth{"good": 7}, testErrors())(http.HandlerFunc(echoUser))

	for _, set := range []func(*http.Request){
		func(r *http.Request) { r.Header.Set("X-Auth-Token", "good") },
		func(r *http.Request) { r.Header.Set("Authorization", "Bearer good") },
	} {
		req := httptest.NewRequest(http.MethodGet, "/api/profile", nil)
		set(req)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `{"user":7}`, rec.Body.String())
	}
}

func TestAuthRejectsMissingToken(t *testing.T) {
	h := Auth(staticAuth{}, testErrors())(http.HandlerFunc(echoUser))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/profile", nil))

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.JSONEq(t, `{"error":"Невалидный или истекший токен"}`, rec.Body.String())
}

func TestRecoverReturns500(t *testing.T) {
	h := Recover(testLogger(), testErrors())(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), `"error"`)
}

func TestLoggingKeepsStatus(t *testing.T) {
	h := Logging(testLogger())(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		WriteError(w, http.StatusTeapot, "nope")
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusTeapot, rec.Code)
	assert.JSONEq(t, `{"error":"nope"}`, rec.Body.String())
}

func newRateLimiter(limit int) *RateLimiter {
	rules := ratelimit.NewRules(config.RateLimitConfig{
		Enabled:   true,
		Auth:      config.RateLimitRule{Limit: limit, Window: "1m"},
		PerUser:   config.RateLimitRule{Limit: limit, Window: "1m"},
		Whitelist: []int64{99},
	})
	return NewRateLimiter(ratelimit.NewMemoryLimiter(testLogger()), rules, testErrors(), testLogger())
}

func TestRateLimitByIP(t *testing.T) {
	h := newRateLimiter(2).Limit(ratelimit.ScopeAuth)(http.HandlerFunc(echoUser))

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodPost, "/api/auth/login", nil)
		req.RemoteAddr = "10.0.0.1:5555"
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		codes = append(codes, rec.Code)
		if rec.Code == http.StatusTooManyRequests {
			assert.Equal(t, "60", rec.Header().Get("Retry-After"))
		}
	}
	assert.Equal(t, []int{200, 200, 429}, codes)

	other := httptest.NewRequest(http.MethodPost, "/api/auth/login", nil)
	other.RemoteAddr = "10.0.0.2:5555"
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, other)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRateLimitWhitelist(t *testing.T) {
	h := newRateLimiter(1).Limit(ratelimit.ScopeUser)(http.HandlerFunc(echoUser))

	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodGet, "/api/entries", nil)
		req = req.WithContext(WithUserID(req.Context(), 99))
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusOK, rec.Code)
	}
}

type failingLimiter struct{}

func (failingLimiter) Check(_ context.Context, _ string, _ int, _ time.Duration) (*ratelimit.Result, error) {
	return nil, errors.New("redis down")
}

func TestRateLimitFailsOpen(t *testing.T) {
	rules := ratelimit.NewRules(config.RateLimitConfig{Enabled: true, PerUser: config.RateLimitRule{Limit: 1, Window: "1m"}})
	h := NewRateLimiter(failingLimiter{}, rules, testErrors(), testLogger()).Limit(ratelimit.ScopeUser)(http.HandlerFunc(echoUser))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/entries", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestIdempotencyReplaysPost(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	manager := idempotency.NewManager(idempotency.NewRedisStore(client, testLogger()), testLogger())

	calls := 0
	h := Idempotency(manager, testLogger())(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls++
		WriteJSON(w, http.StatusCreated, map[string]int{"call": calls})
	}))

	send := func(key string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/api/entries", strings.NewReader(`{}`))
		req.Header.Set(IdempotencyHeader, key)
		req = req.WithContext(WithUserID(req.Context(), 5))
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec
	}

	first := send("k1")
	second := send("k1")
	third := send("k2")

	assert.Equal(t, http.StatusCreated, first.Code)
	assert.Equal(t, http.StatusCreated, second.Code)
	assert.Equal(t, first.Body.String(), second.Body.String())
	assert.Equal(t, "true", second.Header().Get("Idempotent-Replayed"))
	assert.JSONEq(t, `{"call":2}`, third.Body.String())
	require.Equal(t, 2, calls)
}

func TestIdempotencyIgnoresRequestsWithoutKey(t *testing.T) {
	calls := 0
	h := Idempotency(nil, testLogger())(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls++
		w.WriteHeader(http.StatusNoContent)
	}))

	for i := 0; i < 2; i++ {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, fmt.Sprintf("/api/goals?i=%d", i), nil))
	}
	assert.Equal(t, 2, calls)
}

func TestBufferedResponseKeepsFirstStatus(t *testing.T) {
	buf := newBufferedResponse()
	buf.Header().Set("Content-Type", "text/plain")
	_, _ = buf.Write([]byte("hello"))
	buf.WriteHeader(http.StatusTeapot)

	rec := httptest.NewRecorder()
	buf.flush(rec)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "hello", rec.Body.String())
	assert.Equal(t, "text/plain", rec.Header().Get("Content-Type"))
}

func TestIdempotencyStoresHandlerStatus(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	manager := idempotency.NewManager(idempotency.NewRedisStore(client, testLogger()), testLogger())

	h := Idempotency(manager, testLogger())(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		WriteError(w, http.StatusBadRequest, "bad input")
	}))

	for i := 0; i < 2; i++ {
		req := httptest.NewRequest(http.MethodPost, "/api/entries", strings.NewReader(`{}`))
		req.Header.Set(IdempotencyHeader, "same")
		req = req.WithContext(WithUserID(req.Context(), 9))
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.JSONEq(t, `{"error":"bad input"}`, rec.Body.String())
	}
}
