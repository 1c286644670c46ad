package middleware

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	apperrors "github.com/Proton-105/flowkat/internal/errors"
	"github.com/Proton-105/flowkat/internal/ratelimit"
)

// RateLimiter enforces one scope of the configured limits.
type RateLimiter struct {
	limiter ratelimit.Limiter
	rules   *ratelimit.Rules
	errs    *ErrorWriter
	log     *slog.Logger
}

// NewRateLimiter constructs the middleware. A nil limiter disables it.
func NewRateLimiter(limiter ratelimit.Limiter, rules *ratelimit.Rules, errs *ErrorWriter, log *slog.Logger) *RateLimiter {
	if log == nil {
		log = slog.Default()
	}

	return &RateLimiter{
		limiter: limiter,
		rules:   rules,
		errs:    errs,
		log:     log,
	}
}

// Limit keys authenticated requests by user and anonymous ones by client IP.
// Limiter failures let the request through.
func (m *RateLimiter) Limit(scope ratelimit.Scope) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if m == nil || m.limiter == nil || !m.rules.Enabled() {
			return next
		}

		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			limit, window, err := m.rules.Limit(scope)
			if err != nil {
				m.log.Error("failed to load rate limit", slog.String("scope", string(scope)), slog.Any("error", err))
				next.ServeHTTP(w, r)
				return
			}

			var key string
			if userID, ok := UserID(r.Context()); ok {
				if m.rules.IsWhitelisted(userID) {
					next.ServeHTTP(w, r)
					return
				}
				key = fmt.Sprintf("%s:user:%d", scope, userID)
			} else {
				key = fmt.Sprintf("%s:ip:%s", scope, clientIP(r))
			}

			result, err := m.limiter.Check(r.Context(), key, limit, window)
			switch {
			case errors.Is(err, ratelimit.ErrLimitExceeded):
				retry := result.RetryAfter(time.Now())
				w.Header().Set("Retry-After", strconv.Itoa(retry))
				w.Header().Set("X-RateLimit-Remaining", "0")
				m.errs.Write(r.Context(), w, apperrors.NewRateLimitError(retry))
				return
			case err != nil:
				m.log.Warn("rate limiter error", slog.String("key", key), slog.Any("error", err))
			default:
				w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(result.Remaining))
			}

			next.ServeHTTP(w, r)
		})
	}
}

func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		return strings.TrimSpace(first)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
