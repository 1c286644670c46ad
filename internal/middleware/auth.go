package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/Proton-105/flowkat/internal/auth"
)

type userIDKey struct{}

// Authenticator verifies a bearer token.
type Authenticator interface {
	Authenticate(token string) (*auth.Claims, error)
}

// UserID returns the authenticated user stored by Auth.
func UserID(ctx context.Context) (int64, bool) {
	id, ok := ctx.Value(userIDKey{}).(int64)
	return id, ok
}

// WithUserID stores id in ctx.
func WithUserID(ctx context.Context, id int64) context.Context {
	return context.WithValue(ctx, userIDKey{}, id)
}

// BearerToken reads X-Auth-Token, falling back to "Authorization: Bearer".
func BearerToken(r *http.Request) string {
	if token := strings.TrimSpace(r.Header.Get("X-Auth-Token")); token != "" {
		return token
	}
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if len(header) > 7 && strings.EqualFold(header[:7], "bearer ") {
		return strings.TrimSpace(header[7:])
	}
	return ""
}

// Auth rejects requests without a valid token.
func Auth(a Authenticator, errs *ErrorWriter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, err := a.Authenticate(BearerToken(r))
			if err != nil {
				errs.Write(r.Context(), w, err)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithUserID(r.Context(), claims.UserID)))
		})
	}
}
