package ratelimit

import (
	"fmt"
	"time"

	"github.com/Proton-105/flowkat/pkg/config"
)

// Scope names a group of endpoints sharing one limit.
type Scope string

const (
	// ScopeAuth covers login and registration, keyed by client IP.
	ScopeAuth Scope = "auth"
	// ScopeUser covers every authenticated request, keyed by user.
	ScopeUser Scope = "user"
	// ScopeInsights covers AI analysis requests, keyed by user.
	ScopeInsights Scope = "insights"
)

// Rules resolves configured limits.
type Rules struct {
	config config.RateLimitConfig
}

// NewRules constructs rate limiting rules from configuration settings.
func NewRules(cfg config.RateLimitConfig) *Rules {
	return &Rules{config: cfg}
}

// Enabled reports whether limits are enforced at all.
func (r *Rules) Enabled() bool {
	return r != nil && r.config.Enabled
}

// IsWhitelisted returns true if the userID bypasses rate limits.
func (r *Rules) IsWhitelisted(userID int64) bool {
	for _, id := range r.config.Whitelist {
		if id == userID {
			return true
		}
	}
	return false
}

// Limit returns the limit and window for scope.
func (r *Rules) Limit(scope Scope) (int, time.Duration, error) {
	switch scope {
	case ScopeAuth:
		return parseRule(r.config.Auth)
	case ScopeUser:
		return parseRule(r.config.PerUser)
	case ScopeInsights:
		return parseRule(r.config.Insights)
	default:
		return 0, 0, fmt.Errorf("unsupported rate limit scope %q", scope)
	}
}

func parseRule(rule config.RateLimitRule) (int, time.Duration, error) {
	if rule.Window == "" {
		return rule.Limit, 0, fmt.Errorf("window duration is not set")
	}
	window, err := time.ParseDuration(rule.Window)
	if err != nil {
		return 0, 0, err
	}
	if window <= 0 {
		return 0, 0, fmt.Errorf("window must be positive, got %s", rule.Window)
	}
	return rule.Limit, window, nil
}
