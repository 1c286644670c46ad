package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Proton-105/flowkat/pkg/config"
)

func TestMemoryLimiterSlidingWindow(t *testing.T) {
	limiter := NewMemoryLimiter(testLogger())
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	limiter.now = func() time.Time { return now }
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		res, err := limiter.Check(ctx, "user:1", 3, time.Minute)
		require.NoError(t, err)
		assert.True(t, res.Allowed)
	}

	res, err := limiter.Check(ctx, "user:1", 3, time.Minute)
	assert.ErrorIs(t, err, ErrLimitExceeded)
	assert.Equal(t, now.Add(time.Minute), res.ResetAt)
	assert.Equal(t, 60, res.RetryAfter(now))

	now = now.Add(61 * time.Second)
	res, err = limiter.Check(ctx, "user:1", 3, time.Minute)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Remaining)
}

func TestMemoryLimiterKeysAreIndependent(t *testing.T) {
	limiter := NewMemoryLimiter(testLogger())
	ctx := context.Background()

	_, err := limiter.Check(ctx, "user:1", 1, time.Minute)
	require.NoError(t, err)
	_, err = limiter.Check(ctx, "user:2", 1, time.Minute)
	require.NoError(t, err)
	_, err = limiter.Check(ctx, "user:1", 1, time.Minute)
	assert.ErrorIs(t, err, ErrLimitExceeded)
}

func TestMemoryLimiterCleanup(t *testing.T) {
	limiter := NewMemoryLimiter(testLogger())
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	limiter.now = func() time.Time { return now }

	_, err := limiter.Check(context.Background(), "user:1", 5, time.Minute)
	require.NoError(t, err)

	now = now.Add(10 * time.Minute)
	cleaner := NewCleaner(nil, limiter, testLogger(), time.Minute, 5*time.Minute)

	assert.Equal(t, 1, cleaner.Sweep(context.Background()))
	assert.Empty(t, limiter.buckets)
}

func TestRulesLimit(t *testing.T) {
	rules := NewRules(config.RateLimitConfig{
		Enabled:   true,
		Auth:      config.RateLimitRule{Limit: 10, Window: "1m"},
		PerUser:   config.RateLimitRule{Limit: 120, Window: "1m"},
		Insights:  config.RateLimitRule{Limit: 5, Window: "bad"},
		Whitelist: []int64{42},
	})

	limit, window, err := rules.Limit(ScopeAuth)
	require.NoError(t, err)
	assert.Equal(t, 10, limit)
	assert.Equal(t, time.Minute, window)

	_, _, err = rules.Limit(ScopeInsights)
	assert.Error(t, err)

	_, _, err = rules.Limit(Scope("other"))
	assert.Error(t, err)

	assert.True(t, rules.Enabled())
	assert.True(t, rules.IsWhitelisted(42))
	assert.False(t, rules.IsWhitelisted(7))
}
