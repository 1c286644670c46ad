package ratelimit

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	return mr, client
}

func TestRedisLimiter_AllowsWithinLimit(t *testing.T) {
	_, client := setupTestRedis(t)
	limiter := NewRedisLimiter(client, testLogger())
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		result, err := limiter.Check(ctx, "user:1", 5, time.Minute)
		require.NoError(t, err)
		assert.True(t, result.Allowed)
		assert.Equal(t, 5-(i+1), result.Remaining)
	}
}

func TestRedisLimiter_BlocksWhenExceeded(t *testing.T) {
	_, client := setupTestRedis(t)
	limiter := NewRedisLimiter(client, testLogger())
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		result, err := limiter.Check(ctx, "user:2", 2, time.Minute)
		require.NoError(t, err)
		assert.True(t, result.Allowed)
	}

	result, err := limiter.Check(ctx, "user:2", 2, time.Minute)
	assert.ErrorIs(t, err, ErrLimitExceeded)
	assert.False(t, result.Allowed)
	assert.Zero(t, result.Remaining)

	// rejected requests do not extend the window
	card, err := client.ZCard(ctx, keyPrefix+"user:2").Result()
	require.NoError(t, err)
	assert.Equal(t, int64(2), card)
}

func TestRedisLimiter_SlidingWindow(t *testing.T) {
	_, client := setupTestRedis(t)
	limiter := NewRedisLimiter(client, testLogger())
	ctx := context.Background()

	start := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	limiter.now = func() time.Time { return start }

	for i := 0; i < 2; i++ {
		_, err := limiter.Check(ctx, "ip:10.0.0.1", 2, time.Second)
		require.NoError(t, err)
	}
	_, err := limiter.Check(ctx, "ip:10.0.0.1", 2, time.Second)
	require.ErrorIs(t, err, ErrLimitExceeded)

	limiter.now = func() time.Time { return start.Add(1100 * time.Millisecond) }
	result, err := limiter.Check(ctx, "ip:10.0.0.1", 2, time.Second)
	require.NoError(t, err)
	assert.True(t, result.Allowed)
}

func TestRedisLimiter_ZeroLimitRejects(t *testing.T) {
	_, client := setupTestRedis(t)
	limiter := NewRedisLimiter(client, testLogger())

	result, err := limiter.Check(context.Background(), "user:3", 0, time.Minute)

	assert.ErrorIs(t, err, ErrLimitExceeded)
	assert.False(t, result.Allowed)
}

func TestCleanerRemovesKeysWithoutExpiry(t *testing.T) {
	mr, client := setupTestRedis(t)
	ctx := context.Background()

	limiter := NewRedisLimiter(client, testLogger())
	_, err := limiter.Check(ctx, "user:4", 5, time.Minute)
	require.NoError(t, err)
	_, err = mr.ZAdd(keyPrefix+"stale", 1, "member")
	require.NoError(t, err)

	cleaner := NewCleaner(client, nil, testLogger(), time.Minute, time.Minute)

	assert.Equal(t, 1, cleaner.Sweep(ctx))
	assert.False(t, mr.Exists(keyPrefix+"stale"))
	assert.True(t, mr.Exists(keyPrefix+"user:4"))
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
