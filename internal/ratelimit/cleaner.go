package ratelimit

import (
	"context"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// Cleaner periodically drops idle windows. Redis keys carry their own TTL, so
// for Redis it only removes keys that lost it; the memory limiter is swept by age.
type Cleaner struct {
	redis    *redis.Client
	memory   *MemoryLimiter
	log      *slog.Logger
	interval time.Duration
	maxAge   time.Duration
}

// NewCleaner constructs a Cleaner. Either backend may be nil.
func NewCleaner(client *redis.Client, memory *MemoryLimiter, log *slog.Logger, interval, maxAge time.Duration) *Cleaner {
	if log == nil {
		log = slog.Default()
	}

	return &Cleaner{
		redis:    client,
		memory:   memory,
		log:      log.With(slog.String("component", "ratelimit_cleaner")),
		interval: interval,
		maxAge:   maxAge,
	}
}

// Run starts the cleaner loop until the context is cancelled.
func (c *Cleaner) Run(ctx context.Context) {
	if c.interval <= 0 || (c.redis == nil && c.memory == nil) {
		return
	}

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			c.log.Info("rate limit cleaner stopped", slog.String("reason", ctx.Err().Error()))
			return
		case <-ticker.C:
			c.Sweep(ctx)
		}
	}
}

// Sweep runs one cleanup pass and returns the number of removed windows.
func (c *Cleaner) Sweep(ctx context.Context) int {
	removed := 0
	if c.memory != nil {
		removed += c.memory.Cleanup(c.maxAge)
	}
	if c.redis != nil {
		removed += c.sweepRedis(ctx)
	}

	if removed > 0 {
		c.log.Info("rate limit keys cleaned", slog.Int("keys_removed", removed))
	}
	return removed
}

func (c *Cleaner) sweepRedis(ctx context.Context) int {
	const scanCount = 100

	var (
		cursor  uint64
		removed int
	)
	for {
		keys, next, err := c.redis.Scan(ctx, cursor, keyPrefix+"*", scanCount).Result()
		if err != nil {
			c.log.Error("rate limit scan failed", slog.Any("error", err))
			return removed
		}

		for _, key := range keys {
			ttl, err := c.redis.PTTL(ctx, key).Result()
			if err != nil {
				c.log.Warn("failed to read rate limit ttl", slog.String("key", key), slog.Any("error", err))
				continue
			}
			// go-redis reports a key without expiry as -1
			if ttl != -1 {
				continue
			}
			if err := c.redis.Del(ctx, key).Err(); err != nil {
				c.log.Warn("failed to delete rate limit key", slog.String("key", key), slog.Any("error", err))
				continue
			}
			removed++
		}

		if next == 0 {
			return removed
		}
		cursor = next
	}
}
