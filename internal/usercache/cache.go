// Package usercache caches public user profiles in Redis.
package usercache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/Proton-105/flowkat/internal/domain"
	appredis "github.com/Proton-105/flowkat/pkg/redis"
)

// DefaultTTL bounds how long a stale profile can be served after an update elsewhere.
const DefaultTTL = 10 * time.Minute

// Store is the subset of the Redis client the cache needs.
type Store interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

// Cache provides Redis-backed caching for user profiles. A nil Cache is a no-op.
type Cache struct {
	store Store
	ttl   time.Duration
}

// NewCache constructs a profile cache. A non-positive ttl selects DefaultTTL.
func NewCache(store Store, ttl time.Duration) *Cache {
	if store == nil {
		return nil
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Cache{store: store, ttl: ttl}
}

// Get fetches a cached profile. A miss returns nil without error.
func (c *Cache) Get(ctx context.Context, userID int64) (*domain.Profile, error) {
	if c == nil {
		return nil, nil
	}

	data, err := c.store.Get(ctx, cacheKey(userID))
	if err != nil {
		if errors.Is(err, appredis.ErrNil) {
			return nil, nil
		}
		return nil, fmt.Errorf("get cached profile: %w", err)
	}

	var profile domain.Profile
	if err := json.Unmarshal([]byte(data), &profile); err != nil {
		return nil, fmt.Errorf("decode cached profile: %w", err)
	}

	return &profile, nil
}

// Set stores the profile.
func (c *Cache) Set(ctx context.Context, profile *domain.Profile) error {
	if c == nil || profile == nil {
		return nil
	}

	payload, err := json.Marshal(profile)
	if err != nil {
		return fmt.Errorf("encode profile for cache: %w", err)
	}

	if err := c.store.Set(ctx, cacheKey(profile.ID), payload, c.ttl); err != nil {
		return fmt.Errorf("set cached profile: %w", err)
	}

	return nil
}

// Invalidate removes the cached profile entry if it exists.
func (c *Cache) Invalidate(ctx context.Context, userID int64) error {
	if c == nil {
		return nil
	}

	if err := c.store.Delete(ctx, cacheKey(userID)); err != nil {
		return fmt.Errorf("delete cached profile: %w", err)
	}

	return nil
}

func cacheKey(userID int64) string {
	return fmt.Sprintf("profile:%d", userID)
}
