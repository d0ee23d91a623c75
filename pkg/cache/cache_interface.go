package cache

import (
	"context"
	"time"
)

// Cache defines the contract for the cache layer.
// Implementations can be swapped (Redis, in-memory) without touching callers.
type Cache interface {
	// Get reads data from the cache and unmarshals it into dest.
	// Returns (found, error):
	// - found = true: cache hit, data unmarshaled into dest
	// - found = false: cache miss, dest untouched
	Get(ctx context.Context, key string, dest interface{}) (bool, error)

	// Set stores data in the cache with a TTL.
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error

	// Delete removes keys from the cache.
	Delete(ctx context.Context, keys ...string) error

	// Ping verifies the connection.
	Ping(ctx context.Context) error

	// DeletePattern removes all keys matching a glob pattern.
	// Used by the rule cache invalidation path.
	DeletePattern(ctx context.Context, pattern string) error

	// Counter helpers for failed-auth tracking.
	Increment(ctx context.Context, key string) (int64, error)
	Exists(ctx context.Context, key string) (bool, error)
	Expire(ctx context.Context, key string, ttl time.Duration) error
	TTL(ctx context.Context, key string) (time.Duration, error)
}
