package lock

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// releaseScript deletes the key only when the stored owner matches,
// so a stale holder cannot release a newer lease.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisManager implements Manager on Redis SET NX PX. Used when multiple
// gateway instances share the lease table.
type RedisManager struct {
	client *redis.Client
	opts   Options
	prefix string
}

// NewRedisManager creates a Redis-backed lock manager.
func NewRedisManager(client *redis.Client, opts Options) *RedisManager {
	return &RedisManager{
		client: client,
		opts:   opts,
		prefix: "lock:",
	}
}

func (m *RedisManager) key(resource string) string {
	return m.prefix + resource
}

func (m *RedisManager) Acquire(ctx context.Context, resource string, expiry time.Duration) (*Lease, error) {
	owner := uuid.NewString()

	for attempt := 1; ; attempt++ {
		ok, err := m.client.SetNX(ctx, m.key(resource), owner, expiry).Result()
		if err != nil {
			return nil, fmt.Errorf("failed to acquire lock %s: %w", resource, err)
		}
		if ok {
			return &Lease{
				Resource:  resource,
				OwnerID:   owner,
				ExpiresAt: time.Now().Add(expiry),
			}, nil
		}

		if attempt >= m.opts.MaxAttempts {
			return nil, ErrLockUnavailable
		}

		select {
		case <-time.After(m.opts.RetryBackoff * time.Duration(attempt)):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

func (m *RedisManager) Release(ctx context.Context, lease *Lease) error {
	if lease == nil {
		return nil
	}

	// Compare-and-delete; returns 0 when the owner no longer matches,
	// which is fine (lease expired, someone else holds it now).
	if err := releaseScript.Run(ctx, m.client, []string{m.key(lease.Resource)}, lease.OwnerID).Err(); err != nil && err != redis.Nil {
		return fmt.Errorf("failed to release lock %s: %w", lease.Resource, err)
	}
	return nil
}

// Sweep is a no-op for Redis: PX expiry reclaims leases server-side.
func (m *RedisManager) Sweep(_ context.Context) int {
	return 0
}
