package lock

import (
	"context"
	"errors"
	"time"
)

// =====================================================
// NAMED LOCK LEASES
// =====================================================
// Every payment-mutating operation serialises on a named lease. At most
// one holder per resource at a time; release is owner-scoped so a stale
// holder can never release a newer lease.
//
// The in-memory manager is the default. The Redis manager implements the
// same contract for multi-instance deployments; callers never know which
// one they got.

var (
	// ErrLockUnavailable is returned when the acquire retry budget is
	// exhausted while another owner holds the lease.
	ErrLockUnavailable = errors.New("lock unavailable: resource is held by another owner")
)

// Lease is a handle for a held lock. The owner ID is generated per
// acquisition; Release with a stale handle is a no-op.
type Lease struct {
	Resource  string
	OwnerID   string
	ExpiresAt time.Time
}

// Expired reports whether the lease has passed its expiry.
func (l *Lease) Expired(now time.Time) bool {
	return now.After(l.ExpiresAt)
}

// Manager provides named mutual exclusion with expiring leases.
type Manager interface {
	// Acquire obtains a lease on resource with the given expiry.
	// Retries with backoff within the caller's deadline; returns
	// ErrLockUnavailable on exhaustion, ctx.Err() on cancellation.
	Acquire(ctx context.Context, resource string, expiry time.Duration) (*Lease, error)

	// Release frees the lease. Idempotent: releasing an expired or
	// superseded lease is a no-op.
	Release(ctx context.Context, lease *Lease) error

	// Sweep removes expired leases and returns how many were purged.
	Sweep(ctx context.Context) int
}

// Options tune the acquire retry loop.
type Options struct {
	MaxAttempts  int
	RetryBackoff time.Duration
}

// DefaultOptions matches the documented operation defaults.
func DefaultOptions() Options {
	return Options{
		MaxAttempts:  5,
		RetryBackoff: 100 * time.Millisecond,
	}
}
