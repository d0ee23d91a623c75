package lock

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryManager is the in-process lease table. A plain mutex over a map:
// acquisitions are short and contention is per-resource, so this stays
// simple instead of sharding.
type MemoryManager struct {
	mu     sync.Mutex
	leases map[string]*Lease
	opts   Options
}

// NewMemoryManager creates an in-memory lock manager.
func NewMemoryManager(opts Options) *MemoryManager {
	return &MemoryManager{
		leases: make(map[string]*Lease),
		opts:   opts,
	}
}

// Acquire inserts a lease for resource, replacing an expired one.
// Held-and-live leases cause bounded retries with backoff.
func (m *MemoryManager) Acquire(ctx context.Context, resource string, expiry time.Duration) (*Lease, error) {
	for attempt := 1; ; attempt++ {
		if lease, ok := m.tryAcquire(resource, expiry); ok {
			return lease, nil
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

func (m *MemoryManager) tryAcquire(resource string, expiry time.Duration) (*Lease, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	if existing, ok := m.leases[resource]; ok && !existing.Expired(now) {
		return nil, false
	}

	lease := &Lease{
		Resource:  resource,
		OwnerID:   uuid.NewString(),
		ExpiresAt: now.Add(expiry),
	}
	m.leases[resource] = lease
	return lease, true
}

// Release frees the lease only if the recorded owner still matches.
func (m *MemoryManager) Release(_ context.Context, lease *Lease) error {
	if lease == nil {
		return nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	current, ok := m.leases[lease.Resource]
	if !ok || current.OwnerID != lease.OwnerID {
		// Lease expired and another owner took over; nothing to do.
		return nil
	}

	delete(m.leases, lease.Resource)
	return nil
}

// Sweep purges leases past their expiry. Runs on the lock-sweep timer.
func (m *MemoryManager) Sweep(_ context.Context) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	purged := 0
	for resource, lease := range m.leases {
		if lease.Expired(now) {
			delete(m.leases, resource)
			purged++
		}
	}
	return purged
}

// Held reports whether a live lease exists for resource. Used by the
// admin lock-inspection endpoint and tests.
func (m *MemoryManager) Held(resource string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	lease, ok := m.leases[resource]
	return ok && !lease.Expired(time.Now())
}

// Snapshot returns a copy of all live leases for inspection.
func (m *MemoryManager) Snapshot() []Lease {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	out := make([]Lease, 0, len(m.leases))
	for _, lease := range m.leases {
		if !lease.Expired(now) {
			out = append(out, *lease)
		}
	}
	return out
}
