package lock

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testOptions() Options {
	return Options{MaxAttempts: 2, RetryBackoff: 5 * time.Millisecond}
}

func TestMemoryManager_AcquireRelease(t *testing.T) {
	m := NewMemoryManager(testOptions())
	ctx := context.Background()

	lease, err := m.Acquire(ctx, "payment:42", time.Minute)
	require.NoError(t, err)
	require.NotNil(t, lease)
	assert.Equal(t, "payment:42", lease.Resource)
	assert.NotEmpty(t, lease.OwnerID)
	assert.True(t, m.Held("payment:42"))

	require.NoError(t, m.Release(ctx, lease))
	assert.False(t, m.Held("payment:42"))
}

func TestMemoryManager_MutualExclusion(t *testing.T) {
	m := NewMemoryManager(testOptions())
	ctx := context.Background()

	first, err := m.Acquire(ctx, "payment:7", time.Minute)
	require.NoError(t, err)

	_, err = m.Acquire(ctx, "payment:7", time.Minute)
	assert.ErrorIs(t, err, ErrLockUnavailable)

	// Independent resources do not contend.
	other, err := m.Acquire(ctx, "payment:8", time.Minute)
	require.NoError(t, err)

	require.NoError(t, m.Release(ctx, first))
	require.NoError(t, m.Release(ctx, other))
}

func TestMemoryManager_ExpiredLeaseTakeover(t *testing.T) {
	m := NewMemoryManager(testOptions())
	ctx := context.Background()

	stale, err := m.Acquire(ctx, "payment:9", time.Millisecond)
	require.NoError(t, err)

	time.Sleep(5 * time.Millisecond)

	fresh, err := m.Acquire(ctx, "payment:9", time.Minute)
	require.NoError(t, err)
	assert.NotEqual(t, stale.OwnerID, fresh.OwnerID)

	// Releasing the stale handle must not free the new owner's lease.
	require.NoError(t, m.Release(ctx, stale))
	assert.True(t, m.Held("payment:9"))

	require.NoError(t, m.Release(ctx, fresh))
	assert.False(t, m.Held("payment:9"))
}

func TestMemoryManager_ReleaseNil(t *testing.T) {
	m := NewMemoryManager(testOptions())
	assert.NoError(t, m.Release(context.Background(), nil))
}

func TestMemoryManager_Sweep(t *testing.T) {
	m := NewMemoryManager(testOptions())
	ctx := context.Background()

	_, err := m.Acquire(ctx, "short", time.Millisecond)
	require.NoError(t, err)
	_, err = m.Acquire(ctx, "long", time.Minute)
	require.NoError(t, err)

	time.Sleep(5 * time.Millisecond)

	purged := m.Sweep(ctx)
	assert.Equal(t, 1, purged)
	assert.False(t, m.Held("short"))
	assert.True(t, m.Held("long"))
	assert.Len(t, m.Snapshot(), 1)
}

func TestMemoryManager_ContextCancelled(t *testing.T) {
	m := NewMemoryManager(Options{MaxAttempts: 10, RetryBackoff: 50 * time.Millisecond})
	ctx := context.Background()

	lease, err := m.Acquire(ctx, "payment:11", time.Minute)
	require.NoError(t, err)
	defer m.Release(ctx, lease)

	cancelCtx, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()

	_, err = m.Acquire(cancelCtx, "payment:11", time.Minute)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestMemoryManager_ConcurrentAcquire(t *testing.T) {
	m := NewMemoryManager(Options{MaxAttempts: 1, RetryBackoff: time.Millisecond})
	ctx := context.Background()

	const goroutines = 32
	var wins int64
	var mu sync.Mutex
	var wg sync.WaitGroup

	wg.Add(goroutines)
	for i := 0; i < goroutines; i++ {
		go func() {
			defer wg.Done()
			if _, err := m.Acquire(ctx, "hot", time.Minute); err == nil {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(1), wins)
}
