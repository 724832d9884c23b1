package abuse

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/averyhale/booking-concierge/pkg/logging"
)

func newMemoryGuard(policy Policy) (*MemoryGuard, *time.Time) {
	g := &MemoryGuard{
		entries: make(map[string]*entry),
		policy:  policy,
		logger:  logging.New("error"),
	}
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	g.now = func() time.Time { return now }
	return g, &now
}

func TestMemoryGuardLockoutAfterMaxFailures(t *testing.T) {
	ctx := context.Background()
	g, _ := newMemoryGuard(DefaultPolicy())

	for i := 0; i < 5; i++ {
		limited, err := g.IsLimited(ctx, "alice@example.com")
		require.NoError(t, err)
		assert.False(t, limited, "failure %d should not yet limit", i)
		require.NoError(t, g.RecordFailure(ctx, "alice@example.com"))
	}

	limited, err := g.IsLimited(ctx, "alice@example.com")
	require.NoError(t, err)
	assert.True(t, limited)

	remaining, err := g.RemainingLockout(ctx, "alice@example.com")
	require.NoError(t, err)
	assert.Greater(t, remaining, time.Duration(0))
	assert.LessOrEqual(t, remaining, 30*time.Minute)
}

func TestMemoryGuardClearUnblocks(t *testing.T) {
	ctx := context.Background()
	g, _ := newMemoryGuard(DefaultPolicy())

	for i := 0; i < 5; i++ {
		require.NoError(t, g.RecordFailure(ctx, "bob@example.com"))
	}
	limited, err := g.IsLimited(ctx, "bob@example.com")
	require.NoError(t, err)
	require.True(t, limited)

	require.NoError(t, g.Clear(ctx, "bob@example.com"))
	limited, err = g.IsLimited(ctx, "bob@example.com")
	require.NoError(t, err)
	assert.False(t, limited)

	remaining, err := g.RemainingLockout(ctx, "bob@example.com")
	require.NoError(t, err)
	assert.Zero(t, remaining)
}

func TestMemoryGuardLockoutExpiresLazily(t *testing.T) {
	ctx := context.Background()
	g, now := newMemoryGuard(DefaultPolicy())

	for i := 0; i < 5; i++ {
		require.NoError(t, g.RecordFailure(ctx, "carol"))
	}
	limited, _ := g.IsLimited(ctx, "carol")
	require.True(t, limited)

	*now = now.Add(31 * time.Minute)
	limited, err := g.IsLimited(ctx, "carol")
	require.NoError(t, err)
	assert.False(t, limited, "expired lockout should reset on first check")
}

func TestMemoryGuardWindowSlides(t *testing.T) {
	ctx := context.Background()
	g, now := newMemoryGuard(DefaultPolicy())

	for i := 0; i < 4; i++ {
		require.NoError(t, g.RecordFailure(ctx, "dave"))
	}
	// Old failures age out of the 15-minute window before the fifth.
	*now = now.Add(16 * time.Minute)
	require.NoError(t, g.RecordFailure(ctx, "dave"))

	limited, err := g.IsLimited(ctx, "dave")
	require.NoError(t, err)
	assert.False(t, limited)
}

func TestMemoryGuardConcurrentRecord(t *testing.T) {
	ctx := context.Background()
	g := NewMemoryGuard(Policy{Window: time.Minute, MaxFailures: 1000, Lockout: time.Minute}, logging.New("error"))

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 10; j++ {
				_ = g.RecordFailure(ctx, "shared")
			}
		}()
	}
	wg.Wait()

	g.mu.Lock()
	count := len(g.entries["shared"].failures)
	g.mu.Unlock()
	assert.Equal(t, 500, count, "no failure records may be lost under concurrency")
}

func newRedisGuard(t *testing.T) (*RedisGuard, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return NewRedisGuard(client, DefaultPolicy(), logging.New("error")), mr
}

func TestRedisGuardLockoutAfterMaxFailures(t *testing.T) {
	ctx := context.Background()
	g, _ := newRedisGuard(t)

	for i := 0; i < 5; i++ {
		limited, err := g.IsLimited(ctx, "eve")
		require.NoError(t, err)
		assert.False(t, limited)
		require.NoError(t, g.RecordFailure(ctx, "eve"))
	}

	limited, err := g.IsLimited(ctx, "eve")
	require.NoError(t, err)
	assert.True(t, limited)

	remaining, err := g.RemainingLockout(ctx, "eve")
	require.NoError(t, err)
	assert.Greater(t, remaining, time.Duration(0))
}

func TestRedisGuardClearUnblocks(t *testing.T) {
	ctx := context.Background()
	g, _ := newRedisGuard(t)

	for i := 0; i < 5; i++ {
		require.NoError(t, g.RecordFailure(ctx, "frank"))
	}
	limited, _ := g.IsLimited(ctx, "frank")
	require.True(t, limited)

	require.NoError(t, g.Clear(ctx, "frank"))
	limited, err := g.IsLimited(ctx, "frank")
	require.NoError(t, err)
	assert.False(t, limited)
}

func TestRedisGuardLockoutExpires(t *testing.T) {
	ctx := context.Background()
	g, mr := newRedisGuard(t)

	for i := 0; i < 5; i++ {
		require.NoError(t, g.RecordFailure(ctx, "grace"))
	}
	limited, _ := g.IsLimited(ctx, "grace")
	require.True(t, limited)

	mr.FastForward(31 * time.Minute)
	limited, err := g.IsLimited(ctx, "grace")
	require.NoError(t, err)
	assert.False(t, limited)
}
