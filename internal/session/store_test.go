package session

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/averyhale/booking-concierge/internal/scheduler"
)

func testContext() *scheduler.BookingContext {
	bc := scheduler.NewContext(scheduler.IntentBook, "America/New_York")
	bc.State = scheduler.StatePresentSlots
	bc.DurationMinutes = 45
	bc.CandidateSlots = []scheduler.SlotChip{
		{Label: "Mon Mar 2 at 10:04 AM", Start: time.Date(2026, time.March, 2, 10, 4, 0, 0, time.UTC)},
	}
	return bc
}

func newRedisStore(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisStore(client, time.Hour, nil), mr
}

func TestRedisStoreRoundTrip(t *testing.T) {
	store, _ := newRedisStore(t)
	ctx := context.Background()
	bc := testContext()

	require.NoError(t, store.Save(ctx, "sess-1", bc))

	loaded, err := store.Load(ctx, "sess-1")
	require.NoError(t, err)
	assert.Equal(t, bc.ID, loaded.ID)
	assert.Equal(t, scheduler.StatePresentSlots, loaded.State)
	assert.Equal(t, 45, loaded.DurationMinutes)
	require.Len(t, loaded.CandidateSlots, 1)
	assert.Equal(t, "Mon Mar 2 at 10:04 AM", loaded.CandidateSlots[0].Label)
}

func TestRedisStoreMissingSession(t *testing.T) {
	store, _ := newRedisStore(t)

	_, err := store.Load(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRedisStoreExpiry(t *testing.T) {
	store, mr := newRedisStore(t)
	ctx := context.Background()
	require.NoError(t, store.Save(ctx, "sess-1", testContext()))

	mr.FastForward(2 * time.Hour)

	_, err := store.Load(ctx, "sess-1")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRedisStoreDelete(t *testing.T) {
	store, _ := newRedisStore(t)
	ctx := context.Background()
	require.NoError(t, store.Save(ctx, "sess-1", testContext()))

	require.NoError(t, store.Delete(ctx, "sess-1"))

	_, err := store.Load(ctx, "sess-1")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStoreRoundTrip(t *testing.T) {
	store := NewMemoryStore(time.Hour)
	ctx := context.Background()
	bc := testContext()

	require.NoError(t, store.Save(ctx, "sess-1", bc))

	loaded, err := store.Load(ctx, "sess-1")
	require.NoError(t, err)
	assert.Equal(t, bc.ID, loaded.ID)

	// The stored value is a copy, not an alias.
	loaded.State = scheduler.StateDone
	again, err := store.Load(ctx, "sess-1")
	require.NoError(t, err)
	assert.Equal(t, scheduler.StatePresentSlots, again.State)
}

func TestMemoryStoreExpiry(t *testing.T) {
	store := NewMemoryStore(time.Hour)
	now := time.Now()
	store.now = func() time.Time { return now }
	ctx := context.Background()
	require.NoError(t, store.Save(ctx, "sess-1", testContext()))

	now = now.Add(2 * time.Hour)

	_, err := store.Load(ctx, "sess-1")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, store.Delete(ctx, "sess-1"))
}
