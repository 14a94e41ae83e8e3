package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/civicpulse/smartcache/pkg/cache/relay"
)

// newSyncedPair joins two caches over an in-process bus. Cleanup interval
// is disabled so tests control every removal.
func newSyncedPair(t *testing.T) (*Cache[sentimentSnapshot], *Cache[sentimentSnapshot]) {
	t.Helper()

	bus := relay.NewBus()
	cfg := DefaultConfig()
	cfg.EnableSync = true
	cfg.CleanupInterval = 0

	a, err := New[sentimentSnapshot](cfg, WithTransport(bus.Transport()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })

	b, err := New[sentimentSnapshot](cfg, WithTransport(bus.Transport()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = b.Close() })

	return a, b
}

func TestCache_SyncInvalidatePropagates(t *testing.T) {
	a, b := newSyncedPair(t)
	ctx := context.Background()

	// b wrote the key first; a's rewrite makes a the current holder and
	// drops b's copy over the bus
	require.NoError(t, b.Set(ctx, "shared", snapshot(1), SetOptions{}))
	require.Eventually(t, func() bool { return a.Stats().SyncApplied == 1 }, 2*time.Second, 5*time.Millisecond)
	require.NoError(t, a.Set(ctx, "shared", snapshot(2), SetOptions{}))
	require.Eventually(t, func() bool { return !b.Has(ctx, "shared") }, 2*time.Second, 5*time.Millisecond)

	// The holder's invalidation reaches the sibling
	before := b.Stats().SyncApplied
	assert.Equal(t, 1, a.InvalidateKeys(ctx, []string{"shared"}, "cross-instance purge"))

	require.Eventually(t, func() bool { return b.Stats().SyncApplied == before+1 }, 2*time.Second, 5*time.Millisecond)
	assert.False(t, a.Has(ctx, "shared"))
	assert.False(t, b.Has(ctx, "shared"))
}

func TestCache_SyncRemoteSetInvalidatesLocal(t *testing.T) {
	a, b := newSyncedPair(t)
	ctx := context.Background()

	require.NoError(t, b.Set(ctx, "poll:latest", snapshot(1), SetOptions{}))
	require.Eventually(t, func() bool { return a.Stats().SyncApplied == 1 }, 2*time.Second, 5*time.Millisecond)

	// a rewrites the data, so b's copy is stale and must be dropped. No
	// payload crosses the relay; b simply refetches on its next miss.
	require.NoError(t, a.Set(ctx, "poll:latest", snapshot(2), SetOptions{}))

	require.Eventually(t, func() bool { return !b.Has(ctx, "poll:latest") }, 2*time.Second, 5*time.Millisecond)
	assert.True(t, a.Has(ctx, "poll:latest"), "the writer keeps its own copy")
}

func TestCache_SyncClearPropagates(t *testing.T) {
	a, b := newSyncedPair(t)
	ctx := context.Background()

	require.NoError(t, b.Set(ctx, "k1", snapshot(1), SetOptions{}))
	require.NoError(t, b.Set(ctx, "k2", snapshot(2), SetOptions{}))
	require.Eventually(t, func() bool { return a.Stats().SyncApplied == 2 }, 2*time.Second, 5*time.Millisecond)

	a.Clear(ctx)

	require.Eventually(t, func() bool { return b.Len() == 0 }, 2*time.Second, 5*time.Millisecond)
}

func TestCache_SyncOwnEventsIgnored(t *testing.T) {
	a, _ := newSyncedPair(t)
	ctx := context.Background()

	require.NoError(t, a.Set(ctx, "self", snapshot(1), SetOptions{}))

	// The broadcast must not loop back and purge the writer's own entry
	time.Sleep(100 * time.Millisecond)
	assert.True(t, a.Has(ctx, "self"))
	assert.Equal(t, int64(0), a.Stats().SyncApplied)
}

func TestCache_SyncExpiryStaysLocal(t *testing.T) {
	bus := relay.NewBus()
	cfg := DefaultConfig()
	cfg.EnableSync = true
	cfg.CleanupInterval = 0

	clock := newFakeClock()
	a, err := New[sentimentSnapshot](cfg, WithTransport(bus.Transport()), WithClock(clock.Now))
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })

	b, err := New[sentimentSnapshot](cfg, WithTransport(bus.Transport()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = b.Close() })

	ctx := context.Background()
	require.NoError(t, a.Set(ctx, "k", snapshot(1), SetOptions{TTL: time.Minute}))
	require.Eventually(t, func() bool { return b.Stats().SyncApplied == 1 }, 2*time.Second, 5*time.Millisecond)

	clock.Advance(2 * time.Minute)
	_, ok := a.Get(ctx, "k")
	require.False(t, ok)

	// Siblings expire on their own clocks; a's expiry is not broadcast
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, int64(1), b.Stats().SyncApplied)
}

func TestCache_SyncDisabledByConfig(t *testing.T) {
	bus := relay.NewBus()

	c, err := New[sentimentSnapshot](DefaultConfig(), WithTransport(bus.Transport()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })

	assert.Nil(t, c.relay, "transport is ignored while sync is disabled")
}

func TestCache_SyncEnabledWithoutTransport(t *testing.T) {
	cfg := DefaultConfig()
	cfg.EnableSync = true

	c, err := New[sentimentSnapshot](cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })

	// Degrades to a purely local cache instead of failing
	assert.Nil(t, c.relay)
	require.NoError(t, c.Set(context.Background(), "k", snapshot(1), SetOptions{}))
}

func TestCache_SyncStatsExposed(t *testing.T) {
	a, b := newSyncedPair(t)
	ctx := context.Background()

	require.NoError(t, a.Set(ctx, "k", snapshot(1), SetOptions{}))

	require.Eventually(t, func() bool { return a.Stats().SyncPublished == 1 }, 2*time.Second, 5*time.Millisecond)
	require.Eventually(t, func() bool { return b.Stats().SyncApplied == 1 }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, int64(0), a.Stats().SyncDropped)
}
