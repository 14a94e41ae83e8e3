package cache

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCache_SubscribeReceivesLifecycle(t *testing.T) {
	c, _ := newTestCache(t, DefaultConfig())
	ctx := context.Background()

	events, cancel := c.Subscribe()
	defer cancel()

	require.NoError(t, c.Set(ctx, "k", snapshot(1), SetOptions{}))
	_, _ = c.Get(ctx, "k")
	_, _ = c.Get(ctx, "missing")

	var types []EventType
	for i := 0; i < 3; i++ {
		select {
		case ev := <-events:
			types = append(types, ev.Type)
		default:
			t.Fatal("expected three buffered events")
		}
	}
	assert.Equal(t, []EventType{EventSet, EventHit, EventMiss}, types)
}

func TestCache_SubscribeFiltersTypes(t *testing.T) {
	c, _ := newTestCache(t, DefaultConfig())
	ctx := context.Background()

	events, cancel := c.Subscribe(EventMiss)
	defer cancel()

	require.NoError(t, c.Set(ctx, "k", snapshot(1), SetOptions{}))
	_, _ = c.Get(ctx, "k")
	_, _ = c.Get(ctx, "missing")

	select {
	case ev := <-events:
		assert.Equal(t, EventMiss, ev.Type)
		assert.Equal(t, "missing", ev.Key)
	default:
		t.Fatal("expected the miss event")
	}

	select {
	case ev := <-events:
		t.Fatalf("unexpected extra event: %+v", ev)
	default:
	}
}

func TestCache_SlowSubscriberLosesEvents(t *testing.T) {
	cfg := DefaultConfig()
	cfg.EventBuffer = 1
	c, _ := newTestCache(t, cfg)
	ctx := context.Background()

	_, cancel := c.Subscribe(EventSet)
	defer cancel()

	// Nobody drains the channel; overflow must be dropped, never block
	for i := 0; i < 10; i++ {
		require.NoError(t, c.Set(ctx, fmt.Sprintf("k%d", i), snapshot(i), SetOptions{}))
	}

	assert.Equal(t, int64(9), c.Stats().EventsDropped)
}

func TestCache_SubscribeCancel(t *testing.T) {
	c, _ := newTestCache(t, DefaultConfig())
	ctx := context.Background()

	events, cancel := c.Subscribe(EventSet)
	cancel()

	_, open := <-events
	assert.False(t, open)

	// Publishing after cancel must not panic
	require.NoError(t, c.Set(ctx, "k", snapshot(1), SetOptions{}))
}

func TestCache_CancelIsIdempotent(t *testing.T) {
	c, _ := newTestCache(t, DefaultConfig())

	_, cancel := c.Subscribe()
	cancel()
	cancel()
}

func TestCache_CloseClosesSubscribers(t *testing.T) {
	c, err := New[string](DefaultConfig())
	require.NoError(t, err)

	events, cancel := c.Subscribe()
	defer cancel()

	require.NoError(t, c.Close())

	_, open := <-events
	assert.False(t, open)
}
