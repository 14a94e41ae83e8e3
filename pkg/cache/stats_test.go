package cache

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCache_StatsCounters(t *testing.T) {
	c, _ := newTestCache(t, DefaultConfig())
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "a", snapshot(1), SetOptions{}))
	require.NoError(t, c.Set(ctx, "b", snapshot(2), SetOptions{}))

	for i := 0; i < 3; i++ {
		_, ok := c.Get(ctx, "a")
		require.True(t, ok)
	}
	_, ok := c.Get(ctx, "missing")
	require.False(t, ok)

	assert.True(t, c.Delete(ctx, "b"))

	stats := c.Stats()
	assert.Equal(t, 1, stats.Size)
	assert.Greater(t, stats.MemoryUsage, int64(0))
	assert.Equal(t, int64(3), stats.TotalHits)
	assert.Equal(t, int64(1), stats.TotalMisses)
	assert.InDelta(t, 0.75, stats.HitRate, 0.001)
	assert.Equal(t, int64(2), stats.Sets)
	assert.Equal(t, int64(1), stats.Deletes)
	assert.False(t, stats.Timestamp.IsZero())
}

func TestCache_StatsEvictionRate(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxEntries = 1
	c, _ := newTestCache(t, cfg)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "a", snapshot(1), SetOptions{}))
	require.NoError(t, c.Set(ctx, "b", snapshot(2), SetOptions{}))

	stats := c.Stats()
	assert.Equal(t, int64(1), stats.Evictions)
	assert.InDelta(t, 0.5, stats.EvictionRate, 0.001)
}

func TestCache_ExportStatsJSON(t *testing.T) {
	c, _ := newTestCache(t, DefaultConfig())
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "a", snapshot(1), SetOptions{}))
	_, _ = c.Get(ctx, "a")

	out, err := c.ExportStats("json")
	require.NoError(t, err)

	var decoded CacheStats
	require.NoError(t, json.Unmarshal(out, &decoded))
	assert.Equal(t, 1, decoded.Size)
	assert.Equal(t, int64(1), decoded.TotalHits)
}

func TestCache_ExportStatsPrometheus(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Namespace = "sentiment"
	c, _ := newTestCache(t, cfg)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "a", snapshot(1), SetOptions{}))
	_, _ = c.Get(ctx, "a")
	_, _ = c.Get(ctx, "missing")

	out, err := c.ExportStats("prometheus")
	require.NoError(t, err)

	text := string(out)
	assert.Contains(t, text, "# TYPE smartcache_entries gauge")
	assert.Contains(t, text, `smartcache_entries{cache="sentiment"} 1`)
	assert.Contains(t, text, `smartcache_hits_total{cache="sentiment"} 1`)
	assert.Contains(t, text, `smartcache_misses_total{cache="sentiment"} 1`)
}

func TestCache_ExportStatsUnsupportedFormat(t *testing.T) {
	c, _ := newTestCache(t, DefaultConfig())

	_, err := c.ExportStats("xml")
	assert.Error(t, err)
}

func TestCache_TopKeys(t *testing.T) {
	c, _ := newTestCache(t, DefaultConfig())
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "hot", snapshot(1), SetOptions{}))
	require.NoError(t, c.Set(ctx, "warm", snapshot(2), SetOptions{}))
	require.NoError(t, c.Set(ctx, "cold", snapshot(3), SetOptions{}))

	for i := 0; i < 5; i++ {
		_, ok := c.Get(ctx, "hot")
		require.True(t, ok)
	}
	for i := 0; i < 2; i++ {
		_, ok := c.Get(ctx, "warm")
		require.True(t, ok)
	}

	top := c.TopKeys(2)
	require.Len(t, top, 2)
	assert.Equal(t, "hot", top[0].Key)
	assert.Equal(t, int64(5), top[0].AccessCount)
	assert.Equal(t, "warm", top[1].Key)

	assert.Len(t, c.TopKeys(10), 3, "limit beyond size returns everything")
	assert.Nil(t, c.TopKeys(0))
}
