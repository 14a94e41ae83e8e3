package monitoring

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/civicpulse/smartcache/pkg/cache"
)

type staticStats struct {
	stats cache.CacheStats
}

func (s *staticStats) Stats() cache.CacheStats {
	return s.stats
}

func TestMetricsExporter_Export(t *testing.T) {
	provider := &staticStats{stats: cache.CacheStats{
		Size:          7,
		MemoryUsage:   4096,
		TotalHits:     90,
		TotalMisses:   10,
		HitRate:       0.9,
		Evictions:     3,
		Expirations:   2,
		Invalidations: 5,
		SyncPublished: 11,
		SyncDropped:   1,
		SyncApplied:   8,
	}}

	e := NewMetricsExporter(provider, "unit", time.Minute)
	e.export()

	assert.Equal(t, 7.0, testutil.ToFloat64(cacheEntries.WithLabelValues("unit")))
	assert.Equal(t, 4096.0, testutil.ToFloat64(cacheMemoryBytes.WithLabelValues("unit")))
	assert.Equal(t, 90.0, testutil.ToFloat64(cacheHits.WithLabelValues("unit")))
	assert.Equal(t, 10.0, testutil.ToFloat64(cacheMisses.WithLabelValues("unit")))
	assert.Equal(t, 0.9, testutil.ToFloat64(cacheHitRate.WithLabelValues("unit")))
	assert.Equal(t, 3.0, testutil.ToFloat64(cacheEvictions.WithLabelValues("unit")))
	assert.Equal(t, 2.0, testutil.ToFloat64(cacheExpirations.WithLabelValues("unit")))
	assert.Equal(t, 5.0, testutil.ToFloat64(cacheInvalidations.WithLabelValues("unit")))
	assert.Equal(t, 11.0, testutil.ToFloat64(cacheSyncPublished.WithLabelValues("unit")))
	assert.Equal(t, 1.0, testutil.ToFloat64(cacheSyncDropped.WithLabelValues("unit")))
	assert.Equal(t, 8.0, testutil.ToFloat64(cacheSyncApplied.WithLabelValues("unit")))
}

func TestMetricsExporter_StartExportsOnInterval(t *testing.T) {
	provider := &staticStats{stats: cache.CacheStats{Size: 42}}

	e := NewMetricsExporter(provider, "live", 10*time.Millisecond)

	done := make(chan struct{})
	go func() {
		e.Start(context.Background())
		close(done)
	}()

	require.Eventually(t, func() bool {
		return testutil.ToFloat64(cacheEntries.WithLabelValues("live")) == 42.0
	}, time.Second, 5*time.Millisecond)

	e.Stop()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("exporter did not stop")
	}
}

func TestMetricsExporter_ContextCancelStops(t *testing.T) {
	provider := &staticStats{}
	e := NewMetricsExporter(provider, "ctx", time.Hour)

	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		e.Start(ctx)
		close(done)
	}()

	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("exporter did not honor context cancellation")
	}
}

func TestMetricsExporter_StopIsIdempotent(t *testing.T) {
	e := NewMetricsExporter(&staticStats{}, "idem", time.Minute)
	e.Stop()
	e.Stop()
}

func TestMetricsExporter_DefaultInterval(t *testing.T) {
	e := NewMetricsExporter(&staticStats{}, "d", 0)
	assert.Equal(t, 30*time.Second, e.interval)
}

func TestMetricsExporter_ReadsLiveCache(t *testing.T) {
	c, err := cache.New[string](cache.Config{CleanupInterval: 0, Namespace: "real"})
	require.NoError(t, err)
	defer func() { _ = c.Close() }()

	require.NoError(t, c.Set(context.Background(), "precinct:42", "reporting", cache.SetOptions{}))
	_, ok := c.Get(context.Background(), "precinct:42")
	require.True(t, ok)

	e := NewMetricsExporter(c, "real", time.Minute)
	e.export()

	assert.Equal(t, 1.0, testutil.ToFloat64(cacheEntries.WithLabelValues("real")))
	assert.Equal(t, 1.0, testutil.ToFloat64(cacheHits.WithLabelValues("real")))
}
