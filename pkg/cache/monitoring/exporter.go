package monitoring

import (
	"context"
	"sync"
	"time"

	"github.com/civicpulse/smartcache/pkg/cache"
)

// StatsProvider is the slice of the cache surface the exporter reads.
// *cache.Cache[T] satisfies it for any T.
type StatsProvider interface {
	Stats() cache.CacheStats
}

// MetricsExporter periodically publishes cache statistics to Prometheus.
type MetricsExporter struct {
	provider StatsProvider
	name     string
	interval time.Duration
	stopCh   chan struct{}
	stopOnce sync.Once
}

// NewMetricsExporter creates an exporter for the given cache. The name
// becomes the "cache" label on every metric, so two caches in one process
// stay distinguishable.
func NewMetricsExporter(provider StatsProvider, name string, interval time.Duration) *MetricsExporter {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &MetricsExporter{
		provider: provider,
		name:     name,
		interval: interval,
		stopCh:   make(chan struct{}),
	}
}

// Start runs the export loop until the context is cancelled or Stop is
// called. It blocks, so callers usually run it in a goroutine.
func (e *MetricsExporter) Start(ctx context.Context) {
	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-e.stopCh:
			return
		case <-ticker.C:
			e.export()
		}
	}
}

// Stop terminates the export loop. Safe to call more than once.
func (e *MetricsExporter) Stop() {
	e.stopOnce.Do(func() {
		close(e.stopCh)
	})
}

func (e *MetricsExporter) export() {
	stats := e.provider.Stats()

	cacheEntries.WithLabelValues(e.name).Set(float64(stats.Size))
	cacheMemoryBytes.WithLabelValues(e.name).Set(float64(stats.MemoryUsage))
	cacheHits.WithLabelValues(e.name).Set(float64(stats.TotalHits))
	cacheMisses.WithLabelValues(e.name).Set(float64(stats.TotalMisses))
	cacheHitRate.WithLabelValues(e.name).Set(stats.HitRate)
	cacheEvictions.WithLabelValues(e.name).Set(float64(stats.Evictions))
	cacheExpirations.WithLabelValues(e.name).Set(float64(stats.Expirations))
	cacheInvalidations.WithLabelValues(e.name).Set(float64(stats.Invalidations))
	cacheSyncPublished.WithLabelValues(e.name).Set(float64(stats.SyncPublished))
	cacheSyncDropped.WithLabelValues(e.name).Set(float64(stats.SyncDropped))
	cacheSyncApplied.WithLabelValues(e.name).Set(float64(stats.SyncApplied))
}
