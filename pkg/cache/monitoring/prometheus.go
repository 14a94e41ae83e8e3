// Package monitoring exports cache statistics to Prometheus. It pairs a
// registry of collectors with a periodic exporter so dashboards see cache
// health without the application wiring metrics by hand.
package monitoring

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Size metrics
	cacheEntries = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "smartcache_monitor_entries",
		Help: "Number of live cache entries",
	}, []string{"cache"})

	cacheMemoryBytes = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "smartcache_monitor_memory_bytes",
		Help: "Estimated cache memory usage in bytes",
	}, []string{"cache"})

	// Access metrics
	cacheHits = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "smartcache_monitor_hits",
		Help: "Cumulative cache hits at the last export",
	}, []string{"cache"})

	cacheMisses = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "smartcache_monitor_misses",
		Help: "Cumulative cache misses at the last export",
	}, []string{"cache"})

	cacheHitRate = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "smartcache_monitor_hit_rate",
		Help: "Cache hit rate",
	}, []string{"cache"})

	// Removal metrics
	cacheEvictions = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "smartcache_monitor_evictions",
		Help: "Cumulative evicted entries at the last export",
	}, []string{"cache"})

	cacheExpirations = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "smartcache_monitor_expirations",
		Help: "Cumulative expired entries at the last export",
	}, []string{"cache"})

	cacheInvalidations = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "smartcache_monitor_invalidations",
		Help: "Cumulative invalidated entries at the last export",
	}, []string{"cache"})

	// Relay metrics
	cacheSyncPublished = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "smartcache_monitor_sync_published",
		Help: "Cumulative sync events published at the last export",
	}, []string{"cache"})

	cacheSyncDropped = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "smartcache_monitor_sync_dropped",
		Help: "Cumulative sync events dropped at the last export",
	}, []string{"cache"})

	cacheSyncApplied = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "smartcache_monitor_sync_applied",
		Help: "Cumulative sync events applied at the last export",
	}, []string{"cache"})
)
