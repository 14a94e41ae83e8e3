package cache

import (
	"container/heap"
	"encoding/json"
	"fmt"
	"time"
)

// CacheStats is a point-in-time snapshot of cache health
type CacheStats struct {
	Size          int       `json:"size"`
	MemoryUsage   int64     `json:"memory_usage"`
	TotalHits     int64     `json:"total_hits"`
	TotalMisses   int64     `json:"total_misses"`
	HitRate       float64   `json:"hit_rate"`
	Sets          int64     `json:"sets"`
	Deletes       int64     `json:"deletes"`
	Evictions     int64     `json:"evictions"`
	EvictionRate  float64   `json:"eviction_rate"`
	Expirations   int64     `json:"expirations"`
	Invalidations int64     `json:"invalidations"`
	SyncPublished int64     `json:"sync_published,omitempty"`
	SyncDropped   int64     `json:"sync_dropped,omitempty"`
	SyncApplied   int64     `json:"sync_applied,omitempty"`
	EventsDropped int64     `json:"events_dropped,omitempty"`
	Timestamp     time.Time `json:"timestamp"`
}

// KeyStats describes a single entry for hot-key analysis
type KeyStats struct {
	Key         string        `json:"key"`
	AccessCount int64         `json:"access_count"`
	Size        int64         `json:"size"`
	Age         time.Duration `json:"age"`
}

// Stats returns a consistent snapshot of cache statistics
func (c *Cache[T]) Stats() CacheStats {
	c.mu.RLock()
	size := len(c.entries)
	memory := c.totalSize
	c.mu.RUnlock()

	stats := CacheStats{
		Size:          size,
		MemoryUsage:   memory,
		TotalHits:     c.hits.Load(),
		TotalMisses:   c.misses.Load(),
		Sets:          c.sets.Load(),
		Deletes:       c.deletes.Load(),
		Evictions:     c.evictions.Load(),
		Expirations:   c.expirations.Load(),
		Invalidations: c.invalidations.Load(),
		EventsDropped: c.notifier.dropped.Load(),
		Timestamp:     time.Now(),
	}

	if total := stats.TotalHits + stats.TotalMisses; total > 0 {
		stats.HitRate = float64(stats.TotalHits) / float64(total)
	}
	if stats.Sets > 0 {
		stats.EvictionRate = float64(stats.Evictions) / float64(stats.Sets)
	}

	if c.relay != nil {
		rs := c.relay.Stats()
		stats.SyncPublished = rs.Published
		stats.SyncDropped = rs.Dropped
		stats.SyncApplied = rs.Applied
	}

	return stats
}

// ExportStats exports cache statistics in various formats
func (c *Cache[T]) ExportStats(format string) ([]byte, error) {
	stats := c.Stats()

	switch format {
	case "json":
		return json.MarshalIndent(stats, "", "  ")
	case "prometheus":
		return c.exportPrometheusStats(stats), nil
	default:
		return nil, fmt.Errorf("cache: unsupported stats format: %s", format)
	}
}

func (c *Cache[T]) exportPrometheusStats(stats CacheStats) []byte {
	metrics := fmt.Sprintf(`# HELP smartcache_entries Number of live cache entries
# TYPE smartcache_entries gauge
smartcache_entries{cache=%q} %d

# HELP smartcache_memory_bytes Estimated memory usage in bytes
# TYPE smartcache_memory_bytes gauge
smartcache_memory_bytes{cache=%q} %d

# HELP smartcache_hits_total Total number of cache hits
# TYPE smartcache_hits_total counter
smartcache_hits_total{cache=%q} %d

# HELP smartcache_misses_total Total number of cache misses
# TYPE smartcache_misses_total counter
smartcache_misses_total{cache=%q} %d

# HELP smartcache_hit_rate Cache hit rate
# TYPE smartcache_hit_rate gauge
smartcache_hit_rate{cache=%q} %f

# HELP smartcache_sets_total Total number of set operations
# TYPE smartcache_sets_total counter
smartcache_sets_total{cache=%q} %d

# HELP smartcache_evictions_total Total number of evicted entries
# TYPE smartcache_evictions_total counter
smartcache_evictions_total{cache=%q} %d

# HELP smartcache_expirations_total Total number of expired entries
# TYPE smartcache_expirations_total counter
smartcache_expirations_total{cache=%q} %d

# HELP smartcache_invalidations_total Total number of invalidated entries
# TYPE smartcache_invalidations_total counter
smartcache_invalidations_total{cache=%q} %d
`,
		c.cfg.Namespace, stats.Size,
		c.cfg.Namespace, stats.MemoryUsage,
		c.cfg.Namespace, stats.TotalHits,
		c.cfg.Namespace, stats.TotalMisses,
		c.cfg.Namespace, stats.HitRate,
		c.cfg.Namespace, stats.Sets,
		c.cfg.Namespace, stats.Evictions,
		c.cfg.Namespace, stats.Expirations,
		c.cfg.Namespace, stats.Invalidations,
	)

	return []byte(metrics)
}

// TopKeys returns the most frequently accessed entries using a min heap
// for top-K selection
func (c *Cache[T]) TopKeys(limit int) []KeyStats {
	if limit <= 0 {
		return nil
	}
	now := c.now()

	c.mu.RLock()
	h := &entryHeap[T]{}
	heap.Init(h)
	for _, e := range c.entries {
		if h.Len() < limit {
			heap.Push(h, e)
		} else if e.meta.accessCount.Load() > (*h)[0].meta.accessCount.Load() {
			heap.Pop(h)
			heap.Push(h, e)
		}
	}
	c.mu.RUnlock()

	// Extract results in descending order
	results := make([]KeyStats, h.Len())
	for i := len(results) - 1; i >= 0; i-- {
		e := heap.Pop(h).(*entry[T])
		results[i] = KeyStats{
			Key:         e.key,
			AccessCount: e.meta.accessCount.Load(),
			Size:        e.meta.size,
			Age:         now.Sub(e.meta.createdAt),
		}
	}

	return results
}

// entryHeap is a min heap over access counts used for top-K selection
type entryHeap[T any] []*entry[T]

func (h entryHeap[T]) Len() int { return len(h) }

func (h entryHeap[T]) Less(i, j int) bool {
	return h[i].meta.accessCount.Load() < h[j].meta.accessCount.Load()
}

func (h entryHeap[T]) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *entryHeap[T]) Push(x interface{}) {
	*h = append(*h, x.(*entry[T]))
}

func (h *entryHeap[T]) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return item
}
