package cache

import (
	"time"
)

// maintenanceLoop sweeps expired entries on the configured interval until
// Close. Sweeps run on this single goroutine, so they never overlap, and a
// panicking sweep is recovered rather than killing the loop.
func (c *Cache[T]) maintenanceLoop() {
	defer c.wg.Done()

	ticker := time.NewTicker(c.cfg.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.stopCh:
			return
		case <-ticker.C:
			RecoverWithMetrics(c.logger, c.metrics, "maintenance_sweep")(func() {
				c.sweepExpired()
			})
		}
	}
}

// sweepExpired removes every entry whose TTL has elapsed and refreshes the
// size gauges. A maintenance event is published after every sweep, even an
// empty one, so observers can track cadence. Sweep removals stay local;
// siblings run their own clocks.
func (c *Cache[T]) sweepExpired() {
	start := time.Now()
	now := c.now()

	c.mu.Lock()
	expired := make([]string, 0)
	for key, e := range c.entries {
		if e.isExpired(now) {
			expired = append(expired, key)
		}
	}
	removed := c.removeKeysLocked(expired)
	c.expirations.Add(int64(len(removed)))
	c.invalidations.Add(int64(len(removed)))
	entriesLeft := len(c.entries)
	bytesLeft := c.totalSize
	c.mu.Unlock()

	labels := map[string]string{"cache": c.cfg.Namespace}
	c.metrics.RecordGauge("cache_entries", float64(entriesLeft), labels)
	c.metrics.RecordGauge("cache_memory_bytes", float64(bytesLeft), labels)
	c.metrics.RecordHistogram("cache_maintenance_duration_seconds", time.Since(start).Seconds(), nil)

	var evs pending
	if len(removed) > 0 {
		c.metrics.IncrementCounterWithLabels("cache_invalidations_total", float64(len(removed)), map[string]string{
			"strategy": string(StrategyTTL),
		})
		evs.local = append(evs.local, Event{
			Type:      EventInvalidate,
			Keys:      removed,
			Strategy:  StrategyTTL,
			Reason:    "expired",
			Count:     len(removed),
			Timestamp: now,
		})
		c.logger.Debug("Maintenance sweep removed expired entries", map[string]interface{}{
			"count":    len(removed),
			"duration": time.Since(start).String(),
		})
	}
	evs.local = append(evs.local, Event{Type: EventMaintenance, Count: len(removed), Timestamp: now})
	c.dispatch(evs)
}
