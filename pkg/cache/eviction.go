package cache

import (
	"sort"
)

// evictionProtectThreshold is the priority above which entries are spared
// from eviction while lower-priority candidates can still make room
const evictionProtectThreshold = 5

// ensureCapacityLocked evicts entries until the incoming size fits within
// the entry and byte bounds. High-priority entries are ordered last so they
// fall only when nothing else frees enough room; if even that is not
// enough, the insert proceeds over budget and the caller logs the
// overshoot. Eviction is a local capacity concern and is never relayed.
func (c *Cache[T]) ensureCapacityLocked(incoming int64, evs *pending) int {
	// An entry bigger than the whole byte budget can never fit, so evicting
	// for it would just empty the cache. Enforce only the entry-count bound
	// and leave the overshoot to the caller's warning.
	oversized := c.cfg.MaxSize > 0 && incoming > c.cfg.MaxSize

	fits := func() bool {
		if c.cfg.MaxEntries > 0 && len(c.entries) >= c.cfg.MaxEntries {
			return false
		}
		if !oversized && c.cfg.MaxSize > 0 && c.totalSize+incoming > c.cfg.MaxSize {
			return false
		}
		return true
	}

	if fits() {
		return 0
	}

	candidates := make([]*entry[T], 0, len(c.entries))
	for _, e := range c.entries {
		candidates = append(candidates, e)
	}
	c.orderForEviction(candidates)

	evicted := make([]string, 0, 4)
	for _, victim := range candidates {
		if fits() {
			break
		}
		c.unlinkLocked(victim)
		evicted = append(evicted, victim.key)
	}

	if len(evicted) == 0 {
		return 0
	}

	c.evictions.Add(int64(len(evicted)))
	evs.local = append(evs.local, Event{
		Type:      EventEvict,
		Keys:      evicted,
		Reason:    "capacity",
		Count:     len(evicted),
		Timestamp: c.now(),
	})
	c.logger.Debug("Evicted entries to make room", map[string]interface{}{
		"policy":  string(c.cfg.EvictionPolicy),
		"count":   len(evicted),
		"entries": len(c.entries),
		"bytes":   c.totalSize,
	})
	return len(evicted)
}

// orderForEviction sorts candidates into eviction order for the configured
// policy. Ties break on key so eviction stays deterministic under a frozen
// clock. The stable pass afterwards sinks protected entries to the back
// without disturbing policy order within each band.
func (c *Cache[T]) orderForEviction(candidates []*entry[T]) {
	switch c.cfg.EvictionPolicy {
	case EvictionLFU:
		sort.Slice(candidates, func(i, j int) bool {
			ci, cj := candidates[i].meta.accessCount.Load(), candidates[j].meta.accessCount.Load()
			if ci != cj {
				return ci < cj
			}
			return candidates[i].key < candidates[j].key
		})
	case EvictionFIFO:
		sort.Slice(candidates, func(i, j int) bool {
			ti, tj := candidates[i].meta.createdAt, candidates[j].meta.createdAt
			if !ti.Equal(tj) {
				return ti.Before(tj)
			}
			return candidates[i].key < candidates[j].key
		})
	case EvictionRandom:
		c.rnd.Shuffle(len(candidates), func(i, j int) {
			candidates[i], candidates[j] = candidates[j], candidates[i]
		})
	default: // LRU
		sort.Slice(candidates, func(i, j int) bool {
			li, lj := candidates[i].meta.lastAccess.Load(), candidates[j].meta.lastAccess.Load()
			if li != lj {
				return li < lj
			}
			return candidates[i].key < candidates[j].key
		})
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].meta.priority <= evictionProtectThreshold &&
			candidates[j].meta.priority > evictionProtectThreshold
	})
}
