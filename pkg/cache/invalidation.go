package cache

import (
	"context"

	"github.com/civicpulse/smartcache/pkg/cache/relay"
	"github.com/civicpulse/smartcache/pkg/observability"
)

// Strategy identifies how an invalidation was triggered
type Strategy string

// Invalidation strategies
const (
	StrategyTTL        Strategy = "ttl"
	StrategyTag        Strategy = "tag"
	StrategyDependency Strategy = "dependency"
	StrategyVersion    Strategy = "version"
	StrategyManual     Strategy = "manual"
)

// strategyFromString maps a wire-level strategy back to a known one,
// defaulting to manual for anything a newer sibling might send
func strategyFromString(s string) Strategy {
	switch st := Strategy(s); st {
	case StrategyTTL, StrategyTag, StrategyDependency, StrategyVersion, StrategyManual:
		return st
	default:
		return StrategyManual
	}
}

// InvalidateByTags removes every entry carrying at least one of the given
// tags and returns the number removed. Unknown tags contribute nothing, so
// repeating an invalidation reports zero.
func (c *Cache[T]) InvalidateByTags(ctx context.Context, tags []string, reason string) int {
	if c.closed.Load() || len(tags) == 0 {
		return 0
	}
	_, span := observability.TraceInvalidation(ctx, string(StrategyTag))
	defer span.End()

	return c.invalidateWhere(StrategyTag, reason, func() []string {
		return c.tags.collect(tags)
	})
}

// InvalidateByDependencies removes every entry declaring at least one of
// the given dependencies and returns the number removed
func (c *Cache[T]) InvalidateByDependencies(ctx context.Context, deps []string, reason string) int {
	if c.closed.Load() || len(deps) == 0 {
		return 0
	}
	_, span := observability.TraceInvalidation(ctx, string(StrategyDependency))
	defer span.End()

	return c.invalidateWhere(StrategyDependency, reason, func() []string {
		return c.deps.collect(deps)
	})
}

// InvalidateByVersion removes every versioned entry whose version differs
// from the given one and returns the number removed. Entries without
// version metadata are never touched by a version flush.
func (c *Cache[T]) InvalidateByVersion(ctx context.Context, version string, reason string) int {
	if c.closed.Load() {
		return 0
	}
	_, span := observability.TraceInvalidation(ctx, string(StrategyVersion))
	defer span.End()

	return c.invalidateWhere(StrategyVersion, reason, func() []string {
		stale := make([]string, 0)
		for key, v := range c.versions {
			if v != version {
				stale = append(stale, key)
			}
		}
		return stale
	})
}

// InvalidateKeys removes the given keys and returns how many were present
func (c *Cache[T]) InvalidateKeys(ctx context.Context, keys []string, reason string) int {
	if c.closed.Load() || len(keys) == 0 {
		return 0
	}
	_, span := observability.TraceInvalidation(ctx, string(StrategyManual))
	defer span.End()

	return c.invalidateWhere(StrategyManual, reason, func() []string {
		return keys
	})
}

// invalidateWhere runs the selector under the write lock, removes the
// selected keys, and emits exactly one invalidation event when anything
// was removed. The event carries the keys, the strategy, and the
// caller-supplied reason, locally and across the relay.
func (c *Cache[T]) invalidateWhere(strategy Strategy, reason string, selectLocked func() []string) int {
	c.mu.Lock()
	removed := c.removeKeysLocked(selectLocked())
	c.invalidations.Add(int64(len(removed)))
	c.mu.Unlock()

	if len(removed) == 0 {
		return 0
	}

	c.metrics.IncrementCounterWithLabels("cache_invalidations_total", float64(len(removed)), map[string]string{
		"strategy": string(strategy),
	})

	now := c.now()
	c.dispatch(pending{
		local: []Event{{
			Type:      EventInvalidate,
			Keys:      removed,
			Strategy:  strategy,
			Reason:    reason,
			Count:     len(removed),
			Timestamp: now,
		}},
		remote: []relay.Event{{
			Type:     relay.EventInvalidate,
			Keys:     removed,
			Strategy: string(strategy),
			Reason:   reason,
		}},
	})

	c.logger.Debug("Invalidated cache entries", map[string]interface{}{
		"strategy": string(strategy),
		"reason":   reason,
		"count":    len(removed),
	})
	return len(removed)
}
