// Package cache implements an in-process cache with multi-strategy
// invalidation: TTL expiry, tag and dependency cascades, version flushes,
// and manual removal. Entries carry size, access, and priority metadata
// feeding a policy-driven eviction engine, and an optional relay keeps
// sibling caches in other execution contexts coherent on a best-effort
// basis. The cache is a library; it never fetches data itself.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/civicpulse/smartcache/pkg/cache/relay"
	"github.com/civicpulse/smartcache/pkg/observability"
)

// Cache is a thread-safe, generically typed cache. A single read-write
// mutex guards the entry store and all indices as one unit so they are
// never observed in a partially updated state. Get takes the read lock;
// per-entry access stats are atomics so hits stay on the read path.
type Cache[T any] struct {
	cfg     Config
	logger  observability.Logger
	metrics observability.MetricsClient

	mu        sync.RWMutex
	entries   map[string]*entry[T]
	tags      index
	deps      index
	versions  map[string]string
	totalSize int64

	hits          atomic.Int64
	misses        atomic.Int64
	sets          atomic.Int64
	deletes       atomic.Int64
	evictions     atomic.Int64
	expirations   atomic.Int64
	invalidations atomic.Int64

	compressor *compressor
	notifier   *notifier
	relay      *relay.Relay
	group      singleflight.Group
	rnd        *rand.Rand // guarded by mu; only used during eviction
	now        func() time.Time

	closed    atomic.Bool
	closeOnce sync.Once
	stopCh    chan struct{}
	wg        sync.WaitGroup
}

// pending collects events built under the lock for dispatch after release
type pending struct {
	local  []Event
	remote []relay.Event
}

// New constructs a cache from the given configuration. Invalid
// configuration values are normalized, never rejected. The returned cache
// must be released with Close.
func New[T any](cfg Config, opts ...Option) (*Cache[T], error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	normalized := cfg.withDefaults()
	if cfg.EvictionPolicy != "" && cfg.EvictionPolicy != normalized.EvictionPolicy {
		o.logger.Warn("Unknown eviction policy, falling back to LRU", map[string]interface{}{
			"policy": string(cfg.EvictionPolicy),
		})
	}

	c := &Cache[T]{
		cfg:        normalized,
		logger:     o.logger,
		metrics:    o.metrics,
		entries:    make(map[string]*entry[T]),
		tags:       newIndex(),
		deps:       newIndex(),
		versions:   make(map[string]string),
		compressor: newCompressor(normalized.CompressionLevel, normalized.CompressionThreshold),
		notifier:   newNotifier(normalized.EventBuffer),
		rnd:        rand.New(rand.NewSource(time.Now().UnixNano())),
		now:        o.now,
		stopCh:     make(chan struct{}),
	}

	if normalized.EnableSync {
		transport := o.transport
		if transport == nil {
			c.logger.Warn("Sync enabled without a transport, relay disabled", nil)
		} else {
			rel, err := relay.New(relay.Config{QueueSize: normalized.SyncBuffer},
				transport, relay.ApplierFunc(c.applyRemote), c.logger, c.metrics)
			if err != nil {
				return nil, fmt.Errorf("cache: failed to create relay: %w", err)
			}
			if err := rel.Start(); err != nil {
				return nil, fmt.Errorf("cache: failed to start relay: %w", err)
			}
			c.relay = rel
		}
	}

	if normalized.CleanupInterval > 0 {
		c.wg.Add(1)
		go c.maintenanceLoop()
	}

	c.logger.Info("Cache initialized", map[string]interface{}{
		"namespace":        normalized.Namespace,
		"eviction_policy":  string(normalized.EvictionPolicy),
		"max_entries":      normalized.MaxEntries,
		"max_size":         normalized.MaxSize,
		"default_ttl":      normalized.DefaultTTL.String(),
		"cleanup_interval": normalized.CleanupInterval.String(),
		"sync":             c.relay != nil,
	})

	return c, nil
}

// Set stores a value under the given key. Serialization and compression
// failures degrade gracefully: the value is still cached and the failure
// is logged, because cache trouble must never break the caller's data
// path. The only errors returned are ErrClosed and ErrEmptyKey.
func (c *Cache[T]) Set(ctx context.Context, key string, value T, opts SetOptions) error {
	if c.closed.Load() {
		return ErrClosed
	}
	if key == "" {
		return ErrEmptyKey
	}

	_, span := observability.TraceCacheOperation(ctx, "set", key)
	defer span.End()
	start := time.Now()

	data, size, compressed, hasRaw := c.encode(key, value, opts.Compress)

	now := c.now()
	e := &entry[T]{
		key:        key,
		data:       data,
		compressed: compressed,
		hasRaw:     hasRaw,
		meta: metadata{
			size:         size,
			createdAt:    now,
			ttl:          c.effectiveTTL(opts.TTL),
			tags:         copyStrings(opts.Tags),
			dependencies: copyStrings(opts.Dependencies),
			version:      opts.Version,
			priority:     opts.Priority,
		},
	}
	if hasRaw {
		e.raw = value
	}
	if e.meta.ttl > 0 {
		e.meta.expiresAt = now.Add(e.meta.ttl)
	}
	e.meta.lastAccess.Store(now.UnixNano())

	var evs pending

	c.mu.Lock()
	// Overwrites shed the previous value's index memberships first so
	// stale tags and dependencies never linger
	if old, exists := c.entries[key]; exists {
		c.unlinkLocked(old)
	}

	evicted := c.ensureCapacityLocked(size, &evs)
	c.linkLocked(e)
	c.sets.Add(1)

	overshoot := c.cfg.MaxSize > 0 && c.totalSize > c.cfg.MaxSize
	c.mu.Unlock()

	if evicted > 0 {
		c.metrics.IncrementCounterWithLabels("cache_evictions_total", float64(evicted), map[string]string{
			"policy": string(c.cfg.EvictionPolicy),
			"reason": "capacity",
		})
	}
	if overshoot {
		c.metrics.IncrementCounter("cache_overshoot_total", 1)
		c.logger.Warn("Cache size limit exceeded after eviction", map[string]interface{}{
			"key":      key,
			"size":     size,
			"max_size": c.cfg.MaxSize,
		})
	}

	evs.local = append(evs.local, Event{Type: EventSet, Key: key, Timestamp: now})
	evs.remote = append(evs.remote, relay.Event{Type: relay.EventSet, Keys: []string{key}})
	c.dispatch(evs)

	c.metrics.RecordCacheOperation("set", true, time.Since(start).Seconds())
	return nil
}

// Get returns the value stored under key, or (zero, false) on a miss.
// Expired entries are removed on access. Corrupt entries are treated as
// absent and logged, never surfaced to the caller.
func (c *Cache[T]) Get(ctx context.Context, key string) (T, bool) {
	var zero T
	if c.closed.Load() {
		return zero, false
	}

	_, span := observability.TraceCacheOperation(ctx, "get", key)
	defer span.End()
	start := time.Now()

	c.mu.RLock()
	e, ok := c.entries[key]
	if !ok {
		c.mu.RUnlock()
		c.recordMiss(key, start)
		return zero, false
	}
	if e.isExpired(c.now()) {
		c.mu.RUnlock()
		c.expireKey(key)
		c.recordMiss(key, start)
		return zero, false
	}

	e.touch(c.now())
	data, compressed, hasRaw, raw := e.data, e.compressed, e.hasRaw, e.raw
	c.mu.RUnlock()

	if hasRaw {
		c.recordHit(key, start)
		return raw, true
	}

	if compressed {
		decompressed, err := c.compressor.DecompressOnly(data)
		if err != nil {
			c.dropCorrupt(key, "decompress", err)
			c.recordMiss(key, start)
			return zero, false
		}
		data = decompressed
	}

	var value T
	if err := json.Unmarshal(data, &value); err != nil {
		c.dropCorrupt(key, "decode", err)
		c.recordMiss(key, start)
		return zero, false
	}

	c.recordHit(key, start)
	return value, true
}

// Has reports whether key is present and unexpired. Unlike Get it does not
// touch access metadata or hit statistics, but it may lazily remove an
// entry whose TTL has elapsed.
func (c *Cache[T]) Has(ctx context.Context, key string) bool {
	if c.closed.Load() {
		return false
	}

	c.mu.RLock()
	e, ok := c.entries[key]
	if !ok {
		c.mu.RUnlock()
		return false
	}
	expired := e.isExpired(c.now())
	c.mu.RUnlock()

	if expired {
		c.expireKey(key)
		return false
	}
	return true
}

// Delete removes one entry and reports whether it existed
func (c *Cache[T]) Delete(ctx context.Context, key string) bool {
	if c.closed.Load() {
		return false
	}

	c.mu.Lock()
	removed := c.removeKeysLocked([]string{key})
	if len(removed) > 0 {
		c.deletes.Add(1)
	}
	c.mu.Unlock()

	if len(removed) == 0 {
		return false
	}

	now := c.now()
	c.dispatch(pending{
		local:  []Event{{Type: EventDelete, Key: key, Timestamp: now}},
		remote: []relay.Event{{Type: relay.EventInvalidate, Keys: removed, Strategy: string(StrategyManual), Reason: "delete"}},
	})
	return true
}

// Clear removes every entry, resets statistics, and notifies siblings.
// This is irreversible.
func (c *Cache[T]) Clear(ctx context.Context) {
	if c.closed.Load() {
		return
	}

	_, span := observability.TraceCacheOperation(ctx, "clear", "")
	defer span.End()

	count := c.doClear()

	now := c.now()
	c.dispatch(pending{
		local:  []Event{{Type: EventClear, Count: count, Timestamp: now}},
		remote: []relay.Event{{Type: relay.EventClear}},
	})

	c.logger.Info("Cache cleared", map[string]interface{}{"entries": count})
}

// doClear wipes the store and indices atomically and resets statistics
func (c *Cache[T]) doClear() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	count := len(c.entries)
	c.entries = make(map[string]*entry[T])
	c.tags = newIndex()
	c.deps = newIndex()
	c.versions = make(map[string]string)
	c.totalSize = 0

	c.hits.Store(0)
	c.misses.Store(0)
	c.sets.Store(0)
	c.deletes.Store(0)
	c.evictions.Store(0)
	c.expirations.Store(0)
	c.invalidations.Store(0)

	return count
}

// Len returns the number of live entries
func (c *Cache[T]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Keys returns all keys in sorted order
func (c *Cache[T]) Keys() []string {
	c.mu.RLock()
	keys := make([]string, 0, len(c.entries))
	for key := range c.entries {
		keys = append(keys, key)
	}
	c.mu.RUnlock()

	sort.Strings(keys)
	return keys
}

// Subscribe returns a channel of cache lifecycle events filtered to the
// given types (all types when none are given) plus a cancel function.
// Dispatch never blocks the cache; a slow subscriber loses events.
func (c *Cache[T]) Subscribe(types ...EventType) (<-chan Event, func()) {
	return c.notifier.subscribe(types...)
}

// Close stops the maintenance loop and the relay. It is idempotent and
// blocks until every background goroutine has exited.
func (c *Cache[T]) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.closed.Store(true)
		close(c.stopCh)
		c.wg.Wait()

		if c.relay != nil {
			err = c.relay.Close()
		}
		c.notifier.close()

		c.logger.Info("Cache closed", map[string]interface{}{
			"entries": c.Len(),
			"hits":    c.hits.Load(),
			"misses":  c.misses.Load(),
		})
	})
	return err
}

// encode serializes the value and applies optional compression. A value
// that cannot be serialized is kept raw with an estimated size rather
// than failing the Set.
func (c *Cache[T]) encode(key string, value T, compress bool) (data []byte, size int64, compressed, hasRaw bool) {
	data, err := json.Marshal(value)
	if err != nil {
		c.logger.Warn("Failed to serialize cache value, storing raw", map[string]interface{}{
			"key":   key,
			"error": err.Error(),
		})
		c.metrics.IncrementCounter("cache_serialization_failures_total", 1)
		return nil, estimateSize(value), false, true
	}

	size = int64(len(data))
	if compress && size > c.cfg.CompressionThreshold {
		packed, cerr := c.compressor.CompressOnly(data)
		if cerr != nil {
			c.logger.Warn("Failed to compress cache value, storing uncompressed", map[string]interface{}{
				"key":   key,
				"error": cerr.Error(),
			})
		} else if int64(len(packed)) < size {
			data = packed
			size = int64(len(packed))
			compressed = true
		}
	}
	return data, size, compressed, false
}

// effectiveTTL resolves the entry TTL: zero falls back to the default,
// and negative values normalize to "never expires"
func (c *Cache[T]) effectiveTTL(ttl time.Duration) time.Duration {
	if ttl == 0 {
		ttl = c.cfg.DefaultTTL
	}
	if ttl < 0 {
		return 0
	}
	return ttl
}

// linkLocked inserts the entry and registers all its index memberships
func (c *Cache[T]) linkLocked(e *entry[T]) {
	c.entries[e.key] = e
	for _, tag := range e.meta.tags {
		c.tags.add(tag, e.key)
	}
	for _, dep := range e.meta.dependencies {
		c.deps.add(dep, e.key)
	}
	if e.meta.version != "" {
		c.versions[e.key] = e.meta.version
	}
	c.totalSize += e.meta.size
}

// unlinkLocked removes the entry and every index reference to it
func (c *Cache[T]) unlinkLocked(e *entry[T]) {
	delete(c.entries, e.key)
	for _, tag := range e.meta.tags {
		c.tags.remove(tag, e.key)
	}
	for _, dep := range e.meta.dependencies {
		c.deps.remove(dep, e.key)
	}
	delete(c.versions, e.key)
	c.totalSize -= e.meta.size
}

// removeKeysLocked unlinks each existing key and returns the ones that
// were actually present. Absent keys contribute nothing; removal is
// idempotent by construction.
func (c *Cache[T]) removeKeysLocked(keys []string) []string {
	removed := make([]string, 0, len(keys))
	for _, key := range keys {
		if e, ok := c.entries[key]; ok {
			c.unlinkLocked(e)
			removed = append(removed, key)
		}
	}
	return removed
}

// expireKey removes a key whose TTL elapsed, re-checking under the write
// lock since the read-path check raced with other mutators
func (c *Cache[T]) expireKey(key string) {
	c.mu.Lock()
	e, ok := c.entries[key]
	if !ok || !e.isExpired(c.now()) {
		c.mu.Unlock()
		return
	}
	removed := c.removeKeysLocked([]string{key})
	c.expirations.Add(int64(len(removed)))
	c.invalidations.Add(int64(len(removed)))
	c.mu.Unlock()

	if len(removed) == 0 {
		return
	}

	c.metrics.IncrementCounterWithLabels("cache_invalidations_total", 1, map[string]string{
		"strategy": string(StrategyTTL),
	})
	// TTL removals are not relayed; siblings expire entries on their own clocks
	c.dispatch(pending{local: []Event{{
		Type:      EventInvalidate,
		Keys:      removed,
		Strategy:  StrategyTTL,
		Reason:    "expired",
		Count:     len(removed),
		Timestamp: c.now(),
	}}})
}

// dropCorrupt discards an entry whose payload cannot be decoded
func (c *Cache[T]) dropCorrupt(key, stage string, err error) {
	c.mu.Lock()
	if e, ok := c.entries[key]; ok {
		c.unlinkLocked(e)
	}
	c.mu.Unlock()

	c.metrics.IncrementCounterWithLabels("cache_corrupt_entries_total", 1, map[string]string{
		"stage": stage,
	})
	c.logger.Warn("Dropped corrupt cache entry", map[string]interface{}{
		"key":   key,
		"stage": stage,
		"error": err.Error(),
	})
}

func (c *Cache[T]) recordHit(key string, start time.Time) {
	c.hits.Add(1)
	c.metrics.RecordCacheOperation("get", true, time.Since(start).Seconds())
	c.notifier.publish(Event{Type: EventHit, Key: key, Timestamp: c.now()})
}

func (c *Cache[T]) recordMiss(key string, start time.Time) {
	c.misses.Add(1)
	c.metrics.RecordCacheOperation("get", false, time.Since(start).Seconds())
	c.notifier.publish(Event{Type: EventMiss, Key: key, Timestamp: c.now()})
}

// dispatch publishes collected events after the lock is released. Local
// fan-out is non-blocking; relay publishing is queue-decoupled.
func (c *Cache[T]) dispatch(evs pending) {
	for _, ev := range evs.local {
		c.notifier.publish(ev)
	}
	if c.relay == nil {
		return
	}
	for _, ev := range evs.remote {
		c.relay.Publish(ev)
	}
}

// applyRemote replays an event from a sibling cache. Remote set events
// carry no payload; the local copy is dropped so the next Get refetches.
// Nothing applied here is re-broadcast.
func (c *Cache[T]) applyRemote(event relay.Event) {
	if c.closed.Load() {
		return
	}

	switch event.Type {
	case relay.EventSet, relay.EventInvalidate:
		if len(event.Keys) == 0 {
			return
		}
		reason := event.Reason
		if reason == "" {
			reason = "sync"
		}

		c.mu.Lock()
		removed := c.removeKeysLocked(event.Keys)
		c.invalidations.Add(int64(len(removed)))
		c.mu.Unlock()

		if len(removed) == 0 {
			return
		}
		c.notifier.publish(Event{
			Type:      EventInvalidate,
			Keys:      removed,
			Strategy:  strategyFromString(event.Strategy),
			Reason:    reason,
			Count:     len(removed),
			Timestamp: c.now(),
		})
		c.logger.Debug("Applied remote invalidation", map[string]interface{}{
			"origin": event.Origin,
			"type":   string(event.Type),
			"count":  len(removed),
		})

	case relay.EventClear:
		count := c.doClear()
		c.notifier.publish(Event{Type: EventClear, Count: count, Timestamp: c.now()})
		c.logger.Debug("Applied remote clear", map[string]interface{}{
			"origin":  event.Origin,
			"entries": count,
		})
	}
}

func copyStrings(src []string) []string {
	if len(src) == 0 {
		return nil
	}
	dst := make([]string, len(src))
	copy(dst, src)
	return dst
}

// estimateSize approximates the footprint of a value that could not be
// serialized
func estimateSize(value interface{}) int64 {
	return int64(len(fmt.Sprintf("%v", value)))
}
