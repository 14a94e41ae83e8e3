package cache

import (
	"sync/atomic"
	"time"
)

// entry is a stored payload plus its metadata. Entries are owned by the
// store and never escape it; Get returns decoded copies only.
type entry[T any] struct {
	key        string
	data       []byte
	compressed bool

	// raw holds the original value when serialization failed at Set time.
	// Such entries bypass compression and are returned directly on Get.
	raw    T
	hasRaw bool

	meta metadata
}

// metadata describes a cache entry. lastAccess and accessCount are atomics
// so hits can update them under the read lock.
type metadata struct {
	size         int64
	createdAt    time.Time
	ttl          time.Duration
	expiresAt    time.Time // zero means never expires
	tags         []string
	dependencies []string
	version      string
	priority     int

	lastAccess  atomic.Int64 // unix nanoseconds
	accessCount atomic.Int64
}

// isExpired reports whether the entry's TTL has elapsed at the given time
func (e *entry[T]) isExpired(now time.Time) bool {
	return !e.meta.expiresAt.IsZero() && now.After(e.meta.expiresAt)
}

// touch records an access for LRU/LFU bookkeeping
func (e *entry[T]) touch(now time.Time) {
	e.meta.lastAccess.Store(now.UnixNano())
	e.meta.accessCount.Add(1)
}
