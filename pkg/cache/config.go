package cache

import (
	"compress/gzip"
	"time"
)

// EvictionPolicy selects the ordering used when the cache must free space.
type EvictionPolicy string

// Supported eviction policies
const (
	EvictionLRU    EvictionPolicy = "lru"
	EvictionLFU    EvictionPolicy = "lfu"
	EvictionFIFO   EvictionPolicy = "fifo"
	EvictionRandom EvictionPolicy = "random"
)

// Config defines cache configuration
type Config struct {
	// MaxSize is the ceiling on total payload bytes. Zero disables the limit.
	MaxSize int64 `json:"max_size" mapstructure:"max_size"`

	// MaxEntries is the ceiling on entry count. Zero disables the limit.
	MaxEntries int `json:"max_entries" mapstructure:"max_entries"`

	// DefaultTTL applies when SetOptions.TTL is zero. Non-positive means
	// entries never expire.
	DefaultTTL time.Duration `json:"default_ttl" mapstructure:"default_ttl"`

	// EvictionPolicy orders eviction candidates
	EvictionPolicy EvictionPolicy `json:"eviction_policy" mapstructure:"eviction_policy"`

	// CleanupInterval is the period of the expired-entry sweep.
	// Non-positive disables the maintenance loop.
	CleanupInterval time.Duration `json:"cleanup_interval" mapstructure:"cleanup_interval"`

	// CompressionThreshold is the minimum serialized size in bytes before
	// a payload with Compress set is gzip-compressed
	CompressionThreshold int64 `json:"compression_threshold" mapstructure:"compression_threshold"`

	// CompressionLevel is the gzip level used for compressed payloads
	CompressionLevel int `json:"compression_level" mapstructure:"compression_level"`

	// EnableSync turns on the synchronization relay when a transport is
	// provided at construction
	EnableSync bool `json:"enable_sync" mapstructure:"enable_sync"`

	// SyncBuffer is the size of the relay's outbound event queue
	SyncBuffer int `json:"sync_buffer" mapstructure:"sync_buffer"`

	// EventBuffer is the per-subscriber channel depth for lifecycle events
	EventBuffer int `json:"event_buffer" mapstructure:"event_buffer"`

	// Namespace scopes relay traffic so unrelated caches can share a transport
	Namespace string `json:"namespace" mapstructure:"namespace"`
}

// DefaultConfig returns the default cache configuration
func DefaultConfig() Config {
	return Config{
		MaxSize:              100 * 1024 * 1024, // 100MB
		MaxEntries:           10000,
		DefaultTTL:           5 * time.Minute,
		EvictionPolicy:       EvictionLRU,
		CleanupInterval:      time.Minute,
		CompressionThreshold: 1024, // Only compress if > 1KB
		CompressionLevel:     gzip.BestSpeed,
		EnableSync:           false,
		SyncBuffer:           256,
		EventBuffer:          64,
		Namespace:            "smartcache",
	}
}

// withDefaults normalizes invalid configuration values instead of rejecting
// them. The cache must stay usable under any configuration.
func (c Config) withDefaults() Config {
	def := DefaultConfig()

	if c.MaxSize < 0 {
		c.MaxSize = 0
	}
	if c.MaxEntries < 0 {
		c.MaxEntries = 0
	}
	if c.DefaultTTL < 0 {
		c.DefaultTTL = 0
	}
	switch c.EvictionPolicy {
	case EvictionLRU, EvictionLFU, EvictionFIFO, EvictionRandom:
	default:
		c.EvictionPolicy = def.EvictionPolicy
	}
	if c.CompressionThreshold <= 0 {
		c.CompressionThreshold = def.CompressionThreshold
	}
	if c.CompressionLevel < gzip.NoCompression || c.CompressionLevel > gzip.BestCompression {
		c.CompressionLevel = def.CompressionLevel
	}
	if c.SyncBuffer <= 0 {
		c.SyncBuffer = def.SyncBuffer
	}
	if c.EventBuffer <= 0 {
		c.EventBuffer = def.EventBuffer
	}
	if c.Namespace == "" {
		c.Namespace = def.Namespace
	}

	return c
}
