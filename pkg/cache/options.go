package cache

import (
	"time"

	"github.com/civicpulse/smartcache/pkg/cache/relay"
	"github.com/civicpulse/smartcache/pkg/observability"
)

// SetOptions controls how a single entry is stored
type SetOptions struct {
	// TTL overrides Config.DefaultTTL for this entry. Zero falls back to
	// the default; a negative value means the entry never expires.
	TTL time.Duration `json:"ttl"`

	// Tags label the entry for group invalidation
	Tags []string `json:"tags,omitempty"`

	// Dependencies name upstream resources; invalidating any of them
	// removes this entry
	Dependencies []string `json:"dependencies,omitempty"`

	// Version marks the entry for version-flush invalidation
	Version string `json:"version,omitempty"`

	// Priority above 5 makes the entry a soft-protected eviction candidate
	Priority int `json:"priority"`

	// Compress gzips the payload when it exceeds the configured threshold
	Compress bool `json:"compress"`
}

// Option configures optional cache collaborators at construction time
type Option func(*options)

type options struct {
	logger    observability.Logger
	metrics   observability.MetricsClient
	transport relay.Transport
	now       func() time.Time
}

func defaultOptions() options {
	return options{
		logger:  observability.NewNoopLogger(),
		metrics: observability.NewNoOpMetricsClient(),
		now:     time.Now,
	}
}

// WithLogger sets the logger used for cache diagnostics
func WithLogger(logger observability.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithMetrics sets the metrics client used for cache instrumentation
func WithMetrics(metrics observability.MetricsClient) Option {
	return func(o *options) {
		if metrics != nil {
			o.metrics = metrics
		}
	}
}

// WithTransport sets the relay transport used to exchange events with
// sibling caches. The transport is only used when Config.EnableSync is true.
func WithTransport(transport relay.Transport) Option {
	return func(o *options) {
		o.transport = transport
	}
}

// WithClock overrides the cache's time source. Intended for tests that
// exercise TTL behavior deterministically.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}
