package relay

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"github.com/civicpulse/smartcache/pkg/observability"
)

// Config defines relay configuration
type Config struct {
	// QueueSize bounds the outbound event queue. When the queue is full
	// new events are dropped, never blocking the cache caller.
	QueueSize int

	// PublishRate caps outbound events per second. Zero means unlimited.
	PublishRate float64

	// PublishBurst is the burst allowance when PublishRate is set
	PublishBurst int

	// DedupSize is the number of recently seen event IDs remembered to
	// suppress redelivery from at-least-once transports
	DedupSize int

	// PublishTimeout bounds a single transport publish call
	PublishTimeout time.Duration
}

// DefaultConfig returns default relay configuration
func DefaultConfig() Config {
	return Config{
		QueueSize:      256,
		PublishRate:    0,
		PublishBurst:   64,
		DedupSize:      1024,
		PublishTimeout: 5 * time.Second,
	}
}

// Stats reports relay counters
type Stats struct {
	Published int64 `json:"published"`
	Dropped   int64 `json:"dropped"`
	Applied   int64 `json:"applied"`
}

// Relay connects a local cache to a Transport. Outbound events are queued
// and published from a single background goroutine so cache operations
// never wait on the transport. Inbound events from other origins are
// deduplicated and handed to the Applier.
type Relay struct {
	cfg       Config
	transport Transport
	applier   Applier
	logger    observability.Logger
	metrics   observability.MetricsClient

	origin  string
	queue   chan Event
	limiter *rate.Limiter
	breaker *gobreaker.CircuitBreaker
	seen    *lru.Cache[string, struct{}]

	published atomic.Int64
	dropped   atomic.Int64
	applied   atomic.Int64

	stopCh    chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once
	started   atomic.Bool
}

// New creates a relay over the given transport. The applier receives every
// event originated by a sibling cache.
func New(cfg Config, transport Transport, applier Applier, logger observability.Logger, metrics observability.MetricsClient) (*Relay, error) {
	if transport == nil {
		return nil, fmt.Errorf("relay: transport is required")
	}
	if applier == nil {
		return nil, fmt.Errorf("relay: applier is required")
	}
	if logger == nil {
		logger = observability.NewNoopLogger()
	}
	if metrics == nil {
		metrics = observability.NewNoOpMetricsClient()
	}

	def := DefaultConfig()
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = def.QueueSize
	}
	if cfg.DedupSize <= 0 {
		cfg.DedupSize = def.DedupSize
	}
	if cfg.PublishBurst <= 0 {
		cfg.PublishBurst = def.PublishBurst
	}
	if cfg.PublishTimeout <= 0 {
		cfg.PublishTimeout = def.PublishTimeout
	}

	seen, err := lru.New[string, struct{}](cfg.DedupSize)
	if err != nil {
		return nil, fmt.Errorf("relay: failed to create dedup cache: %w", err)
	}

	r := &Relay{
		cfg:       cfg,
		transport: transport,
		applier:   applier,
		logger:    logger,
		metrics:   metrics,
		origin:    uuid.NewString(),
		queue:     make(chan Event, cfg.QueueSize),
		seen:      seen,
		stopCh:    make(chan struct{}),
	}

	if cfg.PublishRate > 0 {
		r.limiter = rate.NewLimiter(rate.Limit(cfg.PublishRate), cfg.PublishBurst)
	}

	r.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "relay-publish",
		MaxRequests: 3,
		Timeout:     15 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures > 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("Relay circuit breaker state changed", map[string]interface{}{
				"name": name,
				"from": from.String(),
				"to":   to.String(),
			})
		},
	})

	return r, nil
}

// Origin returns this relay's instance identifier. Events stamped with it
// are ignored when they come back through the transport.
func (r *Relay) Origin() string {
	return r.origin
}

// Start subscribes to the transport and begins draining the publish queue
func (r *Relay) Start() error {
	if !r.started.CompareAndSwap(false, true) {
		return nil
	}

	if err := r.transport.Subscribe(r.receive); err != nil {
		return fmt.Errorf("relay: subscribe failed: %w", err)
	}

	r.wg.Add(1)
	go r.publishLoop()

	r.logger.Debug("Relay started", map[string]interface{}{
		"origin":     r.origin,
		"queue_size": r.cfg.QueueSize,
	})
	return nil
}

// Publish enqueues an event for broadcast. It never blocks; when the queue
// is full the event is dropped and counted.
func (r *Relay) Publish(event Event) {
	event.Origin = r.origin
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	select {
	case r.queue <- event:
	default:
		r.dropped.Add(1)
		r.metrics.IncrementCounterWithLabels("cache_sync_errors_total", 1, map[string]string{
			"stage": "enqueue",
		})
		r.logger.Debug("Sync queue full, dropping event", map[string]interface{}{
			"type": string(event.Type),
			"keys": len(event.Keys),
		})
	}
}

// Stats returns relay counters
func (r *Relay) Stats() Stats {
	return Stats{
		Published: r.published.Load(),
		Dropped:   r.dropped.Load(),
		Applied:   r.applied.Load(),
	}
}

// Close stops the publish loop and closes the transport. Events still
// queued are discarded; delivery is best-effort by contract.
func (r *Relay) Close() error {
	var err error
	r.closeOnce.Do(func() {
		close(r.stopCh)
		r.wg.Wait()
		err = r.transport.Close()
	})
	return err
}

func (r *Relay) publishLoop() {
	defer r.wg.Done()

	for {
		select {
		case <-r.stopCh:
			return
		case event := <-r.queue:
			r.send(event)
		}
	}
}

func (r *Relay) send(event Event) {
	if r.limiter != nil && !r.limiter.Allow() {
		r.dropped.Add(1)
		r.logger.Debug("Sync publish rate exceeded, dropping event", map[string]interface{}{
			"type": string(event.Type),
		})
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), r.cfg.PublishTimeout)
	defer cancel()

	_, err := r.breaker.Execute(func() (interface{}, error) {
		return nil, r.transport.Publish(ctx, event)
	})
	if err != nil {
		// Sync failures never surface to cache callers
		r.metrics.IncrementCounterWithLabels("cache_sync_errors_total", 1, map[string]string{
			"stage": "publish",
		})
		r.logger.Warn("Failed to publish sync event", map[string]interface{}{
			"error": err.Error(),
			"type":  string(event.Type),
		})
		return
	}

	r.published.Add(1)
	r.metrics.IncrementCounterWithLabels("cache_sync_events_total", 1, map[string]string{
		"direction": "out",
		"type":      string(event.Type),
	})
}

func (r *Relay) receive(event Event) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("Panic applying sync event", map[string]interface{}{
				"panic": rec,
				"type":  string(event.Type),
			})
		}
	}()

	if event.Origin == r.origin {
		return
	}
	if event.ID != "" {
		if _, dup := r.seen.Get(event.ID); dup {
			return
		}
		r.seen.Add(event.ID, struct{}{})
	}

	r.applied.Add(1)
	r.metrics.IncrementCounterWithLabels("cache_sync_events_total", 1, map[string]string{
		"direction": "in",
		"type":      string(event.Type),
	})

	r.applier.Apply(event)
}
