package relay

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/civicpulse/smartcache/pkg/observability"
)

// StreamTransport exchanges events through a capped Redis stream polled on
// an interval. Unlike pub/sub, events published while a sibling was busy
// are still picked up on its next poll, at the cost of delivery latency.
type StreamTransport struct {
	client       *redis.Client
	stream       string
	pollInterval time.Duration
	maxLen       int64
	logger       observability.Logger

	mu     sync.Mutex
	lastID string

	stopCh    chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once
}

// StreamConfig defines stream transport tuning
type StreamConfig struct {
	// PollInterval is the delay between reads. Defaults to one second.
	PollInterval time.Duration

	// MaxLen caps the stream length (approximate trim). Defaults to 1024.
	MaxLen int64
}

// NewStreamTransport creates a transport over the stream "<namespace>:stream"
func NewStreamTransport(client *redis.Client, namespace string, cfg StreamConfig, logger observability.Logger) *StreamTransport {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = time.Second
	}
	if cfg.MaxLen <= 0 {
		cfg.MaxLen = 1024
	}
	if logger == nil {
		logger = observability.NewNoopLogger()
	}
	return &StreamTransport{
		client:       client,
		stream:       namespace + ":stream",
		pollInterval: cfg.PollInterval,
		maxLen:       cfg.MaxLen,
		logger:       logger,
		lastID:       "0-0",
		stopCh:       make(chan struct{}),
	}
}

// Publish implements Transport.Publish
func (t *StreamTransport) Publish(ctx context.Context, event Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	err = t.client.XAdd(ctx, &redis.XAddArgs{
		Stream: t.stream,
		MaxLen: t.maxLen,
		Approx: true,
		Values: map[string]interface{}{"event": string(data)},
	}).Err()
	if err != nil {
		return fmt.Errorf("failed to append event to stream: %w", err)
	}
	return nil
}

// Subscribe implements Transport.Subscribe. Polling starts after the
// newest entry already in the stream; history is not replayed.
func (t *StreamTransport) Subscribe(handler func(Event)) error {
	ctx := context.Background()

	latest, err := t.client.XRevRangeN(ctx, t.stream, "+", "-", 1).Result()
	if err != nil && err != redis.Nil {
		return fmt.Errorf("failed to resolve stream position: %w", err)
	}
	if len(latest) > 0 {
		t.mu.Lock()
		t.lastID = latest[0].ID
		t.mu.Unlock()
	}

	t.wg.Add(1)
	go t.poll(handler)
	return nil
}

// Close implements Transport.Close. The Redis client is shared, so we
// don't close it here.
func (t *StreamTransport) Close() error {
	t.closeOnce.Do(func() {
		close(t.stopCh)
		t.wg.Wait()
	})
	return nil
}

func (t *StreamTransport) poll(handler func(Event)) {
	defer t.wg.Done()

	ticker := time.NewTicker(t.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-t.stopCh:
			return
		case <-ticker.C:
			t.readBatch(handler)
		}
	}
}

func (t *StreamTransport) readBatch(handler func(Event)) {
	ctx, cancel := context.WithTimeout(context.Background(), t.pollInterval)
	defer cancel()

	t.mu.Lock()
	lastID := t.lastID
	t.mu.Unlock()

	streams, err := t.client.XRead(ctx, &redis.XReadArgs{
		Streams: []string{t.stream, lastID},
		Count:   100,
		Block:   -1, // non-blocking poll
	}).Result()
	if err != nil {
		if err != redis.Nil {
			t.logger.Warn("Failed to read sync stream", map[string]interface{}{
				"error":  err.Error(),
				"stream": t.stream,
			})
		}
		return
	}

	for _, stream := range streams {
		for _, msg := range stream.Messages {
			t.mu.Lock()
			t.lastID = msg.ID
			t.mu.Unlock()

			payload, ok := msg.Values["event"].(string)
			if !ok {
				continue
			}

			var event Event
			if err := json.Unmarshal([]byte(payload), &event); err != nil {
				t.logger.Warn("Failed to decode sync event", map[string]interface{}{
					"error":  err.Error(),
					"stream": t.stream,
				})
				continue
			}
			handler(event)
		}
	}
}
