package relay

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/go-redis/redis/v8"

	"github.com/civicpulse/smartcache/pkg/observability"
)

// RedisTransport exchanges events over a Redis pub/sub channel. It suits
// deployments where sibling caches live in separate processes. Messages are
// fire-and-forget: subscribers offline at publish time never see them,
// which is acceptable under the relay's best-effort contract.
type RedisTransport struct {
	client  *redis.Client
	channel string
	logger  observability.Logger

	mu     sync.Mutex
	pubsub *redis.PubSub

	stopCh    chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once
}

// NewRedisTransport creates a transport publishing on "<namespace>:events"
func NewRedisTransport(client *redis.Client, namespace string, logger observability.Logger) *RedisTransport {
	if logger == nil {
		logger = observability.NewNoopLogger()
	}
	return &RedisTransport{
		client:  client,
		channel: namespace + ":events",
		logger:  logger,
		stopCh:  make(chan struct{}),
	}
}

// Publish implements Transport.Publish
func (t *RedisTransport) Publish(ctx context.Context, event Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	if err := t.client.Publish(ctx, t.channel, data).Err(); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}
	return nil
}

// Subscribe implements Transport.Subscribe
func (t *RedisTransport) Subscribe(handler func(Event)) error {
	ctx := context.Background()

	pubsub := t.client.Subscribe(ctx, t.channel)
	// Wait for subscription confirmation before consuming
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return fmt.Errorf("failed to subscribe to %s: %w", t.channel, err)
	}

	t.mu.Lock()
	t.pubsub = pubsub
	t.mu.Unlock()

	t.wg.Add(1)
	go t.consume(handler)
	return nil
}

// Close implements Transport.Close. The Redis client is shared, so we
// don't close it here.
func (t *RedisTransport) Close() error {
	t.closeOnce.Do(func() {
		close(t.stopCh)
		t.mu.Lock()
		if t.pubsub != nil {
			_ = t.pubsub.Close()
		}
		t.mu.Unlock()
		t.wg.Wait()
	})
	return nil
}

func (t *RedisTransport) consume(handler func(Event)) {
	defer t.wg.Done()

	t.mu.Lock()
	ch := t.pubsub.Channel()
	t.mu.Unlock()

	for {
		select {
		case <-t.stopCh:
			return
		case msg, ok := <-ch:
			if !ok {
				// Subscription lost; rebuild it with backoff
				if !t.resubscribe() {
					return
				}
				t.mu.Lock()
				ch = t.pubsub.Channel()
				t.mu.Unlock()
				continue
			}

			var event Event
			if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
				t.logger.Warn("Failed to decode sync event", map[string]interface{}{
					"error":   err.Error(),
					"channel": t.channel,
				})
				continue
			}
			handler(event)
		}
	}
}

// resubscribe rebuilds the pub/sub subscription with exponential backoff.
// It returns false when the transport is closing.
func (t *RedisTransport) resubscribe() bool {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 100 * time.Millisecond
	bo.MaxInterval = 10 * time.Second
	bo.MaxElapsedTime = 0 // retry until closed

	for {
		select {
		case <-t.stopCh:
			return false
		default:
		}

		ctx := context.Background()
		pubsub := t.client.Subscribe(ctx, t.channel)
		_, err := pubsub.Receive(ctx)
		if err == nil {
			t.mu.Lock()
			t.pubsub = pubsub
			t.mu.Unlock()
			t.logger.Info("Resubscribed to sync channel", map[string]interface{}{
				"channel": t.channel,
			})
			return true
		}

		_ = pubsub.Close()
		wait := bo.NextBackOff()
		t.logger.Warn("Resubscribe failed, backing off", map[string]interface{}{
			"error":   err.Error(),
			"channel": t.channel,
			"wait":    wait.String(),
		})

		select {
		case <-t.stopCh:
			return false
		case <-time.After(wait):
		}
	}
}
