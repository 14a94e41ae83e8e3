package relay

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

// fakeTransport records published events and lets tests inject inbound
// events directly into the relay's handler
type fakeTransport struct {
	mu         sync.Mutex
	published  []Event
	handler    func(Event)
	publishErr error
	closed     bool

	attempts atomic.Int64
}

func (f *fakeTransport) Publish(ctx context.Context, event Event) error {
	f.attempts.Add(1)

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.publishErr != nil {
		return f.publishErr
	}
	f.published = append(f.published, event)
	return nil
}

func (f *fakeTransport) Subscribe(handler func(Event)) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handler = handler
	return nil
}

func (f *fakeTransport) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeTransport) deliver(event Event) {
	f.mu.Lock()
	handler := f.handler
	f.mu.Unlock()
	if handler != nil {
		handler(event)
	}
}

func (f *fakeTransport) events() []Event {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]Event, len(f.published))
	copy(out, f.published)
	return out
}

type recordingApplier struct {
	mu     sync.Mutex
	events []Event
}

func (a *recordingApplier) Apply(event Event) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.events = append(a.events, event)
}

func (a *recordingApplier) count() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.events)
}

func newTestRelay(t *testing.T, cfg Config, transport Transport) (*Relay, *recordingApplier) {
	t.Helper()

	applier := &recordingApplier{}
	r, err := New(cfg, transport, applier, nil, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = r.Close() })

	return r, applier
}

func TestRelay_PublishStampsEvent(t *testing.T) {
	transport := &fakeTransport{}
	r, _ := newTestRelay(t, Config{}, transport)
	require.NoError(t, r.Start())

	r.Publish(Event{Type: EventInvalidate, Keys: []string{"k"}, Strategy: "tag", Reason: "test"})

	require.Eventually(t, func() bool { return len(transport.events()) == 1 }, 2*time.Second, 5*time.Millisecond)

	ev := transport.events()[0]
	assert.NotEmpty(t, ev.ID)
	assert.Equal(t, r.Origin(), ev.Origin)
	assert.False(t, ev.Timestamp.IsZero())
	assert.Equal(t, EventInvalidate, ev.Type)
	assert.Equal(t, []string{"k"}, ev.Keys)

	assert.Equal(t, int64(1), r.Stats().Published)
}

func TestRelay_AppliesRemoteEvents(t *testing.T) {
	transport := &fakeTransport{}
	r, applier := newTestRelay(t, Config{}, transport)
	require.NoError(t, r.Start())

	transport.deliver(Event{ID: "ev-1", Origin: "other-instance", Type: EventInvalidate, Keys: []string{"k"}})

	assert.Equal(t, 1, applier.count())
	assert.Equal(t, int64(1), r.Stats().Applied)
}

func TestRelay_DropsOwnEvents(t *testing.T) {
	transport := &fakeTransport{}
	r, applier := newTestRelay(t, Config{}, transport)
	require.NoError(t, r.Start())

	// An at-least-once transport may echo our own events back
	transport.deliver(Event{ID: "ev-1", Origin: r.Origin(), Type: EventInvalidate, Keys: []string{"k"}})

	assert.Equal(t, 0, applier.count())
	assert.Equal(t, int64(0), r.Stats().Applied)
}

func TestRelay_DeduplicatesRedelivery(t *testing.T) {
	transport := &fakeTransport{}
	r, applier := newTestRelay(t, Config{}, transport)
	require.NoError(t, r.Start())

	ev := Event{ID: "ev-1", Origin: "other-instance", Type: EventInvalidate, Keys: []string{"k"}}
	transport.deliver(ev)
	transport.deliver(ev)
	transport.deliver(ev)

	assert.Equal(t, 1, applier.count())
}

func TestRelay_QueueFullDrops(t *testing.T) {
	transport := &fakeTransport{}
	// Relay is never started, so the queue is never drained
	r, _ := newTestRelay(t, Config{QueueSize: 1}, transport)

	for i := 0; i < 3; i++ {
		r.Publish(Event{Type: EventInvalidate, Keys: []string{"k"}})
	}

	stats := r.Stats()
	assert.Equal(t, int64(0), stats.Published)
	assert.Equal(t, int64(2), stats.Dropped)
}

func TestRelay_PublishFailuresSwallowed(t *testing.T) {
	transport := &fakeTransport{publishErr: errors.New("transport down")}
	r, applier := newTestRelay(t, Config{}, transport)
	require.NoError(t, r.Start())

	for i := 0; i < 10; i++ {
		r.Publish(Event{Type: EventInvalidate, Keys: []string{"k"}})
	}

	require.Eventually(t, func() bool { return len(r.queue) == 0 }, 2*time.Second, 5*time.Millisecond)

	assert.Equal(t, int64(0), r.Stats().Published)
	assert.Equal(t, 0, applier.count())

	// The circuit breaker stops hammering a failing transport
	assert.LessOrEqual(t, transport.attempts.Load(), int64(7))
}

func TestRelay_RequiresTransportAndApplier(t *testing.T) {
	_, err := New(Config{}, nil, &recordingApplier{}, nil, nil)
	assert.Error(t, err)

	_, err = New(Config{}, &fakeTransport{}, nil, nil, nil)
	assert.Error(t, err)
}

func TestRelay_StartIsIdempotent(t *testing.T) {
	transport := &fakeTransport{}
	r, _ := newTestRelay(t, Config{}, transport)

	require.NoError(t, r.Start())
	require.NoError(t, r.Start())
}

func TestRelay_CloseStopsLoop(t *testing.T) {
	defer goleak.VerifyNone(t)

	transport := &fakeTransport{}
	applier := &recordingApplier{}
	r, err := New(Config{}, transport, applier, nil, nil)
	require.NoError(t, err)
	require.NoError(t, r.Start())

	r.Publish(Event{Type: EventClear})

	require.NoError(t, r.Close())
	require.NoError(t, r.Close())
	assert.True(t, transport.closed)
}
