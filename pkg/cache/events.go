package cache

import (
	"sync"
	"sync/atomic"
	"time"
)

// EventType identifies a cache lifecycle event
type EventType string

// Cache lifecycle events
const (
	EventSet         EventType = "set"
	EventHit         EventType = "hit"
	EventMiss        EventType = "miss"
	EventDelete      EventType = "delete"
	EventEvict       EventType = "evict"
	EventInvalidate  EventType = "invalidate"
	EventClear       EventType = "clear"
	EventMaintenance EventType = "maintenance"
)

// Event describes a cache lifecycle notification. Invalidation events carry
// the strategy, the removed keys, and the caller-supplied reason.
type Event struct {
	Type      EventType `json:"type"`
	Key       string    `json:"key,omitempty"`
	Keys      []string  `json:"keys,omitempty"`
	Strategy  Strategy  `json:"strategy,omitempty"`
	Reason    string    `json:"reason,omitempty"`
	Count     int       `json:"count,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// subscriber receives events on a buffered channel. An empty type set
// subscribes to everything.
type subscriber struct {
	ch    chan Event
	types map[EventType]struct{}
}

func (s *subscriber) wants(t EventType) bool {
	if len(s.types) == 0 {
		return true
	}
	_, ok := s.types[t]
	return ok
}

// notifier fans events out to subscribers without ever blocking the
// publisher. A subscriber that cannot keep up loses events; the drop count
// is surfaced through cache statistics.
type notifier struct {
	mu     sync.RWMutex
	subs   map[int]*subscriber
	nextID int
	buffer int
	closed bool

	dropped atomic.Int64
}

func newNotifier(buffer int) *notifier {
	return &notifier{
		subs:   make(map[int]*subscriber),
		buffer: buffer,
	}
}

func (n *notifier) subscribe(types ...EventType) (<-chan Event, func()) {
	n.mu.Lock()
	defer n.mu.Unlock()

	ch := make(chan Event, n.buffer)
	if n.closed {
		close(ch)
		return ch, func() {}
	}

	sub := &subscriber{ch: ch}
	if len(types) > 0 {
		sub.types = make(map[EventType]struct{}, len(types))
		for _, t := range types {
			sub.types[t] = struct{}{}
		}
	}

	id := n.nextID
	n.nextID++
	n.subs[id] = sub

	cancel := func() {
		n.mu.Lock()
		defer n.mu.Unlock()
		if s, ok := n.subs[id]; ok {
			delete(n.subs, id)
			close(s.ch)
		}
	}
	return ch, cancel
}

func (n *notifier) publish(ev Event) {
	n.mu.RLock()
	defer n.mu.RUnlock()

	if n.closed {
		return
	}

	for _, sub := range n.subs {
		if !sub.wants(ev.Type) {
			continue
		}
		select {
		case sub.ch <- ev:
		default:
			n.dropped.Add(1)
		}
	}
}

func (n *notifier) close() {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.closed {
		return
	}
	n.closed = true
	for id, sub := range n.subs {
		delete(n.subs, id)
		close(sub.ch)
	}
}
