// Package relay propagates cache events between sibling caches that share
// a namespace. Delivery is best-effort and eventually consistent: lost
// events are acceptable because TTL and explicit invalidation remain the
// source of truth. Remote set events never carry payloads; siblings drop
// their local copy and refetch on the next miss.
package relay

import (
	"context"
	"time"
)

// EventType identifies a relayed cache event
type EventType string

// Relayed event types
const (
	EventSet        EventType = "set"
	EventInvalidate EventType = "invalidate"
	EventClear      EventType = "clear"
)

// Event is the minimal record exchanged between sibling caches
type Event struct {
	ID        string    `json:"id"`
	Origin    string    `json:"origin"`
	Type      EventType `json:"type"`
	Keys      []string  `json:"keys,omitempty"`
	Strategy  string    `json:"strategy,omitempty"`
	Reason    string    `json:"reason,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Transport carries events between execution contexts. Implementations
// must be safe for concurrent use. Publish may fail; the relay logs and
// swallows failures. Subscribe registers a single handler invoked from a
// transport-owned goroutine for every received event.
type Transport interface {
	Publish(ctx context.Context, event Event) error
	Subscribe(handler func(Event)) error
	Close() error
}

// Applier applies remotely originated events to the local cache
type Applier interface {
	Apply(event Event)
}

// ApplierFunc adapts a function to the Applier interface
type ApplierFunc func(Event)

// Apply implements Applier
func (f ApplierFunc) Apply(event Event) {
	f(event)
}
