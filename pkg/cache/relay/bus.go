package relay

import (
	"context"
	"sync"
)

// Bus is an in-process broadcast bus joining sibling caches within one
// runtime. Each cache takes its own Transport handle via Transport();
// events published on one handle are delivered synchronously to every
// other handle's subscriber.
type Bus struct {
	mu     sync.RWMutex
	nextID int
	subs   map[int]func(Event)
}

// NewBus creates an empty bus
func NewBus() *Bus {
	return &Bus{
		subs: make(map[int]func(Event)),
	}
}

// Transport returns a new transport handle attached to the bus
func (b *Bus) Transport() Transport {
	return &busTransport{bus: b, id: -1}
}

func (b *Bus) register(handler func(Event)) int {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.nextID
	b.nextID++
	b.subs[id] = handler
	return id
}

func (b *Bus) unregister(id int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.subs, id)
}

// broadcast delivers the event to every handler except the sender's own
func (b *Bus) broadcast(senderID int, event Event) {
	b.mu.RLock()
	handlers := make([]func(Event), 0, len(b.subs))
	for id, handler := range b.subs {
		if id == senderID {
			continue
		}
		handlers = append(handlers, handler)
	}
	b.mu.RUnlock()

	for _, handler := range handlers {
		handler(event)
	}
}

type busTransport struct {
	bus *Bus

	mu sync.Mutex
	id int
}

// Publish implements Transport.Publish
func (t *busTransport) Publish(ctx context.Context, event Event) error {
	t.mu.Lock()
	id := t.id
	t.mu.Unlock()

	t.bus.broadcast(id, event)
	return nil
}

// Subscribe implements Transport.Subscribe
func (t *busTransport) Subscribe(handler func(Event)) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.id >= 0 {
		t.bus.unregister(t.id)
	}
	t.id = t.bus.register(handler)
	return nil
}

// Close implements Transport.Close
func (t *busTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.id >= 0 {
		t.bus.unregister(t.id)
		t.id = -1
	}
	return nil
}
