package relay

import "context"

// NoopTransport discards published events and never delivers any. It is
// the default transport for single-context deployments.
type NoopTransport struct{}

// NewNoopTransport creates a NoopTransport
func NewNoopTransport() *NoopTransport {
	return &NoopTransport{}
}

// Publish implements Transport.Publish
func (t *NoopTransport) Publish(ctx context.Context, event Event) error {
	return nil
}

// Subscribe implements Transport.Subscribe
func (t *NoopTransport) Subscribe(handler func(Event)) error {
	return nil
}

// Close implements Transport.Close
func (t *NoopTransport) Close() error {
	return nil
}
