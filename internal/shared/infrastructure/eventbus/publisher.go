package eventbus

import (
	"context"
	"sync"
)

// Envelope is a serialized event ready for the broker.
type Envelope struct {
	MessageID     string
	RoutingKey    string
	CorrelationID string
	Payload       []byte
}

// Publisher delivers envelopes to a message broker.
type Publisher interface {
	Publish(ctx context.Context, env Envelope) error
	Close() error
}

// RecordingPublisher keeps published envelopes in memory.
// The worker uses it in dry-run mode; tests use it to assert delivery.
type RecordingPublisher struct {
	mu        sync.Mutex
	envelopes []Envelope
	failWith  error
}

// NewRecordingPublisher creates an empty RecordingPublisher.
func NewRecordingPublisher() *RecordingPublisher {
	return &RecordingPublisher{}
}

// FailWith makes subsequent publishes return err. Pass nil to recover.
func (p *RecordingPublisher) FailWith(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.failWith = err
}

// Publish records env unless a failure is configured.
func (p *RecordingPublisher) Publish(_ context.Context, env Envelope) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.failWith != nil {
		return p.failWith
	}
	p.envelopes = append(p.envelopes, env)
	return nil
}

// Published returns a copy of the recorded envelopes.
func (p *RecordingPublisher) Published() []Envelope {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Envelope, len(p.envelopes))
	copy(out, p.envelopes)
	return out
}

// RoutingKeys returns the routing keys of recorded envelopes in order.
func (p *RecordingPublisher) RoutingKeys() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	keys := make([]string, 0, len(p.envelopes))
	for _, env := range p.envelopes {
		keys = append(keys, env.RoutingKey)
	}
	return keys
}

// Close is a no-op.
func (p *RecordingPublisher) Close() error { return nil }
