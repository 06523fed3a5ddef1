package events

import (
	"context"
	"sync"

	"github.com/wolfman30/legal-triage/pkg/logging"
)

// Publisher delivers envelopes to downstream consumers. Routing keys are the
// envelope's event type.
type Publisher interface {
	Publish(ctx context.Context, env Envelope) error
	Close() error
}

// NoopPublisher drops every event.
type NoopPublisher struct{}

func (NoopPublisher) Publish(context.Context, Envelope) error { return nil }
func (NoopPublisher) Close() error                            { return nil }

// MemoryPublisher records events in process. Used by tests and the CLI.
type MemoryPublisher struct {
	mu     sync.Mutex
	events []Envelope
}

func (m *MemoryPublisher) Publish(_ context.Context, env Envelope) error {
	m.mu.Lock()
	m.events = append(m.events, env)
	m.mu.Unlock()
	return nil
}

func (m *MemoryPublisher) Close() error { return nil }

// Events returns a copy of the recorded envelopes.
func (m *MemoryPublisher) Events() []Envelope {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Envelope, len(m.events))
	copy(out, m.events)
	return out
}

// Emit builds an envelope for evt and publishes it. Failures are logged and
// returned so callers can ignore them when delivery is best-effort.
func Emit(ctx context.Context, pub Publisher, logger *logging.Logger, aggregate, correlationID string, evt Event) error {
	if pub == nil {
		return nil
	}
	if logger == nil {
		logger = logging.Default()
	}
	env, err := NewEnvelope(aggregate, correlationID, evt)
	if err != nil {
		logger.Warn("failed to build event", "error", err)
		return err
	}
	if err := pub.Publish(ctx, env); err != nil {
		logger.Warn("failed to publish event", "type", env.EventType, "error", err)
		return err
	}
	return nil
}
