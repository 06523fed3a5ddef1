package events

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Producer identifies this service in every envelope.
const Producer = "legal-triage"

// Event is a versioned triage event payload.
type Event interface {
	EventType() string
}

// Envelope is the wire form of an event on the broker and in the outbox.
// Payload holds the JSON-encoded Event.
type Envelope struct {
	EventID         uuid.UUID       `json:"event_id"`
	EventType       string          `json:"event_type"`
	Producer        string          `json:"producer"`
	Aggregate       string          `json:"aggregate"`
	TimestampMicros int64           `json:"timestamp"`
	CorrelationID   string          `json:"correlation_id,omitempty"`
	Payload         json.RawMessage `json:"payload"`
}

// Time returns the emission time.
func (e Envelope) Time() time.Time {
	return time.UnixMicro(e.TimestampMicros).UTC()
}

// Decode unmarshals the payload into v after checking the event type.
func (e Envelope) Decode(v Event) error {
	if v.EventType() != e.EventType {
		return fmt.Errorf("events: envelope holds %s, not %s", e.EventType, v.EventType())
	}
	if err := json.Unmarshal(e.Payload, v); err != nil {
		return fmt.Errorf("events: decode %s: %w", e.EventType, err)
	}
	return nil
}

type EnvelopeOption func(*Envelope)

func WithEventID(id uuid.UUID) EnvelopeOption {
	return func(e *Envelope) {
		if id != uuid.Nil {
			e.EventID = id
		}
	}
}

// WithTimestamp pins the emission time; a zero time is ignored.
func WithTimestamp(ts time.Time) EnvelopeOption {
	return func(e *Envelope) {
		if !ts.IsZero() {
			e.TimestampMicros = ts.UTC().UnixMicro()
		}
	}
}

var (
	errMissingAggregate = errors.New("events: aggregate is required")
	errNilEvent         = errors.New("events: event is required")
	errMissingType      = errors.New("events: event type is required")

	nowFunc = time.Now
)

// NewEnvelope encodes evt for the session or rule set named by aggregate
// ("session:<key>", "rules").
func NewEnvelope(aggregate, correlationID string, evt Event, opts ...EnvelopeOption) (Envelope, error) {
	aggregate = strings.TrimSpace(aggregate)
	switch {
	case aggregate == "":
		return Envelope{}, errMissingAggregate
	case evt == nil:
		return Envelope{}, errNilEvent
	}
	typ := strings.TrimSpace(evt.EventType())
	if typ == "" {
		return Envelope{}, errMissingType
	}

	payload, err := json.Marshal(evt)
	if err != nil {
		return Envelope{}, fmt.Errorf("events: encode %s: %w", typ, err)
	}
	env := Envelope{
		EventID:         uuid.New(),
		EventType:       typ,
		Producer:        Producer,
		Aggregate:       aggregate,
		TimestampMicros: nowFunc().UTC().UnixMicro(),
		CorrelationID:   strings.TrimSpace(correlationID),
		Payload:         payload,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&env)
		}
	}
	return env, nil
}
