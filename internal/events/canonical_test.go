package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wolfman30/legal-triage/pkg/logging"
)

type badEvent struct{}

func (badEvent) EventType() string { return "" }

type failingPublisher struct{}

func (failingPublisher) Publish(context.Context, Envelope) error { return errors.New("broker down") }
func (failingPublisher) Close() error                            { return nil }

func TestNewEnvelope(t *testing.T) {
	fixedNow := time.Unix(0, 123456000).UTC()
	prevNow := nowFunc
	nowFunc = func() time.Time { return fixedNow }
	defer func() { nowFunc = prevNow }()

	id := uuid.MustParse("9a20d7d1-bf6a-4d33-bd55-5d25a816f1a8")
	env, err := NewEnvelope("session:abc", "corr-1", TurnCompletedV1{
		SessionKey: "abc",
		Outcome:    "routed",
		Assignee:   "ip@acme.corp",
		Verified:   true,
	}, WithEventID(id))
	require.NoError(t, err)

	assert.Equal(t, id, env.EventID)
	assert.Equal(t, fixedNow.UnixMicro(), env.TimestampMicros)
	assert.Equal(t, TypeTurnCompleted, env.EventType)
	assert.Equal(t, "session:abc", env.Aggregate)
	assert.Equal(t, "corr-1", env.CorrelationID)
	assert.Equal(t, Producer, env.Producer)
	assert.Equal(t, fixedNow, env.Time())

	var payload TurnCompletedV1
	require.NoError(t, env.Decode(&payload))
	assert.Equal(t, "ip@acme.corp", payload.Assignee)

	var wrong RulesReplacedV1
	assert.ErrorContains(t, env.Decode(&wrong), "not "+TypeRulesReplaced)
}

func TestEnvelopeJSONShape(t *testing.T) {
	env, err := NewEnvelope("rules", "", RulesReplacedV1{RuleCount: 1, Backend: "file"})
	require.NoError(t, err)

	data, err := json.Marshal(env)
	require.NoError(t, err)
	var raw map[string]any
	require.NoError(t, json.Unmarshal(data, &raw))
	assert.Equal(t, "legal-triage", raw["producer"])
	assert.Equal(t, TypeRulesReplaced, raw["event_type"])
	assert.NotContains(t, raw, "correlation_id")
	assert.Equal(t, float64(1), raw["payload"].(map[string]any)["rule_count"])
}

func TestNewEnvelopeValidation(t *testing.T) {
	_, err := NewEnvelope(" ", "", RulesReplacedV1{})
	assert.ErrorIs(t, err, errMissingAggregate)

	_, err = NewEnvelope("rules", "", nil)
	assert.ErrorIs(t, err, errNilEvent)

	_, err = NewEnvelope("rules", "", badEvent{})
	assert.ErrorIs(t, err, errMissingType)
}

func TestWithTimestampIgnoresZero(t *testing.T) {
	env, err := NewEnvelope("rules", "", RulesReplacedV1{}, WithTimestamp(time.Time{}))
	require.NoError(t, err)
	assert.NotZero(t, env.TimestampMicros)
}

func TestEmitRecordsEvent(t *testing.T) {
	pub := &MemoryPublisher{}
	err := Emit(context.Background(), pub, logging.New("error"), "rules", "", RulesReplacedV1{RuleCount: 2, Backend: "file"})
	require.NoError(t, err)

	got := pub.Events()
	require.Len(t, got, 1)
	assert.Equal(t, TypeRulesReplaced, got[0].EventType)
}

func TestEmitReturnsPublishError(t *testing.T) {
	err := Emit(context.Background(), failingPublisher{}, logging.New("error"), "rules", "", RulesReplacedV1{})
	assert.EqualError(t, err, "broker down")

	assert.NoError(t, Emit(context.Background(), nil, nil, "rules", "", RulesReplacedV1{}))
}
