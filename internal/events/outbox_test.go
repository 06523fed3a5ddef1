package events

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wolfman30/legal-triage/pkg/logging"
)

func testEnvelope(t *testing.T) Envelope {
	t.Helper()
	env, err := NewEnvelope("rules", "", RulesReplacedV1{RuleCount: 2, Backend: "postgres"},
		WithEventID(uuid.MustParse("7f1c1f1e-8c1b-4e52-9a8d-2d0f3f7b9a11")),
		WithTimestamp(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)))
	require.NoError(t, err)
	return env
}

func TestOutboxPublishInserts(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	env := testEnvelope(t)
	mock.ExpectExec("INSERT INTO triage_event_outbox").
		WithArgs(env.EventID, "rules", TypeRulesReplaced, pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	store := newOutboxStoreWithQuerier(mock)
	require.NoError(t, store.Publish(context.Background(), env))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRelayDeliversAndMarks(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	env := testEnvelope(t)
	raw, err := json.Marshal(env)
	require.NoError(t, err)

	mock.ExpectQuery("SELECT envelope").WithArgs(int32(10), int32(10)).
		WillReturnRows(pgxmock.NewRows([]string{"envelope"}).AddRow(raw))
	mock.ExpectExec("SET delivered_at").WithArgs(env.EventID).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	target := &MemoryPublisher{}
	relay := NewRelay(newOutboxStoreWithQuerier(mock), target, logging.New("error"), RelayBatchSize(10))

	assert.Equal(t, 1, relay.Drain(context.Background()))
	delivered := target.Events()
	require.Len(t, delivered, 1)
	assert.Equal(t, env.EventID, delivered[0].EventID)
	assert.JSONEq(t, string(env.Payload), string(delivered[0].Payload))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRelayLeavesFailedDeliveryPending(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	env := testEnvelope(t)
	raw, err := json.Marshal(env)
	require.NoError(t, err)
	mock.ExpectQuery("SELECT envelope").WithArgs(int32(25), int32(3)).
		WillReturnRows(pgxmock.NewRows([]string{"envelope"}).AddRow(raw))
	mock.ExpectExec("SET attempts = attempts \\+ 1").WithArgs(env.EventID, "broker down").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	relay := NewRelay(newOutboxStoreWithQuerier(mock), failingPublisher{}, logging.New("error"), RelayMaxAttempts(3))
	assert.Equal(t, 0, relay.Drain(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordFailureRedactsAndTruncates(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	id := uuid.New()
	cause := errors.New("rejected for ops@acme.corp " + strings.Repeat("x", 600))
	mock.ExpectExec("SET attempts").WithArgs(id, pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	require.NoError(t, newOutboxStoreWithQuerier(mock).RecordFailure(context.Background(), id, cause))
	assert.NoError(t, mock.ExpectationsWereMet())

	msg := Redact(cause.Error())
	assert.NotContains(t, msg, "ops@acme.corp")
}

func TestRelayAlreadyDeliveredIsNotCounted(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	env := testEnvelope(t)
	raw, err := json.Marshal(env)
	require.NoError(t, err)
	mock.ExpectQuery("SELECT envelope").WithArgs(int32(25), int32(10)).
		WillReturnRows(pgxmock.NewRows([]string{"envelope"}).AddRow(raw))
	mock.ExpectExec("SET delivered_at").WithArgs(env.EventID).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	relay := NewRelay(newOutboxStoreWithQuerier(mock), &MemoryPublisher{}, logging.New("error"))
	assert.Equal(t, 0, relay.Drain(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRelayFetchError(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery("SELECT envelope").WillReturnError(errors.New("connection refused"))
	relay := NewRelay(newOutboxStoreWithQuerier(mock), &MemoryPublisher{}, logging.New("error"))
	assert.Equal(t, 0, relay.Drain(context.Background()))
}

func TestTruncateUTF8KeepsRuneBoundary(t *testing.T) {
	cause := strings.Repeat("a", 511) + "é…"
	got := truncateUTF8(cause, maxErrorText)
	assert.True(t, utf8.ValidString(got))
	assert.Equal(t, strings.Repeat("a", 511), got)

	assert.Equal(t, "short", truncateUTF8("short", maxErrorText))
}

func TestRecordFailureStoresValidUTF8(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	id := uuid.New()
	mock.ExpectExec("SET attempts").WithArgs(id, strings.Repeat("a", 511)).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	cause := errors.New(strings.Repeat("a", 511) + "é…")
	require.NoError(t, newOutboxStoreWithQuerier(mock).RecordFailure(context.Background(), id, cause))
	assert.NoError(t, mock.ExpectationsWereMet())
}

type closingPublisher struct {
	MemoryPublisher
	closed bool
}

func (c *closingPublisher) Close() error {
	c.closed = true
	return nil
}

func TestRelayCloseClosesDownstream(t *testing.T) {
	target := &closingPublisher{}
	relay := NewRelay(nil, target, logging.New("error"))

	require.NoError(t, relay.Close())
	assert.True(t, target.closed)

	assert.NoError(t, NewRelay(nil, nil, logging.New("error")).Close())
}
