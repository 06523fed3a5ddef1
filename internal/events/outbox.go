package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/wolfman30/legal-triage/pkg/logging"
)

const (
	insertOutboxSQL = `INSERT INTO triage_event_outbox (id, aggregate, event_type, envelope)
VALUES ($1, $2, $3, $4)
ON CONFLICT (id) DO NOTHING`

	// Envelopes that keep failing drop out of the batch once they reach the cap.
	pendingOutboxSQL = `SELECT envelope FROM triage_event_outbox
WHERE delivered_at IS NULL AND attempts < $2
ORDER BY created_at
LIMIT $1`

	deliveredOutboxSQL = `UPDATE triage_event_outbox SET delivered_at = now()
WHERE id = $1 AND delivered_at IS NULL`

	failedOutboxSQL = `UPDATE triage_event_outbox SET attempts = attempts + 1, last_error = $2
WHERE id = $1 AND delivered_at IS NULL`
)

const maxErrorText = 512

type outboxQuerier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// OutboxStore is a Publisher that parks envelopes in Postgres; a Relay moves
// them to the broker later.
type OutboxStore struct {
	db outboxQuerier
}

func NewOutboxStore(pool *pgxpool.Pool) *OutboxStore {
	if pool == nil {
		panic("events: pgx pool required")
	}
	return &OutboxStore{db: pool}
}

func newOutboxStoreWithQuerier(q outboxQuerier) *OutboxStore {
	return &OutboxStore{db: q}
}

// Publish records env for later delivery. Replays of the same event ID are
// ignored.
func (s *OutboxStore) Publish(ctx context.Context, env Envelope) error {
	doc, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("events: marshal envelope: %w", err)
	}
	if _, err := s.db.Exec(ctx, insertOutboxSQL, env.EventID, env.Aggregate, env.EventType, doc); err != nil {
		return fmt.Errorf("events: insert outbox: %w", err)
	}
	return nil
}

// Close does nothing; the pool is owned by bootstrap.
func (s *OutboxStore) Close() error { return nil }

// Pending lists undelivered envelopes oldest first, skipping any that already
// failed maxAttempts times.
func (s *OutboxStore) Pending(ctx context.Context, limit, maxAttempts int32) ([]Envelope, error) {
	rows, err := s.db.Query(ctx, pendingOutboxSQL, limit, maxAttempts)
	if err != nil {
		return nil, fmt.Errorf("events: query pending: %w", err)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (Envelope, error) {
		var (
			doc []byte
			env Envelope
		)
		if err := row.Scan(&doc); err != nil {
			return env, fmt.Errorf("events: scan outbox row: %w", err)
		}
		if err := json.Unmarshal(doc, &env); err != nil {
			return env, fmt.Errorf("events: decode outbox envelope: %w", err)
		}
		return env, nil
	})
}

// MarkDelivered reports whether this call was the one that marked id.
func (s *OutboxStore) MarkDelivered(ctx context.Context, id uuid.UUID) (bool, error) {
	tag, err := s.db.Exec(ctx, deliveredOutboxSQL, id)
	if err != nil {
		return false, fmt.Errorf("events: mark delivered: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// RecordFailure bumps the attempt counter for id and keeps the last error.
func (s *OutboxStore) RecordFailure(ctx context.Context, id uuid.UUID, cause error) error {
	msg := truncateUTF8(Redact(cause.Error()), maxErrorText)
	if _, err := s.db.Exec(ctx, failedOutboxSQL, id, msg); err != nil {
		return fmt.Errorf("events: record failure: %w", err)
	}
	return nil
}

// truncateUTF8 cuts s to at most n bytes without splitting a rune.
func truncateUTF8(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

// RelayOption tunes a Relay.
type RelayOption func(*Relay)

// RelayBatchSize caps how many envelopes one pass forwards.
func RelayBatchSize(n int32) RelayOption {
	return func(r *Relay) {
		if n > 0 {
			r.batch = n
		}
	}
}

// RelayInterval sets the pause between passes.
func RelayInterval(d time.Duration) RelayOption {
	return func(r *Relay) {
		if d > 0 {
			r.every = d
		}
	}
}

// RelayMaxAttempts sets how often an envelope is retried before it is parked.
func RelayMaxAttempts(n int32) RelayOption {
	return func(r *Relay) {
		if n > 0 {
			r.maxAttempts = n
		}
	}
}

// Relay forwards outbox envelopes to the downstream publisher.
type Relay struct {
	store       *OutboxStore
	target      Publisher
	logger      *logging.Logger
	batch       int32
	every       time.Duration
	maxAttempts int32
}

func NewRelay(store *OutboxStore, target Publisher, logger *logging.Logger, opts ...RelayOption) *Relay {
	if logger == nil {
		logger = logging.Default()
	}
	r := &Relay{
		store:       store,
		target:      target,
		logger:      logger.Component("outbox"),
		batch:       25,
		every:       2 * time.Second,
		maxAttempts: 10,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Close closes the downstream publisher.
func (r *Relay) Close() error {
	if r.target == nil {
		return nil
	}
	return r.target.Close()
}

// Run drains the outbox on every tick until ctx ends.
func (r *Relay) Run(ctx context.Context) {
	if r.store == nil || r.target == nil {
		return
	}
	tick := time.NewTicker(r.every)
	defer tick.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-tick.C:
			if n := r.Drain(ctx); n > 0 {
				r.logger.Debug("outbox pass", "delivered", n)
			}
		}
	}
}

// Drain forwards one batch and returns how many envelopes it delivered.
// Failures stay pending with their attempt count raised.
func (r *Relay) Drain(ctx context.Context) int {
	batch, err := r.store.Pending(ctx, r.batch, r.maxAttempts)
	if err != nil {
		r.logger.Error("outbox fetch failed", "error", err)
		return 0
	}

	var delivered int
	for _, env := range batch {
		if r.forward(ctx, env) {
			delivered++
		}
	}
	return delivered
}

func (r *Relay) forward(ctx context.Context, env Envelope) bool {
	log := r.logger.With("event_id", env.EventID, "type", env.EventType)

	if err := r.target.Publish(ctx, env); err != nil {
		log.Warn("outbox delivery failed", "error", err)
		if rerr := r.store.RecordFailure(ctx, env.EventID, err); rerr != nil {
			log.Error("outbox failure not recorded", "error", rerr)
		}
		return false
	}

	marked, err := r.store.MarkDelivered(ctx, env.EventID)
	if err != nil {
		log.Error("outbox delivery not recorded", "error", err)
		return false
	}
	return marked
}
