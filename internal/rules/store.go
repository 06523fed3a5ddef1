package rules

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/wolfman30/legal-triage/pkg/logging"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Backend persists one whole rule set. Write must replace the stored document
// atomically: a concurrent Read sees either the old or the new set.
type Backend interface {
	Read(ctx context.Context) (RuleSet, error)
	Write(ctx context.Context, rs RuleSet) error
	Name() string
}

// Store is the only owner of the rule set. Load never fails; Save replaces
// everything or nothing.
type Store struct {
	backend Backend
	logger  *logging.Logger
	tracer  trace.Tracer

	mu sync.RWMutex
}

// NewStore wraps a backend.
func NewStore(backend Backend, logger *logging.Logger) *Store {
	if backend == nil {
		panic("rules: backend cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Store{
		backend: backend,
		logger:  logger,
		tracer:  otel.Tracer("legaltriage.internal.rules"),
	}
}

// Backend returns the name of the underlying backend.
func (s *Store) Backend() string {
	return s.backend.Name()
}

// Load returns the last successfully saved rule set. Missing or unreadable
// storage yields an empty set so callers always have a usable snapshot.
func (s *Store) Load(ctx context.Context) RuleSet {
	ctx, span := s.tracer.Start(ctx, "rules.load")
	defer span.End()
	span.SetAttributes(attribute.String("rules.backend", s.backend.Name()))

	s.mu.RLock()
	rs, err := s.backend.Read(ctx)
	s.mu.RUnlock()

	switch {
	case err == nil:
	case errors.Is(err, ErrNotFound):
		s.logger.Debug("no persisted rules, using empty set", "backend", s.backend.Name())
		return RuleSet{}
	default:
		span.RecordError(err)
		s.logger.Warn("failed to load rules, using empty set", "backend", s.backend.Name(), "error", err)
		return RuleSet{}
	}

	span.SetAttributes(attribute.Int("rules.count", len(rs)))
	return rs.Clone()
}

// Save replaces the persisted rule set. On failure the previous set stays in
// place and the error wraps ErrPersistence.
func (s *Store) Save(ctx context.Context, rs RuleSet) error {
	ctx, span := s.tracer.Start(ctx, "rules.save")
	defer span.End()
	span.SetAttributes(
		attribute.String("rules.backend", s.backend.Name()),
		attribute.Int("rules.count", len(rs)),
	)

	snapshot := rs.Clone()

	s.mu.Lock()
	err := s.backend.Write(ctx, snapshot)
	s.mu.Unlock()

	if err != nil {
		span.RecordError(err)
		s.logger.Error("failed to save rules", "backend", s.backend.Name(), "error", err)
		return fmt.Errorf("%w: %s: %w", ErrPersistence, s.backend.Name(), err)
	}
	s.logger.Info("rules saved", "backend", s.backend.Name(), "count", len(snapshot))
	return nil
}
