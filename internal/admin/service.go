package admin

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/wolfman30/legal-triage/internal/events"
	"github.com/wolfman30/legal-triage/internal/observability/metrics"
	"github.com/wolfman30/legal-triage/internal/rules"
	"github.com/wolfman30/legal-triage/pkg/logging"
)

// ErrRuleIndex is returned by DeleteRule for an out-of-range index.
var ErrRuleIndex = errors.New("admin: rule index out of range")

// Service is the administrative surface over the rule store. It is the only
// path by which a rule set reaches persistence from the outside.
type Service struct {
	store     *rules.Store
	slots     []string
	metrics   *metrics.TriageMetrics
	publisher events.Publisher
	logger    *logging.Logger
	now       func() time.Time
}

// Option configures the service.
type Option func(*Service)

// WithSlots sets the recognized slot names. Nil keeps rules.DefaultSlots.
func WithSlots(slots []string) Option {
	return func(s *Service) { s.slots = slots }
}

func WithMetrics(m *metrics.TriageMetrics) Option {
	return func(s *Service) { s.metrics = m }
}

func WithPublisher(p events.Publisher) Option {
	return func(s *Service) { s.publisher = p }
}

// NewService creates the admin service.
func NewService(store *rules.Store, logger *logging.Logger, opts ...Option) *Service {
	if store == nil {
		panic("admin: rule store required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	s := &Service{store: store, logger: logger, now: time.Now}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// Slots returns the recognized slot names.
func (s *Service) Slots() []string {
	if len(s.slots) == 0 {
		return rules.DefaultSlots
	}
	return s.slots
}

// ListRules returns the current rule set.
func (s *Service) ListRules(ctx context.Context) rules.RuleSet {
	return s.store.Load(ctx)
}

// ReplaceRules validates rs and persists it as the whole new rule set. A
// rejected set returns *rules.ValidationError and never reaches the store.
func (s *Service) ReplaceRules(ctx context.Context, rs rules.RuleSet) error {
	if rs == nil {
		rs = rules.RuleSet{}
	}
	if err := rules.Validate(rs, s.Slots()); err != nil {
		s.metrics.ObserveRuleRejection()
		s.logger.Info("rejected rule set", "rules", len(rs), "error", err)
		return err
	}

	err := s.store.Save(ctx, rs)
	s.metrics.ObserveRuleSave(s.store.Backend(), err)
	if err != nil {
		s.logger.Error("failed to save rules", "backend", s.store.Backend(), "error", err)
		return err
	}
	s.logger.Info("rules replaced", "rules", len(rs), "backend", s.store.Backend())

	_ = events.Emit(ctx, s.publisher, s.logger, "rules", "", events.RulesReplacedV1{
		RuleCount:  len(rs),
		Backend:    s.store.Backend(),
		Assignees:  assignees(rs),
		ReplacedAt: s.now().UTC(),
	})
	return nil
}

// DeleteRule removes the rule at index and saves the remaining set.
func (s *Service) DeleteRule(ctx context.Context, index int) (rules.RuleSet, error) {
	current := s.store.Load(ctx)
	if index < 0 || index >= len(current) {
		return nil, ErrRuleIndex
	}
	next := make(rules.RuleSet, 0, len(current)-1)
	next = append(next, current[:index]...)
	next = append(next, current[index+1:]...)
	if err := s.ReplaceRules(ctx, next); err != nil {
		return nil, err
	}
	return next, nil
}

// MatchRules runs deterministic first-match routing against the current set.
// ok is false when no rule can apply.
func (s *Service) MatchRules(ctx context.Context, slots map[string]string) (rules.MatchResult, bool) {
	res := s.store.Load(ctx).Match(slots)
	return res, res.Status != rules.MatchNone
}

func assignees(rs rules.RuleSet) []string {
	seen := make(map[string]struct{}, len(rs))
	out := make([]string, 0, len(rs))
	for _, r := range rs {
		a := strings.TrimSpace(r.Assignee)
		key := strings.ToLower(a)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, a)
	}
	sort.Strings(out)
	return out
}
