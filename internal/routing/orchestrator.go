package routing

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/wolfman30/legal-triage/internal/events"
	"github.com/wolfman30/legal-triage/internal/inference"
	"github.com/wolfman30/legal-triage/internal/notify"
	"github.com/wolfman30/legal-triage/internal/observability/metrics"
	"github.com/wolfman30/legal-triage/internal/prompt"
	"github.com/wolfman30/legal-triage/internal/rules"
	"github.com/wolfman30/legal-triage/internal/session"
	"github.com/wolfman30/legal-triage/pkg/logging"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

var (
	// ErrInference wraps every failure of the inference collaborator. The
	// user message stays in the session so the turn can be retried.
	ErrInference = errors.New("routing: inference failed")

	// ErrEmptyInput is returned for blank user input; nothing is appended.
	ErrEmptyInput = errors.New("routing: message is empty")
)

// HandoffNotifier is told about verified routing decisions.
type HandoffNotifier interface {
	NotifyHandoff(ctx context.Context, h notify.Handoff) error
}

// Orchestrator binds one session turn to the current rule snapshot and the
// inference collaborator.
type Orchestrator struct {
	store   *rules.Store
	builder prompt.Builder
	client  inference.Client
	logger  *logging.Logger
	tracer  trace.Tracer

	cfg orchestratorConfig
}

type orchestratorConfig struct {
	maxTokens   int32
	temperature float32
	timeout     time.Duration
	metrics     *metrics.TriageMetrics
	publisher   events.Publisher
	handoff     HandoffNotifier
	now         func() time.Time
}

// Option configures the orchestrator.
type Option func(*orchestratorConfig)

// WithSampling sets max tokens and temperature. A negative temperature keeps
// the provider default.
func WithSampling(maxTokens int32, temperature float32) Option {
	return func(cfg *orchestratorConfig) {
		cfg.maxTokens = maxTokens
		cfg.temperature = temperature
	}
}

// WithTimeout bounds each inference call.
func WithTimeout(d time.Duration) Option {
	return func(cfg *orchestratorConfig) {
		if d > 0 {
			cfg.timeout = d
		}
	}
}

func WithMetrics(m *metrics.TriageMetrics) Option {
	return func(cfg *orchestratorConfig) { cfg.metrics = m }
}

func WithPublisher(p events.Publisher) Option {
	return func(cfg *orchestratorConfig) { cfg.publisher = p }
}

func WithHandoff(h HandoffNotifier) Option {
	return func(cfg *orchestratorConfig) { cfg.handoff = h }
}

// New creates an orchestrator.
func New(store *rules.Store, builder prompt.Builder, client inference.Client, logger *logging.Logger, opts ...Option) *Orchestrator {
	if store == nil {
		panic("routing: rule store required")
	}
	if client == nil {
		client = inference.UnavailableClient{}
	}
	if logger == nil {
		logger = logging.Default()
	}
	cfg := orchestratorConfig{temperature: -1, now: time.Now}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	return &Orchestrator{
		store:   store,
		builder: builder,
		client:  client,
		logger:  logger,
		tracer:  otel.Tracer("legaltriage.internal.routing"),
		cfg:     cfg,
	}
}

// StreamFunc receives each chunk of a streamed reply. Returning an error
// aborts the turn.
type StreamFunc func(chunk string) error

type turnConfig struct {
	stream        StreamFunc
	userMessageID string
}

// TurnOption configures a single HandleTurn call.
type TurnOption func(*turnConfig)

// WithStream delivers the reply incrementally to fn.
func WithStream(fn StreamFunc) TurnOption {
	return func(cfg *turnConfig) { cfg.stream = fn }
}

// WithUserMessageID keeps a caller-generated ID for the user message.
func WithUserMessageID(id string) TurnOption {
	return func(cfg *turnConfig) { cfg.userMessageID = strings.TrimSpace(id) }
}

// HandleTurn appends userInput to sess, asks the collaborator for a reply
// built from the current rule set, appends the reply and returns it.
//
// On inference failure no assistant message is appended and the error wraps
// ErrInference. A concurrent turn on the same session fails with
// session.ErrTurnInProgress before anything is appended.
func (o *Orchestrator) HandleTurn(ctx context.Context, sess *session.Session, userInput string, opts ...TurnOption) (session.Message, error) {
	var tc turnConfig
	for _, opt := range opts {
		if opt != nil {
			opt(&tc)
		}
	}
	if strings.TrimSpace(userInput) == "" {
		return session.Message{}, ErrEmptyInput
	}

	release, err := sess.BeginTurn()
	if err != nil {
		o.cfg.metrics.ObserveConcurrentTurn()
		return session.Message{}, err
	}
	defer release()

	ctx, span := o.tracer.Start(ctx, "routing.handle_turn")
	defer span.End()
	span.SetAttributes(
		attribute.String("session.key", sess.Key()),
		attribute.Bool("turn.streamed", tc.stream != nil),
	)
	started := o.cfg.now()

	userMsg := session.NewMessage(session.RoleUser, userInput)
	if tc.userMessageID != "" {
		userMsg.ID = tc.userMessageID
	}
	if err := sess.Append(ctx, userMsg); err != nil {
		o.logger.Warn("failed to persist user message", "session", sess.Key(), "error", err)
	}

	rs := o.store.Load(ctx)
	req := o.request(rs, sess.Messages())
	span.SetAttributes(attribute.Int("rules.count", len(rs)))

	text, usage, err := o.infer(ctx, req, tc.stream)
	if err != nil {
		span.RecordError(err)
		o.cfg.metrics.ObserveTurn("failed", tc.stream != nil, o.cfg.now().Sub(started).Seconds())
		o.logger.Warn("chat turn failed", "session", sess.Key(), "error", err)
		_ = events.Emit(context.WithoutCancel(ctx), o.cfg.publisher, o.logger, "session:"+sess.Key(), userMsg.ID, events.TurnFailedV1{
			SessionKey: sess.Key(),
			Reason:     events.Redact(err.Error()),
			FailedAt:   o.cfg.now().UTC(),
		})
		return session.Message{}, fmt.Errorf("%w: %w", ErrInference, err)
	}

	reply := session.NewMessage(session.RoleAssistant, text)
	if err := sess.Append(ctx, reply); err != nil {
		o.logger.Warn("failed to persist assistant message", "session", sess.Key(), "error", err)
	}

	o.afterTurn(ctx, sess, rs, reply, usage, tc.stream != nil, started, span)
	return reply, nil
}

// request builds the inference request: instructions first, then the whole
// transcript in order. Only the rule prompt is sent as instructions; entries
// with any other role go to the model as labelled user context.
func (o *Orchestrator) request(rs rules.RuleSet, transcript []session.Message) inference.Request {
	msgs := make([]inference.Message, 0, len(transcript))
	for _, m := range transcript {
		switch m.Role {
		case session.RoleUser, session.RoleAssistant:
			msgs = append(msgs, inference.Message{Role: m.Role, Content: m.Content})
		default:
			msgs = append(msgs, inference.Message{Role: inference.RoleUser, Content: contextNote(m)})
		}
	}
	return inference.Request{
		System:      []string{o.builder.Build(rs)},
		Messages:    msgs,
		MaxTokens:   o.cfg.maxTokens,
		Temperature: o.cfg.temperature,
	}
}

func contextNote(m session.Message) string {
	label := strings.TrimSpace(m.Role)
	if label == "" {
		label = "note"
	}
	return "[" + label + "] " + m.Content
}

func (o *Orchestrator) infer(ctx context.Context, req inference.Request, stream StreamFunc) (string, inference.TokenUsage, error) {
	if o.cfg.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.cfg.timeout)
		defer cancel()
	}

	if stream == nil {
		resp, err := o.client.Complete(ctx, req)
		if err != nil {
			return "", inference.TokenUsage{}, err
		}
		if strings.TrimSpace(resp.Text) == "" {
			return "", resp.Usage, errors.New("routing: empty reply")
		}
		return resp.Text, resp.Usage, nil
	}

	// Cancelling on early return stops the producer goroutine.
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	chunks, err := inference.Stream(ctx, o.client, req)
	if err != nil {
		return "", inference.TokenUsage{}, err
	}

	var sb strings.Builder
	for {
		select {
		case <-ctx.Done():
			return "", inference.TokenUsage{}, ctx.Err()
		case chunk, ok := <-chunks:
			if !ok {
				if err := ctx.Err(); err != nil {
					return "", inference.TokenUsage{}, err
				}
				return "", inference.TokenUsage{}, errors.New("routing: stream ended without completion")
			}
			if chunk.Error != nil {
				return "", inference.TokenUsage{}, chunk.Error
			}
			if chunk.Text != "" {
				sb.WriteString(chunk.Text)
				if err := stream(chunk.Text); err != nil {
					return "", inference.TokenUsage{}, fmt.Errorf("routing: deliver chunk: %w", err)
				}
			}
			if chunk.Done {
				if strings.TrimSpace(sb.String()) == "" {
					return "", chunk.Usage, errors.New("routing: empty reply")
				}
				return sb.String(), chunk.Usage, nil
			}
		}
	}
}

// afterTurn runs best-effort side effects. None of them can fail the turn.
func (o *Orchestrator) afterTurn(ctx context.Context, sess *session.Session, rs rules.RuleSet, reply session.Message, usage inference.TokenUsage, streamed bool, started time.Time, span trace.Span) {
	outcome := o.builder.Classify(reply.Content)
	verified := outcome.Kind == prompt.OutcomeRouted && rs.HasAssignee(outcome.Assignee)
	span.SetAttributes(
		attribute.String("turn.outcome", string(outcome.Kind)),
		attribute.Bool("turn.verified", verified),
	)

	o.cfg.metrics.ObserveTurn(string(outcome.Kind), streamed, o.cfg.now().Sub(started).Seconds())
	o.cfg.metrics.ObserveTokens(usage.InputTokens, usage.OutputTokens)
	if outcome.Kind == prompt.OutcomeRouted && !verified {
		o.cfg.metrics.ObserveUnverifiedRoute()
		o.logger.Warn("model routed to an assignee not in the rule set", "session", sess.Key(), "assignee", outcome.Assignee)
	}

	// The request may already be finished when the reply was streamed.
	bg := context.WithoutCancel(ctx)
	_ = events.Emit(bg, o.cfg.publisher, o.logger, "session:"+sess.Key(), reply.ID, events.TurnCompletedV1{
		SessionKey:   sess.Key(),
		MessageID:    reply.ID,
		Outcome:      string(outcome.Kind),
		Assignee:     outcome.Assignee,
		Verified:     verified,
		RuleCount:    len(rs),
		InputTokens:  usage.InputTokens,
		OutputTokens: usage.OutputTokens,
		CompletedAt:  o.cfg.now().UTC(),
	})

	if verified && o.cfg.handoff != nil {
		if o.routedBefore(sess, reply.ID, outcome.Assignee) {
			o.logger.Debug("handoff already sent for this session", "session", sess.Key(), "assignee", outcome.Assignee)
			return
		}
		err := o.cfg.handoff.NotifyHandoff(bg, notify.Handoff{
			Assignee:   outcome.Assignee,
			SessionKey: sess.Key(),
			Transcript: sess.Messages(),
			RoutedAt:   o.cfg.now(),
		})
		if err != nil {
			o.logger.Warn("handoff notification failed", "session", sess.Key(), "assignee", outcome.Assignee, "error", err)
		}
	}
}

// routedBefore reports whether an earlier assistant message in sess already
// routed the user to assignee.
func (o *Orchestrator) routedBefore(sess *session.Session, replyID, assignee string) bool {
	for _, m := range sess.Messages() {
		if m.ID == replyID || m.Role != session.RoleAssistant {
			continue
		}
		prev := o.builder.Classify(m.Content)
		if prev.Kind == prompt.OutcomeRouted && strings.EqualFold(strings.TrimSpace(prev.Assignee), strings.TrimSpace(assignee)) {
			return true
		}
	}
	return false
}
