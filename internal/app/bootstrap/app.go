package bootstrap

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/wolfman30/legal-triage/internal/admin"
	"github.com/wolfman30/legal-triage/internal/api/router"
	appconfig "github.com/wolfman30/legal-triage/internal/config"
	"github.com/wolfman30/legal-triage/internal/events"
	"github.com/wolfman30/legal-triage/internal/http/handlers"
	httpmiddleware "github.com/wolfman30/legal-triage/internal/http/middleware"
	"github.com/wolfman30/legal-triage/internal/inference"
	"github.com/wolfman30/legal-triage/internal/notify"
	"github.com/wolfman30/legal-triage/internal/observability/metrics"
	"github.com/wolfman30/legal-triage/internal/prompt"
	"github.com/wolfman30/legal-triage/internal/routing"
	"github.com/wolfman30/legal-triage/internal/rules"
	"github.com/wolfman30/legal-triage/internal/session"
	"github.com/wolfman30/legal-triage/pkg/logging"
)

// App is the fully wired triage service.
type App struct {
	Store        *rules.Store
	Admin        *admin.Service
	Builder      prompt.Builder
	Orchestrator *routing.Orchestrator
	Sessions     *session.Manager
	Publisher    events.Publisher
	Handler      http.Handler

	relay   *events.Relay
	limiter *httpmiddleware.RateLimiter
	logger  *logging.Logger
}

// Option overrides a collaborator, mostly for tests and the CLI.
type Option func(*options)

type options struct {
	client   inference.Client
	registry *prometheus.Registry
}

// WithInferenceClient skips provider construction.
func WithInferenceClient(c inference.Client) Option {
	return func(o *options) { o.client = c }
}

// WithRegistry registers metrics on reg instead of a fresh registry.
func WithRegistry(reg *prometheus.Registry) Option {
	return func(o *options) { o.registry = reg }
}

// New wires every component from cfg and deps.
func New(ctx context.Context, cfg *appconfig.Config, deps Deps, logger *logging.Logger, opts ...Option) (*App, error) {
	if cfg == nil {
		return nil, errors.New("bootstrap: config is required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	if o.registry == nil {
		o.registry = prometheus.NewRegistry()
		o.registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	}
	m := metrics.NewTriageMetrics(o.registry)

	backend, err := BuildRuleBackend(cfg, deps)
	if err != nil {
		return nil, err
	}
	store := rules.NewStore(backend, logger)

	kv, err := BuildSessionKV(cfg, deps)
	if err != nil {
		return nil, err
	}
	sessions := session.NewManager(kv, "", logger)

	publisher, relay, err := BuildPublisher(cfg, deps, logger)
	if err != nil {
		return nil, err
	}

	sender, err := BuildEmailSender(cfg, deps, logger)
	if err != nil {
		_ = publisher.Close()
		return nil, err
	}

	client := o.client
	if client == nil {
		client = BuildInference(ctx, cfg, deps, logger)
	}

	builder := prompt.NewBuilder(cfg.OrgName, cfg.FallbackContact, cfg.FallbackMessage, cfg.Slots)
	orchOpts := []routing.Option{
		routing.WithSampling(int32(cfg.LLMMaxTokens), float32(cfg.LLMTemperature)),
		routing.WithTimeout(cfg.LLMTimeout),
		routing.WithMetrics(m),
		routing.WithPublisher(publisher),
	}
	if sender != nil {
		orchOpts = append(orchOpts, routing.WithHandoff(notify.NewHandoffNotifier(sender, cfg.OrgName, logger)))
	}
	orch := routing.New(store, builder, client, logger, orchOpts...)

	adminSvc := admin.NewService(store, logger,
		admin.WithSlots(cfg.Slots),
		admin.WithMetrics(m),
		admin.WithPublisher(publisher),
	)

	var limiter *httpmiddleware.RateLimiter
	if cfg.ChatRateLimitRPS > 0 {
		limiter = httpmiddleware.NewRateLimiter(cfg.ChatRateLimitRPS, cfg.ChatRateLimitBurst)
	}

	handler := router.New(&router.Config{
		Logger:             logger,
		ChatHandler:        handlers.NewChatHandler(orch, sessions, cfg.CORSAllowedOrigins, logger),
		ConfigureHandler:   handlers.NewConfigureHandler(adminSvc, builder, logger),
		MetricsHandler:     promhttp.HandlerFor(o.registry, promhttp.HandlerOpts{}),
		CORSAllowedOrigins: cfg.CORSAllowedOrigins,
		AdminAuthSecret:    cfg.AdminJWTSecret,
		ChatLimiter:        limiter,
		MaxBodyBytes:       httpmiddleware.DefaultMaxBodyBytes,
	})

	logger.Info("triage service wired",
		"rule_store", store.Backend(),
		"session_store", cfg.SessionStore,
		"llm_provider", cfg.LLMProvider,
		"handoff_email", sender != nil,
		"events_outbox", relay != nil,
	)

	return &App{
		Store:        store,
		Admin:        adminSvc,
		Builder:      builder,
		Orchestrator: orch,
		Sessions:     sessions,
		Publisher:    publisher,
		Handler:      handler,
		relay:        relay,
		limiter:      limiter,
		logger:       logger,
	}, nil
}

// RunBackground starts the outbox relay and rate limiter sweeps. They stop
// when ctx is done.
func (a *App) RunBackground(ctx context.Context) {
	if a.relay != nil {
		go a.relay.Run(ctx)
	}
	if a.limiter != nil {
		go a.limiter.Run(ctx)
	}
}

// Close releases the event publisher and, with the outbox enabled, the
// broker publisher behind the relay.
func (a *App) Close() error {
	var closers []func() error
	if a.Publisher != nil {
		closers = append(closers, a.Publisher.Close)
	}
	if a.relay != nil {
		closers = append(closers, a.relay.Close)
	}
	if len(closers) == 0 {
		return nil
	}
	done := make(chan error, 1)
	go func() {
		var errs []error
		for _, c := range closers {
			errs = append(errs, c())
		}
		done <- errors.Join(errs...)
	}()
	select {
	case err := <-done:
		return err
	case <-time.After(5 * time.Second):
		return errors.New("bootstrap: timed out closing event publisher")
	}
}
