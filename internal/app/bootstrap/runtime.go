package bootstrap

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	appconfig "github.com/wolfman30/legal-triage/internal/config"
	"github.com/wolfman30/legal-triage/internal/events"
	"github.com/wolfman30/legal-triage/internal/inference"
	"github.com/wolfman30/legal-triage/internal/notify"
	"github.com/wolfman30/legal-triage/internal/rules"
	"github.com/wolfman30/legal-triage/internal/session"
	"github.com/wolfman30/legal-triage/pkg/logging"
)

// Deps are the shared infrastructure clients. Any of them may be nil when the
// configuration does not need it.
type Deps struct {
	Redis *redis.Client
	Pool  *pgxpool.Pool
	AWS   *aws.Config
}

// NeedsRedis reports whether the rule store or session store uses Redis.
func NeedsRedis(cfg *appconfig.Config) bool {
	return cfg.RuleStore == "redis" || cfg.SessionStore == "redis"
}

// NeedsPostgres reports whether the rule store or the event outbox uses
// Postgres.
func NeedsPostgres(cfg *appconfig.Config) bool {
	return cfg.RuleStore == "postgres" || cfg.EventsOutbox
}

// BuildRedisClient returns a configured Redis client or nil when disabled.
// When verify is true, a ping is issued and failures return nil.
func BuildRedisClient(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger, verify bool) *redis.Client {
	if cfg == nil || strings.TrimSpace(cfg.RedisAddr) == "" {
		return nil
	}
	if logger == nil {
		logger = logging.Default()
	}

	redisOptions := &redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	}
	if cfg.RedisTLS {
		redisOptions.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	client := redis.NewClient(redisOptions)
	if !verify {
		return client
	}
	if err := client.Ping(ctx).Err(); err != nil {
		logger.Warn("redis not available", "addr", cfg.RedisAddr, "error", err)
		_ = client.Close()
		return nil
	}
	return client
}

// BuildPostgresPool connects to DATABASE_URL.
func BuildPostgresPool(ctx context.Context, cfg *appconfig.Config) (*pgxpool.Pool, error) {
	if strings.TrimSpace(cfg.DatabaseURL) == "" {
		return nil, errors.New("bootstrap: DATABASE_URL is required")
	}
	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("bootstrap: connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("bootstrap: ping postgres: %w", err)
	}
	return pool, nil
}

// BuildRuleBackend selects the rule persistence backend from RULE_STORE.
func BuildRuleBackend(cfg *appconfig.Config, deps Deps) (rules.Backend, error) {
	switch cfg.RuleStore {
	case "", "file":
		return rules.NewFileBackend(cfg.RulesPath), nil
	case "memory":
		return rules.NewMemoryBackend(nil), nil
	case "redis":
		if deps.Redis == nil {
			return nil, errors.New("bootstrap: RULE_STORE=redis needs a reachable REDIS_ADDR")
		}
		return rules.NewRedisBackend(deps.Redis, cfg.RulesRedisKey), nil
	case "postgres":
		if deps.Pool == nil {
			return nil, errors.New("bootstrap: RULE_STORE=postgres needs DATABASE_URL")
		}
		return rules.NewPostgresBackend(deps.Pool), nil
	case "s3":
		if deps.AWS == nil {
			return nil, errors.New("bootstrap: RULE_STORE=s3 needs AWS configuration")
		}
		if strings.TrimSpace(cfg.RulesS3Bucket) == "" {
			return nil, errors.New("bootstrap: RULE_STORE=s3 needs RULES_S3_BUCKET")
		}
		client := s3.NewFromConfig(*deps.AWS, func(o *s3.Options) {
			o.UsePathStyle = strings.TrimSpace(cfg.AWSEndpointOverride) != ""
		})
		return rules.NewS3Backend(client, cfg.RulesS3Bucket, cfg.RulesS3Key), nil
	default:
		return nil, fmt.Errorf("bootstrap: unknown RULE_STORE %q", cfg.RuleStore)
	}
}

// BuildSessionKV selects where server-held chat sessions live.
func BuildSessionKV(cfg *appconfig.Config, deps Deps) (session.KV, error) {
	switch cfg.SessionStore {
	case "", "memory":
		return session.NewMemoryKV(), nil
	case "file":
		return session.NewFileKV(cfg.SessionDir), nil
	case "redis":
		if deps.Redis == nil {
			return nil, errors.New("bootstrap: SESSION_STORE=redis needs a reachable REDIS_ADDR")
		}
		return session.NewRedisKV(deps.Redis, cfg.SessionTTL), nil
	default:
		return nil, fmt.Errorf("bootstrap: unknown SESSION_STORE %q", cfg.SessionStore)
	}
}

// BuildPublisher returns the event publisher and, when the outbox is enabled,
// the relay that drains it. Without EVENTS_AMQP_URL events are dropped.
func BuildPublisher(cfg *appconfig.Config, deps Deps, logger *logging.Logger) (events.Publisher, *events.Relay, error) {
	var downstream events.Publisher = events.NoopPublisher{}
	if url := strings.TrimSpace(cfg.EventsAMQPURL); url != "" {
		amqp, err := events.NewAMQPPublisher(url, cfg.EventsExchange, logger)
		if err != nil {
			return nil, nil, err
		}
		downstream = amqp
	}

	if !cfg.EventsOutbox {
		return downstream, nil, nil
	}
	if deps.Pool == nil {
		_ = downstream.Close()
		return nil, nil, errors.New("bootstrap: EVENTS_OUTBOX needs DATABASE_URL")
	}
	outbox := events.NewOutboxStore(deps.Pool)
	return outbox, events.NewRelay(outbox, downstream, logger), nil
}

// BuildEmailSender returns the handoff email sender, or nil when handoff
// emails are disabled.
func BuildEmailSender(cfg *appconfig.Config, deps Deps, logger *logging.Logger) (notify.EmailSender, error) {
	if !cfg.HandoffEmailEnabled {
		return nil, nil
	}
	switch cfg.EmailProvider {
	case "", "stub":
		return notify.NewStubEmailSender(logger), nil
	case "sendgrid":
		sender := notify.NewSendGridSender(cfg.SendGridAPIKey, notify.NewFrom(cfg.EmailFrom, cfg.EmailFromName), logger)
		if sender == nil {
			return nil, errors.New("bootstrap: EMAIL_PROVIDER=sendgrid needs SENDGRID_API_KEY")
		}
		return sender, nil
	case "ses":
		if deps.AWS == nil {
			return nil, errors.New("bootstrap: EMAIL_PROVIDER=ses needs AWS configuration")
		}
		return notify.NewSESSender(sesv2.NewFromConfig(*deps.AWS), notify.NewFrom(cfg.EmailFrom, cfg.EmailFromName), logger), nil
	default:
		return nil, fmt.Errorf("bootstrap: unknown EMAIL_PROVIDER %q", cfg.EmailProvider)
	}
}

// BuildInference builds the provider chain. Missing credentials never fail
// startup; chat turns fail until they are configured.
func BuildInference(ctx context.Context, cfg *appconfig.Config, deps Deps, logger *logging.Logger) inference.Client {
	opts := inference.Options{
		Provider:         cfg.LLMProvider,
		FallbackProvider: cfg.LLMFallbackProvider,
		Model:            cfg.LLMModel,
		FallbackModel:    cfg.LLMFallbackModel,
		OpenAIAPIKey:     cfg.OpenAIAPIKey,
		OpenAIBaseURL:    cfg.OpenAIBaseURL,
		AnthropicAPIKey:  cfg.AnthropicAPIKey,
		GeminiAPIKey:     cfg.GeminiAPIKey,
		BedrockModelID:   cfg.BedrockModelID,
	}
	if deps.AWS != nil {
		opts.Bedrock = bedrockruntime.NewFromConfig(*deps.AWS)
	}
	return inference.New(ctx, opts, logger)
}
