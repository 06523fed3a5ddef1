package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration
type Config struct {
	Port               string
	Env                string
	LogLevel           string
	LogFormat          string
	CORSAllowedOrigins []string

	// Rule store
	RuleStore     string
	RulesPath     string
	RulesRedisKey string
	RulesS3Bucket string
	RulesS3Key    string
	DatabaseURL   string

	// Redis (rule store and server-held sessions)
	RedisAddr     string
	RedisPassword string
	RedisTLS      bool

	// Server-held chat sessions
	SessionStore string
	SessionDir   string
	SessionTTL   time.Duration

	// Triage prompt
	OrgName         string
	FallbackContact string
	FallbackMessage string
	Slots           []string

	// Inference
	LLMProvider         string
	LLMFallbackProvider string
	LLMModel            string
	LLMFallbackModel    string
	LLMMaxTokens        int
	LLMTemperature      float64
	LLMTimeout          time.Duration
	OpenAIAPIKey        string
	OpenAIBaseURL       string
	AnthropicAPIKey     string
	GeminiAPIKey        string
	BedrockModelID      string

	// AWS
	AWSRegion           string
	AWSAccessKeyID      string
	AWSSecretAccessKey  string
	AWSEndpointOverride string

	// HTTP protection
	AdminJWTSecret     string
	ChatRateLimitRPS   float64
	ChatRateLimitBurst int

	// Events
	EventsAMQPURL  string
	EventsExchange string
	// EventsOutbox routes events through the Postgres outbox before AMQP.
	EventsOutbox bool

	// Handoff email
	HandoffEmailEnabled bool
	EmailProvider       string
	SendGridAPIKey      string
	EmailFrom           string
	EmailFromName       string
}

// Load reads configuration from environment variables. A .env file in the
// working directory is applied first when present.
func Load() *Config {
	_ = godotenv.Load()

	return &Config{
		Port:               getEnv("PORT", "5000"),
		Env:                getEnv("ENV", "development"),
		LogLevel:           getEnv("LOG_LEVEL", "info"),
		LogFormat:          getEnv("LOG_FORMAT", "json"),
		CORSAllowedOrigins: getEnvAsList("CORS_ALLOWED_ORIGINS", []string{"*"}),

		RuleStore:     strings.ToLower(strings.TrimSpace(getEnv("RULE_STORE", "file"))),
		RulesPath:     getEnv("RULES_PATH", "data/rules.json"),
		RulesRedisKey: getEnv("RULES_REDIS_KEY", "triage:rules"),
		RulesS3Bucket: getEnv("RULES_S3_BUCKET", ""),
		RulesS3Key:    getEnv("RULES_S3_KEY", "triage/rules.json"),
		DatabaseURL:   getEnv("DATABASE_URL", ""),

		RedisAddr:     getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisTLS:      getEnvAsBool("REDIS_TLS", false),

		SessionStore: strings.ToLower(strings.TrimSpace(getEnv("SESSION_STORE", "memory"))),
		SessionDir:   getEnv("SESSION_DIR", "data/sessions"),
		SessionTTL:   getEnvAsDuration("SESSION_TTL", 0),

		OrgName:         getEnv("TRIAGE_ORG_NAME", "Acme Corp"),
		FallbackContact: getEnv("TRIAGE_FALLBACK_CONTACT", "legal@acme.corp"),
		FallbackMessage: getEnv("TRIAGE_FALLBACK_MESSAGE", ""),
		Slots:           getEnvAsList("TRIAGE_SLOTS", []string{"type", "location", "department"}),

		LLMProvider:         strings.ToLower(strings.TrimSpace(getEnv("LLM_PROVIDER", "openai"))),
		LLMFallbackProvider: strings.ToLower(strings.TrimSpace(getEnv("LLM_FALLBACK_PROVIDER", ""))),
		LLMModel:            getEnv("LLM_MODEL", ""),
		LLMFallbackModel:    getEnv("LLM_FALLBACK_MODEL", ""),
		LLMMaxTokens:        getEnvAsInt("LLM_MAX_TOKENS", 512),
		LLMTemperature:      getEnvAsFloat("LLM_TEMPERATURE", 0.2),
		LLMTimeout:          getEnvAsDuration("LLM_TIMEOUT", 60*time.Second),
		OpenAIAPIKey:        getEnv("OPENAI_API_KEY", ""),
		OpenAIBaseURL:       getEnv("OPENAI_BASE_URL", ""),
		AnthropicAPIKey:     getEnv("ANTHROPIC_API_KEY", ""),
		GeminiAPIKey:        getEnv("GEMINI_API_KEY", ""),
		BedrockModelID:      getEnv("BEDROCK_MODEL_ID", ""),

		AWSRegion:           getEnv("AWS_REGION", "us-east-1"),
		AWSAccessKeyID:      getEnv("AWS_ACCESS_KEY_ID", ""),
		AWSSecretAccessKey:  getEnv("AWS_SECRET_ACCESS_KEY", ""),
		AWSEndpointOverride: getEnv("AWS_ENDPOINT_OVERRIDE", ""),

		AdminJWTSecret:     getEnv("ADMIN_JWT_SECRET", ""),
		ChatRateLimitRPS:   getEnvAsFloat("CHAT_RATE_LIMIT_RPS", 2),
		ChatRateLimitBurst: getEnvAsInt("CHAT_RATE_LIMIT_BURST", 10),

		EventsAMQPURL:  getEnv("EVENTS_AMQP_URL", ""),
		EventsExchange: getEnv("EVENTS_EXCHANGE", "legal.triage"),
		EventsOutbox:   getEnvAsBool("EVENTS_OUTBOX", false),

		HandoffEmailEnabled: getEnvAsBool("HANDOFF_EMAIL_ENABLED", false),
		EmailProvider:       strings.ToLower(strings.TrimSpace(getEnv("EMAIL_PROVIDER", "stub"))),
		SendGridAPIKey:      getEnv("SENDGRID_API_KEY", ""),
		EmailFrom:           getEnv("EMAIL_FROM", ""),
		EmailFromName:       getEnv("EMAIL_FROM_NAME", "Legal Triage"),
	}
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt retrieves an environment variable as an integer or returns a default value
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseFloat(valueStr, 64); err == nil {
		return value
	}
	return defaultValue
}

// getEnvAsBool retrieves an environment variable as a boolean or returns a default value
func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}

// getEnvAsList splits a comma-separated variable, dropping blank entries.
func getEnvAsList(key string, defaultValue []string) []string {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(valueStr, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}
