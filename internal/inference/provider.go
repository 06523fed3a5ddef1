package inference

import (
	"context"
	"fmt"
	"strings"

	"github.com/wolfman30/legal-triage/pkg/logging"
)

// Options selects and configures providers.
type Options struct {
	Provider         string
	FallbackProvider string
	// Model and FallbackModel override the default model of their provider.
	// BedrockModelID wins over either when that provider is bedrock.
	Model         string
	FallbackModel string

	OpenAIAPIKey    string
	OpenAIBaseURL   string
	AnthropicAPIKey string
	GeminiAPIKey    string
	BedrockModelID  string
	// Bedrock is required when either provider is "bedrock".
	Bedrock BedrockConverseAPI
}

// New builds the configured provider chain. A provider that cannot be built
// is replaced by an UnavailableClient and reported as a warning so the
// server can start without credentials.
func New(ctx context.Context, opts Options, logger *logging.Logger) Client {
	if logger == nil {
		logger = logging.Default()
	}

	primary, err := build(ctx, opts.Provider, opts.Model, opts)
	if err != nil {
		logger.Warn("inference provider unavailable, chat requests will fail until configured",
			"provider", opts.Provider, "error", err)
		primary = UnavailableClient{Reason: err.Error()}
	}

	if strings.TrimSpace(opts.FallbackProvider) == "" {
		return primary
	}
	fallback, err := build(ctx, opts.FallbackProvider, opts.FallbackModel, opts)
	if err != nil {
		logger.Warn("fallback inference provider unavailable", "provider", opts.FallbackProvider, "error", err)
		return primary
	}
	return NewFallbackClient(primary, fallback, logger)
}

func build(ctx context.Context, provider, model string, opts Options) (Client, error) {
	model = strings.TrimSpace(model)
	switch strings.ToLower(strings.TrimSpace(provider)) {
	case "", "openai":
		return NewOpenAIClient(opts.OpenAIAPIKey, opts.OpenAIBaseURL, model)
	case "anthropic":
		return NewAnthropicClient(opts.AnthropicAPIKey, model)
	case "gemini":
		return NewGeminiClient(ctx, opts.GeminiAPIKey, model)
	case "bedrock":
		if opts.Bedrock == nil {
			return nil, fmt.Errorf("%w: bedrock runtime client not configured", ErrUnavailable)
		}
		if id := strings.TrimSpace(opts.BedrockModelID); id != "" {
			model = id
		}
		return NewBedrockClient(opts.Bedrock, model), nil
	default:
		return nil, fmt.Errorf("%w: unknown provider %q", ErrUnavailable, provider)
	}
}
