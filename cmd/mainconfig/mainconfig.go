package mainconfig

import (
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	appconfig "github.com/wolfman30/legal-triage/internal/config"
)

// LoadAWSConfig builds the shared SDK config used by the Bedrock, S3 and SES
// clients. Static keys win over the default chain when both halves are set,
// and AWS_ENDPOINT_OVERRIDE points every client at LocalStack.
func LoadAWSConfig(ctx context.Context, cfg *appconfig.Config) (aws.Config, error) {
	awsCfg, err := config.LoadDefaultConfig(ctx, awsLoadOptions(cfg)...)
	if err != nil {
		return aws.Config{}, fmt.Errorf("mainconfig: load aws config: %w", err)
	}
	if endpoint := strings.TrimSpace(cfg.AWSEndpointOverride); endpoint != "" {
		awsCfg.BaseEndpoint = aws.String(endpoint)
	}
	return awsCfg, nil
}

func awsLoadOptions(cfg *appconfig.Config) []func(*config.LoadOptions) error {
	opts := []func(*config.LoadOptions) error{config.WithRegion(cfg.AWSRegion)}

	keyID := strings.TrimSpace(cfg.AWSAccessKeyID)
	secret := strings.TrimSpace(cfg.AWSSecretAccessKey)
	if keyID == "" || secret == "" {
		return opts
	}
	provider := credentials.NewStaticCredentialsProvider(keyID, secret, "")
	return append(opts, config.WithCredentialsProvider(provider))
}

// NeedsAWS reports whether any configured component talks to AWS.
func NeedsAWS(cfg *appconfig.Config) bool {
	switch {
	case cfg.RuleStore == "s3":
		return true
	case cfg.LLMProvider == "bedrock", cfg.LLMFallbackProvider == "bedrock":
		return true
	case cfg.HandoffEmailEnabled && cfg.EmailProvider == "ses":
		return true
	}
	return false
}
