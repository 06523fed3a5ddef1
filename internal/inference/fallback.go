package inference

import (
	"context"

	"github.com/wolfman30/legal-triage/pkg/logging"
)

// FallbackClient wraps a primary client with a fallback provider.
// If the primary fails, it retries with the fallback.
type FallbackClient struct {
	primary  Client
	fallback Client
	logger   *logging.Logger
}

// NewFallbackClient creates a fallback-enabled client. A nil fallback means
// only the primary is used.
func NewFallbackClient(primary, fallback Client, logger *logging.Logger) *FallbackClient {
	if logger == nil {
		logger = logging.Default()
	}
	return &FallbackClient{
		primary:  primary,
		fallback: fallback,
		logger:   logger,
	}
}

func (c *FallbackClient) Complete(ctx context.Context, req Request) (Response, error) {
	resp, err := c.primary.Complete(ctx, req)
	if err == nil {
		return resp, nil
	}

	c.logger.Warn("primary LLM failed, attempting fallback",
		"error", err.Error(),
		"fallback_available", c.fallback != nil,
	)
	if c.fallback == nil || ctx.Err() != nil {
		return Response{}, err
	}

	fallbackResp, fallbackErr := c.fallback.Complete(ctx, req)
	if fallbackErr != nil {
		c.logger.Error("fallback LLM also failed",
			"primary_error", err.Error(),
			"fallback_error", fallbackErr.Error(),
		)
		return Response{}, fallbackErr
	}

	c.logger.Info("fallback LLM succeeded after primary failure")
	return fallbackResp, nil
}

// CompleteStream streams from the primary. The fallback is only tried when
// the primary cannot open a stream; once chunks have been delivered a
// failure is passed through unchanged.
func (c *FallbackClient) CompleteStream(ctx context.Context, req Request) (<-chan StreamChunk, error) {
	ch, err := Stream(ctx, c.primary, req)
	if err == nil {
		return ch, nil
	}

	c.logger.Warn("primary LLM stream failed, attempting fallback",
		"error", err.Error(),
		"fallback_available", c.fallback != nil,
	)
	if c.fallback == nil || ctx.Err() != nil {
		return nil, err
	}
	return Stream(ctx, c.fallback, req)
}

// Stream streams from client when it supports it, otherwise wraps a whole
// completion as a single chunk.
func Stream(ctx context.Context, client Client, req Request) (<-chan StreamChunk, error) {
	if sc, ok := client.(StreamClient); ok {
		return sc.CompleteStream(ctx, req)
	}

	resp, err := client.Complete(ctx, req)
	if err != nil {
		return nil, err
	}
	ch := make(chan StreamChunk, 2)
	ch <- StreamChunk{Text: resp.Text}
	ch <- StreamChunk{Done: true, Usage: resp.Usage}
	close(ch)
	return ch, nil
}
