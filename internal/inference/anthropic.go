package inference

import (
	"context"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

const (
	defaultAnthropicModel     = "claude-haiku-4-5-20251001"
	defaultAnthropicMaxTokens = 1024
)

// AnthropicClient implements StreamClient on the Messages API.
type AnthropicClient struct {
	client *anthropic.Client
	model  string
}

func NewAnthropicClient(apiKey, model string, opts ...option.RequestOption) (*AnthropicClient, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, fmt.Errorf("%w: anthropic api key is required", ErrUnavailable)
	}
	if strings.TrimSpace(model) == "" {
		model = defaultAnthropicModel
	}
	reqOpts := append([]option.RequestOption{option.WithAPIKey(apiKey)}, opts...)
	client := anthropic.NewClient(reqOpts...)
	return &AnthropicClient{client: &client, model: model}, nil
}

func (c *AnthropicClient) params(req Request) anthropic.MessageNewParams {
	maxTokens := int64(req.MaxTokens)
	if maxTokens <= 0 {
		maxTokens = defaultAnthropicMaxTokens
	}

	extra, turns := conversation(req.Messages)
	system := strings.TrimSpace(strings.Join(append([]string{systemText(req)}, extra...), "\n\n"))
	messages := make([]anthropic.MessageParam, 0, len(turns))
	for _, t := range turns {
		blocks := make([]anthropic.ContentBlockParamUnion, 0, len(t.parts))
		for _, part := range t.parts {
			blocks = append(blocks, anthropic.NewTextBlock(part))
		}
		if t.role == RoleAssistant {
			messages = append(messages, anthropic.NewAssistantMessage(blocks...))
		} else {
			messages = append(messages, anthropic.NewUserMessage(blocks...))
		}
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(c.model),
		MaxTokens: maxTokens,
		Messages:  messages,
	}
	if system != "" {
		params.System = []anthropic.TextBlockParam{{Text: system}}
	}
	if req.Temperature >= 0 {
		params.Temperature = anthropic.Float(float64(req.Temperature))
	}
	if req.TopP > 0 {
		params.TopP = anthropic.Float(float64(req.TopP))
	}
	return params
}

func (c *AnthropicClient) Complete(ctx context.Context, req Request) (Response, error) {
	msg, err := c.client.Messages.New(ctx, c.params(req))
	if err != nil {
		return Response{}, fmt.Errorf("inference: anthropic completion failed: %w", err)
	}

	var sb strings.Builder
	for _, block := range msg.Content {
		if b, ok := block.AsAny().(anthropic.TextBlock); ok {
			sb.WriteString(b.Text)
		}
	}
	text := strings.TrimSpace(sb.String())
	if text == "" {
		return Response{}, fmt.Errorf("inference: anthropic returned empty content")
	}
	return Response{
		Text:       text,
		StopReason: string(msg.StopReason),
		Usage: TokenUsage{
			InputTokens:  int32(msg.Usage.InputTokens),
			OutputTokens: int32(msg.Usage.OutputTokens),
			TotalTokens:  int32(msg.Usage.InputTokens + msg.Usage.OutputTokens),
		},
	}, nil
}

func (c *AnthropicClient) CompleteStream(ctx context.Context, req Request) (<-chan StreamChunk, error) {
	stream := c.client.Messages.NewStreaming(ctx, c.params(req))
	chunks := make(chan StreamChunk, 32)

	go func() {
		defer close(chunks)
		defer stream.Close()

		var usage TokenUsage
		for stream.Next() {
			event := stream.Current()
			switch ev := event.AsAny().(type) {
			case anthropic.MessageStartEvent:
				usage.InputTokens = int32(ev.Message.Usage.InputTokens)
			case anthropic.MessageDeltaEvent:
				usage.OutputTokens = int32(ev.Usage.OutputTokens)
			case anthropic.ContentBlockDeltaEvent:
				if delta, ok := ev.Delta.AsAny().(anthropic.TextDelta); ok && delta.Text != "" {
					if !send(ctx, chunks, StreamChunk{Text: delta.Text}) {
						return
					}
				}
			}
		}
		if err := stream.Err(); err != nil {
			send(ctx, chunks, StreamChunk{Error: fmt.Errorf("inference: anthropic stream: %w", err), Done: true})
			return
		}
		usage.TotalTokens = usage.InputTokens + usage.OutputTokens
		send(ctx, chunks, StreamChunk{Done: true, Usage: usage})
	}()

	return chunks, nil
}
