package inference

import (
	"context"
	"fmt"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/responses"
	"github.com/openai/openai-go/shared"
)

const defaultOpenAIModel = "gpt-4o-mini"

// OpenAIClient implements StreamClient on the OpenAI Responses API.
type OpenAIClient struct {
	client *openai.Client
	model  string
}

// NewOpenAIClient creates a client. baseURL may be empty.
func NewOpenAIClient(apiKey, baseURL, model string, opts ...option.RequestOption) (*OpenAIClient, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, fmt.Errorf("%w: openai api key is required", ErrUnavailable)
	}
	if strings.TrimSpace(model) == "" {
		model = defaultOpenAIModel
	}

	reqOpts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(baseURL))
	}
	reqOpts = append(reqOpts, opts...)

	client := openai.NewClient(reqOpts...)
	return &OpenAIClient{client: &client, model: model}, nil
}

func (c *OpenAIClient) params(req Request) responses.ResponseNewParams {
	input := make(responses.ResponseInputParam, 0, len(req.Messages)+1)
	if system := systemText(req); system != "" {
		input = append(input, responses.ResponseInputItemParamOfMessage(system, responses.EasyInputMessageRoleSystem))
	}
	for _, msg := range req.Messages {
		if strings.TrimSpace(msg.Content) == "" {
			continue
		}
		role := responses.EasyInputMessageRoleUser
		switch msg.Role {
		case RoleAssistant:
			role = responses.EasyInputMessageRoleAssistant
		case RoleSystem:
			role = responses.EasyInputMessageRoleSystem
		}
		input = append(input, responses.ResponseInputItemParamOfMessage(msg.Content, role))
	}

	params := responses.ResponseNewParams{
		Model: shared.ResponsesModel(c.model),
		Input: responses.ResponseNewParamsInputUnion{OfInputItemList: input},
	}
	if req.MaxTokens > 0 {
		params.MaxOutputTokens = openai.Int(int64(req.MaxTokens))
	}
	if req.Temperature >= 0 {
		params.Temperature = openai.Float(float64(req.Temperature))
	}
	if req.TopP > 0 {
		params.TopP = openai.Float(float64(req.TopP))
	}
	return params
}

func (c *OpenAIClient) Complete(ctx context.Context, req Request) (Response, error) {
	result, err := c.client.Responses.New(ctx, c.params(req))
	if err != nil {
		return Response{}, fmt.Errorf("inference: openai completion failed: %w", err)
	}

	text := strings.TrimSpace(result.OutputText())
	if text == "" {
		return Response{}, fmt.Errorf("inference: openai returned empty content")
	}
	resp := Response{
		Text:       text,
		Usage:      openAIUsage(*result),
		StopReason: string(result.Status),
	}
	if result.IncompleteDetails.Reason != "" {
		resp.StopReason = result.IncompleteDetails.Reason
	}
	return resp, nil
}

func (c *OpenAIClient) CompleteStream(ctx context.Context, req Request) (<-chan StreamChunk, error) {
	stream := c.client.Responses.NewStreaming(ctx, c.params(req))
	chunks := make(chan StreamChunk, 32)

	go func() {
		defer close(chunks)
		defer stream.Close()

		var usage TokenUsage
		for stream.Next() {
			event := stream.Current()
			switch ev := event.AsAny().(type) {
			case responses.ResponseTextDeltaEvent:
				if ev.Delta == "" {
					continue
				}
				if !send(ctx, chunks, StreamChunk{Text: ev.Delta}) {
					return
				}
			case responses.ResponseCompletedEvent:
				usage = openAIUsage(ev.Response)
			case responses.ResponseFailedEvent:
				send(ctx, chunks, StreamChunk{Error: fmt.Errorf("inference: openai response failed: %s", ev.Response.Error.Message), Done: true})
				return
			case responses.ResponseErrorEvent:
				send(ctx, chunks, StreamChunk{Error: fmt.Errorf("inference: openai stream: %s", ev.Message), Done: true})
				return
			}
		}
		if err := stream.Err(); err != nil {
			send(ctx, chunks, StreamChunk{Error: fmt.Errorf("inference: openai stream: %w", err), Done: true})
			return
		}
		send(ctx, chunks, StreamChunk{Done: true, Usage: usage})
	}()

	return chunks, nil
}

func openAIUsage(result responses.Response) TokenUsage {
	return TokenUsage{
		InputTokens:  int32(result.Usage.InputTokens),
		OutputTokens: int32(result.Usage.OutputTokens),
		TotalTokens:  int32(result.Usage.TotalTokens),
	}
}
