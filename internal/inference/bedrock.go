package inference

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	brtypes "github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
)

// BedrockConverseAPI is the subset of the Bedrock runtime client used here.
type BedrockConverseAPI interface {
	Converse(ctx context.Context, params *bedrockruntime.ConverseInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.ConverseOutput, error)
	ConverseStream(ctx context.Context, params *bedrockruntime.ConverseStreamInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.ConverseStreamOutput, error)
}

// bedrockEvents is the read side of a ConverseStream event stream.
type bedrockEvents interface {
	Events() <-chan brtypes.ConverseStreamOutput
	Close() error
	Err() error
}

type BedrockClient struct {
	api          BedrockConverseAPI
	defaultModel string
	// events unwraps the stream so tests can substitute one; the SDK keeps
	// the output's stream field unexported.
	events func(*bedrockruntime.ConverseStreamOutput) bedrockEvents
}

func NewBedrockClient(api BedrockConverseAPI, defaultModel string) *BedrockClient {
	if api == nil {
		panic("inference: bedrock converse client cannot be nil")
	}
	return &BedrockClient{api: api, defaultModel: defaultModel, events: sdkEvents}
}

func sdkEvents(out *bedrockruntime.ConverseStreamOutput) bedrockEvents {
	if out == nil {
		return nil
	}
	if s := out.GetStream(); s != nil {
		return s
	}
	return nil
}

type bedrockParts struct {
	model     string
	system    []brtypes.SystemContentBlock
	messages  []brtypes.Message
	inference *brtypes.InferenceConfiguration
}

func (c *BedrockClient) parts(req Request) (bedrockParts, error) {
	model := strings.TrimSpace(c.defaultModel)
	if model == "" {
		return bedrockParts{}, errors.New("inference: bedrock model id is required")
	}

	extra, turns := conversation(req.Messages)
	systemBlocks := make([]brtypes.SystemContentBlock, 0, len(req.System)+len(extra))
	for _, block := range append(append([]string{}, req.System...), extra...) {
		if strings.TrimSpace(block) == "" {
			continue
		}
		systemBlocks = append(systemBlocks, &brtypes.SystemContentBlockMemberText{Value: block})
	}
	if len(turns) == 0 {
		return bedrockParts{}, errors.New("inference: bedrock requires a user message")
	}

	// Converse rejects consecutive messages with the same role, so a merged
	// turn carries one content block per original message.
	messages := make([]brtypes.Message, 0, len(turns))
	for _, t := range turns {
		role := brtypes.ConversationRoleUser
		if t.role == RoleAssistant {
			role = brtypes.ConversationRoleAssistant
		}
		blocks := make([]brtypes.ContentBlock, 0, len(t.parts))
		for _, part := range t.parts {
			blocks = append(blocks, &brtypes.ContentBlockMemberText{Value: part})
		}
		messages = append(messages, brtypes.Message{Role: role, Content: blocks})
	}

	inference := &brtypes.InferenceConfiguration{}
	if req.MaxTokens > 0 {
		inference.MaxTokens = aws.Int32(req.MaxTokens)
	}
	if req.Temperature >= 0 {
		inference.Temperature = aws.Float32(req.Temperature)
	}
	if req.TopP != 0 {
		inference.TopP = aws.Float32(req.TopP)
	}
	if inference.MaxTokens == nil && inference.Temperature == nil && inference.TopP == nil {
		inference = nil
	}

	return bedrockParts{model: model, system: systemBlocks, messages: messages, inference: inference}, nil
}

func (c *BedrockClient) Complete(ctx context.Context, req Request) (Response, error) {
	p, err := c.parts(req)
	if err != nil {
		return Response{}, err
	}

	out, err := c.api.Converse(ctx, &bedrockruntime.ConverseInput{
		ModelId:         aws.String(p.model),
		System:          p.system,
		Messages:        p.messages,
		InferenceConfig: p.inference,
	})
	if err != nil {
		return Response{}, fmt.Errorf("inference: bedrock converse: %w", err)
	}

	text, err := bedrockExtractOutputText(out)
	if err != nil {
		return Response{}, err
	}

	resp := Response{Text: strings.TrimSpace(text)}
	if out.StopReason != "" {
		resp.StopReason = string(out.StopReason)
	}
	if out.Usage != nil {
		resp.Usage = TokenUsage{
			InputTokens:  int32OrZero(out.Usage.InputTokens),
			OutputTokens: int32OrZero(out.Usage.OutputTokens),
			TotalTokens:  int32OrZero(out.Usage.TotalTokens),
		}
	}
	return resp, nil
}

// CompleteStream uses ConverseStream and emits text deltas as they arrive.
func (c *BedrockClient) CompleteStream(ctx context.Context, req Request) (<-chan StreamChunk, error) {
	p, err := c.parts(req)
	if err != nil {
		return nil, err
	}

	out, err := c.api.ConverseStream(ctx, &bedrockruntime.ConverseStreamInput{
		ModelId:         aws.String(p.model),
		System:          p.system,
		Messages:        p.messages,
		InferenceConfig: p.inference,
	})
	if err != nil {
		return nil, fmt.Errorf("inference: bedrock converse stream: %w", err)
	}

	chunks := make(chan StreamChunk, 32)

	go func() {
		defer close(chunks)

		stream := c.events(out)
		if stream == nil {
			send(ctx, chunks, StreamChunk{Error: errors.New("inference: bedrock stream is nil"), Done: true})
			return
		}
		defer stream.Close()

		var usage TokenUsage
		events := stream.Events()
	read:
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-events:
				if !ok {
					break read
				}
				switch v := event.(type) {
				case *brtypes.ConverseStreamOutputMemberContentBlockDelta:
					if delta, ok := v.Value.Delta.(*brtypes.ContentBlockDeltaMemberText); ok && delta.Value != "" {
						if !send(ctx, chunks, StreamChunk{Text: delta.Value}) {
							return
						}
					}
				case *brtypes.ConverseStreamOutputMemberMetadata:
					if v.Value.Usage != nil {
						usage = TokenUsage{
							InputTokens:  int32OrZero(v.Value.Usage.InputTokens),
							OutputTokens: int32OrZero(v.Value.Usage.OutputTokens),
							TotalTokens:  int32OrZero(v.Value.Usage.TotalTokens),
						}
					}
				}
			}
		}

		if err := stream.Err(); err != nil {
			send(ctx, chunks, StreamChunk{Error: fmt.Errorf("inference: bedrock stream: %w", err), Done: true})
			return
		}
		send(ctx, chunks, StreamChunk{Done: true, Usage: usage})
	}()

	return chunks, nil
}

func bedrockExtractOutputText(out *bedrockruntime.ConverseOutput) (string, error) {
	if out == nil {
		return "", errors.New("inference: bedrock response is nil")
	}
	msgOut, ok := out.Output.(*brtypes.ConverseOutputMemberMessage)
	if !ok {
		return "", errors.New("inference: bedrock response did not include a message output")
	}

	var builder strings.Builder
	for _, block := range msgOut.Value.Content {
		if textBlock, ok := block.(*brtypes.ContentBlockMemberText); ok {
			builder.WriteString(textBlock.Value)
		}
	}
	outText := builder.String()
	if strings.TrimSpace(outText) == "" {
		return "", errors.New("inference: bedrock response contained no text")
	}
	return outText, nil
}

func int32OrZero(v *int32) int32 {
	if v == nil {
		return 0
	}
	return *v
}
