package inference

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
)

// GeminiClient implements Client using Google's Gemini API.
type GeminiClient struct {
	client  *genai.Client
	modelID string
}

// NewGeminiClient creates a Gemini client.
func NewGeminiClient(ctx context.Context, apiKey, modelID string, opts ...option.ClientOption) (*GeminiClient, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, fmt.Errorf("%w: gemini api key is required", ErrUnavailable)
	}
	if strings.TrimSpace(modelID) == "" {
		modelID = "gemini-2.5-flash"
	}

	client, err := genai.NewClient(ctx, append([]option.ClientOption{option.WithAPIKey(apiKey)}, opts...)...)
	if err != nil {
		return nil, fmt.Errorf("inference: failed to create gemini client: %w", err)
	}
	return &GeminiClient{client: client, modelID: modelID}, nil
}

// chat prepares a chat session holding every turn but the last, whose parts
// are returned for sending. Gemini wants user and model turns to alternate,
// so consecutive messages with one role share a turn.
func (c *GeminiClient) chat(req Request) (*genai.ChatSession, []genai.Part, error) {
	model := c.client.GenerativeModel(c.modelID)
	configureGemini(model, req)

	extra, turns := conversation(req.Messages)
	if system := strings.TrimSpace(strings.Join(append([]string{systemText(req)}, extra...), "\n\n")); system != "" {
		model.SystemInstruction = genai.NewUserContent(genai.Text(system))
	}
	if len(turns) == 0 {
		return nil, nil, errors.New("inference: gemini requires at least one message")
	}
	last := turns[len(turns)-1]
	if last.role != RoleUser {
		return nil, nil, errors.New("inference: gemini conversation must end with a user message")
	}

	cs := model.StartChat()
	cs.History = geminiHistory(turns[:len(turns)-1])
	return cs, geminiParts(last), nil
}

func configureGemini(model *genai.GenerativeModel, req Request) {
	if req.Temperature >= 0 {
		model.SetTemperature(req.Temperature)
	}
	if req.TopP > 0 {
		model.SetTopP(req.TopP)
	}
	if req.MaxTokens > 0 {
		model.SetMaxOutputTokens(req.MaxTokens)
	}
}

func geminiHistory(turns []turn) []*genai.Content {
	history := make([]*genai.Content, 0, len(turns))
	for _, t := range turns {
		role := "user"
		if t.role == RoleAssistant {
			role = "model"
		}
		history = append(history, &genai.Content{Role: role, Parts: geminiParts(t)})
	}
	return history
}

func geminiParts(t turn) []genai.Part {
	parts := make([]genai.Part, 0, len(t.parts))
	for _, p := range t.parts {
		parts = append(parts, genai.Text(p))
	}
	return parts
}

func (c *GeminiClient) Complete(ctx context.Context, req Request) (Response, error) {
	cs, last, err := c.chat(req)
	if err != nil {
		return Response{}, err
	}

	resp, err := cs.SendMessage(ctx, last...)
	if err != nil {
		return Response{}, fmt.Errorf("inference: gemini completion failed: %w", err)
	}
	if len(resp.Candidates) == 0 {
		return Response{}, errors.New("inference: gemini returned no candidates")
	}

	candidate := resp.Candidates[0]
	text := geminiText(candidate)
	if strings.TrimSpace(text) == "" {
		return Response{}, errors.New("inference: gemini returned empty content")
	}

	result := Response{
		Text:       strings.TrimSpace(text),
		StopReason: candidate.FinishReason.String(),
	}
	if resp.UsageMetadata != nil {
		result.Usage = geminiUsage(resp.UsageMetadata)
	}
	return result, nil
}

func (c *GeminiClient) CompleteStream(ctx context.Context, req Request) (<-chan StreamChunk, error) {
	cs, last, err := c.chat(req)
	if err != nil {
		return nil, err
	}

	iter := cs.SendMessageStream(ctx, last...)
	chunks := make(chan StreamChunk, 32)

	go func() {
		defer close(chunks)

		var usage TokenUsage
		for {
			resp, err := iter.Next()
			if errors.Is(err, iterator.Done) {
				break
			}
			if err != nil {
				send(ctx, chunks, StreamChunk{Error: fmt.Errorf("inference: gemini stream: %w", err), Done: true})
				return
			}
			if resp.UsageMetadata != nil {
				usage = geminiUsage(resp.UsageMetadata)
			}
			if len(resp.Candidates) == 0 {
				continue
			}
			if text := geminiText(resp.Candidates[0]); text != "" {
				if !send(ctx, chunks, StreamChunk{Text: text}) {
					return
				}
			}
		}
		send(ctx, chunks, StreamChunk{Done: true, Usage: usage})
	}()

	return chunks, nil
}

// Close releases resources held by the Gemini client.
func (c *GeminiClient) Close() error {
	if c.client != nil {
		return c.client.Close()
	}
	return nil
}

func geminiText(candidate *genai.Candidate) string {
	if candidate == nil || candidate.Content == nil {
		return ""
	}
	var sb strings.Builder
	for _, part := range candidate.Content.Parts {
		if text, ok := part.(genai.Text); ok {
			sb.WriteString(string(text))
		}
	}
	return sb.String()
}

func geminiUsage(meta *genai.UsageMetadata) TokenUsage {
	return TokenUsage{
		InputTokens:  meta.PromptTokenCount,
		OutputTokens: meta.CandidatesTokenCount,
		TotalTokens:  meta.TotalTokenCount,
	}
}
