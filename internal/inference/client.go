package inference

import (
	"context"
	"errors"
	"strings"
)

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// ErrUnavailable is returned when no provider is configured or its
// credential is missing.
var ErrUnavailable = errors.New("inference: provider unavailable")

// Message is one transcript entry sent to a provider.
type Message struct {
	Role    string
	Content string
}

type TokenUsage struct {
	InputTokens  int32
	OutputTokens int32
	TotalTokens  int32
}

// Request is provider neutral; the model is bound to each client.
type Request struct {
	System   []string
	Messages []Message
	// MaxTokens of zero leaves the provider default.
	MaxTokens int32
	// Temperature below zero leaves the provider default.
	Temperature float32
	TopP        float32
}

type Response struct {
	Text       string
	Usage      TokenUsage
	StopReason string
}

// StreamChunk is one increment of a streamed completion. The final chunk has
// Done set and carries either Usage or Error.
type StreamChunk struct {
	Text  string
	Done  bool
	Usage TokenUsage
	Error error
}

// Client produces a whole completion.
type Client interface {
	Complete(ctx context.Context, req Request) (Response, error)
}

// StreamClient additionally delivers a completion incrementally.
type StreamClient interface {
	Client
	CompleteStream(ctx context.Context, req Request) (<-chan StreamChunk, error)
}

// send delivers chunk unless ctx is done first.
func send(ctx context.Context, ch chan<- StreamChunk, chunk StreamChunk) bool {
	select {
	case ch <- chunk:
		return true
	case <-ctx.Done():
		return false
	}
}

func systemText(req Request) string {
	parts := make([]string, 0, len(req.System))
	for _, block := range req.System {
		if strings.TrimSpace(block) != "" {
			parts = append(parts, block)
		}
	}
	return strings.Join(parts, "\n\n")
}

// turn is a run of consecutive same-role messages.
type turn struct {
	role  string
	parts []string
}

// conversation splits msgs into extra system text and turns that alternate
// user/assistant and start with a user turn. Blank messages are dropped,
// roles other than system and assistant count as user, and assistant
// messages before the first user message are skipped. A failed turn that is
// retried leaves two user messages in a row; they become one turn.
func conversation(msgs []Message) ([]string, []turn) {
	var (
		system []string
		turns  []turn
	)
	for _, msg := range msgs {
		content := strings.TrimSpace(msg.Content)
		if content == "" {
			continue
		}
		role := msg.Role
		switch role {
		case RoleSystem:
			system = append(system, content)
			continue
		case RoleAssistant:
			if len(turns) == 0 {
				continue
			}
		default:
			role = RoleUser
		}
		if n := len(turns); n > 0 && turns[n-1].role == role {
			turns[n-1].parts = append(turns[n-1].parts, content)
			continue
		}
		turns = append(turns, turn{role: role, parts: []string{content}})
	}
	return system, turns
}
