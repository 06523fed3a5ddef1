package session

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
)

// Message is one entry in a conversation log. Role is usually user or
// assistant but any tag is carried through untouched.
type Message struct {
	ID      string `json:"id"`
	Role    string `json:"role"`
	Content string `json:"content"`
}

// NewMessage creates a message with a generated ID.
func NewMessage(role, content string) Message {
	return Message{ID: uuid.NewString(), Role: role, Content: content}
}

// Encode serializes a log as one JSON array.
func Encode(msgs []Message) ([]byte, error) {
	if msgs == nil {
		msgs = []Message{}
	}
	data, err := json.Marshal(msgs)
	if err != nil {
		return nil, fmt.Errorf("session: encode log: %w", err)
	}
	return data, nil
}

// Decode parses a persisted log. Blank input and null decode to an empty log.
func Decode(data []byte) ([]Message, error) {
	trimmed := strings.TrimSpace(string(data))
	if trimmed == "" || trimmed == "null" {
		return []Message{}, nil
	}
	var msgs []Message
	if err := json.Unmarshal([]byte(trimmed), &msgs); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrHydration, err)
	}
	if msgs == nil {
		msgs = []Message{}
	}
	return msgs, nil
}
