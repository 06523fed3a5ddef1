package events

import "time"

const (
	TypeRulesReplaced = "triage.rules.replaced.v1"
	TypeTurnCompleted = "triage.turn.completed.v1"
	TypeTurnFailed    = "triage.turn.failed.v1"
)

type RulesReplacedV1 struct {
	RuleCount  int       `json:"rule_count"`
	Backend    string    `json:"backend"`
	Assignees  []string  `json:"assignees"`
	ReplacedAt time.Time `json:"replaced_at"`
}

func (RulesReplacedV1) EventType() string { return TypeRulesReplaced }

type TurnCompletedV1 struct {
	SessionKey   string    `json:"session_key"`
	MessageID    string    `json:"message_id"`
	Outcome      string    `json:"outcome"`
	Assignee     string    `json:"assignee,omitempty"`
	Verified     bool      `json:"verified"`
	RuleCount    int       `json:"rule_count"`
	InputTokens  int32     `json:"input_tokens,omitempty"`
	OutputTokens int32     `json:"output_tokens,omitempty"`
	CompletedAt  time.Time `json:"completed_at"`
}

func (TurnCompletedV1) EventType() string { return TypeTurnCompleted }

type TurnFailedV1 struct {
	SessionKey string    `json:"session_key"`
	Reason     string    `json:"reason"`
	FailedAt   time.Time `json:"failed_at"`
}

func (TurnFailedV1) EventType() string { return TypeTurnFailed }
