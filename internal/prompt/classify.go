package prompt

import (
	"strings"
)

type OutcomeKind string

const (
	OutcomeRouted     OutcomeKind = "routed"
	OutcomeFallback   OutcomeKind = "fallback"
	OutcomeClarifying OutcomeKind = "clarifying"
)

// Outcome describes what a model reply did.
type Outcome struct {
	Kind     OutcomeKind
	Assignee string
}

// Classify inspects a reply for the routing line or the fallback message.
// Anything else is treated as a clarifying question.
func (b Builder) Classify(reply string) Outcome {
	normalized := normalizeQuotes(reply)
	lower := strings.ToLower(normalized)

	prefix := strings.ToLower(RoutingPrefix)
	if idx := strings.Index(lower, prefix); idx >= 0 {
		source := normalized
		if len(lower) != len(normalized) {
			source = lower
		}
		rest := strings.TrimSpace(source[idx+len(prefix):])
		if fields := strings.Fields(rest); len(fields) > 0 {
			assignee := strings.Trim(fields[0], "\"'`*<>()[].,;:!?")
			if assignee != "" {
				return Outcome{Kind: OutcomeRouted, Assignee: assignee}
			}
		}
	}

	fallback := strings.ToLower(normalizeQuotes(b.Fallback()))
	if strings.Contains(lower, strings.TrimSuffix(fallback, ".")) {
		return Outcome{Kind: OutcomeFallback}
	}
	if strings.Contains(lower, "cannot find a matching rule") && strings.Contains(lower, strings.ToLower(b.contact())) {
		return Outcome{Kind: OutcomeFallback}
	}
	return Outcome{Kind: OutcomeClarifying}
}

var quoteReplacer = strings.NewReplacer(
	"‘", "'", "’", "'",
	"“", "\"", "”", "\"",
)

func normalizeQuotes(s string) string {
	return quoteReplacer.Replace(s)
}
