package rules

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNotFound is returned by a Backend when nothing has been persisted yet.
	ErrNotFound = errors.New("rules: no persisted rule set")

	// ErrCorrupt is returned by a Backend when the persisted document cannot be parsed.
	ErrCorrupt = errors.New("rules: persisted rule set is corrupt")

	// ErrPersistence wraps any failure to write a rule set.
	ErrPersistence = errors.New("rules: persistence failed")

	// ErrInvalidRule is wrapped by ValidationError.
	ErrInvalidRule = errors.New("rules: invalid rule")
)

// Problem describes why one rule was rejected.
type Problem struct {
	Index  int    `json:"index"`
	Reason string `json:"reason"`
}

// ValidationError lists every rule in a payload that cannot be persisted.
type ValidationError struct {
	Problems []Problem
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Problems))
	for _, p := range e.Problems {
		parts = append(parts, fmt.Sprintf("rule %d: %s", p.Index, p.Reason))
	}
	return "rules: invalid rule set: " + strings.Join(parts, "; ")
}

func (e *ValidationError) Unwrap() error {
	return ErrInvalidRule
}
