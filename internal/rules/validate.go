package rules

import (
	"fmt"
	"sort"
	"strings"
)

// Validate checks a rule set before it crosses the administration boundary.
// Every rule must be complete and may only condition on recognized slots.
// A nil or empty recognized list falls back to DefaultSlots.
func Validate(rs RuleSet, recognized []string) error {
	if len(recognized) == 0 {
		recognized = DefaultSlots
	}
	allowed := make(map[string]struct{}, len(recognized))
	for _, slot := range recognized {
		allowed[slot] = struct{}{}
	}

	var problems []Problem
	for i, rule := range rs {
		if !rule.Complete() {
			problems = append(problems, Problem{Index: i, Reason: "assignee is required"})
		}
		for _, slot := range sortedKeys(rule.Conditions) {
			if strings.TrimSpace(slot) == "" {
				problems = append(problems, Problem{Index: i, Reason: "condition slot name is empty"})
				continue
			}
			if _, ok := allowed[slot]; !ok {
				problems = append(problems, Problem{Index: i, Reason: fmt.Sprintf("unknown slot %q", slot)})
			}
		}
	}
	if len(problems) > 0 {
		return &ValidationError{Problems: problems}
	}
	return nil
}

func sortedKeys(c Conditions) []string {
	keys := make([]string, 0, len(c))
	for k := range c {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
