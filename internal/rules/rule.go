// Package rules holds the operator-defined triage rules and the durable store
// that keeps them.
package rules

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// Recognized slot names. The set is extensible through configuration.
const (
	SlotType       = "type"
	SlotLocation   = "location"
	SlotDepartment = "department"
)

// DefaultSlots is the recognized slot set when none is configured.
var DefaultSlots = []string{SlotType, SlotLocation, SlotDepartment}

// Conditions maps slot names to required values. An absent or blank value
// means the rule does not care about that slot.
type Conditions map[string]string

// Rule routes requests whose slot values satisfy Conditions to Assignee.
type Rule struct {
	Conditions Conditions `json:"conditions"`
	Assignee   string     `json:"assignee"`
}

// RuleSet is the ordered list of rules. Position decides ties: the first
// matching rule wins.
type RuleSet []Rule

// Complete reports whether the rule has an assignee and may be persisted.
func (r Rule) Complete() bool {
	return strings.TrimSpace(r.Assignee) != ""
}

// Value returns the trimmed condition for slot, or "" for a wildcard.
func (c Conditions) Value(slot string) string {
	if c == nil {
		return ""
	}
	return strings.TrimSpace(c[slot])
}

// Referenced returns the slots with a non-blank value, sorted.
func (c Conditions) Referenced() []string {
	out := make([]string, 0, len(c))
	for slot, value := range c {
		if strings.TrimSpace(value) != "" {
			out = append(out, slot)
		}
	}
	sort.Strings(out)
	return out
}

// Clone returns a deep copy so callers can never mutate the store's snapshot.
func (rs RuleSet) Clone() RuleSet {
	out := make(RuleSet, len(rs))
	for i, rule := range rs {
		conds := make(Conditions, len(rule.Conditions))
		for k, v := range rule.Conditions {
			conds[k] = v
		}
		out[i] = Rule{Conditions: conds, Assignee: rule.Assignee}
	}
	return out
}

// HasAssignee reports whether any rule routes to assignee (case-insensitive).
func (rs RuleSet) HasAssignee(assignee string) bool {
	assignee = strings.TrimSpace(assignee)
	if assignee == "" {
		return false
	}
	for _, rule := range rs {
		if strings.EqualFold(strings.TrimSpace(rule.Assignee), assignee) {
			return true
		}
	}
	return false
}

// ReferencedSlots lists every slot any rule conditions on. Slots from known
// come first in that order; any others follow alphabetically.
func (rs RuleSet) ReferencedSlots(known []string) []string {
	seen := make(map[string]struct{})
	for _, rule := range rs {
		for _, slot := range rule.Conditions.Referenced() {
			seen[slot] = struct{}{}
		}
	}

	out := make([]string, 0, len(seen))
	for _, slot := range known {
		if _, ok := seen[slot]; ok {
			out = append(out, slot)
			delete(seen, slot)
		}
	}
	extra := make([]string, 0, len(seen))
	for slot := range seen {
		extra = append(extra, slot)
	}
	sort.Strings(extra)
	return append(out, extra...)
}

// Encode renders the rule set as the persisted JSON document: an indented
// array, HTML characters left unescaped so values survive verbatim.
func Encode(rs RuleSet) ([]byte, error) {
	if rs == nil {
		rs = RuleSet{}
	}
	normalized := make(RuleSet, len(rs))
	for i, rule := range rs {
		if rule.Conditions == nil {
			rule.Conditions = Conditions{}
		}
		normalized[i] = rule
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(normalized); err != nil {
		return nil, fmt.Errorf("rules: encode: %w", err)
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

// Decode parses a persisted JSON document. Blank input or a JSON null decodes
// to an empty rule set.
func Decode(data []byte) (RuleSet, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return RuleSet{}, nil
	}
	var rs RuleSet
	if err := json.Unmarshal(data, &rs); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	if rs == nil {
		return RuleSet{}, nil
	}
	for i := range rs {
		if rs[i].Conditions == nil {
			rs[i].Conditions = Conditions{}
		}
	}
	return rs, nil
}
