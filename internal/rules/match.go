package rules

import "strings"

// MatchStatus is the outcome of evaluating collected slots against a RuleSet.
type MatchStatus string

const (
	// MatchFound means a rule matched and every earlier rule was ruled out.
	MatchFound MatchStatus = "matched"
	// MatchNeedsInfo means an undecided rule still needs slot values.
	MatchNeedsInfo MatchStatus = "needs_info"
	// MatchNone means every rule was ruled out; the fallback applies.
	MatchNone MatchStatus = "no_match"
)

// MatchResult reports how a RuleSet resolved a set of slot values.
type MatchResult struct {
	Status  MatchStatus `json:"status"`
	Index   int         `json:"index"`
	Rule    *Rule       `json:"rule,omitempty"`
	Missing []string    `json:"missing,omitempty"`
}

// Match applies first-match-by-position. Rules are visited in order: a rule
// with a known slot that differs is skipped; a rule whose referenced slots are
// all known and equal wins; a rule that cannot be decided yet stops the scan,
// since a later rule may not pre-empt it. Blank conditions are wildcards.
// Values compare trimmed and case-insensitively.
func (rs RuleSet) Match(slots map[string]string) MatchResult {
	for i, rule := range rs {
		var missing []string
		mismatch := false
		for _, slot := range rule.Conditions.Referenced() {
			want := rule.Conditions.Value(slot)
			have := strings.TrimSpace(slots[slot])
			if have == "" {
				missing = append(missing, slot)
				continue
			}
			if !strings.EqualFold(want, have) {
				mismatch = true
				break
			}
		}
		if mismatch {
			continue
		}
		if len(missing) > 0 {
			return MatchResult{Status: MatchNeedsInfo, Index: i, Missing: missing}
		}
		matched := RuleSet{rule}.Clone()[0]
		return MatchResult{Status: MatchFound, Index: i, Rule: &matched}
	}
	return MatchResult{Status: MatchNone, Index: -1}
}
