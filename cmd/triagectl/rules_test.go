package main

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/legal-triage/internal/rules"
)

const ndaRules = `[
  {"conditions": {"type": "NDA"}, "assignee": "ip@acme.corp"},
  {"conditions": {"type": "Employment", "location": "Australia"}, "assignee": "au-hr@acme.corp"},
  {"conditions": {}, "assignee": "desk@acme.corp"}
]`

func TestRulesReplaceAndList(t *testing.T) {
	h := newHarness(t)

	require.NoError(t, h.run(t, "", "rules", "replace", writeRulesFile(t, ndaRules)))
	assert.Equal(t, "saved 3 rules\n", h.stdout.String())

	require.NoError(t, h.run(t, "", "rules", "list"))
	out := h.stdout.String()
	assert.Contains(t, out, "INDEX")
	assert.Contains(t, out, "type=NDA")
	assert.Contains(t, out, "location=Australia type=Employment")
	assert.Contains(t, out, "*")
	assert.Contains(t, out, "desk@acme.corp")
}

func TestRulesListJSON(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.run(t, ndaRules, "rules", "replace", "-"))

	require.NoError(t, h.run(t, "", "rules", "list", "--json"))
	rs, err := rules.Decode(h.stdout.Bytes())
	require.NoError(t, err)
	require.Len(t, rs, 3)
	assert.Equal(t, "ip@acme.corp", rs[0].Assignee)
}

func TestRulesReplaceRejectsIncompleteRule(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.run(t, ndaRules, "rules", "replace", "-"))

	bad := `[{"conditions": {"type": "NDA"}, "assignee": "ip@acme.corp"}, {"conditions": {"type": "Lease"}, "assignee": ""}]`
	err := h.run(t, bad, "rules", "replace", "-")
	require.Error(t, err)
	var verr *rules.ValidationError
	assert.True(t, errors.As(err, &verr))
	assert.Contains(t, h.stderr.String(), "rule 1: assignee is required")

	require.NoError(t, h.run(t, "", "rules", "list", "--json"))
	rs, err := rules.Decode(h.stdout.Bytes())
	require.NoError(t, err)
	assert.Len(t, rs, 3)
}

func TestRulesReplaceMissingFile(t *testing.T) {
	h := newHarness(t)
	err := h.run(t, "", "rules", "replace", "/nonexistent/rules.json")
	assert.ErrorContains(t, err, "read rules file")
}

func TestRulesDelete(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.run(t, ndaRules, "rules", "replace", "-"))

	require.NoError(t, h.run(t, "", "rules", "delete", "1"))
	assert.Equal(t, "deleted rule 1, 2 remaining\n", h.stdout.String())

	require.NoError(t, h.run(t, "", "rules", "list", "--json"))
	rs, err := rules.Decode(h.stdout.Bytes())
	require.NoError(t, err)
	require.Len(t, rs, 2)
	assert.Equal(t, "desk@acme.corp", rs[1].Assignee)
}

func TestRulesDeleteBadIndex(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.run(t, ndaRules, "rules", "replace", "-"))

	assert.ErrorContains(t, h.run(t, "", "rules", "delete", "7"), "no rule at index 7")
	assert.ErrorContains(t, h.run(t, "", "rules", "delete", "first"), `invalid index "first"`)
}

func TestRulesMatch(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.run(t, ndaRules, "rules", "replace", "-"))

	require.NoError(t, h.run(t, "", "rules", "match", "--slot", "type=nda"))
	assert.Contains(t, h.stdout.String(), "matched rule 0")
	assert.Contains(t, h.stdout.String(), "ip@acme.corp")

	require.NoError(t, h.run(t, "", "rules", "match", "--slot", "type=Employment"))
	assert.Equal(t, "rule 1 needs: location\n", h.stdout.String())

	require.NoError(t, h.run(t, "", "rules", "match", "--slot", "type=Employment", "--slot", "location=Canada"))
	assert.Contains(t, h.stdout.String(), "matched rule 2")
	assert.Contains(t, h.stdout.String(), "desk@acme.corp")
}

func TestRulesMatchNoRulesFallsBack(t *testing.T) {
	h := newHarness(t)

	require.NoError(t, h.run(t, "", "rules", "match", "--slot", "type=NDA"))
	assert.Contains(t, h.stdout.String(), "no match")
	assert.Contains(t, h.stdout.String(), "legal@acme.corp")
}
