package prompt

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wolfman30/legal-triage/internal/rules"
)

func ndaRules() rules.RuleSet {
	return rules.RuleSet{{Conditions: rules.Conditions{"type": "NDA"}, Assignee: "ip@acme.corp"}}
}

func TestBuildEmbedsRulesVerbatim(t *testing.T) {
	b := NewBuilder("", "", "", nil)
	out := b.Build(ndaRules())

	encoded, err := rules.Encode(ndaRules())
	require.NoError(t, err)
	assert.Contains(t, out, string(encoded))
	assert.Contains(t, out, "You are Acme Corp's Legal Triage Assistant.")
	assert.Contains(t, out, `"For this request, please email: {{assignee}}"`)
	assert.Contains(t, out, "Collect the values of these attributes before concluding: type.")
	assert.Contains(t, out, "exactly one question")
	assert.Contains(t, out, "I cannot find a matching rule for this request. Please contact legal@acme.corp.")
}

func TestBuildIsDeterministic(t *testing.T) {
	b := NewBuilder("Initech", "desk@initech.com", "", rules.DefaultSlots)
	rs := rules.RuleSet{
		{Conditions: rules.Conditions{"type": "Employment", "location": "Australia", "department": "Sales"}, Assignee: "a@initech.com"},
		{Conditions: rules.Conditions{"location": "US"}, Assignee: "b@initech.com"},
	}

	first := b.Build(rs)
	for i := 0; i < 20; i++ {
		assert.Equal(t, first, b.Build(rs.Clone()))
	}
	assert.Contains(t, first, "type, location, department")
}

func TestBuildOrderMatters(t *testing.T) {
	b := NewBuilder("", "", "", nil)
	rs := rules.RuleSet{
		{Conditions: rules.Conditions{"type": "NDA"}, Assignee: "first@acme.corp"},
		{Conditions: rules.Conditions{"type": "Lease"}, Assignee: "second@acme.corp"},
	}
	reversed := rules.RuleSet{rs[1], rs[0]}

	out := b.Build(rs)
	assert.NotEqual(t, out, b.Build(reversed))
	assert.Less(t, strings.Index(out, "first@acme.corp"), strings.Index(out, "second@acme.corp"))
}

func TestBuildEmptyRuleSetInstructsFallback(t *testing.T) {
	b := NewBuilder("", "", "", nil)
	out := b.Build(rules.RuleSet{})

	assert.Contains(t, out, "no triage rules configured")
	assert.Contains(t, out, "legal@acme.corp")
	assert.NotContains(t, out, "TRIAGE RULES")
}

func TestBuildReflectsRuleChanges(t *testing.T) {
	b := NewBuilder("", "", "", nil)
	before := b.Build(ndaRules())
	updated := ndaRules()
	updated[0].Assignee = "contracts@acme.corp"
	after := b.Build(updated)

	assert.NotEqual(t, before, after)
	assert.Contains(t, after, "contracts@acme.corp")
}

func TestFallbackIsConfigurable(t *testing.T) {
	b := NewBuilder("", "help@example.com", "", nil)
	assert.Equal(t, "I cannot find a matching rule for this request. Please contact help@example.com.", b.Fallback())

	b.FallbackMessage = "Nothing matched, write to help@example.com"
	assert.Equal(t, "Nothing matched, write to help@example.com", b.Fallback())
	assert.Contains(t, b.Build(nil), "Nothing matched, write to help@example.com")
}

func TestClassify(t *testing.T) {
	b := NewBuilder("", "", "", nil)

	tests := []struct {
		reply    string
		kind     OutcomeKind
		assignee string
	}{
		{"For this request, please email: ip@acme.corp", OutcomeRouted, "ip@acme.corp"},
		{"Thanks! For this request, please email: **ip@acme.corp**.", OutcomeRouted, "ip@acme.corp"},
		{"for this request, please email: <hr@acme.corp>", OutcomeRouted, "hr@acme.corp"},
		{"I cannot find a matching rule for this request. Please contact legal@acme.corp.", OutcomeFallback, ""},
		{"I cannot find a matching rule for this request. Please contact legal@acme.corp.”", OutcomeFallback, ""},
		{"Which country are you located in?", OutcomeClarifying, ""},
		{"For this request, please email:", OutcomeClarifying, ""},
	}
	for _, tt := range tests {
		got := b.Classify(tt.reply)
		assert.Equal(t, tt.kind, got.Kind, tt.reply)
		assert.Equal(t, tt.assignee, got.Assignee, tt.reply)
	}
}
