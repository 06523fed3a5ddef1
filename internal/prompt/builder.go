package prompt

import (
	"fmt"
	"strings"

	"github.com/wolfman30/legal-triage/internal/rules"
)

const (
	defaultOrgName         = "Acme Corp"
	defaultFallbackContact = "legal@acme.corp"

	// RoutingPrefix starts the line the model must emit once a rule matches.
	RoutingPrefix = "For this request, please email:"
)

// Builder turns a rule set into the instruction text sent with every turn.
// Build is pure: the same rule set always yields byte-identical text.
type Builder struct {
	OrgName         string
	FallbackContact string
	// FallbackMessage overrides the generated no-match reply.
	FallbackMessage string
	// Slots lists recognized slot names in the order they should be asked for.
	Slots []string
}

// NewBuilder returns a Builder with defaults filled in.
func NewBuilder(orgName, fallbackContact, fallbackMessage string, slots []string) Builder {
	return Builder{
		OrgName:         orgName,
		FallbackContact: fallbackContact,
		FallbackMessage: fallbackMessage,
		Slots:           slots,
	}
}

func (b Builder) orgName() string {
	if name := strings.TrimSpace(b.OrgName); name != "" {
		return name
	}
	return defaultOrgName
}

func (b Builder) contact() string {
	if c := strings.TrimSpace(b.FallbackContact); c != "" {
		return c
	}
	return defaultFallbackContact
}

func (b Builder) slots() []string {
	if len(b.Slots) == 0 {
		return rules.DefaultSlots
	}
	return b.Slots
}

// Fallback returns the exact reply used when no rule matches.
func (b Builder) Fallback() string {
	if msg := strings.TrimSpace(b.FallbackMessage); msg != "" {
		return msg
	}
	return fmt.Sprintf("I cannot find a matching rule for this request. Please contact %s.", b.contact())
}

// RoutingLine returns the exact reply used when a rule matches.
func RoutingLine(assignee string) string {
	return RoutingPrefix + " " + strings.TrimSpace(assignee)
}

// Build renders the instructions for rs.
func (b Builder) Build(rs rules.RuleSet) string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "You are %s's Legal Triage Assistant.\n\n", b.orgName())

	if len(rs) == 0 {
		sb.WriteString("There are currently no triage rules configured, so no request can be routed to a specific assignee.\n")
		sb.WriteString("Do not ask follow-up questions. Whatever the user asks, reply with exactly:\n")
		fmt.Fprintf(&sb, "%q\n", b.Fallback())
		return sb.String()
	}

	referenced := rs.ReferencedSlots(b.slots())

	sb.WriteString("Your responsibilities:\n")
	sb.WriteString("1. Understand the user's legal-related request.\n")
	if len(referenced) > 0 {
		fmt.Fprintf(&sb, "2. Collect the values of these attributes before concluding: %s.\n", strings.Join(referenced, ", "))
	} else {
		sb.WriteString("2. No attributes need to be collected; every rule applies to every request.\n")
	}
	sb.WriteString("3. Use the TRIAGE RULES below to determine the correct assignee.\n")
	sb.WriteString("4. NEVER guess or invent a value the user has not given. If information is missing, ask for it.\n")
	sb.WriteString("5. Once the information a rule needs is collected and that rule matches, respond with exactly:\n")
	fmt.Fprintf(&sb, "   %q\n\n", RoutingLine("{{assignee}}"))

	data, err := rules.Encode(rs)
	if err != nil {
		// Encode only fails on unsupported types, which RuleSet never contains.
		data = []byte("[]")
	}
	sb.WriteString("TRIAGE RULES (JSON, in priority order):\n")
	sb.Write(data)
	sb.WriteString("\n\n")

	sb.WriteString("Matching policy:\n")
	sb.WriteString("- Evaluate rules from first to last. The first rule whose conditions all match wins; ignore every later rule.\n")
	sb.WriteString("- A rule matches once every attribute it lists is known and equal to the user's value (case-insensitive).\n")
	sb.WriteString("- A condition that is missing or empty matches any value.\n")
	sb.WriteString("- If an earlier rule could still match but needs an unknown attribute, ask for that attribute before considering later rules.\n\n")

	sb.WriteString("Guidelines:\n")
	sb.WriteString("- Ask exactly one question per reply.\n")
	sb.WriteString("- If the user is unclear, ask them to clarify.\n")
	sb.WriteString("- Always follow the rules EXACTLY.\n")
	sb.WriteString("- If no rule can match, respond with exactly:\n")
	fmt.Fprintf(&sb, "  %q\n", b.Fallback())

	return sb.String()
}
