package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/wolfman30/legal-triage/internal/admin"
	"github.com/wolfman30/legal-triage/internal/prompt"
	"github.com/wolfman30/legal-triage/internal/rules"
)

func newRulesCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rules",
		Short: "Inspect and edit routing rules",
	}
	cmd.AddCommand(
		newRulesListCmd(c),
		newRulesReplaceCmd(c),
		newRulesDeleteCmd(c),
		newRulesMatchCmd(c),
	)
	return cmd
}

func newRulesListCmd(c *cli) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "Print the current rule set",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			rs := c.app.Admin.ListRules(cmd.Context())
			if asJSON {
				data, err := rules.Encode(rs)
				if err != nil {
					return err
				}
				_, err = fmt.Fprintln(c.out, string(data))
				return err
			}
			return printRules(c.out, rs)
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the persisted JSON form")
	return cmd
}

func newRulesReplaceCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "replace <file|->",
		Short: "Replace the whole rule set from a JSON file",
		Long:  `Validates and saves a JSON array of rules. Use "-" to read from stdin. An invalid set is rejected and the stored rules are left unchanged.`,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := readSource(c.in, args[0])
			if err != nil {
				return err
			}
			rs, err := rules.Decode(data)
			if err != nil {
				return err
			}
			if err := c.app.Admin.ReplaceRules(cmd.Context(), rs); err != nil {
				var verr *rules.ValidationError
				if errors.As(err, &verr) {
					for _, p := range verr.Problems {
						fmt.Fprintf(c.errOut, "rule %d: %s\n", p.Index, p.Reason)
					}
				}
				return err
			}
			fmt.Fprintf(c.out, "saved %d rules\n", len(rs))
			return nil
		},
	}
}

func newRulesDeleteCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <index>",
		Short: "Delete the rule at a zero-based index",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			index, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("invalid index %q", args[0])
			}
			remaining, err := c.app.Admin.DeleteRule(cmd.Context(), index)
			if errors.Is(err, admin.ErrRuleIndex) {
				return fmt.Errorf("no rule at index %d", index)
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(c.out, "deleted rule %d, %d remaining\n", index, len(remaining))
			return nil
		},
	}
}

func newRulesMatchCmd(c *cli) *cobra.Command {
	var slots map[string]string
	cmd := &cobra.Command{
		Use:   "match",
		Short: "Evaluate collected slots against the rule set",
		Example: `  triagectl rules match --slot type=NDA
  triagectl rules match --slot type=Employment --slot location=Australia`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			res, _ := c.app.Admin.MatchRules(cmd.Context(), slots)
			switch res.Status {
			case rules.MatchFound:
				fmt.Fprintf(c.out, "matched rule %d\n%s\n", res.Index, prompt.RoutingLine(res.Rule.Assignee))
			case rules.MatchNeedsInfo:
				fmt.Fprintf(c.out, "rule %d needs: %s\n", res.Index, strings.Join(res.Missing, ", "))
			default:
				fmt.Fprintf(c.out, "no match\n%s\n", c.app.Builder.Fallback())
			}
			return nil
		},
	}
	cmd.Flags().StringToStringVar(&slots, "slot", nil, "collected slot as name=value (repeatable)")
	return cmd
}

func printRules(w io.Writer, rs rules.RuleSet) error {
	if len(rs) == 0 {
		_, err := fmt.Fprintln(w, "no rules configured")
		return err
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "INDEX\tCONDITIONS\tASSIGNEE")
	for i, r := range rs {
		fmt.Fprintf(tw, "%d\t%s\t%s\n", i, formatConditions(r.Conditions), r.Assignee)
	}
	return tw.Flush()
}

func formatConditions(c rules.Conditions) string {
	slots := c.Referenced()
	if len(slots) == 0 {
		return "*"
	}
	parts := make([]string, 0, len(slots))
	for _, slot := range slots {
		parts = append(parts, slot+"="+c.Value(slot))
	}
	return strings.Join(parts, " ")
}

func readSource(stdin io.Reader, name string) ([]byte, error) {
	if name == "-" {
		return io.ReadAll(stdin)
	}
	data, err := os.ReadFile(name)
	if err != nil {
		return nil, fmt.Errorf("read rules file: %w", err)
	}
	return data, nil
}
