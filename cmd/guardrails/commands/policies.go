package commands

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/openfroyo/guardrails/pkg/engine"
	"github.com/openfroyo/guardrails/pkg/policy"
)

var policyFilterAll = policy.Filter{}

func newPoliciesCommand(flags *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "policies",
		Short: "Inspect the policy catalog",
		Long: `Inspect the policy catalog built from the built-in policies and any
configured policy files.`,
	}

	cmd.AddCommand(newPoliciesListCommand(flags))
	cmd.AddCommand(newPoliciesShowCommand(flags))

	return cmd
}

func newPoliciesListCommand(flags *globalFlags) *cobra.Command {
	var (
		category string
		severity string
		enabled  bool
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List policies",
		Example: `  # List all policies
  guardrails policies list

  # List enabled critical security policies
  guardrails policies list --category security --severity critical --enabled`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			filter := policy.Filter{
				Category: policy.Category(category),
				Severity: policy.Severity(severity),
			}
			if cmd.Flags().Changed("enabled") {
				filter.Enabled = &enabled
			}

			catalog, err := loadPolicyCatalog(cmd.Context(), flags)
			if err != nil {
				return err
			}
			policies := catalog.List(filter)

			out := cmd.OutOrStdout()
			if flags.jsonOutput {
				if policies == nil {
					policies = []policy.Policy{}
				}
				return printJSON(out, policies)
			}

			tw := newTable(out)
			fmt.Fprintln(tw, "ID\tSEVERITY\tCATEGORY\tENABLED\tNAME")
			for _, p := range policies {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%t\t%s\n", p.ID, p.Severity, p.Category, p.Enabled, p.Name)
			}
			return tw.Flush()
		},
	}

	cmd.Flags().StringVar(&category, "category", "", "filter by category (security, compliance, cost, operational)")
	cmd.Flags().StringVar(&severity, "severity", "", "filter by severity (critical, high, medium, low, info)")
	cmd.Flags().BoolVar(&enabled, "enabled", false, "filter by enabled state")

	return cmd
}

func newPoliciesShowCommand(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:     "show ID",
		Short:   "Show one policy",
		Example: `  guardrails policies show sec-001`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			catalog, err := loadPolicyCatalog(cmd.Context(), flags)
			if err != nil {
				return err
			}

			p, ok := catalog.Get(args[0])
			if !ok {
				return engine.NewNotFoundError("policy", args[0])
			}

			out := cmd.OutOrStdout()
			if flags.jsonOutput {
				return printJSON(out, p)
			}

			fmt.Fprintf(out, "ID:          %s\n", p.ID)
			fmt.Fprintf(out, "Name:        %s\n", p.Name)
			fmt.Fprintf(out, "Category:    %s\n", p.Category)
			fmt.Fprintf(out, "Severity:    %s\n", p.Severity)
			fmt.Fprintf(out, "Enabled:     %t\n", p.Enabled)
			fmt.Fprintf(out, "Description: %s\n", p.Description)
			fmt.Fprintf(out, "Rule:        %s %s %v\n", p.Rule.ConditionPath, p.Rule.Operator, p.Rule.ExpectedValue)
			if len(p.Rule.Scope) > 0 {
				fmt.Fprintf(out, "Scope:       %s\n", strings.Join(p.Rule.Scope, ", "))
			}
			if p.Remediation != nil {
				fmt.Fprintf(out, "Remediation: %s (%s)\n", p.Remediation.ActionDescription, p.Remediation.Kind)
			}
			if len(p.Tags) > 0 {
				fmt.Fprintf(out, "Tags:        %s\n", strings.Join(p.Tags, ", "))
			}
			return nil
		},
	}
}

// loadPolicyCatalog builds only the catalog; listing policies needs no store.
func loadPolicyCatalog(ctx context.Context, flags *globalFlags) (*policy.Catalog, error) {
	cfg, err := loadConfig(flags, appOptions{})
	if err != nil {
		return nil, err
	}
	return loadCatalog(ctx, stderrLogger(cfg), cfg.Policies)
}
