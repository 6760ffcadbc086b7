package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

// globalFlags are the persistent flags shared by every command.
type globalFlags struct {
	configPath string
	verbose    bool
	jsonOutput bool
}

// Execute runs the root command
func Execute(ctx context.Context, version, commit, buildDate string) error {
	return NewRootCommand(version, commit, buildDate).ExecuteContext(ctx)
}

// NewRootCommand builds the command tree.
func NewRootCommand(version, commit, buildDate string) *cobra.Command {
	flags := &globalFlags{}

	rootCmd := &cobra.Command{
		Use:   "guardrails",
		Short: "Guardrails - policy evaluation for infrastructure blueprints",
		Long: `Guardrails evaluates infrastructure blueprints and infrastructure-as-code
against a catalog of declarative policies.

Features:
  - Built-in security, compliance, cost and operational policies
  - Component graphs from YAML, JSON or CUE blueprints
  - Raw code scanning with linear-time pattern matching
  - Compliance scoring, trends and predictions
  - Configuration drift detection against captured baselines
  - Remediation suggestions with an audit trail`,
		Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, buildDate),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVarP(&flags.configPath, "config", "c", "", "config file path")
	rootCmd.PersistentFlags().BoolVarP(&flags.verbose, "verbose", "v", false, "enable verbose output")
	rootCmd.PersistentFlags().BoolVar(&flags.jsonOutput, "json", false, "output in JSON format")

	rootCmd.AddCommand(newServeCommand(flags, version))
	rootCmd.AddCommand(newEvaluateCommand(flags))
	rootCmd.AddCommand(newPoliciesCommand(flags))
	rootCmd.AddCommand(newDriftCommand(flags))

	return rootCmd
}
