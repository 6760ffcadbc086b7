package commands

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/openfroyo/guardrails/pkg/blueprint"
	"github.com/openfroyo/guardrails/pkg/engine"
	"github.com/openfroyo/guardrails/pkg/guardrails"
)

// ErrEvaluationFailed is returned when an evaluation has blocking violations,
// so the process exits non-zero.
var ErrEvaluationFailed = errors.New("evaluation failed")

func newEvaluateCommand(flags *globalFlags) *cobra.Command {
	var (
		blueprintFile string
		codeFile      string
		format        string
		policyIDs     []string
	)

	cmd := &cobra.Command{
		Use:   "evaluate",
		Short: "Evaluate a blueprint or code file against policies",
		Long: `Evaluate a blueprint file (YAML, JSON or CUE) or a raw infrastructure-as-code
file against the policy catalog.

The command exits non-zero when the evaluation has critical or high
violations.`,
		Example: `  # Evaluate a blueprint
  guardrails evaluate --blueprint shop.yaml

  # Evaluate Terraform with two policies and JSON output
  guardrails evaluate --code main.tf --format terraform --policy code-001 --policy code-002 --json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if (blueprintFile == "") == (codeFile == "") {
				return fmt.Errorf("exactly one of --blueprint or --code is required")
			}

			ctx := cmd.Context()
			req := guardrails.Request{PolicyIDs: policyIDs}

			if blueprintFile != "" {
				graph, err := blueprint.NewParser().ParseFile(blueprintFile)
				if err != nil {
					return err
				}
				req.Graph = graph
			} else {
				if format == "" {
					return fmt.Errorf("--format is required with --code")
				}
				code, err := os.ReadFile(codeFile)
				if err != nil {
					return fmt.Errorf("failed to read code file: %w", err)
				}
				req.Code = &engine.CodeBlob{Code: string(code), Format: format}
			}

			a, err := newApp(ctx, flags, appOptions{})
			if err != nil {
				return err
			}
			defer func() { _ = a.Close(ctx) }()

			result, err := a.engine.Evaluate(ctx, req)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if flags.jsonOutput {
				if err := printJSON(out, result); err != nil {
					return err
				}
			} else {
				printResult(cmd, result)
			}

			if !result.Passed {
				return ErrEvaluationFailed
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&blueprintFile, "blueprint", "b", "", "blueprint file (.yaml, .yml, .json, .cue)")
	cmd.Flags().StringVar(&codeFile, "code", "", "infrastructure-as-code file")
	cmd.Flags().StringVarP(&format, "format", "f", "", "code format (e.g. terraform, cloudformation)")
	cmd.Flags().StringSliceVarP(&policyIDs, "policy", "p", nil, "policy ids to evaluate (default: all enabled)")

	return cmd
}

func printResult(cmd *cobra.Command, result *engine.EvaluationResult) {
	out := cmd.OutOrStdout()

	status := "PASSED"
	if !result.Passed {
		status = "FAILED"
	}
	fmt.Fprintf(out, "Evaluation %s: %s (score %.1f, %d policies)\n",
		result.ID, status, result.Score, result.PoliciesEvaluated)

	if len(result.Violations) == 0 {
		fmt.Fprintln(out, "No violations")
		return
	}

	s := result.Summary
	fmt.Fprintf(out, "Violations: %d (critical %d, high %d, medium %d, low %d, info %d)\n\n",
		s.Total, s.Critical, s.High, s.Medium, s.Low, s.Info)

	tw := newTable(out)
	fmt.Fprintln(tw, "SEVERITY\tPOLICY\tRESOURCE\tMESSAGE")
	for _, v := range result.Violations {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", strings.ToUpper(string(v.Severity)), v.PolicyID, v.ResourceID, v.Message)
	}
	_ = tw.Flush()

	if len(result.Remediations) > 0 {
		fmt.Fprintln(out, "\nAuto-remediable:")
		for _, r := range result.Remediations {
			fmt.Fprintf(out, "  %s  %s\n", r.ViolationID, r.Description)
		}
	}
}
