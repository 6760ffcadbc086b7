package commands

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

func newDriftCommand(flags *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "drift",
		Short: "Detect configuration drift against stored baselines",
		Long: `Detect configuration drift by comparing a resource's current state with its
stored baseline. The first detection for a resource captures the baseline.

Baselines only persist across invocations with a durable store, either from
the configuration file or --store.`,
	}

	cmd.AddCommand(newDriftDetectCommand(flags))
	cmd.AddCommand(newDriftRebaselineCommand(flags))

	return cmd
}

func newDriftDetectCommand(flags *globalFlags) *cobra.Command {
	var (
		statePath  string
		resourceID string
		storePath  string
		failOnDrift bool
	)

	cmd := &cobra.Command{
		Use:   "detect",
		Short: "Compare a resource's state with its baseline",
		Example: `  # Capture, then check, a resource baseline in a local database
  guardrails drift detect --resource db-1 --state db-1.json --store drift.db`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			state, err := readState(statePath)
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			a, err := newApp(ctx, flags, appOptions{storePath: storePath})
			if err != nil {
				return err
			}
			defer func() { _ = a.Close(ctx) }()

			result, err := a.engine.DetectDrift(ctx, resourceID, state)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if flags.jsonOutput {
				if err := printJSON(out, result); err != nil {
					return err
				}
			} else if !result.HasDrift {
				fmt.Fprintf(out, "No drift for %s (baseline %s)\n",
					result.ResourceID, result.BaselineCapturedAt.Format(time.RFC3339))
			} else {
				fmt.Fprintf(out, "Drift detected for %s: %.1f%% changed, risk %s\n",
					result.ResourceID, result.DriftPercentage, result.RiskLevel)
				fmt.Fprintf(out, "Changed properties: %s\n", strings.Join(result.ChangedProperties, ", "))
			}

			if failOnDrift && result.HasDrift {
				return fmt.Errorf("drift detected for %s", result.ResourceID)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&statePath, "state", "s", "", "current state file (.json, .yaml, .yml)")
	cmd.Flags().StringVarP(&resourceID, "resource", "r", "", "resource id")
	cmd.Flags().StringVar(&storePath, "store", "", "SQLite database holding baselines")
	cmd.Flags().BoolVar(&failOnDrift, "fail", false, "exit non-zero when drift is detected")
	_ = cmd.MarkFlagRequired("state")
	_ = cmd.MarkFlagRequired("resource")

	return cmd
}

func newDriftRebaselineCommand(flags *globalFlags) *cobra.Command {
	var (
		statePath  string
		resourceID string
		storePath  string
	)

	cmd := &cobra.Command{
		Use:   "rebaseline",
		Short: "Replace a resource's baseline with its current state",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			state, err := readState(statePath)
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			a, err := newApp(ctx, flags, appOptions{storePath: storePath})
			if err != nil {
				return err
			}
			defer func() { _ = a.Close(ctx) }()

			baseline, err := a.engine.Rebaseline(ctx, resourceID, state)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if flags.jsonOutput {
				return printJSON(out, baseline)
			}
			fmt.Fprintf(out, "Baseline for %s captured at %s\n",
				baseline.ResourceID, baseline.CapturedAt.Format(time.RFC3339))
			return nil
		},
	}

	cmd.Flags().StringVarP(&statePath, "state", "s", "", "state file (.json, .yaml, .yml)")
	cmd.Flags().StringVarP(&resourceID, "resource", "r", "", "resource id")
	cmd.Flags().StringVar(&storePath, "store", "", "SQLite database holding baselines")
	_ = cmd.MarkFlagRequired("state")
	_ = cmd.MarkFlagRequired("resource")

	return cmd
}
