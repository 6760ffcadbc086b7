package commands

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	"github.com/openfroyo/guardrails/pkg/server"
)

func newServeCommand(flags *globalFlags, version string) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the guardrails HTTP API",
		Long: `Run the guardrails HTTP API.

The server exposes evaluations, policies, compliance scores, predictions and
drift detection under /api/v1, plus /healthz and Prometheus metrics.`,
		Example: `  # Serve with defaults (:8080, in-memory store, built-in policies)
  guardrails serve

  # Serve with a config file and a different address
  guardrails serve --config guardrails.yaml --addr :9090`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			a, err := newApp(ctx, flags, appOptions{serving: true})
			if err != nil {
				return err
			}
			defer func() {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()
				if err := a.Close(shutdownCtx); err != nil {
					a.logger.Error().Err(err).Msg("Shutdown failed")
				}
			}()

			cfg := a.cfg.Server
			if addr != "" {
				cfg.Addr = addr
			}

			if a.blueprints != nil && a.cfg.Blueprints.Watch {
				a.blueprints.OnChange = func(ids []string) {
					a.logger.Info().Strs("blueprints", ids).Msg("Blueprint cache invalidated")
				}
				if err := a.blueprints.Watch(ctx); err != nil {
					return err
				}
			}

			a.logger.Info().
				Str("version", version).
				Str("store", a.cfg.Store.Driver).
				Int("policies", len(a.engine.GetPolicies(policyFilterAll))).
				Msg("Guardrails server starting")

			srv := server.New(a.engine, a.logger, server.Options{
				Config:      cfg,
				Metrics:     a.telemetry.Metrics,
				MetricsPath: a.cfg.Telemetry.Metrics.Path,
				Health:      a.store,
			})
			return srv.Start(ctx)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides server.addr)")

	return cmd
}
