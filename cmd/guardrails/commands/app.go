package commands

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/rs/zerolog"

	"github.com/openfroyo/guardrails/pkg/blueprint"
	"github.com/openfroyo/guardrails/pkg/config"
	"github.com/openfroyo/guardrails/pkg/guardrails"
	"github.com/openfroyo/guardrails/pkg/policy"
	"github.com/openfroyo/guardrails/pkg/stores"
	"github.com/openfroyo/guardrails/pkg/telemetry"
)

// app holds everything a command needs, built from one configuration.
type app struct {
	cfg        *config.Config
	telemetry  *telemetry.Telemetry
	logger     zerolog.Logger
	store      stores.Store
	blueprints *blueprint.FileProvider
	engine     *guardrails.Engine
}

// appOptions adjusts the loaded configuration for a command.
type appOptions struct {
	// serving keeps logs on the configured output; other commands log to
	// stderr so stdout carries only results.
	serving bool

	// storePath, when set, selects a SQLite store at that path.
	storePath string
}

func loadConfig(flags *globalFlags, opts appOptions) (*config.Config, error) {
	cfg, err := config.Load(flags.configPath)
	if err != nil {
		return nil, err
	}

	if flags.verbose {
		cfg.Telemetry.Logging.Level = "debug"
	}
	if !opts.serving && cfg.Telemetry.Logging.Output == "stdout" {
		cfg.Telemetry.Logging.Output = "stderr"
	}
	if opts.storePath != "" {
		cfg.Store.Driver = "sqlite"
		cfg.Store.Path = opts.storePath
	}
	return cfg, nil
}

func newApp(ctx context.Context, flags *globalFlags, opts appOptions) (*app, error) {
	cfg, err := loadConfig(flags, opts)
	if err != nil {
		return nil, err
	}

	tel, err := telemetry.NewTelemetry(&cfg.Telemetry)
	if err != nil {
		return nil, err
	}
	logger := tel.Logger.Zerolog()

	a := &app{cfg: cfg, telemetry: tel, logger: logger}

	catalog, err := loadCatalog(ctx, logger, cfg.Policies)
	if err != nil {
		_ = a.Close(ctx)
		return nil, err
	}

	a.store, err = stores.Open(ctx, cfg.Store)
	if err != nil {
		_ = a.Close(ctx)
		return nil, fmt.Errorf("failed to open store: %w", err)
	}

	engineOpts := guardrails.Options{
		Results:     a.store,
		Baselines:   a.store,
		Audit:       a.store,
		Metrics:     tel.Metrics,
		Scoring:     cfg.Scoring,
		Drift:       cfg.Drift,
		Trend:       cfg.Trend,
		Parallelism: cfg.Engine.Parallelism,
	}

	if cfg.Blueprints.Dir != "" {
		a.blueprints, err = blueprint.NewFileProvider(cfg.Blueprints.Dir, logger)
		if err != nil {
			_ = a.Close(ctx)
			return nil, err
		}
		engineOpts.Blueprints = a.blueprints
	}

	a.engine, err = guardrails.NewEngine(catalog, logger, engineOpts)
	if err != nil {
		_ = a.Close(ctx)
		return nil, err
	}

	return a, nil
}

// loadCatalog combines the built-in policies with definitions from disk.
func loadCatalog(ctx context.Context, logger zerolog.Logger, cfg config.PoliciesConfig) (*policy.Catalog, error) {
	var defs []policy.Policy
	if cfg.Builtin {
		defs = append(defs, policy.GetBuiltinPolicies()...)
	}
	if len(cfg.Paths) > 0 {
		loaded, err := policy.NewLoader(logger).LoadFromPaths(ctx, cfg.Paths)
		if err != nil {
			return nil, err
		}
		defs = append(defs, loaded...)
	}
	return policy.LoadCatalog(logger, defs)
}

// Close releases the store, the blueprint watcher and telemetry.
func (a *app) Close(ctx context.Context) error {
	var errs []error
	if a.blueprints != nil {
		if err := a.blueprints.Close(); err != nil {
			errs = append(errs, fmt.Errorf("blueprint watcher: %w", err))
		}
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			errs = append(errs, fmt.Errorf("store: %w", err))
		}
	}
	if a.telemetry != nil {
		if err := a.telemetry.Shutdown(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// stderrLogger is a plain logger for commands that do not start telemetry.
func stderrLogger(cfg *config.Config) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.Telemetry.Logging.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}
	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).Level(level).With().Timestamp().Logger()
}
