package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"

	"github.com/openfroyo/guardrails/pkg/drift"
	"github.com/openfroyo/guardrails/pkg/guardrails"
	"github.com/openfroyo/guardrails/pkg/stores"
	"github.com/openfroyo/guardrails/pkg/telemetry"
	"github.com/openfroyo/guardrails/pkg/trend"
)

// EnvPrefix prefixes every environment override, e.g. GUARDRAILS_SERVER_ADDR.
const EnvPrefix = "GUARDRAILS"

// DefaultFileName is the config file searched for when no path is given.
const DefaultFileName = "guardrails"

// Config is the complete service configuration.
type Config struct {
	Server     ServerConfig              `mapstructure:"server"`
	Store      stores.Config             `mapstructure:"store"`
	Telemetry  telemetry.Config          `mapstructure:"telemetry"`
	Policies   PoliciesConfig            `mapstructure:"policies"`
	Blueprints BlueprintsConfig          `mapstructure:"blueprints"`
	Engine     EngineConfig              `mapstructure:"engine"`
	Scoring    guardrails.ScoringOptions `mapstructure:"scoring"`
	Drift      drift.Options             `mapstructure:"drift"`
	Trend      trend.Options             `mapstructure:"trend"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Addr            string        `mapstructure:"addr" validate:"required"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout" validate:"gte=0"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout" validate:"gte=0"`
	RequestTimeout  time.Duration `mapstructure:"request_timeout" validate:"gte=0"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"gte=0"`

	// MaxBodyBytes caps request bodies; 0 disables the limit.
	MaxBodyBytes int64 `mapstructure:"max_body_bytes" validate:"gte=0"`
}

// PoliciesConfig selects the policy definitions loaded at startup.
type PoliciesConfig struct {
	// Builtin loads the built-in catalog ahead of Paths.
	Builtin bool `mapstructure:"builtin"`

	// Paths are policy definition files or directories.
	Paths []string `mapstructure:"paths"`
}

// BlueprintsConfig configures the file-backed blueprint provider.
type BlueprintsConfig struct {
	// Dir holds one file per blueprint; empty disables blueprint ids.
	Dir string `mapstructure:"dir"`

	// Watch invalidates cached blueprints when their files change.
	Watch bool `mapstructure:"watch"`
}

// EngineConfig tunes evaluation.
type EngineConfig struct {
	Parallelism int `mapstructure:"parallelism" validate:"gte=1"`
}

// Default returns the configuration used when nothing is overridden.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:            ":8080",
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    30 * time.Second,
			RequestTimeout:  30 * time.Second,
			ShutdownTimeout: 15 * time.Second,
			MaxBodyBytes:    4 << 20,
		},
		Store: stores.Config{
			Driver: "memory",
			Path:   "guardrails.db",
		},
		Telemetry: *telemetry.DefaultConfig(),
		Policies: PoliciesConfig{
			Builtin: true,
		},
		Engine: EngineConfig{
			Parallelism: guardrails.DefaultParallelism,
		},
		Scoring: guardrails.DefaultScoringOptions(),
		Drift:   drift.DefaultOptions(),
		Trend:   trend.DefaultOptions(),
	}
}

// Load reads the configuration. With an empty path it looks for
// guardrails.yaml in the working directory and tolerates its absence; an
// explicit path must exist. Environment variables override both.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v, Default())

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName(DefaultFileName)
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !(errors.As(err, &notFound) || os.IsNotExist(err)) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

var validate = validator.New()

// Validate checks struct constraints and each section's own rules.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if err := c.Telemetry.Validate(); err != nil {
		return fmt.Errorf("invalid telemetry configuration: %w", err)
	}
	if err := c.Scoring.Validate(); err != nil {
		return fmt.Errorf("invalid scoring configuration: %w", err)
	}
	if c.Store.Driver == "sqlite" && c.Store.Path == "" {
		return fmt.Errorf("invalid store configuration: path is required for sqlite")
	}
	if !c.Policies.Builtin && len(c.Policies.Paths) == 0 {
		return fmt.Errorf("invalid policies configuration: no builtin policies and no paths")
	}
	return nil
}

// setDefaults registers every key so AutomaticEnv can override it.
func setDefaults(v *viper.Viper, d *Config) {
	// Server
	v.SetDefault("server.addr", d.Server.Addr)
	v.SetDefault("server.read_timeout", d.Server.ReadTimeout)
	v.SetDefault("server.write_timeout", d.Server.WriteTimeout)
	v.SetDefault("server.request_timeout", d.Server.RequestTimeout)
	v.SetDefault("server.shutdown_timeout", d.Server.ShutdownTimeout)
	v.SetDefault("server.max_body_bytes", d.Server.MaxBodyBytes)

	// Store
	v.SetDefault("store.driver", d.Store.Driver)
	v.SetDefault("store.path", d.Store.Path)
	v.SetDefault("store.max_open_conns", d.Store.MaxOpenConns)
	v.SetDefault("store.max_idle_conns", d.Store.MaxIdleConns)
	v.SetDefault("store.conn_max_lifetime", d.Store.ConnMaxLifetime)

	// Telemetry
	t := d.Telemetry
	v.SetDefault("telemetry.service_name", t.ServiceName)
	v.SetDefault("telemetry.service_version", t.ServiceVersion)
	v.SetDefault("telemetry.environment", t.Environment)
	v.SetDefault("telemetry.logging.level", t.Logging.Level)
	v.SetDefault("telemetry.logging.format", t.Logging.Format)
	v.SetDefault("telemetry.logging.output", t.Logging.Output)
	v.SetDefault("telemetry.logging.file", t.Logging.File)
	v.SetDefault("telemetry.logging.max_size_mb", t.Logging.MaxSizeMB)
	v.SetDefault("telemetry.logging.max_backups", t.Logging.MaxBackups)
	v.SetDefault("telemetry.logging.max_age_days", t.Logging.MaxAgeDays)
	v.SetDefault("telemetry.logging.compress", t.Logging.Compress)
	v.SetDefault("telemetry.logging.enable_caller", t.Logging.EnableCaller)
	v.SetDefault("telemetry.logging.enable_sampling", t.Logging.EnableSampling)
	v.SetDefault("telemetry.logging.sampling_initial", t.Logging.SamplingInitial)
	v.SetDefault("telemetry.logging.sampling_thereafter", t.Logging.SamplingThereafter)
	v.SetDefault("telemetry.logging.time_format", t.Logging.TimeFormat)
	v.SetDefault("telemetry.tracing.enabled", t.Tracing.Enabled)
	v.SetDefault("telemetry.tracing.exporter", t.Tracing.Exporter)
	v.SetDefault("telemetry.tracing.endpoint", t.Tracing.Endpoint)
	v.SetDefault("telemetry.tracing.sampling_rate", t.Tracing.SamplingRate)
	v.SetDefault("telemetry.tracing.max_export_batch_size", t.Tracing.MaxExportBatchSize)
	v.SetDefault("telemetry.tracing.export_timeout", t.Tracing.ExportTimeout)
	v.SetDefault("telemetry.tracing.headers", t.Tracing.Headers)
	v.SetDefault("telemetry.tracing.insecure", t.Tracing.Insecure)
	v.SetDefault("telemetry.metrics.enabled", t.Metrics.Enabled)
	v.SetDefault("telemetry.metrics.path", t.Metrics.Path)
	v.SetDefault("telemetry.metrics.namespace", t.Metrics.Namespace)
	v.SetDefault("telemetry.metrics.histogram_buckets", t.Metrics.DefaultHistogramBuckets)

	// Policies and blueprints
	v.SetDefault("policies.builtin", d.Policies.Builtin)
	v.SetDefault("policies.paths", d.Policies.Paths)
	v.SetDefault("blueprints.dir", d.Blueprints.Dir)
	v.SetDefault("blueprints.watch", d.Blueprints.Watch)

	// Engine
	v.SetDefault("engine.parallelism", d.Engine.Parallelism)

	// Scoring
	v.SetDefault("scoring.critical", d.Scoring.Critical)
	v.SetDefault("scoring.high", d.Scoring.High)
	v.SetDefault("scoring.medium", d.Scoring.Medium)
	v.SetDefault("scoring.low", d.Scoring.Low)
	v.SetDefault("scoring.info", d.Scoring.Info)
	v.SetDefault("scoring.per_policy_deduction", d.Scoring.PerPolicyDeduction)

	// Drift
	v.SetDefault("drift.critical_properties", d.Drift.CriticalProperties)
	v.SetDefault("drift.critical_threshold", d.Drift.CriticalThreshold)
	v.SetDefault("drift.high_threshold", d.Drift.HighThreshold)
	v.SetDefault("drift.medium_threshold", d.Drift.MediumThreshold)

	// Trend
	v.SetDefault("trend.window", d.Trend.Window)
	v.SetDefault("trend.min_points", d.Trend.MinPoints)
	v.SetDefault("trend.slope_threshold", d.Trend.SlopeThreshold)
	v.SetDefault("trend.drift_confidence", d.Trend.DriftConfidence)
	v.SetDefault("trend.violation_threshold", d.Trend.ViolationThreshold)
	v.SetDefault("trend.risk_confidence", d.Trend.RiskConfidence)
	v.SetDefault("trend.top_resources", d.Trend.TopResources)
	v.SetDefault("trend.stable_epsilon", d.Trend.StableEpsilon)
}
