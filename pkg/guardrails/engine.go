package guardrails

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/openfroyo/guardrails/pkg/drift"
	"github.com/openfroyo/guardrails/pkg/engine"
	"github.com/openfroyo/guardrails/pkg/policy"
	"github.com/openfroyo/guardrails/pkg/stores"
	"github.com/openfroyo/guardrails/pkg/telemetry"
	"github.com/openfroyo/guardrails/pkg/trend"
)

// DefaultParallelism is the evaluation worker count when none is configured.
const DefaultParallelism = 10

// Options configures an Engine. Nil stores default to one shared in-memory store.
type Options struct {
	Results    engine.ResultStore
	Baselines  engine.BaselineStore
	Audit      engine.AuditSink
	Blueprints engine.BlueprintProvider
	Metrics    *telemetry.Metrics

	Scoring ScoringOptions
	Drift   drift.Options
	Trend   trend.Options

	// Parallelism caps the workers evaluating components of one request.
	Parallelism int
}

// DefaultOptions returns options with the default scoring, drift and trend constants.
func DefaultOptions() Options {
	return Options{
		Scoring:     DefaultScoringOptions(),
		Drift:       drift.DefaultOptions(),
		Trend:       trend.DefaultOptions(),
		Parallelism: DefaultParallelism,
	}
}

// Engine evaluates targets against a policy catalog and owns every piece of
// state an evaluation touches. Engines are safe for concurrent use.
type Engine struct {
	catalog    *policy.Catalog
	evaluator  *policy.Evaluator
	results    engine.ResultStore
	audit      engine.AuditSink
	blueprints engine.BlueprintProvider
	detector   *drift.Detector
	predictor  *trend.Predictor
	metrics    *telemetry.Metrics
	tracer     trace.Tracer
	logger     zerolog.Logger

	scoring     ScoringOptions
	parallelism int

	now   func() time.Time
	newID func() string
}

// NewEngine creates an engine over catalog.
func NewEngine(catalog *policy.Catalog, logger zerolog.Logger, opts Options) (*Engine, error) {
	if catalog == nil {
		return nil, fmt.Errorf("policy catalog is required")
	}
	if opts.Scoring == (ScoringOptions{}) {
		opts.Scoring = DefaultScoringOptions()
	}
	if opts.Trend == (trend.Options{}) {
		opts.Trend = trend.DefaultOptions()
	}
	if opts.Drift.CriticalThreshold == 0 && len(opts.Drift.CriticalProperties) == 0 {
		opts.Drift = drift.DefaultOptions()
	}
	if err := opts.Scoring.Validate(); err != nil {
		return nil, fmt.Errorf("invalid scoring options: %w", err)
	}

	if opts.Results == nil || opts.Baselines == nil || opts.Audit == nil {
		mem := stores.NewMemoryStore()
		if opts.Results == nil {
			opts.Results = mem
		}
		if opts.Baselines == nil {
			opts.Baselines = mem
		}
		if opts.Audit == nil {
			opts.Audit = mem
		}
	}
	if opts.Parallelism <= 0 {
		opts.Parallelism = DefaultParallelism
	}

	e := &Engine{
		catalog:     catalog,
		evaluator:   policy.NewEvaluator(logger),
		results:     opts.Results,
		audit:       opts.Audit,
		blueprints:  opts.Blueprints,
		detector:    drift.NewDetector(opts.Baselines, logger, opts.Drift),
		predictor:   trend.NewPredictor(opts.Trend),
		metrics:     opts.Metrics,
		tracer:      otel.Tracer(telemetry.TracerName),
		logger:      logger.With().Str("component", "guardrails-engine").Logger(),
		scoring:     opts.Scoring,
		parallelism: opts.Parallelism,
		now:         time.Now,
		newID:       uuid.NewString,
	}
	e.evaluator.OnUnsafePattern = func(string) {
		e.metrics.RecordUnsafePattern(stageEvaluate)
	}

	e.metrics.SetPoliciesLoaded(catalog.Loaded())
	for _, r := range catalog.Rejected() {
		e.metrics.RecordPolicyRejected(r.Reason)
		if r.Reason == policy.ReasonUnsafePattern {
			e.metrics.RecordUnsafePattern(stageLoad)
		}
	}

	e.logger.Info().
		Int("policies", catalog.Loaded()).
		Int("rejected", len(catalog.Rejected())).
		Int("parallelism", e.parallelism).
		Msg("Guardrails engine initialized")

	return e, nil
}

// Unsafe pattern stages.
const (
	stageLoad     = "load"
	stageEvaluate = "evaluate"
	stageCode     = "code"
)

// GetPolicies returns the catalog policies matching filter, in load order.
func (e *Engine) GetPolicies(filter policy.Filter) []policy.Policy {
	return e.catalog.List(filter)
}

// GetPolicy returns a copy of the policy with the given id.
func (e *Engine) GetPolicy(id string) (policy.Policy, bool) {
	return e.catalog.Get(id)
}

// GetEvaluation returns a stored evaluation, or an error matching engine.ErrNotFound.
func (e *Engine) GetEvaluation(ctx context.Context, id string) (*engine.EvaluationResult, error) {
	if id == "" {
		return nil, engine.NewValidationError("evaluation id is required", nil)
	}
	return e.results.GetEvaluation(ctx, id)
}

// GetEvaluations returns stored evaluations newest first. An empty
// blueprintID lists all evaluations.
func (e *Engine) GetEvaluations(ctx context.Context, blueprintID string, limit int) ([]*engine.EvaluationResult, error) {
	return e.results.ListEvaluations(ctx, blueprintID, limit)
}

// GetComplianceScore reports the latest score of a blueprint with its status
// bucket and the direction of its recent history.
func (e *Engine) GetComplianceScore(ctx context.Context, blueprintID string) (*engine.ComplianceScore, error) {
	if blueprintID == "" {
		return nil, engine.NewValidationError("blueprint id is required", nil)
	}
	latest, err := e.results.ListEvaluations(ctx, blueprintID, 1)
	if err != nil {
		return nil, fmt.Errorf("failed to load latest evaluation: %w", err)
	}
	if len(latest) == 0 {
		return nil, engine.NewNotFoundError("evaluation for blueprint", blueprintID)
	}

	opts := e.predictor.Options()
	history, err := e.results.History(ctx, blueprintID, opts.Window)
	if err != nil {
		return nil, fmt.Errorf("failed to load compliance history: %w", err)
	}
	slope := trend.Slope(trend.Scores(history, opts.Window))

	return &engine.ComplianceScore{
		BlueprintID:  blueprintID,
		Score:        latest[0].Score,
		Status:       ComplianceStatus(latest[0].Score),
		Trend:        trend.Direction(slope, opts.StableEpsilon),
		EvaluationID: latest[0].ID,
		EvaluatedAt:  latest[0].Timestamp,
	}, nil
}

// ComplianceStatus buckets a score: compliant at 90 and above, at risk at 70
// and above.
func ComplianceStatus(score float64) engine.ComplianceStatus {
	switch {
	case score >= 90:
		return engine.StatusCompliant
	case score >= 70:
		return engine.StatusAtRisk
	default:
		return engine.StatusNonCompliant
	}
}

// Predict raises predictions for a blueprint from its history and the
// violations of its latest evaluation.
func (e *Engine) Predict(ctx context.Context, blueprintID string) ([]engine.Prediction, error) {
	if blueprintID == "" {
		return nil, engine.NewValidationError("blueprint id is required", nil)
	}
	history, err := e.results.History(ctx, blueprintID, e.predictor.Options().Window)
	if err != nil {
		return nil, fmt.Errorf("failed to load compliance history: %w", err)
	}

	var violations []engine.Violation
	latest, err := e.results.ListEvaluations(ctx, blueprintID, 1)
	if err != nil {
		return nil, fmt.Errorf("failed to load latest evaluation: %w", err)
	}
	if len(latest) > 0 {
		violations = latest[0].Violations
	}

	return e.predictor.Predict(history, violations), nil
}

// DetectDrift compares state against the resource's baseline, capturing the
// baseline on first sight.
func (e *Engine) DetectDrift(ctx context.Context, resourceID string, state map[string]interface{}) (*engine.DriftResult, error) {
	ctx, span := e.tracer.Start(ctx, "guardrails.DetectDrift",
		trace.WithAttributes(telemetry.AttrResourceID.String(resourceID)))
	defer span.End()

	result, err := e.detector.Detect(ctx, resourceID, state)
	if err != nil {
		telemetry.RecordError(span, err)
		if !engine.IsInvalidRequest(err) {
			e.metrics.RecordStoreError("baseline")
		}
		return nil, err
	}
	e.metrics.RecordDriftCheck(string(result.RiskLevel))
	return result, nil
}

// Rebaseline replaces the resource's baseline with state.
func (e *Engine) Rebaseline(ctx context.Context, resourceID string, state map[string]interface{}) (*engine.DriftBaseline, error) {
	baseline, err := e.detector.Rebaseline(ctx, resourceID, state)
	if err != nil && !engine.IsInvalidRequest(err) {
		e.metrics.RecordStoreError("baseline")
	}
	return baseline, err
}
