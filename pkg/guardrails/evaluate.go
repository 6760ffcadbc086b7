package guardrails

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/openfroyo/guardrails/pkg/engine"
	"github.com/openfroyo/guardrails/pkg/policy"
	"github.com/openfroyo/guardrails/pkg/telemetry"
)

// Target kinds, used as metric labels.
const (
	TargetGraph = "graph"
	TargetCode  = "code"
)

// CodeResourceID is the resource id of every violation found in a code blob.
const CodeResourceID = "code"

// Request is one evaluation call. Exactly one target is used: Graph, then
// Code, then the graph BlueprintID resolves to.
type Request struct {
	BlueprintID string                 `json:"blueprintId,omitempty"`
	Graph       *engine.ComponentGraph `json:"graph,omitempty"`
	Code        *engine.CodeBlob       `json:"code,omitempty"`

	// PolicyIDs selects catalog policies. Empty selects every enabled policy.
	PolicyIDs []string `json:"policyIds,omitempty"`
}

var validate = validator.New()

// Evaluate checks the request target against the selected policies, scores
// the outcome and stores it.
func (e *Engine) Evaluate(ctx context.Context, req Request) (*engine.EvaluationResult, error) {
	timer := telemetry.NewTimer()

	ctx, span := e.tracer.Start(ctx, "guardrails.Evaluate",
		trace.WithAttributes(telemetry.AttrBlueprintID.String(req.BlueprintID)))
	defer span.End()

	graph, err := e.resolveTarget(ctx, &req)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	target := TargetGraph
	if graph == nil {
		target = TargetCode
	}

	selected := e.selectPolicies(req.PolicyIDs)

	var (
		violations []engine.Violation
		evaluated  int
	)
	if graph != nil {
		violations, err = e.evaluateGraph(ctx, graph, selected)
		if err != nil {
			telemetry.RecordError(span, err)
			return nil, err
		}
		evaluated = len(selected)
	} else {
		violations, evaluated = e.evaluateCode(req.Code, selected)
	}

	var summary engine.Summary
	for _, v := range violations {
		summary.Add(v.Severity)
	}

	blueprintID := req.BlueprintID
	if blueprintID == "" && graph != nil {
		blueprintID = graph.BlueprintID
	}

	result := &engine.EvaluationResult{
		ID:                e.newID(),
		BlueprintID:       blueprintID,
		Timestamp:         e.now().UTC(),
		Passed:            summary.Critical == 0 && summary.High == 0,
		Score:             Score(summary, evaluated, e.scoring),
		Violations:        violations,
		Summary:           summary,
		PoliciesEvaluated: evaluated,
	}
	result.Remediations = suggestAll(autoCandidates(result))

	log := telemetry.WithBlueprint(telemetry.WithEvaluation(e.logger, result.ID), blueprintID)

	point := engine.ComplianceHistoryPoint{
		EvaluationID:   result.ID,
		BlueprintID:    blueprintID,
		Timestamp:      result.Timestamp,
		Score:          result.Score,
		ViolationCount: summary.Total,
		CriticalCount:  summary.Critical,
	}
	result.Predictions = e.predictions(ctx, log, point, violations)

	e.persist(ctx, log, result, point)

	e.metrics.RecordEvaluation(target, result.Passed, timer.Duration())
	e.metrics.RecordViolations(string(policy.SeverityCritical), summary.Critical)
	e.metrics.RecordViolations(string(policy.SeverityHigh), summary.High)
	e.metrics.RecordViolations(string(policy.SeverityMedium), summary.Medium)
	e.metrics.RecordViolations(string(policy.SeverityLow), summary.Low)
	e.metrics.RecordViolations(string(policy.SeverityInfo), summary.Info)

	span.SetAttributes(spanAttrs(result, target)...)

	log.Info().
		Str("target", target).
		Int("policies", evaluated).
		Int("violations", summary.Total).
		Int("critical", summary.Critical).
		Float64("score", result.Score).
		Bool("passed", result.Passed).
		Dur("duration", timer.Duration()).
		Msg("Evaluation completed")

	return result, nil
}

// resolveTarget validates the request and returns the graph to evaluate, or
// nil when the target is a code blob.
func (e *Engine) resolveTarget(ctx context.Context, req *Request) (*engine.ComponentGraph, error) {
	switch {
	case req.Graph != nil && req.Code != nil:
		return nil, engine.NewValidationError("graph and code targets are mutually exclusive", nil)

	case req.Code != nil:
		if err := validate.Struct(req.Code); err != nil {
			return nil, engine.NewValidationError("invalid code target", err)
		}
		return nil, nil

	case req.Graph != nil:
		if err := validateGraph(req.Graph); err != nil {
			return nil, err
		}
		return req.Graph, nil

	case req.BlueprintID != "":
		if e.blueprints == nil {
			return nil, engine.NewNotFoundError("blueprint", req.BlueprintID)
		}
		graph, err := e.blueprints.GetBlueprint(ctx, req.BlueprintID)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve blueprint %s: %w", req.BlueprintID, err)
		}
		if err := validateGraph(graph); err != nil {
			return nil, err
		}
		return graph, nil

	default:
		return nil, engine.NewValidationError("evaluation requires a graph, code or blueprint id", nil)
	}
}

func validateGraph(graph *engine.ComponentGraph) error {
	if err := validate.Struct(graph); err != nil {
		return engine.NewValidationError("invalid component graph", err)
	}
	seen := make(map[string]struct{}, len(graph.Components))
	for _, c := range graph.Components {
		if _, dup := seen[c.ID]; dup {
			return engine.NewValidationError("duplicate component id", nil).WithResource(c.ID)
		}
		seen[c.ID] = struct{}{}
	}
	return nil
}

// selectPolicies returns the policies an evaluation runs, in load order.
// Requested ids can only select among catalog policies; unknown ids are
// dropped. A requested policy runs even when it is disabled.
func (e *Engine) selectPolicies(ids []string) []*policy.Policy {
	var selected []*policy.Policy

	if len(ids) == 0 {
		e.catalog.Each(func(p *policy.Policy) {
			if p.Enabled {
				selected = append(selected, p)
			}
		})
		return selected
	}

	wanted := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		wanted[id] = struct{}{}
	}
	e.catalog.Each(func(p *policy.Policy) {
		if _, ok := wanted[p.ID]; ok {
			selected = append(selected, p)
		}
	})

	if len(selected) != len(wanted) {
		var unknown []string
		for id := range wanted {
			if _, ok := e.catalog.Lookup(id); !ok {
				unknown = append(unknown, id)
			}
		}
		e.logger.Warn().
			Int("requested", len(wanted)).
			Int("selected", len(selected)).
			Strs("unknown", unknown).
			Msg("Ignoring unknown policy ids")
	}

	return selected
}

// evaluateGraph runs the policies over every component with a worker pool.
// Violations are ordered by component, then by policy load order.
func (e *Engine) evaluateGraph(ctx context.Context, graph *engine.ComponentGraph, policies []*policy.Policy) ([]engine.Violation, error) {
	components := graph.Components
	if len(components) == 0 || len(policies) == 0 {
		return []engine.Violation{}, nil
	}

	workerCount := e.parallelism
	if len(components) < workerCount {
		workerCount = len(components)
	}

	workQueue := make(chan int, len(components))
	for i := range components {
		workQueue <- i
	}
	close(workQueue)

	// One slot per component keeps output in input order.
	slots := make([][]engine.Violation, len(components))

	var wg sync.WaitGroup
	for w := 0; w < workerCount; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range workQueue {
				if ctx.Err() != nil {
					return
				}
				slots[i] = e.evaluateComponent(&components[i], policies)
			}
		}()
	}
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("evaluation cancelled: %w", err)
	}

	violations := []engine.Violation{}
	for _, s := range slots {
		violations = append(violations, s...)
	}
	return violations, nil
}

func (e *Engine) evaluateComponent(c *engine.Component, policies []*policy.Policy) []engine.Violation {
	var out []engine.Violation
	for _, p := range policies {
		if !p.AppliesTo(c.Type) {
			continue
		}
		value := policy.Resolve(c.Properties, p.Rule.ConditionPath)
		if !e.evaluator.Evaluate(value, p.Rule.Operator, p.Rule.ExpectedValue) {
			continue
		}
		v := newViolation(p, c.ID)
		v.ResourceName = c.Name
		v.ResourceType = c.Type
		out = append(out, v)
	}
	return out
}

// evaluateCode scans the blob once per code-applicable policy. It returns the
// violations and the number of policies that applied.
func (e *Engine) evaluateCode(blob *engine.CodeBlob, policies []*policy.Policy) ([]engine.Violation, int) {
	violations := []engine.Violation{}
	applicable := 0

	for _, p := range policies {
		if !p.AppliesToCode() {
			continue
		}
		applicable++

		// Catalog patterns passed the guard at load; compile re-checks it.
		re, err := policy.CompilePattern(p.Rule.ConditionPath)
		if err != nil {
			e.logger.Warn().Err(err).Str("policy_id", p.ID).Msg("Skipping code policy with rejected pattern")
			if errors.Is(err, policy.ErrUnsafePattern) {
				e.metrics.RecordUnsafePattern(stageCode)
			}
			continue
		}
		if !re.MatchString(blob.Code) {
			continue
		}

		v := newViolation(p, CodeResourceID)
		v.ResourceType = blob.Format
		v.Location = "code"
		violations = append(violations, v)
	}

	return violations, applicable
}

func newViolation(p *policy.Policy, resourceID string) engine.Violation {
	v := engine.Violation{
		ID:               p.ID + ":" + resourceID,
		PolicyID:         p.ID,
		PolicyName:       p.Name,
		Severity:         p.Severity,
		Category:         p.Category,
		ResourceID:       resourceID,
		Message:          p.Description,
		CanAutoRemediate: p.AutoRemediable(),
	}
	if v.Message == "" {
		v.Message = fmt.Sprintf("Policy %s violated", p.Name)
	}
	if p.Remediation != nil {
		v.Remediation = p.Remediation.ActionDescription
	}
	return v
}

// predictions computes predictions from stored history plus the current point.
// A history read failure degrades to predicting from the current point alone.
func (e *Engine) predictions(ctx context.Context, log zerolog.Logger, current engine.ComplianceHistoryPoint, violations []engine.Violation) []engine.Prediction {
	window := e.predictor.Options().Window
	history, err := e.results.History(ctx, current.BlueprintID, window)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to load compliance history")
		e.metrics.RecordStoreError("history")
		history = nil
	}
	history = append(history, current)
	return e.predictor.Predict(history, violations)
}

// persist stores the result and its history point. Failures are logged and
// counted but never fail the evaluation.
func (e *Engine) persist(ctx context.Context, log zerolog.Logger, result *engine.EvaluationResult, point engine.ComplianceHistoryPoint) {
	if err := e.results.SaveEvaluation(ctx, result); err != nil {
		log.Error().Err(err).Msg("Failed to store evaluation")
		e.metrics.RecordStoreError("save_evaluation")
	}
	if err := e.results.AppendHistory(ctx, point); err != nil {
		log.Error().Err(err).Msg("Failed to append compliance history")
		e.metrics.RecordStoreError("append_history")
	}
}

func spanAttrs(result *engine.EvaluationResult, target string) []attribute.KeyValue {
	return []attribute.KeyValue{
		telemetry.AttrEvaluationID.String(result.ID),
		telemetry.AttrTarget.String(target),
		telemetry.AttrPolicies.Int(result.PoliciesEvaluated),
		telemetry.AttrViolations.Int(result.Summary.Total),
		telemetry.AttrPassed.Bool(result.Passed),
	}
}
