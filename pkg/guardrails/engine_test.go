package guardrails

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sync"
	"testing"

	"github.com/rs/zerolog"

	"github.com/openfroyo/guardrails/pkg/engine"
	"github.com/openfroyo/guardrails/pkg/policy"
	"github.com/openfroyo/guardrails/pkg/stores"
)

func testLogger() zerolog.Logger {
	return zerolog.New(nil).Level(zerolog.Disabled)
}

func newTestEngine(t *testing.T, defs []policy.Policy, mutate func(*Options)) (*Engine, *stores.MemoryStore) {
	t.Helper()

	catalog, err := policy.LoadCatalog(testLogger(), defs)
	if err != nil {
		t.Fatalf("Failed to load catalog: %v", err)
	}

	mem := stores.NewMemoryStore()
	opts := DefaultOptions()
	opts.Results = mem
	opts.Baselines = mem
	opts.Audit = mem
	if mutate != nil {
		mutate(&opts)
	}

	eng, err := NewEngine(catalog, testLogger(), opts)
	if err != nil {
		t.Fatalf("Failed to create engine: %v", err)
	}
	return eng, mem
}

func encryptionPolicy() policy.Policy {
	return policy.Policy{
		ID:          "sec-001",
		Name:        "Database Encryption at Rest",
		Description: "Database does not have encryption at rest enabled",
		Category:    policy.CategorySecurity,
		Severity:    policy.SeverityCritical,
		Enabled:     true,
		Rule: policy.Rule{
			ConditionPath: "encryption_enabled",
			Operator:      policy.OperatorNotEquals,
			ExpectedValue: true,
			Scope:         []string{"database"},
		},
		Remediation: &policy.Remediation{Kind: policy.RemediationAuto, ActionDescription: "Enable encryption"},
	}
}

func manualPolicy() policy.Policy {
	return policy.Policy{
		ID:          "sec-010",
		Name:        "Open Ingress",
		Description: "Security group allows public ingress",
		Category:    policy.CategorySecurity,
		Severity:    policy.SeverityCritical,
		Enabled:     true,
		Rule: policy.Rule{
			ConditionPath: "properties.ingress_cidr",
			Operator:      policy.OperatorEquals,
			ExpectedValue: "0.0.0.0/0",
		},
		Remediation: &policy.Remediation{Kind: policy.RemediationManual, ActionDescription: "Restrict ingress"},
	}
}

func TestEvaluate_EncryptionScenario(t *testing.T) {
	eng, _ := newTestEngine(t, []policy.Policy{encryptionPolicy()}, nil)

	result, err := eng.Evaluate(context.Background(), Request{
		Graph: &engine.ComponentGraph{Components: []engine.Component{{
			ID:         "db1",
			Type:       "database",
			Properties: map[string]interface{}{"encryption_enabled": false},
		}}},
	})
	if err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}

	if len(result.Violations) != 1 {
		t.Fatalf("Expected exactly 1 violation, got %d", len(result.Violations))
	}
	v := result.Violations[0]
	if v.Severity != policy.SeverityCritical {
		t.Errorf("Expected critical violation, got %s", v.Severity)
	}
	if v.ID != "sec-001:db1" {
		t.Errorf("Expected violation id sec-001:db1, got %s", v.ID)
	}
	if result.Passed {
		t.Error("Expected evaluation to fail")
	}
	if result.Score >= 100 {
		t.Errorf("Expected score below 100, got %v", result.Score)
	}
	if result.Summary.Critical != 1 || result.Summary.Total != 1 {
		t.Errorf("Unexpected summary: %+v", result.Summary)
	}
	if len(result.Remediations) != 1 || result.Remediations[0].Action != engine.ActionAuto {
		t.Errorf("Expected one auto remediation, got %+v", result.Remediations)
	}
}

func TestEvaluate_ScopeGating(t *testing.T) {
	eng, _ := newTestEngine(t, []policy.Policy{encryptionPolicy()}, nil)

	result, err := eng.Evaluate(context.Background(), Request{
		Graph: &engine.ComponentGraph{Components: []engine.Component{
			{ID: "bucket", Type: "storage", Properties: map[string]interface{}{"encryption_enabled": false}},
			{ID: "vm", Type: "compute"},
		}},
	})
	if err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}

	if len(result.Violations) != 0 {
		t.Errorf("Expected no violations outside scope, got %+v", result.Violations)
	}
	if result.Score != 100 || !result.Passed {
		t.Errorf("Expected passing score 100, got %v passed=%v", result.Score, result.Passed)
	}
}

func TestEvaluate_ScopedPoliciesOnlyHitTheirTypes(t *testing.T) {
	eng, _ := newTestEngine(t, policy.GetBuiltinPolicies(), nil)

	graph := sampleGraph()
	result, err := eng.Evaluate(context.Background(), Request{Graph: graph})
	if err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}

	types := make(map[string]string)
	for _, c := range graph.Components {
		types[c.ID] = c.Type
	}
	for _, v := range result.Violations {
		p, ok := eng.GetPolicy(v.PolicyID)
		if !ok {
			t.Fatalf("Violation references unknown policy %s", v.PolicyID)
		}
		if !p.AppliesTo(types[v.ResourceID]) {
			t.Errorf("Policy %s (scope %v) violated by %s of type %s", p.ID, p.Rule.Scope, v.ResourceID, types[v.ResourceID])
		}
	}
}

func sampleGraph() *engine.ComponentGraph {
	return &engine.ComponentGraph{
		BlueprintID: "bp-1",
		Components: []engine.Component{
			{ID: "orders-db", Name: "Orders", Type: "database", Properties: map[string]interface{}{
				"encryption_enabled":    false,
				"backup_retention_days": 3,
				"tags":                  map[string]interface{}{"owner": ""},
			}},
			{ID: "assets", Type: "storage", Properties: map[string]interface{}{
				"public_access":      true,
				"encryption_enabled": true,
				"logging_enabled":    false,
			}},
			{ID: "web", Type: "load_balancer", Properties: map[string]interface{}{
				"protocol":        "HTTP",
				"min_tls_version": 1.0,
			}},
			{ID: "worker", Type: "compute", Properties: map[string]interface{}{
				"vcpus":         96,
				"instance_type": "m4.large",
			}},
			{ID: "edge", Type: "security_group", Properties: map[string]interface{}{
				"ingress_cidr": "0.0.0.0/0",
			}},
		},
	}
}

func TestEvaluate_Deterministic(t *testing.T) {
	ctx := context.Background()

	var baseline *engine.EvaluationResult
	for _, parallelism := range []int{1, 3, 16} {
		eng, _ := newTestEngine(t, policy.GetBuiltinPolicies(), func(o *Options) { o.Parallelism = parallelism })

		for i := 0; i < 2; i++ {
			result, err := eng.Evaluate(ctx, Request{Graph: sampleGraph()})
			if err != nil {
				t.Fatalf("Evaluate failed: %v", err)
			}
			if baseline == nil {
				baseline = result
				continue
			}
			if !reflect.DeepEqual(result.Violations, baseline.Violations) {
				t.Errorf("Violations differ at parallelism %d:\n%+v\n%+v", parallelism, result.Violations, baseline.Violations)
			}
			if result.Score != baseline.Score {
				t.Errorf("Score differs at parallelism %d: %v vs %v", parallelism, result.Score, baseline.Score)
			}
		}
	}

	if len(baseline.Violations) == 0 {
		t.Fatal("Expected the sample graph to produce violations")
	}
	// Ordered by component, then policy load order
	if baseline.Violations[0].ResourceID != "orders-db" || baseline.Violations[0].PolicyID != "sec-001" {
		t.Errorf("Unexpected first violation %+v", baseline.Violations[0])
	}
}

func TestEvaluate_PolicySelection(t *testing.T) {
	eng, _ := newTestEngine(t, policy.GetBuiltinPolicies(), nil)
	ctx := context.Background()

	graph := &engine.ComponentGraph{Components: []engine.Component{{ID: "db", Type: "database"}}}

	result, err := eng.Evaluate(ctx, Request{Graph: graph, PolicyIDs: []string{"sec-001", "does-not-exist"}})
	if err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}
	if result.PoliciesEvaluated != 1 {
		t.Errorf("Expected unknown ids to be dropped, got %d policies", result.PoliciesEvaluated)
	}

	// ops-002 is disabled but runs when named explicitly
	result, err = eng.Evaluate(ctx, Request{Graph: graph, PolicyIDs: []string{"ops-002"}})
	if err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}
	if len(result.Violations) != 1 || result.Violations[0].PolicyID != "ops-002" {
		t.Errorf("Expected explicitly selected disabled policy to run, got %+v", result.Violations)
	}

	// ...and never in an unscoped evaluation
	result, err = eng.Evaluate(ctx, Request{Graph: graph})
	if err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}
	for _, v := range result.Violations {
		if v.PolicyID == "ops-002" {
			t.Error("Disabled policy ran in unscoped evaluation")
		}
	}

	result, err = eng.Evaluate(ctx, Request{Graph: graph, PolicyIDs: []string{"nope"}})
	if err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}
	if result.PoliciesEvaluated != 0 || result.Score != 100 {
		t.Errorf("Expected empty selection to score 100, got %d policies, score %v", result.PoliciesEvaluated, result.Score)
	}
}

func TestEvaluate_Code(t *testing.T) {
	eng, _ := newTestEngine(t, policy.GetBuiltinPolicies(), nil)

	code := `resource "aws_db_instance" "main" {
  password = "hunter2"
}
resource "aws_security_group_rule" "all" {
  cidr_blocks = ["0.0.0.0/0"]
}`

	result, err := eng.Evaluate(context.Background(), Request{Code: &engine.CodeBlob{Code: code, Format: "terraform"}})
	if err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}

	var ids []string
	for _, v := range result.Violations {
		ids = append(ids, v.PolicyID)
		if v.Location != "code" || v.ResourceID != CodeResourceID {
			t.Errorf("Expected code location, got %+v", v)
		}
	}
	if want := []string{"code-001", "code-002"}; !reflect.DeepEqual(ids, want) {
		t.Errorf("Expected %v, got %v", want, ids)
	}
	if result.PoliciesEvaluated != 4 {
		t.Errorf("Expected 4 code policies evaluated, got %d", result.PoliciesEvaluated)
	}
	if result.Passed {
		t.Error("Expected code with a hardcoded secret to fail")
	}
}

func TestEvaluate_InvalidRequests(t *testing.T) {
	eng, _ := newTestEngine(t, policy.GetBuiltinPolicies(), nil)
	ctx := context.Background()

	tests := []struct {
		name string
		req  Request
	}{
		{"no target", Request{}},
		{"both targets", Request{Graph: &engine.ComponentGraph{}, Code: &engine.CodeBlob{Code: "x", Format: "hcl"}}},
		{"empty code", Request{Code: &engine.CodeBlob{Format: "hcl"}}},
		{"component without type", Request{Graph: &engine.ComponentGraph{Components: []engine.Component{{ID: "a"}}}}},
		{"duplicate component", Request{Graph: &engine.ComponentGraph{Components: []engine.Component{
			{ID: "a", Type: "database"}, {ID: "a", Type: "storage"},
		}}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := eng.Evaluate(ctx, tt.req)
			if !engine.IsInvalidRequest(err) {
				t.Errorf("Expected invalid request, got %v", err)
			}
		})
	}
}

type fakeBlueprints map[string]*engine.ComponentGraph

func (f fakeBlueprints) GetBlueprint(_ context.Context, id string) (*engine.ComponentGraph, error) {
	g, ok := f[id]
	if !ok {
		return nil, engine.NewNotFoundError("blueprint", id)
	}
	return g, nil
}

func TestEvaluate_BlueprintProvider(t *testing.T) {
	provider := fakeBlueprints{"bp-1": sampleGraph()}
	eng, _ := newTestEngine(t, policy.GetBuiltinPolicies(), func(o *Options) { o.Blueprints = provider })
	ctx := context.Background()

	result, err := eng.Evaluate(ctx, Request{BlueprintID: "bp-1"})
	if err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}
	if result.BlueprintID != "bp-1" || len(result.Violations) == 0 {
		t.Errorf("Expected violations for bp-1, got %+v", result)
	}

	_, err = eng.Evaluate(ctx, Request{BlueprintID: "missing"})
	if !engine.IsNotFound(err) {
		t.Errorf("Expected not found, got %v", err)
	}
}

type failingResults struct {
	*stores.MemoryStore
}

func (failingResults) SaveEvaluation(context.Context, *engine.EvaluationResult) error {
	return errors.New("disk full")
}

func (failingResults) AppendHistory(context.Context, engine.ComplianceHistoryPoint) error {
	return errors.New("disk full")
}

func TestEvaluate_StoreFailureDegrades(t *testing.T) {
	eng, _ := newTestEngine(t, []policy.Policy{encryptionPolicy()}, func(o *Options) {
		o.Results = failingResults{stores.NewMemoryStore()}
	})

	result, err := eng.Evaluate(context.Background(), Request{
		Graph: &engine.ComponentGraph{Components: []engine.Component{{ID: "db", Type: "database"}}},
	})
	if err != nil {
		t.Fatalf("Expected store failure not to fail evaluation, got %v", err)
	}
	if len(result.Violations) != 1 {
		t.Errorf("Expected 1 violation, got %d", len(result.Violations))
	}
}

func TestEvaluate_Stored(t *testing.T) {
	eng, _ := newTestEngine(t, []policy.Policy{encryptionPolicy()}, nil)
	ctx := context.Background()

	result, err := eng.Evaluate(ctx, Request{
		BlueprintID: "bp-1",
		Graph:       &engine.ComponentGraph{Components: []engine.Component{{ID: "db", Type: "database"}}},
	})
	if err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}

	stored, err := eng.GetEvaluation(ctx, result.ID)
	if err != nil {
		t.Fatalf("GetEvaluation failed: %v", err)
	}
	if stored.ID != result.ID {
		t.Errorf("Expected %s, got %s", result.ID, stored.ID)
	}

	if _, err := eng.GetEvaluation(ctx, "missing"); !engine.IsNotFound(err) {
		t.Errorf("Expected not found, got %v", err)
	}

	list, err := eng.GetEvaluations(ctx, "bp-1", 10)
	if err != nil {
		t.Fatalf("GetEvaluations failed: %v", err)
	}
	if len(list) != 1 {
		t.Errorf("Expected 1 evaluation, got %d", len(list))
	}
}

func TestAutoRemediate(t *testing.T) {
	eng, mem := newTestEngine(t, []policy.Policy{encryptionPolicy(), manualPolicy()}, nil)
	ctx := context.Background()

	result, err := eng.Evaluate(ctx, Request{
		Graph: &engine.ComponentGraph{Components: []engine.Component{
			{ID: "db", Type: "database", Properties: map[string]interface{}{"ingress_cidr": "0.0.0.0/0"}},
		}},
	})
	if err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}
	if result.Summary.Critical != 2 {
		t.Fatalf("Expected 2 critical violations, got %+v", result.Summary)
	}

	suggestions, err := eng.AutoRemediate(ctx, result.ID)
	if err != nil {
		t.Fatalf("AutoRemediate failed: %v", err)
	}
	if len(suggestions) != 1 {
		t.Fatalf("Expected 1 suggestion, got %d", len(suggestions))
	}
	s := suggestions[0]
	if s.PolicyID != "sec-001" {
		t.Errorf("Manual policy leaked into auto remediation: %+v", s)
	}
	if s.ActionType != engine.ActionTypeAdd {
		t.Errorf("Expected add for 'does not have', got %s", s.ActionType)
	}
	if s.EstimatedSeconds != 300 || !s.Executable || s.Code == "" {
		t.Errorf("Unexpected suggestion %+v", s)
	}

	// Explicit ids select regardless of remediation kind; unknown ids are skipped
	suggestions, err = eng.AutoRemediate(ctx, result.ID, "sec-010:db", "nope:db")
	if err != nil {
		t.Fatalf("AutoRemediate failed: %v", err)
	}
	if len(suggestions) != 1 || suggestions[0].Action != engine.ActionManual || suggestions[0].Executable {
		t.Errorf("Expected one manual suggestion, got %+v", suggestions)
	}
	if suggestions[0].ActionType != engine.ActionTypeRemove {
		t.Errorf("Expected remove for 'public', got %s", suggestions[0].ActionType)
	}

	audit, err := mem.ListAudit(ctx, result.ID, 0)
	if err != nil {
		t.Fatalf("ListAudit failed: %v", err)
	}
	if len(audit) != 2 {
		t.Fatalf("Expected 2 audit entries, got %d", len(audit))
	}
	if audit[0].Action != AuditRemediationSuggested {
		t.Errorf("Expected %s, got %s", AuditRemediationSuggested, audit[0].Action)
	}

	if _, err := eng.AutoRemediate(ctx, "missing"); !engine.IsNotFound(err) {
		t.Errorf("Expected not found, got %v", err)
	}
}

func TestGetComplianceScore(t *testing.T) {
	eng, _ := newTestEngine(t, []policy.Policy{encryptionPolicy(), manualPolicy()}, nil)
	ctx := context.Background()

	if _, err := eng.GetComplianceScore(ctx, "bp-1"); !engine.IsNotFound(err) {
		t.Errorf("Expected not found before any evaluation, got %v", err)
	}

	encrypted := map[string]interface{}{"encryption_enabled": true}
	graphs := []map[string]interface{}{
		encrypted,
		encrypted,
		{"encryption_enabled": false},
	}
	var lastID string
	for _, props := range graphs {
		result, err := eng.Evaluate(ctx, Request{
			BlueprintID: "bp-1",
			Graph:       &engine.ComponentGraph{Components: []engine.Component{{ID: "db", Type: "database", Properties: props}}},
		})
		if err != nil {
			t.Fatalf("Evaluate failed: %v", err)
		}
		lastID = result.ID
	}

	score, err := eng.GetComplianceScore(ctx, "bp-1")
	if err != nil {
		t.Fatalf("GetComplianceScore failed: %v", err)
	}
	// 2 policies, one critical: 100 - 100*10/20
	if score.Score != 50 {
		t.Errorf("Expected score 50, got %v", score.Score)
	}
	if score.Status != engine.StatusNonCompliant {
		t.Errorf("Expected non_compliant, got %s", score.Status)
	}
	if score.Trend != engine.TrendDeclining {
		t.Errorf("Expected declining trend, got %s", score.Trend)
	}
	if score.EvaluationID != lastID {
		t.Errorf("Expected latest evaluation %s, got %s", lastID, score.EvaluationID)
	}
}

func TestComplianceStatus(t *testing.T) {
	tests := []struct {
		score float64
		want  engine.ComplianceStatus
	}{
		{100, engine.StatusCompliant},
		{90, engine.StatusCompliant},
		{89.9, engine.StatusAtRisk},
		{70, engine.StatusAtRisk},
		{69, engine.StatusNonCompliant},
		{0, engine.StatusNonCompliant},
	}
	for _, tt := range tests {
		if got := ComplianceStatus(tt.score); got != tt.want {
			t.Errorf("ComplianceStatus(%v) = %s, want %s", tt.score, got, tt.want)
		}
	}
}

func TestPredict_RiskIncrease(t *testing.T) {
	eng, _ := newTestEngine(t, []policy.Policy{encryptionPolicy()}, nil)
	ctx := context.Background()

	components := make([]engine.Component, 12)
	for i := range components {
		components[i] = engine.Component{ID: fmt.Sprintf("db-%02d", i), Type: "database"}
	}

	result, err := eng.Evaluate(ctx, Request{BlueprintID: "bp-9", Graph: &engine.ComponentGraph{Components: components}})
	if err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}
	if len(result.Predictions) != 1 || result.Predictions[0].Type != engine.PredictionRiskIncrease {
		t.Fatalf("Expected risk_increase prediction on result, got %+v", result.Predictions)
	}

	preds, err := eng.Predict(ctx, "bp-9")
	if err != nil {
		t.Fatalf("Predict failed: %v", err)
	}
	if len(preds) != 1 || len(preds[0].AffectedResources) != 5 {
		t.Errorf("Expected risk_increase naming 5 resources, got %+v", preds)
	}
}

func TestDetectDrift(t *testing.T) {
	eng, _ := newTestEngine(t, nil, nil)
	ctx := context.Background()

	first, err := eng.DetectDrift(ctx, "r1", map[string]interface{}{"a": 1})
	if err != nil {
		t.Fatalf("DetectDrift failed: %v", err)
	}
	if first.HasDrift {
		t.Error("Expected no drift on first call")
	}

	second, err := eng.DetectDrift(ctx, "r1", map[string]interface{}{"a": 2})
	if err != nil {
		t.Fatalf("DetectDrift failed: %v", err)
	}
	if !second.HasDrift || second.DriftPercentage != 100 || !reflect.DeepEqual(second.ChangedProperties, []string{"a"}) {
		t.Errorf("Unexpected drift result %+v", second)
	}

	if _, err := eng.Rebaseline(ctx, "r1", map[string]interface{}{"a": 2}); err != nil {
		t.Fatalf("Rebaseline failed: %v", err)
	}
	third, err := eng.DetectDrift(ctx, "r1", map[string]interface{}{"a": 2})
	if err != nil {
		t.Fatalf("DetectDrift failed: %v", err)
	}
	if third.HasDrift {
		t.Error("Expected no drift after rebaseline")
	}
}

func TestNewEngine_RequiresCatalog(t *testing.T) {
	if _, err := NewEngine(nil, testLogger(), DefaultOptions()); err == nil {
		t.Error("Expected error without catalog")
	}

	catalog, err := policy.LoadCatalog(testLogger(), nil)
	if err != nil {
		t.Fatalf("LoadCatalog failed: %v", err)
	}
	opts := DefaultOptions()
	opts.Scoring.PerPolicyDeduction = -1
	if _, err := NewEngine(catalog, testLogger(), opts); err == nil {
		t.Error("Expected error for invalid scoring options")
	}
}

func TestEngine_ConcurrentCalls(t *testing.T) {
	eng, mem := newTestEngine(t, []policy.Policy{encryptionPolicy(), manualPolicy()}, nil)
	ctx := context.Background()

	const workers = 16
	ids := make([]string, workers)
	errs := make(chan error, workers*3)

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()

			result, err := eng.Evaluate(ctx, Request{
				BlueprintID: fmt.Sprintf("bp-%d", i),
				Graph: &engine.ComponentGraph{Components: []engine.Component{
					{ID: "db", Type: "database", Properties: map[string]interface{}{"encryption_enabled": false}},
				}},
			})
			if err != nil {
				errs <- fmt.Errorf("evaluate %d: %w", i, err)
				return
			}
			ids[i] = result.ID

			if _, err := eng.AutoRemediate(ctx, result.ID); err != nil {
				errs <- fmt.Errorf("remediate %d: %w", i, err)
			}

			state := map[string]interface{}{"size": i}
			if _, err := eng.DetectDrift(ctx, "shared", state); err != nil {
				errs <- fmt.Errorf("drift shared %d: %w", i, err)
			}
			if _, err := eng.DetectDrift(ctx, fmt.Sprintf("res-%d", i), state); err != nil {
				errs <- fmt.Errorf("drift %d: %w", i, err)
			}
		}(i)
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		t.Error(err)
	}

	results, err := mem.ListEvaluations(ctx, "", 0)
	if err != nil {
		t.Fatalf("ListEvaluations failed: %v", err)
	}
	if len(results) != workers {
		t.Errorf("Expected %d stored results, got %d", workers, len(results))
	}

	for i := 0; i < workers; i++ {
		history, err := mem.History(ctx, fmt.Sprintf("bp-%d", i), 0)
		if err != nil {
			t.Fatalf("History failed: %v", err)
		}
		if len(history) != 1 || history[0].EvaluationID != ids[i] {
			t.Errorf("Expected one history point for bp-%d tied to %s, got %+v", i, ids[i], history)
		}

		if _, err := mem.GetBaseline(ctx, fmt.Sprintf("res-%d", i)); err != nil {
			t.Errorf("Expected baseline for res-%d, got %v", i, err)
		}
	}

	audit, err := mem.ListAudit(ctx, "", 0)
	if err != nil {
		t.Fatalf("ListAudit failed: %v", err)
	}
	if len(audit) != workers {
		t.Errorf("Expected %d audit entries, got %d", workers, len(audit))
	}

	// Exactly one goroutine captured the shared baseline; later calls compare
	// against it rather than replacing it.
	shared, err := mem.GetBaseline(ctx, "shared")
	if err != nil {
		t.Fatalf("GetBaseline failed: %v", err)
	}
	result, err := eng.DetectDrift(ctx, "shared", shared.State)
	if err != nil {
		t.Fatalf("DetectDrift failed: %v", err)
	}
	if result.HasDrift {
		t.Errorf("Expected the stored shared baseline to compare equal to itself, got %+v", result)
	}
}
