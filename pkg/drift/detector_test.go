package drift

import (
	"context"
	"reflect"
	"testing"

	"github.com/rs/zerolog"

	"github.com/openfroyo/guardrails/pkg/engine"
	"github.com/openfroyo/guardrails/pkg/stores"
)

func newTestDetector() *Detector {
	return NewDetector(stores.NewMemoryStore(), zerolog.New(nil).Level(zerolog.Disabled), DefaultOptions())
}

func TestDetect_FirstCallCapturesBaseline(t *testing.T) {
	d := newTestDetector()
	ctx := context.Background()

	first, err := d.Detect(ctx, "r1", map[string]interface{}{"a": 1})
	if err != nil {
		t.Fatalf("Detect failed: %v", err)
	}
	if first.HasDrift {
		t.Error("Expected no drift on first observation")
	}
	if first.RiskLevel != engine.RiskLow {
		t.Errorf("Expected low risk, got %s", first.RiskLevel)
	}

	second, err := d.Detect(ctx, "r1", map[string]interface{}{"a": 2})
	if err != nil {
		t.Fatalf("Detect failed: %v", err)
	}
	if !second.HasDrift {
		t.Error("Expected drift on changed value")
	}
	if !reflect.DeepEqual(second.ChangedProperties, []string{"a"}) {
		t.Errorf("Expected changed [a], got %v", second.ChangedProperties)
	}
	if second.DriftPercentage != 100 {
		t.Errorf("Expected 100%% drift, got %v", second.DriftPercentage)
	}
	if second.RiskLevel != engine.RiskCritical {
		t.Errorf("Expected critical risk at 100%%, got %s", second.RiskLevel)
	}
	if len(second.Changes) == 0 {
		t.Error("Expected a JSON patch describing the change")
	}
	if !second.BaselineCapturedAt.Equal(first.BaselineCapturedAt) {
		t.Error("Expected baseline timestamp to be unchanged")
	}
}

func TestDetect_CallerMutationDoesNotMoveBaseline(t *testing.T) {
	d := newTestDetector()
	ctx := context.Background()

	state := map[string]interface{}{"a": 1}
	if _, err := d.Detect(ctx, "r1", state); err != nil {
		t.Fatalf("Detect failed: %v", err)
	}

	state["a"] = 2
	result, err := d.Detect(ctx, "r1", state)
	if err != nil {
		t.Fatalf("Detect failed: %v", err)
	}
	if !result.HasDrift {
		t.Error("Expected drift after the caller changed its state map")
	}
	if !reflect.DeepEqual(result.ChangedProperties, []string{"a"}) {
		t.Errorf("Expected changed [a], got %v", result.ChangedProperties)
	}
	if result.DriftPercentage != 100 {
		t.Errorf("Expected 100%% drift, got %v", result.DriftPercentage)
	}
}

func TestDetect_BaselineNotRefreshed(t *testing.T) {
	d := newTestDetector()
	ctx := context.Background()

	_, _ = d.Detect(ctx, "r1", map[string]interface{}{"a": 1})
	_, _ = d.Detect(ctx, "r1", map[string]interface{}{"a": 2})

	// Still compared against the original baseline
	third, err := d.Detect(ctx, "r1", map[string]interface{}{"a": 2})
	if err != nil {
		t.Fatalf("Detect failed: %v", err)
	}
	if !third.HasDrift {
		t.Error("Expected drift to persist until rebaseline")
	}

	back, err := d.Detect(ctx, "r1", map[string]interface{}{"a": 1.0})
	if err != nil {
		t.Fatalf("Detect failed: %v", err)
	}
	if back.HasDrift {
		t.Errorf("Expected no drift when state returns to baseline, got %v", back.ChangedProperties)
	}
}

func TestRebaseline(t *testing.T) {
	d := newTestDetector()
	ctx := context.Background()

	_, _ = d.Detect(ctx, "r1", map[string]interface{}{"a": 1})

	if _, err := d.Rebaseline(ctx, "r1", map[string]interface{}{"a": 2}); err != nil {
		t.Fatalf("Rebaseline failed: %v", err)
	}

	result, err := d.Detect(ctx, "r1", map[string]interface{}{"a": 2})
	if err != nil {
		t.Fatalf("Detect failed: %v", err)
	}
	if result.HasDrift {
		t.Error("Expected no drift after rebaseline")
	}

	if _, err := d.Rebaseline(ctx, "", nil); !engine.IsInvalidRequest(err) {
		t.Errorf("Expected invalid request for empty id, got %v", err)
	}
}

func TestDetect_EmptyResourceID(t *testing.T) {
	d := newTestDetector()
	if _, err := d.Detect(context.Background(), "", map[string]interface{}{}); !engine.IsInvalidRequest(err) {
		t.Errorf("Expected invalid request, got %v", err)
	}
}

func TestChangedKeys(t *testing.T) {
	tests := []struct {
		name     string
		baseline map[string]interface{}
		current  map[string]interface{}
		want     []string
	}{
		{"identical", map[string]interface{}{"a": 1}, map[string]interface{}{"a": 1}, []string{}},
		{"numeric normalization", map[string]interface{}{"a": float64(1)}, map[string]interface{}{"a": 1}, []string{}},
		{"changed", map[string]interface{}{"a": 1, "b": "x"}, map[string]interface{}{"a": 1, "b": "y"}, []string{"b"}},
		{"removed", map[string]interface{}{"a": 1, "b": 2}, map[string]interface{}{"a": 1}, []string{"b"}},
		{"added", map[string]interface{}{"a": 1}, map[string]interface{}{"a": 1, "c": 3}, []string{"c"}},
		{"nested", map[string]interface{}{"n": map[string]interface{}{"x": 1}}, map[string]interface{}{"n": map[string]interface{}{"x": 2}}, []string{"n"}},
		{"sorted", map[string]interface{}{"z": 1, "a": 1}, map[string]interface{}{"z": 2, "a": 2}, []string{"a", "z"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ChangedKeys(tt.baseline, tt.current)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Expected %v, got %v", tt.want, got)
			}
		})
	}
}

func TestPercentage(t *testing.T) {
	tests := []struct {
		changed, baseline int
		want              float64
	}{
		{0, 0, 0},
		{1, 0, 100},
		{0, 4, 0},
		{1, 4, 25},
		{3, 2, 100},
	}

	for _, tt := range tests {
		if got := Percentage(tt.changed, tt.baseline); got != tt.want {
			t.Errorf("Percentage(%d, %d) = %v, want %v", tt.changed, tt.baseline, got, tt.want)
		}
	}
}

func TestRiskLevel(t *testing.T) {
	opts := DefaultOptions()

	tests := []struct {
		name       string
		percentage float64
		changed    []string
		want       engine.RiskLevel
	}{
		{"low", 10, []string{"a"}, engine.RiskLow},
		{"medium", 10.5, []string{"a"}, engine.RiskMedium},
		{"high", 30, []string{"a"}, engine.RiskHigh},
		{"critical by percentage", 51, []string{"a"}, engine.RiskCritical},
		{"boundary is not critical", 50, []string{"a"}, engine.RiskHigh},
		{"critical property", 5, []string{"encryption"}, engine.RiskCritical},
		{"iam roles", 1, []string{"x", "iam_roles"}, engine.RiskCritical},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := opts.RiskLevel(tt.percentage, tt.changed); got != tt.want {
				t.Errorf("Expected %s, got %s", tt.want, got)
			}
		})
	}
}
