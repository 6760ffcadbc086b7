package policy

import (
	"testing"

	"github.com/rs/zerolog"
)

func TestResolve(t *testing.T) {
	props := map[string]interface{}{
		"encryption_enabled": false,
		"tags": map[string]interface{}{
			"owner": "platform",
		},
		"labels": map[string]string{"env": "prod"},
		"port":   443,
	}

	tests := []struct {
		name string
		path string
		want interface{}
	}{
		{"top level", "encryption_enabled", false},
		{"with prefix", "properties.encryption_enabled", false},
		{"nested", "properties.tags.owner", "platform"},
		{"string map", "labels.env", "prod"},
		{"number", "port", 443},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Resolve(props, tt.path)
			if got != tt.want {
				t.Errorf("Resolve(%q) = %v, want %v", tt.path, got, tt.want)
			}
		})
	}

	missing := []string{"absent", "tags.team", "port.value", "tags.owner.name", "", "properties."}
	for _, path := range missing {
		if got := Resolve(props, path); !IsMissing(got) {
			t.Errorf("Resolve(%q) = %v, want Missing", path, got)
		}
	}

	if !IsMissing(Resolve(nil, "a")) {
		t.Error("Expected Missing for nil properties")
	}
}

func TestEvaluate(t *testing.T) {
	e := NewEvaluator(zerolog.New(nil).Level(zerolog.Disabled))

	tests := []struct {
		name     string
		value    interface{}
		operator Operator
		expected interface{}
		want     bool
	}{
		{"equals bool", true, OperatorEquals, true, true},
		{"equals json number vs int", float64(1), OperatorEquals, 1, true},
		{"equals string", "a", OperatorEquals, "a", true},
		{"equals type mismatch", "1", OperatorEquals, 1, false},
		{"equals nil", nil, OperatorEquals, nil, true},
		{"equals missing", Missing, OperatorEquals, Missing, false},
		{"equals slice", []interface{}{"a"}, OperatorEquals, []interface{}{"a"}, true},
		{"notEquals bool", false, OperatorNotEquals, true, true},
		{"notEquals same", true, OperatorNotEquals, true, false},
		{"notEquals missing", Missing, OperatorNotEquals, true, true},
		{"contains", "hello world", OperatorContains, "world", true},
		{"contains absent", "hello", OperatorContains, "world", false},
		{"contains non-string value", 42, OperatorContains, "4", false},
		{"contains non-string expected", "42", OperatorContains, 4, false},
		{"notContains", "hello", OperatorNotContains, "world", true},
		{"notContains non-string", 42, OperatorNotContains, "x", false},
		{"notContains missing", Missing, OperatorNotContains, "x", false},
		{"matches", "m4.large", OperatorMatches, `^(t2|m4)\.`, true},
		{"matches miss", "m5.large", OperatorMatches, `^(t2|m4)\.`, false},
		{"matches unsafe fails closed", "aaaa", OperatorMatches, "(a+)+", false},
		{"matches invalid fails closed", "a", OperatorMatches, "[", false},
		{"matches non-string", 1, OperatorMatches, "1", false},
		{"greaterThan", 65, OperatorGreaterThan, 64, true},
		{"greaterThan equal", 64, OperatorGreaterThan, 64, false},
		{"greaterThan numeric string", "100", OperatorGreaterThan, 64, true},
		{"greaterThan bool", true, OperatorGreaterThan, 0, true},
		{"greaterThan nil", nil, OperatorGreaterThan, -1, true},
		{"greaterThan non-numeric", "abc", OperatorGreaterThan, 0, false},
		{"greaterThan missing", Missing, OperatorGreaterThan, 0, false},
		{"lessThan", 1.1, OperatorLessThan, 1.2, true},
		{"lessThan non-numeric", "abc", OperatorLessThan, 10, false},
		{"lessThan map", map[string]interface{}{}, OperatorLessThan, 10, false},
		{"lessThan missing", Missing, OperatorLessThan, 7, false},
		{"unknown operator", 1, Operator("between"), 1, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := e.Evaluate(tt.value, tt.operator, tt.expected); got != tt.want {
				t.Errorf("Evaluate(%v, %s, %v) = %v, want %v", tt.value, tt.operator, tt.expected, got, tt.want)
			}
		})
	}
}

func TestEvaluate_UnsafePatternCallback(t *testing.T) {
	var rejected []string
	e := &Evaluator{OnUnsafePattern: func(p string) { rejected = append(rejected, p) }}

	if e.Evaluate("aaaa", OperatorMatches, "(a*)*") {
		t.Error("Expected unsafe pattern to evaluate as no match")
	}
	if len(rejected) != 1 || rejected[0] != "(a*)*" {
		t.Errorf("Expected one rejected pattern, got %v", rejected)
	}

	if !e.Evaluate("abc", OperatorMatches, "^[a-z]+$") {
		t.Error("Expected safe pattern to match")
	}
	if len(rejected) != 1 {
		t.Errorf("Expected callback not to fire for safe pattern, got %v", rejected)
	}
}
