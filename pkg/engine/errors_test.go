package engine

import (
	"errors"
	"fmt"
	"testing"

	"github.com/openfroyo/guardrails/pkg/policy"
)

func TestEngineError_Is(t *testing.T) {
	notFound := NewNotFoundError("evaluation", "abc")
	wrapped := fmt.Errorf("lookup failed: %w", notFound)

	if !errors.Is(wrapped, ErrNotFound) {
		t.Error("Expected wrapped not-found error to match ErrNotFound")
	}
	if !IsNotFound(wrapped) {
		t.Error("Expected IsNotFound to be true")
	}
	if IsInvalidRequest(wrapped) {
		t.Error("Expected not-found error not to match ErrInvalidRequest")
	}

	invalid := NewValidationError("no target", nil)
	if !IsInvalidRequest(invalid) || IsNotFound(invalid) {
		t.Error("Expected validation error to match ErrInvalidRequest only")
	}

	if IsNotFound(errors.New("plain")) {
		t.Error("Expected plain error not to match")
	}
}

func TestEngineError_Message(t *testing.T) {
	tests := []struct {
		name string
		err  *EngineError
		want string
	}{
		{
			name: "not found",
			err:  NewNotFoundError("policy", "sec-001"),
			want: "[permanent] policy not found (resource=sec-001)",
		},
		{
			name: "wrapped cause",
			err:  NewTransientError("save failed", errors.New("database is locked")),
			want: "[transient] save failed: database is locked",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.want {
				t.Errorf("Expected %q, got %q", tt.want, got)
			}
		})
	}
}

func TestIsRetryable(t *testing.T) {
	if !IsRetryable(NewTransientError("x", nil)) {
		t.Error("Expected transient error to be retryable")
	}
	if !IsRetryable(NewConflictError("x", nil)) {
		t.Error("Expected conflict error to be retryable")
	}
	if IsRetryable(NewNotFoundError("evaluation", "x")) {
		t.Error("Expected not-found error not to be retryable")
	}
	if !IsTransient(fmt.Errorf("wrap: %w", NewTransientError("x", nil))) {
		t.Error("Expected wrapped transient error to be transient")
	}
}

func TestSummary_Add(t *testing.T) {
	var s Summary
	for _, sev := range policy.Severities {
		s.Add(sev)
	}
	s.Add(policy.SeverityCritical)

	want := Summary{Total: 6, Critical: 2, High: 1, Medium: 1, Low: 1, Info: 1}
	if s != want {
		t.Errorf("Expected %+v, got %+v", want, s)
	}
}

func TestEvaluationResult_FindViolation(t *testing.T) {
	r := &EvaluationResult{Violations: []Violation{{ID: "sec-001:db"}, {ID: "sec-002:bucket"}}}

	v, ok := r.FindViolation("sec-002:bucket")
	if !ok || v.ID != "sec-002:bucket" {
		t.Errorf("Expected to find sec-002:bucket, got %v %v", v, ok)
	}
	if _, ok := r.FindViolation("nope"); ok {
		t.Error("Expected unknown violation to be absent")
	}
}
