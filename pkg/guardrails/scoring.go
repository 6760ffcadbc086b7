package guardrails

import (
	"fmt"
	"math"

	"github.com/openfroyo/guardrails/pkg/engine"
)

// ScoringOptions holds the severity weights and the per-policy deduction cap.
type ScoringOptions struct {
	Critical float64 `mapstructure:"critical"`
	High     float64 `mapstructure:"high"`
	Medium   float64 `mapstructure:"medium"`
	Low      float64 `mapstructure:"low"`
	Info     float64 `mapstructure:"info"`

	// PerPolicyDeduction times the number of evaluated policies is the
	// weighted total that drives the score to zero.
	PerPolicyDeduction float64 `mapstructure:"per_policy_deduction"`
}

// DefaultScoringOptions returns weights 10/5/2/1/0.5 and a deduction of 10 per
// policy. Info keeps a small weight so any violation moves the score below 100.
func DefaultScoringOptions() ScoringOptions {
	return ScoringOptions{
		Critical:           10,
		High:               5,
		Medium:             2,
		Low:                1,
		Info:               0.5,
		PerPolicyDeduction: 10,
	}
}

// Validate rejects negative weights and a non-positive deduction.
func (o ScoringOptions) Validate() error {
	for name, w := range map[string]float64{
		"critical": o.Critical, "high": o.High, "medium": o.Medium, "low": o.Low, "info": o.Info,
	} {
		if w < 0 || math.IsNaN(w) {
			return fmt.Errorf("%s weight must be non-negative, got %v", name, w)
		}
	}
	if !(o.PerPolicyDeduction > 0) {
		return fmt.Errorf("per-policy deduction must be positive, got %v", o.PerPolicyDeduction)
	}
	return nil
}

// Weighted returns the severity-weighted violation total.
func (o ScoringOptions) Weighted(s engine.Summary) float64 {
	return o.Critical*float64(s.Critical) +
		o.High*float64(s.High) +
		o.Medium*float64(s.Medium) +
		o.Low*float64(s.Low) +
		o.Info*float64(s.Info)
}

// Score maps a summary to [0,100]. It is 100 when no policies were evaluated.
func Score(s engine.Summary, policiesEvaluated int, opts ScoringOptions) float64 {
	if policiesEvaluated <= 0 || opts.PerPolicyDeduction <= 0 {
		return 100
	}
	maxDeduction := opts.PerPolicyDeduction * float64(policiesEvaluated)
	weighted := math.Min(opts.Weighted(s), maxDeduction)
	return math.Max(0, 100-100*weighted/maxDeduction)
}
