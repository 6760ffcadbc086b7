// Package trend computes linear trends over compliance history and raises
// advisory predictions from them.
//
// Prediction confidences are fixed per prediction type. They are hand-set
// constants, not learned probabilities, and are exposed in Options so they
// can be tuned without code changes.
package trend

import (
	"fmt"
	"math"
	"sort"

	"github.com/openfroyo/guardrails/pkg/engine"
)

// Slope returns the ordinary least-squares slope of series against its index.
// It returns 0 for fewer than two points or a degenerate denominator.
func Slope(series []float64) float64 {
	if len(series) < 2 {
		return 0
	}

	// Linear regression: y = mx + b over x = 0..n-1
	n := float64(len(series))
	var sumX, sumY, sumXY, sumX2 float64
	for i, y := range series {
		x := float64(i)
		sumX += x
		sumY += y
		sumXY += x * y
		sumX2 += x * x
	}

	denominator := n*sumX2 - sumX*sumX
	if denominator == 0 {
		return 0
	}
	slope := (n*sumXY - sumX*sumY) / denominator
	if math.IsNaN(slope) || math.IsInf(slope, 0) {
		return 0
	}
	return slope
}

// Direction classifies a slope. Slopes within epsilon of zero are stable.
func Direction(slope, epsilon float64) engine.TrendDirection {
	switch {
	case slope > epsilon:
		return engine.TrendImproving
	case slope < -epsilon:
		return engine.TrendDeclining
	default:
		return engine.TrendStable
	}
}

// Options holds the prediction constants.
type Options struct {
	// Window is how many recent scores the compliance trend considers.
	Window int `mapstructure:"window" validate:"gte=2"`
	// MinPoints is the fewest scores needed before a trend is trusted.
	MinPoints int `mapstructure:"min_points" validate:"gte=2"`
	// SlopeThreshold raises compliance_drift when the slope is at or below it.
	SlopeThreshold float64 `mapstructure:"slope_threshold"`
	// DriftConfidence is the fixed confidence of compliance_drift.
	DriftConfidence float64 `mapstructure:"drift_confidence" validate:"gte=0,lte=1"`

	// ViolationThreshold raises risk_increase when the violation count exceeds it.
	ViolationThreshold int `mapstructure:"violation_threshold" validate:"gte=0"`
	// RiskConfidence is the fixed confidence of risk_increase.
	RiskConfidence float64 `mapstructure:"risk_confidence" validate:"gte=0,lte=1"`
	// TopResources caps the affected resources named by risk_increase.
	TopResources int `mapstructure:"top_resources" validate:"gte=1"`

	// StableEpsilon is the slope band treated as stable by Direction.
	StableEpsilon float64 `mapstructure:"stable_epsilon" validate:"gte=0"`
}

// DefaultOptions returns the default prediction constants.
func DefaultOptions() Options {
	return Options{
		Window:             10,
		MinPoints:          3,
		SlopeThreshold:     -2.0,
		DriftConfidence:    0.78,
		ViolationThreshold: 10,
		RiskConfidence:     0.87,
		TopResources:       5,
		StableEpsilon:      0.5,
	}
}

var driftRecommendations = []string{
	"Review infrastructure changes merged since the score started declining",
	"Fix critical and high severity violations first",
	"Enable auto-remediation for eligible policies",
	"Add policy evaluation to the deployment pipeline",
}

var riskRecommendations = []string{
	"Prioritize remediation of the affected resources",
	"Apply available auto-remediations",
	"Re-evaluate after remediation to confirm the risk is reduced",
}

// Predictor raises advisory predictions from history and current violations.
type Predictor struct {
	opts Options
}

// NewPredictor creates a predictor.
func NewPredictor(opts Options) *Predictor {
	return &Predictor{opts: opts}
}

// Options returns the predictor's constants.
func (p *Predictor) Options() Options {
	return p.opts
}

// Scores extracts the score series from history, keeping at most the last window points.
func Scores(history []engine.ComplianceHistoryPoint, window int) []float64 {
	if window > 0 && len(history) > window {
		history = history[len(history)-window:]
	}
	scores := make([]float64, len(history))
	for i, h := range history {
		scores[i] = h.Score
	}
	return scores
}

// Predict returns the predictions raised by history (oldest first) and the
// current violations. The result is never nil.
func (p *Predictor) Predict(history []engine.ComplianceHistoryPoint, violations []engine.Violation) []engine.Prediction {
	predictions := []engine.Prediction{}

	scores := Scores(history, p.opts.Window)
	if len(scores) >= p.opts.MinPoints {
		slope := Slope(scores)
		if slope <= p.opts.SlopeThreshold {
			predictions = append(predictions, engine.Prediction{
				Type:       engine.PredictionComplianceDrift,
				Confidence: p.opts.DriftConfidence,
				Description: fmt.Sprintf("Compliance score is declining by %.1f points per evaluation over the last %d evaluations",
					-slope, len(scores)),
				Timeframe:       "next 7 days",
				Recommendations: append([]string(nil), driftRecommendations...),
			})
		}
	}

	if len(violations) > p.opts.ViolationThreshold {
		predictions = append(predictions, engine.Prediction{
			Type:       engine.PredictionRiskIncrease,
			Confidence: p.opts.RiskConfidence,
			Description: fmt.Sprintf("%d active violations exceed the risk threshold of %d",
				len(violations), p.opts.ViolationThreshold),
			Timeframe:         "next 24 hours",
			AffectedResources: TopResources(violations, p.opts.TopResources),
			Recommendations:   append([]string(nil), riskRecommendations...),
		})
	}

	return predictions
}

// TopResources returns up to n resource ids ordered by violation count,
// then by id.
func TopResources(violations []engine.Violation, n int) []string {
	counts := make(map[string]int)
	for _, v := range violations {
		counts[v.ResourceID]++
	}

	ids := make([]string, 0, len(counts))
	for id := range counts {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		if counts[ids[i]] != counts[ids[j]] {
			return counts[ids[i]] > counts[ids[j]]
		}
		return ids[i] < ids[j]
	})

	if n > 0 && len(ids) > n {
		ids = ids[:n]
	}
	return ids
}
