package stores

import "github.com/openfroyo/guardrails/pkg/engine"

// cloneState deep-copies a decoded JSON or YAML state document.
func cloneState(state map[string]interface{}) map[string]interface{} {
	if state == nil {
		return nil
	}
	out := make(map[string]interface{}, len(state))
	for k, v := range state {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v interface{}) interface{} {
	switch val := v.(type) {
	case map[string]interface{}:
		return cloneState(val)
	case []interface{}:
		out := make([]interface{}, len(val))
		for i, item := range val {
			out[i] = cloneValue(item)
		}
		return out
	default:
		return val
	}
}

func cloneBaseline(b engine.DriftBaseline) engine.DriftBaseline {
	b.State = cloneState(b.State)
	return b
}

func cloneStrings(s []string) []string {
	if s == nil {
		return nil
	}
	return append([]string(nil), s...)
}

// cloneEvaluation copies a result so that neither the store nor its callers
// can change the other's view of it.
func cloneEvaluation(r *engine.EvaluationResult) *engine.EvaluationResult {
	if r == nil {
		return nil
	}
	out := *r
	if r.Violations != nil {
		out.Violations = append([]engine.Violation(nil), r.Violations...)
	}
	if r.Remediations != nil {
		out.Remediations = append([]engine.RemediationSuggestion(nil), r.Remediations...)
	}
	if r.Predictions != nil {
		out.Predictions = make([]engine.Prediction, len(r.Predictions))
		for i, p := range r.Predictions {
			p.AffectedResources = cloneStrings(p.AffectedResources)
			p.Recommendations = cloneStrings(p.Recommendations)
			out.Predictions[i] = p
		}
	}
	return &out
}
