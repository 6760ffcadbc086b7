package guardrails

import (
	"context"
	"fmt"
	"strings"

	"github.com/openfroyo/guardrails/pkg/engine"
	"github.com/openfroyo/guardrails/pkg/policy"
	"github.com/openfroyo/guardrails/pkg/telemetry"
)

// AuditRemediationSuggested is the audit action recorded for each suggestion.
const AuditRemediationSuggested = "remediation.suggested"

// actionKeywords maps message keywords to action types; the first hit wins.
var actionKeywords = []struct {
	keyword string
	action  engine.ActionType
}{
	{"missing", engine.ActionTypeAdd},
	{"not have", engine.ActionTypeAdd},
	{"public", engine.ActionTypeRemove},
	{"remove", engine.ActionTypeRemove},
}

// estimatedSeconds is the effort estimate per severity.
var estimatedSeconds = map[policy.Severity]int{
	policy.SeverityCritical: 300,
	policy.SeverityHigh:     180,
	policy.SeverityMedium:   60,
	policy.SeverityLow:      30,
	policy.SeverityInfo:     30,
}

// snippetTemplates are keyed by a policy-name substring; the first match wins.
// %[1]s is the resource id.
var snippetTemplates = []struct {
	nameContains string
	template     string
}{
	{"Encryption", "# %[1]s\nproperties:\n  encryption_enabled: true\n"},
	{"Public Access", "# %[1]s\nproperties:\n  public_access: false\n"},
	{"Backup", "# %[1]s\nproperties:\n  backup_retention_days: 7\n"},
	{"Logging", "# %[1]s\nproperties:\n  logging_enabled: true\n"},
	{"Multi-AZ", "# %[1]s\nproperties:\n  multi_az: true\n"},
	{"TLS", "# %[1]s\nproperties:\n  protocol: HTTPS\n  min_tls_version: 1.2\n"},
	{"Tag", "# %[1]s\nproperties:\n  tags:\n    owner: <team>\n"},
	{"Monitoring", "# %[1]s\nproperties:\n  monitoring_enabled: true\n"},
}

// ActionTypeFor infers the change shape from a violation message.
func ActionTypeFor(message string) engine.ActionType {
	lower := strings.ToLower(message)
	for _, k := range actionKeywords {
		if strings.Contains(lower, k.keyword) {
			return k.action
		}
	}
	return engine.ActionTypeModify
}

// EstimatedSeconds returns the effort estimate for a severity.
func EstimatedSeconds(severity policy.Severity) int {
	if s, ok := estimatedSeconds[severity]; ok {
		return s
	}
	return 30
}

// Snippet returns the generated fix for a policy name, or "" when no template matches.
func Snippet(policyName, resourceID string) string {
	for _, t := range snippetTemplates {
		if strings.Contains(policyName, t.nameContains) {
			return fmt.Sprintf(t.template, resourceID)
		}
	}
	return ""
}

// Suggest synthesizes the remediation suggestion for one violation.
func Suggest(v *engine.Violation) engine.RemediationSuggestion {
	action := engine.ActionManual
	if v.CanAutoRemediate {
		action = engine.ActionAuto
	}

	description := v.Remediation
	if description == "" {
		description = "Resolve: " + v.Message
	}

	return engine.RemediationSuggestion{
		ID:               "rem:" + v.ID,
		ViolationID:      v.ID,
		PolicyID:         v.PolicyID,
		Action:           action,
		ActionType:       ActionTypeFor(v.Message),
		Description:      description,
		Code:             Snippet(v.PolicyName, v.ResourceID),
		EstimatedSeconds: EstimatedSeconds(v.Severity),
		Executable:       action == engine.ActionAuto,
	}
}

// autoCandidates returns the violations whose policy declares auto remediation.
func autoCandidates(result *engine.EvaluationResult) []*engine.Violation {
	var out []*engine.Violation
	for i := range result.Violations {
		if result.Violations[i].CanAutoRemediate {
			out = append(out, &result.Violations[i])
		}
	}
	return out
}

func suggestAll(candidates []*engine.Violation) []engine.RemediationSuggestion {
	suggestions := make([]engine.RemediationSuggestion, 0, len(candidates))
	for _, v := range candidates {
		suggestions = append(suggestions, Suggest(v))
	}
	return suggestions
}

// AutoRemediate returns suggestions for a stored evaluation. Without ids, only
// violations of auto-remediable policies are candidates. With ids, the named
// violations are candidates whatever their remediation kind, and unknown ids
// are skipped. Each suggestion is written to the audit sink.
func (e *Engine) AutoRemediate(ctx context.Context, evaluationID string, violationIDs ...string) ([]engine.RemediationSuggestion, error) {
	if evaluationID == "" {
		return nil, engine.NewValidationError("evaluation id is required", nil)
	}

	result, err := e.results.GetEvaluation(ctx, evaluationID)
	if err != nil {
		return nil, err
	}

	log := telemetry.WithEvaluation(e.logger, evaluationID)

	var candidates []*engine.Violation
	if len(violationIDs) == 0 {
		candidates = autoCandidates(result)
	} else {
		seen := make(map[string]struct{}, len(violationIDs))
		for _, id := range violationIDs {
			if _, dup := seen[id]; dup {
				continue
			}
			seen[id] = struct{}{}

			v, ok := result.FindViolation(id)
			if !ok {
				log.Warn().Str("violation_id", id).Msg("Skipping unknown violation id")
				continue
			}
			candidates = append(candidates, v)
		}
	}

	suggestions := suggestAll(candidates)

	for i := range suggestions {
		s := &suggestions[i]
		entry := engine.AuditEntry{
			ID:           e.newID(),
			Timestamp:    e.now().UTC(),
			Action:       AuditRemediationSuggested,
			EvaluationID: evaluationID,
			ViolationID:  s.ViolationID,
			PolicyID:     s.PolicyID,
			Details: map[string]interface{}{
				"suggestion_id": s.ID,
				"action":        string(s.Action),
				"action_type":   string(s.ActionType),
			},
		}
		if err := e.audit.RecordAudit(ctx, entry); err != nil {
			log.Error().Err(err).Str("violation_id", s.ViolationID).Msg("Failed to record remediation audit")
			e.metrics.RecordStoreError("audit")
		}

		log.Info().
			Str("violation_id", s.ViolationID).
			Str("policy_id", s.PolicyID).
			Str("action", string(s.Action)).
			Str("action_type", string(s.ActionType)).
			Msg("Remediation suggested")
	}

	e.metrics.RecordRemediations(len(suggestions))
	return suggestions, nil
}
