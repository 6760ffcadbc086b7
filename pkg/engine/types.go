package engine

import (
	"time"

	"github.com/openfroyo/guardrails/pkg/policy"
	"github.com/wI2L/jsondiff"
)

// Component is a single node of a blueprint.
type Component struct {
	// ID is the unique identifier of the component within its blueprint.
	ID string `json:"id" yaml:"id" validate:"required"`

	// Name is the human-readable component name.
	Name string `json:"name" yaml:"name"`

	// Type is the component type that policy scopes match against
	// (e.g. "database", "storage", "compute").
	Type string `json:"type" yaml:"type" validate:"required"`

	// Provider is the cloud or platform provider (e.g. "aws").
	Provider string `json:"provider,omitempty" yaml:"provider,omitempty"`

	// Properties is the free-form configuration rules resolve paths against.
	Properties map[string]interface{} `json:"properties,omitempty" yaml:"properties,omitempty"`
}

// Connection is an edge between two components. Evaluation ignores it.
type Connection struct {
	From string `json:"from" yaml:"from" validate:"required"`
	To   string `json:"to" yaml:"to" validate:"required"`
	Type string `json:"type,omitempty" yaml:"type,omitempty"`
}

// ComponentGraph is a structured blueprint.
type ComponentGraph struct {
	BlueprintID string       `json:"blueprintId,omitempty" yaml:"blueprintId,omitempty"`
	Name        string       `json:"name,omitempty" yaml:"name,omitempty"`
	Components  []Component  `json:"components" yaml:"components" validate:"dive"`
	Connections []Connection `json:"connections,omitempty" yaml:"connections,omitempty" validate:"dive"`
}

// CodeBlob is raw infrastructure-as-code text with its declared format.
type CodeBlob struct {
	Code   string `json:"code" validate:"required"`
	Format string `json:"format" validate:"required"`
}

// Violation is a policy failing against one target.
type Violation struct {
	// ID is deterministic: policyId:resourceId.
	ID               string          `json:"id"`
	PolicyID         string          `json:"policyId"`
	PolicyName       string          `json:"policyName"`
	Severity         policy.Severity `json:"severity"`
	Category         policy.Category `json:"category"`
	ResourceID       string          `json:"resourceId"`
	ResourceName     string          `json:"resourceName,omitempty"`
	ResourceType     string          `json:"resourceType,omitempty"`
	Location         string          `json:"location,omitempty"`
	Message          string          `json:"message"`
	Remediation      string          `json:"remediation,omitempty"`
	CanAutoRemediate bool            `json:"canAutoRemediate"`
}

// Summary counts violations per severity.
type Summary struct {
	Total    int `json:"total"`
	Critical int `json:"critical"`
	High     int `json:"high"`
	Medium   int `json:"medium"`
	Low      int `json:"low"`
	Info     int `json:"info"`
}

// Add counts one violation of the given severity.
func (s *Summary) Add(severity policy.Severity) {
	s.Total++
	switch severity {
	case policy.SeverityCritical:
		s.Critical++
	case policy.SeverityHigh:
		s.High++
	case policy.SeverityMedium:
		s.Medium++
	case policy.SeverityLow:
		s.Low++
	case policy.SeverityInfo:
		s.Info++
	}
}

// RemediationAction is whether a suggestion can be applied automatically.
type RemediationAction string

const (
	ActionAuto   RemediationAction = "auto"
	ActionManual RemediationAction = "manual"
)

// ActionType is the shape of the change a suggestion proposes.
type ActionType string

const (
	ActionTypeAdd    ActionType = "add"
	ActionTypeRemove ActionType = "remove"
	ActionTypeModify ActionType = "modify"
)

// RemediationSuggestion is a concrete corrective action for one violation.
type RemediationSuggestion struct {
	ID               string            `json:"id"`
	ViolationID      string            `json:"violationId"`
	PolicyID         string            `json:"policyId"`
	Action           RemediationAction `json:"action"`
	ActionType       ActionType        `json:"actionType"`
	Description      string            `json:"description"`
	Code             string            `json:"code,omitempty"`
	EstimatedSeconds int               `json:"estimatedSeconds"`
	Executable       bool              `json:"executable"`
}

// EvaluationResult is the outcome of one evaluation call. It is never
// mutated after it is stored.
type EvaluationResult struct {
	ID                string                  `json:"id"`
	BlueprintID       string                  `json:"blueprintId,omitempty"`
	Timestamp         time.Time               `json:"timestamp"`
	Passed            bool                    `json:"passed"`
	Score             float64                 `json:"score"`
	Violations        []Violation             `json:"violations"`
	Summary           Summary                 `json:"summary"`
	Remediations      []RemediationSuggestion `json:"remediations"`
	PoliciesEvaluated int                     `json:"policiesEvaluated"`
	Predictions       []Prediction            `json:"predictions,omitempty"`
}

// FindViolation returns the violation with the given id.
func (r *EvaluationResult) FindViolation(id string) (*Violation, bool) {
	for i := range r.Violations {
		if r.Violations[i].ID == id {
			return &r.Violations[i], true
		}
	}
	return nil, false
}

// ComplianceHistoryPoint is appended on every evaluation and never mutated.
type ComplianceHistoryPoint struct {
	EvaluationID   string    `json:"evaluationId"`
	BlueprintID    string    `json:"blueprintId,omitempty"`
	Timestamp      time.Time `json:"timestamp"`
	Score          float64   `json:"score"`
	ViolationCount int       `json:"violationCount"`
	CriticalCount  int       `json:"criticalCount"`
}

// DriftBaseline is the captured state of one resource.
type DriftBaseline struct {
	ResourceID string                 `json:"resourceId"`
	State      map[string]interface{} `json:"state"`
	CapturedAt time.Time              `json:"capturedAt"`
}

// RiskLevel grades drift.
type RiskLevel string

const (
	RiskLow      RiskLevel = "low"
	RiskMedium   RiskLevel = "medium"
	RiskHigh     RiskLevel = "high"
	RiskCritical RiskLevel = "critical"
)

// DriftResult is the comparison of a resource's current state against its baseline.
type DriftResult struct {
	ResourceID         string         `json:"resourceId"`
	HasDrift           bool           `json:"hasDrift"`
	DriftPercentage    float64        `json:"driftPercentage"`
	ChangedProperties  []string       `json:"changedProperties"`
	RiskLevel          RiskLevel      `json:"riskLevel"`
	Changes            jsondiff.Patch `json:"changes,omitempty"`
	BaselineCapturedAt time.Time      `json:"baselineCapturedAt"`
}

// PredictionType identifies the signal that raised a prediction.
type PredictionType string

const (
	PredictionComplianceDrift PredictionType = "compliance_drift"
	PredictionRiskIncrease    PredictionType = "risk_increase"
)

// Prediction is an advisory signal. Confidence values are fixed per type,
// not learned probabilities.
type Prediction struct {
	Type              PredictionType `json:"type"`
	Confidence        float64        `json:"confidence"`
	Description       string         `json:"description"`
	Timeframe         string         `json:"timeframe"`
	AffectedResources []string       `json:"affectedResources,omitempty"`
	Recommendations   []string       `json:"recommendations,omitempty"`
}

// ComplianceStatus buckets a compliance score.
type ComplianceStatus string

const (
	StatusCompliant    ComplianceStatus = "compliant"
	StatusAtRisk       ComplianceStatus = "at_risk"
	StatusNonCompliant ComplianceStatus = "non_compliant"
)

// TrendDirection summarizes recent score movement.
type TrendDirection string

const (
	TrendImproving TrendDirection = "improving"
	TrendDeclining TrendDirection = "declining"
	TrendStable    TrendDirection = "stable"
)

// ComplianceScore is the latest compliance standing of a blueprint.
type ComplianceScore struct {
	BlueprintID  string           `json:"blueprintId"`
	Score        float64          `json:"score"`
	Status       ComplianceStatus `json:"status"`
	Trend        TrendDirection   `json:"trend"`
	EvaluationID string           `json:"evaluationId"`
	EvaluatedAt  time.Time        `json:"evaluatedAt"`
}

// AuditEntry records an action taken on an evaluation.
type AuditEntry struct {
	ID           string                 `json:"id"`
	Timestamp    time.Time              `json:"timestamp"`
	Action       string                 `json:"action"`
	EvaluationID string                 `json:"evaluationId,omitempty"`
	ViolationID  string                 `json:"violationId,omitempty"`
	PolicyID     string                 `json:"policyId,omitempty"`
	Details      map[string]interface{} `json:"details,omitempty"`
}
