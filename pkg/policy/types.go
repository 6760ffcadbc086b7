package policy

// Severity represents the severity level of a policy violation.
type Severity string

const (
	// SeverityCritical is for violations that must be addressed immediately.
	SeverityCritical Severity = "critical"

	// SeverityHigh is for violations that block a passing evaluation.
	SeverityHigh Severity = "high"

	// SeverityMedium is for violations that should be scheduled for a fix.
	SeverityMedium Severity = "medium"

	// SeverityLow is for minor deviations from best practice.
	SeverityLow Severity = "low"

	// SeverityInfo is for informational findings.
	SeverityInfo Severity = "info"
)

// Severities lists all severities from most to least severe.
var Severities = []Severity{SeverityCritical, SeverityHigh, SeverityMedium, SeverityLow, SeverityInfo}

// Category groups policies by concern.
type Category string

const (
	CategorySecurity    Category = "security"
	CategoryCompliance  Category = "compliance"
	CategoryCost        Category = "cost"
	CategoryOperational Category = "operational"
)

// Operator is the comparison a rule applies between a resolved value and its expected value.
type Operator string

const (
	OperatorEquals      Operator = "equals"
	OperatorNotEquals   Operator = "notEquals"
	OperatorContains    Operator = "contains"
	OperatorNotContains Operator = "notContains"
	OperatorMatches     Operator = "matches"
	OperatorGreaterThan Operator = "greaterThan"
	OperatorLessThan    Operator = "lessThan"
)

// RuleType distinguishes rules that can run against raw code.
type RuleType string

const (
	// RuleTypeProperty rules resolve ConditionPath against component properties.
	RuleTypeProperty RuleType = "property"

	// RuleTypeConfiguration rules with the matches operator treat ConditionPath
	// as a pattern scanned over raw infrastructure-as-code text.
	RuleTypeConfiguration RuleType = "configuration"
)

// RemediationKind describes how a violation can be corrected.
type RemediationKind string

const (
	RemediationAuto    RemediationKind = "auto"
	RemediationManual  RemediationKind = "manual"
	RemediationSuggest RemediationKind = "suggest"
)

// Rule is a single declarative condition.
type Rule struct {
	// Type is optional; see RuleTypeConfiguration.
	Type RuleType `json:"type,omitempty" yaml:"type,omitempty" validate:"omitempty,oneof=property configuration"`

	// ConditionPath is a dot-path into a component's properties map.
	ConditionPath string `json:"conditionPath" yaml:"conditionPath" validate:"required"`

	// Operator is the comparison to apply.
	Operator Operator `json:"operator" yaml:"operator" validate:"required,oneof=equals notEquals contains notContains matches greaterThan lessThan"`

	// ExpectedValue is the right-hand side of the comparison.
	ExpectedValue interface{} `json:"value,omitempty" yaml:"value,omitempty"`

	// Scope limits the rule to these component types. Empty means all types.
	Scope []string `json:"scope,omitempty" yaml:"scope,omitempty"`
}

// Remediation describes the corrective action for a policy.
type Remediation struct {
	Kind              RemediationKind        `json:"kind" yaml:"kind" validate:"required,oneof=auto manual suggest"`
	ActionDescription string                 `json:"actionDescription,omitempty" yaml:"actionDescription,omitempty"`
	Parameters        map[string]interface{} `json:"parameters,omitempty" yaml:"parameters,omitempty"`
}

// Policy is a named, versionless rule definition.
type Policy struct {
	// ID is the unique, stable identifier of the policy.
	ID string `json:"id" yaml:"id" validate:"required"`

	// Name is the human-readable policy name.
	Name string `json:"name" yaml:"name" validate:"required"`

	// Description explains what a violation means.
	Description string `json:"description" yaml:"description"`

	// Category groups the policy by concern.
	Category Category `json:"category" yaml:"category" validate:"required,oneof=security compliance cost operational"`

	// Severity is the severity assigned to every violation of this policy.
	Severity Severity `json:"severity" yaml:"severity" validate:"required,oneof=critical high medium low info"`

	// Enabled indicates if the policy runs in unscoped evaluations.
	Enabled bool `json:"enabled" yaml:"enabled"`

	// Rule is the condition that produces a violation when it holds.
	Rule Rule `json:"rule" yaml:"rule"`

	// Remediation is optional corrective guidance.
	Remediation *Remediation `json:"remediation,omitempty" yaml:"remediation,omitempty"`

	// Tags are labels for organizing policies.
	Tags []string `json:"tags,omitempty" yaml:"tags,omitempty"`
}

// AppliesTo reports whether the rule scope admits the given component type.
func (p *Policy) AppliesTo(componentType string) bool {
	if len(p.Rule.Scope) == 0 {
		return true
	}
	for _, s := range p.Rule.Scope {
		if s == componentType {
			return true
		}
	}
	return false
}

// AppliesToCode reports whether the policy can scan raw code blobs.
func (p *Policy) AppliesToCode() bool {
	return p.Rule.Type == RuleTypeConfiguration && p.Rule.Operator == OperatorMatches
}

// AutoRemediable reports whether the policy declares automatic remediation.
func (p *Policy) AutoRemediable() bool {
	return p.Remediation != nil && p.Remediation.Kind == RemediationAuto
}

// Pattern returns the regex pattern a matches rule uses, if any.
func (p *Policy) Pattern() (string, bool) {
	if p.Rule.Operator != OperatorMatches {
		return "", false
	}
	if p.Rule.Type == RuleTypeConfiguration {
		return p.Rule.ConditionPath, true
	}
	s, ok := p.Rule.ExpectedValue.(string)
	return s, ok
}

// clone returns a copy that shares no mutable slices or maps with p.
func (p *Policy) clone() Policy {
	c := *p
	if p.Rule.Scope != nil {
		c.Rule.Scope = append([]string(nil), p.Rule.Scope...)
	}
	if p.Tags != nil {
		c.Tags = append([]string(nil), p.Tags...)
	}
	if p.Remediation != nil {
		r := *p.Remediation
		if p.Remediation.Parameters != nil {
			r.Parameters = make(map[string]interface{}, len(p.Remediation.Parameters))
			for k, v := range p.Remediation.Parameters {
				r.Parameters[k] = v
			}
		}
		c.Remediation = &r
	}
	return c
}

// Bundle is a versioned collection of policy definitions in a single file.
type Bundle struct {
	Name        string   `json:"name" yaml:"name"`
	Version     string   `json:"version" yaml:"version"`
	Description string   `json:"description,omitempty" yaml:"description,omitempty"`
	Policies    []Policy `json:"policies" yaml:"policies"`
}

// Filter selects policies in Catalog.List. Zero fields match everything.
type Filter struct {
	Category Category
	Severity Severity
	Enabled  *bool
}

func (f Filter) match(p *Policy) bool {
	if f.Category != "" && p.Category != f.Category {
		return false
	}
	if f.Severity != "" && p.Severity != f.Severity {
		return false
	}
	if f.Enabled != nil && p.Enabled != *f.Enabled {
		return false
	}
	return true
}
