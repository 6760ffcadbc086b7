package policy

// GetBuiltinPolicies returns all built-in policies in catalog order.
func GetBuiltinPolicies() []Policy {
	var policies []Policy
	policies = append(policies, securityPolicies()...)
	policies = append(policies, compliancePolicies()...)
	policies = append(policies, costPolicies()...)
	policies = append(policies, operationalPolicies()...)
	policies = append(policies, codePolicies()...)
	return policies
}

func auto(action string, params map[string]interface{}) *Remediation {
	return &Remediation{Kind: RemediationAuto, ActionDescription: action, Parameters: params}
}

func manual(action string) *Remediation {
	return &Remediation{Kind: RemediationManual, ActionDescription: action}
}

func suggest(action string) *Remediation {
	return &Remediation{Kind: RemediationSuggest, ActionDescription: action}
}

// securityPolicies covers encryption, exposure and transport security.
func securityPolicies() []Policy {
	return []Policy{
		{
			ID:          "sec-001",
			Name:        "Database Encryption at Rest",
			Description: "Database does not have encryption at rest enabled",
			Category:    CategorySecurity,
			Severity:    SeverityCritical,
			Enabled:     true,
			Rule: Rule{
				ConditionPath: "properties.encryption_enabled",
				Operator:      OperatorNotEquals,
				ExpectedValue: true,
				Scope:         []string{"database"},
			},
			Remediation: auto("Enable encryption at rest", map[string]interface{}{"encryption_enabled": true}),
			Tags:        []string{"encryption", "data-protection"},
		},
		{
			ID:          "sec-002",
			Name:        "Storage Public Access",
			Description: "Storage bucket allows public access",
			Category:    CategorySecurity,
			Severity:    SeverityCritical,
			Enabled:     true,
			Rule: Rule{
				ConditionPath: "properties.public_access",
				Operator:      OperatorEquals,
				ExpectedValue: true,
				Scope:         []string{"storage"},
			},
			Remediation: auto("Block public access", map[string]interface{}{"public_access": false}),
			Tags:        []string{"exposure"},
		},
		{
			ID:          "sec-003",
			Name:        "Storage Encryption",
			Description: "Storage bucket does not have server-side encryption",
			Category:    CategorySecurity,
			Severity:    SeverityHigh,
			Enabled:     true,
			Rule: Rule{
				ConditionPath: "properties.encryption_enabled",
				Operator:      OperatorNotEquals,
				ExpectedValue: true,
				Scope:         []string{"storage"},
			},
			Remediation: auto("Enable server-side encryption", map[string]interface{}{"encryption_enabled": true}),
			Tags:        []string{"encryption", "data-protection"},
		},
		{
			ID:          "sec-004",
			Name:        "Open Ingress",
			Description: "Security group allows public ingress from 0.0.0.0/0",
			Category:    CategorySecurity,
			Severity:    SeverityHigh,
			Enabled:     true,
			Rule: Rule{
				ConditionPath: "properties.ingress_cidr",
				Operator:      OperatorEquals,
				ExpectedValue: "0.0.0.0/0",
				Scope:         []string{"security_group", "firewall"},
			},
			Remediation: manual("Restrict ingress to known CIDR ranges"),
			Tags:        []string{"network", "exposure"},
		},
		{
			ID:          "sec-005",
			Name:        "Load Balancer TLS",
			Description: "Load balancer listener does not use TLS",
			Category:    CategorySecurity,
			Severity:    SeverityHigh,
			Enabled:     true,
			Rule: Rule{
				ConditionPath: "properties.protocol",
				Operator:      OperatorNotEquals,
				ExpectedValue: "HTTPS",
				Scope:         []string{"load_balancer"},
			},
			Remediation: auto("Switch listener protocol to HTTPS", map[string]interface{}{"protocol": "HTTPS"}),
			Tags:        []string{"network", "tls"},
		},
		{
			ID:          "sec-006",
			Name:        "Weak TLS Version",
			Description: "Endpoint accepts TLS versions older than 1.2",
			Category:    CategorySecurity,
			Severity:    SeverityMedium,
			Enabled:     true,
			Rule: Rule{
				ConditionPath: "properties.min_tls_version",
				Operator:      OperatorLessThan,
				ExpectedValue: 1.2,
			},
			Remediation: suggest("Set the minimum TLS version to 1.2"),
			Tags:        []string{"tls"},
		},
	}
}

// compliancePolicies covers audit, retention and resilience requirements.
func compliancePolicies() []Policy {
	return []Policy{
		{
			ID:          "comp-001",
			Name:        "Database Backup Retention",
			Description: "Database backup retention is shorter than 7 days",
			Category:    CategoryCompliance,
			Severity:    SeverityHigh,
			Enabled:     true,
			Rule: Rule{
				ConditionPath: "properties.backup_retention_days",
				Operator:      OperatorLessThan,
				ExpectedValue: 7,
				Scope:         []string{"database"},
			},
			Remediation: auto("Set backup retention to 7 days", map[string]interface{}{"backup_retention_days": 7}),
			Tags:        []string{"backup", "retention"},
		},
		{
			ID:          "comp-002",
			Name:        "Access Logging",
			Description: "Resource does not have access logging enabled",
			Category:    CategoryCompliance,
			Severity:    SeverityMedium,
			Enabled:     true,
			Rule: Rule{
				ConditionPath: "properties.logging_enabled",
				Operator:      OperatorNotEquals,
				ExpectedValue: true,
				Scope:         []string{"storage", "load_balancer"},
			},
			Remediation: auto("Enable access logging", map[string]interface{}{"logging_enabled": true}),
			Tags:        []string{"audit"},
		},
		{
			ID:          "comp-003",
			Name:        "Database Multi-AZ",
			Description: "Production database is not deployed across multiple availability zones",
			Category:    CategoryCompliance,
			Severity:    SeverityMedium,
			Enabled:     true,
			Rule: Rule{
				ConditionPath: "properties.multi_az",
				Operator:      OperatorNotEquals,
				ExpectedValue: true,
				Scope:         []string{"database"},
			},
			Remediation: manual("Enable multi-AZ deployment during a maintenance window"),
			Tags:        []string{"resilience"},
		},
		{
			ID:          "comp-004",
			Name:        "Required Owner Tag",
			Description: "Resource has an empty owner tag",
			Category:    CategoryCompliance,
			Severity:    SeverityLow,
			Enabled:     true,
			Rule: Rule{
				ConditionPath: "properties.tags.owner",
				Operator:      OperatorEquals,
				ExpectedValue: "",
			},
			Remediation: suggest("Set the owner tag to the owning team"),
			Tags:        []string{"tagging"},
		},
	}
}

// costPolicies flags oversized or wasteful resources.
func costPolicies() []Policy {
	return []Policy{
		{
			ID:          "cost-001",
			Name:        "Oversized Instance",
			Description: "Compute instance requests more than 64 vCPUs",
			Category:    CategoryCost,
			Severity:    SeverityLow,
			Enabled:     true,
			Rule: Rule{
				ConditionPath: "properties.vcpus",
				Operator:      OperatorGreaterThan,
				ExpectedValue: 64,
				Scope:         []string{"compute"},
			},
			Remediation: suggest("Right-size the instance"),
			Tags:        []string{"rightsizing"},
		},
		{
			ID:          "cost-002",
			Name:        "Previous Generation Instance",
			Description: "Compute instance uses a previous generation instance family",
			Category:    CategoryCost,
			Severity:    SeverityInfo,
			Enabled:     true,
			Rule: Rule{
				ConditionPath: "properties.instance_type",
				Operator:      OperatorMatches,
				ExpectedValue: `^(t2|m4|c4|r4)\.`,
				Scope:         []string{"compute"},
			},
			Remediation: suggest("Move to a current generation instance family"),
			Tags:        []string{"rightsizing"},
		},
	}
}

// operationalPolicies covers monitoring and lifecycle hygiene.
func operationalPolicies() []Policy {
	return []Policy{
		{
			ID:          "ops-001",
			Name:        "Detailed Monitoring",
			Description: "Compute instance does not have detailed monitoring enabled",
			Category:    CategoryOperational,
			Severity:    SeverityLow,
			Enabled:     true,
			Rule: Rule{
				ConditionPath: "properties.monitoring_enabled",
				Operator:      OperatorNotEquals,
				ExpectedValue: true,
				Scope:         []string{"compute", "database"},
			},
			Remediation: auto("Enable detailed monitoring", map[string]interface{}{"monitoring_enabled": true}),
			Tags:        []string{"observability"},
		},
		{
			ID:          "ops-002",
			Name:        "Deletion Protection",
			Description: "Database does not have deletion protection enabled",
			Category:    CategoryOperational,
			Severity:    SeverityMedium,
			Enabled:     false,
			Rule: Rule{
				ConditionPath: "properties.deletion_protection",
				Operator:      OperatorNotEquals,
				ExpectedValue: true,
				Scope:         []string{"database"},
			},
			Remediation: manual("Enable deletion protection"),
			Tags:        []string{"lifecycle"},
		},
	}
}

// codePolicies scan raw infrastructure-as-code text.
func codePolicies() []Policy {
	return []Policy{
		{
			ID:          "code-001",
			Name:        "Hardcoded Secret",
			Description: "Code contains a hardcoded password or secret; remove it and use a secret store",
			Category:    CategorySecurity,
			Severity:    SeverityCritical,
			Enabled:     true,
			Rule: Rule{
				Type:          RuleTypeConfiguration,
				ConditionPath: `(?i)(password|secret)\s*=\s*"[^"]+"`,
				Operator:      OperatorMatches,
			},
			Remediation: manual("Move the secret to a secret manager and reference it"),
			Tags:        []string{"secrets", "iac"},
		},
		{
			ID:          "code-002",
			Name:        "Open CIDR in Code",
			Description: "Code opens ingress to the public internet (0.0.0.0/0)",
			Category:    CategorySecurity,
			Severity:    SeverityHigh,
			Enabled:     true,
			Rule: Rule{
				Type:          RuleTypeConfiguration,
				ConditionPath: `0\.0\.0\.0/0`,
				Operator:      OperatorMatches,
			},
			Remediation: manual("Restrict the CIDR block"),
			Tags:        []string{"network", "iac"},
		},
		{
			ID:          "code-003",
			Name:        "Public Access ACL",
			Description: "Code grants a public-read ACL on a bucket",
			Category:    CategorySecurity,
			Severity:    SeverityHigh,
			Enabled:     true,
			Rule: Rule{
				Type:          RuleTypeConfiguration,
				ConditionPath: `acl\s*[=:]\s*"?public-read`,
				Operator:      OperatorMatches,
			},
			Remediation: auto("Set the bucket ACL to private", map[string]interface{}{"acl": "private"}),
			Tags:        []string{"exposure", "iac"},
		},
		{
			ID:          "code-004",
			Name:        "Unencrypted Volume in Code",
			Description: "Code declares a volume with encryption disabled",
			Category:    CategorySecurity,
			Severity:    SeverityMedium,
			Enabled:     true,
			Rule: Rule{
				Type:          RuleTypeConfiguration,
				ConditionPath: `encrypted\s*[=:]\s*false`,
				Operator:      OperatorMatches,
			},
			Remediation: auto("Enable volume encryption", map[string]interface{}{"encrypted": true}),
			Tags:        []string{"encryption", "iac"},
		},
	}
}
