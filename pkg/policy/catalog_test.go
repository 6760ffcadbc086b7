package policy

import (
	"errors"
	"testing"

	"github.com/rs/zerolog"
)

func testPolicy(id string) Policy {
	return Policy{
		ID:       id,
		Name:     "Policy " + id,
		Category: CategorySecurity,
		Severity: SeverityHigh,
		Enabled:  true,
		Rule: Rule{
			ConditionPath: "properties.enabled",
			Operator:      OperatorEquals,
			ExpectedValue: true,
		},
	}
}

func TestLoadCatalog_Builtin(t *testing.T) {
	logger := zerolog.New(nil).Level(zerolog.Disabled)
	defs := GetBuiltinPolicies()

	catalog, err := LoadCatalog(logger, defs)
	if err != nil {
		t.Fatalf("Failed to load built-in policies: %v", err)
	}

	if catalog.Loaded() != len(defs) {
		t.Errorf("Expected %d policies loaded, got %d (rejected: %v)", len(defs), catalog.Loaded(), catalog.Rejected())
	}

	p, ok := catalog.Get("sec-001")
	if !ok {
		t.Fatal("Expected sec-001 in catalog")
	}
	if p.Severity != SeverityCritical {
		t.Errorf("Expected sec-001 to be critical, got %s", p.Severity)
	}
}

func TestLoadCatalog_SkipsUnsafePatterns(t *testing.T) {
	logger := zerolog.New(nil).Level(zerolog.Disabled)

	unsafeStructured := testPolicy("unsafe-1")
	unsafeStructured.Rule.Operator = OperatorMatches
	unsafeStructured.Rule.ExpectedValue = "(a+)+"

	unsafeCode := testPolicy("unsafe-2")
	unsafeCode.Rule = Rule{Type: RuleTypeConfiguration, ConditionPath: "(x|.*)*", Operator: OperatorMatches}

	nonString := testPolicy("unsafe-3")
	nonString.Rule.Operator = OperatorMatches
	nonString.Rule.ExpectedValue = 42

	safe := testPolicy("safe-1")
	safe.Rule.Operator = OperatorMatches
	safe.Rule.ExpectedValue = "^[a-z]+$"

	catalog, err := LoadCatalog(logger, []Policy{unsafeStructured, safe, unsafeCode, nonString})
	if err != nil {
		t.Fatalf("Expected unsafe policies to be skipped, got error: %v", err)
	}

	if catalog.Loaded() != 1 {
		t.Errorf("Expected 1 policy loaded, got %d", catalog.Loaded())
	}
	for _, p := range catalog.List(Filter{}) {
		if p.ID != "safe-1" {
			t.Errorf("Unexpected policy %s in catalog", p.ID)
		}
	}

	rejected := catalog.Rejected()
	if len(rejected) != 3 {
		t.Fatalf("Expected 3 rejections, got %d", len(rejected))
	}
	want := map[string]string{
		"unsafe-1": ReasonUnsafePattern,
		"unsafe-2": ReasonUnsafePattern,
		"unsafe-3": ReasonInvalid,
	}
	for _, r := range rejected {
		if want[r.PolicyID] != r.Reason {
			t.Errorf("Expected %s rejected as %s, got %s", r.PolicyID, want[r.PolicyID], r.Reason)
		}
	}
}

func TestLoadCatalog_SkipsInvalidDefinitions(t *testing.T) {
	logger := zerolog.New(nil).Level(zerolog.Disabled)

	noID := testPolicy("")
	badSeverity := testPolicy("bad-sev")
	badSeverity.Severity = "urgent"
	badOperator := testPolicy("bad-op")
	badOperator.Rule.Operator = "between"
	badRemediation := testPolicy("bad-rem")
	badRemediation.Remediation = &Remediation{Kind: "later"}

	catalog, err := LoadCatalog(logger, []Policy{noID, badSeverity, testPolicy("ok"), badOperator, badRemediation})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	if catalog.Loaded() != 1 {
		t.Errorf("Expected 1 policy loaded, got %d", catalog.Loaded())
	}
	if len(catalog.Rejected()) != 4 {
		t.Errorf("Expected 4 rejections, got %d", len(catalog.Rejected()))
	}
}

func TestLoadCatalog_DuplicateID(t *testing.T) {
	logger := zerolog.New(nil).Level(zerolog.Disabled)

	_, err := LoadCatalog(logger, []Policy{testPolicy("dup"), testPolicy("other"), testPolicy("dup")})
	if !errors.Is(err, ErrDuplicatePolicy) {
		t.Fatalf("Expected ErrDuplicatePolicy, got %v", err)
	}
}

func TestLoadCatalog_DuplicateOfRejectedID(t *testing.T) {
	logger := zerolog.New(nil).Level(zerolog.Disabled)

	invalid := testPolicy("dup")
	invalid.Severity = "urgent"

	unsafe := testPolicy("dup-unsafe")
	unsafe.Rule.Operator = OperatorMatches
	unsafe.Rule.ExpectedValue = "(a+)+"

	tests := []struct {
		name string
		defs []Policy
	}{
		{"invalid first copy", []Policy{invalid, testPolicy("dup")}},
		{"unsafe first copy", []Policy{unsafe, testPolicy("dup-unsafe")}},
		{"both copies invalid", []Policy{invalid, invalid}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadCatalog(logger, tt.defs)
			if !errors.Is(err, ErrDuplicatePolicy) {
				t.Errorf("Expected ErrDuplicatePolicy, got %v", err)
			}
		})
	}
}

func TestCatalog_List(t *testing.T) {
	logger := zerolog.New(nil).Level(zerolog.Disabled)

	a := testPolicy("a")
	b := testPolicy("b")
	b.Category = CategoryCost
	b.Severity = SeverityLow
	c := testPolicy("c")
	c.Enabled = false

	catalog, err := LoadCatalog(logger, []Policy{a, b, c})
	if err != nil {
		t.Fatalf("Failed to load catalog: %v", err)
	}

	enabled := true
	disabled := false

	tests := []struct {
		name   string
		filter Filter
		want   []string
	}{
		{"all", Filter{}, []string{"a", "b", "c"}},
		{"category", Filter{Category: CategorySecurity}, []string{"a", "c"}},
		{"severity", Filter{Severity: SeverityLow}, []string{"b"}},
		{"enabled", Filter{Enabled: &enabled}, []string{"a", "b"}},
		{"disabled", Filter{Enabled: &disabled}, []string{"c"}},
		{"combined", Filter{Category: CategoryCost, Enabled: &disabled}, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := catalog.List(tt.filter)
			if len(got) != len(tt.want) {
				t.Fatalf("Expected %d policies, got %d", len(tt.want), len(got))
			}
			for i, id := range tt.want {
				if got[i].ID != id {
					t.Errorf("Position %d: expected %s, got %s", i, id, got[i].ID)
				}
			}
		})
	}
}

func TestCatalog_ReturnsCopies(t *testing.T) {
	logger := zerolog.New(nil).Level(zerolog.Disabled)

	p := testPolicy("a")
	p.Rule.Scope = []string{"database"}
	p.Remediation = &Remediation{Kind: RemediationAuto, Parameters: map[string]interface{}{"k": "v"}}

	catalog, err := LoadCatalog(logger, []Policy{p})
	if err != nil {
		t.Fatalf("Failed to load catalog: %v", err)
	}

	// Mutating the input after load must not leak into the catalog
	p.Rule.Scope[0] = "storage"

	got, _ := catalog.Get("a")
	if got.Rule.Scope[0] != "database" {
		t.Error("Catalog shares scope slice with input definition")
	}

	got.Remediation.Parameters["k"] = "changed"
	got.Name = "changed"

	again, _ := catalog.Get("a")
	if again.Remediation.Parameters["k"] != "v" || again.Name != "Policy a" {
		t.Error("Catalog returned a policy that aliases internal state")
	}

	if _, ok := catalog.Get("missing"); ok {
		t.Error("Expected missing policy to be absent")
	}
}
