package policy

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/rs/zerolog"

	"github.com/alamotechllc/semsync/pkg/engine"
	"github.com/alamotechllc/semsync/pkg/semaphore"
	"github.com/alamotechllc/semsync/pkg/telemetry"
)

func newTestEngine(t *testing.T, opts ...Option) *Engine {
	t.Helper()
	eng, err := NewEngine(zerolog.New(nil).Level(zerolog.Disabled), opts...)
	if err != nil {
		t.Fatalf("Failed to create engine: %v", err)
	}
	return eng
}

// cleanState passes every built-in policy.
func cleanState() *engine.DesiredState {
	return &engine.DesiredState{
		Project: engine.ProjectSpec{Name: "network"},
		Keys:    []engine.KeySpec{{Name: "deploy", Type: "none"}},
		Repositories: []engine.RepositorySpec{
			{Name: "playbooks", GitURL: "https://git.example.com/net/playbooks.git", Key: engine.ByName("deploy")},
		},
		Inventories: []engine.InventorySpec{
			{Name: "switches", Type: "static", Inventory: "[switches]\nsw1\n", Key: engine.ByName("deploy")},
		},
		Secrets: []engine.SecretSpec{{Name: "enable", Value: "s3cret"}},
		Templates: []engine.TemplateSpec{{
			Name:       "configure-switch",
			Playbook:   "playbooks/configure.yml",
			Inventory:  engine.ByName("switches"),
			Repository: engine.ByName("playbooks"),
			SurveyVars: []semaphore.SurveyVar{
				{Name: "vlan", Type: "enum", DefaultValue: "10", Choices: []semaphore.SurveyChoice{{Value: "10"}, {Value: "20"}}},
			},
		}},
	}
}

func TestNewEngine(t *testing.T) {
	eng := newTestEngine(t)

	expected := []string{"inventory-content", "local-references", "repository-url", "secret-values", "survey-vars"}
	policies := eng.ListPolicies()
	if len(policies) != len(expected) {
		t.Fatalf("Expected %d built-in policies, got %d", len(expected), len(policies))
	}
	for i, name := range expected {
		if policies[i].Name != name {
			t.Errorf("Expected policy %d to be %s, got %s", i, name, policies[i].Name)
		}
		if !policies[i].Enabled {
			t.Errorf("Expected %s enabled", name)
		}
	}
}

func TestEvaluateCleanState(t *testing.T) {
	eng := newTestEngine(t)

	result, err := eng.Evaluate(context.Background(), cleanState(), "plan")
	if err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}
	if !result.Allowed {
		t.Error("Expected clean state to be allowed")
	}
	if len(result.Violations) != 0 {
		t.Errorf("Expected no violations, got %+v", result.Violations)
	}
	if len(result.EvaluatedPolicies) != 5 {
		t.Errorf("Expected 5 evaluated policies, got %d", len(result.EvaluatedPolicies))
	}
}

func TestEvaluateBuiltinViolations(t *testing.T) {
	tests := []struct {
		name        string
		mutate      func(*engine.DesiredState)
		policy      string
		kind        string
		severity    Severity
		wantAllowed bool
	}{
		{
			name:     "empty secret",
			mutate:   func(d *engine.DesiredState) { d.Secrets[0].Value = "" },
			policy:   "secret-values",
			kind:     engine.KindSecret,
			severity: SeverityError,
		},
		{
			name:     "unsupported url scheme",
			mutate:   func(d *engine.DesiredState) { d.Repositories[0].GitURL = "ftp://git.example.com/pb" },
			policy:   "repository-url",
			kind:     engine.KindRepository,
			severity: SeverityError,
		},
		{
			name:        "plain http",
			mutate:      func(d *engine.DesiredState) { d.Repositories[0].GitURL = "http://git.example.com/pb" },
			policy:      "repository-url",
			kind:        engine.KindRepository,
			severity:    SeverityWarning,
			wantAllowed: true,
		},
		{
			name: "duplicate survey variable",
			mutate: func(d *engine.DesiredState) {
				d.Templates[0].SurveyVars = append(d.Templates[0].SurveyVars, semaphore.SurveyVar{Name: "vlan"})
			},
			policy:   "survey-vars",
			kind:     engine.KindTemplate,
			severity: SeverityError,
		},
		{
			name:     "enum without choices",
			mutate:   func(d *engine.DesiredState) { d.Templates[0].SurveyVars[0].Choices = nil; d.Templates[0].SurveyVars[0].DefaultValue = "" },
			policy:   "survey-vars",
			kind:     engine.KindTemplate,
			severity: SeverityError,
		},
		{
			name:        "default outside choices",
			mutate:      func(d *engine.DesiredState) { d.Templates[0].SurveyVars[0].DefaultValue = "30" },
			policy:      "survey-vars",
			kind:        engine.KindTemplate,
			severity:    SeverityWarning,
			wantAllowed: true,
		},
		{
			name:        "empty static inventory",
			mutate:      func(d *engine.DesiredState) { d.Inventories[0].Inventory = "  \n" },
			policy:      "inventory-content",
			kind:        engine.KindInventory,
			severity:    SeverityWarning,
			wantAllowed: true,
		},
		{
			name:        "undeclared environment",
			mutate:      func(d *engine.DesiredState) { d.Templates[0].Environment = engine.ByName("prod") },
			policy:      "local-references",
			kind:        engine.KindTemplate,
			severity:    SeverityWarning,
			wantAllowed: true,
		},
		{
			name:        "undeclared repository key",
			mutate:      func(d *engine.DesiredState) { d.Repositories[0].Key = engine.ByName("legacy") },
			policy:      "local-references",
			kind:        engine.KindRepository,
			severity:    SeverityWarning,
			wantAllowed: true,
		},
	}

	eng := newTestEngine(t)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			desired := cleanState()
			tt.mutate(desired)

			result, err := eng.Evaluate(context.Background(), desired, "plan")
			if err != nil {
				t.Fatalf("Evaluate failed: %v", err)
			}
			if result.Allowed != tt.wantAllowed {
				t.Errorf("Expected allowed=%v, got %v", tt.wantAllowed, result.Allowed)
			}
			if len(result.Violations) != 1 {
				t.Fatalf("Expected 1 violation, got %+v", result.Violations)
			}
			v := result.Violations[0]
			if v.Policy != tt.policy {
				t.Errorf("Expected policy %s, got %s", tt.policy, v.Policy)
			}
			if v.Kind != tt.kind {
				t.Errorf("Expected kind %s, got %s", tt.kind, v.Kind)
			}
			if v.Severity != tt.severity {
				t.Errorf("Expected severity %s, got %s", tt.severity, v.Severity)
			}
			if v.Message == "" {
				t.Error("Expected a violation message")
			}
		})
	}
}

func TestEvaluateIDReferencesAreNotChecked(t *testing.T) {
	eng := newTestEngine(t)
	desired := cleanState()
	desired.Templates[0].Inventory = engine.ByID(7)
	desired.Repositories[0].Key = engine.ByID(3)

	result, err := eng.Evaluate(context.Background(), desired, "plan")
	if err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}
	if len(result.Violations) != 0 {
		t.Errorf("Expected no violations for id references, got %+v", result.Violations)
	}
}

func TestEvaluatePublishesViolations(t *testing.T) {
	events := telemetry.NewEventPublisher(telemetry.EventsConfig{Enabled: true})
	defer events.Close()

	var (
		mu       sync.Mutex
		received []telemetry.Event
	)
	events.Subscribe(func(e telemetry.Event) {
		mu.Lock()
		received = append(received, e)
		mu.Unlock()
	}, telemetry.FilterByType(telemetry.EventTypePolicyViolation))

	eng := newTestEngine(t, WithEvents(events))
	desired := cleanState()
	desired.Secrets[0].Value = ""

	if _, err := eng.Evaluate(context.Background(), desired, "apply"); err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(received) != 1 {
		t.Fatalf("Expected 1 event, got %d", len(received))
	}
	if received[0].Level != telemetry.EventLevelError {
		t.Errorf("Expected level error, got %s", received[0].Level)
	}
	if received[0].Data["policy"] != "secret-values" {
		t.Errorf("Expected policy secret-values, got %v", received[0].Data["policy"])
	}
}

func TestEnableDisablePolicy(t *testing.T) {
	eng := newTestEngine(t)
	desired := cleanState()
	desired.Secrets[0].Value = ""

	if err := eng.DisablePolicy("secret-values"); err != nil {
		t.Fatalf("DisablePolicy failed: %v", err)
	}
	result, err := eng.Evaluate(context.Background(), desired, "plan")
	if err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}
	if !result.Allowed || len(result.Violations) != 0 {
		t.Errorf("Expected disabled policy to be skipped, got %+v", result.Violations)
	}
	for _, name := range result.EvaluatedPolicies {
		if name == "secret-values" {
			t.Error("Expected secret-values not evaluated")
		}
	}

	if err := eng.EnablePolicy("secret-values"); err != nil {
		t.Fatalf("EnablePolicy failed: %v", err)
	}
	result, err = eng.Evaluate(context.Background(), desired, "plan")
	if err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}
	if result.Allowed {
		t.Error("Expected re-enabled policy to block")
	}

	if err := eng.DisablePolicy("missing"); err == nil {
		t.Error("Expected error for unknown policy, got nil")
	}
	if _, err := eng.GetPolicy("missing"); err == nil {
		t.Error("Expected error for unknown policy, got nil")
	}
}

func TestAddPoliciesOperation(t *testing.T) {
	eng := newTestEngine(t)

	err := eng.AddPolicies(context.Background(), []Policy{{
		Name:     "no-apply-on-friday",
		Severity: SeverityError,
		Enabled:  true,
		Rego: `package semsync.custom.freeze

deny contains "changes are frozen" if {
	input.operation == "apply"
}
`,
	}})
	if err != nil {
		t.Fatalf("AddPolicies failed: %v", err)
	}

	result, err := eng.Evaluate(context.Background(), cleanState(), "plan")
	if err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}
	if !result.Allowed {
		t.Errorf("Expected plan allowed, got %+v", result.Violations)
	}

	result, err = eng.Evaluate(context.Background(), cleanState(), "apply")
	if err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}
	if result.Allowed {
		t.Fatal("Expected apply denied")
	}
	errs := result.Errors()
	if len(errs) != 1 || errs[0].Message != "changes are frozen" {
		t.Errorf("Expected freeze violation, got %+v", errs)
	}
}

func TestAddPoliciesAllOrNothing(t *testing.T) {
	eng := newTestEngine(t)

	err := eng.AddPolicies(context.Background(), []Policy{
		{Name: "good", Severity: SeverityInfo, Enabled: true, Rego: "package good\n\ndeny contains \"x\" if { false }\n"},
		{Name: "bad", Severity: SeverityInfo, Enabled: true, Rego: "package bad\n\ndeny contains {"},
	})
	if err == nil {
		t.Fatal("Expected compile error, got nil")
	}
	if _, err := eng.GetPolicy("good"); err == nil {
		t.Error("Expected good policy not added when another fails")
	}
}

func TestLoadPolicies(t *testing.T) {
	dir := t.TempDir()
	rego := `# Playbooks live under playbooks/.
# severity: error
package semsync.custom.playbooks

deny contains msg if {
	some tmpl in input.desired.templates
	not startswith(tmpl.playbook, "playbooks/")
	msg := sprintf("template %q playbook is outside playbooks/", [tmpl.name])
}
`
	if err := os.WriteFile(filepath.Join(dir, "playbook-dir.rego"), []byte(rego), 0644); err != nil {
		t.Fatalf("Failed to write policy: %v", err)
	}

	eng := newTestEngine(t)
	if err := eng.LoadPolicies(context.Background(), []string{dir}); err != nil {
		t.Fatalf("LoadPolicies failed: %v", err)
	}

	p, err := eng.GetPolicy("playbook-dir")
	if err != nil {
		t.Fatalf("GetPolicy failed: %v", err)
	}
	if p.Severity != SeverityError {
		t.Errorf("Expected severity error, got %s", p.Severity)
	}

	desired := cleanState()
	desired.Templates[0].Playbook = "site.yml"
	result, err := eng.Evaluate(context.Background(), desired, "plan")
	if err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}
	if result.Allowed {
		t.Fatal("Expected custom policy to block")
	}
	want := `template "configure-switch" playbook is outside playbooks/`
	if len(result.Violations) != 1 || result.Violations[0].Message != want {
		t.Errorf("Expected %q, got %+v", want, result.Violations)
	}
}
