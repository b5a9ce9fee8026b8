package engine

import (
	"context"
	"net/http"
	"strings"
	"testing"

	"github.com/alamotechllc/semsync/pkg/semaphore"
)

func findingFor(findings []Finding, kind, name, contains string) (Finding, bool) {
	for _, f := range findings {
		if f.Kind == kind && f.Name == name && strings.Contains(f.Message, contains) {
			return f, true
		}
	}
	return Finding{}, false
}

func TestVerifyAfterReconcile(t *testing.T) {
	srv := newTestServer(t)
	srv.AddProject("infra")
	client := newTestClient(t, srv)
	desired := sampleState("infra", testPrivateKey(t))

	if _, err := New(client, Options{}).Reconcile(context.Background(), desired); err != nil {
		t.Fatalf("Reconcile failed: %v", err)
	}

	srv.ResetRequests()
	findings, err := New(client, Options{}).Verify(context.Background(), desired)
	if err != nil {
		t.Fatalf("Verify failed: %v", err)
	}
	if len(findings) != 0 {
		t.Errorf("Expected no findings, got %+v", findings)
	}
	if n := len(srv.Writes()); n != 0 {
		t.Errorf("Expected verify to be read-only, got %d writes", n)
	}
}

func TestVerifyFindings(t *testing.T) {
	srv := newTestServer(t)
	pid := srv.AddProject("net")
	keyID := srv.Seed(pid, "keys", map[string]any{"name": "deploy", "type": "ssh"})
	srv.Seed(pid, "repositories", map[string]any{"name": "playbooks", "git_url": "https://git.example.com/pb.git", "ssh_key_id": 0})
	invID := srv.Seed(pid, "inventories", map[string]any{"name": "core", "type": "static", "ssh_key_id": keyID})
	srv.Seed(pid, "templates", map[string]any{
		"name":          "configure-switch",
		"playbook":      "switch.yml",
		"inventory_id":  invID,
		"repository_id": 999,
		"survey_vars":   `[{"name":"switch_name"}]`,
	})

	desired := &DesiredState{
		Project:      ProjectSpec{Name: "net"},
		Keys:         []KeySpec{{Name: "deploy"}},
		Repositories: []RepositorySpec{{Name: "playbooks", GitURL: "https://git.example.com/pb.git", Key: ByName("deploy")}},
		Inventories:  []InventorySpec{{Name: "core", Key: ByName("deploy")}},
		Secrets:      []SecretSpec{{Name: "absent-secret", Value: "x"}},
		Templates: []TemplateSpec{
			{
				Name:       "configure-switch",
				Playbook:   "switch.yml",
				Inventory:  ByName("core"),
				Repository: ByName("playbooks"),
				SurveyVars: []semaphore.SurveyVar{
					{Name: "switch_name"},
					{Name: "port_interface", Required: true},
					{Name: "vlan"},
				},
			},
			{Name: "missing-template", Playbook: "x.yml", Inventory: ByName("core"), Repository: ByName("playbooks")},
		},
	}

	findings, err := New(newTestClient(t, srv), Options{RequireAppID: true}).Verify(context.Background(), desired)
	if err != nil {
		t.Fatalf("Verify failed: %v", err)
	}

	tests := []struct {
		kind     string
		name     string
		contains string
		severity Severity
	}{
		{KindRepository, "playbooks", "no ssh key", SeverityError},
		{KindSecret, "absent-secret", "not found", SeverityError},
		{KindTemplate, "configure-switch", "repository 999 does not exist", SeverityError},
		{KindTemplate, "configure-switch", `"port_interface" missing`, SeverityError},
		{KindTemplate, "configure-switch", `"vlan" missing`, SeverityWarning},
		{KindTemplate, "configure-switch", "app_id", SeverityError},
		{KindTemplate, "missing-template", "template not found", SeverityError},
	}
	for _, tt := range tests {
		f, ok := findingFor(findings, tt.kind, tt.name, tt.contains)
		if !ok {
			t.Errorf("Expected finding %s %q containing %q, got none", tt.kind, tt.name, tt.contains)
			continue
		}
		if f.Severity != tt.severity {
			t.Errorf("Expected %s for %q, got %s", tt.severity, tt.contains, f.Severity)
		}
	}
	if _, ok := findingFor(findings, KindInventory, "core", ""); ok {
		t.Error("Expected no finding for a healthy inventory")
	}
}

func TestVerifyKeyFingerprint(t *testing.T) {
	srv := newTestServer(t)
	pid := srv.AddProject("net")
	otherPub, err := DerivePublicKey(testPrivateKey(t))
	if err != nil {
		t.Fatalf("DerivePublicKey failed: %v", err)
	}
	srv.Seed(pid, "keys", map[string]any{"name": "deploy", "type": "ssh", "public_key": otherPub})

	findings, err := New(newTestClient(t, srv), Options{}).Verify(context.Background(), &DesiredState{
		Project: ProjectSpec{ID: pid},
		Keys:    []KeySpec{{Name: "deploy", PrivateKey: testPrivateKey(t)}},
	})
	if err != nil {
		t.Fatalf("Verify failed: %v", err)
	}
	if f, ok := findingFor(findings, KindKey, "deploy", "fingerprint"); !ok || f.Severity != SeverityWarning {
		t.Errorf("Expected fingerprint warning, got %+v", findings)
	}
}

func TestVerifyMissingProject(t *testing.T) {
	srv := newTestServer(t)
	findings, err := New(newTestClient(t, srv), Options{}).Verify(context.Background(), &DesiredState{
		Project: ProjectSpec{Name: "ghost"},
	})
	if err != nil {
		t.Fatalf("Verify failed: %v", err)
	}
	if len(findings) != 1 || findings[0].Kind != KindProject {
		t.Errorf("Expected one project finding, got %+v", findings)
	}
	if n := len(srv.Writes()); n != 0 {
		t.Errorf("Expected no writes, got %d", n)
	}
}

func TestDestroy(t *testing.T) {
	srv := newTestServer(t)
	pid := srv.AddProject("infra")
	client := newTestClient(t, srv)
	desired := sampleState("infra", testPrivateKey(t))

	if _, err := New(client, Options{}).Reconcile(context.Background(), desired); err != nil {
		t.Fatalf("Reconcile failed: %v", err)
	}
	srv.Seed(pid, "secrets", map[string]any{"name": "unmanaged"})
	desired.Secrets = append(desired.Secrets, SecretSpec{Name: "never-created"})
	srv.ResetRequests()

	report, err := New(client, Options{}).Destroy(context.Background(), desired)
	if err != nil {
		t.Fatalf("Destroy failed: %v", err)
	}
	if report.Summary.Deleted != 6 {
		t.Errorf("Expected 6 deleted, got %d (%v)", report.Summary.Deleted, report.Err())
	}
	if o := mustOutcome(t, report, KindSecret, "never-created"); o.Action != ActionAbsent {
		t.Errorf("Expected never-created absent, got %s", o.Action)
	}

	wantOrder := []string{"templates", "environment", "secrets", "inventories", "repositories", "keys"}
	deletes := srv.Requests(http.MethodDelete, "")
	if len(deletes) != len(wantOrder) {
		t.Fatalf("Expected %d deletes, got %d", len(wantOrder), len(deletes))
	}
	for i, d := range deletes {
		if !strings.HasPrefix(d.Path, projectPath(pid, wantOrder[i])+"/") {
			t.Errorf("Delete %d: expected %s, got %s", i, wantOrder[i], d.Path)
		}
	}

	left := srv.Records(pid, "secrets")
	if len(left) != 1 || left[0]["name"] != "unmanaged" {
		t.Errorf("Expected only the unmanaged secret left, got %v", left)
	}
	if _, err := client.GetProject(context.Background(), pid); err != nil {
		t.Errorf("Expected project kept without DestroyProject, got %v", err)
	}
}

func TestDestroyProject(t *testing.T) {
	tests := []struct {
		name       string
		opts       Options
		wantAction Action
		wantGone   bool
	}{
		{name: "delete", opts: Options{DestroyProject: true}, wantAction: ActionDeleted, wantGone: true},
		{name: "plan", opts: Options{DestroyProject: true, Plan: true}, wantAction: ActionWouldDelete},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newTestServer(t)
			pid := srv.AddProject("scratch")
			srv.Seed(pid, "secrets", map[string]any{"name": "token"})
			client := newTestClient(t, srv)

			report, err := New(client, tt.opts).Destroy(context.Background(), &DesiredState{
				Project: ProjectSpec{Name: "scratch"},
				Secrets: []SecretSpec{{Name: "token"}},
			})
			if err != nil {
				t.Fatalf("Destroy failed: %v", err)
			}

			var projectActions []Action
			for _, o := range report.Outcomes {
				if o.Kind == KindProject {
					projectActions = append(projectActions, o.Action)
				}
			}
			last := projectActions[len(projectActions)-1]
			if last != tt.wantAction {
				t.Errorf("Expected project %s, got %s", tt.wantAction, last)
			}

			_, err = client.GetProject(context.Background(), pid)
			if gone := semaphore.IsNotFound(err); gone != tt.wantGone {
				t.Errorf("Expected project gone=%v, got %v", tt.wantGone, err)
			}
			if tt.opts.Plan && len(srv.Requests(http.MethodDelete, "")) != 0 {
				t.Error("Expected no deletes in plan mode")
			}
		})
	}
}

func TestDestroyMissingProject(t *testing.T) {
	srv := newTestServer(t)
	report, err := New(newTestClient(t, srv), Options{}).Destroy(context.Background(), &DesiredState{
		Project: ProjectSpec{Name: "ghost"},
		Keys:    []KeySpec{{Name: "deploy"}},
	})
	if err != nil {
		t.Fatalf("Destroy failed: %v", err)
	}
	if o := mustOutcome(t, report, KindProject, "ghost"); o.Action != ActionAbsent {
		t.Errorf("Expected project absent, got %s", o.Action)
	}
	if len(srv.Writes()) != 0 {
		t.Error("Expected no writes")
	}
}

func TestStatus(t *testing.T) {
	srv := newTestServer(t)
	pid := srv.AddProject("net")
	srv.Seed(pid, "keys", map[string]any{"name": "deploy"})
	tid := srv.Seed(pid, "templates", map[string]any{"name": "backup", "playbook": "b.yml", "inventory_id": 1, "repository_id": 2})
	for i := 0; i < recentTasks+2; i++ {
		srv.Seed(pid, "tasks", map[string]any{"template_id": tid, "status": "success"})
	}

	snap, err := New(newTestClient(t, srv), Options{}).Status(context.Background(), pid)
	if err != nil {
		t.Fatalf("Status failed: %v", err)
	}
	if snap.Project.Name != "net" {
		t.Errorf("Expected project net, got %q", snap.Project.Name)
	}
	if len(snap.Keys) != 1 || len(snap.Templates) != 1 {
		t.Errorf("Expected 1 key and 1 template, got %d and %d", len(snap.Keys), len(snap.Templates))
	}
	if len(snap.Tasks) != recentTasks {
		t.Fatalf("Expected %d tasks, got %d", recentTasks, len(snap.Tasks))
	}
	if snap.Tasks[0].ID < snap.Tasks[len(snap.Tasks)-1].ID {
		t.Error("Expected newest task first")
	}

	if _, err := New(newTestClient(t, srv), Options{}).Status(context.Background(), 424242); !semaphore.IsNotFound(err) {
		t.Errorf("Expected not found for an unknown project, got %v", err)
	}
}
