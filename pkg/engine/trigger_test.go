package engine

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/alamotechllc/semsync/pkg/semaphore"
	"github.com/alamotechllc/semsync/pkg/telemetry"
)

func TestTriggerRun(t *testing.T) {
	srv := newTestServer(t)
	pid := srv.AddProject("net")
	tid := srv.Seed(pid, "templates", map[string]any{"name": "backup", "playbook": "b.yml", "inventory_id": 1, "repository_id": 2})

	events := telemetry.NewEventPublisher(telemetry.EventsConfig{Enabled: true})
	var triggered []telemetry.Event
	events.Subscribe(func(e telemetry.Event) { triggered = append(triggered, e) }, telemetry.FilterByType(telemetry.EventTypeTaskTriggered))

	trig := NewTrigger(newTestClient(t, srv), false, WithEvents(events))
	handle, err := trig.Run(context.Background(), RunRequest{
		ProjectID:  pid,
		TemplateID: tid,
		ExtraVars:  map[string]any{"switch_name": "sw-01"},
		DryRun:     true,
	})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if handle.ID == 0 {
		t.Error("Expected a task id")
	}
	if handle.TemplateID != tid {
		t.Errorf("Expected template %d, got %d", tid, handle.TemplateID)
	}

	posts := srv.Requests(http.MethodPost, projectPath(pid, "templates"))
	if len(posts) != 1 {
		t.Fatalf("Expected 1 run request, got %d", len(posts))
	}
	body := posts[0].JSON()
	if body["dry_run"] != true || body["debug"] != false {
		t.Errorf("Expected dry_run true and debug false, got %v", body)
	}
	extra, _ := body["extra_vars"].(map[string]any)
	if extra["switch_name"] != "sw-01" {
		t.Errorf("Expected extra_vars passed through, got %v", body["extra_vars"])
	}
	if len(triggered) != 1 {
		t.Errorf("Expected 1 task.triggered event, got %d", len(triggered))
	}

	if n := len(srv.Requests(http.MethodGet, projectPath(pid, "tasks"))); n != 0 {
		t.Errorf("Expected no polling, got %d task reads", n)
	}
}

func TestTriggerRunSurfacesServerMessage(t *testing.T) {
	srv := newTestServer(t)
	pid := srv.AddProject("net")
	srv.Force(http.MethodPost, projectPath(pid, "templates", "5", "run"), http.StatusBadRequest, `{"error":"Survey variable port_interface is required"}`)

	trig := NewTrigger(newTestClient(t, srv), false)
	_, err := trig.Run(context.Background(), RunRequest{ProjectID: pid, TemplateID: 5})
	var apiErr *semaphore.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("Expected APIError, got %v", err)
	}
	if apiErr.Message != "Survey variable port_interface is required" {
		t.Errorf("Expected server message verbatim, got %q", apiErr.Message)
	}
}

func TestTriggerRunByName(t *testing.T) {
	srv := newTestServer(t)
	pid := srv.AddProject("net")
	tid := srv.Seed(pid, "templates", map[string]any{"name": "backup", "playbook": "b.yml", "inventory_id": 1, "repository_id": 2})
	trig := NewTrigger(newTestClient(t, srv), false)

	handle, err := trig.RunByName(context.Background(), pid, "backup", RunRequest{Debug: true})
	if err != nil {
		t.Fatalf("RunByName failed: %v", err)
	}
	if handle.TemplateID != tid {
		t.Errorf("Expected template %d, got %d", tid, handle.TemplateID)
	}

	tasks, err := trig.Tasks(context.Background(), pid, tid)
	if err != nil {
		t.Fatalf("Tasks failed: %v", err)
	}
	if len(tasks) != 1 || tasks[0].ID != handle.ID {
		t.Fatalf("Expected the started task listed, got %+v", tasks)
	}
	task, err := trig.Task(context.Background(), pid, handle.ID)
	if err != nil {
		t.Fatalf("Task failed: %v", err)
	}
	if task.Status != "waiting" || !task.Debug {
		t.Errorf("Expected waiting debug task, got %s debug=%v", task.Status, task.Debug)
	}

	srv.ResetRequests()
	_, err = trig.RunByName(context.Background(), pid, "restore", RunRequest{})
	var dep *DependencyMissingError
	if !errors.As(err, &dep) || dep.Kind != KindTemplate || dep.Name != "restore" {
		t.Fatalf("Expected missing template restore, got %v", err)
	}
	if n := len(srv.Writes()); n != 0 {
		t.Errorf("Expected no run request, got %d", n)
	}
}
