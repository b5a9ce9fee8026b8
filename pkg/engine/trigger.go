package engine

import (
	"context"
	"fmt"

	"github.com/alamotechllc/semsync/pkg/semaphore"
	"github.com/alamotechllc/semsync/pkg/telemetry"
)

// RunRequest starts one task.
type RunRequest struct {
	ProjectID  int
	TemplateID int
	ExtraVars  map[string]any
	DryRun     bool
	Debug      bool
}

// Trigger starts template runs. It does not wait for tasks to finish.
type Trigger struct {
	instruments
	api    API
	strict bool
}

// NewTrigger creates a Trigger. With strict set, RunByName refuses a name
// that matches more than one template.
func NewTrigger(api API, strict bool, options ...Option) *Trigger {
	return &Trigger{
		instruments: newInstruments("trigger", options),
		api:         api,
		strict:      strict,
	}
}

// Run starts the template and returns the task handle. Server error text is
// carried verbatim in the returned *semaphore.APIError.
func (t *Trigger) Run(ctx context.Context, req RunRequest) (*semaphore.TaskHandle, error) {
	ctx, span := t.startSpan(ctx, "trigger.run",
		telemetry.AttrProjectID.Int(req.ProjectID),
		telemetry.AttrTemplateID.Int(req.TemplateID),
	)

	handle, err := t.api.RunTemplate(ctx, req.ProjectID, req.TemplateID, semaphore.RunOptions{
		ExtraVars: req.ExtraVars,
		DryRun:    req.DryRun,
		Debug:     req.Debug,
	})
	endSpan(span, err)
	if err != nil {
		t.metrics.RecordTaskTrigger("failed")
		t.logger.Warn().Err(err).Int("project_id", req.ProjectID).Int("template_id", req.TemplateID).Msg("Template run refused")
		return nil, err
	}

	t.metrics.RecordTaskTrigger("started")
	t.logger.Info().Int("project_id", req.ProjectID).Int("template_id", req.TemplateID).Int("task_id", handle.ID).Bool("dry_run", req.DryRun).Msg("Task started")
	_ = t.events.PublishTaskTriggered(fmt.Sprintf("#%d", req.TemplateID), handle.ID)
	return handle, nil
}

// RunByName resolves the template by name in the project and runs it. An
// unknown name is a *DependencyMissingError and no run is requested.
func (t *Trigger) RunByName(ctx context.Context, projectID int, name string, req RunRequest) (*semaphore.TaskHandle, error) {
	templates, err := t.api.ListTemplates(ctx, projectID)
	if err != nil {
		return nil, err
	}
	found, err := semaphore.Pick(templates, "templates", name, t.strict)
	if err != nil {
		return nil, err
	}
	if found == nil {
		return nil, &DependencyMissingError{Kind: KindTemplate, Name: name}
	}

	req.ProjectID = projectID
	req.TemplateID = found.ID
	return t.Run(ctx, req)
}

// Tasks lists the project's tasks, for one template when templateID is
// positive.
func (t *Trigger) Tasks(ctx context.Context, projectID, templateID int) ([]semaphore.Task, error) {
	return t.api.ListTasks(ctx, projectID, templateID)
}

// Task returns one task.
func (t *Trigger) Task(ctx context.Context, projectID, taskID int) (*semaphore.Task, error) {
	return t.api.GetTask(ctx, projectID, taskID)
}
