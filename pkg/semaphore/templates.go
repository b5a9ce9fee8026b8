package semaphore

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
)

// ListTemplates returns the project's templates.
func (c *Client) ListTemplates(ctx context.Context, projectID int) ([]Template, error) {
	return listOf[Template](ctx, c, projectPath(projectID, "templates"), nil)
}

// GetTemplate returns one template.
func (c *Client) GetTemplate(ctx context.Context, projectID, templateID int) (*Template, error) {
	return getOne[Template](ctx, c, projectPath(projectID, "templates", templateID))
}

// CreateTemplate creates a template. Inventory and repository ids are
// required and checked before any request is sent.
func (c *Client) CreateTemplate(ctx context.Context, projectID int, t Template) (*Template, error) {
	if t.InventoryID <= 0 {
		return nil, fmt.Errorf("%w: template %q requires inventory_id", ErrPrecondition, t.Name)
	}
	if t.RepositoryID <= 0 {
		return nil, fmt.Errorf("%w: template %q requires repository_id", ErrPrecondition, t.Name)
	}
	return createOne[Template](ctx, c, projectPath(projectID, "templates"), newTemplateBody(projectID, &t))
}

// UpdateTemplate applies a sparse update. Only fields set in u are sent.
func (c *Client) UpdateTemplate(ctx context.Context, projectID, templateID int, u TemplateUpdate) error {
	_, err := c.put(ctx, projectPath(projectID, "templates", templateID), newTemplateUpdateBody(projectID, templateID, u))
	return err
}

// DeleteTemplate deletes a template.
func (c *Client) DeleteTemplate(ctx context.Context, projectID, templateID int) (bool, error) {
	return c.remove(ctx, projectPath(projectID, "templates", templateID))
}

// RunOptions are passed through to the server when a template is run.
type RunOptions struct {
	ExtraVars map[string]any
	DryRun    bool
	Debug     bool
}

// RunTemplate starts a task for the template and returns without waiting
// for it to finish.
func (c *Client) RunTemplate(ctx context.Context, projectID, templateID int, opts RunOptions) (*TaskHandle, error) {
	extra := opts.ExtraVars
	if extra == nil {
		extra = map[string]any{}
	}
	body := struct {
		Debug     bool           `json:"debug"`
		DryRun    bool           `json:"dry_run"`
		ExtraVars map[string]any `json:"extra_vars"`
	}{opts.Debug, opts.DryRun, extra}

	resp, err := c.Request(ctx, http.MethodPost, projectPath(projectID, "templates", templateID, "run"), body, nil)
	if err != nil {
		return nil, err
	}
	var handle TaskHandle
	if err := resp.Decode(&handle); err != nil {
		return nil, err
	}
	if handle.TemplateID == 0 {
		handle.TemplateID = templateID
	}
	return &handle, nil
}

// ListTasks returns the project's tasks, restricted to one template when
// templateID is positive.
func (c *Client) ListTasks(ctx context.Context, projectID, templateID int) ([]Task, error) {
	var query url.Values
	if templateID > 0 {
		query = url.Values{"template_id": []string{strconv.Itoa(templateID)}}
	}
	return listOf[Task](ctx, c, projectPath(projectID, "tasks"), query)
}

// GetTask returns one task.
func (c *Client) GetTask(ctx context.Context, projectID, taskID int) (*Task, error) {
	return getOne[Task](ctx, c, projectPath(projectID, "tasks", taskID))
}
