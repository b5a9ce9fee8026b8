package engine

import (
	"context"
	"errors"

	"github.com/alamotechllc/semsync/pkg/semaphore"
	"github.com/alamotechllc/semsync/pkg/telemetry"
)

// Destroy deletes the declared resources in reverse dependency order:
// templates, environments, secrets, inventories, repositories, keys. A
// declared resource missing from the server is reported as absent. The
// project is deleted last, and only with Options.DestroyProject.
func (e *Engine) Destroy(ctx context.Context, desired *DesiredState) (*Report, error) {
	if desired == nil {
		return nil, errors.New("desired state is required")
	}
	r := e.newRun(ctx)
	ctx, span := e.startSpan(ctx, "destroy.run", telemetry.AttrRunID.String(r.report.RunID))
	r.ctx = ctx
	e.metrics.RecordRunStarted()
	r.log.Info().Str("project", projectLabel(desired.Project)).Bool("plan", e.opts.Plan).Msg("Destroy started")

	err := r.destroy(desired)
	r.finish(err)
	endSpan(span, err)
	return r.report, err
}

func (r *run) destroy(desired *DesiredState) error {
	if err := r.resolveProject(desired.Project, false); err != nil {
		return err
	}
	if r.projectID == 0 {
		return nil
	}
	if err := r.prefetch(true); err != nil {
		return err
	}
	pid := r.projectID

	for i := len(desired.Templates) - 1; i >= 0; i-- {
		name := desired.Templates[i].Name
		r.step(KindTemplate, name, func(ctx context.Context) error {
			return deleteNamed(r, KindTemplate, "templates", r.templates, name, func(t semaphore.Template) int { return t.ID },
				func(id int) (bool, error) { return r.api.DeleteTemplate(ctx, pid, id) })
		})
	}
	for i := len(desired.Environments) - 1; i >= 0; i-- {
		name := desired.Environments[i].Name
		r.step(KindEnvironment, name, func(ctx context.Context) error {
			return deleteNamed(r, KindEnvironment, "environments", r.environments, name, func(x semaphore.Environment) int { return x.ID },
				func(id int) (bool, error) { return r.api.DeleteEnvironment(ctx, pid, id) })
		})
	}
	for i := len(desired.Secrets) - 1; i >= 0; i-- {
		name := desired.Secrets[i].Name
		r.step(KindSecret, name, func(ctx context.Context) error {
			return deleteNamed(r, KindSecret, "secrets", r.secrets, name, func(x semaphore.Secret) int { return x.ID },
				func(id int) (bool, error) { return r.api.DeleteSecret(ctx, pid, id) })
		})
	}
	for i := len(desired.Inventories) - 1; i >= 0; i-- {
		name := desired.Inventories[i].Name
		r.step(KindInventory, name, func(ctx context.Context) error {
			return deleteNamed(r, KindInventory, "inventories", r.inventories, name, func(x semaphore.Inventory) int { return x.ID },
				func(id int) (bool, error) { return r.api.DeleteInventory(ctx, pid, id) })
		})
	}
	for i := len(desired.Repositories) - 1; i >= 0; i-- {
		name := desired.Repositories[i].Name
		r.step(KindRepository, name, func(ctx context.Context) error {
			return deleteNamed(r, KindRepository, "repositories", r.repositories, name, func(x semaphore.Repository) int { return x.ID },
				func(id int) (bool, error) { return r.api.DeleteRepository(ctx, pid, id) })
		})
	}
	for i := len(desired.Keys) - 1; i >= 0; i-- {
		name := desired.Keys[i].Name
		r.step(KindKey, name, func(ctx context.Context) error {
			return deleteNamed(r, KindKey, "keys", r.keys, name, func(x semaphore.SSHKey) int { return x.ID },
				func(id int) (bool, error) { return r.api.DeleteKey(ctx, pid, id) })
		})
	}
	if r.abort != nil {
		return r.abort
	}

	if !r.opts.DestroyProject {
		return nil
	}
	label := projectLabel(desired.Project)
	if r.report.Summary.Failed > 0 {
		r.log.Warn().Str("project", label).Msg("Project kept because some resources failed to delete")
		return nil
	}
	if r.opts.Plan {
		r.outcome(KindProject, label, pid, ActionWouldDelete, nil)
		return nil
	}
	deleted, err := r.api.DeleteProject(r.ctx, pid)
	if err != nil {
		return r.fail(KindProject, label, "delete", err)
	}
	action := ActionDeleted
	if !deleted {
		action = ActionAbsent
	}
	r.outcome(KindProject, label, pid, action, nil)
	return nil
}

// deleteNamed deletes the first record called name from items.
func deleteNamed[T semaphore.Named](r *run, kind, collection string, items []T, name string, idOf func(T) int, del func(id int) (bool, error)) error {
	found, err := semaphore.Pick(items, collection, name, r.opts.Strict)
	if err != nil {
		return r.fail(kind, name, "lookup", err)
	}
	if found == nil {
		r.outcome(kind, name, 0, ActionAbsent, nil)
		return nil
	}
	id := idOf(*found)
	if r.opts.Plan {
		r.outcome(kind, name, id, ActionWouldDelete, nil)
		return nil
	}
	deleted, err := del(id)
	if err != nil {
		return r.fail(kind, name, "delete", err)
	}
	if !deleted {
		r.outcome(kind, name, id, ActionAbsent, nil)
		return nil
	}
	r.outcome(kind, name, id, ActionDeleted, nil)
	return nil
}
