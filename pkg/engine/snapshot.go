package engine

import (
	"cmp"
	"context"
	"slices"

	"golang.org/x/sync/errgroup"

	"github.com/alamotechllc/semsync/pkg/semaphore"
)

// recentTasks is how many tasks a Snapshot keeps.
const recentTasks = 10

// Snapshot is the current content of a project.
type Snapshot struct {
	Project      semaphore.Project       `json:"project"`
	Keys         []semaphore.SSHKey      `json:"keys"`
	Repositories []semaphore.Repository  `json:"repositories"`
	Inventories  []semaphore.Inventory   `json:"inventories"`
	Secrets      []semaphore.Secret      `json:"secrets"`
	Environments []semaphore.Environment `json:"environments"`
	Templates    []semaphore.Template    `json:"templates"`

	// Tasks are the most recent tasks, newest first.
	Tasks []semaphore.Task `json:"tasks"`
}

// Status reads every collection of the project concurrently.
func (e *Engine) Status(ctx context.Context, projectID int) (*Snapshot, error) {
	ctx, span := e.startSpan(ctx, "engine.status")
	var s Snapshot
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		p, err := e.api.GetProject(ctx, projectID)
		if err != nil {
			return err
		}
		s.Project = *p
		return nil
	})
	g.Go(func() (err error) {
		s.Keys, err = e.api.ListKeys(ctx, projectID)
		return err
	})
	g.Go(func() (err error) {
		s.Repositories, err = e.api.ListRepositories(ctx, projectID)
		return err
	})
	g.Go(func() (err error) {
		s.Inventories, err = e.api.ListInventories(ctx, projectID)
		return err
	})
	g.Go(func() (err error) {
		s.Secrets, err = e.api.ListSecrets(ctx, projectID)
		return err
	})
	g.Go(func() (err error) {
		s.Environments, err = e.api.ListEnvironments(ctx, projectID)
		return err
	})
	g.Go(func() (err error) {
		s.Templates, err = e.api.ListTemplates(ctx, projectID)
		return err
	})
	g.Go(func() error {
		tasks, err := e.api.ListTasks(ctx, projectID, 0)
		if err != nil {
			return err
		}
		slices.SortFunc(tasks, func(a, b semaphore.Task) int { return cmp.Compare(b.ID, a.ID) })
		if len(tasks) > recentTasks {
			tasks = tasks[:recentTasks]
		}
		s.Tasks = tasks
		return nil
	})

	err := g.Wait()
	endSpan(span, err)
	if err != nil {
		e.metrics.RecordError(string(semaphore.KindOf(err)))
		return nil, err
	}
	return &s, nil
}
