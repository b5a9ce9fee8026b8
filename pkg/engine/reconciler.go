package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"golang.org/x/sync/errgroup"

	"github.com/alamotechllc/semsync/pkg/semaphore"
)

type refKey struct {
	kind string
	name string
}

// run is the state of one reconcile, destroy or verify pass over a project.
type run struct {
	*Engine
	ctx       context.Context
	report    *Report
	log       zerolog.Logger
	projectID int

	keys            []semaphore.SSHKey
	repositories    []semaphore.Repository
	inventories     []semaphore.Inventory
	secrets         []semaphore.Secret
	environments    []semaphore.Environment
	templates       []semaphore.Template
	templatesLoaded bool

	resolved map[refKey]int
	failed   map[refKey]error

	// abort stops the run after the current resource.
	abort error
}

func (e *Engine) newRun(ctx context.Context) *run {
	runID := uuid.NewString()
	return &run{
		Engine: e,
		ctx:    ctx,
		report: &Report{
			RunID:     runID,
			Plan:      e.opts.Plan,
			StartedAt: e.now(),
		},
		log:      e.logger.With().Str("run_id", runID).Logger(),
		resolved: make(map[refKey]int),
		failed:   make(map[refKey]error),
	}
}

// Reconcile brings the project in line with desired. The returned error is
// non-nil only when the run was aborted: the project could not be resolved,
// the collections could not be listed, or authentication failed. Failures
// of single resources are reported in the Report and joined by Report.Err.
func (e *Engine) Reconcile(ctx context.Context, desired *DesiredState) (*Report, error) {
	if desired == nil {
		return nil, errors.New("desired state is required")
	}
	r := e.newRun(ctx)

	span := trace.Span(noop.Span{})
	if e.tracer != nil {
		ctx, span = e.tracer.StartReconcileSpan(ctx, r.report.RunID, desired.Project.ID)
	}
	r.ctx = ctx
	e.metrics.RecordRunStarted()
	_ = e.events.PublishReconcileStarted(r.report.RunID, projectLabel(desired.Project))
	r.log.Info().Str("project", projectLabel(desired.Project)).Bool("plan", e.opts.Plan).Msg("Reconcile started")

	err := r.reconcile(desired)
	r.finish(err)
	endSpan(span, err)
	return r.report, err
}

func (r *run) reconcile(desired *DesiredState) error {
	if err := r.resolveProject(desired.Project, true); err != nil {
		return err
	}
	if err := r.prefetch(false); err != nil {
		return err
	}

	for _, spec := range desired.Keys {
		r.step(KindKey, spec.Name, func(ctx context.Context) error { return r.reconcileKey(ctx, spec) })
	}
	for _, spec := range desired.Repositories {
		r.step(KindRepository, spec.Name, func(ctx context.Context) error { return r.reconcileRepository(ctx, spec) })
	}
	for _, spec := range desired.Inventories {
		r.step(KindInventory, spec.Name, func(ctx context.Context) error { return r.reconcileInventory(ctx, spec) })
	}
	for _, spec := range desired.Secrets {
		r.step(KindSecret, spec.Name, func(ctx context.Context) error { return r.reconcileSecret(ctx, spec) })
	}
	for _, spec := range desired.Environments {
		r.step(KindEnvironment, spec.Name, func(ctx context.Context) error { return r.reconcileEnvironment(ctx, spec) })
	}
	for _, spec := range desired.Templates {
		r.step(KindTemplate, spec.Name, func(ctx context.Context) error { return r.reconcileTemplate(ctx, spec) })
	}
	return r.abort
}

func (r *run) finish(err error) {
	r.report.Duration = r.now().Sub(r.report.StartedAt)
	status := r.report.Status()
	if err != nil {
		status = RunStatusFailed
	}
	r.metrics.RecordRunCompleted(string(status), r.report.Duration)

	if err != nil {
		_ = r.events.PublishReconcileFailed(r.report.RunID, err)
		r.log.Error().Err(err).Dur("duration", r.report.Duration).Msg("Run aborted")
		return
	}
	_ = r.events.PublishReconcileCompleted(r.report.RunID, r.report.Summary.Counts(), r.report.Duration)
	r.log.Info().
		Str("status", string(status)).
		Int("created", r.report.Summary.Created).
		Int("updated", r.report.Summary.Updated).
		Int("reused", r.report.Summary.Reused).
		Int("failed", r.report.Summary.Failed).
		Dur("duration", r.report.Duration).
		Msg("Run completed")
}

// step runs fn for one resource inside its own span, unless the run was
// aborted.
func (r *run) step(kind, name string, fn func(ctx context.Context) error) {
	if r.abort != nil {
		return
	}
	ctx, span := r.ctx, trace.Span(noop.Span{})
	if r.tracer != nil {
		ctx, span = r.tracer.StartResourceSpan(r.ctx, kind, name)
	}
	err := fn(ctx)
	endSpan(span, err)
}

func (r *run) outcome(kind, name string, id int, action Action, changes []string) {
	r.resolved[refKey{kind, name}] = id
	r.report.record(Outcome{Kind: kind, Name: name, ID: id, Action: action, Changes: changes})
	r.metrics.RecordAction(kind, string(action))
	if action != ActionReused && action != ActionAbsent {
		_ = r.events.PublishResourceChanged(r.report.RunID, kind, name, string(action), id)
	}

	evt := r.log.Info()
	if action == ActionReused || action == ActionAbsent {
		evt = r.log.Debug()
	}
	evt.Str("kind", kind).Str("name", name).Int("id", id).Str("action", string(action)).Strs("changes", changes).Msg("Resource reconciled")
}

// fail records a failed outcome and returns the classified error. An
// authentication failure aborts the run.
func (r *run) fail(kind, name, operation string, err error) error {
	re := classify(kind, name, operation, err)
	r.failed[refKey{kind, name}] = re
	r.report.record(Outcome{Kind: kind, Name: name, Action: ActionFailed, Err: re})
	r.metrics.RecordAction(kind, string(ActionFailed))
	r.metrics.RecordError(re.Code)
	_ = r.events.PublishResourceFailed(r.report.RunID, kind, name, re)
	r.log.Warn().Err(err).Str("kind", kind).Str("name", name).Str("operation", operation).Str("class", string(re.Class)).Msg("Resource failed")

	if semaphore.IsAuthError(err) && r.abort == nil {
		r.abort = re
	}
	return re
}

func (r *run) applyCreate(kind, name string, create func() (int, error)) error {
	if r.opts.Plan {
		r.outcome(kind, name, 0, ActionWouldCreate, nil)
		return nil
	}
	id, err := create()
	if err != nil {
		return r.fail(kind, name, "create", err)
	}
	r.outcome(kind, name, id, ActionCreated, nil)
	return nil
}

func (r *run) applyUpdate(kind, name string, id int, changes []string, update func() error) error {
	if len(changes) == 0 {
		r.outcome(kind, name, id, ActionReused, nil)
		return nil
	}
	if r.opts.Plan {
		r.outcome(kind, name, id, ActionWouldUpdate, changes)
		return nil
	}
	if err := update(); err != nil {
		return r.fail(kind, name, "update", err)
	}
	r.outcome(kind, name, id, ActionUpdated, changes)
	return nil
}

func projectLabel(spec ProjectSpec) string {
	if spec.ID > 0 {
		return ByID(spec.ID).String()
	}
	return spec.Name
}

// resolveProject sets the run's project id. With create set, a project
// missing by name is created.
func (r *run) resolveProject(spec ProjectSpec, create bool) error {
	label := projectLabel(spec)
	if spec.ID > 0 {
		r.projectID = spec.ID
		r.report.ProjectID = spec.ID
		r.outcome(KindProject, label, spec.ID, ActionReused, nil)
		return nil
	}

	projects, err := r.api.ListProjects(r.ctx)
	if err != nil {
		return r.fail(KindProject, label, "lookup", err)
	}
	found, err := semaphore.Pick(projects, "projects", spec.Name, r.opts.Strict)
	if err != nil {
		return r.fail(KindProject, label, "lookup", err)
	}
	if found != nil {
		r.projectID = found.ID
		r.report.ProjectID = found.ID
		r.outcome(KindProject, label, found.ID, ActionReused, nil)
		return nil
	}
	if !create {
		r.outcome(KindProject, label, 0, ActionAbsent, nil)
		return nil
	}

	err = r.applyCreate(KindProject, label, func() (int, error) {
		created, err := r.api.CreateProject(r.ctx, spec.Name, spec.Description)
		if err != nil {
			return 0, err
		}
		return created.ID, nil
	})
	if err != nil {
		return err
	}
	r.projectID = r.resolved[refKey{KindProject, label}]
	r.report.ProjectID = r.projectID
	return nil
}

// prefetch lists the collections concurrently. Templates are included only
// when withTemplates is set; reconcile lists them lazily.
func (r *run) prefetch(withTemplates bool) error {
	if r.projectID == 0 {
		r.templatesLoaded = true
		return nil
	}
	pid := r.projectID
	g, ctx := errgroup.WithContext(r.ctx)
	g.Go(func() (err error) {
		r.keys, err = r.api.ListKeys(ctx, pid)
		return listError(KindKey, err)
	})
	g.Go(func() (err error) {
		r.repositories, err = r.api.ListRepositories(ctx, pid)
		return listError(KindRepository, err)
	})
	g.Go(func() (err error) {
		r.inventories, err = r.api.ListInventories(ctx, pid)
		return listError(KindInventory, err)
	})
	g.Go(func() (err error) {
		r.secrets, err = r.api.ListSecrets(ctx, pid)
		return listError(KindSecret, err)
	})
	g.Go(func() (err error) {
		r.environments, err = r.api.ListEnvironments(ctx, pid)
		return listError(KindEnvironment, err)
	})
	if withTemplates {
		r.templatesLoaded = true
		g.Go(func() (err error) {
			r.templates, err = r.api.ListTemplates(ctx, pid)
			return listError(KindTemplate, err)
		})
	}
	if err := g.Wait(); err != nil {
		r.metrics.RecordError(CodeOf(err))
		return err
	}
	return nil
}

func listError(kind string, err error) error {
	if err == nil {
		return nil
	}
	return classify(kind, "", "list", err)
}

func (r *run) loadTemplates(ctx context.Context) error {
	if r.templatesLoaded {
		return nil
	}
	templates, err := r.api.ListTemplates(ctx, r.projectID)
	if err != nil {
		return err
	}
	r.templates = templates
	r.templatesLoaded = true
	return nil
}

// resolve turns a reference into an id. Names are resolved against
// resources handled earlier in the run, then against the server listing.
// A planned resource resolves to id 0.
func (r *run) resolve(kind string, ref Ref) (int, error) {
	if ref.ID > 0 {
		return ref.ID, nil
	}
	key := refKey{kind, ref.Name}
	if err, ok := r.failed[key]; ok {
		return 0, &DependencyMissingError{Kind: kind, Name: ref.Name, Err: err}
	}
	if id, ok := r.resolved[key]; ok {
		return id, nil
	}

	var (
		id    int
		found bool
		err   error
	)
	switch kind {
	case KindKey:
		id, found, err = pickID(r.keys, "keys", ref.Name, r.opts.Strict, func(k semaphore.SSHKey) int { return k.ID })
	case KindRepository:
		id, found, err = pickID(r.repositories, "repositories", ref.Name, r.opts.Strict, func(x semaphore.Repository) int { return x.ID })
	case KindInventory:
		id, found, err = pickID(r.inventories, "inventories", ref.Name, r.opts.Strict, func(x semaphore.Inventory) int { return x.ID })
	case KindEnvironment:
		id, found, err = pickID(r.environments, "environments", ref.Name, r.opts.Strict, func(x semaphore.Environment) int { return x.ID })
	default:
		return 0, fmt.Errorf("cannot resolve %s references", kind)
	}
	if err != nil {
		return 0, err
	}
	if !found {
		return 0, &DependencyMissingError{Kind: kind, Name: ref.Name}
	}
	return id, nil
}

func pickID[T semaphore.Named](items []T, collection, name string, strict bool, id func(T) int) (int, bool, error) {
	item, err := semaphore.Pick(items, collection, name, strict)
	if err != nil || item == nil {
		return 0, false, err
	}
	return id(*item), true, nil
}

func (r *run) reconcileKey(ctx context.Context, spec KeySpec) error {
	existing, err := semaphore.Pick(r.keys, "keys", spec.Name, r.opts.Strict)
	if err != nil {
		return r.fail(KindKey, spec.Name, "lookup", err)
	}
	if existing != nil {
		r.outcome(KindKey, spec.Name, existing.ID, ActionReused, nil)
		return nil
	}

	spec, err = keyMaterial(spec)
	if err != nil {
		return r.fail(KindKey, spec.Name, "derive", err)
	}
	return r.applyCreate(KindKey, spec.Name, func() (int, error) {
		created, err := r.api.CreateKey(ctx, r.projectID, semaphore.SSHKey{
			Name:       spec.Name,
			Type:       spec.Type,
			PrivateKey: spec.PrivateKey,
			PublicKey:  spec.PublicKey,
		})
		if err != nil {
			return 0, err
		}
		r.keys = append(r.keys, *created)
		return created.ID, nil
	})
}

func (r *run) reconcileRepository(ctx context.Context, spec RepositorySpec) error {
	if spec.Key.IsZero() {
		return r.fail(KindRepository, spec.Name, "resolve",
			fmt.Errorf("%w: repository %q requires a key", semaphore.ErrPrecondition, spec.Name))
	}
	keyID, err := r.resolve(KindKey, spec.Key)
	if err != nil {
		return r.fail(KindRepository, spec.Name, "resolve", err)
	}

	existing, err := semaphore.Pick(r.repositories, "repositories", spec.Name, r.opts.Strict)
	if err != nil {
		return r.fail(KindRepository, spec.Name, "lookup", err)
	}
	if existing == nil {
		return r.applyCreate(KindRepository, spec.Name, func() (int, error) {
			created, err := r.api.CreateRepository(ctx, r.projectID, semaphore.Repository{
				Name:      spec.Name,
				GitURL:    spec.GitURL,
				GitBranch: spec.GitBranch,
				SSHKeyID:  keyID,
			})
			if err != nil {
				return 0, err
			}
			r.repositories = append(r.repositories, *created)
			return created.ID, nil
		})
	}
	if !r.opts.UpdateExisting {
		r.outcome(KindRepository, spec.Name, existing.ID, ActionReused, nil)
		return nil
	}

	var (
		u       semaphore.RepositoryUpdate
		changes []string
	)
	if spec.GitURL != existing.GitURL {
		u.GitURL = semaphore.String(spec.GitURL)
		changes = append(changes, "git_url")
	}
	if spec.GitBranch != "" && spec.GitBranch != existing.GitBranch {
		u.GitBranch = semaphore.String(spec.GitBranch)
		changes = append(changes, "git_branch")
	}
	if keyID > 0 && keyID != existing.SSHKeyID {
		u.SSHKeyID = semaphore.Int(keyID)
		changes = append(changes, "ssh_key_id")
	}
	return r.applyUpdate(KindRepository, spec.Name, existing.ID, changes, func() error {
		return r.api.UpdateRepository(ctx, r.projectID, existing.ID, u)
	})
}

func (r *run) reconcileInventory(ctx context.Context, spec InventorySpec) error {
	keyID := 0
	if !spec.Key.IsZero() {
		id, err := r.resolve(KindKey, spec.Key)
		if err != nil {
			return r.fail(KindInventory, spec.Name, "resolve", err)
		}
		keyID = id
	}
	if spec.Type == "" {
		spec.Type = "static"
	}

	existing, err := semaphore.Pick(r.inventories, "inventories", spec.Name, r.opts.Strict)
	if err != nil {
		return r.fail(KindInventory, spec.Name, "lookup", err)
	}
	if existing == nil {
		return r.applyCreate(KindInventory, spec.Name, func() (int, error) {
			created, err := r.api.CreateInventory(ctx, r.projectID, semaphore.Inventory{
				Name:      spec.Name,
				Type:      spec.Type,
				Inventory: spec.Inventory,
				SSHKeyID:  keyID,
			})
			if err != nil {
				return 0, err
			}
			r.inventories = append(r.inventories, *created)
			return created.ID, nil
		})
	}
	if !r.opts.UpdateExisting {
		r.outcome(KindInventory, spec.Name, existing.ID, ActionReused, nil)
		return nil
	}

	var (
		u       semaphore.InventoryUpdate
		changes []string
	)
	if spec.Type != existing.Type {
		u.Type = semaphore.String(spec.Type)
		changes = append(changes, "type")
	}
	if spec.Inventory != "" && spec.Inventory != existing.Inventory {
		u.Inventory = semaphore.String(spec.Inventory)
		changes = append(changes, "inventory")
	}
	if keyID > 0 && keyID != existing.SSHKeyID {
		u.SSHKeyID = semaphore.Int(keyID)
		changes = append(changes, "ssh_key_id")
	}
	return r.applyUpdate(KindInventory, spec.Name, existing.ID, changes, func() error {
		return r.api.UpdateInventory(ctx, r.projectID, existing.ID, u)
	})
}

func (r *run) reconcileSecret(ctx context.Context, spec SecretSpec) error {
	existing, err := semaphore.Pick(r.secrets, "secrets", spec.Name, r.opts.Strict)
	if err != nil {
		return r.fail(KindSecret, spec.Name, "lookup", err)
	}
	if existing != nil {
		r.outcome(KindSecret, spec.Name, existing.ID, ActionReused, nil)
		return nil
	}
	return r.applyCreate(KindSecret, spec.Name, func() (int, error) {
		created, err := r.api.CreateSecret(ctx, r.projectID, semaphore.Secret{
			Name:        spec.Name,
			Value:       spec.Value,
			Description: spec.Description,
		})
		if err != nil {
			return 0, err
		}
		r.secrets = append(r.secrets, *created)
		return created.ID, nil
	})
}

func (r *run) reconcileEnvironment(ctx context.Context, spec EnvironmentSpec) error {
	existing, err := semaphore.Pick(r.environments, "environments", spec.Name, r.opts.Strict)
	if err != nil {
		return r.fail(KindEnvironment, spec.Name, "lookup", err)
	}
	if existing != nil {
		r.outcome(KindEnvironment, spec.Name, existing.ID, ActionReused, nil)
		return nil
	}

	env, err := environmentBody(spec)
	if err != nil {
		return r.fail(KindEnvironment, spec.Name, "encode", err)
	}
	return r.applyCreate(KindEnvironment, spec.Name, func() (int, error) {
		created, err := r.api.CreateEnvironment(ctx, r.projectID, env)
		if err != nil {
			return 0, err
		}
		r.environments = append(r.environments, *created)
		return created.ID, nil
	})
}

// environmentBody encodes the variable maps into the text fields the server
// stores.
func environmentBody(spec EnvironmentSpec) (semaphore.Environment, error) {
	env := semaphore.Environment{Name: spec.Name, JSON: "{}"}
	if len(spec.Vars) > 0 {
		data, err := json.Marshal(spec.Vars)
		if err != nil {
			return env, fmt.Errorf("encode vars: %w", err)
		}
		env.JSON = string(data)
	}
	if len(spec.Env) > 0 {
		data, err := json.Marshal(spec.Env)
		if err != nil {
			return env, fmt.Errorf("encode env: %w", err)
		}
		env.Env = string(data)
	}
	return env, nil
}

type templateRefs struct {
	inventory   int
	repository  int
	key         int
	environment int
}

func (r *run) resolveTemplateRefs(spec TemplateSpec) (templateRefs, error) {
	var refs templateRefs
	if spec.Inventory.IsZero() {
		return refs, fmt.Errorf("%w: template %q requires an inventory", semaphore.ErrPrecondition, spec.Name)
	}
	if spec.Repository.IsZero() {
		return refs, fmt.Errorf("%w: template %q requires a repository", semaphore.ErrPrecondition, spec.Name)
	}

	var err error
	if refs.inventory, err = r.resolve(KindInventory, spec.Inventory); err != nil {
		return refs, err
	}
	if refs.repository, err = r.resolve(KindRepository, spec.Repository); err != nil {
		return refs, err
	}
	if !spec.Key.IsZero() {
		if refs.key, err = r.resolve(KindKey, spec.Key); err != nil {
			return refs, err
		}
	}
	if !spec.Environment.IsZero() {
		if refs.environment, err = r.resolve(KindEnvironment, spec.Environment); err != nil {
			return refs, err
		}
	}
	return refs, nil
}

// appID returns the app_id to send for a template, nil when none is needed.
func (r *run) appID(spec TemplateSpec) (*int, error) {
	if spec.AppID != nil {
		return spec.AppID, nil
	}
	if !r.opts.RequireAppID {
		return nil, nil
	}
	if r.opts.DefaultAppID > 0 {
		return semaphore.Int(r.opts.DefaultAppID), nil
	}
	return nil, &DependencyMissingError{Kind: KindApp, Name: "app_id"}
}

func (r *run) reconcileTemplate(ctx context.Context, spec TemplateSpec) error {
	refs, err := r.resolveTemplateRefs(spec)
	if err != nil {
		return r.fail(KindTemplate, spec.Name, "resolve", err)
	}
	appID, err := r.appID(spec)
	if err != nil {
		return r.fail(KindTemplate, spec.Name, "resolve", err)
	}
	if err := r.loadTemplates(ctx); err != nil {
		return r.fail(KindTemplate, spec.Name, "lookup", err)
	}

	existing, err := semaphore.Pick(r.templates, "templates", spec.Name, r.opts.Strict)
	if err != nil {
		return r.fail(KindTemplate, spec.Name, "lookup", err)
	}
	if existing == nil {
		return r.applyCreate(KindTemplate, spec.Name, func() (int, error) {
			t := semaphore.Template{
				Name:         spec.Name,
				Description:  spec.Description,
				Playbook:     spec.Playbook,
				InventoryID:  refs.inventory,
				RepositoryID: refs.repository,
				KeyID:        refs.key,
				AppID:        appID,
				App:          spec.App,
				SurveyVars:   spec.SurveyVars,
				Arguments:    spec.Arguments,
			}
			if refs.environment > 0 {
				t.EnvironmentID = semaphore.Int(refs.environment)
			}
			created, err := r.api.CreateTemplate(ctx, r.projectID, t)
			if err != nil {
				return 0, err
			}
			r.templates = append(r.templates, *created)
			return created.ID, nil
		})
	}

	u, changes := r.templateUpdate(spec, refs, appID, existing)
	return r.applyUpdate(KindTemplate, spec.Name, existing.ID, changes, func() error {
		return r.api.UpdateTemplate(ctx, r.projectID, existing.ID, u)
	})
}

// templateUpdate builds the sparse update for an existing template. Survey
// variables are always reconciled; core fields only with UpdateExisting.
func (r *run) templateUpdate(spec TemplateSpec, refs templateRefs, appID *int, existing *semaphore.Template) (semaphore.TemplateUpdate, []string) {
	var (
		u       semaphore.TemplateUpdate
		changes []string
	)
	mode := spec.SurveyMode
	if mode == "" {
		mode = SurveyModeMerge
	}
	if vars, change := surveyUpdate(mode, existing.SurveyVars, spec.SurveyVars); vars != nil {
		u.SurveyVars = vars
		changes = append(changes, change)
	}

	if r.opts.UpdateExisting {
		if spec.Description != "" && spec.Description != existing.Description {
			u.Description = semaphore.String(spec.Description)
			changes = append(changes, "description")
		}
		if spec.Playbook != existing.Playbook {
			u.Playbook = semaphore.String(spec.Playbook)
			changes = append(changes, "playbook")
		}
		if refs.inventory > 0 && refs.inventory != existing.InventoryID {
			u.InventoryID = semaphore.Int(refs.inventory)
			changes = append(changes, "inventory_id")
		}
		if refs.repository > 0 && refs.repository != existing.RepositoryID {
			u.RepositoryID = semaphore.Int(refs.repository)
			changes = append(changes, "repository_id")
		}
		if refs.key > 0 && refs.key != existing.KeyID {
			u.KeyID = semaphore.Int(refs.key)
			changes = append(changes, "key_id")
		}
		if refs.environment > 0 && (existing.EnvironmentID == nil || *existing.EnvironmentID != refs.environment) {
			u.EnvironmentID = semaphore.Int(refs.environment)
			changes = append(changes, "environment_id")
		}
		if spec.App != "" && spec.App != existing.App {
			u.App = semaphore.String(spec.App)
			changes = append(changes, "app")
		}
		if spec.AppID != nil && (existing.AppID == nil || *existing.AppID != *spec.AppID) {
			u.AppID = semaphore.Int(*spec.AppID)
			changes = append(changes, "app_id")
		}
		if len(spec.Arguments) > 0 && !sameArgumentNames(existing.Arguments, spec.Arguments) {
			u.Arguments = spec.Arguments
			changes = append(changes, "arguments")
		}
	}

	if r.opts.RequireAppID && !u.IsEmpty() && u.AppID == nil {
		u.AppID = appID
	}
	return u, changes
}
