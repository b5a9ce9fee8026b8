package engine

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/alamotechllc/semsync/pkg/semaphore"
	"github.com/alamotechllc/semsync/pkg/telemetry"
)

// API is the subset of the Semaphore client used by the engine.
type API interface {
	ListProjects(ctx context.Context) ([]semaphore.Project, error)
	GetProject(ctx context.Context, projectID int) (*semaphore.Project, error)
	CreateProject(ctx context.Context, name, description string) (*semaphore.Project, error)
	DeleteProject(ctx context.Context, projectID int) (bool, error)

	ListKeys(ctx context.Context, projectID int) ([]semaphore.SSHKey, error)
	CreateKey(ctx context.Context, projectID int, key semaphore.SSHKey) (*semaphore.SSHKey, error)
	DeleteKey(ctx context.Context, projectID, keyID int) (bool, error)

	ListRepositories(ctx context.Context, projectID int) ([]semaphore.Repository, error)
	CreateRepository(ctx context.Context, projectID int, repo semaphore.Repository) (*semaphore.Repository, error)
	UpdateRepository(ctx context.Context, projectID, repoID int, u semaphore.RepositoryUpdate) error
	DeleteRepository(ctx context.Context, projectID, repoID int) (bool, error)

	ListInventories(ctx context.Context, projectID int) ([]semaphore.Inventory, error)
	CreateInventory(ctx context.Context, projectID int, inv semaphore.Inventory) (*semaphore.Inventory, error)
	UpdateInventory(ctx context.Context, projectID, inventoryID int, u semaphore.InventoryUpdate) error
	DeleteInventory(ctx context.Context, projectID, inventoryID int) (bool, error)

	ListSecrets(ctx context.Context, projectID int) ([]semaphore.Secret, error)
	CreateSecret(ctx context.Context, projectID int, secret semaphore.Secret) (*semaphore.Secret, error)
	DeleteSecret(ctx context.Context, projectID, secretID int) (bool, error)

	ListEnvironments(ctx context.Context, projectID int) ([]semaphore.Environment, error)
	CreateEnvironment(ctx context.Context, projectID int, env semaphore.Environment) (*semaphore.Environment, error)
	DeleteEnvironment(ctx context.Context, projectID, envID int) (bool, error)

	ListTemplates(ctx context.Context, projectID int) ([]semaphore.Template, error)
	CreateTemplate(ctx context.Context, projectID int, t semaphore.Template) (*semaphore.Template, error)
	UpdateTemplate(ctx context.Context, projectID, templateID int, u semaphore.TemplateUpdate) error
	DeleteTemplate(ctx context.Context, projectID, templateID int) (bool, error)

	RunTemplate(ctx context.Context, projectID, templateID int, opts semaphore.RunOptions) (*semaphore.TaskHandle, error)
	ListTasks(ctx context.Context, projectID, templateID int) ([]semaphore.Task, error)
	GetTask(ctx context.Context, projectID, taskID int) (*semaphore.Task, error)
}

var _ API = (*semaphore.Client)(nil)

// Options control a reconcile run.
type Options struct {
	// Strict fails a lookup when a name matches more than one record.
	Strict bool

	// UpdateExisting diffs repositories, inventories and template core
	// fields against the server and updates them. Survey variables are
	// reconciled either way.
	UpdateExisting bool

	// Plan computes actions without writing.
	Plan bool

	// RequireAppID sends app_id on every template create and update, using
	// DefaultAppID when the template does not set one.
	RequireAppID bool
	DefaultAppID int

	// DestroyProject lets Destroy delete the project itself.
	DestroyProject bool
}

// instruments are shared by Engine and Trigger.
type instruments struct {
	logger  zerolog.Logger
	metrics *telemetry.Metrics
	tracer  *telemetry.Tracer
	events  *telemetry.EventPublisher
}

// Option configures an Engine or a Trigger.
type Option func(*instruments)

// WithLogger sets the logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(in *instruments) { in.logger = logger }
}

// WithMetrics records runs, actions and errors.
func WithMetrics(m *telemetry.Metrics) Option {
	return func(in *instruments) { in.metrics = m }
}

// WithTracer opens a span per run and per resource.
func WithTracer(t *telemetry.Tracer) Option {
	return func(in *instruments) { in.tracer = t }
}

// WithEvents publishes one event per outcome.
func WithEvents(p *telemetry.EventPublisher) Option {
	return func(in *instruments) { in.events = p }
}

func newInstruments(component string, opts []Option) instruments {
	in := instruments{logger: zerolog.Nop()}
	for _, opt := range opts {
		opt(&in)
	}
	in.logger = in.logger.With().Str("component", component).Logger()
	return in
}

func (in *instruments) startSpan(ctx context.Context, operation string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	if in.tracer == nil {
		return ctx, noop.Span{}
	}
	return in.tracer.StartSpan(ctx, operation, attrs...)
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		telemetry.RecordError(span, err)
	} else {
		telemetry.RecordSuccess(span)
	}
	span.End()
}

// Engine reconciles desired state against a Semaphore server.
type Engine struct {
	instruments
	api  API
	opts Options
	now  func() time.Time
}

// New creates an Engine.
func New(api API, opts Options, options ...Option) *Engine {
	return &Engine{
		instruments: newInstruments("engine", options),
		api:         api,
		opts:        opts,
		now:         time.Now,
	}
}

// Options returns the engine options.
func (e *Engine) Options() Options {
	return e.opts
}
