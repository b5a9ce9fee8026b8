package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/alamotechllc/semsync/pkg/config"
	"github.com/alamotechllc/semsync/pkg/engine"
	"github.com/alamotechllc/semsync/pkg/policy"
	"github.com/alamotechllc/semsync/pkg/semaphore"
	"github.com/alamotechllc/semsync/pkg/telemetry"
)

// runtime is everything a command needs to talk to the server.
type runtime struct {
	settings  *config.Settings
	telemetry *telemetry.Telemetry
	client    *semaphore.Client
	logger    zerolog.Logger
}

// newRuntime loads settings and builds telemetry and an API client from
// them. Callers must close the runtime.
func (c *cli) newRuntime(metricsAddr string) (*runtime, error) {
	settings, err := config.LoadSettings(c.settings)
	if err != nil {
		return nil, err
	}
	if metricsAddr != "" {
		settings.MetricsAddr = metricsAddr
	}

	cfg := telemetryConfig(settings, c.version)
	tel, err := telemetry.NewTelemetry(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to set up telemetry: %w", err)
	}
	tel.Logger = telemetry.NewLoggerWithWriter(cfg.Logging, c.stderr)

	session := semaphore.NewPasswordSession(settings.Username, settings.Password)
	if settings.UsesToken() {
		session = semaphore.NewTokenSession(settings.Token)
	}

	logger := log.Logger
	logger.Debug().Str("server", settings.ServerURL).Str("auth", string(session.Mode())).Msg("Connecting")
	client, err := semaphore.New(settings.ServerURL, session,
		semaphore.WithTimeout(settings.Timeout),
		semaphore.WithLogger(logger),
		semaphore.WithMetrics(tel.Metrics),
		semaphore.WithTracer(tel.Tracer),
		semaphore.WithUserAgent("semsync/"+c.version),
	)
	if err != nil {
		_ = tel.Shutdown(context.Background())
		return nil, err
	}

	return &runtime{
		settings:  settings,
		telemetry: tel,
		client:    client,
		logger:    logger,
	}, nil
}

// telemetryConfig maps settings onto the telemetry configuration.
func telemetryConfig(s *config.Settings, version string) *telemetry.Config {
	cfg := telemetry.DefaultConfig()
	cfg.ServiceVersion = version
	cfg.Environment = s.ServerURL
	cfg.Logging.Level = s.LogLevel
	cfg.Logging.Format = s.LogFormat

	cfg.Tracing.Exporter = s.TraceExporter
	cfg.Tracing.Enabled = s.TraceExporter != "none"
	cfg.Tracing.Endpoint = s.TraceEndpoint

	if s.MetricsAddr != "" {
		cfg.Metrics.Enabled = true
		cfg.Metrics.ListenAddress = s.MetricsAddr
	}
	return cfg
}

func (rt *runtime) close() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rt.telemetry.Shutdown(ctx); err != nil {
		rt.logger.Warn().Err(err).Msg("Telemetry shutdown failed")
	}
}

// instruments are the engine options shared by every command.
func (rt *runtime) instruments() []engine.Option {
	return []engine.Option{
		engine.WithLogger(rt.logger),
		engine.WithMetrics(rt.telemetry.Metrics),
		engine.WithTracer(rt.telemetry.Tracer),
		engine.WithEvents(rt.telemetry.Events),
	}
}

// engine builds a reconcile engine with the settings' name and app_id
// behaviour.
func (rt *runtime) engine(opts engine.Options) *engine.Engine {
	opts.Strict = rt.settings.StrictNames
	opts.RequireAppID = rt.settings.RequireAppID
	opts.DefaultAppID = rt.settings.DefaultAppID
	return engine.New(rt.client, opts, rt.instruments()...)
}

func (rt *runtime) trigger() *engine.Trigger {
	return engine.NewTrigger(rt.client, rt.settings.StrictNames, rt.instruments()...)
}

// operation runs fn as one traced command. fn receives a context carrying
// the telemetry and an operation logger.
func (rt *runtime) operation(ctx context.Context, name string, fn func(context.Context) error) error {
	op := telemetry.StartOperation(rt.telemetry.WithContext(ctx), "cli."+name)
	err := fn(op.Ctx)
	op.End(err)

	logger := op.Logger.WithField("duration", op.Timer.Duration().String())
	if err != nil {
		logger.WithError(err).Debug("Command failed")
	} else {
		logger.Debug("Command finished")
	}
	return err
}

// projectID returns the project id from --project or the settings.
func (rt *runtime) projectID() (int, error) {
	if rt.settings.ProjectID <= 0 {
		return 0, fmt.Errorf("a project id is required: use --project or SEMSYNC_PROJECT_ID")
	}
	return rt.settings.ProjectID, nil
}

// loadDesired reads a desired-state file. A project id from the settings
// replaces the file's project reference.
func (c *cli) loadDesired(ctx context.Context, path string) (*engine.DesiredState, error) {
	loader := config.NewLoader(config.WithLoaderLogger(log.Logger))
	desired, err := loader.Load(ctx, path)
	if err != nil {
		return nil, err
	}
	if id := c.settings.GetInt("project_id"); id > 0 {
		desired.Project.ID = id
	}
	return desired, nil
}

// newPolicyEngine returns a policy engine holding the built-in policies and
// any --policy paths.
func (c *cli) newPolicyEngine(ctx context.Context, events *telemetry.EventPublisher) (*policy.Engine, error) {
	var opts []policy.Option
	if events != nil {
		opts = append(opts, policy.WithEvents(events))
	}
	pe, err := policy.NewEngine(log.Logger, opts...)
	if err != nil {
		return nil, err
	}
	if len(c.policyPaths) > 0 {
		if err := pe.LoadPolicies(ctx, c.policyPaths); err != nil {
			return nil, err
		}
	}
	return pe, nil
}

// checkPolicies evaluates desired for operation and logs every violation.
// The result says whether operation may proceed.
func (c *cli) checkPolicies(ctx context.Context, desired *engine.DesiredState, operation string, events *telemetry.EventPublisher) (*policy.Result, error) {
	pe, err := c.newPolicyEngine(ctx, events)
	if err != nil {
		return nil, err
	}
	return evaluatePolicies(ctx, pe, desired, operation)
}

func evaluatePolicies(ctx context.Context, pe *policy.Engine, desired *engine.DesiredState, operation string) (*policy.Result, error) {
	result, err := pe.Evaluate(ctx, desired, operation)
	if err != nil {
		return nil, err
	}
	for _, v := range result.Violations {
		ev := log.Warn()
		if v.Severity == policy.SeverityError {
			ev = log.Error()
		}
		ev.Str("policy", v.Policy).Str("kind", v.Kind).Str("name", v.Name).Msg(v.Message)
	}
	return result, nil
}

// policyError is returned when an error-severity violation blocks a command.
func policyError(result *policy.Result) error {
	return fmt.Errorf("%d policy violation(s) with error severity", len(result.Errors()))
}
