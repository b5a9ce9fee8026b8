// Package telemetry provides logging, tracing, metrics and events for semsync.
//
// Structured logging uses zerolog, traces use OpenTelemetry with a stdout or
// OTLP exporter, metrics live on a private Prometheus registry and events are
// delivered to in-process subscribers.
//
// Initialize telemetry at startup:
//
//	tel, err := telemetry.NewTelemetry(telemetry.DefaultConfig())
//	if err != nil {
//	    return err
//	}
//	defer tel.Shutdown(context.Background())
//	ctx = tel.WithContext(ctx)
//
// Components take a logger and may record into a nil *Metrics, which is a
// no-op:
//
//	logger := tel.Logger.NewComponentLogger("reconcile").WithRunID(runID)
//	tel.Metrics.RecordAction("template", "created")
//
// Wrap an operation to get a span, a logger and a timer together:
//
//	op := telemetry.StartOperation(ctx, "template.run")
//	err := run(op.Ctx)
//	op.End(err)
//
// Metric names are prefixed with the configured namespace (semsync by
// default): api_requests_total, api_request_duration_seconds,
// reconcile_runs_total, reconcile_duration_seconds, reconcile_actions_total,
// reconcile_active_runs, task_triggers_total and errors_total.
package telemetry
