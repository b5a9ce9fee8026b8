package telemetry

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"
)

// counterValue sums the samples of a metric family whose labels match.
func counterValue(t *testing.T, m *Metrics, name string, labels map[string]string) float64 {
	t.Helper()
	families, err := m.Registry().Gather()
	if err != nil {
		t.Fatalf("gather failed: %v", err)
	}
	var total float64
	for _, fam := range families {
		if fam.GetName() != name {
			continue
		}
	metrics:
		for _, metric := range fam.GetMetric() {
			for _, lp := range metric.GetLabel() {
				if want, ok := labels[lp.GetName()]; ok && want != lp.GetValue() {
					continue metrics
				}
			}
			switch {
			case metric.GetCounter() != nil:
				total += metric.GetCounter().GetValue()
			case metric.GetGauge() != nil:
				total += metric.GetGauge().GetValue()
			}
		}
	}
	return total
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{name: "defaults", mutate: func(*Config) {}},
		{name: "bad level", mutate: func(c *Config) { c.Logging.Level = "loud" }, wantErr: true},
		{name: "bad format", mutate: func(c *Config) { c.Logging.Format = "xml" }, wantErr: true},
		{
			name: "otlp without endpoint",
			mutate: func(c *Config) {
				c.Tracing.Enabled = true
				c.Tracing.Exporter = "otlp"
			},
			wantErr: true,
		},
		{name: "sampling out of range", mutate: func(c *Config) { c.Tracing.SamplingRate = 2 }, wantErr: true},
		{
			name: "metrics without address",
			mutate: func(c *Config) {
				c.Metrics.Enabled = true
				c.Metrics.ListenAddress = ""
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Expected error=%v, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestLoggerFields(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerWithWriter(LoggingConfig{Level: "debug", Format: "json"}, &buf)

	logger.NewComponentLogger("reconcile").WithRunID("run-1").WithResource("template", "deploy").Info("created")

	out := buf.String()
	for _, want := range []string{`"component":"reconcile"`, `"run_id":"run-1"`, `"kind":"template"`, `"name":"deploy"`} {
		if !strings.Contains(out, want) {
			t.Errorf("Expected %s in log output, got %s", want, out)
		}
	}
}

func TestLoggerLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerWithWriter(LoggingConfig{Level: "warn", Format: "json"}, &buf)

	logger.Info("hidden")
	if buf.Len() != 0 {
		t.Errorf("Expected info to be filtered at warn level, got %s", buf.String())
	}
	logger.Warn("shown")
	if !strings.Contains(buf.String(), "shown") {
		t.Errorf("Expected warn message, got %s", buf.String())
	}
}

func TestFromContextFallback(t *testing.T) {
	logger := FromContext(context.Background())
	if logger == nil {
		t.Fatal("Expected a fallback logger")
	}
	logger.Info("discarded")
}

func TestMetricsDisabledIsNoop(t *testing.T) {
	m, err := NewMetrics(MetricsConfig{Enabled: false})
	if err != nil {
		t.Fatalf("NewMetrics failed: %v", err)
	}
	m.RecordAPIRequest("GET", "/projects", "200", time.Millisecond)
	m.RecordAction("template", "created")
	if m.Registry() != nil {
		t.Error("Expected no registry for disabled metrics")
	}

	var nilMetrics *Metrics
	nilMetrics.RecordError("not_found")
}

func TestMetricsRecording(t *testing.T) {
	m, err := NewMetrics(MetricsConfig{Enabled: true, Namespace: "semsync", Path: "/metrics", ListenAddress: ":0"})
	if err != nil {
		t.Fatalf("NewMetrics failed: %v", err)
	}

	m.RecordAPIRequest("GET", "/project/{id}/templates", "200", 10*time.Millisecond)
	m.RecordAPIRequest("GET", "/project/{id}/templates", "200", 20*time.Millisecond)
	m.RecordAction("template", "created")
	m.RecordRunStarted()
	m.RecordRunCompleted("success", time.Second)

	if got := counterValue(t, m, "semsync_api_requests_total", map[string]string{"route": "/project/{id}/templates"}); got != 2 {
		t.Errorf("Expected 2 API requests, got %v", got)
	}
	if got := counterValue(t, m, "semsync_reconcile_actions_total", map[string]string{"kind": "template", "action": "created"}); got != 1 {
		t.Errorf("Expected 1 created action, got %v", got)
	}
	if got := counterValue(t, m, "semsync_reconcile_active_runs", nil); got != 0 {
		t.Errorf("Expected no active runs, got %v", got)
	}

	srv := httptest.NewServer(m.Handler())
	defer srv.Close()
	resp, err := http.Get(srv.URL)
	if err != nil {
		t.Fatalf("scrape failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("Expected 200 from metrics handler, got %d", resp.StatusCode)
	}
}

func TestTracerDisabledSpans(t *testing.T) {
	tracer, err := NewTracer(TracingConfig{Enabled: false}, "semsync", "test", "test")
	if err != nil {
		t.Fatalf("NewTracer failed: %v", err)
	}
	defer tracer.Shutdown(context.Background())

	ctx, span := tracer.StartReconcileSpan(context.Background(), "run-1", 3)
	RecordError(span, errors.New("boom"))
	span.End()

	if TraceID(ctx) != "" {
		t.Errorf("Expected no sampled trace, got %s", TraceID(ctx))
	}
}

func TestTracerUnknownExporter(t *testing.T) {
	_, err := NewTracer(TracingConfig{Enabled: true, Exporter: "zipkin", SamplingRate: 1}, "semsync", "test", "test")
	if err == nil {
		t.Fatal("Expected error for unsupported exporter")
	}
}

func TestEventPublisherSync(t *testing.T) {
	ep := NewEventPublisher(EventsConfig{Enabled: true})

	var got []Event
	ep.Subscribe(func(e Event) { got = append(got, e) }, FilterByType(EventTypeResourceChanged))

	_ = ep.PublishReconcileStarted("run-1", "network")
	_ = ep.PublishResourceChanged("run-1", "template", "deploy", "created", 4)

	if len(got) != 1 {
		t.Fatalf("Expected 1 filtered event, got %d", len(got))
	}
	if got[0].ID == "" || got[0].Timestamp.IsZero() {
		t.Error("Expected ID and timestamp to be assigned")
	}
	if got[0].Data["id"] != 4 {
		t.Errorf("Expected id 4, got %v", got[0].Data["id"])
	}
}

func TestFilterByRunID(t *testing.T) {
	ep := NewEventPublisher(EventsConfig{Enabled: true})

	var got []string
	ep.Subscribe(func(e Event) { got = append(got, e.Name) }, FilterByRunID("run-2"))

	_ = ep.PublishResourceChanged("run-1", "key", "deploy", "created", 1)
	_ = ep.PublishResourceChanged("run-2", "key", "backup", "created", 2)

	if len(got) != 1 || got[0] != "backup" {
		t.Errorf("Expected only backup from run-2, got %v", got)
	}
}

func TestEventPublisherAsync(t *testing.T) {
	ep := NewEventPublisher(EventsConfig{Enabled: true, EnableAsync: true, BufferSize: 8})

	var mu sync.Mutex
	count := 0
	ep.Subscribe(func(Event) {
		mu.Lock()
		count++
		mu.Unlock()
	}, FilterByLevel(EventLevelError))

	_ = ep.PublishReconcileFailed("run-1", errors.New("auth"))
	_ = ep.PublishTaskTriggered("deploy", 12)
	ep.Close()

	mu.Lock()
	defer mu.Unlock()
	if count != 1 {
		t.Errorf("Expected 1 error event, got %d", count)
	}

	if err := ep.Publish(Event{Type: EventTypeTaskTriggered}); err == nil {
		t.Error("Expected error publishing to a closed publisher")
	}
}

func TestEventPublisherDisabled(t *testing.T) {
	ep := NewEventPublisher(EventsConfig{Enabled: false})
	called := false
	ep.Subscribe(func(Event) { called = true }, nil)
	_ = ep.PublishTaskTriggered("deploy", 1)
	if called {
		t.Error("Expected disabled publisher to drop events")
	}
}

func TestStartOperationWithoutTelemetry(t *testing.T) {
	op := StartOperation(context.Background(), "noop")
	if op.Span != nil {
		t.Error("Expected no span without telemetry in context")
	}
	op.End(nil)
}

func TestStartOperationWithTelemetry(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Logging.Output = "stdout"
	tel, err := NewTelemetry(cfg)
	if err != nil {
		t.Fatalf("NewTelemetry failed: %v", err)
	}
	defer tel.Shutdown(context.Background())

	ctx := tel.WithContext(context.Background())
	if FromTelemetryContext(ctx) != tel {
		t.Fatal("Expected telemetry in context")
	}
	op := StartOperation(ctx, "template.run", AttrTemplateID.Int(3))
	if op.Span == nil {
		t.Fatal("Expected a span")
	}
	op.End(errors.New("failed"))
}

func TestStartOperationTraceIDOnlyWhenSampled(t *testing.T) {
	tests := []struct {
		name    string
		tracing TracingConfig
		wantID  bool
	}{
		{name: "disabled", tracing: TracingConfig{Enabled: false}, wantID: false},
		{name: "sampled", tracing: TracingConfig{Enabled: true, Exporter: "none", SamplingRate: 1}, wantID: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			cfg.Tracing = tt.tracing
			tel, err := NewTelemetry(cfg)
			if err != nil {
				t.Fatalf("NewTelemetry failed: %v", err)
			}
			defer tel.Shutdown(context.Background())

			var buf bytes.Buffer
			tel.Logger = NewLoggerWithWriter(LoggingConfig{Level: "info", Format: "json"}, &buf)

			op := StartOperation(tel.WithContext(context.Background()), "cli.apply")
			op.Logger.Info("done")
			op.End(nil)

			id := TraceID(op.Ctx)
			if (id != "") != tt.wantID {
				t.Errorf("Expected trace id present=%v, got %q", tt.wantID, id)
			}
			if strings.Contains(buf.String(), "trace_id") != tt.wantID {
				t.Errorf("Expected trace_id field present=%v, got %s", tt.wantID, buf.String())
			}
		})
	}
}
