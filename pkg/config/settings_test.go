package config

import (
	"strings"
	"testing"
	"time"
)

func TestLoadSettingsLayers(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "semsync.yaml", `
server_url: http://semaphore.lab:3000
username: admin
password: changeme
project_id: 3
timeout: 45s
log_level: debug
`)
	t.Setenv("SEMSYNC_PROJECT_ID", "9")
	t.Setenv("SEMSYNC_STRICT_NAMES", "true")

	s, err := LoadSettings(NewViper(path))
	if err != nil {
		t.Fatalf("LoadSettings failed: %v", err)
	}
	if s.ServerURL != "http://semaphore.lab:3000" {
		t.Errorf("Expected server url from file, got %q", s.ServerURL)
	}
	if s.ProjectID != 9 {
		t.Errorf("Expected project id 9 from env, got %d", s.ProjectID)
	}
	if !s.StrictNames {
		t.Error("Expected strict names from env")
	}
	if s.Timeout != 45*time.Second {
		t.Errorf("Expected 45s timeout, got %v", s.Timeout)
	}
	if s.LogLevel != "debug" || s.LogFormat != "console" {
		t.Errorf("Expected debug/console, got %s/%s", s.LogLevel, s.LogFormat)
	}
	if s.UsesToken() {
		t.Error("Expected password auth")
	}
}

func TestLoadSettingsUnprefixedLogLevel(t *testing.T) {
	t.Setenv("SEMSYNC_SERVER_URL", "http://localhost:3000")
	t.Setenv("SEMSYNC_TOKEN", "abc")
	t.Setenv("LOG_LEVEL", "warn")

	s, err := LoadSettings(NewViper(writeFile(t, t.TempDir(), "semsync.yaml", "{}\n")))
	if err != nil {
		t.Fatalf("LoadSettings failed: %v", err)
	}
	if s.LogLevel != "warn" {
		t.Errorf("Expected warn, got %s", s.LogLevel)
	}
	if !s.UsesToken() {
		t.Error("Expected token auth")
	}
}

func TestLoadSettingsMissingExplicitFile(t *testing.T) {
	if _, err := LoadSettings(NewViper("/nonexistent/semsync.yaml")); err == nil {
		t.Fatal("Expected error for a missing --config file, got nil")
	}
}

func TestValidateSettings(t *testing.T) {
	valid := func() Settings {
		return Settings{
			ServerURL:     "http://localhost:3000",
			Token:         "abc",
			Timeout:       30 * time.Second,
			LogLevel:      "info",
			LogFormat:     "console",
			TraceExporter: "none",
		}
	}

	tests := []struct {
		name     string
		mutate   func(*Settings)
		contains string
	}{
		{name: "valid token", mutate: func(*Settings) {}},
		{name: "valid password", mutate: func(s *Settings) { s.Token = ""; s.Username = "admin"; s.Password = "pw" }},
		{name: "no auth", mutate: func(s *Settings) { s.Token = "" }, contains: "token"},
		{name: "token and password", mutate: func(s *Settings) { s.Username = "admin"; s.Password = "pw" }, contains: "cannot be combined with token"},
		{name: "username without password", mutate: func(s *Settings) { s.Token = ""; s.Username = "admin" }, contains: "password"},
		{name: "bad url", mutate: func(s *Settings) { s.ServerURL = "not a url" }, contains: "server_url"},
		{name: "zero timeout", mutate: func(s *Settings) { s.Timeout = 0 }, contains: "timeout"},
		{name: "bad log level", mutate: func(s *Settings) { s.LogLevel = "verbose" }, contains: "log_level"},
		{name: "otlp without endpoint", mutate: func(s *Settings) { s.TraceExporter = "otlp" }, contains: "trace_endpoint"},
		{name: "bad metrics addr", mutate: func(s *Settings) { s.MetricsAddr = "nowhere" }, contains: "metrics_addr"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := valid()
			tt.mutate(&s)
			err := ValidateSettings(&s)
			if tt.contains == "" {
				if err != nil {
					t.Fatalf("Expected valid settings, got %v", err)
				}
				return
			}
			if err == nil {
				t.Fatal("Expected error, got nil")
			}
			if !strings.Contains(err.Error(), tt.contains) {
				t.Errorf("Expected error containing %q, got %v", tt.contains, err)
			}
		})
	}
}
