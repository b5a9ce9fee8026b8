package policy

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func newTestLoader() *Loader {
	return NewLoader(zerolog.New(nil).Level(zerolog.Disabled))
}

func writePolicy(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatalf("Failed to create dir: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write test file: %v", err)
	}
}

func TestLoadFromFile_Rego(t *testing.T) {
	loader := newTestLoader()
	path := filepath.Join(t.TempDir(), "naming.rego")
	writePolicy(t, path, `# Template names use kebab case.
# Applies to every project.
# severity: error

package semsync.custom.naming

deny contains "bad name" if { false }
`)

	loaded, err := loader.loadFromFile(path)
	if err != nil {
		t.Fatalf("Failed to load policy: %v", err)
	}
	if loaded.Name != "naming" {
		t.Errorf("Expected name 'naming', got '%s'", loaded.Name)
	}
	if loaded.Description != "Template names use kebab case. Applies to every project." {
		t.Errorf("Unexpected description: %q", loaded.Description)
	}
	if loaded.Severity != SeverityError {
		t.Errorf("Expected severity error, got %s", loaded.Severity)
	}
	if loaded.Source != path {
		t.Errorf("Expected source %s, got %s", path, loaded.Source)
	}
	if !loaded.Enabled {
		t.Error("Expected policy enabled")
	}
}

func TestLoadFromFile_JSON(t *testing.T) {
	loader := newTestLoader()
	path := filepath.Join(t.TempDir(), "policy.json")

	policy := Policy{
		Name:        "test-json-policy",
		Description: "A test policy",
		Rego:        "package test\n\ndeny contains \"x\" if { false }\n",
		Severity:    SeverityInfo,
		Enabled:     true,
	}
	data, err := json.Marshal(policy)
	if err != nil {
		t.Fatalf("Failed to marshal policy: %v", err)
	}
	writePolicy(t, path, string(data))

	loaded, err := loader.loadFromFile(path)
	if err != nil {
		t.Fatalf("Failed to load policy: %v", err)
	}
	if loaded.Name != policy.Name {
		t.Errorf("Expected name '%s', got '%s'", policy.Name, loaded.Name)
	}
	if loaded.Severity != SeverityInfo {
		t.Errorf("Expected severity info, got %s", loaded.Severity)
	}
	if loaded.Source != path {
		t.Errorf("Expected source %s, got %s", path, loaded.Source)
	}
}

func TestLoadFromFile_Errors(t *testing.T) {
	tests := []struct {
		name    string
		file    string
		content string
	}{
		{name: "unsupported type", file: "policy.txt", content: "deny"},
		{name: "invalid json", file: "policy.json", content: "{invalid"},
		{name: "json without rego", file: "policy.json", content: `{"name": "x"}`},
		{name: "json bad severity", file: "policy.json", content: `{"name": "x", "rego": "package x", "severity": "fatal"}`},
		{name: "rego bad severity", file: "policy.rego", content: "# severity: fatal\npackage x\n"},
	}

	loader := newTestLoader()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), tt.file)
			writePolicy(t, path, tt.content)
			if _, err := loader.loadFromFile(path); err == nil {
				t.Error("Expected error, got nil")
			}
		})
	}
}

func TestParseRegoFileDescription(t *testing.T) {
	tests := []struct {
		name     string
		content  string
		expected string
	}{
		{name: "no comments", content: "package x\n", expected: ""},
		{name: "single line", content: "# Checks things.\npackage x\n", expected: "Checks things."},
		{name: "leading blank lines", content: "\n\n# Checks things.\npackage x\n", expected: "Checks things."},
		{name: "stops at blank line", content: "# First.\n\n# Second.\npackage x\n", expected: "First."},
		{name: "empty comment lines skipped", content: "# First.\n#\n# Second.\npackage x\n", expected: "First. Second."},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := parseRegoFile("x.rego", []byte(tt.content))
			if err != nil {
				t.Fatalf("parseRegoFile failed: %v", err)
			}
			if p.Description != tt.expected {
				t.Errorf("Expected %q, got %q", tt.expected, p.Description)
			}
			if p.Severity != SeverityWarning {
				t.Errorf("Expected default severity warning, got %s", p.Severity)
			}
		})
	}
}

func TestLoadFromDirectory_Recursive(t *testing.T) {
	loader := newTestLoader()
	dir := t.TempDir()

	writePolicy(t, filepath.Join(dir, "a.rego"), "package a\n")
	writePolicy(t, filepath.Join(dir, "nested", "b.rego"), "package b\n")
	writePolicy(t, filepath.Join(dir, "nested", "deeper", "c.json"), `{"name": "c", "rego": "package c"}`)
	writePolicy(t, filepath.Join(dir, "README.md"), "# Policies")

	loaded, err := loader.loadFromDirectory(context.Background(), dir)
	if err != nil {
		t.Fatalf("Failed to load directory: %v", err)
	}
	if len(loaded) != 3 {
		t.Fatalf("Expected 3 policies, got %d", len(loaded))
	}
}

func TestLoadFromPaths(t *testing.T) {
	loader := newTestLoader()
	dir := t.TempDir()
	file := filepath.Join(t.TempDir(), "single.rego")
	writePolicy(t, filepath.Join(dir, "one.rego"), "package one\n")
	writePolicy(t, filepath.Join(dir, "two.rego"), "package two\n")
	writePolicy(t, file, "package single\n")

	loaded, err := loader.LoadFromPaths(context.Background(), []string{dir, file})
	if err != nil {
		t.Fatalf("LoadFromPaths failed: %v", err)
	}
	if len(loaded) != 3 {
		t.Errorf("Expected 3 policies, got %d", len(loaded))
	}

	if _, err := loader.LoadFromPaths(context.Background(), []string{filepath.Join(dir, "missing")}); err == nil {
		t.Error("Expected error for missing path, got nil")
	}
}

func TestWatchReloads(t *testing.T) {
	loader := newTestLoader()
	dir := t.TempDir()
	path := filepath.Join(dir, "watched.rego")
	writePolicy(t, path, "# Before.\npackage watched\n")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	reloaded := make(chan []Policy, 4)
	err := loader.Watch(ctx, []string{dir}, func(policies []Policy) error {
		reloaded <- policies
		return nil
	})
	if err != nil {
		t.Fatalf("Watch failed: %v", err)
	}

	writePolicy(t, path, "# After.\npackage watched\n")

	select {
	case policies := <-reloaded:
		if len(policies) != 1 || policies[0].Description != "After." {
			t.Errorf("Expected reloaded policy with new description, got %+v", policies)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Expected reload after write")
	}
}
