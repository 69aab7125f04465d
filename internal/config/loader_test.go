package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoad(t *testing.T) {
	content := `{
	// This is a JSONC comment
	"gateway": {
		"host": "0.0.0.0",
		"port": 9999,
	},
	"executor": {
		"max_concurrency": 8,
		"completed_ttl": "10m",
		"default_timeout": "30s"
	},
	"handlers": {
		"shell": {"enabled": true, "work_dir": "${{ .Env.TASKD_TEST_WORKDIR }}"}
	},
	"schedules": [
		{"id": "nightly", "cron": "0 3 * * *", "type": "demo", "input": {"variant": "fast"}, "priority": "low"}
	]
}`
	path := writeFile(t, "config.jsonc", content)
	t.Setenv("TASKD_TEST_WORKDIR", "/srv/work")

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}

	if cfg.Gateway.Host != "0.0.0.0" {
		t.Errorf("expected host 0.0.0.0, got %s", cfg.Gateway.Host)
	}
	if cfg.Gateway.Port != 9999 {
		t.Errorf("expected port 9999, got %d", cfg.Gateway.Port)
	}
	if cfg.Executor.MaxConcurrency != 8 {
		t.Errorf("expected max_concurrency 8, got %d", cfg.Executor.MaxConcurrency)
	}
	if cfg.Executor.CompletedTTL.Duration() != 10*time.Minute {
		t.Errorf("expected completed_ttl 10m, got %v", cfg.Executor.CompletedTTL.Duration())
	}
	if cfg.Executor.DefaultTimeout.Duration() != 30*time.Second {
		t.Errorf("expected default_timeout 30s, got %v", cfg.Executor.DefaultTimeout.Duration())
	}
	if !cfg.Handlers.Shell.Enabled || cfg.Handlers.Shell.WorkDir != "/srv/work" {
		t.Errorf("unexpected shell config %+v", cfg.Handlers.Shell)
	}
	if len(cfg.Schedules) != 1 || cfg.Schedules[0].Input["variant"] != "fast" {
		t.Errorf("unexpected schedules %+v", cfg.Schedules)
	}
}

func TestLoadYAML(t *testing.T) {
	content := `
gateway:
  port: 7000
executor:
  max_concurrency: 2
  gc_interval: 30s
log:
  level: debug
  format: json
schedules:
  - id: sweep
    cron: "*/5 * * * *"
    type: glob
    input:
      pattern: "**/*.log"
`
	cfg, err := Load(writeFile(t, "config.yaml", content))
	if err != nil {
		t.Fatal(err)
	}

	if cfg.Gateway.Port != 7000 || cfg.Gateway.Host != "127.0.0.1" {
		t.Errorf("unexpected gateway %+v", cfg.Gateway)
	}
	if cfg.Executor.MaxConcurrency != 2 || cfg.Executor.GCInterval.Duration() != 30*time.Second {
		t.Errorf("unexpected executor %+v", cfg.Executor)
	}
	if cfg.Log.Level != "debug" || cfg.Log.Format != "json" {
		t.Errorf("unexpected log %+v", cfg.Log)
	}
	if len(cfg.Schedules) != 1 || cfg.Schedules[0].Input["pattern"] != "**/*.log" {
		t.Errorf("unexpected schedules %+v", cfg.Schedules)
	}
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv("TASKD_PATH", "/tmp/taskd-defaults")

	cfg, err := Load(writeFile(t, "config.jsonc", `{}`))
	if err != nil {
		t.Fatal(err)
	}

	if cfg.Gateway.Host != "127.0.0.1" {
		t.Errorf("expected default host 127.0.0.1, got %s", cfg.Gateway.Host)
	}
	if cfg.Gateway.Port != 18430 {
		t.Errorf("expected default port 18430, got %d", cfg.Gateway.Port)
	}
	if cfg.Events.BufferSize != 1024 {
		t.Errorf("expected default buffer 1024, got %d", cfg.Events.BufferSize)
	}
	if cfg.Executor.MaxConcurrency != 4 {
		t.Errorf("expected default max_concurrency 4, got %d", cfg.Executor.MaxConcurrency)
	}
	if cfg.Executor.CompletedTTL.Duration() != 5*time.Minute {
		t.Errorf("expected default completed_ttl 5m, got %v", cfg.Executor.CompletedTTL.Duration())
	}
	if cfg.Events.LogDir != "/tmp/taskd-defaults/logs" {
		t.Errorf("unexpected log dir %q", cfg.Events.LogDir)
	}
	if cfg.History.Path != "/tmp/taskd-defaults/history.db" {
		t.Errorf("unexpected history path %q", cfg.History.Path)
	}
	if cfg.Log.Level != "info" || cfg.Log.Format != "text" {
		t.Errorf("unexpected log defaults %+v", cfg.Log)
	}
}

func TestLoadValidation(t *testing.T) {
	tests := []struct {
		name    string
		content string
		field   string
	}{
		{"negative concurrency", `{"executor": {"max_concurrency": -1}}`, "MaxConcurrency"},
		{"port out of range", `{"gateway": {"port": 70000}}`, "Port"},
		{"bad log level", `{"log": {"level": "verbose"}}`, "Level"},
		{"schedule without type", `{"schedules": [{"id": "x", "cron": "* * * * *"}]}`, "Type"},
		{"schedule bad priority", `{"schedules": [{"id": "x", "cron": "* * * * *", "type": "demo", "priority": "urgent"}]}`, "Priority"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeFile(t, "config.jsonc", tt.content))
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tt.field) {
				t.Errorf("error %q does not mention %s", err, tt.field)
			}
		})
	}
}

func TestLoadBadDuration(t *testing.T) {
	if _, err := Load(writeFile(t, "config.jsonc", `{"executor": {"completed_ttl": "soon"}}`)); err == nil {
		t.Fatal("expected duration parse error")
	}
	if _, err := Load(writeFile(t, "config.yml", "executor:\n  completed_ttl: soon\n")); err == nil {
		t.Fatal("expected duration parse error for yaml")
	}
}

func TestLoadOrDefault_MissingFile(t *testing.T) {
	cfg, err := LoadOrDefault(filepath.Join(t.TempDir(), "missing.jsonc"))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Executor.MaxConcurrency != 4 {
		t.Errorf("expected defaults, got %+v", cfg.Executor)
	}
}

func TestExpandEnvTemplates(t *testing.T) {
	t.Setenv("TEST_KEY", "my-secret")
	result := expandEnvTemplates(`{"key": "${{ .Env.TEST_KEY }}"}`)
	expected := `{"key": "my-secret"}`
	if result != expected {
		t.Errorf("expected %s, got %s", expected, result)
	}
}
