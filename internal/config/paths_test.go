package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestTaskdPath_Default(t *testing.T) {
	t.Setenv("TASKD_PATH", "")

	home, err := os.UserHomeDir()
	if err != nil {
		t.Fatal(err)
	}

	got := TaskdPath()
	want := filepath.Join(home, ".taskd")
	if got != want {
		t.Errorf("TaskdPath() = %q, want %q", got, want)
	}
}

func TestTaskdPath_EnvOverride(t *testing.T) {
	t.Setenv("TASKD_PATH", "/tmp/custom-taskd")

	got := TaskdPath()
	want := "/tmp/custom-taskd"
	if got != want {
		t.Errorf("TaskdPath() = %q, want %q", got, want)
	}
}

func TestConfigPath(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("TASKD_PATH", dir)

	if got, want := ConfigPath(), filepath.Join(dir, "config.jsonc"); got != want {
		t.Errorf("ConfigPath() = %q, want %q", got, want)
	}

	yamlPath := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(yamlPath, []byte("{}"), 0o644); err != nil {
		t.Fatal(err)
	}
	if got := ConfigPath(); got != yamlPath {
		t.Errorf("ConfigPath() = %q, want %q when only yaml exists", got, yamlPath)
	}

	jsoncPath := filepath.Join(dir, "config.jsonc")
	if err := os.WriteFile(jsoncPath, []byte("{}"), 0o644); err != nil {
		t.Fatal(err)
	}
	if got := ConfigPath(); got != jsoncPath {
		t.Errorf("ConfigPath() = %q, want %q (jsonc wins)", got, jsoncPath)
	}
}

func TestDotenvAndHeartbeatPath(t *testing.T) {
	t.Setenv("TASKD_PATH", "/tmp/test-taskd")

	if got, want := DotenvPath(), "/tmp/test-taskd/.env"; got != want {
		t.Errorf("DotenvPath() = %q, want %q", got, want)
	}
	if got, want := HeartbeatPath(), "/tmp/test-taskd/heartbeat.json"; got != want {
		t.Errorf("HeartbeatPath() = %q, want %q", got, want)
	}
}
