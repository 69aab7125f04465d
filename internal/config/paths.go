package config

import (
	"os"
	"path/filepath"
)

// TaskdPath returns the root directory for taskd data.
// It uses $TASKD_PATH if set, otherwise defaults to ~/.taskd.
func TaskdPath() string {
	if v := os.Getenv("TASKD_PATH"); v != "" {
		return v
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", ".taskd")
	}
	return filepath.Join(home, ".taskd")
}

// ConfigPath returns the path to the taskd config file. config.jsonc wins;
// config.yaml is used when only it exists.
func ConfigPath() string {
	jsonc := filepath.Join(TaskdPath(), "config.jsonc")
	if _, err := os.Stat(jsonc); err == nil {
		return jsonc
	}
	for _, name := range []string{"config.yaml", "config.yml"} {
		p := filepath.Join(TaskdPath(), name)
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return jsonc
}

// DotenvPath returns the path to the taskd .env file.
func DotenvPath() string {
	return filepath.Join(TaskdPath(), ".env")
}

// HeartbeatPath returns the path of the liveness file written by serve.
func HeartbeatPath() string {
	return filepath.Join(TaskdPath(), "heartbeat.json")
}
