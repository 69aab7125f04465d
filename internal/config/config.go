package config

import (
	"fmt"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration for taskd.
type Config struct {
	Gateway   GatewayConfig    `json:"gateway" yaml:"gateway"`
	Executor  ExecutorConfig   `json:"executor" yaml:"executor"`
	Events    EventsConfig     `json:"events" yaml:"events"`
	History   HistoryConfig    `json:"history" yaml:"history"`
	Handlers  HandlersConfig   `json:"handlers" yaml:"handlers"`
	Schedules []ScheduleConfig `json:"schedules,omitempty" yaml:"schedules" validate:"dive"`
	Log       LogConfig        `json:"log" yaml:"log"`
}

// GatewayConfig holds the gateway server settings.
type GatewayConfig struct {
	Host string `json:"host" yaml:"host" validate:"required"`
	Port int    `json:"port" yaml:"port" validate:"min=1,max=65535"`
}

// ExecutorConfig holds scheduling limits and retention.
type ExecutorConfig struct {
	MaxConcurrency int      `json:"max_concurrency" yaml:"max_concurrency" validate:"min=1"`
	CompletedTTL   Duration `json:"completed_ttl" yaml:"completed_ttl" validate:"gt=0"`
	GCInterval     Duration `json:"gc_interval" yaml:"gc_interval" validate:"gt=0"`
	DefaultTimeout Duration `json:"default_timeout,omitempty" yaml:"default_timeout" validate:"gte=0"` // 0 = none
}

// EventsConfig holds event bus settings.
type EventsConfig struct {
	BufferSize int    `json:"buffer_size" yaml:"buffer_size" validate:"min=1"`
	LogDir     string `json:"log_dir" yaml:"log_dir"` // JSONL event logs (default: $TASKD_PATH/logs)
}

// HistoryConfig configures the SQLite task history journal.
type HistoryConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	Path    string `json:"path" yaml:"path"` // default: $TASKD_PATH/history.db
}

// HandlersConfig configures the built-in handlers.
type HandlersConfig struct {
	Shell ShellConfig `json:"shell" yaml:"shell"`
	Glob  GlobConfig  `json:"glob" yaml:"glob"`
}

// ShellConfig enables the in-process shell handler.
type ShellConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	WorkDir string `json:"work_dir,omitempty" yaml:"work_dir"`
}

// GlobConfig sets the default root of the glob handler.
type GlobConfig struct {
	Root string `json:"root,omitempty" yaml:"root"`
}

// ScheduleConfig submits a task every time its cron expression fires.
type ScheduleConfig struct {
	ID          string         `json:"id" yaml:"id" validate:"required"`
	Cron        string         `json:"cron" yaml:"cron" validate:"required"`
	Type        string         `json:"type" yaml:"type" validate:"required"`
	Input       map[string]any `json:"input,omitempty" yaml:"input"`
	Priority    string         `json:"priority,omitempty" yaml:"priority" validate:"omitempty,oneof=low normal high"`
	Owner       string         `json:"owner,omitempty" yaml:"owner"`
	Timeout     Duration       `json:"timeout,omitempty" yaml:"timeout"`
	SkipOverlap bool           `json:"skip_overlap,omitempty" yaml:"skip_overlap"`
}

// LogConfig selects the slog handler.
type LogConfig struct {
	Level  string `json:"level" yaml:"level" validate:"oneof=debug info warn error"`
	Format string `json:"format" yaml:"format" validate:"oneof=text json"`
}

// Duration wraps time.Duration for JSON and YAML unmarshaling.
type Duration time.Duration

func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

func (d *Duration) UnmarshalJSON(b []byte) error {
	// Remove quotes
	s := string(b)
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		s = s[1 : len(s)-1]
	}
	return d.parse(s)
}

func (d Duration) MarshalJSON() ([]byte, error) {
	return []byte(`"` + time.Duration(d).String() + `"`), nil
}

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.ScalarNode {
		return fmt.Errorf("duration: expected a scalar at line %d", value.Line)
	}
	return d.parse(value.Value)
}

func (d *Duration) parse(s string) error {
	if s == "" || s == "0" {
		*d = 0
		return nil
	}
	dur, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("duration %q: %w", s, err)
	}
	*d = Duration(dur)
	return nil
}
