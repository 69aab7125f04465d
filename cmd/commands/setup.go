package commands

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/urfave/cli/v3"

	"github.com/dohr-michael/taskd/internal/config"
	"github.com/dohr-michael/taskd/internal/handlers"
	"github.com/dohr-michael/taskd/internal/tasks"
)

// loadConfig reads the --config file, falling back to defaults when it is absent.
func loadConfig(cmd *cli.Command) (*config.Config, error) {
	path := cmd.String("config")
	cfg, err := config.LoadOrDefault(path)
	if err != nil {
		return nil, fmt.Errorf("load config %s: %w", path, err)
	}
	return cfg, nil
}

// newLogger builds the slog handler selected by the log section. --debug
// forces the debug level.
func newLogger(w io.Writer, cfg config.LogConfig, debug bool) *slog.Logger {
	var level slog.Level
	switch strings.ToLower(cfg.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	if debug {
		level = slog.LevelDebug
	}

	opts := &slog.HandlerOptions{Level: level}
	if cfg.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// setup loads config and installs the default logger.
func setup(cmd *cli.Command) (*config.Config, *slog.Logger, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, nil, err
	}
	logger := newLogger(os.Stderr, cfg.Log, cmd.Bool("debug"))
	slog.SetDefault(logger)
	return cfg, logger, nil
}

// buildRegistry registers the built-in handlers enabled by cfg.
func buildRegistry(cfg *config.Config) (*tasks.Registry, error) {
	reg := tasks.NewRegistry()
	err := handlers.RegisterBuiltins(reg, handlers.Options{
		ShellEnabled: cfg.Handlers.Shell.Enabled,
		ShellWorkDir: cfg.Handlers.Shell.WorkDir,
		GlobRoot:     cfg.Handlers.Glob.Root,
	})
	if err != nil {
		return nil, err
	}
	return reg, nil
}
