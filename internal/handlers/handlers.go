// Package handlers provides the built-in task handlers.
package handlers

import (
	"encoding/json"
	"fmt"

	"github.com/go-playground/validator/v10"

	"github.com/dohr-michael/taskd/internal/tasks"
)

// validate is shared by every handler; validator caches struct metadata.
var validate = validator.New()

// decodeInput unmarshals a task input and runs struct validation on it.
func decodeInput[T any](input json.RawMessage) (T, error) {
	var v T
	if len(input) == 0 {
		input = json.RawMessage("{}")
	}
	if err := json.Unmarshal(input, &v); err != nil {
		return v, fmt.Errorf("decode input: %w", err)
	}
	if err := validate.Struct(v); err != nil {
		return v, err
	}
	return v, nil
}

// Options selects and configures the built-in handlers.
type Options struct {
	ShellEnabled bool
	ShellWorkDir string
	GlobRoot     string
}

// RegisterBuiltins registers demo, glob and (when enabled) shell.
func RegisterBuiltins(r *tasks.Registry, opts Options) error {
	builtins := []tasks.Handler{
		NewDemo(),
		NewGlob(opts.GlobRoot),
	}
	if opts.ShellEnabled {
		builtins = append(builtins, NewShell(opts.ShellWorkDir))
	}
	for _, h := range builtins {
		if err := r.Register(h); err != nil {
			return fmt.Errorf("register %s handler: %w", h.Type(), err)
		}
	}
	return nil
}
