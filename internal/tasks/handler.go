package tasks

import (
	"context"
	"encoding/json"
)

// Handler executes one task type. The context is the task's cancellation
// token: it is cancelled on explicit cancel, timeout or shutdown, and
// context.Cause reports which.
type Handler interface {
	Type() string
	Execute(ctx context.Context, input json.RawMessage, progress ProgressReporter, stream StreamReporter) (any, error)
}

// Validator is an optional Handler hook called synchronously on submit.
type Validator interface {
	Validate(input json.RawMessage) error
}

// ProgressReporter publishes progress for the running task. Calls made after
// the task left the executor are dropped.
type ProgressReporter interface {
	Report(percent float64, message string, detail any)
}

// StreamReporter publishes incremental output chunks for the running task.
type StreamReporter interface {
	Emit(chunk any)
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc struct {
	Name string
	Fn   func(ctx context.Context, input json.RawMessage, progress ProgressReporter, stream StreamReporter) (any, error)
}

func (h HandlerFunc) Type() string { return h.Name }

func (h HandlerFunc) Execute(ctx context.Context, input json.RawMessage, progress ProgressReporter, stream StreamReporter) (any, error) {
	return h.Fn(ctx, input, progress, stream)
}

// NopReporter discards progress and stream calls.
type NopReporter struct{}

func (NopReporter) Report(float64, string, any) {}
func (NopReporter) Emit(any)                    {}
