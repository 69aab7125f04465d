package tasks

import (
	"context"
	"errors"
	"fmt"
)

var (
	ErrUnknownType     = errors.New("unknown task type")
	ErrDuplicateType   = errors.New("task type already registered")
	ErrValidation      = errors.New("invalid task input")
	ErrDuplicateTask   = errors.New("task id already in use")
	ErrInvalidPriority = errors.New("invalid task priority")
	ErrClosed          = errors.New("executor is closed")
	ErrTaskNotFound    = errors.New("task not found")

	// Cancellation causes. A handler returning one of these (or the context
	// error) is treated as having observed cancellation.
	ErrCancelled = errors.New("task cancelled")
	ErrTimeout   = errors.New("task timed out")
	ErrShutdown  = errors.New("executor shut down")
)

// Default error codes recorded on failed tasks.
const (
	CodeHandlerError = "HANDLER_ERROR"
	CodeHandlerPanic = "HANDLER_PANIC"
)

// ValidationError wraps a rejection returned by a handler's Validate hook.
type ValidationError struct {
	Type string
	Err  error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validate %s input: %v", e.Type, e.Err)
}

func (e *ValidationError) Unwrap() error { return e.Err }

// Is makes errors.Is(err, ErrValidation) match any ValidationError.
func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

// Coder is implemented by errors that carry a stable machine-readable code.
type Coder interface {
	Code() string
}

// HandlerError is a failure returned by a handler with an explicit code.
type HandlerError struct {
	ErrCode string
	Message string
	Err     error
}

// NewHandlerError builds a coded handler failure.
func NewHandlerError(code, message string, err error) *HandlerError {
	return &HandlerError{ErrCode: code, Message: message, Err: err}
}

func (e *HandlerError) Error() string {
	if e.Err != nil && e.Message == "" {
		return e.Err.Error()
	}
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *HandlerError) Unwrap() error { return e.Err }

func (e *HandlerError) Code() string { return e.ErrCode }

// IsCancellation reports whether err means the handler unwound because its
// context was cancelled.
func IsCancellation(ctx context.Context, err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, ErrCancelled) || errors.Is(err, ErrTimeout) || errors.Is(err, ErrShutdown) {
		return true
	}
	if ctx != nil {
		if cause := context.Cause(ctx); cause != nil && errors.Is(err, cause) {
			return true
		}
	}
	return false
}

// ToTaskError converts a handler failure into the recorded error form.
func ToTaskError(err error) *TaskError {
	code := CodeHandlerError
	var c Coder
	if errors.As(err, &c) && c.Code() != "" {
		code = c.Code()
	}
	return &TaskError{Code: code, Message: err.Error()}
}
