package ws

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dohr-michael/taskd/internal/events"
	"github.com/dohr-michael/taskd/internal/tasks"
)

// FrameType represents the type of WebSocket frame.
type FrameType string

const (
	FrameTypeRequest  FrameType = "req"
	FrameTypeResponse FrameType = "res"
	FrameTypeEvent    FrameType = "event"
)

// Method represents a WebSocket request method.
type Method string

const (
	MethodSubmitTask  Method = "submit_task"
	MethodCancelTask  Method = "cancel_task"
	MethodPauseTask   Method = "pause_task"
	MethodResumeTask  Method = "resume_task"
	MethodSetPriority Method = "set_priority"
	MethodTaskResult  Method = "task_result"
	MethodWaitTask    Method = "wait_task"
	MethodQueueStatus Method = "queue_status"
)

// Error codes carried by failed responses.
const (
	CodeInvalidParams   = "invalid_params"
	CodeUnknownMethod   = "unknown_method"
	CodeUnknownType     = "unknown_type"
	CodeValidation      = "validation"
	CodeInvalidPriority = "invalid_priority"
	CodeDuplicate       = "duplicate"
	CodeClosed          = "closed"
	CodeNotFound        = "not_found"
	CodeInternal        = "internal"
)

// ErrInvalidOptions rejects malformed submission options.
var ErrInvalidOptions = errors.New("invalid submit options")

// MaxTimeout is the longest per-task timeout accepted on the wire.
const MaxTimeout = 30 * 24 * time.Hour

// Frame is the WebSocket protocol envelope.
type Frame struct {
	Type    FrameType       `json:"type"`
	ID      string          `json:"id,omitempty"`
	Method  string          `json:"method,omitempty"`
	Params  json.RawMessage `json:"params,omitempty"`
	OK      *bool           `json:"ok,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
	Error   string          `json:"error,omitempty"`
	Code    string          `json:"code,omitempty"`
	Event   string          `json:"event,omitempty"`
	TaskID  string          `json:"task_id,omitempty"`
	Owner   string          `json:"owner,omitempty"`
}

// SubmitOptions mirrors tasks.SubmitOptions on the wire.
type SubmitOptions struct {
	TaskID    string `json:"taskId,omitempty"`
	Priority  string `json:"priority,omitempty"`
	TimeoutMs int64  `json:"timeoutMs,omitempty"`
	Owner     string `json:"owner,omitempty"`
}

// SubmitParams is the body of a submission, over WS or HTTP.
type SubmitParams struct {
	Type    string          `json:"type"`
	Input   json.RawMessage `json:"input,omitempty"`
	Options SubmitOptions   `json:"options"`
}

// TaskOptions converts the wire options, validating the priority.
func (p SubmitParams) TaskOptions() (tasks.SubmitOptions, error) {
	opts := tasks.SubmitOptions{
		TaskID: p.Options.TaskID,
		Owner:  p.Options.Owner,
	}
	switch {
	case p.Options.TimeoutMs < 0:
		return opts, fmt.Errorf("%w: timeoutMs must not be negative", ErrInvalidOptions)
	case p.Options.TimeoutMs > MaxTimeout.Milliseconds():
		return opts, fmt.Errorf("%w: timeoutMs must not exceed %d", ErrInvalidOptions, MaxTimeout.Milliseconds())
	}
	opts.Timeout = time.Duration(p.Options.TimeoutMs) * time.Millisecond
	if p.Options.Priority != "" {
		prio, err := tasks.ParsePriority(p.Options.Priority)
		if err != nil {
			return opts, err
		}
		opts.Priority = prio
	}
	return opts, nil
}

// SubmitResult is returned for a successful submission.
type SubmitResult struct {
	TaskID string `json:"taskId"`
}

// TaskParams addresses a single task.
type TaskParams struct {
	TaskID string `json:"taskId"`
}

// PriorityParams changes the priority of a waiting task.
type PriorityParams struct {
	TaskID   string `json:"taskId"`
	Priority string `json:"priority"`
}

// AckResult reports whether a cancel, pause, resume or priority change applied.
type AckResult struct {
	Applied bool `json:"applied"`
}

// ErrorCode classifies a submission or control error.
func ErrorCode(err error) string {
	switch {
	case errors.Is(err, tasks.ErrUnknownType):
		return CodeUnknownType
	case errors.Is(err, tasks.ErrValidation):
		return CodeValidation
	case errors.Is(err, tasks.ErrInvalidPriority):
		return CodeInvalidPriority
	case errors.Is(err, tasks.ErrDuplicateTask):
		return CodeDuplicate
	case errors.Is(err, tasks.ErrClosed):
		return CodeClosed
	case errors.Is(err, ErrInvalidOptions):
		return CodeInvalidParams
	case errors.Is(err, tasks.ErrTaskNotFound):
		return CodeNotFound
	}
	return CodeInternal
}

// MarshalFrame serializes a Frame to JSON bytes.
func MarshalFrame(f Frame) ([]byte, error) {
	return json.Marshal(f)
}

// UnmarshalFrame deserializes JSON bytes into a Frame.
func UnmarshalFrame(data []byte) (Frame, error) {
	var f Frame
	err := json.Unmarshal(data, &f)
	return f, err
}

// NewEventFrame creates a Frame for pushing an event. The payload holds the
// event payload only; routing fields are lifted onto the frame.
func NewEventFrame(e events.Event) (Frame, error) {
	data, err := json.Marshal(e.Payload)
	if err != nil {
		return Frame{}, err
	}
	return Frame{
		Type:    FrameTypeEvent,
		ID:      e.ID,
		Event:   string(e.Type),
		TaskID:  e.TaskID,
		Owner:   e.Owner,
		Payload: data,
	}, nil
}

// NewRequestFrame creates a request Frame.
func NewRequestFrame(id string, method Method, params any) (Frame, error) {
	f := Frame{
		Type:   FrameTypeRequest,
		ID:     id,
		Method: string(method),
	}
	if params != nil {
		data, err := json.Marshal(params)
		if err != nil {
			return Frame{}, err
		}
		f.Params = data
	}
	return f, nil
}

// NewResponseFrame creates a response Frame.
func NewResponseFrame(id string, ok bool, payload any, errMsg string) (Frame, error) {
	f := Frame{
		Type:  FrameTypeResponse,
		ID:    id,
		OK:    &ok,
		Error: errMsg,
	}
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return Frame{}, err
		}
		f.Payload = data
	}
	return f, nil
}
