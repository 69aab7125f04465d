package events

import (
	"github.com/dohr-michael/taskd/internal/tasks"
)

// EventPayload is the interface all typed payloads implement.
type EventPayload interface {
	EventType() EventType
}

// =============================================================================
// QUEUE EVENTS
// =============================================================================

type TaskQueuedPayload struct {
	Type     string             `json:"type"`
	Priority tasks.TaskPriority `json:"priority"`
	Position int                `json:"position"`
}

func (TaskQueuedPayload) EventType() EventType { return EventTaskQueued }

type TaskPausedPayload struct{}

func (TaskPausedPayload) EventType() EventType { return EventTaskPaused }

type TaskResumedPayload struct {
	Position int `json:"position"`
}

func (TaskResumedPayload) EventType() EventType { return EventTaskResumed }

type TaskPriorityChangedPayload struct {
	Priority tasks.TaskPriority `json:"priority"`
	Position int                `json:"position"`
}

func (TaskPriorityChangedPayload) EventType() EventType { return EventTaskPriorityChanged }

type TaskQueuePositionPayload struct {
	Position int `json:"position"`
}

func (TaskQueuePositionPayload) EventType() EventType { return EventTaskQueuePosition }

// =============================================================================
// EXECUTION EVENTS
// =============================================================================

type TaskStartedPayload struct {
	Type string `json:"type"`
}

func (TaskStartedPayload) EventType() EventType { return EventTaskStarted }

type TaskProgressPayload struct {
	Percent float64 `json:"percent"`
	Message string  `json:"message,omitempty"`
	Detail  any     `json:"detail,omitempty"`
}

func (TaskProgressPayload) EventType() EventType { return EventTaskProgress }

type TaskStreamPayload struct {
	Chunk any `json:"chunk"`
}

func (TaskStreamPayload) EventType() EventType { return EventTaskStream }

// =============================================================================
// TERMINAL EVENTS
// =============================================================================

type TaskCompletedPayload struct {
	Result     any   `json:"result,omitempty"`
	DurationMs int64 `json:"duration_ms"`
}

func (TaskCompletedPayload) EventType() EventType { return EventTaskCompleted }

type TaskErrorPayload struct {
	Code       string `json:"code"`
	Message    string `json:"message"`
	DurationMs int64  `json:"duration_ms"`
}

func (TaskErrorPayload) EventType() EventType { return EventTaskError }

// Cancellation reasons.
const (
	CancelReasonRequested = "cancelled"
	CancelReasonTimeout   = "timeout"
	CancelReasonShutdown  = "shutdown"
)

type TaskCancelledPayload struct {
	Reason     string `json:"reason"`
	DurationMs int64  `json:"duration_ms,omitempty"`
}

func (TaskCancelledPayload) EventType() EventType { return EventTaskCancelled }

// TerminalPayload rebuilds the terminal event payload of a finished task from
// its snapshot. It reports false while the task is still live.
func TerminalPayload(s tasks.Snapshot) (EventPayload, bool) {
	switch s.Status {
	case tasks.TaskCompleted:
		return TaskCompletedPayload{Result: s.Result, DurationMs: s.DurationMs}, true
	case tasks.TaskFailed:
		var p TaskErrorPayload
		if s.Error != nil {
			p.Code, p.Message = s.Error.Code, s.Error.Message
		}
		p.DurationMs = s.DurationMs
		return p, true
	case tasks.TaskCancelled:
		return TaskCancelledPayload{DurationMs: s.DurationMs}, true
	}
	return nil, false
}

// =============================================================================
// SCHEDULER EVENTS
// =============================================================================

type ScheduleTriggerPayload struct {
	EntryID  string `json:"entry_id"`
	TaskType string `json:"task_type"`
	TaskID   string `json:"task_id"`
}

func (ScheduleTriggerPayload) EventType() EventType { return EventScheduleTrigger }

// ExtractPayload returns the event payload as T when it has that type.
func ExtractPayload[T EventPayload](e Event) (T, bool) {
	p, ok := e.Payload.(T)
	return p, ok
}
