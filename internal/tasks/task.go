// Package tasks defines the task data model, the handler contract and the
// handler registry shared by the executor and its transports.
package tasks

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// TaskStatus represents the lifecycle state of a task.
type TaskStatus string

const (
	TaskQueued    TaskStatus = "queued"
	TaskPaused    TaskStatus = "paused"
	TaskRunning   TaskStatus = "running"
	TaskCompleted TaskStatus = "completed"
	TaskFailed    TaskStatus = "error"
	TaskCancelled TaskStatus = "cancelled"
)

// IsTerminal reports whether no further transition can happen from s.
func (s TaskStatus) IsTerminal() bool {
	return s == TaskCompleted || s == TaskFailed || s == TaskCancelled
}

// TaskPriority represents the execution priority of a task.
type TaskPriority string

const (
	PriorityLow    TaskPriority = "low"
	PriorityNormal TaskPriority = "normal"
	PriorityHigh   TaskPriority = "high"
)

// Weight maps the priority to its queue weight (higher runs first).
func (p TaskPriority) Weight() int {
	switch p {
	case PriorityLow:
		return 0
	case PriorityHigh:
		return 2
	default:
		return 1
	}
}

// Valid reports whether p is one of the known priority bands.
func (p TaskPriority) Valid() bool {
	return p == PriorityLow || p == PriorityNormal || p == PriorityHigh
}

// ParsePriority converts a string into a TaskPriority. Empty means normal.
func ParsePriority(s string) (TaskPriority, error) {
	if s == "" {
		return PriorityNormal, nil
	}
	p := TaskPriority(strings.ToLower(s))
	if !p.Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidPriority, s)
	}
	return p, nil
}

// SubmitOptions are the optional parameters of a submission.
type SubmitOptions struct {
	TaskID   string        `json:"taskId,omitempty"`
	Priority TaskPriority  `json:"priority,omitempty"`
	Timeout  time.Duration `json:"-"`
	Owner    string        `json:"owner,omitempty"`
}

// TaskProgress is the last progress reported by a handler.
type TaskProgress struct {
	Percent float64 `json:"percent"`
	Message string  `json:"message,omitempty"`
}

// TaskError is the failure recorded on a task in the error state.
type TaskError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Snapshot is a point-in-time copy of a task, safe to hand out of the executor.
type Snapshot struct {
	ID          string       `json:"id"`
	Type        string       `json:"type"`
	Status      TaskStatus   `json:"status"`
	Priority    TaskPriority `json:"priority"`
	Owner       string       `json:"owner,omitempty"`
	CreatedAt   time.Time    `json:"created_at"`
	StartedAt   *time.Time   `json:"started_at,omitempty"`
	CompletedAt *time.Time   `json:"completed_at,omitempty"`
	DurationMs  int64        `json:"duration_ms,omitempty"`
	Progress    TaskProgress `json:"progress"`
	Result      any          `json:"result,omitempty"`
	Error       *TaskError   `json:"error,omitempty"`
}

// GenerateTaskID creates a unique task identifier.
func GenerateTaskID() string {
	u := uuid.New().String()
	return "task_" + strings.ReplaceAll(u[:8], "-", "")
}
