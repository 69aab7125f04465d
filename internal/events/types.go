package events

import (
	"fmt"
	"sync/atomic"
	"time"
)

// EventType represents the type of event.
type EventType string

const (
	EventTaskQueued          EventType = "task.queued"
	EventTaskStarted         EventType = "task.started"
	EventTaskProgress        EventType = "task.progress"
	EventTaskStream          EventType = "task.stream"
	EventTaskCompleted       EventType = "task.completed"
	EventTaskError           EventType = "task.error"
	EventTaskCancelled       EventType = "task.cancelled"
	EventTaskPaused          EventType = "task.paused"
	EventTaskResumed         EventType = "task.resumed"
	EventTaskPriorityChanged EventType = "task.priority-changed"
	EventTaskQueuePosition   EventType = "task.queue-position"

	// Scheduler
	EventScheduleTrigger EventType = "schedule.trigger"
)

// IsTerminal reports whether the event ends a task's event stream.
func (t EventType) IsTerminal() bool {
	return t == EventTaskCompleted || t == EventTaskError || t == EventTaskCancelled
}

// Event is the envelope published for every task lifecycle change. Owner is
// an opaque routing tag; empty means broadcast.
type Event struct {
	ID        string       `json:"id"`
	Type      EventType    `json:"type"`
	TaskID    string       `json:"task_id,omitempty"`
	Owner     string       `json:"owner,omitempty"`
	Timestamp time.Time    `json:"timestamp"`
	Payload   EventPayload `json:"payload"`
}

// eventIDCounter is used to generate sequential event IDs.
var eventIDCounter uint64

// NewTaskEvent creates an event for a task.
func NewTaskEvent(taskID, owner string, payload EventPayload) Event {
	return Event{
		ID:        generateEventID(),
		Type:      payload.EventType(),
		TaskID:    taskID,
		Owner:     owner,
		Timestamp: time.Now(),
		Payload:   payload,
	}
}

// NewTypedEvent creates an event that is not bound to a task.
func NewTypedEvent(payload EventPayload) Event {
	return NewTaskEvent("", "", payload)
}

func generateEventID() string {
	seq := atomic.AddUint64(&eventIDCounter, 1)
	return fmt.Sprintf("%d-%d", time.Now().UnixNano(), seq)
}
