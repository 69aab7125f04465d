package events

import (
	"encoding/json"
	"testing"

	"github.com/dohr-michael/taskd/internal/tasks"
)

func TestTaskEventTypeFromPayload(t *testing.T) {
	tests := []struct {
		payload EventPayload
		want    EventType
	}{
		{TaskQueuedPayload{}, EventTaskQueued},
		{TaskStartedPayload{}, EventTaskStarted},
		{TaskProgressPayload{}, EventTaskProgress},
		{TaskStreamPayload{}, EventTaskStream},
		{TaskCompletedPayload{}, EventTaskCompleted},
		{TaskErrorPayload{}, EventTaskError},
		{TaskCancelledPayload{}, EventTaskCancelled},
		{TaskPausedPayload{}, EventTaskPaused},
		{TaskResumedPayload{}, EventTaskResumed},
		{TaskPriorityChangedPayload{}, EventTaskPriorityChanged},
		{TaskQueuePositionPayload{}, EventTaskQueuePosition},
	}

	for _, tt := range tests {
		evt := NewTaskEvent("task_1", "win_a", tt.payload)
		if evt.Type != tt.want {
			t.Errorf("%T: got type %q, want %q", tt.payload, evt.Type, tt.want)
		}
		if evt.TaskID != "task_1" || evt.Owner != "win_a" {
			t.Errorf("%T: got task %q owner %q", tt.payload, evt.TaskID, evt.Owner)
		}
		if evt.ID == "" {
			t.Errorf("%T: expected non-empty event id", tt.payload)
		}
	}
}

func TestTerminalEventTypes(t *testing.T) {
	for _, et := range []EventType{EventTaskCompleted, EventTaskError, EventTaskCancelled} {
		if !et.IsTerminal() {
			t.Errorf("%s should be terminal", et)
		}
	}
	for _, et := range []EventType{EventTaskQueued, EventTaskStarted, EventTaskProgress, EventTaskPaused} {
		if et.IsTerminal() {
			t.Errorf("%s should not be terminal", et)
		}
	}
}

func TestExtractPayload(t *testing.T) {
	evt := NewTaskEvent("task_1", "", TaskPriorityChangedPayload{Priority: tasks.PriorityHigh, Position: 1})

	got, ok := ExtractPayload[TaskPriorityChangedPayload](evt)
	if !ok {
		t.Fatal("ExtractPayload returned false")
	}
	if got.Priority != tasks.PriorityHigh || got.Position != 1 {
		t.Errorf("got %+v", got)
	}

	if _, ok := ExtractPayload[TaskQueuedPayload](evt); ok {
		t.Error("ExtractPayload with wrong type should return false")
	}
}

func TestEventJSON(t *testing.T) {
	evt := NewTaskEvent("task_1", "win_a", TaskErrorPayload{Code: "BOOM", Message: "it broke"})
	data, err := json.Marshal(evt)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var decoded map[string]any
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if decoded["type"] != "task.error" {
		t.Errorf("type: got %v", decoded["type"])
	}
	payload, _ := decoded["payload"].(map[string]any)
	if payload["code"] != "BOOM" {
		t.Errorf("payload.code: got %v", payload["code"])
	}
}

func TestRecorder(t *testing.T) {
	rec := NewRecorder()
	rec.Publish(NewTaskEvent("a", "", TaskQueuedPayload{}))
	rec.Publish(NewTaskEvent("b", "", TaskQueuedPayload{}))
	rec.Publish(NewTaskEvent("a", "", TaskStartedPayload{}))

	if got := len(rec.Events()); got != 3 {
		t.Fatalf("Events: got %d, want 3", got)
	}
	if got := len(rec.ForTask("a")); got != 2 {
		t.Errorf("ForTask(a): got %d, want 2", got)
	}
	if got := rec.Count("", EventTaskQueued); got != 2 {
		t.Errorf("Count(queued): got %d, want 2", got)
	}
	rec.Reset()
	if got := len(rec.Events()); got != 0 {
		t.Errorf("after Reset: got %d", got)
	}
}

func TestTerminalPayload(t *testing.T) {
	tests := []struct {
		name     string
		snap     tasks.Snapshot
		want     EventType
		terminal bool
	}{
		{"completed", tasks.Snapshot{Status: tasks.TaskCompleted, Result: "ok", DurationMs: 5}, EventTaskCompleted, true},
		{"failed", tasks.Snapshot{Status: tasks.TaskFailed, Error: &tasks.TaskError{Code: "E", Message: "boom"}}, EventTaskError, true},
		{"failed without error", tasks.Snapshot{Status: tasks.TaskFailed}, EventTaskError, true},
		{"cancelled", tasks.Snapshot{Status: tasks.TaskCancelled}, EventTaskCancelled, true},
		{"running", tasks.Snapshot{Status: tasks.TaskRunning}, "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, ok := TerminalPayload(tt.snap)
			if ok != tt.terminal {
				t.Fatalf("terminal = %v, want %v", ok, tt.terminal)
			}
			if ok && p.EventType() != tt.want {
				t.Errorf("type = %s, want %s", p.EventType(), tt.want)
			}
		})
	}

	p, _ := TerminalPayload(tasks.Snapshot{Status: tasks.TaskFailed, Error: &tasks.TaskError{Code: "E", Message: "boom"}, DurationMs: 7})
	if ep := p.(TaskErrorPayload); ep.Code != "E" || ep.Message != "boom" || ep.DurationMs != 7 {
		t.Errorf("error payload = %+v", ep)
	}
}
