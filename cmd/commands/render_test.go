package commands

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/dohr-michael/taskd/internal/events"
	"github.com/dohr-michael/taskd/internal/tasks"
)

func mustJSON(t *testing.T, v any) json.RawMessage {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatal(err)
	}
	return data
}

func TestFormatEvent(t *testing.T) {
	tests := []struct {
		name      string
		eventType events.EventType
		payload   any
		label     string
		contains  string
	}{
		{"queued", events.EventTaskQueued, events.TaskQueuedPayload{Type: "sleep", Priority: tasks.PriorityHigh, Position: 2}, "queued", "priority=high position=2"},
		{"started", events.EventTaskStarted, events.TaskStartedPayload{Type: "sleep"}, "started", "sleep"},
		{"progress", events.EventTaskProgress, events.TaskProgressPayload{Percent: 42, Message: "halfway"}, "progress", " 42% halfway"},
		{"stream text", events.EventTaskStream, events.TaskStreamPayload{Chunk: "line\n"}, "stream", "line"},
		{"stream object", events.EventTaskStream, events.TaskStreamPayload{Chunk: map[string]int{"n": 1}}, "stream", `{"n":1}`},
		{"completed", events.EventTaskCompleted, events.TaskCompletedPayload{Result: "ok", DurationMs: 12}, "completed", `in 12ms result="ok"`},
		{"error", events.EventTaskError, events.TaskErrorPayload{Code: "handler", Message: "boom"}, "error", "handler: boom"},
		{"cancelled", events.EventTaskCancelled, events.TaskCancelledPayload{Reason: events.CancelReasonTimeout}, "cancelled", events.CancelReasonTimeout},
		{"position", events.EventTaskQueuePosition, events.TaskQueuePositionPayload{Position: 3}, "queue-position", "position=3"},
		{"priority", events.EventTaskPriorityChanged, events.TaskPriorityChangedPayload{Priority: tasks.PriorityLow}, "priority", "low"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			label, detail := formatEvent(string(tt.eventType), mustJSON(t, tt.payload))
			if label != tt.label {
				t.Errorf("label = %q, want %q", label, tt.label)
			}
			if !strings.Contains(detail, tt.contains) {
				t.Errorf("detail = %q, want it to contain %q", detail, tt.contains)
			}
		})
	}
}

func TestFormatEvent_Unknown(t *testing.T) {
	label, detail := formatEvent("schedule.trigger", json.RawMessage(`{"entry_id":"x"}`))
	if label != "schedule.trigger" || detail != `{"entry_id":"x"}` {
		t.Errorf("got %q %q", label, detail)
	}
}

func TestCompactJSON_Truncates(t *testing.T) {
	got := compactJSON(strings.Repeat("a", 500))
	if len(got) != 200 || !strings.HasSuffix(got, "...") {
		t.Errorf("unexpected truncation: len=%d", len(got))
	}
	if compactJSON(nil) != "null" {
		t.Error("nil should render as null")
	}
}

func TestEventPrinter_Plain(t *testing.T) {
	var buf bytes.Buffer
	p := &eventPrinter{w: &buf}
	p.printEvent(events.NewTaskEvent("t1", "", events.TaskStartedPayload{Type: "sleep"}))

	out := buf.String()
	if !strings.HasPrefix(out, "started") || !strings.HasSuffix(out, "sleep\n") {
		t.Errorf("unexpected output %q", out)
	}
}
