package ws

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"testing"
	"time"

	"github.com/dohr-michael/taskd/internal/events"
	"github.com/dohr-michael/taskd/internal/tasks"
)

func TestMarshalUnmarshal_RequestFrame(t *testing.T) {
	orig, err := NewRequestFrame("req-1", MethodSubmitTask, SubmitParams{Type: "demo"})
	if err != nil {
		t.Fatalf("NewRequestFrame: %v", err)
	}

	data, err := MarshalFrame(orig)
	if err != nil {
		t.Fatalf("MarshalFrame: %v", err)
	}

	got, err := UnmarshalFrame(data)
	if err != nil {
		t.Fatalf("UnmarshalFrame: %v", err)
	}

	if got.Type != FrameTypeRequest {
		t.Fatalf("expected type %q, got %q", FrameTypeRequest, got.Type)
	}
	if got.Method != string(MethodSubmitTask) {
		t.Fatalf("expected method %q, got %q", MethodSubmitTask, got.Method)
	}

	var p SubmitParams
	if err := json.Unmarshal(got.Params, &p); err != nil {
		t.Fatalf("unmarshal params: %v", err)
	}
	if p.Type != "demo" {
		t.Fatalf("expected params.type %q, got %q", "demo", p.Type)
	}
}

func TestNewEventFrame(t *testing.T) {
	e := events.NewTaskEvent("task_1", "alice", events.TaskProgressPayload{Percent: 40, Message: "step 4"})
	f, err := NewEventFrame(e)
	if err != nil {
		t.Fatalf("NewEventFrame: %v", err)
	}
	if f.Type != FrameTypeEvent {
		t.Fatalf("expected type %q, got %q", FrameTypeEvent, f.Type)
	}
	if f.Event != string(events.EventTaskProgress) || f.TaskID != "task_1" || f.Owner != "alice" {
		t.Fatalf("frame routing = %+v", f)
	}

	var p events.TaskProgressPayload
	if err := json.Unmarshal(f.Payload, &p); err != nil {
		t.Fatalf("unmarshal payload: %v", err)
	}
	if p.Percent != 40 || p.Message != "step 4" {
		t.Fatalf("payload = %+v", p)
	}
}

func TestNewResponseFrame_OK(t *testing.T) {
	f, err := NewResponseFrame("req-5", true, SubmitResult{TaskID: "t1"}, "")
	if err != nil {
		t.Fatalf("NewResponseFrame: %v", err)
	}
	if f.Type != FrameTypeResponse || f.ID != "req-5" {
		t.Fatalf("frame = %+v", f)
	}
	if f.OK == nil || !*f.OK {
		t.Fatal("expected ok=true")
	}

	var p SubmitResult
	if err := json.Unmarshal(f.Payload, &p); err != nil {
		t.Fatalf("unmarshal payload: %v", err)
	}
	if p.TaskID != "t1" {
		t.Fatalf("expected taskId %q, got %q", "t1", p.TaskID)
	}
}

func TestNewResponseFrame_Error(t *testing.T) {
	f, err := NewResponseFrame("req-6", false, nil, "something went wrong")
	if err != nil {
		t.Fatalf("NewResponseFrame: %v", err)
	}
	if f.OK == nil || *f.OK {
		t.Fatal("expected ok=false")
	}
	if f.Error != "something went wrong" {
		t.Fatalf("expected error %q, got %q", "something went wrong", f.Error)
	}
	if f.Payload != nil {
		t.Fatalf("expected nil payload, got %s", string(f.Payload))
	}
}

func TestSubmitParams_TaskOptions(t *testing.T) {
	p := SubmitParams{Options: SubmitOptions{TaskID: "x", Priority: "HIGH", TimeoutMs: 1500, Owner: "o"}}
	opts, err := p.TaskOptions()
	if err != nil {
		t.Fatalf("TaskOptions: %v", err)
	}
	if opts.Priority != tasks.PriorityHigh || opts.Timeout != 1500*time.Millisecond || opts.TaskID != "x" || opts.Owner != "o" {
		t.Errorf("opts = %+v", opts)
	}

	if _, err := (SubmitParams{Options: SubmitOptions{Priority: "urgent"}}).TaskOptions(); !errors.Is(err, tasks.ErrInvalidPriority) {
		t.Errorf("bad priority error = %v", err)
	}
	for _, ms := range []int64{-1, MaxTimeout.Milliseconds() + 1, 9_300_000_000_000, math.MaxInt64} {
		if _, err := (SubmitParams{Options: SubmitOptions{TimeoutMs: ms}}).TaskOptions(); !errors.Is(err, ErrInvalidOptions) {
			t.Errorf("timeoutMs %d: error = %v, want ErrInvalidOptions", ms, err)
		}
	}

	opts, err = (SubmitParams{Options: SubmitOptions{TimeoutMs: MaxTimeout.Milliseconds()}}).TaskOptions()
	if err != nil || opts.Timeout != MaxTimeout {
		t.Errorf("timeout at ceiling = %v, %v", opts.Timeout, err)
	}
}

func TestErrorCode(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{fmt.Errorf("x: %w", tasks.ErrUnknownType), CodeUnknownType},
		{&tasks.ValidationError{Type: "demo", Err: errors.New("bad")}, CodeValidation},
		{fmt.Errorf("%w: %q", tasks.ErrInvalidPriority, "x"), CodeInvalidPriority},
		{fmt.Errorf("%w: id", tasks.ErrDuplicateTask), CodeDuplicate},
		{tasks.ErrClosed, CodeClosed},
		{fmt.Errorf("%w: t", tasks.ErrTaskNotFound), CodeNotFound},
		{errors.New("other"), CodeInternal},
	}
	for _, tt := range tests {
		if got := ErrorCode(tt.err); got != tt.want {
			t.Errorf("ErrorCode(%v) = %q, want %q", tt.err, got, tt.want)
		}
	}
}
