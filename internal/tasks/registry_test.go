package tasks

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
)

func stubHandler(name string) Handler {
	return HandlerFunc{
		Name: name,
		Fn: func(context.Context, json.RawMessage, ProgressReporter, StreamReporter) (any, error) {
			return nil, nil
		},
	}
}

func TestRegistry_RegisterAndGet(t *testing.T) {
	r := NewRegistry()
	if err := r.Register(stubHandler("demo")); err != nil {
		t.Fatalf("Register: %v", err)
	}

	h, err := r.Get("demo")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if h.Type() != "demo" {
		t.Errorf("Type = %q, want demo", h.Type())
	}
	if !r.Has("demo") {
		t.Error("Has(demo) = false")
	}
}

func TestRegistry_DuplicateType(t *testing.T) {
	r := NewRegistry()
	_ = r.Register(stubHandler("demo"))

	err := r.Register(stubHandler("demo"))
	if !errors.Is(err, ErrDuplicateType) {
		t.Fatalf("expected ErrDuplicateType, got %v", err)
	}
}

func TestRegistry_EmptyType(t *testing.T) {
	r := NewRegistry()
	if err := r.Register(stubHandler("")); err == nil {
		t.Fatal("expected error for empty type")
	}
}

func TestRegistry_UnknownType(t *testing.T) {
	r := NewRegistry()
	_, err := r.Get("missing")
	if !errors.Is(err, ErrUnknownType) {
		t.Fatalf("expected ErrUnknownType, got %v", err)
	}
	if r.Has("missing") {
		t.Error("Has(missing) = true")
	}
}

func TestRegistry_TypesSortedAndClear(t *testing.T) {
	r := NewRegistry()
	for _, name := range []string{"shell", "demo", "glob"} {
		_ = r.Register(stubHandler(name))
	}

	got := r.Types()
	want := []string{"demo", "glob", "shell"}
	if len(got) != len(want) {
		t.Fatalf("Types = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Types[%d] = %q, want %q", i, got[i], want[i])
		}
	}

	r.Clear()
	if len(r.Types()) != 0 {
		t.Errorf("expected empty registry after Clear, got %v", r.Types())
	}
	if err := r.Register(stubHandler("demo")); err != nil {
		t.Errorf("re-register after Clear: %v", err)
	}
}

func TestParsePriority(t *testing.T) {
	tests := []struct {
		in      string
		want    TaskPriority
		wantErr bool
	}{
		{"", PriorityNormal, false},
		{"low", PriorityLow, false},
		{"HIGH", PriorityHigh, false},
		{"urgent", "", true},
	}
	for _, tt := range tests {
		got, err := ParsePriority(tt.in)
		if tt.wantErr {
			if !errors.Is(err, ErrInvalidPriority) {
				t.Errorf("ParsePriority(%q): expected ErrInvalidPriority, got %v", tt.in, err)
			}
			continue
		}
		if err != nil || got != tt.want {
			t.Errorf("ParsePriority(%q) = %q, %v; want %q", tt.in, got, err, tt.want)
		}
	}
}

func TestPriorityWeight(t *testing.T) {
	if !(PriorityHigh.Weight() > PriorityNormal.Weight() && PriorityNormal.Weight() > PriorityLow.Weight()) {
		t.Errorf("weights out of order: high=%d normal=%d low=%d",
			PriorityHigh.Weight(), PriorityNormal.Weight(), PriorityLow.Weight())
	}
}

func TestStatusIsTerminal(t *testing.T) {
	terminal := map[TaskStatus]bool{
		TaskQueued:    false,
		TaskPaused:    false,
		TaskRunning:   false,
		TaskCompleted: true,
		TaskFailed:    true,
		TaskCancelled: true,
	}
	for s, want := range terminal {
		if s.IsTerminal() != want {
			t.Errorf("%s.IsTerminal() = %v, want %v", s, s.IsTerminal(), want)
		}
	}
}

func TestGenerateTaskID(t *testing.T) {
	a, b := GenerateTaskID(), GenerateTaskID()
	if a == b {
		t.Errorf("expected unique ids, got %q twice", a)
	}
	if len(a) != len("task_")+8 || a[:5] != "task_" {
		t.Errorf("unexpected id format %q", a)
	}
}
