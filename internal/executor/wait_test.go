package executor

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/dohr-michael/taskd/internal/events"
	"github.com/dohr-michael/taskd/internal/tasks"
)

var chattyHandler = tasks.HandlerFunc{
	Name: "chatty",
	Fn: func(ctx context.Context, _ json.RawMessage, _ tasks.ProgressReporter, stream tasks.StreamReporter) (any, error) {
		for i := range 5000 {
			stream.Emit(i)
		}
		return "ok", nil
	},
}

func TestWait_Outcomes(t *testing.T) {
	gate := newGateHandler("gate")
	h := newHarness(t, Config{MaxConcurrency: 1}, gate)

	h.submit(t, "gate", "a", "")
	go gate.release("a")
	snap, err := h.exec.Wait(context.Background(), "a")
	if err != nil {
		t.Fatalf("Wait(a): %v", err)
	}
	if snap.Status != tasks.TaskCompleted || snap.Result != "done:a" {
		t.Errorf("Wait(a) = %+v", snap)
	}

	// Already retired: served from the completed cache.
	if snap, err := h.exec.Wait(context.Background(), "a"); err != nil || snap.Status != tasks.TaskCompleted {
		t.Errorf("second Wait(a) = %+v, %v", snap, err)
	}

	if _, err := h.exec.Wait(context.Background(), "ghost"); !errors.Is(err, tasks.ErrTaskNotFound) {
		t.Errorf("Wait(ghost) error = %v, want ErrTaskNotFound", err)
	}

	h.submit(t, "gate", "b", "")
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := h.exec.Wait(ctx, "b"); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Wait(b) with deadline error = %v", err)
	}

	h.exec.Cancel("b")
	snap, err = h.exec.Wait(context.Background(), "b")
	if err != nil || snap.Status != tasks.TaskCancelled {
		t.Errorf("Wait(b) after cancel = %+v, %v", snap, err)
	}
}

func TestWait_ReleasedByDestroy(t *testing.T) {
	gate := newGateHandler("gate")
	h := newHarness(t, Config{MaxConcurrency: 1}, gate)
	h.submit(t, "gate", "running", "")
	h.submit(t, "gate", "queued", "")

	errs := make(chan error, 2)
	for _, id := range []string{"running", "queued"} {
		go func() {
			_, err := h.exec.Wait(context.Background(), id)
			errs <- err
		}()
	}
	time.Sleep(10 * time.Millisecond)
	h.exec.Destroy()

	for range 2 {
		select {
		case err := <-errs:
			if !errors.Is(err, tasks.ErrClosed) {
				t.Errorf("Wait after destroy error = %v, want ErrClosed", err)
			}
		case <-time.After(3 * time.Second):
			t.Fatal("Wait not released by Destroy")
		}
	}
}

// A consumer that falls behind a chatty task loses events, terminal ones
// included. Wait must still observe the outcome.
func TestWait_IgnoresDroppedTerminalEvent(t *testing.T) {
	reg := tasks.NewRegistry()
	if err := reg.Register(chattyHandler); err != nil {
		t.Fatal(err)
	}
	bus := events.NewBus(1024)
	defer bus.Close()
	ch, unsubscribe := bus.WatchChan(events.Filter{TaskID: "loud"}, 1024)
	defer unsubscribe()

	e, err := New(Config{
		Registry:   reg,
		Sink:       bus,
		GCInterval: -1,
		Logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	if err != nil {
		t.Fatal(err)
	}
	defer e.Destroy()

	if _, err := e.Submit("chatty", nil, tasks.SubmitOptions{TaskID: "loud"}); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	snap, err := e.Wait(ctx, "loud")
	if err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if snap.Status != tasks.TaskCompleted {
		t.Errorf("status = %s, want completed", snap.Status)
	}

	// The subscriber never read; its buffer cannot hold the whole stream.
	received := 0
	for {
		select {
		case <-ch:
			received++
			continue
		default:
		}
		break
	}
	if received >= 5003 {
		t.Errorf("received %d events, expected drops", received)
	}
}
