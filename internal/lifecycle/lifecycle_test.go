package lifecycle

import (
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/dohr-michael/taskd/internal/tasks"
)

func newTestRegistry(t *testing.T) *Registry {
	t.Helper()
	r := NewRegistry(slog.New(slog.NewTextHandler(io.Discard, nil)))
	t.Cleanup(r.Close)
	return r
}

type callLog struct {
	mu    sync.Mutex
	calls []string
}

func (l *callLog) add(s string) {
	l.mu.Lock()
	l.calls = append(l.calls, s)
	l.mu.Unlock()
}

func (l *callLog) snapshot() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.calls...)
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func TestRegistryDispatchesByTypeAndWildcard(t *testing.T) {
	r := newTestRegistry(t)
	log := &callLog{}

	r.Register("demo", Hooks{
		Name:        "demo-only",
		OnSubmitted: func(s tasks.Snapshot) { log.add("demo:submitted:" + s.ID) },
		OnCompleted: func(s tasks.Snapshot) { log.add("demo:completed:" + s.ID) },
	})
	r.Register(Wildcard, Hooks{
		Name:        "all",
		OnSubmitted: func(s tasks.Snapshot) { log.add("all:submitted:" + s.ID) },
	})

	r.Notify(StageSubmitted, tasks.Snapshot{ID: "t1", Type: "demo"})
	r.Notify(StageSubmitted, tasks.Snapshot{ID: "t2", Type: "shell"})
	r.Notify(StageCompleted, tasks.Snapshot{ID: "t1", Type: "demo"})

	waitFor(t, func() bool { return len(log.snapshot()) == 4 })

	want := []string{
		"demo:submitted:t1",
		"all:submitted:t1",
		"all:submitted:t2",
		"demo:completed:t1",
	}
	got := log.snapshot()
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("call %d: got %q, want %q", i, got[i], want[i])
		}
	}
}

func TestRegistryIsolatesPanickingObserver(t *testing.T) {
	r := newTestRegistry(t)
	log := &callLog{}

	var mu sync.Mutex
	var failures []*ObserverError
	r.OnError(func(oe *ObserverError) {
		mu.Lock()
		failures = append(failures, oe)
		mu.Unlock()
	})

	r.Register(Wildcard, Hooks{
		Name:      "broken",
		OnStarted: func(tasks.Snapshot) { panic("boom") },
	})
	r.Register(Wildcard, Hooks{
		Name:      "healthy",
		OnStarted: func(s tasks.Snapshot) { log.add("started:" + s.ID) },
	})

	r.Notify(StageStarted, tasks.Snapshot{ID: "t1", Type: "demo"})
	r.Notify(StageStarted, tasks.Snapshot{ID: "t2", Type: "demo"})

	waitFor(t, func() bool { return len(log.snapshot()) == 2 })

	mu.Lock()
	defer mu.Unlock()
	if len(failures) != 2 {
		t.Fatalf("failures: got %d, want 2", len(failures))
	}
	if failures[0].Observer != "broken" || failures[0].Stage != StageStarted || failures[0].TaskID != "t1" {
		t.Errorf("unexpected failure: %+v", failures[0])
	}
}

func TestRegistrySkipsNilHooks(t *testing.T) {
	r := newTestRegistry(t)
	log := &callLog{}

	r.Register("demo", Hooks{Name: "partial", OnCancelled: func(s tasks.Snapshot) { log.add("cancelled") }})

	r.Notify(StageSubmitted, tasks.Snapshot{ID: "t1", Type: "demo"})
	r.Notify(StageFailed, tasks.Snapshot{ID: "t1", Type: "demo"})
	r.Notify(StageCancelled, tasks.Snapshot{ID: "t1", Type: "demo"})

	waitFor(t, func() bool { return len(log.snapshot()) == 1 })
}

func TestRegistryCloseDrainsAndIgnoresLateNotifications(t *testing.T) {
	r := NewRegistry(slog.New(slog.NewTextHandler(io.Discard, nil)))
	log := &callLog{}
	r.Register(Wildcard, Hooks{Name: "count", OnCompleted: func(s tasks.Snapshot) { log.add(s.ID) }})

	for _, id := range []string{"a", "b", "c"} {
		r.Notify(StageCompleted, tasks.Snapshot{ID: id, Type: "demo"})
	}
	r.Close()
	r.Close()

	if got := len(log.snapshot()); got != 3 {
		t.Fatalf("delivered before close: got %d, want 3", got)
	}

	r.Notify(StageCompleted, tasks.Snapshot{ID: "late", Type: "demo"})
	time.Sleep(20 * time.Millisecond)
	if got := len(log.snapshot()); got != 3 {
		t.Errorf("late notification delivered: got %d calls", got)
	}
}

func TestRegistryObserverMayNotifyReentrantly(t *testing.T) {
	r := newTestRegistry(t)
	log := &callLog{}

	r.Register(Wildcard, Hooks{
		Name: "chain",
		OnSubmitted: func(s tasks.Snapshot) {
			log.add("submitted:" + s.ID)
			r.Notify(StageStarted, s)
		},
		OnStarted: func(s tasks.Snapshot) { log.add("started:" + s.ID) },
	})

	r.Notify(StageSubmitted, tasks.Snapshot{ID: "t1", Type: "demo"})
	waitFor(t, func() bool { return len(log.snapshot()) == 2 })
}
