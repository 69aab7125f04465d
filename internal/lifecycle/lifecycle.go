// Package lifecycle fans task lifecycle notifications out to observers
// registered per task type or for every type.
package lifecycle

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/dohr-michael/taskd/internal/tasks"
)

// Wildcard registers observers for every task type.
const Wildcard = "*"

// Stage identifies which hook a notification targets.
type Stage string

const (
	StageSubmitted Stage = "submitted"
	StageStarted   Stage = "started"
	StageCompleted Stage = "completed"
	StageFailed    Stage = "failed"
	StageCancelled Stage = "cancelled"
)

// Hooks is a set of optional callbacks. Nil fields are skipped.
type Hooks struct {
	Name        string
	OnSubmitted func(tasks.Snapshot)
	OnStarted   func(tasks.Snapshot)
	OnCompleted func(tasks.Snapshot)
	OnFailed    func(tasks.Snapshot)
	OnCancelled func(tasks.Snapshot)
}

func (h Hooks) hook(stage Stage) func(tasks.Snapshot) {
	switch stage {
	case StageSubmitted:
		return h.OnSubmitted
	case StageStarted:
		return h.OnStarted
	case StageCompleted:
		return h.OnCompleted
	case StageFailed:
		return h.OnFailed
	case StageCancelled:
		return h.OnCancelled
	}
	return nil
}

// ObserverError describes a panic raised inside an observer hook.
type ObserverError struct {
	Observer string
	Stage    Stage
	TaskID   string
	Value    any
}

func (e *ObserverError) Error() string {
	return fmt.Sprintf("observer %q %s hook for task %s: %v", e.Observer, e.Stage, e.TaskID, e.Value)
}

type notification struct {
	stage    Stage
	snapshot tasks.Snapshot
}

// Registry holds observers and dispatches notifications to them in order on
// a single goroutine. Notify never blocks, so the executor can call it while
// holding its own lock and observers may call back into the executor.
type Registry struct {
	mu        sync.Mutex
	observers map[string][]Hooks
	pending   []notification
	wake      chan struct{}
	done      chan struct{}
	closed    bool
	logger    *slog.Logger
	onError   func(*ObserverError)
}

// NewRegistry creates a registry and starts its dispatcher.
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	r := &Registry{
		observers: make(map[string][]Hooks),
		wake:      make(chan struct{}, 1),
		done:      make(chan struct{}),
		logger:    logger,
	}
	go r.dispatch()
	return r
}

// Register adds hooks for a task type, or for all types with Wildcard.
func (r *Registry) Register(taskType string, h Hooks) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.observers[taskType] = append(r.observers[taskType], h)
}

// OnError installs a callback invoked after an observer failure is logged.
func (r *Registry) OnError(fn func(*ObserverError)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onError = fn
}

// Notify queues a notification for asynchronous delivery.
func (r *Registry) Notify(stage Stage, snap tasks.Snapshot) {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.pending = append(r.pending, notification{stage: stage, snapshot: snap})
	r.mu.Unlock()

	select {
	case r.wake <- struct{}{}:
	default:
	}
}

// Close stops the dispatcher after delivering what is already queued.
func (r *Registry) Close() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	r.mu.Unlock()

	select {
	case r.wake <- struct{}{}:
	default:
	}
	<-r.done
}

func (r *Registry) dispatch() {
	defer close(r.done)
	for range r.wake {
		for {
			r.mu.Lock()
			if len(r.pending) == 0 {
				closed := r.closed
				r.mu.Unlock()
				if closed {
					return
				}
				break
			}
			n := r.pending[0]
			r.pending = r.pending[1:]
			targets := r.targetsLocked(n.snapshot.Type)
			r.mu.Unlock()

			for _, h := range targets {
				r.invoke(h, n)
			}
		}
	}
}

// targetsLocked returns the type-specific observers followed by wildcard ones.
func (r *Registry) targetsLocked(taskType string) []Hooks {
	specific := r.observers[taskType]
	wildcard := r.observers[Wildcard]
	out := make([]Hooks, 0, len(specific)+len(wildcard))
	out = append(out, specific...)
	if taskType != Wildcard {
		out = append(out, wildcard...)
	}
	return out
}

func (r *Registry) invoke(h Hooks, n notification) {
	fn := h.hook(n.stage)
	if fn == nil {
		return
	}
	defer func() {
		if v := recover(); v != nil {
			oe := &ObserverError{Observer: h.Name, Stage: n.stage, TaskID: n.snapshot.ID, Value: v}
			r.logger.Error("lifecycle observer failed", "observer", h.Name, "stage", n.stage,
				"task_id", n.snapshot.ID, "error", oe)
			r.mu.Lock()
			onError := r.onError
			r.mu.Unlock()
			if onError != nil {
				onError(oe)
			}
		}
	}()
	fn(n.snapshot)
}
