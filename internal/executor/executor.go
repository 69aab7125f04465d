// Package executor runs typed tasks with bounded concurrency, priority
// ordering, cooperative cancellation and short-lived result retention.
package executor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	cron "github.com/netresearch/go-cron"

	"github.com/dohr-michael/taskd/internal/events"
	"github.com/dohr-michael/taskd/internal/lifecycle"
	"github.com/dohr-michael/taskd/internal/tasks"
)

// Defaults applied when the matching Config field is zero.
const (
	DefaultMaxConcurrency = 4
	DefaultCompletedTTL   = 5 * time.Minute
	DefaultGCInterval     = time.Minute
)

// Config holds configuration for building an Executor.
type Config struct {
	Registry       *tasks.Registry
	Sink           events.Sink         // non-blocking; must not call back into the executor
	Observers      *lifecycle.Registry // optional
	MaxConcurrency int                 // 0 = DefaultMaxConcurrency
	CompletedTTL   time.Duration       // 0 = DefaultCompletedTTL
	GCInterval     time.Duration       // 0 = DefaultGCInterval, <0 disables the GC job
	DefaultTimeout time.Duration       // applied when SubmitOptions.Timeout is 0
	Logger         *slog.Logger
	Clock          func() time.Time // test hook
}

// QueueStatus is a consistent point-in-time view of executor load.
type QueueStatus struct {
	Queued         int `json:"queued"`
	Running        int `json:"running"`
	Completed      int `json:"completed"`
	MaxConcurrency int `json:"max_concurrency"`
}

// task is the live descriptor. Fields are guarded by Executor.mu.
type task struct {
	id          string
	taskType    string
	owner       string
	input       json.RawMessage
	handler     tasks.Handler
	status      tasks.TaskStatus
	priority    tasks.TaskPriority
	createdAt   time.Time
	startedAt   time.Time
	completedAt time.Time
	progress    tasks.TaskProgress
	result      any
	err         *tasks.TaskError
	token       *tasks.Token
	timeout     time.Duration
	timer       *time.Timer
	slotHeld    bool

	done  chan struct{}   // closed once the task retires or the executor is destroyed
	final *tasks.Snapshot // terminal snapshot, set before done is closed
}

func (t *task) snapshot() tasks.Snapshot {
	s := tasks.Snapshot{
		ID:        t.id,
		Type:      t.taskType,
		Status:    t.status,
		Priority:  t.priority,
		Owner:     t.owner,
		CreatedAt: t.createdAt,
		Progress:  t.progress,
		Result:    t.result,
		Error:     t.err,
	}
	if !t.startedAt.IsZero() {
		started := t.startedAt
		s.StartedAt = &started
	}
	if !t.completedAt.IsZero() {
		completed := t.completedAt
		s.CompletedAt = &completed
		s.DurationMs = t.durationMs()
	}
	return s
}

// durationMs is the time spent since start, or 0 for tasks that never ran.
func (t *task) durationMs() int64 {
	if t.startedAt.IsZero() || t.completedAt.IsZero() {
		return 0
	}
	return t.completedAt.Sub(t.startedAt).Milliseconds()
}

// Executor orchestrates queued and running tasks. All state is serialized by
// a single mutex; events are published while it is held so each task's event
// stream is totally ordered.
type Executor struct {
	mu        sync.Mutex
	registry  *tasks.Registry
	sink      events.Sink
	observers *lifecycle.Registry
	logger    *slog.Logger
	now       func() time.Time

	defaultTimeout time.Duration

	live      map[string]*task
	queue     *priorityQueue
	limiter   *limiter
	completed *completedCache
	seq       uint64

	gc        *cron.Cron
	destroyed bool
}

// New creates an Executor and starts its completed-task GC job.
func New(cfg Config) (*Executor, error) {
	if cfg.Registry == nil {
		return nil, errors.New("executor: registry is required")
	}
	if cfg.MaxConcurrency < 0 {
		return nil, fmt.Errorf("executor: max concurrency must be positive, got %d", cfg.MaxConcurrency)
	}
	if cfg.MaxConcurrency == 0 {
		cfg.MaxConcurrency = DefaultMaxConcurrency
	}
	if cfg.CompletedTTL <= 0 {
		cfg.CompletedTTL = DefaultCompletedTTL
	}
	if cfg.GCInterval == 0 {
		cfg.GCInterval = DefaultGCInterval
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}

	e := &Executor{
		registry:       cfg.Registry,
		sink:           cfg.Sink,
		observers:      cfg.Observers,
		logger:         cfg.Logger,
		now:            cfg.Clock,
		defaultTimeout: cfg.DefaultTimeout,
		live:           make(map[string]*task),
		queue:          newPriorityQueue(),
		limiter:        newLimiter(cfg.MaxConcurrency),
		completed:      newCompletedCache(cfg.CompletedTTL),
	}

	if cfg.GCInterval > 0 {
		c := cron.New()
		if _, err := c.AddFunc("@every "+cfg.GCInterval.String(), func() { e.CollectGarbage() }); err != nil {
			return nil, fmt.Errorf("schedule completed-task gc: %w", err)
		}
		c.Start()
		e.gc = c
	}

	e.logger.Info("executor started", "max_concurrency", cfg.MaxConcurrency,
		"completed_ttl", cfg.CompletedTTL, "gc_interval", cfg.GCInterval)
	return e, nil
}

// Submit validates and enqueues a task, returning its id. It never waits for
// the task to run.
func (e *Executor) Submit(taskType string, input json.RawMessage, opts tasks.SubmitOptions) (string, error) {
	h, err := e.registry.Get(taskType)
	if err != nil {
		return "", err
	}

	priority := opts.Priority
	if priority == "" {
		priority = tasks.PriorityNormal
	}
	if !priority.Valid() {
		return "", fmt.Errorf("%w: %q", tasks.ErrInvalidPriority, priority)
	}

	if v, ok := h.(tasks.Validator); ok {
		if err := v.Validate(input); err != nil {
			return "", &tasks.ValidationError{Type: taskType, Err: err}
		}
	}

	timeout := opts.Timeout
	if timeout == 0 {
		timeout = e.defaultTimeout
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.destroyed {
		return "", tasks.ErrClosed
	}

	now := e.now()
	id := opts.TaskID
	if id == "" {
		id = tasks.GenerateTaskID()
		for e.knownLocked(id, now) {
			id = tasks.GenerateTaskID()
		}
	} else if e.knownLocked(id, now) {
		return "", fmt.Errorf("%w: %s", tasks.ErrDuplicateTask, id)
	}

	ctx := events.ContextWithTaskID(events.ContextWithOwner(context.Background(), opts.Owner), id)
	t := &task{
		id:        id,
		taskType:  taskType,
		owner:     opts.Owner,
		input:     input,
		handler:   h,
		status:    tasks.TaskQueued,
		priority:  priority,
		createdAt: now,
		token:     tasks.NewToken(ctx),
		timeout:   timeout,
		done:      make(chan struct{}),
	}
	e.live[id] = t

	before := e.queue.positions()
	e.seq++
	e.queue.push(&queueEntry{
		taskID:     id,
		taskType:   taskType,
		input:      input,
		priority:   priority,
		enqueuedAt: now,
		seq:        e.seq,
		token:      t.token,
	})

	e.logger.Debug("task queued", "task_id", id, "type", taskType, "priority", priority)
	e.emit(t, events.TaskQueuedPayload{Type: taskType, Priority: priority, Position: e.queue.position(id)})
	e.emitPositionChanges(before, id)
	e.notify(lifecycle.StageSubmitted, t)

	e.drainLocked()
	return id, nil
}

// knownLocked reports whether id is live or still retained in the cache.
func (e *Executor) knownLocked(id string, now time.Time) bool {
	if _, ok := e.live[id]; ok {
		return true
	}
	_, ok := e.completed.Get(id, now)
	return ok
}

// Cancel cancels a queued, paused or running task. It returns false when the
// id is unknown or already terminal.
func (e *Executor) Cancel(id string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	t, ok := e.live[id]
	if !ok {
		return false
	}
	t.token.Cancel(tasks.ErrCancelled)

	var before map[string]int
	waiting := t.status == tasks.TaskQueued || t.status == tasks.TaskPaused
	if waiting {
		before = e.queue.positions()
		e.queue.remove(id)
	}

	e.finishCancelledLocked(t, events.CancelReasonRequested)

	if waiting {
		e.emitPositionChanges(before, id)
	}
	e.drainLocked()
	return true
}

// Pause holds a queued task in place. Only queued tasks can be paused.
func (e *Executor) Pause(id string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	t, ok := e.live[id]
	if !ok || t.status != tasks.TaskQueued {
		return false
	}
	entry := e.queue.find(id)
	if entry == nil {
		return false
	}

	before := e.queue.positions()
	entry.paused = true
	t.status = tasks.TaskPaused

	e.logger.Debug("task paused", "task_id", id)
	e.emit(t, events.TaskPausedPayload{})
	e.emitPositionChanges(before, id)
	return true
}

// Resume re-queues a paused task at the back of its priority band.
func (e *Executor) Resume(id string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	t, ok := e.live[id]
	if !ok || t.status != tasks.TaskPaused {
		return false
	}
	entry := e.queue.find(id)
	if entry == nil {
		return false
	}

	before := e.queue.positions()
	e.seq++
	entry.seq = e.seq
	entry.enqueuedAt = e.now()
	entry.paused = false
	e.queue.resort()
	t.status = tasks.TaskQueued

	e.logger.Debug("task resumed", "task_id", id)
	e.emit(t, events.TaskResumedPayload{Position: e.queue.position(id)})
	e.emitPositionChanges(before, id)
	e.drainLocked()
	return true
}

// UpdatePriority moves a waiting task to another priority band. The task
// keeps its original enqueue order within the new band.
func (e *Executor) UpdatePriority(id string, priority tasks.TaskPriority) bool {
	if !priority.Valid() {
		return false
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	t, ok := e.live[id]
	if !ok || (t.status != tasks.TaskQueued && t.status != tasks.TaskPaused) {
		return false
	}
	entry := e.queue.find(id)
	if entry == nil {
		return false
	}

	before := e.queue.positions()
	entry.priority = priority
	t.priority = priority
	e.queue.resort()

	e.logger.Debug("task priority changed", "task_id", id, "priority", priority)
	e.emit(t, events.TaskPriorityChangedPayload{Priority: priority, Position: e.queue.position(id)})
	e.emitPositionChanges(before, id)
	e.drainLocked()
	return true
}

// Result returns a live task or a retained terminal snapshot.
func (e *Executor) Result(id string) (tasks.Snapshot, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if t, ok := e.live[id]; ok {
		return t.snapshot(), true
	}
	return e.completed.Get(id, e.now())
}

// Wait blocks until the task is terminal and returns its final snapshot. It
// does not depend on event delivery. A task retained in the completed cache
// returns at once; a destroyed executor yields ErrClosed.
func (e *Executor) Wait(ctx context.Context, id string) (tasks.Snapshot, error) {
	e.mu.Lock()
	t, live := e.live[id]
	if !live {
		snap, ok := e.completed.Get(id, e.now())
		e.mu.Unlock()
		if !ok {
			return tasks.Snapshot{}, fmt.Errorf("%w: %s", tasks.ErrTaskNotFound, id)
		}
		return snap, nil
	}
	e.mu.Unlock()

	select {
	case <-ctx.Done():
		return tasks.Snapshot{}, fmt.Errorf("wait for %s: %w", id, ctx.Err())
	case <-t.done:
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if t.final == nil {
		return tasks.Snapshot{}, tasks.ErrClosed
	}
	return *t.final, nil
}

// QueueStatus returns counts taken under a single lock.
func (e *Executor) QueueStatus() QueueStatus {
	e.mu.Lock()
	defer e.mu.Unlock()

	running := 0
	for _, t := range e.live {
		if t.status == tasks.TaskRunning {
			running++
		}
	}
	return QueueStatus{
		Queued:         e.queue.Len(),
		Running:        running,
		Completed:      e.completed.Len(),
		MaxConcurrency: e.limiter.Max(),
	}
}

// List returns live tasks: running ones by start time, then the queue order.
func (e *Executor) List() []tasks.Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()

	var running []*task
	for _, t := range e.live {
		if t.status == tasks.TaskRunning {
			running = append(running, t)
		}
	}
	sort.Slice(running, func(i, j int) bool {
		return running[i].startedAt.Before(running[j].startedAt)
	})

	out := make([]tasks.Snapshot, 0, len(e.live))
	for _, t := range running {
		out = append(out, t.snapshot())
	}
	for _, id := range e.queue.ids() {
		if t, ok := e.live[id]; ok {
			out = append(out, t.snapshot())
		}
	}
	return out
}

// SetMaxConcurrency changes the slot ceiling. Running tasks above a lowered
// ceiling finish normally.
func (e *Executor) SetMaxConcurrency(n int) error {
	if n < 1 {
		return fmt.Errorf("max concurrency must be positive, got %d", n)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.destroyed {
		return tasks.ErrClosed
	}
	e.limiter.SetMax(n)
	e.logger.Info("max concurrency updated", "max_concurrency", n)
	e.drainLocked()
	return nil
}

// CollectGarbage drops expired completed entries and returns how many were
// removed. It runs periodically on the GC job.
func (e *Executor) CollectGarbage() int {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.destroyed {
		return 0
	}
	n := e.completed.Sweep(e.now())
	if n > 0 {
		e.logger.Debug("completed tasks expired", "count", n)
	}
	return n
}

// Destroy cancels every live task, clears all state and stops the GC job.
// It does not wait for handlers to return. Safe to call more than once.
func (e *Executor) Destroy() {
	e.mu.Lock()
	if e.destroyed {
		e.mu.Unlock()
		return
	}
	e.destroyed = true

	for _, t := range e.live {
		t.token.Cancel(tasks.ErrShutdown)
		if t.timer != nil {
			t.timer.Stop()
			t.timer = nil
		}
		close(t.done)
	}
	cancelled := len(e.live)
	e.live = make(map[string]*task)
	e.queue.clear()
	e.completed.Clear()

	gc := e.gc
	e.gc = nil
	e.mu.Unlock()

	if gc != nil {
		gc.Stop()
	}
	e.logger.Info("executor destroyed", "cancelled", cancelled)
}

// drainLocked starts eligible queued tasks while slots are free.
func (e *Executor) drainLocked() {
	if e.destroyed {
		return
	}
	for e.limiter.Available() > 0 {
		before := e.queue.positions()
		entry := e.queue.popEligible()
		if entry == nil {
			return
		}
		t, ok := e.live[entry.taskID]
		if !ok {
			continue
		}
		if entry.token.Cancelled() {
			e.finishCancelledLocked(t, cancelReason(entry.token.Cause()))
			e.emitPositionChanges(before, t.id)
			continue
		}
		e.limiter.TryAcquire()
		e.startLocked(t)
		e.emitPositionChanges(before, t.id)
	}
}

func (e *Executor) startLocked(t *task) {
	t.status = tasks.TaskRunning
	t.startedAt = e.now()
	t.slotHeld = true

	e.logger.Info("task started", "task_id", t.id, "type", t.taskType)
	e.emit(t, events.TaskStartedPayload{Type: t.taskType})

	if t.timeout > 0 {
		token := t.token
		t.timer = time.AfterFunc(t.timeout, func() { token.Cancel(tasks.ErrTimeout) })
	}
	e.notify(lifecycle.StageStarted, t)

	go e.run(t)
}

// run executes the handler and records its outcome.
func (e *Executor) run(t *task) {
	ctx := t.token.Context()
	r := &reporter{e: e, t: t}
	result, err := invoke(ctx, t, r)

	e.mu.Lock()
	defer e.mu.Unlock()

	if t.slotHeld {
		t.slotHeld = false
		e.limiter.Release()
	}
	if t.timer != nil {
		t.timer.Stop()
		t.timer = nil
	}

	if cur, ok := e.live[t.id]; !ok || cur != t {
		e.logger.Debug("late handler result dropped", "task_id", t.id, "error", err)
		e.drainLocked()
		return
	}

	switch {
	case err == nil:
		e.finishLocked(t, tasks.TaskCompleted, result, nil)
	case tasks.IsCancellation(ctx, err):
		e.finishCancelledLocked(t, cancelReason(t.token.Cause()))
	default:
		e.finishLocked(t, tasks.TaskFailed, nil, tasks.ToTaskError(err))
	}
	e.drainLocked()
}

// invoke calls the handler, converting a panic into a coded failure.
func invoke(ctx context.Context, t *task, r *reporter) (result any, err error) {
	defer func() {
		if v := recover(); v != nil {
			result = nil
			err = tasks.NewHandlerError(tasks.CodeHandlerPanic, fmt.Sprintf("handler panicked: %v", v), nil)
		}
	}()
	return t.handler.Execute(ctx, t.input, r, r)
}

// finishLocked records a completed or failed outcome and retires the task.
func (e *Executor) finishLocked(t *task, status tasks.TaskStatus, result any, terr *tasks.TaskError) {
	t.status = status
	t.completedAt = e.now()
	t.result = result
	t.err = terr

	switch status {
	case tasks.TaskCompleted:
		e.logger.Info("task completed", "task_id", t.id, "type", t.taskType, "duration_ms", t.durationMs())
		e.emit(t, events.TaskCompletedPayload{Result: result, DurationMs: t.durationMs()})
		e.retireLocked(t, lifecycle.StageCompleted)
	case tasks.TaskFailed:
		e.logger.Warn("task failed", "task_id", t.id, "type", t.taskType, "code", terr.Code, "error", terr.Message)
		e.emit(t, events.TaskErrorPayload{Code: terr.Code, Message: terr.Message, DurationMs: t.durationMs()})
		e.retireLocked(t, lifecycle.StageFailed)
	}
}

func (e *Executor) finishCancelledLocked(t *task, reason string) {
	t.status = tasks.TaskCancelled
	t.completedAt = e.now()
	if t.timer != nil {
		t.timer.Stop()
		t.timer = nil
	}

	e.logger.Info("task cancelled", "task_id", t.id, "type", t.taskType, "reason", reason)
	e.emit(t, events.TaskCancelledPayload{Reason: reason, DurationMs: t.durationMs()})
	e.retireLocked(t, lifecycle.StageCancelled)
}

// retireLocked moves a terminal task from the live store to the cache.
func (e *Executor) retireLocked(t *task, stage lifecycle.Stage) {
	delete(e.live, t.id)
	snap := t.snapshot()
	e.completed.Put(snap, t.completedAt)
	t.final = &snap
	close(t.done)
	e.notify(stage, t)
}

func cancelReason(cause error) string {
	switch {
	case errors.Is(cause, tasks.ErrTimeout):
		return events.CancelReasonTimeout
	case errors.Is(cause, tasks.ErrShutdown):
		return events.CancelReasonShutdown
	default:
		return events.CancelReasonRequested
	}
}

func (e *Executor) emit(t *task, p events.EventPayload) {
	if e.sink == nil {
		return
	}
	e.sink.Publish(events.NewTaskEvent(t.id, t.owner, p))
}

// emitPositionChanges tells waiting tasks, other than except, that their
// eligible position moved.
func (e *Executor) emitPositionChanges(before map[string]int, except string) {
	after := e.queue.positions()
	for _, id := range e.queue.ids() {
		if id == except {
			continue
		}
		pos, ok := after[id]
		if !ok || before[id] == pos {
			continue
		}
		if t, live := e.live[id]; live {
			e.emit(t, events.TaskQueuePositionPayload{Position: pos})
		}
	}
}

func (e *Executor) notify(stage lifecycle.Stage, t *task) {
	if e.observers == nil {
		return
	}
	e.observers.Notify(stage, t.snapshot())
}

// isRunningLocked reports whether t is still the live, running descriptor.
func (e *Executor) isRunningLocked(t *task) bool {
	cur, ok := e.live[t.id]
	return ok && cur == t && t.status == tasks.TaskRunning
}
