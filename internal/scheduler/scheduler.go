package scheduler

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	cron "github.com/netresearch/go-cron"

	"github.com/dohr-michael/taskd/internal/events"
	"github.com/dohr-michael/taskd/internal/tasks"
)

// Submitter is the executor surface the scheduler needs.
type Submitter interface {
	Submit(taskType string, input json.RawMessage, opts tasks.SubmitOptions) (string, error)
	Result(id string) (tasks.Snapshot, bool)
}

// Config holds dependencies for the scheduler.
type Config struct {
	Submitter Submitter
	Registry  *tasks.Registry // used to reject entries with unknown types
	Sink      events.Sink     // optional
	Entries   []Entry
	Clock     func() time.Time // test hook
}

type runtimeEntry struct {
	Entry
	expr       *CronExpr
	lastRun    time.Time
	runCount   int
	skipped    int
	lastTaskID string
	lastError  string
}

// Scheduler submits tasks when their cron expressions fire.
type Scheduler struct {
	submitter Submitter
	sink      events.Sink
	now       func() time.Time

	mu      sync.Mutex
	entries map[string]*runtimeEntry
	cron    *cron.Cron
	started bool
}

// New validates every entry. An invalid cron expression, an unknown task type
// or a duplicate id fails the whole scheduler.
func New(cfg Config) (*Scheduler, error) {
	if cfg.Submitter == nil {
		return nil, fmt.Errorf("scheduler: submitter is required")
	}
	s := &Scheduler{
		submitter: cfg.Submitter,
		sink:      cfg.Sink,
		now:       cfg.Clock,
		entries:   make(map[string]*runtimeEntry),
	}
	if s.now == nil {
		s.now = time.Now
	}

	for _, e := range cfg.Entries {
		if e.ID == "" {
			return nil, fmt.Errorf("scheduler: entry for %q has no id", e.Type)
		}
		if _, dup := s.entries[e.ID]; dup {
			return nil, fmt.Errorf("scheduler: duplicate entry id %q", e.ID)
		}
		if cfg.Registry != nil && !cfg.Registry.Has(e.Type) {
			return nil, fmt.Errorf("scheduler: entry %s: %w: %s", e.ID, tasks.ErrUnknownType, e.Type)
		}
		expr, err := ParseCron(e.Cron)
		if err != nil {
			return nil, fmt.Errorf("scheduler: entry %s: %w", e.ID, err)
		}
		s.entries[e.ID] = &runtimeEntry{Entry: e, expr: expr}
	}
	return s, nil
}

// Start registers every entry with the cron runner.
func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return nil
	}

	c := cron.New()
	for id, re := range s.entries {
		if _, err := c.AddFunc(re.Cron, func() { s.trigger(id) }); err != nil {
			return fmt.Errorf("scheduler: register %s: %w", id, err)
		}
	}
	c.Start()
	s.cron = c
	s.started = true

	slog.Info("scheduler started", "entries", len(s.entries))
	return nil
}

// Stop halts the cron runner. Tasks already submitted are unaffected.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	c := s.cron
	s.cron = nil
	s.started = false
	s.mu.Unlock()

	if c != nil {
		<-c.Stop().Done()
		slog.Info("scheduler stopped")
	}
}

// RunNow triggers an entry immediately, outside its cron schedule.
func (s *Scheduler) RunNow(id string) (string, error) {
	s.mu.Lock()
	_, ok := s.entries[id]
	s.mu.Unlock()
	if !ok {
		return "", fmt.Errorf("schedule entry not found: %s", id)
	}
	return s.trigger(id)
}

// Entries returns the state of every entry, sorted by id.
func (s *Scheduler) Entries() []EntryStatus {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	out := make([]EntryStatus, 0, len(s.entries))
	for _, re := range s.entries {
		st := EntryStatus{
			ID:         re.ID,
			Cron:       re.Cron,
			Type:       re.Type,
			Owner:      re.Owner,
			Next:       re.expr.Next(now),
			RunCount:   re.runCount,
			Skipped:    re.skipped,
			LastTaskID: re.lastTaskID,
			LastError:  re.lastError,
		}
		if !re.lastRun.IsZero() {
			t := re.lastRun
			st.LastRunAt = &t
		}
		out = append(out, st)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// trigger submits a task for an entry. Submission failures are logged and
// recorded on the entry, never returned to the cron runner.
func (s *Scheduler) trigger(id string) (string, error) {
	s.mu.Lock()
	re, ok := s.entries[id]
	if !ok {
		s.mu.Unlock()
		return "", fmt.Errorf("schedule entry not found: %s", id)
	}
	if re.SkipOverlap && re.lastTaskID != "" {
		if snap, live := s.submitter.Result(re.lastTaskID); live && !snap.Status.IsTerminal() {
			re.skipped++
			s.mu.Unlock()
			slog.Info("scheduler: previous run still active, skipping",
				"id", id, "task_id", re.lastTaskID)
			return "", nil
		}
	}
	entry := re.Entry
	re.lastRun = s.now()
	re.runCount++
	s.mu.Unlock()

	taskID, err := s.submitter.Submit(entry.Type, entry.Input, tasks.SubmitOptions{
		Priority: entry.Priority,
		Owner:    entry.Owner,
		Timeout:  entry.Timeout,
	})

	s.mu.Lock()
	if err != nil {
		re.lastError = err.Error()
	} else {
		re.lastError = ""
		re.lastTaskID = taskID
	}
	s.mu.Unlock()

	if err != nil {
		slog.Error("scheduler: submit task", "id", id, "type", entry.Type, "error", err)
		return "", err
	}

	if s.sink != nil {
		s.sink.Publish(events.NewTaskEvent(taskID, entry.Owner, events.ScheduleTriggerPayload{
			EntryID:  id,
			TaskType: entry.Type,
			TaskID:   taskID,
		}))
	}
	slog.Info("scheduler: triggered", "id", id, "type", entry.Type, "task_id", taskID)
	return taskID, nil
}
