package storage

import (
	"sync"

	"github.com/dohr-michael/taskd/internal/lifecycle"
	"github.com/dohr-michael/taskd/internal/tasks"
)

// Usage aggregates terminal outcomes for one owner.
type Usage struct {
	Completed int   `json:"completed"`
	Failed    int   `json:"failed"`
	Cancelled int   `json:"cancelled"`
	RunTimeMs int64 `json:"run_time_ms"`
}

// GlobalOwner keys usage of tasks submitted without an owner.
const GlobalOwner = "_global"

// UsageTracker accumulates terminal outcomes per owner. It is fed by
// lifecycle hooks, which see every outcome.
type UsageTracker struct {
	mu    sync.Mutex
	usage map[string]*Usage
}

// NewUsageTracker creates an empty UsageTracker.
func NewUsageTracker() *UsageTracker {
	return &UsageTracker{usage: make(map[string]*Usage)}
}

// Hooks returns lifecycle hooks that count every terminal outcome.
func (ut *UsageTracker) Hooks() lifecycle.Hooks {
	return lifecycle.Hooks{
		Name:        "usage",
		OnCompleted: ut.record,
		OnFailed:    ut.record,
		OnCancelled: ut.record,
	}
}

func (ut *UsageTracker) record(s tasks.Snapshot) {
	owner := s.Owner
	if owner == "" {
		owner = GlobalOwner
	}

	ut.mu.Lock()
	defer ut.mu.Unlock()

	u, ok := ut.usage[owner]
	if !ok {
		u = &Usage{}
		ut.usage[owner] = u
	}

	switch s.Status {
	case tasks.TaskCompleted:
		u.Completed++
	case tasks.TaskFailed:
		u.Failed++
	case tasks.TaskCancelled:
		u.Cancelled++
	default:
		return
	}
	u.RunTimeMs += s.DurationMs
}

// Snapshot returns a copy of the per-owner usage.
func (ut *UsageTracker) Snapshot() map[string]Usage {
	ut.mu.Lock()
	defer ut.mu.Unlock()
	out := make(map[string]Usage, len(ut.usage))
	for owner, u := range ut.usage {
		out[owner] = *u
	}
	return out
}
