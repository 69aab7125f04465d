package executor

import (
	"time"

	"github.com/dohr-michael/taskd/internal/tasks"
)

type completedEntry struct {
	snapshot  tasks.Snapshot
	expiresAt time.Time
}

// completedCache retains terminal snapshots for a bounded time.
type completedCache struct {
	ttl     time.Duration
	entries map[string]completedEntry
}

func newCompletedCache(ttl time.Duration) *completedCache {
	return &completedCache{
		ttl:     ttl,
		entries: make(map[string]completedEntry),
	}
}

func (c *completedCache) Put(snap tasks.Snapshot, now time.Time) {
	c.entries[snap.ID] = completedEntry{snapshot: snap, expiresAt: now.Add(c.ttl)}
}

// Get returns the snapshot while it has not expired.
func (c *completedCache) Get(id string, now time.Time) (tasks.Snapshot, bool) {
	e, ok := c.entries[id]
	if !ok || !e.expiresAt.After(now) {
		return tasks.Snapshot{}, false
	}
	return e.snapshot, true
}

// Sweep drops expired entries and returns how many were removed.
func (c *completedCache) Sweep(now time.Time) int {
	removed := 0
	for id, e := range c.entries {
		if !e.expiresAt.After(now) {
			delete(c.entries, id)
			removed++
		}
	}
	return removed
}

func (c *completedCache) Len() int { return len(c.entries) }

func (c *completedCache) Clear() {
	c.entries = make(map[string]completedEntry)
}
