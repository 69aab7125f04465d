package executor

import (
	"encoding/json"
	"sort"
	"time"

	"github.com/dohr-michael/taskd/internal/tasks"
)

// queueEntry is the queued projection of a task. It exists only while the
// task is queued or paused.
type queueEntry struct {
	taskID     string
	taskType   string
	input      json.RawMessage
	priority   tasks.TaskPriority
	enqueuedAt time.Time
	seq        uint64 // FIFO tie-breaker, strictly increasing
	token      *tasks.Token
	paused     bool
}

// before reports whether a sorts ahead of b.
func (a *queueEntry) before(b *queueEntry) bool {
	wa, wb := a.priority.Weight(), b.priority.Weight()
	if wa != wb {
		return wa > wb
	}
	return a.seq < b.seq
}

// priorityQueue keeps entries sorted by priority weight desc, then seq asc.
// Paused entries keep their slot but are skipped by popEligible.
type priorityQueue struct {
	entries []*queueEntry
}

func newPriorityQueue() *priorityQueue {
	return &priorityQueue{}
}

func (q *priorityQueue) Len() int { return len(q.entries) }

// push inserts e at its sorted position.
func (q *priorityQueue) push(e *queueEntry) {
	i := sort.Search(len(q.entries), func(i int) bool {
		return e.before(q.entries[i])
	})
	q.entries = append(q.entries, nil)
	copy(q.entries[i+1:], q.entries[i:])
	q.entries[i] = e
}

// find returns the entry for taskID, or nil.
func (q *priorityQueue) find(taskID string) *queueEntry {
	for _, e := range q.entries {
		if e.taskID == taskID {
			return e
		}
	}
	return nil
}

// remove deletes the entry for taskID and returns it, or nil.
func (q *priorityQueue) remove(taskID string) *queueEntry {
	for i, e := range q.entries {
		if e.taskID == taskID {
			q.entries = append(q.entries[:i], q.entries[i+1:]...)
			return e
		}
	}
	return nil
}

// popEligible removes and returns the first non-paused entry, or nil.
func (q *priorityQueue) popEligible() *queueEntry {
	for i, e := range q.entries {
		if e.paused {
			continue
		}
		q.entries = append(q.entries[:i], q.entries[i+1:]...)
		return e
	}
	return nil
}

// resort restores ordering after a priority or sequence change.
func (q *priorityQueue) resort() {
	sort.SliceStable(q.entries, func(i, j int) bool {
		return q.entries[i].before(q.entries[j])
	})
}

// position returns the 1-based rank of taskID among eligible entries, or 0
// when the entry is paused or absent.
func (q *priorityQueue) position(taskID string) int {
	pos := 0
	for _, e := range q.entries {
		if e.paused {
			if e.taskID == taskID {
				return 0
			}
			continue
		}
		pos++
		if e.taskID == taskID {
			return pos
		}
	}
	return 0
}

// positions returns the eligible rank of every non-paused entry.
func (q *priorityQueue) positions() map[string]int {
	out := make(map[string]int, len(q.entries))
	pos := 0
	for _, e := range q.entries {
		if e.paused {
			continue
		}
		pos++
		out[e.taskID] = pos
	}
	return out
}

// ids returns the task ids in queue order, paused entries included.
func (q *priorityQueue) ids() []string {
	out := make([]string, len(q.entries))
	for i, e := range q.entries {
		out[i] = e.taskID
	}
	return out
}

func (q *priorityQueue) clear() {
	q.entries = nil
}
