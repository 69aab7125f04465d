package executor

import (
	"github.com/dohr-michael/taskd/internal/events"
)

// reporter is handed to a running handler as both its progress and stream
// reporter. Calls made after the task left the running state are dropped.
type reporter struct {
	e *Executor
	t *task
}

func (r *reporter) Report(percent float64, message string, detail any) {
	r.e.mu.Lock()
	defer r.e.mu.Unlock()

	if !r.e.isRunningLocked(r.t) {
		return
	}
	switch {
	case percent < 0:
		percent = 0
	case percent > 100:
		percent = 100
	}
	r.t.progress.Percent = percent
	r.t.progress.Message = message
	r.e.emit(r.t, events.TaskProgressPayload{Percent: percent, Message: message, Detail: detail})
}

func (r *reporter) Emit(chunk any) {
	r.e.mu.Lock()
	defer r.e.mu.Unlock()

	if !r.e.isRunningLocked(r.t) {
		return
	}
	r.e.emit(r.t, events.TaskStreamPayload{Chunk: chunk})
}
