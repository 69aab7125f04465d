package storage

import (
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/dohr-michael/taskd/internal/events"
)

// EventLogger persists bus events to JSONL files organized by owner.
type EventLogger struct {
	dir         string
	bus         *events.Bus
	unsubscribe func()
}

// NewEventLogger creates an EventLogger that subscribes to all bus events
// and writes them as JSONL to dir, one file per owner.
func NewEventLogger(dir string, bus *events.Bus) *EventLogger {
	el := &EventLogger{
		dir: dir,
		bus: bus,
	}
	el.unsubscribe = bus.Subscribe(el.handleEvent)
	return el
}

// Close unsubscribes the logger from the event bus.
func (el *EventLogger) Close() {
	if el.unsubscribe != nil {
		el.unsubscribe()
	}
}

func (el *EventLogger) handleEvent(e events.Event) {
	// Progress and stream chunks are too noisy; the terminal event carries the outcome.
	if e.Type == events.EventTaskProgress || e.Type == events.EventTaskStream {
		return
	}
	if err := el.writeEvent(e); err != nil {
		slog.Warn("event log: write failed", "type", e.Type, "task_id", e.TaskID, "error", err)
	}
}

func (el *EventLogger) writeEvent(e events.Event) error {
	data, err := json.Marshal(e)
	if err != nil {
		return err
	}
	data = append(data, '\n')

	path := el.logPath(e.Owner)

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	defer f.Close()

	_, err = f.Write(data)
	return err
}

var ownerReplacer = strings.NewReplacer("/", "_", "\\", "_", "..", "_")

func (el *EventLogger) logPath(owner string) string {
	if owner == "" {
		return filepath.Join(el.dir, "_global.jsonl")
	}
	return filepath.Join(el.dir, ownerReplacer.Replace(owner)+".jsonl")
}
