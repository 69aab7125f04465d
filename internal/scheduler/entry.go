package scheduler

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/dohr-michael/taskd/internal/config"
	"github.com/dohr-michael/taskd/internal/tasks"
)

// Entry is a recurring submission.
type Entry struct {
	ID       string
	Cron     string
	Type     string
	Input    json.RawMessage
	Priority tasks.TaskPriority
	Owner    string
	Timeout  time.Duration
	// SkipOverlap suppresses a trigger while the previous task of the entry
	// is still queued or running.
	SkipOverlap bool
}

// EntryStatus is the observable state of an entry.
type EntryStatus struct {
	ID         string     `json:"id"`
	Cron       string     `json:"cron"`
	Type       string     `json:"type"`
	Owner      string     `json:"owner,omitempty"`
	Next       time.Time  `json:"next"`
	LastRunAt  *time.Time `json:"last_run_at,omitempty"`
	RunCount   int        `json:"run_count"`
	Skipped    int        `json:"skipped"`
	LastTaskID string     `json:"last_task_id,omitempty"`
	LastError  string     `json:"last_error,omitempty"`
}

// FromConfig converts schedule config sections into entries.
func FromConfig(cfgs []config.ScheduleConfig) ([]Entry, error) {
	entries := make([]Entry, 0, len(cfgs))
	for _, c := range cfgs {
		e := Entry{
			ID:          c.ID,
			Cron:        c.Cron,
			Type:        c.Type,
			Owner:       c.Owner,
			Timeout:     c.Timeout.Duration(),
			SkipOverlap: c.SkipOverlap,
		}
		if c.Priority != "" {
			p, err := tasks.ParsePriority(c.Priority)
			if err != nil {
				return nil, fmt.Errorf("schedule %s: %w", c.ID, err)
			}
			e.Priority = p
		}
		if c.Input != nil {
			data, err := json.Marshal(c.Input)
			if err != nil {
				return nil, fmt.Errorf("schedule %s: encode input: %w", c.ID, err)
			}
			e.Input = data
		}
		entries = append(entries, e)
	}
	return entries, nil
}
