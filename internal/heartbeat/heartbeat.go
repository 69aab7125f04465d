// Package heartbeat lets `taskd status` find a running daemon.
package heartbeat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"syscall"
	"time"

	"github.com/dohr-michael/taskd/internal/executor"
)

// DefaultInterval is how often the heartbeat file is rewritten.
const DefaultInterval = 30 * time.Second

// Status represents the liveness state of the daemon.
type Status string

const (
	StatusAlive Status = "alive"
	StatusStale Status = "stale"
	StatusDead  Status = "dead"
)

// Heartbeat is the content of the heartbeat file.
type Heartbeat struct {
	PID       int                   `json:"pid"`
	Addr      string                `json:"addr,omitempty"`
	StartedAt time.Time             `json:"started_at"`
	Timestamp time.Time             `json:"timestamp"`
	Uptime    string                `json:"uptime"`
	Queue     *executor.QueueStatus `json:"queue,omitempty"`
}

// Writer rewrites the heartbeat file until its context ends.
type Writer struct {
	path     string
	addr     string
	interval time.Duration
	queue    func() executor.QueueStatus
}

// Option configures a Writer.
type Option func(*Writer)

// WithInterval overrides DefaultInterval.
func WithInterval(d time.Duration) Option {
	return func(w *Writer) { w.interval = d }
}

// WithQueue includes the executor load in every heartbeat.
func WithQueue(fn func() executor.QueueStatus) Option {
	return func(w *Writer) { w.queue = fn }
}

// WithAddr records the gateway address clients should dial.
func WithAddr(addr string) Option {
	return func(w *Writer) { w.addr = addr }
}

// NewWriter creates a heartbeat writer for path.
func NewWriter(path string, opts ...Option) *Writer {
	w := &Writer{path: path, interval: DefaultInterval}
	for _, o := range opts {
		o(w)
	}
	return w
}

// Run writes a heartbeat immediately and then every interval. When ctx is
// done it removes the file and returns nil. Only a failure of the first
// write is returned.
func (w *Writer) Run(ctx context.Context) error {
	started := time.Now()
	if err := w.write(started); err != nil {
		return err
	}
	defer os.Remove(w.path)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := w.write(started); err != nil {
				slog.Warn("heartbeat write failed", "path", w.path, "error", err)
			}
		}
	}
}

func (w *Writer) write(started time.Time) error {
	now := time.Now()
	hb := Heartbeat{
		PID:       os.Getpid(),
		Addr:      w.addr,
		StartedAt: started,
		Timestamp: now,
		Uptime:    now.Sub(started).Truncate(time.Second).String(),
	}
	if w.queue != nil {
		qs := w.queue()
		hb.Queue = &qs
	}

	data, err := json.MarshalIndent(hb, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(w.path), 0o755); err != nil {
		return fmt.Errorf("heartbeat dir: %w", err)
	}

	// tmp + rename so readers never see a partial file
	tmp := w.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("heartbeat write: %w", err)
	}
	return os.Rename(tmp, w.path)
}

// Check reads a heartbeat file and classifies the daemon. A missing file or
// a file whose process no longer exists is dead; a heartbeat older than
// maxAge is stale.
func Check(path string, maxAge time.Duration) (Status, *Heartbeat, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return StatusDead, nil, nil
	}
	if err != nil {
		return StatusDead, nil, fmt.Errorf("read heartbeat: %w", err)
	}

	var hb Heartbeat
	if err := json.Unmarshal(data, &hb); err != nil {
		return StatusDead, nil, fmt.Errorf("parse heartbeat: %w", err)
	}

	switch {
	case !processExists(hb.PID):
		return StatusDead, &hb, nil
	case time.Since(hb.Timestamp) > maxAge:
		return StatusStale, &hb, nil
	}
	return StatusAlive, &hb, nil
}

// processExists probes pid with signal 0.
func processExists(pid int) bool {
	if pid <= 0 {
		return false
	}
	p, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	err = p.Signal(syscall.Signal(0))
	return err == nil || errors.Is(err, syscall.EPERM)
}
