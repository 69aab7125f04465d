package storage

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite"

	"github.com/dohr-michael/taskd/internal/lifecycle"
	"github.com/dohr-michael/taskd/internal/tasks"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// ErrNotFound is returned when no history record exists for a task id.
var ErrNotFound = errors.New("history record not found")

// HistoryRecord is one terminal task outcome. It is an audit record and is
// never used to re-queue work.
type HistoryRecord struct {
	TaskID       string     `json:"task_id"`
	Type         string     `json:"type"`
	Owner        string     `json:"owner,omitempty"`
	Priority     string     `json:"priority"`
	Status       string     `json:"status"`
	ErrorCode    string     `json:"error_code,omitempty"`
	ErrorMessage string     `json:"error_message,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	StartedAt    *time.Time `json:"started_at,omitempty"`
	CompletedAt  time.Time  `json:"completed_at"`
	DurationMs   int64      `json:"duration_ms"`
}

// HistoryStore journals terminal task outcomes to SQLite.
type HistoryStore struct {
	db *sql.DB
}

// OpenHistory opens (creating if needed) the journal at path and runs migrations.
func OpenHistory(path string) (*HistoryStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create history dir: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open history: %w", err)
	}
	// A single writer avoids SQLITE_BUSY between the observer and readers.
	db.SetMaxOpenConns(1)

	goose.SetBaseFS(migrationsFS)
	goose.SetLogger(goose.NopLogger())
	if err := goose.SetDialect("sqlite3"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set dialect: %w", err)
	}
	if err := goose.Up(db, "migrations"); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate history: %w", err)
	}

	return &HistoryStore{db: db}, nil
}

// Close closes the database.
func (h *HistoryStore) Close() error {
	return h.db.Close()
}

// Record appends a terminal snapshot. Non-terminal snapshots are rejected.
func (h *HistoryStore) Record(ctx context.Context, s tasks.Snapshot) error {
	if !s.Status.IsTerminal() {
		return fmt.Errorf("record %s: status %s is not terminal", s.ID, s.Status)
	}

	var code, msg string
	if s.Error != nil {
		code, msg = s.Error.Code, s.Error.Message
	}
	var started sql.NullInt64
	if s.StartedAt != nil {
		started = sql.NullInt64{Int64: s.StartedAt.UnixMilli(), Valid: true}
	}
	completed := s.CreatedAt
	if s.CompletedAt != nil {
		completed = *s.CompletedAt
	}

	_, err := h.db.ExecContext(ctx, `
		INSERT INTO task_history
			(task_id, type, owner, priority, status, error_code, error_message,
			 created_at, started_at, completed_at, duration_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, s.ID, s.Type, s.Owner, string(s.Priority), string(s.Status), code, msg,
		s.CreatedAt.UnixMilli(), started, completed.UnixMilli(), s.DurationMs)
	if err != nil {
		return fmt.Errorf("record %s: %w", s.ID, err)
	}
	return nil
}

// List returns the most recent records first. limit <= 0 means 50.
func (h *HistoryStore) List(ctx context.Context, limit int) ([]HistoryRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := h.db.QueryContext(ctx, `
		SELECT task_id, type, owner, priority, status, error_code, error_message,
		       created_at, started_at, completed_at, duration_ms
		FROM task_history
		ORDER BY completed_at DESC, id DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("list history: %w", err)
	}
	defer rows.Close()

	var out []HistoryRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// Get returns the latest record for a task id.
func (h *HistoryStore) Get(ctx context.Context, taskID string) (HistoryRecord, error) {
	row := h.db.QueryRowContext(ctx, `
		SELECT task_id, type, owner, priority, status, error_code, error_message,
		       created_at, started_at, completed_at, duration_ms
		FROM task_history
		WHERE task_id = ?
		ORDER BY id DESC
		LIMIT 1
	`, taskID)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return HistoryRecord{}, fmt.Errorf("%w: %s", ErrNotFound, taskID)
	}
	return rec, err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(s scanner) (HistoryRecord, error) {
	var rec HistoryRecord
	var created, completed int64
	var started sql.NullInt64
	err := s.Scan(&rec.TaskID, &rec.Type, &rec.Owner, &rec.Priority, &rec.Status,
		&rec.ErrorCode, &rec.ErrorMessage, &created, &started, &completed, &rec.DurationMs)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return rec, err
		}
		return rec, fmt.Errorf("scan history: %w", err)
	}
	rec.CreatedAt = time.UnixMilli(created).UTC()
	rec.CompletedAt = time.UnixMilli(completed).UTC()
	if started.Valid {
		t := time.UnixMilli(started.Int64).UTC()
		rec.StartedAt = &t
	}
	return rec, nil
}

// Hooks returns lifecycle hooks that journal every terminal outcome.
func (h *HistoryStore) Hooks() lifecycle.Hooks {
	record := func(s tasks.Snapshot) {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := h.Record(ctx, s); err != nil {
			slog.Error("history: record task", "task_id", s.ID, "error", err)
		}
	}
	return lifecycle.Hooks{
		Name:        "history",
		OnCompleted: record,
		OnFailed:    record,
		OnCancelled: record,
	}
}
