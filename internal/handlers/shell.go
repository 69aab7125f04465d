package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"mvdan.cc/sh/v3/expand"
	"mvdan.cc/sh/v3/interp"
	"mvdan.cc/sh/v3/syntax"

	"github.com/dohr-michael/taskd/internal/tasks"
)

// CodeExitStatus is reported when a script exits non-zero.
const CodeExitStatus = "EXIT_STATUS"

const maxStderr = 64 << 10

// ShellInput is a POSIX shell script and an optional working directory.
type ShellInput struct {
	Script string `json:"script" validate:"required"`
	Dir    string `json:"dir,omitempty"`
}

// ShellResult summarizes a successful script run.
type ShellResult struct {
	ExitCode int    `json:"exit_code"`
	Lines    int    `json:"lines"`
	Stderr   string `json:"stderr,omitempty"`
}

// Shell runs scripts with an in-process POSIX interpreter, streaming stdout
// line by line.
type Shell struct {
	workDir string
}

// NewShell creates a shell handler rooted at workDir (empty = process cwd).
func NewShell(workDir string) *Shell {
	return &Shell{workDir: workDir}
}

func (s *Shell) Type() string { return "shell" }

func (s *Shell) Validate(input json.RawMessage) error {
	in, err := decodeInput[ShellInput](input)
	if err != nil {
		return err
	}
	_, err = parseScript(in.Script)
	return err
}

func (s *Shell) Execute(ctx context.Context, input json.RawMessage, _ tasks.ProgressReporter, stream tasks.StreamReporter) (any, error) {
	in, err := decodeInput[ShellInput](input)
	if err != nil {
		return nil, err
	}
	file, err := parseScript(in.Script)
	if err != nil {
		return nil, err
	}

	dir := s.resolveDir(in.Dir)
	stdout := &lineWriter{emit: stream.Emit}
	stderr := &limitedBuffer{max: maxStderr}

	runner, err := interp.New(
		interp.StdIO(nil, stdout, stderr),
		interp.Dir(dir),
		interp.Env(expand.ListEnviron(os.Environ()...)),
	)
	if err != nil {
		return nil, fmt.Errorf("shell: init interpreter: %w", err)
	}

	slog.Debug("shell: executing", "dir", dir)
	runErr := runner.Run(ctx, file)
	stdout.Flush()

	if ctx.Err() != nil {
		return nil, context.Cause(ctx)
	}
	if runErr != nil {
		var status interp.ExitStatus
		if errors.As(runErr, &status) {
			return nil, tasks.NewHandlerError(CodeExitStatus,
				fmt.Sprintf("script exited with status %d", uint8(status)), nil)
		}
		return nil, fmt.Errorf("shell: %w", runErr)
	}
	return ShellResult{ExitCode: 0, Lines: stdout.Lines(), Stderr: stderr.String()}, nil
}

func (s *Shell) resolveDir(dir string) string {
	switch {
	case dir == "":
		return s.workDir
	case filepath.IsAbs(dir) || s.workDir == "":
		return dir
	default:
		return filepath.Join(s.workDir, dir)
	}
}

func parseScript(script string) (*syntax.File, error) {
	file, err := syntax.NewParser().Parse(strings.NewReader(script), "script")
	if err != nil {
		return nil, fmt.Errorf("parse script: %w", err)
	}
	return file, nil
}

// lineWriter emits every complete line written to it as one stream chunk.
type lineWriter struct {
	mu    sync.Mutex
	emit  func(any)
	buf   bytes.Buffer
	lines int
}

func (w *lineWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.buf.Write(p)
	for {
		i := bytes.IndexByte(w.buf.Bytes(), '\n')
		if i < 0 {
			break
		}
		line := string(w.buf.Next(i + 1))
		w.lines++
		w.emit(strings.TrimRight(line, "\r\n"))
	}
	return len(p), nil
}

// Flush emits a trailing line that has no newline.
func (w *lineWriter) Flush() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.buf.Len() > 0 {
		w.lines++
		w.emit(w.buf.String())
		w.buf.Reset()
	}
}

func (w *lineWriter) Lines() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.lines
}

// limitedBuffer keeps at most max bytes and drops the rest.
type limitedBuffer struct {
	mu  sync.Mutex
	max int
	buf bytes.Buffer
}

func (b *limitedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if room := b.max - b.buf.Len(); room > 0 {
		if len(p) > room {
			b.buf.Write(p[:room])
		} else {
			b.buf.Write(p)
		}
	}
	return len(p), nil
}

func (b *limitedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}
