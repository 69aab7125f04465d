package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"charm.land/lipgloss/v2"
	"golang.org/x/term"

	"github.com/dohr-michael/taskd/internal/events"
)

var (
	labelStyle  = lipgloss.NewStyle().Bold(true).Width(16)
	okStyle     = labelStyle.Foreground(lipgloss.Color("#10B981"))
	errStyle    = labelStyle.Foreground(lipgloss.Color("#EF4444"))
	warnStyle   = labelStyle.Foreground(lipgloss.Color("#F59E0B"))
	infoStyle   = labelStyle.Foreground(lipgloss.Color("#7C3AED"))
	mutedStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#6B7280"))
	streamStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#E5E7EB"))
)

// eventPrinter renders task events one per line, styled when writing to a
// terminal.
type eventPrinter struct {
	w      io.Writer
	styled bool
}

func newEventPrinter(f *os.File) *eventPrinter {
	return &eventPrinter{w: f, styled: term.IsTerminal(int(f.Fd()))}
}

// printEvent renders an in-process bus event.
func (p *eventPrinter) printEvent(e events.Event) {
	data, err := json.Marshal(e.Payload)
	if err != nil {
		data = nil
	}
	p.print(string(e.Type), data)
}

// print renders an event given its type and JSON payload.
func (p *eventPrinter) print(eventType string, payload json.RawMessage) {
	label, detail := formatEvent(eventType, payload)
	if !p.styled {
		fmt.Fprintf(p.w, "%-16s %s\n", label, detail)
		return
	}

	style := infoStyle
	switch events.EventType(eventType) {
	case events.EventTaskCompleted:
		style = okStyle
	case events.EventTaskError:
		style = errStyle
	case events.EventTaskCancelled, events.EventTaskPaused:
		style = warnStyle
	case events.EventTaskStream:
		fmt.Fprintln(p.w, mutedStyle.Render("  │ ")+streamStyle.Render(detail))
		return
	}
	fmt.Fprintln(p.w, style.Render(label)+" "+detail)
}

// formatEvent turns an event into a short label and a human detail line.
func formatEvent(eventType string, payload json.RawMessage) (string, string) {
	switch events.EventType(eventType) {
	case events.EventTaskQueued:
		var p events.TaskQueuedPayload
		json.Unmarshal(payload, &p)
		return "queued", fmt.Sprintf("%s priority=%s position=%d", p.Type, p.Priority, p.Position)
	case events.EventTaskStarted:
		var p events.TaskStartedPayload
		json.Unmarshal(payload, &p)
		return "started", p.Type
	case events.EventTaskProgress:
		var p events.TaskProgressPayload
		json.Unmarshal(payload, &p)
		detail := fmt.Sprintf("%3.0f%%", p.Percent)
		if p.Message != "" {
			detail += " " + p.Message
		}
		return "progress", detail
	case events.EventTaskStream:
		var p events.TaskStreamPayload
		json.Unmarshal(payload, &p)
		if s, ok := p.Chunk.(string); ok {
			return "stream", strings.TrimRight(s, "\n")
		}
		return "stream", compactJSON(p.Chunk)
	case events.EventTaskCompleted:
		var p events.TaskCompletedPayload
		json.Unmarshal(payload, &p)
		return "completed", fmt.Sprintf("in %dms result=%s", p.DurationMs, compactJSON(p.Result))
	case events.EventTaskError:
		var p events.TaskErrorPayload
		json.Unmarshal(payload, &p)
		return "error", fmt.Sprintf("%s: %s", p.Code, p.Message)
	case events.EventTaskCancelled:
		var p events.TaskCancelledPayload
		json.Unmarshal(payload, &p)
		return "cancelled", p.Reason
	case events.EventTaskQueuePosition, events.EventTaskResumed:
		var p events.TaskQueuePositionPayload
		json.Unmarshal(payload, &p)
		return strings.TrimPrefix(eventType, "task."), fmt.Sprintf("position=%d", p.Position)
	case events.EventTaskPriorityChanged:
		var p events.TaskPriorityChangedPayload
		json.Unmarshal(payload, &p)
		return "priority", fmt.Sprintf("%s position=%d", p.Priority, p.Position)
	}
	return strings.TrimPrefix(eventType, "task."), string(payload)
}

func compactJSON(v any) string {
	if v == nil {
		return "null"
	}
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	if len(data) > 200 {
		return string(data[:197]) + "..."
	}
	return string(data)
}
