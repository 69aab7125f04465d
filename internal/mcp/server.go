package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"slices"
	"time"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/dohr-michael/taskd/internal/gateway/ws"
	"github.com/dohr-michael/taskd/internal/tasks"
)

// Options configures the MCP server.
type Options struct {
	Service ws.TaskService
	Types   func() []string
	// Tools restricts the exposed tools by name. Empty exposes all.
	Tools   []string
	Version string
}

// waitTimeout bounds a blocking submit_task.
const waitTimeout = 10 * time.Minute

type toolFunc func(ctx context.Context, args json.RawMessage) (any, error)

type server struct {
	svc   ws.TaskService
	types func() []string
}

// NewServer creates an MCP server whose tools drive the executor.
func NewServer(opts Options) *mcpsdk.Server {
	version := opts.Version
	if version == "" {
		version = "dev"
	}
	srv := mcpsdk.NewServer(&mcpsdk.Implementation{Name: "taskd", Version: version}, nil)

	s := &server{svc: opts.Service, types: opts.Types}
	handlers := map[string]toolFunc{
		"list_task_types": s.listTypes,
		"submit_task":     s.submit,
		"task_result":     s.result,
		"cancel_task":     s.control(opts.Service.Cancel),
		"pause_task":      s.control(opts.Service.Pause),
		"resume_task":     s.control(opts.Service.Resume),
		"set_priority":    s.setPriority,
		"queue_status":    s.queueStatus,
	}

	for _, spec := range toolSpecs {
		if len(opts.Tools) > 0 && !slices.Contains(opts.Tools, spec.Name) {
			continue
		}
		srv.AddTool(spec.mcpTool(), wrap(spec.Name, handlers[spec.Name]))
		slog.Debug("mcp tool registered", "tool", spec.Name)
	}
	return srv
}

// wrap turns a toolFunc into an MCP handler. Tool failures are reported as
// error results, not protocol errors.
func wrap(name string, fn toolFunc) mcpsdk.ToolHandler {
	return func(ctx context.Context, req *mcpsdk.CallToolRequest) (*mcpsdk.CallToolResult, error) {
		var args json.RawMessage
		if req.Params != nil {
			args = req.Params.Arguments
		}
		out, err := fn(ctx, args)
		if err != nil {
			slog.Debug("mcp tool error", "tool", name, "error", err)
			return &mcpsdk.CallToolResult{
				IsError: true,
				Content: []mcpsdk.Content{&mcpsdk.TextContent{Text: err.Error()}},
			}, nil
		}
		data, err := json.Marshal(out)
		if err != nil {
			return nil, fmt.Errorf("encode %s result: %w", name, err)
		}
		return &mcpsdk.CallToolResult{
			Content: []mcpsdk.Content{&mcpsdk.TextContent{Text: string(data)}},
		}, nil
	}
}

func decodeArgs(raw json.RawMessage, v any) error {
	if len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("invalid arguments: %w", err)
	}
	return nil
}

func (s *server) listTypes(context.Context, json.RawMessage) (any, error) {
	types := []string{}
	if s.types != nil {
		types = append(types, s.types()...)
	}
	return types, nil
}

type submitArgs struct {
	Type      string          `json:"type"`
	Input     json.RawMessage `json:"input"`
	Priority  string          `json:"priority"`
	TimeoutMs int64           `json:"timeout_ms"`
	Owner     string          `json:"owner"`
	Wait      bool            `json:"wait"`
}

func (s *server) submit(ctx context.Context, raw json.RawMessage) (any, error) {
	var args submitArgs
	if err := decodeArgs(raw, &args); err != nil {
		return nil, err
	}
	params := ws.SubmitParams{
		Type:  args.Type,
		Input: args.Input,
		Options: ws.SubmitOptions{
			Priority:  args.Priority,
			TimeoutMs: args.TimeoutMs,
			Owner:     args.Owner,
		},
	}
	opts, err := params.TaskOptions()
	if err != nil {
		return nil, err
	}

	id, err := s.svc.Submit(args.Type, args.Input, opts)
	if err != nil {
		return nil, err
	}
	if !args.Wait {
		return ws.SubmitResult{TaskID: id}, nil
	}

	ctx, cancel := context.WithTimeout(ctx, waitTimeout)
	defer cancel()
	return s.svc.Wait(ctx, id)
}

type taskArgs struct {
	TaskID   string `json:"task_id"`
	Priority string `json:"priority"`
}

func (a taskArgs) validate() error {
	if a.TaskID == "" {
		return fmt.Errorf("task_id is required")
	}
	return nil
}

func (s *server) result(_ context.Context, raw json.RawMessage) (any, error) {
	var args taskArgs
	if err := decodeArgs(raw, &args); err != nil {
		return nil, err
	}
	if err := args.validate(); err != nil {
		return nil, err
	}
	snap, ok := s.svc.Result(args.TaskID)
	if !ok {
		return nil, fmt.Errorf("task %s not found", args.TaskID)
	}
	return snap, nil
}

func (s *server) control(fn func(string) bool) toolFunc {
	return func(_ context.Context, raw json.RawMessage) (any, error) {
		var args taskArgs
		if err := decodeArgs(raw, &args); err != nil {
			return nil, err
		}
		if err := args.validate(); err != nil {
			return nil, err
		}
		return ws.AckResult{Applied: fn(args.TaskID)}, nil
	}
}

func (s *server) setPriority(_ context.Context, raw json.RawMessage) (any, error) {
	var args taskArgs
	if err := decodeArgs(raw, &args); err != nil {
		return nil, err
	}
	if err := args.validate(); err != nil {
		return nil, err
	}
	prio, err := tasks.ParsePriority(args.Priority)
	if err != nil {
		return nil, err
	}
	return ws.AckResult{Applied: s.svc.UpdatePriority(args.TaskID, prio)}, nil
}

func (s *server) queueStatus(context.Context, json.RawMessage) (any, error) {
	return s.svc.QueueStatus(), nil
}
