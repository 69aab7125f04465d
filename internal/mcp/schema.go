// Package mcp exposes the task executor as MCP tools.
package mcp

import (
	"sort"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"
)

// param describes one tool argument.
type param struct {
	Type        string
	Description string
	Required    bool
	Enum        []string
}

// toolSpec declares a tool and its arguments.
type toolSpec struct {
	Name        string
	Description string
	Params      map[string]param
}

// mcpTool converts a toolSpec to an mcp.Tool with a JSON Schema input.
func (s toolSpec) mcpTool() *mcpsdk.Tool {
	props := make(map[string]any, len(s.Params))
	var required []string

	for name, p := range s.Params {
		prop := map[string]any{
			"type":        p.Type,
			"description": p.Description,
		}
		if len(p.Enum) > 0 {
			prop["enum"] = p.Enum
		}
		props[name] = prop
		if p.Required {
			required = append(required, name)
		}
	}
	sort.Strings(required)

	schema := map[string]any{
		"type":       "object",
		"properties": props,
	}
	if len(required) > 0 {
		schema["required"] = required
	}

	return &mcpsdk.Tool{
		Name:        s.Name,
		Description: s.Description,
		InputSchema: schema,
	}
}

var taskIDParam = param{Type: "string", Description: "Task id returned by submit_task", Required: true}

var priorityEnum = []string{"low", "normal", "high"}

var toolSpecs = []toolSpec{
	{
		Name:        "list_task_types",
		Description: "List the task types that can be submitted",
	},
	{
		Name:        "submit_task",
		Description: "Submit a background task. With wait=true the call returns the final task snapshot.",
		Params: map[string]param{
			"type":       {Type: "string", Description: "Task type", Required: true},
			"input":      {Type: "object", Description: "Handler input"},
			"priority":   {Type: "string", Description: "Scheduling priority", Enum: priorityEnum},
			"timeout_ms": {Type: "integer", Description: "Cancel the task after this many milliseconds"},
			"owner":      {Type: "string", Description: "Owner tag for event routing"},
			"wait":       {Type: "boolean", Description: "Block until the task reaches a terminal state"},
		},
	},
	{
		Name:        "task_result",
		Description: "Get the current snapshot of a task",
		Params:      map[string]param{"task_id": taskIDParam},
	},
	{
		Name:        "cancel_task",
		Description: "Cancel a queued, paused or running task",
		Params:      map[string]param{"task_id": taskIDParam},
	},
	{
		Name:        "pause_task",
		Description: "Hold a queued task so it is not started",
		Params:      map[string]param{"task_id": taskIDParam},
	},
	{
		Name:        "resume_task",
		Description: "Return a paused task to the queue",
		Params:      map[string]param{"task_id": taskIDParam},
	},
	{
		Name:        "set_priority",
		Description: "Change the priority of a waiting task",
		Params: map[string]param{
			"task_id":  taskIDParam,
			"priority": {Type: "string", Description: "New priority", Required: true, Enum: priorityEnum},
		},
	},
	{
		Name:        "queue_status",
		Description: "Report queued, running and retained task counts",
	},
}
