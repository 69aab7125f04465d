package tasks

import (
	"fmt"
	"sort"
)

// Registry maps task types to handlers. It is not safe for concurrent
// mutation: register every handler before the executor starts taking work.
type Registry struct {
	handlers map[string]Handler
}

// NewRegistry creates an empty handler registry.
func NewRegistry() *Registry {
	return &Registry{
		handlers: make(map[string]Handler),
	}
}

// Register adds a handler. A type can only be registered once.
func (r *Registry) Register(h Handler) error {
	name := h.Type()
	if name == "" {
		return fmt.Errorf("register handler: empty task type")
	}
	if _, exists := r.handlers[name]; exists {
		return fmt.Errorf("%w: %q", ErrDuplicateType, name)
	}
	r.handlers[name] = h
	return nil
}

// Get returns the handler for a task type.
func (r *Registry) Get(taskType string) (Handler, error) {
	h, ok := r.handlers[taskType]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, taskType)
	}
	return h, nil
}

// Has reports whether a handler is registered for the type.
func (r *Registry) Has(taskType string) bool {
	_, ok := r.handlers[taskType]
	return ok
}

// Types returns all registered types sorted by name.
func (r *Registry) Types() []string {
	result := make([]string, 0, len(r.handlers))
	for name := range r.handlers {
		result = append(result, name)
	}
	sort.Strings(result)
	return result
}

// Clear removes every handler. Intended for tests.
func (r *Registry) Clear() {
	r.handlers = make(map[string]Handler)
}
