package task

import (
	"context"
	"sort"
	"sync"
)

// ProgressFunc reports incremental progress from a running handler. It
// returns immediately; persistence happens in the background.
type ProgressFunc func(Progress)

// Handler performs the work for one task type. It receives the job as
// submitted, a read-only view of job persistence, and a progress callback.
// Returning an error (or panicking) marks the job failed with the error text;
// returning normally marks it completed with the returned payload.
//
// ctx is cancelled only when the queue is forced to stop; the queue imposes no
// deadline of its own, so handlers that call slow services should apply their
// own timeouts.
type Handler func(ctx context.Context, job Job, store JobReader, report ProgressFunc) (Payload, error)

// Registry maps task type names to handlers.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]Handler
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{handlers: make(map[string]Handler)}
}

// Register binds handler to taskType. Registering the same task type again
// replaces the previous handler. Handlers are expected to be registered once
// at process start, so an empty name or nil handler panics.
func (r *Registry) Register(taskType string, handler Handler) {
	if taskType == "" {
		panic("task: Register called with empty task type")
	}
	if handler == nil {
		panic("task: Register called with nil handler for " + taskType)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[taskType] = handler
}

// Lookup returns the handler registered for taskType.
func (r *Registry) Lookup(taskType string) (Handler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handlers[taskType]
	return h, ok
}

// Types returns the registered task type names in sorted order.
func (r *Registry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	types := make([]string, 0, len(r.handlers))
	for t := range r.handlers {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}
