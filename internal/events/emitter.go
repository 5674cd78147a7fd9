package events

import (
	"context"
	"log/slog"
	"sync"
)

// subscription pairs a handler with the event types it wants. An empty
// type set means every event.
type subscription struct {
	handler EventHandler
	types   map[string]struct{}
}

func (s subscription) wants(eventType string) bool {
	if len(s.types) == 0 {
		return true
	}
	_, ok := s.types[eventType]
	return ok
}

// InMemoryEventEmitter dispatches events synchronously to the handlers
// registered with it.
type InMemoryEventEmitter struct {
	subs   []subscription
	mu     sync.RWMutex
	logger *slog.Logger
}

// NewInMemoryEventEmitter creates a new instance of InMemoryEventEmitter.
func NewInMemoryEventEmitter(logger *slog.Logger) *InMemoryEventEmitter {
	return &InMemoryEventEmitter{
		logger: logger.With("component", "in_memory_event_emitter"),
	}
}

// RegisterHandler subscribes handler to the given event types, or to every
// event when no types are given.
func (e *InMemoryEventEmitter) RegisterHandler(handler EventHandler, eventTypes ...string) {
	sub := subscription{handler: handler}
	if len(eventTypes) > 0 {
		sub.types = make(map[string]struct{}, len(eventTypes))
		for _, t := range eventTypes {
			sub.types[t] = struct{}{}
		}
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.subs = append(e.subs, sub)
	e.logger.Debug("registered event handler",
		"handler_count", len(e.subs),
		"event_types", eventTypes)
}

// EmitEvent delivers the event to every interested handler. A failing
// handler does not stop delivery to the others; the first error is returned.
func (e *InMemoryEventEmitter) EmitEvent(ctx context.Context, event *JobEvent) error {
	e.mu.RLock()
	subs := make([]subscription, 0, len(e.subs))
	for _, s := range e.subs {
		if s.wants(event.Type) {
			subs = append(subs, s)
		}
	}
	e.mu.RUnlock()

	if len(subs) == 0 {
		return nil
	}

	e.logger.Debug("emitting event",
		"event_id", event.ID,
		"event_type", event.Type,
		"job_id", event.JobID,
		"handler_count", len(subs))

	var firstErr error
	for i, s := range subs {
		if err := s.handler.HandleEvent(ctx, event); err != nil {
			e.logger.Error("handler failed to process event",
				"error", err,
				"handler_index", i,
				"event_id", event.ID,
				"event_type", event.Type,
				"job_id", event.JobID)
			if firstErr == nil {
				firstErr = err
			}
		}
	}

	return firstErr
}

var _ EventEmitter = (*InMemoryEventEmitter)(nil)
