// Package hooks provides an event-driven hook system for practice session
// and server lifecycle events.
package hooks

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/soyeahso/parley/internal/logging"
)

// Event names for the hook system.
const (
	EventSessionStart   = "session_start"
	EventTurnRecorded   = "turn_recorded"
	EventSessionExpired = "session_expired"
	EventSessionEnd     = "session_end"
	EventServerStart    = "server_start"
	EventServerStop     = "server_stop"
)

// AllEvents lists all known hook event names.
var AllEvents = []string{
	EventSessionStart,
	EventTurnRecorded,
	EventSessionExpired,
	EventSessionEnd,
	EventServerStart,
	EventServerStop,
}

// Payload carries event data to hook handlers.
type Payload struct {
	Event string         `json:"event"`
	Time  time.Time      `json:"time"`
	Data  map[string]any `json:"data,omitempty"`
}

// Handler is a function that handles a hook event.
// Returning an error logs the failure but does not stop processing.
type Handler func(ctx context.Context, p Payload) error

// Manager routes lifecycle events to registered handlers.
type Manager struct {
	mu       sync.RWMutex
	handlers map[string][]namedHandler
	log      *logging.Logger
	now      func() time.Time

	// pending counts EmitAsync dispatches still running.
	pending sync.WaitGroup
}

type namedHandler struct {
	name    string
	handler Handler
}

// NewManager creates a hook manager.
func NewManager(log *logging.Logger) *Manager {
	return &Manager{
		handlers: make(map[string][]namedHandler),
		log:      log.Sub("hooks"),
		now:      time.Now,
	}
}

// On registers a handler for the given event under name. Names need not be
// unique; Off removes every handler with the name.
func (m *Manager) On(event, name string, handler Handler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[event] = append(m.handlers[event], namedHandler{name: name, handler: handler})
	m.log.Debug().Str("event", event).Str("handler", name).Msg("hook registered")
}

// Off removes all handlers with the given name from the event.
func (m *Manager) Off(event, name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[event] = slices.DeleteFunc(m.handlers[event], func(h namedHandler) bool {
		return h.name == name
	})
}

// snapshot returns the handlers for event and the payload to give them, or
// ok=false when nobody is listening.
func (m *Manager) snapshot(event string, data map[string]any) ([]namedHandler, Payload, bool) {
	m.mu.RLock()
	handlers := slices.Clone(m.handlers[event])
	m.mu.RUnlock()

	if len(handlers) == 0 {
		return nil, Payload{}, false
	}
	return handlers, Payload{Event: event, Time: m.now().UTC(), Data: data}, true
}

// run calls each handler in order, logging failures.
func (m *Manager) run(ctx context.Context, handlers []namedHandler, p Payload) {
	for _, h := range handlers {
		if err := h.handler(ctx, p); err != nil {
			m.log.Warn().
				Err(err).
				Str("event", p.Event).
				Str("handler", h.name).
				Msg("hook handler error")
		}
	}
}

// Emit dispatches an event to all registered handlers synchronously.
// Handlers are called in registration order. Errors are logged but do not
// prevent subsequent handlers from running.
func (m *Manager) Emit(ctx context.Context, event string, data map[string]any) {
	if handlers, p, ok := m.snapshot(event, data); ok {
		m.run(ctx, handlers, p)
	}
}

// EmitAsync dispatches an event in the background and returns immediately.
// The handlers for one emit still run in registration order.
func (m *Manager) EmitAsync(ctx context.Context, event string, data map[string]any) {
	handlers, p, ok := m.snapshot(event, data)
	if !ok {
		return
	}
	m.pending.Add(1)
	go func() {
		defer m.pending.Done()
		m.run(ctx, handlers, p)
	}()
}

// Wait blocks until every EmitAsync dispatch has finished or ctx is done.
func (m *Manager) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		m.pending.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Count returns the number of handlers registered for an event.
func (m *Manager) Count(event string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.handlers[event])
}

// Events returns the events that have at least one handler, sorted.
func (m *Manager) Events() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var events []string
	for event, handlers := range m.handlers {
		if len(handlers) > 0 {
			events = append(events, event)
		}
	}
	slices.Sort(events)
	return events
}
