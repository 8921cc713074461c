package hook

import (
	"sync"

	"github.com/rs/zerolog"
)

// Standard hook priorities.
const (
	PriorityAudit    = 1000 // Runs first
	PriorityMetrics  = 500
	PriorityRecorder = 100
)

// AuditHook logs operation lifecycle events at debug level.
type AuditHook struct {
	logger zerolog.Logger
}

// NewAuditHook creates an audit hook with the given logger.
func NewAuditHook(logger zerolog.Logger) *AuditHook {
	return &AuditHook{logger: logger.With().Str("component", "dispatcher.audit").Logger()}
}

// Name implements Hook.
func (h *AuditHook) Name() string { return "audit" }

// Priority implements Hook.
func (h *AuditHook) Priority() int { return PriorityAudit }

// OnOperation implements OperationHook.
func (h *AuditHook) OnOperation(ev OperationEvent) {
	e := h.logger.Debug()
	if ev.Kind == Completed && ev.Err != nil {
		e = h.logger.Warn().Err(ev.Err).Bool("panicked", ev.Panicked)
	}

	e = e.Str("event", ev.Kind.String()).
		Str("operation", ev.ID.String()).
		Str("callback", ev.Callback).
		Int("priority", ev.Priority)

	switch ev.Kind {
	case Completed:
		e = e.Dur("duration", ev.Duration)
	case PriorityChanged:
		e = e.Int("previous_priority", ev.PreviousPriority)
	}
	e.Msg("operation")
}

// OnInactive implements InactiveHook.
func (h *AuditHook) OnInactive() {
	h.logger.Debug().Msg("dispatcher inactive")
}

// RecorderHook keeps a bounded history of operation events.
type RecorderHook struct {
	mu       sync.RWMutex
	events   []OperationEvent
	inactive int
	maxSize  int
}

// NewRecorderHook creates a recorder. maxSize limits the retained events
// (0 = unlimited).
func NewRecorderHook(maxSize int) *RecorderHook {
	return &RecorderHook{maxSize: maxSize}
}

// Name implements Hook.
func (h *RecorderHook) Name() string { return "recorder" }

// Priority implements Hook.
func (h *RecorderHook) Priority() int { return PriorityRecorder }

// OnOperation implements OperationHook.
func (h *RecorderHook) OnOperation(ev OperationEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.events = append(h.events, ev)
	if h.maxSize > 0 && len(h.events) > h.maxSize {
		h.events = h.events[len(h.events)-h.maxSize:]
	}
}

// OnInactive implements InactiveHook.
func (h *RecorderHook) OnInactive() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.inactive++
}

// Events returns a copy of the recorded events.
func (h *RecorderHook) Events() []OperationEvent {
	h.mu.RLock()
	defer h.mu.RUnlock()

	out := make([]OperationEvent, len(h.events))
	copy(out, h.events)
	return out
}

// Kinds returns the kinds of the recorded events in order.
func (h *RecorderHook) Kinds() []Kind {
	h.mu.RLock()
	defer h.mu.RUnlock()

	out := make([]Kind, len(h.events))
	for i, ev := range h.events {
		out[i] = ev.Kind
	}
	return out
}

// InactiveCount returns how many times the dispatcher went idle.
func (h *RecorderHook) InactiveCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.inactive
}

// Clear removes all recorded events.
func (h *RecorderHook) Clear() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.events = h.events[:0]
	h.inactive = 0
}
