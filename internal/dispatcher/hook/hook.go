// Package hook provides observer hooks for dispatcher operations.
package hook

import (
	"time"

	"github.com/google/uuid"
)

// Kind identifies what happened to an operation.
type Kind int

const (
	// Posted fires when an operation is enqueued.
	Posted Kind = iota
	// Started fires when the loop begins executing an operation.
	Started
	// Completed fires after an operation ran, whether or not it failed.
	Completed
	// Aborted fires when a pending operation is abandoned.
	Aborted
	// PriorityChanged fires when a pending operation is re-prioritized.
	PriorityChanged
)

// String returns the kind name.
func (k Kind) String() string {
	switch k {
	case Posted:
		return "posted"
	case Started:
		return "started"
	case Completed:
		return "completed"
	case Aborted:
		return "aborted"
	case PriorityChanged:
		return "priority-changed"
	default:
		return "unknown"
	}
}

// OperationEvent describes an operation lifecycle change.
type OperationEvent struct {
	Kind Kind

	// Operation identity and callback description.
	ID       uuid.UUID
	Callback string

	// Priority is the operation's priority after the change.
	Priority int
	// PreviousPriority is set for PriorityChanged.
	PreviousPriority int

	// Duration and Err are set for Completed.
	Duration time.Duration
	Err      error
	Panicked bool
}

// Hook is the base interface for all dispatcher hooks.
type Hook interface {
	// Name returns a unique identifier for this hook.
	Name() string

	// Priority returns the hook priority. Higher values run first.
	Priority() int
}

// OperationHook observes operation lifecycle events.
type OperationHook interface {
	Hook
	OnOperation(ev OperationEvent)
}

// InactiveHook is notified when the dispatcher runs out of work.
type InactiveHook interface {
	Hook
	OnInactive()
}

// OperationFunc wraps a function as an OperationHook.
type OperationFunc struct {
	name     string
	priority int
	fn       func(ev OperationEvent)
}

// NewOperationFunc creates a new OperationFunc hook.
func NewOperationFunc(name string, priority int, fn func(ev OperationEvent)) *OperationFunc {
	return &OperationFunc{name: name, priority: priority, fn: fn}
}

// Name implements Hook.
func (f *OperationFunc) Name() string { return f.name }

// Priority implements Hook.
func (f *OperationFunc) Priority() int { return f.priority }

// OnOperation implements OperationHook.
func (f *OperationFunc) OnOperation(ev OperationEvent) {
	if f.fn != nil {
		f.fn(ev)
	}
}

// InactiveFunc wraps a function as an InactiveHook.
type InactiveFunc struct {
	name     string
	priority int
	fn       func()
}

// NewInactiveFunc creates a new InactiveFunc hook.
func NewInactiveFunc(name string, priority int, fn func()) *InactiveFunc {
	return &InactiveFunc{name: name, priority: priority, fn: fn}
}

// Name implements Hook.
func (f *InactiveFunc) Name() string { return f.name }

// Priority implements Hook.
func (f *InactiveFunc) Priority() int { return f.priority }

// OnInactive implements InactiveHook.
func (f *InactiveFunc) OnInactive() {
	if f.fn != nil {
		f.fn()
	}
}
