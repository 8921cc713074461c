package dispatcher

import (
	"fmt"
	"strings"
)

// Priority determines the order in which queued operations run.
// Higher values run first.
type Priority int

const (
	// PriorityInvalid is never a valid priority.
	PriorityInvalid Priority = -1

	// PriorityInactive parks an operation: it stays queued but is not
	// processed until its priority is raised.
	PriorityInactive Priority = 0

	// PrioritySystemIdle runs when the system is otherwise idle.
	PrioritySystemIdle Priority = 1

	// PriorityApplicationIdle runs when the application is idle.
	PriorityApplicationIdle Priority = 2

	// PriorityContextIdle runs after background work.
	PriorityContextIdle Priority = 3

	// PriorityBackground runs after all other non-idle work.
	PriorityBackground Priority = 4

	// PriorityInput is used for input delivery.
	PriorityInput Priority = 5

	// PriorityLoaded runs once layout-level work has settled.
	PriorityLoaded Priority = 6

	// PriorityRender is used for rendering work.
	PriorityRender Priority = 7

	// PriorityDataBind is used for data binding work.
	PriorityDataBind Priority = 8

	// PriorityNormal is the default application priority.
	PriorityNormal Priority = 9

	// PrioritySend runs before everything else; Invoke at Send on the
	// dispatcher goroutine runs inline.
	PrioritySend Priority = 10
)

var priorityNames = [...]string{
	PriorityInactive:        "Inactive",
	PrioritySystemIdle:      "SystemIdle",
	PriorityApplicationIdle: "ApplicationIdle",
	PriorityContextIdle:     "ContextIdle",
	PriorityBackground:      "Background",
	PriorityInput:           "Input",
	PriorityLoaded:          "Loaded",
	PriorityRender:          "Render",
	PriorityDataBind:        "DataBind",
	PriorityNormal:          "Normal",
	PrioritySend:            "Send",
}

// String returns the priority name.
func (p Priority) String() string {
	if p >= PriorityInactive && p <= PrioritySend {
		return priorityNames[p]
	}
	if p == PriorityInvalid {
		return "Invalid"
	}
	return fmt.Sprintf("Priority(%d)", int(p))
}

// Validate returns ErrInvalidPriority unless p is a defined level.
// Inactive is valid here; submission APIs reject it separately.
func (p Priority) Validate() error {
	if p < PriorityInactive || p > PrioritySend {
		return fmt.Errorf("%w: %d", ErrInvalidPriority, int(p))
	}
	return nil
}

// validateSubmit checks a priority passed to BeginInvoke/Invoke.
func validateSubmit(p Priority) error {
	if err := p.Validate(); err != nil {
		return err
	}
	if p == PriorityInactive {
		return fmt.Errorf("%w: Inactive cannot be used to post work", ErrInvalidPriority)
	}
	return nil
}

// ParsePriority parses a priority name, case-insensitively.
func ParsePriority(s string) (Priority, error) {
	name := strings.TrimSpace(s)
	for i, n := range priorityNames {
		if strings.EqualFold(n, name) {
			return Priority(i), nil
		}
	}
	return PriorityInvalid, fmt.Errorf("%w: %q", ErrInvalidPriority, s)
}

// Priorities returns every valid priority from highest to lowest.
func Priorities() []Priority {
	out := make([]Priority, 0, len(priorityNames))
	for p := PrioritySend; p >= PriorityInactive; p-- {
		out = append(out, p)
	}
	return out
}

// MarshalText implements encoding.TextMarshaler.
func (p Priority) MarshalText() ([]byte, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return []byte(p.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler so priorities can be
// written by name in configuration files.
func (p *Priority) UnmarshalText(text []byte) error {
	v, err := ParsePriority(string(text))
	if err != nil {
		return err
	}
	*p = v
	return nil
}
