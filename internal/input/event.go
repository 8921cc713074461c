package input

import (
	"time"

	"github.com/gdamore/tcell/v2"
)

// Kind identifies the type of terminal event.
type Kind int

const (
	KindNone Kind = iota
	KindKey
	KindMouse
	KindResize
	KindPaste
	KindFocus
)

// String returns the kind name.
func (k Kind) String() string {
	switch k {
	case KindKey:
		return "key"
	case KindMouse:
		return "mouse"
	case KindResize:
		return "resize"
	case KindPaste:
		return "paste"
	case KindFocus:
		return "focus"
	default:
		return "none"
	}
}

// Event is a terminal event as delivered to handlers on the dispatcher
// goroutine.
type Event struct {
	Kind Kind
	Time time.Time

	// key events
	Key  tcell.Key
	Rune rune
	Mod  tcell.ModMask

	// mouse events
	X, Y    int
	Buttons tcell.ButtonMask

	// resize events
	Width, Height int

	// Start is true for the event opening a bracketed paste. For focus
	// events it reports whether the terminal gained focus.
	Start bool
}

// Name returns a readable description of a key event, such as "Rune[a]"
// or "Ctrl+C".
func (e Event) Name() string {
	if e.Kind != KindKey {
		return e.Kind.String()
	}
	return tcell.NewEventKey(e.Key, e.Rune, e.Mod).Name()
}

// convert maps a tcell event onto an Event. ok is false for events the
// pump does not forward.
func convert(ev tcell.Event) (Event, bool) {
	switch e := ev.(type) {
	case *tcell.EventKey:
		return Event{
			Kind: KindKey,
			Time: e.When(),
			Key:  e.Key(),
			Rune: e.Rune(),
			Mod:  e.Modifiers(),
		}, true

	case *tcell.EventMouse:
		x, y := e.Position()
		return Event{
			Kind:    KindMouse,
			Time:    e.When(),
			X:       x,
			Y:       y,
			Buttons: e.Buttons(),
			Mod:     e.Modifiers(),
		}, true

	case *tcell.EventResize:
		w, h := e.Size()
		return Event{
			Kind:   KindResize,
			Time:   e.When(),
			Width:  w,
			Height: h,
		}, true

	case *tcell.EventPaste:
		return Event{
			Kind:  KindPaste,
			Time:  e.When(),
			Start: e.Start(),
		}, true

	case *tcell.EventFocus:
		// NewEventFocus leaves the timestamp unset
		at := time.Now()
		if e.EventTime != nil {
			at = e.When()
		}
		return Event{
			Kind:  KindFocus,
			Time:  at,
			Start: e.Focused,
		}, true

	default:
		return Event{}, false
	}
}
