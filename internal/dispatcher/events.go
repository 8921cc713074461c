package dispatcher

import (
	"sync"
)

// UnhandledExceptionFilterEventArgs is passed to filter subscribers when a
// posted callback fails.
type UnhandledExceptionFilterEventArgs struct {
	// Err is the callback's error or *PanicError.
	Err error

	// Operation is the failed operation.
	Operation *Operation

	// RequestCatch asks the dispatcher to raise UnhandledException instead
	// of propagating the error. Once set by any subscriber it stays set.
	RequestCatch bool
}

// UnhandledExceptionEventArgs is passed to notify subscribers after a
// filter requested catch.
type UnhandledExceptionEventArgs struct {
	// Err is the callback's error or *PanicError.
	Err error

	// Operation is the failed operation.
	Operation *Operation

	// Handled suppresses propagation. Once set by any subscriber it stays
	// set.
	Handled bool
}

// UnhandledExceptionFilterHandler inspects a failure and may request catch.
type UnhandledExceptionFilterHandler func(d *Dispatcher, e *UnhandledExceptionFilterEventArgs)

// UnhandledExceptionHandler is notified of a caught failure and may mark it
// handled.
type UnhandledExceptionHandler func(d *Dispatcher, e *UnhandledExceptionEventArgs)

// ShutdownHandler is called on shutdown transitions.
type ShutdownHandler func(d *Dispatcher)

// Subscription is returned by the On* methods.
type Subscription struct {
	once   sync.Once
	cancel func() bool
}

// Unsubscribe removes the handler. It reports whether this call removed it.
func (s *Subscription) Unsubscribe() bool {
	if s == nil {
		return false
	}
	removed := false
	s.once.Do(func() {
		removed = s.cancel()
	})
	return removed
}

// eventList is an ordered, concurrency-safe list of handlers.
type eventList[H any] struct {
	mu       sync.Mutex
	nextID   uint64
	handlers []eventEntry[H]
}

type eventEntry[H any] struct {
	id uint64
	h  H
}

func (l *eventList[H]) add(h H) *Subscription {
	l.mu.Lock()
	l.nextID++
	id := l.nextID
	l.handlers = append(l.handlers, eventEntry[H]{id: id, h: h})
	l.mu.Unlock()

	return &Subscription{cancel: func() bool { return l.remove(id) }}
}

func (l *eventList[H]) remove(id uint64) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	for i, e := range l.handlers {
		if e.id == id {
			l.handlers = append(l.handlers[:i:i], l.handlers[i+1:]...)
			return true
		}
	}
	return false
}

// snapshot returns the handlers in registration order.
func (l *eventList[H]) snapshot() []H {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]H, len(l.handlers))
	for i, e := range l.handlers {
		out[i] = e.h
	}
	return out
}

func (l *eventList[H]) count() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.handlers)
}

// OnUnhandledExceptionFilter subscribes to the first stage of the
// unhandled-error pipeline. Handlers run in subscription order.
func (d *Dispatcher) OnUnhandledExceptionFilter(h UnhandledExceptionFilterHandler) *Subscription {
	return d.filters.add(h)
}

// OnUnhandledException subscribes to the second stage of the
// unhandled-error pipeline, raised only when a filter requested catch.
func (d *Dispatcher) OnUnhandledException(h UnhandledExceptionHandler) *Subscription {
	return d.notifies.add(h)
}

// OnShutdownStarted subscribes to the start of shutdown.
func (d *Dispatcher) OnShutdownStarted(h ShutdownHandler) *Subscription {
	return d.shutdownStarted.add(h)
}

// OnShutdownFinished subscribes to the end of shutdown.
func (d *Dispatcher) OnShutdownFinished(h ShutdownHandler) *Subscription {
	return d.shutdownFinished.add(h)
}

// handleUnhandled runs the filter and notify stages for a failed posted
// operation. It returns nil when a subscriber handled the failure.
func (d *Dispatcher) handleUnhandled(op *Operation, err error) error {
	fargs := &UnhandledExceptionFilterEventArgs{Err: err, Operation: op}
	catch := false
	for _, h := range d.filters.snapshot() {
		h(d, fargs)
		catch = catch || fargs.RequestCatch
		fargs.RequestCatch = catch
	}

	if !catch {
		d.logger.Debug().
			Err(err).
			Str("operation", op.id.String()).
			Msg("unhandled callback error propagated")
		return &DispatchError{Err: err, Operation: op}
	}

	nargs := &UnhandledExceptionEventArgs{Err: err, Operation: op}
	handled := false
	for _, h := range d.notifies.snapshot() {
		h(d, nargs)
		handled = handled || nargs.Handled
		nargs.Handled = handled
	}

	if !handled {
		d.logger.Debug().
			Err(err).
			Str("operation", op.id.String()).
			Msg("caught callback error not handled")
		return &DispatchError{Err: err, Operation: op}
	}

	d.logger.Debug().
		Err(err).
		Str("operation", op.id.String()).
		Msg("callback error handled")
	return nil
}
