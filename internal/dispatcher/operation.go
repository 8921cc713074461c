package dispatcher

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/dshills/dispatchloop/internal/dispatcher/hook"
	"github.com/dshills/dispatchloop/internal/dispatcher/invoke"
	"github.com/dshills/dispatchloop/internal/dispatcher/queue"
)

// OperationStatus is the lifecycle state of an Operation.
type OperationStatus int32

const (
	// StatusPending means the operation is queued.
	StatusPending OperationStatus = iota

	// StatusExecuting means the callback is running.
	StatusExecuting

	// StatusCompleted means the callback ran. Err reports whether it failed.
	StatusCompleted

	// StatusAborted means the operation was removed before it ran.
	StatusAborted
)

// String returns the status name.
func (s OperationStatus) String() string {
	switch s {
	case StatusPending:
		return "Pending"
	case StatusExecuting:
		return "Executing"
	case StatusCompleted:
		return "Completed"
	case StatusAborted:
		return "Aborted"
	default:
		return fmt.Sprintf("OperationStatus(%d)", int32(s))
	}
}

// Operation is a unit of work queued on a Dispatcher.
//
// An operation is immutable once it is Completed or Aborted.
type Operation struct {
	id   uuid.UUID
	d    *Dispatcher
	call *invoke.Call

	// synchronous operations report failures to their Invoke caller instead
	// of the unhandled-error pipeline.
	synchronous bool

	// guarded by d.mu
	item     *queue.Item[*Operation]
	priority Priority
	waiters  []*Frame

	status atomic.Int32

	// written once before done is closed
	result any
	err    error
	done   chan struct{}
}

func newOperation(d *Dispatcher, call *invoke.Call, p Priority, synchronous bool) *Operation {
	return &Operation{
		id:          uuid.New(),
		d:           d,
		call:        call,
		synchronous: synchronous,
		priority:    p,
		done:        make(chan struct{}),
	}
}

// ID returns the operation's unique identifier.
func (op *Operation) ID() uuid.UUID { return op.id }

// Dispatcher returns the dispatcher the operation was posted to.
func (op *Operation) Dispatcher() *Dispatcher { return op.d }

// Callback returns a printable name for the operation's callback.
func (op *Operation) Callback() string { return op.call.Name() }

// Status returns the current status.
func (op *Operation) Status() OperationStatus {
	return OperationStatus(op.status.Load())
}

// Priority returns the current priority.
func (op *Operation) Priority() Priority {
	op.d.mu.Lock()
	defer op.d.mu.Unlock()
	return op.priority
}

// Done returns a channel that is closed once the operation is Completed or
// Aborted.
func (op *Operation) Done() <-chan struct{} { return op.done }

// Result returns the callback's value. It is nil until the operation
// completes.
func (op *Operation) Result() any {
	select {
	case <-op.done:
		return op.result
	default:
		return nil
	}
}

// Err returns the callback's error, or a *PanicError if it panicked. It is
// nil until the operation completes.
func (op *Operation) Err() error {
	select {
	case <-op.done:
		return op.err
	default:
		return nil
	}
}

// SetPriority moves a pending operation to a new priority. The operation
// goes to the back of its new priority band. Inactive parks the operation
// until its priority is raised again.
func (op *Operation) SetPriority(p Priority) error {
	if err := p.Validate(); err != nil {
		return err
	}

	d := op.d
	d.mu.Lock()
	if op.Status() != StatusPending || op.item == nil {
		d.mu.Unlock()
		return ErrOperationNotPending
	}
	prev := op.priority
	op.priority = p
	d.queue.Update(op.item, int(p))
	d.mu.Unlock()

	d.runHook(hook.OperationEvent{
		Kind:             hook.PriorityChanged,
		ID:               op.id,
		Callback:         op.call.Name(),
		Priority:         int(p),
		PreviousPriority: int(prev),
	})
	d.signal()
	return nil
}

// Abort removes a pending operation from the queue. It reports whether the
// operation was aborted; an operation that already started cannot be.
func (op *Operation) Abort() bool {
	d := op.d
	d.mu.Lock()
	if op.Status() != StatusPending {
		d.mu.Unlock()
		return false
	}
	if op.item != nil {
		d.queue.Remove(op.item)
	}
	op.status.Store(int32(StatusAborted))
	d.mu.Unlock()

	op.finishAborted()
	return true
}

// Wait blocks until the operation finishes or ctx is done.
//
// On the dispatcher goroutine Wait pumps a nested frame, so other queued
// work keeps running while it waits. Elsewhere it blocks.
//
// A completed operation returns its callback's value and error. An aborted
// one returns (nil, nil), or ErrOperationAborted under AbandonError.
func (op *Operation) Wait(ctx context.Context) (any, error) {
	if err := op.wait(ctx); err != nil {
		return nil, err
	}
	return op.outcome()
}

// outcome reports a finished operation's result.
func (op *Operation) outcome() (any, error) {
	if op.Status() == StatusAborted {
		if op.d.config.AbandonPolicy == AbandonError {
			return nil, ErrOperationAborted
		}
		return nil, nil
	}
	return op.result, op.err
}

// wait returns nil once the operation is done. It returns ctx.Err() when
// the context ends first and a frame error when the nested pump fails.
// When the nested frame is unwound by shutdown before the operation runs,
// the operation is aborted.
func (op *Operation) wait(ctx context.Context) error {
	select {
	case <-op.done:
		return nil
	default:
	}

	if !op.d.CheckAccess() {
		select {
		case <-op.done:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	frame := NewFrame()
	frame.ctx = ctx
	if !op.addWaiter(frame) {
		return nil
	}
	defer op.removeWaiter(frame)

	stop := context.AfterFunc(ctx, func() {
		frame.SetContinue(false)
	})
	defer stop()

	if err := op.d.PushFrame(frame); err != nil {
		return err
	}

	select {
	case <-op.done:
		return nil
	default:
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	// the frame was asked to exit while the operation is still queued
	if !op.Abort() {
		select {
		case <-op.done:
		default:
			return ErrOperationNotPending
		}
	}
	return nil
}

// addWaiter registers a frame that must stop when the operation finishes.
// It reports false if the operation is already done.
func (op *Operation) addWaiter(f *Frame) bool {
	op.d.mu.Lock()
	defer op.d.mu.Unlock()

	select {
	case <-op.done:
		return false
	default:
	}
	op.waiters = append(op.waiters, f)
	return true
}

func (op *Operation) removeWaiter(f *Frame) {
	op.d.mu.Lock()
	defer op.d.mu.Unlock()

	for i, w := range op.waiters {
		if w == f {
			op.waiters = append(op.waiters[:i], op.waiters[i+1:]...)
			return
		}
	}
}

// complete records the callback's outcome and releases waiters.
func (op *Operation) complete(result any, err error) {
	op.result = result
	op.err = err
	op.status.Store(int32(StatusCompleted))
	op.release()
}

// finishAborted releases waiters of an operation already marked Aborted.
func (op *Operation) finishAborted() {
	op.release()
	op.d.runHook(hook.OperationEvent{
		Kind:     hook.Aborted,
		ID:       op.id,
		Callback: op.call.Name(),
		Priority: int(op.Priority()),
	})
}

func (op *Operation) release() {
	d := op.d
	d.mu.Lock()
	op.item = nil
	close(op.done)
	waiters := op.waiters
	op.waiters = nil
	d.mu.Unlock()

	for _, f := range waiters {
		f.SetContinue(false)
	}
}
