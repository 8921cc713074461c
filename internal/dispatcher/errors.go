package dispatcher

import (
	"errors"
	"fmt"
)

// Error classes. Every argument error wraps ErrInvalidArgument and every
// state error wraps ErrInvalidOperation, so callers can classify with
// errors.Is.
var (
	// ErrInvalidArgument classifies errors caused by bad call arguments.
	ErrInvalidArgument = errors.New("dispatcher: invalid argument")

	// ErrInvalidOperation classifies errors caused by calling an API in the
	// wrong state.
	ErrInvalidOperation = errors.New("dispatcher: invalid operation")
)

// Dispatcher errors.
var (
	// ErrInvalidPriority indicates a priority outside the defined levels, or
	// Inactive passed to a posting API.
	ErrInvalidPriority = fmt.Errorf("%w: invalid priority", ErrInvalidArgument)

	// ErrInvalidCallback indicates a callback that cannot be called with the
	// supplied arguments.
	ErrInvalidCallback = fmt.Errorf("%w: invalid callback", ErrInvalidArgument)

	// ErrNilFrame indicates PushFrame was called with a nil frame.
	ErrNilFrame = fmt.Errorf("%w: frame cannot be nil", ErrInvalidArgument)

	// ErrNilThread indicates a nil thread was passed.
	ErrNilThread = fmt.Errorf("%w: thread cannot be nil", ErrInvalidArgument)

	// ErrWrongGoroutine indicates an owner-only API was called from another
	// goroutine.
	ErrWrongGoroutine = fmt.Errorf("%w: calling goroutine does not own the dispatcher", ErrInvalidOperation)

	// ErrShutdownFinished indicates the dispatcher has shut down and can no
	// longer pump.
	ErrShutdownFinished = fmt.Errorf("%w: dispatcher has shut down", ErrInvalidOperation)

	// ErrFrameDepthExceeded indicates too many nested frames.
	ErrFrameDepthExceeded = fmt.Errorf("%w: maximum frame depth exceeded", ErrInvalidOperation)

	// ErrOperationNotPending indicates a change to an operation that already
	// started, finished or was aborted.
	ErrOperationNotPending = fmt.Errorf("%w: operation is not pending", ErrInvalidOperation)

	// ErrOperationAborted is reported by Wait and Invoke for abandoned
	// operations when the abandon policy is AbandonError.
	ErrOperationAborted = errors.New("dispatcher: operation aborted")

	// ErrInvokeTimeout indicates InvokeTimeout gave up waiting.
	ErrInvokeTimeout = errors.New("dispatcher: invoke timed out")

	// ErrCallbackPanic is matched by PanicError.
	ErrCallbackPanic = errors.New("dispatcher: callback panicked")
)

// DispatchErrorMessage is the fixed message of every DispatchError. The
// callback's own error is reachable through Unwrap.
const DispatchErrorMessage = "exception thrown inside Dispatcher.Invoke / Dispatcher.BeginInvoke"

// DispatchError carries an error raised by a dispatched callback out of the
// loop, to the nearest PushFrame, Run or Invoke caller.
type DispatchError struct {
	// Err is the callback's error, or a *PanicError.
	Err error

	// Operation is the operation whose callback failed.
	Operation *Operation
}

// Error implements the error interface.
func (e *DispatchError) Error() string {
	return DispatchErrorMessage
}

// Unwrap returns the callback's error.
func (e *DispatchError) Unwrap() error {
	return e.Err
}

// PanicError wraps a panic raised by a callback.
type PanicError struct {
	// Value is the value passed to panic().
	Value any

	// Stack is the stack trace at the time of the panic.
	Stack string
}

// Error implements the error interface.
func (e *PanicError) Error() string {
	return fmt.Sprintf("callback panic: %v", e.Value)
}

// Is allows errors.Is to match PanicError with ErrCallbackPanic.
func (e *PanicError) Is(target error) bool {
	return target == ErrCallbackPanic
}

// Unwrap exposes the panic value when it was itself an error.
func (e *PanicError) Unwrap() error {
	if err, ok := e.Value.(error); ok {
		return err
	}
	return nil
}
