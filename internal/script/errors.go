package script

import (
	"fmt"

	"github.com/dshills/dispatchloop/internal/dispatcher"
)

// Errors for script host operations.
var (
	// ErrHostClosed is returned when operating on a closed host.
	ErrHostClosed = fmt.Errorf("%w: script host is closed", dispatcher.ErrInvalidOperation)

	// ErrNilDispatcher indicates NewHost was given no dispatcher.
	ErrNilDispatcher = fmt.Errorf("%w: dispatcher cannot be nil", dispatcher.ErrInvalidArgument)

	// ErrNotFunction indicates Call named a global that is not a function.
	ErrNotFunction = fmt.Errorf("%w: not a lua function", dispatcher.ErrInvalidArgument)
)

// Error is a failure raised by Lua code.
type Error struct {
	// Source names the chunk or function that failed.
	Source string
	Err    error
}

// Error implements the error interface.
func (e *Error) Error() string {
	return fmt.Sprintf("script %s: %v", e.Source, e.Err)
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Err
}
