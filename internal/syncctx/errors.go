package syncctx

import (
	"fmt"

	"github.com/dshills/dispatchloop/internal/dispatcher"
)

// Registration errors. They wrap dispatcher.ErrInvalidArgument or
// dispatcher.ErrInvalidOperation.
var (
	// ErrNilContext indicates a nil context was passed.
	ErrNilContext = fmt.Errorf("%w: context cannot be nil", dispatcher.ErrInvalidArgument)

	// ErrNilThread indicates a nil thread was passed.
	ErrNilThread = dispatcher.ErrNilThread

	// ErrNilAdapterDispatcher indicates NewAdapter was given no dispatcher.
	ErrNilAdapterDispatcher = fmt.Errorf("%w: dispatcher cannot be nil", dispatcher.ErrInvalidArgument)

	// ErrAlreadyRegistered indicates the context is registered with a
	// dispatcher already, this one or another.
	ErrAlreadyRegistered = fmt.Errorf("%w: context is already registered", dispatcher.ErrInvalidOperation)

	// ErrRegisteredElsewhere indicates an unregister request for a context
	// owned by a different dispatcher.
	ErrRegisteredElsewhere = fmt.Errorf("%w: context is registered with another dispatcher", dispatcher.ErrInvalidOperation)

	// ErrDispatcherFinished indicates a registration after the adapter's
	// dispatcher finished shutting down and released its contexts.
	ErrDispatcherFinished = fmt.Errorf("%w: dispatcher has finished shutting down", dispatcher.ErrInvalidOperation)

	// ErrNotRegistered indicates Post or Send on a context with no
	// dispatcher.
	ErrNotRegistered = fmt.Errorf("%w: context is not registered", dispatcher.ErrInvalidOperation)
)
