package syncctx

import (
	"fmt"
	"sort"
	"sync"

	"github.com/rs/zerolog"

	"github.com/dshills/dispatchloop/internal/dispatcher"
)

// Adapter registers contexts with one dispatcher. Contexts still registered
// when the dispatcher finishes shutting down are released.
type Adapter struct {
	d      *dispatcher.Dispatcher
	logger zerolog.Logger

	mu       sync.Mutex
	contexts map[*Context]struct{}
	released bool

	sub *dispatcher.Subscription
}

// NewAdapter creates an adapter for d.
func NewAdapter(d *dispatcher.Dispatcher) (*Adapter, error) {
	if d == nil {
		return nil, ErrNilAdapterDispatcher
	}
	a := &Adapter{
		d:        d,
		logger:   d.Logger().With().Str("component", "syncctx").Logger(),
		contexts: make(map[*Context]struct{}),
	}
	a.sub = d.OnShutdownFinished(func(*dispatcher.Dispatcher) {
		a.releaseAll()
	})
	return a, nil
}

// Dispatcher returns the adapter's dispatcher.
func (a *Adapter) Dispatcher() *dispatcher.Dispatcher { return a.d }

// RegisterContext binds c to the adapter's dispatcher. A context that is
// already registered, here or with another dispatcher, is rejected.
func (a *Adapter) RegisterContext(c *Context) error {
	if c == nil {
		return ErrNilContext
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.released {
		return fmt.Errorf("%w: %s", ErrDispatcherFinished, c.Name())
	}
	if err := c.bind(a.d); err != nil {
		return err
	}
	a.contexts[c] = struct{}{}

	a.logger.Debug().Str("context", c.Name()).Msg("context registered")
	return nil
}

// UnregisterContext releases c. Unregistering a context that is not
// registered does nothing; one registered with another dispatcher is an
// error.
func (a *Adapter) UnregisterContext(c *Context) error {
	if c == nil {
		return ErrNilContext
	}
	removed, err := c.unbind(a.d)
	if err != nil {
		return err
	}
	if !removed {
		return nil
	}

	a.mu.Lock()
	delete(a.contexts, c)
	a.mu.Unlock()

	a.logger.Debug().Str("context", c.Name()).Msg("context unregistered")
	return nil
}

// IsDispatcherThread reports whether c is registered and thread owns the
// dispatcher it is registered with. Arguments are checked in order.
func (a *Adapter) IsDispatcherThread(thread *dispatcher.Thread, c *Context) (bool, error) {
	if thread == nil {
		return false, ErrNilThread
	}
	if c == nil {
		return false, ErrNilContext
	}
	d := c.Dispatcher()
	if d == nil {
		return false, nil
	}
	return d.Thread().Equal(thread), nil
}

// Contexts returns the contexts registered through this adapter, by name.
func (a *Adapter) Contexts() []*Context {
	a.mu.Lock()
	defer a.mu.Unlock()

	out := make([]*Context, 0, len(a.contexts))
	for c := range a.contexts {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Name() < out[j].Name()
	})
	return out
}

// Close releases every registered context and stops watching for shutdown.
func (a *Adapter) Close() {
	a.sub.Unsubscribe()
	a.releaseAll()
}

func (a *Adapter) releaseAll() {
	a.mu.Lock()
	contexts := a.contexts
	a.contexts = make(map[*Context]struct{})
	a.released = true
	a.mu.Unlock()

	for c := range contexts {
		// only contexts still bound here are released
		_, _ = c.unbind(a.d)
	}
	if len(contexts) > 0 {
		a.logger.Debug().Int("count", len(contexts)).Msg("contexts released")
	}
}
