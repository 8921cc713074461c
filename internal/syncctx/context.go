// Package syncctx associates named execution contexts with dispatchers so
// that code holding only a context can marshal work onto the right
// goroutine.
package syncctx

import (
	"context"
	"sync"

	"github.com/dshills/dispatchloop/internal/dispatcher"
)

// Context is a handle that can be registered with at most one dispatcher
// at a time. Once registered, Post and Send run callbacks on that
// dispatcher's goroutine.
type Context struct {
	name     string
	priority dispatcher.Priority

	mu sync.RWMutex
	d  *dispatcher.Dispatcher
}

// ContextOption configures a Context.
type ContextOption func(*Context)

// WithPriority sets the priority used by Post and Send. The default is
// Normal.
func WithPriority(p dispatcher.Priority) ContextOption {
	return func(c *Context) {
		c.priority = p
	}
}

// NewContext creates an unregistered context.
func NewContext(name string, opts ...ContextOption) *Context {
	c := &Context{
		name:     name,
		priority: dispatcher.PriorityNormal,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Name returns the context name.
func (c *Context) Name() string { return c.name }

// Priority returns the priority used by Post and Send.
func (c *Context) Priority() dispatcher.Priority { return c.priority }

// Dispatcher returns the dispatcher the context is registered with, or nil.
func (c *Context) Dispatcher() *dispatcher.Dispatcher {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.d
}

// IsRegistered reports whether the context is registered with any
// dispatcher.
func (c *Context) IsRegistered() bool {
	return c.Dispatcher() != nil
}

// Post queues fn on the registered dispatcher and returns without waiting.
func (c *Context) Post(fn func()) (*dispatcher.Operation, error) {
	d := c.Dispatcher()
	if d == nil {
		return nil, ErrNotRegistered
	}
	return d.BeginInvoke(c.priority, fn)
}

// Send runs fn on the registered dispatcher and waits for it. Called on the
// dispatcher goroutine it runs fn inline when the context priority is Send,
// and pumps otherwise.
func (c *Context) Send(ctx context.Context, fn func()) error {
	d := c.Dispatcher()
	if d == nil {
		return ErrNotRegistered
	}
	_, err := d.InvokeContext(ctx, c.priority, fn)
	return err
}

// bind attaches the context to d. It fails if any dispatcher holds it.
func (c *Context) bind(d *dispatcher.Dispatcher) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.d != nil {
		return ErrAlreadyRegistered
	}
	c.d = d
	return nil
}

// unbind detaches the context from d. It reports whether the context was
// bound to d; a context bound elsewhere is an error.
func (c *Context) unbind(d *dispatcher.Dispatcher) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch c.d {
	case nil:
		return false, nil
	case d:
		c.d = nil
		return true, nil
	default:
		return false, ErrRegisteredElsewhere
	}
}
