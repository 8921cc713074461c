package dispatcher

import (
	"sync"

	"github.com/dshills/dispatchloop/internal/goid"
)

// Thread identifies a goroutine that may own a dispatcher.
type Thread struct {
	id goid.ID
}

// CurrentThread returns the calling goroutine.
func CurrentThread() *Thread {
	return &Thread{id: goid.Current()}
}

// ID returns the goroutine ID.
func (t *Thread) ID() goid.ID { return t.id }

// String returns the goroutine ID as text.
func (t *Thread) String() string { return t.id.String() }

// Equal reports whether t and other are the same goroutine.
func (t *Thread) Equal(other *Thread) bool {
	if t == nil || other == nil {
		return t == other
	}
	return t.id == other.id
}

// IsCurrent reports whether t is the calling goroutine.
func (t *Thread) IsCurrent() bool {
	return t != nil && t.id == goid.Current()
}

// Registry maps goroutines to their dispatchers. Each goroutine has at most
// one dispatcher, created on first access.
type Registry struct {
	mu          sync.RWMutex
	dispatchers map[goid.ID]*Dispatcher
	settings    settings
}

// NewRegistry creates a registry whose dispatchers use opts.
func NewRegistry(opts ...Option) *Registry {
	s := defaultSettings()
	for _, opt := range opts {
		opt(&s)
	}
	return &Registry{
		dispatchers: make(map[goid.ID]*Dispatcher),
		settings:    s,
	}
}

// Current returns the calling goroutine's dispatcher, creating it if needed.
func (r *Registry) Current() *Dispatcher {
	id := goid.Current()

	r.mu.RLock()
	d := r.dispatchers[id]
	r.mu.RUnlock()
	if d != nil {
		return d
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if d = r.dispatchers[id]; d == nil {
		d = newDispatcher(id, r, r.settings)
		r.dispatchers[id] = d
		d.logger.Debug().Msg("dispatcher created")
	}
	return d
}

// FromThread returns the dispatcher owned by t, or nil if it has none.
func (r *Registry) FromThread(t *Thread) *Dispatcher {
	if t == nil {
		return nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.dispatchers[t.id]
}

// Detach forgets d. A goroutine that calls Current afterwards gets a new
// dispatcher. Detach reports whether d was registered.
func (r *Registry) Detach(d *Dispatcher) bool {
	if d == nil {
		return false
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.dispatchers[d.thread.id] != d {
		return false
	}
	delete(r.dispatchers, d.thread.id)
	return true
}

// Count returns the number of registered dispatchers.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.dispatchers)
}

// Go starts fn on a new goroutine that owns a fresh dispatcher. It returns
// the dispatcher once it exists and a channel closed after fn returns and
// the dispatcher has been detached.
func (r *Registry) Go(fn func(d *Dispatcher)) (*Dispatcher, <-chan struct{}) {
	ready := make(chan *Dispatcher, 1)
	done := make(chan struct{})

	go func() {
		defer close(done)
		d := r.Current()
		defer r.Detach(d)
		ready <- d
		fn(d)
	}()

	return <-ready, done
}

var defaultRegistry = NewRegistry()

// Default returns the package-level registry.
func Default() *Registry { return defaultRegistry }

// Current returns the calling goroutine's dispatcher from the default
// registry.
func Current() *Dispatcher { return defaultRegistry.Current() }

// FromThread looks up t in the default registry.
func FromThread(t *Thread) *Dispatcher { return defaultRegistry.FromThread(t) }

// Go runs fn on a new goroutine with its own dispatcher from the default
// registry.
func Go(fn func(d *Dispatcher)) (*Dispatcher, <-chan struct{}) {
	return defaultRegistry.Go(fn)
}
