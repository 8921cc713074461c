package hook

import (
	"slices"
	"sync"
	"sync/atomic"
)

// chain is an ordered hook list. Readers load an immutable snapshot, so
// the dispatcher loop never takes the manager's lock.
type chain[H Hook] struct {
	list atomic.Pointer[[]H]
}

func (c *chain[H]) load() []H {
	if p := c.list.Load(); p != nil {
		return *p
	}
	return nil
}

// put stores h, replacing a hook with the same name, and keeps the chain
// ordered by descending priority. Equal priorities keep insertion order.
func (c *chain[H]) put(h H) {
	next := slices.DeleteFunc(slices.Clone(c.load()), func(x H) bool { return x.Name() == h.Name() })
	at := len(next)
	for i, x := range next {
		if h.Priority() > x.Priority() {
			at = i
			break
		}
	}
	next = slices.Insert(next, at, h)
	c.list.Store(&next)
}

func (c *chain[H]) drop(name string) bool {
	cur := c.load()
	next := slices.DeleteFunc(slices.Clone(cur), func(x H) bool { return x.Name() == name })
	if len(next) == len(cur) {
		return false
	}
	c.list.Store(&next)
	return true
}

// Manager holds the hooks of one dispatcher.
type Manager struct {
	mu        sync.Mutex // serializes writers
	operation chain[OperationHook]
	inactive  chain[InactiveHook]
}

// NewManager returns a manager with no hooks.
func NewManager() *Manager {
	return &Manager{}
}

// RegisterOperation adds h, replacing any operation hook of the same name.
func (m *Manager) RegisterOperation(h OperationHook) {
	m.mu.Lock()
	m.operation.put(h)
	m.mu.Unlock()
}

// RegisterInactive adds h, replacing any inactive hook of the same name.
func (m *Manager) RegisterInactive(h InactiveHook) {
	m.mu.Lock()
	m.inactive.put(h)
	m.mu.Unlock()
}

// Register adds h under every hook interface it implements.
func (m *Manager) Register(h Hook) {
	if op, ok := h.(OperationHook); ok {
		m.RegisterOperation(op)
	}
	if in, ok := h.(InactiveHook); ok {
		m.RegisterInactive(in)
	}
}

// Unregister removes the hooks named name and reports whether any were
// registered.
func (m *Manager) Unregister(name string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	op := m.operation.drop(name)
	in := m.inactive.drop(name)
	return op || in
}

// HasOperationHooks lets callers skip building events nobody will see.
func (m *Manager) HasOperationHooks() bool {
	return len(m.operation.load()) > 0
}

// RunOperation calls every operation hook, highest priority first.
func (m *Manager) RunOperation(ev OperationEvent) {
	for _, h := range m.operation.load() {
		h.OnOperation(ev)
	}
}

// RunInactive calls every inactive hook, highest priority first.
func (m *Manager) RunInactive() {
	for _, h := range m.inactive.load() {
		h.OnInactive()
	}
}

// Names lists operation hooks in run order, then inactive hooks not
// already listed.
func (m *Manager) Names() []string {
	var names []string
	for _, h := range m.operation.load() {
		names = append(names, h.Name())
	}
	for _, h := range m.inactive.load() {
		if !slices.Contains(names, h.Name()) {
			names = append(names, h.Name())
		}
	}
	return names
}

// Clear removes every hook.
func (m *Manager) Clear() {
	m.mu.Lock()
	m.operation.list.Store(nil)
	m.inactive.list.Store(nil)
	m.mu.Unlock()
}
