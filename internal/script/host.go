package script

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	lua "github.com/yuin/gopher-lua"

	"github.com/dshills/dispatchloop/internal/config"
	"github.com/dshills/dispatchloop/internal/dispatcher"
)

// ModuleName is the global table through which scripts reach the
// dispatcher.
const ModuleName = "dispatcher"

// Host runs Lua code against a dispatcher. The Lua state belongs to the
// dispatcher goroutine: public methods marshal onto it, and callbacks
// scripts post run there too, so the state is never shared between
// goroutines.
type Host struct {
	d      *dispatcher.Dispatcher
	L      *lua.LState
	cfg    config.ScriptConfig
	logger zerolog.Logger

	// owner goroutine only
	depth     int
	cancel    context.CancelFunc
	closed    bool
	onError   []*lua.LFunction
	errorSubs []*dispatcher.Subscription
}

// Option configures a Host.
type Option func(*Host)

// WithConfig sets the default priority and call timeout.
func WithConfig(cfg config.ScriptConfig) Option {
	return func(h *Host) {
		h.cfg = cfg
	}
}

// WithLogger sets the logger behind dispatcher.log.
func WithLogger(logger zerolog.Logger) Option {
	return func(h *Host) {
		h.logger = logger
	}
}

// NewHost creates a sandboxed Lua state bound to d.
func NewHost(d *dispatcher.Dispatcher, opts ...Option) (*Host, error) {
	if d == nil {
		return nil, ErrNilDispatcher
	}
	h := &Host{
		d:      d,
		cfg:    config.Default().Script,
		logger: d.Logger(),
	}
	for _, opt := range opts {
		opt(h)
	}
	h.logger = h.logger.With().Str("component", "script").Logger()

	h.L = lua.NewState(lua.Options{SkipOpenLibs: true})
	openSafeLibraries(h.L)
	h.L.SetGlobal(ModuleName, h.module())
	return h, nil
}

// openSafeLibraries opens the base, table, string and math libraries and
// removes the loaders that reach the file system.
func openSafeLibraries(L *lua.LState) {
	lua.OpenBase(L)
	lua.OpenTable(L)
	lua.OpenString(L)
	lua.OpenMath(L)

	for _, name := range []string{"dofile", "loadfile", "load", "loadstring", "require"} {
		L.SetGlobal(name, lua.LNil)
	}
}

// Dispatcher returns the host's dispatcher.
func (h *Host) Dispatcher() *dispatcher.Dispatcher { return h.d }

// DoString runs a chunk of Lua code on the dispatcher goroutine and waits
// for it.
func (h *Host) DoString(ctx context.Context, code string) error {
	return h.onOwner(ctx, func() error {
		fn, err := h.L.LoadString(code)
		if err != nil {
			return &Error{Source: "<string>", Err: err}
		}
		_, err = h.call("<string>", fn, 0)
		return err
	})
}

// DoFile runs a Lua file on the dispatcher goroutine and waits for it.
func (h *Host) DoFile(ctx context.Context, path string) error {
	return h.onOwner(ctx, func() error {
		fn, err := h.L.LoadFile(path)
		if err != nil {
			return &Error{Source: path, Err: err}
		}
		_, err = h.call(path, fn, 0)
		return err
	})
}

// Call calls the global Lua function name with args and returns its
// results converted to Go values.
func (h *Host) Call(ctx context.Context, name string, args ...any) ([]any, error) {
	var out []any
	err := h.onOwner(ctx, func() error {
		fn, ok := h.L.GetGlobal(name).(*lua.LFunction)
		if !ok {
			return fmt.Errorf("%w: %q", ErrNotFunction, name)
		}
		largs := make([]lua.LValue, len(args))
		for i, a := range args {
			largs[i] = toLua(h.L, a)
		}
		rets, err := h.call(name, fn, lua.MultRet, largs...)
		if err != nil {
			return err
		}
		out = make([]any, len(rets))
		for i, r := range rets {
			out[i] = toGo(r)
		}
		return nil
	})
	return out, err
}

// Close releases the Lua state. Callbacks that scripts posted and that
// have not run yet are skipped. Once the dispatcher has shut down Close
// runs on the calling goroutine, since nothing pumps the owner any more.
func (h *Host) Close() error {
	if h.d.HasShutdownFinished() {
		h.release()
		return nil
	}
	err := h.onOwner(context.Background(), func() error {
		h.release()
		return nil
	})
	if errors.Is(err, ErrHostClosed) {
		return nil
	}
	if errors.Is(err, dispatcher.ErrShutdownFinished) {
		h.release()
		return nil
	}
	return err
}

func (h *Host) release() {
	if h.closed {
		return
	}
	h.closed = true
	for _, sub := range h.errorSubs {
		sub.Unsubscribe()
	}
	h.errorSubs = nil
	h.onError = nil
	h.L.Close()
}

// onOwner runs fn on the dispatcher goroutine at Send priority and returns
// its error unwrapped. It reports dispatcher.ErrShutdownFinished when the
// dispatcher dropped fn without running it.
func (h *Host) onOwner(ctx context.Context, fn func() error) error {
	ran := false
	_, err := h.d.InvokeContext(ctx, dispatcher.PrioritySend, func() error {
		ran = true
		if h.closed {
			return ErrHostClosed
		}
		return fn()
	})
	var de *dispatcher.DispatchError
	if errors.As(err, &de) {
		return de.Err
	}
	if err == nil && !ran {
		return dispatcher.ErrShutdownFinished
	}
	return err
}

// call invokes fn on the owner goroutine with a protected call. The
// configured timeout covers the outermost call; nested calls made through
// dispatcher.invoke share it.
func (h *Host) call(source string, fn *lua.LFunction, nret int, args ...lua.LValue) ([]lua.LValue, error) {
	if h.closed {
		return nil, ErrHostClosed
	}

	if h.depth == 0 && h.cfg.Timeout > 0 {
		ctx, cancel := context.WithTimeout(context.Background(), h.cfg.Timeout.Std())
		h.L.SetContext(ctx)
		h.cancel = cancel
	}
	h.depth++
	defer func() {
		h.depth--
		if h.depth == 0 && h.cancel != nil {
			h.L.RemoveContext()
			h.cancel()
			h.cancel = nil
		}
	}()

	top := h.L.GetTop()
	h.L.Push(fn)
	for _, a := range args {
		h.L.Push(a)
	}
	if err := h.L.PCall(len(args), nret, nil); err != nil {
		return nil, &Error{Source: source, Err: err}
	}

	n := h.L.GetTop() - top
	if n <= 0 {
		return nil, nil
	}
	rets := make([]lua.LValue, n)
	for i := 0; i < n; i++ {
		rets[i] = h.L.Get(top + i + 1)
	}
	h.L.Pop(n)
	return rets, nil
}

// module builds the dispatcher table exposed to scripts.
func (h *Host) module() *lua.LTable {
	mod := h.L.SetFuncs(h.L.NewTable(), map[string]lua.LGFunction{
		"post":         h.luaPost,
		"invoke":       h.luaInvoke,
		"shutdown":     h.luaShutdown,
		"on_unhandled": h.luaOnUnhandled,
		"pending":      h.luaPending,
		"depth":        h.luaDepth,
		"state":        h.luaState,
		"log":          h.luaLog,
	})

	prios := h.L.NewTable()
	for _, p := range dispatcher.Priorities() {
		prios.RawSetString(p.String(), lua.LNumber(p))
	}
	h.L.SetField(mod, "priority", prios)
	return mod
}

// priorityArg reads an optional priority given by number or name.
func (h *Host) priorityArg(L *lua.LState, n int) dispatcher.Priority {
	switch v := L.Get(n).(type) {
	case *lua.LNilType:
		return h.cfg.Priority
	case lua.LNumber:
		p := dispatcher.Priority(int(v))
		if err := p.Validate(); err != nil {
			L.ArgError(n, err.Error())
		}
		return p
	case lua.LString:
		p, err := dispatcher.ParsePriority(string(v))
		if err != nil {
			L.ArgError(n, err.Error())
		}
		return p
	default:
		L.ArgError(n, "priority must be a number or a name")
		return dispatcher.PriorityInvalid
	}
}

// dispatcher.post(fn [, priority]) queues fn and returns the operation id.
func (h *Host) luaPost(L *lua.LState) int {
	fn := L.CheckFunction(1)
	p := h.priorityArg(L, 2)

	op, err := h.d.BeginInvoke(p, func() error {
		if h.closed {
			return nil
		}
		_, err := h.call("post", fn, 0)
		return err
	})
	if err != nil {
		L.RaiseError("%s", err.Error())
		return 0
	}
	L.Push(lua.LString(op.ID().String()))
	return 1
}

// dispatcher.invoke(fn [, priority]) runs fn at priority and returns its
// results. Below Send the current call waits in a nested frame, so other
// queued work may run first.
func (h *Host) luaInvoke(L *lua.LState) int {
	fn := L.CheckFunction(1)
	p := h.priorityArg(L, 2)

	v, err := h.d.Invoke(p, func() (any, error) {
		rets, err := h.call("invoke", fn, lua.MultRet)
		return rets, err
	})
	if err != nil {
		var de *dispatcher.DispatchError
		if errors.As(err, &de) {
			err = de.Err
		}
		L.RaiseError("%s", err.Error())
		return 0
	}
	rets, _ := v.([]lua.LValue)
	for _, r := range rets {
		L.Push(r)
	}
	return len(rets)
}

// dispatcher.shutdown([priority]) queues the start of shutdown.
func (h *Host) luaShutdown(L *lua.LState) int {
	if err := h.d.BeginInvokeShutdown(h.priorityArg(L, 1)); err != nil {
		L.RaiseError("%s", err.Error())
	}
	return 0
}

// dispatcher.on_unhandled(fn) registers fn(message) for failed posted
// callbacks. Returning true marks the failure handled; otherwise it stops
// the current frame.
func (h *Host) luaOnUnhandled(L *lua.LState) int {
	fn := L.CheckFunction(1)
	if len(h.onError) == 0 {
		h.errorSubs = append(h.errorSubs,
			h.d.OnUnhandledExceptionFilter(func(_ *dispatcher.Dispatcher, e *dispatcher.UnhandledExceptionFilterEventArgs) {
				e.RequestCatch = len(h.onError) > 0
			}),
			h.d.OnUnhandledException(func(_ *dispatcher.Dispatcher, e *dispatcher.UnhandledExceptionEventArgs) {
				e.Handled = h.handleUnhandled(e.Err)
			}),
		)
	}
	h.onError = append(h.onError, fn)
	return 0
}

// handleUnhandled runs the Lua error handlers on the owner goroutine and
// reports whether any of them returned true.
func (h *Host) handleUnhandled(err error) bool {
	if h.closed {
		return false
	}
	handled := false
	msg := lua.LString(err.Error())
	for _, fn := range h.onError {
		rets, cerr := h.call("on_unhandled", fn, 1, msg)
		if cerr != nil {
			h.logger.Warn().Err(cerr).Msg("unhandled-error callback failed")
			continue
		}
		if len(rets) > 0 && lua.LVAsBool(rets[0]) {
			handled = true
		}
	}
	return handled
}

func (h *Host) luaPending(L *lua.LState) int {
	L.Push(lua.LNumber(h.d.PendingCount()))
	return 1
}

func (h *Host) luaDepth(L *lua.LState) int {
	L.Push(lua.LNumber(h.d.FrameDepth()))
	return 1
}

func (h *Host) luaState(L *lua.LState) int {
	L.Push(lua.LString(h.d.State().String()))
	return 1
}

// dispatcher.log(msg [, level]) writes msg to the host logger.
func (h *Host) luaLog(L *lua.LState) int {
	msg := L.CheckString(1)
	level, err := zerolog.ParseLevel(strings.ToLower(L.OptString(2, "info")))
	if err != nil {
		L.ArgError(2, err.Error())
		return 0
	}
	h.logger.WithLevel(level).Msg(msg)
	return 0
}
