package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/dshills/dispatchloop/internal/dispatcher/hook"
	"github.com/dshills/dispatchloop/internal/dispatcher/invoke"
	"github.com/dshills/dispatchloop/internal/dispatcher/queue"
	"github.com/dshills/dispatchloop/internal/goid"
)

// State is the shutdown state of a Dispatcher.
type State int32

const (
	// StateRunning is the initial state.
	StateRunning State = iota

	// StateShutdownStarted means shutdown was requested; frames drain the
	// eligible work and unwind.
	StateShutdownStarted

	// StateShutdownFinished is terminal: no more work runs.
	StateShutdownFinished
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateRunning:
		return "Running"
	case StateShutdownStarted:
		return "ShutdownStarted"
	case StateShutdownFinished:
		return "ShutdownFinished"
	default:
		return fmt.Sprintf("State(%d)", int32(s))
	}
}

// Dispatcher runs queued operations on its owning goroutine.
//
// Any goroutine may post work with BeginInvoke or Invoke. Only the owner
// may pump with Run or PushFrame.
type Dispatcher struct {
	thread   *Thread
	registry *Registry

	// Configuration
	config Config
	logger zerolog.Logger

	mu               sync.Mutex
	queue            *queue.Queue[*Operation]
	state            State
	shutdownPriority Priority
	finishing        bool
	exitAllFrames    bool
	frames           []*Frame

	// wake is signalled whenever the loop may have something to do.
	wake chan struct{}

	hooks   *hook.Manager
	metrics *Metrics

	filters          eventList[UnhandledExceptionFilterHandler]
	notifies         eventList[UnhandledExceptionHandler]
	shutdownStarted  eventList[ShutdownHandler]
	shutdownFinished eventList[ShutdownHandler]
}

func newDispatcher(owner goid.ID, r *Registry, s settings) *Dispatcher {
	d := &Dispatcher{
		thread:   &Thread{id: owner},
		registry: r,
		config:   s.config,
		queue:    queue.New[*Operation](),
		wake:     make(chan struct{}, 1),
		hooks:    hook.NewManager(),
		logger: s.logger.With().
			Str("component", "dispatcher").
			Str("thread", owner.String()).
			Logger(),
	}

	if s.config.EnableMetrics {
		d.metrics = NewMetrics()
		d.hooks.Register(d.metrics)
	}
	if s.config.EnableAudit {
		d.hooks.Register(hook.NewAuditHook(s.logger))
	}
	for _, h := range s.hooks {
		d.hooks.Register(h)
	}
	return d
}

// Thread returns the goroutine that owns the dispatcher.
func (d *Dispatcher) Thread() *Thread { return d.thread }

// Config returns the dispatcher's configuration.
func (d *Dispatcher) Config() Config { return d.config }

// Hooks returns the hook manager. Hooks registered here observe every
// operation on this dispatcher.
func (d *Dispatcher) Hooks() *hook.Manager { return d.hooks }

// Metrics returns the metrics collector, or nil if metrics are disabled.
func (d *Dispatcher) Metrics() *Metrics { return d.metrics }

// Logger returns the dispatcher's logger.
func (d *Dispatcher) Logger() zerolog.Logger { return d.logger }

// CheckAccess reports whether the calling goroutine owns the dispatcher.
func (d *Dispatcher) CheckAccess() bool {
	return goid.Current() == d.thread.id
}

// VerifyAccess returns ErrWrongGoroutine unless the caller owns the
// dispatcher.
func (d *Dispatcher) VerifyAccess() error {
	if !d.CheckAccess() {
		return ErrWrongGoroutine
	}
	return nil
}

// State returns the shutdown state.
func (d *Dispatcher) State() State {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state
}

// HasShutdownStarted reports whether shutdown has started or finished.
func (d *Dispatcher) HasShutdownStarted() bool {
	return d.State() >= StateShutdownStarted
}

// HasShutdownFinished reports whether shutdown has finished.
func (d *Dispatcher) HasShutdownFinished() bool {
	return d.State() == StateShutdownFinished
}

// FrameDepth returns the number of active frames.
func (d *Dispatcher) FrameDepth() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.frames)
}

// PendingCount returns the number of queued operations, including parked
// Inactive ones.
func (d *Dispatcher) PendingCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.queue.Len()
}

// BeginInvoke queues fn to run at priority p and returns immediately.
//
// fn may be any function; args are passed to it. A trailing error result
// marks the operation failed. Failures of posted operations go through the
// unhandled-error pipeline.
//
// After shutdown has finished the returned operation is already Aborted and
// never runs.
func (d *Dispatcher) BeginInvoke(p Priority, fn any, args ...any) (*Operation, error) {
	if err := validateSubmit(p); err != nil {
		return nil, err
	}
	call, err := invoke.Prepare(fn, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCallback, err)
	}
	return d.post(newOperation(d, call, p, false)), nil
}

// Invoke runs fn at priority p and waits for its result.
//
// On the dispatcher goroutine, Send runs fn inline and other priorities
// pump a nested frame until fn has run. From other goroutines Invoke
// blocks. A failing callback is returned as a *DispatchError.
func (d *Dispatcher) Invoke(p Priority, fn any, args ...any) (any, error) {
	if d.config.DefaultInvokeTimeout > 0 {
		return d.InvokeTimeout(p, d.config.DefaultInvokeTimeout, fn, args...)
	}
	return d.InvokeContext(context.Background(), p, fn, args...)
}

// InvokeTimeout is Invoke with a deadline. If fn has not run when the
// timeout expires it is aborted and ErrInvokeTimeout is returned. A
// callback that already started is left to finish.
func (d *Dispatcher) InvokeTimeout(p Priority, timeout time.Duration, fn any, args ...any) (any, error) {
	if timeout < 0 {
		return nil, fmt.Errorf("%w: negative timeout", ErrInvalidArgument)
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	v, err := d.InvokeContext(ctx, p, fn, args...)
	if err == context.DeadlineExceeded {
		return nil, ErrInvokeTimeout
	}
	return v, err
}

// InvokeContext is Invoke bounded by ctx. When ctx ends first a pending
// operation is aborted and ctx.Err() is returned.
func (d *Dispatcher) InvokeContext(ctx context.Context, p Priority, fn any, args ...any) (any, error) {
	if err := validateSubmit(p); err != nil {
		return nil, err
	}
	call, err := invoke.Prepare(fn, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCallback, err)
	}

	op := newOperation(d, call, p, true)
	if p == PrioritySend && d.CheckAccess() {
		return d.invokeInline(op)
	}

	d.post(op)
	if err := op.wait(ctx); err != nil {
		op.Abort()
		return nil, err
	}
	return invokeOutcome(op)
}

// invokeInline runs a Send-priority Invoke on the owner goroutine without
// queueing it.
func (d *Dispatcher) invokeInline(op *Operation) (any, error) {
	d.mu.Lock()
	finished := d.state == StateShutdownFinished
	if !finished {
		op.status.Store(int32(StatusExecuting))
	} else {
		op.status.Store(int32(StatusAborted))
	}
	d.mu.Unlock()

	if finished {
		op.finishAborted()
		return op.outcome()
	}
	d.execute(op)
	return invokeOutcome(op)
}

func invokeOutcome(op *Operation) (any, error) {
	v, err := op.outcome()
	if err != nil && op.Status() == StatusCompleted {
		return v, &DispatchError{Err: err, Operation: op}
	}
	return v, err
}

// post enqueues op, or aborts it if the dispatcher has shut down.
func (d *Dispatcher) post(op *Operation) *Operation {
	d.mu.Lock()
	if d.state == StateShutdownFinished {
		op.status.Store(int32(StatusAborted))
		d.mu.Unlock()
		op.finishAborted()
		return op
	}
	p := op.priority
	op.item = d.queue.Push(op, int(p))
	d.mu.Unlock()

	d.runHook(hook.OperationEvent{
		Kind:     hook.Posted,
		ID:       op.id,
		Callback: op.call.Name(),
		Priority: int(p),
	})
	d.signal()
	return op
}

// Run pumps the dispatcher until shutdown. It must be called on the owner.
func (d *Dispatcher) Run() error {
	return d.PushFrame(NewFrame())
}

// PushFrame pumps operations until frame stops continuing. It may be called
// from inside a running callback to wait re-entrantly; only operations
// reached while the inner frame is active run on it.
//
// An unhandled callback failure stops the frame and is returned as a
// *DispatchError.
func (d *Dispatcher) PushFrame(frame *Frame) error {
	if frame == nil {
		return ErrNilFrame
	}
	if !d.CheckAccess() {
		return ErrWrongGoroutine
	}

	d.mu.Lock()
	if d.state == StateShutdownFinished {
		d.mu.Unlock()
		return ErrShutdownFinished
	}
	if d.config.MaxFrameDepth > 0 && len(d.frames) >= d.config.MaxFrameDepth {
		d.mu.Unlock()
		return ErrFrameDepthExceeded
	}
	d.frames = append(d.frames, frame)
	d.mu.Unlock()

	frame.d.Store(d)
	err := d.pump(frame)
	frame.d.Store(nil)

	d.mu.Lock()
	d.frames = d.frames[:len(d.frames)-1]
	outermost := len(d.frames) == 0
	if outermost {
		d.exitAllFrames = false
	}
	finish := outermost && d.state == StateShutdownStarted && !d.finishing
	d.mu.Unlock()

	if finish {
		if ferr := d.finishShutdown(); err == nil {
			err = ferr
		}
	}
	return err
}

// pump is the loop body of PushFrame.
func (d *Dispatcher) pump(frame *Frame) error {
	idle := false
	for {
		d.mu.Lock()
		if !d.continuesLocked(frame) {
			d.mu.Unlock()
			return nil
		}
		op := d.dequeueLocked()
		d.mu.Unlock()

		if op == nil {
			if !idle {
				idle = true
				d.hooks.RunInactive()
				continue
			}
			<-d.wake
			continue
		}

		idle = false
		if err := d.execute(op); err != nil {
			return err
		}
	}
}

// continuesLocked reports whether frame keeps pumping. Callers hold d.mu.
func (d *Dispatcher) continuesLocked(f *Frame) bool {
	if !f.cont.Load() {
		return false
	}
	if f.ctx != nil && f.ctx.Err() != nil {
		return false
	}
	if !f.exitWhenRequested {
		return true
	}
	if d.exitAllFrames || d.state == StateShutdownFinished {
		return false
	}
	if d.state == StateShutdownStarted {
		top, ok := d.queue.MaxPriority()
		return ok && Priority(top) >= d.shutdownPriority
	}
	return true
}

// dequeueLocked pops the next runnable operation and marks it Executing.
// Inactive operations are never returned; during shutdown only work at or
// above the drain priority is. Callers hold d.mu.
func (d *Dispatcher) dequeueLocked() *Operation {
	floor := PrioritySystemIdle
	if d.state == StateShutdownStarted && d.shutdownPriority > floor {
		floor = d.shutdownPriority
	}
	item, ok := d.queue.PopAtLeast(int(floor))
	if !ok {
		return nil
	}
	op := item.Value
	op.status.Store(int32(StatusExecuting))
	return op
}

// execute runs a dequeued operation. It returns an error only when a
// posted callback fails and no subscriber handles it.
func (d *Dispatcher) execute(op *Operation) error {
	d.runHook(hook.OperationEvent{
		Kind:     hook.Started,
		ID:       op.id,
		Callback: op.call.Name(),
		Priority: int(op.priority),
	})

	res := invoke.Run(op.call)
	err := res.Err
	if res.Panic != nil {
		err = &PanicError{Value: res.Panic.Value, Stack: string(res.Panic.Stack)}
	}
	op.complete(res.Value, err)

	d.runHook(hook.OperationEvent{
		Kind:     hook.Completed,
		ID:       op.id,
		Callback: op.call.Name(),
		Priority: int(op.priority),
		Duration: res.Duration,
		Err:      err,
		Panicked: res.Panic != nil,
	})

	if err == nil || op.synchronous {
		return nil
	}
	return d.handleUnhandled(op, err)
}

// ExitAllFrames asks every exit-when-requested frame to stop. The request
// is cleared once the outermost frame unwinds.
func (d *Dispatcher) ExitAllFrames() {
	d.mu.Lock()
	active := len(d.frames) > 0
	if active {
		d.exitAllFrames = true
	}
	d.mu.Unlock()

	if active {
		d.signal()
	}
}

// BeginInvokeShutdown queues the start of shutdown at priority p. Work at
// or above p that is still queued when shutdown starts is drained; the rest
// is abandoned.
func (d *Dispatcher) BeginInvokeShutdown(p Priority) error {
	if err := validateSubmit(p); err != nil {
		return err
	}
	if d.HasShutdownStarted() {
		return nil
	}
	_, err := d.BeginInvoke(p, func() {
		d.startShutdown(p)
	})
	return err
}

// InvokeShutdown shuts the dispatcher down and waits for shutdown to start.
// On the owner goroutine, outside any frame, shutdown also finishes before
// InvokeShutdown returns.
func (d *Dispatcher) InvokeShutdown() error {
	if d.CheckAccess() {
		if d.startShutdown(PrioritySend) {
			return d.finishShutdown()
		}
		return nil
	}
	if d.HasShutdownStarted() {
		return nil
	}
	_, err := d.InvokeContext(context.Background(), PrioritySend, func() {
		d.startShutdown(PrioritySend)
	})
	if errors.Is(err, ErrOperationAborted) && d.HasShutdownStarted() {
		// another caller finished shutdown first
		return nil
	}
	return err
}

// startShutdown moves to ShutdownStarted. It reports whether the caller
// must finish shutdown itself because no frame is active.
func (d *Dispatcher) startShutdown(p Priority) bool {
	d.mu.Lock()
	if d.state != StateRunning {
		d.mu.Unlock()
		return false
	}
	d.state = StateShutdownStarted
	d.shutdownPriority = p
	depth := len(d.frames)
	pending := d.queue.Len()
	d.mu.Unlock()

	d.logger.Debug().
		Str("drain_priority", p.String()).
		Int("pending", pending).
		Int("frame_depth", depth).
		Msg("shutdown started")

	for _, h := range d.shutdownStarted.snapshot() {
		h(d)
	}
	d.signal()
	return depth == 0
}

// finishShutdown drains any remaining eligible work, abandons the rest and
// moves to ShutdownFinished.
func (d *Dispatcher) finishShutdown() error {
	d.mu.Lock()
	if d.state != StateShutdownStarted || d.finishing {
		d.mu.Unlock()
		return nil
	}
	d.finishing = true
	d.mu.Unlock()

	var drainErr error
	for {
		d.mu.Lock()
		op := d.dequeueLocked()
		d.mu.Unlock()
		if op == nil {
			break
		}
		if err := d.execute(op); err != nil {
			drainErr = err
			break
		}
	}

	d.mu.Lock()
	items := d.queue.Drain()
	d.state = StateShutdownFinished
	d.finishing = false
	abandoned := make([]*Operation, 0, len(items))
	for _, it := range items {
		op := it.Value
		if op.Status() == StatusPending {
			op.status.Store(int32(StatusAborted))
			abandoned = append(abandoned, op)
		}
	}
	d.mu.Unlock()

	for _, op := range abandoned {
		op.finishAborted()
	}

	d.logger.Debug().
		Int("abandoned", len(abandoned)).
		Str("policy", d.config.AbandonPolicy.String()).
		Msg("shutdown finished")

	for _, h := range d.shutdownFinished.snapshot() {
		h(d)
	}
	return drainErr
}

// signal wakes the loop without blocking.
func (d *Dispatcher) signal() {
	select {
	case d.wake <- struct{}{}:
	default:
	}
}

func (d *Dispatcher) runHook(ev hook.OperationEvent) {
	if d.hooks.HasOperationHooks() {
		d.hooks.RunOperation(ev)
	}
}
