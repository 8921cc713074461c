package input

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/gdamore/tcell/v2"
	"github.com/rs/zerolog"

	"github.com/dshills/dispatchloop/internal/config"
	"github.com/dshills/dispatchloop/internal/dispatcher"
)

var (
	// ErrNilScreen indicates NewPump was given no screen.
	ErrNilScreen = fmt.Errorf("%w: screen cannot be nil", dispatcher.ErrInvalidArgument)

	// ErrNilDispatcher indicates NewPump was given no dispatcher.
	ErrNilDispatcher = fmt.Errorf("%w: dispatcher cannot be nil", dispatcher.ErrInvalidArgument)

	// ErrAlreadyRunning indicates Run was called on a running pump.
	ErrAlreadyRunning = fmt.Errorf("%w: input pump is already running", dispatcher.ErrInvalidOperation)
)

// stopToken is the payload of the interrupt that wakes PollEvent when the
// pump must stop.
type stopToken struct{}

// Handler handles an event on the dispatcher goroutine. A returned error
// fails the operation and goes through the dispatcher's unhandled-error
// pipeline.
type Handler func(Event) error

// Stats counts events forwarded by a pump.
type Stats struct {
	Keys      uint64
	Mouse     uint64
	Resizes   uint64
	Pastes    uint64
	Focus     uint64
	Coalesced uint64
}

// Option configures a Pump.
type Option func(*Pump)

// WithConfig sets the priorities and mouse setting.
func WithConfig(cfg config.InputConfig) Option {
	return func(p *Pump) {
		p.cfg = cfg
	}
}

// WithLogger sets the pump logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(p *Pump) {
		p.logger = logger
	}
}

// WithQuitKey makes key start dispatcher shutdown instead of reaching
// handlers.
func WithQuitKey(key tcell.Key) Option {
	return func(p *Pump) {
		p.quitKey = key
		p.hasQuit = true
	}
}

// Pump reads terminal events from a screen and posts them onto a
// dispatcher. Only the pump goroutine touches the screen's event queue;
// handlers always run on the dispatcher goroutine.
type Pump struct {
	screen tcell.Screen
	d      *dispatcher.Dispatcher
	cfg    config.InputConfig
	logger zerolog.Logger

	quitKey tcell.Key
	hasQuit bool

	mu       sync.Mutex
	handlers []Handler
	resize   *dispatcher.Operation
	running  bool

	counts    [KindFocus + 1]atomic.Uint64
	coalesced atomic.Uint64
}

// NewPump creates a pump from screen to d.
func NewPump(screen tcell.Screen, d *dispatcher.Dispatcher, opts ...Option) (*Pump, error) {
	if screen == nil {
		return nil, ErrNilScreen
	}
	if d == nil {
		return nil, ErrNilDispatcher
	}
	p := &Pump{
		screen: screen,
		d:      d,
		cfg:    config.Default().Input,
		logger: d.Logger(),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.logger = p.logger.With().Str("component", "input").Logger()
	return p, nil
}

// OnEvent registers a handler. Handlers run in registration order; the
// first error stops the rest.
func (p *Pump) OnEvent(h Handler) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.handlers = append(p.handlers, h)
}

// Run forwards events until ctx is done, the screen is finalized or the
// dispatcher finishes shutting down. A screen or dispatcher that goes away
// ends Run without error; ctx ending returns ctx.Err().
func (p *Pump) Run(ctx context.Context) error {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return ErrAlreadyRunning
	}
	p.running = true
	p.mu.Unlock()
	defer func() {
		p.mu.Lock()
		p.running = false
		p.mu.Unlock()
	}()

	wake := func() { _ = p.screen.PostEvent(tcell.NewEventInterrupt(stopToken{})) }
	stop := context.AfterFunc(ctx, wake)
	defer stop()
	sub := p.d.OnShutdownFinished(func(*dispatcher.Dispatcher) { wake() })
	defer sub.Unsubscribe()

	p.logger.Debug().Msg("input pump started")
	defer p.logger.Debug().Msg("input pump stopped")

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		if p.d.HasShutdownFinished() {
			return nil
		}

		ev := p.screen.PollEvent()
		if ev == nil {
			return nil
		}
		if intr, ok := ev.(*tcell.EventInterrupt); ok {
			if _, stopping := intr.Data().(stopToken); stopping {
				continue
			}
		}
		if err := p.forward(ev); err != nil {
			if errors.Is(err, errStopped) {
				return nil
			}
			return err
		}
	}
}

var errStopped = errors.New("input: dispatcher stopped")

// forward converts ev and posts it at the priority for its kind.
func (p *Pump) forward(raw tcell.Event) error {
	ev, ok := convert(raw)
	if !ok {
		return nil
	}

	if ev.Kind == KindKey && p.hasQuit && ev.Key == p.quitKey {
		p.logger.Debug().Str("key", ev.Name()).Msg("quit key pressed")
		return p.d.BeginInvokeShutdown(p.cfg.KeyPriority)
	}

	op, err := p.d.BeginInvoke(p.priorityFor(ev.Kind), func() error {
		return p.dispatch(ev)
	})
	if err != nil {
		return err
	}
	if op.Status() == dispatcher.StatusAborted {
		return errStopped
	}
	p.counts[ev.Kind].Add(1)

	if ev.Kind == KindResize {
		p.mu.Lock()
		prev := p.resize
		p.resize = op
		p.mu.Unlock()
		// only the latest size matters
		if prev != nil && prev.Abort() {
			p.coalesced.Add(1)
		}
	}
	return nil
}

func (p *Pump) priorityFor(k Kind) dispatcher.Priority {
	switch k {
	case KindMouse:
		return p.cfg.MousePriority
	case KindResize:
		return p.cfg.ResizePriority
	default:
		return p.cfg.KeyPriority
	}
}

// dispatch runs on the dispatcher goroutine.
func (p *Pump) dispatch(ev Event) error {
	p.mu.Lock()
	handlers := make([]Handler, len(p.handlers))
	copy(handlers, p.handlers)
	p.mu.Unlock()

	for _, h := range handlers {
		if err := h(ev); err != nil {
			return fmt.Errorf("input %s handler: %w", ev.Kind, err)
		}
	}
	return nil
}

// Stats returns the number of events forwarded so far.
func (p *Pump) Stats() Stats {
	return Stats{
		Keys:      p.counts[KindKey].Load(),
		Mouse:     p.counts[KindMouse].Load(),
		Resizes:   p.counts[KindResize].Load(),
		Pastes:    p.counts[KindPaste].Load(),
		Focus:     p.counts[KindFocus].Load(),
		Coalesced: p.coalesced.Load(),
	}
}

// OpenScreen creates and initializes the terminal screen.
func OpenScreen(cfg config.InputConfig) (tcell.Screen, error) {
	screen, err := tcell.NewScreen()
	if err != nil {
		return nil, err
	}
	if err := screen.Init(); err != nil {
		return nil, err
	}
	if cfg.Mouse {
		screen.EnableMouse()
	}
	screen.EnablePaste()
	return screen, nil
}
