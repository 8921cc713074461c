// Package watcher reports changes to individual files.
//
// fsnotify is pointed at each file's directory rather than the file, so a
// file that an editor replaces by rename keeps being seen. With a debounce
// window, a burst of changes to one file is delivered as a single Event
// once the file has been quiet for the window.
package watcher

import (
	"os"
	"path/filepath"
	"slices"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// DefaultDebounce is the quiet window used when none is configured.
const DefaultDebounce = 100 * time.Millisecond

// Op is the kind of change seen.
type Op int

// Kinds of change, in fsnotify's terms.
const (
	Write Op = iota
	Create
	Remove
	Rename
)

func (op Op) String() string {
	switch op {
	case Write:
		return "write"
	case Create:
		return "create"
	case Remove:
		return "remove"
	case Rename:
		return "rename"
	}
	return "unknown"
}

// merge folds next into a pending prev. A write never hides the create or
// removal it follows; anything else replaces it.
func merge(prev, next Op) Op {
	if next == Write {
		return prev
	}
	return next
}

// Event is one delivered change.
type Event struct {
	Path string // absolute
	Op   Op
	Time time.Time
}

// Handler receives events on a watcher goroutine.
type Handler func(Event)

// Option configures a Watcher.
type Option func(*Watcher)

// WithDebounce sets the quiet window. Zero delivers each change as it
// arrives; negative values are ignored.
func WithDebounce(d time.Duration) Option {
	return func(w *Watcher) {
		if d >= 0 {
			w.debounce = d
		}
	}
}

// WithLogger sets where fsnotify errors and handler panics are reported.
func WithLogger(logger zerolog.Logger) Option {
	return func(w *Watcher) { w.logger = logger }
}

type pending struct {
	op    Op
	at    time.Time
	timer *time.Timer
}

// Watcher delivers changes to a set of files.
type Watcher struct {
	debounce time.Duration
	logger   zerolog.Logger

	mu       sync.Mutex
	files    map[string]struct{}
	dirs     map[string]int
	handlers []Handler
	waiting  map[string]*pending

	fsw      *fsnotify.Watcher
	loopDone chan struct{}
	inflight sync.WaitGroup
}

// New returns a stopped watcher with no files.
func New(opts ...Option) *Watcher {
	w := &Watcher{
		debounce: DefaultDebounce,
		logger:   zerolog.Nop(),
		files:    make(map[string]struct{}),
		dirs:     make(map[string]int),
		waiting:  make(map[string]*pending),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Add starts tracking path. The file may be missing; its directory may not.
func (w *Watcher) Add(path string) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	dir := filepath.Dir(abs)

	w.mu.Lock()
	defer w.mu.Unlock()
	if _, ok := w.files[abs]; ok {
		return nil
	}
	if _, err := os.Stat(dir); err != nil {
		return err
	}
	if w.fsw != nil && w.dirs[dir] == 0 {
		if err := w.fsw.Add(dir); err != nil {
			return err
		}
	}
	w.files[abs] = struct{}{}
	w.dirs[dir]++
	return nil
}

// Remove stops tracking path.
func (w *Watcher) Remove(path string) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	dir := filepath.Dir(abs)

	w.mu.Lock()
	defer w.mu.Unlock()
	if _, ok := w.files[abs]; !ok {
		return nil
	}
	delete(w.files, abs)
	if p := w.waiting[abs]; p != nil {
		p.timer.Stop()
		delete(w.waiting, abs)
	}
	if w.dirs[dir]--; w.dirs[dir] > 0 {
		return nil
	}
	delete(w.dirs, dir)
	if w.fsw != nil {
		return w.fsw.Remove(dir)
	}
	return nil
}

// Files returns the tracked paths, sorted.
func (w *Watcher) Files() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	files := make([]string, 0, len(w.files))
	for f := range w.files {
		files = append(files, f)
	}
	slices.Sort(files)
	return files
}

// OnChange adds a handler.
func (w *Watcher) OnChange(h Handler) {
	w.mu.Lock()
	w.handlers = append(w.handlers, h)
	w.mu.Unlock()
}

// Running reports whether Start has been called without a matching Stop.
func (w *Watcher) Running() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.fsw != nil
}

// Start begins delivering events. It is a no-op on a running watcher.
func (w *Watcher) Start() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.fsw != nil {
		return nil
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	for dir := range w.dirs {
		if err := fsw.Add(dir); err != nil {
			_ = fsw.Close()
			return err
		}
	}
	w.fsw = fsw
	w.loopDone = make(chan struct{})
	go w.loop(fsw, w.loopDone)
	return nil
}

// Stop ends delivery, drops changes still inside their debounce window
// and waits for running handlers to return.
func (w *Watcher) Stop() error {
	w.mu.Lock()
	fsw, loopDone := w.fsw, w.loopDone
	if fsw == nil {
		w.mu.Unlock()
		return nil
	}
	w.fsw = nil
	for path, p := range w.waiting {
		p.timer.Stop()
		delete(w.waiting, path)
	}
	w.mu.Unlock()

	err := fsw.Close()
	<-loopDone
	w.inflight.Wait()
	return err
}

// loop runs until fsw is closed, which ends both of its channels.
func (w *Watcher) loop(fsw *fsnotify.Watcher, done chan<- struct{}) {
	defer close(done)
	events, errs := fsw.Events, fsw.Errors
	for events != nil || errs != nil {
		select {
		case fe, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			if ev, ok := w.translate(fe); ok {
				w.arrive(ev)
			}
		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			w.logger.Warn().Err(err).Msg("config watch error")
		}
	}
}

func (w *Watcher) translate(fe fsnotify.Event) (Event, bool) {
	path, err := filepath.Abs(fe.Name)
	if err != nil {
		return Event{}, false
	}
	ev := Event{Path: path, Time: time.Now()}
	switch {
	case fe.Has(fsnotify.Remove):
		ev.Op = Remove
	case fe.Has(fsnotify.Rename):
		ev.Op = Rename
	case fe.Has(fsnotify.Create):
		ev.Op = Create
	case fe.Has(fsnotify.Write):
		ev.Op = Write
	default:
		return Event{}, false
	}
	return ev, true
}

// arrive delivers ev now or parks it until its file goes quiet.
func (w *Watcher) arrive(ev Event) {
	w.mu.Lock()
	if _, ok := w.files[ev.Path]; !ok || w.fsw == nil {
		w.mu.Unlock()
		return
	}
	if w.debounce == 0 {
		w.inflight.Add(1)
		w.mu.Unlock()
		defer w.inflight.Done()
		w.deliver(ev)
		return
	}
	if p := w.waiting[ev.Path]; p != nil {
		p.op = merge(p.op, ev.Op)
		p.at = ev.Time
		p.timer.Reset(w.debounce)
	} else {
		p = &pending{op: ev.Op, at: ev.Time}
		p.timer = time.AfterFunc(w.debounce, func() { w.settle(ev.Path) })
		w.waiting[ev.Path] = p
	}
	w.mu.Unlock()
}

// settle delivers the change parked for path once its timer fires.
func (w *Watcher) settle(path string) {
	w.mu.Lock()
	p := w.waiting[path]
	if p == nil || w.fsw == nil {
		w.mu.Unlock()
		return
	}
	delete(w.waiting, path)
	w.inflight.Add(1)
	w.mu.Unlock()

	defer w.inflight.Done()
	w.deliver(Event{Path: path, Op: p.op, Time: p.at})
}

func (w *Watcher) deliver(ev Event) {
	w.mu.Lock()
	handlers := slices.Clone(w.handlers)
	w.mu.Unlock()

	for _, h := range handlers {
		w.call(h, ev)
	}
}

// call isolates the watcher goroutine from a panicking handler.
func (w *Watcher) call(h Handler, ev Event) {
	defer func() {
		if r := recover(); r != nil {
			w.logger.Error().Interface("panic", r).Str("path", ev.Path).Msg("config watch handler panicked")
		}
	}()
	h(ev)
}
