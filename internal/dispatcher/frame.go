package dispatcher

import (
	"context"
	"sync/atomic"
)

// Frame is one level of the dispatcher's nested pump. PushFrame processes
// operations until the frame stops continuing.
//
// Clearing Continue is terminal: a frame that stopped never resumes. Frames
// may be cleared from any goroutine.
type Frame struct {
	cont              atomic.Bool
	exitWhenRequested bool

	// d is the dispatcher pumping this frame, or nil when not pushed.
	d atomic.Pointer[Dispatcher]

	// ctx, when set, stops the frame once it is done.
	ctx context.Context
}

// NewFrame creates a frame that also stops when the dispatcher exits all
// frames or shuts down.
func NewFrame() *Frame {
	return NewFrameWithExit(true)
}

// NewFrameWithExit creates a frame. If exitWhenRequested is false the frame
// keeps pumping through ExitAllFrames and shutdown until it is cleared
// explicitly.
func NewFrameWithExit(exitWhenRequested bool) *Frame {
	f := &Frame{exitWhenRequested: exitWhenRequested}
	f.cont.Store(true)
	return f
}

// ExitWhenRequested reports whether the frame honors ExitAllFrames and
// shutdown.
func (f *Frame) ExitWhenRequested() bool {
	return f.exitWhenRequested
}

// Continue reports whether the frame keeps pumping: false once cleared, or
// when it exits on request and the dispatcher is exiting all frames or
// shutting down with nothing left to drain.
func (f *Frame) Continue() bool {
	if !f.cont.Load() {
		return false
	}
	d := f.d.Load()
	if d == nil {
		return true
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.continuesLocked(f)
}

// SetContinue sets the continue flag. Setting true after the frame was
// cleared has no effect.
func (f *Frame) SetContinue(v bool) {
	if v {
		return
	}
	if f.cont.Swap(false) {
		if d := f.d.Load(); d != nil {
			d.signal()
		}
	}
}
