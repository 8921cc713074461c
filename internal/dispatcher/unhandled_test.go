package dispatcher_test

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/dshills/dispatchloop/internal/dispatcher"
)

const thrownMessage = "Exception thrown inside Dispatcher.Invoke / Dispatcher.BeginInvoke."

func TestUnhandledErrorHandled(t *testing.T) {
	d := newOwned(t)
	boom := errors.New(thrownMessage)

	var filterErr, notifyErr error
	filterCalls, notifyCalls := 0, 0
	d.OnUnhandledExceptionFilter(func(_ *dispatcher.Dispatcher, e *dispatcher.UnhandledExceptionFilterEventArgs) {
		filterCalls++
		filterErr = e.Err
		e.RequestCatch = true
	})
	d.OnUnhandledException(func(_ *dispatcher.Dispatcher, e *dispatcher.UnhandledExceptionEventArgs) {
		notifyCalls++
		notifyErr = e.Err
		e.Handled = true
	})

	failing := mustPost(t, d, dispatcher.PriorityNormal, func() error { return boom })
	after := mustPost(t, d, dispatcher.PriorityNormal, func() {})

	// drain fails the test if the error escapes PushFrame
	drain(t, d)

	if filterCalls != 1 || notifyCalls != 1 {
		t.Errorf("filter calls = %d, notify calls = %d, want 1 and 1", filterCalls, notifyCalls)
	}
	if filterErr != boom || notifyErr != boom {
		t.Errorf("handlers saw %v and %v, want the callback error", filterErr, notifyErr)
	}
	if failing.Status() != dispatcher.StatusCompleted || failing.Err() != boom {
		t.Errorf("failing operation = (%v, %v), want (Completed, boom)", failing.Status(), failing.Err())
	}
	if after.Status() != dispatcher.StatusCompleted {
		t.Error("pump did not resume after a handled error")
	}
}

func TestUnhandledErrorPropagatesAfterUnsubscribe(t *testing.T) {
	d := newOwned(t)
	boom := errors.New(thrownMessage)

	called := false
	filter := d.OnUnhandledExceptionFilter(func(_ *dispatcher.Dispatcher, e *dispatcher.UnhandledExceptionFilterEventArgs) {
		called = true
		e.RequestCatch = true
	})
	notify := d.OnUnhandledException(func(_ *dispatcher.Dispatcher, e *dispatcher.UnhandledExceptionEventArgs) {
		called = true
		e.Handled = true
	})

	mustPost(t, d, dispatcher.PriorityNormal, func() error { return boom })

	if !filter.Unsubscribe() || !notify.Unsubscribe() {
		t.Fatal("Unsubscribe() = false for active subscriptions")
	}
	if filter.Unsubscribe() {
		t.Error("second Unsubscribe() = true")
	}

	err := d.Run()

	var de *dispatcher.DispatchError
	if !errors.As(err, &de) {
		t.Fatalf("Run() = %v, want *DispatchError", err)
	}
	if err.Error() != dispatcher.DispatchErrorMessage {
		t.Errorf("Error() = %q, want %q", err.Error(), dispatcher.DispatchErrorMessage)
	}
	inner := errors.Unwrap(err)
	if inner != boom || inner.Error() != thrownMessage {
		t.Errorf("inner error = %v, want %q", inner, thrownMessage)
	}
	if called {
		t.Error("unsubscribed handler was called")
	}
	if d.FrameDepth() != 0 {
		t.Errorf("FrameDepth() after propagation = %d", d.FrameDepth())
	}
}

func TestUnhandledErrorCaughtButNotHandled(t *testing.T) {
	d := newOwned(t)
	boom := errors.New("boom")

	notified := false
	d.OnUnhandledExceptionFilter(func(_ *dispatcher.Dispatcher, e *dispatcher.UnhandledExceptionFilterEventArgs) {
		e.RequestCatch = true
	})
	d.OnUnhandledException(func(*dispatcher.Dispatcher, *dispatcher.UnhandledExceptionEventArgs) {
		notified = true
	})

	mustPost(t, d, dispatcher.PriorityNormal, func() error { return boom })

	if err := d.Run(); !errors.Is(err, boom) {
		t.Fatalf("Run() = %v, want the callback error", err)
	}
	if !notified {
		t.Error("notify subscriber not called after catch was requested")
	}
}

func TestUnhandledFlagsAreMonotonic(t *testing.T) {
	d := newOwned(t)

	var order []string
	d.OnUnhandledExceptionFilter(func(_ *dispatcher.Dispatcher, e *dispatcher.UnhandledExceptionFilterEventArgs) {
		order = append(order, "filter-1")
		e.RequestCatch = true
	})
	d.OnUnhandledExceptionFilter(func(_ *dispatcher.Dispatcher, e *dispatcher.UnhandledExceptionFilterEventArgs) {
		order = append(order, "filter-2")
		if !e.RequestCatch {
			t.Error("second filter did not see the earlier catch request")
		}
		e.RequestCatch = false
	})
	d.OnUnhandledException(func(_ *dispatcher.Dispatcher, e *dispatcher.UnhandledExceptionEventArgs) {
		order = append(order, "notify-1")
		e.Handled = true
	})
	d.OnUnhandledException(func(_ *dispatcher.Dispatcher, e *dispatcher.UnhandledExceptionEventArgs) {
		order = append(order, "notify-2")
		e.Handled = false
	})

	mustPost(t, d, dispatcher.PriorityNormal, func() error { return errors.New("boom") })
	drain(t, d)

	want := []string{"filter-1", "filter-2", "notify-1", "notify-2"}
	if diff := cmp.Diff(want, order); diff != "" {
		t.Errorf("handler order mismatch (-want +got):\n%s", diff)
	}
}

func TestUnhandledPanicIsWrapped(t *testing.T) {
	d := newOwned(t)

	op := mustPost(t, d, dispatcher.PriorityNormal, func() { panic("kaboom") })
	err := d.Run()

	if !errors.Is(err, dispatcher.ErrCallbackPanic) {
		t.Fatalf("Run() = %v, want a callback panic", err)
	}
	var pe *dispatcher.PanicError
	if !errors.As(err, &pe) {
		t.Fatalf("Run() = %v, want *PanicError inside", err)
	}
	if pe.Value != "kaboom" {
		t.Errorf("panic value = %v, want kaboom", pe.Value)
	}
	if pe.Stack == "" {
		t.Error("panic stack is empty")
	}
	if op.Status() != dispatcher.StatusCompleted || op.Err() == nil {
		t.Errorf("panicked operation = (%v, %v), want Completed with error", op.Status(), op.Err())
	}
}

func TestUnhandledErrorStopsOnlyInnermostFrame(t *testing.T) {
	d := newOwned(t)
	boom := errors.New("boom")

	var innerErr error
	outerDone := false
	mustPost(t, d, dispatcher.PriorityNormal, func() {
		mustPost(t, d, dispatcher.PriorityNormal, func() error { return boom })
		innerErr = d.PushFrame(dispatcher.NewFrame())
	})
	mustPost(t, d, dispatcher.PriorityBackground, func() { outerDone = true })

	drain(t, d)

	if !errors.Is(innerErr, boom) {
		t.Errorf("inner PushFrame = %v, want the callback error", innerErr)
	}
	if !outerDone {
		t.Error("outer frame stopped pumping after an inner failure")
	}
}
