package dispatcher_test

import (
	"testing"

	"github.com/dshills/dispatchloop/internal/dispatcher"
)

func TestRegistryCurrentIsStable(t *testing.T) {
	reg := dispatcher.NewRegistry()

	a := reg.Current()
	b := reg.Current()
	if a != b {
		t.Fatal("Current() returned different dispatchers on the same goroutine")
	}
	if !a.CheckAccess() {
		t.Error("CheckAccess() = false on the creating goroutine")
	}
	if !a.Thread().IsCurrent() {
		t.Error("Thread().IsCurrent() = false on the creating goroutine")
	}
	if reg.Count() != 1 {
		t.Errorf("Count() = %d, want 1", reg.Count())
	}

	other := make(chan *dispatcher.Dispatcher)
	go func() {
		d := reg.Current()
		other <- d
		reg.Detach(d)
	}()
	if o := <-other; o == a {
		t.Error("another goroutine got the same dispatcher")
	}

	if !reg.Detach(a) {
		t.Error("Detach() = false for a registered dispatcher")
	}
	if reg.Detach(a) {
		t.Error("second Detach() = true")
	}
	if reg.Current() == a {
		t.Error("Current() after Detach returned the detached dispatcher")
	}
}

func TestRegistryFromThread(t *testing.T) {
	reg := dispatcher.NewRegistry()
	d := reg.Current()
	defer reg.Detach(d)

	if got := reg.FromThread(dispatcher.CurrentThread()); got != d {
		t.Errorf("FromThread(current) = %p, want %p", got, d)
	}
	if got := reg.FromThread(nil); got != nil {
		t.Errorf("FromThread(nil) = %p, want nil", got)
	}
	if !d.Thread().Equal(dispatcher.CurrentThread()) {
		t.Error("Thread().Equal(CurrentThread()) = false")
	}

	done := make(chan *dispatcher.Thread)
	go func() { done <- dispatcher.CurrentThread() }()
	if got := reg.FromThread(<-done); got != nil {
		t.Error("FromThread returned a dispatcher for a goroutine without one")
	}
}

func TestRegistryGo(t *testing.T) {
	reg := dispatcher.NewRegistry()

	inside := make(chan bool, 1)
	d, done := reg.Go(func(d *dispatcher.Dispatcher) {
		inside <- d.CheckAccess() && reg.Current() == d
	})
	<-done

	if !<-inside {
		t.Error("Go callback did not own the dispatcher it was given")
	}
	if d.CheckAccess() {
		t.Error("caller of Go owns the worker dispatcher")
	}
	if reg.Count() != 0 {
		t.Errorf("Count() after worker exit = %d, want 0", reg.Count())
	}
}

func TestPackageDefaultRegistry(t *testing.T) {
	d := dispatcher.Current()
	defer dispatcher.Default().Detach(d)

	if dispatcher.FromThread(dispatcher.CurrentThread()) != d {
		t.Error("FromThread on the default registry did not find Current()")
	}

	worker, done := dispatcher.Go(func(*dispatcher.Dispatcher) {})
	<-done
	if worker == d {
		t.Error("Go reused the caller's dispatcher")
	}
}
