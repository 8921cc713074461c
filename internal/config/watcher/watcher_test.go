package watcher

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func TestOptions(t *testing.T) {
	if w := New(); w.debounce != DefaultDebounce {
		t.Errorf("default debounce = %v", w.debounce)
	}
	if w := New(WithDebounce(20*time.Millisecond), WithDebounce(-1)); w.debounce != 20*time.Millisecond {
		t.Errorf("debounce = %v, want 20ms", w.debounce)
	}
}

func TestOpString(t *testing.T) {
	for op, want := range map[Op]string{
		Write: "write", Create: "create", Remove: "remove", Rename: "rename", Op(99): "unknown",
	} {
		if got := op.String(); got != want {
			t.Errorf("Op(%d) = %q, want %q", op, got, want)
		}
	}
}

func TestMerge(t *testing.T) {
	tests := []struct {
		prev, next, want Op
	}{
		{Create, Write, Create},
		{Write, Write, Write},
		{Remove, Write, Remove},
		{Write, Remove, Remove},
		{Remove, Create, Create},
		{Create, Rename, Rename},
	}
	for _, tt := range tests {
		if got := merge(tt.prev, tt.next); got != tt.want {
			t.Errorf("merge(%v, %v) = %v, want %v", tt.prev, tt.next, got, tt.want)
		}
	}
}

func TestAddRemove(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "a.toml")
	b := filepath.Join(dir, "b.yaml")

	w := New()
	for _, p := range []string{b, a, a} {
		if err := w.Add(p); err != nil {
			t.Fatalf("Add(%s): %v", p, err)
		}
	}
	if diff := cmp.Diff([]string{a, b}, w.Files()); diff != "" {
		t.Errorf("Files (-want +got):\n%s", diff)
	}
	if w.dirs[dir] != 2 {
		t.Errorf("directory count = %d, want 2", w.dirs[dir])
	}

	for range 2 {
		if err := w.Remove(a); err != nil {
			t.Fatalf("Remove: %v", err)
		}
	}
	if diff := cmp.Diff([]string{b}, w.Files()); diff != "" {
		t.Errorf("Files (-want +got):\n%s", diff)
	}
	if err := w.Remove(b); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if _, ok := w.dirs[dir]; ok {
		t.Error("directory still tracked after its last file was removed")
	}

	if err := w.Add(filepath.Join(dir, "missing", "c.toml")); err == nil {
		t.Error("Add in a missing directory succeeded")
	}
}

func TestStartStop(t *testing.T) {
	w := New()
	if err := w.Add(filepath.Join(t.TempDir(), "c.toml")); err != nil {
		t.Fatal(err)
	}
	if w.Running() {
		t.Error("running before Start")
	}
	for range 2 {
		if err := w.Start(); err != nil {
			t.Fatalf("Start: %v", err)
		}
	}
	if !w.Running() {
		t.Error("not running after Start")
	}
	for range 2 {
		if err := w.Stop(); err != nil {
			t.Fatalf("Stop: %v", err)
		}
	}
	if w.Running() {
		t.Error("running after Stop")
	}
}

func watch(t *testing.T, path string, opts ...Option) <-chan Event {
	t.Helper()
	events := make(chan Event, 16)
	w := New(opts...)
	w.OnChange(func(e Event) { events <- e })
	if err := w.Add(path); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if err := w.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(func() { _ = w.Stop() })
	return events
}

func next(t *testing.T, events <-chan Event) Event {
	t.Helper()
	select {
	case e := <-events:
		return e
	case <-time.After(2 * time.Second):
		t.Fatal("no event within 2s")
		return Event{}
	}
}

func write(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestWrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "c.toml")
	write(t, path, "a = 1")
	events := watch(t, path, WithDebounce(0))

	write(t, path, "a = 2")
	if e := next(t, events); e.Op != Write || e.Path != path {
		t.Errorf("event = %+v, want write of %s", e, path)
	}
}

func TestCreateIgnoresSiblings(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "c.yaml")
	events := watch(t, path, WithDebounce(0))

	write(t, filepath.Join(dir, "other.yaml"), "")
	write(t, path, "a: 1")
	if e := next(t, events); e.Op != Create || e.Path != path {
		t.Errorf("event = %+v, want create of %s", e, path)
	}
}

func TestRemove(t *testing.T) {
	path := filepath.Join(t.TempDir(), "c.toml")
	write(t, path, "")
	events := watch(t, path, WithDebounce(0))

	if err := os.Remove(path); err != nil {
		t.Fatal(err)
	}
	if e := next(t, events); e.Op != Remove {
		t.Errorf("event.Op = %v, want remove", e.Op)
	}
}

func TestDebounceDeliversBurstOnce(t *testing.T) {
	path := filepath.Join(t.TempDir(), "c.toml")
	write(t, path, "")
	events := watch(t, path, WithDebounce(80*time.Millisecond))

	for i := range 5 {
		write(t, path, string(rune('a'+i)))
		time.Sleep(5 * time.Millisecond)
	}
	if e := next(t, events); e.Op != Write {
		t.Errorf("event.Op = %v, want write", e.Op)
	}
	select {
	case e := <-events:
		t.Errorf("second event %+v", e)
	case <-time.After(300 * time.Millisecond):
	}
}

func TestHandlerPanicIsContained(t *testing.T) {
	w := New()
	got := make(chan Event, 1)
	w.OnChange(func(Event) { panic("boom") })
	w.OnChange(func(e Event) { got <- e })

	w.deliver(Event{Path: "/x", Op: Write})
	select {
	case e := <-got:
		if e.Path != "/x" {
			t.Errorf("event.Path = %q", e.Path)
		}
	default:
		t.Fatal("handler after the panicking one was not called")
	}
}
