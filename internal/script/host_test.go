package script_test

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/rs/zerolog"

	"github.com/dshills/dispatchloop/internal/config"
	"github.com/dshills/dispatchloop/internal/dispatcher"
	"github.com/dshills/dispatchloop/internal/script"
)

// startHost runs a dispatcher on its own goroutine and binds a host to it.
// runErr receives Run's result.
func startHost(t *testing.T, opts ...script.Option) (*script.Host, *dispatcher.Dispatcher, <-chan error) {
	t.Helper()
	errc := make(chan error, 1)
	d, done := dispatcher.NewRegistry().Go(func(d *dispatcher.Dispatcher) {
		err := d.Run()
		if !d.HasShutdownFinished() {
			_ = d.InvokeShutdown()
		}
		errc <- err
	})
	h, err := script.NewHost(d, opts...)
	if err != nil {
		t.Fatalf("NewHost: %v", err)
	}
	t.Cleanup(func() {
		_ = h.Close()
		_ = d.InvokeShutdown()
		<-done
	})
	return h, d, errc
}

func ctxT(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func mustDo(t *testing.T, h *script.Host, code string) {
	t.Helper()
	if err := h.DoString(ctxT(t), code); err != nil {
		t.Fatalf("DoString: %v", err)
	}
}

// eventually calls the global Lua function name until it returns want.
func eventually(t *testing.T, h *script.Host, name string, want any) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	var got []any
	for time.Now().Before(deadline) {
		var err error
		got, err = h.Call(ctxT(t), name)
		if err != nil {
			t.Fatalf("Call(%s): %v", name, err)
		}
		if len(got) > 0 && cmp.Equal(got[0], want) {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("%s() = %v, want %v", name, got, want)
}

func TestNewHostNilDispatcher(t *testing.T) {
	if _, err := script.NewHost(nil); !errors.Is(err, script.ErrNilDispatcher) {
		t.Errorf("NewHost(nil) = %v, want ErrNilDispatcher", err)
	}
}

func TestPostRunsByPriority(t *testing.T) {
	h, _, _ := startHost(t)
	mustDo(t, h, `
order = {}
function result() return table.concat(order, ",") end
dispatcher.post(function() table.insert(order, "background") end, "Background")
dispatcher.post(function() table.insert(order, "normal") end)
dispatcher.post(function() table.insert(order, "render") end, dispatcher.priority.Render)
`)
	eventually(t, h, "result", "normal,render,background")
}

func TestPostReturnsOperationID(t *testing.T) {
	h, _, _ := startHost(t)
	mustDo(t, h, `function post() return dispatcher.post(function() end) end`)
	got, err := h.Call(ctxT(t), "post")
	if err != nil {
		t.Fatalf("Call: %v", err)
	}
	id, _ := got[0].(string)
	if len(id) != 36 {
		t.Errorf("post() = %v, want a uuid", got)
	}
}

func TestInvokeNestsAndReturnsValues(t *testing.T) {
	h, _, _ := startHost(t)
	mustDo(t, h, `
function compute()
  local a, depth = dispatcher.invoke(function() return 40, dispatcher.depth() end, "Background")
  return a + 2, depth, dispatcher.depth()
end
`)
	got, err := h.Call(ctxT(t), "compute")
	if err != nil {
		t.Fatalf("Call: %v", err)
	}
	want := []any{int64(42), int64(2), int64(1)}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("compute() mismatch (-want +got):\n%s", diff)
	}
}

func TestInvokeRaisesCallbackError(t *testing.T) {
	h, _, _ := startHost(t)
	mustDo(t, h, `
function try()
  local ok, err = pcall(dispatcher.invoke, function() error("inner failure") end)
  return ok, err
end
`)
	got, err := h.Call(ctxT(t), "try")
	if err != nil {
		t.Fatalf("Call: %v", err)
	}
	if got[0] != false {
		t.Errorf("pcall ok = %v, want false", got[0])
	}
	if msg, _ := got[1].(string); !strings.Contains(msg, "inner failure") {
		t.Errorf("pcall err = %v, want inner failure", got[1])
	}
}

func TestShutdownFromScript(t *testing.T) {
	h, d, runErr := startHost(t)
	mustDo(t, h, `dispatcher.shutdown("Background")`)
	select {
	case err := <-runErr:
		if err != nil {
			t.Fatalf("Run = %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after shutdown")
	}
	if !d.HasShutdownFinished() {
		t.Error("dispatcher has not finished shutdown")
	}
	if err := h.DoString(ctxT(t), `x = 1`); !errors.Is(err, dispatcher.ErrShutdownFinished) {
		t.Errorf("DoString after shutdown = %v, want ErrShutdownFinished", err)
	}
}

func TestOnUnhandledHandlesScriptErrors(t *testing.T) {
	h, _, runErr := startHost(t)
	mustDo(t, h, `
caught = ""
function get() return caught end
dispatcher.on_unhandled(function(msg) caught = msg; return true end)
dispatcher.post(function() error("boom") end)
dispatcher.post(function() caught = caught .. "|after" end, "Background")
`)
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		got, err := h.Call(ctxT(t), "get")
		if err != nil {
			t.Fatalf("Call: %v", err)
		}
		if s, _ := got[0].(string); strings.HasSuffix(s, "|after") {
			if !strings.Contains(s, "boom") {
				t.Errorf("handler message = %q, want boom", s)
			}
			select {
			case err := <-runErr:
				t.Fatalf("Run returned %v although the error was handled", err)
			default:
			}
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("posted work did not continue after the handled error")
}

func TestUnhandledScriptErrorReachesRun(t *testing.T) {
	h, _, runErr := startHost(t)
	mustDo(t, h, `
dispatcher.on_unhandled(function() return false end)
dispatcher.post(function() error("boom") end)
`)
	select {
	case err := <-runErr:
		var de *dispatcher.DispatchError
		if !errors.As(err, &de) {
			t.Fatalf("Run = %v, want *DispatchError", err)
		}
		var se *script.Error
		if !errors.As(err, &se) || se.Source != "post" {
			t.Errorf("Run = %v, want *script.Error from post", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return")
	}
}

func TestTimeoutStopsRunawayScript(t *testing.T) {
	h, _, _ := startHost(t, script.WithConfig(config.ScriptConfig{
		Priority: dispatcher.PriorityNormal,
		Timeout:  config.Duration(50 * time.Millisecond),
	}))
	err := h.DoString(ctxT(t), `while true do end`)
	var se *script.Error
	if !errors.As(err, &se) {
		t.Fatalf("DoString = %v, want *script.Error", err)
	}
	mustDo(t, h, `x = 1`)
}

func TestSandbox(t *testing.T) {
	h, _, _ := startHost(t)
	mustDo(t, h, `assert(io == nil and os == nil and dofile == nil and loadstring == nil and require == nil)`)
	mustDo(t, h, `assert(string.upper("a") == "A" and math.max(1, 2) == 2 and #table.concat({"x"}) == 1)`)

	err := h.DoString(ctxT(t), `io.write("x")`)
	var se *script.Error
	if !errors.As(err, &se) || se.Source != "<string>" {
		t.Errorf("DoString(io.write) = %v, want *script.Error", err)
	}
}

func TestBadPriority(t *testing.T) {
	h, _, _ := startHost(t)
	tests := []struct {
		name string
		code string
		want string
	}{
		{"unknown name", `dispatcher.post(function() end, "urgent")`, "invalid priority"},
		{"out of range", `dispatcher.post(function() end, 42)`, "invalid priority"},
		{"inactive", `dispatcher.post(function() end, "Inactive")`, "Inactive"},
		{"wrong type", `dispatcher.post(function() end, {})`, "number or a name"},
		{"not a function", `dispatcher.post(1)`, "function expected"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := h.DoString(ctxT(t), tt.code)
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("DoString = %v, want %q", err, tt.want)
			}
		})
	}
}

func TestCallConvertsValues(t *testing.T) {
	h, _, _ := startHost(t)
	mustDo(t, h, `function echo(...) return ... end`)

	got, err := h.Call(ctxT(t), "echo",
		1, 2.5, "s", true, nil,
		[]any{1, "two"},
		map[string]any{"k": "v", "n": 3},
		[]int{4, 5}, uint8(7), map[int]string{1: "one"},
	)
	if err != nil {
		t.Fatalf("Call: %v", err)
	}
	want := []any{
		int64(1), 2.5, "s", true, nil,
		[]any{int64(1), "two"},
		map[string]any{"k": "v", "n": int64(3)},
		[]any{int64(4), int64(5)}, int64(7), map[string]any{"1": "one"},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("echo mismatch (-want +got):\n%s", diff)
	}
}

func TestCallNotFunction(t *testing.T) {
	h, _, _ := startHost(t)
	mustDo(t, h, `value = 3`)
	for _, name := range []string{"missing", "value"} {
		_, err := h.Call(ctxT(t), name)
		if !errors.Is(err, script.ErrNotFunction) || !errors.Is(err, dispatcher.ErrInvalidArgument) {
			t.Errorf("Call(%s) = %v, want ErrNotFunction", name, err)
		}
	}
}

func TestDoFile(t *testing.T) {
	h, _, _ := startHost(t)
	path := filepath.Join(t.TempDir(), "init.lua")
	if err := os.WriteFile(path, []byte(`function greet(n) return "hello " .. n end`), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := h.DoFile(ctxT(t), path); err != nil {
		t.Fatalf("DoFile: %v", err)
	}
	got, err := h.Call(ctxT(t), "greet", "lua")
	if err != nil || got[0] != "hello lua" {
		t.Errorf("greet = %v, %v", got, err)
	}

	err = h.DoFile(ctxT(t), filepath.Join(t.TempDir(), "missing.lua"))
	var se *script.Error
	if !errors.As(err, &se) {
		t.Errorf("DoFile(missing) = %v, want *script.Error", err)
	}
}

func TestStateQueriesAndLog(t *testing.T) {
	var buf bytes.Buffer
	h, _, _ := startHost(t, script.WithLogger(zerolog.New(&buf)))
	mustDo(t, h, `
function info() return dispatcher.state(), dispatcher.pending() end
dispatcher.log("hello from lua", "warn")
`)
	got, err := h.Call(ctxT(t), "info")
	if err != nil {
		t.Fatalf("Call: %v", err)
	}
	if diff := cmp.Diff([]any{"Running", int64(0)}, got); diff != "" {
		t.Errorf("info() mismatch (-want +got):\n%s", diff)
	}

	out := buf.String()
	for _, want := range []string{"hello from lua", `"level":"warn"`, `"component":"script"`} {
		if !strings.Contains(out, want) {
			t.Errorf("log output %q lacks %s", out, want)
		}
	}
}

func TestClose(t *testing.T) {
	h, _, _ := startHost(t)
	if err := h.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := h.Close(); err != nil {
		t.Errorf("second Close: %v", err)
	}
	if err := h.DoString(ctxT(t), `x = 1`); !errors.Is(err, script.ErrHostClosed) {
		t.Errorf("DoString after Close = %v, want ErrHostClosed", err)
	}
}

func TestCallsFromManyGoroutines(t *testing.T) {
	h, _, _ := startHost(t)
	mustDo(t, h, `
n = 0
function bump() n = n + 1; return n end
function count() return n end
`)
	errc := make(chan error, 8)
	for i := 0; i < 8; i++ {
		go func() {
			for j := 0; j < 25; j++ {
				if _, err := h.Call(context.Background(), "bump"); err != nil {
					errc <- err
					return
				}
			}
			errc <- nil
		}()
	}
	for i := 0; i < 8; i++ {
		if err := <-errc; err != nil {
			t.Fatalf("bump: %v", err)
		}
	}
	eventually(t, h, "count", int64(200))
}
