package invoke

import (
	"runtime/debug"
	"time"
)

// Panic records a recovered panic.
type Panic struct {
	Value any
	Stack []byte
}

// Result is what running a Call produced. Value and Err are zero when the
// callback panicked.
type Result struct {
	Value    any
	Err      error
	Panic    *Panic
	Duration time.Duration
}

// Failed reports whether the callback returned an error or panicked.
func (r Result) Failed() bool { return r.Err != nil || r.Panic != nil }

// Run calls c on the current goroutine, recovering a panic into the
// result.
func Run(c *Call) (res Result) {
	start := time.Now()
	defer func() {
		res.Duration = time.Since(start)
		if v := recover(); v != nil {
			res = Result{
				Panic:    &Panic{Value: v, Stack: debug.Stack()},
				Duration: res.Duration,
			}
		}
	}()
	res.Value, res.Err = c.call()
	return res
}
