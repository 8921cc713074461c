// Package invoke runs dispatcher callbacks.
//
// A callback may be any Go function. Arguments supplied at post time are
// checked against the function's parameters when the call is prepared, so
// shape mismatches surface at the call site rather than on the dispatch
// loop. Results follow a simple convention:
//
//   - a trailing error result is reported as Result.Err
//   - a single remaining result is reported as Result.Value
//   - several remaining results are reported as a []any
//
// Panics are recovered and reported through Result, with the stack captured
// at the point of the panic.
//
// Usage:
//
//	call, err := invoke.Prepare(func(a, b int) int { return a + b }, 2, 3)
//	if err != nil {
//	    return err
//	}
//	result := invoke.Run(call)
//	// result.Value == 5
package invoke
