// Package dispatcher provides a cooperative, priority-ordered, re-entrant
// message loop bound to a single goroutine.
//
// Every goroutine can own at most one Dispatcher. It is created on first
// access through a Registry (or the package-level Current) and stays bound
// to that goroutine until it is detached.
//
// # Architecture
//
//   - Queue: pending operations ordered by Priority, then by posting order.
//   - Frames: Run and PushFrame pump the queue until their Frame stops.
//     Callbacks may push nested frames; only the innermost frame pumps.
//   - Operations: BeginInvoke returns an Operation handle immediately;
//     Invoke waits for the result.
//   - Shutdown: InvokeShutdown and BeginInvokeShutdown move the dispatcher
//     through ShutdownStarted to ShutdownFinished, draining eligible work
//     and abandoning the rest.
//   - Unhandled errors: failures of posted callbacks go to the
//     UnhandledExceptionFilter subscribers, then to UnhandledException
//     subscribers if a filter requested catch. Unhandled failures stop the
//     current frame and are returned as a *DispatchError.
//
// # Priorities
//
// Priorities run from Send (highest) down to SystemIdle. Inactive
// operations stay queued but never run until their priority is raised.
// High-priority work can starve low-priority work indefinitely.
//
// # Goroutines
//
// Only the owning goroutine may call Run, PushFrame or a Send-priority
// Invoke that executes inline. All other methods are safe for concurrent
// use. Callbacks always run on the owning goroutine.
//
// # Usage
//
//	reg := dispatcher.NewRegistry(dispatcher.WithLogger(logger))
//	d, done := reg.Go(func(d *dispatcher.Dispatcher) {
//	    if err := d.Run(); err != nil {
//	        logger.Error().Err(err).Msg("dispatcher stopped")
//	    }
//	})
//
//	v, err := d.Invoke(dispatcher.PriorityNormal, func() int { return 42 })
//	_ = d.InvokeShutdown()
//	<-done
//
// # Hooks and Metrics
//
// The hook subpackage observes operation lifecycle events. Metrics and
// LatencyMonitor are hooks that collect statistics per priority.
package dispatcher
