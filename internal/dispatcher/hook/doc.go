// Package hook provides observer hooks for dispatcher operations.
//
// Hooks see every operation lifecycle change (posted, started, completed,
// aborted, priority changed) and are told when the dispatcher drains its
// queue and goes idle. They observe only: they cannot cancel or alter an
// operation.
//
// # Hook Types
//
//   - OperationHook: receives OperationEvent values.
//   - InactiveHook: called when the queue becomes empty.
//
// Hooks implement the base Hook interface with Name() and Priority() for
// identification and ordering. Higher priority runs first; registering a
// hook under an existing name replaces it.
//
// # Delivery
//
// Posted and PriorityChanged events are delivered on the goroutine that
// posted or re-prioritized the operation, which may not be the dispatcher
// goroutine. Started, Completed and Inactive are delivered on the
// dispatcher goroutine. Aborted is delivered on whichever goroutine
// aborted the operation. Hooks must therefore be safe for concurrent use.
//
// # Built-in Hooks
//
//   - AuditHook: zerolog debug trail of every event
//   - RecorderHook: bounded in-memory history, used by tests and the CLI
//
// # Usage
//
//	manager := hook.NewManager()
//	manager.Register(hook.NewAuditHook(logger))
//	manager.RegisterOperation(hook.NewOperationFunc("trace", 10, func(ev hook.OperationEvent) {
//	    fmt.Println(ev.Kind, ev.ID)
//	}))
package hook
