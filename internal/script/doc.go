// Package script hosts Lua scripts that drive a dispatcher.
//
// A Host owns a sandboxed gopher-lua state that only the dispatcher
// goroutine touches. DoString, DoFile and Call may be used from any
// goroutine: they marshal onto the dispatcher at Send priority and wait.
// Scripts see a global "dispatcher" table:
//
//	dispatcher.post(fn [, priority])     queue fn, returns the operation id
//	dispatcher.invoke(fn [, priority])   run fn and return its results
//	dispatcher.shutdown([priority])      queue the start of shutdown
//	dispatcher.on_unhandled(fn)          handle failed posted callbacks
//	dispatcher.pending()                 queued operation count
//	dispatcher.depth()                   active frame count
//	dispatcher.state()                   "Running", "ShutdownStarted", ...
//	dispatcher.log(msg [, level])        write to the host logger
//	dispatcher.priority.Normal           priority numbers by name
//
// Priorities may be passed as numbers or as names such as "Background".
// When omitted the host's configured priority is used.
//
// Only the base, table, string and math libraries are opened, and the
// chunk loaders (dofile, loadfile, load, loadstring, require) are removed.
// A configured timeout bounds each top-level call, including nested work
// it runs through dispatcher.invoke.
package script
