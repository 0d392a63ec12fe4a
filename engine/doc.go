// Package engine provides the Binaryen asyncify state machine used to
// drive suspend/resume on a wasm-opt --asyncify-compiled guest.
//
// # Asyncify
//
// Asyncify enables cooperative multitasking in WASM. Modules compiled with
// wasm-opt --asyncify can suspend execution (unwind) and resume later
// (rewind). Asyncify tracks the three-state register (Normal, Unwinding,
// Rewinding) that a real asyncify
// export pair (asyncify_start_unwind, asyncify_stop_rewind, ...) reads and
// writes through guest memory; when no such module is wired in (Init is
// never called, or the module has no asyncify exports) the register
// degrades to a pure in-process atomic, so the state machine is usable on
// its own without a compiled guest.
//
// Usage:
//
//	asyncify := NewAsyncify()
//	if asyncify.IsNormal(ctx) {
//	    asyncify.StartUnwind(ctx) // Save stack, return to caller
//	    return                     // Guest sees function return
//	}
//	// On rewind, execution continues here
//	asyncify.StopRewind(ctx)
//	// Perform actual work, return result
//
// Scheduler tracks at most one pending PendingOp at a time and turns
// Asyncify's raw state transitions into a step/done protocol (Step/Run)
// for host code that wants to drive a suspend-point loop without manually
// juggling Start/StopUnwind and Start/StopRewind calls itself.
//
// # Thread Safety
//
// Asyncify's state register is read and written atomically, and Init and
// SyncState take its mutex. SetStackSize, SetDataAddr and every Scheduler
// method are not synchronized; an Asyncify/Scheduler pair belongs to one
// goroutine per instance.
package engine
