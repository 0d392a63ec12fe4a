// Package asynchost implements the async host-call trampoline: the
// protocol that lets a synchronous, stack-based hostcall running on a
// guest instance appear to suspend on an asynchronous computation without
// blocking the underlying host worker.
//
// # Architecture
//
// Three parts cooperate:
//
//   - Instance is the opaque instance execution primitive, defined in
//     terms of Ready/Running/Yielded/Finished states. GoInstance is the
//     goroutine-backed implementation used throughout this package;
//     wazeroinst.Instance shows the same contract backed by the engine
//     package's asyncify machinery.
//   - BlockOn is called from inside a hostcall running on the guest side
//     of an Instance. It boxes the caller's future as a PendingFuture and
//     yields it across the instance's yield channel, blocking the
//     hostcall (not the host worker) until resumed.
//   - RunAsync is the driver: it steps an Instance, catches PendingFuture
//     yields, awaits them on the caller's own scheduler, and resumes the
//     instance with the result.
//
// # Envelope discipline
//
// pendingFuture and resumeValue are unexported: only this package may
// construct or inspect them, so nothing outside it can forge a value that
// flows through an Instance's yield channel. A yielded value that is not
// a pendingFuture is treated as a protocol violation (errors.UnsupportedYield).
//
// # Concurrency
//
// RunAsync is a plain function, not a goroutine of its own; callers invoke
// it from whatever goroutine should own the driver loop. Awaiting a
// PendingFuture runs the future on its own goroutine and selects against
// ctx, so cancelling ctx during an await drops the future and returns
// without resuming the instance (the instance is left Yielded; a second
// RunAsync on it fails with errors.CannotRunYielded). Stepping the instance
// itself (RunFunc/ResumeWithVal) is not cancelable once started — guest
// execution cannot be preempted mid-step.
package asynchost
