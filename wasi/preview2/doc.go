// Package preview2 provides the WASI Preview2 Pollable resource: the
// async-readiness contract (Ready/Block) that asynchost/pollable bridges
// into BlockOn so a hostcall can suspend on it without blocking its
// worker.
//
//   - Resource: the base interface every WASI preview2 handle implements.
//   - Pollable: Resource plus Ready()/Block(ctx), for resources that
//     support async polling.
//   - PollableResource: a pollable that is manually flipped ready.
//   - TimerPollable: a pollable that becomes ready at a deadline.
package preview2
