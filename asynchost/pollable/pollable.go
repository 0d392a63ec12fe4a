// Package pollable bridges WASI preview2 pollables into the async
// host-call trampoline, so a hostcall that only has a preview2.Pollable
// (a timer, a stream-readiness flag, a socket) can suspend the same way
// any other BlockOn caller does, without the host ever blocking a
// worker thread on Pollable.Block directly.
package pollable

import (
	"context"

	"github.com/asynchost/wasm-runtime/asynchost"
	"github.com/asynchost/wasm-runtime/wasi/preview2"
)

// Await suspends the calling hostcall until p becomes ready. It is a thin
// adapter: the future handed to BlockOn polls p.Ready() immediately and
// otherwise defers to p.Block, which already knows how to wait on its own
// deadline or readiness condition.
//
// The future runs with the ctx of the RunAsync call driving this
// instance; the ctx passed to Await is only forwarded to BlockOn, which
// does not observe its cancellation. If the driver's ctx is cancelled
// before p becomes ready, RunAsync returns ctx.Err() and leaves the
// instance Yielded, and Await does not return.
func Await(hc *asynchost.HostCtx, ctx context.Context, p preview2.Pollable) error {
	_, err := asynchost.BlockOn(hc, ctx, func(ctx context.Context) (struct{}, error) {
		if p.Ready() {
			return struct{}{}, nil
		}
		p.Block(ctx)
		if ctx.Err() != nil {
			return struct{}{}, ctx.Err()
		}
		return struct{}{}, nil
	})
	return err
}
