package asynchost

import (
	"context"
	"fmt"

	"github.com/asynchost/wasm-runtime/errors"
)

// HostCtx is the handle a hostcall receives to reach BlockOn. It is the
// Go analogue of Lucet's Vmctx: a thin wrapper around whichever Instance
// is currently running the hostcall's guest stack.
type HostCtx struct {
	inst Instance
}

// NewHostCtx wraps inst for hostcall-side use.
func NewHostCtx(inst Instance) *HostCtx {
	return &HostCtx{inst: inst}
}

// Instance returns the underlying instance. Exposed for hostcalls that
// need to inspect instance state beyond BlockOn (e.g. the pollable
// bridge).
func (hc *HostCtx) Instance() Instance {
	return hc.inst
}

// BlockOn suspends the calling hostcall until fn completes, handing the
// computation to the driver running this instance via RunAsync so the
// underlying worker is never blocked on it directly
//
// BlockOn may only be called from a hostcall running on an instance
// started by RunAsync. If the instance is Running but was not started
// asynchronously, the instance is terminated fatally with
// errors.AwaitNeedsAsync() and this function does not return normally - it
// unwinds the guest stack via Instance.Fail. Any other instance state
// observed here is a programming error: a hostcall's mere invocation
// implies the instance is Running.
//
// ctx is forwarded to Instance.YieldValExpectingVal for implementations
// that want to observe it while suspending, but GoInstance ignores it:
// the cancellation that actually matters is the driver's own ctx, which
// RunAsync threads into the awaited future directly. Cancelling ctx here
// does not by itself abandon fn; pass the driver's ctx through to fn if
// it needs to observe the same cancellation.
func BlockOn[R any](hc *HostCtx, ctx context.Context, fn func(ctx context.Context) (R, error)) (R, error) {
	var zero R

	st := hc.inst.State()
	if st.Kind != StateRunning {
		panic(fmt.Sprintf("asynchost: BlockOn invoked while instance is %s, not Running (implies a hostcall ran without a guest)", st.Kind))
	}
	if !st.AsyncContext {
		hc.inst.Fail(errors.AwaitNeedsAsync())
		panic("asynchost: unreachable after Fail")
	}

	future := Future(func(ctx context.Context) (any, error) {
		return fn(ctx)
	})

	opaque := hc.inst.YieldValExpectingVal(ctx, pendingFuture{run: future})

	rv, ok := opaque.(resumeValue)
	if !ok {
		hc.inst.Fail(errors.InternalInvariantViolation("resume value was not a resumeValue envelope"))
		panic("asynchost: unreachable after Fail")
	}
	if rv.err != nil {
		return zero, rv.err
	}

	v, ok := rv.val.(R)
	if !ok {
		hc.inst.Fail(errors.InternalInvariantViolation(fmt.Sprintf("downcast mismatch in BlockOn: got %T", rv.val)))
		panic("asynchost: unreachable after Fail")
	}
	return v, nil
}
