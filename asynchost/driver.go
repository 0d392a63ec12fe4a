package asynchost

import (
	"context"

	"go.uber.org/zap"

	"github.com/asynchost/wasm-runtime/errors"
)

// WrapBlocking runs step on a host context allowed to block the
// underlying worker thread, because guest code may run arbitrarily long
// between yields. RunAsync does not choose the blocking mechanism itself;
// callers supply it (the canonical case is a block-in-place facility from
// the caller's own task scheduler).
type WrapBlocking func(step func() (Outcome, error)) (Outcome, error)

// Result is what RunAsync returns when the driven instance finishes.
type Result struct {
	Values []uint64
}

// RunAsync drives instance to completion from entrypoint, transparently
// servicing any number of BlockOn suspensions by awaiting each extracted
// future on the caller's own scheduler
//
// RunAsync fails immediately, without mutating instance, if it is already
// Yielded. wrapBlocking is never invoked when entrypoint cannot be
// resolved - resolution is checked up front. Cancelling ctx while a
// PendingFuture is being awaited drops the future and returns ctx.Err()
// without resuming the instance, leaving it Yielded; recovering from that
// state is a separate, lower-level operation out of scope here.
func RunAsync(ctx context.Context, instance Instance, entrypoint string, args []uint64, wrapBlocking WrapBlocking) (Result, error) {
	if instance.IsYielded() {
		return Result{}, errors.CannotRunYielded(entrypoint)
	}
	if !instance.HasExport(entrypoint) {
		return Result{}, errors.EntrypointMissing(entrypoint)
	}

	var pendingResume *resumeValue

	for {
		outcome, err := wrapBlocking(func() (Outcome, error) {
			if instance.IsYielded() {
				rv := pendingResume
				pendingResume = nil
				if rv == nil {
					panic("asynchost: internal invariant violation: instance is Yielded but no pendingResume is held")
				}
				return instance.ResumeWithVal(ctx, *rv, true)
			}
			return instance.RunFunc(ctx, entrypoint, args, true)
		})
		if err != nil {
			Logger().Debug("run_async: step failed",
				zap.String("entrypoint", entrypoint), zap.Error(err))
			return Result{}, err
		}

		switch outcome.Kind {
		case OutcomeReturned:
			return Result{Values: outcome.Results}, nil

		case OutcomeYielded:
			pf, ok := outcome.Yield.(pendingFuture)
			if !ok {
				Logger().Warn("run_async: guest yielded a non-future value",
					zap.String("entrypoint", entrypoint))
				return Result{}, errors.UnsupportedYield()
			}

			val, ferr := awaitFuture(ctx, pf.run)
			if ctx.Err() != nil {
				// The driver was cancelled while awaiting: the future is
				// dropped, the instance stays Yielded, we do not resume it.
				return Result{}, ctx.Err()
			}
			pendingResume = &resumeValue{val: val, err: ferr}

		default:
			panic("asynchost: internal invariant violation: unknown outcome kind")
		}
	}
}

type futureResult struct {
	val any
	err error
}

// awaitFuture runs f on its own goroutine and returns as soon as it
// completes or ctx is done, whichever comes first. f is expected to
// observe ctx itself; if ctx is cancelled first, the goroutine f runs on
// is left to finish on its own and its result is discarded.
func awaitFuture(ctx context.Context, f Future) (any, error) {
	resultCh := make(chan futureResult, 1)
	go func() {
		v, err := f(ctx)
		resultCh <- futureResult{val: v, err: err}
	}()

	select {
	case r := <-resultCh:
		return r.val, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
