package pollable

import (
	"context"
	"testing"
	"time"

	"github.com/asynchost/wasm-runtime/asynchost"
	"github.com/asynchost/wasm-runtime/wasi/preview2"
)

func identityWrap(step func() (asynchost.Outcome, error)) (asynchost.Outcome, error) {
	return step()
}

func TestAwait_AlreadyReady(t *testing.T) {
	var inst *asynchost.GoInstance
	p := &preview2.PollableResource{}
	p.SetReady(true)

	prog := func(y *asynchost.Yielder, args []uint64) ([]uint64, error) {
		hc := asynchost.NewHostCtx(inst)
		if err := Await(hc, context.Background(), p); err != nil {
			return nil, err
		}
		return []uint64{1}, nil
	}
	inst = asynchost.NewGoInstance(map[string]asynchost.Program{"wait": prog})

	res, err := asynchost.RunAsync(context.Background(), inst, "wait", nil, identityWrap)
	if err != nil {
		t.Fatalf("RunAsync returned error: %v", err)
	}
	if len(res.Values) != 1 || res.Values[0] != 1 {
		t.Fatalf("expected [1], got %v", res.Values)
	}
}

func TestAwait_BecomesReadyOnDeadline(t *testing.T) {
	var inst *asynchost.GoInstance
	p := preview2.NewTimerPollable(time.Now().Add(10 * time.Millisecond))

	prog := func(y *asynchost.Yielder, args []uint64) ([]uint64, error) {
		hc := asynchost.NewHostCtx(inst)
		if err := Await(hc, context.Background(), p); err != nil {
			return nil, err
		}
		return []uint64{1}, nil
	}
	inst = asynchost.NewGoInstance(map[string]asynchost.Program{"wait": prog})

	res, err := asynchost.RunAsync(context.Background(), inst, "wait", nil, identityWrap)
	if err != nil {
		t.Fatalf("RunAsync returned error: %v", err)
	}
	if len(res.Values) != 1 || res.Values[0] != 1 {
		t.Fatalf("expected [1], got %v", res.Values)
	}
}

func TestAwait_CancelledBeforeReady(t *testing.T) {
	var inst *asynchost.GoInstance
	p := preview2.NewTimerPollable(time.Now().Add(time.Hour))

	prog := func(y *asynchost.Yielder, args []uint64) ([]uint64, error) {
		hc := asynchost.NewHostCtx(inst)
		err := Await(hc, context.Background(), p)
		return nil, err
	}
	inst = asynchost.NewGoInstance(map[string]asynchost.Program{"wait": prog})

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(10*time.Millisecond, cancel)

	_, err := asynchost.RunAsync(ctx, inst, "wait", nil, identityWrap)
	if err == nil {
		t.Fatal("expected an error from cancellation")
	}
}
