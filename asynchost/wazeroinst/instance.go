// Package wazeroinst is a second asynchost.Instance backend, grounded in
// the engine package's Binaryen asyncify protocol (engine.Asyncify) and
// step scheduler (engine.Scheduler, engine.PendingOp) instead of a bare
// goroutine/channel pair.
//
// It is deliberately a thin, illustrative adapter rather than the
// primary tested backend: the real asyncify ABI round-trips only a
// uint64 across the guest/host boundary, while this subsystem's
// envelopes carry an arbitrary typed value. Value transport here still
// goes through the same generic channel handshake asynchost.GoInstance
// uses; what this package adds on top is driving the real
// engine.Asyncify state register in lockstep with each yield and resume
// (StartUnwind/StopUnwind, StartRewind/StopRewind) and clearing the
// engine.Scheduler's pending op on resume. State()/IsYielded() report the
// Instance's own state field, not the asyncify register, which is back
// at Normal whenever the Instance is Yielded. engine.Scheduler.Execute/Step/Run
// - the parts of that machinery that call a real api.Function - are not
// exercised here, because no asyncify-compiled .wasm fixture for this
// protocol exists to drive them against.
//
// Entrypoint resolution optionally consults a runtime.Module built from
// the component's WIT text, so HasExport can require a matching WIT
// declaration in addition to a registered GuestFunc.
package wazeroinst

import (
	"context"
	"fmt"
	"sync"

	"github.com/tetratelabs/wazero/api"

	"github.com/asynchost/wasm-runtime/asynchost"
	"github.com/asynchost/wasm-runtime/engine"
	"github.com/asynchost/wasm-runtime/runtime"
)

// GuestFunc is this package's analogue of asynchost.Program: guest code
// that runs on its own goroutine and suspends through a Suspender.
type GuestFunc func(s *Suspender, args []uint64) ([]uint64, error)

// Suspender is the guest-side half of the yield channel, handed to a
// running GuestFunc.
type Suspender struct {
	out chan stepMsg
	in  chan any
}

// Yield suspends the calling GuestFunc, handing val to whoever is
// driving the Instance, and blocks until resumed with a value.
func (s *Suspender) Yield(val any) any {
	s.out <- stepMsg{yield: val}
	return <-s.in
}

type stepMsg struct {
	done    bool
	results []uint64
	yield   any
	err     error
}

// futureOp adapts an asynchost.Future to engine.PendingOp, so a pending
// suspension can be recorded on an engine.Scheduler the same way a real
// asyncify host import would record one. CmdID is fixed: this adapter
// never needs to distinguish between concurrently pending operations,
// since - like GoInstance - only one suspension is in flight at a time.
type futureOp struct {
	future asynchost.Future
}

const futureCmdID engine.CommandID = 1

func (futureOp) CmdID() engine.CommandID { return futureCmdID }

// Execute runs the wrapped future and coerces its result to uint64,
// matching the real asyncify ABI's wire type. Coercion fails for any
// future whose result isn't already a uint64 - the expected outcome for
// this backend, documented in the package doc comment. Not called by
// Instance's own RunFunc/ResumeWithVal path, which transports the
// opaque value directly over the Suspender channel instead; kept for
// callers that want to drive pending ops through engine.Scheduler.Run
// directly against a compiled module.
func (f futureOp) Execute(ctx context.Context) (uint64, error) {
	v, err := f.future(ctx)
	if err != nil {
		return 0, err
	}
	u, ok := v.(uint64)
	if !ok {
		return 0, fmt.Errorf("wazeroinst: future result %T is not uint64", v)
	}
	return u, nil
}

// Instance is an asynchost.Instance backed by engine.Asyncify's state
// register and engine.Scheduler's pending-op bookkeeping.
type Instance struct {
	mu        sync.Mutex
	asyncify  *engine.Asyncify
	scheduler *engine.Scheduler
	exports   map[string]GuestFunc
	wit       *runtime.Module
	state     asynchost.State
	suspender *Suspender
}

var _ asynchost.Instance = (*Instance)(nil)

// NewInstance creates an Instance whose entrypoints are exports, backed
// by a fresh engine.Asyncify/engine.Scheduler pair. mod, if non-nil, is
// passed to asyncify.Init so the state register reads and writes
// through the module's real asyncify_* exports and memory; if mod is
// nil (or has no such exports), the register degrades to a pure
// in-process atomic, per engine.Asyncify's own documented behavior.
//
// witText, if non-empty, is parsed into a runtime.Module consulted by
// HasExport alongside the exports map: an entrypoint only resolves when
// both its Go implementation is registered and its signature is declared
// in the component's WIT text, catching a registered export whose WIT
// declaration was dropped or renamed. An empty witText skips this check
// and HasExport falls back to the exports map alone.
func NewInstance(mod api.Module, witText string, exports map[string]GuestFunc) *Instance {
	async := engine.NewAsyncify()
	if mod != nil {
		_ = async.Init(mod)
	}
	var wit *runtime.Module
	if witText != "" {
		wit = runtime.NewModule(witText)
	}
	return &Instance{
		asyncify:  async,
		scheduler: engine.NewScheduler(async),
		exports:   exports,
		wit:       wit,
		state:     asynchost.State{Kind: asynchost.StateReady},
	}
}

func (i *Instance) State() asynchost.State {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.state
}

func (i *Instance) IsYielded() bool {
	return i.State().Kind == asynchost.StateYielded
}

func (i *Instance) HasExport(name string) bool {
	_, ok := i.exports[name]
	if !ok {
		return false
	}
	if i.wit == nil {
		return true
	}
	return i.wit.HasFunction(name)
}

func (i *Instance) RunFunc(ctx context.Context, export string, args []uint64, asyncContext bool) (asynchost.Outcome, error) {
	i.mu.Lock()
	if i.state.Kind != asynchost.StateReady {
		kind := i.state.Kind
		i.mu.Unlock()
		return asynchost.Outcome{}, fmt.Errorf("wazeroinst: RunFunc called while instance is %s, want Ready", kind)
	}
	fn, ok := i.exports[export]
	if !ok {
		i.mu.Unlock()
		return asynchost.Outcome{}, fmt.Errorf("wazeroinst: export %q not found", export)
	}
	s := &Suspender{out: make(chan stepMsg), in: make(chan any)}
	i.suspender = s
	i.state = asynchost.State{Kind: asynchost.StateRunning, AsyncContext: asyncContext}
	i.mu.Unlock()

	go runGuest(s, fn, args)

	return i.awaitStep(ctx, s)
}

func (i *Instance) ResumeWithVal(ctx context.Context, val any, asyncContext bool) (asynchost.Outcome, error) {
	i.mu.Lock()
	if i.state.Kind != asynchost.StateYielded {
		kind := i.state.Kind
		i.mu.Unlock()
		return asynchost.Outcome{}, fmt.Errorf("wazeroinst: ResumeWithVal called while instance is %s, want Yielded", kind)
	}
	s := i.suspender
	i.state = asynchost.State{Kind: asynchost.StateRunning, AsyncContext: asyncContext}
	i.mu.Unlock()

	if err := i.asyncify.StartRewind(ctx); err == nil {
		defer i.asyncify.StopRewind(ctx)
	}
	i.scheduler.ClearPending()

	s.in <- val
	return i.awaitStep(ctx, s)
}

func (i *Instance) YieldValExpectingVal(ctx context.Context, val any) any {
	i.mu.Lock()
	s := i.suspender
	i.mu.Unlock()

	// The opaque envelope itself travels over the generic channel
	// handshake, same as GoInstance; only the asyncify state register
	// transition is this backend's addition.
	_ = i.asyncify.StartUnwind(ctx)
	return s.Yield(val)
}

// Fail records a fatal termination and unwinds the calling goroutine
// back to runGuest's recover, mirroring asynchost.GoInstance.Fail.
func (i *Instance) Fail(err error) {
	panic(guestTerminationSignal{err: err})
}

type guestTerminationSignal struct{ err error }

func (i *Instance) awaitStep(ctx context.Context, s *Suspender) (asynchost.Outcome, error) {
	msg := <-s.out

	i.mu.Lock()
	defer i.mu.Unlock()

	if msg.done {
		i.state = asynchost.State{Kind: asynchost.StateFinished}
		if msg.err != nil {
			return asynchost.Outcome{}, msg.err
		}
		return asynchost.Outcome{Kind: asynchost.OutcomeReturned, Results: msg.results}, nil
	}

	_ = i.asyncify.StopUnwind(ctx)
	i.state = asynchost.State{Kind: asynchost.StateYielded}
	return asynchost.Outcome{Kind: asynchost.OutcomeYielded, Yield: msg.yield}, nil
}

func runGuest(s *Suspender, fn GuestFunc, args []uint64) {
	defer func() {
		if r := recover(); r != nil {
			if sig, ok := r.(guestTerminationSignal); ok {
				s.out <- stepMsg{done: true, err: sig.err}
				return
			}
			s.out <- stepMsg{done: true, err: fmt.Errorf("wazeroinst: guest function panicked: %v", r)}
		}
	}()

	results, err := fn(s, args)
	s.out <- stepMsg{done: true, results: results, err: err}
}
