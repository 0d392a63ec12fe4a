package asynchost

import (
	"context"
	"fmt"
	"sync"
)

// Instance is the opaque instance execution primitive this package
// consumes. Bit layout, the guest sandbox, and the stack switch mechanism
// itself are someone else's problem; this interface only needs
// run/yield/resume semantics.
//
// Implementations must recover any panic raised by their own Fail
// (terminationSignal) inside RunFunc/ResumeWithVal and turn it into a
// normal (Outcome{}, err) return, mirroring how a real Wasm instance's
// trap machinery turns a host-side panic into a synchronous error at the
// call boundary.
type Instance interface {
	// State reports the instance's current position in the state machine.
	State() State
	// IsYielded is a cheap shortcut for State().Kind == StateYielded.
	IsYielded() bool
	// HasExport reports whether name can be resolved as an entrypoint.
	HasExport(name string) bool
	// RunFunc starts the instance at export with args. Valid only from
	// StateReady.
	RunFunc(ctx context.Context, export string, args []uint64, asyncContext bool) (Outcome, error)
	// ResumeWithVal resumes a Yielded instance with val. Valid only from
	// StateYielded.
	ResumeWithVal(ctx context.Context, val any, asyncContext bool) (Outcome, error)
	// YieldValExpectingVal is called from within a step (i.e. from guest
	// code via a hostcall) to suspend and wait for a resume value. It
	// causes the enclosing RunFunc/ResumeWithVal call to return
	// OutcomeYielded{Yield: val}.
	YieldValExpectingVal(ctx context.Context, val any) any
	// Fail records a fatal, protocol-level termination and unwinds the
	// guest call stack back to the instance's run/resume boundary. Only
	// BlockOn calls this.
	Fail(err error)
}

// terminationSignal is the panic value Fail raises to unwind guest code
// back to whichever Instance method is executing it.
type terminationSignal struct {
	err error
}

// Program is guest code run by a GoInstance. It stands in for compiled
// guest bytecode executing behind an opaque stack-switch capability
// treated as external: it runs on its own goroutine and can suspend
// through y.
type Program func(y *Yielder, args []uint64) ([]uint64, error)

// Yielder is the guest-side half of the yield channel handed to a running
// Program. It is the only way a Program can suspend back to whatever is
// stepping the GoInstance.
type Yielder struct {
	out chan stepMsg
	in  chan any
}

// Yield suspends the calling Program, handing val across the yield
// channel, and blocks until the driving goroutine resumes it with a
// value.
func (y *Yielder) Yield(val any) any {
	y.out <- stepMsg{yield: val}
	return <-y.in
}

type stepMsg struct {
	done    bool
	results []uint64
	yield   any
	err     error
}

// GoInstance is a goroutine-backed Instance: the Program body runs on its
// own goroutine and exchanges step messages with whoever calls RunFunc,
// ResumeWithVal, and YieldValExpectingVal through a pair of unbuffered
// channels - simulating, in pure Go, the native stack switch a real Wasm
// guest gets for free from its runtime. This is the Instance
// implementation exercised throughout this package's tests.
type GoInstance struct {
	mu      sync.Mutex
	exports map[string]Program
	state   State
	yielder *Yielder
}

// NewGoInstance creates an instance whose entrypoints are exports.
func NewGoInstance(exports map[string]Program) *GoInstance {
	return &GoInstance{
		exports: exports,
		state:   State{Kind: StateReady},
	}
}

func (g *GoInstance) State() State {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state
}

func (g *GoInstance) IsYielded() bool {
	return g.State().Kind == StateYielded
}

func (g *GoInstance) HasExport(name string) bool {
	_, ok := g.exports[name]
	return ok
}

func (g *GoInstance) RunFunc(ctx context.Context, export string, args []uint64, asyncContext bool) (Outcome, error) {
	g.mu.Lock()
	if g.state.Kind != StateReady {
		kind := g.state.Kind
		g.mu.Unlock()
		return Outcome{}, fmt.Errorf("asynchost: RunFunc called while instance is %s, want Ready", kind)
	}
	prog, ok := g.exports[export]
	if !ok {
		g.mu.Unlock()
		return Outcome{}, fmt.Errorf("asynchost: export %q not found", export)
	}
	yielder := &Yielder{out: make(chan stepMsg), in: make(chan any)}
	g.yielder = yielder
	g.state = State{Kind: StateRunning, AsyncContext: asyncContext}
	g.mu.Unlock()

	go runProgram(yielder, prog, args)

	return g.awaitStep(yielder)
}

func (g *GoInstance) ResumeWithVal(ctx context.Context, val any, asyncContext bool) (Outcome, error) {
	g.mu.Lock()
	if g.state.Kind != StateYielded {
		kind := g.state.Kind
		g.mu.Unlock()
		return Outcome{}, fmt.Errorf("asynchost: ResumeWithVal called while instance is %s, want Yielded", kind)
	}
	yielder := g.yielder
	g.state = State{Kind: StateRunning, AsyncContext: asyncContext}
	g.mu.Unlock()

	yielder.in <- val
	return g.awaitStep(yielder)
}

func (g *GoInstance) YieldValExpectingVal(ctx context.Context, val any) any {
	g.mu.Lock()
	yielder := g.yielder
	g.mu.Unlock()
	return yielder.Yield(val)
}

// Fail records a fatal termination and unwinds the calling goroutine (the
// guest program's goroutine) back to runProgram's recover.
func (g *GoInstance) Fail(err error) {
	panic(terminationSignal{err: err})
}

func (g *GoInstance) awaitStep(yielder *Yielder) (Outcome, error) {
	msg := <-yielder.out

	g.mu.Lock()
	defer g.mu.Unlock()

	if msg.done {
		g.state = State{Kind: StateFinished}
		if msg.err != nil {
			return Outcome{}, msg.err
		}
		return Outcome{Kind: OutcomeReturned, Results: msg.results}, nil
	}

	g.state = State{Kind: StateYielded}
	return Outcome{Kind: OutcomeYielded, Yield: msg.yield}, nil
}

func runProgram(y *Yielder, prog Program, args []uint64) {
	defer func() {
		if r := recover(); r != nil {
			if sig, ok := r.(terminationSignal); ok {
				y.out <- stepMsg{done: true, err: sig.err}
				return
			}
			y.out <- stepMsg{done: true, err: fmt.Errorf("asynchost: guest program panicked: %v", r)}
		}
	}()

	results, err := prog(y, args)
	y.out <- stepMsg{done: true, results: results, err: err}
}
