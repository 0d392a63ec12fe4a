package wazeroinst

import (
	"context"
	"testing"

	"github.com/asynchost/wasm-runtime/asynchost"
	"github.com/asynchost/wasm-runtime/engine"
)

// TestInstance_StateTransitions exercises the Ready/Running/Yielded/
// Finished cycle against the real engine.Asyncify state register (in
// its no-exports, pure in-process mode, since no compiled module backs
// this test) rather than a private reimplementation of it.
func TestInstance_StateTransitions(t *testing.T) {
	inst := NewInstance(nil, "", map[string]GuestFunc{
		"echo": func(s *Suspender, args []uint64) ([]uint64, error) {
			got := s.Yield("pending")
			str, _ := got.(string)
			return []uint64{uint64(len(str))}, nil
		},
	})

	if inst.State().Kind != asynchost.StateReady {
		t.Fatalf("expected Ready, got %v", inst.State().Kind)
	}

	outcome, err := inst.RunFunc(context.Background(), "echo", nil, true)
	if err != nil {
		t.Fatalf("RunFunc returned error: %v", err)
	}
	if outcome.Kind != asynchost.OutcomeYielded {
		t.Fatalf("expected OutcomeYielded, got %v", outcome.Kind)
	}
	if inst.State().Kind != asynchost.StateYielded {
		t.Fatalf("expected Yielded, got %v", inst.State().Kind)
	}
	if got, _ := outcome.Yield.(string); got != "pending" {
		t.Fatalf("expected yielded value %q, got %v", "pending", outcome.Yield)
	}

	outcome, err = inst.ResumeWithVal(context.Background(), "hello", true)
	if err != nil {
		t.Fatalf("ResumeWithVal returned error: %v", err)
	}
	if outcome.Kind != asynchost.OutcomeReturned || len(outcome.Results) != 1 || outcome.Results[0] != 5 {
		t.Fatalf("expected returned [5], got %+v", outcome)
	}
	if inst.State().Kind != asynchost.StateFinished {
		t.Fatalf("expected Finished, got %v", inst.State().Kind)
	}
}

func TestInstance_HasExport(t *testing.T) {
	inst := NewInstance(nil, "", map[string]GuestFunc{
		"present": func(s *Suspender, args []uint64) ([]uint64, error) { return nil, nil },
	})
	if !inst.HasExport("present") {
		t.Fatal("expected HasExport(\"present\") to be true")
	}
	if inst.HasExport("absent") {
		t.Fatal("expected HasExport(\"absent\") to be false")
	}
}

// TestInstance_HasExport_RequiresWitDeclaration covers witText wiring:
// a registered GuestFunc with no matching WIT declaration must not
// resolve as an entrypoint.
func TestInstance_HasExport_RequiresWitDeclaration(t *testing.T) {
	witText := "export declared: func(a: s32) -> s32;"
	inst := NewInstance(nil, witText, map[string]GuestFunc{
		"declared":   func(s *Suspender, args []uint64) ([]uint64, error) { return nil, nil },
		"undeclared": func(s *Suspender, args []uint64) ([]uint64, error) { return nil, nil },
	})
	if !inst.HasExport("declared") {
		t.Fatal("expected HasExport(\"declared\") to be true")
	}
	if inst.HasExport("undeclared") {
		t.Fatal("expected HasExport(\"undeclared\") to be false: no WIT declaration")
	}
}

func TestInstance_RunFuncRejectsNonReady(t *testing.T) {
	inst := NewInstance(nil, "", map[string]GuestFunc{
		"hang": func(s *Suspender, args []uint64) ([]uint64, error) {
			s.Yield(nil)
			return nil, nil
		},
	})
	if _, err := inst.RunFunc(context.Background(), "hang", nil, true); err != nil {
		t.Fatalf("first RunFunc returned error: %v", err)
	}
	if _, err := inst.RunFunc(context.Background(), "hang", nil, true); err == nil {
		t.Fatal("expected RunFunc to reject a non-Ready instance")
	}
}

// TestFutureOp_Execute covers the engine.PendingOp adapter directly:
// grounded wiring, not reachable through Instance's own channel-based
// suspension path.
func TestFutureOp_Execute(t *testing.T) {
	op := futureOp{future: func(ctx context.Context) (any, error) {
		return uint64(99), nil
	}}
	var _ engine.PendingOp = op // futureOp must satisfy engine.PendingOp

	v, err := op.Execute(context.Background())
	if err != nil {
		t.Fatalf("Execute returned error: %v", err)
	}
	if v != 99 {
		t.Fatalf("expected 99, got %d", v)
	}
}

func TestFutureOp_ExecuteRejectsNonUint64(t *testing.T) {
	op := futureOp{future: func(ctx context.Context) (any, error) {
		return "not a uint64", nil
	}}
	if _, err := op.Execute(context.Background()); err == nil {
		t.Fatal("expected an error coercing a non-uint64 result")
	}
}
