package tasks

import (
	"context"
	"strings"
	"testing"

	"github.com/rotisserie/eris"
)

func TestRegisterTaskRejectsDuplicates(t *testing.T) {
	reg := NewRegistry()

	firstRan := false
	err := reg.Register("compile", nil, func(context.Context) error {
		firstRan = true
		return nil
	})
	if err != nil {
		t.Fatalf("first registration failed: %v", err)
	}

	err = reg.Register("compile", nil, func(context.Context) error {
		t.Error("the second registration must never run")
		return nil
	})
	if !eris.Is(err, ErrDuplicateTask) {
		t.Fatalf("expected ErrDuplicateTask, got %v", err)
	}

	if reg.Len() != 1 {
		t.Fatalf("expected 1 task, got %d", reg.Len())
	}

	if err := reg.Run(testCtx(), "compile"); err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if !firstRan {
		t.Error("the first registration should have stayed in place")
	}
}

func TestRegisterTaskRejectsEmptyName(t *testing.T) {
	reg := NewRegistry()
	if err := reg.Register("", nil, nil); err == nil {
		t.Fatal("expected an error for the empty name")
	}
}

func TestRunUnknownTask(t *testing.T) {
	reg := NewRegistry()
	err := reg.Run(testCtx(), "nope")
	if !eris.Is(err, ErrTaskNotFound) {
		t.Fatalf("expected ErrTaskNotFound, got %v", err)
	}
}

func TestRunExecutesDepsFirst(t *testing.T) {
	reg := NewRegistry()

	order := []string{}
	record := func(name string) ActionFunc {
		return func(context.Context) error {
			order = append(order, name)
			return nil
		}
	}

	reg.Register("a", nil, record("a"))
	reg.Register("b", []string{"a"}, record("b"))
	reg.Register("c", []string{"b"}, record("c"))

	if err := reg.Run(testCtx(), "c"); err != nil {
		t.Fatalf("run failed: %v", err)
	}

	if strings.Join(order, " ") != "a b c" {
		t.Fatalf("expected a b c, got %v", order)
	}
}

func TestRunSharedDepRunsOnce(t *testing.T) {
	reg := NewRegistry()

	runs := 0
	reg.Register("common", nil, func(context.Context) error {
		runs++
		return nil
	})
	reg.Register("left", []string{"common"}, nil)
	reg.Register("right", []string{"common"}, nil)
	reg.Register("top", []string{"left", "right"}, nil)

	if err := reg.Run(testCtx(), "top"); err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if runs != 1 {
		t.Fatalf("expected the shared dependency to run once, got %d runs", runs)
	}
}

func TestRunMemoizesPerRunContext(t *testing.T) {
	reg := NewRegistry()

	runs := 0
	reg.Register("once", nil, func(context.Context) error {
		runs++
		return nil
	})

	ctx := NewRunContext(testCtx(), false, false)
	if err := reg.Run(ctx, "once"); err != nil {
		t.Fatalf("first run failed: %v", err)
	}
	if err := reg.Run(ctx, "once"); err != nil {
		t.Fatalf("repeated run failed: %v", err)
	}
	if runs != 1 {
		t.Fatalf("expected one execution within the same run, got %d", runs)
	}

	ctx = NewRunContext(testCtx(), false, false)
	if err := reg.Run(ctx, "once"); err != nil {
		t.Fatalf("fresh run failed: %v", err)
	}
	if runs != 2 {
		t.Fatalf("expected a fresh run to execute again, got %d runs", runs)
	}
}

func TestRunReportsMissingDep(t *testing.T) {
	reg := NewRegistry()
	reg.Register("b", []string{"a"}, nil)

	err := reg.Run(testCtx(), "b")
	if !eris.Is(err, ErrTaskNotFound) {
		t.Fatalf("expected ErrTaskNotFound, got %v", err)
	}
}

func TestRunAbortsDependentsOnFailure(t *testing.T) {
	reg := NewRegistry()

	boom := eris.New("boom")
	reg.Register("a", nil, func(context.Context) error { return boom })

	depRan := false
	reg.Register("b", []string{"a"}, func(context.Context) error {
		depRan = true
		return nil
	})

	err := reg.Run(testCtx(), "b")
	if !eris.Is(err, boom) {
		t.Fatalf("expected the dependency failure to propagate, got %v", err)
	}
	if !strings.Contains(err.Error(), "due to its dependency a") {
		t.Errorf("expected the failing dependency to be named: %v", err)
	}
	if depRan {
		t.Error("the dependent action must not run after a dependency failure")
	}
}

func TestRunDetectsRecursion(t *testing.T) {
	reg := NewRegistry()
	reg.Register("a", []string{"b"}, nil)
	reg.Register("b", []string{"a"}, nil)

	err := reg.Run(testCtx(), "a")
	if !eris.Is(err, ErrTaskRecursion) {
		t.Fatalf("expected ErrTaskRecursion, got %v", err)
	}
}

func TestRunSequenceStopsAtFirstFailure(t *testing.T) {
	reg := NewRegistry()

	order := []string{}
	reg.Register("one", nil, func(context.Context) error {
		order = append(order, "one")
		return nil
	})
	reg.Register("two", nil, func(context.Context) error {
		order = append(order, "two")
		return eris.New("boom")
	})
	reg.Register("three", nil, func(context.Context) error {
		order = append(order, "three")
		return nil
	})

	err := reg.RunSequence(testCtx(), "one", "two", "three")
	if err == nil {
		t.Fatal("expected the failure to propagate")
	}
	if strings.Join(order, " ") != "one two" {
		t.Fatalf("expected the sequence to stop after two, got %v", order)
	}
}

func TestRunSequenceUnknownName(t *testing.T) {
	reg := NewRegistry()
	err := reg.RunSequence(testCtx(), "nope")
	if !eris.Is(err, ErrTaskNotFound) {
		t.Fatalf("expected ErrTaskNotFound, got %v", err)
	}
}

func TestRunChecksContextCancellation(t *testing.T) {
	reg := NewRegistry()

	ran := false
	reg.Register("a", nil, func(context.Context) error {
		ran = true
		return nil
	})

	ctx, cancel := context.WithCancel(testCtx())
	cancel()

	if err := reg.Run(ctx, "a"); err == nil {
		t.Fatal("expected the cancelled context to abort the run")
	}
	if ran {
		t.Error("the action must not run after cancellation")
	}
}

func TestNamesKeepsRegistrationOrder(t *testing.T) {
	reg := NewRegistry()
	reg.Register("zeta", nil, nil)
	reg.Register("alpha", nil, nil)

	names := reg.Names()
	if len(names) != 2 || names[0] != "zeta" || names[1] != "alpha" {
		t.Fatalf("expected registration order, got %v", names)
	}
}
