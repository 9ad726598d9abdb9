package tasks

import (
	"testing"
)

func TestTestTaskDependsOnBuild(t *testing.T) {
	reg := NewRegistry()
	if err := RegisterTest(reg, DefaultOptions()); err != nil {
		t.Fatalf("setup failed: %v", err)
	}

	task, ok := reg.Get("test")
	if !ok {
		t.Fatal("expected the test task to be registered")
	}
	if len(task.Deps) != 1 || task.Deps[0] != "build" {
		t.Fatalf("expected test to depend on build, got %v", task.Deps)
	}

	// test pulls in the whole build-all set
	for _, name := range []string{"clean", "lint", "build", "build-all"} {
		if !reg.Has(name) {
			t.Errorf("expected %s to be registered", name)
		}
	}
}

func TestTestTaskPassesWithoutTestFiles(t *testing.T) {
	dir := t.TempDir()

	reg := NewRegistry()
	if err := RegisterTest(reg, NewOptions(Options{Dir: dir})); err != nil {
		t.Fatalf("setup failed: %v", err)
	}

	ctx := NewRunContext(testCtx(), false, false)
	getRun(ctx).done["build"] = true

	if err := reg.Run(ctx, "test"); err != nil {
		t.Fatalf("expected a project without tests to pass: %v", err)
	}
}
