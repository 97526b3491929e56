package vm

import (
	"testing"
	"time"
)

func TestBackgroundOptimization(t *testing.T) {
	ctx := newTestContext(t)
	mustLoad(t, ctx, "class M { static e() { return 2 + 3 * 4; } }")
	fn := staticFn(t, ctx, "M", "e")

	in := NewInterpreter(ctx)
	baseline, err := in.CallFunction(fn)
	if err != nil {
		t.Fatalf("baseline call: %v", err)
	}

	task := ctx.ScheduleOptimization(fn)
	if task == nil {
		t.Fatal("expected a scheduled task")
	}
	if err := task.Wait(); err != nil {
		t.Fatalf("optimization: %v", err)
	}
	if !task.Done() {
		t.Error("task should report done after Wait")
	}
	if !fn.HasOptimizedCode() {
		t.Fatal("optimized code should be installed")
	}
	if fn.CurrentCode().Tier() != TierOptimized {
		t.Error("current code should be the optimized tier")
	}

	// Tiers agree on results.
	optimized, err := in.CallFunction(fn)
	if err != nil {
		t.Fatalf("optimized call: %v", err)
	}
	if !baseline.Equals(optimized) {
		t.Errorf("tiers disagree: %v vs %v", baseline, optimized)
	}
}

func TestScheduleOptimizationIsRedundantAfterTierUp(t *testing.T) {
	ctx := newTestContext(t)
	mustLoad(t, ctx, "class M { static e() { return 1; } }")
	fn := staticFn(t, ctx, "M", "e")
	if _, err := ctx.CompileUnoptimized(fn); err != nil {
		t.Fatalf("compile: %v", err)
	}

	task := ctx.ScheduleOptimization(fn)
	if task == nil {
		t.Fatal("first schedule should produce a task")
	}
	if err := task.Wait(); err != nil {
		t.Fatalf("optimization: %v", err)
	}
	if again := ctx.ScheduleOptimization(fn); again != nil {
		t.Error("scheduling an already optimized function should be a no-op")
	}
	if task.Function() != fn {
		t.Error("task should reference the scheduled function")
	}
}

func TestHotFunctionTiersUpAutomatically(t *testing.T) {
	ctx := NewContext(Options{Workers: 1, HotThreshold: 5})
	defer ctx.Close()
	if _, err := ctx.LoadScript("test.cv", "class M { static e() { return 2 + 2; } }"); err != nil {
		t.Fatalf("load: %v", err)
	}
	if err := ctx.FinalizeClasses(); err != nil {
		t.Fatalf("finalize: %v", err)
	}
	fn := staticFn(t, ctx, "M", "e")

	in := NewInterpreter(ctx)
	for i := 0; i < 10; i++ {
		if _, err := in.CallFunction(fn); err != nil {
			t.Fatalf("call %d: %v", i, err)
		}
	}

	deadline := time.Now().Add(5 * time.Second)
	for !fn.HasOptimizedCode() {
		if time.Now().After(deadline) {
			t.Fatal("function never tiered up")
		}
		time.Sleep(time.Millisecond)
	}
}

func TestTierUpFlushesPendingWrites(t *testing.T) {
	ctx := NewContext(Options{Workers: 1, HotThreshold: 1})
	defer ctx.Close()
	if _, err := ctx.LoadScript("test.cv", "class M { static e() { return 1; } }"); err != nil {
		t.Fatalf("load: %v", err)
	}
	if err := ctx.FinalizeClasses(); err != nil {
		t.Fatalf("finalize: %v", err)
	}
	fn := staticFn(t, ctx, "M", "e")

	in := NewInterpreter(ctx)
	in.mutator.recordWrite(NewObject(nil, 1))

	// The raw activation path skips the flush CallFunction performs on
	// exit, so an empty buffer afterwards means the tier-up trigger
	// drained it before handing the heap to the worker.
	if _, err := in.call(fn, Null, nil, nil); err != nil {
		t.Fatalf("call: %v", err)
	}
	if n := len(in.mutator.buffer); n != 0 {
		t.Errorf("%d writes still buffered after tier-up was scheduled", n)
	}
	if got := in.mutator.Flushed(); got != 1 {
		t.Errorf("flushed = %d, want 1", got)
	}
}

func TestBaselineCodeSurvivesTierUp(t *testing.T) {
	ctx := newTestContext(t)
	mustLoad(t, ctx, "class M { static e() { return 7; } }")
	fn := staticFn(t, ctx, "M", "e")

	baseline, err := ctx.CompileUnoptimized(fn)
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	task := ctx.ScheduleOptimization(fn)
	if task == nil {
		t.Fatal("expected a task")
	}
	if err := task.Wait(); err != nil {
		t.Fatalf("optimization: %v", err)
	}
	again, err := ctx.CompileUnoptimized(fn)
	if err != nil {
		t.Fatalf("recompile: %v", err)
	}
	if again != baseline {
		t.Error("baseline slot must never be replaced")
	}
}

func TestHelperDetachesAfterOptimization(t *testing.T) {
	ctx := NewContext(Options{Workers: 1, HotThreshold: 1 << 30})
	if _, err := ctx.LoadScript("test.cv", "class M { static e() { return 1; } }"); err != nil {
		t.Fatalf("load: %v", err)
	}
	if err := ctx.FinalizeClasses(); err != nil {
		t.Fatalf("finalize: %v", err)
	}
	fn := staticFn(t, ctx, "M", "e")
	if _, err := ctx.CompileUnoptimized(fn); err != nil {
		t.Fatalf("compile: %v", err)
	}

	task := ctx.ScheduleOptimization(fn)
	if task == nil {
		t.Fatal("expected a task")
	}
	if err := task.Wait(); err != nil {
		t.Fatalf("optimization: %v", err)
	}
	// Close drains the pool, so the helper is guaranteed gone after.
	ctx.Close()
	if n := ctx.NumHelpers(); n != 0 {
		t.Errorf("%d helpers still attached after close", n)
	}
}

func TestScheduleAfterCloseIsRejected(t *testing.T) {
	ctx := NewContext(Options{Workers: 1, HotThreshold: 1 << 30})
	if _, err := ctx.LoadScript("test.cv", "class M { static e() { return 1; } }"); err != nil {
		t.Fatalf("load: %v", err)
	}
	if err := ctx.FinalizeClasses(); err != nil {
		t.Fatalf("finalize: %v", err)
	}
	fn := staticFn(t, ctx, "M", "e")
	if _, err := ctx.CompileUnoptimized(fn); err != nil {
		t.Fatalf("compile: %v", err)
	}
	ctx.Close()

	if task := ctx.ScheduleOptimization(fn); task != nil {
		t.Error("closed contexts should not accept tasks")
	}
	// The function remains eligible for a direct foreground tier-up.
	if _, err := ctx.CompileOptimizedFunction(fn); err != nil {
		t.Errorf("foreground optimization: %v", err)
	}
}
