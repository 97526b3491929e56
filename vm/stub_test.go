package vm

import (
	"errors"
	"testing"
)

func TestAllocationStubLifecycle(t *testing.T) {
	ctx := newTestContext(t)
	mustLoad(t, ctx, "class Point { var x = 0; var y = 0; }")
	cls := ctx.RootLibrary().LookupClass("Point")

	stub, err := ctx.GetOrCreateAllocationStub(cls)
	if err != nil {
		t.Fatalf("create stub: %v", err)
	}
	if !stub.IsCurrent() {
		t.Error("fresh stub should be current")
	}
	if stub.Generation() != 0 {
		t.Errorf("fresh class generation is %d", stub.Generation())
	}

	// Repeated requests return the installed stub.
	again, err := ctx.GetOrCreateAllocationStub(cls)
	if err != nil {
		t.Fatalf("reget stub: %v", err)
	}
	if again != stub {
		t.Error("expected the installed stub back")
	}

	obj := stub.Allocate()
	if obj.Class() != cls {
		t.Error("stub allocated wrong class")
	}
	if obj.NumSlots() < cls.NumSlots() {
		t.Errorf("allocated %d slots, layout needs %d", obj.NumSlots(), cls.NumSlots())
	}
}

func TestAllocationStubRequiresFinalizedClass(t *testing.T) {
	ctx := newTestContext(t)
	if _, err := ctx.LoadScript("test.cv", "class C { var x = 0; }"); err != nil {
		t.Fatalf("load: %v", err)
	}
	cls := ctx.RootLibrary().LookupClass("C")
	if _, err := ctx.GetOrCreateAllocationStub(cls); !errors.Is(err, ErrNotFinalized) {
		t.Fatalf("expected ErrNotFinalized, got %v", err)
	}
}

func TestDisableAdvancesGenerationOnlyWhenInstalled(t *testing.T) {
	ctx := newTestContext(t)
	mustLoad(t, ctx, "class C { var x = 0; }")
	cls := ctx.RootLibrary().LookupClass("C")

	// Disabling with no stub installed changes nothing.
	ctx.DisableAllocationStub(cls)
	if cls.Generation() != 0 {
		t.Fatalf("generation moved to %d without a stub", cls.Generation())
	}

	const rounds = 5
	for i := 0; i < rounds; i++ {
		if _, err := ctx.GetOrCreateAllocationStub(cls); err != nil {
			t.Fatalf("round %d create: %v", i, err)
		}
		ctx.DisableAllocationStub(cls)
		// Second disable in the same round is a no-op.
		ctx.DisableAllocationStub(cls)
	}
	if cls.Generation() != rounds {
		t.Errorf("generation is %d after %d effective disables", cls.Generation(), rounds)
	}
	if got := ctx.StubStats().Disabled.Load(); got != rounds {
		t.Errorf("Disabled counter is %d, want %d", got, rounds)
	}
}

func TestStaleStubIsNotCurrent(t *testing.T) {
	ctx := newTestContext(t)
	mustLoad(t, ctx, "class C { var x = 0; }")
	cls := ctx.RootLibrary().LookupClass("C")

	stub, err := ctx.GetOrCreateAllocationStub(cls)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	ctx.DisableAllocationStub(cls)
	if stub.IsCurrent() {
		t.Error("held copy of a disabled stub must observe itself stale")
	}

	fresh, err := ctx.GetOrCreateAllocationStub(cls)
	if err != nil {
		t.Fatalf("recreate: %v", err)
	}
	if fresh == stub {
		t.Error("a fresh stub should replace the disabled one")
	}
	if !fresh.IsCurrent() || fresh.Generation() != cls.Generation() {
		t.Error("fresh stub should carry the advanced generation")
	}
}

func TestAllocationSlowPathRegeneratesStub(t *testing.T) {
	ctx := newTestContext(t)
	mustLoad(t, ctx, `
class C { var x = 0; }
class M { static make() { return new C(); } }`)
	cls := ctx.RootLibrary().LookupClass("C")
	in := NewInterpreter(ctx)
	make := staticFn(t, ctx, "M", "make")

	// First allocation has no stub: slow path, stub compiled as a side
	// effect.
	if _, err := in.CallFunction(make); err != nil {
		t.Fatalf("first alloc: %v", err)
	}
	stats := ctx.StubStats()
	if stats.SlowPath.Load() != 1 || stats.FastPath.Load() != 0 {
		t.Fatalf("first alloc: fast=%d slow=%d", stats.FastPath.Load(), stats.SlowPath.Load())
	}
	if cls.stub.Load() == nil {
		t.Fatal("slow path should regenerate the stub")
	}

	// Second allocation goes through the regenerated stub.
	if _, err := in.CallFunction(make); err != nil {
		t.Fatalf("second alloc: %v", err)
	}
	if stats.FastPath.Load() != 1 {
		t.Errorf("second alloc should be fast, fast=%d", stats.FastPath.Load())
	}

	// Disable between allocations forces one more slow path.
	ctx.DisableAllocationStub(cls)
	if _, err := in.CallFunction(make); err != nil {
		t.Fatalf("third alloc: %v", err)
	}
	if stats.SlowPath.Load() != 2 {
		t.Errorf("alloc after disable should be slow, slow=%d", stats.SlowPath.Load())
	}
	if _, err := in.CallFunction(make); err != nil {
		t.Fatalf("fourth alloc: %v", err)
	}
	if stats.FastPath.Load() != 2 {
		t.Errorf("stub should be live again, fast=%d", stats.FastPath.Load())
	}
	if want := uint64(2); stats.Compiled.Load() != want {
		t.Errorf("Compiled counter is %d, want %d", stats.Compiled.Load(), want)
	}
}
