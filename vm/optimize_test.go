package vm

import (
	"strings"
	"testing"
)

// optimize compiles both tiers of a zero-argument static method.
func optimize(t *testing.T, ctx *ExecutionContext, class, name string) (*CodeObject, *CodeObject) {
	t.Helper()
	fn := staticFn(t, ctx, class, name)
	base, err := ctx.CompileUnoptimized(fn)
	if err != nil {
		t.Fatalf("baseline: %v", err)
	}
	opt, err := ctx.CompileOptimizedFunction(fn)
	if err != nil {
		t.Fatalf("optimize: %v", err)
	}
	return base, opt
}

func TestOptimizeFoldsConstantArith(t *testing.T) {
	ctx := newTestContext(t)
	mustLoad(t, ctx, "class M { static e() { return 2 + 3; } }")
	base, opt := optimize(t, ctx, "M", "e")

	if len(opt.Bytecode()) != len(base.Bytecode()) {
		t.Fatal("rewrites must preserve code length")
	}
	if !strings.Contains(opt.Disassembly(), "PUSH_INT32 5") {
		t.Errorf("fold missing:\n%s", opt.Disassembly())
	}
	if strings.Contains(opt.Disassembly(), "ADD") {
		t.Errorf("ADD survived folding:\n%s", opt.Disassembly())
	}

	in := NewInterpreter(ctx)
	v, err := in.CallFunction(staticFn(t, ctx, "M", "e"))
	if err != nil {
		t.Fatalf("call: %v", err)
	}
	if v.AsInt() != 5 {
		t.Errorf("folded result: %v", v)
	}
}

func TestOptimizeFoldsComparisons(t *testing.T) {
	ctx := newTestContext(t)
	mustLoad(t, ctx, "class M { static e() { return 2 < 3; } }")
	_, opt := optimize(t, ctx, "M", "e")

	if !strings.Contains(opt.Disassembly(), "PUSH_TRUE") {
		t.Errorf("comparison not folded:\n%s", opt.Disassembly())
	}

	in := NewInterpreter(ctx)
	v, err := in.CallFunction(staticFn(t, ctx, "M", "e"))
	if err != nil {
		t.Fatalf("call: %v", err)
	}
	if !v.IsBool() || !v.AsBool() {
		t.Errorf("folded comparison: %v", v)
	}
}

func TestOptimizeThreadsConstantJumps(t *testing.T) {
	ctx := newTestContext(t)
	mustLoad(t, ctx, `
class M {
  static e() {
    if (1 < 2) { return "taken"; }
    return "not taken";
  }
}`)
	_, opt := optimize(t, ctx, "M", "e")

	// The comparison folds to PUSH_TRUE, then the conditional jump resolves.
	if strings.Contains(opt.Disassembly(), "JUMP_FALSE") {
		t.Errorf("conditional jump survived threading:\n%s", opt.Disassembly())
	}

	in := NewInterpreter(ctx)
	v, err := in.CallFunction(staticFn(t, ctx, "M", "e"))
	if err != nil {
		t.Fatalf("call: %v", err)
	}
	if v.AsString() != "taken" {
		t.Errorf("threaded branch: %q", v.AsString())
	}
}

func TestOptimizeElidesPushPop(t *testing.T) {
	ctx := newTestContext(t)
	mustLoad(t, ctx, "class M { static e() { 42; return 1; } }")
	base, opt := optimize(t, ctx, "M", "e")

	if !strings.Contains(base.Disassembly(), "POP") {
		t.Fatalf("expected a POP in baseline:\n%s", base.Disassembly())
	}
	if strings.Contains(opt.Disassembly(), "POP") {
		t.Errorf("POP survived elision:\n%s", opt.Disassembly())
	}
}

func TestOptimizedCodeSharesPools(t *testing.T) {
	ctx := newTestContext(t)
	mustLoad(t, ctx, `class M { static e() { return "hello " + "world"; } }`)
	base, opt := optimize(t, ctx, "M", "e")

	if opt.Tier() != TierOptimized || base.Tier() != TierUnoptimized {
		t.Fatal("tier tags wrong")
	}
	if base.LiteralAt(0) != opt.LiteralAt(0) {
		t.Error("derived code should share the literal pool")
	}
	if opt.Function() != base.Function() {
		t.Error("both tiers belong to the same function")
	}
}

func TestOptimizeIsIdempotent(t *testing.T) {
	ctx := newTestContext(t)
	mustLoad(t, ctx, "class M { static e() { return 1 + 1; } }")
	fn := staticFn(t, ctx, "M", "e")

	first, err := ctx.CompileOptimizedFunction(fn)
	if err != nil {
		t.Fatalf("optimize: %v", err)
	}
	second, err := ctx.CompileOptimizedFunction(fn)
	if err != nil {
		t.Fatalf("reoptimize: %v", err)
	}
	if first != second {
		t.Error("repeated optimization should return the installed code")
	}
}

func TestOptimizeBehaviorUnchangedOnBranchyCode(t *testing.T) {
	src := `
class M {
  static classify(n) {
    if (n < 0) { return "negative"; }
    if (n == 0) { return "zero"; }
    var total = 0;
    var i = 0;
    while (i < n) {
      total = total + i * 2;
      i = i + 1;
    }
    return "sum ${total}";
  }
}`
	ctx := newTestContext(t)
	mustLoad(t, ctx, src)
	fn := staticFn(t, ctx, "M", "classify")
	in := NewInterpreter(ctx)

	inputs := []int64{-4, 0, 1, 7}
	baseline := make([]Value, len(inputs))
	for i, n := range inputs {
		v, err := in.CallFunction(fn, IntValue(n))
		if err != nil {
			t.Fatalf("baseline classify(%d): %v", n, err)
		}
		baseline[i] = v
	}

	if _, err := ctx.CompileOptimizedFunction(fn); err != nil {
		t.Fatalf("optimize: %v", err)
	}
	for i, n := range inputs {
		v, err := in.CallFunction(fn, IntValue(n))
		if err != nil {
			t.Fatalf("optimized classify(%d): %v", n, err)
		}
		if !v.Equals(baseline[i]) {
			t.Errorf("classify(%d): %v then %v", n, baseline[i], v)
		}
	}
}
