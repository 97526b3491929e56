package vm

import (
	"errors"
	"strings"
	"testing"
)

// run compiles and calls a zero-argument static entry point.
func run(t *testing.T, src, class, fn string) Value {
	t.Helper()
	ctx := newTestContext(t)
	mustLoad(t, ctx, src)
	in := NewInterpreter(ctx)
	v, err := in.CallFunction(staticFn(t, ctx, class, fn))
	if err != nil {
		t.Fatalf("run %s.%s: %v", class, fn, err)
	}
	return v
}

func TestInterpArithmetic(t *testing.T) {
	cases := []struct {
		expr string
		want int64
	}{
		{"1 + 2", 3},
		{"10 - 4", 6},
		{"6 * 7", 42},
		{"13 / 4", 3},
		{"13 % 4", 1},
		{"2 + 3 * 4", 14},
		{"(2 + 3) * 4", 20},
		{"0 - 5", -5},
	}
	for _, tc := range cases {
		v := run(t, "class M { static e() { return "+tc.expr+"; } }", "M", "e")
		if !v.IsInt() || v.AsInt() != tc.want {
			t.Errorf("%s = %v, want %d", tc.expr, v, tc.want)
		}
	}
}

func TestInterpFloatPromotion(t *testing.T) {
	v := run(t, "class M { static e() { return 1 + 0.5; } }", "M", "e")
	if !v.IsFloat() || v.AsFloat() != 1.5 {
		t.Errorf("expected 1.5, got %v", v)
	}
}

func TestInterpDivisionByZero(t *testing.T) {
	ctx := newTestContext(t)
	mustLoad(t, ctx, "class M { static e() { return 1 / 0; } }")
	in := NewInterpreter(ctx)
	_, err := in.CallFunction(staticFn(t, ctx, "M", "e"))
	var re *RuntimeError
	if !errors.As(err, &re) {
		t.Fatalf("expected RuntimeError, got %v", err)
	}
}

func TestInterpComparisons(t *testing.T) {
	cases := []struct {
		expr string
		want bool
	}{
		{"1 < 2", true},
		{"2 <= 2", true},
		{"3 > 4", false},
		{"4 >= 5", false},
		{"1 == 1", true},
		{"1 != 1", false},
		{"'a' == 'a'", true},
		{"1 == 1.0", true},
	}
	for _, tc := range cases {
		v := run(t, "class M { static e() { return "+tc.expr+"; } }", "M", "e")
		if !v.IsBool() || v.AsBool() != tc.want {
			t.Errorf("%s = %v, want %v", tc.expr, v, tc.want)
		}
	}
}

func TestInterpControlFlow(t *testing.T) {
	src := `
class M {
  static sum(n) {
    var total = 0;
    var i = 1;
    while (i <= n) {
      total = total + i;
      i = i + 1;
    }
    return total;
  }
  static pick(b) {
    if (b) { return "yes"; } else { return "no"; }
  }
}`
	ctx := newTestContext(t)
	mustLoad(t, ctx, src)
	in := NewInterpreter(ctx)

	v, err := in.CallFunction(staticFn(t, ctx, "M", "sum"), IntValue(10))
	if err != nil {
		t.Fatalf("sum: %v", err)
	}
	if v.AsInt() != 55 {
		t.Errorf("sum(10) = %v", v)
	}

	v, err = in.CallFunction(staticFn(t, ctx, "M", "pick"), True)
	if err != nil {
		t.Fatalf("pick: %v", err)
	}
	if v.AsString() != "yes" {
		t.Errorf("pick(true) = %v", v)
	}
}

func TestInterpConditionMustBeBool(t *testing.T) {
	ctx := newTestContext(t)
	mustLoad(t, ctx, "class M { static e() { if (1) { return 1; } return 2; } }")
	in := NewInterpreter(ctx)
	_, err := in.CallFunction(staticFn(t, ctx, "M", "e"))
	if err == nil || !strings.Contains(err.Error(), "bool") {
		t.Fatalf("expected a boolean condition error, got %v", err)
	}
}

func TestInterpStringInterpolation(t *testing.T) {
	src := `class M { static e() { var n = 3; return "n is ${n}, next ${n + 1}."; } }`
	v := run(t, src, "M", "e")
	if v.AsString() != "n is 3, next 4." {
		t.Errorf("interpolation: %q", v.AsString())
	}
}

func TestInterpInstanceFieldsAndMethods(t *testing.T) {
	src := `
class Counter {
  var count = 0;
  bump() { this.count = this.count + 1; return this.count; }
  get value => count;
  static make() {
    var c = new Counter();
    c.bump();
    c.bump();
    return c.value;
  }
}`
	v := run(t, src, "Counter", "make")
	if v.AsInt() != 2 {
		t.Errorf("expected 2 bumps, got %v", v)
	}
}

func TestInterpInheritanceAndOverride(t *testing.T) {
	src := `
class Animal {
  speak() { return "..."; }
  describe() { return this.speak(); }
}
class Dog extends Animal {
  speak() { return "woof"; }
}
class M {
  static e() { return new Dog().describe(); }
}`
	v := run(t, src, "M", "e")
	if v.AsString() != "woof" {
		t.Errorf("override through inherited caller: %q", v.AsString())
	}
}

func TestInterpFieldInitializersRunRootFirst(t *testing.T) {
	src := `
class Base { var a = 1; }
class Derived extends Base { var b = 2; }
class M {
  static e() {
    var d = new Derived();
    return d.a * 10 + d.b;
  }
}`
	v := run(t, src, "M", "e")
	if v.AsInt() != 12 {
		t.Errorf("layout/init across inheritance: %v", v)
	}
}

func TestInterpClosuresCapture(t *testing.T) {
	src := `
class M {
  static e() {
    var x = 3;
    var f = () => x + 4;
    x = 100;
    return f();
  }
}`
	// Captures are snapshots taken at creation.
	v := run(t, src, "M", "e")
	if v.AsInt() != 7 {
		t.Errorf("capture by value: %v", v)
	}
}

func TestInterpNestedClosures(t *testing.T) {
	src := `
class M {
  static adder(n) {
    return (m) => n + m;
  }
  static e() {
    var add5 = M.adder(5);
    return add5(37);
  }
}`
	v := run(t, src, "M", "e")
	if v.AsInt() != 42 {
		t.Errorf("closure over parameter: %v", v)
	}
}

func TestInterpRecursion(t *testing.T) {
	src := `
class M {
  static fib(n) {
    if (n < 2) { return n; }
    return M.fib(n - 1) + M.fib(n - 2);
  }
}`
	ctx := newTestContext(t)
	mustLoad(t, ctx, src)
	in := NewInterpreter(ctx)
	v, err := in.CallFunction(staticFn(t, ctx, "M", "fib"), IntValue(15))
	if err != nil {
		t.Fatalf("fib: %v", err)
	}
	if v.AsInt() != 610 {
		t.Errorf("fib(15) = %v", v)
	}
}

func TestInterpCallDepthLimit(t *testing.T) {
	src := "class M { static loop() { return M.loop(); } }"
	ctx := newTestContext(t)
	mustLoad(t, ctx, src)
	in := NewInterpreter(ctx)
	_, err := in.CallFunction(staticFn(t, ctx, "M", "loop"))
	if err == nil || !strings.Contains(err.Error(), "overflow") {
		t.Fatalf("expected a stack overflow error, got %v", err)
	}
}

func TestInterpNullMemberAccess(t *testing.T) {
	src := "class M { static e() { var x = null; return x.foo; } }"
	ctx := newTestContext(t)
	mustLoad(t, ctx, src)
	in := NewInterpreter(ctx)
	_, err := in.CallFunction(staticFn(t, ctx, "M", "e"))
	var re *RuntimeError
	if !errors.As(err, &re) {
		t.Fatalf("expected RuntimeError, got %v", err)
	}
}

func TestInterpLazyGlobalInit(t *testing.T) {
	src := `
var answer = 6 * 7;
class M { static e() { return answer; } }`
	v := run(t, src, "M", "e")
	if v.AsInt() != 42 {
		t.Errorf("lazy global: %v", v)
	}
}

func TestInterpCyclicGlobalInit(t *testing.T) {
	src := `
var a = b + 1;
var b = a + 1;
class M { static e() { return a; } }`
	ctx := newTestContext(t)
	mustLoad(t, ctx, src)
	in := NewInterpreter(ctx)
	_, err := in.CallFunction(staticFn(t, ctx, "M", "e"))
	if err == nil || !strings.Contains(err.Error(), "cyclic") {
		t.Fatalf("expected cyclic init error, got %v", err)
	}
}

func TestInterpStaticVars(t *testing.T) {
	src := `
class M {
  static var counter = 0;
  static next() {
    M.counter = M.counter + 1;
    return M.counter;
  }
}`
	ctx := newTestContext(t)
	mustLoad(t, ctx, src)
	in := NewInterpreter(ctx)
	fn := staticFn(t, ctx, "M", "next")
	for want := int64(1); want <= 3; want++ {
		v, err := in.CallFunction(fn)
		if err != nil {
			t.Fatalf("next: %v", err)
		}
		if v.AsInt() != want {
			t.Errorf("call %d returned %v", want, v)
		}
	}
}

func TestInterpLogicalShortCircuit(t *testing.T) {
	src := `
class M {
  static var touched = false;
  static mark() { M.touched = true; return true; }
  static e() { return false && M.mark(); }
}`
	ctx := newTestContext(t)
	mustLoad(t, ctx, src)
	in := NewInterpreter(ctx)
	v, err := in.CallFunction(staticFn(t, ctx, "M", "e"))
	if err != nil {
		t.Fatalf("e: %v", err)
	}
	if v.AsBool() {
		t.Error("false && x must be false")
	}
	cls := ctx.RootLibrary().LookupClass("M")
	gv := cls.LookupStaticVar("touched")
	if gv == nil {
		t.Fatal("static var not registered")
	}
	if got, ok := gv.Peek(); ok && got.AsBool() {
		t.Error("right operand must not be evaluated")
	}
}
