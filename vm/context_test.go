package vm

import (
	"strings"
	"testing"
)

func TestLoadScriptRegistersDeclarations(t *testing.T) {
	ctx := newTestContext(t)
	script, err := ctx.LoadScript("main.cv", `
class C { var x = 0; }
f(a) => a;
var g = 1;`)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if script.URL != "main.cv" {
		t.Errorf("script URL: %q", script.URL)
	}

	lib := ctx.RootLibrary()
	if lib.LookupClass("C") == nil {
		t.Error("class not registered")
	}
	if lib.LookupFunction("f") == nil {
		t.Error("function not registered")
	}
	if lib.LookupVar("g") == nil {
		t.Error("variable not registered")
	}
	// Top-level functions are also statics of the hidden owner class, so
	// bare calls inside other top-level functions resolve.
	if lib.OwnerClass().LookupStatic("f") == nil {
		t.Error("function not mirrored on the owner class")
	}
}

func TestLoadScriptRejectsDuplicates(t *testing.T) {
	cases := []struct {
		first, second, want string
	}{
		{"class C { }", "class C { }", "duplicate class"},
		{"f() => 1;", "f() => 2;", "duplicate function"},
		{"var v = 1;", "var v = 2;", "duplicate variable"},
	}
	for _, tc := range cases {
		ctx := newTestContext(t)
		if _, err := ctx.LoadScript("a.cv", tc.first); err != nil {
			t.Fatalf("first load: %v", err)
		}
		_, err := ctx.LoadScript("b.cv", tc.second)
		if err == nil || !strings.Contains(err.Error(), tc.want) {
			t.Errorf("%q twice: got %v, want %q", tc.first, err, tc.want)
		}
	}
}

func TestLoadScriptParseErrors(t *testing.T) {
	ctx := newTestContext(t)
	if _, err := ctx.LoadScript("bad.cv", "class {"); err == nil {
		t.Error("expected a parse error")
	}
}

func TestHelperAttachDetach(t *testing.T) {
	ctx := newTestContext(t)
	if ctx.NumHelpers() != 0 {
		t.Fatalf("fresh context has %d helpers", ctx.NumHelpers())
	}
	a := ctx.AttachHelper("one")
	b := ctx.AttachHelper("two")
	if ctx.NumHelpers() != 2 {
		t.Errorf("attached: %d", ctx.NumHelpers())
	}
	a.Detach()
	if ctx.NumHelpers() != 1 {
		t.Errorf("after first detach: %d", ctx.NumHelpers())
	}
	b.Detach()
	if ctx.NumHelpers() != 0 {
		t.Errorf("after second detach: %d", ctx.NumHelpers())
	}
}

func TestWriteBufferFlushesPerMutator(t *testing.T) {
	ctx := newTestContext(t)
	mustLoad(t, ctx, `
class P { var x = 0; }
class M {
  static poke() {
    var p = new P();
    p.x = 1;
    p.x = 2;
    return p.x;
  }
}`)
	in := NewInterpreter(ctx)
	if _, err := in.CallFunction(staticFn(t, ctx, "M", "poke")); err != nil {
		t.Fatalf("poke: %v", err)
	}
	// CallFunction flushes on the way out. Three slot stores ran: the
	// field initializer and the two assignments.
	if got := in.mutator.Flushed(); got != 3 {
		t.Errorf("flushed %d writes, want 3", got)
	}

	// A helper's buffer is separate and flushes when it detaches.
	scope := ctx.AttachHelper("scanner")
	scope.Mutator().recordWrite(NewObject(nil, 0))
	if scope.Mutator().Flushed() != 0 {
		t.Error("flush before detach")
	}
	scope.Detach()
	if scope.Mutator().Flushed() != 1 {
		t.Error("detach must flush the helper's buffer")
	}
}
