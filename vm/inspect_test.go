package vm

import (
	"strings"
	"testing"
)

func TestReportReflectsCompilationState(t *testing.T) {
	ctx := newTestContext(t)
	mustLoad(t, ctx, `
class Greeter {
  var who = "world";
  greet() { return "hello ${who}"; }
  static make() { return new Greeter(); }
}`)
	fn := staticFn(t, ctx, "Greeter", "make")

	rep := ReportFunction(fn, false)
	if rep.HasBaseline || rep.Invocations != 0 {
		t.Errorf("uncompiled function reports %+v", rep)
	}

	in := NewInterpreter(ctx)
	if _, err := in.CallFunction(fn); err != nil {
		t.Fatalf("call: %v", err)
	}
	rep = ReportFunction(fn, true)
	if !rep.HasBaseline || rep.Invocations != 1 || rep.CodeSize == 0 {
		t.Errorf("compiled function reports %+v", rep)
	}
	if !strings.Contains(rep.Disassembly, "NEW") {
		t.Errorf("disassembly missing NEW:\n%s", rep.Disassembly)
	}

	cls := ctx.RootLibrary().LookupClass("Greeter")
	crep := ReportClass(cls, false)
	if crep.Name != "Greeter" || crep.State != "finalized" || crep.NumSlots != 1 {
		t.Errorf("class report %+v", crep)
	}
	if len(crep.Methods) != 2 {
		t.Errorf("reported %d methods, want 2", len(crep.Methods))
	}
}

func TestReportRoundTripsThroughCBOR(t *testing.T) {
	ctx := newTestContext(t)
	mustLoad(t, ctx, `
class A { var x = 0; }
class B extends A { m() { return 1; } }`)

	rep := ctx.Report(false)
	if rep.NumClassIDs < 2 || len(rep.Classes) != 2 {
		t.Fatalf("report %+v", rep)
	}

	data, err := MarshalReport(rep)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	back, err := UnmarshalReport(data)
	if err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if back.NumClassIDs != rep.NumClassIDs || len(back.Classes) != len(rep.Classes) {
		t.Errorf("round trip changed the report: %+v vs %+v", back, rep)
	}
	for i := range rep.Classes {
		if back.Classes[i].Name != rep.Classes[i].Name || back.Classes[i].NumSlots != rep.Classes[i].NumSlots {
			t.Errorf("class %d changed: %+v vs %+v", i, back.Classes[i], rep.Classes[i])
		}
	}

	if _, err := UnmarshalReport([]byte("not cbor")); err == nil {
		t.Error("expected an unmarshal error")
	}
}
