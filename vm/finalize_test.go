package vm

import (
	"errors"
	"strings"
	"testing"

	"github.com/hashicorp/go-multierror"
)

func TestFinalizeLaysOutInheritedSlots(t *testing.T) {
	ctx := newTestContext(t)
	mustLoad(t, ctx, `
class A { var a1 = 0; var a2 = 0; }
class B extends A { var b1 = 0; }
class C extends B { var c1 = 0; var c2 = 0; }`)

	a := ctx.RootLibrary().LookupClass("A")
	b := ctx.RootLibrary().LookupClass("B")
	c := ctx.RootLibrary().LookupClass("C")

	if a.NumSlots() != 2 || b.NumSlots() != 3 || c.NumSlots() != 5 {
		t.Fatalf("slot counts: A=%d B=%d C=%d", a.NumSlots(), b.NumSlots(), c.NumSlots())
	}
	// Superclass fields keep their slots in subclasses.
	for _, tc := range []struct {
		field string
		slot  int
	}{
		{"a1", 0}, {"a2", 1}, {"b1", 2}, {"c1", 3}, {"c2", 4},
	} {
		slot, ok := c.FieldSlot(tc.field)
		if !ok {
			t.Errorf("field %s not visible on C", tc.field)
			continue
		}
		if slot != tc.slot {
			t.Errorf("field %s at slot %d, want %d", tc.field, slot, tc.slot)
		}
	}
}

func TestFinalizeCyclicInheritance(t *testing.T) {
	ctx := newTestContext(t)
	if _, err := ctx.LoadScript("test.cv", `
class A extends B { }
class B extends A { }`); err != nil {
		t.Fatalf("load: %v", err)
	}
	err := ctx.FinalizeClasses()
	if err == nil || !strings.Contains(err.Error(), "cyclic inheritance") {
		t.Fatalf("expected a cycle error, got %v", err)
	}
	if ctx.RootLibrary().LookupClass("A").IsFinalized() {
		t.Error("A must not be finalized")
	}
}

func TestFinalizeUnknownSuperclassIsRetryable(t *testing.T) {
	ctx := newTestContext(t)
	if _, err := ctx.LoadScript("a.cv", "class Derived extends Base { var d = 1; }"); err != nil {
		t.Fatalf("load: %v", err)
	}
	err := ctx.FinalizeClasses()
	if err == nil || !strings.Contains(err.Error(), "unknown superclass") {
		t.Fatalf("expected unknown superclass, got %v", err)
	}
	d := ctx.RootLibrary().LookupClass("Derived")
	if d.State() != ClassPending {
		t.Fatalf("failed class is %s, want pending", d.State())
	}

	// Loading the missing superclass makes the retry succeed.
	if _, err := ctx.LoadScript("b.cv", "class Base { var b = 0; }"); err != nil {
		t.Fatalf("load base: %v", err)
	}
	if err := ctx.FinalizeClasses(); err != nil {
		t.Fatalf("retry: %v", err)
	}
	if !d.IsFinalized() {
		t.Fatal("retry should finalize the class")
	}
	if d.Superclass() != ctx.RootLibrary().LookupClass("Base") {
		t.Error("superclass not resolved")
	}
	if d.NumSlots() != 2 {
		t.Errorf("slots after retry: %d", d.NumSlots())
	}
}

func TestFinalizeCollectsAllFailures(t *testing.T) {
	ctx := newTestContext(t)
	if _, err := ctx.LoadScript("test.cv", `
class A extends Missing1 { }
class B extends Missing2 { }
class OK { var x = 0; }`); err != nil {
		t.Fatalf("load: %v", err)
	}
	err := ctx.FinalizeClasses()
	if err == nil {
		t.Fatal("expected errors")
	}
	var merr *multierror.Error
	if !errors.As(err, &merr) {
		t.Fatalf("expected multierror, got %T", err)
	}
	if len(merr.Errors) != 2 {
		t.Errorf("collected %d errors, want 2", len(merr.Errors))
	}
	// Independent classes still finalize.
	if !ctx.RootLibrary().LookupClass("OK").IsFinalized() {
		t.Error("unaffected class should finalize")
	}
}

func TestFinalizeDuplicateMembers(t *testing.T) {
	cases := []struct {
		src  string
		want string
	}{
		{"class C { var x = 0; var x = 1; }", "duplicate field"},
		{"class C { m() { return 1; } m() { return 2; } }", "duplicate method"},
		{"class C { static m() { return 1; } static m() { return 2; } }", "duplicate static method"},
		{"class C { static var s = 0; static var s = 1; }", "duplicate static field"},
	}
	for _, tc := range cases {
		ctx := newTestContext(t)
		if _, err := ctx.LoadScript("test.cv", tc.src); err != nil {
			t.Fatalf("load %q: %v", tc.src, err)
		}
		err := ctx.FinalizeClasses()
		if err == nil || !strings.Contains(err.Error(), tc.want) {
			t.Errorf("%q: got %v, want %q", tc.src, err, tc.want)
		}
	}
}

func TestClassTableReusesSyntheticIDs(t *testing.T) {
	table := NewClassTable()
	a := &Class{name: "A"}
	b := &Class{name: "B"}
	table.Register(a)
	table.Register(b)
	if a.ID() != 0 || b.ID() != 1 {
		t.Fatalf("dense IDs: a=%d b=%d", a.ID(), b.ID())
	}

	s1 := &Class{name: "<expr>"}
	id1 := table.RegisterSynthetic(s1)
	table.Release(s1)
	if table.Lookup(id1) != nil {
		t.Error("released slot should be empty")
	}

	s2 := &Class{name: "<expr>"}
	if id2 := table.RegisterSynthetic(s2); id2 != id1 {
		t.Errorf("synthetic slot not reused: %d then %d", id1, id2)
	}
	if table.NumIDs() != 3 {
		t.Errorf("high-water mark %d, want 3", table.NumIDs())
	}

	// Regular registrations never come from the free list.
	table.Release(s2)
	ccls := &Class{name: "C"}
	if id := table.Register(ccls); id != 3 {
		t.Errorf("regular class got recycled ID %d", id)
	}
	if table.NumFree() != 1 {
		t.Errorf("free list has %d entries, want 1", table.NumFree())
	}
}

func TestReleaseNonSyntheticPanics(t *testing.T) {
	table := NewClassTable()
	c := &Class{name: "C"}
	table.Register(c)
	defer func() {
		if recover() == nil {
			t.Error("expected a panic")
		}
	}()
	table.Release(c)
}
