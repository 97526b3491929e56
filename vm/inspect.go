package vm

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

// ---------------------------------------------------------------------------
// Introspection reports
// ---------------------------------------------------------------------------

var cborEncMode cbor.EncMode

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("vm: failed to create CBOR enc mode: %v", err))
	}
	cborEncMode = em
}

// CodeReport is a serializable snapshot of one function's compilation
// state, for tooling that inspects a running context.
type CodeReport struct {
	Function    string `cbor:"function" json:"function"`
	Invocations uint64 `cbor:"invocations" json:"invocations"`
	HasBaseline bool   `cbor:"has_baseline" json:"has_baseline"`
	Optimized   bool   `cbor:"optimized" json:"optimized"`
	CodeSize    int    `cbor:"code_size" json:"code_size"`
	Disassembly string `cbor:"disassembly,omitempty" json:"disassembly,omitempty"`
}

// ClassReport is a serializable snapshot of one class.
type ClassReport struct {
	Name       string       `cbor:"name" json:"name"`
	ID         uint32       `cbor:"id" json:"id"`
	State      string       `cbor:"state" json:"state"`
	Superclass string       `cbor:"superclass,omitempty" json:"superclass,omitempty"`
	NumSlots   int          `cbor:"num_slots" json:"num_slots"`
	Generation uint32       `cbor:"generation" json:"generation"`
	HasStub    bool         `cbor:"has_stub" json:"has_stub"`
	Methods    []CodeReport `cbor:"methods,omitempty" json:"methods,omitempty"`
}

// ContextReport is a serializable snapshot of a whole execution context.
type ContextReport struct {
	NumClassIDs int           `cbor:"num_class_ids" json:"num_class_ids"`
	NumHelpers  int           `cbor:"num_helpers" json:"num_helpers"`
	StubsBuilt  uint64        `cbor:"stubs_built" json:"stubs_built"`
	Classes     []ClassReport `cbor:"classes,omitempty" json:"classes,omitempty"`
}

// ReportFunction snapshots one function's compilation state. Disassembly of
// the current tier is included when disasm is set.
func ReportFunction(fn *Function, disasm bool) CodeReport {
	rep := CodeReport{
		Function:    fn.QualifiedName(),
		Invocations: fn.Invocations(),
		HasBaseline: fn.HasCode(),
		Optimized:   fn.HasOptimizedCode(),
	}
	if code := fn.CurrentCode(); code != nil {
		rep.CodeSize = len(code.bytecode)
		if disasm {
			rep.Disassembly = code.Disassembly()
		}
	}
	return rep
}

// ReportClass snapshots one class and its methods.
func ReportClass(c *Class, disasm bool) ClassReport {
	rep := ClassReport{
		Name:       c.Name(),
		ID:         uint32(c.ID()),
		State:      c.State().String(),
		NumSlots:   c.NumSlots(),
		Generation: c.Generation(),
		HasStub:    c.stub.Load() != nil,
	}
	if c.super != nil {
		rep.Superclass = c.super.Name()
	}
	for _, fn := range c.methods {
		rep.Methods = append(rep.Methods, ReportFunction(fn, disasm))
	}
	for _, fn := range c.statics {
		rep.Methods = append(rep.Methods, ReportFunction(fn, disasm))
	}
	return rep
}

// Report snapshots the context.
func (ctx *ExecutionContext) Report(disasm bool) *ContextReport {
	rep := &ContextReport{
		NumClassIDs: ctx.classes.NumIDs(),
		NumHelpers:  ctx.NumHelpers(),
		StubsBuilt:  ctx.stubStats.Compiled.Load(),
	}
	ctx.mu.Lock()
	libs := make([]*Library, 0, len(ctx.libraries))
	for _, lib := range ctx.libraries {
		libs = append(libs, lib)
	}
	ctx.mu.Unlock()
	for _, lib := range libs {
		for _, c := range lib.Classes() {
			rep.Classes = append(rep.Classes, ReportClass(c, disasm))
		}
	}
	return rep
}

// MarshalReport serializes a ContextReport to canonical CBOR bytes.
func MarshalReport(r *ContextReport) ([]byte, error) {
	return cborEncMode.Marshal(r)
}

// UnmarshalReport deserializes a ContextReport from CBOR bytes.
func UnmarshalReport(data []byte) (*ContextReport, error) {
	var r ContextReport
	if err := cbor.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("vm: unmarshal report: %w", err)
	}
	return &r, nil
}
