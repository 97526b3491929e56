package vm

import (
	"sync"
	"sync/atomic"

	"github.com/corvidlang/corvid/compiler"
)

// ---------------------------------------------------------------------------
// Function: a compilable unit (method, static, top-level, getter, eval)
// ---------------------------------------------------------------------------

// Function is the unit of compilation. It is created during class
// finalization (or script loading) holding only its parsed body; code is
// attached lazily, one slot per tier.
//
// The unoptimized slot is written once and never cleared: activations and
// deoptimization both rely on the baseline code staying reachable for the
// function's lifetime. The optimized slot may be replaced.
type Function struct {
	name    string
	owner   *Class   // nil for top-level library functions
	library *Library // owning library
	script  *Script
	span    compiler.Span

	params []string
	body   []compiler.Stmt

	isStatic bool
	isGetter bool

	// compileMu serializes baseline compilation. Publication is through the
	// atomic slots, so readers never take it.
	compileMu   sync.Mutex
	unoptimized atomic.Pointer[CodeObject]
	optimized   atomic.Pointer[CodeObject]

	// optimizing is set while a background compilation task for this
	// function is queued or running.
	optimizing atomic.Bool

	invocations atomic.Uint64
}

// Name returns the function's bare name.
func (f *Function) Name() string {
	return f.name
}

// QualifiedName returns Class.name for methods. Top-level functions, whose
// owner is the library's hidden class, are reported unqualified.
func (f *Function) QualifiedName() string {
	if f.owner != nil && (f.library == nil || f.owner != f.library.owner) {
		return f.owner.Name() + "." + f.name
	}
	return f.name
}

// Owner returns the owning class, or nil for library functions.
func (f *Function) Owner() *Class {
	return f.owner
}

// Library returns the library the function belongs to.
func (f *Function) Library() *Library {
	return f.library
}

// IsStatic reports whether the function is a static method.
func (f *Function) IsStatic() bool {
	return f.isStatic
}

// IsGetter reports whether the function is a getter.
func (f *Function) IsGetter() bool {
	return f.isGetter
}

// NumParams returns the declared parameter count.
func (f *Function) NumParams() int {
	return len(f.params)
}

// HasCode reports whether baseline code has been installed.
func (f *Function) HasCode() bool {
	return f.unoptimized.Load() != nil
}

// HasOptimizedCode reports whether optimized code is currently installed.
func (f *Function) HasOptimizedCode() bool {
	return f.optimized.Load() != nil
}

// UnoptimizedCode returns the baseline code, or nil if not yet compiled.
func (f *Function) UnoptimizedCode() *CodeObject {
	return f.unoptimized.Load()
}

// OptimizedCode returns the optimized code, or nil.
func (f *Function) OptimizedCode() *CodeObject {
	return f.optimized.Load()
}

// CurrentCode returns the code new activations should enter: the optimized
// tier when present, the baseline tier otherwise. Returns nil if the
// function has never been compiled.
func (f *Function) CurrentCode() *CodeObject {
	if code := f.optimized.Load(); code != nil {
		return code
	}
	return f.unoptimized.Load()
}

// Invocations returns the call counter used for tier-up decisions.
func (f *Function) Invocations() uint64 {
	return f.invocations.Load()
}

// Source returns the verbatim source text of the function's declaration,
// modifiers included, sliced from the owning script.
func (f *Function) Source() (string, error) {
	if f.script == nil {
		return "", ErrNoBody
	}
	start := f.span.Start.Offset
	end := f.span.End.Offset
	if start < 0 || end > len(f.script.Source) || start >= end {
		return "", ErrNoBody
	}
	return f.script.Source[start:end], nil
}
