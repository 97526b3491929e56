package vm

import (
	"fmt"
	"sync/atomic"
)

// ---------------------------------------------------------------------------
// Allocation stubs
// ---------------------------------------------------------------------------

// AllocationStub is a compiled allocation routine for one class. It bakes
// in the slot count observed at compile time and is stamped with the class
// generation current at that moment. A stub whose stamp trails the class's
// generation is stale and must not run; allocation falls back to the slow
// path, which lazily compiles a fresh stub.
type AllocationStub struct {
	class      *Class
	generation uint32
	numSlots   int
	entry      func() *Object
}

// Class returns the class this stub allocates.
func (s *AllocationStub) Class() *Class {
	return s.class
}

// Generation returns the class generation the stub was compiled against.
func (s *AllocationStub) Generation() uint32 {
	return s.generation
}

// IsCurrent reports whether the stub's stamp matches the class's current
// generation.
func (s *AllocationStub) IsCurrent() bool {
	return s.generation == s.class.Generation()
}

// Allocate runs the stub's entry. Callers must have checked IsCurrent.
func (s *AllocationStub) Allocate() *Object {
	return s.entry()
}

func (s *AllocationStub) String() string {
	return fmt.Sprintf("stub[%s gen=%d slots=%d]", s.class.Name(), s.generation, s.numSlots)
}

// StubStats counts allocation stub activity.
type StubStats struct {
	Compiled atomic.Uint64 // stubs compiled (initial and regenerated)
	Disabled atomic.Uint64 // DisableAllocationStub calls that took effect
	FastPath atomic.Uint64 // allocations through a current stub
	SlowPath atomic.Uint64 // allocations that bypassed the stub
}

// StubStats returns the context's allocation stub counters.
func (ctx *ExecutionContext) StubStats() *StubStats {
	return &ctx.stubStats
}

// GetOrCreateAllocationStub returns the class's current allocation stub,
// compiling one when none is installed. The class must be finalized: the
// stub bakes in the instance layout.
func (ctx *ExecutionContext) GetOrCreateAllocationStub(c *Class) (*AllocationStub, error) {
	if !c.IsFinalized() {
		return nil, ErrNotFinalized
	}
	if stub := c.stub.Load(); stub != nil && stub.IsCurrent() {
		return stub, nil
	}

	ctx.mu.Lock()
	defer ctx.mu.Unlock()
	if stub := c.stub.Load(); stub != nil && stub.IsCurrent() {
		return stub, nil
	}

	gen := c.Generation()
	slots := c.NumSlots()
	stub := &AllocationStub{
		class:      c,
		generation: gen,
		numSlots:   slots,
		entry: func() *Object {
			return NewObject(c, slots)
		},
	}
	c.stub.Store(stub)
	ctx.stubStats.Compiled.Add(1)
	ctx.log.Debugf("compiled allocation stub for %s (gen %d)", c.Name(), gen)
	return stub, nil
}

// DisableAllocationStub tears down the class's installed stub and advances
// the generation, so copies of the old stub still held by running code
// observe themselves stale. Disabling a class with no installed stub is a
// no-op and does not advance the generation.
func (ctx *ExecutionContext) DisableAllocationStub(c *Class) {
	ctx.mu.Lock()
	defer ctx.mu.Unlock()
	if c.stub.Load() == nil {
		return
	}
	c.stub.Store(nil)
	c.generation.Add(1)
	ctx.stubStats.Disabled.Add(1)
	ctx.log.Debugf("disabled allocation stub for %s (gen now %d)", c.Name(), c.Generation())
}

// allocateInstance is the slow allocation path: build the instance directly
// and lazily regenerate the stub for later allocations.
func (ctx *ExecutionContext) allocateInstance(c *Class) (*Object, error) {
	if !c.IsFinalized() {
		return nil, &RuntimeError{Message: fmt.Sprintf("class '%s' is %s", c.Name(), c.State())}
	}
	if stub := c.stub.Load(); stub != nil && stub.IsCurrent() {
		ctx.stubStats.FastPath.Add(1)
		return stub.Allocate(), nil
	}
	ctx.stubStats.SlowPath.Add(1)
	obj := NewObject(c, c.NumSlots())
	// Regenerate so the next allocation takes the fast path.
	if _, err := ctx.GetOrCreateAllocationStub(c); err != nil {
		return nil, err
	}
	return obj, nil
}
