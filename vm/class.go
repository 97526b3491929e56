package vm

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/corvidlang/corvid/compiler"
)

// ---------------------------------------------------------------------------
// Class
// ---------------------------------------------------------------------------

// ClassID is an index into the ClassTable. IDs are dense and reused: a
// released synthetic ID goes onto a free list and is handed out again.
type ClassID uint32

// ClassState tracks a class through finalization.
type ClassState int32

const (
	// ClassPending: declared, superclass unresolved, layout unknown.
	ClassPending ClassState = iota
	// ClassFinalizing: finalization in progress (guards cycles).
	ClassFinalizing
	// ClassFinalized: layout fixed, methods materialized, instantiable.
	ClassFinalized
)

func (s ClassState) String() string {
	switch s {
	case ClassPending:
		return "pending"
	case ClassFinalizing:
		return "finalizing"
	case ClassFinalized:
		return "finalized"
	}
	return "unknown"
}

// Field describes one instance field of a finalized class.
type Field struct {
	Name string
	Slot int           // absolute slot index, superclass fields first
	Init compiler.Expr // initializer expression, may be nil
}

// Class is a class in a loaded library, or a synthetic evaluation scope.
// Structure (superclass, fields, methods) is fixed at finalization;
// afterwards only the atomic fields change.
type Class struct {
	id      ClassID
	name    string
	library *Library
	script  *Script
	decl    *compiler.ClassDecl // nil for synthetic classes

	state atomic.Int32 // ClassState

	// Fixed at finalization.
	super      *Class
	fields     []Field // this class's own fields
	numSlots   int     // total slots including superclass fields
	methods    map[string]*Function
	statics    map[string]*Function
	staticVars map[string]*GlobalVar

	// initFn runs this class's own field initializers on a fresh instance.
	// Nil when no field has an initializer.
	initFn *Function

	// stub is the installed allocation routine, nil when none or disabled.
	// generation counts disables; a stub stamped with an older generation
	// is stale. Both are written only under the context's structural lock.
	stub       atomic.Pointer[AllocationStub]
	generation atomic.Uint32

	// synthetic marks evaluation-scope classes. Their IDs are reclaimed.
	synthetic bool
}

// ID returns the class's table index.
func (c *Class) ID() ClassID {
	return c.id
}

// Name returns the class name.
func (c *Class) Name() string {
	return c.name
}

// Library returns the owning library, or nil for synthetic classes.
func (c *Class) Library() *Library {
	return c.library
}

// Superclass returns the resolved superclass, or nil.
func (c *Class) Superclass() *Class {
	return c.super
}

// State returns the class's finalization state.
func (c *Class) State() ClassState {
	return ClassState(c.state.Load())
}

// IsFinalized reports whether the class has a fixed layout.
func (c *Class) IsFinalized() bool {
	return c.State() == ClassFinalized
}

// IsSynthetic reports whether this is an evaluation-scope class.
func (c *Class) IsSynthetic() bool {
	return c.synthetic
}

// NumSlots returns the total instance slot count, superclass included.
// Only valid once the class is finalized.
func (c *Class) NumSlots() int {
	return c.numSlots
}

// Generation returns the allocation stub generation counter.
func (c *Class) Generation() uint32 {
	return c.generation.Load()
}

// Fields returns this class's own fields (superclass fields excluded).
func (c *Class) Fields() []Field {
	return c.fields
}

// FieldSlot resolves a field name to its slot index, searching this class
// then the superclass chain. The second result is false when no field of
// that name exists.
func (c *Class) FieldSlot(name string) (int, bool) {
	for cls := c; cls != nil; cls = cls.super {
		for i := range cls.fields {
			if cls.fields[i].Name == name {
				return cls.fields[i].Slot, true
			}
		}
	}
	return 0, false
}

// LookupMethod resolves an instance method by name along the superclass
// chain. Getters are methods too; callers distinguish by IsGetter.
func (c *Class) LookupMethod(name string) *Function {
	for cls := c; cls != nil; cls = cls.super {
		if fn, ok := cls.methods[name]; ok {
			return fn
		}
	}
	return nil
}

// LookupStatic resolves a static method declared on this class itself.
// Statics are not inherited.
func (c *Class) LookupStatic(name string) *Function {
	if fn, ok := c.statics[name]; ok {
		return fn
	}
	return nil
}

// LookupStaticVar resolves a static field declared on this class itself.
func (c *Class) LookupStaticVar(name string) *GlobalVar {
	if v, ok := c.staticVars[name]; ok {
		return v
	}
	return nil
}

// Methods returns the class's own instance methods.
func (c *Class) Methods() map[string]*Function {
	return c.methods
}

// Statics returns the class's own static methods.
func (c *Class) Statics() map[string]*Function {
	return c.statics
}

func (c *Class) String() string {
	return fmt.Sprintf("class %s (id=%d, %s)", c.name, c.id, c.State())
}

// ---------------------------------------------------------------------------
// ClassTable
// ---------------------------------------------------------------------------

// ClassTable assigns dense IDs to classes. Entries for regular classes are
// permanent. Synthetic evaluation-scope classes release their ID when the
// evaluation finishes; the slot is reused for the next synthetic class, so
// repeated evaluations do not grow the table.
type ClassTable struct {
	mu   sync.RWMutex
	byID []*Class
	free []ClassID // released synthetic slots, reused LIFO
}

// NewClassTable creates an empty class table.
func NewClassTable() *ClassTable {
	return &ClassTable{
		byID: make([]*Class, 0, 16),
	}
}

// Register assigns an ID to a regular class. Regular classes prefer fresh
// slots so their IDs stay stable for the lifetime of the context.
func (t *ClassTable) Register(c *Class) ClassID {
	t.mu.Lock()
	defer t.mu.Unlock()
	id := ClassID(len(t.byID))
	t.byID = append(t.byID, c)
	c.id = id
	return id
}

// RegisterSynthetic assigns an ID to a synthetic class, reusing a released
// slot when one is available.
func (t *ClassTable) RegisterSynthetic(c *Class) ClassID {
	t.mu.Lock()
	defer t.mu.Unlock()
	c.synthetic = true
	if n := len(t.free); n > 0 {
		id := t.free[n-1]
		t.free = t.free[:n-1]
		t.byID[id] = c
		c.id = id
		return id
	}
	id := ClassID(len(t.byID))
	t.byID = append(t.byID, c)
	c.id = id
	return id
}

// Release returns a synthetic class's slot to the free list. Releasing a
// non-synthetic class panics: regular IDs are permanent.
func (t *ClassTable) Release(c *Class) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !c.synthetic {
		panic("release of non-synthetic class " + c.name)
	}
	if int(c.id) >= len(t.byID) || t.byID[c.id] != c {
		return // already released
	}
	t.byID[c.id] = nil
	t.free = append(t.free, c.id)
}

// Lookup returns the class with the given ID, or nil for a released slot.
func (t *ClassTable) Lookup(id ClassID) *Class {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if int(id) >= len(t.byID) {
		return nil
	}
	return t.byID[id]
}

// NumIDs returns the table's high-water mark, free slots included. Stable
// across evaluations that release their synthetic classes.
func (t *ClassTable) NumIDs() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.byID)
}

// NumFree returns the number of released slots awaiting reuse.
func (t *ClassTable) NumFree() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.free)
}
