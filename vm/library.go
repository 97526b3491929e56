package vm

import (
	"fmt"
	"sync/atomic"

	"github.com/corvidlang/corvid/compiler"
)

// ---------------------------------------------------------------------------
// Library
// ---------------------------------------------------------------------------

// GlobalVarState tracks lazy initialization of a library variable.
type GlobalVarState int32

const (
	GlobalUninitialized GlobalVarState = iota
	GlobalInitializing
	GlobalInitialized
)

// GlobalVar is a library-level variable. Variables with an initializer
// expression are initialized lazily on first read; a read observed during
// that initialization reports a cycle instead of recursing forever.
type GlobalVar struct {
	Name  string
	Init  compiler.Expr // nil for plain `var x;`
	state atomic.Int32  // GlobalVarState
	value Value
}

// Get returns the variable's value, running the initializer on first read.
// eval runs the initializer expression in library scope.
func (g *GlobalVar) Get(eval func(compiler.Expr) (Value, error)) (Value, error) {
	switch GlobalVarState(g.state.Load()) {
	case GlobalInitialized:
		return g.value, nil
	case GlobalInitializing:
		return Null, &RuntimeError{Message: fmt.Sprintf("cyclic initialization of '%s'", g.Name)}
	}
	if g.Init == nil {
		g.value = Null
		g.state.Store(int32(GlobalInitialized))
		return g.value, nil
	}
	g.state.Store(int32(GlobalInitializing))
	v, err := eval(g.Init)
	if err != nil {
		g.state.Store(int32(GlobalUninitialized))
		return Null, err
	}
	g.value = v
	g.state.Store(int32(GlobalInitialized))
	return v, nil
}

// Set stores a value, marking the variable initialized.
func (g *GlobalVar) Set(v Value) {
	g.value = v
	g.state.Store(int32(GlobalInitialized))
}

// Peek returns the current value without triggering initialization.
func (g *GlobalVar) Peek() (Value, bool) {
	if GlobalVarState(g.state.Load()) == GlobalInitialized {
		return g.value, true
	}
	return Null, false
}

// Library is a named unit of loaded code: classes, top-level functions and
// variables. Top-level functions hang off a hidden owner class that is never
// entered in the library's class namespace.
type Library struct {
	name    string
	classes map[string]*Class
	funcs   map[string]*Function
	vars    map[string]*GlobalVar

	// owner is the hidden class holding top-level functions. It also serves
	// as the superclass-of-last-resort for evaluation scopes with no
	// receiver.
	owner *Class
}

// NewLibrary creates an empty library with its hidden owner class. The owner
// class is registered in the class table but not in the library's namespace.
func NewLibrary(name string, classes *ClassTable) *Library {
	lib := &Library{
		name:    name,
		classes: make(map[string]*Class),
		funcs:   make(map[string]*Function),
		vars:    make(map[string]*GlobalVar),
	}
	owner := &Class{
		name:       "_" + name,
		library:    lib,
		methods:    make(map[string]*Function),
		statics:    make(map[string]*Function),
		staticVars: make(map[string]*GlobalVar),
	}
	owner.state.Store(int32(ClassFinalized))
	classes.Register(owner)
	lib.owner = owner
	return lib
}

// Name returns the library name.
func (l *Library) Name() string {
	return l.name
}

// OwnerClass returns the hidden class that owns top-level functions.
func (l *Library) OwnerClass() *Class {
	return l.owner
}

// LookupClass resolves a class declared in this library. The hidden owner
// class is not found this way.
func (l *Library) LookupClass(name string) *Class {
	return l.classes[name]
}

// LookupFunction resolves a top-level function.
func (l *Library) LookupFunction(name string) *Function {
	return l.funcs[name]
}

// LookupVar resolves a top-level variable.
func (l *Library) LookupVar(name string) *GlobalVar {
	return l.vars[name]
}

// Classes returns the library's class map.
func (l *Library) Classes() map[string]*Class {
	return l.classes
}
