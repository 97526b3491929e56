package vm

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/corvidlang/corvid/compiler"
	"github.com/tliron/commonlog"
)

// ---------------------------------------------------------------------------
// ExecutionContext
// ---------------------------------------------------------------------------

// Options configures an ExecutionContext.
type Options struct {
	// Workers is the background compiler thread count.
	Workers int
	// QueueDepth bounds the background compilation queue.
	QueueDepth int
	// HotThreshold is the invocation count at which a function becomes a
	// candidate for background optimization. Zero disables tier-up.
	HotThreshold uint64
	// Log overrides the default logger.
	Log commonlog.Logger
}

// DefaultOptions returns the settings used when a field is left zero.
func DefaultOptions() Options {
	return Options{
		Workers:      1,
		QueueDepth:   64,
		HotThreshold: 10,
	}
}

// ExecutionContext owns everything a running program shares: the class
// table, loaded libraries, the background compiler pool and the allocation
// stub bookkeeping.
//
// mu is the structural lock. It guards class finalization, allocation stub
// install/disable, synthetic evaluation scopes and library registration.
// Execution itself never holds it; compiled code reads published state
// through atomics.
type ExecutionContext struct {
	mu sync.Mutex

	classes   *ClassTable
	libraries map[string]*Library
	rootLib   *Library

	pending []*Class // declared, awaiting finalization

	pool         *Pool
	hotThreshold uint64

	helpers  atomic.Int32
	mutators []*Mutator

	stubStats StubStats

	log commonlog.Logger
}

// NewContext creates a context with one root library and a running
// background compiler pool.
func NewContext(opts Options) *ExecutionContext {
	def := DefaultOptions()
	if opts.Workers <= 0 {
		opts.Workers = def.Workers
	}
	if opts.QueueDepth <= 0 {
		opts.QueueDepth = def.QueueDepth
	}
	if opts.Log == nil {
		opts.Log = commonlog.GetLogger("corvid.vm")
	}
	ctx := &ExecutionContext{
		classes:      NewClassTable(),
		libraries:    make(map[string]*Library),
		pool:         NewPool(opts.Workers, opts.QueueDepth),
		hotThreshold: opts.HotThreshold,
		log:          opts.Log,
	}
	ctx.rootLib = NewLibrary("main", ctx.classes)
	ctx.libraries["main"] = ctx.rootLib
	return ctx
}

// Close stops the background compiler pool, waiting for queued tasks.
func (ctx *ExecutionContext) Close() {
	ctx.pool.Stop()
}

// RootLibrary returns the library scripts load into.
func (ctx *ExecutionContext) RootLibrary() *Library {
	return ctx.rootLib
}

// Classes returns the class table.
func (ctx *ExecutionContext) Classes() *ClassTable {
	return ctx.classes
}

// Log returns the context's logger.
func (ctx *ExecutionContext) Log() commonlog.Logger {
	return ctx.log
}

// HotThreshold returns the tier-up invocation threshold.
func (ctx *ExecutionContext) HotThreshold() uint64 {
	return ctx.hotThreshold
}

// ---------------------------------------------------------------------------
// Script loading
// ---------------------------------------------------------------------------

// LoadScript parses source and registers its declarations in the root
// library. Classes enter the table in the pending state; call
// FinalizeClasses before instantiating them.
func (ctx *ExecutionContext) LoadScript(url, source string) (*Script, error) {
	prog, err := compiler.NewParser(source).Parse()
	if err != nil {
		return nil, err
	}
	script := &Script{URL: url, Source: source, prog: prog}

	ctx.mu.Lock()
	defer ctx.mu.Unlock()

	lib := ctx.rootLib
	for _, decl := range prog.Decls {
		switch d := decl.(type) {
		case *compiler.ClassDecl:
			if _, exists := lib.classes[d.Name]; exists {
				return nil, &CompileError{Message: fmt.Sprintf("duplicate class '%s'", d.Name)}
			}
			cls := &Class{
				name:    d.Name,
				library: lib,
				script:  script,
				decl:    d,
				methods: make(map[string]*Function),
				statics: make(map[string]*Function),
			}
			ctx.classes.Register(cls)
			lib.classes[d.Name] = cls
			ctx.pending = append(ctx.pending, cls)

		case *compiler.FuncDecl:
			if _, exists := lib.funcs[d.Name]; exists {
				return nil, &CompileError{Message: fmt.Sprintf("duplicate function '%s'", d.Name)}
			}
			fn := newFunction(d, lib.owner, lib, script)
			lib.funcs[d.Name] = fn
			lib.owner.statics[d.Name] = fn

		case *compiler.VarDecl:
			if _, exists := lib.vars[d.Name]; exists {
				return nil, &CompileError{Message: fmt.Sprintf("duplicate variable '%s'", d.Name)}
			}
			lib.vars[d.Name] = &GlobalVar{Name: d.Name, Init: d.Init}
		}
	}
	ctx.log.Debugf("loaded script %s (%d declarations)", url, len(prog.Decls))
	return script, nil
}

// newFunction builds an uncompiled Function from a declaration.
func newFunction(d *compiler.FuncDecl, owner *Class, lib *Library, script *Script) *Function {
	return &Function{
		name:     d.Name,
		owner:    owner,
		library:  lib,
		script:   script,
		span:     d.Span(),
		params:   d.Params,
		body:     d.Body,
		isStatic: d.IsStatic,
		isGetter: d.IsGetter,
	}
}

// ---------------------------------------------------------------------------
// Helper threads
// ---------------------------------------------------------------------------

// HelperScope marks a background goroutine as attached to the context for
// the duration of a task. Detach must be called when the task finishes,
// whatever its outcome.
type HelperScope struct {
	ctx     *ExecutionContext
	name    string
	mutator *Mutator
}

// AttachHelper registers a background helper with the context and returns a
// scope whose Detach releases it.
func (ctx *ExecutionContext) AttachHelper(name string) *HelperScope {
	m := ctx.newMutator()
	ctx.helpers.Add(1)
	ctx.log.Debugf("helper %s attached", name)
	return &HelperScope{ctx: ctx, name: name, mutator: m}
}

// Mutator returns the helper's thread-local heap state.
func (h *HelperScope) Mutator() *Mutator {
	return h.mutator
}

// Detach flushes the helper's write buffer and releases it from the context.
func (h *HelperScope) Detach() {
	h.ctx.FlushWriteBuffer(h.mutator)
	h.ctx.removeMutator(h.mutator)
	h.ctx.helpers.Add(-1)
	h.ctx.log.Debugf("helper %s detached", h.name)
}

// NumHelpers returns the count of currently attached helpers.
func (ctx *ExecutionContext) NumHelpers() int {
	return int(ctx.helpers.Load())
}

// ---------------------------------------------------------------------------
// Mutators and write buffers
// ---------------------------------------------------------------------------

// Mutator is per-thread heap state. Each interpreter and each attached
// helper owns one. Stores into object slots record the object here so the
// shared remembered set only sees deduplicated entries at flush points.
type Mutator struct {
	ctx     *ExecutionContext
	buffer  []*Object
	flushed atomic.Uint64
}

func (ctx *ExecutionContext) newMutator() *Mutator {
	m := &Mutator{ctx: ctx, buffer: make([]*Object, 0, 32)}
	ctx.mu.Lock()
	ctx.mutators = append(ctx.mutators, m)
	ctx.mu.Unlock()
	return m
}

func (ctx *ExecutionContext) removeMutator(m *Mutator) {
	ctx.mu.Lock()
	defer ctx.mu.Unlock()
	for i, x := range ctx.mutators {
		if x == m {
			ctx.mutators = append(ctx.mutators[:i], ctx.mutators[i+1:]...)
			return
		}
	}
}

// recordWrite notes a slot store for later flushing.
func (m *Mutator) recordWrite(obj *Object) {
	m.buffer = append(m.buffer, obj)
}

// Flushed returns the total number of buffer entries this mutator has
// drained.
func (m *Mutator) Flushed() uint64 {
	return m.flushed.Load()
}

// FlushWriteBuffer drains one mutator's write buffer.
//
// TODO(heap): this only flushes the initiating mutator. Buffers of other
// attached threads stay unflushed until those threads reach their own flush
// point, so a scan started here can miss their recent stores.
func (ctx *ExecutionContext) FlushWriteBuffer(m *Mutator) {
	if len(m.buffer) == 0 {
		return
	}
	m.flushed.Add(uint64(len(m.buffer)))
	m.buffer = m.buffer[:0]
}
