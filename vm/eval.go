package vm

import "github.com/corvidlang/corvid/compiler"

// ---------------------------------------------------------------------------
// Expression evaluation
// ---------------------------------------------------------------------------

// EvalBinding makes a named value visible to an evaluated expression.
type EvalBinding struct {
	Name  string
	Value Value
}

// EvaluationContext describes the scope an expression is evaluated in: an
// optional receiver whose fields and methods are visible, the library, the
// bindings passed by the caller, and the enclosing evaluation for nested
// evals.
type EvaluationContext struct {
	Receiver Value // Null for library-level evaluation
	Library  *Library
	Bindings []EvalBinding
	Parent   *EvaluationContext
}

// binding looks up one of this evaluation's own bindings.
func (e *EvaluationContext) binding(name string) (Value, bool) {
	for i := range e.Bindings {
		if e.Bindings[i].Name == name {
			return e.Bindings[i].Value, true
		}
	}
	return Null, false
}

// InstanceScope returns an evaluation scope for an expression on a
// receiver, as a debugger evaluating `this`-relative expressions would use.
func (ctx *ExecutionContext) InstanceScope(recv Value, bindings ...EvalBinding) *EvaluationContext {
	var lib *Library
	if recv.IsObject() {
		lib = recv.AsObject().Class().Library()
	}
	if lib == nil {
		lib = ctx.rootLib
	}
	return &EvaluationContext{Receiver: recv, Library: lib, Bindings: bindings}
}

// LibraryScope returns an evaluation scope with no receiver.
func (ctx *ExecutionContext) LibraryScope(bindings ...EvalBinding) *EvaluationContext {
	return &EvaluationContext{Receiver: Null, Library: ctx.rootLib, Bindings: bindings}
}

// Nested returns a child scope for an evaluation started from within this
// one. The child sees the parent's bindings after its own.
func (e *EvaluationContext) Nested(bindings ...EvalBinding) *EvaluationContext {
	return &EvaluationContext{
		Receiver: e.Receiver,
		Library:  e.Library,
		Bindings: bindings,
		Parent:   e,
	}
}

// Evaluate parses, compiles and runs one expression in the given scope.
//
// The expression body is hosted by a synthetic class whose superclass is
// the receiver's class (or the library's hidden owner class when there is
// no receiver), so field slot indexes and method resolution carry over
// unchanged. The synthetic class takes its ID from the class table's free
// list and releases it when the evaluation finishes: repeated evaluations
// do not grow the table, and identity checks made before and after agree.
func (in *Interpreter) Evaluate(exprText string, scope *EvaluationContext) (Value, error) {
	ctx := in.ctx

	expr, err := compiler.ParseExpressionText(exprText)
	if err != nil {
		return Null, newEvalError(EvalParse, exprText, err)
	}

	lib := scope.Library
	if lib == nil {
		lib = ctx.rootLib
	}

	super := lib.OwnerClass()
	hasReceiver := scope.Receiver.IsObject()
	if hasReceiver {
		super = scope.Receiver.AsObject().Class()
	}

	syn := &Class{
		name:    "<expr>",
		library: lib,
		super:   super,
		methods: make(map[string]*Function),
		statics: make(map[string]*Function),
	}
	syn.numSlots = super.NumSlots()
	syn.state.Store(int32(ClassFinalized))
	ctx.classes.RegisterSynthetic(syn)
	defer ctx.classes.Release(syn)

	params := make([]string, len(scope.Bindings))
	args := make([]Value, len(scope.Bindings))
	for i, b := range scope.Bindings {
		params[i] = b.Name
		args[i] = b.Value
	}

	fn := &Function{
		name:     "<expr>",
		owner:    syn,
		library:  lib,
		params:   params,
		isStatic: !hasReceiver,
		body: []compiler.Stmt{
			&compiler.ReturnStmt{SpanVal: expr.Span(), Value: expr},
		},
	}
	syn.methods[fn.name] = fn

	code, err := ctx.compileBaseline(fn, nil, scope.Parent)
	if err != nil {
		return Null, newEvalError(EvalCompile, exprText, err)
	}
	fn.unoptimized.Store(code)

	recv := Null
	if hasReceiver {
		recv = scope.Receiver
	}
	v, err := in.call(fn, recv, nil, args)
	in.ctx.FlushWriteBuffer(in.mutator)
	if err != nil {
		return Null, newEvalError(EvalRuntime, exprText, err)
	}
	return v, nil
}
