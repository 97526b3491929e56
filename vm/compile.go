package vm

import (
	"fmt"
	"math"

	"github.com/corvidlang/corvid/compiler"
)

// ---------------------------------------------------------------------------
// Baseline compiler
// ---------------------------------------------------------------------------

// CompileUnoptimized ensures fn has baseline code, compiling it on first
// call. Concurrent callers are serialized on the function's compile lock;
// the winner installs, everyone else observes the installed code. On error
// nothing is installed and the function stays eligible for a retry.
func (ctx *ExecutionContext) CompileUnoptimized(fn *Function) (*CodeObject, error) {
	if code := fn.unoptimized.Load(); code != nil {
		return code, nil
	}

	fn.compileMu.Lock()
	defer fn.compileMu.Unlock()
	if code := fn.unoptimized.Load(); code != nil {
		return code, nil
	}

	if fn.owner != nil && !fn.owner.IsFinalized() {
		return nil, &CompileError{
			Function: fn.QualifiedName(),
			Message:  fmt.Sprintf("class '%s' is %s", fn.owner.Name(), fn.owner.State()),
			Err:      ErrNotFinalized,
		}
	}

	code, err := ctx.compileBaseline(fn, nil, nil)
	if err != nil {
		return nil, err
	}
	fn.unoptimized.Store(code)
	ctx.log.Debugf("compiled %s (baseline, %d bytes)", fn.QualifiedName(), len(code.bytecode))
	return code, nil
}

// compileBaseline generates baseline code for fn. parent is the enclosing
// codegen when fn is a closure body; evalScope is the enclosing evaluation
// chain for eval functions.
func (ctx *ExecutionContext) compileBaseline(fn *Function, parent *codegen, evalScope *EvaluationContext) (*CodeObject, error) {
	cg := newCodegen(ctx, fn, parent, evalScope)
	if err := cg.compileBody(); err != nil {
		return nil, err
	}
	return cg.finish(), nil
}

// ---------------------------------------------------------------------------
// Code generation
// ---------------------------------------------------------------------------

type captureKind int

const (
	captureLocal captureKind = iota // pushed from an enclosing local slot
	captureOuter                    // pushed from an enclosing capture
)

// capture records one free variable of a closure body and how the enclosing
// function materializes it at closure creation.
type capture struct {
	name  string
	kind  captureKind
	index int
}

type codegen struct {
	ctx    *ExecutionContext
	fn     *Function
	parent *codegen // enclosing function, when compiling a closure body

	// evalScope is the chain of enclosing evaluations. Bindings of the
	// current evaluation arrive as parameters; bindings of enclosing
	// evaluations are compiled to literals.
	evalScope *EvaluationContext

	b        *BytecodeBuilder
	scopes   []map[string]int
	nextSlot int
	maxSlots int

	captures []capture

	literals []Value
	names    []string
	nameIdx  map[string]int
	funcs    []*Function
	classes  []*Class
	globals  []*GlobalVar
}

func newCodegen(ctx *ExecutionContext, fn *Function, parent *codegen, evalScope *EvaluationContext) *codegen {
	cg := &codegen{
		ctx:       ctx,
		fn:        fn,
		parent:    parent,
		evalScope: evalScope,
		b:         NewBytecodeBuilder(),
		nameIdx:   make(map[string]int),
	}
	cg.pushScope()
	for _, p := range fn.params {
		cg.declareLocal(p)
	}
	return cg
}

func (cg *codegen) errorf(format string, args ...interface{}) error {
	return &CompileError{Function: cg.fn.QualifiedName(), Message: fmt.Sprintf(format, args...)}
}

func (cg *codegen) unresolved(name string) error {
	return &CompileError{
		Function: cg.fn.QualifiedName(),
		Message:  fmt.Sprintf("'%s' cannot be resolved in any enclosing scope", name),
		Err:      ErrUnresolvedName,
	}
}

// receiverClass returns the class whose fields and methods are in implicit
// scope, or nil when the function has no receiver.
func (cg *codegen) receiverClass() *Class {
	if cg.fn.isStatic || cg.fn.owner == nil {
		return nil
	}
	if cg.fn.library != nil && cg.fn.owner == cg.fn.library.owner {
		return nil
	}
	return cg.fn.owner
}

// staticClass returns the class whose statics are in unqualified scope.
func (cg *codegen) staticClass() *Class {
	if cg.fn.owner == nil {
		return nil
	}
	if cg.fn.library != nil && cg.fn.owner == cg.fn.library.owner {
		return nil
	}
	return cg.fn.owner
}

// ---------------------------------------------------------------------------
// Scopes and locals
// ---------------------------------------------------------------------------

func (cg *codegen) pushScope() {
	cg.scopes = append(cg.scopes, make(map[string]int))
}

func (cg *codegen) popScope() {
	top := cg.scopes[len(cg.scopes)-1]
	cg.nextSlot -= len(top)
	cg.scopes = cg.scopes[:len(cg.scopes)-1]
}

func (cg *codegen) declareLocal(name string) int {
	slot := cg.nextSlot
	cg.scopes[len(cg.scopes)-1][name] = slot
	cg.nextSlot++
	if cg.nextSlot > cg.maxSlots {
		cg.maxSlots = cg.nextSlot
	}
	return slot
}

func (cg *codegen) lookupLocal(name string) (int, bool) {
	for i := len(cg.scopes) - 1; i >= 0; i-- {
		if slot, ok := cg.scopes[i][name]; ok {
			return slot, true
		}
	}
	return 0, false
}

// lookupCapture finds or creates a capture for name, asking enclosing
// functions transitively. Returns the capture index in this function.
func (cg *codegen) lookupCapture(name string) (int, bool) {
	for i := range cg.captures {
		if cg.captures[i].name == name {
			return i, true
		}
	}
	if cg.parent == nil {
		return 0, false
	}
	if slot, ok := cg.parent.lookupLocal(name); ok {
		cg.captures = append(cg.captures, capture{name: name, kind: captureLocal, index: slot})
		return len(cg.captures) - 1, true
	}
	if idx, ok := cg.parent.lookupCapture(name); ok {
		cg.captures = append(cg.captures, capture{name: name, kind: captureOuter, index: idx})
		return len(cg.captures) - 1, true
	}
	return 0, false
}

// ---------------------------------------------------------------------------
// Pools
// ---------------------------------------------------------------------------

func (cg *codegen) literal(v Value) (uint16, error) {
	for i := range cg.literals {
		if cg.literals[i].Equals(v) && cg.literals[i].Kind() == v.Kind() {
			return uint16(i), nil
		}
	}
	if len(cg.literals) > math.MaxUint16 {
		return 0, cg.errorf("too many literals")
	}
	cg.literals = append(cg.literals, v)
	return uint16(len(cg.literals) - 1), nil
}

func (cg *codegen) nameRef(name string) (uint16, error) {
	if i, ok := cg.nameIdx[name]; ok {
		return uint16(i), nil
	}
	if len(cg.names) > math.MaxUint16 {
		return 0, cg.errorf("too many names")
	}
	cg.nameIdx[name] = len(cg.names)
	cg.names = append(cg.names, name)
	return uint16(len(cg.names) - 1), nil
}

func (cg *codegen) funcRef(fn *Function) (uint16, error) {
	for i := range cg.funcs {
		if cg.funcs[i] == fn {
			return uint16(i), nil
		}
	}
	if len(cg.funcs) > math.MaxUint16 {
		return 0, cg.errorf("too many function references")
	}
	cg.funcs = append(cg.funcs, fn)
	return uint16(len(cg.funcs) - 1), nil
}

func (cg *codegen) classRef(c *Class) (uint16, error) {
	for i := range cg.classes {
		if cg.classes[i] == c {
			return uint16(i), nil
		}
	}
	if len(cg.classes) > math.MaxUint16 {
		return 0, cg.errorf("too many class references")
	}
	cg.classes = append(cg.classes, c)
	return uint16(len(cg.classes) - 1), nil
}

func (cg *codegen) globalRef(g *GlobalVar) (uint16, error) {
	for i := range cg.globals {
		if cg.globals[i] == g {
			return uint16(i), nil
		}
	}
	if len(cg.globals) > math.MaxUint16 {
		return 0, cg.errorf("too many variable references")
	}
	cg.globals = append(cg.globals, g)
	return uint16(len(cg.globals) - 1), nil
}

// ---------------------------------------------------------------------------
// Body
// ---------------------------------------------------------------------------

func (cg *codegen) compileBody() error {
	for _, stmt := range cg.fn.body {
		if err := cg.compileStmt(stmt); err != nil {
			return err
		}
	}
	// Implicit return for bodies that fall off the end.
	cg.b.Emit(OpReturnNull)
	return nil
}

func (cg *codegen) finish() *CodeObject {
	return &CodeObject{
		fn:        cg.fn,
		tier:      TierUnoptimized,
		bytecode:  cg.b.Bytes(),
		literals:  cg.literals,
		names:     cg.names,
		funcs:     cg.funcs,
		classes:   cg.classes,
		globals:   cg.globals,
		numParams: len(cg.fn.params),
		numLocals: cg.maxSlots,
	}
}

// ---------------------------------------------------------------------------
// Statements
// ---------------------------------------------------------------------------

func (cg *codegen) compileStmt(stmt compiler.Stmt) error {
	switch s := stmt.(type) {
	case *compiler.VarStmt:
		if _, exists := cg.scopes[len(cg.scopes)-1][s.Name]; exists {
			return cg.errorf("duplicate local '%s'", s.Name)
		}
		if s.Init != nil {
			if err := cg.compileExpr(s.Init); err != nil {
				return err
			}
		} else {
			cg.b.Emit(OpPushNull)
		}
		slot := cg.declareLocal(s.Name)
		if slot > math.MaxUint8 {
			return cg.errorf("too many locals")
		}
		cg.b.EmitByte(OpStoreLocal, byte(slot))
		return nil

	case *compiler.ExprStmt:
		if err := cg.compileExpr(s.Expr); err != nil {
			return err
		}
		cg.b.Emit(OpPOP)
		return nil

	case *compiler.ReturnStmt:
		if s.Value == nil {
			cg.b.Emit(OpReturnNull)
			return nil
		}
		if err := cg.compileExpr(s.Value); err != nil {
			return err
		}
		cg.b.Emit(OpReturn)
		return nil

	case *compiler.IfStmt:
		if err := cg.compileExpr(s.Cond); err != nil {
			return err
		}
		elseL := cg.b.NewLabel()
		cg.b.EmitJump(OpJumpFalse, elseL)
		if err := cg.compileBlock(s.Then); err != nil {
			return err
		}
		if len(s.Else) == 0 {
			cg.b.Mark(elseL)
			return nil
		}
		endL := cg.b.NewLabel()
		cg.b.EmitJump(OpJump, endL)
		cg.b.Mark(elseL)
		if err := cg.compileBlock(s.Else); err != nil {
			return err
		}
		cg.b.Mark(endL)
		return nil

	case *compiler.WhileStmt:
		top := cg.b.NewLabel()
		cg.b.Mark(top)
		if err := cg.compileExpr(s.Cond); err != nil {
			return err
		}
		exit := cg.b.NewLabel()
		cg.b.EmitJump(OpJumpFalse, exit)
		if err := cg.compileBlock(s.Body); err != nil {
			return err
		}
		cg.b.EmitJump(OpJump, top)
		cg.b.Mark(exit)
		return nil

	default:
		return cg.errorf("unsupported statement %T", stmt)
	}
}

func (cg *codegen) compileBlock(stmts []compiler.Stmt) error {
	cg.pushScope()
	defer cg.popScope()
	for _, s := range stmts {
		if err := cg.compileStmt(s); err != nil {
			return err
		}
	}
	return nil
}

// ---------------------------------------------------------------------------
// Expressions
// ---------------------------------------------------------------------------

func (cg *codegen) compileExpr(expr compiler.Expr) error {
	switch e := expr.(type) {
	case *compiler.IntLiteral:
		cg.emitInt(e.Value)
		return nil

	case *compiler.FloatLiteral:
		cg.b.EmitFloat64(OpPushFloat, e.Value)
		return nil

	case *compiler.StringLiteral:
		idx, err := cg.literal(StringValue(e.Value))
		if err != nil {
			return err
		}
		cg.b.EmitUint16(OpPushLiteral, idx)
		return nil

	case *compiler.InterpString:
		return cg.compileInterp(e)

	case *compiler.BoolLiteral:
		if e.Value {
			cg.b.Emit(OpPushTrue)
		} else {
			cg.b.Emit(OpPushFalse)
		}
		return nil

	case *compiler.NullLiteral:
		cg.b.Emit(OpPushNull)
		return nil

	case *compiler.ThisExpr:
		if cg.parent != nil {
			return cg.errorf("'this' is not available inside a closure")
		}
		if cg.receiverClass() == nil {
			return cg.errorf("'this' is not available in a static context")
		}
		cg.b.Emit(OpPushThis)
		return nil

	case *compiler.Identifier:
		return cg.compileLoad(e.Name)

	case *compiler.UnaryExpr:
		if err := cg.compileExpr(e.Operand); err != nil {
			return err
		}
		switch e.Op {
		case "-":
			cg.b.Emit(OpNeg)
		case "!":
			cg.b.Emit(OpNot)
		default:
			return cg.errorf("unsupported unary operator '%s'", e.Op)
		}
		return nil

	case *compiler.BinaryExpr:
		if err := cg.compileExpr(e.Left); err != nil {
			return err
		}
		if err := cg.compileExpr(e.Right); err != nil {
			return err
		}
		op, ok := binaryOps[e.Op]
		if !ok {
			return cg.errorf("unsupported operator '%s'", e.Op)
		}
		cg.b.Emit(op)
		return nil

	case *compiler.LogicalExpr:
		return cg.compileLogical(e)

	case *compiler.AssignExpr:
		return cg.compileAssign(e)

	case *compiler.CallExpr:
		return cg.compileCall(e)

	case *compiler.MethodCall:
		return cg.compileMethodCall(e)

	case *compiler.MemberAccess:
		return cg.compileMemberAccess(e)

	case *compiler.NewExpr:
		cls := cg.lookupClass(e.ClassName)
		if cls == nil {
			return cg.unresolved(e.ClassName)
		}
		idx, err := cg.classRef(cls)
		if err != nil {
			return err
		}
		cg.b.EmitUint16(OpNew, idx)
		return nil

	case *compiler.ClosureExpr:
		return cg.compileClosure(e)

	case *compiler.InvokeExpr:
		if err := cg.compileExpr(e.Callee); err != nil {
			return err
		}
		argc, err := cg.compileArgs(e.Args)
		if err != nil {
			return err
		}
		cg.b.EmitByte(OpInvoke, argc)
		return nil

	default:
		return cg.errorf("unsupported expression %T", expr)
	}
}

var binaryOps = map[string]Opcode{
	"+":  OpAdd,
	"-":  OpSub,
	"*":  OpMul,
	"/":  OpDiv,
	"%":  OpMod,
	"<":  OpLT,
	">":  OpGT,
	"<=": OpLE,
	">=": OpGE,
	"==": OpEQ,
	"!=": OpNE,
}

func (cg *codegen) emitInt(v int64) {
	switch {
	case v >= math.MinInt8 && v <= math.MaxInt8:
		cg.b.EmitInt8(OpPushInt8, int8(v))
	case v >= math.MinInt32 && v <= math.MaxInt32:
		cg.b.EmitInt32(OpPushInt32, int32(v))
	default:
		idx, _ := cg.literal(IntValue(v))
		cg.b.EmitUint16(OpPushLiteral, idx)
	}
}

func (cg *codegen) compileInterp(e *compiler.InterpString) error {
	if len(e.Parts) > math.MaxUint8 {
		return cg.errorf("string interpolation with too many segments")
	}
	for _, part := range e.Parts {
		if err := cg.compileExpr(part); err != nil {
			return err
		}
		if _, isStr := part.(*compiler.StringLiteral); !isStr {
			cg.b.Emit(OpStringify)
		}
	}
	cg.b.EmitByte(OpConcat, byte(len(e.Parts)))
	return nil
}

func (cg *codegen) compileLogical(e *compiler.LogicalExpr) error {
	if err := cg.compileExpr(e.Left); err != nil {
		return err
	}
	short := cg.b.NewLabel()
	end := cg.b.NewLabel()
	if e.Op == "&&" {
		cg.b.EmitJump(OpJumpFalse, short)
		if err := cg.compileExpr(e.Right); err != nil {
			return err
		}
		cg.b.EmitJump(OpJumpFalse, short)
		cg.b.Emit(OpPushTrue)
		cg.b.EmitJump(OpJump, end)
		cg.b.Mark(short)
		cg.b.Emit(OpPushFalse)
	} else {
		cg.b.EmitJump(OpJumpTrue, short)
		if err := cg.compileExpr(e.Right); err != nil {
			return err
		}
		cg.b.EmitJump(OpJumpTrue, short)
		cg.b.Emit(OpPushFalse)
		cg.b.EmitJump(OpJump, end)
		cg.b.Mark(short)
		cg.b.Emit(OpPushTrue)
	}
	cg.b.Mark(end)
	return nil
}

// compileArgs compiles call arguments left to right and returns the count.
func (cg *codegen) compileArgs(args []compiler.Expr) (byte, error) {
	if len(args) > math.MaxUint8 {
		return 0, cg.errorf("too many arguments")
	}
	for _, a := range args {
		if err := cg.compileExpr(a); err != nil {
			return 0, err
		}
	}
	return byte(len(args)), nil
}

// ---------------------------------------------------------------------------
// Name resolution
// ---------------------------------------------------------------------------

// lookupClass resolves a class name in the function's library.
func (cg *codegen) lookupClass(name string) *Class {
	if cg.fn.library == nil {
		return nil
	}
	return cg.fn.library.LookupClass(name)
}

// compileLoad resolves a bare identifier read. Resolution order: locals,
// captures, the receiver class's fields and getters, the owner class's
// statics, library scope, then bindings of enclosing evaluations.
func (cg *codegen) compileLoad(name string) error {
	if slot, ok := cg.lookupLocal(name); ok {
		cg.b.EmitByte(OpPushLocal, byte(slot))
		return nil
	}
	if idx, ok := cg.lookupCapture(name); ok {
		cg.b.EmitByte(OpPushCapture, byte(idx))
		return nil
	}

	if recv := cg.receiverClass(); recv != nil && cg.parent == nil {
		if slot, ok := recv.FieldSlot(name); ok {
			cg.b.EmitByte(OpPushField, byte(slot))
			return nil
		}
		if m := recv.LookupMethod(name); m != nil && m.isGetter {
			nameIdx, err := cg.nameRef(name)
			if err != nil {
				return err
			}
			cg.b.Emit(OpPushThis)
			cg.b.EmitCall(OpSend, nameIdx, 0)
			return nil
		}
	}

	if owner := cg.staticClass(); owner != nil {
		if sv := owner.LookupStaticVar(name); sv != nil {
			idx, err := cg.globalRef(sv)
			if err != nil {
				return err
			}
			cg.b.EmitUint16(OpPushGlobal, idx)
			return nil
		}
		if fn := owner.LookupStatic(name); fn != nil && fn.isGetter {
			idx, err := cg.funcRef(fn)
			if err != nil {
				return err
			}
			cg.b.EmitCall(OpCallFunc, idx, 0)
			return nil
		}
	}

	if lib := cg.fn.library; lib != nil {
		if gv := lib.LookupVar(name); gv != nil {
			idx, err := cg.globalRef(gv)
			if err != nil {
				return err
			}
			cg.b.EmitUint16(OpPushGlobal, idx)
			return nil
		}
		if fn := lib.LookupFunction(name); fn != nil {
			if fn.isGetter {
				idx, err := cg.funcRef(fn)
				if err != nil {
					return err
				}
				cg.b.EmitCall(OpCallFunc, idx, 0)
				return nil
			}
			idx, err := cg.funcRef(fn)
			if err != nil {
				return err
			}
			cg.b.EmitCall(OpMakeClosure, idx, 0)
			return nil
		}
	}

	for scope := cg.evalScope; scope != nil; scope = scope.Parent {
		if v, ok := scope.binding(name); ok {
			idx, err := cg.literal(v)
			if err != nil {
				return err
			}
			cg.b.EmitUint16(OpPushLiteral, idx)
			return nil
		}
	}

	return cg.unresolved(name)
}

func (cg *codegen) compileAssign(e *compiler.AssignExpr) error {
	switch target := e.Target.(type) {
	case *compiler.Identifier:
		if err := cg.compileExpr(e.Value); err != nil {
			return err
		}
		cg.b.Emit(OpDUP) // assignment yields the assigned value
		return cg.compileStore(target.Name)

	case *compiler.MemberAccess:
		// this.f with a known slot becomes a direct field store.
		if _, isThis := target.Receiver.(*compiler.ThisExpr); isThis && cg.parent == nil {
			if recv := cg.receiverClass(); recv != nil {
				if slot, ok := recv.FieldSlot(target.Name); ok {
					if err := cg.compileExpr(e.Value); err != nil {
						return err
					}
					cg.b.Emit(OpDUP)
					cg.b.EmitByte(OpStoreField, byte(slot))
					return nil
				}
			}
		}
		if err := cg.compileExpr(target.Receiver); err != nil {
			return err
		}
		if err := cg.compileExpr(e.Value); err != nil {
			return err
		}
		nameIdx, err := cg.nameRef(target.Name)
		if err != nil {
			return err
		}
		cg.b.EmitUint16(OpSetMember, nameIdx)
		return nil

	default:
		return cg.errorf("invalid assignment target %T", e.Target)
	}
}

// compileStore resolves a bare identifier write. The value to store is on
// the stack.
func (cg *codegen) compileStore(name string) error {
	if slot, ok := cg.lookupLocal(name); ok {
		cg.b.EmitByte(OpStoreLocal, byte(slot))
		return nil
	}
	if _, ok := cg.lookupCapture(name); ok {
		// Captures are snapshots taken at closure creation.
		return cg.errorf("cannot assign to captured variable '%s'", name)
	}
	if recv := cg.receiverClass(); recv != nil && cg.parent == nil {
		if slot, ok := recv.FieldSlot(name); ok {
			cg.b.EmitByte(OpStoreField, byte(slot))
			return nil
		}
	}
	if owner := cg.staticClass(); owner != nil {
		if sv := owner.LookupStaticVar(name); sv != nil {
			idx, err := cg.globalRef(sv)
			if err != nil {
				return err
			}
			cg.b.EmitUint16(OpStoreGlobal, idx)
			return nil
		}
	}
	if lib := cg.fn.library; lib != nil {
		if gv := lib.LookupVar(name); gv != nil {
			idx, err := cg.globalRef(gv)
			if err != nil {
				return err
			}
			cg.b.EmitUint16(OpStoreGlobal, idx)
			return nil
		}
	}
	return cg.unresolved(name)
}

// compileCall resolves a bare call f(args). A local or capture holding a
// closure wins over methods; then come the receiver class's instance
// methods, the owner's statics, and library functions.
func (cg *codegen) compileCall(e *compiler.CallExpr) error {
	if slot, ok := cg.lookupLocal(e.Name); ok {
		cg.b.EmitByte(OpPushLocal, byte(slot))
		argc, err := cg.compileArgs(e.Args)
		if err != nil {
			return err
		}
		cg.b.EmitByte(OpInvoke, argc)
		return nil
	}
	if idx, ok := cg.lookupCapture(e.Name); ok {
		cg.b.EmitByte(OpPushCapture, byte(idx))
		argc, err := cg.compileArgs(e.Args)
		if err != nil {
			return err
		}
		cg.b.EmitByte(OpInvoke, argc)
		return nil
	}

	if recv := cg.receiverClass(); recv != nil && cg.parent == nil {
		if m := recv.LookupMethod(e.Name); m != nil && !m.isGetter {
			nameIdx, err := cg.nameRef(e.Name)
			if err != nil {
				return err
			}
			cg.b.Emit(OpPushThis)
			argc, err := cg.compileArgs(e.Args)
			if err != nil {
				return err
			}
			cg.b.EmitCall(OpSend, nameIdx, argc)
			return nil
		}
	}

	if owner := cg.staticClass(); owner != nil {
		if fn := owner.LookupStatic(e.Name); fn != nil {
			return cg.emitDirectCall(fn, e.Args)
		}
	}

	if lib := cg.fn.library; lib != nil {
		if fn := lib.LookupFunction(e.Name); fn != nil {
			return cg.emitDirectCall(fn, e.Args)
		}
	}

	for scope := cg.evalScope; scope != nil; scope = scope.Parent {
		if v, ok := scope.binding(e.Name); ok {
			idx, err := cg.literal(v)
			if err != nil {
				return err
			}
			cg.b.EmitUint16(OpPushLiteral, idx)
			argc, err := cg.compileArgs(e.Args)
			if err != nil {
				return err
			}
			cg.b.EmitByte(OpInvoke, argc)
			return nil
		}
	}

	return cg.unresolved(e.Name)
}

func (cg *codegen) emitDirectCall(fn *Function, args []compiler.Expr) error {
	if len(args) != len(fn.params) {
		return cg.errorf("'%s' expects %d arguments, got %d", fn.QualifiedName(), len(fn.params), len(args))
	}
	idx, err := cg.funcRef(fn)
	if err != nil {
		return err
	}
	argc, err := cg.compileArgs(args)
	if err != nil {
		return err
	}
	cg.b.EmitCall(OpCallFunc, idx, argc)
	return nil
}

// compileMethodCall handles r.m(args), including the C.m(args) static form
// when r names a class that no local shadows.
func (cg *codegen) compileMethodCall(e *compiler.MethodCall) error {
	if cls := cg.classReceiver(e.Receiver); cls != nil {
		fn := cls.LookupStatic(e.Method)
		if fn == nil {
			return cg.unresolved(cls.Name() + "." + e.Method)
		}
		return cg.emitDirectCall(fn, e.Args)
	}

	if err := cg.compileExpr(e.Receiver); err != nil {
		return err
	}
	nameIdx, err := cg.nameRef(e.Method)
	if err != nil {
		return err
	}
	argc, err := cg.compileArgs(e.Args)
	if err != nil {
		return err
	}
	cg.b.EmitCall(OpSend, nameIdx, argc)
	return nil
}

// compileMemberAccess handles r.n reads, including static members C.n.
func (cg *codegen) compileMemberAccess(e *compiler.MemberAccess) error {
	if cls := cg.classReceiver(e.Receiver); cls != nil {
		if sv := cls.LookupStaticVar(e.Name); sv != nil {
			idx, err := cg.globalRef(sv)
			if err != nil {
				return err
			}
			cg.b.EmitUint16(OpPushGlobal, idx)
			return nil
		}
		if fn := cls.LookupStatic(e.Name); fn != nil && fn.isGetter {
			idx, err := cg.funcRef(fn)
			if err != nil {
				return err
			}
			cg.b.EmitCall(OpCallFunc, idx, 0)
			return nil
		}
		return cg.unresolved(cls.Name() + "." + e.Name)
	}

	// this.f with a known slot becomes a direct field read.
	if _, isThis := e.Receiver.(*compiler.ThisExpr); isThis && cg.parent == nil {
		if recv := cg.receiverClass(); recv != nil {
			if slot, ok := recv.FieldSlot(e.Name); ok {
				cg.b.EmitByte(OpPushField, byte(slot))
				return nil
			}
		}
	}

	if err := cg.compileExpr(e.Receiver); err != nil {
		return err
	}
	nameIdx, err := cg.nameRef(e.Name)
	if err != nil {
		return err
	}
	cg.b.EmitUint16(OpGetMember, nameIdx)
	return nil
}

// classReceiver reports whether the receiver expression names a class that
// no local, capture or field shadows.
func (cg *codegen) classReceiver(recv compiler.Expr) *Class {
	id, ok := recv.(*compiler.Identifier)
	if !ok {
		return nil
	}
	if _, shadowed := cg.lookupLocal(id.Name); shadowed {
		return nil
	}
	for i := range cg.captures {
		if cg.captures[i].name == id.Name {
			return nil
		}
	}
	if rc := cg.receiverClass(); rc != nil {
		if _, shadowed := rc.FieldSlot(id.Name); shadowed {
			return nil
		}
	}
	return cg.lookupClass(id.Name)
}

// ---------------------------------------------------------------------------
// Closures
// ---------------------------------------------------------------------------

func (cg *codegen) compileClosure(e *compiler.ClosureExpr) error {
	closureFn := &Function{
		name:     "<closure>",
		owner:    cg.fn.owner,
		library:  cg.fn.library,
		script:   cg.fn.script,
		span:     e.Span(),
		params:   e.Params,
		body:     e.Body,
		isStatic: true, // closures have no receiver
	}

	child := newCodegen(cg.ctx, closureFn, cg, cg.evalScope)
	if err := child.compileBody(); err != nil {
		return err
	}
	closureFn.unoptimized.Store(child.finish())

	if len(child.captures) > math.MaxUint8 {
		return cg.errorf("closure captures too many variables")
	}
	for _, ref := range child.captures {
		switch ref.kind {
		case captureLocal:
			cg.b.EmitByte(OpPushLocal, byte(ref.index))
		case captureOuter:
			cg.b.EmitByte(OpPushCapture, byte(ref.index))
		}
	}
	idx, err := cg.funcRef(closureFn)
	if err != nil {
		return err
	}
	cg.b.EmitCall(OpMakeClosure, idx, byte(len(child.captures)))
	return nil
}
