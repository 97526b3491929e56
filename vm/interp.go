package vm

import (
	"fmt"
	"strings"

	"github.com/corvidlang/corvid/compiler"
)

// ---------------------------------------------------------------------------
// Interpreter
// ---------------------------------------------------------------------------

// maxCallDepth bounds recursion before the interpreter reports overflow.
const maxCallDepth = 512

// Interpreter executes compiled code against an ExecutionContext. One
// interpreter serves one goroutine; create another for concurrent callers.
type Interpreter struct {
	ctx     *ExecutionContext
	mutator *Mutator
	depth   int
}

// NewInterpreter creates an interpreter attached to the context.
func NewInterpreter(ctx *ExecutionContext) *Interpreter {
	return &Interpreter{ctx: ctx, mutator: ctx.newMutator()}
}

// Context returns the interpreter's execution context.
func (in *Interpreter) Context() *ExecutionContext {
	return in.ctx
}

// CallFunction invokes a top-level or static function. Baseline code is
// compiled on first call; the invocation counter feeds tier-up decisions.
func (in *Interpreter) CallFunction(fn *Function, args ...Value) (Value, error) {
	v, err := in.call(fn, Null, nil, args)
	in.ctx.FlushWriteBuffer(in.mutator)
	return v, err
}

// CallMethod invokes an instance method on a receiver.
func (in *Interpreter) CallMethod(recv Value, fn *Function, args ...Value) (Value, error) {
	v, err := in.call(fn, recv, nil, args)
	in.ctx.FlushWriteBuffer(in.mutator)
	return v, err
}

// CallClosure invokes a closure value.
func (in *Interpreter) CallClosure(cl *Closure, args ...Value) (Value, error) {
	v, err := in.call(cl.Fn, Null, cl.Captures, args)
	in.ctx.FlushWriteBuffer(in.mutator)
	return v, err
}

// call is the shared activation path: ensure code, count the invocation,
// maybe schedule tier-up, then execute whichever tier is current. The frame
// pins the code object it entered with.
func (in *Interpreter) call(fn *Function, recv Value, captures []Value, args []Value) (Value, error) {
	if in.depth >= maxCallDepth {
		return Null, &RuntimeError{Function: fn.QualifiedName(), Message: "call stack overflow"}
	}

	if _, err := in.ctx.CompileUnoptimized(fn); err != nil {
		return Null, err
	}

	n := fn.invocations.Add(1)
	if t := in.ctx.hotThreshold; t > 0 && n == t && !fn.HasOptimizedCode() {
		// The worker may inspect the heap as soon as it attaches, so this
		// mutator's pending stores must be drained first.
		in.ctx.FlushWriteBuffer(in.mutator)
		in.ctx.ScheduleOptimization(fn)
	}

	code := fn.CurrentCode()
	if len(args) != code.numParams {
		return Null, &RuntimeError{
			Function: fn.QualifiedName(),
			Message:  fmt.Sprintf("expected %d arguments, got %d", code.numParams, len(args)),
		}
	}

	locals := make([]Value, code.numLocals)
	copy(locals, args)

	in.depth++
	v, err := in.execute(code, recv, locals, captures)
	in.depth--
	return v, err
}

func (in *Interpreter) rerr(code *CodeObject, format string, args ...interface{}) error {
	return &RuntimeError{Function: code.fn.QualifiedName(), Message: fmt.Sprintf(format, args...)}
}

// execute runs one activation to completion.
func (in *Interpreter) execute(code *CodeObject, recv Value, locals, captures []Value) (Value, error) {
	bc := code.bytecode
	stack := make([]Value, 0, 16)
	pc := 0

	push := func(v Value) { stack = append(stack, v) }
	pop := func() Value {
		v := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		return v
	}

	for pc < len(bc) {
		op := Opcode(bc[pc])
		pc++
		switch op {
		case OpNOP:

		case OpPOP:
			pop()

		case OpDUP:
			push(stack[len(stack)-1])

		case OpPushNull:
			push(Null)

		case OpPushTrue:
			push(True)

		case OpPushFalse:
			push(False)

		case OpPushThis:
			push(recv)

		case OpPushInt8:
			push(IntValue(int64(int8(bc[pc]))))
			pc++

		case OpPushInt32:
			push(IntValue(int64(int32(uint32(bc[pc]) | uint32(bc[pc+1])<<8 | uint32(bc[pc+2])<<16 | uint32(bc[pc+3])<<24))))
			pc += 4

		case OpPushFloat:
			r := NewBytecodeReader(bc)
			r.Seek(pc)
			push(FloatValue(r.ReadFloat64()))
			pc += 8

		case OpPushLiteral:
			idx := uint16(bc[pc]) | uint16(bc[pc+1])<<8
			pc += 2
			push(code.literals[idx])

		case OpPushLocal:
			push(locals[bc[pc]])
			pc++

		case OpStoreLocal:
			locals[bc[pc]] = pop()
			pc++

		case OpPushCapture:
			push(captures[bc[pc]])
			pc++

		case OpPushField:
			slot := int(bc[pc])
			pc++
			if !recv.IsObject() {
				return Null, in.rerr(code, "field read without an instance")
			}
			push(recv.AsObject().GetSlot(slot))

		case OpStoreField:
			slot := int(bc[pc])
			pc++
			if !recv.IsObject() {
				return Null, in.rerr(code, "field write without an instance")
			}
			obj := recv.AsObject()
			obj.SetSlot(slot, pop())
			in.mutator.recordWrite(obj)

		case OpPushGlobal:
			idx := uint16(bc[pc]) | uint16(bc[pc+1])<<8
			pc += 2
			v, err := code.globals[idx].Get(in.evalInitExpr)
			if err != nil {
				return Null, err
			}
			push(v)

		case OpStoreGlobal:
			idx := uint16(bc[pc]) | uint16(bc[pc+1])<<8
			pc += 2
			code.globals[idx].Set(pop())

		case OpGetMember:
			idx := uint16(bc[pc]) | uint16(bc[pc+1])<<8
			pc += 2
			name := code.names[idx]
			target := pop()
			v, err := in.getMember(code, target, name)
			if err != nil {
				return Null, err
			}
			push(v)

		case OpSetMember:
			idx := uint16(bc[pc]) | uint16(bc[pc+1])<<8
			pc += 2
			name := code.names[idx]
			val := pop()
			target := pop()
			if !target.IsObject() {
				return Null, in.rerr(code, "cannot set '%s' on %s", name, target.Kind())
			}
			obj := target.AsObject()
			slot, ok := obj.Class().FieldSlot(name)
			if !ok {
				return Null, in.rerr(code, "class '%s' has no field '%s'", obj.ClassName(), name)
			}
			obj.SetSlot(slot, val)
			in.mutator.recordWrite(obj)
			push(val)

		case OpSend:
			nameIdx := uint16(bc[pc]) | uint16(bc[pc+1])<<8
			argc := int(bc[pc+2])
			pc += 3
			name := code.names[nameIdx]
			args := make([]Value, argc)
			for i := argc - 1; i >= 0; i-- {
				args[i] = pop()
			}
			target := pop()
			v, err := in.send(code, target, name, args)
			if err != nil {
				return Null, err
			}
			push(v)

		case OpCallFunc:
			idx := uint16(bc[pc]) | uint16(bc[pc+1])<<8
			argc := int(bc[pc+2])
			pc += 3
			args := make([]Value, argc)
			for i := argc - 1; i >= 0; i-- {
				args[i] = pop()
			}
			v, err := in.call(code.funcs[idx], Null, nil, args)
			if err != nil {
				return Null, err
			}
			push(v)

		case OpInvoke:
			argc := int(bc[pc])
			pc++
			args := make([]Value, argc)
			for i := argc - 1; i >= 0; i-- {
				args[i] = pop()
			}
			callee := pop()
			if !callee.IsClosure() {
				return Null, in.rerr(code, "%s is not callable", callee.Kind())
			}
			cl := callee.AsClosure()
			v, err := in.call(cl.Fn, Null, cl.Captures, args)
			if err != nil {
				return Null, err
			}
			push(v)

		case OpMakeClosure:
			idx := uint16(bc[pc]) | uint16(bc[pc+1])<<8
			count := int(bc[pc+2])
			pc += 3
			caps := make([]Value, count)
			for i := count - 1; i >= 0; i-- {
				caps[i] = pop()
			}
			push(ClosureValue(&Closure{Fn: code.funcs[idx], Captures: caps}))

		case OpNew:
			idx := uint16(bc[pc]) | uint16(bc[pc+1])<<8
			pc += 2
			obj, err := in.instantiate(code.classes[idx])
			if err != nil {
				return Null, err
			}
			push(ObjectValue(obj))

		case OpAdd, OpSub, OpMul, OpDiv, OpMod, OpLT, OpGT, OpLE, OpGE:
			right := pop()
			left := pop()
			v, err := in.arith(code, op, left, right)
			if err != nil {
				return Null, err
			}
			push(v)

		case OpEQ:
			right := pop()
			left := pop()
			push(BoolValue(left.Equals(right)))

		case OpNE:
			right := pop()
			left := pop()
			push(BoolValue(!left.Equals(right)))

		case OpNeg:
			v := pop()
			switch {
			case v.IsInt():
				push(IntValue(-v.AsInt()))
			case v.IsFloat():
				push(FloatValue(-v.AsFloat()))
			default:
				return Null, in.rerr(code, "cannot negate %s", v.Kind())
			}

		case OpNot:
			v := pop()
			if !v.IsBool() {
				return Null, in.rerr(code, "'!' expects a boolean, got %s", v.Kind())
			}
			push(BoolValue(!v.AsBool()))

		case OpStringify:
			push(StringValue(pop().String()))

		case OpConcat:
			count := int(bc[pc])
			pc++
			var sb strings.Builder
			parts := stack[len(stack)-count:]
			for _, p := range parts {
				sb.WriteString(p.AsString())
			}
			stack = stack[:len(stack)-count]
			push(StringValue(sb.String()))

		case OpJump:
			off := int(int16(uint16(bc[pc]) | uint16(bc[pc+1])<<8))
			pc += 2 + off

		case OpJumpTrue, OpJumpFalse:
			off := int(int16(uint16(bc[pc]) | uint16(bc[pc+1])<<8))
			pc += 2
			cond := pop()
			if !cond.IsBool() {
				return Null, in.rerr(code, "condition is %s, not a boolean", cond.Kind())
			}
			if cond.AsBool() == (op == OpJumpTrue) {
				pc += off
			}

		case OpReturn:
			return pop(), nil

		case OpReturnNull:
			return Null, nil

		default:
			return Null, in.rerr(code, "invalid opcode 0x%02X at %d", byte(op), pc-1)
		}
	}
	return Null, nil
}

// ---------------------------------------------------------------------------
// Dispatch helpers
// ---------------------------------------------------------------------------

func (in *Interpreter) send(code *CodeObject, target Value, name string, args []Value) (Value, error) {
	if target.IsNull() {
		return Null, in.rerr(code, "method '%s' called on null", name)
	}
	if !target.IsObject() {
		return Null, in.rerr(code, "%s has no method '%s'", target.Kind(), name)
	}
	obj := target.AsObject()
	fn := obj.Class().LookupMethod(name)
	if fn == nil {
		return Null, in.rerr(code, "class '%s' has no method '%s'", obj.ClassName(), name)
	}
	return in.call(fn, target, nil, args)
}

func (in *Interpreter) getMember(code *CodeObject, target Value, name string) (Value, error) {
	if target.IsNull() {
		return Null, in.rerr(code, "member '%s' read on null", name)
	}
	if !target.IsObject() {
		return Null, in.rerr(code, "%s has no member '%s'", target.Kind(), name)
	}
	obj := target.AsObject()
	if slot, ok := obj.Class().FieldSlot(name); ok {
		return obj.GetSlot(slot), nil
	}
	if fn := obj.Class().LookupMethod(name); fn != nil && fn.IsGetter() {
		return in.call(fn, target, nil, nil)
	}
	return Null, in.rerr(code, "class '%s' has no member '%s'", obj.ClassName(), name)
}

// instantiate allocates an instance and runs field initializers along the
// superclass chain, root first.
func (in *Interpreter) instantiate(cls *Class) (*Object, error) {
	obj, err := in.ctx.allocateInstance(cls)
	if err != nil {
		return nil, err
	}
	var chain []*Class
	for c := cls; c != nil; c = c.super {
		chain = append(chain, c)
	}
	for i := len(chain) - 1; i >= 0; i-- {
		if initFn := chain[i].initFn; initFn != nil {
			if _, err := in.call(initFn, ObjectValue(obj), nil, nil); err != nil {
				return nil, err
			}
		}
	}
	return obj, nil
}

// arith implements the numeric operators. Integers stay integers; mixing in
// a float promotes. '+' also concatenates when both operands are strings.
func (in *Interpreter) arith(code *CodeObject, op Opcode, left, right Value) (Value, error) {
	if op == OpAdd && left.IsString() && right.IsString() {
		return StringValue(left.AsString() + right.AsString()), nil
	}

	bothInt := left.IsInt() && right.IsInt()
	numeric := (left.IsInt() || left.IsFloat()) && (right.IsInt() || right.IsFloat())
	if !numeric {
		return Null, in.rerr(code, "operator %s not defined for %s and %s", op, left.Kind(), right.Kind())
	}

	if bothInt {
		a, b := left.AsInt(), right.AsInt()
		switch op {
		case OpAdd:
			return IntValue(a + b), nil
		case OpSub:
			return IntValue(a - b), nil
		case OpMul:
			return IntValue(a * b), nil
		case OpDiv:
			if b == 0 {
				return Null, in.rerr(code, "integer division by zero")
			}
			return IntValue(a / b), nil
		case OpMod:
			if b == 0 {
				return Null, in.rerr(code, "integer modulo by zero")
			}
			return IntValue(a % b), nil
		case OpLT:
			return BoolValue(a < b), nil
		case OpGT:
			return BoolValue(a > b), nil
		case OpLE:
			return BoolValue(a <= b), nil
		case OpGE:
			return BoolValue(a >= b), nil
		}
	}

	a := left.AsFloat()
	if left.IsInt() {
		a = float64(left.AsInt())
	}
	b := right.AsFloat()
	if right.IsInt() {
		b = float64(right.AsInt())
	}
	switch op {
	case OpAdd:
		return FloatValue(a + b), nil
	case OpSub:
		return FloatValue(a - b), nil
	case OpMul:
		return FloatValue(a * b), nil
	case OpDiv:
		return FloatValue(a / b), nil
	case OpMod:
		return Null, in.rerr(code, "operator %% not defined for floats")
	case OpLT:
		return BoolValue(a < b), nil
	case OpGT:
		return BoolValue(a > b), nil
	case OpLE:
		return BoolValue(a <= b), nil
	case OpGE:
		return BoolValue(a >= b), nil
	}
	return Null, in.rerr(code, "unexpected operator %s", op)
}

// evalInitExpr runs a lazy initializer expression in root library scope.
func (in *Interpreter) evalInitExpr(expr compiler.Expr) (Value, error) {
	lib := in.ctx.rootLib
	fn := &Function{
		name:     "<lazy init>",
		owner:    lib.owner,
		library:  lib,
		isStatic: true,
		body: []compiler.Stmt{
			&compiler.ReturnStmt{SpanVal: expr.Span(), Value: expr},
		},
	}
	code, err := in.ctx.compileBaseline(fn, nil, nil)
	if err != nil {
		return Null, err
	}
	fn.unoptimized.Store(code)
	return in.call(fn, Null, nil, nil)
}
