package vm

import "math"

// ---------------------------------------------------------------------------
// Optimizing compiler
// ---------------------------------------------------------------------------

// CompileOptimizedFunction produces and installs optimized code for fn,
// deriving it from the baseline tier. The baseline is compiled first when
// missing. Running activations are unaffected: they pinned the code they
// entered with, and the baseline slot is never cleared.
func (ctx *ExecutionContext) CompileOptimizedFunction(fn *Function) (*CodeObject, error) {
	if code := fn.optimized.Load(); code != nil {
		return code, nil
	}
	base, err := ctx.CompileUnoptimized(fn)
	if err != nil {
		return nil, err
	}

	bc := make([]byte, len(base.bytecode))
	copy(bc, base.bytecode)

	targets := jumpTargets(bc)
	changed := true
	for changed {
		changed = false
		if foldConstantArith(bc, targets) {
			changed = true
		}
		if threadConstantJumps(bc, targets) {
			changed = true
		}
		if elidePushPop(bc, targets) {
			changed = true
		}
	}

	code := base.derive(TierOptimized, bc)
	fn.optimized.Store(code)
	ctx.log.Debugf("compiled %s (optimized)", fn.QualifiedName())
	return code, nil
}

// jumpTargets returns the byte offsets some jump lands on. Rewrites must
// not fuse across one of these: the fused tail would be entered mid-pattern.
func jumpTargets(bc []byte) map[int]bool {
	targets := make(map[int]bool)
	pc := 0
	for pc < len(bc) {
		op := Opcode(bc[pc])
		operands := op.OperandBytes()
		switch op {
		case OpJump, OpJumpTrue, OpJumpFalse:
			off := int(int16(uint16(bc[pc+1]) | uint16(bc[pc+2])<<8))
			targets[pc+3+off] = true
		}
		pc += 1 + operands
	}
	return targets
}

// instructions returns the start offset of every instruction.
func instructions(bc []byte) []int {
	var starts []int
	pc := 0
	for pc < len(bc) {
		starts = append(starts, pc)
		pc += 1 + Opcode(bc[pc]).OperandBytes()
	}
	return starts
}

func fill(bc []byte, from, to int, op Opcode) {
	for i := from; i < to; i++ {
		bc[i] = byte(op)
	}
}

// foldConstantArith replaces PUSH_INT8 a, PUSH_INT8 b, <arith> with a
// single constant push. The three instructions span five bytes, exactly a
// PUSH_INT32, so jump offsets stay valid; comparisons become a one-byte
// boolean push padded with NOPs.
func foldConstantArith(bc []byte, targets map[int]bool) bool {
	changed := false
	starts := instructions(bc)
	for i := 0; i+2 < len(starts); i++ {
		p0, p1, p2 := starts[i], starts[i+1], starts[i+2]
		if Opcode(bc[p0]) != OpPushInt8 || Opcode(bc[p1]) != OpPushInt8 {
			continue
		}
		if targets[p1] || targets[p2] {
			continue
		}
		a := int64(int8(bc[p0+1]))
		b := int64(int8(bc[p1+1]))

		switch op := Opcode(bc[p2]); op {
		case OpAdd, OpSub, OpMul:
			var r int64
			switch op {
			case OpAdd:
				r = a + b
			case OpSub:
				r = a - b
			case OpMul:
				r = a * b
			}
			if r < math.MinInt32 || r > math.MaxInt32 {
				continue
			}
			bc[p0] = byte(OpPushInt32)
			bc[p0+1] = byte(r)
			bc[p0+2] = byte(r >> 8)
			bc[p0+3] = byte(r >> 16)
			bc[p0+4] = byte(r >> 24)
			changed = true

		case OpLT, OpGT, OpLE, OpGE, OpEQ, OpNE:
			var r bool
			switch op {
			case OpLT:
				r = a < b
			case OpGT:
				r = a > b
			case OpLE:
				r = a <= b
			case OpGE:
				r = a >= b
			case OpEQ:
				r = a == b
			case OpNE:
				r = a != b
			}
			if r {
				bc[p0] = byte(OpPushTrue)
			} else {
				bc[p0] = byte(OpPushFalse)
			}
			fill(bc, p0+1, p2+1, OpNOP)
			changed = true
		}
	}
	return changed
}

// threadConstantJumps resolves conditional jumps whose condition is a
// constant push. NOP padding left by earlier rewrites is skipped, but a
// jump may not land on the jump itself or inside the padding.
func threadConstantJumps(bc []byte, targets map[int]bool) bool {
	changed := false
	starts := instructions(bc)
	for i := 1; i < len(starts); i++ {
		p1 := starts[i]
		j := Opcode(bc[p1])
		if j != OpJumpTrue && j != OpJumpFalse {
			continue
		}
		blocked := targets[p1]
		k := i - 1
		for k >= 0 && Opcode(bc[starts[k]]) == OpNOP {
			if targets[starts[k]] {
				blocked = true
			}
			k--
		}
		if k < 0 || blocked {
			continue
		}
		p0 := starts[k]
		c := Opcode(bc[p0])
		if c != OpPushTrue && c != OpPushFalse {
			continue
		}
		taken := (c == OpPushTrue) == (j == OpJumpTrue)
		if taken {
			// Unconditional: drop the push, keep the jump.
			bc[p0] = byte(OpNOP)
			bc[p1] = byte(OpJump)
		} else {
			// Never taken: both instructions disappear.
			fill(bc, p0, p1+3, OpNOP)
		}
		changed = true
	}
	return changed
}

// elidePushPop removes a side-effect-free push that is immediately popped.
func elidePushPop(bc []byte, targets map[int]bool) bool {
	changed := false
	starts := instructions(bc)
	for i := 0; i+1 < len(starts); i++ {
		p0, p1 := starts[i], starts[i+1]
		if Opcode(bc[p1]) != OpPOP || targets[p1] {
			continue
		}
		switch Opcode(bc[p0]) {
		case OpPushNull, OpPushTrue, OpPushFalse, OpPushThis,
			OpPushInt8, OpPushInt32, OpPushFloat, OpPushLiteral,
			OpPushLocal, OpPushCapture:
			fill(bc, p0, p1+1, OpNOP)
			changed = true
		}
	}
	return changed
}
