package vm

import (
	"strings"
	"testing"
)

func TestBuilderEmitsOperands(t *testing.T) {
	b := NewBytecodeBuilder()
	b.EmitInt8(OpPushInt8, -7)
	b.EmitInt32(OpPushInt32, 1<<20)
	b.EmitUint16(OpPushLiteral, 0x1234)
	b.EmitCall(OpSend, 3, 2)
	b.Emit(OpReturn)

	r := NewBytecodeReader(b.Bytes())
	if op := r.ReadOpcode(); op != OpPushInt8 {
		t.Fatalf("opcode 1: %s", op)
	}
	if v := r.ReadInt8(); v != -7 {
		t.Errorf("int8 operand: %d", v)
	}
	if op := r.ReadOpcode(); op != OpPushInt32 {
		t.Fatalf("opcode 2: %s", op)
	}
	if v := r.ReadInt32(); v != 1<<20 {
		t.Errorf("int32 operand: %d", v)
	}
	if op := r.ReadOpcode(); op != OpPushLiteral {
		t.Fatalf("opcode 3: %s", op)
	}
	if v := r.ReadUint16(); v != 0x1234 {
		t.Errorf("uint16 operand: %04x", v)
	}
	if op := r.ReadOpcode(); op != OpSend {
		t.Fatalf("opcode 4: %s", op)
	}
	if idx := r.ReadUint16(); idx != 3 {
		t.Errorf("call index: %d", idx)
	}
	if argc := r.ReadByte(); argc != 2 {
		t.Errorf("call argc: %d", argc)
	}
	if op := r.ReadOpcode(); op != OpReturn {
		t.Fatalf("opcode 5: %s", op)
	}
	if r.HasMore() {
		t.Error("trailing bytes")
	}
}

func TestLabelForwardJumpIsPatched(t *testing.T) {
	b := NewBytecodeBuilder()
	done := b.NewLabel()
	b.Emit(OpPushTrue)
	b.EmitJump(OpJumpTrue, done)
	b.Emit(OpPushNull)
	b.Emit(OpReturn)
	b.Mark(done)
	b.Emit(OpReturnNull)

	bc := b.Bytes()
	// Jump operand starts at offset 2; target is the RETURN_NULL.
	off := int(int16(uint16(bc[2]) | uint16(bc[3])<<8))
	landing := 4 + off
	if Opcode(bc[landing]) != OpReturnNull {
		t.Errorf("forward jump lands on %s", Opcode(bc[landing]))
	}
}

func TestLabelBackwardJump(t *testing.T) {
	b := NewBytecodeBuilder()
	top := b.NewLabel()
	b.Mark(top)
	b.Emit(OpPushFalse)
	b.EmitJump(OpJumpFalse, top)
	b.Emit(OpReturnNull)

	bc := b.Bytes()
	off := int(int16(uint16(bc[2]) | uint16(bc[3])<<8))
	if landing := 4 + off; landing != 0 {
		t.Errorf("backward jump lands at %d, want 0", landing)
	}
}

func TestLabelMultipleReferences(t *testing.T) {
	b := NewBytecodeBuilder()
	out := b.NewLabel()
	b.EmitJump(OpJump, out)
	b.EmitJump(OpJump, out)
	b.Mark(out)
	b.Emit(OpReturnNull)

	bc := b.Bytes()
	for _, pos := range []int{0, 3} {
		off := int(int16(uint16(bc[pos+1]) | uint16(bc[pos+2])<<8))
		if landing := pos + 3 + off; landing != 6 {
			t.Errorf("jump at %d lands at %d, want 6", pos, landing)
		}
	}
}

func TestDisassembleListsInstructions(t *testing.T) {
	b := NewBytecodeBuilder()
	b.EmitInt8(OpPushInt8, 42)
	b.EmitByte(OpStoreLocal, 1)
	b.EmitByte(OpPushLocal, 1)
	b.Emit(OpReturn)

	dis := Disassemble(b.Bytes())
	for _, want := range []string{"PUSH_INT8 42", "STORE_LOCAL 1", "PUSH_LOCAL 1", "RETURN"} {
		if !strings.Contains(dis, want) {
			t.Errorf("disassembly missing %q:\n%s", want, dis)
		}
	}
	if lines := strings.Count(strings.TrimSpace(dis), "\n") + 1; lines != 4 {
		t.Errorf("%d lines disassembled, want 4", lines)
	}
}

func TestOpcodeInfo(t *testing.T) {
	if OpSend.OperandBytes() != 3 {
		t.Errorf("SEND operand bytes: %d", OpSend.OperandBytes())
	}
	if OpPushFloat.OperandBytes() != 8 {
		t.Errorf("PUSH_FLOAT operand bytes: %d", OpPushFloat.OperandBytes())
	}
	if OpNOP.OperandBytes() != 0 {
		t.Errorf("NOP operand bytes: %d", OpNOP.OperandBytes())
	}
	if name := Opcode(0xFF).Name(); !strings.Contains(name, "UNKNOWN") {
		t.Errorf("unknown opcode name: %s", name)
	}
}
