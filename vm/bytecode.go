package vm

import (
	"encoding/binary"
	"fmt"
	"math"
	"strings"
)

// ---------------------------------------------------------------------------
// Opcode definitions
// ---------------------------------------------------------------------------

// Opcode represents a single bytecode instruction.
type Opcode byte

// Stack Operations
const (
	OpNOP Opcode = 0x00 // no operation
	OpPOP Opcode = 0x01 // discard top of stack
	OpDUP Opcode = 0x02 // duplicate top of stack
)

// Push Constants
const (
	OpPushNull    Opcode = 0x10 // push null
	OpPushTrue    Opcode = 0x11 // push true
	OpPushFalse   Opcode = 0x12 // push false
	OpPushThis    Opcode = 0x13 // push the receiver
	OpPushInt8    Opcode = 0x14 // push 8-bit signed integer
	OpPushInt32   Opcode = 0x15 // push 32-bit signed integer
	OpPushFloat   Opcode = 0x16 // push inline float64 (8 bytes)
	OpPushLiteral Opcode = 0x17 // push literal from literal pool (16-bit index)
)

// Variable Operations
const (
	OpPushLocal   Opcode = 0x20 // push local/parameter (8-bit index)
	OpStoreLocal  Opcode = 0x21 // store into local (8-bit index)
	OpPushField   Opcode = 0x22 // push receiver instance field (8-bit slot)
	OpStoreField  Opcode = 0x23 // store into receiver instance field (8-bit slot)
	OpPushGlobal  Opcode = 0x24 // push library variable (16-bit index)
	OpStoreGlobal Opcode = 0x25 // store into library variable (16-bit index)
	OpPushCapture Opcode = 0x26 // push closure capture (8-bit index)
)

// Calls and Allocation
const (
	OpSend        Opcode = 0x30 // dynamic method call (16-bit name, 8-bit argc)
	OpGetMember   Opcode = 0x31 // dynamic field/getter read (16-bit name)
	OpSetMember   Opcode = 0x32 // dynamic field write (16-bit name)
	OpCallFunc    Opcode = 0x33 // direct call to a pooled function (16-bit index, 8-bit argc)
	OpInvoke      Opcode = 0x34 // call the closure on the stack (8-bit argc)
	OpMakeClosure Opcode = 0x35 // create closure (16-bit func index, 8-bit capture count)
	OpNew         Opcode = 0x36 // allocate instance via allocation stub (16-bit class index)
)

// Arithmetic and Comparison
const (
	OpAdd Opcode = 0x50 // +
	OpSub Opcode = 0x51 // -
	OpMul Opcode = 0x52 // *
	OpDiv Opcode = 0x53 // /
	OpMod Opcode = 0x54 // %
	OpNeg Opcode = 0x55 // unary -
	OpNot Opcode = 0x56 // unary !
	OpLT  Opcode = 0x57 // <
	OpGT  Opcode = 0x58 // >
	OpLE  Opcode = 0x59 // <=
	OpGE  Opcode = 0x5A // >=
	OpEQ  Opcode = 0x5B // ==
	OpNE  Opcode = 0x5C // !=
)

// Strings
const (
	OpStringify Opcode = 0x5D // replace top of stack with its string rendering
	OpConcat    Opcode = 0x5E // concatenate N strings from the stack (8-bit count)
)

// Control Flow
const (
	OpJump      Opcode = 0x60 // unconditional jump (16-bit offset)
	OpJumpTrue  Opcode = 0x61 // pop, jump if true (16-bit offset)
	OpJumpFalse Opcode = 0x62 // pop, jump if false (16-bit offset)
)

// Returns
const (
	OpReturn     Opcode = 0x70 // return top of stack
	OpReturnNull Opcode = 0x71 // return null
)

// ---------------------------------------------------------------------------
// Opcode metadata
// ---------------------------------------------------------------------------

// OpcodeInfo holds metadata about an opcode.
type OpcodeInfo struct {
	Name         string // human-readable name
	OperandBytes int    // number of operand bytes
	StackEffect  int    // net effect on stack (-1 = variable)
}

// opcodeTable maps opcodes to their metadata.
var opcodeTable = map[Opcode]OpcodeInfo{
	// Stack operations
	OpNOP: {"NOP", 0, 0},
	OpPOP: {"POP", 0, -1},
	OpDUP: {"DUP", 0, 1},

	// Push constants
	OpPushNull:    {"PUSH_NULL", 0, 1},
	OpPushTrue:    {"PUSH_TRUE", 0, 1},
	OpPushFalse:   {"PUSH_FALSE", 0, 1},
	OpPushThis:    {"PUSH_THIS", 0, 1},
	OpPushInt8:    {"PUSH_INT8", 1, 1},
	OpPushInt32:   {"PUSH_INT32", 4, 1},
	OpPushFloat:   {"PUSH_FLOAT", 8, 1},
	OpPushLiteral: {"PUSH_LITERAL", 2, 1},

	// Variables
	OpPushLocal:   {"PUSH_LOCAL", 1, 1},
	OpStoreLocal:  {"STORE_LOCAL", 1, 0},
	OpPushField:   {"PUSH_FIELD", 1, 1},
	OpStoreField:  {"STORE_FIELD", 1, 0},
	OpPushGlobal:  {"PUSH_GLOBAL", 2, 1},
	OpStoreGlobal: {"STORE_GLOBAL", 2, 0},
	OpPushCapture: {"PUSH_CAPTURE", 1, 1},

	// Calls and allocation
	OpSend:        {"SEND", 3, -1}, // variable: pops receiver + args, pushes result
	OpGetMember:   {"GET_MEMBER", 2, 0},
	OpSetMember:   {"SET_MEMBER", 2, -1}, // pops receiver + value, pushes value
	OpCallFunc:    {"CALL_FUNC", 3, -1},  // variable: pops args, pushes result
	OpInvoke:      {"INVOKE", 1, -1},     // variable: pops closure + args, pushes result
	OpMakeClosure: {"MAKE_CLOSURE", 3, -1},
	OpNew:         {"NEW", 2, 1},

	// Arithmetic and comparison
	OpAdd: {"ADD", 0, -1},
	OpSub: {"SUB", 0, -1},
	OpMul: {"MUL", 0, -1},
	OpDiv: {"DIV", 0, -1},
	OpMod: {"MOD", 0, -1},
	OpNeg: {"NEG", 0, 0},
	OpNot: {"NOT", 0, 0},
	OpLT:  {"LT", 0, -1},
	OpGT:  {"GT", 0, -1},
	OpLE:  {"LE", 0, -1},
	OpGE:  {"GE", 0, -1},
	OpEQ:  {"EQ", 0, -1},
	OpNE:  {"NE", 0, -1},

	// Strings
	OpStringify: {"STRINGIFY", 0, 0},
	OpConcat:    {"CONCAT", 1, -1}, // variable: pops N parts, pushes 1

	// Control flow
	OpJump:      {"JUMP", 2, 0},
	OpJumpTrue:  {"JUMP_TRUE", 2, -1},
	OpJumpFalse: {"JUMP_FALSE", 2, -1},

	// Returns
	OpReturn:     {"RETURN", 0, -1},
	OpReturnNull: {"RETURN_NULL", 0, 0},
}

// Info returns the metadata for an opcode.
func (op Opcode) Info() OpcodeInfo {
	if info, ok := opcodeTable[op]; ok {
		return info
	}
	return OpcodeInfo{Name: fmt.Sprintf("UNKNOWN_%02X", byte(op)), OperandBytes: 0, StackEffect: 0}
}

// Name returns the human-readable name for an opcode.
func (op Opcode) Name() string {
	return op.Info().Name
}

// OperandBytes returns the number of operand bytes for an opcode.
func (op Opcode) OperandBytes() int {
	return op.Info().OperandBytes
}

// String implements the Stringer interface.
func (op Opcode) String() string {
	return op.Name()
}

// ---------------------------------------------------------------------------
// BytecodeBuilder: Helper for constructing bytecode
// ---------------------------------------------------------------------------

// BytecodeBuilder helps construct bytecode sequences.
type BytecodeBuilder struct {
	bytes []byte
}

// NewBytecodeBuilder creates a new bytecode builder.
func NewBytecodeBuilder() *BytecodeBuilder {
	return &BytecodeBuilder{
		bytes: make([]byte, 0, 64),
	}
}

// Bytes returns the constructed bytecode.
func (b *BytecodeBuilder) Bytes() []byte {
	return b.bytes
}

// Len returns the current length.
func (b *BytecodeBuilder) Len() int {
	return len(b.bytes)
}

// Emit appends an opcode with no operands.
func (b *BytecodeBuilder) Emit(op Opcode) {
	b.bytes = append(b.bytes, byte(op))
}

// EmitByte appends an opcode with a single byte operand.
func (b *BytecodeBuilder) EmitByte(op Opcode, operand byte) {
	b.bytes = append(b.bytes, byte(op), operand)
}

// EmitInt8 appends an opcode with a signed 8-bit operand.
func (b *BytecodeBuilder) EmitInt8(op Opcode, operand int8) {
	b.bytes = append(b.bytes, byte(op), byte(operand))
}

// EmitUint16 appends an opcode with a 16-bit operand (little-endian).
func (b *BytecodeBuilder) EmitUint16(op Opcode, operand uint16) {
	b.bytes = append(b.bytes, byte(op), byte(operand), byte(operand>>8))
}

// EmitInt32 appends an opcode with a 32-bit operand (little-endian).
func (b *BytecodeBuilder) EmitInt32(op Opcode, operand int32) {
	b.bytes = append(b.bytes, byte(op))
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], uint32(operand))
	b.bytes = append(b.bytes, buf[:]...)
}

// EmitFloat64 appends an opcode with a 64-bit float operand.
func (b *BytecodeBuilder) EmitFloat64(op Opcode, operand float64) {
	b.bytes = append(b.bytes, byte(op))
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], math.Float64bits(operand))
	b.bytes = append(b.bytes, buf[:]...)
}

// EmitCall appends an instruction with a 16-bit index and an 8-bit argument
// count (SEND, CALL_FUNC, MAKE_CLOSURE).
func (b *BytecodeBuilder) EmitCall(op Opcode, index uint16, argc uint8) {
	b.bytes = append(b.bytes, byte(op), byte(index), byte(index>>8), argc)
}

// ---------------------------------------------------------------------------
// Label management for jumps
// ---------------------------------------------------------------------------

// Label represents a forward reference in bytecode.
type Label struct {
	resolved bool
	position int   // position to patch (if unresolved) or target (if resolved)
	refs     []int // positions that reference this label
}

// NewLabel creates an unresolved label.
func (b *BytecodeBuilder) NewLabel() *Label {
	return &Label{resolved: false, refs: make([]int, 0, 2)}
}

// Mark resolves a label to the current position.
func (b *BytecodeBuilder) Mark(label *Label) {
	if label.resolved {
		panic("label already resolved")
	}
	label.resolved = true
	label.position = len(b.bytes)

	// Patch all forward references
	for _, ref := range label.refs {
		offset := label.position - (ref + 2) // offset from after the operand
		b.bytes[ref] = byte(offset)
		b.bytes[ref+1] = byte(offset >> 8)
	}
	label.refs = nil
}

// EmitJump emits a jump instruction with a label.
func (b *BytecodeBuilder) EmitJump(op Opcode, label *Label) {
	b.bytes = append(b.bytes, byte(op))
	if label.resolved {
		// Backward jump: calculate offset
		offset := label.position - (len(b.bytes) + 2)
		b.bytes = append(b.bytes, byte(offset), byte(offset>>8))
	} else {
		// Forward jump: record position for later patching
		label.refs = append(label.refs, len(b.bytes))
		b.bytes = append(b.bytes, 0, 0) // placeholder
	}
}

// ---------------------------------------------------------------------------
// Bytecode reader for interpretation and disassembly
// ---------------------------------------------------------------------------

// BytecodeReader reads bytecode for interpretation or disassembly.
type BytecodeReader struct {
	bytes []byte
	pos   int
}

// NewBytecodeReader creates a reader for bytecode.
func NewBytecodeReader(bc []byte) *BytecodeReader {
	return &BytecodeReader{bytes: bc, pos: 0}
}

// Position returns the current read position.
func (r *BytecodeReader) Position() int {
	return r.pos
}

// HasMore returns true if there are more bytes to read.
func (r *BytecodeReader) HasMore() bool {
	return r.pos < len(r.bytes)
}

// ReadOpcode reads and returns the next opcode.
func (r *BytecodeReader) ReadOpcode() Opcode {
	if r.pos >= len(r.bytes) {
		panic("bytecode underflow")
	}
	op := Opcode(r.bytes[r.pos])
	r.pos++
	return op
}

// ReadByte reads a single byte operand.
func (r *BytecodeReader) ReadByte() byte {
	if r.pos >= len(r.bytes) {
		panic("bytecode underflow")
	}
	b := r.bytes[r.pos]
	r.pos++
	return b
}

// ReadInt8 reads a signed 8-bit operand.
func (r *BytecodeReader) ReadInt8() int8 {
	return int8(r.ReadByte())
}

// ReadUint16 reads a 16-bit operand (little-endian).
func (r *BytecodeReader) ReadUint16() uint16 {
	if r.pos+2 > len(r.bytes) {
		panic("bytecode underflow")
	}
	v := binary.LittleEndian.Uint16(r.bytes[r.pos:])
	r.pos += 2
	return v
}

// ReadInt16 reads a signed 16-bit operand (little-endian).
func (r *BytecodeReader) ReadInt16() int16 {
	return int16(r.ReadUint16())
}

// ReadInt32 reads a 32-bit operand (little-endian).
func (r *BytecodeReader) ReadInt32() int32 {
	if r.pos+4 > len(r.bytes) {
		panic("bytecode underflow")
	}
	v := binary.LittleEndian.Uint32(r.bytes[r.pos:])
	r.pos += 4
	return int32(v)
}

// ReadFloat64 reads a 64-bit float operand.
func (r *BytecodeReader) ReadFloat64() float64 {
	if r.pos+8 > len(r.bytes) {
		panic("bytecode underflow")
	}
	bits := binary.LittleEndian.Uint64(r.bytes[r.pos:])
	r.pos += 8
	return math.Float64frombits(bits)
}

// Skip advances the position by n bytes.
func (r *BytecodeReader) Skip(n int) {
	r.pos += n
}

// Seek sets the read position.
func (r *BytecodeReader) Seek(pos int) {
	r.pos = pos
}

// ---------------------------------------------------------------------------
// Disassembly
// ---------------------------------------------------------------------------

// DisassembleInstruction disassembles a single instruction at the reader's
// position. Returns the string representation and advances the reader.
func DisassembleInstruction(r *BytecodeReader) string {
	pos := r.Position()
	op := r.ReadOpcode()
	info := op.Info()

	switch op {
	// 8-bit operand
	case OpPushInt8:
		v := r.ReadInt8()
		return fmt.Sprintf("%04d  %s %d", pos, info.Name, v)

	case OpPushLocal, OpStoreLocal, OpPushField, OpStoreField, OpPushCapture,
		OpInvoke, OpConcat:
		idx := r.ReadByte()
		return fmt.Sprintf("%04d  %s %d", pos, info.Name, idx)

	// 16-bit operand
	case OpPushLiteral, OpPushGlobal, OpStoreGlobal, OpGetMember, OpSetMember, OpNew:
		idx := r.ReadUint16()
		return fmt.Sprintf("%04d  %s %d", pos, info.Name, idx)

	case OpJump, OpJumpTrue, OpJumpFalse:
		offset := r.ReadInt16()
		target := r.Position() + int(offset)
		return fmt.Sprintf("%04d  %s %d (-> %04d)", pos, info.Name, offset, target)

	// 32-bit operand
	case OpPushInt32:
		v := r.ReadInt32()
		return fmt.Sprintf("%04d  %s %d", pos, info.Name, v)

	// 64-bit operand
	case OpPushFloat:
		v := r.ReadFloat64()
		return fmt.Sprintf("%04d  %s %f", pos, info.Name, v)

	// Index + argument count
	case OpSend, OpCallFunc, OpMakeClosure:
		idx := r.ReadUint16()
		argc := r.ReadByte()
		return fmt.Sprintf("%04d  %s index=%d argc=%d", pos, info.Name, idx, argc)

	default:
		r.Skip(info.OperandBytes)
		return fmt.Sprintf("%04d  %s", pos, info.Name)
	}
}

// Disassemble returns a full disassembly of bytecode.
func Disassemble(bc []byte) string {
	r := NewBytecodeReader(bc)
	var sb strings.Builder
	for r.HasMore() {
		if sb.Len() > 0 {
			sb.WriteByte('\n')
		}
		sb.WriteString(DisassembleInstruction(r))
	}
	return sb.String()
}
