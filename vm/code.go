package vm

// ---------------------------------------------------------------------------
// CodeObject: one compiled tier of a function
// ---------------------------------------------------------------------------

// Tier identifies which compiler produced a CodeObject.
type Tier int

const (
	// TierUnoptimized is the baseline tier with full dynamic checks.
	TierUnoptimized Tier = iota
	// TierOptimized is produced by the background optimizing compiler.
	TierOptimized
)

func (t Tier) String() string {
	switch t {
	case TierUnoptimized:
		return "unoptimized"
	case TierOptimized:
		return "optimized"
	}
	return "unknown"
}

// CodeObject is the executable result of compiling one function at one tier.
// A function may hold at most one CodeObject per tier; both tiers share the
// same pools so an optimized body can be derived from the unoptimized one
// without re-resolving anything.
//
// A CodeObject is immutable after installation. Frames keep a reference to
// the CodeObject they entered with, so replacing a function's current code
// never affects activations already running.
type CodeObject struct {
	fn   *Function // the function this code belongs to
	tier Tier

	bytecode []byte

	// Pools referenced by 16-bit operands.
	literals []Value      // PUSH_LITERAL
	names    []string     // SEND, GET_MEMBER, SET_MEMBER
	funcs    []*Function  // CALL_FUNC, MAKE_CLOSURE
	classes  []*Class     // NEW
	globals  []*GlobalVar // PUSH_GLOBAL, STORE_GLOBAL

	numParams int
	numLocals int // parameters plus declared locals
}

// Function returns the function this code was compiled from.
func (c *CodeObject) Function() *Function {
	return c.fn
}

// Tier reports which compiler produced this code.
func (c *CodeObject) Tier() Tier {
	return c.tier
}

// IsOptimized reports whether this code came from the optimizing tier.
func (c *CodeObject) IsOptimized() bool {
	return c.tier == TierOptimized
}

// Bytecode returns the instruction stream.
func (c *CodeObject) Bytecode() []byte {
	return c.bytecode
}

// NumParams returns the declared parameter count.
func (c *CodeObject) NumParams() int {
	return c.numParams
}

// NumLocals returns the frame slot count (parameters included).
func (c *CodeObject) NumLocals() int {
	return c.numLocals
}

// LiteralAt returns the literal pool entry at index i.
func (c *CodeObject) LiteralAt(i int) Value {
	return c.literals[i]
}

// NameAt returns the name pool entry at index i.
func (c *CodeObject) NameAt(i int) string {
	return c.names[i]
}

// Disassembly returns a readable listing of the instruction stream.
func (c *CodeObject) Disassembly() string {
	return Disassemble(c.bytecode)
}

// derive returns a new CodeObject at the given tier sharing this one's pools
// but with a different instruction stream. Used by the optimizing compiler,
// whose rewrites never add pool entries.
func (c *CodeObject) derive(tier Tier, bytecode []byte) *CodeObject {
	return &CodeObject{
		fn:        c.fn,
		tier:      tier,
		bytecode:  bytecode,
		literals:  c.literals,
		names:     c.names,
		funcs:     c.funcs,
		classes:   c.classes,
		globals:   c.globals,
		numParams: c.numParams,
		numLocals: c.numLocals,
	}
}
