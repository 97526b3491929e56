package compiler

// ---------------------------------------------------------------------------
// AST: Abstract Syntax Tree for Corvid
// ---------------------------------------------------------------------------

// Span represents a range in source code. End is exclusive.
type Span struct {
	Start Position
	End   Position
}

// Node is the interface implemented by all AST nodes.
type Node interface {
	Span() Span
	node() // marker method
}

// ---------------------------------------------------------------------------
// Expression nodes
// ---------------------------------------------------------------------------

// Expr is the interface for expression nodes.
type Expr interface {
	Node
	expr() // marker method
}

// IntLiteral represents an integer literal.
type IntLiteral struct {
	SpanVal Span
	Value   int64
}

func (n *IntLiteral) Span() Span { return n.SpanVal }
func (n *IntLiteral) node()      {}
func (n *IntLiteral) expr()      {}

// FloatLiteral represents a floating-point literal.
type FloatLiteral struct {
	SpanVal Span
	Value   float64
}

func (n *FloatLiteral) Span() Span { return n.SpanVal }
func (n *FloatLiteral) node()      {}
func (n *FloatLiteral) expr()      {}

// StringLiteral represents a string literal without interpolation.
type StringLiteral struct {
	SpanVal Span
	Value   string
}

func (n *StringLiteral) Span() Span { return n.SpanVal }
func (n *StringLiteral) node()      {}
func (n *StringLiteral) expr()      {}

// InterpString represents a string literal with ${...} interpolation.
// Parts alternate between StringLiteral segments and arbitrary expressions,
// in source order.
type InterpString struct {
	SpanVal Span
	Parts   []Expr
}

func (n *InterpString) Span() Span { return n.SpanVal }
func (n *InterpString) node()      {}
func (n *InterpString) expr()      {}

// BoolLiteral represents true or false.
type BoolLiteral struct {
	SpanVal Span
	Value   bool
}

func (n *BoolLiteral) Span() Span { return n.SpanVal }
func (n *BoolLiteral) node()      {}
func (n *BoolLiteral) expr()      {}

// NullLiteral represents null.
type NullLiteral struct {
	SpanVal Span
}

func (n *NullLiteral) Span() Span { return n.SpanVal }
func (n *NullLiteral) node()      {}
func (n *NullLiteral) expr()      {}

// Identifier represents a bare name reference.
type Identifier struct {
	SpanVal Span
	Name    string
}

func (n *Identifier) Span() Span { return n.SpanVal }
func (n *Identifier) node()      {}
func (n *Identifier) expr()      {}

// ThisExpr represents the receiver reference.
type ThisExpr struct {
	SpanVal Span
}

func (n *ThisExpr) Span() Span { return n.SpanVal }
func (n *ThisExpr) node()      {}
func (n *ThisExpr) expr()      {}

// UnaryExpr represents a prefix operation (-x, !x).
type UnaryExpr struct {
	SpanVal Span
	Op      string
	Operand Expr
}

func (n *UnaryExpr) Span() Span { return n.SpanVal }
func (n *UnaryExpr) node()      {}
func (n *UnaryExpr) expr()      {}

// BinaryExpr represents an infix operation.
type BinaryExpr struct {
	SpanVal Span
	Op      string
	Left    Expr
	Right   Expr
}

func (n *BinaryExpr) Span() Span { return n.SpanVal }
func (n *BinaryExpr) node()      {}
func (n *BinaryExpr) expr()      {}

// LogicalExpr represents short-circuit && or ||.
type LogicalExpr struct {
	SpanVal Span
	Op      string
	Left    Expr
	Right   Expr
}

func (n *LogicalExpr) Span() Span { return n.SpanVal }
func (n *LogicalExpr) node()      {}
func (n *LogicalExpr) expr()      {}

// CallExpr represents a direct call of a named function: f(a, b).
type CallExpr struct {
	SpanVal Span
	Name    string
	Args    []Expr
}

func (n *CallExpr) Span() Span { return n.SpanVal }
func (n *CallExpr) node()      {}
func (n *CallExpr) expr()      {}

// InvokeExpr represents invocation of an arbitrary callee expression:
// (expr)(a, b). The callee must evaluate to a closure.
type InvokeExpr struct {
	SpanVal Span
	Callee  Expr
	Args    []Expr
}

func (n *InvokeExpr) Span() Span { return n.SpanVal }
func (n *InvokeExpr) node()      {}
func (n *InvokeExpr) expr()      {}

// MethodCall represents receiver.method(args).
type MethodCall struct {
	SpanVal  Span
	Receiver Expr
	Method   string
	Args     []Expr
}

func (n *MethodCall) Span() Span { return n.SpanVal }
func (n *MethodCall) node()      {}
func (n *MethodCall) expr()      {}

// MemberAccess represents receiver.name (field or getter access).
type MemberAccess struct {
	SpanVal  Span
	Receiver Expr
	Name     string
}

func (n *MemberAccess) Span() Span { return n.SpanVal }
func (n *MemberAccess) node()      {}
func (n *MemberAccess) expr()      {}

// NewExpr represents instantiation: new C().
type NewExpr struct {
	SpanVal   Span
	ClassName string
}

func (n *NewExpr) Span() Span { return n.SpanVal }
func (n *NewExpr) node()      {}
func (n *NewExpr) expr()      {}

// ClosureExpr represents an anonymous function: (params) => expr
// or (params) { stmts }.
type ClosureExpr struct {
	SpanVal Span
	Params  []string
	Body    []Stmt // single ReturnStmt for => form
}

func (n *ClosureExpr) Span() Span { return n.SpanVal }
func (n *ClosureExpr) node()      {}
func (n *ClosureExpr) expr()      {}

// AssignExpr represents assignment to a name or member: x = e, r.f = e.
// Target is an *Identifier or *MemberAccess.
type AssignExpr struct {
	SpanVal Span
	Target  Expr
	Value   Expr
}

func (n *AssignExpr) Span() Span { return n.SpanVal }
func (n *AssignExpr) node()      {}
func (n *AssignExpr) expr()      {}

// ---------------------------------------------------------------------------
// Statement nodes
// ---------------------------------------------------------------------------

// Stmt is the interface for statement nodes.
type Stmt interface {
	Node
	stmt() // marker method
}

// VarStmt declares a local variable.
type VarStmt struct {
	SpanVal Span
	Name    string
	Init    Expr // nil means null
}

func (n *VarStmt) Span() Span { return n.SpanVal }
func (n *VarStmt) node()      {}
func (n *VarStmt) stmt()      {}

// ReturnStmt returns a value from the enclosing function.
type ReturnStmt struct {
	SpanVal Span
	Value   Expr // nil means null
}

func (n *ReturnStmt) Span() Span { return n.SpanVal }
func (n *ReturnStmt) node()      {}
func (n *ReturnStmt) stmt()      {}

// ExprStmt wraps an expression evaluated for effect.
type ExprStmt struct {
	SpanVal Span
	Expr    Expr
}

func (n *ExprStmt) Span() Span { return n.SpanVal }
func (n *ExprStmt) node()      {}
func (n *ExprStmt) stmt()      {}

// IfStmt is a conditional with optional else branch.
type IfStmt struct {
	SpanVal Span
	Cond    Expr
	Then    []Stmt
	Else    []Stmt // nil when absent
}

func (n *IfStmt) Span() Span { return n.SpanVal }
func (n *IfStmt) node()      {}
func (n *IfStmt) stmt()      {}

// WhileStmt is a pre-test loop.
type WhileStmt struct {
	SpanVal Span
	Cond    Expr
	Body    []Stmt
}

func (n *WhileStmt) Span() Span { return n.SpanVal }
func (n *WhileStmt) node()      {}
func (n *WhileStmt) stmt()      {}

// ---------------------------------------------------------------------------
// Declaration nodes
// ---------------------------------------------------------------------------

// Decl is the interface for top-level and class-member declarations.
type Decl interface {
	Node
	decl() // marker method
}

// FuncDecl declares a function, method, or getter.
type FuncDecl struct {
	SpanVal  Span
	Name     string
	Params   []string
	Body     []Stmt
	IsStatic bool // class-side method
	IsGetter bool // declared with 'get', callable without parens
}

func (n *FuncDecl) Span() Span { return n.SpanVal }
func (n *FuncDecl) node()      {}
func (n *FuncDecl) decl()      {}

// FieldDecl declares an instance or static field with optional initializer.
type FieldDecl struct {
	SpanVal  Span
	Name     string
	Init     Expr // nil means null
	IsStatic bool
}

func (n *FieldDecl) Span() Span { return n.SpanVal }
func (n *FieldDecl) node()      {}
func (n *FieldDecl) decl()      {}

// ClassDecl declares a class.
type ClassDecl struct {
	SpanVal    Span
	Name       string
	Superclass string // "" means none
	Fields     []*FieldDecl
	Methods    []*FuncDecl
}

func (n *ClassDecl) Span() Span { return n.SpanVal }
func (n *ClassDecl) node()      {}
func (n *ClassDecl) decl()      {}

// VarDecl declares a top-level variable.
type VarDecl struct {
	SpanVal Span
	Name    string
	Init    Expr // nil means null
}

func (n *VarDecl) Span() Span { return n.SpanVal }
func (n *VarDecl) node()      {}
func (n *VarDecl) decl()      {}

// Program is a parsed compilation unit.
type Program struct {
	SpanVal Span
	Decls   []Decl
	Source  string // the original source text, verbatim
}

func (n *Program) Span() Span { return n.SpanVal }
func (n *Program) node()      {}

// SourceFor returns the verbatim source text for a node parsed from this
// program.
func (p *Program) SourceFor(n Node) string {
	sp := n.Span()
	if sp.Start.Offset < 0 || sp.End.Offset > len(p.Source) || sp.Start.Offset > sp.End.Offset {
		return ""
	}
	return p.Source[sp.Start.Offset:sp.End.Offset]
}
