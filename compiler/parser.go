package compiler

import (
	"fmt"
	"strconv"
	"strings"
)

// ---------------------------------------------------------------------------
// Parser: Recursive descent parser for Corvid syntax
// ---------------------------------------------------------------------------

// Parser parses Corvid source code into an AST.
type Parser struct {
	tokens []Token
	pos    int
	errors []string
	input  string // original source text (for source preservation)
}

// NewParser creates a new parser for the given input.
func NewParser(input string) *Parser {
	return &Parser{
		tokens: Tokenize(input),
		input:  input,
	}
}

// cur returns the current token.
func (p *Parser) cur() Token {
	if p.pos >= len(p.tokens) {
		return Token{Type: TokenEOF, End: len(p.input)}
	}
	return p.tokens[p.pos]
}

// peek returns the token n positions ahead.
func (p *Parser) peek(n int) Token {
	if p.pos+n >= len(p.tokens) {
		return Token{Type: TokenEOF, End: len(p.input)}
	}
	return p.tokens[p.pos+n]
}

// advance consumes the current token and returns it.
func (p *Parser) advance() Token {
	tok := p.cur()
	if p.pos < len(p.tokens) {
		p.pos++
	}
	return tok
}

// curIs checks if the current token is of the given type.
func (p *Parser) curIs(t TokenType) bool {
	return p.cur().Type == t
}

// expect consumes the current token if it matches, otherwise records an
// error. Returns the consumed token either way.
func (p *Parser) expect(t TokenType) Token {
	if p.curIs(t) {
		return p.advance()
	}
	p.errorf("expected %s, got %s", t, p.cur().Type)
	return p.cur()
}

// errorf records a parse error.
func (p *Parser) errorf(format string, args ...interface{}) {
	msg := fmt.Sprintf("line %d: %s", p.cur().Pos.Line, fmt.Sprintf(format, args...))
	p.errors = append(p.errors, msg)
}

// Errors returns accumulated parse errors.
func (p *Parser) Errors() []string {
	return p.errors
}

// err aggregates accumulated errors into a single error, or nil.
func (p *Parser) err() error {
	if len(p.errors) == 0 {
		return nil
	}
	return fmt.Errorf("parse: %s", strings.Join(p.errors, "; "))
}

// spanFrom builds a span from a start position to an end offset.
func spanFrom(start Position, end int) Span {
	return Span{Start: start, End: Position{Offset: end}}
}

// ---------------------------------------------------------------------------
// Top-level parsing
// ---------------------------------------------------------------------------

// Parse parses a complete program.
func (p *Parser) Parse() (*Program, error) {
	prog := &Program{Source: p.input}

	for !p.curIs(TokenEOF) {
		if p.curIs(TokenError) {
			p.errorf("%s", p.cur().Literal)
			break
		}
		start := p.pos
		decl := p.parseDecl()
		if decl != nil {
			prog.Decls = append(prog.Decls, decl)
		}
		if p.pos == start {
			// No progress; skip the offending token to avoid looping.
			p.advance()
		}
		if len(p.errors) > 8 {
			break
		}
	}

	prog.SpanVal = spanFrom(Position{Line: 1, Column: 1}, len(p.input))
	return prog, p.err()
}

// ParseExpressionText parses input as a single standalone expression.
func ParseExpressionText(input string) (Expr, error) {
	p := NewParser(input)
	expr := p.parseExpression()
	if expr == nil {
		p.errorf("expected expression")
	} else if !p.curIs(TokenEOF) {
		p.errorf("unexpected %s after expression", p.cur().Type)
	}
	return expr, p.err()
}

// parseDecl parses one top-level declaration.
func (p *Parser) parseDecl() Decl {
	switch p.cur().Type {
	case TokenClass:
		return p.parseClassDecl()
	case TokenVar:
		return p.parseVarDecl()
	case TokenGet:
		return p.parseGetterDecl(false)
	case TokenIdentifier:
		return p.parseFuncDecl(false)
	default:
		p.errorf("expected declaration, got %s", p.cur().Type)
		return nil
	}
}

// parseClassDecl parses: class Name [extends Super] { members }
func (p *Parser) parseClassDecl() Decl {
	start := p.cur().Pos
	p.expect(TokenClass)
	name := p.expect(TokenIdentifier)

	super := ""
	if p.curIs(TokenExtends) {
		p.advance()
		super = p.expect(TokenIdentifier).Literal
	}

	p.expect(TokenLBrace)

	cls := &ClassDecl{Name: name.Literal, Superclass: super}
	for !p.curIs(TokenRBrace) && !p.curIs(TokenEOF) {
		before := p.pos
		p.parseMember(cls)
		if p.pos == before {
			p.advance()
		}
		if len(p.errors) > 8 {
			break
		}
	}
	end := p.expect(TokenRBrace)

	cls.SpanVal = spanFrom(start, end.End)
	return cls
}

// parseMember parses a class member and appends it to cls.
func (p *Parser) parseMember(cls *ClassDecl) {
	start := p.cur().Pos
	isStatic := false
	if p.curIs(TokenStatic) {
		isStatic = true
		p.advance()
	}

	switch p.cur().Type {
	case TokenVar:
		f := p.parseVarDecl().(*VarDecl)
		field := &FieldDecl{
			SpanVal:  spanFrom(start, f.SpanVal.End.Offset),
			Name:     f.Name,
			Init:     f.Init,
			IsStatic: isStatic,
		}
		cls.Fields = append(cls.Fields, field)

	case TokenGet:
		g := p.parseGetterDecl(isStatic).(*FuncDecl)
		g.SpanVal = spanFrom(start, g.SpanVal.End.Offset)
		cls.Methods = append(cls.Methods, g)

	case TokenIdentifier:
		m := p.parseFuncDecl(isStatic).(*FuncDecl)
		m.SpanVal = spanFrom(start, m.SpanVal.End.Offset)
		cls.Methods = append(cls.Methods, m)

	default:
		p.errorf("expected class member, got %s", p.cur().Type)
	}
}

// parseVarDecl parses: var name [= expr] ;
func (p *Parser) parseVarDecl() Decl {
	start := p.cur().Pos
	p.expect(TokenVar)
	name := p.expect(TokenIdentifier)

	var init Expr
	if p.curIs(TokenAssign) {
		p.advance()
		init = p.parseExpression()
	}
	end := p.expect(TokenSemi)

	return &VarDecl{
		SpanVal: spanFrom(start, end.End),
		Name:    name.Literal,
		Init:    init,
	}
}

// parseGetterDecl parses: get name => expr ;
func (p *Parser) parseGetterDecl(isStatic bool) Decl {
	start := p.cur().Pos
	p.expect(TokenGet)
	name := p.expect(TokenIdentifier)
	p.expect(TokenArrow)
	value := p.parseExpression()
	end := p.expect(TokenSemi)

	span := spanFrom(start, end.End)
	return &FuncDecl{
		SpanVal:  span,
		Name:     name.Literal,
		Body:     []Stmt{&ReturnStmt{SpanVal: span, Value: value}},
		IsStatic: isStatic,
		IsGetter: true,
	}
}

// parseFuncDecl parses: name(params) { stmts }  or  name(params) => expr ;
func (p *Parser) parseFuncDecl(isStatic bool) Decl {
	start := p.cur().Pos
	name := p.expect(TokenIdentifier)
	params := p.parseParams()

	fn := &FuncDecl{Name: name.Literal, Params: params, IsStatic: isStatic}

	if p.curIs(TokenArrow) {
		p.advance()
		value := p.parseExpression()
		end := p.expect(TokenSemi)
		fn.SpanVal = spanFrom(start, end.End)
		fn.Body = []Stmt{&ReturnStmt{SpanVal: fn.SpanVal, Value: value}}
		return fn
	}

	body, end := p.parseBlock()
	fn.Body = body
	fn.SpanVal = spanFrom(start, end)
	return fn
}

// parseParams parses: ( name, name, ... )
func (p *Parser) parseParams() []string {
	p.expect(TokenLParen)
	var params []string
	for !p.curIs(TokenRParen) && !p.curIs(TokenEOF) {
		params = append(params, p.expect(TokenIdentifier).Literal)
		if p.curIs(TokenComma) {
			p.advance()
		} else {
			break
		}
	}
	p.expect(TokenRParen)
	return params
}

// parseBlock parses { stmts } and returns the statements plus the end offset
// just past the closing brace.
func (p *Parser) parseBlock() ([]Stmt, int) {
	p.expect(TokenLBrace)
	var stmts []Stmt
	for !p.curIs(TokenRBrace) && !p.curIs(TokenEOF) {
		before := p.pos
		stmt := p.parseStatement()
		if stmt != nil {
			stmts = append(stmts, stmt)
		}
		if p.pos == before {
			p.advance()
		}
		if len(p.errors) > 8 {
			break
		}
	}
	end := p.expect(TokenRBrace)
	return stmts, end.End
}

// ---------------------------------------------------------------------------
// Statements
// ---------------------------------------------------------------------------

// parseStatement parses a single statement.
func (p *Parser) parseStatement() Stmt {
	switch p.cur().Type {
	case TokenVar:
		d := p.parseVarDecl().(*VarDecl)
		return &VarStmt{SpanVal: d.SpanVal, Name: d.Name, Init: d.Init}

	case TokenReturn:
		start := p.advance().Pos
		var value Expr
		if !p.curIs(TokenSemi) {
			value = p.parseExpression()
		}
		end := p.expect(TokenSemi)
		return &ReturnStmt{SpanVal: spanFrom(start, end.End), Value: value}

	case TokenIf:
		return p.parseIf()

	case TokenWhile:
		start := p.advance().Pos
		p.expect(TokenLParen)
		cond := p.parseExpression()
		p.expect(TokenRParen)
		body, end := p.parseBlock()
		return &WhileStmt{SpanVal: spanFrom(start, end), Cond: cond, Body: body}

	default:
		start := p.cur().Pos
		expr := p.parseExpression()
		if expr == nil {
			p.errorf("expected statement")
			return nil
		}
		end := p.expect(TokenSemi)
		return &ExprStmt{SpanVal: spanFrom(start, end.End), Expr: expr}
	}
}

func (p *Parser) parseIf() Stmt {
	start := p.advance().Pos // consume 'if'
	p.expect(TokenLParen)
	cond := p.parseExpression()
	p.expect(TokenRParen)
	then, end := p.parseBlock()

	stmt := &IfStmt{Cond: cond, Then: then}
	if p.curIs(TokenElse) {
		p.advance()
		if p.curIs(TokenIf) {
			nested := p.parseIf()
			stmt.Else = []Stmt{nested}
			end = nested.Span().End.Offset
		} else {
			var elseEnd int
			stmt.Else, elseEnd = p.parseBlock()
			end = elseEnd
		}
	}
	stmt.SpanVal = spanFrom(start, end)
	return stmt
}

// ---------------------------------------------------------------------------
// Expressions (precedence climbing)
// ---------------------------------------------------------------------------

// parseExpression parses a full expression including assignment.
func (p *Parser) parseExpression() Expr {
	return p.parseAssignment()
}

func (p *Parser) parseAssignment() Expr {
	left := p.parseLogicalOr()
	if left == nil {
		return nil
	}
	if p.curIs(TokenAssign) {
		switch left.(type) {
		case *Identifier, *MemberAccess:
		default:
			p.errorf("invalid assignment target")
		}
		p.advance()
		value := p.parseAssignment()
		if value == nil {
			return nil
		}
		return &AssignExpr{
			SpanVal: spanFrom(left.Span().Start, value.Span().End.Offset),
			Target:  left,
			Value:   value,
		}
	}
	return left
}

func (p *Parser) parseLogicalOr() Expr {
	left := p.parseLogicalAnd()
	for left != nil && p.curIs(TokenOrOr) {
		p.advance()
		right := p.parseLogicalAnd()
		if right == nil {
			return nil
		}
		left = &LogicalExpr{
			SpanVal: spanFrom(left.Span().Start, right.Span().End.Offset),
			Op:      "||", Left: left, Right: right,
		}
	}
	return left
}

func (p *Parser) parseLogicalAnd() Expr {
	left := p.parseEquality()
	for left != nil && p.curIs(TokenAndAnd) {
		p.advance()
		right := p.parseEquality()
		if right == nil {
			return nil
		}
		left = &LogicalExpr{
			SpanVal: spanFrom(left.Span().Start, right.Span().End.Offset),
			Op:      "&&", Left: left, Right: right,
		}
	}
	return left
}

func (p *Parser) parseEquality() Expr {
	left := p.parseComparison()
	for left != nil && (p.curIs(TokenEq) || p.curIs(TokenNotEq)) {
		op := p.advance().Literal
		right := p.parseComparison()
		if right == nil {
			return nil
		}
		left = &BinaryExpr{
			SpanVal: spanFrom(left.Span().Start, right.Span().End.Offset),
			Op:      op, Left: left, Right: right,
		}
	}
	return left
}

func (p *Parser) parseComparison() Expr {
	left := p.parseAdditive()
	for left != nil && (p.curIs(TokenLT) || p.curIs(TokenGT) || p.curIs(TokenLE) || p.curIs(TokenGE)) {
		op := p.advance().Literal
		right := p.parseAdditive()
		if right == nil {
			return nil
		}
		left = &BinaryExpr{
			SpanVal: spanFrom(left.Span().Start, right.Span().End.Offset),
			Op:      op, Left: left, Right: right,
		}
	}
	return left
}

func (p *Parser) parseAdditive() Expr {
	left := p.parseMultiplicative()
	for left != nil && (p.curIs(TokenPlus) || p.curIs(TokenMinus)) {
		op := p.advance().Literal
		right := p.parseMultiplicative()
		if right == nil {
			return nil
		}
		left = &BinaryExpr{
			SpanVal: spanFrom(left.Span().Start, right.Span().End.Offset),
			Op:      op, Left: left, Right: right,
		}
	}
	return left
}

func (p *Parser) parseMultiplicative() Expr {
	left := p.parseUnary()
	for left != nil && (p.curIs(TokenStar) || p.curIs(TokenSlash) || p.curIs(TokenPercent)) {
		op := p.advance().Literal
		right := p.parseUnary()
		if right == nil {
			return nil
		}
		left = &BinaryExpr{
			SpanVal: spanFrom(left.Span().Start, right.Span().End.Offset),
			Op:      op, Left: left, Right: right,
		}
	}
	return left
}

func (p *Parser) parseUnary() Expr {
	if p.curIs(TokenMinus) || p.curIs(TokenBang) {
		tok := p.advance()
		operand := p.parseUnary()
		if operand == nil {
			return nil
		}
		return &UnaryExpr{
			SpanVal: spanFrom(tok.Pos, operand.Span().End.Offset),
			Op:      tok.Literal,
			Operand: operand,
		}
	}
	return p.parsePostfix()
}

// parsePostfix parses a primary expression followed by any number of
// member accesses, method calls, and invocations.
func (p *Parser) parsePostfix() Expr {
	expr := p.parsePrimary()
	for expr != nil {
		switch {
		case p.curIs(TokenDot):
			p.advance()
			name := p.expect(TokenIdentifier)
			if p.curIs(TokenLParen) {
				args, end := p.parseArgs()
				expr = &MethodCall{
					SpanVal:  spanFrom(expr.Span().Start, end),
					Receiver: expr,
					Method:   name.Literal,
					Args:     args,
				}
			} else {
				expr = &MemberAccess{
					SpanVal:  spanFrom(expr.Span().Start, name.End),
					Receiver: expr,
					Name:     name.Literal,
				}
			}

		case p.curIs(TokenLParen):
			args, end := p.parseArgs()
			expr = &InvokeExpr{
				SpanVal: spanFrom(expr.Span().Start, end),
				Callee:  expr,
				Args:    args,
			}

		default:
			return expr
		}
	}
	return expr
}

// parseArgs parses ( expr, expr, ... ) and returns the arguments plus the
// end offset just past the closing paren.
func (p *Parser) parseArgs() ([]Expr, int) {
	p.expect(TokenLParen)
	var args []Expr
	for !p.curIs(TokenRParen) && !p.curIs(TokenEOF) {
		arg := p.parseExpression()
		if arg == nil {
			break
		}
		args = append(args, arg)
		if p.curIs(TokenComma) {
			p.advance()
		} else {
			break
		}
	}
	end := p.expect(TokenRParen)
	return args, end.End
}

func (p *Parser) parsePrimary() Expr {
	tok := p.cur()
	switch tok.Type {
	case TokenInteger:
		p.advance()
		v, parseErr := strconv.ParseInt(tok.Literal, 10, 64)
		if parseErr != nil {
			p.errorf("invalid integer literal %q", tok.Literal)
			return nil
		}
		return &IntLiteral{SpanVal: spanFrom(tok.Pos, tok.End), Value: v}

	case TokenFloat:
		p.advance()
		v, parseErr := strconv.ParseFloat(tok.Literal, 64)
		if parseErr != nil {
			p.errorf("invalid float literal %q", tok.Literal)
			return nil
		}
		return &FloatLiteral{SpanVal: spanFrom(tok.Pos, tok.End), Value: v}

	case TokenString:
		p.advance()
		return p.buildStringLiteral(tok)

	case TokenTrue, TokenFalse:
		p.advance()
		return &BoolLiteral{SpanVal: spanFrom(tok.Pos, tok.End), Value: tok.Type == TokenTrue}

	case TokenNull:
		p.advance()
		return &NullLiteral{SpanVal: spanFrom(tok.Pos, tok.End)}

	case TokenThis:
		p.advance()
		return &ThisExpr{SpanVal: spanFrom(tok.Pos, tok.End)}

	case TokenIdentifier:
		p.advance()
		if p.curIs(TokenLParen) {
			args, end := p.parseArgs()
			return &CallExpr{
				SpanVal: spanFrom(tok.Pos, end),
				Name:    tok.Literal,
				Args:    args,
			}
		}
		return &Identifier{SpanVal: spanFrom(tok.Pos, tok.End), Name: tok.Literal}

	case TokenNew:
		p.advance()
		name := p.expect(TokenIdentifier)
		end := name.End
		if p.curIs(TokenLParen) {
			var args []Expr
			args, end = p.parseArgs()
			if len(args) > 0 {
				p.errorf("'new %s' takes no arguments", name.Literal)
			}
		}
		return &NewExpr{SpanVal: spanFrom(tok.Pos, end), ClassName: name.Literal}

	case TokenLParen:
		if p.startsClosure() {
			return p.parseClosure()
		}
		p.advance()
		expr := p.parseExpression()
		p.expect(TokenRParen)
		return expr

	case TokenError:
		p.errorf("%s", tok.Literal)
		p.advance()
		return nil

	default:
		p.errorf("unexpected %s", tok.Type)
		return nil
	}
}

// startsClosure reports whether the '(' at the current position opens a
// closure parameter list rather than a grouped expression. It scans to the
// matching ')' and checks for => or { after it.
func (p *Parser) startsClosure() bool {
	depth := 0
	for i := 0; ; i++ {
		tok := p.peek(i)
		switch tok.Type {
		case TokenLParen:
			depth++
		case TokenRParen:
			depth--
			if depth == 0 {
				after := p.peek(i + 1)
				return after.Type == TokenArrow || after.Type == TokenLBrace
			}
		case TokenEOF:
			return false
		}
	}
}

// parseClosure parses (params) => expr  or  (params) { stmts }.
func (p *Parser) parseClosure() Expr {
	start := p.cur().Pos
	params := p.parseParams()

	if p.curIs(TokenArrow) {
		p.advance()
		value := p.parseExpression()
		if value == nil {
			return nil
		}
		span := spanFrom(start, value.Span().End.Offset)
		return &ClosureExpr{
			SpanVal: span,
			Params:  params,
			Body:    []Stmt{&ReturnStmt{SpanVal: span, Value: value}},
		}
	}

	body, end := p.parseBlock()
	return &ClosureExpr{
		SpanVal: spanFrom(start, end),
		Params:  params,
		Body:    body,
	}
}

// ---------------------------------------------------------------------------
// String interpolation
// ---------------------------------------------------------------------------

// buildStringLiteral converts a string token into either a StringLiteral or,
// when it contains ${...} segments, an InterpString whose embedded
// expressions are parsed recursively.
func (p *Parser) buildStringLiteral(tok Token) Expr {
	raw := tok.Literal
	span := spanFrom(tok.Pos, tok.End)
	if !strings.Contains(raw, "${") {
		return &StringLiteral{SpanVal: span, Value: raw}
	}

	interp := &InterpString{SpanVal: span}
	rest := raw
	for {
		idx := strings.Index(rest, "${")
		if idx < 0 {
			break
		}
		if idx > 0 {
			interp.Parts = append(interp.Parts, &StringLiteral{SpanVal: span, Value: rest[:idx]})
		}
		inner, length, ok := scanInterpSegment(rest[idx+2:])
		if !ok {
			p.errorf("unterminated interpolation in string literal")
			return nil
		}
		expr, parseErr := ParseExpressionText(inner)
		if parseErr != nil {
			p.errorf("in interpolation: %v", parseErr)
			return nil
		}
		interp.Parts = append(interp.Parts, expr)
		rest = rest[idx+2+length+1:] // skip past ${, inner, and }
	}
	if rest != "" {
		interp.Parts = append(interp.Parts, &StringLiteral{SpanVal: span, Value: rest})
	}
	return interp
}

// scanInterpSegment finds the brace-balanced interpolation body at the start
// of s. Returns the body, its length, and whether a closing brace was found.
func scanInterpSegment(s string) (string, int, bool) {
	depth := 1
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return s[:i], i, true
			}
		}
	}
	return "", 0, false
}
