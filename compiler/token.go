package compiler

// ---------------------------------------------------------------------------
// Tokens for Corvid source
// ---------------------------------------------------------------------------

// TokenType identifies the kind of a lexical token.
type TokenType int

const (
	TokenEOF TokenType = iota
	TokenError

	// Literals and identifiers
	TokenIdentifier
	TokenInteger
	TokenFloat
	TokenString

	// Keywords
	TokenClass
	TokenExtends
	TokenStatic
	TokenVar
	TokenGet
	TokenNew
	TokenReturn
	TokenIf
	TokenElse
	TokenWhile
	TokenTrue
	TokenFalse
	TokenNull
	TokenThis

	// Punctuation
	TokenLParen // (
	TokenRParen // )
	TokenLBrace // {
	TokenRBrace // }
	TokenComma  // ,
	TokenSemi   // ;
	TokenDot    // .
	TokenArrow  // =>
	TokenAssign // =

	// Operators
	TokenPlus    // +
	TokenMinus   // -
	TokenStar    // *
	TokenSlash   // /
	TokenPercent // %
	TokenBang    // !
	TokenEq      // ==
	TokenNotEq   // !=
	TokenLT      // <
	TokenGT      // >
	TokenLE      // <=
	TokenGE      // >=
	TokenAndAnd  // &&
	TokenOrOr    // ||
)

var tokenNames = map[TokenType]string{
	TokenEOF:        "EOF",
	TokenError:      "ERROR",
	TokenIdentifier: "IDENT",
	TokenInteger:    "INT",
	TokenFloat:      "FLOAT",
	TokenString:     "STRING",
	TokenClass:      "class",
	TokenExtends:    "extends",
	TokenStatic:     "static",
	TokenVar:        "var",
	TokenGet:        "get",
	TokenNew:        "new",
	TokenReturn:     "return",
	TokenIf:         "if",
	TokenElse:       "else",
	TokenWhile:      "while",
	TokenTrue:       "true",
	TokenFalse:      "false",
	TokenNull:       "null",
	TokenThis:       "this",
	TokenLParen:     "(",
	TokenRParen:     ")",
	TokenLBrace:     "{",
	TokenRBrace:     "}",
	TokenComma:      ",",
	TokenSemi:       ";",
	TokenDot:        ".",
	TokenArrow:      "=>",
	TokenAssign:     "=",
	TokenPlus:       "+",
	TokenMinus:      "-",
	TokenStar:       "*",
	TokenSlash:      "/",
	TokenPercent:    "%",
	TokenBang:       "!",
	TokenEq:         "==",
	TokenNotEq:      "!=",
	TokenLT:         "<",
	TokenGT:         ">",
	TokenLE:         "<=",
	TokenGE:         ">=",
	TokenAndAnd:     "&&",
	TokenOrOr:       "||",
}

// String returns a human-readable name for the token type.
func (t TokenType) String() string {
	if name, ok := tokenNames[t]; ok {
		return name
	}
	return "UNKNOWN"
}

// reservedWords maps keyword spellings to their token types.
var reservedWords = map[string]TokenType{
	"class":   TokenClass,
	"extends": TokenExtends,
	"static":  TokenStatic,
	"var":     TokenVar,
	"get":     TokenGet,
	"new":     TokenNew,
	"return":  TokenReturn,
	"if":      TokenIf,
	"else":    TokenElse,
	"while":   TokenWhile,
	"true":    TokenTrue,
	"false":   TokenFalse,
	"null":    TokenNull,
	"this":    TokenThis,
}

// Position is a location in source text.
type Position struct {
	Offset int // byte offset, 0-based
	Line   int // 1-based
	Column int // 1-based
}

// Token is a single lexical token. End is the byte offset just past the
// token, used to recover verbatim declaration source text.
type Token struct {
	Type    TokenType
	Literal string
	Pos     Position
	End     int
}
