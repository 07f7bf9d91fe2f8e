// Package frontend - Tokens for the GSM language
package frontend

import "fmt"

type TokenType int

const (
	EOF TokenType = iota
	ILLEGAL

	// Literals
	NUMBER
	IDENT

	// Keywords
	INT
	IF
	ELIF
	ELSE
	LOOPC
	BEGIN
	END
	AND
	OR

	// Operators
	PLUS
	MINUS
	STAR
	SLASH
	PERCENT
	CARET
	ASSIGN       // =
	PLUS_ASSIGN  // +=
	MINUS_ASSIGN // -=
	STAR_ASSIGN  // *=
	SLASH_ASSIGN // /=
	MOD_ASSIGN   // %=
	EQ           // ==
	NE           // !=
	LT           // <
	GT           // >
	LE           // <=
	GE           // >=

	// Delimiters
	COMMA
	SEMICOLON
	COLON
	LPAREN
	RPAREN
)

var tokenNames = [...]string{
	EOF:          "EOF",
	ILLEGAL:      "ILLEGAL",
	NUMBER:       "NUMBER",
	IDENT:        "IDENT",
	INT:          "int",
	IF:           "if",
	ELIF:         "elif",
	ELSE:         "else",
	LOOPC:        "loopc",
	BEGIN:        "begin",
	END:          "end",
	AND:          "and",
	OR:           "or",
	PLUS:         "+",
	MINUS:        "-",
	STAR:         "*",
	SLASH:        "/",
	PERCENT:      "%",
	CARET:        "^",
	ASSIGN:       "=",
	PLUS_ASSIGN:  "+=",
	MINUS_ASSIGN: "-=",
	STAR_ASSIGN:  "*=",
	SLASH_ASSIGN: "/=",
	MOD_ASSIGN:   "%=",
	EQ:           "==",
	NE:           "!=",
	LT:           "<",
	GT:           ">",
	LE:           "<=",
	GE:           ">=",
	COMMA:        ",",
	SEMICOLON:    ";",
	COLON:        ":",
	LPAREN:       "(",
	RPAREN:       ")",
}

func (t TokenType) String() string {
	if int(t) >= 0 && int(t) < len(tokenNames) {
		return tokenNames[t]
	}
	return fmt.Sprintf("TokenType(%d)", int(t))
}

var keywords = map[string]TokenType{
	"int":   INT,
	"if":    IF,
	"elif":  ELIF,
	"else":  ELSE,
	"loopc": LOOPC,
	"begin": BEGIN,
	"end":   END,
	"and":   AND,
	"or":    OR,
}

// Token is a single lexical unit. Line and Col are 1-based.
type Token struct {
	Type   TokenType
	Lexeme string
	Line   int
	Col    int
}

func (t Token) Pos() Pos {
	return Pos{Line: t.Line, Col: t.Col}
}

func (t Token) String() string {
	if t.Type == EOF {
		return "end of input"
	}
	return fmt.Sprintf("%q", t.Lexeme)
}

// isCompoundOp reports whether t can follow the target of an assignment.
func (t TokenType) isCompoundOp() bool {
	switch t {
	case ASSIGN, PLUS_ASSIGN, MINUS_ASSIGN, STAR_ASSIGN, SLASH_ASSIGN, MOD_ASSIGN:
		return true
	}
	return false
}

func (t TokenType) isCompareOp() bool {
	switch t {
	case EQ, NE, LT, GT, LE, GE:
		return true
	}
	return false
}
