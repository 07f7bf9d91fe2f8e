// Package frontend - Lexer for the GSM language
// Design: Hand-written scanner, one token of lookahead, never fails.
// Unknown characters become ILLEGAL tokens and are reported by the parser.
package frontend

import (
	"unicode"
)

type Lexer struct {
	source []rune
	start  int
	pos    int
	line   int
	col    int

	startLine int
	startCol  int
}

func NewLexer(source string) *Lexer {
	return &Lexer{
		source: []rune(source),
		line:   1,
		col:    1,
	}
}

// Tokenize scans the whole source and returns the token stream,
// always terminated by a single EOF token.
func Tokenize(source string) []Token {
	l := NewLexer(source)
	var toks []Token
	for {
		tok := l.Next()
		toks = append(toks, tok)
		if tok.Type == EOF {
			return toks
		}
	}
}

func (l *Lexer) Next() Token {
	l.skipWhitespace()

	l.start = l.pos
	l.startLine = l.line
	l.startCol = l.col

	if l.isAtEnd() {
		return l.makeToken(EOF)
	}

	c := l.advance()

	switch c {
	case '+':
		return l.withAssign(PLUS, PLUS_ASSIGN)
	case '-':
		return l.withAssign(MINUS, MINUS_ASSIGN)
	case '*':
		return l.withAssign(STAR, STAR_ASSIGN)
	case '/':
		return l.withAssign(SLASH, SLASH_ASSIGN)
	case '%':
		return l.withAssign(PERCENT, MOD_ASSIGN)
	case '=':
		return l.withAssign(ASSIGN, EQ)
	case '<':
		return l.withAssign(LT, LE)
	case '>':
		return l.withAssign(GT, GE)
	case '!':
		if l.match('=') {
			return l.makeToken(NE)
		}
		return l.makeToken(ILLEGAL)
	case '^':
		return l.makeToken(CARET)
	case ',':
		return l.makeToken(COMMA)
	case ';':
		return l.makeToken(SEMICOLON)
	case ':':
		return l.makeToken(COLON)
	case '(':
		return l.makeToken(LPAREN)
	case ')':
		return l.makeToken(RPAREN)
	}

	if isDigit(c) {
		return l.number()
	}

	if unicode.IsLetter(c) || c == '_' {
		return l.identifier()
	}

	return l.makeToken(ILLEGAL)
}

// withAssign returns long when the next character is '=', short otherwise.
func (l *Lexer) withAssign(short, long TokenType) Token {
	if l.match('=') {
		return l.makeToken(long)
	}
	return l.makeToken(short)
}

func (l *Lexer) skipWhitespace() {
	for !l.isAtEnd() {
		switch c := l.peek(); {
		case c == '\n':
			l.pos++
			l.line++
			l.col = 1
		case c == ' ' || c == '\t' || c == '\r':
			l.advance()
		case c == '#':
			for !l.isAtEnd() && l.peek() != '\n' {
				l.advance()
			}
		default:
			return
		}
	}
}

func (l *Lexer) number() Token {
	for isDigit(l.peek()) {
		l.advance()
	}
	return l.makeToken(NUMBER)
}

func (l *Lexer) identifier() Token {
	for unicode.IsLetter(l.peek()) || isDigit(l.peek()) || l.peek() == '_' {
		l.advance()
	}

	if kw, ok := keywords[string(l.source[l.start:l.pos])]; ok {
		return l.makeToken(kw)
	}
	return l.makeToken(IDENT)
}

func (l *Lexer) peek() rune {
	if l.isAtEnd() {
		return '\x00'
	}
	return l.source[l.pos]
}

func (l *Lexer) advance() rune {
	c := l.source[l.pos]
	l.pos++
	l.col++
	return c
}

func (l *Lexer) match(expected rune) bool {
	if l.isAtEnd() || l.source[l.pos] != expected {
		return false
	}
	l.pos++
	l.col++
	return true
}

func (l *Lexer) isAtEnd() bool {
	return l.pos >= len(l.source)
}

func (l *Lexer) makeToken(typ TokenType) Token {
	return Token{
		Type:   typ,
		Lexeme: string(l.source[l.start:l.pos]),
		Line:   l.startLine,
		Col:    l.startCol,
	}
}

// isDigit accepts ASCII digits only; strconv must be able to parse NUMBER lexemes.
func isDigit(c rune) bool {
	return c >= '0' && c <= '9'
}
