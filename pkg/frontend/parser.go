// Package frontend - Recursive descent parser for the GSM language
// Design: one method per grammar rule, each leaves the cursor on the first
// token it did not consume. A failed rule records one error and returns nil;
// the statement loop then resynchronizes at the next statement boundary.
package frontend

import (
	"fmt"
)

type Parser struct {
	tokens  []Token
	pos     int
	current Token
	errors  ErrorList
}

func NewParser(tokens []Token) *Parser {
	if n := len(tokens); n == 0 || tokens[n-1].Type != EOF {
		eof := Token{Type: EOF, Line: 1, Col: 1}
		if n > 0 {
			last := tokens[n-1]
			eof.Line, eof.Col = last.Line, last.Col+len([]rune(last.Lexeme))
		}
		tokens = append(tokens[:n:n], eof)
	}
	return &Parser{
		tokens:  tokens,
		current: tokens[0],
	}
}

// Parse builds the program. ok is false when any syntax error was recorded;
// the partial tree is still returned for diagnostics and must not be
// handed to the code generator.
func (p *Parser) Parse() (prog *Program, ok bool) {
	prog = &Program{}

	for !p.check(EOF) {
		if stmt := p.statement(); stmt != nil {
			prog.Stmts = append(prog.Stmts, stmt)
			continue
		}
		p.synchronize()
		if p.check(END) {
			p.advance()
		}
	}

	return prog, p.errors.Count() == 0
}

// Errors returns the recorded diagnostics in source order.
func (p *Parser) Errors() []*SyntaxError {
	return p.errors.Errors
}

// ErrorList returns the diagnostics as an error value, or nil.
func (p *Parser) ErrorList() error {
	return p.errors.ToError()
}

func (p *Parser) statement() Stmt {
	switch p.current.Type {
	case INT:
		if d := p.declaration(); d != nil {
			return d
		}
	case IDENT:
		if a := p.assignment(); a != nil {
			return a
		}
	case IF:
		if c := p.conditional(); c != nil {
			return c
		}
	case LOOPC:
		if l := p.loop(); l != nil {
			return l
		}
	default:
		p.error("expected declaration, assignment, 'if' or 'loopc'")
	}
	return nil
}

// declaration := "int" Name ("=" Expression)? ("," Name ("=" Expression)?)* ";"
func (p *Parser) declaration() *Declaration {
	decl := &Declaration{At: p.advance().Pos()}

	for {
		if !p.check(IDENT) {
			p.error("expected variable name")
			return nil
		}
		decl.Names = append(decl.Names, p.advance().Lexeme)

		var init Expr
		if p.match(ASSIGN) {
			p.advance()
			if init = p.expression(); init == nil {
				return nil
			}
		}
		decl.Inits = append(decl.Inits, init)

		if !p.match(COMMA) {
			break
		}
		p.advance()
	}

	if !p.consume(SEMICOLON, "expected ';' after declaration") {
		return nil
	}
	return decl
}

// assignment := Name CompoundOp Expression ";"
func (p *Parser) assignment() *Assignment {
	if !p.check(IDENT) {
		p.error("expected variable name")
		return nil
	}
	target := p.advance()

	if !p.current.Type.isCompoundOp() {
		p.error(fmt.Sprintf("expected assignment operator after %q", target.Lexeme))
		return nil
	}
	op := assignOpFromToken(p.advance().Type)

	value := p.expression()
	if value == nil {
		return nil
	}

	if !p.consume(SEMICOLON, "expected ';' after assignment") {
		return nil
	}

	return &Assignment{
		Target: target.Lexeme,
		Op:     op,
		Value:  value,
		At:     target.Pos(),
	}
}

// conditional := "if" Condition ":" Block ("elif" Condition ":" Block)* ("else" ":" Block)?
func (p *Parser) conditional() *Conditional {
	cond := &Conditional{At: p.advance().Pos()}

	if !p.branch(cond) {
		return nil
	}

	for p.match(ELIF) {
		p.advance()
		if !p.branch(cond) {
			return nil
		}
	}

	if p.match(ELSE) {
		p.advance()
		if !p.consume(COLON, "expected ':' after 'else'") {
			return nil
		}
		if cond.Else = p.block(); cond.Else == nil {
			return nil
		}
	}

	return cond
}

// branch parses one `Condition ":" Block` pair of an if/elif chain.
func (p *Parser) branch(cond *Conditional) bool {
	c := p.condition()
	if c == nil {
		return false
	}
	if !p.consume(COLON, "expected ':' after condition") {
		return false
	}
	blk := p.block()
	if blk == nil {
		return false
	}
	cond.Conds = append(cond.Conds, c)
	cond.Blocks = append(cond.Blocks, blk)
	return true
}

// loop := "loopc" Condition ":" Block
func (p *Parser) loop() *Loop {
	at := p.advance().Pos()

	c := p.condition()
	if c == nil {
		return nil
	}
	if !p.consume(COLON, "expected ':' after loop condition") {
		return nil
	}
	body := p.block()
	if body == nil {
		return nil
	}

	return &Loop{Cond: c, Body: body, At: at}
}

// block := "begin" Assignment* "end"
// A malformed assignment is skipped up to its ';' so the rest of the body
// still parses.
func (p *Parser) block() *Block {
	if !p.check(BEGIN) {
		p.error("expected 'begin'")
		return nil
	}
	blk := &Block{At: p.advance().Pos()}

	for !p.check(END) && !p.check(EOF) {
		if a := p.assignment(); a != nil {
			blk.Stmts = append(blk.Stmts, a)
			continue
		}
		p.skipToSemicolon()
	}

	if !p.consume(END, "expected 'end' to close block") {
		return nil
	}
	return blk
}

// condition := Expression CompareOp Expression (("and"|"or") Condition)*
// The trailing Condition is parsed recursively, so chains nest to the right.
func (p *Parser) condition() Expr {
	left := p.comparison()
	if left == nil {
		return nil
	}

	if p.match(AND, OR) {
		tok := p.advance()
		right := p.condition()
		if right == nil {
			return nil
		}
		return &BinaryExpr{Op: operatorFromToken(tok.Type), Left: left, Right: right, At: tok.Pos()}
	}

	return left
}

func (p *Parser) comparison() Expr {
	left := p.expression()
	if left == nil {
		return nil
	}

	if !p.current.Type.isCompareOp() {
		p.error("expected comparison operator")
		return nil
	}
	tok := p.advance()

	right := p.expression()
	if right == nil {
		return nil
	}

	return &BinaryExpr{Op: operatorFromToken(tok.Type), Left: left, Right: right, At: tok.Pos()}
}

// expression := Term (("+" | "-") Term)*
func (p *Parser) expression() Expr {
	return p.binary(p.term, PLUS, MINUS)
}

// term := Power (("*" | "/" | "%") Power)*
func (p *Parser) term() Expr {
	return p.binary(p.power, STAR, SLASH, PERCENT)
}

// power := Final ("^" Final)*
func (p *Parser) power() Expr {
	return p.binary(p.final, CARET)
}

// binary parses a left-associative chain of operand separated by ops.
func (p *Parser) binary(operand func() Expr, ops ...TokenType) Expr {
	expr := operand()
	if expr == nil {
		return nil
	}

	for p.match(ops...) {
		tok := p.advance()
		right := operand()
		if right == nil {
			return nil
		}
		expr = &BinaryExpr{
			Op:    operatorFromToken(tok.Type),
			Left:  expr,
			Right: right,
			At:    tok.Pos(),
		}
	}

	return expr
}

// final := Number | Name | "(" Expression ")"
func (p *Parser) final() Expr {
	switch p.current.Type {
	case NUMBER:
		tok := p.advance()
		return &Literal{Kind: LitNumber, Value: tok.Lexeme, At: tok.Pos()}
	case IDENT:
		tok := p.advance()
		return &Literal{Kind: LitId, Value: tok.Lexeme, At: tok.Pos()}
	case LPAREN:
		p.advance()
		expr := p.expression()
		if expr == nil {
			return nil
		}
		if !p.consume(RPAREN, "expected ')'") {
			return nil
		}
		return expr
	}

	p.error("expected expression")
	return nil
}

// synchronize discards tokens up to the end of the broken statement: a ';'
// outside any begin/end pair (consumed), the 'end' closing a block the
// statement opened (consumed), an unmatched 'end' (left for the caller),
// or end of input.
func (p *Parser) synchronize() {
	depth := 0
	for !p.check(EOF) {
		switch p.current.Type {
		case SEMICOLON:
			p.advance()
			if depth == 0 {
				return
			}
		case BEGIN:
			depth++
			p.advance()
		case END:
			if depth == 0 {
				return
			}
			depth--
			p.advance()
			if depth == 0 {
				return
			}
		default:
			p.advance()
		}
	}
}

// skipToSemicolon is the recovery used inside a block body.
func (p *Parser) skipToSemicolon() {
	for !p.check(EOF) && !p.check(END) {
		if p.advance().Type == SEMICOLON {
			return
		}
	}
}

func operatorFromToken(tok TokenType) Operator {
	switch tok {
	case PLUS:
		return Add
	case MINUS:
		return Sub
	case STAR:
		return Mul
	case SLASH:
		return Div
	case PERCENT:
		return Mod
	case CARET:
		return Pow
	case AND:
		return And
	case OR:
		return Or
	case EQ:
		return Eq
	case NE:
		return Ne
	case LT:
		return Lt
	case LE:
		return Le
	case GT:
		return Gt
	case GE:
		return Ge
	}
	panic(fmt.Sprintf("frontend: no operator for token %s", tok))
}

func assignOpFromToken(tok TokenType) AssignOp {
	switch tok {
	case PLUS_ASSIGN:
		return AddAssign
	case MINUS_ASSIGN:
		return SubAssign
	case STAR_ASSIGN:
		return MulAssign
	case SLASH_ASSIGN:
		return DivAssign
	case MOD_ASSIGN:
		return ModAssign
	}
	return Assign
}

func (p *Parser) match(types ...TokenType) bool {
	for _, t := range types {
		if p.check(t) {
			return true
		}
	}
	return false
}

func (p *Parser) check(typ TokenType) bool {
	return p.current.Type == typ
}

func (p *Parser) advance() Token {
	prev := p.current
	if p.pos < len(p.tokens)-1 {
		p.pos++
		p.current = p.tokens[p.pos]
	}
	return prev
}

func (p *Parser) consume(typ TokenType, msg string) bool {
	if p.check(typ) {
		p.advance()
		return true
	}
	p.error(msg)
	return false
}

func (p *Parser) error(msg string) {
	if p.check(ILLEGAL) {
		msg = fmt.Sprintf("illegal character %q", p.current.Lexeme)
	}
	p.errors.Add(&SyntaxError{
		Pos:     p.current.Pos(),
		Token:   p.current,
		Message: msg,
	})
}
