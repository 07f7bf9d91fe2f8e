// Package frontend - AST for the GSM language
// Design: closed set of node kinds. Adding a kind means adding a Visitor
// method, so every visitor stops compiling until it handles the new node.
package frontend

import "fmt"

// Pos is the source position of a node's first token.
type Pos struct {
	Line int
	Col  int
}

func (p Pos) String() string {
	return fmt.Sprintf("%d:%d", p.Line, p.Col)
}

func (p Pos) IsValid() bool {
	return p.Line > 0
}

type Node interface {
	Pos() Pos
	Accept(v Visitor) error
}

// Expr is a node that produces an integer or boolean value.
type Expr interface {
	Node
	expr()
}

// Stmt is a top-level statement.
type Stmt interface {
	Node
	stmt()
}

// Visitor has one method per concrete node kind.
type Visitor interface {
	VisitProgram(*Program) error
	VisitLiteral(*Literal) error
	VisitBinaryExpr(*BinaryExpr) error
	VisitDeclaration(*Declaration) error
	VisitAssignment(*Assignment) error
	VisitBlock(*Block) error
	VisitConditional(*Conditional) error
	VisitLoop(*Loop) error
}

// Program is a whole compilation unit.
type Program struct {
	Stmts []Stmt
}

func (p *Program) Pos() Pos {
	if len(p.Stmts) == 0 {
		return Pos{Line: 1, Col: 1}
	}
	return p.Stmts[0].Pos()
}

func (p *Program) Accept(v Visitor) error { return v.VisitProgram(p) }

// Expressions

type LiteralKind int

const (
	LitId LiteralKind = iota
	LitNumber
)

func (k LiteralKind) String() string {
	if k == LitNumber {
		return "Number"
	}
	return "Id"
}

// Literal is an identifier reference or an integer constant, kept as raw text.
type Literal struct {
	Kind  LiteralKind
	Value string
	At    Pos
}

func (l *Literal) Pos() Pos                { return l.At }
func (l *Literal) Accept(v Visitor) error { return v.VisitLiteral(l) }
func (*Literal) expr()                    {}

type Operator int

const (
	Add Operator = iota
	Sub
	Mul
	Div
	Mod
	Pow
	And
	Or
	Eq
	Ne
	Lt
	Le
	Gt
	Ge
)

var operatorText = [...]string{
	Add: "+", Sub: "-", Mul: "*", Div: "/", Mod: "%", Pow: "^",
	And: "and", Or: "or",
	Eq: "==", Ne: "!=", Lt: "<", Le: "<=", Gt: ">", Ge: ">=",
}

func (o Operator) String() string {
	if int(o) >= 0 && int(o) < len(operatorText) {
		return operatorText[o]
	}
	return fmt.Sprintf("Operator(%d)", int(o))
}

// IsComparison reports whether o yields a boolean from two integers.
func (o Operator) IsComparison() bool {
	return o >= Eq && o <= Ge
}

// IsLogical reports whether o combines two booleans.
func (o Operator) IsLogical() bool {
	return o == And || o == Or
}

type BinaryExpr struct {
	Op    Operator
	Left  Expr
	Right Expr
	At    Pos
}

func (b *BinaryExpr) Pos() Pos                { return b.At }
func (b *BinaryExpr) Accept(v Visitor) error { return v.VisitBinaryExpr(b) }
func (*BinaryExpr) expr()                    {}

// Statements

// Declaration introduces one or more variables. Inits is parallel to Names;
// a nil entry means the variable starts at zero.
type Declaration struct {
	Names []string
	Inits []Expr
	At    Pos
}

func (d *Declaration) Pos() Pos                { return d.At }
func (d *Declaration) Accept(v Visitor) error { return v.VisitDeclaration(d) }
func (*Declaration) stmt()                    {}

// Init returns the initializer for the i-th name, or nil.
func (d *Declaration) Init(i int) Expr {
	if i < len(d.Inits) {
		return d.Inits[i]
	}
	return nil
}

type AssignOp int

const (
	Assign AssignOp = iota
	AddAssign
	SubAssign
	MulAssign
	DivAssign
	ModAssign
)

var assignOpText = [...]string{
	Assign: "=", AddAssign: "+=", SubAssign: "-=",
	MulAssign: "*=", DivAssign: "/=", ModAssign: "%=",
}

func (o AssignOp) String() string {
	if int(o) >= 0 && int(o) < len(assignOpText) {
		return assignOpText[o]
	}
	return fmt.Sprintf("AssignOp(%d)", int(o))
}

// Binary returns the arithmetic operator a compound assignment applies.
// ok is false for plain "=".
func (o AssignOp) Binary() (op Operator, ok bool) {
	switch o {
	case AddAssign:
		return Add, true
	case SubAssign:
		return Sub, true
	case MulAssign:
		return Mul, true
	case DivAssign:
		return Div, true
	case ModAssign:
		return Mod, true
	}
	return 0, false
}

type Assignment struct {
	Target string
	Op     AssignOp
	Value  Expr
	At     Pos
}

func (a *Assignment) Pos() Pos                { return a.At }
func (a *Assignment) Accept(v Visitor) error { return v.VisitAssignment(a) }
func (*Assignment) stmt()                    {}

// Block is the body of a branch or loop: straight-line assignments only.
type Block struct {
	Stmts []*Assignment
	At    Pos
}

func (b *Block) Pos() Pos                { return b.At }
func (b *Block) Accept(v Visitor) error { return v.VisitBlock(b) }

// Conditional is an if/elif/else chain. Conds and Blocks are paired by index.
type Conditional struct {
	Conds  []Expr
	Blocks []*Block
	Else   *Block
	At     Pos
}

func (c *Conditional) Pos() Pos                { return c.At }
func (c *Conditional) Accept(v Visitor) error { return v.VisitConditional(c) }
func (*Conditional) stmt()                    {}

// Loop is a pre-test loop; Body may run zero times.
type Loop struct {
	Cond Expr
	Body *Block
	At   Pos
}

func (l *Loop) Pos() Pos                { return l.At }
func (l *Loop) Accept(v Visitor) error { return v.VisitLoop(l) }
func (*Loop) stmt()                    {}
