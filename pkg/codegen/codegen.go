// Package codegen lowers a parsed GSM program to IR.
//
// Design: one visitor pass over the AST. Every declared variable gets a
// stack slot for the whole program; expressions leave their result in a
// single "current value" register that the enclosing node consumes.
// Control flow becomes explicit block chains. The first semantic error
// aborts generation and no partial module is returned.
package codegen

import (
	"fmt"
	"strconv"

	"github.com/gsm-lang/gsmc/pkg/frontend"
	"github.com/gsm-lang/gsmc/pkg/ir"
	"github.com/gsm-lang/gsmc/pkg/logger"
)

const (
	DefaultModuleName  = "calc.expr"
	DefaultMaxExponent = 64
)

// GenError is a fatal semantic error tied to a source position.
type GenError struct {
	Pos     frontend.Pos
	Message string
}

func (e *GenError) Error() string {
	if !e.Pos.IsValid() {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Pos, e.Message)
}

type options struct {
	moduleName  string
	maxExponent int
}

// Option configures Generate.
type Option func(*options)

// WithModuleName sets the IR module name.
func WithModuleName(name string) Option {
	return func(o *options) {
		if name != "" {
			o.moduleName = name
		}
	}
}

// WithMaxExponent bounds the literal exponent of "^", which is unrolled
// into n-1 multiplies.
func WithMaxExponent(n int) Option {
	return func(o *options) {
		if n >= 0 {
			o.maxExponent = n
		}
	}
}

type generator struct {
	opts options

	mod     *ir.Module
	fn      *ir.Function
	b       *ir.Builder
	slots   map[string]*ir.Slot
	current ir.Value
}

// Generate emits a module whose main function runs prog's statements in
// order and returns 0.
func Generate(prog *frontend.Program, opts ...Option) (*ir.Module, error) {
	o := options{moduleName: DefaultModuleName, maxExponent: DefaultMaxExponent}
	for _, opt := range opts {
		opt(&o)
	}

	g := &generator{
		opts:  o,
		slots: make(map[string]*ir.Slot),
	}

	logger.Debug("Generating IR from AST", "statements", len(prog.Stmts), "module", o.moduleName)
	if err := prog.Accept(g); err != nil {
		logger.Debug("IR generation failed", "error", err)
		return nil, err
	}
	return g.mod, nil
}

func (g *generator) errorf(pos frontend.Pos, format string, args ...any) error {
	return &GenError{Pos: pos, Message: fmt.Sprintf(format, args...)}
}

// eval visits e and returns the value it left behind, checking its type.
func (g *generator) eval(e frontend.Expr, want ir.Type) (ir.Value, error) {
	g.current = nil
	if err := e.Accept(g); err != nil {
		return nil, err
	}
	v := g.current
	if v.Type() != want {
		return nil, g.errorf(e.Pos(), "expected %s operand, got %s", describe(want), describe(v.Type()))
	}
	return v, nil
}

func describe(t ir.Type) string {
	if _, ok := t.(ir.BoolType); ok {
		return "condition"
	}
	return "integer"
}

func (g *generator) VisitProgram(prog *frontend.Program) error {
	g.mod = ir.NewModule(g.opts.moduleName)
	g.fn = g.mod.NewFunction("main", ir.IntType{},
		&ir.Param{Name: "argc", Typ: ir.IntType{}},
		&ir.Param{Name: "argv", Typ: ir.PtrType{Elem: ir.PtrType{Elem: ir.ByteType{}}}},
	)
	g.b = ir.NewBuilder(g.fn)
	g.b.SetInsertPoint(g.fn.NewBlock("entry"))

	for _, stmt := range prog.Stmts {
		if err := stmt.Accept(g); err != nil {
			return err
		}
	}

	g.b.Ret(ir.ConstInt(0))
	return nil
}

func (g *generator) VisitLiteral(l *frontend.Literal) error {
	switch l.Kind {
	case frontend.LitId:
		slot, ok := g.slots[l.Value]
		if !ok {
			return g.errorf(l.At, "undeclared variable %q", l.Value)
		}
		g.current = g.b.Load(slot)
	case frontend.LitNumber:
		n, err := strconv.ParseInt(l.Value, 10, 32)
		if err != nil {
			return g.errorf(l.At, "integer literal %s out of range", l.Value)
		}
		g.current = ir.ConstInt(n)
	default:
		return g.errorf(l.At, "unknown literal kind %d", l.Kind)
	}
	return nil
}

var binaryOps = map[frontend.Operator]ir.Op{
	frontend.Add: ir.OpAdd,
	frontend.Sub: ir.OpSub,
	frontend.Mul: ir.OpMul,
	frontend.Div: ir.OpDiv,
	frontend.Mod: ir.OpRem,
	frontend.And: ir.OpAnd,
	frontend.Or:  ir.OpOr,
	frontend.Eq:  ir.OpEq,
	frontend.Ne:  ir.OpNe,
	frontend.Lt:  ir.OpLt,
	frontend.Le:  ir.OpLe,
	frontend.Gt:  ir.OpGt,
	frontend.Ge:  ir.OpGe,
}

func (g *generator) VisitBinaryExpr(e *frontend.BinaryExpr) error {
	if e.Op == frontend.Pow {
		return g.power(e)
	}

	op, ok := binaryOps[e.Op]
	if !ok {
		return g.errorf(e.At, "unsupported operator %s", e.Op)
	}

	var operand ir.Type = ir.IntType{}
	if e.Op.IsLogical() {
		operand = ir.BoolType{}
	}

	left, err := g.eval(e.Left, operand)
	if err != nil {
		return err
	}
	right, err := g.eval(e.Right, operand)
	if err != nil {
		return err
	}

	g.current = g.b.BinOp(op, left, right)
	return nil
}

// power unrolls base^n into n-1 multiplies of the base value.
func (g *generator) power(e *frontend.BinaryExpr) error {
	lit, ok := e.Right.(*frontend.Literal)
	if !ok || lit.Kind != frontend.LitNumber {
		return g.errorf(e.Right.Pos(), "exponent must be an integer literal")
	}
	n, err := strconv.ParseInt(lit.Value, 10, 32)
	if err != nil || n < 0 {
		return g.errorf(lit.At, "invalid exponent %s", lit.Value)
	}
	if n > int64(g.opts.maxExponent) {
		return g.errorf(lit.At, "exponent %d exceeds limit %d", n, g.opts.maxExponent)
	}

	base, err := g.eval(e.Left, ir.IntType{})
	if err != nil {
		return err
	}
	if n == 0 {
		g.current = ir.ConstInt(1)
		return nil
	}

	acc := base
	for i := int64(1); i < n; i++ {
		acc = g.b.BinOp(ir.OpMul, acc, base)
	}
	g.current = acc
	return nil
}

func (g *generator) VisitDeclaration(d *frontend.Declaration) error {
	for i, name := range d.Names {
		if _, dup := g.slots[name]; dup {
			return g.errorf(d.At, "variable %q already declared", name)
		}

		var init ir.Value = ir.ConstInt(0)
		if e := d.Init(i); e != nil {
			v, err := g.eval(e, ir.IntType{})
			if err != nil {
				return err
			}
			init = v
		}

		slot := g.b.Alloca(name)
		g.b.Store(init, slot)
		g.slots[name] = slot
	}
	return nil
}

func (g *generator) VisitAssignment(a *frontend.Assignment) error {
	slot, ok := g.slots[a.Target]
	if !ok {
		return g.errorf(a.At, "assignment to undeclared variable %q", a.Target)
	}

	val, err := g.eval(a.Value, ir.IntType{})
	if err != nil {
		return err
	}

	if bin, compound := a.Op.Binary(); compound {
		cur := g.b.Load(slot)
		val = g.b.BinOp(binaryOps[bin], cur, val)
	}
	g.b.Store(val, slot)
	return nil
}

func (g *generator) VisitBlock(blk *frontend.Block) error {
	for _, stmt := range blk.Stmts {
		if err := stmt.Accept(g); err != nil {
			return err
		}
	}
	return nil
}

// VisitConditional lowers an if/elif/else chain. Each condition is tested in
// its own block; at most one body runs before control reaches if.end.
func (g *generator) VisitConditional(c *frontend.Conditional) error {
	if len(c.Conds) == 0 || len(c.Conds) != len(c.Blocks) {
		return g.errorf(c.At, "malformed conditional")
	}

	end := g.fn.CreateBlock("if.end")
	for i, cond := range c.Conds {
		cv, err := g.eval(cond, ir.BoolType{})
		if err != nil {
			return err
		}

		then := g.fn.CreateBlock("if.then")
		next := end
		switch {
		case i < len(c.Conds)-1:
			next = g.fn.CreateBlock("if.cond")
		case c.Else != nil:
			next = g.fn.CreateBlock("if.else")
		}
		g.b.CondBr(cv, then, next)

		g.fn.AppendBlock(then)
		g.b.SetInsertPoint(then)
		if err := c.Blocks[i].Accept(g); err != nil {
			return err
		}
		g.b.Br(end)

		if next != end {
			g.fn.AppendBlock(next)
			g.b.SetInsertPoint(next)
		}
	}

	if c.Else != nil {
		if err := c.Else.Accept(g); err != nil {
			return err
		}
		g.b.Br(end)
	}

	g.fn.AppendBlock(end)
	g.b.SetInsertPoint(end)
	return nil
}

func (g *generator) VisitLoop(l *frontend.Loop) error {
	cond := g.fn.NewBlock("loop.cond")
	g.b.Br(cond)
	g.b.SetInsertPoint(cond)

	cv, err := g.eval(l.Cond, ir.BoolType{})
	if err != nil {
		return err
	}

	body := g.fn.CreateBlock("loop.body")
	end := g.fn.CreateBlock("loop.end")
	g.b.CondBr(cv, body, end)

	g.fn.AppendBlock(body)
	g.b.SetInsertPoint(body)
	if err := l.Body.Accept(g); err != nil {
		return err
	}
	g.b.Br(cond)

	g.fn.AppendBlock(end)
	g.b.SetInsertPoint(end)
	return nil
}
