package frontend

import (
	"strings"
)

// Print renders n back to GSM source. Nested arithmetic is parenthesized, so
// parsing the output yields a tree equal to n apart from positions.
func Print(n Node) string {
	p := &printer{}
	_ = n.Accept(p)
	return p.sb.String()
}

type printer struct {
	sb     strings.Builder
	indent int
}

func (p *printer) line(parts ...string) {
	p.sb.WriteString(strings.Repeat("    ", p.indent))
	for _, s := range parts {
		p.sb.WriteString(s)
	}
	p.sb.WriteByte('\n')
}

func (p *printer) VisitProgram(prog *Program) error {
	for _, s := range prog.Stmts {
		if err := s.Accept(p); err != nil {
			return err
		}
	}
	return nil
}

func (p *printer) VisitLiteral(l *Literal) error {
	p.sb.WriteString(l.Value)
	return nil
}

func (p *printer) VisitBinaryExpr(b *BinaryExpr) error {
	p.operand(b.Left)
	p.sb.WriteString(" " + b.Op.String() + " ")
	p.operand(b.Right)
	return nil
}

// operand wraps nested arithmetic in parentheses. Comparisons and logical
// chains are never parenthesized: the grammar has no place for that.
func (p *printer) operand(e Expr) {
	if b, ok := e.(*BinaryExpr); ok && !b.Op.IsComparison() && !b.Op.IsLogical() {
		p.sb.WriteByte('(')
		_ = b.Accept(p)
		p.sb.WriteByte(')')
		return
	}
	_ = e.Accept(p)
}

func (p *printer) VisitDeclaration(d *Declaration) error {
	parts := make([]string, len(d.Names))
	for i, name := range d.Names {
		parts[i] = name
		if init := d.Init(i); init != nil {
			parts[i] += " = " + exprString(init)
		}
	}
	p.line("int ", strings.Join(parts, ", "), ";")
	return nil
}

func (p *printer) VisitAssignment(a *Assignment) error {
	p.line(a.Target, " ", a.Op.String(), " ", exprString(a.Value), ";")
	return nil
}

func (p *printer) VisitBlock(b *Block) error {
	p.indent++
	for _, a := range b.Stmts {
		_ = a.Accept(p)
	}
	p.indent--
	p.line("end")
	return nil
}

func (p *printer) VisitConditional(c *Conditional) error {
	for i, cond := range c.Conds {
		kw := "elif "
		if i == 0 {
			kw = "if "
		}
		p.line(kw, exprString(cond), ": begin")
		_ = c.Blocks[i].Accept(p)
	}
	if c.Else != nil {
		p.line("else: begin")
		_ = c.Else.Accept(p)
	}
	return nil
}

func (p *printer) VisitLoop(l *Loop) error {
	p.line("loopc ", exprString(l.Cond), ": begin")
	return l.Body.Accept(p)
}

func exprString(e Expr) string {
	p := &printer{}
	_ = e.Accept(p)
	return p.sb.String()
}
