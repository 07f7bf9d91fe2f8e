package ir

import (
	"fmt"
	"io"
	"strings"
)

// String renders the module in an LLVM-flavoured text form.
func (m *Module) String() string {
	var sb strings.Builder
	_ = m.Print(&sb)
	return sb.String()
}

// Print writes the textual form of m to w.
func (m *Module) Print(w io.Writer) error {
	if _, err := fmt.Fprintf(w, "; ModuleID = '%s'\n", m.Name); err != nil {
		return err
	}
	for _, fn := range m.Functions {
		if _, err := io.WriteString(w, "\n"+fn.String()); err != nil {
			return err
		}
	}
	return nil
}

func (f *Function) String() string {
	var sb strings.Builder

	params := make([]string, len(f.Params))
	for i, p := range f.Params {
		params[i] = p.Typ.String() + " " + p.String()
	}
	fmt.Fprintf(&sb, "define %s @%s(%s) {\n", f.ReturnType, f.Name, strings.Join(params, ", "))

	for i, b := range f.Blocks {
		if i > 0 {
			sb.WriteByte('\n')
		}
		fmt.Fprintf(&sb, "%s:\n", b.Label)
		for _, inst := range b.Insts {
			fmt.Fprintf(&sb, "  %s\n", FormatInst(inst))
		}
		if b.Term != nil {
			fmt.Fprintf(&sb, "  %s\n", FormatTerm(b.Term))
		}
	}

	sb.WriteString("}\n")
	return sb.String()
}

func FormatInst(inst Inst) string {
	switch i := inst.(type) {
	case *Alloca:
		return fmt.Sprintf("%s = alloca i32", i.Dest)
	case *Load:
		return fmt.Sprintf("%s = load i32, i32* %s", i.Dest, i.Src)
	case *Store:
		return fmt.Sprintf("store %s %s, i32* %s", i.Src.Type(), i.Src, i.Dest)
	case *BinOp:
		if i.Op.IsCompare() {
			return fmt.Sprintf("%s = icmp %s %s %s, %s", i.Dest, i.Op, i.L.Type(), i.L, i.R)
		}
		flags := ""
		switch i.Op {
		case OpAdd, OpSub, OpMul:
			flags = " nsw"
		}
		return fmt.Sprintf("%s = %s%s %s %s, %s", i.Dest, i.Op, flags, i.L.Type(), i.L, i.R)
	}
	return fmt.Sprintf("<unknown %T>", inst)
}

func FormatTerm(term Terminator) string {
	switch t := term.(type) {
	case *Return:
		if t.Value == nil {
			return "ret void"
		}
		return fmt.Sprintf("ret %s %s", t.Value.Type(), t.Value)
	case *Branch:
		return fmt.Sprintf("br label %%%s", t.Target)
	case *CondBranch:
		return fmt.Sprintf("br i1 %s, label %%%s, label %%%s", t.Cond, t.TrueBlock, t.FalseBlock)
	}
	return fmt.Sprintf("<unknown %T>", term)
}
