// Package amd64 implements x86-64 code generation.
//
// Design: Direct assembly generation (AT&T syntax), no LLVM dependencies.
// Variables live in 4-byte frame slots below %rbp; temporaries get
// callee-saved registers from the linear scan allocator and spill into the
// frame. %eax, %ecx and %edx are scratch. All arithmetic is 32-bit.
package amd64

import (
	"fmt"
	"io"
	"strings"

	"github.com/gsm-lang/gsmc/pkg/codegen/regalloc"
	"github.com/gsm-lang/gsmc/pkg/ir"
	"github.com/gsm-lang/gsmc/pkg/logger"
)

const slotSize = 4

// Generator generates x86-64 assembly
type Generator struct {
	w io.Writer

	// SymbolPrefix is prepended to function names ("_" for Mach-O).
	SymbolPrefix string

	fn        *ir.Function
	alloc     *regalloc.Allocator
	slots     map[*ir.Slot]int
	slotBytes int
	stackSize int
	saved     []string
}

func NewGenerator(w io.Writer) *Generator {
	return &Generator{w: w, SymbolPrefix: "_"}
}

// Generate emits assembly for every function in m
func (g *Generator) Generate(m *ir.Module) error {
	logger.Debug("Generating amd64 assembly", "module", m.Name, "functions", len(m.Functions))

	fmt.Fprintf(g.w, "\t.text\n")

	for _, fn := range m.Functions {
		if err := g.generateFunction(fn); err != nil {
			logger.Error("Failed to generate function", "arch", "amd64", "name", fn.Name, "error", err)
			return fmt.Errorf("amd64: %s: %w", fn.Name, err)
		}
	}
	return nil
}

// GenerateWithValidation generates and validates assembly
func (g *Generator) GenerateWithValidation(m *ir.Module) (string, error) {
	var buf strings.Builder
	g.w = &buf

	if err := g.Generate(m); err != nil {
		return "", fmt.Errorf("generation failed: %w", err)
	}

	assembly := buf.String()
	if err := ValidateProgram(assembly); err != nil {
		logger.Error("Assembly validation failed", "error", err)
		return assembly, fmt.Errorf("validation failed: %w", err)
	}
	return assembly, nil
}

func (g *Generator) generateFunction(fn *ir.Function) error {
	g.fn = fn
	logger.LogCodeGen("amd64", fn.Name, fn.InstCount())

	g.layoutSlots(fn)

	g.alloc = regalloc.NewAllocator(fn, &regalloc.Config{
		Available: TempRegs,
		SlotSize:  slotSize,
	})
	if err := g.alloc.Allocate(); err != nil {
		return fmt.Errorf("register allocation failed: %w", err)
	}

	// System V requires 16-byte stack alignment at calls.
	g.stackSize = (g.slotBytes + g.alloc.GetStackSize() + 15) &^ 15
	g.saved = g.saved[:0]
	for _, reg := range g.alloc.UsedRegisters() {
		g.saved = append(g.saved, reg64[reg])
	}

	name := g.SymbolPrefix + fn.Name
	fmt.Fprintf(g.w, "\t.globl %s\n", name)
	fmt.Fprintf(g.w, "%s:\n", name)
	fmt.Fprintf(g.w, "\tpushq %%rbp\n")
	fmt.Fprintf(g.w, "\tmovq %%rsp, %%rbp\n")
	if g.stackSize > 0 {
		fmt.Fprintf(g.w, "\tsubq $%d, %%rsp\n", g.stackSize)
	}
	for _, reg := range g.saved {
		fmt.Fprintf(g.w, "\tpushq %s\n", reg)
	}

	for _, block := range fn.Blocks {
		if err := g.generateBlock(block); err != nil {
			return err
		}
	}
	return nil
}

// layoutSlots assigns each alloca a frame offset in layout order.
func (g *Generator) layoutSlots(fn *ir.Function) {
	g.slots = make(map[*ir.Slot]int)
	g.slotBytes = 0
	for _, block := range fn.Blocks {
		for _, inst := range block.Insts {
			if a, ok := inst.(*ir.Alloca); ok {
				g.slotBytes += slotSize
				g.slots[a.Dest] = g.slotBytes
			}
		}
	}
}

func (g *Generator) label(name string) string {
	return fmt.Sprintf(".L%s.%s", g.fn.Name, name)
}

func (g *Generator) generateBlock(block *ir.Block) error {
	fmt.Fprintf(g.w, "%s:\n", g.label(block.Label))

	for _, inst := range block.Insts {
		if err := g.generateInst(inst); err != nil {
			return fmt.Errorf("block %s: %w", block.Label, err)
		}
	}
	if err := g.generateTerm(block.Term); err != nil {
		return fmt.Errorf("block %s: %w", block.Label, err)
	}
	return nil
}

func (g *Generator) generateInst(inst ir.Inst) error {
	switch i := inst.(type) {
	case *ir.Alloca:
		// frame space is reserved in the prologue
		return nil
	case *ir.Load:
		src, err := g.slotLocation(i.Src)
		if err != nil {
			return err
		}
		return g.move(src, g.getValueLocation(i.Dest))
	case *ir.Store:
		dst, err := g.slotLocation(i.Dest)
		if err != nil {
			return err
		}
		return g.move(g.getValueLocation(i.Src), dst)
	case *ir.BinOp:
		return g.generateBinOp(i)
	default:
		return fmt.Errorf("unsupported instruction: %T", inst)
	}
}

// move copies a 32-bit value, going through %eax when both sides are memory.
func (g *Generator) move(src, dst string) error {
	if src == dst {
		return nil
	}
	if isMemoryOperand(src) && isMemoryOperand(dst) {
		fmt.Fprintf(g.w, "\tmovl %s, %%eax\n", src)
		src = "%eax"
	}
	fmt.Fprintf(g.w, "\tmovl %s, %s\n", src, dst)
	return nil
}

var arith = map[ir.Op]string{
	ir.OpAdd: "addl",
	ir.OpSub: "subl",
	ir.OpMul: "imull",
	ir.OpAnd: "andl",
	ir.OpOr:  "orl",
}

var setcc = map[ir.Op]string{
	ir.OpEq: "sete",
	ir.OpNe: "setne",
	ir.OpLt: "setl",
	ir.OpLe: "setle",
	ir.OpGt: "setg",
	ir.OpGe: "setge",
}

// generateBinOp computes in %eax and writes the result to the destination.
func (g *Generator) generateBinOp(binop *ir.BinOp) error {
	leftLoc := g.getValueLocation(binop.L)
	rightLoc := g.getValueLocation(binop.R)
	destLoc := g.getValueLocation(binop.Dest)

	fmt.Fprintf(g.w, "\tmovl %s, %%eax\n", leftLoc)

	switch {
	case arith[binop.Op] != "":
		fmt.Fprintf(g.w, "\t%s %s, %%eax\n", arith[binop.Op], rightLoc)

	case binop.Op == ir.OpDiv || binop.Op == ir.OpRem:
		// idivl takes no immediate
		fmt.Fprintf(g.w, "\tmovl %s, %%ecx\n", rightLoc)
		fmt.Fprintf(g.w, "\tcltd\n")
		fmt.Fprintf(g.w, "\tidivl %%ecx\n")
		if binop.Op == ir.OpRem {
			fmt.Fprintf(g.w, "\tmovl %%edx, %%eax\n")
		}

	case setcc[binop.Op] != "":
		fmt.Fprintf(g.w, "\tcmpl %s, %%eax\n", rightLoc)
		fmt.Fprintf(g.w, "\t%s %%al\n", setcc[binop.Op])
		fmt.Fprintf(g.w, "\tmovzbl %%al, %%eax\n")

	default:
		return fmt.Errorf("unsupported operation: %v", binop.Op)
	}

	fmt.Fprintf(g.w, "\tmovl %%eax, %s\n", destLoc)
	return nil
}

func (g *Generator) generateTerm(term ir.Terminator) error {
	switch t := term.(type) {
	case *ir.Return:
		if t.Value != nil {
			fmt.Fprintf(g.w, "\tmovl %s, %%eax\n", g.getValueLocation(t.Value))
		}
		for i := len(g.saved) - 1; i >= 0; i-- {
			fmt.Fprintf(g.w, "\tpopq %s\n", g.saved[i])
		}
		fmt.Fprintf(g.w, "\tleave\n")
		fmt.Fprintf(g.w, "\tretq\n")

	case *ir.Branch:
		fmt.Fprintf(g.w, "\tjmp %s\n", g.label(t.Target))

	case *ir.CondBranch:
		fmt.Fprintf(g.w, "\tmovl %s, %%eax\n", g.getValueLocation(t.Cond))
		fmt.Fprintf(g.w, "\ttestl %%eax, %%eax\n")
		fmt.Fprintf(g.w, "\tjnz %s\n", g.label(t.TrueBlock))
		fmt.Fprintf(g.w, "\tjmp %s\n", g.label(t.FalseBlock))

	case nil:
		return fmt.Errorf("missing terminator")

	default:
		return fmt.Errorf("unsupported terminator: %T", term)
	}
	return nil
}

func (g *Generator) slotLocation(s *ir.Slot) (string, error) {
	off, ok := g.slots[s]
	if !ok {
		return "", fmt.Errorf("slot %s has no frame offset", s)
	}
	return fmt.Sprintf("-%d(%%rbp)", off), nil
}

// getValueLocation returns the register, frame slot or immediate for a value
func (g *Generator) getValueLocation(val ir.Value) string {
	switch v := val.(type) {
	case *ir.Const:
		return fmt.Sprintf("$%d", v.Val)
	case *ir.Temp:
		if reg, ok := g.alloc.GetRegister(v); ok {
			return reg
		}
		if slot, ok := g.alloc.GetSpillSlot(v); ok {
			return fmt.Sprintf("-%d(%%rbp)", g.slotBytes+slot+slotSize)
		}
		panic(fmt.Sprintf("no location for value: %s", v))
	case *ir.Param:
		for i, p := range g.fn.Params {
			if p == v && i < len(ArgRegs32) {
				return ArgRegs32[i]
			}
		}
		panic(fmt.Sprintf("no location for parameter: %s", v))
	default:
		panic(fmt.Sprintf("unsupported value type: %T", val))
	}
}

// System V calling convention
var (
	// 32-bit views of the argument registers (order matters)
	ArgRegs32 = []string{"%edi", "%esi"}
	// Callee-saved
	CalleeSaved = []string{"%rbx", "%r12", "%r13", "%r14", "%r15"}
	// Temporaries are allocated to the 32-bit views of the callee-saved set
	TempRegs = []string{"%ebx", "%r12d", "%r13d", "%r14d", "%r15d"}

	reg64 = map[string]string{
		"%ebx": "%rbx", "%r12d": "%r12", "%r13d": "%r13", "%r14d": "%r14", "%r15d": "%r15",
	}
)
