// Package arm64 implements ARM64/AArch64 code generation.
//
// Design: Direct assembly generation for Apple Silicon and ARM servers,
// AAPCS64 calling convention. The frame is addressed from sp: variable
// slots first, then spilled temporaries, then the callee-saved registers
// the allocator handed out. w9-w12 are scratch. All arithmetic is 32-bit.
package arm64

import (
	"fmt"
	"io"
	"strings"

	"github.com/gsm-lang/gsmc/pkg/codegen/regalloc"
	"github.com/gsm-lang/gsmc/pkg/ir"
	"github.com/gsm-lang/gsmc/pkg/logger"
)

const (
	slotSize = 4

	// ldr/str of a w register take a 12-bit offset scaled by 4
	maxFrame = 4095 * 4
)

// Scratch registers (caller-saved, never allocated)
const (
	scratchL   = "w9"
	scratchR   = "w10"
	scratchD   = "w11"
	scratchDiv = "w12"
)

// Generator generates ARM64 assembly
type Generator struct {
	w io.Writer

	// SymbolPrefix is prepended to function names ("_" for Mach-O).
	SymbolPrefix string

	fn        *ir.Function
	alloc     *regalloc.Allocator
	slots     map[*ir.Slot]int
	spillBase int
	frameSize int
	saved     []savedReg
	trap      bool
}

type savedReg struct {
	reg string
	off int
}

func NewGenerator(w io.Writer) *Generator {
	return &Generator{w: w, SymbolPrefix: "_"}
}

// Generate emits assembly for every function in m
func (g *Generator) Generate(m *ir.Module) error {
	logger.Debug("Generating arm64 assembly", "module", m.Name, "functions", len(m.Functions))

	fmt.Fprintf(g.w, "\t.text\n")

	for _, fn := range m.Functions {
		if err := g.generateFunction(fn); err != nil {
			logger.Error("Failed to generate function", "arch", "arm64", "name", fn.Name, "error", err)
			return fmt.Errorf("arm64: %s: %w", fn.Name, err)
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
	g.trap = false
	logger.LogCodeGen("arm64", fn.Name, fn.InstCount())

	g.alloc = regalloc.NewAllocator(fn, &regalloc.Config{
		Available: TempRegs,
		SlotSize:  slotSize,
	})
	if err := g.alloc.Allocate(); err != nil {
		return fmt.Errorf("register allocation failed: %w", err)
	}
	if err := g.layoutFrame(fn); err != nil {
		return err
	}

	name := g.SymbolPrefix + fn.Name
	fmt.Fprintf(g.w, "\t.globl %s\n", name)
	fmt.Fprintf(g.w, "\t.p2align 2\n")
	fmt.Fprintf(g.w, "%s:\n", name)

	// frame record, then the local area
	fmt.Fprintf(g.w, "\tstp x29, x30, [sp, #-16]!\n")
	fmt.Fprintf(g.w, "\tmov x29, sp\n")
	if hi := g.frameSize &^ 0xfff; hi > 0 {
		fmt.Fprintf(g.w, "\tsub sp, sp, #%d, lsl #12\n", hi>>12)
	}
	if lo := g.frameSize & 0xfff; lo > 0 {
		fmt.Fprintf(g.w, "\tsub sp, sp, #%d\n", lo)
	}
	for _, s := range g.saved {
		fmt.Fprintf(g.w, "\tstr %s, [sp, #%d]\n", s.reg, s.off)
	}

	for _, block := range fn.Blocks {
		if err := g.generateBlock(block); err != nil {
			return err
		}
	}

	if g.trap {
		fmt.Fprintf(g.w, "%s:\n", g.label("divzero"))
		fmt.Fprintf(g.w, "\tbrk #1\n")
	}
	return nil
}

// layoutFrame assigns slot, spill and save offsets from sp.
func (g *Generator) layoutFrame(fn *ir.Function) error {
	g.slots = make(map[*ir.Slot]int)
	off := 0
	for _, block := range fn.Blocks {
		for _, inst := range block.Insts {
			if a, ok := inst.(*ir.Alloca); ok {
				g.slots[a.Dest] = off
				off += slotSize
			}
		}
	}

	g.spillBase = off
	off += g.alloc.GetStackSize()

	off = (off + 7) &^ 7
	g.saved = g.saved[:0]
	for _, reg := range g.alloc.UsedRegisters() {
		g.saved = append(g.saved, savedReg{reg: "x" + reg[1:], off: off})
		off += 8
	}

	g.frameSize = (off + 15) &^ 15
	if g.frameSize > maxFrame {
		return fmt.Errorf("frame of %d bytes exceeds %d", g.frameSize, maxFrame)
	}
	return nil
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
		src, err := g.slotAddress(i.Src)
		if err != nil {
			return err
		}
		dest := g.destReg(i.Dest)
		fmt.Fprintf(g.w, "\tldr %s, %s\n", dest, src)
		return g.writeBack(i.Dest, dest)
	case *ir.Store:
		dst, err := g.slotAddress(i.Dest)
		if err != nil {
			return err
		}
		src, err := g.operand(i.Src, scratchL)
		if err != nil {
			return err
		}
		fmt.Fprintf(g.w, "\tstr %s, %s\n", src, dst)
		return nil
	case *ir.BinOp:
		return g.generateBinOp(i)
	default:
		return fmt.Errorf("unsupported instruction: %T", inst)
	}
}

var arith = map[ir.Op]string{
	ir.OpAdd: "add",
	ir.OpSub: "sub",
	ir.OpMul: "mul",
	ir.OpAnd: "and",
	ir.OpOr:  "orr",
}

var conds = map[ir.Op]string{
	ir.OpEq: "eq",
	ir.OpNe: "ne",
	ir.OpLt: "lt",
	ir.OpLe: "le",
	ir.OpGt: "gt",
	ir.OpGe: "ge",
}

func (g *Generator) generateBinOp(binop *ir.BinOp) error {
	left, err := g.operand(binop.L, scratchL)
	if err != nil {
		return err
	}
	right, err := g.operand(binop.R, scratchR)
	if err != nil {
		return err
	}
	dest := g.destReg(binop.Dest)

	switch {
	case arith[binop.Op] != "":
		fmt.Fprintf(g.w, "\t%s %s, %s, %s\n", arith[binop.Op], dest, left, right)

	case binop.Op == ir.OpDiv || binop.Op == ir.OpRem:
		// sdiv yields 0 for a zero divisor; trap like idivl does
		g.trap = true
		fmt.Fprintf(g.w, "\tcbz %s, %s\n", right, g.label("divzero"))
		if binop.Op == ir.OpDiv {
			fmt.Fprintf(g.w, "\tsdiv %s, %s, %s\n", dest, left, right)
			break
		}
		fmt.Fprintf(g.w, "\tsdiv %s, %s, %s\n", scratchDiv, left, right)
		fmt.Fprintf(g.w, "\tmsub %s, %s, %s, %s\n", dest, scratchDiv, right, left)

	case conds[binop.Op] != "":
		fmt.Fprintf(g.w, "\tcmp %s, %s\n", left, right)
		fmt.Fprintf(g.w, "\tcset %s, %s\n", dest, conds[binop.Op])

	default:
		return fmt.Errorf("unsupported operation: %v", binop.Op)
	}

	return g.writeBack(binop.Dest, dest)
}

func (g *Generator) generateTerm(term ir.Terminator) error {
	switch t := term.(type) {
	case *ir.Return:
		if t.Value != nil {
			val, err := g.operand(t.Value, scratchL)
			if err != nil {
				return err
			}
			if val != RetReg {
				fmt.Fprintf(g.w, "\tmov %s, %s\n", RetReg, val)
			}
		}
		for i := len(g.saved) - 1; i >= 0; i-- {
			fmt.Fprintf(g.w, "\tldr %s, [sp, #%d]\n", g.saved[i].reg, g.saved[i].off)
		}
		fmt.Fprintf(g.w, "\tmov sp, x29\n")
		fmt.Fprintf(g.w, "\tldp x29, x30, [sp], #16\n")
		fmt.Fprintf(g.w, "\tret\n")

	case *ir.Branch:
		fmt.Fprintf(g.w, "\tb %s\n", g.label(t.Target))

	case *ir.CondBranch:
		cond, err := g.operand(t.Cond, scratchL)
		if err != nil {
			return err
		}
		fmt.Fprintf(g.w, "\tcbnz %s, %s\n", cond, g.label(t.TrueBlock))
		fmt.Fprintf(g.w, "\tb %s\n", g.label(t.FalseBlock))

	case nil:
		return fmt.Errorf("missing terminator")

	default:
		return fmt.Errorf("unsupported terminator: %T", term)
	}
	return nil
}

func (g *Generator) slotAddress(s *ir.Slot) (string, error) {
	off, ok := g.slots[s]
	if !ok {
		return "", fmt.Errorf("slot %s has no frame offset", s)
	}
	return fmt.Sprintf("[sp, #%d]", off), nil
}

// operand returns a register holding val. Constants and spilled
// temporaries are materialized in scratch.
func (g *Generator) operand(val ir.Value, scratch string) (string, error) {
	switch v := val.(type) {
	case *ir.Const:
		g.moveImm(scratch, v.Val)
		return scratch, nil
	case *ir.Temp:
		if reg, ok := g.alloc.GetRegister(v); ok {
			return reg, nil
		}
		if slot, ok := g.alloc.GetSpillSlot(v); ok {
			fmt.Fprintf(g.w, "\tldr %s, [sp, #%d]\n", scratch, g.spillBase+slot)
			return scratch, nil
		}
		return "", fmt.Errorf("no location for value: %s", v)
	case *ir.Param:
		for i, p := range g.fn.Params {
			if p == v && i < len(ArgRegs32) {
				return ArgRegs32[i], nil
			}
		}
		return "", fmt.Errorf("no location for parameter: %s", v)
	default:
		return "", fmt.Errorf("unsupported value type: %T", val)
	}
}

// moveImm loads the low 32 bits of v with movz and, when needed, movk.
func (g *Generator) moveImm(reg string, v int64) {
	u := uint32(v)
	fmt.Fprintf(g.w, "\tmovz %s, #%d\n", reg, u&0xffff)
	if hi := u >> 16; hi != 0 {
		fmt.Fprintf(g.w, "\tmovk %s, #%d, lsl #16\n", reg, hi)
	}
}

// destReg is the register an instruction defining t writes.
func (g *Generator) destReg(t *ir.Temp) string {
	if reg, ok := g.alloc.GetRegister(t); ok {
		return reg
	}
	return scratchD
}

// writeBack stores reg to t's spill slot when t lives in memory.
func (g *Generator) writeBack(t *ir.Temp, reg string) error {
	if _, ok := g.alloc.GetRegister(t); ok {
		return nil
	}
	slot, ok := g.alloc.GetSpillSlot(t)
	if !ok {
		return fmt.Errorf("no location for value: %s", t)
	}
	fmt.Fprintf(g.w, "\tstr %s, [sp, #%d]\n", reg, g.spillBase+slot)
	return nil
}

// ARM64 calling convention (AAPCS64)
var (
	// 32-bit views of the argument registers (order matters)
	ArgRegs32 = []string{"w0", "w1", "w2", "w3", "w4", "w5", "w6", "w7"}
	// Return register
	RetReg = "w0"
	// Callee-saved
	CalleeSaved = []string{"x19", "x20", "x21", "x22", "x23", "x24", "x25", "x26", "x27", "x28"}
	// Temporaries are allocated to the 32-bit views of the callee-saved set
	TempRegs = []string{"w19", "w20", "w21", "w22", "w23", "w24", "w25", "w26", "w27", "w28"}
)
