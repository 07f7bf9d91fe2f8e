// Package llvm lowers gsmc IR to LLVM assembly using github.com/llir/llvm.
//
// Design: a one-to-one instruction mapping. All LLVM blocks of a function
// are created before any instruction is lowered so forward branches
// resolve; temporaries and slots are looked up by identity. Allocas are
// hoisted into the entry block, where mem2reg expects them.
package llvm

import (
	"fmt"
	"io"

	llir "github.com/llir/llvm/ir"
	"github.com/llir/llvm/ir/constant"
	"github.com/llir/llvm/ir/enum"
	"github.com/llir/llvm/ir/types"
	"github.com/llir/llvm/ir/value"

	"github.com/gsm-lang/gsmc/pkg/ir"
	"github.com/gsm-lang/gsmc/pkg/logger"
)

var predicates = map[ir.Op]enum.IPred{
	ir.OpEq: enum.IPredEQ,
	ir.OpNe: enum.IPredNE,
	ir.OpLt: enum.IPredSLT,
	ir.OpLe: enum.IPredSLE,
	ir.OpGt: enum.IPredSGT,
	ir.OpGe: enum.IPredSGE,
}

// Lower converts m into an llir module.
func Lower(m *ir.Module) (*llir.Module, error) {
	out := llir.NewModule()
	out.SourceFilename = m.Name

	for _, fn := range m.Functions {
		if err := lowerFunction(out, fn); err != nil {
			return nil, fmt.Errorf("lowering %s: %w", fn.Name, err)
		}
	}
	return out, nil
}

// Emit writes the LLVM assembly for m to w.
func Emit(w io.Writer, m *ir.Module) error {
	out, err := Lower(m)
	if err != nil {
		return err
	}
	_, err = io.WriteString(w, out.String())
	return err
}

type funcLowerer struct {
	blocks map[string]*llir.Block
	temps  map[*ir.Temp]value.Value
	slots  map[*ir.Slot]value.Value
	params map[string]value.Value
}

func lowerFunction(mod *llir.Module, fn *ir.Function) error {
	ret, err := lowerType(fn.ReturnType)
	if err != nil {
		return err
	}

	params := make([]*llir.Param, len(fn.Params))
	l := &funcLowerer{
		blocks: make(map[string]*llir.Block, len(fn.Blocks)),
		temps:  make(map[*ir.Temp]value.Value),
		slots:  make(map[*ir.Slot]value.Value),
		params: make(map[string]value.Value, len(fn.Params)),
	}
	for i, p := range fn.Params {
		typ, err := lowerType(p.Typ)
		if err != nil {
			return err
		}
		params[i] = llir.NewParam(p.Name, typ)
		l.params[p.Name] = params[i]
	}

	f := mod.NewFunc(fn.Name, ret, params...)
	for _, b := range fn.Blocks {
		l.blocks[b.Label] = f.NewBlock(b.Label)
	}
	if len(fn.Blocks) > 0 {
		l.hoistAllocas(l.blocks[fn.Blocks[0].Label], fn)
	}

	count := 0
	for _, b := range fn.Blocks {
		blk := l.blocks[b.Label]
		for _, inst := range b.Insts {
			if err := l.inst(blk, inst); err != nil {
				return fmt.Errorf("block %s: %w", b.Label, err)
			}
			count++
		}
		if err := l.term(blk, b.Term); err != nil {
			return fmt.Errorf("block %s: %w", b.Label, err)
		}
		count++
	}

	logger.LogCodeGen("llvm", fn.Name, count)
	return nil
}

func lowerType(t ir.Type) (types.Type, error) {
	switch t := t.(type) {
	case ir.IntType:
		return types.I32, nil
	case ir.BoolType:
		return types.I1, nil
	case ir.ByteType:
		return types.I8, nil
	case ir.PtrType:
		elem, err := lowerType(t.Elem)
		if err != nil {
			return nil, err
		}
		return types.NewPointer(elem), nil
	}
	return nil, fmt.Errorf("unsupported type %v", t)
}

// hoistAllocas emits every alloca of fn at the top of entry, in layout order.
func (l *funcLowerer) hoistAllocas(entry *llir.Block, fn *ir.Function) {
	for _, b := range fn.Blocks {
		for _, inst := range b.Insts {
			if i, ok := inst.(*ir.Alloca); ok {
				a := entry.NewAlloca(types.I32)
				a.SetName(i.Dest.Name + ".addr")
				l.slots[i.Dest] = a
			}
		}
	}
}

func (l *funcLowerer) inst(blk *llir.Block, inst ir.Inst) error {
	switch i := inst.(type) {
	case *ir.Alloca:
		// hoisted into the entry block

	case *ir.Load:
		src, ok := l.slots[i.Src]
		if !ok {
			return fmt.Errorf("load from unallocated %s", i.Src)
		}
		l.temps[i.Dest] = blk.NewLoad(types.I32, src)

	case *ir.Store:
		dst, ok := l.slots[i.Dest]
		if !ok {
			return fmt.Errorf("store to unallocated %s", i.Dest)
		}
		src, err := l.value(i.Src)
		if err != nil {
			return err
		}
		blk.NewStore(src, dst)

	case *ir.BinOp:
		x, err := l.value(i.L)
		if err != nil {
			return err
		}
		y, err := l.value(i.R)
		if err != nil {
			return err
		}
		v, err := l.binop(blk, i.Op, x, y)
		if err != nil {
			return err
		}
		l.temps[i.Dest] = v

	default:
		return fmt.Errorf("unsupported instruction %T", inst)
	}
	return nil
}

func (l *funcLowerer) binop(blk *llir.Block, op ir.Op, x, y value.Value) (value.Value, error) {
	nsw := []enum.OverflowFlag{enum.OverflowFlagNSW}

	switch op {
	case ir.OpAdd:
		inst := blk.NewAdd(x, y)
		inst.OverflowFlags = nsw
		return inst, nil
	case ir.OpSub:
		inst := blk.NewSub(x, y)
		inst.OverflowFlags = nsw
		return inst, nil
	case ir.OpMul:
		inst := blk.NewMul(x, y)
		inst.OverflowFlags = nsw
		return inst, nil
	case ir.OpDiv:
		return blk.NewSDiv(x, y), nil
	case ir.OpRem:
		return blk.NewSRem(x, y), nil
	case ir.OpAnd:
		return blk.NewAnd(x, y), nil
	case ir.OpOr:
		return blk.NewOr(x, y), nil
	}

	if pred, ok := predicates[op]; ok {
		return blk.NewICmp(pred, x, y), nil
	}
	return nil, fmt.Errorf("unsupported op %s", op)
}

func (l *funcLowerer) term(blk *llir.Block, term ir.Terminator) error {
	switch t := term.(type) {
	case *ir.Return:
		if t.Value == nil {
			blk.NewRet(nil)
			return nil
		}
		v, err := l.value(t.Value)
		if err != nil {
			return err
		}
		blk.NewRet(v)

	case *ir.Branch:
		target, ok := l.blocks[t.Target]
		if !ok {
			return fmt.Errorf("branch to unknown block %q", t.Target)
		}
		blk.NewBr(target)

	case *ir.CondBranch:
		cond, err := l.value(t.Cond)
		if err != nil {
			return err
		}
		then, ok := l.blocks[t.TrueBlock]
		if !ok {
			return fmt.Errorf("branch to unknown block %q", t.TrueBlock)
		}
		els, ok := l.blocks[t.FalseBlock]
		if !ok {
			return fmt.Errorf("branch to unknown block %q", t.FalseBlock)
		}
		blk.NewCondBr(cond, then, els)

	case nil:
		return fmt.Errorf("missing terminator")

	default:
		return fmt.Errorf("unsupported terminator %T", term)
	}
	return nil
}

func (l *funcLowerer) value(v ir.Value) (value.Value, error) {
	switch x := v.(type) {
	case *ir.Const:
		if _, ok := x.Typ.(ir.BoolType); ok {
			return constant.NewBool(x.Val != 0), nil
		}
		return constant.NewInt(types.I32, x.Val), nil
	case *ir.Temp:
		if val, ok := l.temps[x]; ok {
			return val, nil
		}
		return nil, fmt.Errorf("%s used before definition", x)
	case *ir.Param:
		if val, ok := l.params[x.Name]; ok {
			return val, nil
		}
		return nil, fmt.Errorf("unknown parameter %s", x)
	case *ir.Slot:
		if val, ok := l.slots[x]; ok {
			return val, nil
		}
		return nil, fmt.Errorf("unallocated %s", x)
	}
	return nil, fmt.Errorf("unsupported value %T", v)
}
