// Package optimizer - Peephole optimization pass
// Recognizes and optimizes common instruction patterns
package optimizer

import (
	"github.com/gsm-lang/gsmc/pkg/ir"
	"github.com/gsm-lang/gsmc/pkg/logger"
)

// PeepholeOptimize applies pattern-based peephole optimizations
func PeepholeOptimize(fn *ir.Function) int {
	logger.Debug("Running peephole optimizer", "function", fn.Name)

	changes := 0
	for _, block := range fn.Blocks {
		changes += forwardStores(fn, block)
		changes += simplifyIdentities(fn, block)
	}
	return changes
}

// forwardStores replaces a load with the value most recently stored to the
// same slot in the same block. A store of the value just loaded from the
// same slot is dropped.
func forwardStores(fn *ir.Function, block *ir.Block) int {
	changes := 0
	known := make(map[*ir.Slot]ir.Value)

	kept := block.Insts[:0]
	for _, inst := range block.Insts {
		switch i := inst.(type) {
		case *ir.Load:
			if v, ok := known[i.Src]; ok {
				logger.Debug("Peephole: forwarded store to load", "slot", i.Src.Name)
				replaceUses(fn, i.Dest, v)
				changes++
				continue
			}
			known[i.Src] = i.Dest
		case *ir.Store:
			if t, ok := i.Src.(*ir.Temp); ok && known[i.Dest] == ir.Value(t) {
				logger.Debug("Peephole: dropped redundant store", "slot", i.Dest.Name)
				changes++
				continue
			}
			known[i.Dest] = i.Src
		}
		kept = append(kept, inst)
	}
	block.Insts = kept
	return changes
}

// simplifyIdentities removes operations whose result equals one operand.
func simplifyIdentities(fn *ir.Function, block *ir.Block) int {
	changes := 0

	kept := block.Insts[:0]
	for _, inst := range block.Insts {
		binop, ok := inst.(*ir.BinOp)
		if !ok {
			kept = append(kept, inst)
			continue
		}
		if v := identity(binop); v != nil {
			replaceUses(fn, binop.Dest, v)
			changes++
			continue
		}
		kept = append(kept, inst)
	}
	block.Insts = kept
	return changes
}

// identity returns the value binop always produces, or nil.
func identity(binop *ir.BinOp) ir.Value {
	lc, lok := binop.L.(*ir.Const)
	rc, rok := binop.R.(*ir.Const)

	switch binop.Op {
	case ir.OpAdd:
		// Pattern: x = a + 0  =>  x = a
		if rok && rc.Val == 0 {
			logger.Debug("Peephole: eliminated add-by-zero")
			return binop.L
		}
		if lok && lc.Val == 0 {
			logger.Debug("Peephole: eliminated add-by-zero")
			return binop.R
		}

	case ir.OpSub:
		// Pattern: x = a - 0  =>  x = a
		if rok && rc.Val == 0 {
			logger.Debug("Peephole: eliminated subtract-by-zero")
			return binop.L
		}
		// Pattern: x = a - a  =>  x = 0
		if binop.L == binop.R {
			logger.Debug("Peephole: eliminated self-subtraction")
			return ir.ConstInt(0)
		}

	case ir.OpMul:
		// Pattern: x = a * 0  =>  x = 0
		if (rok && rc.Val == 0) || (lok && lc.Val == 0) {
			logger.Debug("Peephole: eliminated multiply-by-zero")
			return ir.ConstInt(0)
		}
		// Pattern: x = a * 1  =>  x = a
		if rok && rc.Val == 1 {
			logger.Debug("Peephole: eliminated multiply-by-one")
			return binop.L
		}
		if lok && lc.Val == 1 {
			logger.Debug("Peephole: eliminated multiply-by-one")
			return binop.R
		}

	case ir.OpDiv:
		// Pattern: x = a / 1  =>  x = a
		if rok && rc.Val == 1 {
			logger.Debug("Peephole: eliminated divide-by-one")
			return binop.L
		}

	case ir.OpRem:
		// Pattern: x = a % 1  =>  x = 0
		if rok && rc.Val == 1 {
			logger.Debug("Peephole: eliminated remainder-by-one")
			return ir.ConstInt(0)
		}

	case ir.OpAnd:
		// Pattern: x = c and true  =>  x = c
		if rok && rc.Val != 0 {
			return binop.L
		}
		if lok && lc.Val != 0 {
			return binop.R
		}
		// Pattern: x = c and false  =>  x = false
		if (rok && rc.Val == 0) || (lok && lc.Val == 0) {
			return ir.ConstBool(false)
		}

	case ir.OpOr:
		// Pattern: x = c or false  =>  x = c
		if rok && rc.Val == 0 {
			return binop.L
		}
		if lok && lc.Val == 0 {
			return binop.R
		}
		if (rok && rc.Val != 0) || (lok && lc.Val != 0) {
			return ir.ConstBool(true)
		}
	}
	return nil
}
