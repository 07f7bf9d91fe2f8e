// Package optimizer - IR-level optimizations
// Design: Simple, effective passes for fast compilation. Passes rewrite a
// function in place and report how many changes they made, so the driver
// can iterate to a fixed point and log what happened.
package optimizer

import (
	"fmt"
	"sort"

	"github.com/gsm-lang/gsmc/pkg/interp"
	"github.com/gsm-lang/gsmc/pkg/ir"
	"github.com/gsm-lang/gsmc/pkg/logger"
)

// MaxLevel is the most aggressive optimization level.
const MaxLevel = 2

const maxRounds = 8

type Options struct {
	Level int

	// Live names the variables whose stores must be kept. At level 2 stores
	// to every other variable are dropped. Nil keeps everything.
	Live map[string]bool

	// Profile orders blocks hottest first when set.
	Profile *Profile
}

// Stats counts changes per pass.
type Stats map[string]int

func (s Stats) add(pass string, n int) int {
	if n > 0 {
		s[pass] += n
	}
	return n
}

// Total returns the number of changes made by all passes.
func (s Stats) Total() int {
	n := 0
	for _, c := range s {
		n += c
	}
	return n
}

// Passes returns the names of passes that changed something, sorted.
func (s Stats) Passes() []string {
	names := make([]string, 0, len(s))
	for name := range s {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Optimize applies all optimization passes
func Optimize(m *ir.Module, opts Options) (Stats, error) {
	logger.Debug("Running optimization passes", "level", opts.Level)

	stats := make(Stats)
	if opts.Level <= 0 {
		return stats, nil
	}

	for _, fn := range m.Functions {
		if len(fn.Blocks) == 0 {
			continue
		}

		pruneSlots := opts.Level >= 2 && opts.Live != nil
		if pruneSlots {
			stats.add("dead-slots", EliminateDeadStores(fn, opts.Live))
		}

		for round := 0; round < maxRounds; round++ {
			n := stats.add("constant-fold", ConstantFold(fn))
			n += stats.add("peephole", PeepholeOptimize(fn))
			n += stats.add("simplify-cfg", SimplifyCFG(fn))
			n += stats.add("dce", DeadCodeElimination(fn))
			if n == 0 {
				break
			}
		}

		if pruneSlots {
			if err := checkDeadSlots(fn, opts.Live); err != nil {
				return stats, err
			}
		}

		if opts.Profile != nil {
			stats.add("pgo-layout", ReorderBlocks(fn, opts.Profile))
		}
	}

	for _, pass := range stats.Passes() {
		logger.LogOptimization(pass, stats[pass])
	}
	logger.Info("Optimization complete", "level", opts.Level, "changes", stats.Total())

	if err := ir.Verify(m); err != nil {
		return stats, fmt.Errorf("optimizer produced invalid IR: %w", err)
	}
	return stats, nil
}

// ConstantFold evaluates binary operations on constants and propagates the
// result into every use. Branches on a constant become unconditional.
// Division by a constant zero is left for the runtime to report.
func ConstantFold(fn *ir.Function) int {
	logger.Debug("Running constant folding", "function", fn.Name)

	changes := 0
	for _, block := range fn.Blocks {
		kept := block.Insts[:0]
		for _, inst := range block.Insts {
			binop, ok := inst.(*ir.BinOp)
			if !ok {
				kept = append(kept, inst)
				continue
			}
			l, lok := binop.L.(*ir.Const)
			r, rok := binop.R.(*ir.Const)
			if !lok || !rok {
				kept = append(kept, inst)
				continue
			}
			val, err := interp.Apply(binop.Op, int32(l.Val), int32(r.Val))
			if err != nil {
				kept = append(kept, inst)
				continue
			}
			replaceUses(fn, binop.Dest, &ir.Const{Val: int64(val), Typ: binop.Dest.Typ})
			changes++
		}
		block.Insts = kept

		if cb, ok := block.Term.(*ir.CondBranch); ok {
			if c, ok := cb.Cond.(*ir.Const); ok {
				target := cb.FalseBlock
				if c.Val != 0 {
					target = cb.TrueBlock
				}
				block.Term = &ir.Branch{Target: target}
				changes++
			}
		}
	}
	return changes
}

// DeadCodeElimination removes unreachable blocks, instructions whose result
// is never used and allocas of variables nothing touches any more. Unused
// divisions are removed too, so a dead division by zero no longer traps.
func DeadCodeElimination(fn *ir.Function) int {
	logger.Debug("Running dead code elimination", "function", fn.Name)
	if len(fn.Blocks) == 0 {
		return 0
	}

	changes := removeUnreachable(fn)

	for {
		uses := useCounts(fn)
		removed := 0
		for _, block := range fn.Blocks {
			kept := block.Insts[:0]
			for _, inst := range block.Insts {
				var dest *ir.Temp
				switch i := inst.(type) {
				case *ir.Load:
					dest = i.Dest
				case *ir.BinOp:
					dest = i.Dest
				}
				if dest != nil && uses[dest] == 0 {
					removed++
					continue
				}
				kept = append(kept, inst)
			}
			block.Insts = kept
		}
		changes += removed
		if removed == 0 {
			break
		}
	}

	touched := make(map[*ir.Slot]bool)
	for _, block := range fn.Blocks {
		for _, inst := range block.Insts {
			switch i := inst.(type) {
			case *ir.Load:
				touched[i.Src] = true
			case *ir.Store:
				touched[i.Dest] = true
			}
		}
	}
	for _, block := range fn.Blocks {
		kept := block.Insts[:0]
		for _, inst := range block.Insts {
			if a, ok := inst.(*ir.Alloca); ok && !touched[a.Dest] {
				changes++
				continue
			}
			kept = append(kept, inst)
		}
		block.Insts = kept
	}

	return changes
}

func removeUnreachable(fn *ir.Function) int {
	reachable := make(map[*ir.Block]bool)
	worklist := []*ir.Block{fn.Blocks[0]} // Start from entry block

	for len(worklist) > 0 {
		block := worklist[0]
		worklist = worklist[1:]

		if block == nil || reachable[block] {
			continue
		}
		reachable[block] = true

		for _, label := range block.Successors() {
			worklist = append(worklist, fn.Block(label))
		}
	}

	newBlocks := make([]*ir.Block, 0, len(fn.Blocks))
	for _, block := range fn.Blocks {
		if reachable[block] {
			newBlocks = append(newBlocks, block)
		}
	}
	removed := len(fn.Blocks) - len(newBlocks)
	fn.Blocks = newBlocks
	return removed
}

// replaceUses rewrites every operand equal to old.
func replaceUses(fn *ir.Function, old *ir.Temp, val ir.Value) {
	swap := func(v ir.Value) ir.Value {
		if t, ok := v.(*ir.Temp); ok && t == old {
			return val
		}
		return v
	}
	for _, block := range fn.Blocks {
		for _, inst := range block.Insts {
			switch i := inst.(type) {
			case *ir.Store:
				i.Src = swap(i.Src)
			case *ir.BinOp:
				i.L = swap(i.L)
				i.R = swap(i.R)
			}
		}
		switch t := block.Term.(type) {
		case *ir.Return:
			if t.Value != nil {
				t.Value = swap(t.Value)
			}
		case *ir.CondBranch:
			t.Cond = swap(t.Cond)
		}
	}
}

func useCounts(fn *ir.Function) map[*ir.Temp]int {
	uses := make(map[*ir.Temp]int)
	count := func(v ir.Value) {
		if t, ok := v.(*ir.Temp); ok {
			uses[t]++
		}
	}
	for _, block := range fn.Blocks {
		for _, inst := range block.Insts {
			switch i := inst.(type) {
			case *ir.Store:
				count(i.Src)
			case *ir.BinOp:
				count(i.L)
				count(i.R)
			}
		}
		switch t := block.Term.(type) {
		case *ir.Return:
			if t.Value != nil {
				count(t.Value)
			}
		case *ir.CondBranch:
			count(t.Cond)
		}
	}
	return uses
}
