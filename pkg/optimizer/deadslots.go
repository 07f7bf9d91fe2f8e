package optimizer

import (
	"fmt"

	"github.com/gsm-lang/gsmc/pkg/ir"
	"github.com/gsm-lang/gsmc/pkg/logger"
)

// EliminateDeadStores drops every store to a variable not in live. The
// loads and arithmetic that fed those stores are left for
// DeadCodeElimination, and the emptied branches for SimplifyCFG.
//
// live must be closed under data and control dependence (see
// frontend.LiveDeclarations); otherwise a kept computation can end up
// reading a variable that is never written.
func EliminateDeadStores(fn *ir.Function, live map[string]bool) int {
	logger.Debug("Eliminating dead stores", "function", fn.Name, "live", len(live))

	changes := 0
	for _, block := range fn.Blocks {
		kept := block.Insts[:0]
		for _, inst := range block.Insts {
			if st, ok := inst.(*ir.Store); ok && !live[st.Dest.Name] {
				changes++
				continue
			}
			kept = append(kept, inst)
		}
		block.Insts = kept
	}
	return changes
}

// checkDeadSlots reports a dead variable that is still read once the other
// passes have run.
func checkDeadSlots(fn *ir.Function, live map[string]bool) error {
	for _, block := range fn.Blocks {
		for _, inst := range block.Insts {
			if ld, ok := inst.(*ir.Load); ok && !live[ld.Src.Name] {
				return fmt.Errorf("optimizer: %s: variable %q was pruned but is still read in block %s",
					fn.Name, ld.Src.Name, block.Label)
			}
		}
	}
	return nil
}
