package optimizer

import (
	"github.com/gsm-lang/gsmc/pkg/ir"
	"github.com/gsm-lang/gsmc/pkg/logger"
)

// SimplifyCFG threads branches through empty blocks, turns a conditional
// branch with identical targets into a jump and merges a block into its
// only predecessor. Blocks left without predecessors are removed by
// DeadCodeElimination.
func SimplifyCFG(fn *ir.Function) int {
	logger.Debug("Simplifying control flow", "function", fn.Name)
	if len(fn.Blocks) == 0 {
		return 0
	}

	changes := threadEmptyBlocks(fn)

	for _, block := range fn.Blocks {
		if cb, ok := block.Term.(*ir.CondBranch); ok && cb.TrueBlock == cb.FalseBlock {
			block.Term = &ir.Branch{Target: cb.TrueBlock}
			changes++
		}
	}

	changes += mergeBlocks(fn)
	return changes
}

func threadEmptyBlocks(fn *ir.Function) int {
	forward := make(map[string]string)
	for _, block := range fn.Blocks[1:] {
		if len(block.Insts) > 0 {
			continue
		}
		if br, ok := block.Term.(*ir.Branch); ok && br.Target != block.Label {
			forward[block.Label] = br.Target
		}
	}
	if len(forward) == 0 {
		return 0
	}

	// chains that loop back on themselves (an infinite empty loop) stay put
	resolve := func(label string) string {
		from := label
		seen := map[string]bool{label: true}
		for {
			next, ok := forward[label]
			if !ok {
				return label
			}
			if seen[next] {
				return from
			}
			seen[next] = true
			label = next
		}
	}

	changes := 0
	retarget := func(label *string) {
		if to := resolve(*label); to != *label {
			*label = to
			changes++
		}
	}
	for _, block := range fn.Blocks {
		switch t := block.Term.(type) {
		case *ir.Branch:
			// an empty block keeps its own jump so chains still resolve
			if _, empty := forward[block.Label]; !empty {
				retarget(&t.Target)
			}
		case *ir.CondBranch:
			retarget(&t.TrueBlock)
			retarget(&t.FalseBlock)
		}
	}
	return changes
}

func mergeBlocks(fn *ir.Function) int {
	changes := 0
	for {
		preds := make(map[string]int)
		for _, block := range fn.Blocks {
			for _, succ := range block.Successors() {
				preds[succ]++
			}
		}

		merged := false
		for _, block := range fn.Blocks {
			br, ok := block.Term.(*ir.Branch)
			if !ok || br.Target == block.Label || br.Target == fn.Blocks[0].Label || preds[br.Target] != 1 {
				continue
			}
			succ := fn.Block(br.Target)
			if succ == nil {
				continue
			}
			block.Insts = append(block.Insts, succ.Insts...)
			block.Term = succ.Term
			removeBlock(fn, succ)
			changes++
			merged = true
			break
		}
		if !merged {
			return changes
		}
	}
}

func removeBlock(fn *ir.Function, b *ir.Block) {
	for i, block := range fn.Blocks {
		if block == b {
			fn.Blocks = append(fn.Blocks[:i], fn.Blocks[i+1:]...)
			return
		}
	}
}
