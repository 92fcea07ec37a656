package optimizer

import (
	"github.com/GriffinCanCode/typthon-jit/pkg/ir"
	"github.com/GriffinCanCode/typthon-jit/pkg/logger"
)

// BlockLayout reorders blocks so each block is followed by its fallthrough
// successor when possible, which lets codegen drop the jump. The entry block
// stays first; blocks no chain reaches keep their relative order.
func BlockLayout(fn *ir.Function) int {
	if len(fn.Blocks) < 3 {
		return 0
	}

	placed := make(map[*ir.Block]bool, len(fn.Blocks))
	order := make([]*ir.Block, 0, len(fn.Blocks))
	for _, start := range fn.Blocks {
		for b := start; b != nil && !placed[b]; b = fallthroughOf(b) {
			placed[b] = true
			order = append(order, b)
		}
	}

	changes := 0
	for i, b := range order {
		if fn.Blocks[i] != b {
			changes++
		}
	}
	if changes > 0 {
		logger.Debug("Reordered blocks", "function", fn.Name, "moved", changes)
		fn.Blocks = order
	}
	return changes
}

// fallthroughOf is the successor that should follow b: the target of an
// unconditional branch, or the not-taken side of a conditional one.
func fallthroughOf(b *ir.Block) *ir.Block {
	switch t := b.Term.(type) {
	case *ir.Branch:
		return t.Target
	case *ir.CondBranch:
		return t.False
	}
	return nil
}
