// Package optimizer - IR-level optimizations
// Design: Simple, effective passes for fast compilation. Every pass works on
// one function, rewrites in place and reports how many changes it made.
package optimizer

import (
	"github.com/GriffinCanCode/typthon-jit/pkg/ir"
	"github.com/GriffinCanCode/typthon-jit/pkg/logger"
)

// MaxLevel is the highest supported optimization level.
const MaxLevel = 3

// maxRounds bounds the fixed-point iteration at level 3.
const maxRounds = 16

// Pass is a named function-level transformation.
type Pass struct {
	Name string
	Run  func(fn *ir.Function) int
}

// DumpFunc receives the program after each pass.
type DumpFunc func(stage string, prog *ir.Program)

var (
	passConstantFold = Pass{"constant-fold", ConstantFold}
	passSimplifyCFG  = Pass{"simplify-cfg", SimplifyCFG}
	passDCE          = Pass{"dead-code-elim", DeadCodeElimination}
	passPeephole     = Pass{"peephole", Peephole}
	passStrength     = Pass{"strength-reduce", StrengthReduce}
	passLayout       = Pass{"block-layout", BlockLayout}
)

// Passes returns the pipeline for an optimization level.
func Passes(level int) []Pass {
	switch {
	case level <= 0:
		return nil
	case level == 1:
		return []Pass{passConstantFold, passSimplifyCFG, passDCE}
	default:
		return []Pass{passConstantFold, passPeephole, passStrength, passConstantFold, passSimplifyCFG, passDCE, passLayout}
	}
}

// Optimize applies all optimization passes for level.
func Optimize(prog *ir.Program, level int) *ir.Program {
	return OptimizeWithDump(prog, level, nil)
}

// OptimizeWithDump is Optimize with a hook called after every pass.
func OptimizeWithDump(prog *ir.Program, level int, dump DumpFunc) *ir.Program {
	logger.Debug("Running optimization passes", "level", level)
	if level <= 0 {
		return prog
	}

	rounds := 1
	if level >= MaxLevel {
		rounds = maxRounds
	}
	for round := 0; round < rounds; round++ {
		total := 0
		for _, p := range Passes(level) {
			changes := runPass(prog, p)
			total += changes
			if dump != nil {
				dump(p.Name, prog)
			}
		}
		if total == 0 {
			break
		}
	}

	logger.Debug("Optimization complete", "level", level)
	return prog
}

func runPass(prog *ir.Program, p Pass) int {
	changes := 0
	for _, fn := range prog.Functions {
		changes += p.Run(fn)
	}
	logger.LogOptimization(p.Name, changes)
	return changes
}

// ConstantFold evaluates operations over constants and propagates known
// values. Temps are single-assignment so their constants hold function-wide;
// local constants are tracked within one block.
func ConstantFold(fn *ir.Function) int {
	changes := 0
	known := make(map[*ir.Temp]*ir.Const)

	for _, block := range fn.Blocks {
		locals := make(map[*ir.Local]*ir.Const)
		subst := func(v ir.Value) ir.Value {
			switch x := v.(type) {
			case *ir.Temp:
				if c, ok := known[x]; ok {
					changes++
					return c
				}
			case *ir.Local:
				if c, ok := locals[x]; ok {
					changes++
					return c
				}
			}
			return v
		}

		for i, inst := range block.Insts {
			switch in := inst.(type) {
			case *ir.Move:
				in.Src = subst(in.Src)
				c, isConst := in.Src.(*ir.Const)
				switch d := in.Dest.(type) {
				case *ir.Temp:
					if isConst {
						known[d] = c
					}
				case *ir.Local:
					if isConst {
						locals[d] = c
					} else {
						delete(locals, d)
					}
				}
			case *ir.BinOp:
				in.L, in.R = subst(in.L), subst(in.R)
				l, lok := in.L.(*ir.Const)
				r, rok := in.R.(*ir.Const)
				if lok && rok {
					c := ir.NewConst(in.Dest.Type, ir.EvalBinary(in.Op, l.Type, l.Val, r.Val))
					block.Insts[i] = &ir.Move{Dest: in.Dest, Src: c}
					known[in.Dest] = c
					changes++
				}
			case *ir.UnOp:
				in.X = subst(in.X)
				if x, ok := in.X.(*ir.Const); ok {
					c := ir.NewConst(in.Dest.Type, ir.EvalUnary(in.Op, x.Type, x.Val))
					block.Insts[i] = &ir.Move{Dest: in.Dest, Src: c}
					known[in.Dest] = c
					changes++
				}
			}
		}

		switch term := block.Term.(type) {
		case *ir.Return:
			if term.Value != nil {
				term.Value = subst(term.Value)
			}
		case *ir.CondBranch:
			term.Cond = subst(term.Cond)
		}
	}
	return changes
}

// SimplifyCFG folds constant branches, threads jumps through empty blocks,
// drops unreachable blocks and merges straight-line chains.
func SimplifyCFG(fn *ir.Function) int {
	if len(fn.Blocks) == 0 {
		return 0
	}
	changes := 0

	for _, block := range fn.Blocks {
		cb, ok := block.Term.(*ir.CondBranch)
		if !ok {
			continue
		}
		if c, isConst := cb.Cond.(*ir.Const); isConst {
			target := cb.False
			if c.Val != 0 {
				target = cb.True
			}
			block.Term = &ir.Branch{Target: target}
			changes++
		} else if cb.True == cb.False {
			block.Term = &ir.Branch{Target: cb.True}
			changes++
		}
	}

	for _, block := range fn.Blocks {
		switch term := block.Term.(type) {
		case *ir.Branch:
			if t := forward(term.Target); t != term.Target {
				term.Target = t
				changes++
			}
		case *ir.CondBranch:
			if t := forward(term.True); t != term.True {
				term.True = t
				changes++
			}
			if f := forward(term.False); f != term.False {
				term.False = f
				changes++
			}
		}
	}

	changes += removeUnreachable(fn)

	for merged := true; merged; {
		merged = false
		fn.ComputeCFG()
		entry := fn.Entry()
		for _, block := range fn.Blocks {
			br, ok := block.Term.(*ir.Branch)
			if !ok {
				continue
			}
			succ := br.Target
			if succ == block || succ == entry || len(succ.Preds) != 1 {
				continue
			}
			block.Insts = append(block.Insts, succ.Insts...)
			block.Term = succ.Term
			removeBlock(fn, succ)
			changes++
			merged = true
			break
		}
	}

	fn.ComputeCFG()
	return changes
}

// forward follows chains of empty blocks that only branch onward.
func forward(b *ir.Block) *ir.Block {
	seen := make(map[*ir.Block]bool)
	for len(b.Insts) == 0 && !seen[b] {
		br, ok := b.Term.(*ir.Branch)
		if !ok {
			break
		}
		seen[b] = true
		b = br.Target
	}
	return b
}

func removeUnreachable(fn *ir.Function) int {
	reachable := fn.Reachable()
	kept := make([]*ir.Block, 0, len(fn.Blocks))
	for _, block := range fn.Blocks {
		if reachable[block] {
			kept = append(kept, block)
		}
	}
	removed := len(fn.Blocks) - len(kept)
	fn.Blocks = kept
	return removed
}

func removeBlock(fn *ir.Function, dead *ir.Block) {
	for i, block := range fn.Blocks {
		if block == dead {
			fn.Blocks = append(fn.Blocks[:i], fn.Blocks[i+1:]...)
			return
		}
	}
}

// DeadCodeElimination removes writes to temps and locals that are never read.
// No operation has side effects, so any unread definition is dead.
func DeadCodeElimination(fn *ir.Function) int {
	changes := 0
	for {
		used := make(map[ir.Value]bool)
		for _, block := range fn.Blocks {
			for _, inst := range block.Insts {
				for _, u := range ir.Uses(inst) {
					used[u] = true
				}
			}
			for _, u := range ir.TermUses(block.Term) {
				used[u] = true
			}
		}

		removed := 0
		for _, block := range fn.Blocks {
			kept := block.Insts[:0]
			for _, inst := range block.Insts {
				if d := ir.Def(inst); d != nil && !used[d] {
					removed++
					continue
				}
				kept = append(kept, inst)
			}
			block.Insts = kept
		}
		if removed == 0 {
			return changes
		}
		changes += removed
	}
}
