// Package optimizer - Peephole optimization pass
// Recognizes algebraic identities and cheaper equivalents of single instructions
package optimizer

import (
	"math/bits"

	"github.com/GriffinCanCode/typthon-jit/pkg/ir"
	"github.com/GriffinCanCode/typthon-jit/pkg/logger"
)

// Peephole applies algebraic simplifications to single instructions.
func Peephole(fn *ir.Function) int {
	changes := 0
	for _, block := range fn.Blocks {
		for i, inst := range block.Insts {
			binop, ok := inst.(*ir.BinOp)
			if !ok {
				continue
			}
			if optimized := trySingleInstPattern(binop); optimized != nil {
				block.Insts[i] = optimized
				changes++
			}
		}
	}
	return changes
}

// trySingleInstPattern returns a replacement for binop, or nil.
func trySingleInstPattern(binop *ir.BinOp) ir.Inst {
	move := func(src ir.Value) ir.Inst { return &ir.Move{Dest: binop.Dest, Src: src} }
	constant := func(v int64) ir.Inst { return move(ir.NewConst(binop.Dest.Type, v)) }
	t := binop.L.ValueType()

	// Pattern: x op x
	if binop.L == binop.R && ir.IsVar(binop.L) {
		switch binop.Op {
		case ir.OpSub, ir.OpXor:
			logger.Debug("Peephole: self-cancelling operation", "op", binop.Op)
			return constant(0)
		case ir.OpAnd, ir.OpOr:
			return move(binop.L)
		case ir.OpEq, ir.OpLe, ir.OpGe:
			return constant(1)
		case ir.OpNe, ir.OpLt, ir.OpGt:
			return constant(0)
		}
	}

	// Normalize constants to the right for commutative arithmetic
	if _, lok := binop.L.(*ir.Const); lok && binop.Op.IsCommutative() && !binop.Op.IsComparison() {
		if _, rok := binop.R.(*ir.Const); !rok {
			binop.L, binop.R = binop.R, binop.L
		}
	}

	c, ok := binop.R.(*ir.Const)
	if !ok {
		return nil
	}
	allOnes := ir.Canon(t, -1)

	switch binop.Op {
	case ir.OpAdd, ir.OpSub, ir.OpOr, ir.OpXor:
		// Pattern: x + 0  =>  x
		if c.Val == 0 {
			logger.Debug("Peephole: eliminated identity", "op", binop.Op)
			return move(binop.L)
		}
	case ir.OpShl, ir.OpShr:
		if ir.ShiftCount(t, c.Val) == 0 {
			return move(binop.L)
		}
	case ir.OpMul:
		// Pattern: x * 0  =>  0, x * 1  =>  x
		switch c.Val {
		case 0:
			logger.Debug("Peephole: eliminated multiply-by-zero")
			return constant(0)
		case 1:
			logger.Debug("Peephole: eliminated multiply-by-one")
			return move(binop.L)
		}
	case ir.OpDiv:
		if c.Val == 1 {
			return move(binop.L)
		}
	case ir.OpMod:
		if c.Val == 1 {
			return constant(0)
		}
	case ir.OpAnd:
		if c.Val == 0 {
			return constant(0)
		}
		if c.Val == allOnes {
			return move(binop.L)
		}
	}
	return nil
}

// StrengthReduce replaces multiplication and unsigned division or modulo by
// a power of two with shifts and masks.
func StrengthReduce(fn *ir.Function) int {
	changes := 0
	for _, block := range fn.Blocks {
		for _, inst := range block.Insts {
			binop, ok := inst.(*ir.BinOp)
			if !ok {
				continue
			}
			if reduceBinOp(binop) {
				changes++
			}
		}
	}
	return changes
}

func reduceBinOp(binop *ir.BinOp) bool {
	if binop.Op == ir.OpMul {
		if _, lok := binop.L.(*ir.Const); lok {
			if _, rok := binop.R.(*ir.Const); !rok {
				binop.L, binop.R = binop.R, binop.L
			}
		}
	}
	c, ok := binop.R.(*ir.Const)
	if !ok {
		return false
	}
	t := binop.L.ValueType()
	if _, isInt := t.(ir.IntType); !isInt {
		return false
	}
	k, pow2 := log2(t, c.Val)
	if !pow2 || k == 0 {
		return false
	}

	switch {
	case binop.Op == ir.OpMul:
		logger.Debug("Strength reduction: multiply to shift", "shift", k)
		binop.Op = ir.OpShl
		binop.R = ir.NewConst(t, int64(k))
	case binop.Op == ir.OpDiv && !t.Signed():
		binop.Op = ir.OpShr
		binop.R = ir.NewConst(t, int64(k))
	case binop.Op == ir.OpMod && !t.Signed():
		binop.Op = ir.OpAnd
		binop.R = ir.NewConst(t, c.Val-1)
	default:
		return false
	}
	return true
}

// log2 reports whether v, taken modulo the width of t, is a power of two.
func log2(t ir.Type, v int64) (int, bool) {
	u := uint64(v)
	if w := t.Bits(); w < 64 {
		u &= 1<<uint(w) - 1
	}
	if u == 0 || u&(u-1) != 0 {
		return 0, false
	}
	return bits.TrailingZeros64(u), true
}
