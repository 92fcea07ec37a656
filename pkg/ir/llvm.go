package ir

import (
	"strconv"

	"github.com/llir/llvm/ir/constant"
	"github.com/llir/llvm/ir/enum"
	"github.com/llir/llvm/ir/types"
	"github.com/llir/llvm/ir/value"

	llvm "github.com/llir/llvm/ir"
)

// ToLLVM renders the program as an LLVM module. Locals become allocas in
// the entry block; temps map to SSA values. The result is a diagnostic view,
// division follows LLVM semantics rather than the non-trapping rules of Eval.
func ToLLVM(p *Program) *llvm.Module {
	m := llvm.NewModule()
	for _, fn := range p.Functions {
		lowerLLVMFunc(m, fn)
	}
	return m
}

// LLVMText returns the textual LLVM IR of p.
func LLVMText(p *Program) string {
	return ToLLVM(p).String()
}

type llvmFunc struct {
	params map[*Param]value.Value
	locals map[*Local]value.Value
	temps  map[int]value.Value
	blocks map[*Block]*llvm.Block
}

func llvmType(t Type) types.Type {
	switch tt := t.(type) {
	case nil, VoidType:
		return types.Void
	case BoolType:
		return types.I1
	case IntType:
		return types.NewInt(uint64(tt.Width))
	case PtrType:
		elem := llvmType(tt.Elem)
		if elem == types.Void {
			elem = types.I8
		}
		return types.NewPointer(elem)
	}
	return types.I64
}

func lowerLLVMFunc(m *llvm.Module, fn *Function) {
	lf := &llvmFunc{
		params: make(map[*Param]value.Value, len(fn.Params)),
		locals: make(map[*Local]value.Value, len(fn.Locals)),
		temps:  make(map[int]value.Value, fn.NumTemps),
		blocks: make(map[*Block]*llvm.Block, len(fn.Blocks)),
	}

	params := make([]*llvm.Param, len(fn.Params))
	for i, p := range fn.Params {
		params[i] = llvm.NewParam(p.Name, llvmType(p.Type))
		lf.params[p] = params[i]
	}
	f := m.NewFunc(fn.Name, llvmType(fn.ReturnType), params...)
	if !fn.Exported {
		f.Linkage = enum.LinkageInternal
	}

	for _, b := range fn.Blocks {
		lf.blocks[b] = f.NewBlock(b.String())
	}
	if len(fn.Blocks) == 0 {
		return
	}
	entry := lf.blocks[fn.Blocks[0]]
	for _, l := range fn.Locals {
		slot := entry.NewAlloca(llvmType(l.Type))
		slot.SetName(l.Name + "." + strconv.Itoa(l.Index))
		lf.locals[l] = slot
	}

	for _, b := range fn.Blocks {
		lb := lf.blocks[b]
		for _, inst := range b.Insts {
			lf.inst(lb, inst)
		}
		lf.term(lb, b.Term)
	}
}

func (lf *llvmFunc) operand(lb *llvm.Block, v Value) value.Value {
	switch x := v.(type) {
	case *Const:
		switch t := llvmType(x.Type).(type) {
		case *types.PointerType:
			return constant.NewNull(t)
		case *types.IntType:
			if t.BitSize == 1 {
				return constant.NewBool(x.Val != 0)
			}
			return constant.NewInt(t, x.Val)
		}
	case *Param:
		return lf.params[x]
	case *Local:
		return lb.NewLoad(llvmType(x.Type), lf.locals[x])
	case *Temp:
		if val, ok := lf.temps[x.ID]; ok {
			return val
		}
		return constant.NewUndef(llvmType(x.Type))
	}
	return constant.NewUndef(types.I64)
}

func (lf *llvmFunc) define(lb *llvm.Block, dest Value, val value.Value) {
	switch d := dest.(type) {
	case *Temp:
		lf.temps[d.ID] = val
	case *Local:
		lb.NewStore(val, lf.locals[d])
	}
}

func (lf *llvmFunc) inst(lb *llvm.Block, inst Inst) {
	switch i := inst.(type) {
	case *Move:
		lf.define(lb, i.Dest, lf.operand(lb, i.Src))
	case *UnOp:
		x := lf.operand(lb, i.X)
		t, ok := llvmType(i.X.ValueType()).(*types.IntType)
		if !ok {
			lf.define(lb, i.Dest, x)
			return
		}
		switch i.Op {
		case OpNeg:
			lf.define(lb, i.Dest, lb.NewSub(constant.NewInt(t, 0), x))
		default:
			lf.define(lb, i.Dest, lb.NewXor(x, constant.NewInt(t, -1)))
		}
	case *BinOp:
		l, r := lf.operand(lb, i.L), lf.operand(lb, i.R)
		signed := i.L.ValueType().Signed()
		var val value.Value
		switch i.Op {
		case OpAdd:
			val = lb.NewAdd(l, r)
		case OpSub:
			val = lb.NewSub(l, r)
		case OpMul:
			val = lb.NewMul(l, r)
		case OpDiv:
			if signed {
				val = lb.NewSDiv(l, r)
			} else {
				val = lb.NewUDiv(l, r)
			}
		case OpMod:
			if signed {
				val = lb.NewSRem(l, r)
			} else {
				val = lb.NewURem(l, r)
			}
		case OpAnd:
			val = lb.NewAnd(l, r)
		case OpOr:
			val = lb.NewOr(l, r)
		case OpXor:
			val = lb.NewXor(l, r)
		case OpShl:
			val = lb.NewShl(l, r)
		case OpShr:
			if signed {
				val = lb.NewAShr(l, r)
			} else {
				val = lb.NewLShr(l, r)
			}
		default:
			val = lb.NewICmp(icmpPred(i.Op, signed), l, r)
		}
		lf.define(lb, i.Dest, val)
	}
}

func (lf *llvmFunc) term(lb *llvm.Block, term Terminator) {
	switch t := term.(type) {
	case *Return:
		if t.Value == nil {
			lb.NewRet(nil)
			return
		}
		lb.NewRet(lf.operand(lb, t.Value))
	case *Branch:
		lb.NewBr(lf.blocks[t.Target])
	case *CondBranch:
		lb.NewCondBr(lf.operand(lb, t.Cond), lf.blocks[t.True], lf.blocks[t.False])
	default:
		lb.NewUnreachable()
	}
}

func icmpPred(op Op, signed bool) enum.IPred {
	switch op {
	case OpEq:
		return enum.IPredEQ
	case OpNe:
		return enum.IPredNE
	case OpLt:
		if signed {
			return enum.IPredSLT
		}
		return enum.IPredULT
	case OpLe:
		if signed {
			return enum.IPredSLE
		}
		return enum.IPredULE
	case OpGt:
		if signed {
			return enum.IPredSGT
		}
		return enum.IPredUGT
	default:
		if signed {
			return enum.IPredSGE
		}
		return enum.IPredUGE
	}
}
