package jit

import (
	"strings"

	"github.com/GriffinCanCode/typthon-jit/pkg/ir"
)

// lower translates the validated Context into the lowered IR.
func (c *Context) lower() *ir.Program {
	prog := &ir.Program{Functions: make([]*ir.Function, len(c.funcs))}
	for i, f := range c.funcs {
		prog.Functions[i] = f.lower()
	}
	return prog
}

type lowering struct {
	f      *Function
	b      *ir.Builder
	params []*ir.Param
	locals []*ir.Local
	blocks map[int]*ir.Block // statement index -> block starting there
	memo   map[*Rvalue]ir.Value
}

// lower turns the statement sequence into basic blocks. Every placed label
// position starts a block; a conditional jump ends one.
func (f *Function) lower() *ir.Function {
	fn := &ir.Function{
		Name:       f.name,
		Exported:   f.vis == Exported,
		ReturnType: f.ret.lowered,
	}
	lw := &lowering{f: f, blocks: make(map[int]*ir.Block)}
	for i, p := range f.params {
		lw.params = append(lw.params, &ir.Param{Name: p.name, Index: i, Type: p.typ.lowered})
	}
	for i, l := range f.locals {
		lw.locals = append(lw.locals, &ir.Local{Name: l.name, Index: i, Type: l.typ.lowered})
	}
	fn.Params = lw.params
	fn.Locals = lw.locals

	lw.b = ir.NewBuilder(fn)
	for _, l := range f.labels {
		if l.Placed() && lw.blocks[l.pos] == nil {
			lw.blocks[l.pos] = lw.b.NewBlock(blockName(l.name))
		}
	}
	for _, l := range lw.locals {
		lw.b.Move(l, ir.NewConst(l.Type, 0))
	}

	for i, st := range f.stmts {
		if bl := lw.blocks[i]; bl != nil {
			lw.b.StartBlock(bl)
		}
		lw.memo = make(map[*Rvalue]ir.Value)
		lw.statement(i, st)
	}
	if bl := lw.blocks[len(f.stmts)]; bl != nil {
		lw.b.StartBlock(bl)
	}
	if f.ret.IsVoid() {
		lw.b.Terminate(&ir.Return{})
	} else {
		// unreachable: validation rejects functions that fall off the end
		lw.b.Terminate(&ir.Return{Value: ir.NewConst(fn.ReturnType, 0)})
	}
	return lw.b.Finish()
}

func (lw *lowering) statement(i int, st statement) {
	b := lw.b
	switch st.kind {
	case stmtAssign, stmtAssignOp:
		b.Move(lw.locals[st.dest.index], lw.expr(st.value))
	case stmtConditional:
		cond := lw.expr(st.value)
		next := lw.blocks[i+1]
		if next == nil {
			next = b.NewBlock("cont")
			lw.blocks[i+1] = next
		}
		b.Terminate(&ir.CondBranch{Cond: cond, True: lw.blocks[st.target.pos], False: next})
	case stmtJump:
		b.Terminate(&ir.Branch{Target: lw.blocks[st.target.pos]})
	case stmtReturn:
		if st.value == nil {
			b.Terminate(&ir.Return{})
			return
		}
		b.Terminate(&ir.Return{Value: lw.expr(st.value)})
	}
}

// expr emits r into the current block. Shared nodes are evaluated once per
// statement.
func (lw *lowering) expr(r *Rvalue) ir.Value {
	if v, ok := lw.memo[r]; ok {
		return v
	}
	var v ir.Value
	switch r.kind {
	case exprConst:
		v = ir.NewConst(r.typ.lowered, r.val)
	case exprParam:
		v = lw.params[r.param.index]
	case exprLocal:
		v = lw.locals[r.local.index]
	case exprBinary:
		v = lw.b.BinOp(binaryOps[r.op].op, lw.expr(r.x), lw.expr(r.y))
	case exprComparison:
		v = lw.b.BinOp(comparisonOps[r.op].op, lw.expr(r.x), lw.expr(r.y))
	case exprUnary:
		x := lw.expr(r.x)
		switch UnaryOp(r.op) {
		case Negate:
			v = lw.b.UnOp(ir.OpNeg, x)
		case BitwiseNegate:
			v = lw.b.UnOp(ir.OpNot, x)
		case LogicalNegate:
			v = lw.b.BinOp(ir.OpXor, x, ir.NewConst(ir.Bool, 1))
		}
	}
	lw.memo[r] = v
	return v
}

// blockName keeps identifier characters so dumps stay parseable.
func blockName(name string) string {
	name = strings.Map(func(r rune) rune {
		if r == '_' || r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9' {
			return r
		}
		return '_'
	}, name)
	if name == "" {
		return "label"
	}
	return name
}
