package optimizer

import (
	"testing"

	"github.com/GriffinCanCode/typthon-jit/pkg/ir"
)

func newFunc(params ...*ir.Param) (*ir.Function, *ir.Builder) {
	fn := &ir.Function{Name: "f", Exported: true, Params: params, ReturnType: ir.I64}
	return fn, ir.NewBuilder(fn)
}

func countInsts(fn *ir.Function) int {
	n := 0
	for _, b := range fn.Blocks {
		n += len(b.Insts)
	}
	return n
}

func TestConstantFold(t *testing.T) {
	fn, b := newFunc()
	sum := b.BinOp(ir.OpAdd, ir.NewConst(ir.I64, 2), ir.NewConst(ir.I64, 3))
	prod := b.BinOp(ir.OpMul, sum, ir.NewConst(ir.I64, 4))
	b.Terminate(&ir.Return{Value: prod})
	b.Finish()

	if changes := ConstantFold(fn); changes == 0 {
		t.Fatal("expected constant folding to make changes")
	}
	ret := fn.Entry().Term.(*ir.Return)
	c, ok := ret.Value.(*ir.Const)
	if !ok || c.Val != 20 {
		t.Fatalf("expected return of constant 20, got %s", ir.FormatValue(ret.Value))
	}

	DeadCodeElimination(fn)
	if n := countInsts(fn); n != 0 {
		t.Errorf("expected all instructions removed, %d left", n)
	}
}

func TestConstantFoldNonTrapping(t *testing.T) {
	fn, b := newFunc()
	q := b.BinOp(ir.OpDiv, ir.NewConst(ir.I64, 7), ir.NewConst(ir.I64, 0))
	b.Terminate(&ir.Return{Value: q})
	b.Finish()

	ConstantFold(fn)
	if c := fn.Entry().Term.(*ir.Return).Value.(*ir.Const); c.Val != 0 {
		t.Errorf("7/0 should fold to 0, got %d", c.Val)
	}
}

func TestSimplifyCFGConstantBranch(t *testing.T) {
	fn, b := newFunc()
	then := b.NewBlock("then")
	els := b.NewBlock("else")
	cond := b.BinOp(ir.OpLt, ir.NewConst(ir.I64, 1), ir.NewConst(ir.I64, 2))
	b.Terminate(&ir.CondBranch{Cond: cond, True: then, False: els})
	b.Append(then)
	b.SetBlock(then)
	b.Terminate(&ir.Return{Value: ir.NewConst(ir.I64, 10)})
	b.Append(els)
	b.SetBlock(els)
	b.Terminate(&ir.Return{Value: ir.NewConst(ir.I64, 20)})
	b.Finish()

	Optimize(&ir.Program{Functions: []*ir.Function{fn}}, 1)

	if len(fn.Blocks) != 1 {
		t.Fatalf("expected a single block, got %d:\n%s", len(fn.Blocks), fn)
	}
	ret, ok := fn.Entry().Term.(*ir.Return)
	if !ok || ret.Value.(*ir.Const).Val != 10 {
		t.Errorf("expected return 10, got:\n%s", fn)
	}
}

func TestSimplifyCFGKeepsLoops(t *testing.T) {
	n := &ir.Param{Name: "n", Type: ir.I64}
	i := &ir.Local{Name: "i", Type: ir.I64}
	fn, b := newFunc(n)
	fn.Locals = []*ir.Local{i}
	b.Move(i, ir.NewConst(ir.I64, 0))
	loop := b.NewBlock("loop")
	body := b.NewBlock("body")
	done := b.NewBlock("done")
	b.StartBlock(loop)
	b.Terminate(&ir.CondBranch{Cond: b.BinOp(ir.OpGe, i, n), True: done, False: body})
	b.Append(body)
	b.SetBlock(body)
	b.Move(i, b.BinOp(ir.OpAdd, i, ir.NewConst(ir.I64, 1)))
	b.Terminate(&ir.Branch{Target: loop})
	b.Append(done)
	b.SetBlock(done)
	b.Terminate(&ir.Return{Value: i})
	b.Finish()

	Optimize(&ir.Program{Functions: []*ir.Function{fn}}, 3)

	hasBackEdge := false
	for _, bl := range fn.Blocks {
		for _, s := range bl.Succs {
			for j, other := range fn.Blocks {
				if other == s && j <= indexOf(fn, bl) {
					hasBackEdge = true
				}
			}
		}
	}
	if !hasBackEdge {
		t.Errorf("loop back edge lost:\n%s", fn)
	}
}

func indexOf(fn *ir.Function, b *ir.Block) int {
	for i, x := range fn.Blocks {
		if x == b {
			return i
		}
	}
	return -1
}

func TestDeadCodeEliminationUnreadLocal(t *testing.T) {
	x := &ir.Local{Name: "x", Type: ir.I64}
	fn, b := newFunc()
	fn.Locals = []*ir.Local{x}
	b.Move(x, ir.NewConst(ir.I64, 5))
	b.Terminate(&ir.Return{Value: ir.NewConst(ir.I64, 1)})
	b.Finish()

	if changes := DeadCodeElimination(fn); changes != 1 {
		t.Errorf("expected 1 removal, got %d", changes)
	}
}

func TestPeephole(t *testing.T) {
	x := &ir.Param{Name: "x", Type: ir.I64}
	tests := []struct {
		name    string
		op      ir.Op
		l, r    ir.Value
		wantSrc ir.Value // nil means a constant
		wantVal int64
	}{
		{"add zero", ir.OpAdd, x, ir.NewConst(ir.I64, 0), x, 0},
		{"zero add", ir.OpAdd, ir.NewConst(ir.I64, 0), x, x, 0},
		{"mul one", ir.OpMul, x, ir.NewConst(ir.I64, 1), x, 0},
		{"mul zero", ir.OpMul, x, ir.NewConst(ir.I64, 0), nil, 0},
		{"sub self", ir.OpSub, x, x, nil, 0},
		{"eq self", ir.OpEq, x, x, nil, 1},
		{"mod one", ir.OpMod, x, ir.NewConst(ir.I64, 1), nil, 0},
		{"and all ones", ir.OpAnd, x, ir.NewConst(ir.I64, -1), x, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dest := &ir.Temp{ID: 0, Type: ir.I64}
			if tt.op.IsComparison() {
				dest.Type = ir.Bool
			}
			got := trySingleInstPattern(&ir.BinOp{Dest: dest, Op: tt.op, L: tt.l, R: tt.r})
			mv, ok := got.(*ir.Move)
			if !ok {
				t.Fatalf("expected a move, got %#v", got)
			}
			if tt.wantSrc != nil {
				if mv.Src != tt.wantSrc {
					t.Errorf("expected move from %s, got %s", ir.FormatValue(tt.wantSrc), ir.FormatValue(mv.Src))
				}
				return
			}
			c, ok := mv.Src.(*ir.Const)
			if !ok || c.Val != tt.wantVal {
				t.Errorf("expected constant %d, got %s", tt.wantVal, ir.FormatValue(mv.Src))
			}
		})
	}
}

func TestStrengthReduce(t *testing.T) {
	u32 := ir.IntType{Width: 32, Unsigned: true}
	x := &ir.Param{Name: "x", Type: ir.I64}
	y := &ir.Param{Name: "y", Type: u32}
	tests := []struct {
		name   string
		binop  *ir.BinOp
		wantOp ir.Op
		wantR  int64
	}{
		{"mul by 8", &ir.BinOp{Dest: &ir.Temp{Type: ir.I64}, Op: ir.OpMul, L: x, R: ir.NewConst(ir.I64, 8)}, ir.OpShl, 3},
		{"8 mul", &ir.BinOp{Dest: &ir.Temp{Type: ir.I64}, Op: ir.OpMul, L: ir.NewConst(ir.I64, 8), R: x}, ir.OpShl, 3},
		{"unsigned div", &ir.BinOp{Dest: &ir.Temp{Type: u32}, Op: ir.OpDiv, L: y, R: ir.NewConst(u32, 16)}, ir.OpShr, 4},
		{"unsigned mod", &ir.BinOp{Dest: &ir.Temp{Type: u32}, Op: ir.OpMod, L: y, R: ir.NewConst(u32, 16)}, ir.OpAnd, 15},
		{"signed div untouched", &ir.BinOp{Dest: &ir.Temp{Type: ir.I64}, Op: ir.OpDiv, L: x, R: ir.NewConst(ir.I64, 4)}, ir.OpDiv, 4},
		{"mul by 3 untouched", &ir.BinOp{Dest: &ir.Temp{Type: ir.I64}, Op: ir.OpMul, L: x, R: ir.NewConst(ir.I64, 3)}, ir.OpMul, 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reduceBinOp(tt.binop)
			if tt.binop.Op != tt.wantOp {
				t.Errorf("op = %s, want %s", tt.binop.Op, tt.wantOp)
			}
			if c := tt.binop.R.(*ir.Const); c.Val != tt.wantR {
				t.Errorf("rhs = %d, want %d", c.Val, tt.wantR)
			}
		})
	}
}

func TestOptimizeDumpHook(t *testing.T) {
	fn, b := newFunc()
	b.Terminate(&ir.Return{Value: ir.NewConst(ir.I64, 1)})
	b.Finish()

	var stages []string
	OptimizeWithDump(&ir.Program{Functions: []*ir.Function{fn}}, 2, func(stage string, _ *ir.Program) {
		stages = append(stages, stage)
	})
	if len(stages) != len(Passes(2)) {
		t.Errorf("expected %d dumps, got %v", len(Passes(2)), stages)
	}
	if OptimizeWithDump(&ir.Program{}, 0, func(string, *ir.Program) { t.Error("level 0 must not run passes") }) == nil {
		t.Error("expected program back")
	}
}

func TestBlockLayout(t *testing.T) {
	p := &ir.Param{Name: "p", Index: 0, Type: ir.Bool}
	fn, b := newFunc(p)
	one, two := b.NewBlock("one"), b.NewBlock("two")
	b.Terminate(&ir.CondBranch{Cond: p, True: one, False: two})
	b.Append(one)
	b.SetBlock(one)
	b.Terminate(&ir.Return{Value: ir.NewConst(ir.I64, 1)})
	b.Append(two)
	b.SetBlock(two)
	b.Terminate(&ir.Return{Value: ir.NewConst(ir.I64, 2)})
	b.Finish()

	if changes := BlockLayout(fn); changes != 2 {
		t.Fatalf("expected 2 moved blocks, got %d:\n%s", changes, fn)
	}
	if fn.Blocks[0] != fn.Entry() || fn.Blocks[1] != two || fn.Blocks[2] != one {
		t.Errorf("unexpected order:\n%s", fn)
	}
	if changes := BlockLayout(fn); changes != 0 {
		t.Errorf("layout is not stable: %d changes on second run", changes)
	}
}
