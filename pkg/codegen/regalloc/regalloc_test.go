package regalloc

import (
	"testing"

	"github.com/GriffinCanCode/typthon-jit/pkg/ir"
)

// sumOfSquares builds a loop with several values live across the back edge.
func sumOfSquares() *ir.Function {
	n := &ir.Param{Name: "n", Index: 0, Type: ir.I64}
	sum := &ir.Local{Name: "sum", Index: 0, Type: ir.I64}
	i := &ir.Local{Name: "i", Index: 1, Type: ir.I64}
	fn := &ir.Function{Name: "loop_test", Params: []*ir.Param{n}, Locals: []*ir.Local{sum, i}, ReturnType: ir.I64}

	b := ir.NewBuilder(fn)
	b.Move(sum, ir.NewConst(ir.I64, 0))
	b.Move(i, ir.NewConst(ir.I64, 0))
	loop, body, done := b.NewBlock("loop"), b.NewBlock("body"), b.NewBlock("done")
	b.StartBlock(loop)
	b.Terminate(&ir.CondBranch{Cond: b.BinOp(ir.OpGe, i, n), True: done, False: body})
	b.Append(body)
	b.SetBlock(body)
	sq := b.BinOp(ir.OpMul, i, i)
	b.Move(sum, b.BinOp(ir.OpAdd, sum, sq))
	b.Move(i, b.BinOp(ir.OpAdd, i, ir.NewConst(ir.I64, 1)))
	b.Terminate(&ir.Branch{Target: loop})
	b.Append(done)
	b.SetBlock(done)
	b.Terminate(&ir.Return{Value: sum})
	return b.Finish()
}

func overlaps(a, b *Interval) bool {
	return a.Start <= b.End && b.Start <= a.End
}

func checkNoConflicts(t *testing.T, alloc *Allocation) {
	t.Helper()
	for i, x := range alloc.Intervals {
		for _, y := range alloc.Intervals[i+1:] {
			if !overlaps(x, y) {
				continue
			}
			if x.Reg >= 0 && x.Reg == y.Reg {
				t.Errorf("%s and %s overlap and share register %d",
					ir.FormatValue(x.Value), ir.FormatValue(y.Value), x.Reg)
			}
			if x.Slot >= 0 && x.Slot == y.Slot {
				t.Errorf("%s and %s overlap and share slot %d",
					ir.FormatValue(x.Value), ir.FormatValue(y.Value), x.Slot)
			}
		}
		if (x.Reg >= 0) == (x.Slot >= 0) {
			t.Errorf("%s must have exactly one location (reg=%d slot=%d)", ir.FormatValue(x.Value), x.Reg, x.Slot)
		}
	}
}

func TestAllocateNoConflicts(t *testing.T) {
	tests := []struct {
		name string
		regs []int
	}{
		{"no registers", nil},
		{"one register", []int{1}},
		{"two registers", []int{1, 2}},
		{"plenty", []int{1, 2, 3, 4, 5, 6, 7, 8}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			alloc := Allocate(sumOfSquares(), &Config{Available: tt.regs})
			checkNoConflicts(t, alloc)
		})
	}
}

func TestAllocateAllSpillWithoutRegisters(t *testing.T) {
	fn := sumOfSquares()
	alloc := Allocate(fn, &Config{})
	for v, loc := range alloc.Locs {
		if loc.InReg() {
			t.Errorf("%s got a register with none available", ir.FormatValue(v))
		}
	}
	if len(alloc.UsedRegs) != 0 {
		t.Errorf("expected no used registers, got %v", alloc.UsedRegs)
	}
	// Short-lived temps share slots, so the frame is smaller than the value count
	if alloc.NumSlots >= len(alloc.Locs) {
		t.Errorf("expected slot reuse: %d slots for %d values", alloc.NumSlots, len(alloc.Locs))
	}
}

func TestAllocatePlentyOfRegisters(t *testing.T) {
	alloc := Allocate(sumOfSquares(), &Config{Available: []int{1, 2, 3, 4, 5, 6, 7, 8}})
	if alloc.NumSlots != 0 {
		t.Errorf("expected no spills, got %d slots", alloc.NumSlots)
	}
}

func TestLoopCarriedIntervalCoversLoop(t *testing.T) {
	fn := sumOfSquares()
	alloc := Allocate(fn, &Config{Available: []int{1, 2, 3, 4}})
	var sumIv, sqIv *Interval
	for _, iv := range alloc.Intervals {
		switch v := iv.Value.(type) {
		case *ir.Local:
			if v.Name == "sum" {
				sumIv = iv
			}
		case *ir.Temp:
			if v.ID == 1 {
				sqIv = iv
			}
		}
	}
	if sumIv == nil || sqIv == nil {
		t.Fatal("missing intervals")
	}
	if !overlaps(sumIv, sqIv) {
		t.Errorf("sum must stay live across the loop body")
	}
}

func TestAllocateDeterministic(t *testing.T) {
	first := Allocate(sumOfSquares(), &Config{Available: []int{1, 2}})
	for run := 0; run < 10; run++ {
		again := Allocate(sumOfSquares(), &Config{Available: []int{1, 2}})
		if len(again.Intervals) != len(first.Intervals) {
			t.Fatal("interval count changed")
		}
		for i := range first.Intervals {
			x, y := first.Intervals[i], again.Intervals[i]
			if x.Reg != y.Reg || x.Slot != y.Slot || x.Start != y.Start || x.End != y.End {
				t.Fatalf("allocation differs between runs at interval %d", i)
			}
		}
	}
}
