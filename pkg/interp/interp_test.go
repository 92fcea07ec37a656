package interp

import (
	"context"
	"math"
	"runtime"
	"testing"
	"time"

	"github.com/GriffinCanCode/typthon-jit/pkg/codegen"
	_ "github.com/GriffinCanCode/typthon-jit/pkg/codegen/amd64"
	_ "github.com/GriffinCanCode/typthon-jit/pkg/codegen/arm64"
	_ "github.com/GriffinCanCode/typthon-jit/pkg/codegen/riscv64"
	"github.com/GriffinCanCode/typthon-jit/pkg/ir"
	"github.com/GriffinCanCode/typthon-jit/pkg/linker"
)

// sumSquares returns sum of i*i for i in [0, n)
func sumSquares() *ir.Function {
	n := &ir.Param{Name: "n", Index: 0, Type: ir.I64}
	sum := &ir.Local{Name: "sum", Index: 0, Type: ir.I64}
	i := &ir.Local{Name: "i", Index: 1, Type: ir.I64}
	fn := &ir.Function{Name: "loop_test", Exported: true, Params: []*ir.Param{n}, Locals: []*ir.Local{sum, i}, ReturnType: ir.I64}

	b := ir.NewBuilder(fn)
	b.Move(sum, ir.NewConst(ir.I64, 0))
	b.Move(i, ir.NewConst(ir.I64, 0))
	loop, body, done := b.NewBlock("loop"), b.NewBlock("body"), b.NewBlock("done")
	b.StartBlock(loop)
	b.Terminate(&ir.CondBranch{Cond: b.BinOp(ir.OpGe, i, n), True: done, False: body})

	b.Append(body)
	b.SetBlock(body)
	b.Move(sum, b.BinOp(ir.OpAdd, sum, b.BinOp(ir.OpMul, i, i)))
	b.Move(i, b.BinOp(ir.OpAdd, i, ir.NewConst(ir.I64, 1)))
	b.Terminate(&ir.Branch{Target: loop})

	b.Append(done)
	b.SetBlock(done)
	b.Terminate(&ir.Return{Value: sum})
	return b.Finish()
}

func spin() *ir.Function {
	fn := &ir.Function{Name: "spin", ReturnType: ir.Void}
	b := ir.NewBuilder(fn)
	loop := b.NewBlock("loop")
	b.StartBlock(loop)
	b.Terminate(&ir.Branch{Target: loop})
	return b.Finish()
}

func TestCall(t *testing.T) {
	p := New(&ir.Program{Functions: []*ir.Function{sumSquares()}})
	tests := []struct {
		n, want int64
	}{
		{0, 0},
		{1, 0},
		{3, 5},
		{10, 285},
		{-4, 0},
	}
	for _, tt := range tests {
		got, err := p.Call("loop_test", tt.n)
		if err != nil {
			t.Fatal(err)
		}
		if got != tt.want {
			t.Errorf("loop_test(%d) = %d, want %d", tt.n, got, tt.want)
		}
	}
}

func TestCallErrors(t *testing.T) {
	p := New(&ir.Program{Functions: []*ir.Function{sumSquares()}})
	if _, err := p.Call("missing"); err == nil {
		t.Error("expected not-found error")
	}
	if _, err := p.Call("loop_test"); err == nil {
		t.Error("expected arity error")
	}
}

func TestCancellation(t *testing.T) {
	p := New(&ir.Program{Functions: []*ir.Function{spin()}})
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := p.CallContext(ctx, "spin"); err != context.DeadlineExceeded {
		t.Errorf("expected deadline exceeded, got %v", err)
	}
}

func binary(op ir.Op, t ir.Type) *ir.Function {
	a := &ir.Param{Name: "a", Index: 0, Type: t}
	b := &ir.Param{Name: "b", Index: 1, Type: t}
	ret := t
	if op.IsComparison() {
		ret = ir.Bool
	}
	fn := &ir.Function{Name: "f", Exported: true, Params: []*ir.Param{a, b}, ReturnType: ret}
	bld := ir.NewBuilder(fn)
	bld.Terminate(&ir.Return{Value: bld.BinOp(op, a, b)})
	return bld.Finish()
}

func unary(op ir.Op, t ir.Type) *ir.Function {
	x := &ir.Param{Name: "x", Index: 0, Type: t}
	fn := &ir.Function{Name: "f", Exported: true, Params: []*ir.Param{x}, ReturnType: t}
	bld := ir.NewBuilder(fn)
	bld.Terminate(&ir.Return{Value: bld.UnOp(op, x)})
	return bld.Finish()
}

// native compiles fn for the running machine, or skips the test.
func native(t *testing.T, fn *ir.Function, level int) (uintptr, func()) {
	t.Helper()
	backend, err := codegen.LookupBackend(runtime.GOARCH)
	if err != nil || !linker.NativeSupported() {
		t.Skipf("no native backend on %s/%s", runtime.GOOS, runtime.GOARCH)
	}
	obj, err := backend.Generate(fn, codegen.Options{OptLevel: level})
	if err != nil {
		t.Fatal(err)
	}
	l := linker.New(runtime.GOARCH)
	if err := l.AddObject(obj); err != nil {
		t.Fatal(err)
	}
	img, err := l.Link()
	if err != nil {
		t.Fatal(err)
	}
	entry, err := img.Addr(fn.Name)
	if err != nil {
		t.Fatal(err)
	}
	return entry, func() { _ = img.Close() }
}

var edgeValues = []int64{0, 1, -1, 2, 3, 7, 8, 63, 64, 100, -128, 127, 255, 1 << 31, math.MinInt32, math.MaxInt64, math.MinInt64}

var types = []ir.Type{
	ir.I64,
	ir.IntType{Width: 32},
	ir.IntType{Width: 8},
	ir.IntType{Width: 16, Unsigned: true},
	ir.IntType{Width: 8, Unsigned: true},
	ir.IntType{Width: 64, Unsigned: true},
}

// TestNativeAgreesWithInterpreter runs every operator on every width
// natively and interpreted over edge-case operands.
func TestNativeAgreesWithInterpreter(t *testing.T) {
	ops := []ir.Op{
		ir.OpAdd, ir.OpSub, ir.OpMul, ir.OpDiv, ir.OpMod, ir.OpAnd, ir.OpOr, ir.OpXor,
		ir.OpShl, ir.OpShr, ir.OpEq, ir.OpNe, ir.OpLt, ir.OpLe, ir.OpGt, ir.OpGe,
	}
	for _, level := range []int{0, 1} {
		for _, typ := range types {
			for _, op := range ops {
				fn := binary(op, typ)
				entry, release := native(t, fn, level)
				for _, x := range edgeValues {
					for _, y := range edgeValues {
						a, b := ir.Canon(typ, x), ir.Canon(typ, y)
						want, err := Run(context.Background(), fn, []int64{a, b})
						if err != nil {
							t.Fatal(err)
						}
						got, err := linker.Call(entry, uint64(a), uint64(b))
						if err != nil {
							t.Fatal(err)
						}
						if int64(got) != want {
							t.Errorf("O%d %s %s(%d, %d): native %d, interpreter %d", level, typ, op, a, b, int64(got), want)
						}
					}
				}
				release()
			}
		}
	}
}

func TestNativeUnaryAgreesWithInterpreter(t *testing.T) {
	for _, typ := range types {
		for _, op := range []ir.Op{ir.OpNeg, ir.OpNot} {
			fn := unary(op, typ)
			entry, release := native(t, fn, 1)
			for _, x := range edgeValues {
				a := ir.Canon(typ, x)
				want, _ := Run(context.Background(), fn, []int64{a})
				got, err := linker.Call(entry, uint64(a))
				if err != nil {
					t.Fatal(err)
				}
				if int64(got) != want {
					t.Errorf("%s %s(%d): native %d, interpreter %d", typ, op, a, int64(got), want)
				}
			}
			release()
		}
	}
}

func TestNativeLoop(t *testing.T) {
	for level := 0; level <= 3; level++ {
		entry, release := native(t, sumSquares(), level)
		for _, n := range []int64{0, 1, 10, 100} {
			want, _ := Run(context.Background(), sumSquares(), []int64{n})
			got, _ := linker.Call(entry, uint64(n))
			if int64(got) != want {
				t.Errorf("O%d loop_test(%d): native %d, interpreter %d", level, n, int64(got), want)
			}
		}
		release()
	}
}
