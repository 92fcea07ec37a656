package ir

import (
	"strings"
	"testing"
)

// buildLoop builds: sum = 0; i = 0; loop: if i >= n goto done; sum += i*i; i += 1; goto loop; done: return sum
func buildLoop() *Function {
	n := &Param{Name: "n", Index: 0, Type: I64}
	sum := &Local{Name: "sum", Index: 0, Type: I64}
	i := &Local{Name: "i", Index: 1, Type: I64}
	fn := &Function{Name: "loop_test", Exported: true, Params: []*Param{n}, Locals: []*Local{sum, i}, ReturnType: I64}

	b := NewBuilder(fn)
	b.Move(sum, NewConst(I64, 0))
	b.Move(i, NewConst(I64, 0))

	loop := b.NewBlock("loop")
	body := b.NewBlock("body")
	done := b.NewBlock("done")
	b.StartBlock(loop)
	cond := b.BinOp(OpGe, i, n)
	b.Terminate(&CondBranch{Cond: cond, True: done, False: body})

	b.Append(body)
	b.SetBlock(body)
	sq := b.BinOp(OpMul, i, i)
	b.Move(sum, b.BinOp(OpAdd, sum, sq))
	b.Move(i, b.BinOp(OpAdd, i, NewConst(I64, 1)))
	b.Terminate(&Branch{Target: loop})

	b.Append(done)
	b.SetBlock(done)
	b.Terminate(&Return{Value: sum})
	return b.Finish()
}

func TestComputeCFG(t *testing.T) {
	fn := buildLoop()
	if len(fn.Blocks) != 4 {
		t.Fatalf("expected 4 blocks, got %d", len(fn.Blocks))
	}
	loop := fn.Blocks[1]
	if len(loop.Preds) != 2 {
		t.Errorf("loop header should have 2 preds, got %d", len(loop.Preds))
	}
	if len(loop.Succs) != 2 {
		t.Errorf("loop header should have 2 succs, got %d", len(loop.Succs))
	}
	if got := len(fn.Reachable()); got != 4 {
		t.Errorf("expected 4 reachable blocks, got %d", got)
	}
}

func TestEmitAfterTerminatorDropped(t *testing.T) {
	fn := &Function{Name: "f", ReturnType: I64}
	b := NewBuilder(fn)
	b.Terminate(&Return{Value: NewConst(I64, 1)})
	b.Move(&Local{Name: "x", Type: I64}, NewConst(I64, 2))
	b.Terminate(&Return{Value: NewConst(I64, 3)})
	fn = b.Finish()

	entry := fn.Entry()
	if len(entry.Insts) != 0 {
		t.Errorf("expected no instructions after return, got %d", len(entry.Insts))
	}
	if ret := entry.Term.(*Return); ret.Value.(*Const).Val != 1 {
		t.Errorf("first terminator should win")
	}
}

func TestLiveness(t *testing.T) {
	fn := buildLoop()
	lv := ComputeLiveness(fn)
	loop := fn.Blocks[1]
	sum, i, n := fn.Locals[0], fn.Locals[1], fn.Params[0]

	for _, v := range []Value{sum, i, n} {
		if !lv.In[loop][v] {
			t.Errorf("%s should be live into loop header", FormatValue(v))
		}
	}
	entry := fn.Entry()
	if lv.In[entry][sum] {
		t.Errorf("sum is defined in entry and must not be live-in")
	}
	done := fn.Blocks[3]
	if len(lv.Out[done]) != 0 {
		t.Errorf("nothing is live out of the return block")
	}
}

func TestPrint(t *testing.T) {
	fn := buildLoop()
	text := (&Program{Functions: []*Function{fn}}).String()
	for _, want := range []string{
		"exported func loop_test(n i64) i64 {",
		"$sum.0 = 0",
		"br t0, done_3, body_2",
		"ret $sum.0",
	} {
		if !strings.Contains(text, want) {
			t.Errorf("missing %q in:\n%s", want, text)
		}
	}
}

func TestLLVMText(t *testing.T) {
	fn := buildLoop()
	text := LLVMText(&Program{Functions: []*Function{fn}})
	for _, want := range []string{
		"define i64 @loop_test(i64 %n)",
		"alloca i64",
		"icmp sge i64",
		"br i1",
		"ret i64",
	} {
		if !strings.Contains(text, want) {
			t.Errorf("missing %q in:\n%s", want, text)
		}
	}
}
