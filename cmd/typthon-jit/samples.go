package main

import (
	"github.com/GriffinCanCode/typthon-jit/pkg/jit"
)

// samples maps a function name to the code that builds it.
var samples = map[string]func(*jit.Context) error{
	"square":    buildSquare,
	"loop_test": buildLoop,
	"clamp":     buildClamp,
}

// builder threads the first error through a sequence of jit calls.
type builder struct {
	ctx *jit.Context
	err error
}

func (b *builder) param(t *jit.Type, name string) *jit.Param {
	if b.err != nil {
		return nil
	}
	var p *jit.Param
	p, b.err = b.ctx.NewParam(t, name)
	return p
}

func (b *builder) local(fn *jit.Function, t *jit.Type, name string) *jit.Local {
	if b.err != nil {
		return nil
	}
	var l *jit.Local
	l, b.err = fn.NewLocal(t, name)
	return l
}

func (b *builder) label(l *jit.Label, err error) *jit.Label {
	if b.err == nil {
		b.err = err
	}
	return l
}

func (b *builder) value(r *jit.Rvalue, err error) *jit.Rvalue {
	if b.err == nil {
		b.err = err
	}
	return r
}

func (b *builder) do(err error) {
	if b.err == nil {
		b.err = err
	}
}

func buildSquare(ctx *jit.Context) error {
	b := &builder{ctx: ctx}
	i := ctx.Type(jit.Int)
	x := b.param(i, "x")
	if b.err != nil {
		return b.err
	}
	fn, err := ctx.NewFunction(jit.Exported, i, "square", x)
	if err != nil {
		return err
	}
	b.do(fn.AddReturn(b.value(ctx.NewBinaryOp(jit.Mult, i, x, x))))
	return b.err
}

func buildLoop(ctx *jit.Context) error {
	b := &builder{ctx: ctx}
	i64 := ctx.Type(jit.Int)
	n := b.param(i64, "n")
	if b.err != nil {
		return b.err
	}
	fn, err := ctx.NewFunction(jit.Exported, i64, "loop_test", n)
	if err != nil {
		return err
	}
	sum := b.local(fn, i64, "sum")
	i := b.local(fn, i64, "i")
	if b.err != nil {
		return b.err
	}
	zero := b.value(ctx.Zero(i64))
	one := b.value(ctx.One(i64))

	b.do(fn.AddAssignment(sum, zero))
	b.do(fn.AddAssignment(i, zero))
	after := b.label(fn.NewForwardLabel("after"))
	loop := b.label(fn.AddLabel("loop"))
	b.do(fn.AddConditional(b.value(ctx.NewComparison(jit.GE, i, n)), after))
	b.do(fn.AddAssignmentOp(sum, jit.Plus, b.value(ctx.NewBinaryOp(jit.Mult, i64, i, i))))
	b.do(fn.AddAssignmentOp(i, jit.Plus, one))
	b.do(fn.AddJump(loop))
	b.do(fn.PlaceForwardLabel(after))
	b.do(fn.AddReturn(sum))
	return b.err
}

// buildClamp defines int32 clamp(int32 x, int32 hi) with two early exits.
func buildClamp(ctx *jit.Context) error {
	b := &builder{ctx: ctx}
	i32 := ctx.Type(jit.Int32)
	x := b.param(i32, "x")
	hi := b.param(i32, "hi")
	if b.err != nil {
		return b.err
	}
	fn, err := ctx.NewFunction(jit.Exported, i32, "clamp", x, hi)
	if err != nil {
		return err
	}
	zero := b.value(ctx.Zero(i32))
	low := b.label(fn.NewForwardLabel("low"))
	high := b.label(fn.NewForwardLabel("high"))
	b.do(fn.AddConditional(b.value(ctx.NewComparison(jit.LT, x, zero)), low))
	b.do(fn.AddConditional(b.value(ctx.NewComparison(jit.GT, x, hi)), high))
	b.do(fn.AddReturn(x))
	b.do(fn.PlaceForwardLabel(low))
	b.do(fn.AddReturn(zero))
	b.do(fn.PlaceForwardLabel(high))
	b.do(fn.AddReturn(hi))
	return b.err
}
