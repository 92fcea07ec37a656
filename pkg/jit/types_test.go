package jit_test

import (
	"math"
	"testing"

	"github.com/GriffinCanCode/typthon-jit/pkg/jit"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTypeInterning(t *testing.T) {
	ctx := jit.NewContext()
	for k := jit.Void; k < jit.Pointer; k++ {
		assert.Same(t, ctx.Type(k), ctx.Type(k), "%s", k)
	}
	assert.NotSame(t, ctx.Type(jit.Int), ctx.Type(jit.Int64))

	p := ctx.PointerTo(ctx.Type(jit.Int))
	assert.Same(t, p, ctx.PointerTo(ctx.Type(jit.Int)))
	assert.NotSame(t, p, ctx.PointerTo(ctx.Type(jit.Int64)))
	pp := ctx.PointerTo(p)
	assert.Same(t, pp, ctx.PointerTo(p))
	assert.Same(t, p, pp.Pointee())
	assert.True(t, pp.IsPointer())

	other := jit.NewContext()
	assert.NotSame(t, ctx.Type(jit.Int), other.Type(jit.Int))

	assert.Panics(t, func() { ctx.Type(jit.Pointer) })
	assert.Panics(t, func() { ctx.PointerTo(other.Type(jit.Int)) })
}

func TestTypeQueries(t *testing.T) {
	ctx := jit.NewContext()
	tests := []struct {
		kind    jit.Kind
		bits    int
		signed  bool
		integer bool
		str     string
	}{
		{jit.Void, 0, false, false, "void"},
		{jit.Bool, 1, false, false, "bool"},
		{jit.Int, 64, true, true, "long"},
		{jit.Int8, 8, true, true, "int8_t"},
		{jit.Int32, 32, true, true, "int32_t"},
		{jit.Uint16, 16, false, true, "uint16_t"},
		{jit.Uint64, 64, false, true, "uint64_t"},
	}
	for _, tt := range tests {
		typ := ctx.Type(tt.kind)
		assert.Equal(t, tt.kind, typ.Kind())
		assert.Equal(t, tt.bits, typ.Bits(), "%s", tt.kind)
		assert.Equal(t, tt.signed, typ.Signed(), "%s", tt.kind)
		assert.Equal(t, tt.integer, typ.IsInteger(), "%s", tt.kind)
		assert.Equal(t, tt.str, typ.String())
	}
	assert.Equal(t, "uint8_t * *", ctx.PointerTo(ctx.PointerTo(ctx.Type(jit.Uint8))).String())
}

func TestNewConstant(t *testing.T) {
	tests := []struct {
		kind  jit.Kind
		value any
		ok    bool
	}{
		{jit.Int8, 127, true},
		{jit.Int8, -128, true},
		{jit.Int8, 128, false},
		{jit.Int8, uint8(200), false},
		{jit.Uint8, 255, true},
		{jit.Uint8, -1, false},
		{jit.Uint32, int64(math.MaxUint32), true},
		{jit.Uint32, int64(math.MaxUint32 + 1), false},
		{jit.Int64, uint64(math.MaxInt64), true},
		{jit.Int64, uint64(1 << 63), false},
		{jit.Uint64, uint64(math.MaxUint64), true},
		{jit.Int, int64(math.MinInt64), true},
		{jit.Bool, true, true},
		{jit.Bool, 1, false},
		{jit.Int, true, false},
		{jit.Int, "7", false},
		{jit.Void, 0, false},
	}
	for _, tt := range tests {
		ctx := jit.NewContext()
		c, err := ctx.NewConstant(ctx.Type(tt.kind), tt.value)
		if tt.ok {
			require.NoError(t, err, "%s %v", tt.kind, tt.value)
			assert.Same(t, ctx.Type(tt.kind), c.Type())
		} else {
			assert.ErrorIs(t, err, jit.ErrNotRepresentable, "%s %v", tt.kind, tt.value)
		}
	}
}

func TestPointerConstants(t *testing.T) {
	ctx := jit.NewContext()
	pt := ctx.PointerTo(ctx.Type(jit.Int))
	_, err := ctx.Null(pt)
	assert.NoError(t, err)
	_, err = ctx.Zero(pt)
	assert.NoError(t, err)
	_, err = ctx.One(pt)
	assert.ErrorIs(t, err, jit.ErrNotRepresentable)
	_, err = ctx.NewConstant(pt, 4096)
	assert.ErrorIs(t, err, jit.ErrNotRepresentable)
	_, err = ctx.Null(ctx.Type(jit.Int))
	assert.ErrorIs(t, err, jit.ErrTypeMismatch)
}

func TestExpressionTypeChecks(t *testing.T) {
	ctx := jit.NewContext()
	i := ctx.Type(jit.Int)
	i32 := ctx.Type(jit.Int32)
	b := ctx.Type(jit.Bool)
	pt := ctx.PointerTo(i)
	one, _ := ctx.One(i)
	one32, _ := ctx.One(i32)
	yes, _ := ctx.One(b)
	null, _ := ctx.Null(pt)

	mismatch := func(_ *jit.Rvalue, err error) { assert.ErrorIs(t, err, jit.ErrTypeMismatch) }
	mismatch(ctx.NewBinaryOp(jit.Plus, i, one, one32))
	mismatch(ctx.NewBinaryOp(jit.Plus, i32, one, one))
	mismatch(ctx.NewBinaryOp(jit.Plus, b, yes, yes))
	mismatch(ctx.NewBinaryOp(jit.LogicalAnd, i, one, one))
	mismatch(ctx.NewBinaryOp(jit.Plus, pt, null, null))
	mismatch(ctx.NewComparison(jit.LT, one, one32))
	mismatch(ctx.NewComparison(jit.LT, yes, yes))
	mismatch(ctx.NewComparison(jit.GE, null, null))
	mismatch(ctx.NewUnaryOp(jit.LogicalNegate, i, one))
	mismatch(ctx.NewUnaryOp(jit.Negate, b, yes))
	mismatch(ctx.NewUnaryOp(jit.Negate, i32, one))
	mismatch(ctx.NewBinaryOp(jit.Plus, i, one, nil))

	eq, err := ctx.NewComparison(jit.EQ, null, null)
	require.NoError(t, err)
	assert.Same(t, b, eq.Type())
	sum, err := ctx.NewBinaryOp(jit.Plus, i, one, one)
	require.NoError(t, err)
	assert.Same(t, i, sum.Type())
	assert.Greater(t, sum.ID(), one.ID())
	assert.Equal(t, "(long)1 + (long)1", sum.String())
}

func TestStatementTypeChecks(t *testing.T) {
	ctx := jit.NewContext()
	i := ctx.Type(jit.Int)
	u8 := ctx.Type(jit.Uint8)
	fn, err := ctx.NewFunction(jit.Exported, i, "f")
	require.NoError(t, err)
	x, err := fn.NewLocal(i, "x")
	require.NoError(t, err)
	small, err := ctx.One(u8)
	require.NoError(t, err)
	l, err := fn.NewForwardLabel("l")
	require.NoError(t, err)

	assert.ErrorIs(t, fn.AddAssignment(x, small), jit.ErrTypeMismatch)
	assert.ErrorIs(t, fn.AddAssignmentOp(x, jit.Plus, small), jit.ErrTypeMismatch)
	assert.ErrorIs(t, fn.AddConditional(x, l), jit.ErrTypeMismatch)
	assert.ErrorIs(t, fn.AddReturn(small), jit.ErrTypeMismatch)
	assert.ErrorIs(t, fn.AddReturnVoid(), jit.ErrTypeMismatch)
	_, err = fn.NewLocal(ctx.Type(jit.Void), "v")
	assert.ErrorIs(t, err, jit.ErrTypeMismatch)
	_, err = ctx.NewParam(ctx.Type(jit.Void), "v")
	assert.ErrorIs(t, err, jit.ErrTypeMismatch)
	assert.Equal(t, jit.StateBuilding, ctx.State(), "type errors are not fatal")
}
