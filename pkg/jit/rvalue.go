package jit

import (
	"github.com/GriffinCanCode/typthon-jit/pkg/ir"
	"github.com/pkg/errors"
)

// Expr is anything usable as an operand: *Rvalue, *Param or *Local.
type Expr interface {
	Type() *Type
	node() *Rvalue
}

type exprKind int

const (
	exprConst exprKind = iota
	exprParam
	exprLocal
	exprBinary
	exprComparison
	exprUnary
)

// Rvalue is an immutable expression node. Nodes may be shared between
// expressions and statements; each use denotes the value, not a copy.
type Rvalue struct {
	id   int
	kind exprKind
	typ  *Type
	ctx  *Context

	val   int64 // canonical constant
	op    int   // BinaryOp, ComparisonOp or UnaryOp
	x, y  *Rvalue
	param *Param
	local *Local
}

func (r *Rvalue) Type() *Type   { return r.typ }
func (r *Rvalue) node() *Rvalue { return r }

// ID is the node's position in its Context's arena.
func (r *Rvalue) ID() int { return r.id }

func (r *Rvalue) String() string { return formatExpr(r) }

// newNode allocates r in the arena.
func (c *Context) newNode(r *Rvalue) *Rvalue {
	r.id = len(c.nodes)
	r.ctx = c
	c.nodes = append(c.nodes, r)
	return r
}

// operand checks that e is a live node of c.
func (c *Context) operand(e Expr) (*Rvalue, error) {
	if e == nil {
		return nil, errors.Wrap(ErrTypeMismatch, "nil operand")
	}
	r := e.node()
	if r == nil || r.ctx != c {
		return nil, errors.Wrap(ErrForeignObject, "operand from another context")
	}
	return r, nil
}

func (c *Context) checkType(t *Type) error {
	if t == nil {
		return errors.Wrap(ErrTypeMismatch, "nil type")
	}
	if t.ctx != c {
		return errors.Wrapf(ErrForeignObject, "type %s", t)
	}
	return nil
}

// NewConstant returns a constant of type t. value may be a bool or any Go
// integer; it must lie in t's domain. Pointer constants must be zero.
func (c *Context) NewConstant(t *Type, value any) (*Rvalue, error) {
	if err := c.mutable(); err != nil {
		return nil, err
	}
	if err := c.checkType(t); err != nil {
		return nil, err
	}
	v, err := canonical(t, value)
	if err != nil {
		return nil, err
	}
	return c.newNode(&Rvalue{kind: exprConst, typ: t, val: v}), nil
}

// NewRvalueFromInt is NewConstant for an int64.
func (c *Context) NewRvalueFromInt(t *Type, v int64) (*Rvalue, error) {
	return c.NewConstant(t, v)
}

// Zero returns 0, false or null in t.
func (c *Context) Zero(t *Type) (*Rvalue, error) {
	if t != nil && t.IsBool() {
		return c.NewConstant(t, false)
	}
	return c.NewConstant(t, 0)
}

// One returns 1 or true in t. Pointer types have no one.
func (c *Context) One(t *Type) (*Rvalue, error) {
	if t != nil && t.IsBool() {
		return c.NewConstant(t, true)
	}
	return c.NewConstant(t, 1)
}

// Null returns the null pointer of pointer type t.
func (c *Context) Null(t *Type) (*Rvalue, error) {
	if t != nil && !t.IsPointer() {
		return nil, errors.Wrapf(ErrTypeMismatch, "null of non-pointer type %s", t)
	}
	return c.NewConstant(t, 0)
}

// NewBinaryOp returns lhs op rhs. Both operands and the result type must be
// identical; arithmetic needs integers, LogicalAnd and LogicalOr need Bool.
func (c *Context) NewBinaryOp(op BinaryOp, t *Type, lhs, rhs Expr) (*Rvalue, error) {
	if err := c.mutable(); err != nil {
		return nil, err
	}
	if !op.valid() {
		return nil, errors.Wrapf(ErrTypeMismatch, "unknown operator %s", op)
	}
	if err := c.checkType(t); err != nil {
		return nil, err
	}
	x, err := c.operand(lhs)
	if err != nil {
		return nil, err
	}
	y, err := c.operand(rhs)
	if err != nil {
		return nil, err
	}
	if x.typ != y.typ || x.typ != t {
		return nil, errors.Wrapf(ErrTypeMismatch, "%s %s %s yielding %s", x.typ, op, y.typ, t)
	}
	if op.logical() != t.IsBool() || (!op.logical() && !t.IsInteger()) {
		return nil, errors.Wrapf(ErrTypeMismatch, "operator %s on %s", op, t)
	}
	return c.newNode(&Rvalue{kind: exprBinary, typ: t, op: int(op), x: x, y: y}), nil
}

// NewComparison returns lhs op rhs as a Bool. Bools and pointers support
// only EQ and NE.
func (c *Context) NewComparison(op ComparisonOp, lhs, rhs Expr) (*Rvalue, error) {
	if err := c.mutable(); err != nil {
		return nil, err
	}
	if !op.valid() {
		return nil, errors.Wrapf(ErrTypeMismatch, "unknown comparison %s", op)
	}
	x, err := c.operand(lhs)
	if err != nil {
		return nil, err
	}
	y, err := c.operand(rhs)
	if err != nil {
		return nil, err
	}
	if x.typ != y.typ {
		return nil, errors.Wrapf(ErrTypeMismatch, "%s %s %s", x.typ, op, y.typ)
	}
	if x.typ.IsVoid() || (!x.typ.IsInteger() && op != EQ && op != NE) {
		return nil, errors.Wrapf(ErrTypeMismatch, "comparison %s on %s", op, x.typ)
	}
	return c.newNode(&Rvalue{kind: exprComparison, typ: c.Type(Bool), op: int(op), x: x, y: y}), nil
}

// NewUnaryOp returns op x. Negate and BitwiseNegate need an integer type,
// LogicalNegate needs Bool.
func (c *Context) NewUnaryOp(op UnaryOp, t *Type, x Expr) (*Rvalue, error) {
	if err := c.mutable(); err != nil {
		return nil, err
	}
	if !op.valid() {
		return nil, errors.Wrapf(ErrTypeMismatch, "unknown operator %s", op)
	}
	if err := c.checkType(t); err != nil {
		return nil, err
	}
	r, err := c.operand(x)
	if err != nil {
		return nil, err
	}
	if r.typ != t {
		return nil, errors.Wrapf(ErrTypeMismatch, "%s%s yielding %s", op, r.typ, t)
	}
	if (op == LogicalNegate) != t.IsBool() || (op != LogicalNegate && !t.IsInteger()) {
		return nil, errors.Wrapf(ErrTypeMismatch, "operator %s on %s", op, t)
	}
	return c.newNode(&Rvalue{kind: exprUnary, typ: t, op: int(op), x: r}), nil
}

// canonical converts a Go value to the canonical register form of t.
func canonical(t *Type, value any) (int64, error) {
	switch t.kind {
	case Void:
		return 0, errors.Wrap(ErrNotRepresentable, "void has no values")
	case Bool:
		b, ok := value.(bool)
		if !ok {
			return 0, errors.Wrapf(ErrNotRepresentable, "%T as bool", value)
		}
		if b {
			return 1, nil
		}
		return 0, nil
	}

	i, u, unsigned, ok := integer(value)
	if !ok {
		return 0, errors.Wrapf(ErrNotRepresentable, "%T as %s", value, t)
	}
	if t.IsPointer() {
		if i != 0 || u != 0 {
			return 0, errors.Wrapf(ErrNotRepresentable, "non-zero pointer constant %v", value)
		}
		return 0, nil
	}

	min, max, umax := t.limits()
	switch {
	case unsigned && u > umax, unsigned && t.Signed() && u > uint64(max):
		return 0, errors.Wrapf(ErrNotRepresentable, "%d overflows %s", u, t)
	case unsigned:
		return ir.Canon(t.lowered, int64(u)), nil
	case i < min || (t.Signed() && i > max) || (!t.Signed() && i > 0 && uint64(i) > umax):
		return 0, errors.Wrapf(ErrNotRepresentable, "%d overflows %s", i, t)
	}
	return ir.Canon(t.lowered, i), nil
}

// integer extracts a Go integer. Unsigned sources are returned in u.
func integer(value any) (i int64, u uint64, unsigned, ok bool) {
	switch v := value.(type) {
	case int:
		return int64(v), 0, false, true
	case int8:
		return int64(v), 0, false, true
	case int16:
		return int64(v), 0, false, true
	case int32:
		return int64(v), 0, false, true
	case int64:
		return v, 0, false, true
	case uint:
		return 0, uint64(v), true, true
	case uint8:
		return 0, uint64(v), true, true
	case uint16:
		return 0, uint64(v), true, true
	case uint32:
		return 0, uint64(v), true, true
	case uint64:
		return 0, v, true, true
	case uintptr:
		return 0, uint64(v), true, true
	}
	return 0, 0, false, false
}
