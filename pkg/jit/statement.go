package jit

import (
	"github.com/pkg/errors"
)

type stmtKind int

const (
	stmtAssign stmtKind = iota
	stmtAssignOp
	stmtConditional
	stmtJump
	stmtReturn
)

// statement is immutable once appended.
type statement struct {
	kind   stmtKind
	dest   *Local
	op     BinaryOp // stmtAssignOp
	value  *Rvalue  // nil for stmtJump and void returns
	target *Label
}

// expr checks that e is a well-formed operand for a statement of f.
func (f *Function) expr(e Expr) (*Rvalue, error) {
	r, err := f.ctx.operand(e)
	if err != nil {
		return nil, err
	}
	if err := f.owns(r, make(map[*Rvalue]bool)); err != nil {
		return nil, err
	}
	return r, nil
}

func (f *Function) local(dest *Local) error {
	if dest == nil || dest.fn != f {
		return errors.Wrapf(ErrForeignObject, "%s: assignment to a local of another function", f.name)
	}
	return nil
}

// AddAssignment appends dest = e.
func (f *Function) AddAssignment(dest *Local, e Expr) error {
	if err := f.ctx.mutable(); err != nil {
		return err
	}
	if err := f.local(dest); err != nil {
		return err
	}
	r, err := f.expr(e)
	if err != nil {
		return err
	}
	if r.typ != dest.typ {
		return errors.Wrapf(ErrTypeMismatch, "%s: assigning %s to %s %s", f.name, r.typ, dest.typ, dest.name)
	}
	f.stmts = append(f.stmts, statement{kind: stmtAssign, dest: dest, value: r})
	return nil
}

// AddAssignmentOp appends dest = dest op e.
func (f *Function) AddAssignmentOp(dest *Local, op BinaryOp, e Expr) error {
	if err := f.ctx.mutable(); err != nil {
		return err
	}
	if err := f.local(dest); err != nil {
		return err
	}
	if _, err := f.expr(e); err != nil {
		return err
	}
	r, err := f.ctx.NewBinaryOp(op, dest.typ, dest, e)
	if err != nil {
		return errors.Wrapf(err, "%s: %s %s=", f.name, dest.name, op)
	}
	f.stmts = append(f.stmts, statement{kind: stmtAssignOp, dest: dest, op: op, value: r})
	return nil
}

// AddConditional appends a jump to target taken when cond is true.
func (f *Function) AddConditional(cond Expr, target *Label) error {
	if err := f.ctx.mutable(); err != nil {
		return err
	}
	if err := f.target(target); err != nil {
		return err
	}
	r, err := f.expr(cond)
	if err != nil {
		return err
	}
	if !r.typ.IsBool() {
		return errors.Wrapf(ErrTypeMismatch, "%s: condition of type %s", f.name, r.typ)
	}
	f.stmts = append(f.stmts, statement{kind: stmtConditional, value: r, target: target})
	return nil
}

// AddJump appends an unconditional jump.
func (f *Function) AddJump(target *Label) error {
	if err := f.ctx.mutable(); err != nil {
		return err
	}
	if err := f.target(target); err != nil {
		return err
	}
	f.stmts = append(f.stmts, statement{kind: stmtJump, target: target})
	return nil
}

// AddReturn appends return e.
func (f *Function) AddReturn(e Expr) error {
	if err := f.ctx.mutable(); err != nil {
		return err
	}
	r, err := f.expr(e)
	if err != nil {
		return err
	}
	if r.typ != f.ret {
		return errors.Wrapf(ErrTypeMismatch, "%s: returning %s from a %s function", f.name, r.typ, f.ret)
	}
	f.stmts = append(f.stmts, statement{kind: stmtReturn, value: r})
	return nil
}

// AddReturnVoid appends a bare return to a void function.
func (f *Function) AddReturnVoid() error {
	if err := f.ctx.mutable(); err != nil {
		return err
	}
	if !f.ret.IsVoid() {
		return errors.Wrapf(ErrTypeMismatch, "%s: bare return from a %s function", f.name, f.ret)
	}
	f.stmts = append(f.stmts, statement{kind: stmtReturn})
	return nil
}
