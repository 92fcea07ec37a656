package jit

import (
	"github.com/GriffinCanCode/typthon-jit/pkg/logger"
	"github.com/pkg/errors"
)

// Visibility controls whether a Function can be looked up after compile.
type Visibility int

const (
	Exported Visibility = iota
	Internal
)

func (v Visibility) String() string {
	if v == Internal {
		return "internal"
	}
	return "exported"
}

// Param is a named, typed function parameter. It is created unbound by
// NewParam and bound to one Function by NewFunction.
type Param struct {
	name  string
	typ   *Type
	index int
	fn    *Function
	ref   *Rvalue
}

func (p *Param) Name() string        { return p.name }
func (p *Param) Type() *Type         { return p.typ }
func (p *Param) Function() *Function { return p.fn }
func (p *Param) node() *Rvalue       { return p.ref }

// Local is mutable storage owned by one Function. Locals start at zero.
type Local struct {
	name  string
	typ   *Type
	index int
	fn    *Function
	ref   *Rvalue
}

func (l *Local) Name() string        { return l.name }
func (l *Local) Type() *Type         { return l.typ }
func (l *Local) Function() *Function { return l.fn }
func (l *Local) node() *Rvalue       { return l.ref }

// Function is one routine under construction.
type Function struct {
	ctx    *Context
	name   string
	vis    Visibility
	ret    *Type
	params []*Param
	locals []*Local
	labels []*Label
	stmts  []statement
	names  map[string]bool
}

func (f *Function) Name() string           { return f.name }
func (f *Function) Visibility() Visibility { return f.vis }
func (f *Function) ReturnType() *Type      { return f.ret }
func (f *Function) Context() *Context      { return f.ctx }

// Params returns the parameters in declaration order.
func (f *Function) Params() []*Param {
	return append([]*Param(nil), f.params...)
}

// Locals returns the locals in creation order.
func (f *Function) Locals() []*Local {
	return append([]*Local(nil), f.locals...)
}

// Param returns the i'th parameter.
func (f *Function) Param(i int) *Param { return f.params[i] }

// NewParam creates a parameter to be passed to NewFunction.
func (c *Context) NewParam(t *Type, name string) (*Param, error) {
	if err := c.mutable(); err != nil {
		return nil, err
	}
	if err := c.checkType(t); err != nil {
		return nil, err
	}
	if t.IsVoid() {
		return nil, errors.Wrapf(ErrTypeMismatch, "parameter %q of type void", name)
	}
	p := &Param{name: name, typ: t, index: -1}
	p.ref = c.newNode(&Rvalue{kind: exprParam, typ: t, param: p})
	return p, nil
}

// NewFunction creates a Function owning params. Names are unique within the
// Context regardless of visibility.
func (c *Context) NewFunction(vis Visibility, ret *Type, name string, params ...*Param) (*Function, error) {
	if err := c.mutable(); err != nil {
		return nil, err
	}
	if err := c.checkType(ret); err != nil {
		return nil, err
	}
	if name == "" {
		return nil, errors.Wrap(ErrInvalidName, "empty function name")
	}
	if vis != Exported && vis != Internal {
		return nil, errors.Wrapf(ErrInvalidOption, "function %s: unknown visibility %d", name, int(vis))
	}
	if _, ok := c.byName[name]; ok {
		return nil, errors.Wrapf(ErrDuplicateName, "function %s", name)
	}

	seen := make(map[string]bool, len(params))
	for _, p := range params {
		switch {
		case p == nil:
			return nil, errors.Errorf("function %s: nil parameter", name)
		case p.ref.ctx != c:
			return nil, errors.Wrapf(ErrForeignObject, "function %s: parameter %s", name, p.name)
		case p.fn != nil:
			return nil, errors.Wrapf(ErrForeignObject, "function %s: parameter %s already belongs to %s", name, p.name, p.fn.name)
		case seen[p.name]:
			return nil, errors.Wrapf(ErrDuplicateName, "function %s: parameter %s", name, p.name)
		}
		seen[p.name] = true
	}

	f := &Function{ctx: c, name: name, vis: vis, ret: ret, names: seen}
	for i, p := range params {
		p.fn = f
		p.index = i
	}
	f.params = append(f.params, params...)
	c.funcs = append(c.funcs, f)
	c.byName[name] = f
	logger.Debug("Function declared", "name", name, "visibility", vis, "params", len(params))
	return f, nil
}

// NewLocal adds a local variable.
func (f *Function) NewLocal(t *Type, name string) (*Local, error) {
	if err := f.ctx.mutable(); err != nil {
		return nil, err
	}
	if err := f.ctx.checkType(t); err != nil {
		return nil, err
	}
	if t.IsVoid() {
		return nil, errors.Wrapf(ErrTypeMismatch, "%s: local %q of type void", f.name, name)
	}
	if f.names[name] {
		return nil, errors.Wrapf(ErrDuplicateName, "%s: %s", f.name, name)
	}
	f.names[name] = true
	l := &Local{name: name, typ: t, index: len(f.locals), fn: f}
	l.ref = f.ctx.newNode(&Rvalue{kind: exprLocal, typ: t, local: l})
	f.locals = append(f.locals, l)
	return l, nil
}

// owns checks that every parameter and local referenced by r belongs to f.
func (f *Function) owns(r *Rvalue, seen map[*Rvalue]bool) error {
	if seen[r] {
		return nil
	}
	seen[r] = true
	switch r.kind {
	case exprParam:
		if r.param.fn != f {
			return errors.Wrapf(ErrForeignObject, "%s: parameter %s", f.name, r.param.name)
		}
	case exprLocal:
		if r.local.fn != f {
			return errors.Wrapf(ErrForeignObject, "%s: local %s", f.name, r.local.name)
		}
	case exprBinary, exprComparison:
		if err := f.owns(r.x, seen); err != nil {
			return err
		}
		return f.owns(r.y, seen)
	case exprUnary:
		return f.owns(r.x, seen)
	}
	return nil
}
