// Package jit is an embeddable in-process JIT compiler.
//
// Design: A Context interns types, allocates expression nodes and owns
// functions built statement by statement. Labels may be used before they are
// placed; the whole graph is checked once, at Compile. Compile is one-shot:
// it validates, lowers to pkg/ir, optimizes, generates machine code for the
// running architecture (or prepares the interpreter) and returns a Result
// whose callables stay valid until it is closed.
//
//	ctx := jit.NewContext()
//	i := ctx.Type(jit.Int)
//	x, _ := ctx.NewParam(i, "x")
//	fn, _ := ctx.NewFunction(jit.Exported, i, "square", x)
//	sq, _ := ctx.NewBinaryOp(jit.Mult, i, x, x)
//	fn.AddReturn(sq)
//	res, err := ctx.Compile()
package jit

import (
	"fmt"

	"github.com/pkg/errors"
)

// State is the lifecycle stage of a Context.
type State int

const (
	StateBuilding State = iota
	StateCompiled
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateBuilding:
		return "building"
	case StateCompiled:
		return "compiled"
	case StateFailed:
		return "failed"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Context owns types, expression nodes and functions. It is not safe for
// concurrent use and can be compiled once.
type Context struct {
	opts   Options
	state  State
	types  registry
	nodes  []*Rvalue
	funcs  []*Function
	byName map[string]*Function
}

// NewContext returns an empty Context in StateBuilding.
func NewContext(opts ...Option) *Context {
	c := &Context{opts: DefaultOptions(), byName: make(map[string]*Function)}
	for _, opt := range opts {
		opt(&c.opts)
	}
	return c
}

func (c *Context) State() State { return c.state }

// Options returns the defaults Compile starts from.
func (c *Context) Options() Options { return c.opts }

// Functions returns every function in declaration order.
func (c *Context) Functions() []*Function {
	return append([]*Function(nil), c.funcs...)
}

// Function returns the function called name, or nil.
func (c *Context) Function(name string) *Function { return c.byName[name] }

func (c *Context) mutable() error {
	if c.state != StateBuilding {
		return errors.Wrapf(ErrInvalidState, "context is %s", c.state)
	}
	return nil
}

func (c *Context) poison() { c.state = StateFailed }
