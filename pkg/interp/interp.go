// Package interp implements a reference interpreter for the lowered IR.
//
// Design: Walks basic blocks directly, with arithmetic delegated to
// ir.EvalBinary / ir.EvalUnary so results match the native backends bit for
// bit. Used as a portable backend where no native one exists and as the
// oracle in differential tests.
package interp

import (
	"context"

	"github.com/GriffinCanCode/typthon-jit/pkg/ir"
	"github.com/GriffinCanCode/typthon-jit/pkg/logger"
	"github.com/pkg/errors"
)

// checkEvery is how many block transitions run between context checks.
const checkEvery = 1 << 12

var (
	ErrNotFound = errors.New("function not found")
	ErrArity    = errors.New("wrong number of arguments")
)

// Program is an interpretable set of functions.
type Program struct {
	funcs map[string]*ir.Function
}

// New prepares prog for execution. prog must not be modified afterwards.
func New(prog *ir.Program) *Program {
	p := &Program{funcs: make(map[string]*ir.Function, len(prog.Functions))}
	for _, fn := range prog.Functions {
		p.funcs[fn.Name] = fn
	}
	return p
}

// Call runs name with canonical arguments and returns its canonical result
// (0 for void functions).
func (p *Program) Call(name string, args ...int64) (int64, error) {
	return p.CallContext(context.Background(), name, args...)
}

// CallContext is Call with cancellation, checked on control transfers.
func (p *Program) CallContext(ctx context.Context, name string, args ...int64) (int64, error) {
	fn, ok := p.funcs[name]
	if !ok {
		return 0, errors.Wrap(ErrNotFound, name)
	}
	return Run(ctx, fn, args)
}

// frame holds the storage of one activation.
type frame struct {
	params []int64
	locals []int64
	temps  []int64
}

func (f *frame) get(v ir.Value) int64 {
	switch v := v.(type) {
	case *ir.Const:
		return v.Val
	case *ir.Param:
		return f.params[v.Index]
	case *ir.Local:
		return f.locals[v.Index]
	case *ir.Temp:
		return f.temps[v.ID]
	}
	return 0
}

func (f *frame) set(v ir.Value, x int64) {
	switch v := v.(type) {
	case *ir.Local:
		f.locals[v.Index] = x
	case *ir.Temp:
		f.temps[v.ID] = x
	}
}

// Run interprets fn.
func Run(ctx context.Context, fn *ir.Function, args []int64) (int64, error) {
	if len(args) != len(fn.Params) {
		return 0, errors.Wrapf(ErrArity, "%s takes %d, got %d", fn.Name, len(fn.Params), len(args))
	}
	b := fn.Entry()
	if b == nil {
		return 0, errors.Errorf("%s has no blocks", fn.Name)
	}

	f := &frame{
		params: make([]int64, len(fn.Params)),
		locals: make([]int64, len(fn.Locals)),
		temps:  make([]int64, fn.NumTemps),
	}
	for i, p := range fn.Params {
		f.params[i] = ir.Canon(p.Type, args[i])
	}

	for steps := 1; ; steps++ {
		if steps%checkEvery == 0 {
			if err := ctx.Err(); err != nil {
				logger.Debug("Interpreter cancelled", "function", fn.Name, "steps", steps)
				return 0, err
			}
		}
		for _, inst := range b.Insts {
			switch i := inst.(type) {
			case *ir.Move:
				f.set(i.Dest, f.get(i.Src))
			case *ir.BinOp:
				f.set(i.Dest, ir.EvalBinary(i.Op, i.L.ValueType(), f.get(i.L), f.get(i.R)))
			case *ir.UnOp:
				f.set(i.Dest, ir.EvalUnary(i.Op, i.X.ValueType(), f.get(i.X)))
			}
		}

		switch t := b.Term.(type) {
		case *ir.Return:
			if t.Value == nil {
				return 0, nil
			}
			return f.get(t.Value), nil
		case *ir.Branch:
			b = t.Target
		case *ir.CondBranch:
			if f.get(t.Cond) != 0 {
				b = t.True
			} else {
				b = t.False
			}
		default:
			return 0, errors.Errorf("block %s of %s has no terminator", b, fn.Name)
		}
	}
}
