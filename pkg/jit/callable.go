package jit

import (
	"reflect"
	"unsafe"

	"github.com/GriffinCanCode/typthon-jit/pkg/interp"
	"github.com/GriffinCanCode/typthon-jit/pkg/linker"
	"github.com/pkg/errors"
)

// Callable is the entry point of one exported function.
type Callable struct {
	res    *Result
	name   string
	params []*Type
	ret    *Type
	entry  uintptr         // 0 when interpreted
	prog   *interp.Program // set when interpreted
}

func (c *Callable) Name() string { return c.name }

// Params returns the parameter types.
func (c *Callable) Params() []*Type { return append([]*Type(nil), c.params...) }

func (c *Callable) ReturnType() *Type { return c.ret }

// Call invokes the function. Arguments may be any Go integer in range of
// the parameter type, a bool for Bool, or a uintptr, unsafe.Pointer or nil
// for pointers. The result has the Go type matching the return type: int
// for Int, int8 for Int8 and so on, uintptr for pointers, nil for Void.
func (c *Callable) Call(args ...any) (any, error) {
	if len(args) != len(c.params) {
		return nil, errors.Wrapf(ErrArgument, "%s takes %d arguments, got %d", c.name, len(c.params), len(args))
	}
	raw := make([]uint64, len(args))
	for i, a := range args {
		v, err := argument(c.params[i], a)
		if err != nil {
			return nil, errors.Wrapf(ErrArgument, "%s argument %d: %v", c.name, i, err)
		}
		raw[i] = v
	}
	out, err := c.invoke(raw)
	if err != nil {
		return nil, err
	}
	return c.value(out), nil
}

func (c *Callable) invoke(raw []uint64) (uint64, error) {
	c.res.mu.RLock()
	defer c.res.mu.RUnlock()
	if c.res.closed {
		return 0, ErrClosed
	}
	if c.prog != nil {
		args := make([]int64, len(raw))
		for i, v := range raw {
			args[i] = int64(v)
		}
		v, err := c.prog.Call(c.name, args...)
		return uint64(v), err
	}
	return linker.Call(c.entry, raw...)
}

func argument(t *Type, a any) (uint64, error) {
	if t.IsPointer() {
		switch p := a.(type) {
		case nil:
			return 0, nil
		case uintptr:
			return uint64(p), nil
		case unsafe.Pointer:
			return uint64(uintptr(p)), nil
		}
		return 0, errors.Errorf("%T for %s", a, t)
	}
	v, err := canonical(t, a)
	return uint64(v), err
}

// value converts a canonical register value to the Go type of c's result.
func (c *Callable) value(out uint64) any {
	switch c.ret.kind {
	case Void:
		return nil
	case Bool:
		return out != 0
	case Int:
		return int(int64(out))
	case Int8:
		return int8(out)
	case Int16:
		return int16(out)
	case Int32:
		return int32(out)
	case Int64:
		return int64(out)
	case Uint8:
		return uint8(out)
	case Uint16:
		return uint16(out)
	case Uint32:
		return uint32(out)
	case Uint64:
		return out
	}
	return uintptr(out)
}

var goKinds = [...]reflect.Kind{
	Bool:   reflect.Bool,
	Int:    reflect.Int,
	Int8:   reflect.Int8,
	Int16:  reflect.Int16,
	Int32:  reflect.Int32,
	Int64:  reflect.Int64,
	Uint8:  reflect.Uint8,
	Uint16: reflect.Uint16,
	Uint32: reflect.Uint32,
	Uint64: reflect.Uint64,
}

// matches reports whether Go type gt carries values of t.
func matches(t *Type, gt reflect.Type) bool {
	if t.IsPointer() {
		return gt.Kind() == reflect.Uintptr || gt.Kind() == reflect.UnsafePointer
	}
	return !t.IsVoid() && gt.Kind() == goKinds[t.kind]
}

// Bind stores into fnPtr, a pointer to a func variable, a Go function that
// calls name. The signature must match exactly: int for Int, int8 for Int8,
// bool for Bool, uintptr or unsafe.Pointer for pointers, no result for Void.
func (r *Result) Bind(name string, fnPtr any) error {
	c, err := r.Func(name)
	if err != nil {
		return err
	}
	pv := reflect.ValueOf(fnPtr)
	if pv.Kind() != reflect.Pointer || pv.IsNil() || pv.Elem().Kind() != reflect.Func {
		return errors.Wrapf(ErrArgument, "Bind needs a pointer to a func variable, got %T", fnPtr)
	}
	ft := pv.Elem().Type()
	if err := c.signature(ft); err != nil {
		return err
	}

	pv.Elem().Set(reflect.MakeFunc(ft, func(in []reflect.Value) []reflect.Value {
		raw := make([]uint64, len(in))
		for i, v := range in {
			raw[i] = rawValue(v)
		}
		out, err := c.invoke(raw)
		if err != nil {
			panic(errors.Wrap(err, c.name))
		}
		if c.ret.IsVoid() {
			return nil
		}
		return []reflect.Value{goValue(ft.Out(0), c.value(out))}
	}))
	return nil
}

func (c *Callable) signature(ft reflect.Type) error {
	mismatch := func() error {
		return errors.Wrapf(ErrArgument, "%s cannot be bound to %s", c.name, ft)
	}
	if ft.IsVariadic() || ft.NumIn() != len(c.params) {
		return mismatch()
	}
	for i, t := range c.params {
		if !matches(t, ft.In(i)) {
			return mismatch()
		}
	}
	if c.ret.IsVoid() {
		if ft.NumOut() != 0 {
			return mismatch()
		}
		return nil
	}
	if ft.NumOut() != 1 || !matches(c.ret, ft.Out(0)) {
		return mismatch()
	}
	return nil
}

func rawValue(v reflect.Value) uint64 {
	switch v.Kind() {
	case reflect.Bool:
		if v.Bool() {
			return 1
		}
		return 0
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return uint64(v.Int())
	case reflect.UnsafePointer:
		return uint64(v.Pointer())
	}
	return v.Uint()
}

func goValue(t reflect.Type, v any) reflect.Value {
	if t.Kind() == reflect.UnsafePointer {
		p := v.(uintptr)
		return reflect.NewAt(t, unsafe.Pointer(&p)).Elem()
	}
	return reflect.ValueOf(v).Convert(t)
}
