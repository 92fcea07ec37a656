package jit

import (
	"fmt"

	"github.com/GriffinCanCode/typthon-jit/pkg/ir"
)

// Kind enumerates the primitive types plus Pointer.
type Kind int

const (
	Void Kind = iota
	Bool
	Int // 64-bit signed, distinct from Int64
	Int8
	Int16
	Int32
	Int64
	Uint8
	Uint16
	Uint32
	Uint64
	Pointer

	numPrimitives = Pointer
)

var kindNames = [...]string{
	Void:    "void",
	Bool:    "bool",
	Int:     "int",
	Int8:    "int8",
	Int16:   "int16",
	Int32:   "int32",
	Int64:   "int64",
	Uint8:   "uint8",
	Uint16:  "uint16",
	Uint32:  "uint32",
	Uint64:  "uint64",
	Pointer: "pointer",
}

func (k Kind) String() string {
	if k >= 0 && int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Type is an interned type handle. Handles from one Context compare equal
// with == exactly when they denote the same type.
type Type struct {
	kind    Kind
	pointee *Type
	ctx     *Context
	lowered ir.Type
}

func (t *Type) Kind() Kind { return t.kind }

// Pointee returns the element type of a pointer, nil otherwise.
func (t *Type) Pointee() *Type { return t.pointee }

func (t *Type) IsVoid() bool    { return t.kind == Void }
func (t *Type) IsBool() bool    { return t.kind == Bool }
func (t *Type) IsPointer() bool { return t.kind == Pointer }
func (t *Type) IsInteger() bool { return t.kind >= Int && t.kind <= Uint64 }

// Bits returns the value width: 0 for void, 1 for bool.
func (t *Type) Bits() int { return t.lowered.Bits() }

// Signed reports whether integer arithmetic on t is signed.
func (t *Type) Signed() bool { return t.lowered.Signed() }

// String returns the C spelling used in IR dumps.
func (t *Type) String() string {
	switch t.kind {
	case Void:
		return "void"
	case Bool:
		return "bool"
	case Int:
		return "long"
	case Pointer:
		return t.pointee.String() + " *"
	}
	if t.Signed() {
		return fmt.Sprintf("int%d_t", t.Bits())
	}
	return fmt.Sprintf("uint%d_t", t.Bits())
}

func lowerKind(k Kind) ir.Type {
	switch k {
	case Void:
		return ir.Void
	case Bool:
		return ir.Bool
	case Int, Int64:
		return ir.I64
	case Int8:
		return ir.IntType{Width: 8}
	case Int16:
		return ir.IntType{Width: 16}
	case Int32:
		return ir.IntType{Width: 32}
	case Uint8:
		return ir.IntType{Width: 8, Unsigned: true}
	case Uint16:
		return ir.IntType{Width: 16, Unsigned: true}
	case Uint32:
		return ir.IntType{Width: 32, Unsigned: true}
	case Uint64:
		return ir.IntType{Width: 64, Unsigned: true}
	}
	panic(fmt.Sprintf("jit: %s is not a primitive kind", k))
}

// registry interns the types of one Context.
type registry struct {
	prims    [numPrimitives]*Type
	pointers map[*Type]*Type
}

// Type returns the canonical handle for a primitive kind. Pointer types
// come from PointerTo; passing Pointer or an unknown kind panics.
func (c *Context) Type(kind Kind) *Type {
	if kind < 0 || kind >= numPrimitives {
		panic(fmt.Sprintf("jit: %s is not a primitive kind", kind))
	}
	if t := c.types.prims[kind]; t != nil {
		return t
	}
	t := &Type{kind: kind, ctx: c, lowered: lowerKind(kind)}
	c.types.prims[kind] = t
	return t
}

// PointerTo returns the canonical pointer type over t.
func (c *Context) PointerTo(t *Type) *Type {
	if t == nil || t.ctx != c {
		panic("jit: PointerTo of a type from another context")
	}
	if p, ok := c.types.pointers[t]; ok {
		return p
	}
	if c.types.pointers == nil {
		c.types.pointers = make(map[*Type]*Type)
	}
	p := &Type{kind: Pointer, pointee: t, ctx: c, lowered: ir.PtrType{Elem: t.lowered}}
	c.types.pointers[t] = p
	return p
}

// limits returns the inclusive range of an integer type. Unsigned maxima
// are reported through umax.
func (t *Type) limits() (min, max int64, umax uint64) {
	w := uint(t.Bits())
	if t.Signed() {
		if w >= 64 {
			return -1 << 63, 1<<63 - 1, 1<<63 - 1
		}
		max = 1<<(w-1) - 1
		return -max - 1, max, uint64(max)
	}
	if w >= 64 {
		return 0, 1<<63 - 1, ^uint64(0)
	}
	umax = 1<<w - 1
	return 0, int64(umax), umax
}
