// Package ir implements the lowered intermediate representation.
//
// Design: Three-address code, explicit control flow, strongly typed.
// Functions are lists of basic blocks; every block ends in exactly one
// terminator. Locals are mutable storage, temps are written once.
package ir

import "fmt"

// Program is the top-level IR container
type Program struct {
	Functions []*Function
}

// Function represents a lowered function
type Function struct {
	Name       string
	Exported   bool
	Params     []*Param
	Locals     []*Local
	ReturnType Type
	Blocks     []*Block
	NumTemps   int
}

// Entry returns the entry block, or nil for an empty function.
func (f *Function) Entry() *Block {
	if len(f.Blocks) == 0 {
		return nil
	}
	return f.Blocks[0]
}

// Block is a basic block - straight-line code ending in a terminator
type Block struct {
	ID    int
	Label string
	Insts []Inst
	Term  Terminator
	Preds []*Block
	Succs []*Block
}

func (b *Block) String() string {
	return fmt.Sprintf("%s_%d", b.Label, b.ID)
}

// Inst is a three-address code instruction
type Inst interface {
	inst()
}

// Terminator ends a basic block (branch, return, etc.)
type Terminator interface {
	term()
}

// Instructions

// Move copies Src into Dest. Dest is a *Local or a *Temp.
type Move struct {
	Dest Value
	Src  Value
}

func (*Move) inst() {}

// BinOp computes Dest = L op R. For comparisons Dest is a bool and the
// operand type decides signedness.
type BinOp struct {
	Dest *Temp
	Op   Op
	L    Value
	R    Value
}

func (*BinOp) inst() {}

// UnOp computes Dest = op X.
type UnOp struct {
	Dest *Temp
	Op   Op
	X    Value
}

func (*UnOp) inst() {}

// Terminators
type Return struct {
	Value Value // nil for void functions
}

func (*Return) term() {}

type Branch struct {
	Target *Block
}

func (*Branch) term() {}

type CondBranch struct {
	Cond  Value
	True  *Block
	False *Block
}

func (*CondBranch) term() {}

// Values and types
type Value interface {
	value()
	ValueType() Type
}

// Const is an immediate held in canonical 64-bit form (see Canon).
type Const struct {
	Val  int64
	Type Type
}

func (*Const) value()            {}
func (c *Const) ValueType() Type { return c.Type }

// NewConst returns a constant with v normalized to t.
func NewConst(t Type, v int64) *Const {
	return &Const{Val: Canon(t, v), Type: t}
}

type Param struct {
	Name  string
	Index int
	Type  Type
}

func (*Param) value()            {}
func (p *Param) ValueType() Type { return p.Type }

type Local struct {
	Name  string
	Index int
	Type  Type
}

func (*Local) value()            {}
func (l *Local) ValueType() Type { return l.Type }

type Temp struct {
	ID   int
	Type Type
}

func (*Temp) value()            {}
func (t *Temp) ValueType() Type { return t.Type }

// Type describes the machine-level shape of a value.
type Type interface {
	typ()
	Bits() int
	Signed() bool
	String() string
}

// IntType is a fixed-width integer.
type IntType struct {
	Width    int
	Unsigned bool
}

func (IntType) typ()           {}
func (t IntType) Bits() int    { return t.Width }
func (t IntType) Signed() bool { return !t.Unsigned }
func (t IntType) String() string {
	if t.Unsigned {
		return fmt.Sprintf("u%d", t.Width)
	}
	return fmt.Sprintf("i%d", t.Width)
}

// BoolType holds 0 or 1.
type BoolType struct{}

func (BoolType) typ()           {}
func (BoolType) Bits() int      { return 1 }
func (BoolType) Signed() bool   { return false }
func (BoolType) String() string { return "bool" }

// PtrType is an opaque 64-bit address.
type PtrType struct {
	Elem Type
}

func (PtrType) typ()         {}
func (PtrType) Bits() int    { return 64 }
func (PtrType) Signed() bool { return false }
func (t PtrType) String() string {
	if t.Elem == nil {
		return "ptr"
	}
	return "*" + t.Elem.String()
}

// VoidType has no values.
type VoidType struct{}

func (VoidType) typ()           {}
func (VoidType) Bits() int      { return 0 }
func (VoidType) Signed() bool   { return false }
func (VoidType) String() string { return "void" }

// Common types
var (
	I64  Type = IntType{Width: 64}
	Bool Type = BoolType{}
	Void Type = VoidType{}
)

// IsVoid reports whether t is nil or void.
func IsVoid(t Type) bool {
	if t == nil {
		return true
	}
	_, ok := t.(VoidType)
	return ok
}

// Operations
type Op int

const (
	OpAdd Op = iota
	OpSub
	OpMul
	OpDiv
	OpMod
	OpAnd
	OpOr
	OpXor
	OpShl
	OpShr
	OpEq
	OpNe
	OpLt
	OpLe
	OpGt
	OpGe
	OpNeg
	OpNot
)

var opNames = [...]string{
	OpAdd: "add",
	OpSub: "sub",
	OpMul: "mul",
	OpDiv: "div",
	OpMod: "mod",
	OpAnd: "and",
	OpOr:  "or",
	OpXor: "xor",
	OpShl: "shl",
	OpShr: "shr",
	OpEq:  "eq",
	OpNe:  "ne",
	OpLt:  "lt",
	OpLe:  "le",
	OpGt:  "gt",
	OpGe:  "ge",
	OpNeg: "neg",
	OpNot: "not",
}

func (op Op) String() string {
	if int(op) >= 0 && int(op) < len(opNames) {
		return opNames[op]
	}
	return fmt.Sprintf("op(%d)", int(op))
}

// IsComparison reports whether op yields a bool.
func (op Op) IsComparison() bool {
	return op >= OpEq && op <= OpGe
}

// IsCommutative reports whether operands of op may be swapped.
func (op Op) IsCommutative() bool {
	switch op {
	case OpAdd, OpMul, OpAnd, OpOr, OpXor, OpEq, OpNe:
		return true
	}
	return false
}
