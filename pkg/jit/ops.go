package jit

import (
	"fmt"

	"github.com/GriffinCanCode/typthon-jit/pkg/ir"
)

// BinaryOp is an arithmetic, bitwise or logical operator.
type BinaryOp int

const (
	Plus BinaryOp = iota
	Minus
	Mult
	Divide
	Modulo
	BitwiseAnd
	BitwiseOr
	BitwiseXor
	LeftShift
	RightShift // arithmetic for signed types, logical for unsigned
	LogicalAnd
	LogicalOr
)

var binaryOps = [...]struct {
	sym string
	op  ir.Op
}{
	Plus:       {"+", ir.OpAdd},
	Minus:      {"-", ir.OpSub},
	Mult:       {"*", ir.OpMul},
	Divide:     {"/", ir.OpDiv},
	Modulo:     {"%", ir.OpMod},
	BitwiseAnd: {"&", ir.OpAnd},
	BitwiseOr:  {"|", ir.OpOr},
	BitwiseXor: {"^", ir.OpXor},
	LeftShift:  {"<<", ir.OpShl},
	RightShift: {">>", ir.OpShr},
	LogicalAnd: {"&&", ir.OpAnd},
	LogicalOr:  {"||", ir.OpOr},
}

func (op BinaryOp) valid() bool { return op >= 0 && int(op) < len(binaryOps) }

func (op BinaryOp) String() string {
	if op.valid() {
		return binaryOps[op].sym
	}
	return fmt.Sprintf("binop(%d)", int(op))
}

func (op BinaryOp) logical() bool { return op == LogicalAnd || op == LogicalOr }

// ComparisonOp is a relational operator yielding Bool.
type ComparisonOp int

const (
	EQ ComparisonOp = iota
	NE
	LT
	LE
	GT
	GE
)

var comparisonOps = [...]struct {
	sym string
	op  ir.Op
}{
	EQ: {"==", ir.OpEq},
	NE: {"!=", ir.OpNe},
	LT: {"<", ir.OpLt},
	LE: {"<=", ir.OpLe},
	GT: {">", ir.OpGt},
	GE: {">=", ir.OpGe},
}

func (op ComparisonOp) valid() bool { return op >= 0 && int(op) < len(comparisonOps) }

func (op ComparisonOp) String() string {
	if op.valid() {
		return comparisonOps[op].sym
	}
	return fmt.Sprintf("cmp(%d)", int(op))
}

// UnaryOp is a prefix operator.
type UnaryOp int

const (
	Negate UnaryOp = iota
	BitwiseNegate
	LogicalNegate
)

var unaryOps = [...]string{
	Negate:        "-",
	BitwiseNegate: "~",
	LogicalNegate: "!",
}

func (op UnaryOp) valid() bool { return op >= 0 && int(op) < len(unaryOps) }

func (op UnaryOp) String() string {
	if op.valid() {
		return unaryOps[op]
	}
	return fmt.Sprintf("unop(%d)", int(op))
}
