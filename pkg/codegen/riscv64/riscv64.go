// Package riscv64 implements RISC-V 64-bit code generation.
//
// Design: Direct machine-code emission for the RV64IM base. Functions use
// Go's internal register ABI (arguments in a0-a7, result in a0) inside an
// s0 frame. t0 and t1 are the driver's scratch registers, t2 is used
// internally for division masks and shift counts. ra, sp, gp, tp, s0,
// s10 (closure context) and s11 (g) are never written outside the
// prologue/epilogue.
//
// The M extension never traps, but div/divu return all ones for a zero
// divisor; a mask derived from the divisor forces the result to 0.
package riscv64

import (
	"github.com/GriffinCanCode/typthon-jit/pkg/codegen"
	"github.com/GriffinCanCode/typthon-jit/pkg/ir"
	"github.com/GriffinCanCode/typthon-jit/pkg/logger"
	"github.com/pkg/errors"
)

// Arch is the GOARCH this backend targets.
const Arch = "riscv64"

var (
	// ArgRegs are the first integer argument registers of ABIInternal.
	ArgRegs = []int{A0, A1, A2, A3, A4, A5, A6, A7}

	// Allocatable registers.
	Allocatable = []int{S2, S3, S4, S5, S6, S7, S8, S9, T3, T4}

	// Reserved registers that generated code must preserve.
	Reserved = []int{RA, SP, GP, TP, S0, S10, S11}
)

const tmp = T2

// frameHeader holds the saved ra and s0.
const frameHeader = 16

func init() {
	codegen.RegisterBackend(Arch, Backend{})
}

// Backend generates RV64IM machine code.
type Backend struct{}

func (Backend) Arch() string { return Arch }

// Generate compiles one function and validates the result.
func (Backend) Generate(fn *ir.Function, opts codegen.Options) (*codegen.Object, error) {
	obj, err := codegen.Generate(fn, NewMachine(), opts)
	if err != nil {
		return nil, err
	}
	if err := NewValidator().Validate(obj); err != nil {
		logger.Error("Machine code validation failed", "arch", Arch, "function", fn.Name, "error", err)
		return nil, errors.Wrapf(err, "validating %s", fn.Name)
	}
	return obj, nil
}

// Machine implements codegen.Machine for RV64IM.
type Machine struct {
	Asm
	frameSize int
}

// NewMachine returns an empty RISC-V machine.
func NewMachine() *Machine { return &Machine{} }

func (m *Machine) Arch() string        { return Arch }
func (m *Machine) ArgRegs() []int      { return ArgRegs }
func (m *Machine) ResultReg() int      { return A0 }
func (m *Machine) Scratch() (int, int) { return T0, T1 }
func (m *Machine) Allocatable() []int  { return Allocatable }

// Prologue saves ra and s0, points s0 at the caller's sp and reserves
// frameSize bytes rounded up to 16. Slots are addressed upwards from sp.
func (m *Machine) Prologue(frameSize int) {
	m.frameSize = codegen.FrameSize(frameSize/codegen.SlotSize, 16)
	m.Addi(SP, SP, -frameHeader)
	m.Sd(RA, SP, 8)
	m.Sd(S0, SP, 0)
	m.Addi(S0, SP, frameHeader)
	if m.frameSize > 0 {
		m.Addi(SP, SP, int32(-m.frameSize))
	}
}

// Epilogue restores sp, ra and s0 and returns.
func (m *Machine) Epilogue() {
	m.Addi(SP, S0, -frameHeader)
	m.Ld(RA, SP, 8)
	m.Ld(S0, SP, 0)
	m.Addi(SP, SP, frameHeader)
	m.Ret()
}

func (m *Machine) MovImm(dst int, v int64) { m.Li(dst, v) }

func (m *Machine) MovReg(dst, src int) {
	if dst != src {
		m.Mv(dst, src)
	}
}

func (m *Machine) Load(dst, slot int)  { m.Ld(dst, SP, int32(slot*codegen.SlotSize)) }
func (m *Machine) Store(slot, src int) { m.Sd(src, SP, int32(slot*codegen.SlotSize)) }

// Binary computes dst = a op b. dst may alias a, never b.
func (m *Machine) Binary(op ir.Op, t ir.Type, dst, a, b int) {
	signed := t.Signed()
	switch op {
	case ir.OpAdd:
		m.Add(dst, a, b)
	case ir.OpSub:
		m.Sub(dst, a, b)
	case ir.OpMul:
		m.Mul(dst, a, b)
	case ir.OpAnd:
		m.And(dst, a, b)
	case ir.OpOr:
		m.Or(dst, a, b)
	case ir.OpXor:
		m.Xor(dst, a, b)
	case ir.OpDiv:
		// tmp = b == 0 ? 0 : -1
		m.Sltiu(tmp, b, 1)
		m.Addi(tmp, tmp, -1)
		if signed {
			m.Div(dst, a, b)
		} else {
			m.Divu(dst, a, b)
		}
		m.And(dst, dst, tmp)
	case ir.OpMod:
		// rem(a, 0) == a and rem(MIN, -1) == 0 already
		if signed {
			m.Rem(dst, a, b)
		} else {
			m.Remu(dst, a, b)
		}
	case ir.OpShl, ir.OpShr:
		count := b
		if w := t.Bits(); w > 1 && w < 64 {
			m.Andi(tmp, b, int32(w-1))
			count = tmp
		}
		switch {
		case op == ir.OpShl:
			m.Sll(dst, a, count)
		case signed:
			m.Sra(dst, a, count)
		default:
			m.Srl(dst, a, count)
		}
	default:
		m.compare(op, signed, dst, a, b)
	}
}

func (m *Machine) compare(op ir.Op, signed bool, dst, a, b int) {
	less := m.Sltu
	if signed {
		less = m.Slt
	}
	switch op {
	case ir.OpEq:
		m.Xor(dst, a, b)
		m.Sltiu(dst, dst, 1)
	case ir.OpNe:
		m.Xor(dst, a, b)
		m.Sltu(dst, ZERO, dst)
	case ir.OpLt:
		less(dst, a, b)
	case ir.OpGt:
		less(dst, b, a)
	case ir.OpLe:
		less(dst, b, a)
		m.Xori(dst, dst, 1)
	case ir.OpGe:
		less(dst, a, b)
		m.Xori(dst, dst, 1)
	}
}

// Unary computes dst = op x.
func (m *Machine) Unary(op ir.Op, t ir.Type, dst, x int) {
	if op == ir.OpNeg {
		m.Sub(dst, ZERO, x)
	} else {
		m.Xori(dst, x, -1)
	}
}

// Extend renormalizes the low bits of dst to a canonical 64-bit value.
func (m *Machine) Extend(dst int, bits int, signed bool) {
	if bits == 32 && signed {
		m.Addiw(dst, dst, 0)
		return
	}
	n := uint32(64 - bits)
	m.Slli(dst, dst, n)
	if signed {
		m.Srai(dst, dst, n)
	} else {
		m.Srli(dst, dst, n)
	}
}

func (m *Machine) Jump(l codegen.Label)                 { m.J(l) }
func (m *Machine) JumpIfZero(r int, l codegen.Label)    { m.Beqz(r, l) }
func (m *Machine) JumpIfNonZero(r int, l codegen.Label) { m.Bnez(r, l) }
