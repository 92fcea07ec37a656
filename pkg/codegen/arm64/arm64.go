// Package arm64 implements ARM64/AArch64 code generation.
//
// Design: Direct machine-code emission for Apple Silicon and ARM servers.
// Functions follow Go's internal register ABI (arguments in X0-X7, result
// in X0) inside an X29 frame. X9 and X10 are the driver's scratch
// registers, X11 is used internally for remainders and shift masks.
// X18 (platform), X26-X28 (closure context, REGTMP, g), X29, X30 and SP are
// never written outside the prologue/epilogue.
//
// Division needs no branches: sdiv/udiv already return 0 for a zero
// divisor and MIN for MIN/-1, and msub derives the matching remainder.
package arm64

import (
	"github.com/GriffinCanCode/typthon-jit/pkg/codegen"
	"github.com/GriffinCanCode/typthon-jit/pkg/ir"
	"github.com/GriffinCanCode/typthon-jit/pkg/logger"
	"github.com/pkg/errors"
)

// Arch is the GOARCH this backend targets.
const Arch = "arm64"

var (
	// ArgRegs are the integer argument registers of ABIInternal.
	ArgRegs = []int{X0, X1, X2, X3, X4, X5, X6, X7}

	// Allocatable registers. X19-X25 are callee-saved under AAPCS64 but Go
	// treats every general register as caller-saved, and nothing here
	// calls back into Go.
	Allocatable = []int{X12, X13, X14, X15, X19, X20, X21, X22, X23, X24, X25}

	// Reserved registers that generated code must preserve.
	Reserved = []int{X18, X26, X27, X28, X29, X30, SP}
)

const tmp = X11

func init() {
	codegen.RegisterBackend(Arch, Backend{})
}

// Backend generates AArch64 machine code.
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

// Machine implements codegen.Machine for AArch64.
type Machine struct {
	Asm
	frameSize int
}

// NewMachine returns an empty AArch64 machine.
func NewMachine() *Machine { return &Machine{} }

func (m *Machine) Arch() string        { return Arch }
func (m *Machine) ArgRegs() []int      { return ArgRegs }
func (m *Machine) ResultReg() int      { return X0 }
func (m *Machine) Scratch() (int, int) { return X9, X10 }
func (m *Machine) Allocatable() []int  { return Allocatable }

// Prologue saves FP/LR and reserves frameSize bytes rounded up to 16.
// Slots are addressed upwards from SP.
func (m *Machine) Prologue(frameSize int) {
	m.frameSize = codegen.FrameSize(frameSize/codegen.SlotSize, 16)
	m.PushFrame()
	m.AddImm(X29, SP, 0)
	if m.frameSize > 0 {
		m.SubImm(SP, SP, uint32(m.frameSize))
	}
}

// Epilogue restores SP, FP and LR and returns.
func (m *Machine) Epilogue() {
	m.AddImm(SP, X29, 0)
	m.PopFrame()
	m.Ret()
}

func (m *Machine) MovImm(dst int, v int64) { m.Asm.MovImm(dst, v) }

func (m *Machine) MovReg(dst, src int) {
	if dst != src {
		m.MovRR(dst, src)
	}
}

func (m *Machine) Load(dst, slot int)  { m.LoadSP(dst, slot*codegen.SlotSize) }
func (m *Machine) Store(slot, src int) { m.StoreSP(slot*codegen.SlotSize, src) }

// Binary computes dst = a op b.
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
		m.Orr(dst, a, b)
	case ir.OpXor:
		m.Eor(dst, a, b)
	case ir.OpDiv:
		if signed {
			m.Sdiv(dst, a, b)
		} else {
			m.Udiv(dst, a, b)
		}
	case ir.OpMod:
		if signed {
			m.Sdiv(tmp, a, b)
		} else {
			m.Udiv(tmp, a, b)
		}
		m.Msub(dst, tmp, b, a)
	case ir.OpShl, ir.OpShr:
		count := b
		// Register shifts already take the count mod 64
		if w := t.Bits(); w > 1 && w < 64 {
			m.Asm.MovImm(tmp, int64(w-1))
			m.And(tmp, b, tmp)
			count = tmp
		}
		switch {
		case op == ir.OpShl:
			m.Lslv(dst, a, count)
		case signed:
			m.Asrv(dst, a, count)
		default:
			m.Lsrv(dst, a, count)
		}
	default:
		m.Cmp(a, b)
		m.Cset(dst, condition(op, signed))
	}
}

func condition(op ir.Op, signed bool) uint32 {
	switch op {
	case ir.OpEq:
		return condEQ
	case ir.OpNe:
		return condNE
	case ir.OpLt:
		if signed {
			return condLT
		}
		return condLO
	case ir.OpLe:
		if signed {
			return condLE
		}
		return condLS
	case ir.OpGt:
		if signed {
			return condGT
		}
		return condHI
	default:
		if signed {
			return condGE
		}
		return condHS
	}
}

// Unary computes dst = op x.
func (m *Machine) Unary(op ir.Op, t ir.Type, dst, x int) {
	if op == ir.OpNeg {
		m.Neg(dst, x)
	} else {
		m.Mvn(dst, x)
	}
}

// Extend renormalizes the low bits of dst to a canonical 64-bit value.
func (m *Machine) Extend(dst int, bits int, signed bool) {
	if signed {
		m.Sext(dst, dst, bits)
	} else {
		m.Zext(dst, dst, bits)
	}
}

func (m *Machine) Jump(l codegen.Label)                 { m.B(l) }
func (m *Machine) JumpIfZero(r int, l codegen.Label)    { m.Cbz(r, l) }
func (m *Machine) JumpIfNonZero(r int, l codegen.Label) { m.Cbnz(r, l) }
