// Package amd64 implements x86-64 code generation.
//
// Design: Direct machine-code emission, no external assembler. Functions use
// Go's internal register ABI (arguments in RAX, RBX, RCX, RDI, RSI, R8-R10,
// result in RAX) and an RBP-based frame. RAX and RCX are the driver's scratch
// registers; RDX and R11 are used internally for division and never allocated.
// R14 (g), R15, RBP and RSP are never written outside the prologue/epilogue.
package amd64

import (
	"github.com/GriffinCanCode/typthon-jit/pkg/codegen"
	"github.com/GriffinCanCode/typthon-jit/pkg/ir"
	"github.com/GriffinCanCode/typthon-jit/pkg/logger"
	"github.com/pkg/errors"
)

// Arch is the GOARCH this backend targets.
const Arch = "amd64"

var (
	// ArgRegs are the integer argument registers of ABIInternal.
	ArgRegs = []int{RAX, RBX, RCX, RDI, RSI, R8, R9, R10}

	// Allocatable registers, all caller-saved under ABIInternal.
	Allocatable = []int{RBX, RSI, RDI, R8, R9, R10, R12, R13}

	// Reserved registers that generated code must preserve.
	Reserved = []int{RSP, RBP, R14, R15}
)

func init() {
	codegen.RegisterBackend(Arch, Backend{})
}

// Backend generates x86-64 machine code.
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

// Machine implements codegen.Machine for x86-64.
type Machine struct {
	Asm
	frameSize int
}

// NewMachine returns an empty x86-64 machine.
func NewMachine() *Machine { return &Machine{} }

func (m *Machine) Arch() string          { return Arch }
func (m *Machine) ArgRegs() []int        { return ArgRegs }
func (m *Machine) ResultReg() int        { return RAX }
func (m *Machine) Scratch() (int, int)   { return RAX, RCX }
func (m *Machine) Allocatable() []int    { return Allocatable }
func (m *Machine) slotDisp(slot int) int { return -codegen.SlotSize * (slot + 1) }

// Prologue sets up an RBP frame of frameSize bytes rounded up to 16.
func (m *Machine) Prologue(frameSize int) {
	m.frameSize = codegen.FrameSize(frameSize/codegen.SlotSize, 16)
	m.PushRBP()
	m.MovRR(RBP, RSP)
	if m.frameSize > 0 {
		m.SubImm32(RSP, int32(m.frameSize))
	}
}

// Epilogue tears the frame down and returns.
func (m *Machine) Epilogue() {
	m.MovRR(RSP, RBP)
	m.PopRBP()
	m.Ret()
}

func (m *Machine) MovImm(dst int, v int64) { m.Asm.MovImm(dst, v) }

func (m *Machine) MovReg(dst, src int) {
	if dst != src {
		m.MovRR(dst, src)
	}
}

func (m *Machine) Load(dst, slot int)  { m.LoadRBP(dst, m.slotDisp(slot)) }
func (m *Machine) Store(slot, src int) { m.StoreRBP(m.slotDisp(slot), src) }

// Binary computes dst = a op b. dst may alias a, never b.
func (m *Machine) Binary(op ir.Op, t ir.Type, dst, a, b int) {
	switch op {
	case ir.OpAdd, ir.OpSub, ir.OpAnd, ir.OpOr, ir.OpXor, ir.OpMul:
		m.MovReg(dst, a)
		switch op {
		case ir.OpAdd:
			m.AddRR(dst, b)
		case ir.OpSub:
			m.SubRR(dst, b)
		case ir.OpAnd:
			m.AndRR(dst, b)
		case ir.OpOr:
			m.OrRR(dst, b)
		case ir.OpXor:
			m.XorRR(dst, b)
		case ir.OpMul:
			m.ImulRR(dst, b)
		}
	case ir.OpDiv, ir.OpMod:
		m.divide(op, t.Signed(), dst, a, b)
	case ir.OpShl, ir.OpShr:
		m.MovReg(RCX, b)
		m.MovReg(dst, a)
		if w := t.Bits(); w > 1 {
			m.AndImm8(RCX, int8(w-1))
		}
		switch {
		case op == ir.OpShl:
			m.ShlCL(dst)
		case t.Signed():
			m.SarCL(dst)
		default:
			m.ShrCL(dst)
		}
	default:
		m.CmpRR(a, b)
		m.Setcc(condition(op, t.Signed()), dst)
		m.MovzxB(dst)
	}
}

// divide implements non-trapping division: x/0 = 0, x%0 = x and, for
// signed operands, x/-1 = -x, x%-1 = 0.
func (m *Machine) divide(op ir.Op, signed bool, dst, a, b int) {
	zero, negOne, done := m.NewLabel(), m.NewLabel(), m.NewLabel()

	m.TestRR(b, b)
	m.Jcc(ccE, zero)
	if signed {
		m.CmpImm8(b, -1)
		m.Jcc(ccE, negOne)
	}
	m.MovReg(RAX, a)
	if signed {
		m.Cqo()
		m.Idiv(b)
	} else {
		m.Xor32(RDX)
		m.Div(b)
	}
	if op == ir.OpDiv {
		m.MovReg(dst, RAX)
	} else {
		m.MovReg(dst, RDX)
	}
	m.Jmp(done)

	m.Bind(zero)
	if op == ir.OpDiv {
		m.Xor32(dst)
	} else {
		m.MovReg(dst, a)
	}
	if signed {
		m.Jmp(done)
		m.Bind(negOne)
		if op == ir.OpDiv {
			m.MovReg(dst, a)
			m.Neg(dst)
		} else {
			m.Xor32(dst)
		}
	}
	m.Bind(done)
}

func condition(op ir.Op, signed bool) byte {
	switch op {
	case ir.OpEq:
		return ccE
	case ir.OpNe:
		return ccNE
	case ir.OpLt:
		if signed {
			return ccL
		}
		return ccB
	case ir.OpLe:
		if signed {
			return ccLE
		}
		return ccBE
	case ir.OpGt:
		if signed {
			return ccG
		}
		return ccA
	default:
		if signed {
			return ccGE
		}
		return ccAE
	}
}

// Unary computes dst = op x.
func (m *Machine) Unary(op ir.Op, t ir.Type, dst, x int) {
	m.MovReg(dst, x)
	if op == ir.OpNeg {
		m.Neg(dst)
	} else {
		m.Not(dst)
	}
}

// Extend renormalizes the low bits of dst to a canonical 64-bit value.
func (m *Machine) Extend(dst int, bits int, signed bool) {
	switch {
	case bits == 32 && signed:
		m.Movsxd(dst)
	case bits == 32:
		m.Mov32(dst)
	default:
		n := byte(64 - bits)
		m.ShlImm(dst, n)
		if signed {
			m.SarImm(dst, n)
		} else {
			m.ShrImm(dst, n)
		}
	}
}

func (m *Machine) Jump(l codegen.Label) { m.Jmp(l) }

func (m *Machine) JumpIfZero(r int, l codegen.Label) {
	m.TestRR(r, r)
	m.Jcc(ccE, l)
}

func (m *Machine) JumpIfNonZero(r int, l codegen.Label) {
	m.TestRR(r, r)
	m.Jcc(ccNE, l)
}
