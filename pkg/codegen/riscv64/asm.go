package riscv64

import (
	"encoding/binary"
	"fmt"
	"math/bits"

	"github.com/GriffinCanCode/typthon-jit/pkg/codegen"
	"github.com/pkg/errors"
)

// Integer register numbers
const (
	ZERO = iota
	RA
	SP
	GP
	TP
	T0
	T1
	T2
	S0 // frame pointer
	S1
	A0
	A1
	A2
	A3
	A4
	A5
	A6
	A7
	S2
	S3
	S4
	S5
	S6
	S7
	S8
	S9
	S10
	S11
	T3
	T4
	T5
	T6
)

var regNames = [...]string{
	"zero", "ra", "sp", "gp", "tp", "t0", "t1", "t2",
	"s0", "s1", "a0", "a1", "a2", "a3", "a4", "a5",
	"a6", "a7", "s2", "s3", "s4", "s5", "s6", "s7",
	"s8", "s9", "s10", "s11", "t3", "t4", "t5", "t6",
}

// RegName returns the ABI name of r.
func RegName(r int) string {
	if r >= 0 && r < len(regNames) {
		return regNames[r]
	}
	return fmt.Sprintf("x?%d", r)
}

// Opcodes
const (
	opLoad   = 0x03
	opOpImm  = 0x13
	opOpImmW = 0x1b
	opStore  = 0x23
	opOp     = 0x33
	opLUI    = 0x37
	opBranch = 0x63
	opJALR   = 0x67
	opJAL    = 0x6f
)

type fixup struct {
	at    int
	label codegen.Label
}

type entry struct {
	offset int
	text   string
	label  codegen.Label
}

// Asm is an RV64IM assembler. Conditional branches to labels are emitted
// as an inverted branch over a jal, so every label is reachable within
// +-1MiB regardless of function size.
type Asm struct {
	code    []byte
	entries []entry
	labels  []int
	fixups  []fixup
}

func (a *Asm) emit(text string, word uint32) {
	a.entries = append(a.entries, entry{offset: len(a.code), text: text, label: -1})
	a.code = binary.LittleEndian.AppendUint32(a.code, word)
}

// Len returns the number of bytes emitted so far.
func (a *Asm) Len() int { return len(a.code) }

func rtype(f7, f3 uint32, rd, rs1, rs2 int) uint32 {
	return f7<<25 | uint32(rs2&31)<<20 | uint32(rs1&31)<<15 | f3<<12 | uint32(rd&31)<<7 | opOp
}

func itype(op, f3 uint32, rd, rs1 int, imm int32) uint32 {
	return uint32(imm&0xfff)<<20 | uint32(rs1&31)<<15 | f3<<12 | uint32(rd&31)<<7 | op
}

func stype(f3 uint32, rs1, rs2 int, imm int32) uint32 {
	u := uint32(imm & 0xfff)
	return (u>>5)<<25 | uint32(rs2&31)<<20 | uint32(rs1&31)<<15 | f3<<12 | (u&0x1f)<<7 | opStore
}

func btype(f3 uint32, rs1, rs2 int, imm int32) uint32 {
	u := uint32(imm)
	return (u>>12&1)<<31 | (u>>5&0x3f)<<25 | uint32(rs2&31)<<20 | uint32(rs1&31)<<15 |
		f3<<12 | (u>>1&0xf)<<8 | (u>>11&1)<<7 | opBranch
}

func jtype(rd int, imm int32) uint32 {
	u := uint32(imm)
	return (u>>20&1)<<31 | (u>>1&0x3ff)<<21 | (u>>11&1)<<20 | (u>>12&0xff)<<12 | uint32(rd&31)<<7 | opJAL
}

func (a *Asm) r(name string, f7, f3 uint32, rd, rs1, rs2 int) {
	a.emit(fmt.Sprintf("%s %s, %s, %s", name, RegName(rd), RegName(rs1), RegName(rs2)), rtype(f7, f3, rd, rs1, rs2))
}

// Register-register operations
func (a *Asm) Add(rd, rs1, rs2 int)  { a.r("add", 0x00, 0, rd, rs1, rs2) }
func (a *Asm) Sub(rd, rs1, rs2 int)  { a.r("sub", 0x20, 0, rd, rs1, rs2) }
func (a *Asm) Sll(rd, rs1, rs2 int)  { a.r("sll", 0x00, 1, rd, rs1, rs2) }
func (a *Asm) Slt(rd, rs1, rs2 int)  { a.r("slt", 0x00, 2, rd, rs1, rs2) }
func (a *Asm) Sltu(rd, rs1, rs2 int) { a.r("sltu", 0x00, 3, rd, rs1, rs2) }
func (a *Asm) Xor(rd, rs1, rs2 int)  { a.r("xor", 0x00, 4, rd, rs1, rs2) }
func (a *Asm) Srl(rd, rs1, rs2 int)  { a.r("srl", 0x00, 5, rd, rs1, rs2) }
func (a *Asm) Sra(rd, rs1, rs2 int)  { a.r("sra", 0x20, 5, rd, rs1, rs2) }
func (a *Asm) Or(rd, rs1, rs2 int)   { a.r("or", 0x00, 6, rd, rs1, rs2) }
func (a *Asm) And(rd, rs1, rs2 int)  { a.r("and", 0x00, 7, rd, rs1, rs2) }

// M extension
func (a *Asm) Mul(rd, rs1, rs2 int)  { a.r("mul", 0x01, 0, rd, rs1, rs2) }
func (a *Asm) Div(rd, rs1, rs2 int)  { a.r("div", 0x01, 4, rd, rs1, rs2) }
func (a *Asm) Divu(rd, rs1, rs2 int) { a.r("divu", 0x01, 5, rd, rs1, rs2) }
func (a *Asm) Rem(rd, rs1, rs2 int)  { a.r("rem", 0x01, 6, rd, rs1, rs2) }
func (a *Asm) Remu(rd, rs1, rs2 int) { a.r("remu", 0x01, 7, rd, rs1, rs2) }

func (a *Asm) i(name string, op, f3 uint32, rd, rs1 int, imm int32) {
	a.emit(fmt.Sprintf("%s %s, %s, %d", name, RegName(rd), RegName(rs1), imm), itype(op, f3, rd, rs1, imm))
}

// Immediate operations; imm must fit in 12 signed bits
func (a *Asm) Addi(rd, rs1 int, imm int32)  { a.i("addi", opOpImm, 0, rd, rs1, imm) }
func (a *Asm) Sltiu(rd, rs1 int, imm int32) { a.i("sltiu", opOpImm, 3, rd, rs1, imm) }
func (a *Asm) Xori(rd, rs1 int, imm int32)  { a.i("xori", opOpImm, 4, rd, rs1, imm) }
func (a *Asm) Andi(rd, rs1 int, imm int32)  { a.i("andi", opOpImm, 7, rd, rs1, imm) }
func (a *Asm) Addiw(rd, rs1 int, imm int32) { a.i("addiw", opOpImmW, 0, rd, rs1, imm) }

// Shifts by a 6-bit immediate
func (a *Asm) Slli(rd, rs1 int, sh uint32) {
	a.emit(fmt.Sprintf("slli %s, %s, %d", RegName(rd), RegName(rs1), sh), itype(opOpImm, 1, rd, rs1, int32(sh&63)))
}

func (a *Asm) Srli(rd, rs1 int, sh uint32) {
	a.emit(fmt.Sprintf("srli %s, %s, %d", RegName(rd), RegName(rs1), sh), itype(opOpImm, 5, rd, rs1, int32(sh&63)))
}

func (a *Asm) Srai(rd, rs1 int, sh uint32) {
	a.emit(fmt.Sprintf("srai %s, %s, %d", RegName(rd), RegName(rs1), sh), itype(opOpImm, 5, rd, rs1, int32(0x400|sh&63)))
}

// Lui loads imm20 into bits 31:12, sign-extended.
func (a *Asm) Lui(rd int, imm20 uint32) {
	a.emit(fmt.Sprintf("lui %s, %#x", RegName(rd), imm20&0xfffff), (imm20&0xfffff)<<12|uint32(rd&31)<<7|opLUI)
}

// Mv emits mv rd, rs (addi rd, rs, 0).
func (a *Asm) Mv(rd, rs int) {
	a.emit(fmt.Sprintf("mv %s, %s", RegName(rd), RegName(rs)), itype(opOpImm, 0, rd, rs, 0))
}

// Ld emits ld rd, off(rs1).
func (a *Asm) Ld(rd, rs1 int, off int32) {
	a.emit(fmt.Sprintf("ld %s, %d(%s)", RegName(rd), off, RegName(rs1)), itype(opLoad, 3, rd, rs1, off))
}

// Sd emits sd rs2, off(rs1).
func (a *Asm) Sd(rs2, rs1 int, off int32) {
	a.emit(fmt.Sprintf("sd %s, %d(%s)", RegName(rs2), off, RegName(rs1)), stype(3, rs1, rs2, off))
}

// Ret emits ret (jalr zero, 0(ra)).
func (a *Asm) Ret() { a.emit("ret", itype(opJALR, 0, ZERO, RA, 0)) }

// Li loads a 64-bit constant. Values outside 32 bits are built from a
// shorter constant shifted left plus a 12-bit tail.
func (a *Asm) Li(rd int, v int64) {
	if v == int64(int32(v)) {
		lo := sext12(v)
		hi := (v - lo) >> 12
		if hi == 0 {
			a.Addi(rd, ZERO, int32(lo))
			return
		}
		a.Lui(rd, uint32(hi))
		if lo != 0 {
			a.Addiw(rd, rd, int32(lo))
		}
		return
	}
	lo := sext12(v)
	hi := (v - lo) >> 12
	shift := 12 + bits.TrailingZeros64(uint64(hi))
	hi >>= uint(shift - 12)
	a.Li(rd, hi)
	a.Slli(rd, rd, uint32(shift))
	if lo != 0 {
		a.Addi(rd, rd, int32(lo))
	}
}

func sext12(v int64) int64 { return (v << 52) >> 52 }

// NewLabel allocates an unbound label.
func (a *Asm) NewLabel() codegen.Label {
	a.labels = append(a.labels, -1)
	return codegen.Label(len(a.labels) - 1)
}

// Bind binds l to the current position.
func (a *Asm) Bind(l codegen.Label) {
	a.labels[l] = len(a.code)
	a.entries = append(a.entries, entry{offset: len(a.code), label: l})
}

// J emits jal zero, l.
func (a *Asm) J(l codegen.Label) {
	a.fixups = append(a.fixups, fixup{at: len(a.code), label: l})
	a.emit(fmt.Sprintf("j L%d", l), jtype(ZERO, 0))
}

// Beqz branches to l when rs is zero.
func (a *Asm) Beqz(rs int, l codegen.Label) {
	a.emit(fmt.Sprintf("bnez %s, .+8", RegName(rs)), btype(1, rs, ZERO, 8))
	a.J(l)
}

// Bnez branches to l when rs is non-zero.
func (a *Asm) Bnez(rs int, l codegen.Label) {
	a.emit(fmt.Sprintf("beqz %s, .+8", RegName(rs)), btype(0, rs, ZERO, 8))
	a.J(l)
}

// Finish patches jump offsets and renders the listing.
func (a *Asm) Finish() ([]byte, []string, error) {
	for _, f := range a.fixups {
		target := a.labels[f.label]
		if target < 0 {
			return nil, nil, errors.Errorf("riscv64: label L%d never bound", f.label)
		}
		delta := target - f.at
		if delta < -(1<<20) || delta >= 1<<20 {
			return nil, nil, errors.Errorf("riscv64: jump to L%d out of range", f.label)
		}
		binary.LittleEndian.PutUint32(a.code[f.at:], jtype(ZERO, int32(delta)))
	}

	listing := make([]string, 0, len(a.entries))
	for _, e := range a.entries {
		if e.label >= 0 {
			listing = append(listing, fmt.Sprintf("L%d:", e.label))
			continue
		}
		word := binary.LittleEndian.Uint32(a.code[e.offset:])
		listing = append(listing, fmt.Sprintf("%04x  %08x  %s", e.offset, word, e.text))
	}
	return a.code, listing, nil
}
