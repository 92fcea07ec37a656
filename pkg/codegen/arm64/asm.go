package arm64

import (
	"encoding/binary"
	"fmt"

	"github.com/GriffinCanCode/typthon-jit/pkg/codegen"
	"github.com/pkg/errors"
)

// General-purpose register numbers. Register 31 is SP or XZR depending on
// the instruction.
const (
	X0 = iota
	X1
	X2
	X3
	X4
	X5
	X6
	X7
	X8
	X9
	X10
	X11
	X12
	X13
	X14
	X15
	X16
	X17
	X18
	X19
	X20
	X21
	X22
	X23
	X24
	X25
	X26
	X27
	X28
	X29 // frame pointer
	X30 // link register
	SP
)

// XZR is the zero register, encoded like SP.
const XZR = SP

// RegName returns the assembler name of r, treating 31 as sp.
func RegName(r int) string {
	if r == SP {
		return "sp"
	}
	return fmt.Sprintf("x%d", r)
}

// zrName names r treating 31 as the zero register.
func zrName(r int) string {
	if r == XZR {
		return "xzr"
	}
	return fmt.Sprintf("x%d", r)
}

// Condition codes
const (
	condEQ = 0x0
	condNE = 0x1
	condHS = 0x2
	condLO = 0x3
	condHI = 0x8
	condLS = 0x9
	condGE = 0xa
	condLT = 0xb
	condGT = 0xc
	condLE = 0xd
)

var condNames = map[uint32]string{
	condEQ: "eq", condNE: "ne", condHS: "hs", condLO: "lo", condHI: "hi",
	condLS: "ls", condGE: "ge", condLT: "lt", condGT: "gt", condLE: "le",
}

type fixupKind int

const (
	fixB     fixupKind = iota // imm26 at bit 0
	fixImm19                  // imm19 at bit 5 (b.cond, cbz, cbnz)
)

type fixup struct {
	at    int
	label codegen.Label
	kind  fixupKind
}

// entry is one listing line: an instruction, or a label when label >= 0.
type entry struct {
	offset int
	text   string
	label  codegen.Label
}

// Asm is an AArch64 assembler. Every instruction is one little-endian
// word; the listing is rendered in Finish so it shows patched branches.
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

func rrr(base uint32, rd, rn, rm int) uint32 {
	return base | uint32(rm&31)<<16 | uint32(rn&31)<<5 | uint32(rd&31)
}

func (a *Asm) three(name string, base uint32, rd, rn, rm int) {
	a.emit(fmt.Sprintf("%s %s, %s, %s", name, zrName(rd), zrName(rn), zrName(rm)), rrr(base, rd, rn, rm))
}

// Data processing (register)
func (a *Asm) Add(rd, rn, rm int)  { a.three("add", 0x8b000000, rd, rn, rm) }
func (a *Asm) Sub(rd, rn, rm int)  { a.three("sub", 0xcb000000, rd, rn, rm) }
func (a *Asm) And(rd, rn, rm int)  { a.three("and", 0x8a000000, rd, rn, rm) }
func (a *Asm) Orr(rd, rn, rm int)  { a.three("orr", 0xaa000000, rd, rn, rm) }
func (a *Asm) Eor(rd, rn, rm int)  { a.three("eor", 0xca000000, rd, rn, rm) }
func (a *Asm) Mul(rd, rn, rm int)  { a.three("mul", 0x9b007c00, rd, rn, rm) }
func (a *Asm) Sdiv(rd, rn, rm int) { a.three("sdiv", 0x9ac00c00, rd, rn, rm) }
func (a *Asm) Udiv(rd, rn, rm int) { a.three("udiv", 0x9ac00800, rd, rn, rm) }
func (a *Asm) Lslv(rd, rn, rm int) { a.three("lsl", 0x9ac02000, rd, rn, rm) }
func (a *Asm) Lsrv(rd, rn, rm int) { a.three("lsr", 0x9ac02400, rd, rn, rm) }
func (a *Asm) Asrv(rd, rn, rm int) { a.three("asr", 0x9ac02800, rd, rn, rm) }

// Msub emits msub rd, rn, rm, ra: rd = ra - rn*rm.
func (a *Asm) Msub(rd, rn, rm, ra int) {
	a.emit(fmt.Sprintf("msub %s, %s, %s, %s", zrName(rd), zrName(rn), zrName(rm), zrName(ra)),
		rrr(0x9b008000, rd, rn, rm)|uint32(ra&31)<<10)
}

// MovRR emits mov rd, rm (orr rd, xzr, rm).
func (a *Asm) MovRR(rd, rm int) {
	a.emit(fmt.Sprintf("mov %s, %s", zrName(rd), zrName(rm)), rrr(0xaa0003e0, rd, 0, rm))
}

// Neg emits neg rd, rm (sub rd, xzr, rm).
func (a *Asm) Neg(rd, rm int) {
	a.emit(fmt.Sprintf("neg %s, %s", zrName(rd), zrName(rm)), rrr(0xcb0003e0, rd, 0, rm))
}

// Mvn emits mvn rd, rm (orn rd, xzr, rm).
func (a *Asm) Mvn(rd, rm int) {
	a.emit(fmt.Sprintf("mvn %s, %s", zrName(rd), zrName(rm)), rrr(0xaa2003e0, rd, 0, rm))
}

// Cmp emits cmp rn, rm (subs xzr, rn, rm).
func (a *Asm) Cmp(rn, rm int) {
	a.emit(fmt.Sprintf("cmp %s, %s", zrName(rn), zrName(rm)), rrr(0xeb00001f, 0, rn, rm))
}

// Cset emits cset rd, cond (csinc rd, xzr, xzr, !cond).
func (a *Asm) Cset(rd int, cond uint32) {
	a.emit(fmt.Sprintf("cset %s, %s", zrName(rd), condNames[cond]), 0x9a9f07e0|(cond^1)<<12|uint32(rd&31))
}

// bitfield encodes sbfm/ubfm.
func (a *Asm) bitfield(name string, base uint32, rd, rn int, immr, imms uint32) {
	a.emit(name, base|immr<<16|imms<<10|uint32(rn&31)<<5|uint32(rd&31))
}

// Sext sign-extends the low bits of rn into rd.
func (a *Asm) Sext(rd, rn, bits int) {
	a.bitfield(fmt.Sprintf("sbfx %s, %s, #0, #%d", zrName(rd), zrName(rn), bits), 0x93400000, rd, rn, 0, uint32(bits-1))
}

// Zext zero-extends the low bits of rn into rd.
func (a *Asm) Zext(rd, rn, bits int) {
	a.bitfield(fmt.Sprintf("ubfx %s, %s, #0, #%d", zrName(rd), zrName(rn), bits), 0xd3400000, rd, rn, 0, uint32(bits-1))
}

// AddImm emits add rd, rn, #imm with rd and rn naming sp for 31.
func (a *Asm) AddImm(rd, rn int, imm uint32) {
	text := fmt.Sprintf("add %s, %s, #%d", RegName(rd), RegName(rn), imm)
	if imm == 0 && (rd == SP || rn == SP) {
		text = fmt.Sprintf("mov %s, %s", RegName(rd), RegName(rn))
	}
	a.emit(text, 0x91000000|(imm&0xfff)<<10|uint32(rn&31)<<5|uint32(rd&31))
}

// SubImm emits sub rd, rn, #imm with rd and rn naming sp for 31.
func (a *Asm) SubImm(rd, rn int, imm uint32) {
	a.emit(fmt.Sprintf("sub %s, %s, #%d", RegName(rd), RegName(rn), imm),
		0xd1000000|(imm&0xfff)<<10|uint32(rn&31)<<5|uint32(rd&31))
}

// wide emits movz, movn or movk with a 16-bit chunk at hw*16.
func (a *Asm) wide(name string, base uint32, rd int, imm uint16, hw uint32) {
	text := fmt.Sprintf("%s %s, #%#x", name, zrName(rd), imm)
	if hw > 0 {
		text += fmt.Sprintf(", lsl #%d", hw*16)
	}
	a.emit(text, base|hw<<21|uint32(imm)<<5|uint32(rd&31))
}

// MovImm loads a 64-bit constant with the shortest movz/movn/movk sequence.
func (a *Asm) MovImm(rd int, v int64) {
	u := uint64(v)
	var zeros, ones int
	for i := uint32(0); i < 4; i++ {
		switch uint16(u >> (16 * i)) {
		case 0:
			zeros++
		case 0xffff:
			ones++
		}
	}

	skip, first, firstBase := uint16(0), "movz", uint32(0xd2800000)
	if ones > zeros {
		skip, first, firstBase = 0xffff, "movn", 0x92800000
	}
	started := false
	for i := uint32(0); i < 4; i++ {
		c := uint16(u >> (16 * i))
		if c == skip {
			continue
		}
		if !started {
			imm := c
			if skip == 0xffff {
				imm = ^c
			}
			a.wide(first, firstBase, rd, imm, i)
			started = true
			continue
		}
		a.wide("movk", 0xf2800000, rd, c, i)
	}
	if !started {
		a.wide(first, firstBase, rd, 0, 0)
	}
}

// LoadSP emits ldr rt, [sp, #off]; off is a multiple of 8.
func (a *Asm) LoadSP(rt, off int) {
	a.emit(fmt.Sprintf("ldr %s, [sp, #%d]", zrName(rt), off), 0xf9400000|uint32(off/8)<<10|uint32(SP)<<5|uint32(rt&31))
}

// StoreSP emits str rt, [sp, #off]; off is a multiple of 8.
func (a *Asm) StoreSP(off, rt int) {
	a.emit(fmt.Sprintf("str %s, [sp, #%d]", zrName(rt), off), 0xf9000000|uint32(off/8)<<10|uint32(SP)<<5|uint32(rt&31))
}

// PushFrame emits stp x29, x30, [sp, #-16]!.
func (a *Asm) PushFrame() { a.emit("stp x29, x30, [sp, #-16]!", 0xa9bf7bfd) }

// PopFrame emits ldp x29, x30, [sp], #16.
func (a *Asm) PopFrame() { a.emit("ldp x29, x30, [sp], #16", 0xa8c17bfd) }

// Ret emits ret.
func (a *Asm) Ret() { a.emit("ret", 0xd65f03c0) }

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

func (a *Asm) branch(text string, word uint32, l codegen.Label, kind fixupKind) {
	a.fixups = append(a.fixups, fixup{at: len(a.code), label: l, kind: kind})
	a.emit(text, word)
}

// B emits an unconditional branch to l.
func (a *Asm) B(l codegen.Label) { a.branch(fmt.Sprintf("b L%d", l), 0x14000000, l, fixB) }

// Bcond emits b.cond to l.
func (a *Asm) Bcond(cond uint32, l codegen.Label) {
	a.branch(fmt.Sprintf("b.%s L%d", condNames[cond], l), 0x54000000|cond, l, fixImm19)
}

// Cbz emits cbz rt, l.
func (a *Asm) Cbz(rt int, l codegen.Label) {
	a.branch(fmt.Sprintf("cbz %s, L%d", zrName(rt), l), 0xb4000000|uint32(rt&31), l, fixImm19)
}

// Cbnz emits cbnz rt, l.
func (a *Asm) Cbnz(rt int, l codegen.Label) {
	a.branch(fmt.Sprintf("cbnz %s, L%d", zrName(rt), l), 0xb5000000|uint32(rt&31), l, fixImm19)
}

// Finish patches branch offsets and renders the listing.
func (a *Asm) Finish() ([]byte, []string, error) {
	for _, f := range a.fixups {
		target := a.labels[f.label]
		if target < 0 {
			return nil, nil, errors.Errorf("arm64: label L%d never bound", f.label)
		}
		delta := int32(target-f.at) / 4
		word := binary.LittleEndian.Uint32(a.code[f.at:])
		switch f.kind {
		case fixB:
			word |= uint32(delta) & 0x3ffffff
		case fixImm19:
			if delta < -(1<<18) || delta >= 1<<18 {
				return nil, nil, errors.Errorf("arm64: branch to L%d out of range", f.label)
			}
			word |= (uint32(delta) & 0x7ffff) << 5
		}
		binary.LittleEndian.PutUint32(a.code[f.at:], word)
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
