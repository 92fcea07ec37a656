package amd64

import (
	"encoding/binary"
	"fmt"

	"github.com/GriffinCanCode/typthon-jit/pkg/codegen"
	"github.com/pkg/errors"
)

// Register numbers as encoded in ModR/M
const (
	RAX = iota
	RCX
	RDX
	RBX
	RSP
	RBP
	RSI
	RDI
	R8
	R9
	R10
	R11
	R12
	R13
	R14
	R15
)

var regNames = [...]string{
	"rax", "rcx", "rdx", "rbx", "rsp", "rbp", "rsi", "rdi",
	"r8", "r9", "r10", "r11", "r12", "r13", "r14", "r15",
}

var regNames32 = [...]string{
	"eax", "ecx", "edx", "ebx", "esp", "ebp", "esi", "edi",
	"r8d", "r9d", "r10d", "r11d", "r12d", "r13d", "r14d", "r15d",
}

var regNames8 = [...]string{
	"al", "cl", "dl", "bl", "spl", "bpl", "sil", "dil",
	"r8b", "r9b", "r10b", "r11b", "r12b", "r13b", "r14b", "r15b",
}

// RegName returns the assembler name of a 64-bit register.
func RegName(r int) string {
	if r >= 0 && r < len(regNames) {
		return regNames[r]
	}
	return fmt.Sprintf("r?%d", r)
}

func regName32(r int) string { return regNames32[r&15] }
func regName8(r int) string  { return regNames8[r&15] }

// Condition codes (low nibble of Jcc/SETcc)
const (
	ccB  = 0x2
	ccAE = 0x3
	ccE  = 0x4
	ccNE = 0x5
	ccBE = 0x6
	ccA  = 0x7
	ccL  = 0xC
	ccGE = 0xD
	ccLE = 0xE
	ccG  = 0xF
)

var ccNames = map[byte]string{
	ccB: "b", ccAE: "ae", ccE: "e", ccNE: "ne", ccBE: "be",
	ccA: "a", ccL: "l", ccGE: "ge", ccLE: "le", ccG: "g",
}

type fixup struct {
	at    int // offset of the rel32 field
	label codegen.Label
}

// Asm is an x86-64 assembler with forward labels and a listing.
type Asm struct {
	code    []byte
	listing []string
	labels  []int
	fixups  []fixup
}

func (a *Asm) emit(text string, bs ...byte) {
	a.listing = append(a.listing, fmt.Sprintf("%04x  %-24x  %s", len(a.code), bs, text))
	a.code = append(a.code, bs...)
}

// Len returns the number of bytes emitted so far.
func (a *Asm) Len() int { return len(a.code) }

// rexRR computes the REX.W prefix for a reg-reg operation.
func rexRR(reg, rm int) byte {
	rex := byte(0x48)
	if reg >= 8 {
		rex |= 0x04 // REX.R
	}
	if rm >= 8 {
		rex |= 0x01 // REX.B
	}
	return rex
}

// rexB computes the REX.W prefix for a single r/m register.
func rexB(rm int) byte {
	return rexRR(0, rm)
}

// modrmRR builds the ModR/M byte for register-direct addressing (mod=11).
func modrmRR(reg, rm int) byte {
	return byte(0xc0 | ((reg & 7) << 3) | (rm & 7))
}

// PushRBP emits push rbp.
func (a *Asm) PushRBP() { a.emit("push rbp", 0x55) }

// PopRBP emits pop rbp.
func (a *Asm) PopRBP() { a.emit("pop rbp", 0x5d) }

// Ret emits ret.
func (a *Asm) Ret() { a.emit("ret", 0xc3) }

// MovRR emits mov dst, src.
func (a *Asm) MovRR(dst, src int) {
	a.emit(fmt.Sprintf("mov %s, %s", RegName(dst), RegName(src)), rexRR(src, dst), 0x89, modrmRR(src, dst))
}

// aluRR emits a two-operand ALU op in the r/m, reg form.
func (a *Asm) aluRR(name string, opcode byte, dst, src int) {
	a.emit(fmt.Sprintf("%s %s, %s", name, RegName(dst), RegName(src)), rexRR(src, dst), opcode, modrmRR(src, dst))
}

func (a *Asm) AddRR(dst, src int) { a.aluRR("add", 0x01, dst, src) }
func (a *Asm) SubRR(dst, src int) { a.aluRR("sub", 0x29, dst, src) }
func (a *Asm) AndRR(dst, src int) { a.aluRR("and", 0x21, dst, src) }
func (a *Asm) OrRR(dst, src int)  { a.aluRR("or", 0x09, dst, src) }
func (a *Asm) XorRR(dst, src int) { a.aluRR("xor", 0x31, dst, src) }
func (a *Asm) CmpRR(x, y int)     { a.aluRR("cmp", 0x39, x, y) }
func (a *Asm) TestRR(x, y int)    { a.aluRR("test", 0x85, x, y) }

// ImulRR emits imul dst, src.
func (a *Asm) ImulRR(dst, src int) {
	a.emit(fmt.Sprintf("imul %s, %s", RegName(dst), RegName(src)), rexRR(dst, src), 0x0f, 0xaf, modrmRR(dst, src))
}

// group3 emits F7 /ext on reg (not, neg, div, idiv).
func (a *Asm) group3(name string, ext, reg int) {
	a.emit(fmt.Sprintf("%s %s", name, RegName(reg)), rexB(reg), 0xf7, modrmRR(ext, reg))
}

func (a *Asm) Not(reg int)  { a.group3("not", 2, reg) }
func (a *Asm) Neg(reg int)  { a.group3("neg", 3, reg) }
func (a *Asm) Div(reg int)  { a.group3("div", 6, reg) }
func (a *Asm) Idiv(reg int) { a.group3("idiv", 7, reg) }

// Cqo sign-extends rax into rdx:rax.
func (a *Asm) Cqo() { a.emit("cqo", 0x48, 0x99) }

// shiftCL emits D3 /ext reg (shl 4, shr 5, sar 7).
func (a *Asm) shiftCL(name string, ext, reg int) {
	a.emit(fmt.Sprintf("%s %s, cl", name, RegName(reg)), rexB(reg), 0xd3, modrmRR(ext, reg))
}

func (a *Asm) ShlCL(reg int) { a.shiftCL("shl", 4, reg) }
func (a *Asm) ShrCL(reg int) { a.shiftCL("shr", 5, reg) }
func (a *Asm) SarCL(reg int) { a.shiftCL("sar", 7, reg) }

// shiftImm emits C1 /ext reg, imm8.
func (a *Asm) shiftImm(name string, ext, reg int, n byte) {
	a.emit(fmt.Sprintf("%s %s, %d", name, RegName(reg), n), rexB(reg), 0xc1, modrmRR(ext, reg), n)
}

func (a *Asm) ShlImm(reg int, n byte) { a.shiftImm("shl", 4, reg, n) }
func (a *Asm) ShrImm(reg int, n byte) { a.shiftImm("shr", 5, reg, n) }
func (a *Asm) SarImm(reg int, n byte) { a.shiftImm("sar", 7, reg, n) }

// group1Imm8 emits 83 /ext reg, imm8 (sign-extended).
func (a *Asm) group1Imm8(name string, ext, reg int, v int8) {
	a.emit(fmt.Sprintf("%s %s, %d", name, RegName(reg), v), rexB(reg), 0x83, modrmRR(ext, reg), byte(v))
}

func (a *Asm) AndImm8(reg int, v int8) { a.group1Imm8("and", 4, reg, v) }
func (a *Asm) CmpImm8(reg int, v int8) { a.group1Imm8("cmp", 7, reg, v) }

// SubImm32 emits sub reg, imm32.
func (a *Asm) SubImm32(reg int, v int32) {
	bs := []byte{rexB(reg), 0x81, modrmRR(5, reg)}
	bs = binary.LittleEndian.AppendUint32(bs, uint32(v))
	a.emit(fmt.Sprintf("sub %s, %d", RegName(reg), v), bs...)
}

// MovImm loads an immediate using the shortest encoding.
func (a *Asm) MovImm(reg int, v int64) {
	switch {
	case v == 0:
		a.Xor32(reg)
	case v >= -1<<31 && v < 1<<31:
		bs := []byte{rexB(reg), 0xc7, modrmRR(0, reg)}
		bs = binary.LittleEndian.AppendUint32(bs, uint32(int32(v)))
		a.emit(fmt.Sprintf("mov %s, %d", RegName(reg), v), bs...)
	default:
		bs := []byte{rexB(reg), byte(0xb8 + reg&7)}
		bs = binary.LittleEndian.AppendUint64(bs, uint64(v))
		a.emit(fmt.Sprintf("movabs %s, %d", RegName(reg), v), bs...)
	}
}

// Xor32 zeroes reg with xor r32, r32.
func (a *Asm) Xor32(reg int) {
	text := fmt.Sprintf("xor %s, %s", regName32(reg), regName32(reg))
	if reg >= 8 {
		a.emit(text, 0x45, 0x31, modrmRR(reg, reg))
		return
	}
	a.emit(text, 0x31, modrmRR(reg, reg))
}

// Mov32 copies the low 32 bits of reg onto itself, clearing the upper half.
func (a *Asm) Mov32(reg int) {
	text := fmt.Sprintf("mov %s, %s", regName32(reg), regName32(reg))
	if reg >= 8 {
		a.emit(text, 0x45, 0x89, modrmRR(reg, reg))
		return
	}
	a.emit(text, 0x89, modrmRR(reg, reg))
}

// Movsxd sign-extends the low 32 bits of reg.
func (a *Asm) Movsxd(reg int) {
	a.emit(fmt.Sprintf("movsxd %s, %s", RegName(reg), regName32(reg)), rexRR(reg, reg), 0x63, modrmRR(reg, reg))
}

// Setcc sets the low byte of reg from a condition. A REX prefix is always
// present so that rsi/rdi encode as sil/dil rather than dh/bh.
func (a *Asm) Setcc(cc byte, reg int) {
	rex := byte(0x40)
	if reg >= 8 {
		rex |= 0x01
	}
	a.emit(fmt.Sprintf("set%s %s", ccNames[cc], regName8(reg)), rex, 0x0f, 0x90|cc, modrmRR(0, reg))
}

// MovzxB zero-extends the low byte of reg into the full register.
func (a *Asm) MovzxB(reg int) {
	rex := byte(0x40)
	if reg >= 8 {
		rex |= 0x05 // REX.R + REX.B
	}
	a.emit(fmt.Sprintf("movzx %s, %s", regName32(reg), regName8(reg)), rex, 0x0f, 0xb6, modrmRR(reg, reg))
}

// frame emits mov with an [rbp+disp] operand.
func (a *Asm) frame(name string, opcode byte, reg, disp int) {
	rex := byte(0x48)
	if reg >= 8 {
		rex |= 0x04
	}
	var text string
	if opcode == 0x8b {
		text = fmt.Sprintf("%s %s, [rbp%+d]", name, RegName(reg), disp)
	} else {
		text = fmt.Sprintf("%s [rbp%+d], %s", name, disp, RegName(reg))
	}
	if disp >= -128 && disp <= 127 {
		a.emit(text, rex, opcode, byte(0x45|(reg&7)<<3), byte(int8(disp)))
		return
	}
	bs := []byte{rex, opcode, byte(0x85 | (reg&7)<<3)}
	bs = binary.LittleEndian.AppendUint32(bs, uint32(int32(disp)))
	a.emit(text, bs...)
}

// LoadRBP emits mov reg, [rbp+disp].
func (a *Asm) LoadRBP(reg, disp int) { a.frame("mov", 0x8b, reg, disp) }

// StoreRBP emits mov [rbp+disp], reg.
func (a *Asm) StoreRBP(disp, reg int) { a.frame("mov", 0x89, reg, disp) }

// NewLabel allocates an unbound label.
func (a *Asm) NewLabel() codegen.Label {
	a.labels = append(a.labels, -1)
	return codegen.Label(len(a.labels) - 1)
}

// Bind binds l to the current position.
func (a *Asm) Bind(l codegen.Label) {
	a.labels[l] = len(a.code)
	a.listing = append(a.listing, fmt.Sprintf("L%d:", l))
}

// Jmp emits jmp rel32 to l.
func (a *Asm) Jmp(l codegen.Label) {
	a.emit(fmt.Sprintf("jmp L%d", l), 0xe9, 0, 0, 0, 0)
	a.fixups = append(a.fixups, fixup{at: len(a.code) - 4, label: l})
}

// Jcc emits a conditional jump rel32 to l.
func (a *Asm) Jcc(cc byte, l codegen.Label) {
	a.emit(fmt.Sprintf("j%s L%d", ccNames[cc], l), 0x0f, 0x80|cc, 0, 0, 0, 0)
	a.fixups = append(a.fixups, fixup{at: len(a.code) - 4, label: l})
}

// Finish patches branch displacements.
func (a *Asm) Finish() ([]byte, []string, error) {
	for _, f := range a.fixups {
		target := a.labels[f.label]
		if target < 0 {
			return nil, nil, errors.Errorf("amd64: label L%d never bound", f.label)
		}
		rel := int32(target - (f.at + 4))
		binary.LittleEndian.PutUint32(a.code[f.at:], uint32(rel))
	}
	return a.code, a.listing, nil
}
