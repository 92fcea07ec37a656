// Package arm64 - Machine code validation and correctness verification
package arm64

import (
	"encoding/binary"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/GriffinCanCode/typthon-jit/pkg/codegen"
	"github.com/GriffinCanCode/typthon-jit/pkg/logger"
	"github.com/pkg/errors"
)

// ValidationError represents a machine code validation error
type ValidationError struct {
	Offset  int
	Message string
	Code    string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("offset %#04x: %s\n  %s", e.Offset, e.Message, e.Code)
}

// Validator validates generated AArch64 machine code against its listing
type Validator struct {
	errors []ValidationError
	warns  []ValidationError
}

// NewValidator creates a new machine code validator
func NewValidator() *Validator {
	return &Validator{
		errors: make([]ValidationError, 0),
		warns:  make([]ValidationError, 0),
	}
}

type instLine struct {
	offset int
	word   uint32
	text   string
}

var (
	prologue = []string{"stp x29, x30, [sp, #-16]!", "mov x29, sp"}
	teardown = []string{"mov sp, x29", "ldp x29, x30, [sp], #16", "ret"}

	// Only SP-relative slots and the FP/LR pair are ever addressed
	slotAddr = regexp.MustCompile(`^\[sp, #([0-9]+)\]$`)
)

// Validate performs comprehensive validation on an object
func (v *Validator) Validate(obj *codegen.Object) error {
	if len(obj.Code)%4 != 0 {
		return errors.Errorf("arm64: code size %d is not a multiple of 4", len(obj.Code))
	}
	lines, err := parseListing(obj.Listing)
	if err != nil {
		return err
	}

	v.validateLayout(obj, lines)
	v.validateInstructionValidity(lines)
	v.validateFrame(obj, lines)
	v.validateMemoryAddressing(obj, lines)
	v.validateReservedRegisters(lines)
	v.validateStackBalance(lines)
	v.validateBranchTargets(obj, lines)
	v.detectRedundantMoves(lines)

	if len(v.errors) > 0 {
		return v.formatErrors()
	}
	if len(v.warns) > 0 {
		v.logWarnings()
	}
	return nil
}

func parseListing(listing []string) ([]instLine, error) {
	var lines []instLine
	for _, raw := range listing {
		fields := strings.Fields(raw)
		if len(fields) == 1 && strings.HasSuffix(fields[0], ":") {
			continue
		}
		if len(fields) < 3 {
			return nil, errors.Errorf("malformed listing line %q", raw)
		}
		off, err := strconv.ParseInt(fields[0], 16, 64)
		if err != nil {
			return nil, errors.Wrapf(err, "listing offset in %q", raw)
		}
		word, err := strconv.ParseUint(fields[1], 16, 32)
		if err != nil {
			return nil, errors.Wrapf(err, "listing word in %q", raw)
		}
		lines = append(lines, instLine{offset: int(off), word: uint32(word), text: strings.Join(fields[2:], " ")})
	}
	return lines, nil
}

// validateLayout checks that the listing covers every word of the code
func (v *Validator) validateLayout(obj *codegen.Object, lines []instLine) {
	pos := 0
	for _, l := range lines {
		if l.offset != pos {
			v.addError(l.offset, fmt.Sprintf("listing gap: expected offset %#x", pos), l.text)
		}
		if l.offset+4 > len(obj.Code) {
			v.addError(l.offset, "instruction runs past end of code", l.text)
			return
		}
		if got := binary.LittleEndian.Uint32(obj.Code[l.offset:]); got != l.word {
			v.addError(l.offset, fmt.Sprintf("listing word %08x differs from code %08x", l.word, got), l.text)
		}
		pos = l.offset + 4
	}
	if pos != len(obj.Code) {
		v.addError(pos, fmt.Sprintf("listing covers %d of %d bytes", pos, len(obj.Code)), "")
	}
}

// validateInstructionValidity checks mnemonics against what the assembler emits
func (v *Validator) validateInstructionValidity(lines []instLine) {
	valid := map[string]bool{
		"mov": true, "mvn": true, "neg": true, "add": true, "sub": true,
		"mul": true, "sdiv": true, "udiv": true, "msub": true,
		"and": true, "orr": true, "eor": true, "lsl": true, "lsr": true, "asr": true,
		"sbfx": true, "ubfx": true, "movz": true, "movn": true, "movk": true,
		"cmp": true, "cset": true, "ldr": true, "str": true, "ldp": true, "stp": true,
		"b": true, "cbz": true, "cbnz": true, "ret": true,
	}
	for _, l := range lines {
		mnemonic := mnemonicOf(l.text)
		if strings.HasPrefix(mnemonic, "b.") {
			if _, ok := condByName(mnemonic[2:]); !ok {
				v.addError(l.offset, "unknown branch condition", l.text)
			}
			continue
		}
		if !valid[mnemonic] {
			v.addError(l.offset, fmt.Sprintf("unknown instruction %q", mnemonic), l.text)
		}
	}
}

// validateFrame checks the prologue and the frame bound
func (v *Validator) validateFrame(obj *codegen.Object, lines []instLine) {
	if len(lines) == 0 {
		v.addError(0, "empty function", "")
		return
	}
	if len(lines) < 2 || lines[0].text != prologue[0] || lines[1].text != prologue[1] {
		v.addError(0, "missing frame prologue", "")
	}
	if obj.FrameSize > codegen.MaxFrameSize {
		v.addError(0, fmt.Sprintf("frame of %d bytes exceeds %d", obj.FrameSize, codegen.MaxFrameSize), "")
	} else if obj.FrameSize > codegen.MaxFrameSize/2 {
		v.addWarn(0, fmt.Sprintf("large frame: %d bytes", obj.FrameSize), "")
	}
	if last := lines[len(lines)-1]; last.text != "ret" && mnemonicOf(last.text) != "b" {
		v.addError(last.offset, "function does not end in ret or b", last.text)
	}
}

// validateMemoryAddressing checks that loads and stores stay inside the frame
func (v *Validator) validateMemoryAddressing(obj *codegen.Object, lines []instLine) {
	for _, l := range lines {
		switch mnemonicOf(l.text) {
		case "ldr", "str":
		default:
			continue
		}
		start := strings.Index(l.text, "[")
		if start < 0 {
			v.addError(l.offset, "memory instruction without address", l.text)
			continue
		}
		m := slotAddr.FindStringSubmatch(l.text[start:])
		if m == nil {
			v.addError(l.offset, fmt.Sprintf("invalid memory addressing mode: %s", l.text[start:]), l.text)
			continue
		}
		off, _ := strconv.Atoi(m[1])
		if off%codegen.SlotSize != 0 || off+codegen.SlotSize > codegen.FrameSize(obj.FrameSize/codegen.SlotSize, 16) {
			v.addError(l.offset, fmt.Sprintf("slot offset %d outside frame of %d bytes", off, obj.FrameSize), l.text)
		}
	}
}

// validateReservedRegisters checks that ABI-reserved registers are only
// written by the frame setup and teardown
func (v *Validator) validateReservedRegisters(lines []instLine) {
	frameOps := map[string]bool{
		prologue[1]: true,
		teardown[0]: true,
		teardown[1]: true,
	}
	reserved := make(map[string]bool, len(Reserved))
	for _, r := range Reserved {
		reserved[RegName(r)] = true
	}

	for i, l := range lines {
		if frameOps[l.text] || (i == 2 && strings.HasPrefix(l.text, "sub sp, sp, #")) {
			continue
		}
		if dst := destination(l.text); reserved[dst] {
			v.addError(l.offset, fmt.Sprintf("writes reserved register %s", dst), l.text)
		}
	}
}

// validateStackBalance checks that every ret restores SP, FP and LR
func (v *Validator) validateStackBalance(lines []instLine) {
	for i, l := range lines {
		if l.text != "ret" {
			continue
		}
		if i < 2 || lines[i-2].text != teardown[0] || lines[i-1].text != teardown[1] {
			v.addError(l.offset, "ret without frame teardown", l.text)
		}
	}
}

// validateBranchTargets checks that every branch lands inside the function
func (v *Validator) validateBranchTargets(obj *codegen.Object, lines []instLine) {
	for _, l := range lines {
		var delta int32
		switch mnemonic := mnemonicOf(l.text); {
		case mnemonic == "b":
			delta = int32(l.word<<6) >> 6
		case mnemonic == "cbz", mnemonic == "cbnz", strings.HasPrefix(mnemonic, "b."):
			delta = int32((l.word>>5)<<13) >> 13
		default:
			continue
		}
		target := l.offset + int(delta)*4
		if target < 0 || target >= len(obj.Code) {
			v.addError(l.offset, fmt.Sprintf("branch target %#x outside code", target), l.text)
		}
	}
}

// detectRedundantMoves warns about register moves onto themselves
func (v *Validator) detectRedundantMoves(lines []instLine) {
	for _, l := range lines {
		if mnemonicOf(l.text) != "mov" {
			continue
		}
		parts := strings.Split(strings.TrimPrefix(l.text, "mov "), ", ")
		if len(parts) == 2 && parts[0] == parts[1] {
			v.addWarn(l.offset, fmt.Sprintf("redundant move: source and destination are identical (%s)", parts[0]), l.text)
		}
	}
}

func mnemonicOf(text string) string {
	mnemonic, _, _ := strings.Cut(text, " ")
	return mnemonic
}

func condByName(name string) (uint32, bool) {
	for c, n := range condNames {
		if n == name {
			return c, true
		}
	}
	return 0, false
}

// destination returns the register written by an instruction, if any.
func destination(text string) string {
	mnemonic, operands, _ := strings.Cut(text, " ")
	switch mnemonic {
	case "cmp", "str", "stp", "ret", "b", "cbz", "cbnz":
		return ""
	}
	if strings.HasPrefix(mnemonic, "b.") {
		return ""
	}
	dst, _, _ := strings.Cut(operands, ",")
	return strings.TrimSpace(dst)
}

// Helper functions

func (v *Validator) addError(offset int, msg, code string) {
	v.errors = append(v.errors, ValidationError{Offset: offset, Message: msg, Code: code})
}

func (v *Validator) addWarn(offset int, msg, code string) {
	v.warns = append(v.warns, ValidationError{Offset: offset, Message: msg, Code: code})
}

func (v *Validator) formatErrors() error {
	var sb strings.Builder
	sb.WriteString("machine code validation failed:\n")
	for _, err := range v.errors {
		sb.WriteString("  " + err.Error() + "\n")
	}
	return errors.New(sb.String())
}

func (v *Validator) logWarnings() {
	for _, warn := range v.warns {
		logger.Warn("Machine code validation warning", "offset", warn.Offset, "msg", warn.Message)
	}
}
