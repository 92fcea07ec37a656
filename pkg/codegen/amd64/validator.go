// Package amd64 - Machine code validation and correctness verification
package amd64

import (
	"encoding/hex"
	"fmt"
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

// Validator validates generated x86-64 machine code against its listing
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

// instLine is one decoded listing entry.
type instLine struct {
	offset int
	bytes  []byte
	text   string
}

// Validate performs comprehensive validation on an object
func (v *Validator) Validate(obj *codegen.Object) error {
	lines, err := parseListing(obj.Listing)
	if err != nil {
		return err
	}

	v.validateLayout(obj, lines)
	v.validateFrame(obj, lines)
	v.validateReservedRegisters(lines)
	v.validateStackBalance(lines)

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
		bs, err := hex.DecodeString(fields[1])
		if err != nil {
			return nil, errors.Wrapf(err, "listing bytes in %q", raw)
		}
		lines = append(lines, instLine{offset: int(off), bytes: bs, text: strings.Join(fields[2:], " ")})
	}
	return lines, nil
}

// validateLayout checks that the listing tiles the code exactly
func (v *Validator) validateLayout(obj *codegen.Object, lines []instLine) {
	pos := 0
	for _, l := range lines {
		if l.offset != pos {
			v.addError(l.offset, fmt.Sprintf("listing gap: expected offset %#x", pos), l.text)
		}
		if l.offset+len(l.bytes) > len(obj.Code) {
			v.addError(l.offset, "instruction runs past end of code", l.text)
			return
		}
		// Branch displacements are patched after listing, compare opcodes only
		n := len(l.bytes)
		if isBranch(l.text) {
			n -= 4
		}
		for i := 0; i < n; i++ {
			if obj.Code[l.offset+i] != l.bytes[i] {
				v.addError(l.offset, "listing bytes differ from code", l.text)
				break
			}
		}
		pos = l.offset + len(l.bytes)
	}
	if pos != len(obj.Code) {
		v.addError(pos, fmt.Sprintf("listing covers %d of %d bytes", pos, len(obj.Code)), "")
	}
}

// validateFrame checks the prologue and the frame bound
func (v *Validator) validateFrame(obj *codegen.Object, lines []instLine) {
	if len(lines) == 0 {
		v.addError(0, "empty function", "")
		return
	}
	if len(lines) < 2 || lines[0].text != "push rbp" || lines[1].text != "mov rbp, rsp" {
		v.addError(0, "missing frame prologue", "")
	}
	if obj.FrameSize > codegen.MaxFrameSize {
		v.addError(0, fmt.Sprintf("frame of %d bytes exceeds %d", obj.FrameSize, codegen.MaxFrameSize), "")
	} else if obj.FrameSize > codegen.MaxFrameSize/2 {
		v.addWarn(0, fmt.Sprintf("large frame: %d bytes", obj.FrameSize), "")
	}
	if last := lines[len(lines)-1]; last.text != "ret" && !strings.HasPrefix(last.text, "jmp") {
		v.addError(last.offset, "function does not end in ret or jmp", last.text)
	}
}

// validateReservedRegisters checks that ABI-reserved registers are only
// written by the frame setup and teardown
func (v *Validator) validateReservedRegisters(lines []instLine) {
	frameOps := map[string]bool{
		"mov rbp, rsp": true,
		"mov rsp, rbp": true,
		"pop rbp":      true,
	}
	reserved := make(map[string]bool, len(Reserved))
	for _, r := range Reserved {
		reserved[RegName(r)] = true
		reserved[regName32(r)] = true
		reserved[regName8(r)] = true
	}

	for i, l := range lines {
		if frameOps[l.text] || (i == 2 && strings.HasPrefix(l.text, "sub rsp, ")) {
			continue
		}
		dst := destination(l.text)
		if reserved[dst] {
			v.addError(l.offset, fmt.Sprintf("writes reserved register %s", dst), l.text)
		}
	}
}

// validateStackBalance checks that every ret restores the caller's frame
func (v *Validator) validateStackBalance(lines []instLine) {
	for i, l := range lines {
		if l.text != "ret" {
			continue
		}
		if i < 2 || lines[i-1].text != "pop rbp" || lines[i-2].text != "mov rsp, rbp" {
			v.addError(l.offset, "ret without frame teardown", l.text)
		}
	}
}

// destination returns the register written by an instruction, if any.
func destination(text string) string {
	mnemonic, operands, _ := strings.Cut(text, " ")
	switch mnemonic {
	case "cmp", "test", "push", "ret", "cqo", "div", "idiv":
		return ""
	}
	if strings.HasPrefix(mnemonic, "j") {
		return ""
	}
	dst, _, _ := strings.Cut(operands, ",")
	return strings.TrimSpace(dst)
}

func isBranch(text string) bool {
	return strings.HasPrefix(text, "j")
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
