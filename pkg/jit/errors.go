package jit

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

var (
	ErrDuplicateName      = errors.New("duplicate name")
	ErrInvalidName        = errors.New("invalid name")
	ErrForeignObject      = errors.New("object belongs to another function or context")
	ErrTypeMismatch       = errors.New("type mismatch")
	ErrNotRepresentable   = errors.New("value not representable in type")
	ErrInvalidState       = errors.New("context is not in the building state")
	ErrLabelAlreadyPlaced = errors.New("label already placed")
	ErrValidation         = errors.New("validation failed")
	ErrBackend            = errors.New("backend failed")
	ErrInvalidOption      = errors.New("invalid option")
	ErrNotFound           = errors.New("function not found")
	ErrArgument           = errors.New("bad argument")
	ErrClosed             = errors.New("result is closed")
)

// Problem is one validation finding.
type Problem struct {
	Function string
	Label    string // empty unless the problem concerns a label
	Message  string
}

func (p Problem) String() string {
	if p.Label != "" {
		return fmt.Sprintf("%s: label %q: %s", p.Function, p.Label, p.Message)
	}
	return fmt.Sprintf("%s: %s", p.Function, p.Message)
}

// ValidationError lists every problem found in a Context.
type ValidationError struct {
	Problems []Problem
}

func (e *ValidationError) Error() string {
	msgs := make([]string, len(e.Problems))
	for i, p := range e.Problems {
		msgs[i] = p.String()
	}
	return fmt.Sprintf("%s: %s", ErrValidation, strings.Join(msgs, "; "))
}

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

// BackendError reports a failure after validation.
type BackendError struct {
	Stage    string // lower, codegen or link
	Function string // empty for whole-program stages
	Err      error
}

func (e *BackendError) Error() string {
	if e.Function != "" {
		return fmt.Sprintf("%s: %s %s: %v", ErrBackend, e.Stage, e.Function, e.Err)
	}
	return fmt.Sprintf("%s: %s: %v", ErrBackend, e.Stage, e.Err)
}

func (e *BackendError) Unwrap() error { return e.Err }

func (e *BackendError) Is(target error) bool { return target == ErrBackend }
