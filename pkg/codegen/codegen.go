// Package codegen implements the architecture-independent half of native
// code generation.
//
// Design: Backends register per GOARCH. Each backend supplies a Machine (an
// instruction encoder with a fixed register model); Generate walks the
// lowered IR, asks regalloc where every value lives and drives the Machine.
// Generated functions follow Go's register-based internal ABI, never call
// out and keep their frame below MaxFrameSize.
package codegen

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/GriffinCanCode/typthon-jit/pkg/ir"
	"github.com/pkg/errors"
)

const (
	// MaxParams is the largest parameter count a native function may take.
	MaxParams = 8

	// MaxFrameSize bounds the stack frame of generated code. The code runs on
	// the goroutine stack without a stack-growth check, so the frame must fit
	// in the guard area the runtime keeps for nosplit functions.
	MaxFrameSize = 512

	// SlotSize is the size of one stack slot in bytes.
	SlotSize = 8
)

var (
	ErrUnsupportedPlatform = errors.New("unsupported platform for native code generation")
	ErrTooManyParams       = errors.New("too many parameters")
	ErrFrameTooLarge       = errors.New("stack frame too large")
	ErrMalformedIR         = errors.New("malformed IR")
)

// Options controls code generation for one function.
type Options struct {
	OptLevel int // 0 keeps every value in a stack slot
}

// Object is the machine code of one function.
type Object struct {
	Name      string
	Arch      string
	Code      []byte
	Listing   []string
	FrameSize int
}

// Disassembly returns the listing as one string.
func (o *Object) Disassembly() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s: ; %s, %d bytes, frame %d\n", o.Name, o.Arch, len(o.Code), o.FrameSize)
	for _, line := range o.Listing {
		sb.WriteString("  ")
		sb.WriteString(line)
		sb.WriteByte('\n')
	}
	return sb.String()
}

// Backend generates machine code for one architecture.
type Backend interface {
	Arch() string
	Generate(fn *ir.Function, opts Options) (*Object, error)
}

var (
	backendsMu sync.RWMutex
	backends   = make(map[string]Backend)
)

// RegisterBackend wires an architecture-specific backend. It panics when the
// same architecture is registered twice so mistakes are caught during init.
func RegisterBackend(arch string, backend Backend) {
	if arch == "" {
		panic("codegen: cannot register backend for empty architecture")
	}
	if backend == nil {
		panic("codegen: backend must be non-nil")
	}

	backendsMu.Lock()
	defer backendsMu.Unlock()

	if _, exists := backends[arch]; exists {
		panic(fmt.Sprintf("codegen: backend for %s already registered", arch))
	}
	backends[arch] = backend
}

// LookupBackend returns the backend registered for arch.
func LookupBackend(arch string) (Backend, error) {
	backendsMu.RLock()
	defer backendsMu.RUnlock()

	if backend, ok := backends[arch]; ok {
		return backend, nil
	}
	return nil, errors.Wrapf(ErrUnsupportedPlatform, "no backend registered for %q", arch)
}

// Architectures lists the registered architectures in sorted order.
func Architectures() []string {
	backendsMu.RLock()
	defer backendsMu.RUnlock()

	archs := make([]string, 0, len(backends))
	for arch := range backends {
		archs = append(archs, arch)
	}
	sort.Strings(archs)
	return archs
}
