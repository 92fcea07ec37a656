package jit

import (
	"runtime"
	"sync"

	"github.com/GriffinCanCode/typthon-jit/pkg/codegen"
	"github.com/GriffinCanCode/typthon-jit/pkg/interp"
	"github.com/GriffinCanCode/typthon-jit/pkg/linker"
	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// Result owns compiled code. Its callables are safe for concurrent use and
// valid until Close. A Result that becomes unreachable is closed by the
// garbage collector.
type Result struct {
	id  uuid.UUID
	dir string

	mu      sync.RWMutex
	closed  bool
	image   *linker.Image
	cleanup runtime.Cleanup
	prog    *interp.Program

	// interpreted names the functions the native backend could not take
	interpreted map[string]bool

	funcs   map[string]*Callable
	names   []string
	objects map[string]*codegen.Object
}

func newResult(id uuid.UUID, dir string) *Result {
	return &Result{
		id:          id,
		dir:         dir,
		funcs:       make(map[string]*Callable),
		objects:     make(map[string]*codegen.Object),
		interpreted: make(map[string]bool),
	}
}

func (r *Result) attach(img *linker.Image) {
	r.image = img
	r.cleanup = runtime.AddCleanup(r, func(img *linker.Image) { _ = img.Close() }, img)
}

// ID identifies the compilation in logs and the artifact directory name.
func (r *Result) ID() uuid.UUID { return r.id }

// ArtifactDir is the kept intermediates directory, or "".
func (r *Result) ArtifactDir() string { return r.dir }

// Names lists the exported functions in declaration order.
func (r *Result) Names() []string {
	return append([]string(nil), r.names...)
}

// Func returns the callable for an exported function.
func (r *Result) Func(name string) (*Callable, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		return nil, ErrClosed
	}
	c, ok := r.funcs[name]
	if !ok {
		return nil, errors.Wrapf(ErrNotFound, "%q is not an exported function", name)
	}
	return c, nil
}

// Disassembly returns the machine code listing of a function compiled by
// the native backend.
func (r *Result) Disassembly(name string) (string, error) {
	obj, ok := r.objects[name]
	if !ok {
		return "", errors.Wrapf(ErrNotFound, "no machine code for %q", name)
	}
	return obj.Disassembly(), nil
}

// Close releases the executable memory. Callables fail with ErrClosed
// afterwards; bound functions panic. Close is idempotent.
func (r *Result) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil
	}
	r.closed = true
	if r.image == nil {
		return nil
	}
	r.cleanup.Stop()
	return r.image.Close()
}
