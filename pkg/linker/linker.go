// Package linker lays compiled functions out into one executable image.
//
// Design: In-process linking, no object files and no system linker. Objects
// are concatenated in order, every entry 16-byte aligned and padded with
// trapping bytes. The image is mapped read-write, filled, then flipped to
// read-execute, so no page is ever writable and executable at once.
package linker

import (
	"runtime"
	"unsafe"

	"github.com/GriffinCanCode/typthon-jit/pkg/codegen"
	"github.com/GriffinCanCode/typthon-jit/pkg/logger"
	"github.com/pkg/errors"
)

// Align is the alignment of every entry point.
const Align = 16

var (
	// ErrClosed is returned when an unmapped image is used.
	ErrClosed = errors.New("image closed")

	// ErrDuplicateSymbol is returned when two objects share a name.
	ErrDuplicateSymbol = errors.New("duplicate symbol")
)

var supported = map[string]bool{
	"linux/amd64":   true,
	"linux/arm64":   true,
	"linux/riscv64": true,
	"darwin/amd64":  true,
	"freebsd/amd64": true,
}

// Supported reports whether native images can be mapped and called on the
// given platform.
func Supported(goos, goarch string) bool {
	return supported[goos+"/"+goarch]
}

// NativeSupported reports whether the running platform is supported.
func NativeSupported() bool {
	return Supported(runtime.GOOS, runtime.GOARCH)
}

// Symbol is one function in an image.
type Symbol struct {
	Name   string
	Offset int
	Size   int
}

// Linker links objects of one architecture
type Linker struct {
	arch    string
	objects []*codegen.Object
	names   map[string]bool
}

// New creates a linker for arch.
func New(arch string) *Linker {
	return &Linker{arch: arch, names: make(map[string]bool)}
}

// AddObject appends obj to the image.
func (l *Linker) AddObject(obj *codegen.Object) error {
	if obj.Arch != l.arch {
		return errors.Errorf("object %s is %s, linking for %s", obj.Name, obj.Arch, l.arch)
	}
	if l.names[obj.Name] {
		return errors.Wrap(ErrDuplicateSymbol, obj.Name)
	}
	l.names[obj.Name] = true
	l.objects = append(l.objects, obj)
	return nil
}

// Layout concatenates the objects and returns the image bytes and symbols.
func (l *Linker) Layout() ([]byte, []Symbol) {
	pad := padByte(l.arch)
	var code []byte
	syms := make([]Symbol, 0, len(l.objects))
	for _, obj := range l.objects {
		for len(code)%Align != 0 {
			code = append(code, pad)
		}
		syms = append(syms, Symbol{Name: obj.Name, Offset: len(code), Size: len(obj.Code)})
		code = append(code, obj.Code...)
	}
	return code, syms
}

// padByte fills alignment gaps with something that traps if executed:
// int3 on x86-64, an all-zero word (udf / illegal) elsewhere.
func padByte(arch string) byte {
	if arch == "amd64" {
		return 0xcc
	}
	return 0
}

// Link maps the laid-out image into executable memory.
func (l *Linker) Link() (*Image, error) {
	logger.LogLinkingStart(len(l.objects))
	if l.arch != runtime.GOARCH || !NativeSupported() {
		return nil, errors.Wrapf(codegen.ErrUnsupportedPlatform, "cannot run %s code on %s/%s", l.arch, runtime.GOOS, runtime.GOARCH)
	}

	code, syms := l.Layout()
	img := &Image{symbols: make(map[string]Symbol, len(syms)), order: syms, size: len(code)}
	for _, s := range syms {
		img.symbols[s.Name] = s
	}
	if len(code) > 0 {
		page, err := mapCode(code)
		if err != nil {
			return nil, errors.Wrap(err, "mapping image")
		}
		img.page = page
	}
	logger.LogLinkingComplete(len(code))
	return img, nil
}

// Image is a mapped, executable set of functions. It is not safe for
// concurrent Close; callers serialize Close against calls.
type Image struct {
	page    *codePage
	symbols map[string]Symbol
	order   []Symbol
	size    int
	closed  bool
}

// Addr returns the entry address of name.
func (img *Image) Addr(name string) (uintptr, error) {
	if img.closed {
		return 0, ErrClosed
	}
	s, ok := img.symbols[name]
	if !ok || img.page == nil {
		return 0, errors.Errorf("symbol %q not found", name)
	}
	return uintptr(unsafe.Pointer(&img.page.mem[s.Offset])), nil
}

// Symbols returns the functions in layout order.
func (img *Image) Symbols() []Symbol {
	return append([]Symbol(nil), img.order...)
}

// Size returns the image size in bytes.
func (img *Image) Size() int { return img.size }

// Closed reports whether Close was called.
func (img *Image) Closed() bool { return img.closed }

// Close unmaps the image. Closing twice is a no-op.
func (img *Image) Close() error {
	if img.closed {
		return nil
	}
	img.closed = true
	if img.page == nil {
		return nil
	}
	err := img.page.free()
	img.page = nil
	return err
}
