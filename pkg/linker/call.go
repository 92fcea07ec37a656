package linker

import (
	"unsafe"

	"github.com/GriffinCanCode/typthon-jit/pkg/codegen"
	"github.com/pkg/errors"
)

// funcval mirrors the runtime's closure header: a Go func value is a
// pointer to a word holding the code address.
type funcval struct {
	fn uintptr
}

// Call invokes the function at entry with up to codegen.MaxParams
// arguments under the register ABI of func(uint64, ...) uint64.
func Call(entry uintptr, args ...uint64) (uint64, error) {
	if entry == 0 {
		return 0, errors.New("call of nil entry")
	}
	fv := &funcval{fn: entry}
	p := unsafe.Pointer(&fv)
	a := args
	switch len(a) {
	case 0:
		return (*(*func() uint64)(p))(), nil
	case 1:
		return (*(*func(uint64) uint64)(p))(a[0]), nil
	case 2:
		return (*(*func(uint64, uint64) uint64)(p))(a[0], a[1]), nil
	case 3:
		return (*(*func(uint64, uint64, uint64) uint64)(p))(a[0], a[1], a[2]), nil
	case 4:
		return (*(*func(uint64, uint64, uint64, uint64) uint64)(p))(a[0], a[1], a[2], a[3]), nil
	case 5:
		return (*(*func(uint64, uint64, uint64, uint64, uint64) uint64)(p))(a[0], a[1], a[2], a[3], a[4]), nil
	case 6:
		return (*(*func(uint64, uint64, uint64, uint64, uint64, uint64) uint64)(p))(a[0], a[1], a[2], a[3], a[4], a[5]), nil
	case 7:
		return (*(*func(uint64, uint64, uint64, uint64, uint64, uint64, uint64) uint64)(p))(a[0], a[1], a[2], a[3], a[4], a[5], a[6]), nil
	case 8:
		return (*(*func(uint64, uint64, uint64, uint64, uint64, uint64, uint64, uint64) uint64)(p))(a[0], a[1], a[2], a[3], a[4], a[5], a[6], a[7]), nil
	}
	return 0, errors.Wrapf(codegen.ErrTooManyParams, "%d arguments, limit is %d", len(args), codegen.MaxParams)
}
