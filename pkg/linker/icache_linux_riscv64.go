package linker

import (
	"unsafe"

	"golang.org/x/sys/unix"
)

// flushICache makes freshly written code visible to instruction fetch on
// every hart.
func flushICache(mem []byte) error {
	if len(mem) == 0 {
		return nil
	}
	start := uintptr(unsafe.Pointer(&mem[0]))
	if _, _, errno := unix.Syscall(unix.SYS_RISCV_FLUSH_ICACHE, start, start+uintptr(len(mem)), 0); errno != 0 {
		return errno
	}
	return nil
}
