//go:build (linux || darwin || freebsd) && !(linux && riscv64)

package linker

// flushICache is a no-op: x86-64 keeps instruction fetch coherent, and on
// linux/arm64 the kernel cleans and invalidates the caches when the mapping
// is made executable.
func flushICache(mem []byte) error { return nil }
