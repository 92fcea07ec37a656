//go:build linux || darwin || freebsd

package linker

import (
	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

// codePage is an anonymous mapping holding machine code.
type codePage struct {
	mem []byte
}

// mapCode copies code into fresh pages and makes them read-execute.
func mapCode(code []byte) (*codePage, error) {
	pageSize := unix.Getpagesize()
	size := (len(code) + pageSize - 1) / pageSize * pageSize

	mem, err := unix.Mmap(-1, 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_PRIVATE|unix.MAP_ANON)
	if err != nil {
		return nil, errors.Wrap(err, "mmap")
	}
	copy(mem, code)

	if err := unix.Mprotect(mem, unix.PROT_READ|unix.PROT_EXEC); err != nil {
		_ = unix.Munmap(mem)
		return nil, errors.Wrap(err, "mprotect")
	}
	if err := flushICache(mem[:len(code)]); err != nil {
		_ = unix.Munmap(mem)
		return nil, errors.Wrap(err, "flushing instruction cache")
	}
	return &codePage{mem: mem}, nil
}

func (p *codePage) free() error {
	if err := unix.Munmap(p.mem); err != nil {
		return errors.Wrap(err, "munmap")
	}
	return nil
}
