//go:build unix

package mmap

import (
	"fmt"
	"os"
	"syscall"

	"golang.org/x/sys/unix"
)

func mmap(f *os.File, size int, opt Options) ([]byte, error) {
	prot := unix.PROT_READ
	if opt.Has(Writable) {
		prot |= unix.PROT_WRITE
	}

	b, err := unix.Mmap(int(f.Fd()), 0, size, prot, unix.MAP_SHARED)
	if err != nil {
		return nil, &os.PathError{Op: "mmap", Path: f.Name(), Err: err}
	}

	var advice int
	switch {
	case opt.Has(SequentialAccess):
		advice = unix.MADV_SEQUENTIAL
	case opt.Has(RandomAccess):
		advice = unix.MADV_RANDOM
	default:
		return b, nil
	}
	// ENOSYS means the kernel ignores the hint, the mapping still works.
	if err := unix.Madvise(b, advice); err != nil && err != syscall.ENOSYS {
		_ = unix.Munmap(b)
		return nil, fmt.Errorf("madvise %s: %w", f.Name(), err)
	}
	return b, nil
}

func munmap(b []byte) error {
	return unix.Munmap(b)
}
