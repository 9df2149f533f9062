// Package mmap maps leaf files into memory for in-place patching and syncs
// them back to disk.
package mmap

import (
	"fmt"
	"os"
)

type Options uint

const (
	// Writable maps the file read-write (otherwise, it's mapped read-only).
	Writable Options = 1 << 0

	// SequentialAccess is a hint requesting aggressive read-ahead.
	// Incompatible with RandomAccess. Maps to MADV_SEQUENTIAL on Unix.
	SequentialAccess Options = 1 << 1

	// RandomAccess is a hint that read ahead is less useful than normally.
	// Incompatible with SequentialAccess. Maps to MADV_RANDOM on Unix.
	RandomAccess Options = 1 << 2
)

func (o Options) Has(v Options) bool {
	return o&v != 0
}

// Map memory maps the first size bytes of f. The whole mapping must fit into
// MaxSize, and size must not exceed the file size (mapping past EOF faults on
// access instead of failing here).
func Map(f *os.File, size int, opt Options) ([]byte, error) {
	if size <= 0 {
		return nil, fmt.Errorf("mmap %s: invalid size %d", f.Name(), size)
	}
	if uint64(size) > MaxSize {
		return nil, fmt.Errorf("mmap %s: size %d exceeds MaxSize", f.Name(), size)
	}
	return mmap(f, size, opt)
}

// Unmap unmaps the given slice from memory. The slice must have been returned
// by Map.
func Unmap(b []byte) error {
	return munmap(b)
}
