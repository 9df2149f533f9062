package mmap

import "os"

// Fdatasync flushes the data written to f (and, if mapping is non-nil, to its
// memory mapping) to stable storage, skipping metadata where the platform
// allows it.
//
// Errors returned by this function are not recoverable: most file systems mark
// the dirty pages clean after a failed sync, so the on-disk state is unknown.
// Treat the affected file as lost.
func Fdatasync(f *os.File, mapping []byte) error {
	return fdatasync(f, mapping)
}
