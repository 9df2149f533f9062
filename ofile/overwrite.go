package ofile

import (
	"fmt"
	"os"

	"github.com/andreyvit/lazydb/mmap"
)

// OverwriteAt replaces len(data) bytes at offset off without changing the file
// size, patching the file through a writable memory mapping. Same-length edits
// don't need the staging file dance. If the file can't be mapped, it falls back
// to a positioned write. Either way the data is synced before returning.
func OverwriteAt(path string, off int64, data []byte) error {
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return err
	}
	defer f.Close()

	st, err := f.Stat()
	if err != nil {
		return err
	}
	size := st.Size()
	end := off + int64(len(data))
	if off < 0 || end > size {
		return fmt.Errorf("%s: overwriting [%d, %d) of %d bytes: %w", path, off, end, size, ErrOutOfRange)
	}
	if len(data) == 0 {
		return nil
	}

	m, err := mmap.Map(f, int(size), mmap.Writable|mmap.RandomAccess)
	if err != nil {
		if _, err := f.WriteAt(data, off); err != nil {
			return err
		}
		return mmap.Fdatasync(f, nil)
	}
	copy(m[off:end], data)
	err = mmap.Fdatasync(f, m)
	if uerr := mmap.Unmap(m); err == nil {
		err = uerr
	}
	return err
}
