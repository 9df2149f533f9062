// Package ofile implements byte-level streaming access to a single leaf file.
//
// A File is in one of three modes:
//
//  1. Read: sequential reads from an existing file.
//  2. Write: sequential writes into a freshly truncated file.
//  3. Modify: entered from Read mode by the first write. The original file is
//     left untouched while the edited content is streamed into a staging
//     sibling (<name>.lzdb-new), which replaces the original on Finish.
//
// # Modify semantics
//
// The byte returned by the most recent read is the cursor byte. A write that
// follows a read replaces the cursor byte; a write that follows another write
// (or happens before anything was read) inserts. Bytes that are read and not
// replaced, bytes passed over by Skip, and everything after the last consumed
// byte are carried into the staging file unchanged. Skip leaves no cursor
// byte behind, so a write right after Skip inserts in every mode. Thus
//
//	for each byte { b := ReadByte(); WriteByte(b * 2) }
//
// doubles every byte, and reading a prefix and then finishing leaves the file
// byte-for-byte identical.
//
// # Swap
//
// Finish replaces the original with the staging file by renaming the original
// to <name>.lzdb-old, renaming staging to <name>, and deleting the backup.
// Staging is fully synced before the first rename, so at any crash point at
// least one complete copy (old or new) exists under a known name; Recover
// resolves whatever state is left behind.
package ofile

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"

	"github.com/andreyvit/lazydb/mmap"
)

type Mode int

const (
	ReadMode Mode = iota
	WriteMode
	ModifyMode
)

func (m Mode) String() string {
	switch m {
	case ReadMode:
		return "read"
	case WriteMode:
		return "write"
	case ModifyMode:
		return "modify"
	default:
		return fmt.Sprintf("Mode(%d)", int(m))
	}
}

const (
	StagingSuffix = ".lzdb-new"
	BackupSuffix  = ".lzdb-old"

	bufferSize = 4096
)

var (
	// ErrEndOfStream is reported when a read or skip runs past the end of the
	// file. errors.Is(ErrEndOfStream, io.EOF) holds.
	ErrEndOfStream error = endOfStream{}

	ErrCannotRead  = errors.New("cannot read a file opened in write mode")
	ErrCannotWrite = errors.New("cannot write a file opened read-only")
	ErrFinished    = errors.New("file already finished")
	ErrOutOfRange  = errors.New("range outside of file")
)

type endOfStream struct{}

func (endOfStream) Error() string { return "end of file stream reached" }
func (endOfStream) Is(target error) bool { return target == io.EOF }

// testHookAfterBackup runs between the two renames of the swap. Tests use it
// to simulate a crash.
var testHookAfterBackup func() error

// File is a streaming handle on one file. It is not safe for concurrent use.
type File struct {
	path     string
	mode     Mode
	readOnly bool
	done     bool

	src *os.File
	r   *bufio.Reader
	dst *os.File
	w   *bufio.Writer

	pos     int64
	cur     byte
	pending bool
}

// Open opens an existing regular file in Read mode, allowing a later switch
// to Modify mode, or creates a new file in Write mode if nothing exists at path.
func Open(path string) (*File, error) {
	st, err := os.Stat(path)
	if err == nil && st.Mode().IsRegular() {
		return openRead(path, false)
	} else if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, err
	}
	return Create(path)
}

// OpenReadOnly opens an existing file in Read mode. Writes fail with
// ErrCannotWrite.
func OpenReadOnly(path string) (*File, error) {
	return openRead(path, true)
}

// Create truncates or creates the file at path and opens it in Write mode.
func Create(path string) (*File, error) {
	dst, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	return &File{
		path: path,
		mode: WriteMode,
		dst:  dst,
		w:    bufio.NewWriterSize(dst, bufferSize),
	}, nil
}

func openRead(path string, readOnly bool) (*File, error) {
	src, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	return &File{
		path:     path,
		mode:     ReadMode,
		readOnly: readOnly,
		src:      src,
		r:        bufio.NewReaderSize(src, bufferSize),
	}, nil
}

func (f *File) Path() string { return f.path }

func (f *File) Mode() Mode { return f.mode }

// Pos returns the number of source bytes consumed so far.
func (f *File) Pos() int64 { return f.pos }

func (f *File) errorf(err error) error {
	return fmt.Errorf("%s: %w", f.path, err)
}

// ReadByte reads the next byte, which becomes the cursor byte.
func (f *File) ReadByte() (byte, error) {
	if err := f.readable(); err != nil {
		return 0, err
	}
	b, err := f.r.ReadByte()
	if err == io.EOF {
		return 0, f.errorf(ErrEndOfStream)
	} else if err != nil {
		return 0, err
	}
	f.pos++
	f.cur = b
	f.pending = true
	return b, nil
}

// Read implements io.Reader. Unlike ReadByte, it reports the end of the file
// as a plain io.EOF. The last byte read becomes the cursor byte.
func (f *File) Read(p []byte) (int, error) {
	if err := f.readable(); err != nil {
		return 0, err
	}
	if len(p) == 0 {
		return 0, nil
	}
	n, err := f.r.Read(p)
	if n > 0 {
		if f.mode == ModifyMode {
			if _, werr := f.w.Write(p[:n-1]); werr != nil {
				return 0, werr
			}
		}
		f.pos += int64(n)
		f.cur = p[n-1]
		f.pending = true
	}
	return n, err
}

func (f *File) readable() error {
	if f.done {
		return f.errorf(ErrFinished)
	}
	switch f.mode {
	case WriteMode:
		return f.errorf(ErrCannotRead)
	case ModifyMode:
		return f.carry()
	}
	return nil
}

// carry moves the unreplaced cursor byte into the staging file.
func (f *File) carry() error {
	if !f.pending || f.mode != ModifyMode {
		return nil
	}
	f.pending = false
	return f.w.WriteByte(f.cur)
}

// WriteByte replaces the cursor byte if there is one, otherwise inserts b.
func (f *File) WriteByte(b byte) error {
	if err := f.writable(); err != nil {
		return err
	}
	f.pending = false
	return f.w.WriteByte(b)
}

// Write implements io.Writer. The first byte of p replaces the cursor byte
// (if any), the rest are inserted after it.
func (f *File) Write(p []byte) (int, error) {
	if err := f.writable(); err != nil {
		return 0, err
	}
	if len(p) == 0 {
		return 0, nil
	}
	f.pending = false
	return f.w.Write(p)
}

func (f *File) writable() error {
	if f.done {
		return f.errorf(ErrFinished)
	}
	if f.mode == ReadMode {
		return f.beginModify()
	}
	return nil
}

// beginModify reopens the source, replays the consumed prefix (minus the
// cursor byte, which the pending write replaces) into a new staging file.
func (f *File) beginModify() error {
	if f.readOnly {
		return f.errorf(ErrCannotWrite)
	}

	src, err := os.Open(f.path)
	if err != nil {
		return err
	}
	staging := f.path + StagingSuffix
	dst, err := os.Create(staging)
	if err != nil {
		src.Close()
		return err
	}

	var ok bool
	defer func() {
		if !ok {
			dst.Close()
			src.Close()
			os.Remove(staging)
		}
	}()

	r := bufio.NewReaderSize(src, bufferSize)
	w := bufio.NewWriterSize(dst, bufferSize)

	keep := f.pos
	if f.pending {
		keep--
	}
	if _, err := io.CopyN(w, r, keep); err == io.EOF {
		return f.errorf(fmt.Errorf("replaying %d consumed bytes: %w", keep, ErrEndOfStream))
	} else if err != nil {
		return err
	}
	if f.pending {
		if _, err := r.ReadByte(); err == io.EOF {
			return f.errorf(fmt.Errorf("replaying cursor byte: %w", ErrEndOfStream))
		} else if err != nil {
			return err
		}
	}

	ok = true
	f.src.Close()
	f.src, f.r = src, r
	f.dst, f.w = dst, w
	f.mode = ModifyMode
	return nil
}

// Skip advances past n bytes. In Read and Modify mode they are kept as they
// are and the next write inserts after them. In Write mode n zero bytes are
// written.
func (f *File) Skip(n int64) error {
	if f.done {
		return f.errorf(ErrFinished)
	}
	if n <= 0 {
		return nil
	}
	switch f.mode {
	case WriteMode:
		var zeros [bufferSize]byte
		for n > 0 {
			chunk := min(n, int64(len(zeros)))
			if _, err := f.w.Write(zeros[:chunk]); err != nil {
				return err
			}
			n -= chunk
		}
		return nil

	case ReadMode:
		d, err := f.r.Discard(int(n))
		f.pos += int64(d)
		if d > 0 {
			f.pending = false
		}
		if err == io.EOF {
			return f.errorf(ErrEndOfStream)
		}
		return err

	default:
		if err := f.carry(); err != nil {
			return err
		}
		c, err := io.CopyN(f.w, f.r, n)
		f.pos += c
		if err == io.EOF {
			return f.errorf(ErrEndOfStream)
		}
		return err
	}
}

// Finish flushes buffered writes and, in Modify mode, copies the untouched
// tail into the staging file and swaps it in. Calling Finish again is a no-op.
func (f *File) Finish() error {
	if f.done {
		return nil
	}
	f.done = true

	switch f.mode {
	case ReadMode:
		return f.src.Close()
	case WriteMode:
		err := f.w.Flush()
		if cerr := f.dst.Close(); err == nil {
			err = cerr
		}
		return err
	default:
		return f.commit()
	}
}

// Close is Finish under the io.Closer name, so that a deferred Close never
// leaves buffered data or a staging file behind.
func (f *File) Close() error {
	return f.Finish()
}

// Discard abandons any modification: the staging file is deleted and the
// original stays as it was. In Write mode the partially written file is kept.
func (f *File) Discard() error {
	if f.done {
		return nil
	}
	if f.mode != ModifyMode {
		return f.Finish()
	}
	f.done = true
	f.src.Close()
	f.dst.Close()
	return os.Remove(f.path + StagingSuffix)
}

func (f *File) commit() error {
	err := f.carry()
	if err == nil {
		_, err = io.Copy(f.w, f.r)
	}
	if err == nil {
		err = f.w.Flush()
	}
	if err == nil {
		err = mmap.Fdatasync(f.dst, nil)
	}
	cerr := f.dst.Close()
	f.src.Close()
	if err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(f.path + StagingSuffix)
		return err
	}
	return swap(f.path)
}

func swap(path string) error {
	backup := path + BackupSuffix
	if err := os.Rename(path, backup); err != nil {
		return err
	}
	if testHookAfterBackup != nil {
		if err := testHookAfterBackup(); err != nil {
			return err
		}
	}
	if err := os.Rename(path+StagingSuffix, path); err != nil {
		return err
	}
	return os.Remove(backup)
}

// With opens path like Open, runs fn and finishes the file on every exit path,
// including a panic in fn.
func With(path string, fn func(f *File) error) (err error) {
	f, err := Open(path)
	if err != nil {
		return err
	}
	defer func() {
		if ferr := f.Finish(); err == nil {
			err = ferr
		}
	}()
	return fn(f)
}
