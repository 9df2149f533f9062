package lazydb

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is matched by every missing file or directory error.
	ErrNotFound = errors.New("not found")

	// ErrInvalidFormat is matched by every malformed on-disk data error.
	ErrInvalidFormat = errors.New("invalid format")

	ErrInvalidTag         = errors.New("invalid kind tag")
	ErrInvalidByteLength  = errors.New("invalid byte length")
	ErrInvalidUTF8        = errors.New("invalid utf-8 string")
	ErrInvalidMetaVersion = errors.New("invalid meta version")
	ErrCorruptArchive     = errors.New("corrupt archive")

	ErrTypeMismatch        = errors.New("type mismatch")
	ErrIncompatibleVersion = errors.New("incompatible version")
	ErrInvalidKey          = errors.New("invalid key")
	ErrIO                  = errors.New("i/o failure")
	ErrClosed              = errors.New("database closed")
)

// NotFoundError reports a missing leaf (Dir == false) or container. A path
// that exists but has the wrong kind (a directory where a leaf is expected,
// or vice versa) is also reported as not found.
type NotFoundError struct {
	Path string
	Dir  bool
}

func (e *NotFoundError) Error() string {
	if e.Dir {
		return fmt.Sprintf("directory %q not found", e.Path)
	}
	return fmt.Sprintf("file %q not found", e.Path)
}

func (e *NotFoundError) Is(target error) bool {
	return target == ErrNotFound
}

// DataError reports malformed bytes. Err is one of the ErrInvalid* sentinels
// (or an underlying error), and the whole error also matches ErrInvalidFormat.
type DataError struct {
	Path string
	Data []byte
	Off  int
	Err  error
	Msg  string
}

func dataErrf(path string, data []byte, off int, err error, format string, args ...any) error {
	return &DataError{path, data, off, err, fmt.Sprintf(format, args...)}
}

// atPath fills in the location of a DataError produced without one.
func atPath(err error, path string, off int) error {
	var de *DataError
	if errors.As(err, &de) && de.Path == "" {
		de.Path, de.Off = path, off
	}
	return err
}

func (e *DataError) Unwrap() error {
	return e.Err
}

func (e *DataError) Is(target error) bool {
	return target == ErrInvalidFormat
}

func (e *DataError) Error() string {
	const prefixLen = 32
	const suffixLen = 16

	var prefix string
	if e.Path != "" {
		prefix = e.Path + ": "
	}
	msg := e.Msg
	if e.Err != nil {
		if msg == "" {
			msg = e.Err.Error()
		} else {
			msg = e.Err.Error() + ": " + msg
		}
	}

	n := len(e.Data)
	switch {
	case n == 0:
		return prefix + msg
	case n <= prefixLen+suffixLen:
		return fmt.Sprintf("%s%s: (%d) %x", prefix, msg, n, e.Data)
	default:
		return fmt.Sprintf("%s%s: (%d) %x...%x", prefix, msg, n, e.Data[:prefixLen], e.Data[n-suffixLen:])
	}
}

// TypeError reports an attempt to collect a leaf as a kind other than the
// one stored in it.
type TypeError struct {
	Path   string
	Stored string
	Wanted string
}

func typeErr(path string, stored Kind, wanted string) error {
	return &TypeError{path, stored.String(), wanted}
}

func (e *TypeError) Error() string {
	return fmt.Sprintf("%s: cannot read %s as %s", e.Path, e.Stored, e.Wanted)
}

func (e *TypeError) Is(target error) bool {
	return target == ErrTypeMismatch
}

// VersionError reports a database written by an incompatible version.
type VersionError struct {
	Path    string
	Found   Version
	Current Version
}

func (e *VersionError) Error() string {
	return fmt.Sprintf("%s: found version %v incompatible with current version %v", e.Path, e.Found, e.Current)
}

func (e *VersionError) Is(target error) bool {
	return target == ErrIncompatibleVersion
}

// IOError wraps a failure of the file system or of the compression layer.
type IOError struct {
	Op   string
	Path string
	Err  error
}

func ioErr(op, path string, err error) error {
	if err == nil {
		return nil
	}
	return &IOError{op, path, err}
}

func (e *IOError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

func (e *IOError) Unwrap() error {
	return e.Err
}

func (e *IOError) Is(target error) bool {
	return target == ErrIO
}
