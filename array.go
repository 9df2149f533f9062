package lazydb

import (
	"errors"
	"os"

	"github.com/andreyvit/lazydb/ofile"
)

// AppendArray appends vals to the existing array leaf at path. The leaf is
// rewritten through a staging file and swapped in, so a crash leaves either
// the old or the new array.
func AppendArray[T Element](path string, vals []T) (err error) {
	want := elementKind[T]()
	if ok, err := isRegularFile(path); err != nil {
		return err
	} else if !ok {
		return &NotFoundError{Path: path}
	}

	f, err := ofile.Open(path)
	if err != nil {
		return ioErr("open", path, err)
	}
	defer func() {
		if err != nil {
			f.Discard()
		}
	}()

	d := &Data{Path: path, f: f}
	tag, err := f.ReadByte()
	if err != nil {
		return ioErr("read", path, err)
	}
	if d.Kind, err = KindFromByte(tag); err != nil {
		return atPath(err, path, 0)
	}
	if d.Kind != KindArray {
		return typeErr(path, d.Kind, "array of "+want.String())
	}
	elem, err := d.arrayElemKind()
	if err != nil {
		return err
	}
	if elem != want {
		return &TypeError{path, "array of " + elem.String(), "array of " + want.String()}
	}

	st, err := os.Stat(path)
	if err != nil {
		return ioErr("stat", path, err)
	}
	existing := st.Size() - 2
	if existing%int64(want.Width()) != 0 {
		return dataErrf(path, nil, 2, ErrInvalidByteLength, "%d payload bytes is not a whole number of %v elements", existing, want)
	}

	// rewriting the element tag switches the stream into modify mode
	if err := f.WriteByte(elem.Byte()); err != nil {
		return ioErr("write", path, err)
	}
	if err := f.Skip(existing); err != nil {
		return ioErr("copy", path, err)
	}
	buf := make([]byte, 0, len(vals)*want.Width())
	for _, v := range vals {
		buf = appendElement(buf, v)
	}
	if _, err := f.Write(buf); err != nil {
		return ioErr("write", path, err)
	}
	return ioErr("commit", path, f.Finish())
}

// OverwriteNumber replaces the value of an existing numeric leaf of the same
// kind in place, without a staging file.
func OverwriteNumber[T Element](path string, v T) error {
	want := elementKind[T]()
	d, err := LoadData(path)
	if err != nil {
		return err
	}
	d.Close()
	if d.Kind != want {
		return typeErr(path, d.Kind, want.String())
	}

	st, err := os.Stat(path)
	if err != nil {
		return ioErr("stat", path, err)
	}
	if st.Size() != int64(1+want.Width()) {
		return dataErrf(path, nil, 1, ErrInvalidByteLength, "%d payload bytes for %v, wanted %d", st.Size()-1, want, want.Width())
	}
	err = ofile.OverwriteAt(path, 1, appendElement(nil, v))
	if errors.Is(err, ofile.ErrOutOfRange) {
		return dataErrf(path, nil, 1, ErrInvalidByteLength, "leaf changed size during overwrite")
	}
	return ioErr("overwrite", path, err)
}
