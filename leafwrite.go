package lazydb

import (
	"fmt"

	"github.com/andreyvit/lazydb/ofile"
)

// writeLeaf writes a complete leaf to a fresh write stream and commits it.
// The stream is finished even on failure.
func writeLeaf(w *ofile.File, kind Kind, payload []byte) error {
	if w.Mode() != ofile.WriteMode || w.Pos() != 0 {
		w.Discard()
		return ioErr("write", w.Path(), fmt.Errorf("leaf writers need a fresh %v stream, got %v", ofile.WriteMode, w.Mode()))
	}
	err := w.WriteByte(kind.Byte())
	if err == nil && len(payload) > 0 {
		_, err = w.Write(payload)
	}
	if ferr := w.Finish(); err == nil {
		err = ferr
	}
	return ioErr("write", w.Path(), err)
}

func NewVoid(w *ofile.File) error {
	return writeLeaf(w, KindVoid, nil)
}

func NewString(w *ofile.File, v string) error {
	return writeLeaf(w, KindString, []byte(v))
}

func NewBinary(w *ofile.File, v []byte) error {
	return writeLeaf(w, KindBinary, v)
}

func NewBool(w *ofile.File, v bool) error {
	if v {
		return writeLeaf(w, KindTrue, nil)
	}
	return writeLeaf(w, KindFalse, nil)
}

// NewLink writes a link to the leaf at target, a slash-separated path from
// the database root. The target is not checked for existence.
func NewLink(w *ofile.File, target string) error {
	return writeLeaf(w, KindLink, []byte(target))
}

func newFixed[T Element](w *ofile.File, v T) error {
	return writeLeaf(w, elementKind[T](), appendElement(nil, v))
}

func NewI8(w *ofile.File, v int8) error      { return newFixed(w, v) }
func NewI16(w *ofile.File, v int16) error    { return newFixed(w, v) }
func NewI32(w *ofile.File, v int32) error    { return newFixed(w, v) }
func NewI64(w *ofile.File, v int64) error    { return newFixed(w, v) }
func NewI128(w *ofile.File, v Int128) error  { return newFixed(w, v) }
func NewU8(w *ofile.File, v uint8) error     { return newFixed(w, v) }
func NewU16(w *ofile.File, v uint16) error   { return newFixed(w, v) }
func NewU32(w *ofile.File, v uint32) error   { return newFixed(w, v) }
func NewU64(w *ofile.File, v uint64) error   { return newFixed(w, v) }
func NewU128(w *ofile.File, v Uint128) error { return newFixed(w, v) }
func NewF32(w *ofile.File, v float32) error  { return newFixed(w, v) }
func NewF64(w *ofile.File, v float64) error  { return newFixed(w, v) }

// NewArray writes a homogeneous array of fixed-width numbers.
func NewArray[T Element](w *ofile.File, vals []T) error {
	kind := elementKind[T]()
	payload := make([]byte, 1, 1+len(vals)*kind.Width())
	payload[0] = kind.Byte()
	for _, v := range vals {
		payload = appendElement(payload, v)
	}
	return writeLeaf(w, KindArray, payload)
}
