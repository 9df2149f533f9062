package lazydb

import (
	"errors"
	"fmt"
	"io"
	"iter"
	"unicode/utf8"

	"github.com/andreyvit/lazydb/ofile"
)

// Data is a loaded leaf: its kind tag has been decoded, its payload has not
// been read yet. Collect* methods read the payload and release the handle;
// a Data that is never collected must be closed.
type Data struct {
	Path string
	Kind Kind

	f *ofile.File
}

// Link is the decoded payload of a link leaf: a slash-separated path from the
// database root to another leaf.
type Link string

// LoadData opens the leaf at path and decodes its kind tag.
func LoadData(path string) (*Data, error) {
	if ok, err := isRegularFile(path); err != nil {
		return nil, err
	} else if !ok {
		return nil, &NotFoundError{Path: path}
	}

	f, err := ofile.OpenReadOnly(path)
	if err != nil {
		return nil, ioErr("open", path, err)
	}
	tag, err := f.ReadByte()
	if err != nil {
		f.Close()
		if errors.Is(err, ofile.ErrEndOfStream) {
			return nil, dataErrf(path, nil, 0, ErrInvalidTag, "empty leaf")
		}
		return nil, ioErr("read", path, err)
	}
	kind, err := KindFromByte(tag)
	if err != nil {
		f.Close()
		return nil, atPath(err, path, 0)
	}
	return &Data{Path: path, Kind: kind, f: f}, nil
}

// Close releases the handle without reading the payload.
func (d *Data) Close() error {
	return d.f.Close()
}

func (d *Data) String() string {
	return fmt.Sprintf("%s(%v)", d.Path, d.Kind)
}

func (d *Data) expect(want Kind) error {
	if d.Kind != want {
		d.Close()
		return typeErr(d.Path, d.Kind, want.String())
	}
	return nil
}

// payload reads the rest of the leaf and releases the handle.
func (d *Data) payload() ([]byte, error) {
	defer d.Close()
	b, err := io.ReadAll(d.f)
	if err != nil {
		return nil, ioErr("read", d.Path, err)
	}
	return b, nil
}

func (d *Data) emptyPayload() error {
	b, err := d.payload()
	if err != nil {
		return err
	}
	if len(b) != 0 {
		return dataErrf(d.Path, b, 0, ErrInvalidByteLength, "%d payload bytes for %v, wanted none", len(b), d.Kind)
	}
	return nil
}

func (d *Data) CollectVoid() error {
	if err := d.expect(KindVoid); err != nil {
		return err
	}
	return d.emptyPayload()
}

func (d *Data) CollectString() (string, error) {
	if err := d.expect(KindString); err != nil {
		return "", err
	}
	b, err := d.payload()
	if err != nil {
		return "", err
	}
	if !utf8.Valid(b) {
		return "", dataErrf(d.Path, b, 0, ErrInvalidUTF8, "")
	}
	return string(b), nil
}

func (d *Data) CollectBinary() ([]byte, error) {
	if err := d.expect(KindBinary); err != nil {
		return nil, err
	}
	return d.payload()
}

// BinaryReader streams a binary payload instead of materializing it. Closing
// the reader releases the leaf.
func (d *Data) BinaryReader() (io.ReadCloser, error) {
	if err := d.expect(KindBinary); err != nil {
		return nil, err
	}
	return d.f, nil
}

func (d *Data) CollectBool() (bool, error) {
	if !d.Kind.IsBool() {
		d.Close()
		return false, typeErr(d.Path, d.Kind, "bool")
	}
	if err := d.emptyPayload(); err != nil {
		return false, err
	}
	return d.Kind == KindTrue, nil
}

func collectFixed[T Element](d *Data) (T, error) {
	var zero T
	kind := elementKind[T]()
	if err := d.expect(kind); err != nil {
		return zero, err
	}
	b, err := d.payload()
	if err != nil {
		return zero, err
	}
	if len(b) != kind.Width() {
		return zero, dataErrf(d.Path, b, 0, ErrInvalidByteLength, "%d bytes for %v, wanted %d", len(b), kind, kind.Width())
	}
	return decodeElement[T](b), nil
}

func (d *Data) CollectI8() (int8, error)      { return collectFixed[int8](d) }
func (d *Data) CollectI16() (int16, error)    { return collectFixed[int16](d) }
func (d *Data) CollectI32() (int32, error)    { return collectFixed[int32](d) }
func (d *Data) CollectI64() (int64, error)    { return collectFixed[int64](d) }
func (d *Data) CollectI128() (Int128, error)  { return collectFixed[Int128](d) }
func (d *Data) CollectU8() (uint8, error)     { return collectFixed[uint8](d) }
func (d *Data) CollectU16() (uint16, error)   { return collectFixed[uint16](d) }
func (d *Data) CollectU32() (uint32, error)   { return collectFixed[uint32](d) }
func (d *Data) CollectU64() (uint64, error)   { return collectFixed[uint64](d) }
func (d *Data) CollectU128() (Uint128, error) { return collectFixed[Uint128](d) }
func (d *Data) CollectF32() (float32, error)  { return collectFixed[float32](d) }
func (d *Data) CollectF64() (float64, error)  { return collectFixed[float64](d) }

// CollectLinkPath returns the raw target path of a link leaf.
func (d *Data) CollectLinkPath() (string, error) {
	if err := d.expect(KindLink); err != nil {
		return "", err
	}
	b, err := d.payload()
	if err != nil {
		return "", err
	}
	if !utf8.Valid(b) {
		return "", dataErrf(d.Path, b, 0, ErrInvalidUTF8, "link target")
	}
	return string(b), nil
}

// CollectLink follows a link leaf and returns the loaded target leaf, which
// is resolved from the root container of db.
func (d *Data) CollectLink(db *DB) (*Data, error) {
	target, err := d.CollectLinkPath()
	if err != nil {
		return nil, err
	}
	return db.ResolveData(target)
}

// ArrayElems scans an array leaf one element at a time. Iteration stops after
// the first error, and the leaf is released when iteration ends.
func ArrayElems[T Element](d *Data) iter.Seq2[T, error] {
	return func(yield func(T, error) bool) {
		if err := d.expectArrayOf(elementKind[T]()); err != nil {
			var zero T
			yield(zero, err)
			return
		}
		for v, err := range elems[T](d) {
			if !yield(v, err) {
				return
			}
		}
	}
}

// CollectArray reads a whole array leaf.
func CollectArray[T Element](d *Data) ([]T, error) {
	return collectSlice(ArrayElems[T](d))
}

func (d *Data) expectArrayOf(want Kind) error {
	if err := d.expect(KindArray); err != nil {
		return err
	}
	elem, err := d.arrayElemKind()
	if err != nil {
		return err
	}
	if elem != want {
		d.Close()
		return &TypeError{d.Path, "array of " + elem.String(), "array of " + want.String()}
	}
	return nil
}

func (d *Data) arrayElemKind() (Kind, error) {
	tag, err := d.f.ReadByte()
	if err != nil {
		d.Close()
		if errors.Is(err, ofile.ErrEndOfStream) {
			return 0, dataErrf(d.Path, nil, 1, ErrInvalidTag, "missing array element kind")
		}
		return 0, ioErr("read", d.Path, err)
	}
	elem, err := KindFromByte(tag)
	if err == nil && !elem.IsNumeric() {
		err = dataErrf(d.Path, []byte{tag}, 1, ErrInvalidTag, "%v cannot be an array element", elem)
	}
	if err != nil {
		d.Close()
		return 0, atPath(err, d.Path, 1)
	}
	return elem, nil
}

// elems decodes elements until the end of the leaf; the element kind tag must
// already be consumed.
func elems[T Element](d *Data) iter.Seq2[T, error] {
	return func(yield func(T, error) bool) {
		defer d.Close()
		var zero T
		buf := make([]byte, elementKind[T]().Width())
		for {
			n, err := io.ReadFull(d.f, buf)
			switch err {
			case nil:
				if !yield(decodeElement[T](buf), nil) {
					return
				}
			case io.EOF:
				return
			case io.ErrUnexpectedEOF:
				yield(zero, dataErrf(d.Path, buf[:n], 0, ErrInvalidByteLength, "trailing partial element: %d of %d bytes", n, len(buf)))
				return
			default:
				yield(zero, ioErr("read", d.Path, err))
				return
			}
		}
	}
}

func collectSlice[T any](seq iter.Seq2[T, error]) ([]T, error) {
	out := []T{}
	for v, err := range seq {
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

// Collect decodes the leaf into the natural Go value for its kind: nil for
// void, string, []byte, bool, Link, the fixed-width numeric types, or a slice
// of them for arrays.
func (d *Data) Collect() (any, error) {
	switch d.Kind {
	case KindVoid:
		return nil, d.CollectVoid()
	case KindString:
		return d.CollectString()
	case KindBinary:
		return d.CollectBinary()
	case KindTrue, KindFalse:
		return d.CollectBool()
	case KindLink:
		s, err := d.CollectLinkPath()
		return Link(s), err
	case KindI8:
		return d.CollectI8()
	case KindI16:
		return d.CollectI16()
	case KindI32:
		return d.CollectI32()
	case KindI64:
		return d.CollectI64()
	case KindI128:
		return d.CollectI128()
	case KindU8:
		return d.CollectU8()
	case KindU16:
		return d.CollectU16()
	case KindU32:
		return d.CollectU32()
	case KindU64:
		return d.CollectU64()
	case KindU128:
		return d.CollectU128()
	case KindF32:
		return d.CollectF32()
	case KindF64:
		return d.CollectF64()
	case KindArray:
		elem, err := d.arrayElemKind()
		if err != nil {
			return nil, err
		}
		return collectAnyArray(d, elem)
	}
	panic("unreachable")
}

func collectAnyArray(d *Data, elem Kind) (any, error) {
	switch elem {
	case KindI8:
		return collectSlice(elems[int8](d))
	case KindI16:
		return collectSlice(elems[int16](d))
	case KindI32:
		return collectSlice(elems[int32](d))
	case KindI64:
		return collectSlice(elems[int64](d))
	case KindI128:
		return collectSlice(elems[Int128](d))
	case KindU8:
		return collectSlice(elems[uint8](d))
	case KindU16:
		return collectSlice(elems[uint16](d))
	case KindU32:
		return collectSlice(elems[uint32](d))
	case KindU64:
		return collectSlice(elems[uint64](d))
	case KindU128:
		return collectSlice(elems[Uint128](d))
	case KindF32:
		return collectSlice(elems[float32](d))
	case KindF64:
		return collectSlice(elems[float64](d))
	}
	panic("unreachable")
}
