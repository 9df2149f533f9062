package lazydb

import (
	"errors"
	"io"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/andreyvit/lazydb/lazytest"
	"github.com/andreyvit/lazydb/ofile"
)

func TestLeaf_Encoding(t *testing.T) {
	tests := []struct {
		name  string
		write func(w *ofile.File) error
		bytes string
		value any
	}{
		{"void", NewVoid, "00", nil},
		{"string", func(w *ofile.File) error { return NewString(w, "héllo") }, "01 'h c3a9 'llo", "héllo"},
		{"empty string", func(w *ofile.File) error { return NewString(w, "") }, "01", ""},
		{"binary", func(w *ofile.File) error { return NewBinary(w, []byte{0, 1, 0xff}) }, "02 00_01_ff", []byte{0, 1, 0xff}},
		{"i8", func(w *ofile.File) error { return NewI8(w, -2) }, "03 fe", int8(-2)},
		{"i16", func(w *ofile.File) error { return NewI16(w, -300) }, "04 fe_d4", int16(-300)},
		{"i32", func(w *ofile.File) error { return NewI32(w, -5) }, "05 ff_ff_ff_fb", int32(-5)},
		{"i64", func(w *ofile.File) error { return NewI64(w, 0x0102030405060708) }, "06 01_02_03_04_05_06_07_08", int64(0x0102030405060708)},
		{"i128", func(w *ofile.File) error { return NewI128(w, Int128From64(-1)) }, "07 ff*16", Int128From64(-1)},
		{"u8", func(w *ofile.File) error { return NewU8(w, 200) }, "08 c8", uint8(200)},
		{"u16", func(w *ofile.File) error { return NewU16(w, 0xbeef) }, "09 be_ef", uint16(0xbeef)},
		{"u32", func(w *ofile.File) error { return NewU32(w, 7) }, "0a 00_00_00_07", uint32(7)},
		{"u64", func(w *ofile.File) error { return NewU64(w, math.MaxUint64) }, "0b ff*8", uint64(math.MaxUint64)},
		{"u128", func(w *ofile.File) error { return NewU128(w, Uint128{Hi: 1, Lo: 2}) }, "0c 00*7 01 00*7 02", Uint128{Hi: 1, Lo: 2}},
		{"f32", func(w *ofile.File) error { return NewF32(w, 1.5) }, "0d 3f_c0_00_00", float32(1.5)},
		{"f64", func(w *ofile.File) error { return NewF64(w, -2) }, "0e c0 00*7", float64(-2)},
		{"true", func(w *ofile.File) error { return NewBool(w, true) }, "0f", true},
		{"false", func(w *ofile.File) error { return NewBool(w, false) }, "10", false},
		{"link", func(w *ofile.File) error { return NewLink(w, "ab") }, "11 'ab", Link("ab")},
	}
	dir := lazytest.Env(t)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(dir, tt.name)
			ensure(tt.write(must(ofile.Create(path))))
			lazytest.Eq(t, path, tt.bytes)

			d := must(LoadData(path))
			deepEqual(t, d.Path, path)
			v, err := d.Collect()
			if err != nil {
				t.Fatalf("** Collect: %v", err)
			}
			deepEqual(t, v, tt.value)
		})
	}
}

func TestLeaf_TypedCollectors(t *testing.T) {
	c := root(t, setup(t))
	put(t, c, "s", func(w *ofile.File) error { return NewString(w, "x") })
	put(t, c, "n", func(w *ofile.File) error { return NewI64(w, math.MinInt64) })
	put(t, c, "f", func(w *ofile.File) error { return NewF64(w, math.Inf(-1)) })
	put(t, c, "b", func(w *ofile.File) error { return NewBool(w, true) })
	put(t, c, "v", NewVoid)

	deepEqual(t, must(must(c.ReadData("s")).CollectString()), "x")
	deepEqual(t, must(must(c.ReadData("n")).CollectI64()), int64(math.MinInt64))
	deepEqual(t, must(must(c.ReadData("f")).CollectF64()), math.Inf(-1))
	deepEqual(t, must(must(c.ReadData("b")).CollectBool()), true)
	ensure(must(c.ReadData("v")).CollectVoid())
}

func TestLeaf_FloatBitsPreserved(t *testing.T) {
	dir := lazytest.Env(t)
	nan64 := math.Float64frombits(0x7ff8_0000_dead_beef)
	path := filepath.Join(dir, "nan")
	ensure(NewF64(must(ofile.Create(path)), nan64))
	v := must(must(LoadData(path)).CollectF64())
	deepEqual(t, math.Float64bits(v), uint64(0x7ff8_0000_dead_beef))

	negZero := float32(math.Copysign(0, -1))
	path = filepath.Join(dir, "negzero")
	ensure(NewF32(must(ofile.Create(path)), negZero))
	lazytest.Eq(t, path, "0d 80_00_00_00")
	w := must(must(LoadData(path)).CollectF32())
	deepEqual(t, math.Float32bits(w), uint32(0x80000000))
}

func TestLeaf_TypeMismatchBeforePayload(t *testing.T) {
	dir := lazytest.Env(t)
	path := filepath.Join(dir, "truncated")
	// an i32 tag with a payload too short: the kind check must fire first
	lazytest.Put(t, path, "05 01")

	_, err := must(LoadData(path)).CollectString()
	isErr(t, err, ErrTypeMismatch)
	if errors.Is(err, ErrInvalidFormat) {
		t.Errorf("** got %v, wanted a type mismatch only", err)
	}
	var te *TypeError
	if errors.As(err, &te) {
		deepEqual(t, te.Stored, "i32")
		deepEqual(t, te.Wanted, "string")
	}

	_, err = must(LoadData(path)).CollectI32()
	isErr(t, err, ErrInvalidByteLength)
	isErr(t, err, ErrInvalidFormat)

	_, err = must(LoadData(path)).CollectBool()
	isErr(t, err, ErrTypeMismatch)
}

func TestLeaf_MalformedPayloads(t *testing.T) {
	tests := []struct {
		name    string
		bytes   string
		collect func(d *Data) error
		wanted  error
	}{
		{"long i16", "04 00_01_02", func(d *Data) error { _, err := d.CollectI16(); return err }, ErrInvalidByteLength},
		{"short u128", "0c 00*15", func(d *Data) error { _, err := d.CollectU128(); return err }, ErrInvalidByteLength},
		{"void with payload", "00 01", func(d *Data) error { return d.CollectVoid() }, ErrInvalidByteLength},
		{"true with payload", "0f 01", func(d *Data) error { _, err := d.CollectBool(); return err }, ErrInvalidByteLength},
		{"bad utf8", "01 ff_fe", func(d *Data) error { _, err := d.CollectString(); return err }, ErrInvalidUTF8},
		{"bad utf8 link", "11 c3", func(d *Data) error { _, err := d.CollectLinkPath(); return err }, ErrInvalidUTF8},
	}
	dir := lazytest.Env(t)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(dir, tt.name)
			lazytest.Put(t, path, tt.bytes)
			err := tt.collect(must(LoadData(path)))
			isErr(t, err, tt.wanted)
			isErr(t, err, ErrInvalidFormat)
		})
	}
}

func TestLoadData_Errors(t *testing.T) {
	dir := lazytest.Env(t)

	_, err := LoadData(filepath.Join(dir, "missing"))
	isErr(t, err, ErrNotFound)

	ensure(os.Mkdir(filepath.Join(dir, "sub"), 0o755))
	_, err = LoadData(filepath.Join(dir, "sub"))
	isErr(t, err, ErrNotFound)

	lazytest.Put(t, filepath.Join(dir, "empty"))
	_, err = LoadData(filepath.Join(dir, "empty"))
	isErr(t, err, ErrInvalidTag)

	lazytest.Put(t, filepath.Join(dir, "badtag"), "13 00")
	_, err = LoadData(filepath.Join(dir, "badtag"))
	isErr(t, err, ErrInvalidTag)
	var de *DataError
	if errors.As(err, &de) {
		deepEqual(t, de.Path, filepath.Join(dir, "badtag"))
	}
}

func TestLeaf_Link(t *testing.T) {
	db := setup(t)
	c := root(t, db)
	put(t, c, "a/b/target", func(w *ofile.File) error { return NewU16(w, 77) })
	put(t, c, "x/ref", func(w *ofile.File) error { return NewLink(w, "a/b/target") })
	put(t, c, "dangling", func(w *ofile.File) error { return NewLink(w, "a/nope") })

	target := must(must(c.ResolveData("x/ref")).CollectLink(db))
	deepEqual(t, target.Kind, KindU16)
	deepEqual(t, must(target.CollectU16()), uint16(77))

	_, err := must(c.ResolveData("dangling")).CollectLink(db)
	isErr(t, err, ErrNotFound)

	_, err = must(c.ResolveData("a/b/target")).CollectLink(db)
	isErr(t, err, ErrTypeMismatch)
}

func TestLeaf_BinaryReader(t *testing.T) {
	c := root(t, setup(t))
	payload := make([]byte, 10000)
	for i := range payload {
		payload[i] = byte(i * 7)
	}
	put(t, c, "blob", func(w *ofile.File) error { return NewBinary(w, payload) })

	r := must(must(c.ReadData("blob")).BinaryReader())
	head := make([]byte, 3)
	must(io.ReadFull(r, head))
	deepEqual(t, head, payload[:3])
	rest := must(io.ReadAll(r))
	ensure(r.Close())
	lazytest.BytesEq(t, rest, payload[3:])

	_, err := must(c.ReadData("blob")).CollectString()
	isErr(t, err, ErrTypeMismatch)
}

func TestLeafWriter_RequiresFreshStream(t *testing.T) {
	dir := lazytest.Env(t)
	path := filepath.Join(dir, "leaf")
	lazytest.Put(t, path, "05 00_00_00_01")

	err := NewI32(must(ofile.Open(path)), 2)
	isErr(t, err, ErrIO)
	lazytest.Eq(t, path, "05 00_00_00_01")
}
