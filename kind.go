package lazydb

import (
	"fmt"
	"math/big"
)

// Kind identifies the shape of a leaf payload. Kind values are written to
// disk as the first byte of every leaf, so the numbering is fixed forever.
type Kind uint8

const (
	KindVoid Kind = iota
	KindString
	KindBinary
	KindI8
	KindI16
	KindI32
	KindI64
	KindI128
	KindU8
	KindU16
	KindU32
	KindU64
	KindU128
	KindF32
	KindF64
	KindTrue
	KindFalse
	KindLink
	KindArray

	kindCount
)

var kindNames = [kindCount]string{
	KindVoid:   "void",
	KindString: "string",
	KindBinary: "binary",
	KindI8:     "i8",
	KindI16:    "i16",
	KindI32:    "i32",
	KindI64:    "i64",
	KindI128:   "i128",
	KindU8:     "u8",
	KindU16:    "u16",
	KindU32:    "u32",
	KindU64:    "u64",
	KindU128:   "u128",
	KindF32:    "f32",
	KindF64:    "f64",
	KindTrue:   "true",
	KindFalse:  "false",
	KindLink:   "link",
	KindArray:  "array",
}

func (k Kind) String() string {
	if k < kindCount {
		return kindNames[k]
	}
	return fmt.Sprintf("unknown(%d)", uint8(k))
}

// ParseKind is the inverse of Kind.String. "bool" is accepted as an alias
// for "true" so that command-line callers can name the boolean family.
func ParseKind(name string) (Kind, error) {
	if name == "bool" {
		return KindTrue, nil
	}
	for k, n := range kindNames {
		if n == name {
			return Kind(k), nil
		}
	}
	return 0, fmt.Errorf("unknown kind: %q", name)
}

// Byte returns the on-disk tag of k.
func (k Kind) Byte() byte {
	return byte(k)
}

// KindFromByte decodes a tag byte. Unknown bytes fail with ErrInvalidTag.
func KindFromByte(b byte) (Kind, error) {
	if Kind(b) >= kindCount {
		return 0, &DataError{Data: []byte{b}, Err: ErrInvalidTag, Msg: fmt.Sprintf("tag %d", b)}
	}
	return Kind(b), nil
}

// Width returns the fixed payload size of a numeric kind, or 0 for kinds
// whose payload size is implied by the file size (or that have none).
func (k Kind) Width() int {
	switch k {
	case KindI8, KindU8:
		return 1
	case KindI16, KindU16:
		return 2
	case KindI32, KindU32, KindF32:
		return 4
	case KindI64, KindU64, KindF64:
		return 8
	case KindI128, KindU128:
		return 16
	default:
		return 0
	}
}

// IsNumeric reports whether k has a fixed-width payload and can therefore be
// an array element.
func (k Kind) IsNumeric() bool {
	return k.Width() != 0
}

// IsBool reports whether k is one of the two payload-less boolean kinds.
func (k Kind) IsBool() bool {
	return k == KindTrue || k == KindFalse
}

// Int128 is a two's complement 128-bit signed integer.
type Int128 struct {
	Hi int64
	Lo uint64
}

// Uint128 is a 128-bit unsigned integer.
type Uint128 struct {
	Hi uint64
	Lo uint64
}

func Int128From64(v int64) Int128 {
	return Int128{Hi: v >> 63, Lo: uint64(v)}
}

func Uint128From64(v uint64) Uint128 {
	return Uint128{Lo: v}
}

func (v Uint128) Big() *big.Int {
	b := new(big.Int).SetUint64(v.Hi)
	b.Lsh(b, 64)
	return b.Or(b, new(big.Int).SetUint64(v.Lo))
}

func (v Int128) Big() *big.Int {
	b := Uint128{Hi: uint64(v.Hi), Lo: v.Lo}.Big()
	if v.Hi < 0 {
		b.Sub(b, new(big.Int).Lsh(big.NewInt(1), 128))
	}
	return b
}

func (v Int128) String() string  { return v.Big().String() }
func (v Uint128) String() string { return v.Big().String() }

// Uint128FromBig converts b, reporting false if it is negative or does not
// fit in 128 bits.
func Uint128FromBig(b *big.Int) (Uint128, bool) {
	if b.Sign() < 0 || b.BitLen() > 128 {
		return Uint128{}, false
	}
	lo := new(big.Int).And(b, maxUint64Big).Uint64()
	hi := new(big.Int).Rsh(b, 64).Uint64()
	return Uint128{Hi: hi, Lo: lo}, true
}

// Int128FromBig converts b, reporting false if it does not fit in 128 bits.
func Int128FromBig(b *big.Int) (Int128, bool) {
	if b.Cmp(minInt128Big) < 0 || b.Cmp(maxInt128Big) > 0 {
		return Int128{}, false
	}
	u := new(big.Int).Set(b)
	if u.Sign() < 0 {
		u.Add(u, twoPow128Big)
	}
	v, _ := Uint128FromBig(u)
	return Int128{Hi: int64(v.Hi), Lo: v.Lo}, true
}

var (
	maxUint64Big = new(big.Int).SetUint64(^uint64(0))
	twoPow128Big = new(big.Int).Lsh(big.NewInt(1), 128)
	maxInt128Big = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 127), big.NewInt(1))
	minInt128Big = new(big.Int).Neg(new(big.Int).Lsh(big.NewInt(1), 127))
)
