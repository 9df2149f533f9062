package lazydb

import (
	"encoding/binary"
	"math"
)

// Element is the set of Go types that map onto fixed-width numeric kinds.
// Only these can be stored in arrays or updated in place.
type Element interface {
	int8 | int16 | int32 | int64 | Int128 |
		uint8 | uint16 | uint32 | uint64 | Uint128 |
		float32 | float64
}

func elementKind[T Element]() Kind {
	var zero T
	switch any(zero).(type) {
	case int8:
		return KindI8
	case int16:
		return KindI16
	case int32:
		return KindI32
	case int64:
		return KindI64
	case Int128:
		return KindI128
	case uint8:
		return KindU8
	case uint16:
		return KindU16
	case uint32:
		return KindU32
	case uint64:
		return KindU64
	case Uint128:
		return KindU128
	case float32:
		return KindF32
	case float64:
		return KindF64
	}
	panic("unreachable")
}

func appendElement[T Element](buf []byte, v T) []byte {
	be := binary.BigEndian
	switch v := any(v).(type) {
	case int8:
		return append(buf, byte(v))
	case int16:
		return be.AppendUint16(buf, uint16(v))
	case int32:
		return be.AppendUint32(buf, uint32(v))
	case int64:
		return be.AppendUint64(buf, uint64(v))
	case Int128:
		return be.AppendUint64(be.AppendUint64(buf, uint64(v.Hi)), v.Lo)
	case uint8:
		return append(buf, v)
	case uint16:
		return be.AppendUint16(buf, v)
	case uint32:
		return be.AppendUint32(buf, v)
	case uint64:
		return be.AppendUint64(buf, v)
	case Uint128:
		return be.AppendUint64(be.AppendUint64(buf, v.Hi), v.Lo)
	case float32:
		return be.AppendUint32(buf, math.Float32bits(v))
	case float64:
		return be.AppendUint64(buf, math.Float64bits(v))
	}
	panic("unreachable")
}

// decodeElement decodes exactly one element; len(b) must equal the width of
// the element kind.
func decodeElement[T Element](b []byte) T {
	be := binary.BigEndian
	var zero T
	var v any
	switch any(zero).(type) {
	case int8:
		v = int8(b[0])
	case int16:
		v = int16(be.Uint16(b))
	case int32:
		v = int32(be.Uint32(b))
	case int64:
		v = int64(be.Uint64(b))
	case Int128:
		v = Int128{Hi: int64(be.Uint64(b)), Lo: be.Uint64(b[8:])}
	case uint8:
		v = b[0]
	case uint16:
		v = be.Uint16(b)
	case uint32:
		v = be.Uint32(b)
	case uint64:
		v = be.Uint64(b)
	case Uint128:
		v = Uint128{Hi: be.Uint64(b), Lo: be.Uint64(b[8:])}
	case float32:
		v = math.Float32frombits(be.Uint32(b))
	case float64:
		v = math.Float64frombits(be.Uint64(b))
	}
	return v.(T)
}
