package main

import (
	"encoding/hex"
	"fmt"
	"math/big"
	"strconv"
	"strings"

	"github.com/andreyvit/lazydb"
	"github.com/andreyvit/lazydb/ofile"
)

type leafWriter func(w *ofile.File) error

// parseValue turns a kind name and its command-line value(s) into a leaf
// writer. Arrays are written as "array:<elem>" followed by one argument per
// element, or by a single comma-separated argument.
func parseValue(kindName string, vals []string) (leafWriter, error) {
	if elemName, ok := strings.CutPrefix(kindName, "array:"); ok {
		elem, err := lazydb.ParseKind(elemName)
		if err != nil {
			return nil, err
		}
		if len(vals) == 1 {
			vals = strings.Split(vals[0], ",")
		}
		return parseNumbers(elem, vals, false)
	}

	kind, err := lazydb.ParseKind(kindName)
	if err != nil {
		return nil, err
	}
	switch kind {
	case lazydb.KindVoid:
		if len(vals) != 0 {
			return nil, fmt.Errorf("void takes no value")
		}
		return lazydb.NewVoid, nil
	case lazydb.KindTrue, lazydb.KindFalse:
		v := kind == lazydb.KindTrue
		if kindName == "bool" || len(vals) > 0 {
			s, err := single(kindName, vals)
			if err != nil {
				return nil, err
			}
			if v, err = strconv.ParseBool(s); err != nil {
				return nil, err
			}
		}
		return func(w *ofile.File) error { return lazydb.NewBool(w, v) }, nil
	case lazydb.KindArray:
		return nil, fmt.Errorf("name the element kind, like array:u16")
	}

	s, err := single(kindName, vals)
	if err != nil {
		return nil, err
	}
	switch kind {
	case lazydb.KindString:
		return func(w *ofile.File) error { return lazydb.NewString(w, s) }, nil
	case lazydb.KindLink:
		if _, err := lazydb.SplitPath(s); err != nil {
			return nil, err
		}
		return func(w *ofile.File) error { return lazydb.NewLink(w, s) }, nil
	case lazydb.KindBinary:
		b, err := hex.DecodeString(strings.TrimPrefix(s, "0x"))
		if err != nil {
			return nil, fmt.Errorf("binary values are hex: %w", err)
		}
		return func(w *ofile.File) error { return lazydb.NewBinary(w, b) }, nil
	}
	return parseNumbers(kind, []string{s}, true)
}

func single(kindName string, vals []string) (string, error) {
	if len(vals) != 1 {
		return "", fmt.Errorf("%s takes exactly one value, got %d", kindName, len(vals))
	}
	return vals[0], nil
}

// parseNumbers builds a writer for a single number (one) or for an array.
func parseNumbers(elem lazydb.Kind, vals []string, one bool) (leafWriter, error) {
	switch elem {
	case lazydb.KindI8:
		return numbers(vals, one, parseInt[int8](8), lazydb.NewI8)
	case lazydb.KindI16:
		return numbers(vals, one, parseInt[int16](16), lazydb.NewI16)
	case lazydb.KindI32:
		return numbers(vals, one, parseInt[int32](32), lazydb.NewI32)
	case lazydb.KindI64:
		return numbers(vals, one, parseInt[int64](64), lazydb.NewI64)
	case lazydb.KindU8:
		return numbers(vals, one, parseUint[uint8](8), lazydb.NewU8)
	case lazydb.KindU16:
		return numbers(vals, one, parseUint[uint16](16), lazydb.NewU16)
	case lazydb.KindU32:
		return numbers(vals, one, parseUint[uint32](32), lazydb.NewU32)
	case lazydb.KindU64:
		return numbers(vals, one, parseUint[uint64](64), lazydb.NewU64)
	case lazydb.KindI128:
		return numbers(vals, one, parseI128, lazydb.NewI128)
	case lazydb.KindU128:
		return numbers(vals, one, parseU128, lazydb.NewU128)
	case lazydb.KindF32:
		return numbers(vals, one, parseFloat[float32](32), lazydb.NewF32)
	case lazydb.KindF64:
		return numbers(vals, one, parseFloat[float64](64), lazydb.NewF64)
	default:
		return nil, fmt.Errorf("%v is not a numeric kind", elem)
	}
}

// numbers parses every value and returns a writer for either a single
// number leaf or an array of them.
func numbers[T lazydb.Element](vals []string, one bool, parse func(string) (T, error), writeOne func(*ofile.File, T) error) (leafWriter, error) {
	parsed := make([]T, 0, len(vals))
	for _, s := range vals {
		s = strings.TrimSpace(s)
		if s == "" && !one {
			continue
		}
		v, err := parse(s)
		if err != nil {
			return nil, err
		}
		parsed = append(parsed, v)
	}
	if one {
		return func(w *ofile.File) error { return writeOne(w, parsed[0]) }, nil
	}
	return func(w *ofile.File) error { return lazydb.NewArray(w, parsed) }, nil
}

func parseInt[T int8 | int16 | int32 | int64](bits int) func(string) (T, error) {
	return func(s string) (T, error) {
		v, err := strconv.ParseInt(s, 0, bits)
		return T(v), err
	}
}

func parseUint[T uint8 | uint16 | uint32 | uint64](bits int) func(string) (T, error) {
	return func(s string) (T, error) {
		v, err := strconv.ParseUint(s, 0, bits)
		return T(v), err
	}
}

func parseFloat[T float32 | float64](bits int) func(string) (T, error) {
	return func(s string) (T, error) {
		v, err := strconv.ParseFloat(s, bits)
		return T(v), err
	}
}

func parseBig(s string) (*big.Int, error) {
	b, ok := new(big.Int).SetString(s, 0)
	if !ok {
		return nil, fmt.Errorf("invalid integer %q", s)
	}
	return b, nil
}

func parseI128(s string) (lazydb.Int128, error) {
	b, err := parseBig(s)
	if err != nil {
		return lazydb.Int128{}, err
	}
	v, ok := lazydb.Int128FromBig(b)
	if !ok {
		return v, fmt.Errorf("%s overflows i128", s)
	}
	return v, nil
}

func parseU128(s string) (lazydb.Uint128, error) {
	b, err := parseBig(s)
	if err != nil {
		return lazydb.Uint128{}, err
	}
	v, ok := lazydb.Uint128FromBig(b)
	if !ok {
		return v, fmt.Errorf("%s overflows u128", s)
	}
	return v, nil
}
