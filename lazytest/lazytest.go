// Package lazytest holds helpers shared by lazydb tests: isolated scratch
// directories, hex byte specs and readable byte diffs.
package lazytest

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"sync/atomic"
	"testing"
)

var envSeq atomic.Uint64

// Env returns a fresh directory for one test. Each call gets a distinct
// numbered subdirectory of t.TempDir(), which the testing package removes.
func Env(t testing.TB) string {
	t.Helper()
	dir := filepath.Join(t.TempDir(), strconv.FormatUint(envSeq.Add(1), 10))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("creating test env: %v", err)
	}
	return dir
}

// Put writes a file assembled from hex specs (see Expand).
func Put(t testing.TB, path string, specs ...string) {
	t.Helper()
	if err := os.WriteFile(path, Expand(specs...), 0o644); err != nil {
		t.Fatalf("writing %v: %v", path, err)
	}
}

// Data returns the file contents, or nil if it does not exist.
func Data(t testing.TB, path string) []byte {
	t.Helper()
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		t.Fatalf("when reading %v: %v", path, err)
	}
	return b
}

// Eq checks that the file at path contains exactly the bytes of the specs.
func Eq(t testing.TB, path string, specs ...string) bool {
	t.Helper()
	return BytesEq(t, Data(t, path), Expand(specs...))
}

// FileNames lists the names in dir, sorted.
func FileNames(t testing.TB, dir string) []string {
	t.Helper()
	ents, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("listing %v: %v", dir, err)
	}
	var names []string
	for _, ent := range ents {
		names = append(names, ent.Name())
	}
	slices.Sort(names)
	return names
}

// Expand turns whitespace-separated byte specs into bytes:
//
//	0f_a0      hex bytes, underscores optional
//	'abc       literal text up to the next space
//	#300       uvarint
//	00*4       repeat
//	x/comment  everything after a slash is ignored
func Expand(specs ...string) []byte {
	var b []byte
	for _, spec := range specs {
		for _, elem := range strings.Fields(spec) {
			base, _, _ := strings.Cut(elem, "/")
			if base == "" {
				continue
			}

			base, repStr, _ := strings.Cut(base, "*")
			rep := 1
			if repStr != "" {
				var err error
				rep, err = strconv.Atoi(repStr)
				if err != nil {
					panic(fmt.Sprintf("invalid repeat count %q in element %q", repStr, elem))
				}
			}

			chunk, err := appendHexDecoding(nil, base)
			if err != nil {
				panic(fmt.Errorf("%w in element %q", err, elem))
			}
			for range rep {
				b = append(b, chunk...)
			}
		}
	}
	return b
}

func appendHexDecoding(data []byte, hex string) ([]byte, error) {
	if decimal, ok := strings.CutPrefix(hex, "#"); ok {
		v, err := strconv.ParseUint(decimal, 10, 64)
		if err != nil {
			return nil, err
		}
		return binary.AppendUvarint(data, v), nil
	} else if text, ok := strings.CutPrefix(hex, "'"); ok {
		return append(data, text...), nil
	}

	const none byte = 0xFF
	prev := none
	for _, c := range []byte(hex) {
		var half byte
		switch {
		case c == '_':
			continue
		case c >= '0' && c <= '9':
			half = c - '0'
		case c >= 'a' && c <= 'f':
			half = c - 'a' + 10
		case c >= 'A' && c <= 'F':
			half = c - 'A' + 10
		default:
			return nil, fmt.Errorf("invalid char '%c'", c)
		}
		if prev == none {
			prev = half
		} else {
			data = append(data, prev<<4|half)
			prev = none
		}
	}
	if prev != none {
		return nil, fmt.Errorf("odd number of hex digits")
	}
	return data, nil
}

// HexDump formats b as 8-byte rows, marking the byte at highlightOff with '>'.
func HexDump(b []byte, highlightOff int) string {
	var buf strings.Builder
	n := len(b)
	for off := 0; ; off += 8 {
		fmt.Fprintf(&buf, "%08x", off)
		if off >= n {
			buf.WriteByte('\n')
			break
		}
		for i := range 8 {
			switch {
			case off+i >= n:
				buf.WriteString("   ")
			case off+i == highlightOff:
				fmt.Fprintf(&buf, ">%02x", b[off+i])
			default:
				fmt.Fprintf(&buf, " %02x", b[off+i])
			}
		}
		buf.WriteString("  |")
		for i := 0; i < 8 && off+i < n; i++ {
			if v := b[off+i]; v >= 32 && v <= 126 {
				buf.WriteByte(v)
			} else {
				buf.WriteByte('.')
			}
		}
		buf.WriteString("|\n")
		if off+8 >= n {
			break
		}
	}
	return buf.String()
}

// BytesEq reports a hex dump of both sides, pointing at the first difference.
func BytesEq(t testing.TB, a, e []byte) bool {
	if bytes.Equal(a, e) {
		return true
	}
	off := min(len(a), len(e))
	for i := range off {
		if a[i] != e[i] {
			off = i
			break
		}
	}
	t.Helper()
	t.Errorf("** got:\n%v\nwanted:\n%v\nfirst difference offset: 0x%x (%d)", HexDump(a, off), HexDump(e, off), off, off)
	return false
}
