package lazydb

import (
	"encoding/hex"
	"fmt"
	"path/filepath"
	"strings"
)

type DumpFlags uint64

const (
	DumpKinds = DumpFlags(1 << iota)
	DumpValues
	DumpSizes
	DumpStats

	DumpAll = DumpFlags(0xFFFFFFFFFFFFFFFF)

	indentStep = "  "

	// dumpValueLimit caps how much of a long string or blob is printed.
	dumpValueLimit = 64
)

var dumpSep = strings.Repeat("=", 80)

func (f DumpFlags) Contains(v DumpFlags) bool {
	return (f & v) == v
}

// Dump renders the subtree of c for debugging. Leaves that fail to decode
// are printed with their error instead of aborting the dump.
func (c *Container) Dump(f DumpFlags) (string, error) {
	var buf strings.Builder
	if f.Contains(DumpStats) {
		s, err := c.Stats()
		if err != nil {
			return "", err
		}
		fmt.Fprintln(&buf, dumpSep)
		fmt.Fprintf(&buf, "%s: containers = %d, leaves = %d, leaf_bytes = %d, scratch = %d, scratch_bytes = %d\n", c.path, s.Containers, s.Leaves, s.LeafBytes, s.Scratch, s.ScratchBytes)
		fmt.Fprintln(&buf, dumpSep)
	}
	if err := c.dumpInto(&buf, "", f); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func (c *Container) dumpInto(w *strings.Builder, indent string, f DumpFlags) error {
	entries, err := c.List()
	if err != nil {
		return err
	}
	for _, e := range entries {
		if e.Container {
			fmt.Fprintf(w, "%s%s/\n", indent, e.Key)
			sub := &Container{filepath.Join(c.path, e.Key)}
			if err := sub.dumpInto(w, indent+indentStep, f); err != nil {
				return err
			}
			continue
		}
		fmt.Fprintf(w, "%s%s%s\n", indent, e.Key, c.describeLeaf(e, f))
	}
	return nil
}

func (c *Container) describeLeaf(e Entry, f DumpFlags) string {
	var buf strings.Builder
	d, err := c.ReadData(e.Key)
	if err != nil {
		fmt.Fprintf(&buf, " ** ERROR: %v", err)
		return buf.String()
	}
	if f.Contains(DumpKinds) {
		fmt.Fprintf(&buf, " (%v)", d.Kind)
	}
	if f.Contains(DumpSizes) {
		fmt.Fprintf(&buf, " [%d]", e.Size)
	}
	if !f.Contains(DumpValues) {
		d.Close()
		return buf.String()
	}
	v, err := d.Collect()
	if err != nil {
		fmt.Fprintf(&buf, " ** ERROR: %v", err)
	} else {
		fmt.Fprintf(&buf, " = %s", FormatValue(v))
	}
	return buf.String()
}

// FormatValue renders a collected leaf value on one line.
func FormatValue(v any) string {
	switch v := v.(type) {
	case nil:
		return "void"
	case string:
		return fmt.Sprintf("%q", truncate(v, dumpValueLimit))
	case []byte:
		if len(v) > dumpValueLimit/2 {
			return fmt.Sprintf("0x%s... (%d bytes)", hex.EncodeToString(v[:dumpValueLimit/2]), len(v))
		}
		return "0x" + hex.EncodeToString(v)
	case Link:
		return "-> " + string(v)
	default:
		return fmt.Sprint(v)
	}
}
