package lazydb

import (
	"bytes"
	"fmt"
	"slices"

	"github.com/cespare/xxhash/v2"
	"github.com/vmihailenco/msgpack/v5"
)

const (
	// manifestName is the tar entry that lists the archive contents. It is
	// checked on decompile and never extracted.
	manifestName   = ".lzdb-manifest"
	manifestFormat = 1
)

type manifest struct {
	Format  int             `msgpack:"f"`
	Version []byte          `msgpack:"v"`
	Entries []manifestEntry `msgpack:"e"`
}

type manifestEntry struct {
	Name string `msgpack:"n"`
	Dir  bool   `msgpack:"d,omitempty"`
	Size int64  `msgpack:"s,omitempty"`
	Sum  uint64 `msgpack:"h,omitempty"`
}

func fileEntry(name string, data []byte) manifestEntry {
	return manifestEntry{Name: name, Size: int64(len(data)), Sum: xxhash.Sum64(data)}
}

func (m *manifest) encode() []byte {
	var buf bytes.Buffer
	enc := msgpack.GetEncoder()
	enc.Reset(&buf)
	enc.SetSortMapKeys(true)
	err := enc.Encode(m)
	msgpack.PutEncoder(enc)
	if err != nil {
		panic(fmt.Errorf("failed to encode manifest: %w", err))
	}
	return buf.Bytes()
}

func decodeManifest(path string, data []byte) (*manifest, error) {
	var m manifest
	dec := msgpack.GetDecoder()
	dec.Reset(bytes.NewReader(data))
	err := dec.Decode(&m)
	msgpack.PutDecoder(dec)
	if err != nil {
		return nil, dataErrf(path, data, 0, ErrCorruptArchive, "failed to decode manifest: %v", err)
	}
	if m.Format != manifestFormat {
		return nil, dataErrf(path, nil, 0, ErrCorruptArchive, "unsupported manifest format %d", m.Format)
	}
	return &m, nil
}

// verify checks the unpacked entries against the manifest. Names in skipped
// were dropped by the error handler and are not expected.
func (m *manifest) verify(path string, got map[string]manifestEntry, skipped map[string]bool) error {
	seen := make(map[string]bool, len(m.Entries))
	for _, want := range m.Entries {
		seen[want.Name] = true
		if skipped[want.Name] {
			continue
		}
		e, ok := got[want.Name]
		switch {
		case !ok:
			return dataErrf(path, nil, 0, ErrCorruptArchive, "missing %q", want.Name)
		case e.Dir != want.Dir:
			return dataErrf(path, nil, 0, ErrCorruptArchive, "%q changed type", want.Name)
		case e.Size != want.Size:
			return dataErrf(path, nil, 0, ErrCorruptArchive, "%q is %d bytes, wanted %d", want.Name, e.Size, want.Size)
		case e.Sum != want.Sum:
			return dataErrf(path, nil, 0, ErrCorruptArchive, "%q checksum %016x, wanted %016x", want.Name, e.Sum, want.Sum)
		}
	}
	var extra []string
	for name := range got {
		if !seen[name] {
			extra = append(extra, name)
		}
	}
	if len(extra) > 0 {
		slices.Sort(extra)
		return dataErrf(path, nil, 0, ErrCorruptArchive, "unlisted entries %q", extra)
	}
	return nil
}
