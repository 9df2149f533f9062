package lazydb

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"os"

	"github.com/andreyvit/lazydb/mmap"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Compression selects the codec used when compiling an archive. Decompiling
// detects the codec from the stream itself.
type Compression uint8

const (
	// CompressionLZ4 writes an LZ4 frame. This is the default.
	CompressionLZ4 Compression = iota

	// CompressionZstd writes a zstd frame, trading speed for size.
	CompressionZstd
)

const (
	lz4FrameMagic  = 0x184D2204
	zstdFrameMagic = 0xFD2FB528
)

func (c Compression) String() string {
	switch c {
	case CompressionLZ4:
		return "lz4"
	case CompressionZstd:
		return "zstd"
	default:
		return fmt.Sprintf("unknown(%d)", c)
	}
}

func ParseCompression(name string) (Compression, error) {
	switch name {
	case "lz4", "":
		return CompressionLZ4, nil
	case "zstd":
		return CompressionZstd, nil
	default:
		return 0, fmt.Errorf("unknown compression %q", name)
	}
}

func (c Compression) compress(dst io.Writer, src io.Reader) error {
	var zw io.WriteCloser
	switch c {
	case CompressionLZ4:
		zw = lz4.NewWriter(dst)
	case CompressionZstd:
		enc, err := zstd.NewWriter(dst, zstd.WithEncoderLevel(zstd.SpeedDefault))
		if err != nil {
			return err
		}
		zw = enc
	default:
		return fmt.Errorf("unsupported compression %v", c)
	}
	if _, err := copyPooled(zw, src); err != nil {
		zw.Close()
		return err
	}
	return zw.Close()
}

// detectCompression identifies the codec from the frame magic at the start
// of r without consuming it.
func detectCompression(r *bufio.Reader) (Compression, error) {
	magic, err := r.Peek(4)
	if err != nil {
		return 0, fmt.Errorf("%w: reading frame magic: %v", ErrCorruptArchive, err)
	}
	switch binary.LittleEndian.Uint32(magic) {
	case lz4FrameMagic:
		return CompressionLZ4, nil
	case zstdFrameMagic:
		return CompressionZstd, nil
	default:
		return 0, fmt.Errorf("%w: unknown frame magic %x", ErrCorruptArchive, magic)
	}
}

func decompress(dst io.Writer, src io.Reader) error {
	br := bufio.NewReader(src)
	c, err := detectCompression(br)
	if err != nil {
		return err
	}
	switch c {
	case CompressionLZ4:
		_, err = copyPooled(dst, lz4.NewReader(br))
	case CompressionZstd:
		var dec *zstd.Decoder
		dec, err = zstd.NewReader(br)
		if err != nil {
			return err
		}
		defer dec.Close()
		_, err = copyPooled(dst, dec)
	}
	if err != nil {
		return fmt.Errorf("%w: %v stream: %v", ErrCorruptArchive, c, err)
	}
	return nil
}

// compressFile compresses src into dst, replacing dst only once the
// compressed stream is complete and synced.
func compressFile(src, dst string, c Compression) (err error) {
	in, err := os.Open(src)
	if err != nil {
		return ioErr("open", src, err)
	}
	defer in.Close()

	tmp := dst + ".partial"
	out, err := os.Create(tmp)
	if err != nil {
		return ioErr("create", tmp, err)
	}
	defer func() {
		if err != nil {
			out.Close()
			os.Remove(tmp)
		}
	}()

	bw := bufio.NewWriter(out)
	if err := c.compress(bw, bufio.NewReader(in)); err != nil {
		return ioErr("compress", src, err)
	}
	if err := bw.Flush(); err != nil {
		return ioErr("write", tmp, err)
	}
	if err := mmap.Fdatasync(out, nil); err != nil {
		return ioErr("sync", tmp, err)
	}
	if err := out.Close(); err != nil {
		return ioErr("close", tmp, err)
	}
	return ioErr("rename", dst, os.Rename(tmp, dst))
}

func decompressFile(src, dst string) (err error) {
	in, err := os.Open(src)
	if err != nil {
		return ioErr("open", src, err)
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return ioErr("create", dst, err)
	}
	defer func() {
		if cerr := out.Close(); err == nil {
			err = ioErr("close", dst, cerr)
		}
	}()

	bw := bufio.NewWriter(out)
	if err := decompress(bw, in); err != nil {
		return &DataError{Path: src, Err: err}
	}
	return ioErr("write", dst, bw.Flush())
}
