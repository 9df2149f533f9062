package lazydb

import (
	"archive/tar"
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/andreyvit/lazydb/ofile"
)

// archiveTime is stamped on every tar entry so that the same tree always
// compiles to the same bytes.
var archiveTime = time.Unix(0, 0).UTC()

// Compile writes the whole tree into the archive next to the working
// directory ("x.modb" compiles into "x.ldb") and returns its path. The
// previous archive, if any, is replaced only once the new one is complete.
func (db *DB) Compile() (string, error) {
	if db.closed {
		return "", ErrClosed
	}
	base := baseName(db.path)
	tarPath := base + tarExt
	archive := base + ArchiveExt

	err := packTar(db.path, tarPath, db.opt)
	if err == nil {
		err = compressFile(tarPath, archive, db.opt.Compression)
	}
	if rerr := os.Remove(tarPath); rerr != nil && !errors.Is(rerr, fs.ErrNotExist) {
		if err == nil {
			err = ioErr("remove", tarPath, rerr)
		}
	}
	if err != nil {
		return "", err
	}
	db.logger.LogAttrs(context.Background(), slog.LevelDebug, "lazydb: compiled archive", slog.String("dir", db.path), slog.String("archive", archive), slog.String("compression", db.opt.Compression.String()))
	return archive, nil
}

// Decompile unpacks the archive at path into a new working directory next
// to it ("x.ldb" unpacks into "x.modb") and returns the directory path. The
// directory must not exist yet. The archive itself is left alone.
func Decompile(path string, opt Options) (string, error) {
	opt = opt.withDefaults()
	path = filepath.Clean(path)
	if ok, err := isRegularFile(path); err != nil {
		return "", err
	} else if !ok {
		return "", &NotFoundError{Path: path}
	}
	base := baseName(path)
	tarPath := base + tarExt
	dir := base + DirExt
	staging := dir + ofile.StagingSuffix

	if _, err := os.Lstat(dir); err == nil {
		return "", ioErr("decompile", dir, fs.ErrExist)
	}
	os.RemoveAll(staging)

	err := decompressFile(path, tarPath)
	if err == nil {
		err = unpackTar(tarPath, staging, opt)
	}
	if rerr := os.Remove(tarPath); rerr != nil && !errors.Is(rerr, fs.ErrNotExist) {
		if err == nil {
			err = ioErr("remove", tarPath, rerr)
		}
	}
	if err == nil {
		err = ioErr("rename", dir, os.Rename(staging, dir))
	}
	if err != nil {
		os.RemoveAll(staging)
		return "", err
	}
	opt.Logger.LogAttrs(context.Background(), slog.LevelDebug, "lazydb: decompiled archive", slog.String("archive", path), slog.String("dir", dir))
	return dir, nil
}

func packTar(root, tarPath string, opt Options) (err error) {
	out, err := os.Create(tarPath)
	if err != nil {
		return ioErr("create", tarPath, err)
	}
	defer func() {
		if cerr := out.Close(); err == nil {
			err = ioErr("close", tarPath, cerr)
		}
	}()
	bw := bufio.NewWriter(out)
	tw := tar.NewWriter(bw)

	m := &manifest{Format: manifestFormat, Version: CurrentVersion.Bytes()}
	err = filepath.WalkDir(root, func(p string, de fs.DirEntry, walkErr error) error {
		if p == root {
			return walkErr
		}
		rel, err := filepath.Rel(root, p)
		if err != nil {
			return err
		}
		name := filepath.ToSlash(rel)

		if walkErr != nil {
			if _, err := attempt(opt.ErrorHandler, "pack", p, func() error { return ioErr("walk", p, walkErr) }); err != nil {
				return err
			}
			if de != nil && de.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		switch {
		case ofile.IsScratchName(de.Name()):
			opt.Logger.LogAttrs(context.Background(), slog.LevelWarn, "lazydb: not archiving scratch file", slog.String("path", p))
			return nil
		case de.IsDir():
			hdr := &tar.Header{Typeflag: tar.TypeDir, Name: name + "/", Mode: 0o755, ModTime: archiveTime}
			if err := tw.WriteHeader(hdr); err != nil {
				return ioErr("write", tarPath, err)
			}
			m.Entries = append(m.Entries, manifestEntry{Name: name, Dir: true})
			return nil
		case !de.Type().IsRegular():
			opt.Logger.LogAttrs(context.Background(), slog.LevelWarn, "lazydb: not archiving special file", slog.String("path", p), slog.String("type", de.Type().String()))
			return nil
		}

		// whole leaves are read before anything is written, so that a retry
		// or skip never leaves a partial entry in the tar stream
		var data []byte
		skipped, err := attempt(opt.ErrorHandler, "pack", p, func() (err error) {
			data, err = os.ReadFile(p)
			return ioErr("read", p, err)
		})
		if err != nil || skipped {
			return err
		}
		hdr := &tar.Header{Typeflag: tar.TypeReg, Name: name, Size: int64(len(data)), Mode: 0o644, ModTime: archiveTime}
		if err := tw.WriteHeader(hdr); err != nil {
			return ioErr("write", tarPath, err)
		}
		if _, err := tw.Write(data); err != nil {
			return ioErr("write", tarPath, err)
		}
		m.Entries = append(m.Entries, fileEntry(name, data))
		return nil
	})
	if err != nil {
		return err
	}

	raw := m.encode()
	hdr := &tar.Header{Typeflag: tar.TypeReg, Name: manifestName, Size: int64(len(raw)), Mode: 0o644, ModTime: archiveTime}
	if err := tw.WriteHeader(hdr); err != nil {
		return ioErr("write", tarPath, err)
	}
	if _, err := tw.Write(raw); err != nil {
		return ioErr("write", tarPath, err)
	}
	if err := tw.Close(); err != nil {
		return ioErr("write", tarPath, err)
	}
	return ioErr("write", tarPath, bw.Flush())
}

// entryName validates a tar entry name and returns it in canonical
// slash-separated form.
func entryName(raw string) (string, bool) {
	name := path.Clean(strings.TrimSuffix(raw, "/"))
	if name == "." || path.IsAbs(name) || name == ".." || strings.HasPrefix(name, "../") || strings.ContainsRune(name, '\\') {
		return "", false
	}
	return name, true
}

func unpackTar(tarPath, dest string, opt Options) (err error) {
	in, err := os.Open(tarPath)
	if err != nil {
		return ioErr("open", tarPath, err)
	}
	defer in.Close()
	if err := os.MkdirAll(dest, 0o755); err != nil {
		return ioErr("mkdir", dest, err)
	}

	var m *manifest
	got := make(map[string]manifestEntry)
	skipped := make(map[string]bool)

	tr := tar.NewReader(bufio.NewReader(in))
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		} else if err != nil {
			return dataErrf(tarPath, nil, 0, ErrCorruptArchive, "%v", err)
		}
		name, ok := entryName(hdr.Name)
		if !ok {
			return dataErrf(tarPath, nil, 0, ErrCorruptArchive, "bad entry name %q", hdr.Name)
		}

		if name == manifestName {
			raw, err := io.ReadAll(tr)
			if err != nil {
				return dataErrf(tarPath, nil, 0, ErrCorruptArchive, "%v", err)
			}
			if m, err = decodeManifest(tarPath, raw); err != nil {
				return err
			}
			continue
		}

		target := filepath.Join(dest, filepath.FromSlash(name))
		switch hdr.Typeflag {
		case tar.TypeDir:
			s, err := attempt(opt.ErrorHandler, "unpack", target, func() error {
				return ioErr("mkdir", target, os.MkdirAll(target, 0o755))
			})
			if err != nil {
				return err
			}
			if s {
				skipped[name] = true
			} else {
				got[name] = manifestEntry{Name: name, Dir: true}
			}

		case tar.TypeReg:
			data, err := io.ReadAll(tr)
			if err != nil {
				return dataErrf(tarPath, nil, 0, ErrCorruptArchive, "reading %q: %v", name, err)
			}
			s, err := attempt(opt.ErrorHandler, "unpack", target, func() error {
				if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
					return ioErr("mkdir", filepath.Dir(target), err)
				}
				return ioErr("write", target, os.WriteFile(target, data, 0o644))
			})
			if err != nil {
				return err
			}
			if s {
				skipped[name] = true
			} else {
				got[name] = fileEntry(name, data)
			}

		default:
			opt.Logger.LogAttrs(context.Background(), slog.LevelWarn, "lazydb: ignoring unsupported archive entry", slog.String("archive", tarPath), slog.String("name", name), slog.String("type", fmt.Sprintf("%c", hdr.Typeflag)))
		}
	}

	if m == nil {
		opt.Logger.LogAttrs(context.Background(), slog.LevelWarn, "lazydb: archive has no manifest, contents not verified", slog.String("archive", tarPath))
		return nil
	}
	return m.verify(tarPath, got, skipped)
}
