package lazydb

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/andreyvit/lazydb/ofile"
)

const (
	// DirExt is the extension of a working directory that belongs to an archive.
	DirExt = ".modb"

	// ArchiveExt is the extension of a compiled archive.
	ArchiveExt = ".ldb"

	tarExt = ".tmp.tar"
)

type Options struct {
	Logger *slog.Logger

	// Compression is used by Compile. Decompile detects it.
	Compression Compression

	// ErrorHandler decides what happens when a single file fails while
	// packing, unpacking or recovering a tree. Defaults to AbortOnError.
	ErrorHandler ErrorHandler
}

func (o Options) withDefaults() Options {
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	if o.ErrorHandler == nil {
		o.ErrorHandler = AbortOnError
	}
	return o
}

// DB is an open database: a root container with a version marker, optionally
// backed by an archive it gets compiled back into on Close.
type DB struct {
	path       string
	root       *Container
	compressed bool
	closed     bool

	opt    Options
	logger *slog.Logger
}

func newDB(path string, opt Options) *DB {
	opt = opt.withDefaults()
	return &DB{
		path:   filepath.Clean(path),
		root:   &Container{path},
		opt:    opt,
		logger: opt.Logger,
	}
}

// Path returns the root directory of the database.
func (db *DB) Path() string {
	return db.path
}

// Compressed reports whether the database came from an archive and will be
// compiled back into it on Close.
func (db *DB) Compressed() bool {
	return db.compressed
}

func (db *DB) Container() (*Container, error) {
	if db.closed {
		return nil, ErrClosed
	}
	return db.root, nil
}

// ResolveData loads the leaf at a slash-separated path from the root.
func (db *DB) ResolveData(path string) (*Data, error) {
	c, err := db.Container()
	if err != nil {
		return nil, err
	}
	return c.ResolveData(path)
}

// ArchivePath returns the archive this database compiles into.
func (db *DB) ArchivePath() string {
	return baseName(db.path) + ArchiveExt
}

// Init creates the database directory at path if needed and writes the
// version marker unless one is already present. An existing marker is not
// validated.
func Init(path string, opt Options) (*DB, error) {
	if _, err := InitContainer(path); err != nil {
		return nil, err
	}
	meta := filepath.Join(path, metaKey)
	if ok, err := isRegularFile(meta); err != nil {
		return nil, err
	} else if !ok {
		w, err := ofile.Create(meta)
		if err != nil {
			return nil, ioErr("create", meta, err)
		}
		if err := NewBinary(w, CurrentVersion.Bytes()); err != nil {
			return nil, err
		}
	}
	return newDB(path, opt), nil
}

// InitArchive initializes the working directory of the archive at path
// ("x.ldb" works in "x.modb"). The archive is written by Close.
func InitArchive(path string, opt Options) (*DB, error) {
	db, err := Init(workingDir(path), opt)
	if err != nil {
		return nil, err
	}
	db.compressed = true
	return db, nil
}

// Load opens an existing database directory, resolving scratch files left
// by interrupted writes and checking the version marker.
func Load(path string, opt Options) (*DB, error) {
	if ok, err := isDir(path); err != nil {
		return nil, err
	} else if !ok {
		return nil, &NotFoundError{Path: path, Dir: true}
	}
	db := newDB(path, opt)
	if err := db.recoverScratch(); err != nil {
		return nil, err
	}
	if err := db.checkVersion(); err != nil {
		return nil, err
	}
	return db, nil
}

func (db *DB) checkVersion() error {
	meta := filepath.Join(db.path, metaKey)
	d, err := LoadData(meta)
	if err != nil {
		return err
	}
	b, err := d.CollectBinary()
	if errors.Is(err, ErrTypeMismatch) {
		return dataErrf(meta, nil, 0, ErrInvalidMetaVersion, "%v", err)
	} else if err != nil {
		return err
	}
	found, ok := versionFromBytes(b)
	if !ok {
		return dataErrf(meta, b, 1, ErrInvalidMetaVersion, "%d bytes, wanted 3", len(b))
	}
	if !CurrentVersion.CanOpen(found) {
		return &VersionError{Path: db.path, Found: found, Current: CurrentVersion}
	}
	return nil
}

// LoadArchive opens the archive at path. A working directory left over from
// an earlier session takes precedence over the archive, since it holds the
// newer data.
func LoadArchive(path string, opt Options) (*DB, error) {
	opt = opt.withDefaults()
	dir := workingDir(path)
	if ok, err := isDir(dir); err != nil {
		return nil, err
	} else if ok {
		opt.Logger.LogAttrs(context.Background(), slog.LevelInfo, "lazydb: using existing working directory", slog.String("archive", path), slog.String("dir", dir))
		db, err := Load(dir, opt)
		if err != nil {
			return nil, err
		}
		db.compressed = true
		return db, nil
	}

	dir, err := Decompile(path, opt)
	if err != nil {
		return nil, err
	}
	db, err := Load(dir, opt)
	if err != nil {
		// the archive is intact, so the fresh copy is disposable
		os.RemoveAll(dir)
		return nil, err
	}
	db.compressed = true
	return db, nil
}

// Close ends the session. An archive-backed database is compiled, and its
// working directory is removed only if compiling succeeded; after a failed
// compile the database stays open and Close may be retried. Closing twice is
// a no-op.
func (db *DB) Close() error {
	if db.closed {
		return nil
	}
	if !db.compressed {
		db.closed = true
		return nil
	}
	archive, err := db.Compile()
	if err != nil {
		db.logger.LogAttrs(context.Background(), slog.LevelError, "lazydb: compile on close failed, keeping working directory", slog.String("dir", db.path), slog.Any("err", err))
		return err
	}
	db.closed = true
	if err := os.RemoveAll(db.path); err != nil {
		db.logger.LogAttrs(context.Background(), slog.LevelWarn, "lazydb: failed to remove working directory", slog.String("dir", db.path), slog.Any("err", err))
		return ioErr("remove", db.path, err)
	}
	db.logger.LogAttrs(context.Background(), slog.LevelDebug, "lazydb: compiled", slog.String("archive", archive))
	return nil
}

// With loads the database at path, runs fn and closes the database on every
// exit path, including a panic in fn.
func With(path string, opt Options, fn func(db *DB) error) (err error) {
	db, err := Load(path, opt)
	if err != nil {
		return err
	}
	return withDB(db, fn)
}

// WithArchive is With for an archive: the archive is recompiled when fn
// returns.
func WithArchive(path string, opt Options, fn func(db *DB) error) (err error) {
	db, err := LoadArchive(path, opt)
	if err != nil {
		return err
	}
	return withDB(db, fn)
}

func withDB(db *DB, fn func(db *DB) error) (err error) {
	defer func() {
		if cerr := db.Close(); err == nil {
			err = cerr
		}
	}()
	return fn(db)
}

// recoverScratch resolves scratch files anywhere under the root.
func (db *DB) recoverScratch() error {
	var bases []string
	seen := make(map[string]bool)
	err := filepath.WalkDir(db.path, func(p string, de fs.DirEntry, err error) error {
		if err != nil {
			return ioErr("walk", p, err)
		}
		if !de.IsDir() && ofile.IsScratchName(de.Name()) {
			if base := ofile.BaseName(p); !seen[base] {
				seen[base] = true
				bases = append(bases, base)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	for _, base := range bases {
		var r ofile.Recovery
		skipped, err := attempt(db.opt.ErrorHandler, "recover", base, func() (err error) {
			r, err = ofile.Recover(base)
			return ioErr("recover", base, err)
		})
		if err != nil {
			return err
		}
		if !skipped && r != ofile.Clean {
			db.logger.LogAttrs(context.Background(), slog.LevelWarn, "lazydb: recovered interrupted write", slog.String("path", base), slog.String("action", r.String()))
		}
	}
	return nil
}

// baseName strips the archive or working directory extension. The result
// always names a sibling of path, never something inside it.
func baseName(path string) string {
	path = filepath.Clean(path)
	if b := filepath.Base(path); b == "." || b == ".." {
		if abs, err := filepath.Abs(path); err == nil {
			path = abs
		}
	}
	for _, ext := range []string{ArchiveExt, DirExt} {
		if strings.HasSuffix(path, ext) && len(path) > len(ext) {
			return strings.TrimSuffix(path, ext)
		}
	}
	return path
}

func workingDir(path string) string {
	return baseName(path) + DirExt
}
