package lazydb

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/andreyvit/lazydb/lazytest"
	"github.com/andreyvit/lazydb/ofile"
)

func TestInit_WritesMeta(t *testing.T) {
	db := setup(t)
	meta := filepath.Join(db.Path(), metaKey)
	lazytest.Eq(t, meta, "02 00_01_00")
	deepEqual(t, db.Compressed(), false)

	// a second Init keeps whatever marker is there
	lazytest.Put(t, meta, "02 00_00_07")
	must(Init(db.Path(), Options{}))
	lazytest.Eq(t, meta, "02 00_00_07")

	must(Load(db.Path(), Options{}))
}

func TestLoad_NotFound(t *testing.T) {
	dir := lazytest.Env(t)
	_, err := Load(filepath.Join(dir, "nope"), Options{})
	isErr(t, err, ErrNotFound)
	var nf *NotFoundError
	if errors.As(err, &nf) && !nf.Dir {
		t.Errorf("** got file not found, wanted directory not found")
	}

	ensure(os.Mkdir(filepath.Join(dir, "nometa"), 0o755))
	_, err = Load(filepath.Join(dir, "nometa"), Options{})
	isErr(t, err, ErrNotFound)
}

func TestLoad_VersionGate(t *testing.T) {
	tests := []struct {
		name   string
		meta   string
		wanted error
	}{
		{"current", "02 00_01_00", nil},
		{"older patch", "02 00_00_05", nil},
		{"newer patch", "02 00_01_01", ErrIncompatibleVersion},
		{"newer minor", "02 00_02_00", ErrIncompatibleVersion},
		{"other major", "02 01_00_00", ErrIncompatibleVersion},
		{"short", "02 00_01", ErrInvalidMetaVersion},
		{"long", "02 00_01_00_00", ErrInvalidMetaVersion},
		{"not binary", "01 'abc", ErrInvalidMetaVersion},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db := setup(t)
			lazytest.Put(t, filepath.Join(db.Path(), metaKey), tt.meta)
			_, err := Load(db.Path(), Options{})
			if tt.wanted == nil {
				ensure(err)
			} else {
				isErr(t, err, tt.wanted)
			}
		})
	}
}

func TestLoad_VersionErrorDetails(t *testing.T) {
	db := setup(t)
	lazytest.Put(t, filepath.Join(db.Path(), metaKey), "02 03_02_01")
	_, err := Load(db.Path(), Options{})
	var ve *VersionError
	if !errors.As(err, &ve) {
		t.Fatalf("** got %v, wanted *VersionError", err)
	}
	deepEqual(t, ve.Found, Version{3, 2, 1})
	deepEqual(t, ve.Current, CurrentVersion)
}

func TestLoad_RecoversScratchFiles(t *testing.T) {
	db := setup(t)
	c := root(t, db)
	put(t, c, "sub/stale", func(w *ofile.File) error { return NewU8(w, 1) })
	lazytest.Put(t, filepath.Join(c.Path(), "sub", "stale"+ofile.StagingSuffix), "08 02")
	lazytest.Put(t, filepath.Join(c.Path(), "moved"+ofile.StagingSuffix), "01 'new")
	lazytest.Put(t, filepath.Join(c.Path(), "moved"+ofile.BackupSuffix), "01 'old")
	lazytest.Put(t, filepath.Join(c.Path(), "lost"+ofile.BackupSuffix), "01 'backup")

	db = must(Load(db.Path(), Options{}))
	c = root(t, db)
	deepEqual(t, get(t, c, "sub/stale"), any(uint8(1)))
	deepEqual(t, get(t, c, "moved"), any("new"))
	deepEqual(t, get(t, c, "lost"), any("backup"))
	deepEqual(t, lazytest.FileNames(t, c.Path()), []string{metaKey, "lost", "moved", "sub"})
	deepEqual(t, lazytest.FileNames(t, filepath.Join(c.Path(), "sub")), []string{"stale"})
}

func populate(t testing.TB, c *Container) {
	t.Helper()
	put(t, c, "name", func(w *ofile.File) error { return NewString(w, "hello") })
	put(t, c, "enabled", func(w *ofile.File) error { return NewBool(w, true) })
	put(t, c, "net/http/port", func(w *ofile.File) error { return NewU16(w, 8080) })
	put(t, c, "net/http/weights", func(w *ofile.File) error { return NewArray(w, []float32{0.5, 1.5}) })
	put(t, c, "net/main", func(w *ofile.File) error { return NewLink(w, "net/http/port") })
	put(t, c, "blob", func(w *ofile.File) error { return NewBinary(w, bytes.Repeat([]byte{1, 2, 3}, 1000)) })
	must(c.WalkCreate("empty", "nested"))
}

func verifyPopulated(t testing.TB, db *DB) {
	t.Helper()
	c := root(t, db)
	deepEqual(t, get(t, c, "name"), any("hello"))
	deepEqual(t, get(t, c, "enabled"), any(true))
	deepEqual(t, get(t, c, "net/http/port"), any(uint16(8080)))
	deepEqual(t, get(t, c, "net/http/weights"), any([]float32{0.5, 1.5}))
	deepEqual(t, get(t, c, "blob"), any(bytes.Repeat([]byte{1, 2, 3}, 1000)))
	port := must(must(c.ResolveData("net/main")).CollectLink(db))
	deepEqual(t, must(port.CollectU16()), uint16(8080))
	must(c.Walk("empty", "nested"))
}

func TestArchive_RoundTrip(t *testing.T) {
	dir := lazytest.Env(t)
	archive := filepath.Join(dir, "x.ldb")

	db := must(InitArchive(archive, Options{}))
	deepEqual(t, db.Path(), filepath.Join(dir, "x.modb"))
	deepEqual(t, db.Compressed(), true)
	deepEqual(t, db.ArchivePath(), archive)
	populate(t, root(t, db))
	ensure(db.Close())
	ensure(db.Close())

	deepEqual(t, lazytest.FileNames(t, dir), []string{"x.ldb"})
	_, err := db.Container()
	isErr(t, err, ErrClosed)

	db = must(LoadArchive(archive, Options{}))
	deepEqual(t, db.Compressed(), true)
	verifyPopulated(t, db)
	ensure(db.Close())
	deepEqual(t, lazytest.FileNames(t, dir), []string{"x.ldb"})
}

func TestCompile_TrailingSlash(t *testing.T) {
	dir := lazytest.Env(t)
	db := must(Init(filepath.Join(dir, "db")+"/", Options{}))
	deepEqual(t, db.Path(), filepath.Join(dir, "db"))
	populate(t, root(t, db))

	archive := must(db.Compile())
	deepEqual(t, archive, filepath.Join(dir, "db.ldb"))
	ensure(db.Close())
	deepEqual(t, lazytest.FileNames(t, dir), []string{"db", "db.ldb"})
	deepEqual(t, lazytest.FileNames(t, filepath.Join(dir, "db")), []string{".meta", "enabled", "name", "net"})

	db = must(LoadArchive(archive+"/", Options{}))
	deepEqual(t, db.Path(), filepath.Join(dir, "db.modb"))
	verifyPopulated(t, db)
	ensure(db.Close())
	deepEqual(t, lazytest.FileNames(t, dir), []string{"db", "db.ldb"})
}

func TestBaseName(t *testing.T) {
	cwd := must(filepath.Abs("."))
	tests := []struct {
		path, want string
	}{
		{"x.ldb", "x"},
		{"a/x.modb", "a/x"},
		{"a/x.modb/", "a/x"},
		{"db/", "db"},
		{"a//db/./", "a/db"},
		{".", cwd},
		{"a/..", cwd},
		{".ldb", ".ldb"},
	}
	for _, tt := range tests {
		if a := baseName(tt.path); a != filepath.FromSlash(tt.want) {
			t.Errorf("** baseName(%q) = %q, wanted %q", tt.path, a, tt.want)
		}
	}
}

func TestArchive_Zstd(t *testing.T) {
	dir := lazytest.Env(t)
	archive := filepath.Join(dir, "z.ldb")

	db := must(InitArchive(archive, Options{Compression: CompressionZstd}))
	populate(t, root(t, db))
	ensure(db.Close())
	deepEqual(t, lazytest.Data(t, archive)[:4], []byte{0x28, 0xb5, 0x2f, 0xfd})

	db = must(LoadArchive(archive, Options{}))
	verifyPopulated(t, db)
	ensure(db.Close())
	// recompiled with the default codec
	deepEqual(t, lazytest.Data(t, archive)[:4], []byte{0x04, 0x22, 0x4d, 0x18})
}

func TestCompile_Deterministic(t *testing.T) {
	db := setup(t)
	populate(t, root(t, db))
	lazytest.Put(t, filepath.Join(db.Path(), "name"+ofile.StagingSuffix), "01 'scratch")

	archive := must(db.Compile())
	deepEqual(t, archive, filepath.Join(filepath.Dir(db.Path()), "test.ldb"))
	first := lazytest.Data(t, archive)
	must(db.Compile())
	lazytest.BytesEq(t, lazytest.Data(t, archive), first)
	deepEqual(t, lazytest.FileNames(t, filepath.Dir(db.Path())), []string{"test.ldb", "test.modb"})

	ensure(os.RemoveAll(db.Path()))
	out := must(Decompile(archive, Options{}))
	deepEqual(t, out, db.Path())
	verifyPopulated(t, must(Load(out, Options{})))
	deepEqual(t, lazytest.FileNames(t, out), []string{metaKey, "blob", "empty", "enabled", "name", "net"})
}

func TestLoadArchive_PrefersWorkingDir(t *testing.T) {
	dir := lazytest.Env(t)
	archive := filepath.Join(dir, "x.ldb")
	db := must(InitArchive(archive, Options{}))
	put(t, root(t, db), "v", func(w *ofile.File) error { return NewI32(w, 1) })
	ensure(db.Close())

	// a session that died before Close left its working directory behind
	wd := must(Decompile(archive, Options{}))
	ensure(OverwriteNumber(filepath.Join(wd, "v"), int32(2)))

	db = must(LoadArchive(archive, Options{}))
	deepEqual(t, db.Compressed(), true)
	deepEqual(t, get(t, root(t, db), "v"), any(int32(2)))
	ensure(db.Close())

	db = must(LoadArchive(archive, Options{}))
	deepEqual(t, get(t, root(t, db), "v"), any(int32(2)))
	ensure(db.Close())
}

func TestClose_KeepsWorkingDirWhenCompileFails(t *testing.T) {
	dir := lazytest.Env(t)
	archive := filepath.Join(dir, "x.ldb")
	db := must(InitArchive(archive, Options{}))
	put(t, root(t, db), "v", func(w *ofile.File) error { return NewI32(w, 1) })

	// a non-empty directory where the archive goes makes the final rename fail
	ensure(os.MkdirAll(filepath.Join(archive, "blocker"), 0o755))
	if err := db.Close(); err == nil {
		t.Fatalf("** Close succeeded, wanted error")
	}
	deepEqual(t, get(t, root(t, db), "v"), any(int32(1)))
	deepEqual(t, lazytest.FileNames(t, dir), []string{"x.ldb", "x.modb"})

	ensure(os.RemoveAll(archive))
	ensure(db.Close())
	deepEqual(t, lazytest.FileNames(t, dir), []string{"x.ldb"})
}

func TestDecompile_Errors(t *testing.T) {
	dir := lazytest.Env(t)

	_, err := Decompile(filepath.Join(dir, "missing.ldb"), Options{})
	isErr(t, err, ErrNotFound)

	garbage := filepath.Join(dir, "garbage.ldb")
	lazytest.Put(t, garbage, "'not_an_archive_at_all")
	_, err = Decompile(garbage, Options{})
	isErr(t, err, ErrCorruptArchive)
	isErr(t, err, ErrInvalidFormat)
	_, err = LoadArchive(garbage, Options{})
	isErr(t, err, ErrCorruptArchive)

	truncated := filepath.Join(dir, "trunc.ldb")
	db := must(InitArchive(truncated, Options{}))
	populate(t, root(t, db))
	ensure(db.Close())
	data := lazytest.Data(t, truncated)
	ensure(os.WriteFile(truncated, data[:len(data)/2], 0o644))
	_, err = Decompile(truncated, Options{})
	isErr(t, err, ErrCorruptArchive)

	deepEqual(t, lazytest.FileNames(t, dir), []string{"garbage.ldb", "trunc.ldb"})
}

func TestDecompile_RefusesExistingDir(t *testing.T) {
	dir := lazytest.Env(t)
	archive := filepath.Join(dir, "x.ldb")
	ensure(must(InitArchive(archive, Options{})).Close())
	ensure(os.Mkdir(filepath.Join(dir, "x.modb"), 0o755))

	_, err := Decompile(archive, Options{})
	isErr(t, err, os.ErrExist)
}

func TestDecompile_ChecksumMismatch(t *testing.T) {
	dir := lazytest.Env(t)
	archive := filepath.Join(dir, "x.ldb")
	db := must(InitArchive(archive, Options{}))
	put(t, root(t, db), "greeting", func(w *ofile.File) error { return NewString(w, "hello") })
	ensure(db.Close())

	tarball := readArchive(t, archive)
	i := bytes.Index(tarball, []byte("hello"))
	if i < 0 {
		t.Fatalf("** leaf payload not found in tar")
	}
	tarball[i] = 'j'
	writeArchive(t, archive, tarball)

	_, err := Decompile(archive, Options{})
	isErr(t, err, ErrCorruptArchive)
	deepEqual(t, lazytest.FileNames(t, dir), []string{"x.ldb"})
}

func TestDecompile_WithoutManifest(t *testing.T) {
	dir := lazytest.Env(t)
	archive := filepath.Join(dir, "x.ldb")
	db := must(InitArchive(archive, Options{}))
	put(t, root(t, db), "greeting", func(w *ofile.File) error { return NewString(w, "hello") })
	ensure(db.Close())

	// tar entries are 512-byte aligned: dropping the manifest header and its
	// single data block leaves a valid tar of the tree
	tarball := readArchive(t, archive)
	i := bytes.Index(tarball, []byte(manifestName))
	writeArchive(t, archive, append(tarball[:i:i], make([]byte, 1024)...))

	db = must(LoadArchive(archive, Options{}))
	deepEqual(t, get(t, root(t, db), "greeting"), any("hello"))
	ensure(db.Close())
}

func TestWith(t *testing.T) {
	db := setup(t)
	boom := errors.New("boom")
	err := With(db.Path(), Options{}, func(db *DB) error {
		put(t, root(t, db), "k", NewVoid)
		return boom
	})
	isErr(t, err, boom)
	d := must(must(must(Load(db.Path(), Options{})).Container()).ReadData("k"))
	ensure(d.CollectVoid())
}

func TestWithArchive_ClosesOnPanic(t *testing.T) {
	dir := lazytest.Env(t)
	archive := filepath.Join(dir, "x.ldb")
	ensure(must(InitArchive(archive, Options{})).Close())

	func() {
		defer func() {
			if p := recover(); p == nil {
				t.Fatalf("** no panic")
			}
		}()
		WithArchive(archive, Options{}, func(db *DB) error {
			put(t, root(t, db), "k", func(w *ofile.File) error { return NewU8(w, 9) })
			panic("boom")
		})
	}()

	deepEqual(t, lazytest.FileNames(t, dir), []string{"x.ldb"})
	err := WithArchive(archive, Options{}, func(db *DB) error {
		deepEqual(t, get(t, root(t, db), "k"), any(uint8(9)))
		return nil
	})
	ensure(err)
}

func readArchive(t testing.TB, path string) []byte {
	t.Helper()
	var buf bytes.Buffer
	ensure(decompress(&buf, bytes.NewReader(lazytest.Data(t, path))))
	return buf.Bytes()
}

func writeArchive(t testing.TB, path string, tarball []byte) {
	t.Helper()
	var buf bytes.Buffer
	ensure(CompressionLZ4.compress(&buf, bytes.NewReader(tarball)))
	ensure(os.WriteFile(path, buf.Bytes(), 0o644))
}
