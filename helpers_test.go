package lazydb

import (
	"errors"
	"log/slog"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/andreyvit/lazydb/lazytest"
	"github.com/andreyvit/lazydb/ofile"
)

func init() {
	slog.SetLogLoggerLevel(slog.LevelDebug)
}

// setup returns a fresh database in its own directory.
func setup(t testing.TB) *DB {
	t.Helper()
	db := must(Init(filepath.Join(lazytest.Env(t), "test.modb"), Options{}))
	t.Logf("DB: %s", db.Path())
	return db
}

func root(t testing.TB, db *DB) *Container {
	t.Helper()
	return must(db.Container())
}

// put writes one leaf at a slash-separated path using a New* writer.
func put(t testing.TB, c *Container, path string, write func(w *ofile.File) error) {
	t.Helper()
	w, err := c.ResolveWriter(path)
	if err != nil {
		t.Fatalf("** ResolveWriter(%q): %v", path, err)
	}
	if err := write(w); err != nil {
		t.Fatalf("** writing %q: %v", path, err)
	}
}

func get(t testing.TB, c *Container, path string) any {
	t.Helper()
	d, err := c.ResolveData(path)
	if err != nil {
		t.Fatalf("** ResolveData(%q): %v", path, err)
	}
	v, err := d.Collect()
	if err != nil {
		t.Fatalf("** Collect(%q): %v", path, err)
	}
	return v
}

func must[T any](v T, err error) T {
	if err != nil {
		panic(err)
	}
	return v
}

func ensure(err error) {
	if err != nil {
		panic(err)
	}
}

func deepEqual[T any](t testing.TB, a, e T) {
	if !reflect.DeepEqual(a, e) {
		t.Helper()
		t.Errorf("** got %v, wanted %v", a, e)
	}
}

func isErr(t testing.TB, err, target error) {
	if !errors.Is(err, target) {
		t.Helper()
		t.Errorf("** got error %v, wanted %v", err, target)
	}
}
