package lazydb

import (
	"bytes"
	"errors"
	"log/slog"
	"strings"
	"testing"
)

func TestAttempt(t *testing.T) {
	boom := errors.New("boom")
	failing := func(n *int) func() error {
		return func() error {
			*n++
			return boom
		}
	}

	t.Run("abort", func(t *testing.T) {
		var calls int
		skipped, err := attempt(AbortOnError, "pack", "p", failing(&calls))
		isErr(t, err, boom)
		deepEqual(t, skipped, false)
		deepEqual(t, calls, 1)
	})

	t.Run("skip", func(t *testing.T) {
		var logBuf bytes.Buffer
		h := SkipAndLog(slog.New(slog.NewTextHandler(&logBuf, nil)))
		var calls int
		skipped, err := attempt(h, "unpack", "some/file", failing(&calls))
		ensure(err)
		deepEqual(t, skipped, true)
		deepEqual(t, calls, 1)
		if s := logBuf.String(); !strings.Contains(s, "path=some/file") || !strings.Contains(s, "err=boom") {
			t.Errorf("** log = %q, wanted path and err", s)
		}
	})

	t.Run("retry then abort", func(t *testing.T) {
		var calls int
		_, err := attempt(RetryThen(2, nil), "pack", "p", failing(&calls))
		isErr(t, err, boom)
		deepEqual(t, calls, 3)
	})

	t.Run("retry until success", func(t *testing.T) {
		var calls int
		skipped, err := attempt(RetryThen(5, nil), "pack", "p", func() error {
			calls++
			if calls < 3 {
				return boom
			}
			return nil
		})
		ensure(err)
		deepEqual(t, skipped, false)
		deepEqual(t, calls, 3)
	})

	t.Run("retry budget is per file", func(t *testing.T) {
		h := RetryThen(1, SkipAndLog(slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))))
		var a, b int
		skipped, _ := attempt(h, "pack", "a", failing(&a))
		deepEqual(t, skipped, true)
		attempt(h, "pack", "b", failing(&b))
		deepEqual(t, a, 2)
		deepEqual(t, b, 2)
	})
}

func TestErrorHandlerFunc(t *testing.T) {
	var seen []string
	h := ErrorHandlerFunc(func(op, path string, err error) Action {
		seen = append(seen, op+":"+path)
		return Skip
	})
	skipped, err := attempt(h, "recover", "x", func() error { return errors.New("nope") })
	ensure(err)
	deepEqual(t, skipped, true)
	deepEqual(t, seen, []string{"recover:x"})
}

func TestAction_String(t *testing.T) {
	deepEqual(t, Abort.String(), "abort")
	deepEqual(t, Skip.String(), "skip")
	deepEqual(t, Retry.String(), "retry")
	deepEqual(t, Action(7).String(), "Action(7)")
}
