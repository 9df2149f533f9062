package lazydb

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
)

// Action tells a multi-file operation how to proceed after a failure.
type Action int

const (
	Abort Action = iota
	Skip
	Retry
)

var actionNames = [...]string{"abort", "skip", "retry"}

func (a Action) String() string {
	if a >= 0 && int(a) < len(actionNames) {
		return actionNames[a]
	}
	return fmt.Sprintf("Action(%d)", int(a))
}

// ErrorHandler decides what happens when one file fails during a tree walk:
// compiling, decompiling or recovering scratch files. Op names the step
// ("pack", "unpack", "recover"), path is the file involved.
type ErrorHandler interface {
	HandleError(op, path string, err error) Action
}

type ErrorHandlerFunc func(op, path string, err error) Action

func (f ErrorHandlerFunc) HandleError(op, path string, err error) Action {
	return f(op, path, err)
}

// AbortOnError fails the whole operation on the first error. This is the
// default.
var AbortOnError ErrorHandler = ErrorHandlerFunc(func(op, path string, err error) Action {
	return Abort
})

// SkipAndLog logs every failure as a warning and leaves the file out.
func SkipAndLog(logger *slog.Logger) ErrorHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return ErrorHandlerFunc(func(op, path string, err error) Action {
		logger.LogAttrs(context.Background(), slog.LevelWarn, "lazydb: skipping file", slog.String("op", op), slog.String("path", path), slog.Any("err", err))
		return Skip
	})
}

// RetryThen retries each failing file up to n times, then resorts to
// fallback.
func RetryThen(n int, fallback ErrorHandler) ErrorHandler {
	if fallback == nil {
		fallback = AbortOnError
	}
	return &retrier{limit: n, fallback: fallback, attempts: make(map[string]int)}
}

type retrier struct {
	limit    int
	fallback ErrorHandler

	mu       sync.Mutex
	attempts map[string]int
}

func (r *retrier) HandleError(op, path string, err error) Action {
	key := op + "\x00" + path
	r.mu.Lock()
	r.attempts[key]++
	n := r.attempts[key]
	r.mu.Unlock()
	if n <= r.limit {
		return Retry
	}
	return r.fallback.HandleError(op, path, err)
}

// attempt runs step until it succeeds or h gives up on it. It reports
// whether the step was skipped.
func attempt(h ErrorHandler, op, path string, step func() error) (skipped bool, err error) {
	for {
		err := step()
		if err == nil {
			return false, nil
		}
		switch h.HandleError(op, path, err) {
		case Retry:
			continue
		case Skip:
			return true, nil
		default:
			return false, err
		}
	}
}
