package lazydb

import (
	"errors"
	"io/fs"
	"os"
)

func isRegularFile(path string) (bool, error) {
	st, err := os.Stat(path)
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	} else if err != nil {
		return false, ioErr("stat", path, err)
	}
	return st.Mode().IsRegular(), nil
}

func isDir(path string) (bool, error) {
	st, err := os.Stat(path)
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	} else if err != nil {
		return false, ioErr("stat", path, err)
	}
	return st.IsDir(), nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !isRuneStart(s[n]) {
		n--
	}
	return s[:n] + "..."
}

func isRuneStart(b byte) bool {
	return b&0xC0 != 0x80
}
