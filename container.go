package lazydb

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/andreyvit/lazydb/ofile"
)

const metaKey = ".meta"

// Container is a directory of named leaves and sub-containers. It holds only
// its path; every operation consults the file system afresh.
type Container struct {
	path string
}

// InitContainer creates the directory at path (and any missing parents) if
// needed.
func InitContainer(path string) (*Container, error) {
	if err := os.MkdirAll(path, 0o755); err != nil {
		return nil, ioErr("mkdir", path, err)
	}
	return &Container{path}, nil
}

// LoadContainer returns the existing container at path.
func LoadContainer(path string) (*Container, error) {
	if ok, err := isDir(path); err != nil {
		return nil, err
	} else if !ok {
		return nil, &NotFoundError{Path: path, Dir: true}
	}
	return &Container{path}, nil
}

func (c *Container) Path() string {
	return c.path
}

func (c *Container) String() string {
	return c.path
}

// CheckKey validates that key names a single child of a container.
func CheckKey(key string) error {
	switch {
	case key == "", key == ".", key == "..":
	case strings.ContainsAny(key, `/\`), strings.IndexByte(key, 0) >= 0:
	case key == metaKey, ofile.IsScratchName(key):
	default:
		return nil
	}
	return fmt.Errorf("%w %q", ErrInvalidKey, key)
}

func (c *Container) child(key string) (string, error) {
	if err := CheckKey(key); err != nil {
		return "", err
	}
	return filepath.Join(c.path, key), nil
}

// DataWriter removes any existing leaf at key and returns a write stream for
// a new one. Pass it to one of the New* writers. A container at key is not
// replaced.
func (c *Container) DataWriter(key string) (*ofile.File, error) {
	p, err := c.child(key)
	if err != nil {
		return nil, err
	}
	if ok, err := isDir(p); err != nil {
		return nil, err
	} else if ok {
		return nil, fmt.Errorf("%w %q: holds a container", ErrInvalidKey, key)
	}
	if ok, _ := isRegularFile(p); ok {
		os.Remove(p)
	}
	f, err := ofile.Create(p)
	if err != nil {
		return nil, ioErr("create", p, err)
	}
	return f, nil
}

// ReadData loads the leaf at key.
func (c *Container) ReadData(key string) (*Data, error) {
	p, err := c.child(key)
	if err != nil {
		return nil, err
	}
	return LoadData(p)
}

// NewContainer returns the sub-container at key, creating it if needed.
func (c *Container) NewContainer(key string) (*Container, error) {
	p, err := c.child(key)
	if err != nil {
		return nil, err
	}
	return InitContainer(p)
}

// ReadContainer returns the existing sub-container at key.
func (c *Container) ReadContainer(key string) (*Container, error) {
	p, err := c.child(key)
	if err != nil {
		return nil, err
	}
	return LoadContainer(p)
}

// Remove deletes the leaf or the whole sub-container at key. Missing entries
// and failures are ignored.
func (c *Container) Remove(key string) {
	p, err := c.child(key)
	if err != nil {
		return
	}
	if ok, _ := isDir(p); ok {
		os.RemoveAll(p)
	} else {
		os.Remove(p)
	}
}

// Walk descends through existing sub-containers.
func (c *Container) Walk(segments ...string) (*Container, error) {
	cur := c
	for _, seg := range segments {
		next, err := cur.ReadContainer(seg)
		if err != nil {
			return nil, err
		}
		cur = next
	}
	return cur, nil
}

// WalkCreate descends through sub-containers, creating the missing ones.
func (c *Container) WalkCreate(segments ...string) (*Container, error) {
	cur := c
	for _, seg := range segments {
		next, err := cur.NewContainer(seg)
		if err != nil {
			return nil, err
		}
		cur = next
	}
	return cur, nil
}

// SplitPath splits a slash-separated leaf path like "a/b/c" into keys.
// Leading and trailing slashes are ignored.
func SplitPath(path string) ([]string, error) {
	trimmed := strings.Trim(path, "/")
	if trimmed == "" {
		return nil, fmt.Errorf("%w: empty path %q", ErrInvalidKey, path)
	}
	keys := strings.Split(trimmed, "/")
	for _, k := range keys {
		if err := CheckKey(k); err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
	}
	return keys, nil
}

// ResolveData loads the leaf at a slash-separated path relative to c.
func (c *Container) ResolveData(path string) (*Data, error) {
	keys, err := SplitPath(path)
	if err != nil {
		return nil, err
	}
	n := len(keys)
	parent, err := c.Walk(keys[:n-1]...)
	if err != nil {
		return nil, err
	}
	return parent.ReadData(keys[n-1])
}

// ResolveWriter returns a write stream for the leaf at a slash-separated path
// relative to c, creating intermediate containers.
func (c *Container) ResolveWriter(path string) (*ofile.File, error) {
	keys, err := SplitPath(path)
	if err != nil {
		return nil, err
	}
	n := len(keys)
	parent, err := c.WalkCreate(keys[:n-1]...)
	if err != nil {
		return nil, err
	}
	return parent.DataWriter(keys[n-1])
}

// Entry describes one child of a container.
type Entry struct {
	Key       string
	Container bool
	Size      int64
}

// List returns the children of c sorted by key. Metadata, scratch files left
// by interrupted writes and anything that is neither a file nor a directory
// are left out.
func (c *Container) List() ([]Entry, error) {
	des, err := os.ReadDir(c.path)
	if err != nil {
		return nil, ioErr("readdir", c.path, err)
	}
	entries := make([]Entry, 0, len(des))
	for _, de := range des {
		name := de.Name()
		if name == metaKey || ofile.IsScratchName(name) {
			continue
		}
		switch {
		case de.IsDir():
			entries = append(entries, Entry{Key: name, Container: true})
		case de.Type().IsRegular():
			info, err := de.Info()
			if err != nil {
				return nil, ioErr("stat", filepath.Join(c.path, name), err)
			}
			entries = append(entries, Entry{Key: name, Size: info.Size()})
		}
	}
	return entries, nil
}
