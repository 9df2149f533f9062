package lazydb

import (
	"io/fs"
	"path/filepath"

	"github.com/andreyvit/lazydb/ofile"
)

type Stats struct {
	Containers int
	Leaves     int
	Scratch    int

	LeafBytes    int64
	ScratchBytes int64
}

func (s *Stats) TotalBytes() int64 {
	return s.LeafBytes + s.ScratchBytes
}

// Stats walks the whole subtree of c. The container itself is not counted.
func (c *Container) Stats() (Stats, error) {
	var s Stats
	err := filepath.WalkDir(c.path, func(p string, de fs.DirEntry, err error) error {
		if err != nil {
			return ioErr("walk", p, err)
		}
		if p == c.path {
			return nil
		}
		name := de.Name()
		switch {
		case de.IsDir():
			s.Containers++
		case !de.Type().IsRegular(), name == metaKey:
		default:
			info, err := de.Info()
			if err != nil {
				return ioErr("stat", p, err)
			}
			if ofile.IsScratchName(name) {
				s.Scratch++
				s.ScratchBytes += info.Size()
			} else {
				s.Leaves++
				s.LeafBytes += info.Size()
			}
		}
		return nil
	})
	return s, err
}
