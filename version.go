package lazydb

import (
	"cmp"
	"fmt"
)

// Version is stored in the .meta leaf of every database as three bytes.
type Version struct {
	Major uint8
	Minor uint8
	Patch uint8
}

// CurrentVersion is the on-disk format version written by this package.
var CurrentVersion = Version{0, 1, 0}

func (v Version) String() string {
	return fmt.Sprintf("%d.%d.%d", v.Major, v.Minor, v.Patch)
}

func (v Version) Bytes() []byte {
	return []byte{v.Major, v.Minor, v.Patch}
}

func versionFromBytes(b []byte) (Version, bool) {
	if len(b) != 3 {
		return Version{}, false
	}
	return Version{b[0], b[1], b[2]}, true
}

// Compare orders versions by major, then minor, then patch.
func (v Version) Compare(o Version) int {
	switch {
	case v.Major != o.Major:
		return cmp.Compare(v.Major, o.Major)
	case v.Minor != o.Minor:
		return cmp.Compare(v.Minor, o.Minor)
	default:
		return cmp.Compare(v.Patch, o.Patch)
	}
}

// CanOpen reports whether code at version v can open a database stored at
// version stored: the major versions must match and the stored version must
// not be newer than v.
func (v Version) CanOpen(stored Version) bool {
	return stored.Major == v.Major && stored.Compare(v) <= 0
}
