package ofile

import (
	"errors"
	"io/fs"
	"os"
	"strings"
)

// Recovery describes what Recover did.
type Recovery int

const (
	// Clean means no scratch files were found.
	Clean Recovery = iota
	// DiscardedStaging means the swap never started; the original is intact
	// and the staging file was deleted.
	DiscardedStaging
	// RemovedBackup means the swap completed except for deleting the backup.
	RemovedBackup
	// PromotedStaging means the crash happened between the two renames; the
	// fully synced staging file became the file.
	PromotedStaging
	// RestoredBackup means only the backup survived and was moved back.
	RestoredBackup
)

func (r Recovery) String() string {
	switch r {
	case Clean:
		return "clean"
	case DiscardedStaging:
		return "discarded-staging"
	case RemovedBackup:
		return "removed-backup"
	case PromotedStaging:
		return "promoted-staging"
	case RestoredBackup:
		return "restored-backup"
	default:
		return "unknown"
	}
}

// IsScratchName reports whether name is a staging or backup file name.
func IsScratchName(name string) bool {
	return strings.HasSuffix(name, StagingSuffix) || strings.HasSuffix(name, BackupSuffix)
}

// BaseName strips the staging or backup suffix from a scratch file name.
func BaseName(name string) string {
	if s, ok := strings.CutSuffix(name, StagingSuffix); ok {
		return s
	}
	if s, ok := strings.CutSuffix(name, BackupSuffix); ok {
		return s
	}
	return name
}

// Recover brings path back to a single complete file after an interrupted
// Modify-mode swap. It must not run while a File on path is open.
func Recover(path string) (Recovery, error) {
	staging, backup := path+StagingSuffix, path+BackupSuffix

	hasOrig, err := isFile(path)
	if err != nil {
		return Clean, err
	}
	hasStaging, err := isFile(staging)
	if err != nil {
		return Clean, err
	}
	hasBackup, err := isFile(backup)
	if err != nil {
		return Clean, err
	}

	switch {
	case hasOrig && hasStaging:
		// staging may be partial, the original was never moved away
		if hasBackup {
			if err := os.Remove(backup); err != nil {
				return Clean, err
			}
		}
		return DiscardedStaging, os.Remove(staging)

	case hasOrig && hasBackup:
		return RemovedBackup, os.Remove(backup)

	case hasStaging:
		if err := os.Rename(staging, path); err != nil {
			return Clean, err
		}
		if hasBackup {
			if err := os.Remove(backup); err != nil {
				return PromotedStaging, err
			}
		}
		return PromotedStaging, nil

	case hasBackup:
		return RestoredBackup, os.Rename(backup, path)

	default:
		return Clean, nil
	}
}

func isFile(path string) (bool, error) {
	st, err := os.Lstat(path)
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	} else if err != nil {
		return false, err
	}
	return st.Mode().IsRegular(), nil
}
