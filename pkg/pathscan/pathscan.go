// Package pathscan produces point-in-time snapshots of directory trees.
// A snapshot maps every regular file under a root to its absolute path and
// last-modified timestamp, keyed by the normalized relative path that serves
// as the file's identity when two trees are compared.
package pathscan

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/mirrorlabs/dirmirror/pkg/filelock"
	"github.com/mirrorlabs/dirmirror/pkg/plog"
	"github.com/mirrorlabs/dirmirror/pkg/util"
)

// internalFile reports whether a directory entry is one of dirmirror's own
// bookkeeping files: the instance lock or an in-flight copy temp. These are
// never recorded in a snapshot. A recorded lock file would be deleted as
// stale by the next mirror phase, silently disarming the single-instance
// guard on the target.
func internalFile(name string) bool {
	if name == filelock.LockFileName {
		return true
	}
	return strings.HasPrefix(name, ".dirmirror-") && strings.HasSuffix(name, ".tmp")
}

// FileInfo holds the metadata recorded for a single regular file.
type FileInfo struct {
	AbsPath string
	Size    int64
	ModTime time.Time
	Mode    os.FileMode
}

// Snapshot is a point-in-time view of one directory tree. It is created
// fresh for each tree at the start of every mirror pass and discarded when
// the pass completes; nothing persists between passes.
type Snapshot struct {
	// Root is the absolute, cleaned tree root.
	Root string
	// Files maps normalized relative path keys to file metadata.
	// Iteration order is unspecified; callers must not depend on it.
	Files map[string]FileInfo
}

// Has reports whether the snapshot contains the given relative path key.
func (s *Snapshot) Has(relPathKey string) bool {
	_, ok := s.Files[relPathKey]
	return ok
}

// Len returns the number of files in the snapshot.
func (s *Snapshot) Len() int {
	return len(s.Files)
}

// Scan walks the tree under root and returns a complete snapshot of its
// regular files. Directories are descended into; symlinks, pipes and other
// non-regular entries are skipped. Any error during the walk (an unreadable
// directory, a failed stat) aborts the scan: a partial snapshot is never
// returned, because reconciling against one could delete destination files
// that merely failed to be enumerated on the source side.
func Scan(ctx context.Context, root string) (*Snapshot, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("could not resolve scan root %s: %w", root, err)
	}

	snap := &Snapshot{
		Root:  absRoot,
		Files: make(map[string]FileInfo),
	}

	err = filepath.WalkDir(absRoot, func(absPath string, d fs.DirEntry, err error) error {
		if err != nil {
			return fmt.Errorf("cannot read %s: %w", absPath, err)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if d.IsDir() {
			return nil
		}

		if internalFile(d.Name()) {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return fmt.Errorf("cannot stat %s: %w", absPath, err)
		}

		relPathKey, err := util.NormalizedRelPath(absRoot, absPath)
		if err != nil {
			return err
		}

		if !info.Mode().IsRegular() {
			plog.Debug("SKIP", "type", info.Mode().String(), "path", relPathKey)
			return nil
		}

		snap.Files[relPathKey] = FileInfo{
			AbsPath: absPath,
			Size:    info.Size(),
			ModTime: info.ModTime(),
			Mode:    info.Mode(),
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan of %s failed: %w", absRoot, err)
	}

	return snap, nil
}
