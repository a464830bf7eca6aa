package pathmirror

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/mirrorlabs/dirmirror/pkg/pathscan"
	"github.com/mirrorlabs/dirmirror/pkg/plog"
	"github.com/mirrorlabs/dirmirror/pkg/pool"
	"github.com/mirrorlabs/dirmirror/pkg/util"
)

// copyBuffers is shared by all passes; the workers of a phase each borrow
// one buffer per file copy.
var copyBuffers = pool.NewBufferPool(256 * 1024)

// task holds the state of a single mirror pass.
type task struct {
	*PathMirrorer

	ctx     context.Context
	srcSnap *pathscan.Snapshot
	dstSnap *pathscan.Snapshot
	plan    Plan
	metrics Metrics

	// dirSFGroup deduplicates concurrent creation of the same destination
	// directory; dirCache remembers directories already known to exist so
	// later files in the same dir skip the stat entirely.
	dirSFGroup singleflight.Group
	dirCache   sync.Map

	mu   sync.Mutex
	errs map[string]error

	critical  chan error
	abort     chan struct{}
	abortOnce sync.Once
}

func newTask(m *PathMirrorer, ctx context.Context, srcSnap, dstSnap *pathscan.Snapshot, plan Plan, metrics Metrics) *task {
	return &task{
		PathMirrorer: m,
		ctx:          ctx,
		srcSnap:      srcSnap,
		dstSnap:      dstSnap,
		plan:         plan,
		metrics:      metrics,
		errs:         make(map[string]error),
		critical:     make(chan error, 1),
		abort:        make(chan struct{}),
	}
}

func (t *task) execute() error {
	plog.Info("Starting mirror pass",
		"source", t.srcSnap.Root,
		"target", t.dstSnap.Root,
		"copy_new", len(t.plan.OnlyInSource),
		"delete_stale", len(t.plan.OnlyInDest),
		"check_common", len(t.plan.Common))
	if t.dryRun {
		plog.Notice("[DRY RUN] No files will be modified")
	}

	start := time.Now()
	t.metrics.StartProgress("Mirror progress", 10*time.Second)
	defer t.metrics.StopProgress()

	if err := t.runPhase("copy-new", t.plan.OnlyInSource, t.processCopyNew); err != nil {
		return err
	}
	if err := t.runDeleteStale(); err != nil {
		return err
	}
	if err := t.runPhase("copy-updated", t.plan.Common, t.processCopyUpdated); err != nil {
		return err
	}

	t.logErrorSummary()
	t.metrics.LogSummary("Mirror pass finished", time.Since(start))
	return nil
}

// runPhase feeds keys to a pool of workers and waits for the phase to drain
// completely before returning. Worker errors are recorded per file and do
// not stop the phase unless fail-fast is set, in which case the first error
// is returned after the remaining keys have been drained.
func (t *task) runPhase(name string, keys []string, fn func(relPathKey string) error) error {
	if len(keys) == 0 {
		return nil
	}

	items := make(chan string)
	var wg sync.WaitGroup

	for i := 0; i < t.numWorkers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for relPathKey := range items {
				if err := fn(relPathKey); err != nil {
					if t.failFast {
						select {
						case t.critical <- fmt.Errorf("%s of %s failed: %w", name, relPathKey, err):
						default:
						}
						t.abortOnce.Do(func() { close(t.abort) })
						continue
					}
					t.recordError(relPathKey, err)
					plog.Warn("Mirror action failed, file stays divergent until the next pass",
						"phase", name, "path", relPathKey, "error", err)
				}
			}
		}()
	}

	go func() {
		defer close(items)
		for _, relPathKey := range keys {
			// Checked separately first so a closed abort channel wins over
			// a worker that is ready to receive.
			select {
			case <-t.ctx.Done():
				return
			case <-t.abort:
				return
			default:
			}
			select {
			case <-t.ctx.Done():
				return
			case <-t.abort:
				return
			case items <- relPathKey:
			}
		}
	}()

	wg.Wait()

	if err := t.ctx.Err(); err != nil {
		return err
	}
	select {
	case err := <-t.critical:
		return err
	default:
	}
	return nil
}

// runDeleteStale wraps the delete-stale phase with the archiver lifecycle.
// If the archive cannot be opened, the whole phase is skipped for this pass:
// stale files must never be deleted without being preserved first.
func (t *task) runDeleteStale() error {
	if len(t.plan.OnlyInDest) == 0 {
		return nil
	}

	if t.archiver != nil && !t.dryRun {
		if err := t.archiver.Begin(); err != nil {
			plog.Error("Could not open stale-file archive, skipping deletions this pass", "error", err)
			t.recordError("(stale-archive)", err)
			return nil
		}
		defer func() {
			if err := t.archiver.Close(); err != nil {
				plog.Warn("Failed to finalize stale-file archive", "error", err)
			}
		}()
	}

	return t.runPhase("delete-stale", t.plan.OnlyInDest, t.processDeleteStale)
}

func (t *task) processCopyNew(relPathKey string) error {
	if t.dryRun {
		plog.Notice("[DRY RUN] COPY", "path", relPathKey)
		return nil
	}

	srcInfo := t.srcSnap.Files[relPathKey]
	absTrgPath := util.DenormalizedAbsPath(t.dstSnap.Root, relPathKey)

	if err := t.ensureDirExists(filepath.Dir(absTrgPath)); err != nil {
		return err
	}
	if err := t.copyFile(srcInfo, absTrgPath); err != nil {
		return err
	}

	plog.Notice("COPY", "path", relPathKey)
	t.metrics.AddFilesCopied(1)
	return nil
}

func (t *task) processDeleteStale(relPathKey string) error {
	if t.dryRun {
		plog.Notice("[DRY RUN] DELETE", "path", relPathKey)
		return nil
	}

	absTrgPath := t.dstSnap.Files[relPathKey].AbsPath

	// Recheck before removing; the snapshot may be stale by now.
	info, err := os.Lstat(absTrgPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to stat %s: %w", absTrgPath, err)
	}
	if !info.Mode().IsRegular() {
		plog.Warn("Skipping deletion, destination entry is no longer a regular file",
			"path", relPathKey, "type", info.Mode().String())
		return nil
	}

	if t.archiver != nil {
		if err := t.archiver.Archive(relPathKey, absTrgPath); err != nil {
			return fmt.Errorf("failed to preserve stale file before deletion: %w", err)
		}
	}

	if err := os.Remove(absTrgPath); err != nil {
		return fmt.Errorf("failed to delete %s: %w", absTrgPath, err)
	}

	plog.Notice("DELETE", "path", relPathKey)
	t.metrics.AddFilesDeleted(1)

	t.pruneEmptyParents(filepath.Dir(absTrgPath))
	return nil
}

func (t *task) processCopyUpdated(relPathKey string) error {
	srcInfo := t.srcSnap.Files[relPathKey]
	dstInfo := t.dstSnap.Files[relPathKey]

	// The source wins only when strictly newer. An equal or newer
	// destination mtime is left alone even if the contents differ.
	if !dstInfo.ModTime.Before(srcInfo.ModTime) {
		t.metrics.AddFilesUpToDate(1)
		return nil
	}

	if t.dryRun {
		plog.Notice("[DRY RUN] UPDATE", "path", relPathKey)
		return nil
	}

	if err := t.copyFile(srcInfo, dstInfo.AbsPath); err != nil {
		return err
	}

	plog.Notice("UPDATE", "path", relPathKey)
	t.metrics.AddFilesUpdated(1)
	return nil
}

// ensureDirExists makes sure absDir exists on the destination side. Many
// files usually share a parent, so concurrent callers are collapsed into a
// single stat/mkdir via singleflight and the result is cached for the rest
// of the pass.
func (t *task) ensureDirExists(absDir string) error {
	if _, ok := t.dirCache.Load(absDir); ok {
		return nil
	}

	_, err, _ := t.dirSFGroup.Do(absDir, func() (any, error) {
		if _, ok := t.dirCache.Load(absDir); ok {
			return nil, nil
		}

		info, err := os.Stat(absDir)
		switch {
		case err == nil:
			if !info.IsDir() {
				return nil, fmt.Errorf("destination path %s exists but is not a directory", absDir)
			}
		case os.IsNotExist(err):
			if err := os.MkdirAll(absDir, util.UserWritableDirPerms); err != nil {
				return nil, fmt.Errorf("failed to create destination directory %s: %w", absDir, err)
			}
			if relPathKey, kerr := util.NormalizedRelPath(t.dstSnap.Root, absDir); kerr == nil {
				plog.Notice("DIR", "path", relPathKey)
			}
			t.metrics.AddDirsCreated(1)
		default:
			return nil, fmt.Errorf("failed to stat destination directory %s: %w", absDir, err)
		}

		t.dirCache.Store(absDir, struct{}{})
		return nil, nil
	})
	return err
}

// copyFile copies the source file to absTrgPath via a temp file in the
// destination directory followed by a rename, so a crashed copy never leaves
// a half-written file at the final path. The source's mode (plus user write
// permission) and mtime are carried over to the result.
func (t *task) copyFile(srcInfo pathscan.FileInfo, absTrgPath string) error {
	in, err := os.Open(srcInfo.AbsPath)
	if err != nil {
		return fmt.Errorf("failed to open source file %s: %w", srcInfo.AbsPath, err)
	}
	defer in.Close()

	absTrgDir := filepath.Dir(absTrgPath)
	out, err := os.CreateTemp(absTrgDir, ".dirmirror-*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temporary file in %s: %w", absTrgDir, err)
	}
	absTempPath := out.Name()
	defer func() {
		if absTempPath != "" {
			out.Close()
			os.Remove(absTempPath)
		}
	}()

	bufPtr := copyBuffers.Get()
	written, err := io.CopyBuffer(out, in, *bufPtr)
	copyBuffers.Put(bufPtr)
	if err != nil {
		return fmt.Errorf("failed to copy content to %s: %w", absTempPath, err)
	}
	if err := out.Chmod(util.WithUserWritePermission(srcInfo.Mode)); err != nil {
		return fmt.Errorf("failed to set permissions on %s: %w", absTempPath, err)
	}
	if err := out.Close(); err != nil {
		return fmt.Errorf("failed to close %s: %w", absTempPath, err)
	}
	// Must happen after Close; closing can bump the mtime.
	if err := os.Chtimes(absTempPath, srcInfo.ModTime, srcInfo.ModTime); err != nil {
		return fmt.Errorf("failed to set timestamps on %s: %w", absTempPath, err)
	}
	if err := os.Rename(absTempPath, absTrgPath); err != nil {
		return fmt.Errorf("failed to move %s into place: %w", absTempPath, err)
	}
	absTempPath = ""

	t.metrics.AddBytesWritten(written)
	return nil
}

// pruneEmptyParents removes directories left empty by a deletion, walking
// upward from the deleted file's parent and stopping at the first directory
// that is not empty, not removable, or not strictly below the destination
// root. The root itself is never removed. Concurrent prunes racing over a
// shared ancestor are harmless: the loser's Remove fails and it stops.
func (t *task) pruneEmptyParents(absDir string) {
	root := t.dstSnap.Root
	for absDir != root && util.IsSubPath(root, absDir) {
		if err := os.Remove(absDir); err != nil {
			return
		}
		if relPathKey, err := util.NormalizedRelPath(root, absDir); err == nil {
			plog.Notice("RMDIR", "path", relPathKey)
		}
		t.metrics.AddDirsDeleted(1)

		parent := filepath.Dir(absDir)
		if parent == absDir {
			return
		}
		absDir = parent
	}
}

func (t *task) recordError(relPathKey string, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.errs[relPathKey] = err
}

func (t *task) logErrorSummary() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.errs) == 0 {
		return
	}

	keys := make([]string, 0, len(t.errs))
	for key := range t.errs {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	var sb strings.Builder
	for _, key := range keys {
		fmt.Fprintf(&sb, "\n  %s: %v", key, t.errs[key])
	}
	plog.Warn("Mirror pass completed with per-file errors", "count", len(t.errs), "details", sb.String())
}
