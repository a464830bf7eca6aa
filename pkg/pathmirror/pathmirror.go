// Package pathmirror converges a destination directory tree to mirror a
// source tree. A single pass snapshots both trees, diffs them into three
// disjoint relative-path sets, and applies three phases in order:
//
//  1. copy-new: files present only in the source are copied over, creating
//     any missing destination directories on the way.
//  2. delete-stale: files present only in the destination are deleted, and
//     directories left empty by those deletions are pruned upward.
//  3. copy-updated: files present in both trees are overwritten iff the
//     source's recorded mtime is strictly newer than the destination's.
//
// The phases run strictly one after another; within a phase a worker pool
// processes files concurrently, which is safe because files are handled
// independently and redundant upward prune attempts simply fail the empty
// check and stop. Passes never overlap; the scheduler guarantees that.
package pathmirror

import (
	"context"
	"fmt"

	"github.com/mirrorlabs/dirmirror/pkg/pathscan"
)

// StaleArchiver preserves destination files just before the delete-stale
// phase removes them. Begin is called once per pass before the first Archive
// and Close once after the last. A failed Archive keeps the file alive: the
// mirrorer never deletes what could not be preserved.
type StaleArchiver interface {
	Begin() error
	Archive(relPathKey, absPath string) error
	Close() error
}

// PathMirrorer runs one-way mirror passes. It holds configuration only; all
// per-pass state lives in a task, so a single PathMirrorer can be reused
// across passes.
type PathMirrorer struct {
	numWorkers     int
	dryRun         bool
	failFast       bool
	metricsEnabled bool
	archiver       StaleArchiver

	lastMetrics Metrics // Store for testing
}

// NewPathMirrorer creates a new PathMirrorer. archiver may be nil, in which
// case stale files are deleted without being preserved first.
func NewPathMirrorer(numWorkers int, dryRun, failFast, metricsEnabled bool, archiver StaleArchiver) *PathMirrorer {
	if numWorkers < 1 {
		numWorkers = 1
	}
	return &PathMirrorer{
		numWorkers:     numWorkers,
		dryRun:         dryRun,
		failFast:       failFast,
		metricsEnabled: metricsEnabled,
		archiver:       archiver,
	}
}

// Mirror performs exactly one synchronous mirror pass from absSourcePath to
// absTargetPath. A scan failure on either side aborts the pass before any
// filesystem mutation; per-file copy and delete failures are logged and
// skipped (unless fail-fast is set) since the next pass re-derives the diff
// and naturally retries anything still divergent.
func (m *PathMirrorer) Mirror(ctx context.Context, absSourcePath, absTargetPath string) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	srcSnap, err := pathscan.Scan(ctx, absSourcePath)
	if err != nil {
		return fmt.Errorf("source scan failed: %w", err)
	}
	dstSnap, err := pathscan.Scan(ctx, absTargetPath)
	if err != nil {
		return fmt.Errorf("destination scan failed: %w", err)
	}

	var metrics Metrics
	if m.metricsEnabled {
		metrics = &MirrorMetrics{}
	} else {
		metrics = &NoopMetrics{}
	}
	m.lastMetrics = metrics // Store for testing

	t := newTask(m, ctx, srcSnap, dstSnap, BuildPlan(srcSnap, dstSnap), metrics)
	return t.execute()
}
