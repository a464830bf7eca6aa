package pathmirror

import (
	"sync/atomic"
	"time"

	"github.com/mirrorlabs/dirmirror/pkg/plog"
	"github.com/mirrorlabs/dirmirror/pkg/util"
)

// Metrics collects counters over one mirror pass. Implementations must be
// safe for concurrent use by the phase workers.
type Metrics interface {
	AddFilesCopied(n int64)
	AddFilesUpdated(n int64)
	AddFilesDeleted(n int64)
	AddFilesUpToDate(n int64)
	AddDirsCreated(n int64)
	AddDirsDeleted(n int64)
	AddBytesWritten(n int64)

	LogSummary(msg string, elapsed time.Duration)
	StartProgress(msg string, interval time.Duration)
	StopProgress()
}

// MirrorMetrics is the default lock-free Metrics implementation.
type MirrorMetrics struct {
	filesCopied   atomic.Int64
	filesUpdated  atomic.Int64
	filesDeleted  atomic.Int64
	filesUpToDate atomic.Int64
	dirsCreated   atomic.Int64
	dirsDeleted   atomic.Int64
	bytesWritten  atomic.Int64

	progressDone chan struct{}
}

var _ Metrics = (*MirrorMetrics)(nil)

func (m *MirrorMetrics) AddFilesCopied(n int64)   { m.filesCopied.Add(n) }
func (m *MirrorMetrics) AddFilesUpdated(n int64)  { m.filesUpdated.Add(n) }
func (m *MirrorMetrics) AddFilesDeleted(n int64)  { m.filesDeleted.Add(n) }
func (m *MirrorMetrics) AddFilesUpToDate(n int64) { m.filesUpToDate.Add(n) }
func (m *MirrorMetrics) AddDirsCreated(n int64)   { m.dirsCreated.Add(n) }
func (m *MirrorMetrics) AddDirsDeleted(n int64)   { m.dirsDeleted.Add(n) }
func (m *MirrorMetrics) AddBytesWritten(n int64)  { m.bytesWritten.Add(n) }

// FilesCopied returns the number of new files copied so far.
func (m *MirrorMetrics) FilesCopied() int64 { return m.filesCopied.Load() }

// FilesUpdated returns the number of existing files overwritten so far.
func (m *MirrorMetrics) FilesUpdated() int64 { return m.filesUpdated.Load() }

// FilesDeleted returns the number of stale files deleted so far.
func (m *MirrorMetrics) FilesDeleted() int64 { return m.filesDeleted.Load() }

// FilesUpToDate returns the number of common files left untouched so far.
func (m *MirrorMetrics) FilesUpToDate() int64 { return m.filesUpToDate.Load() }

// DirsCreated returns the number of destination directories created so far.
func (m *MirrorMetrics) DirsCreated() int64 { return m.dirsCreated.Load() }

// DirsDeleted returns the number of empty directories pruned so far.
func (m *MirrorMetrics) DirsDeleted() int64 { return m.dirsDeleted.Load() }

// BytesWritten returns the number of content bytes written so far.
func (m *MirrorMetrics) BytesWritten() int64 { return m.bytesWritten.Load() }

// LogSummary logs the final counters for the pass at Info level.
func (m *MirrorMetrics) LogSummary(msg string, elapsed time.Duration) {
	plog.Info(msg,
		"copied", m.filesCopied.Load(),
		"updated", m.filesUpdated.Load(),
		"deleted", m.filesDeleted.Load(),
		"up_to_date", m.filesUpToDate.Load(),
		"dirs_created", m.dirsCreated.Load(),
		"dirs_pruned", m.dirsDeleted.Load(),
		"written", util.ByteCountIEC(m.bytesWritten.Load()),
		"duration", elapsed.Round(time.Millisecond).String())
}

// StartProgress begins periodic progress logging until StopProgress is
// called. Useful on large trees where a pass runs for minutes.
func (m *MirrorMetrics) StartProgress(msg string, interval time.Duration) {
	if m.progressDone != nil {
		return
	}
	m.progressDone = make(chan struct{})

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-m.progressDone:
				return
			case <-ticker.C:
				plog.Info(msg,
					"copied", m.filesCopied.Load(),
					"updated", m.filesUpdated.Load(),
					"deleted", m.filesDeleted.Load(),
					"written", util.ByteCountIEC(m.bytesWritten.Load()))
			}
		}
	}()
}

// StopProgress stops the periodic progress logging started by StartProgress.
func (m *MirrorMetrics) StopProgress() {
	if m.progressDone == nil {
		return
	}
	close(m.progressDone)
	m.progressDone = nil
}

// NoopMetrics discards all counters. Used when metrics are disabled.
type NoopMetrics struct{}

var _ Metrics = (*NoopMetrics)(nil)

func (NoopMetrics) AddFilesCopied(int64)                {}
func (NoopMetrics) AddFilesUpdated(int64)               {}
func (NoopMetrics) AddFilesDeleted(int64)               {}
func (NoopMetrics) AddFilesUpToDate(int64)              {}
func (NoopMetrics) AddDirsCreated(int64)                {}
func (NoopMetrics) AddDirsDeleted(int64)                {}
func (NoopMetrics) AddBytesWritten(int64)               {}
func (NoopMetrics) LogSummary(string, time.Duration)    {}
func (NoopMetrics) StartProgress(string, time.Duration) {}
func (NoopMetrics) StopProgress()                       {}
