// Package pathtrash preserves files into timestamped compressed tar archives
// before they are deleted from a mirrored tree. One archive is created per
// mirror pass; passes that delete nothing leave no archive behind.
package pathtrash

import (
	"archive/tar"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/klauspost/compress/zstd"
	"github.com/klauspost/pgzip"

	"github.com/mirrorlabs/dirmirror/pkg/plog"
	"github.com/mirrorlabs/dirmirror/pkg/pool"
	"github.com/mirrorlabs/dirmirror/pkg/util"
)

var archiveBuffers = pool.NewBufferPool(256 * 1024)

// Trasher writes deleted-file archives under a fixed directory. It is safe
// for concurrent Archive calls; the tar stream is serialized internally.
// A Trasher is reusable: each Begin/Close pair produces one archive.
type Trasher struct {
	dir    string
	format Format

	mu          sync.Mutex
	file        *os.File
	compressor  io.WriteCloser
	tw          *tar.Writer
	archivePath string
	count       int
}

// NewTrasher creates a Trasher that stores archives in dir using the given
// format. The directory is created on first use, not here.
func NewTrasher(dir string, format Format) *Trasher {
	return &Trasher{dir: dir, format: format}
}

// Begin opens a fresh archive for the current pass. The archive name carries
// a UTC timestamp; a numeric suffix disambiguates passes starting within the
// same second.
func (tr *Trasher) Begin() error {
	tr.mu.Lock()
	defer tr.mu.Unlock()

	if tr.file != nil {
		return fmt.Errorf("archive %s is already open", tr.archivePath)
	}

	if err := os.MkdirAll(tr.dir, util.UserWritableDirPerms); err != nil {
		return fmt.Errorf("failed to create trash directory %s: %w", tr.dir, err)
	}

	stamp := time.Now().UTC().Format("20060102-150405")
	var file *os.File
	var archivePath string
	for i := 0; ; i++ {
		name := fmt.Sprintf("stale-%s.%s", stamp, tr.format.Ext())
		if i > 0 {
			name = fmt.Sprintf("stale-%s-%d.%s", stamp, i, tr.format.Ext())
		}
		archivePath = filepath.Join(tr.dir, name)

		f, err := os.OpenFile(archivePath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, util.UserWritableFilePerms)
		if err == nil {
			file = f
			break
		}
		if !os.IsExist(err) {
			return fmt.Errorf("failed to create trash archive %s: %w", archivePath, err)
		}
	}

	var compressor io.WriteCloser
	switch tr.format {
	case FormatTarZst:
		zw, err := zstd.NewWriter(file)
		if err != nil {
			file.Close()
			os.Remove(archivePath)
			return fmt.Errorf("failed to initialize zstd writer: %w", err)
		}
		compressor = zw
	default:
		compressor = pgzip.NewWriter(file)
	}

	tr.file = file
	tr.compressor = compressor
	tr.tw = tar.NewWriter(compressor)
	tr.archivePath = archivePath
	tr.count = 0
	return nil
}

// Archive appends the file at absPath to the open archive under its relative
// path key, preserving mode and mtime.
func (tr *Trasher) Archive(relPathKey, absPath string) error {
	tr.mu.Lock()
	defer tr.mu.Unlock()

	if tr.tw == nil {
		return fmt.Errorf("no archive is open")
	}

	info, err := os.Stat(absPath)
	if err != nil {
		return fmt.Errorf("failed to stat %s: %w", absPath, err)
	}

	hdr, err := tar.FileInfoHeader(info, "")
	if err != nil {
		return fmt.Errorf("failed to build tar header for %s: %w", absPath, err)
	}
	hdr.Name = relPathKey

	in, err := os.Open(absPath)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", absPath, err)
	}
	defer in.Close()

	if err := tr.tw.WriteHeader(hdr); err != nil {
		return fmt.Errorf("failed to write tar header for %s: %w", relPathKey, err)
	}
	bufPtr := archiveBuffers.Get()
	_, err = io.CopyBuffer(tr.tw, in, *bufPtr)
	archiveBuffers.Put(bufPtr)
	if err != nil {
		return fmt.Errorf("failed to archive %s: %w", relPathKey, err)
	}

	tr.count++
	return nil
}

// Close finalizes the archive of the current pass. An archive that received
// no files is removed again.
func (tr *Trasher) Close() error {
	tr.mu.Lock()
	defer tr.mu.Unlock()

	if tr.file == nil {
		return nil
	}

	archivePath := tr.archivePath
	count := tr.count

	var firstErr error
	for _, c := range []io.Closer{tr.tw, tr.compressor, tr.file} {
		if err := c.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	tr.file = nil
	tr.compressor = nil
	tr.tw = nil
	tr.archivePath = ""
	tr.count = 0

	if firstErr != nil {
		return fmt.Errorf("failed to finalize trash archive %s: %w", archivePath, firstErr)
	}

	if count == 0 {
		os.Remove(archivePath)
		return nil
	}

	plog.Notice("TRASH", "archive", archivePath, "files", count)
	return nil
}
