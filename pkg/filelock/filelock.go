// Package filelock guards a directory against concurrent dirmirror instances
// with a heartbeat lock file. Two processes mirroring into the same target
// would race each other's deletions, so acquisition fails while another live
// instance holds the lock; a lock whose heartbeat went silent is treated as
// left behind by a crash and taken over.
package filelock

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/mirrorlabs/dirmirror/pkg/buildinfo"
	"github.com/mirrorlabs/dirmirror/pkg/plog"
)

// LockFileName is the name of the lock file inside the guarded directory.
const LockFileName = ".dirmirror.lock"

const (
	heartbeatInterval = 30 * time.Second
	staleTimeout      = 3 * time.Minute
)

// ErrLockActive is returned when another live instance holds the lock.
var ErrLockActive = errors.New("directory is locked by another running instance")

// lockContent is the JSON payload written into the lock file.
type lockContent struct {
	AppID      string    `json:"app_id"`
	PID        int       `json:"pid"`
	LastUpdate time.Time `json:"last_update"`
}

// Lock is a held directory lock. Release it when the process is done with
// the directory.
type Lock struct {
	path string

	stop     chan struct{}
	stopOnce sync.Once
	done     chan struct{}
}

// Acquire takes the lock for dir. It fails with ErrLockActive if another
// instance holds a fresh lock; a stale lock (heartbeat older than the stale
// timeout) is removed and acquisition retried once.
func Acquire(dir string) (*Lock, error) {
	path := filepath.Join(dir, LockFileName)

	for attempt := 0; ; attempt++ {
		err := writeLockFile(path)
		if err == nil {
			break
		}
		if !os.IsExist(err) {
			return nil, fmt.Errorf("could not create lock file %s: %w", path, err)
		}
		if attempt > 0 {
			return nil, fmt.Errorf("%w (lock file: %s)", ErrLockActive, path)
		}

		content, rerr := readLockFile(path)
		if rerr != nil {
			// Unreadable or torn lock file. Assume a writer is mid-flight.
			return nil, fmt.Errorf("%w (lock file: %s)", ErrLockActive, path)
		}
		if time.Since(content.LastUpdate) < staleTimeout {
			return nil, fmt.Errorf("%w (held by pid %d since %s)",
				ErrLockActive, content.PID, content.LastUpdate.Format(time.RFC3339))
		}

		plog.Warn("Taking over stale lock", "path", path, "pid", content.PID, "last_update", content.LastUpdate)
		if rmErr := os.Remove(path); rmErr != nil && !os.IsNotExist(rmErr) {
			return nil, fmt.Errorf("could not remove stale lock file %s: %w", path, rmErr)
		}
	}

	l := &Lock{
		path: path,
		stop: make(chan struct{}),
		done: make(chan struct{}),
	}
	go l.heartbeat()
	return l, nil
}

// Release stops the heartbeat and removes the lock file. Safe to call more
// than once.
func (l *Lock) Release() {
	l.stopOnce.Do(func() {
		close(l.stop)
		<-l.done
		if err := os.Remove(l.path); err != nil && !os.IsNotExist(err) {
			plog.Warn("Could not remove lock file", "path", l.path, "error", err)
		}
	})
}

// heartbeat refreshes the lock timestamp so other instances can tell a live
// holder from a crashed one.
func (l *Lock) heartbeat() {
	defer close(l.done)
	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-l.stop:
			return
		case <-ticker.C:
			if err := refreshLockFile(l.path); err != nil {
				plog.Warn("Could not refresh lock file", "path", l.path, "error", err)
			}
		}
	}
}

func writeLockFile(path string) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		return err
	}
	defer f.Close()
	return encodeLockContent(f)
}

// refreshLockFile rewrites the lock content with a fresh timestamp. O_CREATE
// lets the heartbeat recover the file if something external removed it.
func refreshLockFile(path string) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return err
	}
	defer f.Close()
	return encodeLockContent(f)
}

func encodeLockContent(f *os.File) error {
	return json.NewEncoder(f).Encode(lockContent{
		AppID:      buildinfo.Name,
		PID:        os.Getpid(),
		LastUpdate: time.Now().UTC(),
	})
}

func readLockFile(path string) (*lockContent, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var content lockContent
	if err := json.Unmarshal(data, &content); err != nil {
		return nil, err
	}
	return &content, nil
}
