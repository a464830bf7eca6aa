//go:build !windows

package preflight

import (
	"fmt"
	"os"
	"strings"

	"golang.org/x/sys/unix"
)

// validateMountPoint checks if the path resides on the root filesystem.
// If it does, and the path is not under the user's home directory, we assume
// an external drive is NOT mounted (ghost detection).
func validateMountPoint(path string) error {
	// 1. Allow the home directory (mirrors into local user folders are usually intentional)
	homeDir, _ := os.UserHomeDir()
	if homeDir != "" && strings.HasPrefix(path, homeDir) {
		return nil
	}

	// 2. Allow temp locations, which always live on the system disk.
	if strings.HasPrefix(path, os.TempDir()) {
		return nil
	}

	// 3. Get the device ID of the root partition.
	rootInfo, err := os.Stat("/")
	if err != nil {
		return fmt.Errorf("failed to stat root: %w", err)
	}
	rootStat, ok := rootInfo.Sys().(*unix.Stat_t)
	if !ok {
		return fmt.Errorf("unsupported platform for unix.Stat_t")
	}

	// 4. Get the device ID of the target path.
	pathInfo, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("failed to stat destination path: %w", err)
	}
	pathStat, ok := pathInfo.Sys().(*unix.Stat_t)
	if !ok {
		return fmt.Errorf("unsupported platform for unix.Stat_t")
	}

	// 5. Compare device IDs. Same device as "/" means the system partition.
	// Exception: the user specifically targeted "/" (unlikely, but valid),
	// or a path directly under common system prefixes that are legitimately
	// on the root device.
	if pathStat.Dev == rootStat.Dev && path != "/" {
		for _, prefix := range []string{"/var", "/srv", "/opt", "/data"} {
			if strings.HasPrefix(path, prefix) {
				return nil
			}
		}
		return fmt.Errorf("path '%s' is on the root filesystem (system disk). "+
			"Ensure your external drive is mounted", path)
	}

	return nil
}
