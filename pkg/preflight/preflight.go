// Package preflight provides validation checks that run before the mirror
// loop starts. The checks are designed to produce user-friendly errors
// instead of letting the first pass fail halfway through.
package preflight

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/mirrorlabs/dirmirror/pkg/util"
)

// CheckSourceAccessible validates that the source path exists and is a directory.
func CheckSourceAccessible(srcPath string) error {
	srcInfo, err := os.Stat(srcPath)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("source directory %s does not exist", srcPath)
		}
		return fmt.Errorf("cannot stat source directory %s: %w", srcPath, err)
	}

	if !srcInfo.IsDir() {
		return fmt.Errorf("source path %s is not a directory", srcPath)
	}

	return nil
}

// CheckTargetAccessible validates that the destination path exists, is a
// directory, and actually resides on a mounted volume. The mount check
// prevents mirroring onto a "ghost" directory left behind on the system disk
// after an external drive disappeared.
func CheckTargetAccessible(targetPath string) error {
	info, err := os.Stat(targetPath)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("destination directory %s does not exist", targetPath)
		}
		return fmt.Errorf("cannot stat destination directory %s: %w", targetPath, err)
	}

	if !info.IsDir() {
		return fmt.Errorf("destination path %s is not a directory", targetPath)
	}

	return validateMountPoint(targetPath)
}

// CheckTargetWritable ensures the destination directory is writable by
// creating and deleting a probe file.
func CheckTargetWritable(targetPath string) error {
	probe := filepath.Join(targetPath, ".dirmirror-writetest.tmp")
	f, err := os.Create(probe)
	if err != nil {
		return fmt.Errorf("destination directory %s is not writable: %w", targetPath, err)
	}
	f.Close()
	_ = os.Remove(probe)
	return nil
}

// CheckNotNested rejects configurations where one of the two trees lies
// inside the other. A destination inside the source would be scanned and
// re-copied into itself; a source inside the destination would be deleted
// by the mirror phase.
func CheckNotNested(srcPath, targetPath string) error {
	absSrc, err := filepath.Abs(srcPath)
	if err != nil {
		return fmt.Errorf("cannot resolve source path %s: %w", srcPath, err)
	}
	absTrg, err := filepath.Abs(targetPath)
	if err != nil {
		return fmt.Errorf("cannot resolve destination path %s: %w", targetPath, err)
	}

	if absSrc == absTrg {
		return fmt.Errorf("source and destination are the same directory: %s", absSrc)
	}
	if util.IsSubPath(absSrc, absTrg) {
		return fmt.Errorf("destination %s is nested inside source %s", absTrg, absSrc)
	}
	if util.IsSubPath(absTrg, absSrc) {
		return fmt.Errorf("source %s is nested inside destination %s", absSrc, absTrg)
	}
	return nil
}
