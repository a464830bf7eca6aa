// Package config defines the runtime configuration, loaded from an optional
// JSON file and finalized by command-line flags. Validation front-loads every
// check that would otherwise surface mid-pass: unreachable roots, nested
// roots, bad schedules, bad log levels and a misplaced trash directory are
// all rejected before the first tick.
package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/mirrorlabs/dirmirror/pkg/pathtrash"
	"github.com/mirrorlabs/dirmirror/pkg/plog"
	"github.com/mirrorlabs/dirmirror/pkg/preflight"
	"github.com/mirrorlabs/dirmirror/pkg/scheduler"
	"github.com/mirrorlabs/dirmirror/pkg/util"
)

// TrashConfig controls preservation of stale files before deletion.
type TrashConfig struct {
	// Enabled turns on archiving. Off by default: a plain mirror deletes
	// stale files outright.
	Enabled bool `json:"enabled"`
	// Dir is where archives are written. Must lie outside both the source
	// and the target tree.
	Dir string `json:"dir"`
	// Format is the archive format, "tar.gz" or "tar.zst".
	Format string `json:"format"`
}

// Config is the complete runtime configuration.
type Config struct {
	// Source is the tree to mirror from. Never modified.
	Source string `json:"source"`
	// Target is the tree to converge. All writes happen under it.
	Target string `json:"target"`
	// Schedule is a standard 5-field cron expression.
	Schedule string `json:"schedule"`
	// LogFile duplicates log output into a file. The file must already
	// exist; it is appended to, never created or rotated.
	LogFile string `json:"log_file"`
	// LogLevel is one of debug, notice, info, warn, error.
	LogLevel string `json:"log_level"`
	// Workers is the per-phase worker count.
	Workers int `json:"workers"`
	// DryRun logs planned actions without touching the filesystem.
	DryRun bool `json:"dry_run"`
	// FailFast aborts a pass on the first file error instead of skipping.
	FailFast bool `json:"fail_fast"`
	// Metrics enables per-pass counters and the end-of-pass summary.
	Metrics bool `json:"metrics"`

	Trash TrashConfig `json:"trash"`
}

// NewDefault returns the configuration used when neither file nor flags say
// otherwise.
func NewDefault() *Config {
	return &Config{
		Schedule: "0 3 * * *",
		LogLevel: "notice",
		Workers:  4,
		Metrics:  true,
		Trash: TrashConfig{
			Format: "tar.gz",
		},
	}
}

// LoadFile overlays the JSON config at path onto c. Unknown fields are
// rejected so typos do not silently fall back to defaults.
func (c *Config) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("could not read config file %s: %w", path, err)
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(c); err != nil {
		return fmt.Errorf("could not parse config file %s: %w", path, err)
	}
	return nil
}

// Validate checks the whole configuration and normalizes the source and
// target to absolute paths. It is called once at startup; a validation error
// is fatal.
func (c *Config) Validate() error {
	if c.Source == "" {
		return fmt.Errorf("source directory is required")
	}
	if c.Target == "" {
		return fmt.Errorf("target directory is required")
	}

	var err error
	if c.Source, err = util.ExpandPath(c.Source); err != nil {
		return fmt.Errorf("invalid source path: %w", err)
	}
	if c.Target, err = util.ExpandPath(c.Target); err != nil {
		return fmt.Errorf("invalid target path: %w", err)
	}
	if c.Source, err = filepath.Abs(c.Source); err != nil {
		return fmt.Errorf("invalid source path: %w", err)
	}
	if c.Target, err = filepath.Abs(c.Target); err != nil {
		return fmt.Errorf("invalid target path: %w", err)
	}

	if err := preflight.CheckSourceAccessible(c.Source); err != nil {
		return err
	}
	if err := preflight.CheckTargetAccessible(c.Target); err != nil {
		return err
	}
	if !c.DryRun {
		if err := preflight.CheckTargetWritable(c.Target); err != nil {
			return err
		}
	}
	if err := preflight.CheckNotNested(c.Source, c.Target); err != nil {
		return err
	}

	if err := scheduler.ValidateSpec(c.Schedule); err != nil {
		return err
	}

	if _, err := plog.ParseLevel(c.LogLevel); err != nil {
		return err
	}

	if c.LogFile != "" {
		info, err := os.Stat(c.LogFile)
		if err != nil {
			return fmt.Errorf("log file %s must exist before start: %w", c.LogFile, err)
		}
		if !info.Mode().IsRegular() {
			return fmt.Errorf("log file %s is not a regular file", c.LogFile)
		}
	}

	if c.Workers < 1 {
		return fmt.Errorf("workers must be at least 1, got %d", c.Workers)
	}

	if c.Trash.Enabled {
		if c.Trash.Dir == "" {
			return fmt.Errorf("trash dir is required when trash is enabled")
		}
		if c.Trash.Dir, err = util.ExpandPath(c.Trash.Dir); err != nil {
			return fmt.Errorf("invalid trash dir: %w", err)
		}
		if c.Trash.Dir, err = filepath.Abs(c.Trash.Dir); err != nil {
			return fmt.Errorf("invalid trash dir: %w", err)
		}
		if c.Trash.Dir == c.Target || util.IsSubPath(c.Target, c.Trash.Dir) {
			return fmt.Errorf("trash dir %s must lie outside the target tree %s", c.Trash.Dir, c.Target)
		}
		if c.Trash.Dir == c.Source || util.IsSubPath(c.Source, c.Trash.Dir) {
			return fmt.Errorf("trash dir %s must lie outside the source tree %s", c.Trash.Dir, c.Source)
		}
		if _, err := pathtrash.ParseFormat(c.Trash.Format); err != nil {
			return err
		}
	}

	return nil
}

// LogSummary logs the effective configuration at startup.
func (c *Config) LogSummary() {
	plog.Info("Configuration",
		"source", c.Source,
		"target", c.Target,
		"schedule", c.Schedule,
		"log_level", c.LogLevel,
		"workers", c.Workers,
		"dry_run", c.DryRun,
		"fail_fast", c.FailFast,
		"metrics", c.Metrics,
		"trash", c.Trash.Enabled)
}
