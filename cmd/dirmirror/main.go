package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/mirrorlabs/dirmirror/pkg/buildinfo"
	"github.com/mirrorlabs/dirmirror/pkg/config"
	"github.com/mirrorlabs/dirmirror/pkg/filelock"
	"github.com/mirrorlabs/dirmirror/pkg/pathmirror"
	"github.com/mirrorlabs/dirmirror/pkg/pathtrash"
	"github.com/mirrorlabs/dirmirror/pkg/plog"
	"github.com/mirrorlabs/dirmirror/pkg/scheduler"
)

// action defines a special command to execute instead of the mirror service.
type action int

const (
	actionRunService action = iota // The default action is to run the scheduled mirror.
	actionRunOnce
	actionShowVersion
)

// init sets up a custom, more descriptive help message for the flags.
func init() {
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "Usage of %s (version %s):\n", buildinfo.Name, buildinfo.Version)
		fmt.Fprintf(flag.CommandLine.Output(), "A one-way directory mirror that keeps a destination tree converged to a source tree on a cron schedule.\n\n")
		flag.PrintDefaults()
	}
}

// parseFlagConfig defines and parses command-line flags, and constructs a
// map containing only the values the user explicitly provided, so flags can
// selectively override the config file.
func parseFlagConfig() (action, map[string]interface{}, error) {
	srcFlag := flag.String("source", "", "Source directory to mirror from (never modified)")
	targetFlag := flag.String("target", "", "Destination directory to converge (all writes happen here)")
	scheduleFlag := flag.String("schedule", "", "Cron schedule for mirror passes, 5-field syntax (default \"0 3 * * *\")")
	configFlag := flag.String("config", "", "Path to a JSON configuration file.")
	logFileFlag := flag.String("log-file", "", "Duplicate log output into this file. The file must already exist.")
	logLevelFlag := flag.String("log-level", "", "Set the logging level: 'debug', 'notice', 'info', 'warn', 'error'.")
	workersFlag := flag.Int("workers", 0, "Number of worker goroutines per mirror phase.")
	onceFlag := flag.Bool("once", false, "Run a single mirror pass immediately and exit.")
	dryRunFlag := flag.Bool("dry-run", false, "Show what would be done without making any changes.")
	failFastFlag := flag.Bool("fail-fast", false, "Abort a pass on the first file error instead of skipping the file.")
	metricsFlag := flag.Bool("metrics", true, "Enable per-pass counters and the end-of-pass summary.")
	trashDirFlag := flag.String("trash-dir", "", "Preserve deleted files as archives in this directory (must lie outside source and target).")
	trashFormatFlag := flag.String("trash-format", "", "Archive format for preserved files: 'tar.gz' or 'tar.zst'.")
	versionFlag := flag.Bool("version", false, "Print the application version and exit.")

	flag.Parse()

	usedFlags := make(map[string]bool)
	flag.Visit(func(f *flag.Flag) { usedFlags[f.Name] = true })

	flagMap := make(map[string]interface{})
	addIfUsed := func(name string, value interface{}) {
		if usedFlags[name] {
			flagMap[name] = value
		}
	}

	addIfUsed("source", *srcFlag)
	addIfUsed("target", *targetFlag)
	addIfUsed("schedule", *scheduleFlag)
	addIfUsed("config", *configFlag)
	addIfUsed("log-file", *logFileFlag)
	addIfUsed("log-level", *logLevelFlag)
	addIfUsed("workers", *workersFlag)
	addIfUsed("dry-run", *dryRunFlag)
	addIfUsed("fail-fast", *failFastFlag)
	addIfUsed("metrics", *metricsFlag)
	addIfUsed("trash-dir", *trashDirFlag)
	addIfUsed("trash-format", *trashFormatFlag)

	if *versionFlag {
		return actionShowVersion, flagMap, nil
	}
	if *onceFlag {
		return actionRunOnce, flagMap, nil
	}
	return actionRunService, flagMap, nil
}

// buildConfig merges defaults, the optional config file and the explicit
// flags into the final run configuration.
func buildConfig(flagMap map[string]interface{}) (*config.Config, error) {
	cfg := config.NewDefault()

	if path, ok := flagMap["config"].(string); ok && path != "" {
		if err := cfg.LoadFile(path); err != nil {
			return nil, err
		}
	}

	if v, ok := flagMap["source"].(string); ok {
		cfg.Source = v
	}
	if v, ok := flagMap["target"].(string); ok {
		cfg.Target = v
	}
	if v, ok := flagMap["schedule"].(string); ok {
		cfg.Schedule = v
	}
	if v, ok := flagMap["log-file"].(string); ok {
		cfg.LogFile = v
	}
	if v, ok := flagMap["log-level"].(string); ok {
		cfg.LogLevel = v
	}
	if v, ok := flagMap["workers"].(int); ok {
		cfg.Workers = v
	}
	if v, ok := flagMap["dry-run"].(bool); ok {
		cfg.DryRun = v
	}
	if v, ok := flagMap["fail-fast"].(bool); ok {
		cfg.FailFast = v
	}
	if v, ok := flagMap["metrics"].(bool); ok {
		cfg.Metrics = v
	}
	if v, ok := flagMap["trash-dir"].(string); ok {
		cfg.Trash.Enabled = true
		cfg.Trash.Dir = v
	}
	if v, ok := flagMap["trash-format"].(string); ok {
		cfg.Trash.Format = v
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// runMirror handles both the one-shot and the scheduled service action.
func runMirror(ctx context.Context, flagMap map[string]interface{}, once bool) error {
	cfg, err := buildConfig(flagMap)
	if err != nil {
		return err
	}

	if err := plog.Setup(plog.LevelFromString(cfg.LogLevel), cfg.LogFile); err != nil {
		return err
	}
	defer plog.Close()

	cfg.LogSummary()

	// Guard the target against a second instance racing our deletions.
	lock, err := filelock.Acquire(cfg.Target)
	if err != nil {
		return err
	}
	defer lock.Release()

	var archiver pathmirror.StaleArchiver
	if cfg.Trash.Enabled {
		format, err := pathtrash.ParseFormat(cfg.Trash.Format)
		if err != nil {
			return err
		}
		archiver = pathtrash.NewTrasher(cfg.Trash.Dir, format)
	}

	mirrorer := pathmirror.NewPathMirrorer(cfg.Workers, cfg.DryRun, cfg.FailFast, cfg.Metrics, archiver)
	job := func(ctx context.Context) error {
		return mirrorer.Mirror(ctx, cfg.Source, cfg.Target)
	}

	if once {
		startTime := time.Now()
		if err := job(ctx); err != nil {
			return err
		}
		plog.Info(buildinfo.Name+" finished successfully.", "duration", time.Since(startTime).Round(time.Millisecond))
		return nil
	}

	return scheduler.New(cfg.Schedule, job).Run(ctx)
}

// run encapsulates the main application logic and returns an error if
// something goes wrong, allowing the main function to handle exit codes.
func run(ctx context.Context) error {
	action, flagMap, err := parseFlagConfig()
	if err != nil {
		return err
	}

	switch action {
	case actionShowVersion:
		fmt.Printf("%s version %s\n", buildinfo.Name, buildinfo.Version)
		return nil
	case actionRunOnce:
		plog.Info("Starting "+buildinfo.Name, "version", buildinfo.Version, "pid", os.Getpid())
		return runMirror(ctx, flagMap, true)
	case actionRunService:
		plog.Info("Starting "+buildinfo.Name, "version", buildinfo.Version, "pid", os.Getpid())
		return runMirror(ctx, flagMap, false)
	default:
		return fmt.Errorf("internal error: unknown action %d", action)
	}
}

func main() {
	// Set up a context that is canceled when an interrupt signal is received.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt)
	go func() {
		<-sigChan
		cancel()
	}()

	if err := run(ctx); err != nil {
		plog.Error(buildinfo.Name+" exited with error", "error", err)
		os.Exit(1)
	}
}
