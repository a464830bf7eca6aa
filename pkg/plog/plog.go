package plog

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/lmittmann/tint"

	"github.com/mirrorlabs/dirmirror/pkg/buildinfo"
)

// Level is the log level type used throughout the application.
type Level = slog.Level

// Log levels, ordered from least to most severe. NOTICE sits between DEBUG
// and INFO and is used for the per-file action lines (COPY, DELETE, RMDIR),
// so a single pass can be followed file by file at the default level while
// "info" still gives a summary-only view.
const (
	LevelDebug  Level = slog.LevelDebug
	LevelNotice Level = slog.Level(-2)
	LevelInfo   Level = slog.LevelInfo
	LevelWarn   Level = slog.LevelWarn
	LevelError  Level = slog.LevelError
)

var levelNames = map[Level]string{
	LevelDebug:  "debug",
	LevelNotice: "notice",
	LevelInfo:   "info",
	LevelWarn:   "warn",
	LevelError:  "error",
}

// ParseLevel converts a level name into a Level. Names are case-insensitive.
func ParseLevel(s string) (Level, error) {
	for l, name := range levelNames {
		if strings.EqualFold(s, name) {
			return l, nil
		}
	}
	if strings.EqualFold(s, "warning") {
		return LevelWarn, nil
	}
	return LevelInfo, &InvalidLevelError{Name: s}
}

// InvalidLevelError is returned by ParseLevel for unknown level names.
type InvalidLevelError struct {
	Name string
}

func (e *InvalidLevelError) Error() string {
	return "invalid log level: \"" + e.Name + "\". Must be 'debug', 'notice', 'info', 'warn', or 'error'"
}

// LevelFromString is the lenient variant of ParseLevel; unknown names fall
// back to the notice level.
func LevelFromString(s string) Level {
	l, err := ParseLevel(s)
	if err != nil {
		return LevelNotice
	}
	return l
}

// replaceLevelName renames the custom NOTICE level in handler output, which
// slog would otherwise render as "INFO-2".
func replaceLevelName(groups []string, a slog.Attr) slog.Attr {
	if a.Key == slog.LevelKey {
		if l, ok := a.Value.Any().(slog.Level); ok && l == LevelNotice {
			a.Value = slog.StringValue("NOTICE")
		}
	}
	return a
}

// LevelDispatchHandler is a slog.Handler that writes log records to different
// handlers based on the record's level. INFO and below go to one handler,
// while WARNING and above go to another.
type LevelDispatchHandler struct {
	stdoutHandler slog.Handler
	stderrHandler slog.Handler
}

// Enabled checks if the level is enabled for either of the underlying handlers.
func (h *LevelDispatchHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.stdoutHandler.Enabled(ctx, level) || h.stderrHandler.Enabled(ctx, level)
}

// Handle dispatches the record to the appropriate handler.
func (h *LevelDispatchHandler) Handle(ctx context.Context, r slog.Record) error {
	if r.Level >= slog.LevelWarn {
		return h.stderrHandler.Handle(ctx, r)
	}
	return h.stdoutHandler.Handle(ctx, r)
}

// WithAttrs returns a new LevelDispatchHandler with the given attributes added.
func (h *LevelDispatchHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &LevelDispatchHandler{
		stdoutHandler: h.stdoutHandler.WithAttrs(attrs),
		stderrHandler: h.stderrHandler.WithAttrs(attrs),
	}
}

// WithGroup returns a new LevelDispatchHandler with the given group.
func (h *LevelDispatchHandler) WithGroup(name string) slog.Handler {
	return &LevelDispatchHandler{
		stdoutHandler: h.stdoutHandler.WithGroup(name),
		stderrHandler: h.stderrHandler.WithGroup(name),
	}
}

// fanoutHandler duplicates every record to all wrapped handlers. It is used
// to mirror the console output into the configured log file.
type fanoutHandler struct {
	handlers []slog.Handler
}

func (h *fanoutHandler) Enabled(ctx context.Context, level slog.Level) bool {
	for _, hh := range h.handlers {
		if hh.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (h *fanoutHandler) Handle(ctx context.Context, r slog.Record) error {
	var firstErr error
	for _, hh := range h.handlers {
		if !hh.Enabled(ctx, r.Level) {
			continue
		}
		if err := hh.Handle(ctx, r.Clone()); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (h *fanoutHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	next := make([]slog.Handler, len(h.handlers))
	for i, hh := range h.handlers {
		next[i] = hh.WithAttrs(attrs)
	}
	return &fanoutHandler{handlers: next}
}

func (h *fanoutHandler) WithGroup(name string) slog.Handler {
	next := make([]slog.Handler, len(h.handlers))
	for i, hh := range h.handlers {
		next[i] = hh.WithGroup(name)
	}
	return &fanoutHandler{handlers: next}
}

var (
	levelVar      slog.LevelVar
	defaultLogger *slog.Logger
	logFile       *os.File
)

func consoleHandler() slog.Handler {
	opts := &tint.Options{
		Level:       &levelVar,
		TimeFormat:  time.DateTime,
		ReplaceAttr: replaceLevelName,
	}
	return &LevelDispatchHandler{
		stdoutHandler: tint.NewHandler(os.Stdout, opts),
		stderrHandler: tint.NewHandler(os.Stderr, opts),
	}
}

func init() {
	levelVar.Set(LevelNotice)
	defaultLogger = slog.New(consoleHandler())
}

// Setup configures the global logger: the minimum level and, if logFilePath
// is non-empty, duplication of every console line into that file. The file
// must already exist; it is opened for append only.
func Setup(level Level, logFilePath string) error {
	levelVar.Set(level)

	handlers := []slog.Handler{consoleHandler()}
	if logFilePath != "" {
		f, err := os.OpenFile(logFilePath, os.O_APPEND|os.O_WRONLY, 0644)
		if err != nil {
			return err
		}
		logFile = f
		handlers = append(handlers, slog.NewTextHandler(f, &slog.HandlerOptions{
			Level:       &levelVar,
			ReplaceAttr: replaceLevelName,
		}))
	}

	defaultLogger = slog.New(&fanoutHandler{handlers: handlers}).With("app", buildinfo.Name)
	return nil
}

// Close releases the log file handle acquired by Setup, if any.
func Close() {
	if logFile != nil {
		logFile.Close()
		logFile = nil
	}
}

// SetLevel adjusts the minimum level of the global logger.
func SetLevel(level Level) {
	levelVar.Set(level)
}

// SetOutput allows redirecting the logger's output, primarily for testing.
// All levels go to the provided writer as plain text.
func SetOutput(w io.Writer) {
	defaultLogger = slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{
		Level:       &levelVar,
		ReplaceAttr: replaceLevelName,
	}))
}

// Debug logs a debug message.
func Debug(msg string, args ...any) {
	defaultLogger.Debug(msg, args...)
}

// Notice logs a per-action message (one line per file copy, deletion, etc.).
func Notice(msg string, args ...any) {
	defaultLogger.Log(context.Background(), LevelNotice, msg, args...)
}

// Info logs an informational message.
func Info(msg string, args ...any) {
	defaultLogger.Info(msg, args...)
}

// Warn logs a warning message.
func Warn(msg string, args ...any) {
	defaultLogger.Warn(msg, args...)
}

// Error logs an error message.
func Error(msg string, args ...any) {
	defaultLogger.Error(msg, args...)
}
