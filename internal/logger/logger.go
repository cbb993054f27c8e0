package logger

import (
	"io"
	"log/slog"
	"os"
)

// The package logger is usable before Init: it writes JSON to stderr
// at warn level so library code can log unconditionally.
var (
	level = new(slog.LevelVar)
	log   = newLogger(os.Stderr)
)

func init() {
	level.Set(slog.LevelWarn)
}

func newLogger(w io.Writer) *slog.Logger {
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level}))
}

// Init sets process-wide verbosity: debug when verbose, warnings
// otherwise. It also installs the logger as the slog default.
func Init(verbose bool) {
	if verbose {
		level.Set(slog.LevelDebug)
	} else {
		level.Set(slog.LevelWarn)
	}
	slog.SetDefault(log)
}

// Debug logs a debug message
func Debug(msg string, args ...any) {
	log.Debug(msg, args...)
}

// Info logs an info message
func Info(msg string, args ...any) {
	log.Info(msg, args...)
}

// Warn logs a warning message
func Warn(msg string, args ...any) {
	log.Warn(msg, args...)
}

// Error logs an error message
func Error(msg string, args ...any) {
	log.Error(msg, args...)
}
