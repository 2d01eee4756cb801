// Package logging builds the *slog.Logger astrotask's Facade holds;
// Store, Lock and Scheduler take no logger. The teacher's go.mod carries
// gopkg.in/natefinch/lumberjack.v2 for rotated file output but never
// pairs it with a structured logger; astrotask completes that pairing
// with the standard library's log/slog, the idiomatic complement to a
// rotation writer already in the dependency graph (Design Notes'
// "funnel environment reads through an explicit configuration value"
// applies here too: callers build a Logger once and pass it down).
package logging

import (
	"io"
	"log/slog"
	"os"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Options configures New.
type Options struct {
	// Verbose raises the level to Debug (DB_VERBOSE).
	Verbose bool
	// FilePath, if set, rotates logs through lumberjack instead of
	// writing to stderr.
	FilePath   string
	MaxSizeMB  int // lumberjack MaxSize, defaults to 10
	MaxBackups int // defaults to 3
	MaxAgeDays int // defaults to 28
}

// New builds a leveled, structured logger per Options. Never reads a
// global; the caller owns Options and threads the result down.
func New(opts Options) *slog.Logger {
	level := slog.LevelInfo
	if opts.Verbose {
		level = slog.LevelDebug
	}

	var w io.Writer = os.Stderr
	if opts.FilePath != "" {
		maxSize := opts.MaxSizeMB
		if maxSize == 0 {
			maxSize = 10
		}
		maxBackups := opts.MaxBackups
		if maxBackups == 0 {
			maxBackups = 3
		}
		maxAge := opts.MaxAgeDays
		if maxAge == 0 {
			maxAge = 28
		}
		w = &lumberjack.Logger{
			Filename:   opts.FilePath,
			MaxSize:    maxSize,
			MaxBackups: maxBackups,
			MaxAge:     maxAge,
		}
	}

	handler := slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level})
	return slog.New(handler)
}

// Nop returns a logger that discards everything, for tests and
// embedders that don't care.
func Nop() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
