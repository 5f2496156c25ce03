// Package logging sets up the process-wide structured logger.
//
// Output goes to stderr for interactive use and, when a log file is
// configured, to a rotated file via lumberjack so a long-lived series of `up`
// invocations doesn't grow one file without bound.
package logging

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/natefinch/lumberjack.v2"
)

var (
	once   sync.Once
	logger *slog.Logger
)

// Options configures Init.
type Options struct {
	// Dir is the directory log files are rotated into. Empty disables
	// file logging (stderr only).
	Dir string
	// Verbose enables debug-level logging.
	Verbose bool
	// JSON selects JSON handler output instead of text.
	JSON bool
}

// Init sets up the process-wide logger. Safe to call multiple times; only
// the first call takes effect.
func Init(opts Options) *slog.Logger {
	once.Do(func() {
		level := slog.LevelInfo
		if opts.Verbose {
			level = slog.LevelDebug
		}

		var w io.Writer = os.Stderr
		if opts.Dir != "" {
			_ = os.MkdirAll(opts.Dir, 0o755)
			w = io.MultiWriter(os.Stderr, &lumberjack.Logger{
				Filename:   filepath.Join(opts.Dir, "up.log"),
				MaxSize:    10, // MB
				MaxBackups: 3,
				MaxAge:     28, // days
				Compress:   true,
			})
		}

		var handler slog.Handler
		if opts.JSON {
			handler = slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level})
		} else {
			handler = slog.NewTextHandler(w, &slog.HandlerOptions{Level: level})
		}
		logger = slog.New(handler)
	})
	return logger
}

// Get returns the process-wide logger, initializing it with defaults
// (stderr only, info level) if Init was never called.
func Get() *slog.Logger {
	if logger == nil {
		return Init(Options{})
	}
	return logger
}
