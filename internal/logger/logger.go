// Package logger provides structured logging for fundsync.
// It wraps the standard log/slog package so every component logs with the
// same handler and the same snake_case attribute keys.
//
// Two console formats are supported:
//   - JSON (default): machine-readable structured logging
//   - Human: console output with colors and status symbols
//
// A log file can be attached; file output is always JSON.
package logger

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
)

// Logger is the process-wide logger. Configure replaces it.
var Logger *slog.Logger

// mu guards Logger replacement and the open log file.
var mu sync.Mutex

func init() {
	Logger = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
}

// Format is the console output format.
type Format int

const (
	// FormatJSON is the default machine-readable JSON format
	FormatJSON Format = iota
	// FormatHuman is a human-readable console format with colors and prefixes
	FormatHuman
)

// String returns the flag spelling of the format.
func (f Format) String() string {
	if f == FormatHuman {
		return "human"
	}
	return "json"
}

// ParseFormat parses a --log-format value.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "json":
		return FormatJSON, nil
	case "human", "text":
		return FormatHuman, nil
	default:
		return FormatJSON, fmt.Errorf("unknown log format %q (expected json or human)", s)
	}
}

// Options configures the process logger.
type Options struct {
	// Level is the minimum level written
	Level slog.Level
	// Format selects the console handler
	Format Format
	// FilePath, when set, also writes JSON logs to this file
	FilePath string
	// Output overrides the console writer (default os.Stdout)
	Output io.Writer
}

// Configure replaces the process logger. Any previously opened log file is
// closed first.
func Configure(opts Options) error {
	out := opts.Output
	if out == nil {
		out = os.Stdout
	}

	var handler slog.Handler
	switch opts.Format {
	case FormatHuman:
		handler = NewHumanHandler(out, &HumanHandlerOptions{
			Level:     opts.Level,
			UseColors: isTerminal(out),
		})
	default:
		handler = slog.NewJSONHandler(out, &slog.HandlerOptions{Level: opts.Level})
	}

	mu.Lock()
	defer mu.Unlock()

	closeLogFileLocked()
	if opts.FilePath != "" {
		fileHandler, err := openLogFile(opts.FilePath, opts.Level)
		if err != nil {
			return err
		}
		handler = &fanoutHandler{handlers: []slog.Handler{handler, fileHandler}}
	}

	Logger = slog.New(handler)
	return nil
}

// Info logs an informational message.
func Info(msg string, args ...any) {
	Logger.Info(msg, args...)
}

// Debug logs a debug message.
func Debug(msg string, args ...any) {
	Logger.Debug(msg, args...)
}

// Warn logs a warning message.
func Warn(msg string, args ...any) {
	Logger.Warn(msg, args...)
}

// Error logs an error message.
func Error(msg string, args ...any) {
	Logger.Error(msg, args...)
}

// isTerminal reports whether w is a character device.
func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	fi, err := f.Stat()
	if err != nil {
		return false
	}
	return fi.Mode()&os.ModeCharDevice != 0
}
