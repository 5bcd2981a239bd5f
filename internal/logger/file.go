package logger

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"time"
)

// maxLogFileSize triggers rotation when a log file is reopened (10MB).
const maxLogFileSize = 10 * 1024 * 1024

// logFile is the open log file, guarded by mu.
var logFile *os.File

// openLogFile rotates path if it is too large, opens it for appending and
// returns a JSON handler writing to it. mu must be held.
func openLogFile(path string, level slog.Level) (slog.Handler, error) {
	if err := rotateLogFile(path, time.Now()); err != nil {
		return nil, err
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("opening log file: %w", err)
	}
	logFile = f

	return slog.NewJSONHandler(f, &slog.HandlerOptions{Level: level}), nil
}

// rotateLogFile renames path to path.<timestamp> when it exceeds maxLogFileSize.
func rotateLogFile(path string, now time.Time) error {
	info, err := os.Stat(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("checking log file size: %w", err)
	}
	if info.Size() < maxLogFileSize {
		return nil
	}

	rotated := fmt.Sprintf("%s.%s", path, now.Format("20060102-150405"))
	if err := os.Rename(path, rotated); err != nil {
		return fmt.Errorf("rotating log file: %w", err)
	}
	return nil
}

// Close flushes and closes the log file, if any.
func Close() {
	mu.Lock()
	defer mu.Unlock()
	closeLogFileLocked()
}

func closeLogFileLocked() {
	if logFile == nil {
		return
	}
	// Logging here would write to the file being closed.
	_ = logFile.Sync()
	_ = logFile.Close()
	logFile = nil
}

// fanoutHandler writes every record to all handlers that accept its level.
type fanoutHandler struct {
	handlers []slog.Handler
}

func (f *fanoutHandler) Enabled(ctx context.Context, level slog.Level) bool {
	for _, h := range f.handlers {
		if h.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (f *fanoutHandler) Handle(ctx context.Context, r slog.Record) error {
	var errs []error
	for _, h := range f.handlers {
		if !h.Enabled(ctx, r.Level) {
			continue
		}
		if err := h.Handle(ctx, r.Clone()); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (f *fanoutHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	next := make([]slog.Handler, len(f.handlers))
	for i, h := range f.handlers {
		next[i] = h.WithAttrs(attrs)
	}
	return &fanoutHandler{handlers: next}
}

func (f *fanoutHandler) WithGroup(name string) slog.Handler {
	next := make([]slog.Handler, len(f.handlers))
	for i, h := range f.handlers {
		next[i] = h.WithGroup(name)
	}
	return &fanoutHandler{handlers: next}
}
