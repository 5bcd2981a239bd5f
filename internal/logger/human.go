package logger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"
)

// maxInlineAttrs bounds the attributes printed after the message.
const maxInlineAttrs = 6

// ANSI color codes
const (
	colorReset  = "\033[0m"
	colorRed    = "\033[31m"
	colorYellow = "\033[33m"
	colorGreen  = "\033[32m"
	colorCyan   = "\033[36m"
)

// HumanHandlerOptions configures the human-readable log handler.
type HumanHandlerOptions struct {
	// Level is the minimum log level to output
	Level slog.Level
	// UseColors enables ANSI color codes
	UseColors bool
}

// HumanHandler is a slog handler writing one short line per record:
//
//	15:04:05 ✓ stage completed stage=filter record_count=12 duration=3ms
type HumanHandler struct {
	opts   HumanHandlerOptions
	mu     *sync.Mutex
	writer io.Writer
	attrs  []slog.Attr
	prefix string
}

// NewHumanHandler creates a human-readable handler writing to w.
func NewHumanHandler(w io.Writer, opts *HumanHandlerOptions) *HumanHandler {
	if opts == nil {
		opts = &HumanHandlerOptions{Level: slog.LevelInfo}
	}
	return &HumanHandler{
		opts:   *opts,
		mu:     &sync.Mutex{},
		writer: w,
	}
}

// Enabled reports whether level is written.
func (h *HumanHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.opts.Level
}

// Handle writes r as one line.
func (h *HumanHandler) Handle(_ context.Context, r slog.Record) error {
	var sb strings.Builder
	sb.WriteString(r.Time.Format("15:04:05"))
	sb.WriteByte(' ')
	sb.WriteString(h.symbol(r.Level, r.Message))
	sb.WriteByte(' ')
	sb.WriteString(r.Message)

	fields := make([]string, 0, len(h.attrs)+r.NumAttrs())
	for _, a := range h.attrs {
		fields = append(fields, formatAttr(a))
	}
	r.Attrs(func(a slog.Attr) bool {
		fields = append(fields, h.prefix+formatAttr(a))
		return true
	})

	if len(fields) > 0 {
		shown := fields
		if len(shown) > maxInlineAttrs {
			shown = shown[:maxInlineAttrs]
		}
		sb.WriteByte(' ')
		sb.WriteString(strings.Join(shown, " "))
		if hidden := len(fields) - len(shown); hidden > 0 {
			fmt.Fprintf(&sb, " (+%d more)", hidden)
		}
	}
	sb.WriteByte('\n')

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := io.WriteString(h.writer, sb.String())
	return err
}

// WithAttrs returns a handler that prints attrs on every line.
func (h *HumanHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	next := *h
	next.attrs = make([]slog.Attr, 0, len(h.attrs)+len(attrs))
	next.attrs = append(next.attrs, h.attrs...)
	for _, a := range attrs {
		a.Key = h.prefix + a.Key
		next.attrs = append(next.attrs, a)
	}
	return &next
}

// WithGroup prefixes later attribute keys with name.
func (h *HumanHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	next := *h
	next.prefix = h.prefix + name + "."
	return &next
}

// symbol picks the level marker; info lines that report completion get a check mark.
func (h *HumanHandler) symbol(level slog.Level, message string) string {
	var symbol, color string
	switch {
	case level >= slog.LevelError:
		symbol, color = "✗", colorRed
	case level >= slog.LevelWarn:
		symbol, color = "⚠", colorYellow
	case level >= slog.LevelInfo && isSuccessMessage(message):
		symbol, color = "✓", colorGreen
	case level >= slog.LevelInfo:
		symbol, color = "ℹ", colorCyan
	default:
		symbol, color = "·", colorReset
	}
	if h.opts.UseColors {
		return color + symbol + colorReset
	}
	return symbol
}

func isSuccessMessage(message string) bool {
	msg := strings.ToLower(message)
	return strings.Contains(msg, "completed") ||
		strings.Contains(msg, "created") ||
		strings.Contains(msg, "loaded")
}

func formatAttr(a slog.Attr) string {
	switch v := a.Value.Any().(type) {
	case time.Duration:
		return a.Key + "=" + formatDuration(v)
	case float64:
		return fmt.Sprintf("%s=%.2f", a.Key, v)
	default:
		return fmt.Sprintf("%s=%v", a.Key, v)
	}
}

// formatDuration rounds d to a readable unit.
func formatDuration(d time.Duration) string {
	switch {
	case d < time.Millisecond:
		return fmt.Sprintf("%dµs", d.Microseconds())
	case d < time.Second:
		return fmt.Sprintf("%dms", d.Milliseconds())
	case d < time.Minute:
		return fmt.Sprintf("%.2fs", d.Seconds())
	default:
		return fmt.Sprintf("%.1fm", d.Minutes())
	}
}
