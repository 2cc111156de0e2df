// Package logger builds the slog loggers used across the client.  The
// console format colors levels with fatih/color; the json format is meant
// for log shipping.
package logger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"

	"github.com/fatih/color"
)

// Config selects level, format and destination.
type Config struct {
	Level   string    // debug | info | warn | error
	Format  string    // console | json | text
	Output  io.Writer // defaults to os.Stderr
	NoColor bool
}

// New returns a logger for cfg.
func New(cfg Config) *slog.Logger {
	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}
	level := ParseLevel(cfg.Level)
	switch strings.ToLower(cfg.Format) {
	case "json":
		return slog.New(slog.NewJSONHandler(out, &slog.HandlerOptions{Level: level}))
	case "text":
		return slog.New(slog.NewTextHandler(out, &slog.HandlerOptions{Level: level}))
	default:
		return slog.New(NewConsoleHandler(out, level, cfg.NoColor))
	}
}

// Discard returns a logger that drops everything.  Used as the nil default.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError + 1}))
}

// Component tags log lines with the emitting component.
func Component(l *slog.Logger, name string) *slog.Logger {
	if l == nil {
		l = Discard()
	}
	return l.With("component", name)
}

// ParseLevel maps a level name to slog.Level, defaulting to info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// ConsoleHandler writes one colored line per record:
// time | LEVEL | message key=value ...
type ConsoleHandler struct {
	mu      *sync.Mutex
	w       io.Writer
	level   slog.Level
	attrs   []slog.Attr
	group   string
	noColor bool
}

// NewConsoleHandler returns a handler writing to w.
func NewConsoleHandler(w io.Writer, level slog.Level, noColor bool) *ConsoleHandler {
	return &ConsoleHandler{mu: &sync.Mutex{}, w: w, level: level, noColor: noColor}
}

// Enabled implements slog.Handler.
func (h *ConsoleHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level
}

// Handle implements slog.Handler.
func (h *ConsoleHandler) Handle(_ context.Context, r slog.Record) error {
	paint := func(fn func(string, ...interface{}) string, s string) string {
		if h.noColor {
			return s
		}
		return fn("%s", s)
	}

	level := r.Level.String()
	switch {
	case r.Level >= slog.LevelError:
		level = paint(color.RedString, level)
	case r.Level >= slog.LevelWarn:
		level = paint(color.YellowString, level)
	case r.Level >= slog.LevelInfo:
		level = paint(color.BlueString, level)
	default:
		level = paint(color.MagentaString, level)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s | %-5s | %s",
		paint(color.GreenString, r.Time.Format("2006-01-02T15:04:05")),
		level,
		r.Message,
	)
	for _, a := range h.attrs {
		b.WriteString(paint(color.CyanString, " "+formatAttr("", a)))
	}
	r.Attrs(func(a slog.Attr) bool {
		b.WriteString(paint(color.CyanString, " "+formatAttr(h.group, a)))
		return true
	})
	b.WriteByte('\n')

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := io.WriteString(h.w, b.String())
	return err
}

func formatAttr(group string, a slog.Attr) string {
	key := a.Key
	if group != "" {
		key = group + "." + key
	}
	return fmt.Sprintf("%s=%v", key, a.Value.Resolve())
}

// WithAttrs implements slog.Handler.
func (h *ConsoleHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	next := *h
	next.attrs = make([]slog.Attr, 0, len(h.attrs)+len(attrs))
	next.attrs = append(next.attrs, h.attrs...)
	for _, a := range attrs {
		if h.group != "" {
			a.Key = h.group + "." + a.Key
		}
		next.attrs = append(next.attrs, a)
	}
	return &next
}

// WithGroup implements slog.Handler.
func (h *ConsoleHandler) WithGroup(name string) slog.Handler {
	next := *h
	if h.group != "" {
		name = h.group + "." + name
	}
	next.group = name
	return &next
}
