package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"bwtools/internal/config"
)

// LogFileName is the file written under paths.log_dir.
const LogFileName = "bwtools.log"

// Options describes logger construction parameters. Records go to Writer
// (stderr when nil) and are appended to File when it is set.
type Options struct {
	Level  string
	Format string
	Writer io.Writer
	File   string
}

// New constructs a slog logger using the provided options. Debug level adds
// the caller's file:line to every record.
func New(opts Options) (*slog.Logger, error) {
	level := parseLevel(opts.Level)

	out, err := openOutput(opts.Writer, opts.File)
	if err != nil {
		return nil, err
	}

	var handler slog.Handler
	switch format := strings.ToLower(strings.TrimSpace(opts.Format)); format {
	case "", "console":
		handler = &lineHandler{mu: new(sync.Mutex), out: out, level: level, source: level <= slog.LevelDebug}
	case "json":
		handler = slog.NewJSONHandler(out, &slog.HandlerOptions{
			Level:       level,
			AddSource:   level <= slog.LevelDebug,
			ReplaceAttr: jsonKeys,
		})
	default:
		return nil, fmt.Errorf("log format: unsupported value %q", opts.Format)
	}
	return slog.New(newContextHandler(handler)), nil
}

// NewFromConfig logs to stderr, keeping stdout for command output, and tees
// into paths.log_dir when one is configured.
func NewFromConfig(cfg *config.Config) (*slog.Logger, error) {
	if cfg == nil {
		return New(Options{})
	}
	opts := Options{Level: cfg.Logging.Level, Format: cfg.Logging.Format}
	if cfg.Paths.LogDir != "" {
		opts.File = filepath.Join(cfg.Paths.LogDir, LogFileName)
	}
	return New(opts)
}

func parseLevel(level string) slog.Level {
	var parsed slog.Level
	if err := parsed.UnmarshalText([]byte(strings.TrimSpace(level))); err != nil {
		return slog.LevelInfo
	}
	return parsed
}

func openOutput(w io.Writer, file string) (io.Writer, error) {
	if w == nil {
		w = os.Stderr
	}
	file = strings.TrimSpace(file)
	if file == "" {
		return w, nil
	}
	if err := os.MkdirAll(filepath.Dir(file), 0o755); err != nil {
		return nil, fmt.Errorf("ensure log directory: %w", err)
	}
	f, err := os.OpenFile(file, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open log file %s: %w", file, err)
	}
	return io.MultiWriter(w, f), nil
}

func jsonKeys(_ []string, attr slog.Attr) slog.Attr {
	switch attr.Key {
	case slog.TimeKey:
		attr.Key = "ts"
		attr.Value = slog.StringValue(attr.Value.Time().UTC().Format(time.RFC3339))
	case slog.LevelKey:
		attr.Value = slog.StringValue(strings.ToLower(attr.Value.String()))
	case slog.SourceKey:
		if src, ok := attr.Value.Any().(*slog.Source); ok && src != nil {
			attr.Value = slog.StringValue(filepath.Base(src.File) + ":" + strconv.Itoa(src.Line))
		}
	}
	return attr
}

// lineHandler renders one record per line:
//
//	2026-01-02T15:04:05Z INFO pipeline/download: fetched path="a b.rep"
//
// component and stage become the prefix instead of key=value pairs.
type lineHandler struct {
	mu     *sync.Mutex
	out    io.Writer
	level  slog.Level
	source bool
	prefix string
	attrs  []boundAttr
}

// boundAttr remembers the group an attribute was added under.
type boundAttr struct {
	prefix string
	attr   slog.Attr
}

func (h *lineHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level
}

func (h *lineHandler) Handle(_ context.Context, r slog.Record) error {
	var component, stage string
	var pairs strings.Builder
	for _, bound := range h.attrs {
		h.appendAttr(&pairs, bound.prefix, bound.attr, &component, &stage)
	}
	r.Attrs(func(a slog.Attr) bool {
		h.appendAttr(&pairs, h.prefix, a, &component, &stage)
		return true
	})

	ts := r.Time
	if ts.IsZero() {
		ts = time.Now()
	}
	var line strings.Builder
	line.WriteString(ts.UTC().Format(time.RFC3339))
	line.WriteByte(' ')
	line.WriteString(r.Level.String())
	line.WriteByte(' ')
	switch {
	case component != "" && stage != "":
		line.WriteString(component + "/" + stage + ": ")
	case component != "" || stage != "":
		line.WriteString(component + stage + ": ")
	}
	line.WriteString(r.Message)
	if h.source && r.PC != 0 {
		if src := r.Source(); src != nil {
			fmt.Fprintf(&line, " [%s:%d]", filepath.Base(src.File), src.Line)
		}
	}
	line.WriteString(pairs.String())
	line.WriteByte('\n')

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := io.WriteString(h.out, line.String())
	return err
}

func (h *lineHandler) appendAttr(b *strings.Builder, prefix string, a slog.Attr, component, stage *string) {
	a.Value = a.Value.Resolve()
	if a.Equal(slog.Attr{}) {
		return
	}
	if a.Value.Kind() == slog.KindGroup {
		next := prefix
		if a.Key != "" {
			next = prefix + a.Key + "."
		}
		for _, inner := range a.Value.Group() {
			h.appendAttr(b, next, inner, component, stage)
		}
		return
	}
	if prefix == "" {
		switch {
		case a.Key == FieldComponent && *component == "":
			*component = a.Value.String()
			return
		case a.Key == FieldStage && *stage == "":
			*stage = a.Value.String()
			return
		case a.Key == FieldComponent || a.Key == FieldStage:
			return
		}
	}
	b.WriteByte(' ')
	b.WriteString(prefix + a.Key)
	b.WriteByte('=')
	b.WriteString(quoteIfNeeded(valueText(a.Value)))
}

func (h *lineHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	clone := *h
	clone.attrs = append([]boundAttr(nil), h.attrs...)
	for _, a := range attrs {
		clone.attrs = append(clone.attrs, boundAttr{prefix: h.prefix, attr: a})
	}
	return &clone
}

func (h *lineHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	clone := *h
	clone.prefix = h.prefix + name + "."
	return &clone
}

func valueText(v slog.Value) string {
	switch v.Kind() {
	case slog.KindTime:
		return v.Time().UTC().Format(time.RFC3339)
	case slog.KindAny:
		if err, ok := v.Any().(error); ok {
			return err.Error()
		}
		return fmt.Sprint(v.Any())
	default:
		return v.String()
	}
}

func quoteIfNeeded(s string) string {
	if s == "" || strings.ContainsFunc(s, func(r rune) bool { return r <= ' ' || r == '=' || r == '"' }) {
		return strconv.Quote(s)
	}
	return s
}
