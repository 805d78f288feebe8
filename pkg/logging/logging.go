// Package logging builds the slog loggers used by the staker binaries.
//
// On a terminal, records print as the message followed by a JSON object of
// their attributes. Elsewhere they are JSON lines keyed "message" and
// "severity", which log collectors pick up without remapping.
package logging

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"

	"golang.org/x/term"
)

// Formats accepted by New.
const (
	FormatAuto    = "auto"
	FormatMinimal = "minimal"
	FormatJSON    = "json"
)

// MinimalHandler writes "message {attrs}" lines.
type MinimalHandler struct {
	level slog.Leveler
	attrs []slog.Attr
	group string

	mu  *sync.Mutex
	out io.Writer
}

// NewMinimalHandler creates a MinimalHandler. A nil level means Info.
func NewMinimalHandler(out io.Writer, level slog.Leveler) *MinimalHandler {
	if level == nil {
		level = slog.LevelInfo
	}
	return &MinimalHandler{level: level, mu: &sync.Mutex{}, out: out}
}

func (h *MinimalHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

func (h *MinimalHandler) Handle(_ context.Context, r slog.Record) error {
	fields := make(map[string]any, len(h.attrs)+r.NumAttrs())
	for _, a := range h.attrs {
		fields[a.Key] = attrValue(a.Value)
	}
	r.Attrs(func(a slog.Attr) bool {
		fields[h.key(a.Key)] = attrValue(a.Value)
		return true
	})

	var line strings.Builder
	if r.Level != slog.LevelInfo {
		line.WriteString(r.Level.String())
		line.WriteByte(' ')
	}
	line.WriteString(r.Message)
	if len(fields) > 0 {
		b, err := json.Marshal(fields)
		if err != nil {
			return err
		}
		line.WriteByte(' ')
		line.Write(b)
	}
	line.WriteByte('\n')

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := io.WriteString(h.out, line.String())
	return err
}

func (h *MinimalHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	clone := *h
	clone.attrs = append([]slog.Attr{}, h.attrs...)
	for _, a := range attrs {
		clone.attrs = append(clone.attrs, slog.Attr{Key: h.key(a.Key), Value: a.Value})
	}
	return &clone
}

func (h *MinimalHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	clone := *h
	clone.group = h.key(name)
	return &clone
}

func (h *MinimalHandler) key(k string) string {
	if h.group == "" {
		return k
	}
	return h.group + "." + k
}

func attrValue(v slog.Value) any {
	v = v.Resolve()
	switch v.Kind() {
	case slog.KindString:
		return v.String()
	case slog.KindInt64, slog.KindUint64, slog.KindFloat64, slog.KindBool:
		return v.Any()
	default:
		return fmt.Sprintf("%v", v.Any())
	}
}

// NewJSONHandler returns a JSON handler using "message" and "severity"
// for the message and level keys.
func NewJSONHandler(out io.Writer, level slog.Leveler) slog.Handler {
	return slog.NewJSONHandler(out, &slog.HandlerOptions{
		Level: level,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if len(groups) > 0 {
				return a
			}
			switch a.Key {
			case slog.MessageKey:
				a.Key = "message"
			case slog.LevelKey:
				a.Key = "severity"
			}
			return a
		},
	})
}

// IsTerminal reports whether w is a terminal.
func IsTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// New builds a logger writing to out. FormatAuto picks the minimal
// handler on a terminal and JSON otherwise.
func New(out io.Writer, level slog.Leveler, format string) (*slog.Logger, error) {
	switch strings.ToLower(format) {
	case "", FormatAuto:
		if IsTerminal(out) {
			return slog.New(NewMinimalHandler(out, level)), nil
		}
		return slog.New(NewJSONHandler(out, level)), nil
	case FormatMinimal, "text":
		return slog.New(NewMinimalHandler(out, level)), nil
	case FormatJSON:
		return slog.New(NewJSONHandler(out, level)), nil
	default:
		return nil, fmt.Errorf("unknown log format %q", format)
	}
}

// ParseLevel parses debug, info, warn or error. Empty means info.
func ParseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if s == "" {
		return slog.LevelInfo, nil
	}
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return 0, fmt.Errorf("invalid log level %q", s)
	}
	return level, nil
}
