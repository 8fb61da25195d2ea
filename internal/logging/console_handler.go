package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/mattn/go-isatty"
)

const (
	ansiReset  = "\x1b[0m"
	ansiDim    = "\x1b[2m"
	ansiRed    = "\x1b[31m"
	ansiYellow = "\x1b[33m"
	ansiCyan   = "\x1b[36m"
)

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// consoleHandler renders one human-readable line per record:
//
//	15:04:05 INFO  scanner  scan started  scan_run=... sources=12
//
// The component, when present, is promoted out of the attribute list.
type consoleHandler struct {
	mu      sync.Mutex
	writer  io.Writer
	level   *slog.LevelVar
	colored bool
	attrs   []slog.Attr
	groups  []string
}

func newConsoleHandler(w io.Writer, lvl *slog.LevelVar, colored bool) slog.Handler {
	return &consoleHandler{writer: w, level: lvl, colored: colored}
}

func (h *consoleHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

func (h *consoleHandler) Handle(_ context.Context, record slog.Record) error {
	timestamp := record.Time
	if timestamp.IsZero() {
		timestamp = time.Now()
	}

	kvs := make([]kv, 0, record.NumAttrs()+len(h.attrs))
	for _, attr := range h.attrs {
		appendAttr(&kvs, h.groups, attr)
	}
	record.Attrs(func(attr slog.Attr) bool {
		appendAttr(&kvs, h.groups, attr)
		return true
	})

	var component string
	filtered := kvs[:0]
	for _, pair := range kvs {
		if pair.key == FieldComponent && component == "" {
			component = pair.value
			continue
		}
		filtered = append(filtered, pair)
	}
	sort.SliceStable(filtered, func(i, j int) bool {
		return fieldRank(filtered[i].key) < fieldRank(filtered[j].key)
	})

	var b strings.Builder
	b.WriteString(h.dim(timestamp.Format("15:04:05")))
	b.WriteByte(' ')
	b.WriteString(h.levelLabel(record.Level))
	b.WriteByte(' ')
	if component != "" {
		b.WriteString(h.color(ansiCyan, fmt.Sprintf("%-10s", component)))
		b.WriteByte(' ')
	}
	b.WriteString(record.Message)
	for _, pair := range filtered {
		b.WriteByte(' ')
		b.WriteString(h.dim(pair.key + "=" + pair.value))
	}
	b.WriteByte('\n')

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := io.WriteString(h.writer, b.String())
	return err
}

func (h *consoleHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	clone := h.clone()
	clone.attrs = append(clone.attrs, attrs...)
	return clone
}

func (h *consoleHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	clone := h.clone()
	clone.groups = append(clone.groups, name)
	return clone
}

func (h *consoleHandler) clone() *consoleHandler {
	return &consoleHandler{
		writer:  h.writer,
		level:   h.level,
		colored: h.colored,
		attrs:   append([]slog.Attr(nil), h.attrs...),
		groups:  append([]string(nil), h.groups...),
	}
}

func (h *consoleHandler) levelLabel(level slog.Level) string {
	switch {
	case level >= slog.LevelError:
		return h.color(ansiRed, "ERROR")
	case level >= slog.LevelWarn:
		return h.color(ansiYellow, "WARN ")
	case level >= slog.LevelInfo:
		return "INFO "
	default:
		return h.dim("DEBUG")
	}
}

func (h *consoleHandler) color(code, s string) string {
	if !h.colored {
		return s
	}
	return code + s + ansiReset
}

func (h *consoleHandler) dim(s string) string {
	return h.color(ansiDim, s)
}

type kv struct {
	key   string
	value string
}

func appendAttr(out *[]kv, groups []string, attr slog.Attr) {
	attr.Value = attr.Value.Resolve()
	if attr.Value.Kind() == slog.KindGroup {
		nested := groups
		if attr.Key != "" {
			nested = append(append([]string(nil), groups...), attr.Key)
		}
		for _, sub := range attr.Value.Group() {
			appendAttr(out, nested, sub)
		}
		return
	}
	if attr.Equal(slog.Attr{}) {
		return
	}
	key := attr.Key
	if len(groups) > 0 {
		key = strings.Join(groups, ".") + "." + key
	}
	*out = append(*out, kv{key: key, value: formatValue(attr.Value)})
}

func formatValue(v slog.Value) string {
	switch v.Kind() {
	case slog.KindString:
		s := v.String()
		if strings.ContainsAny(s, " \t") {
			return fmt.Sprintf("%q", s)
		}
		return s
	case slog.KindDuration:
		return v.Duration().Round(time.Millisecond).String()
	case slog.KindTime:
		return v.Time().Format(time.RFC3339)
	default:
		return v.String()
	}
}

// fieldRank pins identity fields to the front of the attribute list so lines
// scan consistently.
func fieldRank(key string) int {
	switch key {
	case FieldQueue:
		return 0
	case FieldJobID:
		return 1
	case FieldSource:
		return 2
	case FieldScanRun:
		return 3
	case FieldEventType:
		return 90
	case "error":
		return 91
	case FieldErrorHint:
		return 92
	default:
		return 50
	}
}
