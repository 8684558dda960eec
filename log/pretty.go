package log

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"
)

// ANSI color codes for pretty printing.
const (
	colorReset   = "\033[0m"
	colorGray    = "\033[90m"
	colorRed     = "\033[31m"
	colorGreen   = "\033[32m"
	colorYellow  = "\033[33m"
	colorBlue    = "\033[34m"
	colorMagenta = "\033[35m"
	colorCyan    = "\033[36m"
)

// prettyLayout selects how a prettyHandler arranges a record.
type prettyLayout int

const (
	layoutLine  prettyLayout = iota // key=value pairs on one line
	layoutBlock                     // one "key": value pair per line, braced
)

// prettyHandler is a colorized [slog.Handler] for interactive terminals.
// Attributes added with WithAttrs and WithGroup are preserved, and group
// names prefix attribute keys with dots.
type prettyHandler struct {
	opts   slog.HandlerOptions
	layout prettyLayout
	mu     *sync.Mutex
	w      io.Writer
	prefix string
	attrs  []slog.Attr
}

func newPrettyTextHandler(w io.Writer, opts *slog.HandlerOptions) *prettyHandler {
	return &prettyHandler{opts: *opts, layout: layoutLine, mu: &sync.Mutex{}, w: w}
}

func newPrettyJSONHandler(w io.Writer, opts *slog.HandlerOptions) *prettyHandler {
	return &prettyHandler{opts: *opts, layout: layoutBlock, mu: &sync.Mutex{}, w: w}
}

func (h *prettyHandler) Enabled(_ context.Context, level slog.Level) bool {
	minLevel := slog.LevelInfo
	if h.opts.Level != nil {
		minLevel = h.opts.Level.Level()
	}

	return level >= minLevel
}

func (h *prettyHandler) Handle(_ context.Context, r slog.Record) error {
	fields := make([]slog.Attr, 0, r.NumAttrs()+len(h.attrs)+4)

	if !r.Time.IsZero() {
		fields = append(fields, h.replace(nil, slog.Time(slog.TimeKey, r.Time)))
	}

	fields = append(fields, h.replace(nil, slog.Any(slog.LevelKey, r.Level)))

	if h.opts.AddSource && r.PC != 0 {
		if src := r.Source(); src != nil {
			fields = append(fields,
				slog.String(slog.SourceKey, fmt.Sprintf("%s:%d", src.File, src.Line)))
		}
	}

	fields = append(fields, slog.String(slog.MessageKey, r.Message))
	fields = append(fields, h.attrs...)

	r.Attrs(func(a slog.Attr) bool {
		fields = append(fields, h.qualify(a))

		return true
	})

	buf := new(bytes.Buffer)

	if h.layout == layoutBlock {
		buf.WriteString("{\n")
	}

	n := 0

	for _, a := range fields {
		n = h.writeAttr(buf, "", a, n)
	}

	if h.layout == layoutBlock {
		buf.WriteString("\n}")
	}

	buf.WriteByte('\n')

	h.mu.Lock()
	defer h.mu.Unlock()

	_, err := h.w.Write(buf.Bytes())

	return err
}

func (h *prettyHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	c := *h
	c.attrs = make([]slog.Attr, len(h.attrs), len(h.attrs)+len(attrs))
	copy(c.attrs, h.attrs)

	for _, a := range attrs {
		c.attrs = append(c.attrs, h.qualify(a))
	}

	return &c
}

func (h *prettyHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}

	c := *h
	c.prefix = h.prefix + name + "."

	return &c
}

// qualify prefixes the key of a with the handler's open groups.
func (h *prettyHandler) qualify(a slog.Attr) slog.Attr {
	a.Key = h.prefix + a.Key

	return a
}

func (h *prettyHandler) replace(groups []string, a slog.Attr) slog.Attr {
	if h.opts.ReplaceAttr == nil {
		return a
	}

	return h.opts.ReplaceAttr(groups, a)
}

// writeAttr writes a and returns the updated count of fields written.
// Group values are flattened into dotted keys.
func (h *prettyHandler) writeAttr(buf *bytes.Buffer, prefix string, a slog.Attr, n int) int {
	a.Value = a.Value.Resolve()

	if a.Equal(slog.Attr{}) {
		return n
	}

	if a.Value.Kind() == slog.KindGroup {
		if a.Key != "" {
			prefix += a.Key + "."
		}

		for _, ga := range a.Value.Group() {
			n = h.writeAttr(buf, prefix, ga, n)
		}

		return n
	}

	switch {
	case n > 0 && h.layout == layoutBlock:
		buf.WriteString(",\n")
	case n > 0:
		buf.WriteByte(' ')
	}

	key := prefix + a.Key

	if h.layout == layoutBlock {
		buf.WriteString("  ")
		buf.WriteString(colorGray)
		buf.WriteString(strconv.Quote(key))
		buf.WriteString(colorReset)
		buf.WriteString(": ")
	} else {
		buf.WriteString(colorGray)
		buf.WriteString(key)
		buf.WriteString(colorReset)
		buf.WriteByte('=')
	}

	h.writeValue(buf, a.Key, a.Value)

	return n + 1
}

func (h *prettyHandler) writeValue(buf *bytes.Buffer, key string, v slog.Value) {
	color, text := colorCyan, ""

	switch v.Kind() {
	case slog.KindString:
		text = v.String()
		if key == slog.LevelKey {
			color = levelColor(text)
		}

		if h.layout == layoutBlock || strings.ContainsAny(text, " \t\n\"=") {
			text = strconv.Quote(text)
		}

	case slog.KindInt64:
		color, text = colorYellow, strconv.FormatInt(v.Int64(), 10)

	case slog.KindUint64:
		color, text = colorYellow, strconv.FormatUint(v.Uint64(), 10)

	case slog.KindFloat64:
		color, text = colorYellow, strconv.FormatFloat(v.Float64(), 'g', -1, 64)

	case slog.KindBool:
		color, text = colorRed, "false"
		if v.Bool() {
			color, text = colorGreen, "true"
		}

	case slog.KindDuration:
		color, text = colorMagenta, strconv.Quote(v.Duration().String())
		if h.layout == layoutLine {
			text = v.Duration().String()
		}

	case slog.KindTime:
		color, text = colorBlue, v.Time().Format(time.RFC3339Nano)
		if h.layout == layoutBlock {
			text = strconv.Quote(text)
		}

	default:
		if level, ok := v.Any().(slog.Level); ok {
			text = strings.ToUpper(Level(level).String())
			color = levelColor(text)
		} else {
			text = fmt.Sprint(v.Any())
		}

		if h.layout == layoutBlock {
			text = strconv.Quote(text)
		}
	}

	buf.WriteString(color)
	buf.WriteString(text)
	buf.WriteString(colorReset)
}

func levelColor(name string) string {
	switch ParseLevel(strings.Trim(name, `"`)) {
	case LevelError:
		return colorRed
	case LevelWarn:
		return colorYellow
	case LevelInfo:
		return colorGreen
	default:
		return colorBlue
	}
}
