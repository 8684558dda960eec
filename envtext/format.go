package envtext

import (
	"bufio"
	"io"
	"log/slog"
	"strings"
	"unicode"
)

// Format renders m as env text, one assignment per line.
//
// Entries that [Parse] cannot read back unchanged are written as closely as
// possible; use [Map.WriteTo] to reject them instead.
func Format(m *Map) string {
	var sb strings.Builder

	for k, v := range m.All() {
		writeEntry(&sb, k, v)
	}

	return sb.String()
}

// WriteTo writes m as env text to w. It implements [io.WriterTo].
//
// If any entry cannot be read back unchanged by [Parse], nothing is written
// and the returned error wraps [ErrUnrepresentable].
func (m *Map) WriteTo(w io.Writer) (int64, error) {
	for k, v := range m.All() {
		if err := Representable(k, v); err != nil {
			return 0, err
		}
	}

	bw := bufio.NewWriter(w)
	cw := &countWriter{w: bw}

	for k, v := range m.All() {
		writeEntry(cw, k, v)
	}

	if err := bw.Flush(); err != nil {
		return cw.n, err
	}

	return cw.n, cw.err
}

// Representable reports, as an error wrapping [ErrUnrepresentable], why the
// entry k=v cannot survive a round trip through [Format] and [Parse].
// It returns nil for entries that can.
func Representable(k, v string) error {
	reason := ""

	switch {
	case k == "":
		reason = "empty key"
	case k != strings.TrimSpace(k):
		reason = "key has surrounding whitespace"
	case k[0] == '#':
		reason = "key starts with '#'"
	case strings.ContainsAny(k, "\n"):
		reason = "key contains a newline"
	case splitIndex(k) >= 0:
		reason = "key contains an unescaped '='"
	case strings.ContainsAny(v, "\n"):
		reason = "value contains a newline"
	case v != strings.TrimSpace(v):
		reason = "value has surrounding whitespace"
	default:
		return nil
	}

	return ErrUnrepresentable.With(
		slog.String("key", k),
		slog.String("reason", reason),
	)
}

func writeEntry(w io.StringWriter, k, v string) {
	// Parse strips one "export " prefix, so a key that begins with it
	// needs another one in front.
	if strings.HasPrefix(k, exportPrefix) {
		_, _ = w.WriteString(exportPrefix)
	}

	_, _ = w.WriteString(k)

	// A trailing backslash would escape the '='. Parse trims the space.
	if strings.HasSuffix(k, `\`) {
		_, _ = w.WriteString(" ")
	}

	_, _ = w.WriteString("=")
	_, _ = w.WriteString(quote(v))
	_, _ = w.WriteString("\n")
}

// quote returns v in a form the value scanner decodes back to v.
func quote(v string) string {
	if !strings.ContainsFunc(v, needsQuote) {
		return v
	}

	var sb strings.Builder

	sb.Grow(len(v) + 2) //nolint:mnd
	sb.WriteByte('"')

	for i := range len(v) {
		if v[i] == '"' || v[i] == '\\' {
			sb.WriteByte('\\')
		}

		sb.WriteByte(v[i])
	}

	sb.WriteByte('"')

	return sb.String()
}

func needsQuote(r rune) bool {
	switch r {
	case '#', '"', '\'', '\\', '=':
		return true
	default:
		return unicode.IsSpace(r)
	}
}

// countWriter tracks bytes written and the first error.
type countWriter struct {
	w   io.Writer
	n   int64
	err error
}

func (c *countWriter) WriteString(s string) (int, error) {
	if c.err != nil {
		return 0, c.err
	}

	n, err := io.WriteString(c.w, s)
	c.n += int64(n)
	c.err = err

	return n, err
}
