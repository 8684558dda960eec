package envtext

import (
	"context"
	"io"
	"log/slog"
	"strings"

	"github.com/klauspost/readahead"

	"github.com/ardnew/nanny/log"
)

const exportPrefix = "export "

// Parse converts env text into a [Map]. It never fails and never returns nil;
// lines that are not assignments are skipped.
func Parse(text string) *Map {
	out := New(strings.Count(text, "\n") + 1)

	for line := range strings.SplitSeq(text, "\n") {
		key, value, ok := parseLine(line)
		if ok {
			out.Set(key, value)
		}
	}

	return out
}

// ParseReader reads all of r and parses it with [Parse].
// Only errors reading r are returned.
func ParseReader(ctx context.Context, r io.Reader) (*Map, error) {
	ra := readahead.NewReader(r)
	defer ra.Close()

	data, err := io.ReadAll(ra)
	if err != nil {
		return nil, ErrReadInput.Wrap(err).With(slog.String("source", "reader"))
	}

	m := Parse(string(data))

	log.TraceContext(ctx, "parsed env text",
		slog.Int("bytes", len(data)),
		slog.Int("entries", m.Len()),
	)

	return m, nil
}

// parseLine extracts the assignment from one line of env text.
func parseLine(line string) (key, value string, ok bool) {
	line = strings.TrimSpace(line)
	if line == "" || line[0] == '#' {
		return "", "", false
	}

	if rest, found := strings.CutPrefix(line, exportPrefix); found {
		line = strings.TrimSpace(rest)
	}

	eq := splitIndex(line)
	if eq < 0 {
		return "", "", false
	}

	key = strings.TrimSpace(line[:eq])
	if key == "" {
		return "", "", false
	}

	return key, scanValue(line[eq+1:]), true
}

// splitIndex returns the index of the first '=' in s that does not directly
// follow a backslash, or -1.
func splitIndex(s string) int {
	for i := range len(s) {
		if s[i] == '=' && (i == 0 || s[i-1] != '\\') {
			return i
		}
	}

	return -1
}

// scanState is the state of the value scanner between characters.
type scanState int

const (
	stateNormal  scanState = iota // outside quotes
	stateQuoted                   // inside a quote opened by scanner.quote
	stateEscaped                  // after a backslash; resumes scanner.resume
)

type scanner struct {
	state  scanState
	resume scanState
	quote  byte
	out    strings.Builder
}

// step consumes c and reports whether scanning should continue.
func (s *scanner) step(c byte) bool {
	switch s.state {
	case stateEscaped:
		s.out.WriteByte(c)
		s.state = s.resume

	case stateQuoted:
		switch c {
		case '\\':
			s.resume, s.state = stateQuoted, stateEscaped
		case s.quote:
			s.state = stateNormal
		default:
			s.out.WriteByte(c)
		}

	case stateNormal:
		switch c {
		case '\\':
			s.resume, s.state = stateNormal, stateEscaped
		case '"', '\'':
			s.quote, s.state = c, stateQuoted
		case '#':
			return false
		default:
			s.out.WriteByte(c)
		}
	}

	return true
}

// scanValue decodes the text following the '=' of an assignment.
func scanValue(tail string) string {
	var s scanner

	s.out.Grow(len(tail))

	// Every significant character is ASCII, so scanning bytes keeps
	// multi-byte sequences intact, including invalid ones.
	for i := range len(tail) {
		if !s.step(tail[i]) {
			break
		}
	}

	return strings.TrimSpace(s.out.String())
}
