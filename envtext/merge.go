package envtext

import (
	"log/slog"
	"strings"
)

// Mode selects how [Merge] combines two maps.
type Mode int

const (
	// ModeUpdate layers the incoming entries over the existing ones.
	ModeUpdate Mode = iota
	// ModeOverwrite discards the existing entries.
	ModeOverwrite
)

// DefaultMode is the mode used when none is given.
const DefaultMode = ModeUpdate

// Modes lists the valid modes in declaration order.
func Modes() []Mode { return []Mode{ModeUpdate, ModeOverwrite} }

// String returns the name of the mode.
func (m Mode) String() string {
	switch m {
	case ModeUpdate:
		return "update"
	case ModeOverwrite:
		return "overwrite"
	default:
		return "invalid"
	}
}

// ParseMode parses a mode name, ignoring case and surrounding whitespace.
// The empty string yields [DefaultMode].
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "":
		return DefaultMode, nil
	case "update":
		return ModeUpdate, nil
	case "overwrite":
		return ModeOverwrite, nil
	default:
		return 0, ErrInvalidMode.With(slog.String("mode", s))
	}
}

// MarshalText implements [encoding.TextMarshaler].
func (m Mode) MarshalText() ([]byte, error) {
	if m != ModeUpdate && m != ModeOverwrite {
		return nil, ErrInvalidMode.With(slog.Int("mode", int(m)))
	}

	return []byte(m.String()), nil
}

// UnmarshalText implements [encoding.TextUnmarshaler].
func (m *Mode) UnmarshalText(text []byte) error {
	mode, err := ParseMode(string(text))
	if err != nil {
		return err
	}

	*m = mode

	return nil
}

// Merge combines existing and incoming according to mode and returns a new
// map that shares no storage with either argument. Nil maps are empty.
//
// Merge panics if mode is not a defined [Mode]; use [ParseMode] to validate
// untrusted input.
func Merge(existing, incoming *Map, mode Mode) *Map {
	switch mode {
	case ModeOverwrite:
		return incoming.Clone()

	case ModeUpdate:
		out := existing.Clone()
		for k, v := range incoming.All() {
			out.Set(k, v)
		}

		return out

	default:
		panic(ErrInvalidMode.With(slog.Int("mode", int(mode))))
	}
}
