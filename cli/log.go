package cli

import (
	"context"
	"log/slog"
	"strconv"
	"strings"

	"github.com/alecthomas/kong"

	"github.com/ardnew/nanny/log"
)

// logFormat is a custom type that configures the logger format as a side
// effect of parsing via encoding.TextUnmarshaler.
type logFormat string

// UnmarshalText implements encoding.TextUnmarshaler.
// As Kong parses the --log-format flag, this method is called, allowing us
// to configure the logger early enough to affect error messages during parsing.
func (f *logFormat) UnmarshalText(text []byte) error {
	*f = logFormat(text)
	log.Config(log.WithFormat(log.ParseFormat(string(*f))))

	return nil
}

// logLevel is a custom type that configures the logger level as a side
// effect of parsing via encoding.TextUnmarshaler.
type logLevel string

// UnmarshalText implements encoding.TextUnmarshaler.
func (l *logLevel) UnmarshalText(text []byte) error {
	*l = logLevel(text)
	log.Config(log.WithLevel(log.ParseLevel(string(*l))))

	return nil
}

type logConfig struct {
	Level      logLevel  `default:"info"    enum:"${logLevelEnum}"  help:"Set log level."`
	Format     logFormat `default:"json"    enum:"${logFormatEnum}" help:"Set log format."`
	TimeLayout string    `default:"RFC3339"                         help:"Set timestamp format."`
	Caller     bool      `default:"false"                           help:"Include caller information."       negatable:""`
	Pretty     bool      `default:"true"                            help:"Enable colorized pretty printing." negatable:""`
}

func (*logConfig) vars() kong.Vars {
	var levels, formats []string

	for l := range log.Levels() {
		levels = append(levels, l)
	}

	for f := range log.Formats() {
		formats = append(formats, f)
	}

	return kong.Vars{
		"logLevelEnum":  strings.Join(levels, ","),
		"logFormatEnum": strings.Join(formats, ","),
	}
}

func (*logConfig) group() kong.Group {
	var group kong.Group

	group.Key = "log"
	group.Title = "Logging options"

	return group
}

func (f *logConfig) start(ctx context.Context) func() {
	log.Config(
		log.WithLevel(log.ParseLevel(string(f.Level))),
		log.WithFormat(log.ParseFormat(string(f.Format))),
		log.WithTimeLayout(f.TimeLayout),
		log.WithCaller(f.Caller),
		log.WithPretty(f.Pretty),
	)

	log.DebugContext(ctx, "logger initialized",
		slog.String("level", string(f.Level)),
		slog.String("format", string(f.Format)),
		slog.String("time", f.TimeLayout),
		slog.Bool("caller", f.Caller),
		slog.Bool("pretty", f.Pretty),
	)

	return func() {}
}

// scan performs an early pass over command-line arguments to extract and
// apply logger configuration before Kong begins parsing. This ensures the
// logger is configured properly regardless of flag position on the command
// line.
//
// logFormat and logLevel configure the logger as Kong encounters them, but
// boolean and plain string flags do not, so all of them are applied here.
// Scanning stops at "--".
func (f *logConfig) scan(args []string) {
	const prefix, negated = "--log-", "--no-log-"

	for i := 0; i < len(args); i++ {
		arg := args[i]
		if arg == "--" {
			return
		}

		neg := strings.HasPrefix(arg, negated)
		if !neg && !strings.HasPrefix(arg, prefix) {
			continue
		}

		name, value, assigned := strings.Cut(arg, "=")
		name = strings.TrimPrefix(strings.TrimPrefix(name, negated), prefix)

		// value consumes the next argument for non-boolean flags written
		// without "=".
		next := func() string {
			if !assigned && i+1 < len(args) && args[i+1] != "" &&
				args[i+1][0] != '-' {
				i++

				return args[i]
			}

			return value
		}

		switch name {
		case "level":
			if !neg {
				_ = f.Level.UnmarshalText([]byte(next()))
			}

		case "format":
			if !neg {
				_ = f.Format.UnmarshalText([]byte(next()))
			}

		case "time-layout":
			if !neg {
				f.TimeLayout = next()
				log.Config(log.WithTimeLayout(f.TimeLayout))
			}

		case "pretty":
			if v, ok := scanBool(value, assigned, neg); ok {
				f.Pretty = v
				log.Config(log.WithPretty(v))
			}

		case "caller":
			if v, ok := scanBool(value, assigned, neg); ok {
				f.Caller = v
				log.Config(log.WithCaller(v))
			}
		}
	}
}

// scanBool interprets a boolean flag. A boolean flag only takes a value when
// it is explicitly assigned with "=".
func scanBool(value string, assigned, negated bool) (bool, bool) {
	if !assigned {
		return !negated, true
	}

	v, err := strconv.ParseBool(value)
	if err != nil {
		return false, false
	}

	return v != negated, true
}
