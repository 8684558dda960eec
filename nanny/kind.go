package nanny

import (
	"log/slog"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/mattn/go-shellwords"
)

// Kind identifies how an app is launched.
type Kind string

// Supported app kinds.
const (
	KindStreamlit Kind = "streamlit"
	KindVoila     Kind = "voila"
	KindFlask     Kind = "flask"
	KindFastAPI   Kind = "fastapi"
	KindGradio    Kind = "gradio"
	KindCommand   Kind = "command"
)

// Kinds returns every supported kind.
func Kinds() []Kind {
	return []Kind{KindStreamlit, KindVoila, KindFlask, KindFastAPI, KindGradio, KindCommand}
}

// ParseKind validates s as a [Kind], ignoring case.
func ParseKind(s string) (Kind, error) {
	k := Kind(strings.ToLower(strings.TrimSpace(s)))

	for _, known := range Kinds() {
		if k == known {
			return k, nil
		}
	}

	return "", ErrInvalidKind.With(slog.String("type", s))
}

// String returns the kind name.
func (k Kind) String() string { return string(k) }

// launchSpec is a resolved command line and working directory.
type launchSpec struct {
	argv []string
	dir  string
}

// command builds the command line for an app of kind k checked out at
// appDir, listening on port.
//
// For [KindCommand], command is split like a shell would, with $PORT and
// ${PORT} expanded to port and other variables looked up with getenv.
func (k Kind) command(
	appDir, path, command string,
	port int,
	getenv func(string) string,
) (launchSpec, error) {
	p := strconv.Itoa(port)
	dir := filepath.Dir(filepath.Join(appDir, path))
	script := filepath.Base(path)

	switch k {
	case KindStreamlit:
		return launchSpec{[]string{"streamlit", "run", script, "--server.port", p}, dir}, nil

	case KindVoila:
		return launchSpec{[]string{"voila", script, "--port", p}, dir}, nil

	case KindFlask, KindFastAPI, KindGradio:
		return launchSpec{[]string{"python", script, "--port", p}, dir}, nil

	case KindCommand:
		if path == "" {
			dir = appDir
		}

		sp := shellwords.NewParser()
		sp.ParseEnv = true
		sp.Getenv = func(key string) string {
			if key == "PORT" {
				return p
			}

			return getenv(key)
		}

		argv, err := sp.Parse(command)
		if err != nil {
			return launchSpec{}, ErrInvalidRequest.Wrap(err).
				With(slog.String("command", command))
		}

		if len(argv) == 0 {
			return launchSpec{}, ErrInvalidRequest.With(slog.String("reason", "empty command"))
		}

		return launchSpec{argv, dir}, nil

	default:
		return launchSpec{}, ErrInvalidKind.With(slog.String("type", string(k)))
	}
}
