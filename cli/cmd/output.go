package cmd

import (
	"encoding/json"
	"io"
	"log/slog"

	"github.com/goccy/go-yaml"

	"github.com/ardnew/nanny/envtext"
)

// Output formats.
const (
	formatDotenv = "dotenv"
	formatJSON   = "json"
	formatYAML   = "yaml"
	formatTable  = "table"
)

// EnvOutput selects how an environment map is printed.
type EnvOutput struct {
	Output string `default:"dotenv" enum:"dotenv,json,yaml" help:"Output format (${enum})." short:"o"`
}

// write prints env to w in the selected format.
func (o EnvOutput) write(w io.Writer, env *envtext.Map) error {
	var err error

	switch o.Output {
	case formatJSON:
		err = writeJSON(w, env)

	case formatYAML:
		err = writeYAML(w, env)

	default:
		_, err = env.WriteTo(w)
	}

	if err != nil {
		return ErrWriteOutput.Wrap(err).With(slog.String("format", o.Output))
	}

	return nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)

	return enc.Encode(v)
}

func writeYAML(w io.Writer, v any) error {
	data, err := yaml.Marshal(v)
	if err != nil {
		return err
	}

	_, err = w.Write(data)

	return err
}
