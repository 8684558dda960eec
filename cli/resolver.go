package cli

import (
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"

	"github.com/alecthomas/kong"
	"github.com/goccy/go-yaml"
	"github.com/pelletier/go-toml/v2"

	"github.com/ardnew/nanny/log"
)

// loadYAML is a [kong.ConfigurationLoader] for YAML config files.
//
// It can be used with [kong.Configuration] like this:
//
//	kong.Configuration(loadYAML, "/path/to/config.yaml")
//
// Keys name flags without the leading dashes. Nested mappings are joined
// with "-", so both of the following set --log-level:
//
//	log-level: debug
//
//	log:
//	  level: debug
//
// Underscores may be used in place of hyphens. Sequences set repeatable
// flags. Command-line flags override config file values.
func loadYAML(r io.Reader) (kong.Resolver, error) {
	return load("yaml", r, func(data []byte, v *map[string]any) error {
		return yaml.Unmarshal(data, v)
	})
}

// loadTOML is a [kong.ConfigurationLoader] for TOML config files. Tables
// are flattened the same way as YAML mappings.
//
//	[log]
//	level = "debug"
func loadTOML(r io.Reader) (kong.Resolver, error) {
	return load("toml", r, func(data []byte, v *map[string]any) error {
		return toml.Unmarshal(data, v)
	})
}

// load decodes a config file. A file that fails to decode is reported and
// ignored so that a broken config never prevents the CLI from starting.
func load(
	format string,
	r io.Reader,
	decode func([]byte, *map[string]any) error,
) (kong.Resolver, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}

	var doc map[string]any

	if err := decode(data, &doc); err != nil {
		log.Warn("ignoring invalid config file",
			slog.String("format", format),
			slog.Any("error", err),
		)

		return config{}, nil
	}

	cfg := make(config, len(doc))
	cfg.flatten("", doc)

	return cfg, nil
}

// config implements [kong.Resolver] over a flattened config file.
type config map[string]any

// flatten copies doc into r, joining nested keys with "-" and normalizing
// keys to the hyphenated flag form.
func (r config) flatten(prefix string, doc map[string]any) {
	for key, value := range doc {
		key = strings.ReplaceAll(strings.TrimSpace(key), "_", "-")
		if prefix != "" {
			key = prefix + "-" + key
		}

		switch v := value.(type) {
		case map[string]any:
			r.flatten(key, v)

		case map[any]any:
			nested := make(map[string]any, len(v))
			for k, e := range v {
				nested[fmt.Sprint(k)] = e
			}

			r.flatten(key, nested)

		default:
			if s, ok := scalar(v); ok {
				r[key] = s
			}
		}
	}
}

// scalar converts a decoded value to the form Kong expects. Numbers are
// passed as strings for Kong to parse, and sequences are joined with the
// default separator of repeatable flags.
func scalar(value any) (any, bool) {
	switch v := value.(type) {
	case nil:
		return nil, false

	case string, bool:
		return v, true

	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return fmt.Sprint(v), true

	case float32:
		return strconv.FormatFloat(float64(v), 'f', -1, 32), true

	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64), true

	case []any:
		parts := make([]string, 0, len(v))
		for _, e := range v {
			s, ok := scalar(e)
			if !ok {
				return nil, false
			}

			parts = append(parts, fmt.Sprint(s))
		}

		return strings.Join(parts, ","), true

	default:
		return fmt.Sprint(v), true
	}
}

// Validate implements [kong.Resolver].
func (r config) Validate(*kong.Application) error { return nil }

// Resolve implements [kong.Resolver].
func (r config) Resolve(
	_ *kong.Context,
	_ *kong.Path,
	flag *kong.Flag,
) (any, error) {
	if value, ok := r[flag.Name]; ok {
		return value, nil
	}

	// Not found: let Kong use defaults.
	return nil, nil //nolint:nilnil
}

