package cmd

import (
	"context"
	"encoding"
	"fmt"
	"log/slog"
	"os"
	"reflect"
	"slices"
	"strings"
	"time"

	"github.com/alecthomas/kong"
	"github.com/goccy/go-yaml"

	"github.com/ardnew/nanny/log"
	"github.com/ardnew/nanny/profile"
)

// Init generates a default configuration file with current flag values.
type Init struct {
	Force bool `help:"Overwrite existing configuration file" short:"f"`
}

// sessionFlags are flags that only make sense for a single invocation and
// are never written to the configuration file.
//
//nolint:gochecknoglobals
var sessionFlags = []string{
	"force", "where", "output", "import", "mode",
	"type", "repo", "path", "email", "command", "env-file",
}

// Run executes the init command.
func (i *Init) Run(ctx context.Context) (err error) {
	ctx, cancel := context.WithCancelCause(ctx)

	defer func(err *error) { cancel(*err) }(&err)

	ktx := kongContextFrom(ctx)

	confPath, ok := ktx.Model.Vars()[ConfigIdentifier]
	if !ok {
		panic("internal error: config path undefined")
	}

	// Check if file exists and force not set
	_, err = os.Stat(confPath)
	if err == nil && !i.Force {
		return ErrWriteConfig.
			With(slog.String("file", confPath)).
			With(slog.Bool("exists", true)).
			Wrap(ErrFileExists)
	}

	data, err := yaml.Marshal(i.buildConfig(ctx))
	if err != nil {
		return ErrWriteConfig.
			With(slog.String("file", confPath)).
			Wrap(err)
	}

	err = os.WriteFile(confPath, data, 0o600) //nolint:mnd
	if err != nil {
		return ErrWriteConfig.
			With(slog.String("file", confPath)).
			Wrap(err)
	}

	log.DebugContext(
		ctx,
		"initialized configuration file",
		slog.String("path", confPath),
	)

	return nil
}

// buildConfig collects the current value of every persistent flag in the
// command tree. A flag shared by several commands is written once.
func (i *Init) buildConfig(ctx context.Context) yaml.MapSlice {
	ktx := kongContextFrom(ctx)

	var (
		doc  yaml.MapSlice
		seen = make(map[string]bool)
	)

	prefixIgnore := []string{"help", "version", profile.Tag}

	var walk func(node *kong.Node)

	walk = func(node *kong.Node) {
		for _, flag := range node.Flags {
			if flag.Hidden || seen[flag.Name] ||
				slices.Contains(sessionFlags, flag.Name) ||
				slices.ContainsFunc(prefixIgnore, func(s string) bool {
					return strings.HasPrefix(flag.Name, s)
				}) {
				continue
			}

			seen[flag.Name] = true

			if val, ok := configValue(ktx.FlagValue(flag)); ok {
				doc = append(doc, yaml.MapItem{Key: flag.Name, Value: val})
			}
		}

		for _, child := range node.Children {
			walk(child)
		}
	}

	walk(ktx.Model.Node)

	return doc
}

// configValue converts a flag value to a YAML value the config resolver
// reads back. Empty strings and empty lists are omitted.
func configValue(val any) (any, bool) {
	switch v := val.(type) {
	case nil:
		return nil, false

	case time.Duration:
		return v.String(), true

	case encoding.TextMarshaler:
		text, err := v.MarshalText()

		return string(text), err == nil && len(text) > 0
	}

	rv := reflect.ValueOf(val)

	switch rv.Kind() {
	case reflect.Bool:
		return rv.Bool(), true

	case reflect.String:
		return rv.String(), rv.Len() > 0

	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return rv.Int(), true

	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return rv.Uint(), true

	case reflect.Float32, reflect.Float64:
		return rv.Float(), true

	case reflect.Slice, reflect.Array:
		if rv.Len() == 0 {
			return nil, false
		}

		list := make([]any, 0, rv.Len())

		for i := range rv.Len() {
			if e, ok := configValue(rv.Index(i).Interface()); ok {
				list = append(list, e)
			}
		}

		return list, len(list) > 0

	default:
		return fmt.Sprint(val), true
	}
}
