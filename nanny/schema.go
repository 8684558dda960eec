package nanny

import (
	"log/slog"
	"strings"
	"sync"

	"github.com/xeipuuv/gojsonschema"
)

// metadataSchema validates one entry of the metadata file.
//
//nolint:gochecknoglobals
var metadataSchema = sync.OnceValues(func() (*gojsonschema.Schema, error) {
	kinds := make([]string, 0, len(Kinds()))
	for _, k := range Kinds() {
		kinds = append(kinds, string(k))
	}

	return gojsonschema.NewSchema(gojsonschema.NewGoLoader(map[string]any{
		"type":     "object",
		"required": []string{"name", "type"},
		"properties": map[string]any{
			"name":    map[string]any{"type": "string", "pattern": namePattern.String()},
			"type":    map[string]any{"enum": kinds},
			"repo":    map[string]any{"type": "string"},
			"path":    map[string]any{"type": "string"},
			"email":   map[string]any{"type": "string"},
			"command": map[string]any{"type": "string"},
			"env": map[string]any{
				"type": []string{"object", "null"},
				"additionalProperties": map[string]any{
					"type": []string{"string", "number", "boolean", "null"},
				},
			},
			"port": map[string]any{
				"type":    []string{"integer", "null"},
				"minimum": 0,
				"maximum": 65535, //nolint:mnd
			},
			"is_active":       map[string]any{"type": "boolean"},
			"last_start_time": map[string]any{"type": []string{"number", "null"}},
		},
	}))
})

// validateEntry checks one raw metadata entry against the schema.
func validateEntry(raw []byte) error {
	schema, err := metadataSchema()
	if err != nil {
		return ErrStore.Wrap(err)
	}

	result, err := schema.Validate(gojsonschema.NewBytesLoader(raw))
	if err != nil {
		return ErrStore.Wrap(err)
	}

	if result.Valid() {
		return nil
	}

	problems := make([]string, 0, len(result.Errors()))
	for _, re := range result.Errors() {
		problems = append(problems, re.String())
	}

	return ErrStore.With(slog.String("schema", strings.Join(problems, "; ")))
}
