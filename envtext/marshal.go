package envtext

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/goccy/go-yaml"
)

// MarshalJSON encodes m as a JSON object with keys in insertion order.
// A nil map encodes as an empty object. Keys and values are not HTML
// escaped, so URLs keep their '&' characters.
func (m *Map) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer

	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)

	// Encode terminates each value with a newline.
	str := func(s string) error {
		if err := enc.Encode(s); err != nil {
			return err
		}

		buf.Truncate(buf.Len() - 1)

		return nil
	}

	buf.WriteByte('{')

	i := 0
	for k, v := range m.All() {
		if i > 0 {
			buf.WriteByte(',')
		}

		i++

		if err := str(k); err != nil {
			return nil, err
		}

		buf.WriteByte(':')

		if err := str(v); err != nil {
			return nil, err
		}
	}

	buf.WriteByte('}')

	return buf.Bytes(), nil
}

// UnmarshalJSON decodes a JSON object into m, replacing its contents and
// keeping the document's key order. Numbers and booleans are kept as their
// literal text and null becomes the empty string. Nested objects and arrays
// are rejected.
func (m *Map) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	tok, err := dec.Token()
	if err != nil {
		return err
	}

	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return ErrInvalidValue.With(slog.String("want", "object"))
	}

	out := New(0)

	for dec.More() {
		tok, err = dec.Token()
		if err != nil {
			return err
		}

		key, _ := tok.(string)

		tok, err = dec.Token()
		if err != nil {
			return err
		}

		value, err := scalarString(key, tok)
		if err != nil {
			return err
		}

		out.Set(key, value)
	}

	if _, err := dec.Token(); err != nil {
		return err
	}

	*m = *out

	return nil
}

// MarshalYAML encodes m as an ordered YAML mapping.
func (m *Map) MarshalYAML() (any, error) {
	ms := make(yaml.MapSlice, 0, m.Len())
	for k, v := range m.All() {
		ms = append(ms, yaml.MapItem{Key: k, Value: v})
	}

	return ms, nil
}

// UnmarshalYAML decodes a YAML mapping into m, replacing its contents and
// keeping the document's key order. Scalars are converted to strings and
// null becomes the empty string.
func (m *Map) UnmarshalYAML(unmarshal func(any) error) error {
	var ms yaml.MapSlice
	if err := unmarshal(&ms); err != nil {
		return err
	}

	out := New(len(ms))

	for _, item := range ms {
		key := fmt.Sprint(item.Key)

		value, err := scalarString(key, item.Value)
		if err != nil {
			return err
		}

		out.Set(key, value)
	}

	*m = *out

	return nil
}

func scalarString(key string, v any) (string, error) {
	switch v := v.(type) {
	case nil:
		return "", nil
	case string:
		return v, nil
	case json.Number:
		return v.String(), nil
	case bool, int, int64, uint64, float64:
		return fmt.Sprint(v), nil
	default:
		return "", ErrInvalidValue.With(
			slog.String("key", key),
			slog.String("type", fmt.Sprintf("%T", v)),
		)
	}
}
