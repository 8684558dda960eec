package envtext

import (
	"encoding/json"
	"errors"
	"slices"
	"testing"

	"github.com/goccy/go-yaml"
)

func TestMap_MarshalJSON_Order(t *testing.T) {
	m := FromPairs("Z", "1", "A", `quote " and <tag>`, "M", "")

	b, err := json.Marshal(m)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}

	var got Map
	if err := json.Unmarshal(b, &got); err != nil {
		t.Fatalf("Unmarshal(%s) error = %v", b, err)
	}

	if !slices.Equal(got.Keys(), []string{"Z", "A", "M"}) || !got.Equal(m) {
		t.Errorf("decoded %v in order %q from %s", got.ToMap(), got.Keys(), b)
	}
}

func TestMap_MarshalJSON_NoHTMLEscape(t *testing.T) {
	m := FromPairs("URL", "http://x/?a=1&b=2", "<K>", `"v"`)

	b, err := m.MarshalJSON()
	if err != nil {
		t.Fatal(err)
	}

	if want := `{"URL":"http://x/?a=1&b=2","<K>":"\"v\""}`; string(b) != want {
		t.Errorf("MarshalJSON() = %s, want %s", b, want)
	}
}

func TestMap_MarshalJSON_Nil(t *testing.T) {
	var m *Map

	b, err := m.MarshalJSON()
	if err != nil || string(b) != "{}" {
		t.Errorf("MarshalJSON() = %s, %v", b, err)
	}
}

func TestMap_UnmarshalJSON_Scalars(t *testing.T) {
	var m Map

	err := json.Unmarshal([]byte(`{"B":"1","A":2.50,"C":true,"D":null}`), &m)
	if err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}

	if !slices.Equal(m.Keys(), []string{"B", "A", "C", "D"}) {
		t.Errorf("keys = %q", m.Keys())
	}

	want := FromPairs("B", "1", "A", "2.50", "C", "true", "D", "")
	if !m.Equal(want) {
		t.Errorf("got %v, want %v", m.ToMap(), want.ToMap())
	}
}

func TestMap_UnmarshalJSON_Rejects(t *testing.T) {
	for _, doc := range []string{`{"A":{"B":"C"}}`, `{"A":[1]}`, `["A"]`, `"A"`} {
		var m Map
		if err := json.Unmarshal([]byte(doc), &m); !errors.Is(err, ErrInvalidValue) {
			t.Errorf("Unmarshal(%s) error = %v, want ErrInvalidValue", doc, err)
		}
	}
}

func TestMap_YAML_Order(t *testing.T) {
	m := FromPairs("Z", "1", "A", "hello world", "M", "x: y")

	b, err := yaml.Marshal(m)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}

	var got Map
	if err := yaml.Unmarshal(b, &got); err != nil {
		t.Fatalf("Unmarshal(%s) error = %v", b, err)
	}

	if !slices.Equal(got.Keys(), []string{"Z", "A", "M"}) || !got.Equal(m) {
		t.Errorf("decoded %v in order %q from:\n%s", got.ToMap(), got.Keys(), b)
	}
}

func TestMap_UnmarshalYAML_Scalars(t *testing.T) {
	var m Map

	if err := yaml.Unmarshal([]byte("Z: 1\nA: true\nM: hello\nN:\n"), &m); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}

	want := FromPairs("Z", "1", "A", "true", "M", "hello", "N", "")
	if !slices.Equal(m.Keys(), want.Keys()) || !m.Equal(want) {
		t.Errorf("got %v (%q), want %v", m.ToMap(), m.Keys(), want.ToMap())
	}
}

func TestMap_UnmarshalYAML_RejectsNested(t *testing.T) {
	var m Map

	if err := yaml.Unmarshal([]byte("A:\n  B: 1\n"), &m); err == nil {
		t.Error("expected nested mapping to be rejected")
	}
}
