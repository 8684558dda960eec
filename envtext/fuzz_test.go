package envtext

import (
	"strings"
	"testing"
)

func FuzzParse(f *testing.F) {
	f.Add("")
	f.Add("# comment\n\nFOO=bar")
	f.Add("export FOO=bar")
	f.Add(`KEY="hello # not a comment"`)
	f.Add(`KE\=Y=val`)
	f.Add(`A='unterminated`)
	f.Add(`A=trailing\`)
	f.Add("export export  A = \"x\\\"y\" # c")
	f.Add("A\\ =1")

	f.Fuzz(func(t *testing.T, text string) {
		m := Parse(text)
		if m == nil {
			t.Fatal("Parse returned nil")
		}

		for k, v := range m.All() {
			if k == "" || k != strings.TrimSpace(k) {
				t.Fatalf("bad key %q", k)
			}

			if v != strings.TrimSpace(v) || strings.Contains(v, "\n") {
				t.Fatalf("bad value %q for key %q", v, k)
			}
		}

		for k, v := range m.All() {
			if Representable(k, v) != nil {
				return
			}
		}

		if back := Parse(Format(m)); !back.Equal(m) {
			t.Fatalf("round trip of %q:\n got %q\nwant %q", text, back.ToMap(), m.ToMap())
		}
	})
}
