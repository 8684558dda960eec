package envtext

import (
	"iter"
	"maps"
	"slices"

	"github.com/zeebo/xxh3"
)

// Map is an ordered mapping of environment variable names to values.
//
// New keys are appended. Setting an existing key replaces its value in place.
// The zero value is an empty map ready to use. A Map is not safe for
// concurrent mutation.
type Map struct {
	keys   []string
	values map[string]string
}

// New returns an empty Map with room for n entries.
func New(n int) *Map {
	return &Map{
		keys:   make([]string, 0, n),
		values: make(map[string]string, n),
	}
}

// FromMap returns a Map holding the entries of m in sorted key order.
func FromMap(m map[string]string) *Map {
	out := New(len(m))
	for _, k := range slices.Sorted(maps.Keys(m)) {
		out.Set(k, m[k])
	}

	return out
}

// FromPairs returns a Map built from alternating keys and values.
// A trailing key without a value is assigned the empty string.
func FromPairs(kv ...string) *Map {
	out := New(len(kv) / 2) //nolint:mnd

	for i := 0; i < len(kv); i += 2 {
		v := ""
		if i+1 < len(kv) {
			v = kv[i+1]
		}

		out.Set(kv[i], v)
	}

	return out
}

// Set assigns v to k.
func (m *Map) Set(k, v string) {
	if m.values == nil {
		m.values = make(map[string]string)
	}

	if _, ok := m.values[k]; !ok {
		m.keys = append(m.keys, k)
	}

	m.values[k] = v
}

// Get returns the value assigned to k and whether it was present.
func (m *Map) Get(k string) (string, bool) {
	if m == nil {
		return "", false
	}

	v, ok := m.values[k]

	return v, ok
}

// Delete removes k, if present.
func (m *Map) Delete(k string) {
	if m == nil {
		return
	}

	if _, ok := m.values[k]; !ok {
		return
	}

	delete(m.values, k)
	m.keys = slices.DeleteFunc(m.keys, func(s string) bool { return s == k })
}

// Len returns the number of entries.
func (m *Map) Len() int {
	if m == nil {
		return 0
	}

	return len(m.keys)
}

// Keys returns a copy of the keys in order.
func (m *Map) Keys() []string {
	if m == nil {
		return nil
	}

	return slices.Clone(m.keys)
}

// All returns an iterator over the entries in order.
func (m *Map) All() iter.Seq2[string, string] {
	return func(yield func(string, string) bool) {
		if m == nil {
			return
		}

		for _, k := range m.keys {
			if !yield(k, m.values[k]) {
				return
			}
		}
	}
}

// Clone returns a deep copy of m. Cloning nil yields an empty map.
func (m *Map) Clone() *Map {
	if m == nil {
		return New(0)
	}

	return &Map{
		keys:   slices.Clone(m.keys),
		values: maps.Clone(m.values),
	}
}

// Equal reports whether m and o hold the same entries, ignoring order.
// A nil map equals an empty one.
func (m *Map) Equal(o *Map) bool {
	if m.Len() != o.Len() {
		return false
	}

	for k, v := range m.All() {
		if ov, ok := o.Get(k); !ok || ov != v {
			return false
		}
	}

	return true
}

// ToMap returns the entries as a plain Go map.
func (m *Map) ToMap() map[string]string {
	out := make(map[string]string, m.Len())
	for k, v := range m.All() {
		out[k] = v
	}

	return out
}

// Environ returns the entries as "key=value" strings in order, suitable for
// [os/exec.Cmd.Env].
func (m *Map) Environ() []string {
	out := make([]string, 0, m.Len())
	for k, v := range m.All() {
		out = append(out, k+"="+v)
	}

	return out
}

// Sum64 returns a hash of the ordered entries.
// Maps with the same entries in the same order have the same sum.
func (m *Map) Sum64() uint64 {
	h := xxh3.New()

	for k, v := range m.All() {
		_, _ = h.WriteString(k)
		_, _ = h.Write([]byte{0})
		_, _ = h.WriteString(v)
		_, _ = h.Write([]byte{0})
	}

	return h.Sum64()
}
