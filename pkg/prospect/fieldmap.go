package prospect

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// FieldMap is an insertion-ordered mapping from Pardot field API name to value.
// Values are strings or integers. The zero value is an empty map ready to use.
//
// A FieldMap is not safe for concurrent use.
type FieldMap struct {
	keys   []string
	values map[string]interface{}
}

// NewFieldMap creates an empty FieldMap with room for n entries.
func NewFieldMap(n int) *FieldMap {
	return &FieldMap{
		keys:   make([]string, 0, n),
		values: make(map[string]interface{}, n),
	}
}

// Set stores value under key. A new key is appended to the key order;
// an existing key keeps its position.
func (m *FieldMap) Set(key string, value interface{}) {
	if m.values == nil {
		m.values = make(map[string]interface{})
	}
	if _, ok := m.values[key]; !ok {
		m.keys = append(m.keys, key)
	}
	m.values[key] = value
}

// Get returns the value stored under key.
func (m *FieldMap) Get(key string) (interface{}, bool) {
	if m == nil || m.values == nil {
		return nil, false
	}
	v, ok := m.values[key]
	return v, ok
}

// GetString returns the value under key formatted as a string.
func (m *FieldMap) GetString(key string) string {
	v, _ := m.Get(key)
	return ValueToString(v)
}

// ID returns the reserved prospect id entry, or "" when absent.
func (m *FieldMap) ID() string {
	return m.GetString(IDKey)
}

// SetID attaches the prospect id under the reserved key.
func (m *FieldMap) SetID(prospectID string) {
	m.Set(IDKey, prospectID)
}

// Len returns the number of entries, including the id entry.
func (m *FieldMap) Len() int {
	if m == nil {
		return 0
	}
	return len(m.keys)
}

// Keys returns a copy of the keys in insertion order.
func (m *FieldMap) Keys() []string {
	if m == nil {
		return nil
	}
	out := make([]string, len(m.keys))
	copy(out, m.keys)
	return out
}

// Range calls fn for each entry in insertion order until fn returns false.
func (m *FieldMap) Range(fn func(key string, value interface{}) bool) {
	if m == nil {
		return
	}
	for _, k := range m.keys {
		if !fn(k, m.values[k]) {
			return
		}
	}
}

// Clear rewrites every entry except the id to the empty string.
// Key order and the id value are preserved, so clearing twice is the same as
// clearing once.
func (m *FieldMap) Clear() {
	if m == nil {
		return
	}
	for _, k := range m.keys {
		if k == IDKey {
			continue
		}
		m.values[k] = ""
	}
}

// Clone returns a deep copy of the map.
func (m *FieldMap) Clone() *FieldMap {
	if m == nil {
		return nil
	}
	c := NewFieldMap(len(m.keys))
	for _, k := range m.keys {
		c.Set(k, m.values[k])
	}
	return c
}

// MarshalJSON encodes the map as a JSON object in insertion order.
func (m *FieldMap) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range m.Keys() {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		val, err := json.Marshal(m.values[k])
		if err != nil {
			return nil, fmt.Errorf("encoding field %q: %w", k, err)
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// ValueToString converts a field value to its wire representation.
func ValueToString(value interface{}) string {
	if value == nil {
		return ""
	}

	switch v := value.(type) {
	case string:
		return v
	case int:
		return fmt.Sprintf("%d", v)
	case int64:
		return fmt.Sprintf("%d", v)
	case float64:
		// Format integers without decimal point
		if v == float64(int64(v)) {
			return fmt.Sprintf("%d", int64(v))
		}
		return fmt.Sprintf("%v", v)
	case bool:
		return fmt.Sprintf("%t", v)
	default:
		return fmt.Sprintf("%v", v)
	}
}
