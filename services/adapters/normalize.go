// Package adapters normalizes upstream view records, which may name a field
// in either of two conventions, into canonical records, and derives the
// display metrics shown on the dashboard.
package adapters

import (
	"encoding/json"
	"math"
)

// Record is a raw upstream record as decoded from JSON.
type Record map[string]any

// FieldMapping binds one canonical field to the two names it may arrive under.
// Primary is looked up first; Fallback only when Primary is absent or null.
type FieldMapping struct {
	Canonical string `json:"canonical"`
	Primary   string `json:"primary"`
	Fallback  string `json:"fallback"`
	Default   any    `json:"default"`
}

// NormalizeField returns the value stored under nameA, else under nameB.
// A key holding JSON null counts as absent. ok is false when neither is set.
func NormalizeField(record Record, nameA, nameB string) (value any, ok bool) {
	if record == nil {
		return nil, false
	}
	if v, exists := record[nameA]; exists && v != nil {
		return v, true
	}
	if nameB != "" {
		if v, exists := record[nameB]; exists && v != nil {
			return v, true
		}
	}
	return nil, false
}

// String resolves a string field, returning def when absent or not a string.
func (m FieldMapping) String(record Record) string {
	def, _ := m.Default.(string)
	v, ok := NormalizeField(record, m.Primary, m.Fallback)
	if !ok {
		return def
	}
	s, isString := v.(string)
	if !isString {
		return def
	}
	return s
}

// Number resolves a numeric field, returning the default (or 0) when absent.
func (m FieldMapping) Number(record Record) float64 {
	def, _ := toFloat(m.Default)
	v, ok := NormalizeField(record, m.Primary, m.Fallback)
	if !ok {
		return def
	}
	f, isNumber := toFloat(v)
	if !isNumber {
		return def
	}
	return f
}

// Bool resolves a boolean field, defaulting to false.
func (m FieldMapping) Bool(record Record) bool {
	def, _ := m.Default.(bool)
	v, ok := NormalizeField(record, m.Primary, m.Fallback)
	if !ok {
		return def
	}
	b, isBool := v.(bool)
	if !isBool {
		return def
	}
	return b
}

// List resolves a list of strings, defaulting to an empty, non-nil slice.
func (m FieldMapping) List(record Record) []string {
	v, ok := NormalizeField(record, m.Primary, m.Fallback)
	if !ok {
		return []string{}
	}
	switch list := v.(type) {
	case []string:
		out := make([]string, len(list))
		copy(out, list)
		return out
	case []any:
		out := make([]string, 0, len(list))
		for _, item := range list {
			if s, isString := item.(string); isString {
				out = append(out, s)
			}
		}
		return out
	}
	return []string{}
}

// NullableInt resolves an optional count. nil means the upstream had no
// data for the field; a pointer to 0 means it measured zero.
func (m FieldMapping) NullableInt(record Record) *int {
	v, ok := NormalizeField(record, m.Primary, m.Fallback)
	if !ok {
		return nil
	}
	f, isNumber := toFloat(v)
	if !isNumber {
		return nil
	}
	n := int(math.Round(f))
	return &n
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	}
	return 0, false
}
