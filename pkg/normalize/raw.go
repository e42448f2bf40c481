// Package normalize reconciles the three upstream schemas into the
// canonical model. The discovery API, the CLOB API and the data API
// disagree on field spelling and encoding (camelCase vs snake_case,
// arrays vs JSON-encoded strings, numbers vs numeric strings), and
// each has drifted over time. Every canonical field therefore
// declares an ordered list of acceptable source keys and the first
// present, non-null value wins.
//
// Nothing in this package returns an error: malformed or missing
// input yields an absent field, and an entity missing its required
// fields yields nothing at all. Callers never see a value they
// cannot act on.
package normalize

import (
	"encoding/json"
	"strconv"
	"strings"
)

// Raw is one untyped upstream object.
type Raw map[string]interface{}

// firstPresent returns the first non-nil value among the aliases.
func firstPresent(raw Raw, aliases []string) (interface{}, bool) {
	for _, key := range aliases {
		if v, ok := raw[key]; ok && v != nil {
			return v, true
		}
	}
	return nil, false
}

func StringField(raw Raw, aliases []string) (string, bool) {
	v, ok := firstPresent(raw, aliases)
	if !ok {
		return "", false
	}
	return coerceString(v)
}

func FloatField(raw Raw, aliases []string) (float64, bool) {
	v, ok := firstPresent(raw, aliases)
	if !ok {
		return 0, false
	}
	return coerceFloat(v)
}

// stringListField accepts either a real JSON array or a JSON-encoded
// array in a string (the discovery API ships `clobTokenIds` as
// `"[\"123\",\"456\"]"`).
func stringListField(raw Raw, aliases []string) ([]string, bool) {
	v, ok := firstPresent(raw, aliases)
	if !ok {
		return nil, false
	}
	return coerceStringList(v)
}

func floatListField(raw Raw, aliases []string) ([]float64, bool) {
	v, ok := firstPresent(raw, aliases)
	if !ok {
		return nil, false
	}
	items, ok := coerceList(v)
	if !ok {
		return nil, false
	}
	out := make([]float64, 0, len(items))
	for _, item := range items {
		f, ok := coerceFloat(item)
		if !ok {
			return nil, false
		}
		out = append(out, f)
	}
	return out, true
}

// coerceString accepts strings and bare numbers. Token ids in
// particular must survive as strings: they are 70+ digit integers.
func coerceString(v interface{}) (string, bool) {
	switch s := v.(type) {
	case string:
		if s == "" {
			return "", false
		}
		return s, true
	case json.Number:
		return s.String(), true
	case float64:
		return strconv.FormatFloat(s, 'f', -1, 64), true
	default:
		return "", false
	}
}

// coerceFloat accepts JSON numbers and numeric strings. Non-numeric
// strings are treated as absent, never as an error.
func coerceFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		return f, err == nil
	default:
		return 0, false
	}
}

// coerceList accepts a JSON array, or a string that itself decodes to
// a JSON array. Anything else is absent.
func coerceList(v interface{}) ([]interface{}, bool) {
	switch seq := v.(type) {
	case []interface{}:
		return seq, true
	case string:
		trimmed := strings.TrimSpace(seq)
		if !strings.HasPrefix(trimmed, "[") {
			return nil, false
		}
		var out []interface{}
		if err := json.Unmarshal([]byte(trimmed), &out); err != nil {
			return nil, false
		}
		return out, true
	default:
		return nil, false
	}
}

func coerceStringList(v interface{}) ([]string, bool) {
	items, ok := coerceList(v)
	if !ok {
		return nil, false
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		s, ok := coerceString(item)
		if !ok {
			return nil, false
		}
		out = append(out, s)
	}
	if len(out) == 0 {
		return nil, false
	}
	return out, true
}

func FloatPtr(raw Raw, aliases []string) *float64 {
	f, ok := FloatField(raw, aliases)
	if !ok {
		return nil
	}
	return &f
}
