package sheetagent

import (
	"encoding/json"
	"fmt"
	"reflect"
)

// NormalizeValue reduces an arbitrary value to plain JSON-compatible data:
// string, number, bool, nil, map[string]any or []any, recursively. Provider
// SDKs hand back tool-call arguments in their own map/record types; this
// sits at every provider boundary so nothing else in the loop ever sees
// them. It is total: unrecognized values degrade to their string form, and
// it never panics.
func NormalizeValue(v any) any {
	switch x := v.(type) {
	case nil:
		return nil
	case string:
		return x
	case bool:
		return x
	case float64, float32,
		int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64:
		return x
	case json.Number:
		return x
	case map[string]any:
		out := make(map[string]any, len(x))
		for k, val := range x {
			out[k] = NormalizeValue(val)
		}
		return out
	case []any:
		out := make([]any, len(x))
		for i, item := range x {
			out[i] = NormalizeValue(item)
		}
		return out
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Interface:
		if rv.IsNil() {
			return nil
		}
		return NormalizeValue(rv.Elem().Interface())
	case reflect.Map:
		out := make(map[string]any, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			out[fmt.Sprint(iter.Key().Interface())] = NormalizeValue(iter.Value().Interface())
		}
		return out
	case reflect.Slice, reflect.Array:
		out := make([]any, rv.Len())
		for i := 0; i < rv.Len(); i++ {
			out[i] = NormalizeValue(rv.Index(i).Interface())
		}
		return out
	}

	// Lossy fallback for anything a provider invents that has no JSON shape.
	return fmt.Sprint(v)
}

// NormalizeMap reduces a map-like value to map[string]any with normalized
// values. Non-map input yields an empty map rather than an error.
func NormalizeMap(v any) map[string]any {
	if v == nil {
		return map[string]any{}
	}
	normalized := NormalizeValue(v)
	if m, ok := normalized.(map[string]any); ok {
		return m
	}
	return map[string]any{}
}
