package jsonutil

import (
	"encoding/json"
	"strconv"
)

// CoerceString converts scalar JSON values to their string form. Numbers
// decoded with UseNumber keep their original text.
func CoerceString(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case json.Number:
		return t.String()
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case bool:
		return strconv.FormatBool(t)
	default:
		return ""
	}
}

// CoerceStrings flattens a scalar or an array of scalars into strings.
func CoerceStrings(v any) []string {
	switch t := v.(type) {
	case nil:
		return nil
	case []any:
		out := make([]string, 0, len(t))
		for _, item := range t {
			out = append(out, CoerceString(item))
		}
		return out
	case []string:
		return append([]string(nil), t...)
	default:
		return []string{CoerceString(t)}
	}
}
