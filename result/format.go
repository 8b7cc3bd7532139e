// Package result shapes raw storage rows into Cypher-flavored records:
// every JSON-encoded string cell is recursively deep-parsed, and label
// arrays are normalized on the way out.
package result

import (
	"encoding/json"

	"github.com/rlch/cyql/translate"
)

// FormatRows converts storage rows (column -> raw cell) into Cypher
// records keyed by the given columns (a record is a map, so it carries no
// column order of its own), deep-parsing any cell that is itself
// JSON-encoded text (nodes/edges/paths/lists/objects all arrive as JSON
// strings from json_object/json_array/json_group_array SQL expressions).
func FormatRows(columns []string, rows []map[string]any) []map[string]any {
	out := make([]map[string]any, 0, len(rows))
	for _, row := range rows {
		rec := make(map[string]any, len(columns))
		for _, col := range columns {
			rec[col] = FormatValue(row[col])
		}
		out = append(out, rec)
	}
	return out
}

// FormatValue deep-parses a single cell: if it is a
// string that parses as JSON, recursively replace it with the parsed
// value and continue descending; normalize single-element `label`
// arrays; non-string scalars pass through unchanged.
func FormatValue(v any) any {
	return formatKeyed("", v)
}

func formatKeyed(key string, v any) any {
	switch t := v.(type) {
	case string:
		var parsed any
		if err := json.Unmarshal([]byte(t), &parsed); err != nil {
			return t
		}
		return formatKeyed(key, parsed)
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[k] = formatKeyed(k, val)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = formatKeyed(key, val)
		}
		if key == "label" {
			return translate.NormalizeLabels(out)
		}
		return out
	default:
		return t
	}
}
