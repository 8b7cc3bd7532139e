package result_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/rlch/cyql/result"
)

func TestFormatValue_DeepParsesJSONStrings(t *testing.T) {
	t.Parallel()

	// Nested string values are deep-parsed as well, so the id "1" comes
	// back as the JSON number 1.
	got := result.FormatValue(`{"id":"1","label":["Person"],"properties":{"name":"Alice"}}`)
	want := map[string]any{
		"id":         float64(1),
		"label":      "Person",
		"properties": map[string]any{"name": "Alice"},
	}
	assert.Equal(t, want, got)
}

func TestFormatValue_MultiLabelArrayPassesThrough(t *testing.T) {
	t.Parallel()

	got := result.FormatValue(`{"label":["A","B"]}`)
	want := map[string]any{"label": []any{"A", "B"}}
	assert.Equal(t, want, got)
}

func TestFormatValue_NonJSONStringPassesThrough(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "Alice", result.FormatValue("Alice"))
}

func TestFormatValue_ScalarsPassThrough(t *testing.T) {
	t.Parallel()

	assert.Equal(t, int64(42), result.FormatValue(int64(42)))
	assert.Nil(t, result.FormatValue(nil))
	assert.Equal(t, true, result.FormatValue(true))
}

func TestFormatRows_PreservesColumnOrder(t *testing.T) {
	t.Parallel()

	rows := []map[string]any{
		{"b": "2", "a": "1"},
	}
	got := result.FormatRows([]string{"a", "b"}, rows)
	assert.Equal(t, []map[string]any{{"a": "1", "b": "2"}}, got)
}
