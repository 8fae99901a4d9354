package llm

import (
	"encoding/json"
	"fmt"
	"strings"
)

// FlattenStringArrays walks a JSON structure and converts arrays of strings
// inside object fields to comma-joined strings. Models occasionally return
// {"details": ["a", "b"]} where a string is expected; this keeps such output
// usable. Top-level arrays are preserved.
//
// Returns the normalized bytes and whether any flattening occurred.
func FlattenStringArrays(jsonBytes []byte) ([]byte, bool, error) {
	var data any
	if err := json.Unmarshal(jsonBytes, &data); err != nil {
		return nil, false, fmt.Errorf("parse JSON: %w", err)
	}

	changed := false
	normalized := flattenValue(data, &changed, true)

	result, err := json.Marshal(normalized)
	if err != nil {
		return nil, false, fmt.Errorf("marshal normalized JSON: %w", err)
	}
	return result, changed, nil
}

func flattenValue(value any, changed *bool, topLevel bool) any {
	switch v := value.(type) {
	case map[string]any:
		result := make(map[string]any, len(v))
		for key, val := range v {
			result[key] = flattenValue(val, changed, false)
		}
		return result

	case []any:
		// A top-level array is a valid return shape, keep it.
		if !topLevel && isStringArray(v) {
			*changed = true
			return joinStrings(v)
		}
		result := make([]any, len(v))
		for i, elem := range v {
			result[i] = flattenValue(elem, changed, false)
		}
		return result

	default:
		return value
	}
}

func isStringArray(arr []any) bool {
	if len(arr) == 0 {
		return true
	}
	for _, elem := range arr {
		if _, ok := elem.(string); !ok {
			return false
		}
	}
	return true
}

func joinStrings(arr []any) string {
	strs := make([]string, len(arr))
	for i, elem := range arr {
		strs[i] = elem.(string)
	}
	return strings.Join(strs, ", ")
}
