package dto

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"unicode"
)

// Request bodies accept keys in snake_case or camelCase: "unit_cost" and
// "unitCost" name the same field. A few fields also answer to a short
// name ("code" for component_code, "model" for model_ref). Unknown keys
// and a field given under two spellings are rejected.

// unmarshalKeys decodes the object in data into v, whose json tags use
// snake_case. aliases maps extra key names to tag names.
func unmarshalKeys(data []byte, v interface{}, aliases map[string]string) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		return nil
	}
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	normalized := make(map[string]json.RawMessage, len(raw))
	for k, val := range raw {
		name := snakeCase(k)
		if alias, ok := aliases[name]; ok {
			name = alias
		}
		if _, dup := normalized[name]; dup {
			return fmt.Errorf("json: field %q given more than once", name)
		}
		normalized[name] = val
	}

	buf, err := json.Marshal(normalized)
	if err != nil {
		return err
	}
	dec := json.NewDecoder(bytes.NewReader(buf))
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

// snakeCase turns "selectedSuggestionIds" into "selected_suggestion_ids".
// Keys already in snake_case come back unchanged.
func snakeCase(s string) string {
	var b strings.Builder
	b.Grow(len(s) + 4)
	prev := rune(0)
	for _, r := range s {
		if unicode.IsUpper(r) && (unicode.IsLower(prev) || unicode.IsDigit(prev)) {
			b.WriteByte('_')
		}
		b.WriteRune(unicode.ToLower(r))
		prev = r
	}
	return b.String()
}
