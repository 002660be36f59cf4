package poll

import (
	"bytes"
	"encoding/json"
	"strings"
)

var (
	verboseFields = []string{"content", "text", "message", "result", "reply"}
	nestedFields  = []string{"wraped_text", "content", "text"}
)

// ExtractVerbose recovers readable text from the content of a verbose
// message. It tries, in order:
//
//   - data.wraped_text when data is an object
//   - the first top-level content, text, message, result or reply string that
//     is not an empty placeholder
//   - data as a JSON-encoded string, scanning wraped_text, content and text
//
// Content that is not a JSON object, or matches none of the shapes, yields "".
func ExtractVerbose(raw string) string {
	var top map[string]json.RawMessage
	if err := json.Unmarshal([]byte(raw), &top); err != nil {
		return ""
	}

	data, hasData := top["data"]
	if hasData {
		var obj map[string]json.RawMessage
		if json.Unmarshal(data, &obj) == nil {
			if text := stringField(obj, "wraped_text"); text != "" {
				return text
			}
		}
	}

	for _, field := range verboseFields {
		if text := valueText(top, field); text != "" && !isPlaceholder(text) {
			return text
		}
	}

	if hasData {
		var encoded string
		if json.Unmarshal(data, &encoded) != nil {
			return ""
		}
		var nested map[string]json.RawMessage
		if json.Unmarshal([]byte(encoded), &nested) != nil {
			return ""
		}
		for _, field := range nestedFields {
			if text := valueText(nested, field); text != "" {
				return text
			}
		}
	}

	return ""
}

func stringField(obj map[string]json.RawMessage, field string) string {
	raw, ok := obj[field]
	if !ok {
		return ""
	}
	var s string
	if json.Unmarshal(raw, &s) != nil {
		return ""
	}
	return strings.TrimSpace(s)
}

// valueText renders a field as text. Strings are used as is; other values
// keep their compact JSON form, so an empty object reads as "{}".
func valueText(obj map[string]json.RawMessage, field string) string {
	raw, ok := obj[field]
	if !ok {
		return ""
	}
	var s string
	if json.Unmarshal(raw, &s) == nil {
		return strings.TrimSpace(s)
	}
	var buf bytes.Buffer
	if json.Compact(&buf, raw) != nil || buf.String() == "null" {
		return ""
	}
	return buf.String()
}

func isPlaceholder(s string) bool {
	switch s {
	case "{}", "[]", `""`:
		return true
	}
	return false
}
