package llm

import (
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strings"
)

var reasoningTagRe = regexp.MustCompile(`(?s)<reasoning>.*?</reasoning>`)

// extractJSON returns the outermost JSON object or array in text. Models
// sometimes wrap output in reasoning tags or markdown fences.
func extractJSON(text string) string {
	text = strings.TrimSpace(reasoningTagRe.ReplaceAllString(text, ""))

	// Look for JSON object
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")

	if start != -1 && end != -1 && end > start {
		return text[start : end+1]
	}

	// Look for JSON array
	start = strings.Index(text, "[")
	end = strings.LastIndex(text, "]")

	if start != -1 && end != -1 && end > start {
		return text[start : end+1]
	}

	return text
}

// flattenList decodes a list whose elements may be strings or objects.
// Objects become "key: value; key: value" with keys sorted so the same
// response always flattens to the same text.
func flattenList(raw json.RawMessage) []string {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}

	var items []any
	if err := json.Unmarshal(raw, &items); err != nil {
		var single string
		if json.Unmarshal(raw, &single) == nil && strings.TrimSpace(single) != "" {
			return []string{strings.TrimSpace(single)}
		}

		return nil
	}

	out := make([]string, 0, len(items))

	for _, item := range items {
		if s := flattenValue(item); s != "" {
			out = append(out, s)
		}
	}

	return out
}

func flattenValue(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(val)
	case map[string]any:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}

		sort.Strings(keys)

		parts := make([]string, 0, len(keys))

		for _, k := range keys {
			if s := flattenValue(val[k]); s != "" {
				parts = append(parts, k+": "+s)
			}
		}

		return strings.Join(parts, "; ")
	case []any:
		parts := make([]string, 0, len(val))

		for _, item := range val {
			if s := flattenValue(item); s != "" {
				parts = append(parts, s)
			}
		}

		return strings.Join(parts, ", ")
	default:
		return fmt.Sprint(val)
	}
}

// splitKeywords accepts a pipe-delimited string or a JSON array of strings.
func splitKeywords(raw json.RawMessage) []string {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}

	var values []string

	var joined string
	if err := json.Unmarshal(raw, &joined); err == nil {
		values = strings.Split(joined, "|")
	} else {
		values = flattenList(raw)
	}

	out := make([]string, 0, len(values))

	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}

	return out
}
