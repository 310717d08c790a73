package llm

import (
	"encoding/json"
	"strings"

	"github.com/kaptinlin/jsonrepair"
)

// LooksLikeJSON reports whether a model answer carries a JSON object,
// either bare or inside a code fence
func LooksLikeJSON(raw string) bool {
	raw = strings.TrimSpace(raw)
	return strings.HasPrefix(raw, "{") || strings.HasPrefix(raw, "```") && strings.Contains(raw, "{")
}

// ExtractStringField pulls the first non-empty string value among keys out
// of a possibly malformed JSON object in raw
func ExtractStringField(raw string, keys ...string) (string, bool) {
	obj, err := RepairObject(raw)
	if err != nil {
		return "", false
	}
	for _, k := range keys {
		if v, ok := obj[k].(string); ok && strings.TrimSpace(v) != "" {
			return v, true
		}
	}
	return "", false
}

// RepairObject extracts a JSON object from raw and decodes it, repairing
// trailing commas, single quotes, missing braces and similar damage
func RepairObject(raw string) (map[string]interface{}, error) {
	candidate := extractJSON(raw)

	var obj map[string]interface{}
	if err := json.Unmarshal([]byte(candidate), &obj); err == nil {
		return obj, nil
	}

	repaired, err := jsonrepair.JSONRepair(candidate)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(repaired), &obj); err != nil {
		return nil, err
	}
	return obj, nil
}

// extractJSON extracts the object from mixed text/JSON responses
func extractJSON(raw string) string {
	raw = strings.TrimSpace(raw)

	if strings.Contains(raw, "```") {
		var jsonLines []string
		inCodeBlock := false
		for _, line := range strings.Split(raw, "\n") {
			if strings.HasPrefix(strings.TrimSpace(line), "```") {
				inCodeBlock = !inCodeBlock
				continue
			}
			if inCodeBlock {
				jsonLines = append(jsonLines, line)
			}
		}
		if len(jsonLines) > 0 {
			raw = strings.TrimSpace(strings.Join(jsonLines, "\n"))
		}
	}

	start := strings.Index(raw, "{")
	if start == -1 {
		return raw
	}
	depth := 0
	for i := start; i < len(raw); i++ {
		switch raw[i] {
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return raw[start : i+1]
			}
		}
	}
	// unterminated, leave it to the repairer
	return raw[start:]
}
