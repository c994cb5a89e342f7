package pipeline

import (
	"encoding/json"
	"strings"
)

// generatedDoc is the JSON shape the generation model is asked to produce.
// Every field is optional; upstream models do not guarantee clean output.
type generatedDoc struct {
	Prompt         string `json:"prompt"`
	NegativePrompt string `json:"negative_prompt"`
	Style          string `json:"style"`
}

// extractPrompt pulls the prompt text out of a model completion. The model is
// asked for a JSON object but may wrap it in markdown fences or prose, so the
// text between the first '{' and the last '}' is decoded tolerantly. Anything
// that fails to decode falls back to the raw text; extraction never errors.
func extractPrompt(raw string) string {
	trimmed := strings.TrimSpace(stripFences(raw))

	start := strings.Index(trimmed, "{")
	end := strings.LastIndex(trimmed, "}")
	if start >= 0 && end > start {
		var doc generatedDoc
		if err := json.Unmarshal([]byte(trimmed[start:end+1]), &doc); err == nil && doc.Prompt != "" {
			return strings.TrimSpace(doc.Prompt)
		}
	}
	return trimmed
}

// stripFences removes markdown code fences, with or without a language tag.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if nl := strings.Index(s, "\n"); nl >= 0 {
		// Drop the language tag line ("json", "JSON", or empty).
		first := strings.TrimSpace(s[:nl])
		if len(first) <= 8 {
			s = s[nl+1:]
		}
	}
	return strings.TrimSuffix(strings.TrimSpace(s), "```")
}
