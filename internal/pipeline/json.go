package pipeline

import (
	"encoding/json"
	"strings"

	"github.com/rotisserie/eris"
)

// cleanJSON attempts to extract a JSON object from text that may contain
// markdown code fences or other wrapping.
func cleanJSON(text string) string {
	text = strings.TrimSpace(text)

	// Strip markdown code fences.
	if strings.HasPrefix(text, "```json") {
		text = strings.TrimPrefix(text, "```json")
		if idx := strings.LastIndex(text, "```"); idx >= 0 {
			text = text[:idx]
		}
	} else if strings.HasPrefix(text, "```") {
		text = strings.TrimPrefix(text, "```")
		if idx := strings.LastIndex(text, "```"); idx >= 0 {
			text = text[:idx]
		}
	}

	// Find first { and last }.
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start >= 0 && end > start {
		text = text[start : end+1]
	}

	return strings.TrimSpace(text)
}

// parseJSONObject parses a model answer into a generic object after
// stripping code fences.
func parseJSONObject(text string) (map[string]any, error) {
	cleaned := cleanJSON(text)
	if cleaned == "" {
		return nil, eris.New("empty answer")
	}
	var out map[string]any
	if err := json.Unmarshal([]byte(cleaned), &out); err != nil {
		return nil, eris.Wrap(err, "parse answer json")
	}
	return out, nil
}

// snippet bounds raw model output for logging. Full responses never reach
// the log stream.
func snippet(s string, limit int) string {
	s = strings.TrimSpace(s)
	if limit <= 0 {
		limit = 800
	}
	if len(s) <= limit {
		return s
	}
	return s[:limit] + "..."
}
