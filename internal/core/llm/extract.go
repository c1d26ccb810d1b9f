package llm

import (
	"encoding/json"
	"strings"
)

// extractJSON pulls the JSON payload out of a response that may carry
// markdown fences or surrounding prose. The earliest span that parses
// wins; when nothing parses the input is returned unchanged so the
// caller's unmarshal error shows the raw content.
func extractJSON(text string) string {
	text = stripFences(text)

	arr, arrStart := validSpan(text, '[', ']')
	obj, objStart := validSpan(text, '{', '}')

	switch {
	case arrStart >= 0 && (objStart < 0 || arrStart < objStart):
		return arr
	case objStart >= 0:
		return obj
	default:
		return text
	}
}

func validSpan(text string, open, close byte) (string, int) {
	start := strings.IndexByte(text, open)
	end := strings.LastIndexByte(text, close)

	if start == -1 || end <= start {
		return "", -1
	}

	span := text[start : end+1]
	if !json.Valid([]byte(span)) {
		return "", -1
	}

	return span, start
}

func stripFences(text string) string {
	text = strings.TrimSpace(text)

	if !strings.HasPrefix(text, "```") {
		return text
	}

	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(strings.TrimSpace(text), "```")

	return strings.TrimSpace(text)
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}

	return s[:maxLen] + "..."
}
