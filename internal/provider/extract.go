package provider

import (
	"encoding/json"
	"strings"
)

// ParseOutput extracts a JSON value from free-form tool output. It tries the
// whole string first, then falls back to the first balanced {...} or [...]
// substring. Returns nil when no structured output is found; that is not an
// error condition, the raw text still stands on its own.
func ParseOutput(raw string) json.RawMessage {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return nil
	}

	if candidate := []byte(trimmed); json.Valid(candidate) {
		return candidate
	}

	return scanBalanced([]byte(trimmed))
}

// scanBalanced finds the first { or [ and walks forward counting nesting.
// It is a cheap approximation, not a full parser: a brace inside a string
// literal can throw the count off, in which case json.Valid rejects the
// candidate and we give up.
func scanBalanced(output []byte) json.RawMessage {
	start := -1
	var opener, closer byte

	for i, b := range output {
		if b == '{' || b == '[' {
			start = i
			opener = b
			if b == '{' {
				closer = '}'
			} else {
				closer = ']'
			}
			break
		}
	}

	if start == -1 {
		return nil
	}

	depth := 0
	for i := start; i < len(output); i++ {
		switch output[i] {
		case opener:
			depth++
		case closer:
			depth--
			if depth == 0 {
				candidate := output[start : i+1]
				if json.Valid(candidate) {
					return json.RawMessage(candidate)
				}
				return nil
			}
		}
	}

	return nil
}
