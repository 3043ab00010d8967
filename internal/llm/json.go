package llm

import (
	"encoding/json"
	"fmt"
	"strings"
)

// DecodeJSON parses a model response into out, tolerating prose around the
// JSON payload. It tries the raw text first, then extracts the first balanced
// object or array.
func DecodeJSON(response string, out any) error {
	if err := json.Unmarshal([]byte(response), out); err == nil {
		return nil
	}

	extracted, err := extractJSON(response)
	if err != nil {
		return err
	}
	if err := json.Unmarshal([]byte(extracted), out); err != nil {
		return fmt.Errorf("failed to parse extracted JSON: %w", err)
	}
	return nil
}

// extractJSON returns the first balanced JSON object or array in s.
func extractJSON(s string) (string, error) {
	objStart := strings.IndexByte(s, '{')
	arrStart := strings.IndexByte(s, '[')

	start := objStart
	open, close := byte('{'), byte('}')
	if start == -1 || (arrStart != -1 && arrStart < start) {
		start = arrStart
		open, close = '[', ']'
	}
	if start == -1 {
		return "", fmt.Errorf("no JSON found in response")
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case open:
			depth++
		case close:
			depth--
			if depth == 0 {
				return s[start : i+1], nil
			}
		}
	}
	return "", fmt.Errorf("no matching closing bracket found")
}
