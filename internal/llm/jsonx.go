package llm

import "fmt"

// Model responses are prose with JSON somewhere inside: markdown fences,
// leading commentary, trailing notes. ExtractJSONArray and ExtractJSONObject
// pull out the first balanced bracketed/braced substring so every caller
// shares one extraction path instead of ad-hoc regexes.

// ExtractJSONArray returns the first balanced [...] substring of s.
func ExtractJSONArray(s string) (string, error) {
	return extractBalanced(s, '[', ']')
}

// ExtractJSONObject returns the first balanced {...} substring of s.
func ExtractJSONObject(s string) (string, error) {
	return extractBalanced(s, '{', '}')
}

// extractBalanced scans for the first open..close span, tracking nesting
// depth and skipping bracket characters inside JSON string literals.
func extractBalanced(s string, open, close byte) (string, error) {
	start := -1
	depth := 0
	inString := false
	escaped := false

	for i := 0; i < len(s); i++ {
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
			if depth > 0 {
				inString = true
			}
		case open:
			if depth == 0 {
				start = i
			}
			depth++
		case close:
			if depth > 0 {
				depth--
				if depth == 0 {
					return s[start : i+1], nil
				}
			}
		}
	}

	return "", fmt.Errorf("no balanced %c...%c found", open, close)
}
