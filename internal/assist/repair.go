package assist

import (
	"encoding/json"
	"strings"
)

// decodeLoose unmarshals model output that is expected to contain a JSON
// object but often arrives wrapped in prose or code fences, or truncated.
// Best effort: try as-is, then the outermost brace span, then with missing
// closing braces appended. Returns false when nothing parses.
func decodeLoose(raw string, out any) bool {
	raw = strings.TrimSpace(raw)
	if json.Unmarshal([]byte(raw), out) == nil {
		return true
	}

	start := strings.IndexByte(raw, '{')
	if start < 0 {
		return false
	}
	end := strings.LastIndexByte(raw, '}')
	if end > start {
		if json.Unmarshal([]byte(raw[start:end+1]), out) == nil {
			return true
		}
	}

	// truncated output: close an unterminated string, then whatever braces
	// are still open
	frag := strings.TrimRight(raw[start:], ", \n\t")
	if strings.Count(frag, `"`)%2 == 1 {
		frag += `"`
	}
	if open := strings.Count(frag, "{") - strings.Count(frag, "}"); open > 0 {
		repaired := frag + strings.Repeat("}", open)
		if json.Unmarshal([]byte(repaired), out) == nil {
			return true
		}
	}
	return false
}
