package llm

import (
	"encoding/json"
	"fmt"
	"strings"
)

// ExtractJSON pulls the first JSON object out of a completion. Models
// routinely wrap the object in prose or markdown fences despite being
// told not to.
func ExtractJSON(text string, out any) error {
	t := strings.TrimSpace(text)
	if strings.HasPrefix(t, "```") {
		t = strings.TrimPrefix(t, "```json")
		t = strings.TrimPrefix(t, "```")
		if i := strings.LastIndex(t, "```"); i >= 0 {
			t = t[:i]
		}
		t = strings.TrimSpace(t)
	}
	if strings.HasPrefix(t, "{") {
		if err := json.Unmarshal([]byte(t), out); err == nil {
			return nil
		}
	}
	start := strings.Index(t, "{")
	end := strings.LastIndex(t, "}")
	if start >= 0 && end > start {
		if err := json.Unmarshal([]byte(t[start:end+1]), out); err == nil {
			return nil
		}
	}
	return fmt.Errorf("no JSON object in completion: %q", truncate(t, 120))
}

// coerceInt reads a number that the model may have emitted as an int,
// a float, or a quoted string.
func coerceInt(v any) (int, bool) {
	switch n := v.(type) {
	case float64:
		return int(n), true
	case int:
		return n, true
	case string:
		var f float64
		if _, err := fmt.Sscanf(strings.TrimSpace(n), "%f", &f); err == nil {
			return int(f), true
		}
	}
	return 0, false
}

// coerceStrings accepts a JSON array of anything, or a bare string, and
// returns the string forms.
func coerceStrings(v any) []string {
	switch a := v.(type) {
	case []any:
		out := make([]string, 0, len(a))
		for _, e := range a {
			if s, ok := e.(string); ok {
				out = append(out, s)
			} else {
				out = append(out, fmt.Sprintf("%v", e))
			}
		}
		return out
	case string:
		if strings.TrimSpace(a) == "" {
			return nil
		}
		return []string{a}
	}
	return nil
}

func clampConfidence(c int) int {
	if c < 0 {
		return 0
	}
	if c > 100 {
		return 100
	}
	return c
}
