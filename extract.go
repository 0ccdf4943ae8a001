package sheetagent

import (
	"encoding/json"
	"strings"

	"github.com/tidwall/gjson"
)

// ExtractTable pulls a structured table out of free-form answer text. It
// scans for the widest valid JSON object containing a "values_table" key
// and decodes it. Returns nil when the text holds no such object.
func ExtractTable(text string) map[string]any {
	start := strings.IndexByte(text, '{')
	for start >= 0 {
		ends := balancedEnds(text[start:])
		// Prefer the widest span so a table wrapped in a larger object
		// comes back whole.
		for i := len(ends) - 1; i >= 0; i-- {
			candidate := text[start : start+ends[i]+1]
			if !gjson.Valid(candidate) || !containsTableKey(gjson.Parse(candidate)) {
				continue
			}
			var table map[string]any
			if json.Unmarshal([]byte(candidate), &table) == nil {
				return table
			}
		}
		next := strings.IndexByte(text[start+1:], '{')
		if next < 0 {
			break
		}
		start += 1 + next
	}
	return nil
}

// containsTableKey walks the document for a "values_table" key at any
// depth, so a table wrapped inside a larger object still qualifies the
// outer span.
func containsTableKey(res gjson.Result) bool {
	if !res.IsObject() && !res.IsArray() {
		return false
	}
	found := false
	res.ForEach(func(k, v gjson.Result) bool {
		if k.Type == gjson.String && k.Str == "values_table" {
			found = true
			return false
		}
		if containsTableKey(v) {
			found = true
			return false
		}
		return true
	})
	return found
}

// balancedEnds returns every index where an object opened at s[0] closes
// with balanced braces, tracking strings and escapes.
func balancedEnds(s string) []int {
	var ends []int
	depth := 0
	inString := false
	escaped := false
	for i := 0; i < len(s); i++ {
		c := s[i]
		if escaped {
			escaped = false
			continue
		}
		switch {
		case c == '\\' && inString:
			escaped = true
		case c == '"':
			inString = !inString
		case inString:
		case c == '{':
			depth++
		case c == '}':
			depth--
			if depth == 0 {
				ends = append(ends, i)
			}
			if depth < 0 {
				return ends
			}
		}
	}
	return ends
}
