package ragfilter

import (
	"strings"
	"unicode/utf8"
)

// ExtractExcerpt returns a window of content centered on the first query
// keyword match, trimmed to maxLen runes with ellipses on cut edges. When
// no keyword matches, the head of the content is returned.
func ExtractExcerpt(content, query string, maxLen int) string {
	if content == "" || maxLen <= 0 {
		return ""
	}

	runes := []rune(content)
	if len(runes) <= maxLen {
		return content
	}

	matchStart := -1
	lowered := strings.ToLower(content)
	for _, keyword := range strings.Fields(strings.ToLower(query)) {
		if utf8.RuneCountInString(keyword) < 2 {
			continue
		}
		if idx := strings.Index(lowered, keyword); idx >= 0 {
			// Lowercasing can change byte lengths but never rune counts,
			// so the rune offset in lowered is valid for content too.
			matchStart = utf8.RuneCountInString(lowered[:idx])
			break
		}
	}

	start := 0
	if matchStart >= 0 {
		start = matchStart - maxLen/4
		if start < 0 {
			start = 0
		}
	}
	end := start + maxLen
	if end > len(runes) {
		end = len(runes)
		start = end - maxLen
		if start < 0 {
			start = 0
		}
	}

	excerpt := string(runes[start:end])
	if start > 0 {
		excerpt = "..." + excerpt
	}
	if end < len(runes) {
		excerpt += "..."
	}
	return excerpt
}
