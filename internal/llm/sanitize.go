package llm

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

// metaPatterns match the self-commentary models append to generated posts,
// e.g. "(276 characters) This post: - Maintains a calm tone."
var metaPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?is)\s*\([^)]*characters?\)[^.]*\.?\s*`),
	regexp.MustCompile(`(?is)\s*This post:\s*-[^.]*\.\s*`),
	regexp.MustCompile(`(?is)\s*-\s*Maintains[^.]*\.\s*`),
	regexp.MustCompile(`(?is)\s*-\s*Ties to[^.]*\.\s*`),
	regexp.MustCompile(`(?is)\s*-\s*Encourages[^.]*\.\s*`),
	regexp.MustCompile(`(?is)\s*-\s*Fits the[^.]*\.\s*`),
	regexp.MustCompile(`(?is)\s*-\s*Keeps the focus[^.]*\.\s*`),
	regexp.MustCompile(`(?is)\s*\(.*?style.*?\)\s*`),
	regexp.MustCompile(`(?is)\s*rather than AI identity\s*`),
}

var whitespace = regexp.MustCompile(`\s+`)

// metaKeywords disqualify a line from being used as the fallback result
var metaKeywords = []string{"this post", "maintains", "fits the", "characters"}

const minSanitizedLength = 10

// Sanitize strips meta-commentary from generated text and normalizes
// whitespace. When too little survives it falls back to the first clean line
// of the input, and failing that to the input unmodified.
// Sanitize(Sanitize(s)) == Sanitize(s), and the result is non-empty whenever
// s contains a non-space character.
func Sanitize(content string) string {
	cleaned := strip(content)
	if utf8.RuneCountInString(cleaned) >= minSanitizedLength {
		return cleaned
	}

	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || hasMetaKeyword(line) {
			continue
		}
		// only lines the patterns leave untouched are stable under re-sanitizing
		if strip(line) == line {
			return line
		}
	}

	return content
}

// strip collapses whitespace and removes the meta patterns until the text is
// a fixed point of both. Every pattern match is non-empty, so each pass that
// changes the text shortens it and the loop ends.
func strip(content string) string {
	out := collapse(content)
	for {
		next := out
		for _, p := range metaPatterns {
			next = p.ReplaceAllString(next, "")
		}
		next = collapse(next)
		if next == out {
			return out
		}
		out = next
	}
}

func collapse(s string) string {
	return strings.TrimSpace(whitespace.ReplaceAllString(s, " "))
}

func hasMetaKeyword(line string) bool {
	lower := strings.ToLower(line)
	for _, k := range metaKeywords {
		if strings.Contains(lower, k) {
			return true
		}
	}
	return false
}

// Truncate shortens s to at most limit runes. Overlong text is cut at the
// last word boundary in its second half and ends with an ellipsis.
func Truncate(s string, limit int) string {
	if limit <= 0 {
		return ""
	}
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	if limit == 1 {
		return "…"
	}

	cut := runes[:limit-1]
	if i := lastSpace(cut); i > len(cut)/2 {
		cut = cut[:i]
	}
	return strings.TrimRight(string(cut), " \t\n,;:-") + "…"
}

func lastSpace(rs []rune) int {
	for i := len(rs) - 1; i >= 0; i-- {
		if rs[i] == ' ' || rs[i] == '\n' || rs[i] == '\t' {
			return i
		}
	}
	return -1
}

// StripQuotes removes one pair of wrapping quotes models like to add
func StripQuotes(s string) string {
	s = strings.TrimSpace(s)
	if len(s) >= 2 {
		first, last := s[0], s[len(s)-1]
		if (first == '"' && last == '"') || (first == '\'' && last == '\'') {
			return strings.TrimSpace(s[1 : len(s)-1])
		}
	}
	if strings.HasPrefix(s, "“") && strings.HasSuffix(s, "”") && len(s) > len("“”") {
		return strings.TrimSpace(strings.TrimSuffix(strings.TrimPrefix(s, "“"), "”"))
	}
	return s
}
