package ai

import (
	"math/rand"
	"strings"
	"unicode"

	"github.com/jeffepok/botnet/internal/llm"
)

// ResolveDecision maps a raw model answer onto one of candidates. Answers
// that name no candidate, or more than one, resolve to a uniformly random
// candidate. Returns "" only when candidates is empty.
func ResolveDecision(answer string, candidates []string, rng *rand.Rand) string {
	if len(candidates) == 0 {
		return ""
	}
	if match, ok := matchCandidate(answer, candidates); ok {
		return match
	}
	return candidates[rng.Intn(len(candidates))]
}

func matchCandidate(answer string, candidates []string) (string, bool) {
	if llm.LooksLikeJSON(answer) {
		if field, ok := llm.ExtractStringField(answer, "action", "decision", "answer"); ok {
			answer = field
		}
	}

	normalized := normalizeAnswer(answer)
	for _, c := range candidates {
		if normalized == strings.ToLower(c) {
			return c, true
		}
	}

	// "I would follow them." names exactly one candidate
	words := strings.FieldsFunc(normalized, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '_'
	})
	var found []string
	for _, c := range candidates {
		lc := strings.ToLower(c)
		for _, w := range words {
			if w == lc {
				found = append(found, c)
				break
			}
		}
	}
	if len(found) == 1 {
		return found[0], true
	}
	return "", false
}

func normalizeAnswer(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	return strings.TrimFunc(s, func(r rune) bool {
		return unicode.IsPunct(r) || unicode.IsSpace(r) || unicode.IsSymbol(r)
	})
}
