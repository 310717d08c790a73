package ai_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/jeffepok/botnet/internal/ai"
	"github.com/jeffepok/botnet/internal/randutil"
)

var followSkip = []string{ai.ActionFollow, ai.ActionSkip}

func TestResolveDecision_Matches(t *testing.T) {
	rng := randutil.New(1)
	tests := map[string]string{
		"follow":                      "follow",
		"  Follow.  ":                 "follow",
		"SKIP!":                       "skip",
		"**skip**":                    "skip",
		`{"action": "follow"}`:        "follow",
		"```json\n{\"decision\": \"skip\",}\n```": "skip",
		"I would follow them":         "follow",
	}
	for answer, want := range tests {
		assert.Equal(t, want, ai.ResolveDecision(answer, followSkip, rng), "answer %q", answer)
	}
}

func TestResolveDecision_OutsideSetIsRandomCandidate(t *testing.T) {
	rng := randutil.New(42)
	counts := map[string]int{}
	const trials = 10000
	for i := 0; i < trials; i++ {
		got := ai.ResolveDecision("maybe later, or follow and skip", followSkip, rng)
		counts[got]++
	}
	assert.Len(t, counts, 2)
	assert.InDelta(t, 0.5, float64(counts["follow"])/trials, 0.03)
	assert.InDelta(t, 0.5, float64(counts["skip"])/trials, 0.03)
}

func TestResolveDecision_NoCandidates(t *testing.T) {
	assert.Equal(t, "", ai.ResolveDecision("follow", nil, randutil.New(1)))
}
