package llm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractStringField(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want string
		ok   bool
	}{
		{"valid", `{"action": "follow"}`, "follow", true},
		{"fenced", "```json\n{\"decision\": \"skip\"}\n```", "skip", true},
		{"trailing comma", `{"action": "follow",}`, "follow", true},
		{"single quotes", `{'action': 'skip'}`, "skip", true},
		{"unterminated", `{"action": "follow"`, "follow", true},
		{"prefixed text", `Sure! {"action":"follow"} hope that helps`, "follow", true},
		{"missing key", `{"verdict": "follow"}`, "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ExtractStringField(tt.raw, "action", "decision")
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRepairObject(t *testing.T) {
	obj, err := RepairObject(`{"a": 1, "b": [1, 2,], }`)
	require.NoError(t, err)
	assert.EqualValues(t, 1, obj["a"])
}

func TestLooksLikeJSON(t *testing.T) {
	assert.True(t, LooksLikeJSON(` {"action":"follow"}`))
	assert.True(t, LooksLikeJSON("```json\n{}\n```"))
	assert.False(t, LooksLikeJSON("follow"))
}
