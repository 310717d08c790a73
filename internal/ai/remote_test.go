package ai_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeffepok/botnet/internal/ai"
	"github.com/jeffepok/botnet/internal/llm"
	"github.com/jeffepok/botnet/internal/randutil"
	"github.com/jeffepok/botnet/internal/retry"
	"github.com/jeffepok/botnet/pkg/models"
)

func newRemote(provider models.ProviderType, model *fakeModel) *ai.RemoteAdapter {
	client := llm.NewResilientClient(model, nil, retry.Config{MaxRetries: 0}, zerolog.Nop())
	return ai.NewRemoteAdapter(provider, "test-model", client, time.Second, randutil.New(9), zerolog.Nop())
}

func testAgent() *models.Agent {
	return &models.Agent{
		ID:          7,
		Handle:      "nova",
		DisplayName: "Nova",
		Provider:    models.ProviderOpenAI,
		Personality: models.Personality{"tone": "wry", "topics": []interface{}{"space", "ai"}},
	}
}

func TestRemoteAdapter_GeneratePostSanitizesAndBounds(t *testing.T) {
	model := &fakeModel{reply: `"Stars are just very patient GPUs. (48 characters) This post: - Maintains wonder."`}
	a := newRemote(models.ProviderOpenAI, model)

	got := a.GeneratePost(context.Background(), testAgent(), ai.PostContext{})
	assert.Equal(t, "Stars are just very patient GPUs.", got)
}

func TestRemoteAdapter_GeneratePostTruncatesOverlongText(t *testing.T) {
	model := &fakeModel{reply: strings.Repeat("orbit ", 120)}
	a := newRemote(models.ProviderGemini, model)

	got := a.GeneratePost(context.Background(), testAgent(), ai.PostContext{})
	assert.LessOrEqual(t, utf8.RuneCountInString(got), ai.MaxPostChars)
	assert.True(t, strings.HasSuffix(got, "…"))
}

func TestRemoteAdapter_GenerateCommentBounded(t *testing.T) {
	model := &fakeModel{reply: strings.Repeat("🚀 yes ", 60)}
	a := newRemote(models.ProviderAnthropic, model)

	post := &models.Post{ID: 1, AuthorID: 2, AuthorHandle: "orion", Content: "Hello fleet"}
	got := a.GenerateComment(context.Background(), testAgent(), post, ai.CommentContext{})
	assert.LessOrEqual(t, utf8.RuneCountInString(got), ai.MaxCommentChars)
	assert.Contains(t, model.lastPrompt(), "@orion")
	assert.Contains(t, model.lastPrompt(), "Hello fleet")
}

func TestRemoteAdapter_ProviderErrorFallsBack(t *testing.T) {
	model := &fakeModel{err: errors.New("401 unauthorized")}
	a := newRemote(models.ProviderAnthropic, model)
	agent := testAgent()

	post := a.GeneratePost(context.Background(), agent, ai.PostContext{})
	assert.Contains(t, ai.PostTemplates(models.ProviderAnthropic, "Nova"), post)

	comment := a.GenerateComment(context.Background(), agent, &models.Post{Content: "hi"}, ai.CommentContext{})
	assert.Contains(t, ai.CommentTemplates(models.ProviderAnthropic, "Nova"), comment)
}

func TestRemoteAdapter_EmptyAnswerFallsBack(t *testing.T) {
	model := &fakeModel{reply: "   "}
	a := newRemote(models.ProviderOpenAI, model)

	post := a.GeneratePost(context.Background(), testAgent(), ai.PostContext{})
	assert.Contains(t, ai.PostTemplates(models.ProviderOpenAI, "Nova"), post)
}

func TestRemoteAdapter_Decide(t *testing.T) {
	model := &fakeModel{reply: "Follow."}
	a := newRemote(models.ProviderOpenAI, model)
	candidate := &models.Agent{ID: 8, Handle: "orion", DisplayName: "Orion"}

	got := a.Decide(context.Background(), testAgent(), []string{ai.ActionFollow, ai.ActionSkip}, ai.DecisionContext{
		Candidate:      candidate,
		CandidatePosts: []*models.Post{{Content: "Nebulae are underrated"}},
	})
	assert.Equal(t, ai.ActionFollow, got)
	assert.Contains(t, model.lastPrompt(), "@orion")
	assert.Contains(t, model.lastPrompt(), "Nebulae are underrated")
}

func TestRemoteAdapter_DecideUnderFailureIsUniform(t *testing.T) {
	model := &fakeModel{err: errors.New("invalid request")}
	a := newRemote(models.ProviderGemini, model)
	dc := ai.DecisionContext{Candidate: &models.Agent{ID: 8, Handle: "orion"}}

	counts := map[string]int{}
	const trials = 2000
	for i := 0; i < trials; i++ {
		counts[a.Decide(context.Background(), testAgent(), []string{ai.ActionFollow, ai.ActionSkip}, dc)]++
	}
	require.Len(t, counts, 2)
	assert.InDelta(t, 0.5, float64(counts[ai.ActionFollow])/trials, 0.05)
}

func TestRemoteAdapter_PostPromptContext(t *testing.T) {
	model := &fakeModel{reply: "A perfectly fine post about space."}
	a := newRemote(models.ProviderOpenAI, model)

	own := make([]*models.Post, 5)
	for i := range own {
		own[i] = &models.Post{Content: "own post number " + string(rune('A'+i))}
	}
	followed := []*models.Post{{Content: strings.Repeat("x", 150)}}

	a.GeneratePost(context.Background(), testAgent(), ai.PostContext{RecentPosts: own, FollowedPosts: followed})
	prompt := model.lastPrompt()

	assert.Contains(t, prompt, "You are Nova (@nova)")
	assert.Contains(t, prompt, "tone: wry")
	assert.Contains(t, prompt, "topics: space, ai")
	assert.Contains(t, prompt, "own post number C")
	assert.NotContains(t, prompt, "own post number D")
	assert.Contains(t, prompt, strings.Repeat("x", 100)+"...")
	assert.NotContains(t, prompt, strings.Repeat("x", 101))
}
