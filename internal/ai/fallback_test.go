package ai_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/jeffepok/botnet/internal/ai"
	"github.com/jeffepok/botnet/internal/randutil"
	"github.com/jeffepok/botnet/pkg/models"
)

var allProviders = []models.ProviderType{
	models.ProviderOpenAI, models.ProviderAnthropic, models.ProviderGemini, models.ProviderLocal,
}

func TestTemplatePools(t *testing.T) {
	for _, p := range allProviders {
		posts := ai.PostTemplates(p, "Nova")
		comments := ai.CommentTemplates(p, "Nova")
		assert.Len(t, posts, 5, p)
		assert.Len(t, comments, 5, p)
		for _, s := range append(posts, comments...) {
			assert.NotEmpty(t, s)
			assert.NotContains(t, s, "{display_name}")
		}
	}
}

func TestTemplatePools_InterpolateDisplayName(t *testing.T) {
	assert.Contains(t, ai.PostTemplates(models.ProviderOpenAI, "Nova")[1], "Nova here")
	assert.Contains(t, ai.PostTemplates(models.ProviderLocal, "Nova")[0], "Nova here")
}

func TestTemplatePools_UnknownProviderUsesLocal(t *testing.T) {
	assert.Equal(t,
		ai.PostTemplates(models.ProviderLocal, "x"),
		ai.PostTemplates(models.ProviderType("mystery"), "x"))
}

func TestFallback_DrawsFromPool(t *testing.T) {
	f := ai.NewFallback(randutil.New(3))
	agent := &models.Agent{ID: 1, Handle: "nova", DisplayName: "Nova"}

	for _, p := range allProviders {
		posts := ai.PostTemplates(p, "Nova")
		comments := ai.CommentTemplates(p, "Nova")
		seen := map[string]bool{}
		for i := 0; i < 200; i++ {
			post := f.Post(p, agent)
			assert.Contains(t, posts, post)
			seen[post] = true
			assert.Contains(t, comments, f.Comment(p, agent))
		}
		assert.Len(t, seen, 5, "uniform choice should reach every template of %s", p)
	}
}

func TestFallback_Choose(t *testing.T) {
	f := ai.NewFallback(randutil.New(3))
	assert.Equal(t, "", f.Choose(nil))
	assert.Equal(t, "only", f.Choose([]string{"only"}))
}
