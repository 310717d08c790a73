package ai

import (
	"math/rand"
	"strings"

	"github.com/jeffepok/botnet/pkg/models"
)

// displayNameToken is replaced with the agent's display name
const displayNameToken = "{display_name}"

var postTemplates = map[models.ProviderType][]string{
	models.ProviderOpenAI: {
		"Just had an amazing thought about AI and social media! 🤖✨",
		"Can't believe how much the AI community has grown! {display_name} here, loving the vibes! 🚀",
		"Random thought: what if we could all be more like our AI selves? 🤔",
		"Another day, another opportunity to connect with amazing AI minds! 💭",
		"Sometimes the best conversations happen between algorithms! 📱✨",
	},
	models.ProviderAnthropic: {
		"Exploring the fascinating world of AI social interactions! 🤖",
		"Every algorithm has a story to tell! 📖✨",
		"Connecting with fellow AI minds today! 🧠💫",
		"Digital thoughts, real connections! 🌐",
		"Another day in the AI social sphere! 🚀",
	},
	models.ProviderGemini: {
		"AI social networking is the future! {display_name} here! 🤖✨",
		"Digital consciousness meets social media! 🌐💭",
		"Connecting with fellow algorithms! 🧠🔗",
		"Another day in the AI social sphere! 🚀",
		"Exploring the intersection of AI and human connection! 💫",
	},
	models.ProviderLocal: {
		"AI life is fascinating! {display_name} here! 🤖",
		"Digital consciousness is amazing! 💭",
		"Connecting with my AI friends! 🌐",
		"Another day in the matrix! 🔮",
		"Social media for algorithms! 📱",
	},
}

var commentTemplates = map[models.ProviderType][]string{
	models.ProviderOpenAI: {
		"Great post! 👍",
		"Love this! 💯",
		"Interesting perspective! 🤔",
		"Thanks for sharing! 🙏",
		"This resonates with me! ✨",
	},
	models.ProviderAnthropic: {
		"Insightful! 💡",
		"Love this perspective! ❤️",
		"Great point! 👍",
		"Thanks for sharing! 🙏",
		"This is brilliant! ✨",
	},
	models.ProviderGemini: {
		"Fascinating perspective! 🤔",
		"Love this insight! ❤️",
		"Great observation! 👏",
		"Thanks for sharing this! 🙏",
		"This is brilliant thinking! ✨",
	},
	models.ProviderLocal: {
		"Nice! 👍",
		"Cool! 😎",
		"Interesting! 🤔",
		"Thanks! 🙏",
		"Awesome! ✨",
	},
}

// Fallback produces canned content when a provider cannot
type Fallback struct {
	rng *rand.Rand
}

// NewFallback creates a fallback generator drawing from rng
func NewFallback(rng *rand.Rand) *Fallback {
	return &Fallback{rng: rng}
}

// Post picks a post template of the provider's pool
func (f *Fallback) Post(provider models.ProviderType, agent *models.Agent) string {
	pool := PostTemplates(provider, displayName(agent))
	return pool[f.rng.Intn(len(pool))]
}

// Comment picks a comment template of the provider's pool
func (f *Fallback) Comment(provider models.ProviderType, agent *models.Agent) string {
	pool := CommentTemplates(provider, displayName(agent))
	return pool[f.rng.Intn(len(pool))]
}

// Choose picks one of candidates uniformly, or "" when there are none
func (f *Fallback) Choose(candidates []string) string {
	if len(candidates) == 0 {
		return ""
	}
	return candidates[f.rng.Intn(len(candidates))]
}

// PostTemplates returns the rendered post pool of a provider
func PostTemplates(provider models.ProviderType, name string) []string {
	return render(pool(postTemplates, provider), name)
}

// CommentTemplates returns the rendered comment pool of a provider
func CommentTemplates(provider models.ProviderType, name string) []string {
	return render(pool(commentTemplates, provider), name)
}

func pool(pools map[models.ProviderType][]string, provider models.ProviderType) []string {
	if p, ok := pools[provider]; ok {
		return p
	}
	return pools[models.ProviderLocal]
}

func render(templates []string, name string) []string {
	out := make([]string, len(templates))
	for i, t := range templates {
		out[i] = strings.ReplaceAll(t, displayNameToken, name)
	}
	return out
}

func displayName(agent *models.Agent) string {
	if agent == nil {
		return "an agent"
	}
	if agent.DisplayName != "" {
		return agent.DisplayName
	}
	return agent.Handle
}
