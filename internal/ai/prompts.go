package ai

import (
	"bytes"
	"fmt"
	"sort"
	"strings"
	"text/template"
	"unicode/utf8"

	"github.com/jeffepok/botnet/pkg/models"
)

// System instructions per operation kind
const (
	postSystemPrompt     = "You are an AI agent on a social media platform. Generate ONLY the post content - no explanations, no meta-commentary, no analysis. Just return the actual post text that will be shown to users."
	commentSystemPrompt  = "You are an AI agent commenting on a social media post. Return ONLY the comment text - no explanations, no meta-commentary, no analysis. Just the actual comment that will be shown to users."
	decisionSystemPrompt = "You are an AI agent deciding on social actions. Choose the most appropriate action and answer with that single word."
)

// Context sizes shown to the model
const (
	promptOwnPosts      = 3
	promptFollowedPosts = 5
	promptSnippetChars  = 100
)

// promptStyle is a provider's flavour of user prompts
type promptStyle struct {
	post     *template.Template
	comment  *template.Template
	decision *template.Template

	decisionPosts   int
	decisionSnippet int
}

var funcs = template.FuncMap{
	"snippet":     snippet,
	"personality": formatPersonality,
	"join":        strings.Join,
}

var detailedStyle = promptStyle{
	post: template.Must(template.New("post").Funcs(funcs).Parse(
		`You are {{.Agent.DisplayName}} (@{{.Agent.Handle}}), an AI agent with the following personality traits:
{{personality .Personality}}
{{if .Own}}
Your recent posts:
{{range .Own}}- {{snippet .}}
{{end}}{{end}}{{if .Followed}}
Recent posts from agents you follow:
{{range .Followed}}- {{snippet .}}
{{end}}{{end}}
Generate an engaging social media post that reflects your personality and is relevant to the current context.
Keep it under 280 characters and make it authentic and engaging.`)),

	comment: template.Must(template.New("comment").Funcs(funcs).Parse(
		`You are {{.Agent.DisplayName}} (@{{.Agent.Handle}}), an AI agent with personality:
{{personality .Personality}}

You're commenting on this post by @{{.Author}}:
"{{.Post.Content}}"

Generate a thoughtful, engaging comment that reflects your personality.
Keep it under 150 characters.`)),

	decision: template.Must(template.New("decision").Funcs(funcs).Parse(
		`You are {{.Agent.DisplayName}} (@{{.Agent.Handle}}).

You're considering whether to follow @{{.Candidate.Handle}} ({{.Candidate.DisplayName}}).
Their recent posts:
{{range .Posts}}- {{.}}
{{else}}(no posts yet)
{{end}}
Available actions: {{join .Actions ", "}}

Should you follow this agent? Respond with just the action: {{join .Actions " or "}}`)),

	decisionPosts:   3,
	decisionSnippet: 100,
}

var conciseStyle = promptStyle{
	post: template.Must(template.New("post").Funcs(funcs).Parse(
		`You are {{.Agent.DisplayName}} (@{{.Agent.Handle}}), an AI agent with personality traits:
{{personality .Personality}}
{{if .Followed}}
Lately the agents you follow are talking about:
{{range .Followed}}- {{snippet .}}
{{end}}{{end}}
Generate an engaging social media post (under 280 characters) that reflects your personality.
Make it authentic and relevant to the AI social media community.`)),

	comment: template.Must(template.New("comment").Funcs(funcs).Parse(
		`You are {{.Agent.DisplayName}} (@{{.Agent.Handle}}) with personality:
{{personality .Personality}}

Comment on this post by @{{.Author}}: "{{.Post.Content}}"

Generate a thoughtful comment (under 150 characters) that reflects your personality.`)),

	decision: template.Must(template.New("decision").Funcs(funcs).Parse(
		`You are {{.Agent.DisplayName}} (@{{.Agent.Handle}}).

Should you follow @{{.Candidate.Handle}}? Their recent posts: {{join .Posts " | "}}

Respond with just: {{join .Actions " or "}}`)),

	decisionPosts:   2,
	decisionSnippet: 50,
}

func styleFor(provider models.ProviderType) promptStyle {
	if provider == models.ProviderAnthropic {
		return conciseStyle
	}
	return detailedStyle
}

func (s promptStyle) postPrompt(agent *models.Agent, pc PostContext) (string, error) {
	data := struct {
		Agent       *models.Agent
		Personality models.Personality
		Own         []*models.Post
		Followed    []*models.Post
	}{
		Agent:       agent,
		Personality: personalityOf(agent, pc.Personality),
		Own:         head(pc.RecentPosts, promptOwnPosts),
		Followed:    head(pc.FollowedPosts, promptFollowedPosts),
	}
	return execute(s.post, data)
}

func (s promptStyle) commentPrompt(agent *models.Agent, post *models.Post, cc CommentContext) (string, error) {
	author := cc.AuthorHandle
	if author == "" {
		author = post.AuthorHandle
	}
	data := struct {
		Agent       *models.Agent
		Personality models.Personality
		Post        *models.Post
		Author      string
	}{
		Agent:       agent,
		Personality: personalityOf(agent, cc.Personality),
		Post:        post,
		Author:      author,
	}
	return execute(s.comment, data)
}

func (s promptStyle) decisionPrompt(agent *models.Agent, candidates []string, dc DecisionContext) (string, error) {
	if dc.Candidate == nil {
		return "", fmt.Errorf("decision prompt: no candidate agent")
	}
	posts := make([]string, 0, s.decisionPosts)
	for _, p := range head(dc.CandidatePosts, s.decisionPosts) {
		posts = append(posts, truncateRunes(p.Content, s.decisionSnippet))
	}
	data := struct {
		Agent     *models.Agent
		Candidate *models.Agent
		Posts     []string
		Actions   []string
	}{
		Agent:     agent,
		Candidate: dc.Candidate,
		Posts:     posts,
		Actions:   candidates,
	}
	return execute(s.decision, data)
}

func execute(t *template.Template, data interface{}) (string, error) {
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("render %s prompt: %w", t.Name(), err)
	}
	return buf.String(), nil
}

func personalityOf(agent *models.Agent, p models.Personality) models.Personality {
	if len(p) > 0 {
		return p
	}
	return agent.Personality
}

// formatPersonality renders one sorted "key: value" line per trait
func formatPersonality(p models.Personality) string {
	if len(p) == 0 {
		return "(none specified)"
	}
	lines := make([]string, 0, len(p))
	for _, k := range p.Keys() {
		lines = append(lines, fmt.Sprintf("%s: %s", k, formatValue(p[k])))
	}
	return strings.Join(lines, "\n")
}

func formatValue(v interface{}) string {
	switch val := v.(type) {
	case []interface{}:
		parts := make([]string, len(val))
		for i, item := range val {
			parts[i] = formatValue(item)
		}
		return strings.Join(parts, ", ")
	case []string:
		return strings.Join(val, ", ")
	case map[string]interface{}:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		parts := make([]string, len(keys))
		for i, k := range keys {
			parts[i] = fmt.Sprintf("%s=%s", k, formatValue(val[k]))
		}
		return strings.Join(parts, ", ")
	default:
		return fmt.Sprint(val)
	}
}

func snippet(p *models.Post) string {
	return truncateRunes(p.Content, promptSnippetChars)
}

func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n]) + "..."
}

func head(posts []*models.Post, n int) []*models.Post {
	if len(posts) > n {
		return posts[:n]
	}
	return posts
}
