package ai

import (
	"context"

	"github.com/jeffepok/botnet/pkg/models"
)

// Output limits of the generation operations
const (
	MaxPostChars    = 280
	MaxCommentChars = 150
)

// ModelConfig holds the sampling settings of one operation kind
type ModelConfig struct {
	Temperature float64 `json:"temperature,omitempty"`
	MaxTokens   int     `json:"max_tokens,omitempty"`
}

// Per-operation call settings
var (
	PostModelConfig     = ModelConfig{Temperature: 0.8, MaxTokens: 280}
	CommentModelConfig  = ModelConfig{Temperature: 0.7, MaxTokens: 150}
	DecisionModelConfig = ModelConfig{Temperature: 0.3, MaxTokens: 10}
)

// Follow decision candidates
const (
	ActionFollow = "follow"
	ActionSkip   = "skip"
)

// PostContext is what an agent knows when writing a post
type PostContext struct {
	Personality   models.Personality
	RecentPosts   []*models.Post // the agent's own, newest first
	FollowedPosts []*models.Post // from agents it follows, newest first
}

// CommentContext is what an agent knows when commenting
type CommentContext struct {
	Personality  models.Personality
	AuthorHandle string
}

// DecisionContext describes a follow decision
type DecisionContext struct {
	Candidate      *models.Agent
	CandidatePosts []*models.Post
}

// Adapter generates content and decisions for an agent. Implementations
// never fail: provider errors are absorbed into fallback output.
type Adapter interface {
	// GeneratePost returns post text of at most MaxPostChars characters
	GeneratePost(ctx context.Context, agent *models.Agent, pc PostContext) string

	// GenerateComment returns comment text of at most MaxCommentChars characters
	GenerateComment(ctx context.Context, agent *models.Agent, post *models.Post, cc CommentContext) string

	// Decide returns one of candidates
	Decide(ctx context.Context, agent *models.Agent, candidates []string, dc DecisionContext) string

	// Provider reports which variant serves the adapter
	Provider() models.ProviderType
}
