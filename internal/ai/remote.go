package ai

import (
	"context"
	"math/rand"
	"time"

	"github.com/rs/zerolog"

	"github.com/jeffepok/botnet/internal/llm"
	"github.com/jeffepok/botnet/pkg/models"
)

// RemoteAdapter calls a hosted model and falls back to canned content on
// any failure
type RemoteAdapter struct {
	provider models.ProviderType
	model    string
	client   *llm.ResilientClient
	timeout  time.Duration
	style    promptStyle
	fallback *Fallback
	rng      *rand.Rand
	logger   zerolog.Logger
}

// NewRemoteAdapter wraps client for provider. rng drives fallback choices.
func NewRemoteAdapter(provider models.ProviderType, model string, client *llm.ResilientClient, timeout time.Duration, rng *rand.Rand, logger zerolog.Logger) *RemoteAdapter {
	return &RemoteAdapter{
		provider: provider,
		model:    model,
		client:   client,
		timeout:  timeout,
		style:    styleFor(provider),
		fallback: NewFallback(rng),
		rng:      rng,
		logger:   logger.With().Str("provider", string(provider)).Str("model", model).Logger(),
	}
}

// Provider implements Adapter
func (a *RemoteAdapter) Provider() models.ProviderType { return a.provider }

// Model returns the model id requests are sent to
func (a *RemoteAdapter) Model() string { return a.model }

// GeneratePost implements Adapter
func (a *RemoteAdapter) GeneratePost(ctx context.Context, agent *models.Agent, pc PostContext) string {
	prompt, err := a.style.postPrompt(agent, pc)
	if err != nil {
		a.logger.Error().Err(err).Int64("agent_id", agent.ID).Msg("post prompt")
		return a.fallback.Post(a.provider, agent)
	}

	text, ok := a.generate(ctx, agent, postSystemPrompt, prompt, PostModelConfig, MaxPostChars)
	if !ok {
		return a.fallback.Post(a.provider, agent)
	}
	return text
}

// GenerateComment implements Adapter
func (a *RemoteAdapter) GenerateComment(ctx context.Context, agent *models.Agent, post *models.Post, cc CommentContext) string {
	prompt, err := a.style.commentPrompt(agent, post, cc)
	if err != nil {
		a.logger.Error().Err(err).Int64("agent_id", agent.ID).Msg("comment prompt")
		return a.fallback.Comment(a.provider, agent)
	}

	text, ok := a.generate(ctx, agent, commentSystemPrompt, prompt, CommentModelConfig, MaxCommentChars)
	if !ok {
		return a.fallback.Comment(a.provider, agent)
	}
	return text
}

// Decide implements Adapter
func (a *RemoteAdapter) Decide(ctx context.Context, agent *models.Agent, candidates []string, dc DecisionContext) string {
	if len(candidates) == 0 {
		return ""
	}
	prompt, err := a.style.decisionPrompt(agent, candidates, dc)
	if err != nil {
		a.logger.Warn().Err(err).Int64("agent_id", agent.ID).Msg("decision prompt, choosing randomly")
		return a.fallback.Choose(candidates)
	}

	resp, err := a.client.Generate(ctx, llm.Request{
		System:      decisionSystemPrompt,
		Prompt:      prompt,
		MaxTokens:   DecisionModelConfig.MaxTokens,
		Temperature: DecisionModelConfig.Temperature,
		Timeout:     a.timeout,
	})
	if err != nil {
		a.logger.Warn().Err(err).Int64("agent_id", agent.ID).Msg("decision failed, choosing randomly")
		return a.fallback.Choose(candidates)
	}
	return ResolveDecision(resp.Text, candidates, a.rng)
}

// generate runs one text operation and post-processes the answer. ok is
// false when the caller should fall back.
func (a *RemoteAdapter) generate(ctx context.Context, agent *models.Agent, system, prompt string, mc ModelConfig, limit int) (string, bool) {
	resp, err := a.client.Generate(ctx, llm.Request{
		System:      system,
		Prompt:      prompt,
		MaxTokens:   mc.MaxTokens,
		Temperature: mc.Temperature,
		Timeout:     a.timeout,
	})
	if err != nil {
		a.logger.Warn().Err(err).
			Int64("agent_id", agent.ID).
			Int("attempts", resp.Attempts).
			Msg("generation failed, using fallback")
		return "", false
	}

	text := llm.StripQuotes(llm.Sanitize(resp.Text))
	if text == "" {
		return "", false
	}
	return llm.Truncate(text, limit), true
}
