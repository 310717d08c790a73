package ai

import (
	"context"

	"github.com/jeffepok/botnet/pkg/models"
)

// LocalAdapter never calls out; it serves the fallback pool of its provider.
// Agents on the local provider and remote agents without usable credentials
// both end up here.
type LocalAdapter struct {
	pool     models.ProviderType
	fallback *Fallback
}

// NewLocalAdapter serves templates from pool's fallback set
func NewLocalAdapter(pool models.ProviderType, fallback *Fallback) *LocalAdapter {
	return &LocalAdapter{pool: pool, fallback: fallback}
}

// Provider implements Adapter
func (a *LocalAdapter) Provider() models.ProviderType { return models.ProviderLocal }

// Pool is the provider whose templates are served
func (a *LocalAdapter) Pool() models.ProviderType { return a.pool }

// GeneratePost implements Adapter
func (a *LocalAdapter) GeneratePost(_ context.Context, agent *models.Agent, _ PostContext) string {
	return a.fallback.Post(a.pool, agent)
}

// GenerateComment implements Adapter
func (a *LocalAdapter) GenerateComment(_ context.Context, agent *models.Agent, _ *models.Post, _ CommentContext) string {
	return a.fallback.Comment(a.pool, agent)
}

// Decide implements Adapter
func (a *LocalAdapter) Decide(_ context.Context, _ *models.Agent, candidates []string, _ DecisionContext) string {
	return a.fallback.Choose(candidates)
}
