// Package behavior holds the probabilistic gates that decide what an agent
// does during a cycle.
package behavior

import (
	"math"
	"math/rand"
	"time"

	"github.com/jeffepok/botnet/pkg/models"
)

// Action is an interaction with a post
type Action string

const (
	ActionLike    Action = "like"
	ActionComment Action = "comment"
)

// Config holds the tunable probabilities of the policy
type Config struct {
	MaxPostProbability     float64 `koanf:"max_post_probability"`
	BothActionsProbability float64 `koanf:"both_actions_probability"`
	DiscoveryProbability   float64 `koanf:"discovery_probability"`
}

// DefaultConfig returns the stock probabilities
func DefaultConfig() Config {
	return Config{
		MaxPostProbability:     0.8,
		BothActionsProbability: 0.3,
		DiscoveryProbability:   0.2,
	}
}

// Policy draws decisions from an injected random source and clock so runs
// can be replayed. Rand must be safe for concurrent use when the policy is
// shared.
type Policy struct {
	Rand   *rand.Rand
	Now    func() time.Time
	Config Config
}

// NewPolicy creates a policy with the wall clock
func NewPolicy(rng *rand.Rand, cfg Config) *Policy {
	return &Policy{Rand: rng, Now: time.Now, Config: cfg}
}

// PostProbability is min(frequency * hours since last activity, cap), or 0
// for inactive agents. A last activity in the future counts as no time.
func (p *Policy) PostProbability(agent *models.Agent, now time.Time) float64 {
	if agent == nil || !agent.IsActive || agent.PostingFrequency <= 0 {
		return 0
	}
	elapsed := now.Sub(agent.LastActivity).Hours()
	if elapsed < 0 {
		elapsed = 0
	}
	return math.Min(agent.PostingFrequency*elapsed, p.Config.MaxPostProbability)
}

// ShouldPost draws against PostProbability at the policy's clock
func (p *Policy) ShouldPost(agent *models.Agent) bool {
	prob := p.PostProbability(agent, p.Now())
	if prob <= 0 {
		return false
	}
	return p.Rand.Float64() < prob
}

// ShouldInteract draws against the agent's interaction rate
func (p *Policy) ShouldInteract(agent *models.Agent) bool {
	if agent == nil || !agent.IsActive || agent.InteractionRate <= 0 {
		return false
	}
	return p.Rand.Float64() < agent.InteractionRate
}

// ChooseInteraction returns both actions with BothActionsProbability, else
// one action chosen uniformly
func (p *Policy) ChooseInteraction() []Action {
	if p.Rand.Float64() < p.Config.BothActionsProbability {
		return []Action{ActionLike, ActionComment}
	}
	if p.Rand.Intn(2) == 0 {
		return []Action{ActionLike}
	}
	return []Action{ActionComment}
}

// ShouldDiscover decides whether a cycle also looks for new follows
func (p *Policy) ShouldDiscover() bool {
	return p.Rand.Float64() < p.Config.DiscoveryProbability
}

// PickPost returns a uniformly chosen post, or nil for an empty pool
func (p *Policy) PickPost(pool []*models.Post) *models.Post {
	if len(pool) == 0 {
		return nil
	}
	return pool[p.Rand.Intn(len(pool))]
}

// Sample returns up to n distinct agents chosen uniformly from pool
func (p *Policy) Sample(pool []*models.Agent, n int) []*models.Agent {
	if n <= 0 {
		return []*models.Agent{}
	}
	if n >= len(pool) {
		out := make([]*models.Agent, len(pool))
		copy(out, pool)
		p.Rand.Shuffle(len(out), func(i, j int) { out[i], out[j] = out[j], out[i] })
		return out
	}
	idx := p.Rand.Perm(len(pool))[:n]
	out := make([]*models.Agent, n)
	for i, j := range idx {
		out[i] = pool[j]
	}
	return out
}
