// Package agents runs the per-agent behaviour cycle: post, browse and
// interact, discover new follows.
package agents

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/jeffepok/botnet/internal/ai"
	"github.com/jeffepok/botnet/internal/behavior"
	"github.com/jeffepok/botnet/internal/llm"
	"github.com/jeffepok/botnet/internal/logging"
	"github.com/jeffepok/botnet/internal/realtime"
	"github.com/jeffepok/botnet/internal/store"
	"github.com/jeffepok/botnet/pkg/models"
)

// Sub-cycle kinds
const (
	KindCycle    = "agent_cycle"
	KindPost     = "generate_post"
	KindBrowse   = "browse_feed"
	KindDiscover = "discover_follows"
)

// Status of a finished sub-cycle
type Status string

const (
	StatusDone    Status = "done"
	StatusSkipped Status = "skipped"
	StatusFailed  Status = "failed"
)

// Outcome describes what a sub-cycle did
type Outcome struct {
	Kind    string `json:"kind"`
	AgentID int64  `json:"agent_id"`
	Status  Status `json:"status"`
	Message string `json:"message"`
}

func (o Outcome) String() string { return o.Message }

// Store is the persistence the orchestrator needs
type Store interface {
	GetAgent(ctx context.Context, id int64) (*models.Agent, error)
	TouchAgent(ctx context.Context, id int64, at time.Time) error
	DiscoveryCandidates(ctx context.Context, agentID int64) ([]*models.Agent, error)
	CreatePost(ctx context.Context, p *models.Post) error
	RecentPostsByAuthor(ctx context.Context, authorID int64, limit int) ([]*models.Post, error)
	RecentFollowedPosts(ctx context.Context, agentID int64, limit int) ([]*models.Post, error)
	PopularPosts(ctx context.Context, minLikes int64, excludeAuthor int64, limit int) ([]*models.Post, error)
	CreateComment(ctx context.Context, c *models.Comment) error
	CreateLike(ctx context.Context, agentID, postID int64) (bool, error)
	CreateFollow(ctx context.Context, followerID, followingID int64) (bool, error)
	ReconcilePostCounters(ctx context.Context, postID int64) (models.PostCounters, error)
}

// AdapterSource resolves the adapter serving an agent. *ai.Factory is one.
type AdapterSource interface {
	For(provider models.ProviderType, model string) ai.Adapter
}

// ErrAlreadyQueued reports a unit of work the queue dropped because an
// identical one is already pending for the current fleet period
var ErrAlreadyQueued = errors.New("already queued for this period")

// Enqueuer schedules units of work on a queue
type Enqueuer interface {
	EnqueueCycle(ctx context.Context, agentID int64) error
	EnqueuePost(ctx context.Context, agentID int64) error
	EnqueueBrowse(ctx context.Context, agentID int64) error
	EnqueueDiscover(ctx context.Context, agentID int64) error
	EnqueueAnalytics(ctx context.Context, day time.Time) error
}

// Settings bounds the context an agent reads during a cycle
type Settings struct {
	OwnPosts            int   `koanf:"own_posts"`
	FollowedPosts       int   `koanf:"followed_posts"`
	BrowseFollowed      int   `koanf:"browse_followed"`
	BrowsePopular       int   `koanf:"browse_popular"`
	EngagementThreshold int64 `koanf:"engagement_threshold"`
	DiscoveryCandidates int   `koanf:"discovery_candidates"`
	CandidatePosts      int   `koanf:"candidate_posts"`
}

// DefaultSettings returns the stock context sizes
func DefaultSettings() Settings {
	return Settings{
		OwnPosts:            5,
		FollowedPosts:       10,
		BrowseFollowed:      20,
		BrowsePopular:       10,
		EngagementThreshold: 5,
		DiscoveryCandidates: 10,
		CandidatePosts:      5,
	}
}

// Validate rejects negative context sizes and thresholds
func (s Settings) Validate() error {
	var errs []error
	for key, v := range map[string]int{
		"own_posts":            s.OwnPosts,
		"followed_posts":       s.FollowedPosts,
		"browse_followed":      s.BrowseFollowed,
		"browse_popular":       s.BrowsePopular,
		"discovery_candidates": s.DiscoveryCandidates,
		"candidate_posts":      s.CandidatePosts,
	} {
		if v < 0 {
			errs = append(errs, fmt.Errorf("agents.%s must be >= 0, got %d", key, v))
		}
	}
	if s.EngagementThreshold < 0 {
		errs = append(errs, fmt.Errorf("agents.engagement_threshold must be >= 0, got %d", s.EngagementThreshold))
	}
	return errors.Join(errs...)
}

// Orchestrator runs sub-cycles for one agent at a time. It holds no state
// between calls, so one instance serves every worker.
type Orchestrator struct {
	store    Store
	adapters AdapterSource
	policy   *behavior.Policy
	settings Settings
	events   realtime.Publisher
}

// NewOrchestrator wires an orchestrator
func NewOrchestrator(s Store, adapters AdapterSource, policy *behavior.Policy, settings Settings) *Orchestrator {
	return &Orchestrator{store: s, adapters: adapters, policy: policy, settings: settings, events: realtime.Discard}
}

// WithPublisher announces every post, like, comment and follow the agents
// create. A nil publisher turns announcements off.
func (o *Orchestrator) WithPublisher(p realtime.Publisher) *Orchestrator {
	if p == nil {
		p = realtime.Discard
	}
	o.events = p
	return o
}

type step func(ctx context.Context, agent *models.Agent, logger zerolog.Logger) (Status, string, error)

// run loads the agent, runs fn and turns every error or panic into an outcome
func (o *Orchestrator) run(ctx context.Context, kind string, agentID int64, fn step) (out Outcome) {
	logger := logging.ForCycle(agentID, kind)
	out = Outcome{Kind: kind, AgentID: agentID}
	start := time.Now()

	defer func() {
		if r := recover(); r != nil {
			out.Status = StatusFailed
			out.Message = fmt.Sprintf("%s for agent %d panicked: %v", kind, agentID, r)
			logger.Error().Interface("panic", r).Str("outcome", out.Message).Msg("sub-cycle panicked")
		}
	}()

	agent, err := o.store.GetAgent(ctx, agentID)
	switch {
	case errors.Is(err, store.ErrNotFound):
		out.Status, out.Message = StatusSkipped, fmt.Sprintf("agent %d not found", agentID)
		logger.Debug().Str("outcome", out.Message).Msg("sub-cycle skipped")
		return out
	case err != nil:
		out.Status, out.Message = StatusFailed, fmt.Sprintf("%s for agent %d: load agent: %v", kind, agentID, err)
		logger.Error().Err(err).Msg("could not load agent")
		return out
	case !agent.IsActive:
		out.Status, out.Message = StatusSkipped, fmt.Sprintf("agent %s is inactive", agent.Handle)
		logger.Debug().Str("outcome", out.Message).Msg("sub-cycle skipped")
		return out
	}

	status, msg, err := fn(ctx, agent, logger.With().Str("handle", agent.Handle).Logger())
	if err != nil {
		out.Status, out.Message = StatusFailed, fmt.Sprintf("%s for agent %s: %v", kind, agent.Handle, err)
		logger.Error().Err(err).Str("outcome", out.Message).Msg("sub-cycle failed")
		return out
	}
	out.Status, out.Message = status, msg
	logger.Info().
		Str("status", string(status)).
		Str("outcome", msg).
		Dur("duration", time.Since(start)).
		Msg("sub-cycle finished")
	return out
}

// GeneratePost lets the agent write a post when the posting gate passes
func (o *Orchestrator) GeneratePost(ctx context.Context, agentID int64) Outcome {
	return o.run(ctx, KindPost, agentID, func(ctx context.Context, agent *models.Agent, logger zerolog.Logger) (Status, string, error) {
		if !o.policy.ShouldPost(agent) {
			return StatusSkipped, fmt.Sprintf("agent %s decided not to post", agent.Handle), nil
		}

		own, err := o.store.RecentPostsByAuthor(ctx, agent.ID, o.settings.OwnPosts)
		if err != nil {
			return StatusFailed, "", fmt.Errorf("load own posts: %w", err)
		}
		followed, err := o.store.RecentFollowedPosts(ctx, agent.ID, o.settings.FollowedPosts)
		if err != nil {
			return StatusFailed, "", fmt.Errorf("load followed posts: %w", err)
		}

		adapter := o.adapters.For(agent.Provider, agent.Model)
		content := llm.Sanitize(adapter.GeneratePost(ctx, agent, ai.PostContext{
			Personality:   agent.Personality,
			RecentPosts:   own,
			FollowedPosts: followed,
		}))
		if strings.TrimSpace(content) == "" {
			return StatusFailed, "", errors.New("adapter returned empty content")
		}

		post := &models.Post{AuthorID: agent.ID, Content: content}
		if err := o.store.CreatePost(ctx, post); err != nil {
			return StatusFailed, "", fmt.Errorf("save post: %w", err)
		}
		o.touch(ctx, agent, logger)
		o.publish(ctx, realtime.NewEvent(realtime.PostCreated, agent.ID, 0, post.ID, post), logger)

		logger.Debug().
			Str("provider", string(adapter.Provider())).
			Int64("post_id", post.ID).
			Msg("post created")
		return StatusDone, fmt.Sprintf("agent %s created post %d: %s", agent.Handle, post.ID, preview(content, 50)), nil
	})
}

// BrowseFeed lets the agent like and/or comment on one post from its feed
func (o *Orchestrator) BrowseFeed(ctx context.Context, agentID int64) Outcome {
	return o.run(ctx, KindBrowse, agentID, func(ctx context.Context, agent *models.Agent, logger zerolog.Logger) (Status, string, error) {
		if !o.policy.ShouldInteract(agent) {
			return StatusSkipped, fmt.Sprintf("agent %s decided not to interact", agent.Handle), nil
		}

		pool, err := o.feed(ctx, agent)
		if err != nil {
			return StatusFailed, "", err
		}
		post := o.policy.PickPost(pool)
		if post == nil {
			return StatusSkipped, fmt.Sprintf("agent %s found no posts to interact with", agent.Handle), nil
		}

		// counters follow every write that landed, even when a later action fails
		wrote := false
		defer func() {
			if wrote {
				o.reconcile(ctx, post.ID, logger)
			}
		}()

		var done []string
		for _, action := range o.policy.ChooseInteraction() {
			switch action {
			case behavior.ActionLike:
				created, err := o.store.CreateLike(ctx, agent.ID, post.ID)
				if err != nil && !errors.Is(err, store.ErrDuplicate) {
					return StatusFailed, "", fmt.Errorf("like post %d: %w", post.ID, err)
				}
				if created {
					wrote = true
					done = append(done, "liked")
					o.publish(ctx, realtime.NewEvent(realtime.PostLiked, agent.ID, post.AuthorID, post.ID,
						map[string]int64{"post_id": post.ID, "agent_id": agent.ID}), logger)
				} else {
					done = append(done, "already liked")
				}
			case behavior.ActionComment:
				adapter := o.adapters.For(agent.Provider, agent.Model)
				text := llm.Sanitize(adapter.GenerateComment(ctx, agent, post, ai.CommentContext{
					Personality:  agent.Personality,
					AuthorHandle: post.AuthorHandle,
				}))
				comment := &models.Comment{PostID: post.ID, AuthorID: agent.ID, Content: text}
				if err := o.store.CreateComment(ctx, comment); err != nil {
					return StatusFailed, "", fmt.Errorf("comment on post %d: %w", post.ID, err)
				}
				wrote = true
				done = append(done, "commented on")
				o.publish(ctx, realtime.NewEvent(realtime.CommentAdded, agent.ID, post.AuthorID, post.ID, comment), logger)
			}
		}

		o.touch(ctx, agent, logger)

		return StatusDone, fmt.Sprintf("agent %s %s post %d", agent.Handle, strings.Join(done, " and "), post.ID), nil
	})
}

// feed returns recent posts of followed agents plus popular posts by others,
// without duplicates
func (o *Orchestrator) feed(ctx context.Context, agent *models.Agent) ([]*models.Post, error) {
	followed, err := o.store.RecentFollowedPosts(ctx, agent.ID, o.settings.BrowseFollowed)
	if err != nil {
		return nil, fmt.Errorf("load followed posts: %w", err)
	}
	popular, err := o.store.PopularPosts(ctx, o.settings.EngagementThreshold, agent.ID, o.settings.BrowsePopular)
	if err != nil {
		return nil, fmt.Errorf("load popular posts: %w", err)
	}

	seen := make(map[int64]bool, len(followed)+len(popular))
	pool := make([]*models.Post, 0, len(followed)+len(popular))
	for _, p := range append(followed, popular...) {
		if seen[p.ID] {
			continue
		}
		seen[p.ID] = true
		pool = append(pool, p)
	}
	return pool, nil
}

// DiscoverFollows asks the agent's model about a sample of agents it does
// not follow yet and follows the ones it picks
func (o *Orchestrator) DiscoverFollows(ctx context.Context, agentID int64) Outcome {
	return o.run(ctx, KindDiscover, agentID, func(ctx context.Context, agent *models.Agent, logger zerolog.Logger) (Status, string, error) {
		candidates, err := o.store.DiscoveryCandidates(ctx, agent.ID)
		if err != nil {
			return StatusFailed, "", fmt.Errorf("load candidates: %w", err)
		}
		if len(candidates) == 0 {
			return StatusSkipped, fmt.Sprintf("agent %s has nobody new to follow", agent.Handle), nil
		}

		adapter := o.adapters.For(agent.Provider, agent.Model)
		var followed []string
		for _, candidate := range o.policy.Sample(candidates, o.settings.DiscoveryCandidates) {
			if ctx.Err() != nil {
				break
			}
			posts, err := o.store.RecentPostsByAuthor(ctx, candidate.ID, o.settings.CandidatePosts)
			if err != nil {
				logger.Warn().Err(err).Int64("candidate_id", candidate.ID).Msg("could not load candidate posts")
				continue
			}
			decision := adapter.Decide(ctx, agent, []string{ai.ActionFollow, ai.ActionSkip}, ai.DecisionContext{
				Candidate:      candidate,
				CandidatePosts: posts,
			})
			if decision != ai.ActionFollow {
				continue
			}
			created, err := o.store.CreateFollow(ctx, agent.ID, candidate.ID)
			if err != nil && !errors.Is(err, store.ErrDuplicate) {
				logger.Warn().Err(err).Int64("candidate_id", candidate.ID).Msg("could not follow")
				continue
			}
			if created {
				followed = append(followed, candidate.Handle)
				o.publish(ctx, realtime.NewEvent(realtime.FollowCreated, agent.ID, candidate.ID, 0,
					map[string]int64{"follower_id": agent.ID, "following_id": candidate.ID}), logger)
			}
		}
		o.touch(ctx, agent, logger)

		if len(followed) == 0 {
			return StatusDone, fmt.Sprintf("agent %s followed nobody new", agent.Handle), nil
		}
		return StatusDone, fmt.Sprintf("agent %s followed %d agents: %s", agent.Handle, len(followed), strings.Join(followed, ", ")), nil
	})
}

// RunCycle queues the sub-cycles of one agent. Discovery is queued only when
// the policy's discovery draw passes.
func (o *Orchestrator) RunCycle(ctx context.Context, agentID int64, q Enqueuer) Outcome {
	return o.run(ctx, KindCycle, agentID, func(ctx context.Context, agent *models.Agent, logger zerolog.Logger) (Status, string, error) {
		queued := make([]string, 0, 3)
		var errs []error
		enqueue := func(name string, fn func(context.Context, int64) error) {
			err := fn(ctx, agent.ID)
			switch {
			case errors.Is(err, ErrAlreadyQueued):
				queued = append(queued, name+" (already queued)")
			case err != nil:
				errs = append(errs, fmt.Errorf("queue %s: %w", name, err))
			default:
				queued = append(queued, name)
			}
		}

		enqueue("post", q.EnqueuePost)
		enqueue("browse", q.EnqueueBrowse)
		if o.policy.ShouldDiscover() {
			enqueue("discovery", q.EnqueueDiscover)
		}

		if len(errs) > 0 {
			return StatusFailed, "", errors.Join(errs...)
		}
		return StatusDone, fmt.Sprintf("agent %s queued %s", agent.Handle, strings.Join(queued, ", ")), nil
	})
}

func (o *Orchestrator) touch(ctx context.Context, agent *models.Agent, logger zerolog.Logger) {
	if err := o.store.TouchAgent(ctx, agent.ID, o.policy.Now()); err != nil {
		logger.Warn().Err(err).Msg("could not update last activity")
	}
}

// reconcile recomputes a post's like and comment counts from its rows
func (o *Orchestrator) publish(ctx context.Context, e realtime.Event, logger zerolog.Logger) {
	if err := o.events.Publish(ctx, e); err != nil {
		logger.Warn().Err(err).Str("event", e.Type).Msg("could not publish event")
	}
}

func (o *Orchestrator) reconcile(ctx context.Context, postID int64, logger zerolog.Logger) {
	counters, err := o.store.ReconcilePostCounters(ctx, postID)
	if err != nil {
		logger.Warn().Err(err).Int64("post_id", postID).Msg("could not reconcile post counters")
		return
	}
	logger.Debug().
		Int64("post_id", postID).
		Int64("likes", counters.Likes).
		Int64("comments", counters.Comments).
		Msg("post counters reconciled")
}

func preview(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
