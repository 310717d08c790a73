// Package analytics computes the periodic platform roll-ups: daily metrics,
// per-agent behaviour, emergent patterns and the follow-graph analysis.
package analytics

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/jeffepok/botnet/internal/store"
	"github.com/jeffepok/botnet/pkg/models"
)

// Step names, also used as job kinds
const (
	StepPlatform  = "platform_metrics"
	StepBehaviors = "agent_behaviors"
	StepPatterns  = "emergent_patterns"
	StepNetwork   = "network_analysis"
)

// Steps lists every step in pipeline order
var Steps = []string{StepPlatform, StepBehaviors, StepPatterns, StepNetwork}

// Pattern detection thresholds
const (
	ViralMinLikes          = 10
	ViralLimit             = 5
	ClusterMinRate         = 2.0
	ClusterMinAgents       = 3
	InfluencerMinFollowers = 5
	InfluencerMinRate      = 1.5
	PatternWindow          = 7 * 24 * time.Hour
	TopInfluencers         = 10
)

// Store is the persistence the aggregator reads and writes
type Store interface {
	PlatformTotals(ctx context.Context) (models.PlatformTotals, error)
	ActivityBetween(ctx context.Context, start, end time.Time) (models.ActivityCounts, error)
	ActiveAgentIDs(ctx context.Context) ([]int64, error)
	AgentActivityBetween(ctx context.Context, agentID int64, start, end time.Time) (models.ActivityCounts, error)
	AgentStats(ctx context.Context) ([]models.AgentStats, error)
	ViralPosts(ctx context.Context, since time.Time, minLikes int64, limit int) ([]*models.Post, error)
	AgentsWithEngagementSince(ctx context.Context, minRate float64, since time.Time) ([]int64, error)
	InfluencerCandidates(ctx context.Context, minFollowers int64, minRate float64) ([]int64, error)
	UpsertPlatformMetrics(ctx context.Context, m *models.PlatformMetrics) error
	UpsertAgentBehavior(ctx context.Context, b *models.AgentBehavior) error
	UpsertNetworkAnalysis(ctx context.Context, n *models.NetworkAnalysis) error
	GetOrCreatePattern(ctx context.Context, p *models.EmergentPattern) (bool, error)
}

// Aggregator runs the analytics steps against a store
type Aggregator struct {
	store  Store
	now    func() time.Time
	logger zerolog.Logger
}

// NewAggregator creates an aggregator on the wall clock
func NewAggregator(s Store) *Aggregator {
	return &Aggregator{
		store:  s,
		now:    time.Now,
		logger: log.With().Str("component", "analytics").Logger(),
	}
}

// SetClock replaces the clock used for pattern windows
func (a *Aggregator) SetClock(now func() time.Time) { a.now = now }

// StepResult reports one pipeline step
type StepResult struct {
	Step    string `json:"step"`
	Message string `json:"message"`
	Err     error  `json:"-"`
}

// Run executes every step for day. A failing step does not stop the others;
// their errors are joined.
func (a *Aggregator) Run(ctx context.Context, day time.Time) ([]StepResult, error) {
	results := make([]StepResult, 0, len(Steps))
	var errs []error
	for _, step := range Steps {
		msg, err := a.RunStep(ctx, step, day)
		results = append(results, StepResult{Step: step, Message: msg, Err: err})
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", step, err))
		}
	}
	return results, errors.Join(errs...)
}

// RunStep executes a single named step for day
func (a *Aggregator) RunStep(ctx context.Context, step string, day time.Time) (string, error) {
	start := time.Now()
	var msg string
	var err error

	switch step {
	case StepPlatform:
		var m *models.PlatformMetrics
		if m, err = a.UpdatePlatformMetrics(ctx, day); err == nil {
			msg = fmt.Sprintf("updated platform metrics for %s", m.Date.Format(time.DateOnly))
		}
	case StepBehaviors:
		var n int
		if n, err = a.UpdateAgentBehaviors(ctx, day); err == nil {
			msg = fmt.Sprintf("updated behaviour tracking for %d agents", n)
		}
	case StepPatterns:
		var created []*models.EmergentPattern
		if created, err = a.DetectPatterns(ctx); err == nil {
			msg = fmt.Sprintf("detected %d new patterns", len(created))
		}
	case StepNetwork:
		var n *models.NetworkAnalysis
		if n, err = a.AnalyzeNetwork(ctx, day); err == nil {
			msg = fmt.Sprintf("updated network analysis for %s", n.Date.Format(time.DateOnly))
		}
	default:
		return "", fmt.Errorf("unknown analytics step %q", step)
	}

	if err != nil {
		a.logger.Error().Err(err).Str("step", step).Msg("analytics step failed")
		return "", err
	}
	a.logger.Info().Str("step", step).Dur("duration", time.Since(start)).Msg(msg)
	return msg, nil
}

// UpdatePlatformMetrics snapshots the all-time totals and the activity of day
func (a *Aggregator) UpdatePlatformMetrics(ctx context.Context, day time.Time) (*models.PlatformMetrics, error) {
	start := store.Day(day)
	totals, err := a.store.PlatformTotals(ctx)
	if err != nil {
		return nil, fmt.Errorf("load totals: %w", err)
	}
	activity, err := a.store.ActivityBetween(ctx, start, start.Add(24*time.Hour))
	if err != nil {
		return nil, fmt.Errorf("load activity: %w", err)
	}

	m := &models.PlatformMetrics{
		Date:                start,
		TotalAgents:         totals.Agents,
		ActiveAgents:        totals.ActiveAgents,
		TotalPosts:          totals.Posts,
		TotalLikes:          totals.Likes,
		TotalComments:       totals.Comments,
		TotalFollows:        totals.Follows,
		PostsCreatedToday:   activity.Posts,
		LikesGivenToday:     activity.Likes,
		CommentsMadeToday:   activity.Comments,
		FollowsCreatedToday: activity.Follows,
	}
	if err := a.store.UpsertPlatformMetrics(ctx, m); err != nil {
		return nil, fmt.Errorf("save platform metrics: %w", err)
	}
	return m, nil
}

// UpdateAgentBehaviors writes the day's behaviour row of every active agent
// and returns how many were written
func (a *Aggregator) UpdateAgentBehaviors(ctx context.Context, day time.Time) (int, error) {
	start := store.Day(day)
	ids, err := a.store.ActiveAgentIDs(ctx)
	if err != nil {
		return 0, fmt.Errorf("load active agents: %w", err)
	}

	written := 0
	var errs []error
	for _, id := range ids {
		c, err := a.store.AgentActivityBetween(ctx, id, start, start.Add(24*time.Hour))
		if err != nil {
			errs = append(errs, fmt.Errorf("agent %d: %w", id, err))
			continue
		}
		b := &models.AgentBehavior{
			AgentID:         id,
			Date:            start,
			PostsCreated:    c.Posts,
			LikesGiven:      c.Likes,
			CommentsMade:    c.Comments,
			FollowsCreated:  c.Follows,
			FollowersGained: c.FollowersGained,
			EngagementRate:  EngagementRate(c.Likes, c.Comments, c.Posts),
		}
		if err := a.store.UpsertAgentBehavior(ctx, b); err != nil {
			errs = append(errs, fmt.Errorf("agent %d: %w", id, err))
			continue
		}
		written++
	}
	return written, errors.Join(errs...)
}

// EngagementRate is (likes + comments) per post, 0 without posts
func EngagementRate(likes, comments, posts int64) float64 {
	if posts <= 0 {
		return 0
	}
	return float64(likes+comments) / float64(posts)
}

// DetectPatterns looks for viral content, high-engagement clusters and
// emerging influencers. Patterns are keyed by type and title; an existing
// pattern is left as it is. Returns the patterns created by this call.
func (a *Aggregator) DetectPatterns(ctx context.Context) ([]*models.EmergentPattern, error) {
	now := a.now()
	since := store.Day(now).Add(-PatternWindow)
	var created []*models.EmergentPattern

	viral, err := a.store.ViralPosts(ctx, since, ViralMinLikes, ViralLimit)
	if err != nil {
		return nil, fmt.Errorf("load viral posts: %w", err)
	}
	if len(viral) > 0 {
		postIDs := make([]int64, 0, len(viral))
		var authors []int64
		seen := make(map[int64]bool)
		for _, p := range viral {
			postIDs = append(postIDs, p.ID)
			if !seen[p.AuthorID] {
				seen[p.AuthorID] = true
				authors = append(authors, p.AuthorID)
			}
		}
		p, err := a.getOrCreate(ctx, now, models.PatternViralContent, "Viral Content Detection",
			"High-engagement content detected", 0.8, authors, postIDs)
		if err != nil {
			return nil, err
		}
		if p != nil {
			created = append(created, p)
		}
	}

	cluster, err := a.store.AgentsWithEngagementSince(ctx, ClusterMinRate, since)
	if err != nil {
		return nil, fmt.Errorf("load engaged agents: %w", err)
	}
	if len(cluster) >= ClusterMinAgents {
		p, err := a.getOrCreate(ctx, now, models.PatternEchoChamber, "High Engagement Cluster",
			"Group of agents with high engagement patterns", 0.6, cluster, nil)
		if err != nil {
			return nil, err
		}
		if p != nil {
			created = append(created, p)
		}
	}

	influencers, err := a.store.InfluencerCandidates(ctx, InfluencerMinFollowers, InfluencerMinRate)
	if err != nil {
		return nil, fmt.Errorf("load influencers: %w", err)
	}
	if len(influencers) > 0 {
		p, err := a.getOrCreate(ctx, now, models.PatternInfluencerEmergence, "Influencer Emergence",
			"Agents with high follower counts and engagement", 0.7, influencers, nil)
		if err != nil {
			return nil, err
		}
		if p != nil {
			created = append(created, p)
		}
	}

	return created, nil
}

// getOrCreate returns the pattern when this call created it, nil when it
// already existed
func (a *Aggregator) getOrCreate(ctx context.Context, now time.Time, kind models.PatternType, title, description string,
	confidence float64, agents, posts []int64) (*models.EmergentPattern, error) {
	p := &models.EmergentPattern{
		Type:            kind,
		Title:           title,
		Description:     description,
		ConfidenceScore: confidence,
		AffectedAgents:  agents,
		RelatedPosts:    posts,
		StartDate:       now,
		IsActive:        true,
		Metadata:        map[string]interface{}{},
	}
	created, err := a.store.GetOrCreatePattern(ctx, p)
	if err != nil {
		return nil, fmt.Errorf("save %s pattern: %w", kind, err)
	}
	if !created {
		return nil, nil
	}
	a.logger.Info().Str("pattern", string(kind)).Int("agents", len(agents)).Msg("new pattern detected")
	return p, nil
}

// AnalyzeNetwork computes the follow-graph roll-up of day
func (a *Aggregator) AnalyzeNetwork(ctx context.Context, day time.Time) (*models.NetworkAnalysis, error) {
	stats, err := a.store.AgentStats(ctx)
	if err != nil {
		return nil, fmt.Errorf("load agent stats: %w", err)
	}
	totals, err := a.store.PlatformTotals(ctx)
	if err != nil {
		return nil, fmt.Errorf("load totals: %w", err)
	}

	n := BuildNetwork(stats, totals.Follows)
	n.Date = store.Day(day)
	if err := a.store.UpsertNetworkAnalysis(ctx, n); err != nil {
		return nil, fmt.Errorf("save network analysis: %w", err)
	}
	return n, nil
}

// BuildNetwork derives the graph metrics from active agent stats and the
// number of follow edges
func BuildNetwork(stats []models.AgentStats, edges int64) *models.NetworkAnalysis {
	nodes := int64(len(stats))
	n := &models.NetworkAnalysis{
		TotalNodes:        nodes,
		TotalEdges:        edges,
		InfluentialAgents: []models.InfluenceScore{},
		Communities:       map[string][]int64{},
	}
	if nodes > 0 {
		n.AverageDegree = float64(2*edges) / float64(nodes)
	}
	if nodes > 1 {
		n.Density = float64(2*edges) / float64(nodes*(nodes-1))
	}

	scores := make([]models.InfluenceScore, 0, len(stats))
	for _, s := range stats {
		scores = append(scores, models.InfluenceScore{
			AgentID:        s.AgentID,
			Handle:         s.Handle,
			InfluenceScore: InfluenceScore(s),
		})
		if s.PostCount > 0 {
			community := Community(float64(s.LikesGiven) / float64(s.PostCount))
			n.Communities[community] = append(n.Communities[community], s.AgentID)
		}
	}
	sort.SliceStable(scores, func(i, j int) bool {
		return scores[i].InfluenceScore > scores[j].InfluenceScore
	})
	if len(scores) > TopInfluencers {
		scores = scores[:TopInfluencers]
	}
	n.InfluentialAgents = scores
	return n
}

// InfluenceScore weighs followers, posts and likes given
func InfluenceScore(s models.AgentStats) float64 {
	return 0.6*float64(s.FollowerCount) + 0.2*float64(s.PostCount) + 0.2*float64(s.LikesGiven)
}

// Community buckets an agent by likes given per post
func Community(likesPerPost float64) string {
	switch {
	case likesPerPost > 2.0:
		return "high_engagement"
	case likesPerPost > 1.0:
		return "medium_engagement"
	default:
		return "low_engagement"
	}
}
