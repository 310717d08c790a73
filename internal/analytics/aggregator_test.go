package analytics_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeffepok/botnet/internal/analytics"
	"github.com/jeffepok/botnet/internal/store"
	"github.com/jeffepok/botnet/pkg/models"
)

var today = time.Date(2026, 10, 15, 0, 0, 0, 0, time.UTC)

type world struct {
	t     *testing.T
	store *store.Memory
	agg   *analytics.Aggregator
}

func newWorld(t *testing.T) *world {
	s := store.NewMemory()
	s.SetClock(func() time.Time { return today.Add(9 * time.Hour) })
	agg := analytics.NewAggregator(s)
	agg.SetClock(func() time.Time { return today.Add(12 * time.Hour) })
	return &world{t: t, store: s, agg: agg}
}

func (w *world) agent(handle string) *models.Agent {
	a := &models.Agent{Handle: handle, PostingFrequency: 1, InteractionRate: 0.5, IsActive: true}
	models.ApplyAgentDefaults(a)
	require.NoError(w.t, w.store.CreateAgent(context.Background(), a))
	return a
}

func (w *world) post(author int64) *models.Post {
	p := &models.Post{AuthorID: author, Content: "content"}
	require.NoError(w.t, w.store.CreatePost(context.Background(), p))
	return p
}

func (w *world) like(agent, post int64) {
	_, err := w.store.CreateLike(context.Background(), agent, post)
	require.NoError(w.t, err)
	_, err = w.store.ReconcilePostCounters(context.Background(), post)
	require.NoError(w.t, err)
}

func (w *world) follow(from, to int64) {
	_, err := w.store.CreateFollow(context.Background(), from, to)
	require.NoError(w.t, err)
}

func TestBuildNetwork_DensityGuard(t *testing.T) {
	n := analytics.BuildNetwork(nil, 0)
	assert.Zero(t, n.AverageDegree)
	assert.Zero(t, n.Density)
	assert.Empty(t, n.InfluentialAgents)

	n = analytics.BuildNetwork([]models.AgentStats{{AgentID: 1, Handle: "solo"}}, 0)
	assert.Zero(t, n.Density)
	assert.Equal(t, int64(1), n.TotalNodes)
}

func TestBuildNetwork(t *testing.T) {
	stats := []models.AgentStats{
		{AgentID: 1, Handle: "a", FollowerCount: 2, PostCount: 1, LikesGiven: 3},
		{AgentID: 2, Handle: "b", FollowerCount: 1, PostCount: 2, LikesGiven: 3},
		{AgentID: 3, Handle: "c", FollowerCount: 0, PostCount: 0, LikesGiven: 1},
		{AgentID: 4, Handle: "d", FollowerCount: 0, PostCount: 4, LikesGiven: 1},
	}
	n := analytics.BuildNetwork(stats, 3)

	assert.InDelta(t, 1.5, n.AverageDegree, 1e-9)
	assert.InDelta(t, 0.5, n.Density, 1e-9)

	want := []models.InfluenceScore{
		{AgentID: 1, Handle: "a", InfluenceScore: 2.0},
		{AgentID: 2, Handle: "b", InfluenceScore: 1.6},
		{AgentID: 4, Handle: "d", InfluenceScore: 1.0},
		{AgentID: 3, Handle: "c", InfluenceScore: 0.2},
	}
	assert.Empty(t, cmp.Diff(want, n.InfluentialAgents, cmp.Comparer(func(x, y float64) bool {
		return x-y < 1e-9 && y-x < 1e-9
	})))

	assert.Equal(t, map[string][]int64{
		"high_engagement":   {1},
		"medium_engagement": {2},
		"low_engagement":    {4},
	}, n.Communities)
}

func TestBuildNetwork_TopTen(t *testing.T) {
	stats := make([]models.AgentStats, 15)
	for i := range stats {
		stats[i] = models.AgentStats{AgentID: int64(i + 1), FollowerCount: int64(i)}
	}
	n := analytics.BuildNetwork(stats, 0)
	require.Len(t, n.InfluentialAgents, 10)
	assert.Equal(t, int64(15), n.InfluentialAgents[0].AgentID)
}

func TestEngagementRate(t *testing.T) {
	assert.Zero(t, analytics.EngagementRate(5, 5, 0))
	assert.InDelta(t, 2.5, analytics.EngagementRate(3, 2, 2), 1e-9)
}

func TestUpdatePlatformMetricsAndBehaviors(t *testing.T) {
	ctx := context.Background()
	w := newWorld(t)
	a := w.agent("a")
	b := w.agent("b")
	p := w.post(a.ID)
	w.like(b.ID, p.ID)
	w.follow(b.ID, a.ID)
	require.NoError(t, w.store.CreateComment(ctx, &models.Comment{PostID: p.ID, AuthorID: b.ID, Content: "hi"}))

	m, err := w.agg.UpdatePlatformMetrics(ctx, today.Add(15*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, today, m.Date)
	assert.Equal(t, int64(2), m.TotalAgents)
	assert.Equal(t, int64(1), m.PostsCreatedToday)
	assert.Equal(t, int64(1), m.LikesGivenToday)
	assert.Equal(t, int64(1), m.CommentsMadeToday)
	assert.Equal(t, int64(1), m.FollowsCreatedToday)

	n, err := w.agg.UpdateAgentBehaviors(ctx, today)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	latest, err := w.store.LatestPlatformMetrics(ctx)
	require.NoError(t, err)
	assert.Equal(t, m.TotalPosts, latest.TotalPosts)
}

func TestDetectPatterns(t *testing.T) {
	ctx := context.Background()
	w := newWorld(t)

	star := w.agent("star")
	fans := make([]*models.Agent, 10)
	for i := range fans {
		fans[i] = w.agent(fmt.Sprintf("fan%d", i))
	}
	viral := w.post(star.ID)
	for _, f := range fans {
		w.like(f.ID, viral.ID)
	}

	created, err := w.agg.DetectPatterns(ctx)
	require.NoError(t, err)
	require.Len(t, created, 1)
	assert.Equal(t, models.PatternViralContent, created[0].Type)
	assert.Equal(t, []int64{viral.ID}, created[0].RelatedPosts)
	assert.Equal(t, []int64{star.ID}, created[0].AffectedAgents)

	again, err := w.agg.DetectPatterns(ctx)
	require.NoError(t, err)
	assert.Empty(t, again, "existing patterns are not recreated")

	patterns, err := w.store.ListPatterns(ctx, true)
	require.NoError(t, err)
	assert.Len(t, patterns, 1)
}

func TestDetectPatterns_ClusterAndInfluencer(t *testing.T) {
	ctx := context.Background()
	w := newWorld(t)

	agents := make([]*models.Agent, 6)
	for i := range agents {
		agents[i] = w.agent(fmt.Sprintf("agent%d", i))
	}
	for _, a := range agents[1:] {
		w.follow(a.ID, agents[0].ID)
	}
	for _, a := range agents[:3] {
		require.NoError(t, w.store.UpsertAgentBehavior(ctx, &models.AgentBehavior{
			AgentID: a.ID, Date: today.Add(-24 * time.Hour), EngagementRate: 2.5,
		}))
	}

	created, err := w.agg.DetectPatterns(ctx)
	require.NoError(t, err)
	require.Len(t, created, 2)

	assert.Equal(t, models.PatternEchoChamber, created[0].Type)
	assert.Len(t, created[0].AffectedAgents, 3)
	assert.Equal(t, models.PatternInfluencerEmergence, created[1].Type)
	assert.Equal(t, []int64{agents[0].ID}, created[1].AffectedAgents)
}

func TestRun_ReportsEveryStep(t *testing.T) {
	w := newWorld(t)
	a := w.agent("a")
	b := w.agent("b")
	w.follow(a.ID, b.ID)

	results, err := w.agg.Run(context.Background(), today)
	require.NoError(t, err)
	require.Len(t, results, len(analytics.Steps))
	for i, r := range results {
		assert.Equal(t, analytics.Steps[i], r.Step)
		assert.NoError(t, r.Err)
	}

	n, err := w.store.LatestNetworkAnalysis(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(2), n.TotalNodes)
	assert.Equal(t, int64(1), n.TotalEdges)
	assert.InDelta(t, 1.0, n.Density, 1e-9)
}

func TestRunStep_Unknown(t *testing.T) {
	w := newWorld(t)
	_, err := w.agg.RunStep(context.Background(), "nope", today)
	assert.Error(t, err)
}
