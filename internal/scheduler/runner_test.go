package scheduler_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/jeffepok/botnet/internal/agents"
	"github.com/jeffepok/botnet/internal/ai"
	"github.com/jeffepok/botnet/internal/analytics"
	"github.com/jeffepok/botnet/internal/behavior"
	"github.com/jeffepok/botnet/internal/randutil"
	"github.com/jeffepok/botnet/internal/scheduler"
	"github.com/jeffepok/botnet/internal/store"
	"github.com/jeffepok/botnet/pkg/models"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func newRunner(t *testing.T, s *store.Memory, cfg scheduler.Config) *scheduler.Runner {
	t.Helper()
	rng := randutil.New(3)
	policy := behavior.NewPolicy(rng, behavior.Config{MaxPostProbability: 1, BothActionsProbability: 0.3, DiscoveryProbability: 1})
	policy.Now = func() time.Time { return time.Now().Add(time.Hour) }
	factory := ai.NewFactory(ai.Config{}, rng)
	orch := agents.NewOrchestrator(s, factory, policy, agents.DefaultSettings())
	return scheduler.NewRunner(orch, analytics.NewAggregator(s), s, cfg)
}

func seed(t *testing.T, s *store.Memory, handles ...string) {
	t.Helper()
	for _, h := range handles {
		a := &models.Agent{Handle: h, PostingFrequency: 5, InteractionRate: 1, IsActive: true}
		models.ApplyAgentDefaults(a)
		require.NoError(t, s.CreateAgent(context.Background(), a))
	}
}

func TestRunner_RunsFleetOnStartAndStopsCleanly(t *testing.T) {
	s := store.NewMemory()
	seed(t, s, "ada", "bob", "cyd")

	cfg := scheduler.DefaultConfig()
	cfg.Workers = 2
	r := newRunner(t, s, cfg)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()

	require.Eventually(t, func() bool {
		posts, err := s.ListPosts(context.Background(), store.PostFilter{})
		return err == nil && len(posts) == 3
	}, 5*time.Second, 10*time.Millisecond)

	require.Eventually(t, func() bool {
		_, err := s.LatestPlatformMetrics(context.Background())
		return err == nil
	}, 5*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("runner did not stop")
	}

	err := r.EnqueueCycle(context.Background(), 1)
	assert.ErrorIs(t, err, scheduler.ErrStopped)
}

func TestRunner_QueueFull(t *testing.T) {
	s := store.NewMemory()
	cfg := scheduler.DefaultConfig()
	cfg.QueueSize = 1
	r := newRunner(t, s, cfg)

	require.NoError(t, r.EnqueuePost(context.Background(), 1))
	assert.ErrorIs(t, r.EnqueuePost(context.Background(), 1), scheduler.ErrQueueFull)
}

func TestRunner_InvalidSchedule(t *testing.T) {
	cfg := scheduler.DefaultConfig()
	cfg.FleetCron = "not a cron"
	r := newRunner(t, store.NewMemory(), cfg)

	assert.Error(t, r.Run(context.Background()))
}

var _ agents.Enqueuer = (*scheduler.Runner)(nil)
