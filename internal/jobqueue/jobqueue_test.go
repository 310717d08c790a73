package jobqueue

import (
	"testing"
	"time"

	"github.com/riverqueue/river"
	"github.com/robfig/cron/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeffepok/botnet/internal/agents"
	"github.com/jeffepok/botnet/internal/analytics"
)

func TestJobKindsAreDistinct(t *testing.T) {
	kinds := []river.JobArgs{
		FleetCycleArgs{},
		AgentCycleArgs{},
		GeneratePostArgs{},
		BrowseFeedArgs{},
		DiscoverFollowsArgs{},
		AnalyticsPipelineArgs{},
	}
	kinds = append(kinds, stepArgs(time.Time{})...)

	seen := map[string]bool{}
	for _, k := range kinds {
		assert.False(t, seen[k.Kind()], "duplicate kind %s", k.Kind())
		seen[k.Kind()] = true
	}
	assert.Equal(t, "agent_cycle", AgentCycleArgs{}.Kind())
}

func TestStepArgsCoverEveryStep(t *testing.T) {
	day := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	args := stepArgs(day)
	require.Len(t, args, len(analytics.Steps))

	for i, a := range args {
		step, ok := a.(analyticsStep)
		require.True(t, ok)
		assert.Equal(t, analytics.Steps[i], step.Step())
		assert.Equal(t, day, step.When())

		withOpts, ok := a.(river.JobArgsWithInsertOpts)
		require.True(t, ok)
		assert.Equal(t, QueueAnalytics, withOpts.InsertOpts().Queue)
	}
}

func TestQueueConfig(t *testing.T) {
	cfg := DefaultQueueConfig()
	require.NoError(t, cfg.Validate())

	queues := cfg.RiverQueueConfig()
	assert.Equal(t, 10, queues[QueueAgents].MaxWorkers)
	assert.Equal(t, 1, queues[QueueAnalytics].MaxWorkers)

	cfg.MaxWorkers = 0
	assert.Error(t, cfg.Validate())

	cfg = DefaultQueueConfig()
	cfg.MaxAttempts = 0
	assert.Error(t, cfg.Validate())
}

func TestAgentInsertOpts(t *testing.T) {
	cfg := DefaultQueueConfig()

	opts := agentInsertOpts(cfg, 5*time.Minute)
	assert.Equal(t, QueueAgents, opts.Queue)
	assert.Equal(t, 3, opts.MaxAttempts)
	assert.True(t, opts.UniqueOpts.ByArgs)
	assert.Equal(t, 5*time.Minute, opts.UniqueOpts.ByPeriod)

	opts = agentInsertOpts(cfg, 0)
	assert.False(t, opts.UniqueOpts.ByArgs)
	assert.Zero(t, opts.UniqueOpts.ByPeriod)
}

func TestFleetPeriod(t *testing.T) {
	assert.Equal(t, 5*time.Minute, fleetPeriod(cron.Every(5*time.Minute)))

	hourly, err := cron.ParseStandard("0 * * * *")
	require.NoError(t, err)
	assert.Equal(t, time.Hour, fleetPeriod(hourly))
}

func TestDuplicateError(t *testing.T) {
	kind := AgentCycleArgs{}.Kind()
	assert.NoError(t, duplicateError(kind, false))

	err := duplicateError(kind, true)
	assert.ErrorIs(t, err, agents.ErrAlreadyQueued)
	assert.Contains(t, err.Error(), kind)
}
