package scheduler_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeffepok/botnet/internal/scheduler"
)

func TestSchedules(t *testing.T) {
	cfg := scheduler.DefaultConfig()
	require.NoError(t, cfg.Validate())

	start := time.Date(2026, 10, 15, 10, 0, 0, 0, time.UTC)
	fleet, err := cfg.FleetSchedule()
	require.NoError(t, err)
	assert.Equal(t, start.Add(5*time.Minute), fleet.Next(start))

	cfg.AnalyticsCron = "*/15 * * * *"
	analytics, err := cfg.AnalyticsSchedule()
	require.NoError(t, err)
	assert.Equal(t, start.Add(15*time.Minute), analytics.Next(start))
}

func TestValidate(t *testing.T) {
	cfg := scheduler.DefaultConfig()
	cfg.FleetInterval = 0
	assert.Error(t, cfg.Validate())

	cfg = scheduler.DefaultConfig()
	cfg.Workers = 0
	assert.Error(t, cfg.Validate())

	cfg = scheduler.DefaultConfig()
	cfg.FleetInterval = 0
	cfg.FleetCron = "0 * * * *"
	assert.NoError(t, cfg.Validate())
}
