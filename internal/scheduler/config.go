package scheduler

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
)

// Config holds the fleet and analytics periods. A cron expression, when
// set, takes precedence over the matching interval.
type Config struct {
	FleetInterval     time.Duration `koanf:"fleet_interval"`
	AnalyticsInterval time.Duration `koanf:"analytics_interval"`
	FleetCron         string        `koanf:"fleet_cron"`
	AnalyticsCron     string        `koanf:"analytics_cron"`
	Workers           int           `koanf:"workers"`      // in-process worker pool size
	QueueSize         int           `koanf:"queue_size"`   // in-process pending units
	RunOnStart        bool          `koanf:"run_on_start"` // run fleet and analytics once at startup
}

// DefaultConfig returns the stock periods: a fleet cycle every five minutes,
// analytics every fifteen
func DefaultConfig() Config {
	return Config{
		FleetInterval:     300 * time.Second,
		AnalyticsInterval: 900 * time.Second,
		Workers:           4,
		QueueSize:         1024,
		RunOnStart:        true,
	}
}

// FleetSchedule returns when fleet cycles fire
func (c Config) FleetSchedule() (cron.Schedule, error) {
	s, err := parseSchedule(c.FleetCron, c.FleetInterval)
	if err != nil {
		return nil, fmt.Errorf("fleet schedule: %w", err)
	}
	return s, nil
}

// AnalyticsSchedule returns when the analytics pipeline fires
func (c Config) AnalyticsSchedule() (cron.Schedule, error) {
	s, err := parseSchedule(c.AnalyticsCron, c.AnalyticsInterval)
	if err != nil {
		return nil, fmt.Errorf("analytics schedule: %w", err)
	}
	return s, nil
}

// Validate checks both schedules and the pool size
func (c Config) Validate() error {
	if _, err := c.FleetSchedule(); err != nil {
		return err
	}
	if _, err := c.AnalyticsSchedule(); err != nil {
		return err
	}
	if c.Workers < 1 {
		return fmt.Errorf("scheduler workers must be at least 1, got %d", c.Workers)
	}
	return nil
}

func parseSchedule(expr string, every time.Duration) (cron.Schedule, error) {
	if expr != "" {
		s, err := cron.ParseStandard(expr)
		if err != nil {
			return nil, fmt.Errorf("parse cron %q: %w", expr, err)
		}
		return s, nil
	}
	if every < time.Second {
		return nil, fmt.Errorf("interval %s is shorter than one second", every)
	}
	return cron.Every(every), nil
}
