/*
Package jobqueue configuration - tunable parameters for the River job queue.

## Quick Configuration Reference:

### Throughput:
- MaxWorkers bounds concurrent agent sub-cycles per worker process
- AnalyticsWorkers bounds concurrent analytics steps (they scan whole tables)

### Reliability:
- MaxAttempts caps River retries of a unit of work; sub-cycles absorb their
  own errors, so retries mostly cover crashes and lost connections
- JobTimeout must exceed the slowest provider timeout plus retries

### Periods:
- Fleet and analytics periods come from the scheduler section; periodic jobs
  are registered from it when the client starts
*/
package jobqueue

import (
	"fmt"
	"time"

	"github.com/riverqueue/river"
)

// Queue names
const (
	QueueAgents    = river.QueueDefault
	QueueAnalytics = "analytics"
)

// QueueConfig holds all configurable parameters for the job queue
type QueueConfig struct {
	MaxWorkers       int           `koanf:"max_workers"`       // concurrent agent jobs (default: 10)
	AnalyticsWorkers int           `koanf:"analytics_workers"` // concurrent analytics jobs (default: 1)
	MaxAttempts      int           `koanf:"max_attempts"`      // attempts per job before it is discarded (default: 3)
	JobTimeout       time.Duration `koanf:"job_timeout"`       // maximum time a single job can run (default: 2 minutes)
}

// DefaultQueueConfig returns the default configuration
func DefaultQueueConfig() QueueConfig {
	return QueueConfig{
		MaxWorkers:       10,
		AnalyticsWorkers: 1,
		MaxAttempts:      3,
		JobTimeout:       2 * time.Minute,
	}
}

// Validate checks the queue bounds
func (c QueueConfig) Validate() error {
	if c.MaxWorkers < 1 {
		return fmt.Errorf("queue max_workers must be at least 1, got %d", c.MaxWorkers)
	}
	if c.AnalyticsWorkers < 1 {
		return fmt.Errorf("queue analytics_workers must be at least 1, got %d", c.AnalyticsWorkers)
	}
	if c.MaxAttempts < 1 {
		return fmt.Errorf("queue max_attempts must be at least 1, got %d", c.MaxAttempts)
	}
	return nil
}

// RiverQueueConfig converts our config to River's queue configuration format
func (c QueueConfig) RiverQueueConfig() map[string]river.QueueConfig {
	return map[string]river.QueueConfig{
		QueueAgents:    {MaxWorkers: c.MaxWorkers},
		QueueAnalytics: {MaxWorkers: c.AnalyticsWorkers},
	}
}
