// Package scheduler runs the fleet in-process: cron entries trigger fleet
// and analytics runs and a bounded worker pool executes the queued work.
// It backs `botnet simulate`; production uses the River queue.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/jeffepok/botnet/internal/agents"
	"github.com/jeffepok/botnet/internal/analytics"
	"github.com/jeffepok/botnet/internal/store"
)

var (
	ErrQueueFull = errors.New("scheduler queue is full")
	ErrStopped   = errors.New("scheduler is stopped")
)

type unitKind string

const (
	unitFleet     unitKind = "fleet_cycle"
	unitCycle     unitKind = agents.KindCycle
	unitPost      unitKind = agents.KindPost
	unitBrowse    unitKind = agents.KindBrowse
	unitDiscover  unitKind = agents.KindDiscover
	unitAnalytics unitKind = "analytics_pipeline"
)

type unit struct {
	kind    unitKind
	agentID int64
	day     time.Time
}

// FleetStore lists the agents a fleet cycle covers
type FleetStore interface {
	ActiveAgentIDs(ctx context.Context) ([]int64, error)
}

// Runner is an in-process Enqueuer with its own worker pool
type Runner struct {
	orch   *agents.Orchestrator
	agg    *analytics.Aggregator
	fleet  FleetStore
	cfg    Config
	logger zerolog.Logger
	now    func() time.Time

	work     chan unit
	stopped  chan struct{}
	stopOnce sync.Once
}

// NewRunner creates a runner; call Run to start it
func NewRunner(orch *agents.Orchestrator, agg *analytics.Aggregator, fleet FleetStore, cfg Config) *Runner {
	size := cfg.QueueSize
	if size <= 0 {
		size = DefaultConfig().QueueSize
	}
	return &Runner{
		orch:    orch,
		agg:     agg,
		fleet:   fleet,
		cfg:     cfg,
		logger:  log.With().Str("component", "scheduler").Logger(),
		now:     time.Now,
		work:    make(chan unit, size),
		stopped: make(chan struct{}),
	}
}

// Run schedules and executes work until ctx is cancelled, then waits for
// running units to finish
func (r *Runner) Run(ctx context.Context) error {
	fleetSchedule, err := r.cfg.FleetSchedule()
	if err != nil {
		return err
	}
	analyticsSchedule, err := r.cfg.AnalyticsSchedule()
	if err != nil {
		return err
	}
	workers := r.cfg.Workers
	if workers < 1 {
		workers = 1
	}

	c := cron.New()
	c.Schedule(fleetSchedule, cron.FuncJob(func() { r.submit(ctx, unit{kind: unitFleet}) }))
	c.Schedule(analyticsSchedule, cron.FuncJob(func() { r.submit(ctx, unit{kind: unitAnalytics, day: r.now()}) }))
	c.Start()
	defer func() { <-c.Stop().Done() }()
	defer r.stopOnce.Do(func() { close(r.stopped) })

	if r.cfg.RunOnStart {
		r.submit(ctx, unit{kind: unitFleet})
		r.submit(ctx, unit{kind: unitAnalytics, day: r.now()})
	}

	r.logger.Info().
		Int("workers", workers).
		Time("next_fleet", fleetSchedule.Next(r.now())).
		Time("next_analytics", analyticsSchedule.Next(r.now())).
		Msg("scheduler started")

	var g errgroup.Group
	g.SetLimit(workers)
	for {
		select {
		case <-ctx.Done():
			_ = g.Wait()
			r.logger.Info().Msg("scheduler stopped")
			return nil
		case u := <-r.work:
			g.Go(func() error {
				r.execute(ctx, u)
				return nil
			})
		}
	}
}

func (r *Runner) submit(ctx context.Context, u unit) {
	if err := r.enqueue(ctx, u); err != nil {
		r.logger.Warn().Err(err).Str("unit", string(u.kind)).Msg("could not queue scheduled work")
	}
}

func (r *Runner) enqueue(ctx context.Context, u unit) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	select {
	case <-r.stopped:
		return ErrStopped
	default:
	}
	select {
	case r.work <- u:
		return nil
	default:
		return fmt.Errorf("%s for agent %d: %w", u.kind, u.agentID, ErrQueueFull)
	}
}

func (r *Runner) execute(ctx context.Context, u unit) {
	defer func() {
		if p := recover(); p != nil {
			r.logger.Error().Interface("panic", p).Str("unit", string(u.kind)).Msg("unit of work panicked")
		}
	}()

	switch u.kind {
	case unitFleet:
		r.fanOut(ctx)
	case unitCycle:
		r.orch.RunCycle(ctx, u.agentID, r)
	case unitPost:
		r.orch.GeneratePost(ctx, u.agentID)
	case unitBrowse:
		r.orch.BrowseFeed(ctx, u.agentID)
	case unitDiscover:
		r.orch.DiscoverFollows(ctx, u.agentID)
	case unitAnalytics:
		if _, err := r.agg.Run(ctx, u.day); err != nil {
			r.logger.Error().Err(err).Msg("analytics pipeline finished with errors")
		}
	}
}

// fanOut queues one cycle per active agent
func (r *Runner) fanOut(ctx context.Context) {
	ids, err := r.fleet.ActiveAgentIDs(ctx)
	if err != nil {
		r.logger.Error().Err(err).Msg("could not list active agents")
		return
	}
	queued := 0
	for _, id := range ids {
		if err := r.EnqueueCycle(ctx, id); err != nil {
			r.logger.Warn().Err(err).Int64("agent_id", id).Msg("could not queue agent cycle")
			continue
		}
		queued++
	}
	r.logger.Info().Int("agents", len(ids)).Int("queued", queued).Msg("fleet cycle queued")
}

func (r *Runner) EnqueueCycle(ctx context.Context, agentID int64) error {
	return r.enqueue(ctx, unit{kind: unitCycle, agentID: agentID})
}

func (r *Runner) EnqueuePost(ctx context.Context, agentID int64) error {
	return r.enqueue(ctx, unit{kind: unitPost, agentID: agentID})
}

func (r *Runner) EnqueueBrowse(ctx context.Context, agentID int64) error {
	return r.enqueue(ctx, unit{kind: unitBrowse, agentID: agentID})
}

func (r *Runner) EnqueueDiscover(ctx context.Context, agentID int64) error {
	return r.enqueue(ctx, unit{kind: unitDiscover, agentID: agentID})
}

func (r *Runner) EnqueueAnalytics(ctx context.Context, day time.Time) error {
	return r.enqueue(ctx, unit{kind: unitAnalytics, day: store.Day(day)})
}

var _ agents.Enqueuer = (*Runner)(nil)
