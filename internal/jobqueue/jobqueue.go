/*
Package jobqueue runs the agent fleet on a River job queue backed by Postgres.

Every unit of work is a job: the periodic fleet job fans out one agent cycle
per active agent, each cycle queues its sub-cycles, and the periodic
analytics job queues the four analytics steps. Delivery is at-least-once with
no ordering across agents.

For configuration options and tuning parameters, see queue_config.go.
*/
package jobqueue

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/riverqueue/river"
	"github.com/riverqueue/river/riverdriver/riverpgxv5"
	"github.com/riverqueue/river/rivermigrate"
	"github.com/rs/zerolog/log"

	"github.com/jeffepok/botnet/internal/agents"
	"github.com/jeffepok/botnet/internal/analytics"
	"github.com/jeffepok/botnet/internal/scheduler"
	"github.com/jeffepok/botnet/internal/store"
)

// FleetStore lists the agents a fleet cycle covers
type FleetStore interface {
	ActiveAgentIDs(ctx context.Context) ([]int64, error)
}

// FleetCycleWorker fans out agent cycles
type FleetCycleWorker struct {
	river.WorkerDefaults[FleetCycleArgs]
	fleet  FleetStore
	period time.Duration
	config QueueConfig
}

// Work inserts one agent cycle per active agent. Cycles are unique by agent
// within the fleet period so an overlapping fan-out adds nothing.
func (w *FleetCycleWorker) Work(ctx context.Context, job *river.Job[FleetCycleArgs]) error {
	ids, err := w.fleet.ActiveAgentIDs(ctx)
	if err != nil {
		return fmt.Errorf("failed to list active agents: %w", err)
	}
	if len(ids) == 0 {
		log.Info().Msg("fleet cycle: no active agents")
		return nil
	}

	opts := agentInsertOpts(w.config, w.period)
	params := make([]river.InsertManyParams, 0, len(ids))
	for _, id := range ids {
		params = append(params, river.InsertManyParams{Args: AgentCycleArgs{AgentID: id}, InsertOpts: opts})
	}

	client := river.ClientFromContext[pgx.Tx](ctx)
	results, err := client.InsertMany(ctx, params)
	if err != nil {
		return fmt.Errorf("failed to queue agent cycles: %w", err)
	}
	skipped := 0
	for _, r := range results {
		if r.UniqueSkippedAsDuplicate {
			skipped++
		}
	}
	log.Info().
		Int64("job_id", job.ID).
		Int("agents", len(ids)).
		Int("duplicates", skipped).
		Msg("fleet cycle queued")
	return nil
}

// AgentCycleWorker runs an agent's decision cycle
type AgentCycleWorker struct {
	river.WorkerDefaults[AgentCycleArgs]
	orch   *agents.Orchestrator
	period time.Duration
	config QueueConfig
}

func (w *AgentCycleWorker) Work(ctx context.Context, job *river.Job[AgentCycleArgs]) error {
	q := &Enqueuer{client: river.ClientFromContext[pgx.Tx](ctx), period: w.period, config: w.config}
	w.orch.RunCycle(ctx, job.Args.AgentID, q)
	return nil
}

func (w *AgentCycleWorker) Timeout(*river.Job[AgentCycleArgs]) time.Duration { return w.config.JobTimeout }

// GeneratePostWorker runs the post sub-cycle
type GeneratePostWorker struct {
	river.WorkerDefaults[GeneratePostArgs]
	orch   *agents.Orchestrator
	config QueueConfig
}

func (w *GeneratePostWorker) Work(ctx context.Context, job *river.Job[GeneratePostArgs]) error {
	w.orch.GeneratePost(ctx, job.Args.AgentID)
	return nil
}

func (w *GeneratePostWorker) Timeout(*river.Job[GeneratePostArgs]) time.Duration {
	return w.config.JobTimeout
}

// BrowseFeedWorker runs the interact sub-cycle
type BrowseFeedWorker struct {
	river.WorkerDefaults[BrowseFeedArgs]
	orch   *agents.Orchestrator
	config QueueConfig
}

func (w *BrowseFeedWorker) Work(ctx context.Context, job *river.Job[BrowseFeedArgs]) error {
	w.orch.BrowseFeed(ctx, job.Args.AgentID)
	return nil
}

func (w *BrowseFeedWorker) Timeout(*river.Job[BrowseFeedArgs]) time.Duration {
	return w.config.JobTimeout
}

// DiscoverFollowsWorker runs the follow-discovery sub-cycle
type DiscoverFollowsWorker struct {
	river.WorkerDefaults[DiscoverFollowsArgs]
	orch   *agents.Orchestrator
	config QueueConfig
}

func (w *DiscoverFollowsWorker) Work(ctx context.Context, job *river.Job[DiscoverFollowsArgs]) error {
	w.orch.DiscoverFollows(ctx, job.Args.AgentID)
	return nil
}

func (w *DiscoverFollowsWorker) Timeout(*river.Job[DiscoverFollowsArgs]) time.Duration {
	return w.config.JobTimeout
}

// AnalyticsPipelineWorker queues the analytics steps
type AnalyticsPipelineWorker struct {
	river.WorkerDefaults[AnalyticsPipelineArgs]
}

func (w *AnalyticsPipelineWorker) Work(ctx context.Context, job *river.Job[AnalyticsPipelineArgs]) error {
	day := store.Day(job.Args.Day)
	params := make([]river.InsertManyParams, 0, len(analytics.Steps))
	for _, args := range stepArgs(day) {
		params = append(params, river.InsertManyParams{Args: args})
	}
	if _, err := river.ClientFromContext[pgx.Tx](ctx).InsertMany(ctx, params); err != nil {
		return fmt.Errorf("failed to queue analytics steps: %w", err)
	}
	log.Info().Str("day", day.Format(time.DateOnly)).Msg("analytics pipeline queued")
	return nil
}

// AnalyticsStepWorker runs one analytics step. Step errors are returned so
// River retries them.
type AnalyticsStepWorker[T analyticsStep] struct {
	river.WorkerDefaults[T]
	agg *analytics.Aggregator
}

func (w *AnalyticsStepWorker[T]) Work(ctx context.Context, job *river.Job[T]) error {
	_, err := w.agg.RunStep(ctx, job.Args.Step(), job.Args.When())
	return err
}

// JobQueue manages the River job queue
type JobQueue struct {
	client   *river.Client[pgx.Tx]
	pool     *pgxpool.Pool
	config   QueueConfig
	enqueuer *Enqueuer
}

// Deps are the services the workers run
type Deps struct {
	Orchestrator *agents.Orchestrator
	Aggregator   *analytics.Aggregator
	Fleet        FleetStore
}

// NewJobQueue creates a worker-mode queue with the periodic fleet and
// analytics jobs registered from sched
func NewJobQueue(pool *pgxpool.Pool, deps Deps, config QueueConfig, sched scheduler.Config) (*JobQueue, error) {
	fleetSchedule, err := sched.FleetSchedule()
	if err != nil {
		return nil, err
	}
	analyticsSchedule, err := sched.AnalyticsSchedule()
	if err != nil {
		return nil, err
	}
	period := fleetPeriod(fleetSchedule)

	workers := river.NewWorkers()
	river.AddWorker(workers, &FleetCycleWorker{fleet: deps.Fleet, period: period, config: config})
	river.AddWorker(workers, &AgentCycleWorker{orch: deps.Orchestrator, period: period, config: config})
	river.AddWorker(workers, &GeneratePostWorker{orch: deps.Orchestrator, config: config})
	river.AddWorker(workers, &BrowseFeedWorker{orch: deps.Orchestrator, config: config})
	river.AddWorker(workers, &DiscoverFollowsWorker{orch: deps.Orchestrator, config: config})
	river.AddWorker(workers, &AnalyticsPipelineWorker{})
	river.AddWorker(workers, &AnalyticsStepWorker[PlatformMetricsArgs]{agg: deps.Aggregator})
	river.AddWorker(workers, &AnalyticsStepWorker[AgentBehaviorsArgs]{agg: deps.Aggregator})
	river.AddWorker(workers, &AnalyticsStepWorker[EmergentPatternsArgs]{agg: deps.Aggregator})
	river.AddWorker(workers, &AnalyticsStepWorker[NetworkAnalysisArgs]{agg: deps.Aggregator})

	periodic := []*river.PeriodicJob{
		river.NewPeriodicJob(fleetSchedule, func() (river.JobArgs, *river.InsertOpts) {
			return FleetCycleArgs{}, nil
		}, &river.PeriodicJobOpts{RunOnStart: sched.RunOnStart}),
		river.NewPeriodicJob(analyticsSchedule, func() (river.JobArgs, *river.InsertOpts) {
			return AnalyticsPipelineArgs{Day: store.Day(time.Now())}, nil
		}, &river.PeriodicJobOpts{RunOnStart: sched.RunOnStart}),
	}

	client, err := river.NewClient(riverpgxv5.New(pool), &river.Config{
		Queues:       config.RiverQueueConfig(),
		Workers:      workers,
		PeriodicJobs: periodic,
		MaxAttempts:  config.MaxAttempts,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create River client: %w", err)
	}

	return &JobQueue{
		client:   client,
		pool:     pool,
		config:   config,
		enqueuer: &Enqueuer{client: client, period: period, config: config},
	}, nil
}

// NewInsertOnly creates a client that can queue work but runs no workers,
// for the API process
func NewInsertOnly(pool *pgxpool.Pool, config QueueConfig, sched scheduler.Config) (*Enqueuer, error) {
	fleetSchedule, err := sched.FleetSchedule()
	if err != nil {
		return nil, err
	}
	client, err := river.NewClient(riverpgxv5.New(pool), &river.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to create River client: %w", err)
	}
	return &Enqueuer{client: client, period: fleetPeriod(fleetSchedule), config: config}, nil
}

// Start starts the job queue workers
func (jq *JobQueue) Start(ctx context.Context) error {
	return jq.client.Start(ctx)
}

// Stop stops the job queue workers, letting running jobs finish
func (jq *JobQueue) Stop(ctx context.Context) error {
	return jq.client.Stop(ctx)
}

// Enqueuer returns the queue's Enqueuer
func (jq *JobQueue) Enqueuer() *Enqueuer { return jq.enqueuer }

// Migrate applies River's own schema migrations
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	migrator, err := rivermigrate.New(riverpgxv5.New(pool), nil)
	if err != nil {
		return fmt.Errorf("failed to create River migrator: %w", err)
	}
	res, err := migrator.Migrate(ctx, rivermigrate.DirectionUp, nil)
	if err != nil {
		return fmt.Errorf("failed to migrate River schema: %w", err)
	}
	for _, v := range res.Versions {
		log.Info().Int("version", v.Version).Msg("applied River migration")
	}
	return nil
}

// Enqueuer inserts units of work through a River client
type Enqueuer struct {
	client *river.Client[pgx.Tx]
	period time.Duration
	config QueueConfig
}

func (e *Enqueuer) insert(ctx context.Context, args river.JobArgs, opts *river.InsertOpts) error {
	res, err := e.client.Insert(ctx, args, opts)
	if err != nil {
		return fmt.Errorf("failed to queue %s job: %w", args.Kind(), err)
	}
	return duplicateError(args.Kind(), res.UniqueSkippedAsDuplicate)
}

// duplicateError turns a unique-skipped insert into agents.ErrAlreadyQueued
func duplicateError(kind string, skipped bool) error {
	if !skipped {
		return nil
	}
	return fmt.Errorf("%s job: %w", kind, agents.ErrAlreadyQueued)
}

func (e *Enqueuer) EnqueueCycle(ctx context.Context, agentID int64) error {
	return e.insert(ctx, AgentCycleArgs{AgentID: agentID}, agentInsertOpts(e.config, e.period))
}

func (e *Enqueuer) EnqueuePost(ctx context.Context, agentID int64) error {
	return e.insert(ctx, GeneratePostArgs{AgentID: agentID}, agentInsertOpts(e.config, e.period))
}

func (e *Enqueuer) EnqueueBrowse(ctx context.Context, agentID int64) error {
	return e.insert(ctx, BrowseFeedArgs{AgentID: agentID}, agentInsertOpts(e.config, e.period))
}

func (e *Enqueuer) EnqueueDiscover(ctx context.Context, agentID int64) error {
	return e.insert(ctx, DiscoverFollowsArgs{AgentID: agentID}, agentInsertOpts(e.config, e.period))
}

func (e *Enqueuer) EnqueueAnalytics(ctx context.Context, day time.Time) error {
	return e.insert(ctx, AnalyticsPipelineArgs{Day: store.Day(day)}, nil)
}

var _ agents.Enqueuer = (*Enqueuer)(nil)

// agentInsertOpts makes agent jobs unique by args within the fleet period
func agentInsertOpts(config QueueConfig, period time.Duration) *river.InsertOpts {
	opts := &river.InsertOpts{Queue: QueueAgents, MaxAttempts: config.MaxAttempts}
	if period > 0 {
		opts.UniqueOpts = river.UniqueOpts{ByArgs: true, ByPeriod: period}
	}
	return opts
}

// fleetPeriod estimates the gap between two fleet runs
func fleetPeriod(s river.PeriodicSchedule) time.Duration {
	first := s.Next(time.Now())
	return s.Next(first).Sub(first)
}
