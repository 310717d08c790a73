package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v2"

	"github.com/jeffepok/botnet/internal/jobqueue"
	"github.com/jeffepok/botnet/internal/realtime"
	"github.com/jeffepok/botnet/internal/store"
)

// WorkerCommand runs the agent fleet from the Postgres-backed job queue
func WorkerCommand() *cli.Command {
	return &cli.Command{
		Name:  "worker",
		Usage: "Run agent cycles and analytics from the job queue",
		Action: func(c *cli.Context) error {
			cfg, err := loadConfig(c, true)
			if err != nil {
				return err
			}

			ctx, stop := signalContext(c.Context)
			defer stop()

			pool, err := connect(ctx, cfg)
			if err != nil {
				return err
			}
			defer pool.Close()

			pg := store.NewPostgres(pool)
			svc := newServices(cfg, pg)
			svc.orchestrator.WithPublisher(realtime.NewNotifier(pool))
			jq, err := jobqueue.NewJobQueue(pool, jobqueue.Deps{
				Orchestrator: svc.orchestrator,
				Aggregator:   svc.aggregator,
				Fleet:        pg,
			}, cfg.Queue, cfg.Scheduler)
			if err != nil {
				return err
			}

			if err := jq.Start(ctx); err != nil {
				return fmt.Errorf("failed to start job queue: %w", err)
			}
			log.Info().
				Int("max_workers", cfg.Queue.MaxWorkers).
				Dur("fleet_interval", cfg.Scheduler.FleetInterval).
				Str("fleet_cron", cfg.Scheduler.FleetCron).
				Msg("worker started")

			<-ctx.Done()
			log.Info().Msg("shutting down worker")

			stopCtx, cancel := context.WithTimeout(context.Background(), cfg.Queue.JobTimeout+10*time.Second)
			defer cancel()
			return jq.Stop(stopCtx)
		},
	}
}
