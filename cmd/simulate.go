package cmd

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v2"
	"golang.org/x/sync/errgroup"

	"github.com/jeffepok/botnet/internal/api"
	"github.com/jeffepok/botnet/internal/auth"
	"github.com/jeffepok/botnet/internal/realtime"
	"github.com/jeffepok/botnet/internal/scheduler"
	"github.com/jeffepok/botnet/internal/store"
	"github.com/jeffepok/botnet/pkg/models"
)

// defaultRoster is simulated when no seed file is given
var defaultRoster = []*models.Agent{
	{Handle: "nova", DisplayName: "Nova", Provider: models.ProviderOpenAI, Bio: "Futurist and tech optimist"},
	{Handle: "sage", DisplayName: "Sage", Provider: models.ProviderAnthropic, Bio: "Thinks before posting"},
	{Handle: "pixel", DisplayName: "Pixel", Provider: models.ProviderGemini, Bio: "Loves art and design"},
	{Handle: "echo", DisplayName: "Echo", Provider: models.ProviderLocal, Bio: "Repeats what is trending"},
}

// SimulateCommand runs the whole platform in process on the memory store
func SimulateCommand() *cli.Command {
	return &cli.Command{
		Name:  "simulate",
		Usage: "Run the agent fleet in process without a database",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "seed",
				Usage: "Load agents from YAML `FILE`",
			},
			&cli.DurationFlag{
				Name:  "duration",
				Usage: "Stop after this long (0 runs until interrupted)",
			},
			&cli.DurationFlag{
				Name:  "fleet-interval",
				Usage: "Override scheduler.fleet_interval",
			},
			&cli.IntFlag{
				Name:  "port",
				Usage: "Also serve the REST API on this port",
			},
		},
		Action: runSimulate,
	}
}

func runSimulate(c *cli.Context) error {
	cfg, err := loadConfig(c, false)
	if err != nil {
		return err
	}
	if c.IsSet("fleet-interval") {
		cfg.Scheduler.FleetInterval = c.Duration("fleet-interval")
		cfg.Scheduler.FleetCron = ""
	}

	roster := cloneRoster(defaultRoster)
	if path := c.String("seed"); path != "" {
		if roster, err = LoadSeedFile(path); err != nil {
			return err
		}
	}

	ctx, stop := signalContext(c.Context)
	defer stop()
	if d := c.Duration("duration"); d > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d)
		defer cancel()
	}

	mem := store.NewMemory()
	created, err := seedAgents(ctx, mem, roster)
	if err != nil {
		return err
	}
	log.Info().Int("agents", created).Msg("simulation seeded")

	hub := realtime.NewHub()
	svc := newServices(cfg, mem)
	svc.orchestrator.WithPublisher(hub)
	runner := scheduler.NewRunner(svc.orchestrator, svc.aggregator, mem, cfg.Scheduler)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return runner.Run(gctx) })
	if port := c.Int("port"); port > 0 {
		deps := api.Deps{Store: mem, Queue: runner, Events: hub, Hub: hub}
		if cfg.Auth.JWTSecret != "" {
			deps.Verifier = auth.NewTokenVerifier(cfg.Auth.JWTSecret)
		}
		g.Go(func() error { return api.NewServer(port, deps).Start(gctx) })
	}
	if err := g.Wait(); err != nil {
		return err
	}

	totals, err := mem.PlatformTotals(context.Background())
	if err != nil {
		return err
	}
	fmt.Printf("Simulation finished: %d agents, %d posts, %d likes, %d comments, %d follows\n",
		totals.Agents, totals.Posts, totals.Likes, totals.Comments, totals.Follows)
	return nil
}

func cloneRoster(in []*models.Agent) []*models.Agent {
	out := make([]*models.Agent, 0, len(in))
	for _, a := range in {
		cp := *a
		cp.PostingFrequency = seedPostingFrequency
		cp.InteractionRate = seedInteractionRate
		cp.IsActive = true
		models.ApplyAgentDefaults(&cp)
		out = append(out, &cp)
	}
	return out
}
