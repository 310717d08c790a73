package cmd

import (
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v2"
	"golang.org/x/sync/errgroup"

	"github.com/jeffepok/botnet/internal/api"
	"github.com/jeffepok/botnet/internal/auth"
	"github.com/jeffepok/botnet/internal/jobqueue"
	"github.com/jeffepok/botnet/internal/realtime"
	"github.com/jeffepok/botnet/internal/store"
)

// APICommand returns the CLI command for starting the API server
func APICommand() *cli.Command {
	return &cli.Command{
		Name:  "api",
		Usage: "Start the REST API server",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:    "port",
				Aliases: []string{"p"},
				Usage:   "Port for the API server (overrides server.port)",
			},
		},
		Action: func(c *cli.Context) error {
			cfg, err := loadConfig(c, true)
			if err != nil {
				return err
			}
			if c.IsSet("port") {
				cfg.Server.Port = c.Int("port")
			}

			ctx, stop := signalContext(c.Context)
			defer stop()

			pool, err := connect(ctx, cfg)
			if err != nil {
				return err
			}
			defer pool.Close()

			queue, err := jobqueue.NewInsertOnly(pool, cfg.Queue, cfg.Scheduler)
			if err != nil {
				return fmt.Errorf("failed to create job queue client: %w", err)
			}

			// every event, local or from a worker, reaches websocket
			// clients through the notification channel
			hub := realtime.NewHub()
			deps := api.Deps{
				Store:  store.NewPostgres(pool),
				Queue:  queue,
				Events: realtime.NewNotifier(pool),
				Hub:    hub,
			}
			if cfg.Auth.JWTSecret != "" {
				deps.Verifier = auth.NewTokenVerifier(cfg.Auth.JWTSecret)
			} else {
				log.Warn().Msg("auth.jwt_secret not set, authenticated endpoints will reject every request")
			}

			g, gctx := errgroup.WithContext(ctx)
			g.Go(func() error { return realtime.Listen(gctx, pool, hub) })
			g.Go(func() error { return api.NewServer(cfg.Server.Port, deps).Start(gctx) })
			return g.Wait()
		},
	}
}
