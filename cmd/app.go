package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v2"

	"github.com/jeffepok/botnet/internal/agents"
	"github.com/jeffepok/botnet/internal/ai"
	"github.com/jeffepok/botnet/internal/analytics"
	"github.com/jeffepok/botnet/internal/behavior"
	"github.com/jeffepok/botnet/internal/config"
	"github.com/jeffepok/botnet/internal/logging"
	"github.com/jeffepok/botnet/internal/randutil"
	"github.com/jeffepok/botnet/internal/store"
)

// loadConfig reads the configuration named by the global --config flag and
// configures the global logger from it
func loadConfig(c *cli.Context, needDatabase bool) (*config.Config, error) {
	cfg, err := config.LoadConfig(c.String("config"))
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if c.IsSet("log-level") {
		cfg.Logging.Level = c.String("log-level")
	}
	if err := config.Validate(cfg, needDatabase); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	logging.Setup(cfg.Logging)
	return cfg, nil
}

// signalContext is cancelled on SIGINT or SIGTERM
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}

func connect(ctx context.Context, cfg *config.Config) (*pgxpool.Pool, error) {
	pool, err := store.Connect(ctx, cfg.Database.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return pool, nil
}

// services are the simulation core shared by every runner
type services struct {
	orchestrator *agents.Orchestrator
	aggregator   *analytics.Aggregator
}

func newServices(cfg *config.Config, s store.Store) services {
	rng := randutil.New(cfg.Simulation.Seed)
	factory := ai.NewFactory(cfg.AI, rng, ai.WithLogger(log.Logger))
	policy := behavior.NewPolicy(rng, cfg.Behavior)
	return services{
		orchestrator: agents.NewOrchestrator(s, factory, policy, cfg.Agents),
		aggregator:   analytics.NewAggregator(s),
	}
}
