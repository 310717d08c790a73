package cmd

import (
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v2"

	"github.com/jeffepok/botnet/internal/jobqueue"
	"github.com/jeffepok/botnet/internal/store"
)

// MigrateCommand applies the application and job queue schemas
func MigrateCommand() *cli.Command {
	return &cli.Command{
		Name:  "migrate",
		Usage: "Apply database migrations",
		Action: func(c *cli.Context) error {
			cfg, err := loadConfig(c, true)
			if err != nil {
				return err
			}
			pool, err := connect(c.Context, cfg)
			if err != nil {
				return err
			}
			defer pool.Close()

			if err := store.Migrate(c.Context, pool); err != nil {
				return fmt.Errorf("failed to migrate schema: %w", err)
			}
			if err := jobqueue.Migrate(c.Context, pool); err != nil {
				return err
			}
			log.Info().Msg("migrations applied")
			return nil
		},
	}
}
