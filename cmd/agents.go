package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"text/tabwriter"

	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v2"

	"github.com/jeffepok/botnet/internal/store"
	"github.com/jeffepok/botnet/pkg/models"
)

// AgentsCommand manages agents in the database
func AgentsCommand() *cli.Command {
	return &cli.Command{
		Name:  "agents",
		Usage: "Manage agents",
		Subcommands: []*cli.Command{
			{
				Name:      "seed",
				Usage:     "Create the agents listed in a YAML file",
				ArgsUsage: "FILE",
				Action:    withStore(runAgentsSeed),
			},
			{
				Name:  "list",
				Usage: "List agents",
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "active", Usage: "Only active agents"},
				},
				Action: withStore(runAgentsList),
			},
			{
				Name:      "activate",
				Usage:     "Activate an agent",
				ArgsUsage: "ID|HANDLE",
				Action: withStore(func(c *cli.Context, s store.Store) error {
					return setAgentActive(c, s, true)
				}),
			},
			{
				Name:      "deactivate",
				Usage:     "Deactivate an agent",
				ArgsUsage: "ID|HANDLE",
				Action: withStore(func(c *cli.Context, s store.Store) error {
					return setAgentActive(c, s, false)
				}),
			},
		},
	}
}

func withStore(fn func(c *cli.Context, s store.Store) error) cli.ActionFunc {
	return func(c *cli.Context) error {
		cfg, err := loadConfig(c, true)
		if err != nil {
			return err
		}
		pool, err := connect(c.Context, cfg)
		if err != nil {
			return err
		}
		defer pool.Close()
		return fn(c, store.NewPostgres(pool))
	}
}

func runAgentsSeed(c *cli.Context, s store.Store) error {
	if c.NArg() != 1 {
		return fmt.Errorf("expected a seed file argument")
	}
	agents, err := LoadSeedFile(c.Args().First())
	if err != nil {
		return err
	}
	created, err := seedAgents(c.Context, s, agents)
	if err != nil {
		return err
	}
	fmt.Printf("Created %d of %d agents\n", created, len(agents))
	return nil
}

// seedAgents creates agents whose handle is not taken yet
func seedAgents(ctx context.Context, s store.Store, agents []*models.Agent) (int, error) {
	created := 0
	for _, a := range agents {
		err := s.CreateAgent(ctx, a)
		if errors.Is(err, store.ErrDuplicate) {
			log.Info().Str("handle", a.Handle).Msg("agent exists, skipping")
			continue
		}
		if err != nil {
			return created, fmt.Errorf("failed to create agent %q: %w", a.Handle, err)
		}
		created++
	}
	return created, nil
}

func runAgentsList(c *cli.Context, s store.Store) error {
	agents, err := s.ListAgents(c.Context, store.AgentFilter{ActiveOnly: c.Bool("active"), Limit: 1000})
	if err != nil {
		return err
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tHANDLE\tPROVIDER\tMODEL\tACTIVE\tPOSTS\tFOLLOWERS")
	for _, a := range agents {
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%t\t%d\t%d\n", a.ID, a.Handle, a.Provider, a.Model, a.IsActive, a.PostCount, a.FollowerCount)
	}
	return w.Flush()
}

func setAgentActive(c *cli.Context, s store.Store, active bool) error {
	if c.NArg() != 1 {
		return fmt.Errorf("expected an agent id or handle")
	}
	agent, err := findAgent(c.Context, s, c.Args().First())
	if err != nil {
		return err
	}
	if err := s.SetAgentActive(c.Context, agent.ID, active); err != nil {
		return err
	}
	fmt.Printf("Agent @%s active=%t\n", agent.Handle, active)
	return nil
}

func findAgent(ctx context.Context, s store.Store, ref string) (*models.Agent, error) {
	if id, err := strconv.ParseInt(ref, 10, 64); err == nil {
		return s.GetAgent(ctx, id)
	}
	return s.GetAgentByHandle(ctx, ref)
}
