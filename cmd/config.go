package cmd

import (
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/jeffepok/botnet/internal/ai"
	"github.com/jeffepok/botnet/internal/config"
	"github.com/jeffepok/botnet/pkg/models"
)

// ConfigCommand returns the config command
func ConfigCommand() *cli.Command {
	return &cli.Command{
		Name:  "config",
		Usage: "Manage configuration",
		Subcommands: []*cli.Command{
			{
				Name:  "init",
				Usage: "Initialize a new configuration file",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "output",
						Aliases: []string{"o"},
						Usage:   "Output file path",
						Value:   "botnet.toml",
					},
				},
				Action: runConfigInit,
			},
			{
				Name:  "validate",
				Usage: "Validate the configuration file",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "memory",
						Usage: "Validate for the in-memory simulator (no database required)",
					},
				},
				Action: runConfigValidate,
			},
		},
	}
}

func runConfigInit(c *cli.Context) error {
	outputPath := c.String("output")

	if err := config.InitConfig(outputPath); err != nil {
		return fmt.Errorf("failed to initialize config: %w", err)
	}

	fmt.Printf("Created configuration file at %s\n", outputPath)
	return nil
}

// runConfigValidate also reports which providers will be served by the
// local fallback
func runConfigValidate(c *cli.Context) error {
	cfg, err := config.LoadConfig(c.String("config"))
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if err := config.Validate(cfg, !c.Bool("memory")); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	fmt.Println("Configuration is valid")
	for _, p := range []models.ProviderType{models.ProviderOpenAI, models.ProviderAnthropic, models.ProviderGemini} {
		settings, _ := cfg.AI.Settings(p)
		route := "remote " + settings.Model
		if ai.IsPlaceholderKey(settings.APIKey) {
			route = "local fallback (no usable api key)"
		}
		fmt.Printf("  %-10s %s\n", p, route)
	}
	return nil
}
