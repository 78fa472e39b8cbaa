package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	_ "github.com/joho/godotenv/autoload"
	"github.com/urfave/cli/v3"

	"github.com/starford/folio/internal"
	pkgconfig "github.com/starford/folio/pkg/config"
)

var version = "dev"

type runner func(ctx context.Context, opts ...internal.Option) error

func loadOptions(cmd *cli.Command) ([]internal.Option, error) {
	configPath := cmd.String("config")

	cfg := internal.NewDefaultConfig()
	found, err := pkgconfig.LoadOptional(configPath, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if !found {
		slog.Warn("config file not found, using defaults", slog.String("path", configPath))
	}

	return []internal.Option{
		internal.WithConfig(cfg),
		internal.WithVersion(version),
	}, nil
}

func action(name string, run runner) cli.ActionFunc {
	return func(ctx context.Context, cmd *cli.Command) error {
		opts, err := loadOptions(cmd)
		if err != nil {
			return err
		}
		if err := run(ctx, opts...); err != nil {
			return fmt.Errorf("%s error: %w", name, err)
		}
		return nil
	}
}

func main() {
	cmd := &cli.Command{
		Name:    "folio",
		Usage:   "Generate, store and publish long-form articles",
		Version: version,
		Action:  action("serve", internal.Run),
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "config",
				Aliases:     []string{"c"},
				Usage:       "Path to config file",
				DefaultText: "config/config.yaml",
				Value:       "config/config.yaml",
				Sources:     cli.EnvVars("APP_CONFIG_FILE"),
			},
		},
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "Run the HTTP API, SSE stream and store watcher",
				Action: action("serve", internal.Run),
			},
			{
				Name:   "mcp",
				Usage:  "Serve the article tools over MCP on stdio",
				Action: action("mcp", internal.RunMCP),
			},
			{
				Name:   "reindex",
				Usage:  "Rebuild index.json and the search index, then exit",
				Action: action("reindex", internal.Reindex),
			},
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		slog.Error("application error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
