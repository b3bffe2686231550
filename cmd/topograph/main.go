// Topograph CLI - relationship discovery and topology graphs for cloud fleets
//
// Usage:
//
//	topograph discover --inventory fleet.yaml --fixtures lookups.yaml [--application orders]
//	topograph render --inventory fleet.yaml --fixtures lookups.yaml --out graph.svg
//	topograph serve --port 8080
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v2"

	"github.com/santoshpalla27/topograph/internal/discovery"
	"github.com/santoshpalla27/topograph/pkg/platform"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	// A missing .env is fine; flags and the environment still apply.
	_ = godotenv.Load()

	if err := newApp().Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:    "topograph",
		Usage:   "Discover how cloud resources are wired together and draw the graph",
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),

		Flags: globalFlags(),
		Before: func(c *cli.Context) error {
			platform.InitLogger(c.String("log-level"), c.Bool("log-console"))
			return nil
		},

		Commands: []*cli.Command{
			discoverCommand(),
			renderCommand(),
			serveCommand(),
		},
	}
}

func globalFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "log-level",
			Value:   "info",
			Usage:   "Log level (debug, info, warn, error)",
			EnvVars: []string{"TOPOGRAPH_LOG_LEVEL"},
		},
		&cli.BoolFlag{
			Name:    "log-console",
			Usage:   "Human-readable log output",
			EnvVars: []string{"TOPOGRAPH_LOG_CONSOLE"},
		},
		&cli.StringFlag{
			Name:    "provider",
			Value:   "static",
			Usage:   "Lookup provider (static, aws)",
			EnvVars: []string{"TOPOGRAPH_PROVIDER"},
		},
		&cli.StringFlag{
			Name:    "fixtures",
			Usage:   "Lookup fixtures file for the static provider (JSON or YAML)",
			EnvVars: []string{"TOPOGRAPH_FIXTURES"},
		},
		&cli.StringFlag{
			Name:    "aws-region",
			Usage:   "Default AWS region for provider lookups",
			EnvVars: []string{"TOPOGRAPH_AWS_REGION", "AWS_REGION"},
		},
		&cli.StringFlag{
			Name:    "regions",
			Usage:   "Comma-separated inventory regions (empty lists everything)",
			EnvVars: []string{"TOPOGRAPH_REGIONS"},
		},
		&cli.StringFlag{
			Name:    "inventory-backend",
			Value:   "file",
			Usage:   "Inventory backend (file, postgres, clickhouse)",
			EnvVars: []string{"TOPOGRAPH_INVENTORY_BACKEND"},
		},
		&cli.StringFlag{
			Name:    "inventory",
			Aliases: []string{"i"},
			Usage:   "Inventory snapshot file for the file backend",
			EnvVars: []string{"TOPOGRAPH_INVENTORY"},
		},
		&cli.StringFlag{
			Name:    "postgres-dsn",
			Usage:   "Postgres DSN for the postgres backend",
			EnvVars: []string{"TOPOGRAPH_POSTGRES_DSN", "DATABASE_URL"},
		},
		&cli.StringFlag{
			Name:    "clickhouse-addr",
			Value:   "localhost:9000",
			Usage:   "ClickHouse native address",
			EnvVars: []string{"TOPOGRAPH_CLICKHOUSE_ADDR", "CLICKHOUSE_ADDR"},
		},
		&cli.StringFlag{
			Name:    "clickhouse-database",
			Value:   "topograph",
			Usage:   "ClickHouse database",
			EnvVars: []string{"CLICKHOUSE_DATABASE"},
		},
		&cli.StringFlag{
			Name:    "clickhouse-user",
			Value:   "default",
			Usage:   "ClickHouse user",
			EnvVars: []string{"CLICKHOUSE_USER"},
		},
		&cli.StringFlag{
			Name:    "clickhouse-password",
			Usage:   "ClickHouse password",
			EnvVars: []string{"CLICKHOUSE_PASSWORD"},
		},
		&cli.IntFlag{
			Name:    "workers",
			Value:   discovery.DefaultWorkers,
			Usage:   "Concurrent extractors per discovery run",
			EnvVars: []string{"TOPOGRAPH_WORKERS"},
		},
		&cli.DurationFlag{
			Name:    "extractor-timeout",
			Value:   discovery.DefaultExtractorTimeout,
			Usage:   "Time limit for one resource's extractor",
			EnvVars: []string{"TOPOGRAPH_EXTRACTOR_TIMEOUT"},
		},
		&cli.DurationFlag{
			Name:    "budget",
			Value:   discovery.DefaultBudget,
			Usage:   "Time limit for a whole discovery run",
			EnvVars: []string{"TOPOGRAPH_BUDGET"},
		},
	}
}

// =============================================================================
// DISCOVER COMMAND
// =============================================================================

func discoverCommand() *cli.Command {
	return &cli.Command{
		Name:  "discover",
		Usage: "Discover relationships and print them",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "application",
				Aliases: []string{"a"},
				Usage:   "Only return relationships touching this application",
			},
			&cli.StringFlag{
				Name:    "format",
				Aliases: []string{"f"},
				Value:   "table",
				Usage:   "Output format (table, json)",
			},
		},
		Action: runDiscover,
	}
}

func runDiscover(c *cli.Context) error {
	ctx, cancel := signal.NotifyContext(c.Context, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	d, err := buildDeps(ctx, c)
	if err != nil {
		return err
	}
	defer d.Close()

	resp, result, err := d.service.Query(ctx, c.String("application"))
	if err != nil {
		return err
	}

	switch c.String("format") {
	case "json":
		return outputJSON(c.App.Writer, resp, result)
	case "table":
		return outputTable(c.App.Writer, resp, result)
	default:
		return fmt.Errorf("unknown format %q (want table or json)", c.String("format"))
	}
}

// =============================================================================
// RENDER COMMAND
// =============================================================================

func renderCommand() *cli.Command {
	return &cli.Command{
		Name:  "render",
		Usage: "Discover relationships and draw them as SVG",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "application",
				Aliases: []string{"a"},
				Usage:   "Application to focus on",
			},
			&cli.BoolFlag{
				Name:  "no-external",
				Usage: "Leave out resources outside the application",
			},
			&cli.StringFlag{
				Name:  "highlight",
				Usage: "Resource id whose neighbors stay highlighted",
			},
			&cli.StringFlag{
				Name:     "out",
				Aliases:  []string{"o"},
				Usage:    "Output SVG file (- for stdout)",
				Required: true,
			},
		},
		Action: runRender,
	}
}

func runRender(c *cli.Context) error {
	ctx, cancel := signal.NotifyContext(c.Context, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	d, err := buildDeps(ctx, c)
	if err != nil {
		return err
	}
	defer d.Close()

	resp, _, err := d.service.Query(ctx, c.String("application"))
	if err != nil {
		return err
	}
	return writeRender(c.App.Writer, c.String("out"), renderRequest(resp, !c.Bool("no-external"), c.String("highlight")))
}

// =============================================================================
// SERVE COMMAND
// =============================================================================

func serveCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Start the topology API server",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:    "port",
				Value:   8080,
				Usage:   "API server port",
				EnvVars: []string{"TOPOGRAPH_PORT", "PORT"},
			},
			&cli.StringFlag{
				Name:    "api-key",
				Usage:   "Require this X-API-Key on /api routes",
				EnvVars: []string{"TOPOGRAPH_API_KEY", "API_KEY"},
			},
		},
		Action: runServe,
	}
}

func runServe(c *cli.Context) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	d, err := buildDeps(ctx, c)
	if err != nil {
		return err
	}
	defer d.Close()

	srv := newServer(c, d)
	if err := srv.StartWithGracefulShutdown(ctx); err != nil {
		return fmt.Errorf("server failed: %w", err)
	}
	log.Info().Msg("Server stopped")
	return nil
}
