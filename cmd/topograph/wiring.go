package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v2"

	"github.com/santoshpalla27/topograph/internal/discovery"
	"github.com/santoshpalla27/topograph/internal/inventory"
	"github.com/santoshpalla27/topograph/internal/metrics"
	"github.com/santoshpalla27/topograph/internal/provider"
	awsprovider "github.com/santoshpalla27/topograph/internal/provider/aws"
	"github.com/santoshpalla27/topograph/internal/server"
	"github.com/santoshpalla27/topograph/internal/topology"
	"github.com/santoshpalla27/topograph/pkg/platform"
)

type deps struct {
	service *topology.Service
	metrics *metrics.Collector
	closers []func() error
}

func (d *deps) Close() {
	for _, closeFn := range d.closers {
		if err := closeFn(); err != nil {
			log.Warn().Err(err).Msg("Failed to close inventory backend")
		}
	}
}

// buildDeps wires provider, inventory and engine from the global flags.
func buildDeps(ctx context.Context, c *cli.Context) (*deps, error) {
	d := &deps{metrics: metrics.NewCollector()}

	p, err := buildProvider(ctx, c)
	if err != nil {
		return nil, err
	}

	source, closeFn, err := buildSource(ctx, c)
	if err != nil {
		return nil, err
	}
	if closeFn != nil {
		d.closers = append(d.closers, closeFn)
	}

	regions := platform.SplitList(c.String("regions"))
	inv := inventory.NewCollector(source, regions, log.Logger)

	engine := discovery.NewEngine(p, discovery.Config{
		Workers:          c.Int("workers"),
		ExtractorTimeout: c.Duration("extractor-timeout"),
		Budget:           c.Duration("budget"),
	}, discovery.WithLogger(log.Logger), discovery.WithMetrics(d.metrics))

	d.service = topology.NewService(inv, engine, log.Logger)
	return d, nil
}

func buildProvider(ctx context.Context, c *cli.Context) (provider.Provider, error) {
	switch c.String("provider") {
	case "static":
		path := c.String("fixtures")
		if path == "" {
			log.Warn().Msg("No fixtures given; provider lookups will find nothing")
			return provider.NewStatic(), nil
		}
		return provider.LoadStatic(path)
	case "aws":
		p, err := awsprovider.New(ctx, c.String("aws-region"))
		if err != nil {
			return nil, err
		}
		return p, nil
	default:
		return nil, fmt.Errorf("unknown provider %q (want static or aws)", c.String("provider"))
	}
}

func buildSource(ctx context.Context, c *cli.Context) (inventory.Source, func() error, error) {
	switch c.String("inventory-backend") {
	case "file":
		path := c.String("inventory")
		if path == "" {
			return nil, nil, errors.New("--inventory is required for the file backend")
		}
		return &inventory.FileSource{Path: path}, nil, nil

	case "postgres":
		dsn := c.String("postgres-dsn")
		if dsn == "" {
			return nil, nil, errors.New("--postgres-dsn is required for the postgres backend")
		}
		src, err := inventory.NewPostgresSource(dsn)
		if err != nil {
			return nil, nil, err
		}
		if err := src.Ping(ctx); err != nil {
			src.Close()
			return nil, nil, fmt.Errorf("failed to connect to postgres: %w", err)
		}
		return src, src.Close, nil

	case "clickhouse":
		cfg := inventory.DefaultClickHouseConfig()
		cfg.Addr = c.String("clickhouse-addr")
		cfg.Database = c.String("clickhouse-database")
		cfg.Username = c.String("clickhouse-user")
		cfg.Password = c.String("clickhouse-password")
		src, err := inventory.NewClickHouseSource(cfg)
		if err != nil {
			return nil, nil, err
		}
		if err := src.Ping(ctx); err != nil {
			src.Close()
			return nil, nil, fmt.Errorf("failed to connect to ClickHouse: %w", err)
		}
		return src, src.Close, nil

	default:
		return nil, nil, fmt.Errorf("unknown inventory backend %q (want file, postgres or clickhouse)", c.String("inventory-backend"))
	}
}

func newServer(c *cli.Context, d *deps) *server.Server {
	cfg := server.ConfigFromEnv()
	cfg.Port = c.Int("port")
	cfg.APIKey = c.String("api-key")
	cfg.Version = version
	return server.New(d.service, d.metrics, cfg, log.Logger)
}
