// Package cmd holds the kvpump command tree.
package cmd

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"github.com/Swind/go-confined-pump/core"
	"github.com/Swind/go-confined-pump/internal/config"
	"github.com/Swind/go-confined-pump/internal/logx"
	"github.com/Swind/go-confined-pump/store"
	"github.com/Swind/go-confined-pump/store/boltstore"
	"github.com/Swind/go-confined-pump/store/pgstore"
)

// App builds the CLI. Flag defaults come from the environment (see
// internal/config); flags override them.
func App() *cli.App {
	cfg := config.Load()

	return &cli.App{
		Name:  "kvpump",
		Usage: "key/value store confined to a single worker thread",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "driver",
				Value: cfg.Driver,
				Usage: "store driver: bolt or postgres",
			},
			&cli.StringFlag{
				Name:    "dsn",
				Aliases: []string{"d"},
				Value:   cfg.DSN,
				Usage:   "bolt file path or postgres connection string",
			},
			&cli.BoolFlag{
				Name:  "migrate",
				Value: cfg.Migrate,
				Usage: "run postgres migrations before opening",
			},
			&cli.StringFlag{
				Name:  "name",
				Value: cfg.PumpName,
				Usage: "pump name in logs and metrics",
			},
			&cli.BoolFlag{
				Name:  "auto-commit",
				Value: cfg.AutoCommit,
				Usage: "commit a transaction left open at shutdown instead of rolling it back",
			},
			&cli.StringFlag{
				Name:  "log-level",
				Value: cfg.LogLevel,
				Usage: "debug, info, warn or error",
			},
		},
		Commands: []*cli.Command{
			ServeCommand(cfg),
			PutCommand(),
			GetCommand(),
			DelCommand(),
			KeysCommand(),
		},
	}
}

// openPump starts a pump over the store selected by the global flags.
func openPump(c *cli.Context, metrics core.Metrics) (*core.Pump[store.KV], *zap.Logger, error) {
	logger, err := logx.New(c.String("log-level"))
	if err != nil {
		return nil, nil, errors.Wrap(err, "building logger")
	}

	open, err := opener(c)
	if err != nil {
		return nil, nil, err
	}

	cfg := config.Load()
	pump, err := core.NewPump(c.String("dsn"), open, &core.PumpConfig{
		Name:                 c.String("name"),
		AutoCommit:           c.Bool("auto-commit"),
		AllowThreadMigration: cfg.AllowThreadMigration,
		HistoryCapacity:      cfg.HistoryCapacity,
		Logger:               core.NewZapLogger(logger),
		Metrics:              metrics,
	})
	if err != nil {
		return nil, nil, errors.Wrap(err, "starting pump")
	}
	return pump, logger, nil
}

func opener(c *cli.Context) (core.Opener[store.KV], error) {
	switch c.String("driver") {
	case "bolt", "":
		return store.Opener(boltstore.Open), nil
	case "postgres", "pg":
		if c.Bool("migrate") {
			ctx, cancel := context.WithTimeout(c.Context, 30*time.Second)
			defer cancel()
			if err := pgstore.Migrate(ctx, c.String("dsn")); err != nil {
				return nil, err
			}
		}
		return store.Opener(pgstore.Open), nil
	default:
		return nil, cli.Exit("unknown driver "+c.String("driver"), 2)
	}
}

// withPump runs fn against a fresh pump and disposes it afterwards.
func withPump(c *cli.Context, fn func(p *core.Pump[store.KV]) error) error {
	pump, logger, err := openPump(c, nil)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	err = fn(pump)
	if derr := pump.Dispose(); derr != nil && err == nil {
		err = derr
	}
	return err
}
