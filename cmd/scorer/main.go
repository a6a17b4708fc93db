// Package main provides the daily scoring entry point.
// It loads the day's ranking, scores every participant in batches and then
// assigns ranks and rewards.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	_ "time/tzdata"

	"github.com/urfave/cli/v2"

	"engagement-rewards/internal/config"
	"engagement-rewards/internal/logging"
)

func main() {
	// Create context with cancellation for graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	app := &cli.App{
		Name:  "scorer",
		Usage: "daily engagement scoring, tiering and reward distribution",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "path to the YAML configuration file",
				EnvVars: []string{config.EnvPrefix + "CONFIG"},
			},
		},
		Commands: []*cli.Command{
			runCommand(),
			migrateCommand(),
		},
	}

	if err := app.RunContext(ctx, os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "scorer: %v\n", err)
		os.Exit(1)
	}
}

func runCommand() *cli.Command {
	return &cli.Command{
		Name:  "run",
		Usage: "score every participant, or one wallet in repair mode",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "ranking-file",
				Aliases: []string{"r"},
				Usage:   "external ranking file (.csv or .xlsx); omit when there is none today",
			},
			&cli.StringFlag{
				Name:    "wallet",
				Aliases: []string{"w"},
				Usage:   "score only this wallet (repair mode)",
			},
			&cli.BoolFlag{
				Name:  "ssl",
				Usage: "force TLS to the datastore",
			},
			&cli.BoolFlag{
				Name:  "no-ssl",
				Usage: "disable TLS to the datastore",
			},
			&cli.StringFlag{
				Name:  "report-dir",
				Usage: "write the leaderboard CSV and run summary here",
			},
			&cli.BoolFlag{
				Name:  "migrate",
				Usage: "apply schema migrations before scoring",
			},
		},
		Action: func(c *cli.Context) error {
			override, err := sslOverride(c)
			if err != nil {
				return err
			}
			cfg, logger, err := setup(c)
			if err != nil {
				return err
			}
			return runScorer(c.Context, cfg, logger, runParams{
				RankingFile: c.String("ranking-file"),
				Wallet:      c.String("wallet"),
				SSL:         override,
				ReportDir:   c.String("report-dir"),
				Migrate:     c.Bool("migrate"),
			})
		},
	}
}

func migrateCommand() *cli.Command {
	return &cli.Command{
		Name:  "migrate",
		Usage: "apply schema migrations",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "ssl", Usage: "force TLS to the datastore"},
			&cli.BoolFlag{Name: "no-ssl", Usage: "disable TLS to the datastore"},
		},
		Action: func(c *cli.Context) error {
			override, err := sslOverride(c)
			if err != nil {
				return err
			}
			cfg, logger, err := setup(c)
			if err != nil {
				return err
			}
			return runMigrations(c.Context, cfg, logger, override)
		},
	}
}

// setup loads configuration and builds the logger.
func setup(c *cli.Context) (*config.Config, *slog.Logger, error) {
	cfg, err := config.Load(c.Context, c.String("config"))
	if err != nil {
		return nil, nil, err
	}
	logger, err := logging.New(logging.Options{
		Level:   cfg.Log.Level,
		Format:  cfg.Log.Format,
		Verbose: cfg.Log.Verbose,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("build logger: %w", err)
	}
	slog.SetDefault(logger)
	return cfg, logger, nil
}

// sslOverride returns nil when neither --ssl nor --no-ssl was given.
func sslOverride(c *cli.Context) (*bool, error) {
	on, off := c.Bool("ssl"), c.Bool("no-ssl")
	switch {
	case on && off:
		return nil, errors.New("--ssl and --no-ssl are mutually exclusive")
	case on:
		v := true
		return &v, nil
	case off:
		v := false
		return &v, nil
	}
	return nil, nil
}
