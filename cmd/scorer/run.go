package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"engagement-rewards/internal/config"
	"engagement-rewards/internal/observability"
	"engagement-rewards/internal/orchestrator"
	"engagement-rewards/internal/reporting"
	"engagement-rewards/internal/storage/migrations"
	"engagement-rewards/internal/storage/postgres"
)

type runParams struct {
	RankingFile string
	Wallet      string
	SSL         *bool
	ReportDir   string
	Migrate     bool
}

func connect(ctx context.Context, cfg *config.Config, logger *slog.Logger, ssl *bool) (*postgres.Pool, error) {
	sslMode := cfg.ResolveSSLMode(ssl)
	pool, err := postgres.NewPool(ctx, cfg.DSN(sslMode))
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}
	logger.Info("connected to postgres", "host", cfg.DB.Host, "db", cfg.DB.Name, "sslmode", sslMode)
	return pool, nil
}

func runMigrations(ctx context.Context, cfg *config.Config, logger *slog.Logger, ssl *bool) error {
	pool, err := connect(ctx, cfg, logger, ssl)
	if err != nil {
		return err
	}
	defer pool.Close()

	return migrate(ctx, pool, logger)
}

func migrate(ctx context.Context, pool *postgres.Pool, logger *slog.Logger) error {
	applied, err := migrations.RunPostgresMigrations(ctx, pool)
	if err != nil {
		return fmt.Errorf("postgres migrations: %w", err)
	}
	logger.Info("migrations applied", "files", applied)
	return nil
}

func runScorer(ctx context.Context, cfg *config.Config, logger *slog.Logger, p runParams) error {
	pool, err := connect(ctx, cfg, logger, p.SSL)
	if err != nil {
		return err
	}
	defer pool.Close()

	if p.Migrate {
		if err := migrate(ctx, pool, logger); err != nil {
			return err
		}
	}

	metrics := observability.NewMetrics("")
	orch, err := orchestrator.New(orchestrator.Options{
		DB:          postgres.NewDB(pool),
		Config:      cfg,
		RankingFile: p.RankingFile,
		Wallet:      p.Wallet,
		Logger:      logger,
		Metrics:     metrics,
	})
	if err != nil {
		return err
	}

	result, runErr := orch.Run(ctx)

	// Metrics are pushed for failed runs too.
	if cfg.Metrics.PushgatewayURL != "" {
		if err := metrics.Push(ctx, cfg.Metrics.PushgatewayURL, cfg.Metrics.Job); err != nil {
			logger.Warn("metrics push failed", "url", cfg.Metrics.PushgatewayURL, "error", err)
		}
	}
	if runErr != nil {
		return runErr
	}

	if p.ReportDir != "" {
		report := buildReport(cfg, p, result, orch)
		paths, err := reporting.WriteFiles(p.ReportDir, report)
		if err != nil {
			return fmt.Errorf("write report: %w", err)
		}
		logger.Info("report written", "files", paths)
	}
	return nil
}

func buildReport(cfg *config.Config, p runParams, result *orchestrator.RunResult, orch *orchestrator.Orchestrator) *reporting.Report {
	return &reporting.Report{
		Summary: reporting.RunSummary{
			RunID:       result.RunID,
			RunDate:     result.RunDate,
			GeneratedAt: time.Now().UTC(),
			Wallet:      result.Wallet,
			RankingFile: p.RankingFile,

			RankingRows:       result.Ranking.RowsRead,
			RankingSkipped:    result.Ranking.Skipped,
			RankingDuplicates: result.Ranking.Duplicates,
			RankingKept:       result.Ranking.Kept,

			Participants:          result.Participants,
			Excluded:              result.Excluded,
			Scored:                result.Scored,
			Batches:               result.Batches,
			TierUpgrades:          result.TierUpgrades,
			ProjectionCorrections: result.ProjectionCorrections,

			PoolSize:            cfg.Pool.Size,
			PoolPointsAllocated: result.PoolPointsAllocated,
			RewardPool:          cfg.Reward.Pool,
			RewardsDistributed:  result.Rewards.Distributed,
			RewardRecipients:    len(result.Rewards.Awards),
			Ranked:              result.Ranked,
		},
		Leaderboard: reporting.BuildLeaderboard(result.Snapshots, orch.TierName),
	}
}
