package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"engagement-rewards/internal/domain"
	"engagement-rewards/internal/scoring"
	"engagement-rewards/internal/storage"
	"engagement-rewards/internal/tier"
)

// batchStats is what a batch adds to the run once committed.
type batchStats struct {
	scored      int
	upgrades    int
	corrections int
}

// runBatch scores wallets inside one transaction. Any failure rolls back
// the whole batch.
func (o *Orchestrator) runBatch(ctx context.Context, n int, wallets []string, runDate time.Time, agg *scoring.Aggregator, result *RunResult) error {
	ctx, span := o.tracer.Start(ctx, "scorer.batch", trace.WithAttributes(
		attribute.Int("batch.number", n),
		attribute.Int("batch.size", len(wallets)),
	))
	defer span.End()

	var stats batchStats
	err := o.db.WithinTx(ctx, func(ctx context.Context, tx storage.Stores) error {
		stats = batchStats{}
		for _, wallet := range wallets {
			if err := o.scoreParticipant(ctx, tx, wallet, runDate, agg, &stats); err != nil {
				return fmt.Errorf("score %s: %w", wallet, err)
			}
		}
		return nil
	})
	if err != nil {
		o.metrics.RecordBatch(len(wallets), false)
		span.RecordError(err)
		span.SetStatus(codes.Error, "batch rolled back")
		o.logger.Error("batch rolled back", "batch", n, "size", len(wallets), "error", err)
		return fmt.Errorf("batch %d: %w", n, err)
	}

	o.metrics.RecordBatch(stats.scored, true)
	o.metrics.TierUpgrades.Add(float64(stats.upgrades))
	o.metrics.ProjectionCorrections.Add(float64(stats.corrections))

	result.Batches++
	result.Scored += stats.scored
	result.TierUpgrades += stats.upgrades
	result.ProjectionCorrections += stats.corrections

	o.logger.Info("batch committed", "batch", n, "size", len(wallets), "scored_so_far", result.Scored)
	return nil
}

// scoreParticipant computes, tiers and snapshots one wallet.
func (o *Orchestrator) scoreParticipant(ctx context.Context, tx storage.Stores, wallet string, runDate time.Time, agg *scoring.Aggregator, stats *batchStats) error {
	if o.scoringExcluded.Contains(wallet) {
		return fmt.Errorf("%w: %s", ErrExcludedWallet, wallet)
	}

	score, err := agg.Score(ctx, tx, wallet)
	if err != nil {
		return err
	}

	previous, err := tx.Snapshots.GetLatest(ctx, wallet)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return fmt.Errorf("load previous snapshot: %w", err)
	}
	delta := scoring.ComputeDelta(score.Total, score.PoolPoints, previous)

	outcome, err := o.machine.Apply(ctx, tx, o.runID, wallet, tier.Input{
		Purchases: score.PurchaseCount,
		Points:    score.Total,
		Referrals: score.ReferralCount,
	})
	if err != nil {
		return err
	}

	rate := o.machine.Ladder().CommissionRate(outcome.Effective)

	snap := &domain.DailyScoreSnapshot{
		RunID:               o.runID,
		RunDate:             runDate,
		Wallet:              wallet,
		Handle:              score.Handle,
		DisplayName:         score.DisplayName,
		PurchaseCount:       score.PurchaseCount,
		ReferralCount:       score.ReferralCount,
		ActiveReferralCount: score.ActiveReferralCount,
		GrandReferralCount:  score.GrandReferralCount,
		ReferralValue:       score.ReferralValue,
		SecondaryReward:     score.ReferralValue.Mul(rate).Round(2),
		PoolPoints:          score.PoolPoints,
		TotalPoints:         score.Total,
		EarnedToday:         delta.EarnedToday,
		Components:          score.Components,
		Tier:                outcome.Effective,
		CreatedAt:           o.now().UTC(),
	}
	if err := tx.Snapshots.Insert(ctx, snap); err != nil {
		return fmt.Errorf("insert snapshot: %w", err)
	}

	stats.scored++
	if outcome.Upgraded() {
		stats.upgrades++
	}
	if outcome.ProjectionCorrected {
		stats.corrections++
	}

	o.logger.Info("participant scored",
		"wallet", wallet,
		"total", score.Total,
		"pool", score.PoolPoints,
		"earned", delta.EarnedToday,
		"tier", o.machine.Ladder().Name(outcome.Effective),
		"upgraded", outcome.Upgraded(),
	)
	return nil
}
