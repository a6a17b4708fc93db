package orchestrator

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/codes"

	"engagement-rewards/internal/domain"
	"engagement-rewards/internal/rank"
	"engagement-rewards/internal/reward"
	"engagement-rewards/internal/storage"
)

// runPasses ranks and rewards every wallet's latest snapshot of the day in
// one transaction, so a repair run re-ranks and re-splits the whole day.
func (o *Orchestrator) runPasses(ctx context.Context, runDate time.Time, result *RunResult) error {
	ctx, span := o.tracer.Start(ctx, "scorer.passes")
	defer span.End()

	distributor := reward.NewDistributor(o.cfg.Reward.Pool, o.cfg.Reward.TopK, o.rewardExcluded, o.logger)

	var (
		snapshots []*domain.DailyScoreSnapshot
		rewards   *reward.Result
		ranked    int
	)
	err := o.db.WithinTx(ctx, func(ctx context.Context, tx storage.Stores) error {
		var err error
		snapshots, err = tx.Snapshots.ListLatestForDate(ctx, runDate)
		if err != nil {
			return fmt.Errorf("list today's snapshots: %w", err)
		}

		ranked = 0
		ranks := rank.Assign(snapshots, o.rankExcluded)
		for _, s := range snapshots {
			r := ranks[s.ID]
			if r > 0 {
				ranked++
			}
			if r == s.Rank {
				continue
			}
			if err := tx.Snapshots.UpdateRank(ctx, s.ID, r); err != nil {
				return fmt.Errorf("update rank of snapshot %d: %w", s.ID, err)
			}
			s.Rank = r
		}

		rewards = distributor.Distribute(snapshots)
		for _, s := range snapshots {
			amount := rewards.AmountFor(s.ID)
			if amount == s.RewardAmount {
				continue
			}
			if err := tx.Snapshots.UpdateReward(ctx, s.ID, amount); err != nil {
				return fmt.Errorf("update reward of snapshot %d: %w", s.ID, err)
			}
			s.RewardAmount = amount
		}
		return nil
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "passes rolled back")
		return fmt.Errorf("rank and reward passes: %w", err)
	}

	result.Snapshots = snapshots
	result.Ranked = ranked
	result.Rewards = rewards

	o.metrics.RewardsDistributed.Set(float64(rewards.Distributed))
	o.metrics.RewardRecipients.Set(float64(len(rewards.Awards)))

	o.logger.Info("passes completed",
		"snapshots", len(snapshots),
		"ranked", ranked,
		"reward_recipients", len(rewards.Awards),
		"rewards_distributed", rewards.Distributed,
	)
	return nil
}
