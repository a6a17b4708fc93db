// Package reporting renders the optional per-run report files: a
// leaderboard CSV and a Markdown run summary.
package reporting

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"engagement-rewards/internal/domain"
)

// Report is everything written for one run.
type Report struct {
	Summary     RunSummary
	Leaderboard []LeaderboardRow
}

// RunSummary holds the run counters.
type RunSummary struct {
	RunID       string
	RunDate     time.Time
	GeneratedAt time.Time
	Wallet      string // single-wallet repair mode, empty for a full run
	RankingFile string

	RankingRows       int
	RankingSkipped    int
	RankingDuplicates int
	RankingKept       int

	Participants          int // selected for scoring
	Excluded              int // skipped by the scoring exclusion list
	Scored                int
	Batches               int
	TierUpgrades          int
	ProjectionCorrections int

	PoolSize            int64
	PoolPointsAllocated int64
	RewardPool          int64
	RewardsDistributed  int64
	RewardRecipients    int
	Ranked              int
}

// LeaderboardRow is one snapshot as shown in the leaderboard.
type LeaderboardRow struct {
	Rank            int64 // 0 = unranked
	Wallet          string
	Handle          string
	Tier            string
	EarnedToday     int64
	PoolPoints      int64
	TotalPoints     int64
	Reward          int64
	SecondaryReward decimal.Decimal
}

// BuildLeaderboard turns today's snapshots into rows ordered by rank,
// unranked rows last in snapshot order.
func BuildLeaderboard(snapshots []*domain.DailyScoreSnapshot, tierName func(domain.Tier) string) []LeaderboardRow {
	ordered := append([]*domain.DailyScoreSnapshot(nil), snapshots...)
	sort.SliceStable(ordered, func(i, j int) bool {
		ri, rj := ordered[i].Rank, ordered[j].Rank
		if (ri == 0) != (rj == 0) {
			return rj == 0
		}
		if ri != rj {
			return ri < rj
		}
		return ordered[i].ID < ordered[j].ID
	})

	rows := make([]LeaderboardRow, len(ordered))
	for i, s := range ordered {
		row := LeaderboardRow{
			Rank:            s.Rank,
			Wallet:          s.Wallet,
			Tier:            tierName(s.Tier),
			EarnedToday:     s.EarnedToday,
			PoolPoints:      s.PoolPoints,
			TotalPoints:     s.TotalPoints,
			Reward:          s.RewardAmount,
			SecondaryReward: s.SecondaryReward,
		}
		if s.Handle != nil {
			row.Handle = *s.Handle
		}
		rows[i] = row
	}
	return rows
}
