// Package rank orders today's snapshots into a gap-free leaderboard.
package rank

import (
	"sort"

	"engagement-rewards/internal/domain"
	"engagement-rewards/internal/identity"
)

// Assign returns snapshot ID -> rank. Ranks run 1..N without gaps or ties,
// ordered by earned today, then pool points, both descending, then by
// snapshot ID. Excluded wallets get rank 0.
func Assign(snapshots []*domain.DailyScoreSnapshot, excluded identity.WalletSet) map[int64]int64 {
	ranks := make(map[int64]int64, len(snapshots))

	ranked := make([]*domain.DailyScoreSnapshot, 0, len(snapshots))
	for _, s := range snapshots {
		if excluded.Contains(s.Wallet) {
			ranks[s.ID] = 0
			continue
		}
		ranked = append(ranked, s)
	}

	sort.Slice(ranked, func(i, j int) bool {
		a, b := ranked[i], ranked[j]
		if a.EarnedToday != b.EarnedToday {
			return a.EarnedToday > b.EarnedToday
		}
		if a.PoolPoints != b.PoolPoints {
			return a.PoolPoints > b.PoolPoints
		}
		return a.ID < b.ID
	})

	for i, s := range ranked {
		ranks[s.ID] = int64(i + 1)
	}
	return ranks
}
