package reporting

import (
	"encoding/csv"
	"strconv"
	"strings"
)

// RenderCSV renders leaderboard rows as CSV string.
func RenderCSV(rows []LeaderboardRow) string {
	var sb strings.Builder
	w := csv.NewWriter(&sb)

	// Header
	_ = w.Write([]string{
		"rank", "wallet", "handle", "tier",
		"earned_today", "pool_points", "total_points",
		"reward", "secondary_reward",
	})

	// Rows
	for _, r := range rows {
		_ = w.Write([]string{
			strconv.FormatInt(r.Rank, 10),
			r.Wallet,
			r.Handle,
			r.Tier,
			strconv.FormatInt(r.EarnedToday, 10),
			strconv.FormatInt(r.PoolPoints, 10),
			strconv.FormatInt(r.TotalPoints, 10),
			strconv.FormatInt(r.Reward, 10),
			r.SecondaryReward.StringFixed(2),
		})
	}

	w.Flush()
	return sb.String()
}
