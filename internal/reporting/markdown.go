package reporting

import (
	"fmt"
	"strings"
	"time"
)

// topRows is how many leaderboard rows the summary shows.
const topRows = 10

// RenderMarkdown renders the run summary as Markdown string.
func RenderMarkdown(r *Report) string {
	s := r.Summary
	var sb strings.Builder

	// Header
	sb.WriteString(fmt.Sprintf("# Run Summary %s\n\n", s.RunDate.Format(time.DateOnly)))
	sb.WriteString(fmt.Sprintf("Run: `%s`\n\n", s.RunID))
	sb.WriteString(fmt.Sprintf("Generated: %s\n\n", s.GeneratedAt.Format(time.RFC3339)))
	if s.Wallet != "" {
		sb.WriteString(fmt.Sprintf("Mode: single wallet `%s`\n\n", s.Wallet))
	} else {
		sb.WriteString("Mode: all participants\n\n")
	}

	// Ranking
	sb.WriteString("## External Ranking\n\n")
	if s.RankingFile == "" {
		sb.WriteString("No ranking file supplied.\n\n")
	} else {
		sb.WriteString(fmt.Sprintf("File: `%s`\n\n", s.RankingFile))
		sb.WriteString("| Metric | Value |\n")
		sb.WriteString("|--------|-------|\n")
		sb.WriteString(fmt.Sprintf("| Rows Read | %d |\n", s.RankingRows))
		sb.WriteString(fmt.Sprintf("| Rows Skipped | %d |\n", s.RankingSkipped))
		sb.WriteString(fmt.Sprintf("| Duplicates Merged | %d |\n", s.RankingDuplicates))
		sb.WriteString(fmt.Sprintf("| Entries Kept | %d |\n", s.RankingKept))
		sb.WriteString("\n")
	}

	// Scoring
	sb.WriteString("## Scoring\n\n")
	sb.WriteString("| Metric | Value |\n")
	sb.WriteString("|--------|-------|\n")
	sb.WriteString(fmt.Sprintf("| Participants | %d |\n", s.Participants))
	sb.WriteString(fmt.Sprintf("| Excluded | %d |\n", s.Excluded))
	sb.WriteString(fmt.Sprintf("| Scored | %d |\n", s.Scored))
	sb.WriteString(fmt.Sprintf("| Batches | %d |\n", s.Batches))
	sb.WriteString(fmt.Sprintf("| Tier Upgrades | %d |\n", s.TierUpgrades))
	sb.WriteString(fmt.Sprintf("| Projection Corrections | %d |\n", s.ProjectionCorrections))
	sb.WriteString("\n")

	// Pools
	sb.WriteString("## Pools\n\n")
	sb.WriteString("| Pool | Size | Distributed |\n")
	sb.WriteString("|------|------|-------------|\n")
	sb.WriteString(fmt.Sprintf("| Points | %d | %d |\n", s.PoolSize, s.PoolPointsAllocated))
	sb.WriteString(fmt.Sprintf("| Rewards | %d | %d |\n", s.RewardPool, s.RewardsDistributed))
	sb.WriteString("\n")
	sb.WriteString(fmt.Sprintf("Reward recipients: %d. Ranked snapshots: %d.\n\n", s.RewardRecipients, s.Ranked))

	// Leaderboard head
	sb.WriteString("## Top Participants\n\n")
	if len(r.Leaderboard) == 0 {
		sb.WriteString("No snapshots for this date.\n")
		return sb.String()
	}
	sb.WriteString("| Rank | Wallet | Handle | Tier | Earned | Reward |\n")
	sb.WriteString("|------|--------|--------|------|--------|--------|\n")
	for i, row := range r.Leaderboard {
		if i == topRows || row.Rank == 0 {
			break
		}
		sb.WriteString(fmt.Sprintf("| %d | %s | %s | %s | %d | %d |\n",
			row.Rank, row.Wallet, row.Handle, row.Tier, row.EarnedToday, row.Reward))
	}

	return sb.String()
}
