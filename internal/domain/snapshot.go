package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// DailyScoreSnapshot is one row per participant per run.
// Corresponds to daily_score_snapshots table in PostgreSQL.
// Rows are immutable except for Rank and RewardAmount, which are filled in
// by the rank and reward passes after every participant has been scored.
type DailyScoreSnapshot struct {
	ID      int64     // insertion order, assigned by the store
	RunID   string    // run identifier (uuid)
	RunDate time.Time // day the run belongs to (midnight, UTC)
	Wallet  string

	// Identity (nullable when the participant has not verified a handle)
	Handle      *string
	DisplayName *string

	// Activity counters
	PurchaseCount       int64
	ReferralCount       int64
	ActiveReferralCount int64
	GrandReferralCount  int64

	// Referral value and the commission derived from it
	ReferralValue   decimal.Decimal
	SecondaryReward decimal.Decimal

	// Points
	PoolPoints  int64            // pool-allocated component, not cumulative
	TotalPoints int64            // cumulative total, pool component included
	EarnedToday int64            // non-negative daily credit
	Components  map[string]int64 // points per scoring rule name

	Tier Tier // effective tier after this run

	// Filled by the distribution passes
	RewardAmount int64
	Rank         int64 // 0 = unranked

	CreatedAt time.Time
}

// NonPoolPoints returns the monotonic part of the cumulative total.
func (s *DailyScoreSnapshot) NonPoolPoints() int64 {
	if s == nil {
		return 0
	}
	return s.TotalPoints - s.PoolPoints
}
