package domain

import "time"

// Tier is an ordinal membership level. Higher is better.
// TierNone marks a participant that has not met the entry condition.
type Tier int

// TierNone is the zero tier: no membership.
const TierNone Tier = 0

// TierEvent is an append-only record of a tier change.
// Corresponds to tier_events table in PostgreSQL.
type TierEvent struct {
	ID           int64
	RunID        string
	Wallet       string
	PreviousTier *Tier // nil on first-ever assignment
	NewTier      Tier
	Points       int64 // cumulative total at the moment of change
	Referrals    int64 // referral count at the moment of change
	CreatedAt    time.Time
}

// TierProjection is the latest authoritative tier per participant.
// Corresponds to current_tier_projections table, keyed by wallet.
type TierProjection struct {
	Wallet    string
	Tier      Tier
	UpdatedAt time.Time
}
