package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Participant is a wallet-holding actor eligible for scoring.
// Owned by the upstream identity system; read-only here.
type Participant struct {
	Wallet        string    // canonical lower-case wallet address
	CreatedAt     time.Time // account creation
	ReferralCount int64     // cumulative referral count maintained upstream
}

// SocialIdentityLink binds a participant to a verified external handle.
type SocialIdentityLink struct {
	Wallet      string
	Handle      string // external platform username, as stored upstream
	DisplayName string
}

// TransactionRecord is an immutable completed purchase.
type TransactionRecord struct {
	ID          int64
	Payer       string          // canonical payer wallet
	Amount      decimal.Decimal // purchase amount
	CompletedAt time.Time
}

// ReferralEdge is a directed referral from Referrer to Referee.
type ReferralEdge struct {
	Referrer      string
	Referee       string
	GrandReferrer *string // second-level referrer (nullable)
	CreatedAt     time.Time
}
