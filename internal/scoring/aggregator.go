package scoring

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"engagement-rewards/internal/config"
	"engagement-rewards/internal/identity"
	"engagement-rewards/internal/pool"
	"engagement-rewards/internal/storage"
)

// Score is the full recomputation of one participant's cumulative state.
type Score struct {
	Wallet      string
	Handle      *string // normalized verified handle, nil if unlinked
	DisplayName *string

	PurchaseCount       int64
	ReferralCount       int64 // upstream cumulative referral count
	ActiveReferralCount int64
	GrandReferralCount  int64
	ReferralValue       decimal.Decimal // sum of min(amount, cap) over referees' purchases

	Components map[string]int64 // points per rule name
	PoolPoints int64            // sum of pool-kind components
	Total      int64
}

// NonPool returns the monotonic part of the total.
func (s *Score) NonPool() int64 {
	return s.Total - s.PoolPoints
}

// Aggregator recomputes cumulative totals from the ledger on every run.
type Aggregator struct {
	rules    []Rule
	referral config.ReferralConfig
	alloc    pool.Allocation
}

// NewAggregator creates an aggregator applying rules in order, with today's pool allocation.
func NewAggregator(rules []Rule, referral config.ReferralConfig, alloc pool.Allocation) *Aggregator {
	return &Aggregator{
		rules:    rules,
		referral: referral,
		alloc:    alloc,
	}
}

// Score computes the cumulative total for one wallet using the given stores.
func (a *Aggregator) Score(ctx context.Context, stores storage.Stores, wallet string) (*Score, error) {
	participant, err := stores.Participants.GetByWallet(ctx, wallet)
	if err != nil {
		return nil, fmt.Errorf("load participant %s: %w", wallet, err)
	}

	score := &Score{
		Wallet:        wallet,
		ReferralCount: participant.ReferralCount,
		Components:    make(map[string]int64, len(a.rules)),
	}

	link, err := stores.SocialLinks.GetByWallet(ctx, wallet)
	switch {
	case err == nil:
		if handle := identity.NormalizeHandle(link.Handle); handle != "" {
			score.Handle = &handle
		}
		if link.DisplayName != "" {
			name := link.DisplayName
			score.DisplayName = &name
		}
	case errors.Is(err, storage.ErrNotFound):
	default:
		return nil, fmt.Errorf("load social link %s: %w", wallet, err)
	}

	score.PurchaseCount, err = stores.Transactions.CountByPayer(ctx, wallet, participant.CreatedAt, time.Time{})
	if err != nil {
		return nil, fmt.Errorf("count purchases %s: %w", wallet, err)
	}

	if err := a.referralStats(ctx, stores, score); err != nil {
		return nil, err
	}

	var poolPoints int64
	if score.Handle != nil {
		poolPoints = a.alloc.PointsFor(*score.Handle)
	}

	facts := &Facts{
		Wallet:          wallet,
		Since:           participant.CreatedAt,
		PurchaseCount:   score.PurchaseCount,
		ActiveReferrals: score.ActiveReferralCount,
		PoolPoints:      poolPoints,
		Transactions:    stores.Transactions,
	}

	for _, r := range a.rules {
		points, err := r.Apply(ctx, facts)
		if err != nil {
			return nil, fmt.Errorf("apply rule %s to %s: %w", r.Name(), wallet, err)
		}
		score.Components[r.Name()] = points
		score.Total += points
		if r.Kind() == config.RuleKindPool {
			score.PoolPoints += points
		}
	}

	return score, nil
}

// referralStats fills the referral counters and value. Every referee costs
// two ledger queries.
func (a *Aggregator) referralStats(ctx context.Context, stores storage.Stores, score *Score) error {
	edges, err := stores.Referrals.ListByReferrer(ctx, score.Wallet)
	if err != nil {
		return fmt.Errorf("list referrals %s: %w", score.Wallet, err)
	}

	value := decimal.Zero
	for _, e := range edges {
		n, err := stores.Transactions.CountByPayer(ctx, e.Referee, time.Time{}, time.Time{})
		if err != nil {
			return fmt.Errorf("count referee purchases %s: %w", e.Referee, err)
		}
		if n >= a.referral.MinTransactions {
			score.ActiveReferralCount++
		}

		v, err := stores.Transactions.SumCappedByPayer(ctx, e.Referee, a.referral.TransactionValueCap)
		if err != nil {
			return fmt.Errorf("sum referee purchases %s: %w", e.Referee, err)
		}
		value = value.Add(v)
	}
	score.ReferralValue = value

	score.GrandReferralCount, err = stores.Referrals.CountByGrandReferrer(ctx, score.Wallet)
	if err != nil {
		return fmt.Errorf("count grand referrals %s: %w", score.Wallet, err)
	}
	return nil
}
