// Package tier maps cumulative scores to membership tiers and persists
// upgrades. Tiers never go down.
package tier

import (
	"github.com/shopspring/decimal"

	"engagement-rewards/internal/config"
	"engagement-rewards/internal/domain"
)

// Ladder is the ordered list of tiers. Rung i is domain.Tier(i+1).
type Ladder struct {
	rungs []config.TierConfig
}

// NewLadder creates a ladder from configuration, lowest rung first.
func NewLadder(rungs []config.TierConfig) *Ladder {
	return &Ladder{rungs: append([]config.TierConfig(nil), rungs...)}
}

// Evaluate returns the highest tier whose condition holds, or domain.TierNone.
// Upper rungs qualify on points OR referrals; the lowest rung qualifies on
// own purchases only.
func (l *Ladder) Evaluate(purchases, points, referrals int64) domain.Tier {
	for i := len(l.rungs) - 1; i >= 1; i-- {
		r := l.rungs[i]
		if (r.MinPoints > 0 && points >= r.MinPoints) || (r.MinReferrals > 0 && referrals >= r.MinReferrals) {
			return domain.Tier(i + 1)
		}
	}
	if len(l.rungs) > 0 && purchases >= l.rungs[0].MinPurchases {
		return domain.Tier(1)
	}
	return domain.TierNone
}

// Name returns the configured name of a tier, "none" for TierNone.
func (l *Ladder) Name(t domain.Tier) string {
	if t <= domain.TierNone || int(t) > len(l.rungs) {
		return "none"
	}
	return l.rungs[t-1].Name
}

// CommissionRate returns the commission rate a tier confers, zero for TierNone.
func (l *Ladder) CommissionRate(t domain.Tier) decimal.Decimal {
	if t <= domain.TierNone || int(t) > len(l.rungs) {
		return decimal.Zero
	}
	return l.rungs[t-1].CommissionRate
}
