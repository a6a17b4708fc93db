// Package reward splits the fixed daily reward pool over today's top earners.
package reward

import (
	"log/slog"
	"sort"

	"github.com/shopspring/decimal"

	"engagement-rewards/internal/domain"
	"engagement-rewards/internal/identity"
)

// Award is one participant's share of the pool.
type Award struct {
	SnapshotID int64
	Wallet     string
	Earned     int64
	Amount     int64
}

// Result is the outcome of one distribution.
type Result struct {
	Awards      []Award // in payout order, highest earner first
	Eligible    int     // snapshots left after the earned > 0 and exclusion filters
	Excluded    int     // snapshots with earned > 0 dropped by the exclusion list
	EarnedSum   int64   // earned total of the awarded top K
	Distributed int64   // sum of amounts, never above the pool
}

// AmountFor returns the award of a snapshot, 0 when it was not awarded.
func (r *Result) AmountFor(snapshotID int64) int64 {
	for _, a := range r.Awards {
		if a.SnapshotID == snapshotID {
			return a.Amount
		}
	}
	return 0
}

// Distributor splits a reward pool proportionally to points earned today.
type Distributor struct {
	pool     int64
	topK     int
	excluded identity.WalletSet
	logger   *slog.Logger
}

// NewDistributor creates a distributor for a pool shared by at most topK
// participants. Wallets in excluded are never rewarded.
func NewDistributor(pool int64, topK int, excluded identity.WalletSet, logger *slog.Logger) *Distributor {
	return &Distributor{
		pool:     pool,
		topK:     topK,
		excluded: excluded,
		logger:   logger.With("component", "reward"),
	}
}

// Distribute computes awards over snapshots given in creation order.
// Each of the top K earners gets round(earned / sumEarned * pool). When
// half-up rounding pushes the total above the pool, the entries rounded up
// the most give back one unit each until it fits.
func (d *Distributor) Distribute(snapshots []*domain.DailyScoreSnapshot) *Result {
	res := &Result{}

	candidates := make([]*domain.DailyScoreSnapshot, 0, len(snapshots))
	for _, s := range snapshots {
		if s.EarnedToday <= 0 {
			continue
		}
		if d.excluded.Contains(s.Wallet) {
			res.Excluded++
			continue
		}
		candidates = append(candidates, s)
	}
	res.Eligible = len(candidates)

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].EarnedToday > candidates[j].EarnedToday
	})
	if d.topK > 0 && len(candidates) > d.topK {
		candidates = candidates[:d.topK]
	}

	for _, s := range candidates {
		res.EarnedSum += s.EarnedToday
	}
	if res.EarnedSum == 0 || d.pool == 0 {
		d.logger.Info("no rewards distributed", "eligible", res.Eligible, "pool", d.pool)
		return res
	}

	pool := decimal.NewFromInt(d.pool)
	sum := decimal.NewFromInt(res.EarnedSum)

	exact := make([]decimal.Decimal, len(candidates))
	res.Awards = make([]Award, len(candidates))
	for i, s := range candidates {
		exact[i] = decimal.NewFromInt(s.EarnedToday).Mul(pool).Div(sum)
		res.Awards[i] = Award{
			SnapshotID: s.ID,
			Wallet:     s.Wallet,
			Earned:     s.EarnedToday,
			Amount:     exact[i].Round(0).IntPart(),
		}
		res.Distributed += res.Awards[i].Amount
	}

	if excess := res.Distributed - d.pool; excess > 0 {
		d.trim(res, exact, excess)
	}

	d.logger.Info("rewards distributed",
		"awards", len(res.Awards),
		"eligible", res.Eligible,
		"excluded", res.Excluded,
		"earned_sum", res.EarnedSum,
		"distributed", res.Distributed,
		"pool", d.pool,
	)
	return res
}

// trim takes one unit from each of the excess awards with the largest
// round-up, the lowest-ranked first on equal round-up.
func (d *Distributor) trim(res *Result, exact []decimal.Decimal, excess int64) {
	order := make([]int, len(res.Awards))
	for i := range order {
		order[i] = i
	}
	roundUp := func(i int) decimal.Decimal {
		return decimal.NewFromInt(res.Awards[i].Amount).Sub(exact[i])
	}
	sort.SliceStable(order, func(a, b int) bool {
		ua, ub := roundUp(order[a]), roundUp(order[b])
		if !ua.Equal(ub) {
			return ua.GreaterThan(ub)
		}
		return order[a] > order[b]
	})

	for _, i := range order[:excess] {
		res.Awards[i].Amount--
		res.Distributed--
	}
	d.logger.Debug("reward rounding trimmed", "units", excess)
}
