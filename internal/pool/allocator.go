// Package pool splits the fixed daily point pool over the external ranking.
package pool

import (
	"log/slog"

	"github.com/shopspring/decimal"

	"engagement-rewards/internal/domain"
	"engagement-rewards/internal/identity"
)

// Allocation maps a normalized handle to its pool points for one run.
// It is recomputed from scratch every run and never carried forward.
type Allocation map[string]int64

// PointsFor returns the allocation for a handle, 0 when unranked.
// The handle is normalized the same way the ranking loader normalizes.
func (a Allocation) PointsFor(handle string) int64 {
	if a == nil {
		return 0
	}
	return a[identity.NormalizeHandle(handle)]
}

// Total returns the sum of all allocated points.
func (a Allocation) Total() int64 {
	var total int64
	for _, p := range a {
		total += p
	}
	return total
}

// Allocator converts a ranked metric set into pool points.
type Allocator struct {
	size   int64
	logger *slog.Logger
}

// NewAllocator creates an allocator for a pool of the given size.
func NewAllocator(size int64, logger *slog.Logger) *Allocator {
	return &Allocator{
		size:   size,
		logger: logger.With("component", "pool"),
	}
}

// Allocate gives every entry round(score * size) points. Shares are absolute
// proportions of the pool and are not renormalized against the set's score sum,
// so a partial dataset allocates less than the whole pool.
func (a *Allocator) Allocate(set *domain.RankedMetricSet) Allocation {
	alloc := make(Allocation, set.Len())
	if set.Len() == 0 || a.size == 0 {
		return alloc
	}

	size := decimal.NewFromInt(a.size)
	sum := set.ScoreSum()
	if sum.GreaterThan(decimal.NewFromInt(1)) {
		a.logger.Warn("ranking scores sum above 1, pool will be over-allocated",
			"score_sum", sum.String(), "pool_size", a.size)
	}

	for _, e := range set.Entries {
		alloc[e.Handle] = e.Score.Mul(size).Round(0).IntPart()
	}

	a.logger.Info("pool allocated",
		"entries", len(alloc),
		"score_sum", sum.String(),
		"points", alloc.Total(),
	)
	return alloc
}
