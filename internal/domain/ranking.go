package domain

import "github.com/shopspring/decimal"

// RankedMetric is one row of the external ranked dataset.
type RankedMetric struct {
	Handle string          // normalized handle
	Score  decimal.Decimal // normalized share of total activity, >= 0
}

// RankedMetricSet is a validated ranking, sorted by Score descending and
// truncated to the configured top-K.
type RankedMetricSet struct {
	Entries []RankedMetric
}

// Len returns the number of ranked entries.
func (s *RankedMetricSet) Len() int {
	if s == nil {
		return 0
	}
	return len(s.Entries)
}

// ScoreSum returns the sum of all entry scores.
func (s *RankedMetricSet) ScoreSum() decimal.Decimal {
	sum := decimal.Zero
	if s == nil {
		return sum
	}
	for _, e := range s.Entries {
		sum = sum.Add(e.Score)
	}
	return sum
}
