// Package scoring computes a participant's cumulative point total from an
// ordered list of rules, and the points earned since the previous run.
package scoring

import (
	"context"
	"fmt"
	"time"

	"engagement-rewards/internal/config"
	"engagement-rewards/internal/storage"
)

// Facts is what the rules see about one participant.
type Facts struct {
	Wallet          string
	Since           time.Time // participant creation; purchases before it do not count
	PurchaseCount   int64     // own completed purchases since Since
	ActiveReferrals int64
	PoolPoints      int64 // today's pool allocation for the linked handle

	// Transactions serves rules that need more than the counters above.
	Transactions storage.TransactionStore
}

// Rule is one weighted point source.
type Rule interface {
	Name() string
	Kind() string
	Apply(ctx context.Context, f *Facts) (int64, error)
}

// NewRules builds rules from configuration, keeping their order.
func NewRules(cfgs []config.RuleConfig) ([]Rule, error) {
	rules := make([]Rule, 0, len(cfgs))
	for _, c := range cfgs {
		r, err := newRule(c)
		if err != nil {
			return nil, err
		}
		rules = append(rules, r)
	}
	return rules, nil
}

func newRule(c config.RuleConfig) (Rule, error) {
	switch c.Kind {
	case config.RuleKindPurchase:
		return &PurchaseRule{name: c.Name, points: c.Points}, nil
	case config.RuleKindMilestone:
		if c.MilestoneSize <= 0 {
			return nil, fmt.Errorf("rule %q: milestone size must be positive", c.Name)
		}
		return &MilestoneRule{name: c.Name, points: c.Points, size: c.MilestoneSize}, nil
	case config.RuleKindReferral:
		return &ReferralRule{name: c.Name, points: c.Points}, nil
	case config.RuleKindPool:
		return &PoolRule{name: c.Name}, nil
	case config.RuleKindCampaign:
		return &CampaignRule{name: c.Name, points: c.Points, start: c.Start, end: c.End}, nil
	default:
		return nil, fmt.Errorf("rule %q: unknown kind %q", c.Name, c.Kind)
	}
}

// PurchaseRule awards fixed points per own completed purchase.
type PurchaseRule struct {
	name   string
	points int64
}

func (r *PurchaseRule) Name() string { return r.name }
func (r *PurchaseRule) Kind() string { return config.RuleKindPurchase }

func (r *PurchaseRule) Apply(_ context.Context, f *Facts) (int64, error) {
	return f.PurchaseCount * r.points, nil
}

// MilestoneRule awards a bonus for every full block of size purchases.
type MilestoneRule struct {
	name   string
	points int64
	size   int64
}

func (r *MilestoneRule) Name() string { return r.name }
func (r *MilestoneRule) Kind() string { return config.RuleKindMilestone }

func (r *MilestoneRule) Apply(_ context.Context, f *Facts) (int64, error) {
	return (f.PurchaseCount / r.size) * r.points, nil
}

// ReferralRule awards fixed points per active referral.
type ReferralRule struct {
	name   string
	points int64
}

func (r *ReferralRule) Name() string { return r.name }
func (r *ReferralRule) Kind() string { return config.RuleKindReferral }

func (r *ReferralRule) Apply(_ context.Context, f *Facts) (int64, error) {
	return f.ActiveReferrals * r.points, nil
}

// PoolRule passes through today's pool allocation. Its component is the
// non-monotonic part of the total.
type PoolRule struct {
	name string
}

func (r *PoolRule) Name() string { return r.name }
func (r *PoolRule) Kind() string { return config.RuleKindPool }

func (r *PoolRule) Apply(_ context.Context, f *Facts) (int64, error) {
	return f.PoolPoints, nil
}

// CampaignRule awards points per own completed purchase inside [start, end).
type CampaignRule struct {
	name       string
	points     int64
	start, end time.Time
}

func (r *CampaignRule) Name() string { return r.name }
func (r *CampaignRule) Kind() string { return config.RuleKindCampaign }

func (r *CampaignRule) Apply(ctx context.Context, f *Facts) (int64, error) {
	from := r.start
	if f.Since.After(from) {
		from = f.Since
	}
	if !from.Before(r.end) {
		return 0, nil
	}
	if f.Transactions == nil {
		return 0, fmt.Errorf("campaign rule %q: no transaction store", r.name)
	}
	n, err := f.Transactions.CountByPayer(ctx, f.Wallet, from, r.end)
	if err != nil {
		return 0, fmt.Errorf("campaign rule %q: %w", r.name, err)
	}
	return n * r.points, nil
}
