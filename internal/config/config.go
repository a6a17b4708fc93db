// Package config defines the scorer's injected configuration: datastore
// access, pool sizes, scoring rules, the tier ladder and exclusion lists.
// Nothing in the engine reads global state; tests build a Config with New
// and override what they need.
package config

import (
	"fmt"
	"net"
	"net/url"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
)

// Rule kinds understood by the score aggregator.
const (
	RuleKindPurchase  = "purchase"
	RuleKindMilestone = "milestone"
	RuleKindReferral  = "referral"
	RuleKindPool      = "pool"
	RuleKindCampaign  = "campaign"
)

// Duplicate handle policies for the external ranking.
const (
	DuplicateFirst = "first"
	DuplicateLast  = "last"
	DuplicateSum   = "sum"
)

// Config contains process configuration.
type Config struct {
	// Production enables production defaults (TLS to the datastore).
	Production bool `koanf:"production"`

	Log        LogConfig       `koanf:"log"`
	DB         DBConfig        `koanf:"db"`
	Ranking    RankingConfig   `koanf:"ranking"`
	Pool       PoolConfig      `koanf:"pool"`
	Scoring    ScoringConfig   `koanf:"scoring"`
	Referral   ReferralConfig  `koanf:"referral"`
	Tiers      []TierConfig    `koanf:"tiers"`
	Reward     RewardConfig    `koanf:"reward"`
	Exclusions ExclusionConfig `koanf:"exclusions"`
	Batch      BatchConfig     `koanf:"batch"`
	Metrics    MetricsConfig   `koanf:"metrics"`
	Clock      ClockConfig     `koanf:"clock"`
}

// LogConfig controls verbosity and output format.
type LogConfig struct {
	Level   string `koanf:"level"`   // debug, info, warn, error
	Format  string `koanf:"format"`  // text, json
	Verbose bool   `koanf:"verbose"` // forces debug
}

// DBConfig holds PostgreSQL connection settings.
type DBConfig struct {
	Host     string `koanf:"host"`
	Port     int    `koanf:"port"`
	User     string `koanf:"user"`
	Password string `koanf:"password"`
	Name     string `koanf:"name"`
	SSLMode  string `koanf:"ssl_mode"` // empty = derived from Production
}

// RankingConfig controls the external ranking loader.
type RankingConfig struct {
	TopK            int    `koanf:"top_k"`
	DuplicatePolicy string `koanf:"duplicate_policy"` // first, last, sum
}

// PoolConfig is the daily point pool split over the external ranking.
type PoolConfig struct {
	Size int64 `koanf:"size"`
}

// ScoringConfig lists the weighted point sources, applied in order.
type ScoringConfig struct {
	Rules []RuleConfig `koanf:"rules"`
}

// RuleConfig describes one scoring rule. Which fields apply depends on Kind:
//
//	purchase:  Points per own completed purchase
//	milestone: Points per MilestoneSize completed purchases
//	referral:  Points per active referral
//	pool:      no parameters, uses the pool allocation
//	campaign:  Points per own completed purchase in [Start, End)
type RuleConfig struct {
	Kind          string    `koanf:"kind"`
	Name          string    `koanf:"name"`
	Points        int64     `koanf:"points"`
	MilestoneSize int64     `koanf:"milestone_size"`
	Start         time.Time `koanf:"start"`
	End           time.Time `koanf:"end"`
}

// ReferralConfig defines referral activity and value rules.
type ReferralConfig struct {
	// MinTransactions a referee needs before the referral counts as active.
	MinTransactions int64 `koanf:"min_transactions"`
	// TransactionValueCap caps each referee transaction when summing referral value.
	TransactionValueCap decimal.Decimal `koanf:"transaction_value_cap"`
}

// TierConfig is one rung of the tier ladder, lowest first.
// The lowest rung qualifies on MinPurchases; every higher rung qualifies
// when either MinPoints or MinReferrals is reached (a zero threshold is unused).
type TierConfig struct {
	Name           string          `koanf:"name"`
	MinPurchases   int64           `koanf:"min_purchases"`
	MinPoints      int64           `koanf:"min_points"`
	MinReferrals   int64           `koanf:"min_referrals"`
	CommissionRate decimal.Decimal `koanf:"commission_rate"`
}

// RewardConfig is the daily reward pool split over today's earners.
type RewardConfig struct {
	Pool int64 `koanf:"pool"`
	TopK int   `koanf:"top_k"`
}

// ExclusionConfig lists wallets removed from each stage independently.
type ExclusionConfig struct {
	Scoring []string `koanf:"scoring"` // never scored, never snapshotted
	Rewards []string `koanf:"rewards"` // scored and ranked, never rewarded
	Ranking []string `koanf:"ranking"` // scored, left unranked
}

// BatchConfig bounds each scoring transaction.
type BatchConfig struct {
	Size int `koanf:"size"`
}

// MetricsConfig configures the optional Pushgateway export.
type MetricsConfig struct {
	PushgatewayURL string `koanf:"pushgateway_url"`
	Job            string `koanf:"job"`
}

// ClockConfig selects the timezone that defines "today".
type ClockConfig struct {
	Timezone string `koanf:"timezone"`
}

// New returns a Config populated with defaults.
func New() *Config {
	return &Config{
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		DB: DBConfig{
			Host: "localhost",
			Port: 5432,
			User: "postgres",
			Name: "postgres",
		},
		Ranking: RankingConfig{
			TopK:            100,
			DuplicatePolicy: DuplicateFirst,
		},
		Pool: PoolConfig{Size: 100_000},
		Scoring: ScoringConfig{
			Rules: []RuleConfig{
				{Kind: RuleKindPurchase, Name: "purchases", Points: 100},
				{Kind: RuleKindMilestone, Name: "milestones", Points: 10_000, MilestoneSize: 20},
				{Kind: RuleKindReferral, Name: "referrals", Points: 1_000},
				{Kind: RuleKindPool, Name: "mindshare"},
			},
		},
		Referral: ReferralConfig{
			MinTransactions:     1,
			TransactionValueCap: decimal.NewFromInt(1_000),
		},
		Tiers: []TierConfig{
			{Name: "bronze", MinPurchases: 1, CommissionRate: decimal.RequireFromString("0.02")},
			{Name: "silver", MinPoints: 10_000, MinReferrals: 10, CommissionRate: decimal.RequireFromString("0.03")},
			{Name: "gold", MinPoints: 50_000, MinReferrals: 50, CommissionRate: decimal.RequireFromString("0.05")},
			{Name: "platinum", MinPoints: 200_000, MinReferrals: 200, CommissionRate: decimal.RequireFromString("0.08")},
		},
		Reward: RewardConfig{
			Pool: 200_000,
			TopK: 25,
		},
		Batch:   BatchConfig{Size: 100},
		Metrics: MetricsConfig{Job: "engagement_scorer"},
		Clock:   ClockConfig{Timezone: "UTC"},
	}
}

// Validate checks internal consistency. Errors wrap ErrInvalidConfig.
func (c *Config) Validate() error {
	if c.Ranking.TopK <= 0 {
		return invalid("ranking.top_k must be positive, got %d", c.Ranking.TopK)
	}
	switch c.Ranking.DuplicatePolicy {
	case DuplicateFirst, DuplicateLast, DuplicateSum:
	default:
		return invalid("ranking.duplicate_policy %q is not one of first, last, sum", c.Ranking.DuplicatePolicy)
	}
	if c.Pool.Size < 0 {
		return invalid("pool.size must not be negative, got %d", c.Pool.Size)
	}
	if c.Reward.Pool < 0 {
		return invalid("reward.pool must not be negative, got %d", c.Reward.Pool)
	}
	if c.Reward.TopK <= 0 {
		return invalid("reward.top_k must be positive, got %d", c.Reward.TopK)
	}
	if c.Batch.Size <= 0 {
		return invalid("batch.size must be positive, got %d", c.Batch.Size)
	}
	if c.Referral.MinTransactions < 0 {
		return invalid("referral.min_transactions must not be negative")
	}
	if c.Referral.TransactionValueCap.IsNegative() {
		return invalid("referral.transaction_value_cap must not be negative")
	}
	if _, err := c.Location(); err != nil {
		return invalid("clock.timezone: %v", err)
	}
	if err := c.validateRules(); err != nil {
		return err
	}
	return c.validateTiers()
}

func (c *Config) validateRules() error {
	if len(c.Scoring.Rules) == 0 {
		return invalid("scoring.rules must not be empty")
	}
	names := make(map[string]struct{}, len(c.Scoring.Rules))
	for i, r := range c.Scoring.Rules {
		if r.Name == "" {
			return invalid("scoring.rules[%d]: name is required", i)
		}
		if _, dup := names[r.Name]; dup {
			return invalid("scoring.rules[%d]: duplicate name %q", i, r.Name)
		}
		names[r.Name] = struct{}{}
		if r.Points < 0 {
			return invalid("scoring.rules[%d]: points must not be negative", i)
		}
		switch r.Kind {
		case RuleKindPurchase, RuleKindReferral, RuleKindPool:
		case RuleKindMilestone:
			if r.MilestoneSize <= 0 {
				return invalid("scoring.rules[%d]: milestone_size must be positive", i)
			}
		case RuleKindCampaign:
			if r.Start.IsZero() || r.End.IsZero() || !r.End.After(r.Start) {
				return invalid("scoring.rules[%d]: campaign needs start < end", i)
			}
		default:
			return invalid("scoring.rules[%d]: unknown kind %q", i, r.Kind)
		}
	}
	return nil
}

func (c *Config) validateTiers() error {
	if len(c.Tiers) == 0 {
		return invalid("tiers must not be empty")
	}
	for i, t := range c.Tiers {
		if t.Name == "" {
			return invalid("tiers[%d]: name is required", i)
		}
		if t.MinPurchases < 0 || t.MinPoints < 0 || t.MinReferrals < 0 {
			return invalid("tiers[%d]: thresholds must not be negative", i)
		}
		if t.CommissionRate.IsNegative() {
			return invalid("tiers[%d]: commission_rate must not be negative", i)
		}
		if i == 0 {
			continue
		}
		if t.MinPoints == 0 && t.MinReferrals == 0 {
			return invalid("tiers[%d]: needs min_points or min_referrals", i)
		}
		prev := c.Tiers[i-1]
		if i > 1 && decreases(prev.MinPoints, t.MinPoints) || i > 1 && decreases(prev.MinReferrals, t.MinReferrals) {
			return invalid("tiers[%d]: thresholds must not decrease along the ladder", i)
		}
	}
	return nil
}

// decreases reports whether a threshold used on both rungs goes down.
func decreases(lower, higher int64) bool {
	return lower > 0 && higher > 0 && higher < lower
}

// Location returns the timezone that defines the run date.
func (c *Config) Location() (*time.Location, error) {
	if c.Clock.Timezone == "" {
		return time.UTC, nil
	}
	return time.LoadLocation(c.Clock.Timezone)
}

// ResolveSSLMode picks the sslmode for the datastore connection.
// An explicit override wins, then db.ssl_mode, then the production flag.
func (c *Config) ResolveSSLMode(override *bool) string {
	if override != nil {
		if *override {
			return "require"
		}
		return "disable"
	}
	if c.DB.SSLMode != "" {
		return c.DB.SSLMode
	}
	if c.Production {
		return "require"
	}
	return "disable"
}

// DSN builds a PostgreSQL connection URL with the given sslmode.
func (c *Config) DSN(sslMode string) string {
	u := url.URL{
		Scheme: "postgres",
		Host:   net.JoinHostPort(c.DB.Host, strconv.Itoa(c.DB.Port)),
		Path:   "/" + c.DB.Name,
	}
	if c.DB.Password != "" {
		u.User = url.UserPassword(c.DB.User, c.DB.Password)
	} else if c.DB.User != "" {
		u.User = url.User(c.DB.User)
	}
	q := url.Values{}
	q.Set("sslmode", sslMode)
	u.RawQuery = q.Encode()
	return u.String()
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidConfig, fmt.Sprintf(format, args...))
}
