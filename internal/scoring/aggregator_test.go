package scoring

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"engagement-rewards/internal/config"
	"engagement-rewards/internal/domain"
	"engagement-rewards/internal/pool"
	"engagement-rewards/internal/storage"
	"engagement-rewards/internal/storage/memory"
)

var created = time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC)

func ptr[T any](v T) *T {
	return &v
}

// seedScenario builds the participant with 22 purchases, one active and one
// inactive referral, and a verified handle.
func seedScenario(db *memory.DB) {
	db.AddParticipant(domain.Participant{Wallet: "0xa", CreatedAt: created, ReferralCount: 2})
	db.AddParticipant(domain.Participant{Wallet: "0xb", CreatedAt: created})
	db.AddParticipant(domain.Participant{Wallet: "0xc", CreatedAt: created})
	db.AddSocialLink(domain.SocialIdentityLink{Wallet: "0xa", Handle: "@Alice", DisplayName: "Alice"})

	db.AddTransactions("0xa", 22, decimal.NewFromInt(50), created.Add(time.Hour))
	// Before the participant existed: ignored.
	db.AddTransactions("0xa", 5, decimal.NewFromInt(50), created.Add(-48*time.Hour))

	db.AddTransactions("0xb", 2, decimal.NewFromInt(1_500), created.Add(time.Hour))
	db.AddReferral(domain.ReferralEdge{Referrer: "0xa", Referee: "0xb"})
	db.AddReferral(domain.ReferralEdge{Referrer: "0xa", Referee: "0xc"})
	db.AddReferral(domain.ReferralEdge{Referrer: "0xb", Referee: "0xc", GrandReferrer: ptr("0xa")})
}

func newTestAggregator(t *testing.T, alloc pool.Allocation) *Aggregator {
	t.Helper()
	cfg := config.New()
	rules, err := NewRules(cfg.Scoring.Rules)
	require.NoError(t, err)
	return NewAggregator(rules, cfg.Referral, alloc)
}

func TestAggregator_Scenario(t *testing.T) {
	ctx := context.Background()
	db := memory.NewDB()
	seedScenario(db)

	agg := newTestAggregator(t, pool.Allocation{"alice": 500})

	score, err := agg.Score(ctx, db.Stores(), "0xa")
	require.NoError(t, err)

	assert.Equal(t, int64(22), score.PurchaseCount)
	assert.Equal(t, int64(2), score.ReferralCount)
	assert.Equal(t, int64(1), score.ActiveReferralCount)
	assert.Equal(t, int64(1), score.GrandReferralCount)
	assert.True(t, score.ReferralValue.Equal(decimal.NewFromInt(2_000)), "referral value %s", score.ReferralValue)

	assert.Equal(t, map[string]int64{
		"purchases":  2_200,
		"milestones": 10_000,
		"referrals":  1_000,
		"mindshare":  500,
	}, score.Components)
	assert.Equal(t, int64(500), score.PoolPoints)
	assert.Equal(t, int64(13_700), score.Total)
	assert.Equal(t, int64(13_200), score.NonPool())

	require.NotNil(t, score.Handle)
	assert.Equal(t, "alice", *score.Handle)
	require.NotNil(t, score.DisplayName)
	assert.Equal(t, "Alice", *score.DisplayName)
}

func TestAggregator_UnlinkedGetsNoPoolPoints(t *testing.T) {
	ctx := context.Background()
	db := memory.NewDB()
	seedScenario(db)

	agg := newTestAggregator(t, pool.Allocation{"bob": 900})

	score, err := agg.Score(ctx, db.Stores(), "0xb")
	require.NoError(t, err)
	assert.Nil(t, score.Handle)
	assert.Zero(t, score.PoolPoints)
	assert.Equal(t, int64(200), score.Total)
}

func TestAggregator_UnknownParticipant(t *testing.T) {
	db := memory.NewDB()
	agg := newTestAggregator(t, nil)

	_, err := agg.Score(context.Background(), db.Stores(), "0xmissing")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}
