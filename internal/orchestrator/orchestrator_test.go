package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"engagement-rewards/internal/config"
	"engagement-rewards/internal/domain"
	"engagement-rewards/internal/logging"
	"engagement-rewards/internal/observability"
	"engagement-rewards/internal/storage"
	"engagement-rewards/internal/storage/memory"
)

var (
	created = time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC)
	day1    = time.Date(2026, 10, 19, 3, 0, 0, 0, time.UTC)
	day2    = day1.AddDate(0, 0, 1)
)

func ptr[T any](v T) *T {
	return &v
}

// seed builds three participants: 0xa with 22 purchases and a verified
// handle, 0xb with 2 purchases referred by 0xa, 0xc with nothing.
func seed(db *memory.DB) {
	db.AddParticipant(domain.Participant{Wallet: "0xa", CreatedAt: created, ReferralCount: 2})
	db.AddParticipant(domain.Participant{Wallet: "0xb", CreatedAt: created})
	db.AddParticipant(domain.Participant{Wallet: "0xc", CreatedAt: created})
	db.AddSocialLink(domain.SocialIdentityLink{Wallet: "0xa", Handle: "@Alice", DisplayName: "Alice"})

	db.AddTransactions("0xa", 22, decimal.NewFromInt(50), created.Add(time.Hour))
	db.AddTransactions("0xb", 2, decimal.NewFromInt(1_500), created.Add(time.Hour))
	db.AddReferral(domain.ReferralEdge{Referrer: "0xa", Referee: "0xb"})
	db.AddReferral(domain.ReferralEdge{Referrer: "0xa", Referee: "0xc"})
	db.AddReferral(domain.ReferralEdge{Referrer: "0xb", Referee: "0xc", GrandReferrer: ptr("0xa")})
}

func writeRanking(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "mindshare.csv")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

type runOpts struct {
	db      storage.UnitOfWork
	cfg     *config.Config
	now     time.Time
	ranking string
	wallet  string
	metrics *observability.Metrics
}

func run(t *testing.T, o runOpts) (*RunResult, error) {
	t.Helper()
	if o.cfg == nil {
		o.cfg = config.New()
	}
	orch, err := New(Options{
		DB:          o.db,
		Config:      o.cfg,
		RankingFile: o.ranking,
		Wallet:      o.wallet,
		Logger:      logging.Discard(),
		Metrics:     o.metrics,
		Now:         func() time.Time { return o.now },
	})
	require.NoError(t, err)
	return orch.Run(context.Background())
}

func byWallet(snaps []*domain.DailyScoreSnapshot) map[string]*domain.DailyScoreSnapshot {
	m := make(map[string]*domain.DailyScoreSnapshot, len(snaps))
	for _, s := range snaps {
		m[s.Wallet] = s
	}
	return m
}

func tierEvents(t *testing.T, db *memory.DB, wallet string) []*domain.TierEvent {
	t.Helper()
	list, err := db.Stores().TierEvents.ListByWallet(context.Background(), wallet)
	require.NoError(t, err)
	return list
}

func TestRun_FirstDay(t *testing.T) {
	db := memory.NewDB()
	seed(db)

	result, err := run(t, runOpts{db: db, now: day1, ranking: writeRanking(t, "handle,mindshare\nalice,0.005\n")})
	require.NoError(t, err)

	assert.Equal(t, time.Date(2026, 10, 19, 0, 0, 0, 0, time.UTC), result.RunDate)
	assert.Equal(t, 3, result.Participants)
	assert.Equal(t, 3, result.Scored)
	assert.Equal(t, 1, result.Batches)
	assert.Equal(t, int64(500), result.PoolPointsAllocated)
	assert.Equal(t, 2, result.TierUpgrades) // 0xa silver, 0xb bronze
	assert.Equal(t, 3, result.Ranked)

	snaps := byWallet(result.Snapshots)
	require.Len(t, snaps, 3)

	a := snaps["0xa"]
	assert.Equal(t, result.RunID, a.RunID)
	assert.Equal(t, int64(13_700), a.TotalPoints)
	assert.Equal(t, int64(500), a.PoolPoints)
	assert.Equal(t, int64(13_700), a.EarnedToday)
	assert.Equal(t, domain.Tier(2), a.Tier)
	assert.True(t, a.SecondaryReward.Equal(decimal.RequireFromString("60")), "secondary reward %s", a.SecondaryReward)
	assert.Equal(t, int64(1), a.Rank)
	require.NotNil(t, a.Handle)
	assert.Equal(t, "alice", *a.Handle)

	b := snaps["0xb"]
	assert.Equal(t, int64(200), b.EarnedToday)
	assert.Equal(t, domain.Tier(1), b.Tier)
	assert.Equal(t, int64(2), b.Rank)

	c := snaps["0xc"]
	assert.Equal(t, int64(0), c.EarnedToday)
	assert.Equal(t, domain.TierNone, c.Tier)
	assert.Equal(t, int64(3), c.Rank)
	assert.Equal(t, int64(0), c.RewardAmount)

	assert.Equal(t, int64(200_000), result.Rewards.Distributed)
	assert.Equal(t, int64(200_000), a.RewardAmount+b.RewardAmount)
	assert.Greater(t, a.RewardAmount, b.RewardAmount)

	// Persisted, not just returned.
	stored, err := db.Stores().Snapshots.GetLatest(context.Background(), "0xa")
	require.NoError(t, err)
	assert.Equal(t, a.RewardAmount, stored.RewardAmount)
	assert.Equal(t, int64(1), stored.Rank)
}

func TestRun_PoolDropNextDay(t *testing.T) {
	db := memory.NewDB()
	seed(db)

	_, err := run(t, runOpts{db: db, now: day1, ranking: writeRanking(t, "handle,mindshare\nalice,0.005\n")})
	require.NoError(t, err)

	result, err := run(t, runOpts{db: db, now: day2, ranking: writeRanking(t, "handle,mindshare\nalice,0.0005\n")})
	require.NoError(t, err)

	a := byWallet(result.Snapshots)["0xa"]
	assert.Equal(t, int64(13_250), a.TotalPoints)
	assert.Equal(t, int64(50), a.EarnedToday)
	assert.Equal(t, domain.Tier(2), a.Tier)
	assert.Equal(t, 0, result.TierUpgrades)
	assert.Len(t, tierEvents(t, db, "0xa"), 1)

	// Only 0xa earned today, so it takes the whole pool.
	assert.Equal(t, int64(200_000), a.RewardAmount)
	assert.Equal(t, int64(0), byWallet(result.Snapshots)["0xb"].RewardAmount)
}

func TestRun_SameDayRerun(t *testing.T) {
	db := memory.NewDB()
	seed(db)
	ranking := writeRanking(t, "handle,mindshare\nalice,0.005\n")

	first, err := run(t, runOpts{db: db, now: day1, ranking: ranking})
	require.NoError(t, err)
	second, err := run(t, runOpts{db: db, now: day1.Add(time.Hour), ranking: ranking})
	require.NoError(t, err)

	assert.NotEqual(t, first.RunID, second.RunID)
	assert.Equal(t, 0, second.TierUpgrades)

	snaps := byWallet(second.Snapshots)
	require.Len(t, snaps, 3)
	for _, s := range snaps {
		assert.Equal(t, second.RunID, s.RunID, "wallet %s", s.Wallet)
	}
	assert.Equal(t, int64(500), snaps["0xa"].EarnedToday)
	assert.Equal(t, int64(0), snaps["0xb"].EarnedToday)
	assert.Equal(t, int64(200_000), snaps["0xa"].RewardAmount)

	assert.Len(t, tierEvents(t, db, "0xa"), 1)
	assert.Len(t, tierEvents(t, db, "0xb"), 1)
}

func TestRun_NoRankingFile(t *testing.T) {
	db := memory.NewDB()
	seed(db)

	result, err := run(t, runOpts{db: db, now: day1, ranking: filepath.Join(t.TempDir(), "missing.csv")})
	require.NoError(t, err)

	assert.Equal(t, int64(0), result.PoolPointsAllocated)
	a := byWallet(result.Snapshots)["0xa"]
	assert.Equal(t, int64(13_200), a.TotalPoints)
	assert.Equal(t, int64(0), a.PoolPoints)
}

func TestRun_Exclusions(t *testing.T) {
	db := memory.NewDB()
	seed(db)

	cfg := config.New()
	cfg.Exclusions.Scoring = []string{"0xC"}
	cfg.Exclusions.Rewards = []string{"0xa"}
	cfg.Exclusions.Ranking = []string{"0xb"}

	result, err := run(t, runOpts{db: db, cfg: cfg, now: day1})
	require.NoError(t, err)

	assert.Equal(t, 2, result.Participants)
	assert.Equal(t, 1, result.Excluded)

	snaps := byWallet(result.Snapshots)
	require.Len(t, snaps, 2)
	assert.NotContains(t, snaps, "0xc")

	// Reward exclusion leaves the rank alone.
	assert.Equal(t, int64(1), snaps["0xa"].Rank)
	assert.Equal(t, int64(0), snaps["0xa"].RewardAmount)

	// Rank exclusion leaves the reward alone.
	assert.Equal(t, int64(0), snaps["0xb"].Rank)
	assert.Equal(t, int64(200_000), snaps["0xb"].RewardAmount)
	assert.Equal(t, 1, result.Rewards.Excluded)
}

// failingDB fails CountByPayer for one wallet inside transactions.
type failingDB struct {
	*memory.DB
	wallet string
}

func (f *failingDB) WithinTx(ctx context.Context, fn func(ctx context.Context, tx storage.Stores) error) error {
	return f.DB.WithinTx(ctx, func(ctx context.Context, tx storage.Stores) error {
		tx.Transactions = &failingTransactions{TransactionStore: tx.Transactions, wallet: f.wallet}
		return fn(ctx, tx)
	})
}

type failingTransactions struct {
	storage.TransactionStore
	wallet string
}

var errUpstream = errors.New("upstream query failed")

func (f *failingTransactions) CountByPayer(ctx context.Context, wallet string, from, to time.Time) (int64, error) {
	if wallet == f.wallet {
		return 0, errUpstream
	}
	return f.TransactionStore.CountByPayer(ctx, wallet, from, to)
}

func TestRun_BatchFailureRollsBack(t *testing.T) {
	db := memory.NewDB()
	for i := range 250 {
		db.AddParticipant(domain.Participant{Wallet: fmt.Sprintf("0x%04d", i), CreatedAt: created})
	}
	db.AddTransactions("0x0150", 3, decimal.NewFromInt(10), created.Add(time.Hour))

	metrics := observability.NewMetrics("")
	result, err := run(t, runOpts{
		db:      &failingDB{DB: db, wallet: "0x0150"},
		now:     day1,
		metrics: metrics,
	})
	require.ErrorIs(t, err, errUpstream)
	assert.Contains(t, err.Error(), "batch 2")

	// First batch committed, second rolled back, third never ran.
	assert.Equal(t, 1, result.Batches)
	assert.Equal(t, 100, result.Scored)
	assert.Nil(t, result.Rewards)

	stored, err := db.Stores().Snapshots.ListLatestForDate(context.Background(), result.RunDate)
	require.NoError(t, err)
	assert.Len(t, stored, 100)
	for _, s := range stored {
		assert.Equal(t, int64(0), s.Rank, "passes must not run after a failed batch")
	}
	_, err = db.Stores().Snapshots.GetLatest(context.Background(), "0x0100")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.BatchesTotal.WithLabelValues(observability.StatusCommitted)))
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.BatchesTotal.WithLabelValues(observability.StatusRolledBack)))
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.RunsTotal.WithLabelValues(observability.StatusFailure)))
}

func TestRun_RepairMode(t *testing.T) {
	db := memory.NewDB()
	seed(db)
	ranking := writeRanking(t, "handle,mindshare\nalice,0.005\n")

	_, err := run(t, runOpts{db: db, now: day1, ranking: ranking})
	require.NoError(t, err)

	// 0xb makes one more purchase; repair only 0xb.
	db.AddTransactions("0xb", 1, decimal.NewFromInt(10), day1.Add(-time.Minute))

	result, err := run(t, runOpts{db: db, now: day1.Add(time.Hour), ranking: ranking, wallet: "0xB"})
	require.NoError(t, err)

	assert.Equal(t, "0xb", result.Wallet)
	assert.Equal(t, 1, result.Participants)
	assert.Equal(t, 1, result.Scored)

	// The passes cover every wallet's latest row for the day.
	snaps := byWallet(result.Snapshots)
	require.Len(t, snaps, 3)
	assert.NotEqual(t, result.RunID, snaps["0xa"].RunID)
	assert.Equal(t, result.RunID, snaps["0xb"].RunID)
	assert.Equal(t, int64(100), snaps["0xb"].EarnedToday)

	assert.Equal(t, int64(1), snaps["0xa"].Rank)
	assert.Equal(t, int64(2), snaps["0xb"].Rank)
	assert.Equal(t, int64(200_000), snaps["0xa"].RewardAmount+snaps["0xb"].RewardAmount)
}

func TestRun_RepairModeErrors(t *testing.T) {
	db := memory.NewDB()
	seed(db)

	_, err := run(t, runOpts{db: db, now: day1, wallet: "0xdead"})
	assert.ErrorIs(t, err, ErrParticipantNotFound)

	cfg := config.New()
	cfg.Exclusions.Scoring = []string{"0xa"}
	_, err = run(t, runOpts{db: db, cfg: cfg, now: day1, wallet: "0xa"})
	assert.ErrorIs(t, err, ErrExcludedWallet)

	stored, err := db.Stores().Snapshots.ListLatestForDate(context.Background(), time.Date(2026, 10, 19, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Empty(t, stored)
}

func TestRun_TimezoneDefinesRunDate(t *testing.T) {
	db := memory.NewDB()
	seed(db)

	cfg := config.New()
	cfg.Clock.Timezone = "America/New_York"

	// 03:00 UTC is still the previous evening in New York.
	result, err := run(t, runOpts{db: db, cfg: cfg, now: day1})
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 10, 18, 0, 0, 0, 0, time.UTC), result.RunDate)
}

func TestNew_RequiresDBAndConfig(t *testing.T) {
	_, err := New(Options{Config: config.New()})
	assert.Error(t, err)
	_, err = New(Options{DB: memory.NewDB()})
	assert.Error(t, err)
}

func TestRun_RepairModeMatchesUpstreamWalletForm(t *testing.T) {
	const bare = "5aaeb6053f3e94c9b9a09f33669435e7ef1beaed"

	db := memory.NewDB()
	db.AddParticipant(domain.Participant{Wallet: bare, CreatedAt: created})
	db.AddTransactions(bare, 1, decimal.NewFromInt(10), created.Add(time.Hour))

	result, err := run(t, runOpts{db: db, now: day1, wallet: "0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed"})
	require.NoError(t, err)

	assert.Equal(t, bare, result.Wallet)
	assert.Equal(t, 1, result.Scored)
	require.Len(t, result.Snapshots, 1)
	assert.Equal(t, bare, result.Snapshots[0].Wallet)

	cfg := config.New()
	cfg.Exclusions.Scoring = []string{"0x" + bare}
	_, err = run(t, runOpts{db: db, cfg: cfg, now: day1, wallet: bare})
	assert.ErrorIs(t, err, ErrExcludedWallet)
}
