package tier

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"engagement-rewards/internal/config"
	"engagement-rewards/internal/domain"
	"engagement-rewards/internal/storage"
	"engagement-rewards/internal/storage/memory"
)

var fixedNow = time.Date(2026, 10, 19, 3, 0, 0, 0, time.UTC)

func newTestMachine() *Machine {
	return NewMachine(NewLadder(config.New().Tiers), func() time.Time { return fixedNow })
}

func events(t *testing.T, stores storage.Stores, wallet string) []*domain.TierEvent {
	t.Helper()
	list, err := stores.TierEvents.ListByWallet(context.Background(), wallet)
	require.NoError(t, err)
	return list
}

func projection(t *testing.T, stores storage.Stores, wallet string) domain.Tier {
	t.Helper()
	p, err := stores.TierProjections.Get(context.Background(), wallet)
	require.NoError(t, err)
	return p.Tier
}

func TestApply_FirstEntry(t *testing.T) {
	ctx := context.Background()
	stores := memory.NewDB().Stores()
	m := newTestMachine()

	out, err := m.Apply(ctx, stores, "run-1", "0xa", Input{Purchases: 22, Points: 13_700, Referrals: 1})
	require.NoError(t, err)

	assert.True(t, out.Upgraded())
	assert.Equal(t, domain.Tier(2), out.Effective)
	assert.Nil(t, out.Event.PreviousTier)
	assert.Equal(t, int64(13_700), out.Event.Points)
	assert.Equal(t, fixedNow, out.Event.CreatedAt)

	assert.Len(t, events(t, stores, "0xa"), 1)
	assert.Equal(t, domain.Tier(2), projection(t, stores, "0xa"))
}

func TestApply_NoTierNoWrites(t *testing.T) {
	ctx := context.Background()
	stores := memory.NewDB().Stores()

	out, err := newTestMachine().Apply(ctx, stores, "run-1", "0xa", Input{Points: 500})
	require.NoError(t, err)

	assert.False(t, out.Upgraded())
	assert.Equal(t, domain.TierNone, out.Effective)
	assert.Empty(t, events(t, stores, "0xa"))
	_, err = stores.TierProjections.Get(ctx, "0xa")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestApply_UpgradeThenNeverDowngrade(t *testing.T) {
	ctx := context.Background()
	stores := memory.NewDB().Stores()
	m := newTestMachine()

	steps := []struct {
		in        Input
		effective domain.Tier
		upgraded  bool
	}{
		{Input{Purchases: 1, Points: 100}, 1, true},
		{Input{Purchases: 1, Points: 100}, 1, false},    // no-op
		{Input{Purchases: 5, Points: 60_000}, 3, true},  // skips silver
		{Input{Purchases: 5, Points: 20_000}, 3, false}, // would be silver: kept at gold
		{Input{Purchases: 0, Points: 0}, 3, false},      // would be none: kept at gold
		{Input{Purchases: 5, Referrals: 200}, 4, true},
	}

	for i, s := range steps {
		out, err := m.Apply(ctx, stores, "run", "0xa", s.in)
		require.NoError(t, err)
		assert.Equal(t, s.effective, out.Effective, "step %d", i)
		assert.Equal(t, s.upgraded, out.Upgraded(), "step %d", i)
		assert.Equal(t, s.effective, projection(t, stores, "0xa"), "step %d", i)
	}

	list := events(t, stores, "0xa")
	require.Len(t, list, 3)
	for i, e := range list {
		if i == 0 {
			assert.Nil(t, e.PreviousTier)
			continue
		}
		require.NotNil(t, e.PreviousTier)
		assert.Greater(t, e.NewTier, *e.PreviousTier)
		assert.Equal(t, list[i-1].NewTier, *e.PreviousTier)
	}
}

func TestApply_CorrectsDriftedProjection(t *testing.T) {
	ctx := context.Background()
	stores := memory.NewDB().Stores()
	m := newTestMachine()

	_, err := m.Apply(ctx, stores, "run-1", "0xa", Input{Purchases: 1, Points: 10_000})
	require.NoError(t, err)

	// Someone else overwrote the projection.
	require.NoError(t, stores.TierProjections.Upsert(ctx, &domain.TierProjection{Wallet: "0xa", Tier: 1}))

	out, err := m.Apply(ctx, stores, "run-2", "0xa", Input{Purchases: 1, Points: 10_000})
	require.NoError(t, err)

	assert.False(t, out.Upgraded())
	assert.True(t, out.ProjectionCorrected)
	assert.Equal(t, domain.Tier(2), projection(t, stores, "0xa"))
	assert.Len(t, events(t, stores, "0xa"), 1)

	// In sync now: nothing to correct.
	out, err = m.Apply(ctx, stores, "run-3", "0xa", Input{Purchases: 1, Points: 10_000})
	require.NoError(t, err)
	assert.False(t, out.ProjectionCorrected)
}

func TestApply_ProjectionWithoutEventsIsNotLowered(t *testing.T) {
	ctx := context.Background()
	stores := memory.NewDB().Stores()
	m := newTestMachine()

	// Backfilled gold membership with no event history.
	require.NoError(t, stores.TierProjections.Upsert(ctx, &domain.TierProjection{Wallet: "0xa", Tier: 3}))

	out, err := m.Apply(ctx, stores, "run-1", "0xa", Input{Purchases: 22, Points: 13_700, Referrals: 1})
	require.NoError(t, err)

	assert.Equal(t, domain.Tier(2), out.Computed)
	assert.Equal(t, domain.Tier(3), out.Effective)
	assert.False(t, out.Upgraded())
	assert.False(t, out.ProjectionCorrected)
	assert.Equal(t, domain.Tier(3), projection(t, stores, "0xa"))
	assert.Empty(t, events(t, stores, "0xa"))

	// Beating the backfilled tier records it as the previous tier.
	out, err = m.Apply(ctx, stores, "run-2", "0xa", Input{Purchases: 22, Referrals: 200})
	require.NoError(t, err)

	require.True(t, out.Upgraded())
	require.NotNil(t, out.Event.PreviousTier)
	assert.Equal(t, domain.Tier(3), *out.Event.PreviousTier)
	assert.Equal(t, domain.Tier(4), projection(t, stores, "0xa"))
}

func TestApply_HigherProjectionIsKept(t *testing.T) {
	ctx := context.Background()
	stores := memory.NewDB().Stores()
	m := newTestMachine()

	_, err := m.Apply(ctx, stores, "run-1", "0xa", Input{Purchases: 1, Points: 10_000})
	require.NoError(t, err)

	// Projection moved ahead of the event history.
	require.NoError(t, stores.TierProjections.Upsert(ctx, &domain.TierProjection{Wallet: "0xa", Tier: 4}))

	out, err := m.Apply(ctx, stores, "run-2", "0xa", Input{Purchases: 1, Points: 60_000})
	require.NoError(t, err)

	assert.False(t, out.Upgraded())
	assert.False(t, out.ProjectionCorrected)
	assert.Equal(t, domain.Tier(4), out.Effective)
	assert.Equal(t, domain.Tier(4), projection(t, stores, "0xa"))
	assert.Len(t, events(t, stores, "0xa"), 1)
}
