package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"engagement-rewards/internal/domain"
	"engagement-rewards/internal/storage"
)

func TestTierEventStore(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewTierEventStore(pool)

	_, err := store.GetLatest(ctx, "0xaaa")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	first := &domain.TierEvent{RunID: uuid.NewString(), Wallet: "0xaaa", NewTier: 1, Points: 100}
	require.NoError(t, store.Append(ctx, first))
	assert.NotZero(t, first.ID)

	second := &domain.TierEvent{
		RunID: uuid.NewString(), Wallet: "0xaaa",
		PreviousTier: ptr(domain.Tier(1)), NewTier: 3,
		Points: 60_000, Referrals: 4,
	}
	require.NoError(t, store.Append(ctx, second))

	latest, err := store.GetLatest(ctx, "0xaaa")
	require.NoError(t, err)
	assert.Equal(t, second.ID, latest.ID)
	assert.Equal(t, domain.Tier(3), latest.NewTier)
	require.NotNil(t, latest.PreviousTier)
	assert.Equal(t, domain.Tier(1), *latest.PreviousTier)
	assert.Equal(t, int64(60_000), latest.Points)

	events, err := store.ListByWallet(ctx, "0xaaa")
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Nil(t, events[0].PreviousTier)

	// The table refuses a downgrade outright.
	bad := &domain.TierEvent{RunID: uuid.NewString(), Wallet: "0xaaa", PreviousTier: ptr(domain.Tier(3)), NewTier: 2}
	assert.Error(t, store.Append(ctx, bad))
}

func TestTierProjectionStore(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewTierProjectionStore(pool)

	_, err := store.Get(ctx, "0xaaa")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	updated := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, store.Upsert(ctx, &domain.TierProjection{Wallet: "0xaaa", Tier: 1, UpdatedAt: updated}))
	require.NoError(t, store.Upsert(ctx, &domain.TierProjection{Wallet: "0xaaa", Tier: 2}))

	p, err := store.Get(ctx, "0xaaa")
	require.NoError(t, err)
	assert.Equal(t, domain.Tier(2), p.Tier)
	assert.True(t, p.UpdatedAt.After(updated))
}
