package memory

import (
	"context"
	"sort"
	"time"

	"engagement-rewards/internal/domain"
	"engagement-rewards/internal/storage"
)

// SnapshotStore is an in-memory implementation of storage.SnapshotStore.
type SnapshotStore struct {
	h *handle
}

var _ storage.SnapshotStore = (*SnapshotStore)(nil)

// Insert adds a snapshot and sets its ID. Returns ErrDuplicateKey if (run_id, wallet) exists.
func (s *SnapshotStore) Insert(_ context.Context, snap *domain.DailyScoreSnapshot) error {
	if snap == nil || snap.Wallet == "" || snap.RunID == "" {
		return storage.ErrInvalidInput
	}

	s.h.mu.Lock()
	defer s.h.mu.Unlock()

	for _, existing := range s.h.st.snapshots {
		if existing.RunID == snap.RunID && existing.Wallet == snap.Wallet {
			return storage.ErrDuplicateKey
		}
	}

	snap.ID = s.h.st.nextSnapshotID
	s.h.st.nextSnapshotID++
	if snap.CreatedAt.IsZero() {
		snap.CreatedAt = time.Now().UTC()
	}

	s.h.st.snapshots = append(s.h.st.snapshots, copySnapshot(snap))
	return nil
}

// GetLatest retrieves the most recent snapshot of a wallet. Returns ErrNotFound if none.
func (s *SnapshotStore) GetLatest(_ context.Context, wallet string) (*domain.DailyScoreSnapshot, error) {
	s.h.mu.RLock()
	defer s.h.mu.RUnlock()

	for i := len(s.h.st.snapshots) - 1; i >= 0; i-- {
		if s.h.st.snapshots[i].Wallet == wallet {
			return copySnapshot(s.h.st.snapshots[i]), nil
		}
	}
	return nil, storage.ErrNotFound
}

// ListLatestForDate retrieves the latest snapshot of every wallet scored on runDate, ordered by ID ASC.
func (s *SnapshotStore) ListLatestForDate(_ context.Context, runDate time.Time) ([]*domain.DailyScoreSnapshot, error) {
	s.h.mu.RLock()
	defer s.h.mu.RUnlock()

	latest := make(map[string]*domain.DailyScoreSnapshot)
	for _, snap := range s.h.st.snapshots {
		if sameDate(snap.RunDate, runDate) {
			latest[snap.Wallet] = snap // IDs ascend, so the last one wins
		}
	}

	result := make([]*domain.DailyScoreSnapshot, 0, len(latest))
	for _, snap := range latest {
		result = append(result, copySnapshot(snap))
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].ID < result[j].ID
	})
	return result, nil
}

// UpdateRank sets the rank of a snapshot. Returns ErrNotFound if id does not exist.
func (s *SnapshotStore) UpdateRank(_ context.Context, id int64, rank int64) error {
	return s.update(id, func(snap *domain.DailyScoreSnapshot) { snap.Rank = rank })
}

// UpdateReward sets the reward amount of a snapshot. Returns ErrNotFound if id does not exist.
func (s *SnapshotStore) UpdateReward(_ context.Context, id int64, amount int64) error {
	return s.update(id, func(snap *domain.DailyScoreSnapshot) { snap.RewardAmount = amount })
}

func (s *SnapshotStore) update(id int64, apply func(*domain.DailyScoreSnapshot)) error {
	s.h.mu.Lock()
	defer s.h.mu.Unlock()

	for _, snap := range s.h.st.snapshots {
		if snap.ID == id {
			apply(snap)
			return nil
		}
	}
	return storage.ErrNotFound
}

// sameDate compares calendar dates, the way a DATE column does.
func sameDate(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}
