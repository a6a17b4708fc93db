package memory

import (
	"context"
	"time"

	"engagement-rewards/internal/domain"
	"engagement-rewards/internal/storage"
)

// TierEventStore is an in-memory implementation of storage.TierEventStore.
type TierEventStore struct {
	h *handle
}

var _ storage.TierEventStore = (*TierEventStore)(nil)

// Append adds an event and sets its ID.
func (s *TierEventStore) Append(_ context.Context, e *domain.TierEvent) error {
	if e == nil || e.Wallet == "" {
		return storage.ErrInvalidInput
	}

	s.h.mu.Lock()
	defer s.h.mu.Unlock()

	e.ID = s.h.st.nextTierEventID
	s.h.st.nextTierEventID++
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	s.h.st.tierEvents = append(s.h.st.tierEvents, copyTierEvent(e))
	return nil
}

// GetLatest retrieves the most recent event of a wallet. Returns ErrNotFound if none.
func (s *TierEventStore) GetLatest(_ context.Context, wallet string) (*domain.TierEvent, error) {
	s.h.mu.RLock()
	defer s.h.mu.RUnlock()

	for i := len(s.h.st.tierEvents) - 1; i >= 0; i-- {
		if s.h.st.tierEvents[i].Wallet == wallet {
			return copyTierEvent(s.h.st.tierEvents[i]), nil
		}
	}
	return nil, storage.ErrNotFound
}

// ListByWallet retrieves all events of a wallet, ordered by ID ASC.
func (s *TierEventStore) ListByWallet(_ context.Context, wallet string) ([]*domain.TierEvent, error) {
	s.h.mu.RLock()
	defer s.h.mu.RUnlock()

	var result []*domain.TierEvent
	for _, e := range s.h.st.tierEvents {
		if e.Wallet == wallet {
			result = append(result, copyTierEvent(e))
		}
	}
	return result, nil
}

// TierProjectionStore is an in-memory implementation of storage.TierProjectionStore.
type TierProjectionStore struct {
	h *handle
}

var _ storage.TierProjectionStore = (*TierProjectionStore)(nil)

// Get retrieves the projection of a wallet. Returns ErrNotFound if not exists.
func (s *TierProjectionStore) Get(_ context.Context, wallet string) (*domain.TierProjection, error) {
	s.h.mu.RLock()
	defer s.h.mu.RUnlock()

	p, ok := s.h.st.projections[wallet]
	if !ok {
		return nil, storage.ErrNotFound
	}
	pCopy := *p
	return &pCopy, nil
}

// Upsert inserts or replaces the projection of a wallet.
func (s *TierProjectionStore) Upsert(_ context.Context, p *domain.TierProjection) error {
	if p == nil || p.Wallet == "" {
		return storage.ErrInvalidInput
	}

	s.h.mu.Lock()
	defer s.h.mu.Unlock()

	pCopy := *p
	if pCopy.UpdatedAt.IsZero() {
		pCopy.UpdatedAt = time.Now().UTC()
	}
	s.h.st.projections[p.Wallet] = &pCopy
	return nil
}
