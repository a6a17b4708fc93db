package memory

import (
	"context"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"engagement-rewards/internal/domain"
	"engagement-rewards/internal/storage"
)

// ParticipantStore is an in-memory implementation of storage.ParticipantStore.
type ParticipantStore struct {
	h *handle
}

var _ storage.ParticipantStore = (*ParticipantStore)(nil)

// ListWallets returns every participant wallet ordered by created_at ASC, wallet ASC.
func (s *ParticipantStore) ListWallets(_ context.Context) ([]string, error) {
	s.h.mu.RLock()
	defer s.h.mu.RUnlock()

	participants := make([]*domain.Participant, 0, len(s.h.st.participants))
	for _, p := range s.h.st.participants {
		participants = append(participants, p)
	}
	sort.Slice(participants, func(i, j int) bool {
		if !participants[i].CreatedAt.Equal(participants[j].CreatedAt) {
			return participants[i].CreatedAt.Before(participants[j].CreatedAt)
		}
		return participants[i].Wallet < participants[j].Wallet
	})

	wallets := make([]string, len(participants))
	for i, p := range participants {
		wallets[i] = p.Wallet
	}
	return wallets, nil
}

// GetByWallet retrieves a participant. Returns ErrNotFound if not exists.
func (s *ParticipantStore) GetByWallet(_ context.Context, wallet string) (*domain.Participant, error) {
	s.h.mu.RLock()
	defer s.h.mu.RUnlock()

	p, ok := s.h.st.participants[wallet]
	if !ok {
		return nil, storage.ErrNotFound
	}
	pCopy := *p
	return &pCopy, nil
}

// SocialLinkStore is an in-memory implementation of storage.SocialLinkStore.
type SocialLinkStore struct {
	h *handle
}

var _ storage.SocialLinkStore = (*SocialLinkStore)(nil)

// GetByWallet retrieves the verified handle of a participant. Returns ErrNotFound if none.
func (s *SocialLinkStore) GetByWallet(_ context.Context, wallet string) (*domain.SocialIdentityLink, error) {
	s.h.mu.RLock()
	defer s.h.mu.RUnlock()

	l, ok := s.h.st.links[wallet]
	if !ok {
		return nil, storage.ErrNotFound
	}
	lCopy := *l
	return &lCopy, nil
}

// TransactionStore is an in-memory implementation of storage.TransactionStore.
type TransactionStore struct {
	h *handle
}

var _ storage.TransactionStore = (*TransactionStore)(nil)

// CountByPayer counts completed transactions paid by wallet in [from, to).
func (s *TransactionStore) CountByPayer(_ context.Context, wallet string, from, to time.Time) (int64, error) {
	s.h.mu.RLock()
	defer s.h.mu.RUnlock()

	var n int64
	for _, t := range s.h.st.transactions {
		if t.Payer != wallet {
			continue
		}
		if !from.IsZero() && t.CompletedAt.Before(from) {
			continue
		}
		if !to.IsZero() && !t.CompletedAt.Before(to) {
			continue
		}
		n++
	}
	return n, nil
}

// SumCappedByPayer sums min(amount, valueCap) over completed transactions paid by wallet.
func (s *TransactionStore) SumCappedByPayer(_ context.Context, wallet string, valueCap decimal.Decimal) (decimal.Decimal, error) {
	s.h.mu.RLock()
	defer s.h.mu.RUnlock()

	sum := decimal.Zero
	for _, t := range s.h.st.transactions {
		if t.Payer == wallet {
			sum = sum.Add(decimal.Min(t.Amount, valueCap))
		}
	}
	return sum, nil
}

// ReferralStore is an in-memory implementation of storage.ReferralStore.
type ReferralStore struct {
	h *handle
}

var _ storage.ReferralStore = (*ReferralStore)(nil)

// ListByReferrer retrieves direct referrals of a wallet, ordered by created_at ASC, referee ASC.
func (s *ReferralStore) ListByReferrer(_ context.Context, wallet string) ([]*domain.ReferralEdge, error) {
	s.h.mu.RLock()
	defer s.h.mu.RUnlock()

	var result []*domain.ReferralEdge
	for _, e := range s.h.st.referrals {
		if e.Referrer == wallet {
			eCopy := *e
			result = append(result, &eCopy)
		}
	}
	sort.SliceStable(result, func(i, j int) bool {
		if !result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].CreatedAt.Before(result[j].CreatedAt)
		}
		return result[i].Referee < result[j].Referee
	})
	return result, nil
}

// CountByGrandReferrer counts edges whose second-level referrer is wallet.
func (s *ReferralStore) CountByGrandReferrer(_ context.Context, wallet string) (int64, error) {
	s.h.mu.RLock()
	defer s.h.mu.RUnlock()

	var n int64
	for _, e := range s.h.st.referrals {
		if e.GrandReferrer != nil && *e.GrandReferrer == wallet {
			n++
		}
	}
	return n, nil
}
