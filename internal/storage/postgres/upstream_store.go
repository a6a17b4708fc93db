package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"engagement-rewards/internal/domain"
	"engagement-rewards/internal/storage"
)

// ParticipantStore implements storage.ParticipantStore using PostgreSQL.
type ParticipantStore struct {
	db DBTX
}

// NewParticipantStore creates a new ParticipantStore.
func NewParticipantStore(db DBTX) *ParticipantStore {
	return &ParticipantStore{db: db}
}

var _ storage.ParticipantStore = (*ParticipantStore)(nil)

// ListWallets returns every participant wallet ordered by created_at ASC, wallet ASC.
func (s *ParticipantStore) ListWallets(ctx context.Context) ([]string, error) {
	query := `
		SELECT wallet
		FROM participants
		ORDER BY created_at ASC, wallet ASC
	`

	rows, err := s.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list participant wallets: %w", err)
	}
	defer rows.Close()

	var wallets []string
	for rows.Next() {
		var w string
		if err := rows.Scan(&w); err != nil {
			return nil, fmt.Errorf("scan participant wallet: %w", err)
		}
		wallets = append(wallets, w)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate participant wallets: %w", err)
	}
	return wallets, nil
}

// GetByWallet retrieves a participant. Returns ErrNotFound if not exists.
func (s *ParticipantStore) GetByWallet(ctx context.Context, wallet string) (*domain.Participant, error) {
	query := `
		SELECT wallet, created_at, referral_count
		FROM participants
		WHERE wallet = $1
	`

	var p domain.Participant
	err := s.db.QueryRow(ctx, query, wallet).Scan(&p.Wallet, &p.CreatedAt, &p.ReferralCount)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get participant by wallet: %w", err)
	}
	return &p, nil
}

// SocialLinkStore implements storage.SocialLinkStore using PostgreSQL.
type SocialLinkStore struct {
	db DBTX
}

// NewSocialLinkStore creates a new SocialLinkStore.
func NewSocialLinkStore(db DBTX) *SocialLinkStore {
	return &SocialLinkStore{db: db}
}

var _ storage.SocialLinkStore = (*SocialLinkStore)(nil)

// GetByWallet retrieves the verified handle of a participant. Returns ErrNotFound if none.
func (s *SocialLinkStore) GetByWallet(ctx context.Context, wallet string) (*domain.SocialIdentityLink, error) {
	query := `
		SELECT wallet, handle, COALESCE(display_name, '')
		FROM social_identity_links
		WHERE wallet = $1
	`

	var l domain.SocialIdentityLink
	err := s.db.QueryRow(ctx, query, wallet).Scan(&l.Wallet, &l.Handle, &l.DisplayName)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get social link by wallet: %w", err)
	}
	return &l, nil
}

// TransactionStore implements storage.TransactionStore using PostgreSQL.
// Only rows with status 'completed' are visible.
type TransactionStore struct {
	db DBTX
}

// NewTransactionStore creates a new TransactionStore.
func NewTransactionStore(db DBTX) *TransactionStore {
	return &TransactionStore{db: db}
}

var _ storage.TransactionStore = (*TransactionStore)(nil)

// CountByPayer counts completed transactions paid by wallet in [from, to).
func (s *TransactionStore) CountByPayer(ctx context.Context, wallet string, from, to time.Time) (int64, error) {
	query := `
		SELECT COUNT(*)
		FROM transactions
		WHERE payer = $1
		  AND status = 'completed'
		  AND ($2::timestamptz IS NULL OR completed_at >= $2::timestamptz)
		  AND ($3::timestamptz IS NULL OR completed_at < $3::timestamptz)
	`

	var n int64
	if err := s.db.QueryRow(ctx, query, wallet, nullTime(from), nullTime(to)).Scan(&n); err != nil {
		return 0, fmt.Errorf("count transactions by payer: %w", err)
	}
	return n, nil
}

// SumCappedByPayer sums min(amount, valueCap) over completed transactions paid by wallet.
func (s *TransactionStore) SumCappedByPayer(ctx context.Context, wallet string, valueCap decimal.Decimal) (decimal.Decimal, error) {
	query := `
		SELECT COALESCE(SUM(LEAST(amount, $2::numeric)), 0)::text
		FROM transactions
		WHERE payer = $1
		  AND status = 'completed'
	`

	var sum string
	if err := s.db.QueryRow(ctx, query, wallet, valueCap.String()).Scan(&sum); err != nil {
		return decimal.Zero, fmt.Errorf("sum capped transactions by payer: %w", err)
	}
	return parseNumeric(sum)
}

// ReferralStore implements storage.ReferralStore using PostgreSQL.
type ReferralStore struct {
	db DBTX
}

// NewReferralStore creates a new ReferralStore.
func NewReferralStore(db DBTX) *ReferralStore {
	return &ReferralStore{db: db}
}

var _ storage.ReferralStore = (*ReferralStore)(nil)

// ListByReferrer retrieves direct referrals of a wallet, ordered by created_at ASC, referee ASC.
func (s *ReferralStore) ListByReferrer(ctx context.Context, wallet string) ([]*domain.ReferralEdge, error) {
	query := `
		SELECT referrer, referee, grand_referrer, created_at
		FROM referral_edges
		WHERE referrer = $1
		ORDER BY created_at ASC, referee ASC
	`

	rows, err := s.db.Query(ctx, query, wallet)
	if err != nil {
		return nil, fmt.Errorf("list referrals by referrer: %w", err)
	}
	defer rows.Close()

	var result []*domain.ReferralEdge
	for rows.Next() {
		var e domain.ReferralEdge
		if err := rows.Scan(&e.Referrer, &e.Referee, &e.GrandReferrer, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan referral edge: %w", err)
		}
		result = append(result, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate referral edges: %w", err)
	}
	return result, nil
}

// CountByGrandReferrer counts edges whose second-level referrer is wallet.
func (s *ReferralStore) CountByGrandReferrer(ctx context.Context, wallet string) (int64, error) {
	query := `
		SELECT COUNT(*)
		FROM referral_edges
		WHERE grand_referrer = $1
	`

	var n int64
	if err := s.db.QueryRow(ctx, query, wallet).Scan(&n); err != nil {
		return 0, fmt.Errorf("count referrals by grand referrer: %w", err)
	}
	return n, nil
}
