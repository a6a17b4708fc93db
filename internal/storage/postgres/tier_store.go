package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"engagement-rewards/internal/domain"
	"engagement-rewards/internal/storage"
)

// TierEventStore implements storage.TierEventStore using PostgreSQL.
type TierEventStore struct {
	db DBTX
}

// NewTierEventStore creates a new TierEventStore.
func NewTierEventStore(db DBTX) *TierEventStore {
	return &TierEventStore{db: db}
}

var _ storage.TierEventStore = (*TierEventStore)(nil)

// Append adds an event and sets its ID.
func (s *TierEventStore) Append(ctx context.Context, e *domain.TierEvent) error {
	if e == nil || e.Wallet == "" {
		return storage.ErrInvalidInput
	}

	var previous *int32
	if e.PreviousTier != nil {
		p := int32(*e.PreviousTier)
		previous = &p
	}

	query := `
		INSERT INTO tier_events (
			run_id, wallet, previous_tier, new_tier, points, referrals, created_at
		) VALUES (
			$1::uuid, $2, $3, $4, $5, $6, COALESCE($7::timestamptz, now())
		)
		RETURNING id, created_at
	`

	err := s.db.QueryRow(ctx, query,
		e.RunID, e.Wallet, previous, int32(e.NewTier), e.Points, e.Referrals, nullTime(e.CreatedAt),
	).Scan(&e.ID, &e.CreatedAt)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("append tier event: %w", err)
	}
	return nil
}

// GetLatest retrieves the most recent event of a wallet. Returns ErrNotFound if none.
func (s *TierEventStore) GetLatest(ctx context.Context, wallet string) (*domain.TierEvent, error) {
	query := `
		SELECT id, run_id::text, wallet, previous_tier, new_tier, points, referrals, created_at
		FROM tier_events
		WHERE wallet = $1
		ORDER BY id DESC
		LIMIT 1
	`

	e, err := scanTierEvent(s.db.QueryRow(ctx, query, wallet))
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get latest tier event: %w", err)
	}
	return e, nil
}

// ListByWallet retrieves all events of a wallet, ordered by ID ASC.
func (s *TierEventStore) ListByWallet(ctx context.Context, wallet string) ([]*domain.TierEvent, error) {
	query := `
		SELECT id, run_id::text, wallet, previous_tier, new_tier, points, referrals, created_at
		FROM tier_events
		WHERE wallet = $1
		ORDER BY id ASC
	`

	rows, err := s.db.Query(ctx, query, wallet)
	if err != nil {
		return nil, fmt.Errorf("list tier events by wallet: %w", err)
	}
	defer rows.Close()

	var result []*domain.TierEvent
	for rows.Next() {
		e, err := scanTierEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("scan tier event: %w", err)
		}
		result = append(result, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tier events: %w", err)
	}
	return result, nil
}

func scanTierEvent(row pgx.Row) (*domain.TierEvent, error) {
	var (
		e        domain.TierEvent
		previous *int32
		newTier  int32
	)
	if err := row.Scan(&e.ID, &e.RunID, &e.Wallet, &previous, &newTier, &e.Points, &e.Referrals, &e.CreatedAt); err != nil {
		return nil, err
	}
	if previous != nil {
		p := domain.Tier(*previous)
		e.PreviousTier = &p
	}
	e.NewTier = domain.Tier(newTier)
	return &e, nil
}

// TierProjectionStore implements storage.TierProjectionStore using PostgreSQL.
type TierProjectionStore struct {
	db DBTX
}

// NewTierProjectionStore creates a new TierProjectionStore.
func NewTierProjectionStore(db DBTX) *TierProjectionStore {
	return &TierProjectionStore{db: db}
}

var _ storage.TierProjectionStore = (*TierProjectionStore)(nil)

// Get retrieves the projection of a wallet. Returns ErrNotFound if not exists.
func (s *TierProjectionStore) Get(ctx context.Context, wallet string) (*domain.TierProjection, error) {
	query := `
		SELECT wallet, tier, updated_at
		FROM current_tier_projections
		WHERE wallet = $1
	`

	var (
		p    domain.TierProjection
		tier int32
	)
	if err := s.db.QueryRow(ctx, query, wallet).Scan(&p.Wallet, &tier, &p.UpdatedAt); err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get tier projection: %w", err)
	}
	p.Tier = domain.Tier(tier)
	return &p, nil
}

// Upsert inserts or replaces the projection of a wallet.
func (s *TierProjectionStore) Upsert(ctx context.Context, p *domain.TierProjection) error {
	if p == nil || p.Wallet == "" {
		return storage.ErrInvalidInput
	}

	query := `
		INSERT INTO current_tier_projections (wallet, tier, updated_at)
		VALUES ($1, $2, COALESCE($3::timestamptz, now()))
		ON CONFLICT (wallet) DO UPDATE
		SET tier = EXCLUDED.tier, updated_at = EXCLUDED.updated_at
	`

	if _, err := s.db.Exec(ctx, query, p.Wallet, int32(p.Tier), nullTime(p.UpdatedAt)); err != nil {
		return fmt.Errorf("upsert tier projection: %w", err)
	}
	return nil
}
