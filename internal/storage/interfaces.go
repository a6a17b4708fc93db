package storage

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"engagement-rewards/internal/domain"
)

// ParticipantStore provides read access to the upstream participants table.
type ParticipantStore interface {
	// ListWallets returns every participant wallet ordered by created_at ASC, wallet ASC.
	ListWallets(ctx context.Context) ([]string, error)

	// GetByWallet retrieves a participant. Returns ErrNotFound if not exists.
	GetByWallet(ctx context.Context, wallet string) (*domain.Participant, error)
}

// SocialLinkStore provides read access to social_identity_links.
type SocialLinkStore interface {
	// GetByWallet retrieves the verified handle of a participant.
	// Returns ErrNotFound if the participant has not verified one.
	GetByWallet(ctx context.Context, wallet string) (*domain.SocialIdentityLink, error)
}

// TransactionStore provides read access to completed transactions.
type TransactionStore interface {
	// CountByPayer counts completed transactions paid by wallet with
	// completed_at in [from, to). A zero from or to leaves that side open.
	CountByPayer(ctx context.Context, wallet string, from, to time.Time) (int64, error)

	// SumCappedByPayer sums min(amount, valueCap) over completed transactions paid by wallet.
	SumCappedByPayer(ctx context.Context, wallet string, valueCap decimal.Decimal) (decimal.Decimal, error)
}

// ReferralStore provides read access to referral_edges.
type ReferralStore interface {
	// ListByReferrer retrieves direct referrals of a wallet, ordered by created_at ASC, referee ASC.
	ListByReferrer(ctx context.Context, wallet string) ([]*domain.ReferralEdge, error)

	// CountByGrandReferrer counts edges whose second-level referrer is wallet.
	CountByGrandReferrer(ctx context.Context, wallet string) (int64, error)
}

// SnapshotStore provides access to daily_score_snapshots storage.
// Rows are append-only apart from the rank and reward columns.
type SnapshotStore interface {
	// Insert adds a snapshot and sets its ID (and CreatedAt when zero).
	// Returns ErrDuplicateKey if (run_id, wallet) exists.
	Insert(ctx context.Context, s *domain.DailyScoreSnapshot) error

	// GetLatest retrieves the most recent snapshot of a wallet, by ID.
	// Returns ErrNotFound if the wallet has never been scored.
	GetLatest(ctx context.Context, wallet string) (*domain.DailyScoreSnapshot, error)

	// ListLatestForDate retrieves, for every wallet scored on runDate, its latest
	// snapshot of that date, ordered by ID ASC.
	ListLatestForDate(ctx context.Context, runDate time.Time) ([]*domain.DailyScoreSnapshot, error)

	// UpdateRank sets the rank of a snapshot. Returns ErrNotFound if id does not exist.
	UpdateRank(ctx context.Context, id int64, rank int64) error

	// UpdateReward sets the reward amount of a snapshot. Returns ErrNotFound if id does not exist.
	UpdateReward(ctx context.Context, id int64, amount int64) error
}

// TierEventStore provides access to the append-only tier_events storage.
type TierEventStore interface {
	// Append adds an event and sets its ID (and CreatedAt when zero).
	Append(ctx context.Context, e *domain.TierEvent) error

	// GetLatest retrieves the most recent event of a wallet. Returns ErrNotFound if none.
	GetLatest(ctx context.Context, wallet string) (*domain.TierEvent, error)

	// ListByWallet retrieves all events of a wallet, ordered by ID ASC.
	ListByWallet(ctx context.Context, wallet string) ([]*domain.TierEvent, error)
}

// TierProjectionStore provides access to current_tier_projections, keyed by wallet.
type TierProjectionStore interface {
	// Get retrieves the projection of a wallet. Returns ErrNotFound if not exists.
	Get(ctx context.Context, wallet string) (*domain.TierProjection, error)

	// Upsert inserts or replaces the projection of a wallet.
	Upsert(ctx context.Context, p *domain.TierProjection) error
}

// Stores bundles every store the engine reads and writes.
// Inside UnitOfWork.WithinTx all of them share one transaction.
type Stores struct {
	Participants    ParticipantStore
	SocialLinks     SocialLinkStore
	Transactions    TransactionStore
	Referrals       ReferralStore
	Snapshots       SnapshotStore
	TierEvents      TierEventStore
	TierProjections TierProjectionStore
}

// UnitOfWork opens transactions over the stores.
type UnitOfWork interface {
	// Stores returns stores that run outside any transaction.
	Stores() Stores

	// WithinTx runs fn inside one transaction. The transaction commits when fn
	// returns nil and rolls back on error, which is returned as is.
	WithinTx(ctx context.Context, fn func(ctx context.Context, tx Stores) error) error
}
