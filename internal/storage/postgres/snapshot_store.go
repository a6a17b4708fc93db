package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"engagement-rewards/internal/domain"
	"engagement-rewards/internal/storage"
)

// SnapshotStore implements storage.SnapshotStore using PostgreSQL.
type SnapshotStore struct {
	db DBTX
}

// NewSnapshotStore creates a new SnapshotStore.
func NewSnapshotStore(db DBTX) *SnapshotStore {
	return &SnapshotStore{db: db}
}

// Compile-time interface check.
var _ storage.SnapshotStore = (*SnapshotStore)(nil)

const snapshotColumns = `
	id, run_id::text, run_date, wallet, handle, display_name,
	purchase_count, referral_count, active_referral_count, grand_referral_count,
	referral_value::text, secondary_reward::text,
	pool_points, total_points, earned_today, components,
	tier, reward_amount, rank, created_at
`

// Insert adds a snapshot and sets its ID. Returns ErrDuplicateKey if (run_id, wallet) exists.
func (s *SnapshotStore) Insert(ctx context.Context, snap *domain.DailyScoreSnapshot) error {
	if snap == nil || snap.Wallet == "" || snap.RunID == "" {
		return storage.ErrInvalidInput
	}

	components := snap.Components
	if components == nil {
		components = map[string]int64{}
	}

	query := `
		INSERT INTO daily_score_snapshots (
			run_id, run_date, wallet, handle, display_name,
			purchase_count, referral_count, active_referral_count, grand_referral_count,
			referral_value, secondary_reward,
			pool_points, total_points, earned_today, components,
			tier, reward_amount, rank, created_at
		) VALUES (
			$1::uuid, $2, $3, $4, $5,
			$6, $7, $8, $9,
			$10::numeric, $11::numeric,
			$12, $13, $14, $15,
			$16, $17, $18, COALESCE($19::timestamptz, now())
		)
		RETURNING id, created_at
	`

	err := s.db.QueryRow(ctx, query,
		snap.RunID, snap.RunDate, snap.Wallet, snap.Handle, snap.DisplayName,
		snap.PurchaseCount, snap.ReferralCount, snap.ActiveReferralCount, snap.GrandReferralCount,
		snap.ReferralValue.String(), snap.SecondaryReward.String(),
		snap.PoolPoints, snap.TotalPoints, snap.EarnedToday, components,
		int32(snap.Tier), snap.RewardAmount, snap.Rank, nullTime(snap.CreatedAt),
	).Scan(&snap.ID, &snap.CreatedAt)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert snapshot: %w", err)
	}
	return nil
}

// GetLatest retrieves the most recent snapshot of a wallet. Returns ErrNotFound if none.
func (s *SnapshotStore) GetLatest(ctx context.Context, wallet string) (*domain.DailyScoreSnapshot, error) {
	query := `
		SELECT ` + snapshotColumns + `
		FROM daily_score_snapshots
		WHERE wallet = $1
		ORDER BY id DESC
		LIMIT 1
	`

	snap, err := scanSnapshot(s.db.QueryRow(ctx, query, wallet))
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get latest snapshot: %w", err)
	}
	return snap, nil
}

// ListLatestForDate retrieves the latest snapshot of every wallet scored on runDate, ordered by ID ASC.
func (s *SnapshotStore) ListLatestForDate(ctx context.Context, runDate time.Time) ([]*domain.DailyScoreSnapshot, error) {
	query := `
		SELECT ` + snapshotColumns + `
		FROM (
			SELECT DISTINCT ON (wallet) *
			FROM daily_score_snapshots
			WHERE run_date = $1
			ORDER BY wallet, id DESC
		) latest
		ORDER BY id ASC
	`

	rows, err := s.db.Query(ctx, query, runDate)
	if err != nil {
		return nil, fmt.Errorf("list latest snapshots for date: %w", err)
	}
	defer rows.Close()

	return scanSnapshots(rows)
}

// UpdateRank sets the rank of a snapshot. Returns ErrNotFound if id does not exist.
func (s *SnapshotStore) UpdateRank(ctx context.Context, id int64, rank int64) error {
	return s.update(ctx, "rank", id, rank)
}

// UpdateReward sets the reward amount of a snapshot. Returns ErrNotFound if id does not exist.
func (s *SnapshotStore) UpdateReward(ctx context.Context, id int64, amount int64) error {
	return s.update(ctx, "reward_amount", id, amount)
}

// update sets one of the two mutable columns.
func (s *SnapshotStore) update(ctx context.Context, column string, id, value int64) error {
	query := `UPDATE daily_score_snapshots SET ` + column + ` = $2 WHERE id = $1`

	tag, err := s.db.Exec(ctx, query, id, value)
	if err != nil {
		return fmt.Errorf("update snapshot %s: %w", column, err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// scanSnapshot scans a single row into DailyScoreSnapshot.
func scanSnapshot(row pgx.Row) (*domain.DailyScoreSnapshot, error) {
	var (
		snap            domain.DailyScoreSnapshot
		referralValue   string
		secondaryReward string
		tier            int32
	)

	err := row.Scan(
		&snap.ID, &snap.RunID, &snap.RunDate, &snap.Wallet, &snap.Handle, &snap.DisplayName,
		&snap.PurchaseCount, &snap.ReferralCount, &snap.ActiveReferralCount, &snap.GrandReferralCount,
		&referralValue, &secondaryReward,
		&snap.PoolPoints, &snap.TotalPoints, &snap.EarnedToday, &snap.Components,
		&tier, &snap.RewardAmount, &snap.Rank, &snap.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	if snap.ReferralValue, err = parseNumeric(referralValue); err != nil {
		return nil, err
	}
	if snap.SecondaryReward, err = parseNumeric(secondaryReward); err != nil {
		return nil, err
	}
	snap.Tier = domain.Tier(tier)
	return &snap, nil
}

// scanSnapshots scans multiple rows into DailyScoreSnapshot slice.
func scanSnapshots(rows pgx.Rows) ([]*domain.DailyScoreSnapshot, error) {
	var result []*domain.DailyScoreSnapshot
	for rows.Next() {
		snap, err := scanSnapshot(rows)
		if err != nil {
			return nil, fmt.Errorf("scan snapshot: %w", err)
		}
		result = append(result, snap)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate snapshots: %w", err)
	}
	return result, nil
}
