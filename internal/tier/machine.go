package tier

import (
	"context"
	"errors"
	"fmt"
	"time"

	"engagement-rewards/internal/domain"
	"engagement-rewards/internal/storage"
)

// Input is what a tier is computed from.
type Input struct {
	Purchases int64
	Points    int64 // cumulative total
	Referrals int64
}

// Outcome reports what Apply decided.
type Outcome struct {
	Computed  domain.Tier // what the ladder says today
	Effective domain.Tier // what the participant holds after this run
	Event     *domain.TierEvent
	// ProjectionCorrected is set when the projection was rewritten without an event.
	ProjectionCorrected bool
}

// Upgraded reports whether a tier event was written.
func (o *Outcome) Upgraded() bool {
	return o.Event != nil
}

// Machine applies the upgrade-only persistence rule.
type Machine struct {
	ladder *Ladder
	now    func() time.Time
}

// NewMachine creates a tier state machine. A nil now uses time.Now.
func NewMachine(ladder *Ladder, now func() time.Time) *Machine {
	if now == nil {
		now = time.Now
	}
	return &Machine{ladder: ladder, now: now}
}

// Ladder returns the machine's ladder.
func (m *Machine) Ladder() *Ladder {
	return m.ladder
}

// Apply computes the tier of wallet and persists it. The stored tier is the
// higher of the newest event's tier and the projection, so a projection
// written before any event counts as a prior tier. An event and a projection
// update are written only when the computed tier beats the stored one;
// otherwise a projection that lags the stored tier is raised. The projection
// is never lowered.
func (m *Machine) Apply(ctx context.Context, stores storage.Stores, runID, wallet string, in Input) (*Outcome, error) {
	out := &Outcome{Computed: m.ladder.Evaluate(in.Purchases, in.Points, in.Referrals)}

	latest, err := stores.TierEvents.GetLatest(ctx, wallet)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("load latest tier event %s: %w", wallet, err)
	}
	projection, err := stores.TierProjections.Get(ctx, wallet)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("load tier projection %s: %w", wallet, err)
	}

	stored := domain.TierNone
	if latest != nil {
		stored = latest.NewTier
	}
	if projection != nil && projection.Tier > stored {
		stored = projection.Tier
	}

	now := m.now().UTC()

	if out.Computed > stored {
		event := &domain.TierEvent{
			RunID:     runID,
			Wallet:    wallet,
			NewTier:   out.Computed,
			Points:    in.Points,
			Referrals: in.Referrals,
			CreatedAt: now,
		}
		if latest != nil || projection != nil {
			previous := stored
			event.PreviousTier = &previous
		}
		if err := stores.TierEvents.Append(ctx, event); err != nil {
			return nil, fmt.Errorf("append tier event %s: %w", wallet, err)
		}
		if err := stores.TierProjections.Upsert(ctx, &domain.TierProjection{Wallet: wallet, Tier: out.Computed, UpdatedAt: now}); err != nil {
			return nil, fmt.Errorf("update tier projection %s: %w", wallet, err)
		}
		out.Event = event
		out.Effective = out.Computed
		return out, nil
	}

	out.Effective = stored
	if stored == domain.TierNone {
		return out, nil
	}

	if projection == nil || projection.Tier < stored {
		if err := stores.TierProjections.Upsert(ctx, &domain.TierProjection{Wallet: wallet, Tier: stored, UpdatedAt: now}); err != nil {
			return nil, fmt.Errorf("correct tier projection %s: %w", wallet, err)
		}
		out.ProjectionCorrected = true
	}
	return out, nil
}
