package memory

import (
	"context"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"engagement-rewards/internal/domain"
	"engagement-rewards/internal/storage"
)

// state is the full dataset. Transactions work on a deep copy and swap it in on commit.
type state struct {
	participants map[string]*domain.Participant
	links        map[string]*domain.SocialIdentityLink
	transactions []*domain.TransactionRecord
	referrals    []*domain.ReferralEdge

	snapshots      []*domain.DailyScoreSnapshot // ordered by ID
	nextSnapshotID int64

	tierEvents      []*domain.TierEvent // ordered by ID
	nextTierEventID int64

	projections map[string]*domain.TierProjection
}

func newState() *state {
	return &state{
		participants:    make(map[string]*domain.Participant),
		links:           make(map[string]*domain.SocialIdentityLink),
		projections:     make(map[string]*domain.TierProjection),
		nextSnapshotID:  1,
		nextTierEventID: 1,
	}
}

// clone copies everything a transaction can modify. Upstream records are
// read-only to the stores, so their pointers are shared.
func (s *state) clone() *state {
	c := &state{
		participants:    make(map[string]*domain.Participant, len(s.participants)),
		links:           make(map[string]*domain.SocialIdentityLink, len(s.links)),
		transactions:    append([]*domain.TransactionRecord(nil), s.transactions...),
		referrals:       append([]*domain.ReferralEdge(nil), s.referrals...),
		snapshots:       make([]*domain.DailyScoreSnapshot, 0, len(s.snapshots)),
		nextSnapshotID:  s.nextSnapshotID,
		tierEvents:      append([]*domain.TierEvent(nil), s.tierEvents...),
		nextTierEventID: s.nextTierEventID,
		projections:     make(map[string]*domain.TierProjection, len(s.projections)),
	}
	for k, v := range s.participants {
		c.participants[k] = v
	}
	for k, v := range s.links {
		c.links[k] = v
	}
	for _, snap := range s.snapshots {
		c.snapshots = append(c.snapshots, copySnapshot(snap))
	}
	for k, v := range s.projections {
		p := *v
		c.projections[k] = &p
	}
	return c
}

// handle guards one state. The DB holds the committed handle; each
// transaction gets a private one.
type handle struct {
	mu sync.RWMutex
	st *state
}

// DB is an in-memory implementation of storage.UnitOfWork.
// Transactions are serialized; a failed transaction leaves no trace.
type DB struct {
	txMu sync.Mutex
	root *handle
}

// NewDB creates an empty in-memory database.
func NewDB() *DB {
	return &DB{root: &handle{st: newState()}}
}

// Compile-time interface check.
var _ storage.UnitOfWork = (*DB)(nil)

// Stores returns stores operating on committed state.
func (db *DB) Stores() storage.Stores {
	return storesFor(db.root)
}

// WithinTx runs fn against a private copy of the state and commits the copy
// only when fn succeeds.
func (db *DB) WithinTx(ctx context.Context, fn func(ctx context.Context, tx storage.Stores) error) error {
	db.txMu.Lock()
	defer db.txMu.Unlock()

	db.root.mu.RLock()
	work := &handle{st: db.root.st.clone()}
	db.root.mu.RUnlock()

	if err := fn(ctx, storesFor(work)); err != nil {
		return err
	}

	db.root.mu.Lock()
	db.root.st = work.st
	db.root.mu.Unlock()
	return nil
}

func storesFor(h *handle) storage.Stores {
	return storage.Stores{
		Participants:    &ParticipantStore{h: h},
		SocialLinks:     &SocialLinkStore{h: h},
		Transactions:    &TransactionStore{h: h},
		Referrals:       &ReferralStore{h: h},
		Snapshots:       &SnapshotStore{h: h},
		TierEvents:      &TierEventStore{h: h},
		TierProjections: &TierProjectionStore{h: h},
	}
}

// Seed helpers for the upstream tables, which the engine never writes.

// AddParticipant adds or replaces a participant.
func (db *DB) AddParticipant(p domain.Participant) {
	db.root.mu.Lock()
	defer db.root.mu.Unlock()
	db.root.st.participants[p.Wallet] = &p
}

// AddSocialLink adds or replaces the verified handle of a participant.
func (db *DB) AddSocialLink(l domain.SocialIdentityLink) {
	db.root.mu.Lock()
	defer db.root.mu.Unlock()
	db.root.st.links[l.Wallet] = &l
}

// AddTransaction appends a completed transaction. A zero ID is assigned.
func (db *DB) AddTransaction(t domain.TransactionRecord) {
	db.root.mu.Lock()
	defer db.root.mu.Unlock()
	if t.ID == 0 {
		t.ID = int64(len(db.root.st.transactions)) + 1
	}
	db.root.st.transactions = append(db.root.st.transactions, &t)
}

// AddTransactions appends n transactions of the same amount for payer,
// completed one minute apart starting at from.
func (db *DB) AddTransactions(payer string, n int, amount decimal.Decimal, from time.Time) {
	for i := 0; i < n; i++ {
		db.AddTransaction(domain.TransactionRecord{
			Payer:       payer,
			Amount:      amount,
			CompletedAt: from.Add(time.Duration(i) * time.Minute),
		})
	}
}

// AddReferral appends a referral edge.
func (db *DB) AddReferral(e domain.ReferralEdge) {
	db.root.mu.Lock()
	defer db.root.mu.Unlock()
	if e.GrandReferrer != nil {
		g := *e.GrandReferrer
		e.GrandReferrer = &g
	}
	db.root.st.referrals = append(db.root.st.referrals, &e)
}

func copySnapshot(s *domain.DailyScoreSnapshot) *domain.DailyScoreSnapshot {
	c := *s
	if s.Handle != nil {
		h := *s.Handle
		c.Handle = &h
	}
	if s.DisplayName != nil {
		n := *s.DisplayName
		c.DisplayName = &n
	}
	if s.Components != nil {
		c.Components = make(map[string]int64, len(s.Components))
		for k, v := range s.Components {
			c.Components[k] = v
		}
	}
	return &c
}

func copyTierEvent(e *domain.TierEvent) *domain.TierEvent {
	c := *e
	if e.PreviousTier != nil {
		p := *e.PreviousTier
		c.PreviousTier = &p
	}
	return &c
}
