// Package orchestrator runs the daily scoring pipeline.
// It coordinates: ranking load -> pool allocation -> per-participant scoring
// in transactional batches -> rank and reward passes over the day.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"engagement-rewards/internal/config"
	"engagement-rewards/internal/domain"
	"engagement-rewards/internal/identity"
	"engagement-rewards/internal/observability"
	"engagement-rewards/internal/pool"
	"engagement-rewards/internal/ranking"
	"engagement-rewards/internal/reward"
	"engagement-rewards/internal/scoring"
	"engagement-rewards/internal/storage"
	"engagement-rewards/internal/tier"
)

const tracerName = "engagement-rewards/orchestrator"

// Orchestrator coordinates one scoring run.
type Orchestrator struct {
	db      storage.UnitOfWork
	cfg     *config.Config
	logger  *slog.Logger
	metrics *observability.Metrics
	tracer  trace.Tracer
	now     func() time.Time

	rankingFile string
	wallet      string
	runID       string

	rules   []scoring.Rule
	machine *tier.Machine

	scoringExcluded identity.WalletSet
	rewardExcluded  identity.WalletSet
	rankExcluded    identity.WalletSet
}

// Options for creating Orchestrator.
type Options struct {
	// Required
	DB     storage.UnitOfWork
	Config *config.Config

	// Inputs of this run
	RankingFile string // empty = no ranking today
	Wallet      string // non-empty = single-wallet repair mode

	// Optional
	Logger  *slog.Logger
	Metrics *observability.Metrics
	Tracer  trace.Tracer
	Now     func() time.Time
	RunID   string // generated when empty
}

// New creates a new Orchestrator.
func New(opts Options) (*Orchestrator, error) {
	if opts.DB == nil || opts.Config == nil {
		return nil, errors.New("orchestrator: DB and Config are required")
	}

	rules, err := scoring.NewRules(opts.Config.Scoring.Rules)
	if err != nil {
		return nil, fmt.Errorf("build scoring rules: %w", err)
	}

	o := &Orchestrator{
		db:              opts.DB,
		cfg:             opts.Config,
		logger:          opts.Logger,
		metrics:         opts.Metrics,
		tracer:          opts.Tracer,
		now:             opts.Now,
		rankingFile:     opts.RankingFile,
		wallet:          identity.NormalizeWallet(opts.Wallet),
		runID:           opts.RunID,
		rules:           rules,
		scoringExcluded: identity.NewWalletSet(opts.Config.Exclusions.Scoring),
		rewardExcluded:  identity.NewWalletSet(opts.Config.Exclusions.Rewards),
		rankExcluded:    identity.NewWalletSet(opts.Config.Exclusions.Ranking),
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}
	o.logger = o.logger.With("component", "orchestrator")
	if o.metrics == nil {
		o.metrics = observability.NewMetrics("")
	}
	if o.tracer == nil {
		o.tracer = otel.Tracer(tracerName)
	}
	if o.now == nil {
		o.now = time.Now
	}
	if o.runID == "" {
		o.runID = uuid.NewString()
	}
	o.machine = tier.NewMachine(tier.NewLadder(opts.Config.Tiers), o.now)

	return o, nil
}

// RunResult contains results from orchestrator execution.
type RunResult struct {
	RunID   string
	RunDate time.Time
	Wallet  string

	Ranking             ranking.Stats
	PoolPointsAllocated int64

	Participants          int // selected for scoring
	Excluded              int // dropped by the scoring exclusion list
	Scored                int // in committed batches
	Batches               int // committed
	TierUpgrades          int
	ProjectionCorrections int

	Ranked  int
	Rewards *reward.Result

	// Today's snapshots after the rank and reward passes, in ID order.
	Snapshots []*domain.DailyScoreSnapshot

	Duration time.Duration
}

// Run executes the full pipeline. It stops at the first failing batch;
// batches committed before it stay committed and the passes do not run.
func (o *Orchestrator) Run(ctx context.Context) (result *RunResult, err error) {
	started := o.now()
	runDate, err := o.runDate(started)
	if err != nil {
		return nil, err
	}

	result = &RunResult{RunID: o.runID, RunDate: runDate, Wallet: o.wallet}

	ctx, span := o.tracer.Start(ctx, "scorer.run", trace.WithAttributes(
		attribute.String("run.id", o.runID),
		attribute.String("run.date", runDate.Format(time.DateOnly)),
		attribute.String("run.wallet", o.wallet),
	))
	defer func() {
		result.Duration = o.now().Sub(started)
		o.metrics.RecordRun(err == nil, result.Duration.Seconds(), o.now().Unix())
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			o.logger.Error("run failed", "run_id", o.runID, "scored", result.Scored, "batches", result.Batches, "error", err)
		}
		span.End()
	}()

	o.logger.Info("run started", "run_id", o.runID, "run_date", runDate.Format(time.DateOnly), "wallet", o.wallet)

	// Phase 1: external ranking and pool allocation
	loader := ranking.NewLoader(o.cfg.Ranking.TopK, o.cfg.Ranking.DuplicatePolicy, o.logger)
	set, stats := loader.Load(o.rankingFile)
	result.Ranking = stats
	o.metrics.RecordRanking(stats.RowsRead, stats.Skipped, stats.Duplicates, stats.Kept)

	alloc := pool.NewAllocator(o.cfg.Pool.Size, o.logger).Allocate(set)
	result.PoolPointsAllocated = alloc.Total()
	o.metrics.PoolPointsAllocated.Set(float64(result.PoolPointsAllocated))

	// Phase 2: participant selection
	wallets, err := o.selectWallets(ctx, result)
	if err != nil {
		return result, err
	}
	result.Participants = len(wallets)

	// Phase 3: per-participant scoring in batches
	aggregator := scoring.NewAggregator(o.rules, o.cfg.Referral, alloc)
	size := o.cfg.Batch.Size
	for start, n := 0, 1; start < len(wallets); start, n = start+size, n+1 {
		end := min(start+size, len(wallets))
		if err := o.runBatch(ctx, n, wallets[start:end], runDate, aggregator, result); err != nil {
			return result, err
		}
	}

	// Phase 4: rank and reward passes over the whole day
	if err := o.runPasses(ctx, runDate, result); err != nil {
		return result, err
	}

	o.logger.Info("run completed",
		"run_id", o.runID,
		"participants", result.Participants,
		"excluded", result.Excluded,
		"scored", result.Scored,
		"failed", result.Participants-result.Scored,
		"batches", result.Batches,
		"tier_upgrades", result.TierUpgrades,
		"pool_points", result.PoolPointsAllocated,
		"rewards_distributed", result.Rewards.Distributed,
		"reward_recipients", len(result.Rewards.Awards),
	)
	return result, nil
}

// runDate is today in the configured timezone, as a UTC midnight.
func (o *Orchestrator) runDate(now time.Time) (time.Time, error) {
	loc, err := o.cfg.Location()
	if err != nil {
		return time.Time{}, fmt.Errorf("resolve timezone: %w", err)
	}
	y, m, d := now.In(loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC), nil
}

// selectWallets returns the wallets to score, in participant order.
func (o *Orchestrator) selectWallets(ctx context.Context, result *RunResult) ([]string, error) {
	stores := o.db.Stores()

	if o.wallet != "" {
		if o.scoringExcluded.Contains(o.wallet) {
			return nil, fmt.Errorf("%w: %s", ErrExcludedWallet, o.wallet)
		}
		// The selector may carry a different 0x form than the participant table.
		for _, form := range identity.WalletForms(o.wallet) {
			p, err := stores.Participants.GetByWallet(ctx, form)
			if errors.Is(err, storage.ErrNotFound) {
				continue
			}
			if err != nil {
				return nil, fmt.Errorf("load participant %s: %w", form, err)
			}
			result.Wallet = p.Wallet
			return []string{p.Wallet}, nil
		}
		return nil, fmt.Errorf("%w: %s", ErrParticipantNotFound, o.wallet)
	}

	all, err := stores.Participants.ListWallets(ctx)
	if err != nil {
		return nil, fmt.Errorf("list participants: %w", err)
	}

	wallets := make([]string, 0, len(all))
	for _, w := range all {
		if o.scoringExcluded.Contains(w) {
			result.Excluded++
			continue
		}
		wallets = append(wallets, w)
	}
	o.logger.Info("participants selected", "total", len(all), "excluded", result.Excluded, "selected", len(wallets))
	return wallets, nil
}

// TierName returns the configured name of a tier.
func (o *Orchestrator) TierName(t domain.Tier) string {
	return o.machine.Ladder().Name(t)
}
