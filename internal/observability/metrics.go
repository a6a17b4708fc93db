// Package observability provides Prometheus metrics for the scorer.
// A batch job does not live long enough to be scraped, so metrics are kept
// in a private registry and pushed to a Pushgateway at the end of a run.
package observability

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/push"
)

// Run and batch statuses.
const (
	StatusSuccess    = "success"
	StatusFailure    = "failure"
	StatusCommitted  = "committed"
	StatusRolledBack = "rolled_back"
)

// Metrics holds all Prometheus metrics of one scorer process.
type Metrics struct {
	registry *prometheus.Registry

	// Ranking metrics
	RankingRows *prometheus.GaugeVec

	// Scoring metrics
	ParticipantsScored    prometheus.Counter
	BatchesTotal          *prometheus.CounterVec
	TierUpgrades          prometheus.Counter
	ProjectionCorrections prometheus.Counter

	// Distribution metrics
	PoolPointsAllocated prometheus.Gauge
	RewardsDistributed  prometheus.Gauge
	RewardRecipients    prometheus.Gauge

	// Run metrics
	RunsTotal         *prometheus.CounterVec
	RunDuration       prometheus.Gauge
	LastSuccessfulRun prometheus.Gauge
}

// NewMetrics creates a new Metrics instance with all metrics registered
// on a fresh registry.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "engagement_scorer"
	}

	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)

	return &Metrics{
		registry: registry,

		RankingRows: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "ranking",
			Name:      "rows",
			Help:      "Rows of the external ranking file by outcome",
		}, []string{"outcome"}),

		ParticipantsScored: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scoring",
			Name:      "participants_scored_total",
			Help:      "Total number of participants scored in committed batches",
		}),
		BatchesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scoring",
			Name:      "batches_total",
			Help:      "Total number of scoring batches by status",
		}, []string{"status"}),
		TierUpgrades: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scoring",
			Name:      "tier_upgrades_total",
			Help:      "Total number of tier events written",
		}),
		ProjectionCorrections: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scoring",
			Name:      "tier_projection_corrections_total",
			Help:      "Total number of tier projections rewritten without an event",
		}),

		PoolPointsAllocated: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "distribution",
			Name:      "pool_points_allocated",
			Help:      "Points allocated from the daily pool in the last run",
		}),
		RewardsDistributed: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "distribution",
			Name:      "rewards_distributed",
			Help:      "Reward units distributed in the last run",
		}),
		RewardRecipients: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "distribution",
			Name:      "reward_recipients",
			Help:      "Participants awarded in the last run",
		}),

		RunsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "run",
			Name:      "runs_total",
			Help:      "Total number of runs by status",
		}, []string{"status"}),
		RunDuration: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "run",
			Name:      "duration_seconds",
			Help:      "Duration of the last run in seconds",
		}),
		LastSuccessfulRun: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "last_successful_run_timestamp",
			Help:      "Unix timestamp of last successful run",
		}),
	}
}

// Registry returns the registry holding every metric.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// RecordRanking records the ranking load counters.
func (m *Metrics) RecordRanking(read, skipped, duplicates, kept int) {
	m.RankingRows.WithLabelValues("read").Set(float64(read))
	m.RankingRows.WithLabelValues("skipped").Set(float64(skipped))
	m.RankingRows.WithLabelValues("duplicates").Set(float64(duplicates))
	m.RankingRows.WithLabelValues("kept").Set(float64(kept))
}

// RecordBatch records a committed or rolled back batch of n participants.
func (m *Metrics) RecordBatch(n int, committed bool) {
	if !committed {
		m.BatchesTotal.WithLabelValues(StatusRolledBack).Inc()
		return
	}
	m.BatchesTotal.WithLabelValues(StatusCommitted).Inc()
	m.ParticipantsScored.Add(float64(n))
}

// RecordRun records the end of a run.
func (m *Metrics) RecordRun(success bool, seconds float64, finishedUnix int64) {
	m.RunDuration.Set(seconds)
	if !success {
		m.RunsTotal.WithLabelValues(StatusFailure).Inc()
		return
	}
	m.RunsTotal.WithLabelValues(StatusSuccess).Inc()
	m.LastSuccessfulRun.Set(float64(finishedUnix))
}

// Push sends every metric to a Pushgateway, replacing the job's group.
func (m *Metrics) Push(ctx context.Context, url, job string) error {
	if err := push.New(url, job).Gatherer(m.registry).PushContext(ctx); err != nil {
		return fmt.Errorf("push metrics to %s: %w", url, err)
	}
	return nil
}
