// Package observability exposes Prometheus metrics for the RepID engine.
// Metrics are registered via promauto at package load; the /metrics endpoint
// is mounted by the API server when enabled.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// ─── Engine Metrics ─────────────────────────────────────────────────────────

// UpdatesProcessed counts score updates by validation outcome.
var UpdatesProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "repid",
	Subsystem: "engine",
	Name:      "updates_total",
	Help:      "Total validation outcomes applied to agent scores.",
}, []string{"outcome"}) // correct | incorrect

// UpdatesRejected counts updates refused at the validation boundary.
var UpdatesRejected = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "repid",
	Subsystem: "engine",
	Name:      "updates_rejected_total",
	Help:      "Total validation outcomes rejected by input validation.",
}, []string{"reason"}) // confidence | difficulty | timestamp

// ScoreChange observes the signed per-update score delta.
var ScoreChange = promauto.NewHistogram(prometheus.HistogramOpts{
	Namespace: "repid",
	Subsystem: "engine",
	Name:      "score_change",
	Help:      "Signed score change per update.",
	Buckets:   []float64{-50, -25, -10, -5, -1, 0, 1, 5, 10, 25, 50},
})

// RecoveryBonuses counts rewards that received the recovery multiplier.
var RecoveryBonuses = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "repid",
	Subsystem: "engine",
	Name:      "recovery_bonuses_total",
	Help:      "Total rewards boosted by the recovery bonus.",
})

// Resets counts administrative score resets.
var Resets = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "repid",
	Subsystem: "engine",
	Name:      "resets_total",
	Help:      "Total administrative score resets.",
})

// TrackedAgents reports how many agents the engine currently tracks.
var TrackedAgents = promauto.NewGauge(prometheus.GaugeOpts{
	Namespace: "repid",
	Subsystem: "engine",
	Name:      "tracked_agents",
	Help:      "Number of agents with engine state.",
})

// MeanScore reports the population mean score.
var MeanScore = promauto.NewGauge(prometheus.GaugeOpts{
	Namespace: "repid",
	Subsystem: "engine",
	Name:      "mean_score",
	Help:      "Mean RepID score across all tracked agents.",
})

// ─── Ingest Metrics ─────────────────────────────────────────────────────────

// IngestMessages counts NATS validation events by handling status.
var IngestMessages = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "repid",
	Subsystem: "ingest",
	Name:      "messages_total",
	Help:      "Total NATS validation events by handling status.",
}, []string{"status"}) // applied | malformed | rejected

// ─── Storage Metrics ────────────────────────────────────────────────────────

// SnapshotDuration observes how long a full SQLite snapshot takes.
var SnapshotDuration = promauto.NewHistogram(prometheus.HistogramOpts{
	Namespace: "repid",
	Subsystem: "storage",
	Name:      "snapshot_seconds",
	Help:      "Duration of full engine snapshots to SQLite.",
	Buckets:   prometheus.DefBuckets,
})

// SnapshotAgents reports agents persisted in the last snapshot.
var SnapshotAgents = promauto.NewGauge(prometheus.GaugeOpts{
	Namespace: "repid",
	Subsystem: "storage",
	Name:      "snapshot_agents",
	Help:      "Agents persisted by the most recent snapshot.",
})
