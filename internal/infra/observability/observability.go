// Package observability defines the Prometheus metrics for the offline
// engine: queue depth, drain outcomes, and progression events. The UI
// shell's diagnostics screen scrapes /metrics on the local API.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/waveline-app/waveline/internal/domain"
)

// Pre-register every kind label so per-kind series report zero from the
// first scrape instead of appearing only after the first event.
func init() {
	for _, kind := range domain.Kinds() {
		ActionsEnqueued.WithLabelValues(string(kind))
		ActionsSynced.WithLabelValues(string(kind))
		ActionsFailed.WithLabelValues(string(kind))
		DeadLettered.WithLabelValues(string(kind))
	}
}

// ─── Queue Metrics ──────────────────────────────────────────────────────────

// QueueDepth tracks the current number of pending offline actions.
var QueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
	Namespace: "waveline",
	Subsystem: "queue",
	Name:      "depth",
	Help:      "Current number of pending offline actions.",
})

// ActionsEnqueued tracks total enqueued actions by kind.
var ActionsEnqueued = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "waveline",
	Subsystem: "queue",
	Name:      "enqueued_total",
	Help:      "Total offline actions enqueued, by kind.",
}, []string{"kind"})

// DeadLettered tracks actions moved to the dead-letter list.
var DeadLettered = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "waveline",
	Subsystem: "queue",
	Name:      "dead_lettered_total",
	Help:      "Total actions moved to the dead-letter list after exhausting retries.",
}, []string{"kind"})

// ─── Sync Metrics ───────────────────────────────────────────────────────────

// DrainPasses tracks drain passes by outcome (complete, partial, noop).
var DrainPasses = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "waveline",
	Subsystem: "sync",
	Name:      "drain_passes_total",
	Help:      "Total drain passes by outcome.",
}, []string{"outcome"})

// ActionsSynced tracks successfully replayed actions by kind.
var ActionsSynced = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "waveline",
	Subsystem: "sync",
	Name:      "actions_synced_total",
	Help:      "Total actions successfully replayed against the remote service.",
}, []string{"kind"})

// ActionsFailed tracks failed dispatch attempts by kind.
var ActionsFailed = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "waveline",
	Subsystem: "sync",
	Name:      "actions_failed_total",
	Help:      "Total failed dispatch attempts (action left queued).",
}, []string{"kind"})

// DrainDuration tracks how long a full drain pass takes.
var DrainDuration = promauto.NewHistogram(prometheus.HistogramOpts{
	Namespace: "waveline",
	Subsystem: "sync",
	Name:      "drain_duration_seconds",
	Help:      "Duration of a drain pass in seconds.",
	Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
})

// ─── Progression Metrics ────────────────────────────────────────────────────

// AchievementsUnlocked tracks total achievement unlocks.
var AchievementsUnlocked = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "waveline",
	Subsystem: "progression",
	Name:      "achievements_unlocked_total",
	Help:      "Total achievements unlocked.",
})

// LevelUps tracks total level-up events.
var LevelUps = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "waveline",
	Subsystem: "progression",
	Name:      "level_ups_total",
	Help:      "Total level-up events.",
})

// Reconciliations tracks counter reconciliation passes by result
// (clean, corrected).
var Reconciliations = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "waveline",
	Subsystem: "progression",
	Name:      "reconciliations_total",
	Help:      "Total ledger reconciliation passes by result.",
}, []string{"result"})
