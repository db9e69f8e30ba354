// Package metrics holds the Prometheus collectors for XP and progress events.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	XPAwarded = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vexcel_xp_awarded_total",
			Help: "XP awarded to users",
		},
		[]string{"source"},
	)

	ActivitiesCompleted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vexcel_activities_completed_total",
			Help: "Activity completion attempts by type and result",
		},
		[]string{"type", "result"},
	)

	LevelUps = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "vexcel_level_ups_total",
			Help: "Level-up transitions",
		},
	)

	TeamXPMirrored = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "vexcel_team_xp_mirrored_total",
			Help: "XP mirrored onto team totals",
		},
	)

	ChallengesFinished = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "vexcel_challenge_percentage",
			Help:    "Final accuracy percentage of timed challenge sessions",
			Buckets: []float64{0, 20, 40, 60, 70, 80, 90, 100},
		},
	)

	StoreFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vexcel_store_failures_total",
			Help: "Failed store operations",
		},
		[]string{"op"},
	)

	BatchDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "vexcel_store_batch_duration_seconds",
			Help:    "Latency of atomic batch writes",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		},
	)
)

// Registry holds every collector above plus the Go runtime collectors.
var Registry = prometheus.NewRegistry()

func init() {
	Registry.MustRegister(
		XPAwarded,
		ActivitiesCompleted,
		LevelUps,
		TeamXPMirrored,
		ChallengesFinished,
		StoreFailures,
		BatchDuration,
		prometheus.NewGoCollector(),
	)
}

// Handler serves the registry in the Prometheus exposition format.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}
