package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// InsightLookups counts GetOrCreate calls by how the stored record was found (hit|miss|stale).
	InsightLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pathwise_insight_lookups_total",
			Help: "Total number of industry insight lookups",
		},
		[]string{"result"},
	)

	// InsightGenerations counts generator invocations by outcome (success|failure).
	InsightGenerations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pathwise_insight_generations_total",
			Help: "Total number of industry insight generations",
		},
		[]string{"result"},
	)

	// InsightGenerationDuration measures how long the generator takes.
	InsightGenerationDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "pathwise_insight_generation_seconds",
			Help:    "Industry insight generation latency",
			Buckets: []float64{0.5, 1, 2, 5, 10, 20, 30, 60, 120},
		},
	)

	// InsightSharedResults counts lookups whose generation result was shared with concurrent callers.
	InsightSharedResults = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "pathwise_insight_shared_results_total",
			Help: "Total number of lookups that shared one in-flight generation with other callers",
		},
	)

	// ProfileCommits counts profile commits by outcome (success|failure).
	ProfileCommits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pathwise_profile_commits_total",
			Help: "Total number of profile commits",
		},
		[]string{"result"},
	)

	// RefreshCycles counts scheduled refresh cycles by outcome (success|partial|error).
	RefreshCycles = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pathwise_refresh_cycles_total",
			Help: "Total number of scheduled insight refresh cycles",
		},
		[]string{"result"},
	)
)
