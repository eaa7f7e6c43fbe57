package pipeline

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	runsCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "repochecker_runs_total",
			Help: "Total number of analysis runs started",
		},
		[]string{"trigger"},
	)

	outcomeCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "repochecker_run_outcomes_total",
			Help: "Finished analysis runs by final state and failed stage",
		},
		[]string{"state", "stage"},
	)

	omittedCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "repochecker_files_omitted_total",
			Help: "Sampling candidates left out of the prompt",
		},
		[]string{"reason"},
	)

	sampledCounter = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "repochecker_files_sampled_total",
			Help: "Files included in prompts",
		},
	)

	fallbackCounter = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "repochecker_generation_fallbacks_total",
			Help: "Runs that published the fallback text",
		},
	)

	stageDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "repochecker_stage_duration_seconds",
			Help:    "Time spent in each pipeline stage",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 12),
		},
		[]string{"stage"},
	)
)
