package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Model invoker
	ModelInvocations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "diligence_model_invocations_total",
			Help: "Model endpoint calls by model and outcome",
		},
		[]string{"model", "outcome"},
	)

	ModelRetries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "diligence_model_retries_total",
			Help: "Throttled model calls that were retried",
		},
		[]string{"model"},
	)

	ModelLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "diligence_model_latency_seconds",
			Help:    "Model endpoint call latency",
			Buckets: []float64{0.5, 1, 2, 5, 10, 20, 40, 80},
		},
		[]string{"model"},
	)

	// Retrieval
	SearchRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "diligence_search_requests_total",
			Help: "Search provider requests by outcome",
		},
		[]string{"outcome"},
	)

	PageFetches = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "diligence_page_fetches_total",
			Help: "Page fetch attempts by outcome",
		},
		[]string{"outcome"},
	)

	EvidenceDocuments = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "diligence_evidence_documents",
			Help:    "Source documents retrieved per query",
			Buckets: []float64{0, 1, 2, 3, 5, 8},
		},
	)

	// Research runs
	RunsCompleted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "diligence_runs_completed_total",
			Help: "Research runs by final status",
		},
		[]string{"status"},
	)

	RunDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "diligence_run_duration_seconds",
			Help:    "End-to-end research run duration",
			Buckets: []float64{10, 30, 60, 120, 300, 600, 1200},
		},
	)

	Answers = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "diligence_answers_total",
			Help: "Answers synthesized by depth and outcome",
		},
		[]string{"depth", "outcome"},
	)

	AnswersInFlight = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "diligence_answers_in_flight",
			Help: "Answer tasks currently holding a worker slot",
		},
		[]string{"depth"},
	)

	// Jobs
	JobQueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "diligence_job_queue_depth",
			Help: "Research jobs waiting for a worker",
		},
	)
)
