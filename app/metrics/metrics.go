// Package metrics holds the prometheus collectors for the ingest pipeline.
// Collectors register themselves on the default registry and are served by
// the API server on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// JobsCompleted counts finished ingest jobs by source and scheduling
	// result (success, failure, denied).
	JobsCompleted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "storysift_jobs_completed_total",
		Help: "Completed ingest jobs by source and result.",
	}, []string{"source", "result"})

	// JobDuration observes how long one ingest job took end to end.
	JobDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "storysift_job_duration_seconds",
		Help:    "Ingest job duration from fetch to persistence.",
		Buckets: prometheus.ExponentialBuckets(0.05, 2, 12),
	}, []string{"source"})

	// Documents counts per-document pipeline outcomes: new, duplicate,
	// short and extract_error.
	Documents = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "storysift_documents_total",
		Help: "Fetched documents by pipeline outcome.",
	}, []string{"source", "outcome"})

	// InFlightJobs tracks weighted worker slots currently claimed by
	// running or queued ingest jobs.
	InFlightJobs = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "storysift_in_flight_jobs",
		Help: "Weighted worker slots claimed by in-flight ingest jobs.",
	})

	// EnrichmentFailures counts drafts persisted without enrichment
	// because the enrichment call failed or no service is configured.
	EnrichmentFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "storysift_enrichment_failures_total",
		Help: "Articles persisted with empty enrichment after a failed enrichment call.",
	})

	// SearchFailures counts best-effort search index writes that failed.
	SearchFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "storysift_search_failures_total",
		Help: "Failed search index upserts.",
	})

	// FingerprintsSwept counts index entries removed by retention sweeps.
	FingerprintsSwept = promauto.NewCounter(prometheus.CounterOpts{
		Name: "storysift_fingerprints_swept_total",
		Help: "Fingerprints removed from the duplicate index by retention sweeps.",
	})
)

const (
	OutcomeNew          = "new"
	OutcomeDuplicate    = "duplicate"
	OutcomeShort        = "short"
	OutcomeExtractError = "extract_error"
)
