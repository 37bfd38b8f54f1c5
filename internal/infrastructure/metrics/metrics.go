package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/janhq/usage-sync/internal/domain/ingest"
)

// Recorder publishes sync outcomes as Prometheus metrics. It implements
// ingest.Recorder.
type Recorder struct {
	runsTotal        *prometheus.CounterVec
	runDuration      *prometheus.HistogramVec
	recordsImported  *prometheus.CounterVec
	recordsSkipped   *prometheus.CounterVec
	runErrors        *prometheus.CounterVec
	rateLimitAborts  *prometheus.CounterVec
	pagesTotal       *prometheus.CounterVec
	pageItems        *prometheus.CounterVec
	backfillComplete *prometheus.GaugeVec
	lastProcessed    *prometheus.GaugeVec
}

var _ ingest.Recorder = (*Recorder)(nil)

// NewRecorder registers the sync metrics with reg.
func NewRecorder(reg prometheus.Registerer) *Recorder {
	factory := promauto.With(reg)
	opts := func(name, help string) prometheus.CounterOpts {
		return prometheus.CounterOpts{Namespace: "jan", Subsystem: "usage_sync", Name: name, Help: help}
	}
	return &Recorder{
		runsTotal: factory.NewCounterVec(
			opts("runs_total", "Total sync runs by outcome"),
			[]string{"provider", "operation", "status"},
		),
		runDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "jan",
				Subsystem: "usage_sync",
				Name:      "run_duration_seconds",
				Help:      "Sync run duration in seconds",
				Buckets:   []float64{1, 5, 15, 30, 60, 300, 900, 1800},
			},
			[]string{"provider", "operation"},
		),
		recordsImported: factory.NewCounterVec(
			opts("records_imported_total", "Records written"),
			[]string{"provider", "operation"},
		),
		recordsSkipped: factory.NewCounterVec(
			opts("records_skipped_total", "Records skipped as duplicates, unresolved or failed"),
			[]string{"provider", "operation"},
		),
		runErrors: factory.NewCounterVec(
			opts("run_errors_total", "Error strings reported by sync runs"),
			[]string{"provider", "operation"},
		),
		rateLimitAborts: factory.NewCounterVec(
			opts("rate_limit_aborts_total", "Runs aborted by an upstream rate limit"),
			[]string{"provider", "operation"},
		),
		pagesTotal: factory.NewCounterVec(
			opts("pages_total", "Upstream pages fetched by outcome"),
			[]string{"provider", "status"},
		),
		pageItems: factory.NewCounterVec(
			opts("page_items_total", "Items returned by upstream pages"),
			[]string{"provider"},
		),
		backfillComplete: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "jan",
				Subsystem: "usage_sync",
				Name:      "backfill_complete",
				Help:      "1 once the provider backfill reached its terminal state",
			},
			[]string{"provider"},
		),
		lastProcessed: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "jan",
				Subsystem: "usage_sync",
				Name:      "last_processed_timestamp_seconds",
				Help:      "Last processed date of the most recent run",
			},
			[]string{"provider", "operation"},
		),
	}
}

// RunFinished implements ingest.Recorder
func (r *Recorder) RunFinished(provider, operation string, result *ingest.Result, elapsed time.Duration) {
	status := "success"
	switch {
	case result == nil:
		status = "error"
	case result.RateLimited:
		status = "rate_limited"
	case len(result.Errors) > 0:
		status = "error"
	}
	r.runsTotal.WithLabelValues(provider, operation, status).Inc()
	r.runDuration.WithLabelValues(provider, operation).Observe(elapsed.Seconds())
	if result == nil {
		return
	}

	r.recordsImported.WithLabelValues(provider, operation).Add(float64(result.Imported))
	r.recordsSkipped.WithLabelValues(provider, operation).Add(float64(result.Skipped))
	r.runErrors.WithLabelValues(provider, operation).Add(float64(len(result.Errors)))
	if result.RateLimited {
		r.rateLimitAborts.WithLabelValues(provider, operation).Inc()
	}
	if result.LastProcessedDate != nil {
		r.lastProcessed.WithLabelValues(provider, operation).Set(float64(result.LastProcessedDate.Unix()))
	}
	if operation == ingest.OperationBackfill {
		complete := 0.0
		if result.BackfillComplete {
			complete = 1
		}
		r.backfillComplete.WithLabelValues(provider).Set(complete)
	}
}

// PageFetched implements ingest.Recorder
func (r *Recorder) PageFetched(provider string, items int, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	r.pagesTotal.WithLabelValues(provider, status).Inc()
	r.pageItems.WithLabelValues(provider).Add(float64(items))
}
