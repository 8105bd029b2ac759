// Package telemetry holds the pipeline's Prometheus collectors.
//
// A nil *Metrics is valid: every method is a no-op, so stages can be built
// without metrics in tests and one-shot commands.
package telemetry

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "encuestas"

type Metrics struct {
	registry *prometheus.Registry

	recordsIngested    *prometheus.CounterVec
	recordsEnriched    prometheus.Counter
	recordsRejected    prometheus.Counter
	recordsSubstituted *prometheus.CounterVec
	chunksCommitted    prometheus.Counter
	stageOutcomes      *prometheus.CounterVec
	stageDuration      *prometheus.HistogramVec
	predictions        *prometheus.CounterVec
	backendRetries     *prometheus.CounterVec
	pendingRecords     prometheus.Gauge
}

// New registers every collector on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		recordsIngested: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "records_ingested_total",
			Help: "Raw records offered to the store, by result (inserted|duplicate).",
		}, []string{"result"}),
		recordsEnriched: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "records_enriched_total",
			Help: "Records that passed cleaning and were enriched.",
		}),
		recordsRejected: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "records_rejected_total",
			Help: "Records rejected by the cleaning policy.",
		}),
		recordsSubstituted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "records_substituted_total",
			Help: "Backend failures replaced by a neutral default, by call (classify|embed).",
		}, []string{"call"}),
		chunksCommitted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "chunks_committed_total",
			Help: "Enrichment chunks durably committed.",
		}),
		stageOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "stage_runs_total",
			Help: "Pipeline stage executions by stage and status.",
		}, []string{"stage", "status"}),
		stageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Name: "stage_duration_seconds",
			Help:    "Pipeline stage wall time.",
			Buckets: prometheus.ExponentialBuckets(0.01, 4, 10),
		}, []string{"stage"}),
		predictions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "predictions_written_total",
			Help: "Prediction values written, by target.",
		}, []string{"target"}),
		backendRetries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "remote_retries_total",
			Help: "Retried remote calls, by remote.",
		}, []string{"remote"}),
		pendingRecords: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "pending_records",
			Help: "Records waiting for enrichment at the last check.",
		}),
	}
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.recordsIngested, m.recordsEnriched, m.recordsRejected, m.recordsSubstituted,
		m.chunksCommitted, m.stageOutcomes, m.stageDuration, m.predictions,
		m.backendRetries, m.pendingRecords,
	)
	return m
}

// Registry exposes the underlying registry, mainly for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) Ingested(inserted, duplicates int) {
	if m == nil {
		return
	}
	m.recordsIngested.WithLabelValues("inserted").Add(float64(inserted))
	m.recordsIngested.WithLabelValues("duplicate").Add(float64(duplicates))
}

// ChunkCommitted records one committed enrichment chunk.
func (m *Metrics) ChunkCommitted(enriched, rejected int) {
	if m == nil {
		return
	}
	m.chunksCommitted.Inc()
	m.recordsEnriched.Add(float64(enriched))
	m.recordsRejected.Add(float64(rejected))
}

func (m *Metrics) Substituted(call string) {
	if m == nil {
		return
	}
	m.recordsSubstituted.WithLabelValues(call).Inc()
}

func (m *Metrics) Pending(n int) {
	if m == nil {
		return
	}
	m.pendingRecords.Set(float64(n))
}

// StageFinished records a stage's status and wall time.
func (m *Metrics) StageFinished(stage, status string, d time.Duration) {
	if m == nil {
		return
	}
	m.stageOutcomes.WithLabelValues(stage, status).Inc()
	m.stageDuration.WithLabelValues(stage).Observe(d.Seconds())
}

func (m *Metrics) PredictionsWritten(target string, n int) {
	if m == nil {
		return
	}
	m.predictions.WithLabelValues(target).Add(float64(n))
}

func (m *Metrics) Retry(remote string) {
	if m == nil {
		return
	}
	m.backendRetries.WithLabelValues(remote).Inc()
}
