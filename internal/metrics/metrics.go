// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package metrics exposes Prometheus collectors for the evidence pipeline.
// Collectors are registered on an explicit registry so several pipelines
// (and tests) never share global state. A nil *Metrics records nothing.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/pdiddy/evidence-engine/pkg/types"
)

const namespace = "evidence"

// Metrics groups the pipeline collectors.
type Metrics struct {
	sourceResults   *prometheus.CounterVec
	sourceLatency   *prometheus.HistogramVec
	cacheHits       prometheus.Counter
	stageCandidates *prometheus.CounterVec
	requestLatency  prometheus.Histogram
	sufficiency     *prometheus.CounterVec
	fallbacks       *prometheus.CounterVec
}

// New creates the collectors and registers them on reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		sourceResults: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "source",
			Name:      "results_total",
			Help:      "Source branches by outcome: ok, cached, error, timeout, abandoned",
		}, []string{"source", "status"}),

		sourceLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "source",
			Name:      "latency_seconds",
			Help:      "Latency of one source branch, cache lookups included",
			Buckets:   []float64{0.005, 0.05, 0.25, 0.5, 1, 2.5, 5, 10, 15, 30},
		}, []string{"source"}),

		cacheHits: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "hits_total",
			Help:      "Source branches served from the cache",
		}),

		stageCandidates: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "candidates_total",
			Help:      "Candidates leaving each stage: raw, semantic, reranked, final",
		}, []string{"stage"}),

		requestLatency: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "request_latency_seconds",
			Help:      "End-to-end latency of one evidence request",
			Buckets:   []float64{0.1, 0.5, 1, 2.5, 5, 10, 20, 30, 60},
		}),

		sufficiency: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sufficiency",
			Name:      "verdicts_total",
			Help:      "Sufficiency levels assigned to evidence packages",
		}, []string{"level"}),

		fallbacks: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "fallback",
			Name:      "searches_total",
			Help:      "Fallback web searches by outcome: ok, error, skipped",
		}, []string{"outcome"}),
	}
}

// ObserveSource records one source branch.
func (m *Metrics) ObserveSource(source types.SourceName, status types.SourceStatus, latency time.Duration) {
	if m == nil {
		return
	}
	m.sourceResults.WithLabelValues(string(source), string(status)).Inc()
	if status == types.StatusCached {
		m.cacheHits.Inc()
	}
	if status != types.StatusAbandoned {
		m.sourceLatency.WithLabelValues(string(source)).Observe(latency.Seconds())
	}
}

// ObserveStats records the stage counts and latency of one request.
func (m *Metrics) ObserveStats(s types.Stats, level types.SufficiencyLevel) {
	if m == nil {
		return
	}
	m.stageCandidates.WithLabelValues("raw").Add(float64(s.Raw))
	m.stageCandidates.WithLabelValues("semantic").Add(float64(s.SemanticFiltered))
	m.stageCandidates.WithLabelValues("reranked").Add(float64(s.Reranked))
	m.stageCandidates.WithLabelValues("final").Add(float64(s.Final))
	m.requestLatency.Observe(s.Latency.Seconds())
	m.sufficiency.WithLabelValues(string(level)).Inc()
}

// ObserveFallback records a fallback outcome.
func (m *Metrics) ObserveFallback(outcome string) {
	if m == nil {
		return
	}
	m.fallbacks.WithLabelValues(outcome).Inc()
}
