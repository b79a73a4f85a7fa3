// Package metrics records engine activity with Prometheus collectors.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Recorder holds the engine's Prometheus collectors on a private registry.
type Recorder struct {
	registry *prometheus.Registry

	ticks           prometheus.Counter
	eventsProcessed *prometheus.CounterVec
	signals         *prometheus.CounterVec
	riskBlocks      *prometheus.CounterVec
	cacheLookups    *prometheus.CounterVec
	collaboratorErr *prometheus.CounterVec
	pipelineLatency prometheus.Histogram
}

// New creates a recorder with its own registry.
func New() *Recorder {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Recorder{
		registry: reg,
		ticks: factory.NewCounter(prometheus.CounterOpts{
			Name: "macro_trader_ticks_total",
			Help: "Monitor ticks started",
		}),
		eventsProcessed: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "macro_trader_events_processed_total",
			Help: "Calendar events run through the pipeline, by outcome",
		}, []string{"outcome"}),
		signals: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "macro_trader_signals_total",
			Help: "Signals generated, by direction and dispatch mode",
		}, []string{"direction", "mode"}),
		riskBlocks: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "macro_trader_risk_blocks_total",
			Help: "Trades rejected by the risk guardian, by rule",
		}, []string{"rule"}),
		cacheLookups: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "macro_trader_cache_lookups_total",
			Help: "Cache lookups, by cache and result",
		}, []string{"cache", "result"}),
		collaboratorErr: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "macro_trader_collaborator_errors_total",
			Help: "Failed calls to external collaborators",
		}, []string{"collaborator", "operation"}),
		pipelineLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "macro_trader_pipeline_duration_seconds",
			Help:    "Duration of a single event pipeline run",
			Buckets: prometheus.DefBuckets,
		}),
	}
}

// Registry exposes the underlying registry.
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

// Handler returns an HTTP handler serving the registry.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

// RecordTick counts a monitor tick.
func (r *Recorder) RecordTick() {
	if r == nil {
		return
	}
	r.ticks.Inc()
}

// RecordEvent counts a pipeline run and its latency.
func (r *Recorder) RecordEvent(outcome string, d time.Duration) {
	if r == nil {
		return
	}
	r.eventsProcessed.WithLabelValues(outcome).Inc()
	r.pipelineLatency.Observe(d.Seconds())
}

// RecordSignal counts a dispatched signal.
func (r *Recorder) RecordSignal(direction, mode string) {
	if r == nil {
		return
	}
	r.signals.WithLabelValues(direction, mode).Inc()
}

// RecordRiskBlock counts a blocked trade.
func (r *Recorder) RecordRiskBlock(rule string) {
	if r == nil {
		return
	}
	r.riskBlocks.WithLabelValues(rule).Inc()
}

// RecordCacheLookup counts a cache hit or miss.
func (r *Recorder) RecordCacheLookup(cache string, hit bool) {
	if r == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	r.cacheLookups.WithLabelValues(cache, result).Inc()
}

// RecordCollaboratorError counts a failed collaborator call.
func (r *Recorder) RecordCollaboratorError(collaborator, operation string) {
	if r == nil {
		return
	}
	r.collaboratorErr.WithLabelValues(collaborator, operation).Inc()
}
