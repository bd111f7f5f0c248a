// Package metrics exposes extraction dispatch counters on a private registry.
package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "creatorcheck"

// Outcomes recorded for each extractor call
const (
	OutcomeSuccess = "success"
	OutcomeError   = "error"
)

// Dispatch holds the extraction dispatcher's metrics.
// A nil *Dispatch is valid and records nothing.
type Dispatch struct {
	registry  *prometheus.Registry
	calls     *prometheus.CounterVec
	retries   *prometheus.CounterVec
	records   *prometheus.CounterVec
	cacheHits prometheus.Counter
	inFlight  prometheus.Gauge
	latency   *prometheus.HistogramVec
}

// NewDispatch registers dispatcher metrics on a fresh registry
func NewDispatch() *Dispatch {
	reg := prometheus.NewRegistry()

	d := &Dispatch{
		registry: reg,
		calls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "extractor",
			Name:      "calls_total",
			Help:      "Extractor calls by provider and outcome, one per attempt.",
		}, []string{"provider", "outcome"}),
		retries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "extractor",
			Name:      "retries_total",
			Help:      "Extractor attempts that were retried.",
		}, []string{"provider"}),
		records: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "records_total",
			Help:      "Records resolved by route and result.",
		}, []string{"route", "result"}),
		cacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "extractor",
			Name:      "cache_hits_total",
			Help:      "Complex records answered from the extraction cache.",
		}),
		inFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "extractor",
			Name:      "in_flight",
			Help:      "Extractor calls currently awaiting a response.",
		}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "extractor",
			Name:      "call_duration_seconds",
			Help:      "Extractor call latency.",
			Buckets:   []float64{.1, .25, .5, 1, 2.5, 5, 10, 20, 40, 60},
		}, []string{"provider"}),
	}

	reg.MustRegister(d.calls, d.retries, d.records, d.cacheHits, d.inFlight, d.latency)
	return d
}

// Registry returns the underlying registry
func (d *Dispatch) Registry() *prometheus.Registry {
	if d == nil {
		return nil
	}
	return d.registry
}

// CallStarted marks one call in flight and returns a func that records its end
func (d *Dispatch) CallStarted(provider string) func(err error) {
	if d == nil {
		return func(error) {}
	}
	start := time.Now()
	d.inFlight.Inc()
	return func(err error) {
		d.inFlight.Dec()
		d.latency.WithLabelValues(provider).Observe(time.Since(start).Seconds())
		outcome := OutcomeSuccess
		if err != nil {
			outcome = OutcomeError
		}
		d.calls.WithLabelValues(provider, outcome).Inc()
	}
}

// Retry counts one retried attempt
func (d *Dispatch) Retry(provider string) {
	if d == nil {
		return
	}
	d.retries.WithLabelValues(provider).Inc()
}

// CacheHit counts one cached answer
func (d *Dispatch) CacheHit() {
	if d == nil {
		return
	}
	d.cacheHits.Inc()
}

// Record counts one resolved record
func (d *Dispatch) Record(route string, failed bool) {
	if d == nil {
		return
	}
	result := "ok"
	if failed {
		result = "failed"
	}
	d.records.WithLabelValues(route, result).Inc()
}

// WriteTextfile writes the registry in the node-exporter textfile format
func (d *Dispatch) WriteTextfile(path string) error {
	if d == nil {
		return nil
	}
	if err := prometheus.WriteToTextfile(path, d.registry); err != nil {
		return fmt.Errorf("write metrics: %w", err)
	}
	return nil
}
