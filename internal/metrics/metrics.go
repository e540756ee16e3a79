// Package metrics exposes Prometheus collectors for the HTTP surface and
// the inference pipeline. A single Collector instance is shared by the
// server middleware and the pipeline runner; the /metrics endpoint serves
// the registry it was built on.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"cropwise/internal/types"
)

// Collector holds every metric the service records. Construct one per
// process with NewCollector and inject it where needed; there is no
// package-level state.
type Collector struct {
	registry *prometheus.Registry

	httpRequests *prometheus.CounterVec
	httpLatency  *prometheus.HistogramVec

	pipelineRuns   *prometheus.CounterVec
	pipelineErrors *prometheus.CounterVec
	runDuration    *prometheus.HistogramVec
	governorHalts  *prometheus.CounterVec
}

// NewCollector creates a Collector backed by its own registry, with Go
// runtime and process collectors included.
func NewCollector() *Collector {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	c := &Collector{
		registry: reg,
		httpRequests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cropwise_http_requests_total",
				Help: "Total HTTP requests by method, endpoint and status",
			},
			[]string{"method", "endpoint", "status"},
		),
		httpLatency: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "cropwise_http_request_duration_seconds",
				Help:    "HTTP request latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "endpoint"},
		),
		pipelineRuns: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cropwise_pipeline_runs_total",
				Help: "Total pipeline runs by trigger source and outcome",
			},
			[]string{"source", "outcome"},
		),
		pipelineErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cropwise_pipeline_errors_total",
				Help: "Total pipeline failures by trigger source and error code",
			},
			[]string{"source", "code"},
		),
		runDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "cropwise_pipeline_run_duration_seconds",
				Help:    "End-to-end pipeline run duration in seconds",
				Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 2.5, 5},
			},
			[]string{"source"},
		),
		governorHalts: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cropwise_governor_halts_total",
				Help: "Trigger sources halted by the failure governor",
			},
			[]string{"source"},
		),
	}

	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return c
}

// RecordRequest implements the server chassis collector interface.
func (c *Collector) RecordRequest(method, endpoint, status string, duration time.Duration) {
	c.httpRequests.WithLabelValues(method, endpoint, status).Inc()
	c.httpLatency.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}

// ObserveRun implements the pipeline metrics interface. An empty code means
// the run succeeded.
func (c *Collector) ObserveRun(source types.TriggerSource, code types.ErrorCode, duration time.Duration) {
	outcome := "success"
	if code != "" {
		outcome = "error"
		c.pipelineErrors.WithLabelValues(string(source), string(code)).Inc()
	}
	c.pipelineRuns.WithLabelValues(string(source), outcome).Inc()
	c.runDuration.WithLabelValues(string(source)).Observe(duration.Seconds())
}

// RecordHalt counts a governor trip for a trigger source.
func (c *Collector) RecordHalt(source types.TriggerSource) {
	c.governorHalts.WithLabelValues(string(source)).Inc()
}

// Handler returns the HTTP handler serving this collector's registry.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}
