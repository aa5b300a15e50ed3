// Package metrics exposes Prometheus collectors for the API.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry owns a private Prometheus registry so tests can build as many
// as they need.
type Registry struct {
	reg *prometheus.Registry

	httpRequests *prometheus.CounterVec
	httpLatency  *prometheus.HistogramVec
	exports      *prometheus.CounterVec
	exportTime   *prometheus.HistogramVec
	generations  *prometheus.CounterVec
}

func NewRegistry() *Registry {
	r := &Registry{
		reg: prometheus.NewRegistry(),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "policyforge",
			Name:      "http_requests_total",
			Help:      "HTTP requests by route, method and status.",
		}, []string{"route", "method", "status"}),
		httpLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "policyforge",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by route.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route", "method"}),
		exports: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "policyforge",
			Name:      "exports_total",
			Help:      "Export attempts by format, cache outcome and result.",
		}, []string{"format", "cached", "result"}),
		exportTime: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "policyforge",
			Name:      "export_duration_seconds",
			Help:      "Time to produce an export file.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"format"}),
		generations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "policyforge",
			Name:      "generations_total",
			Help:      "Policy generations by backend and result.",
		}, []string{"backend", "result"}),
	}
	r.reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		r.httpRequests,
		r.httpLatency,
		r.exports,
		r.exportTime,
		r.generations,
	)
	return r
}

// ObserveHTTP records one served request. route is the matched pattern, not
// the raw path, to keep label cardinality bounded.
func (r *Registry) ObserveHTTP(route, method string, status int, d time.Duration) {
	if route == "" {
		route = "unmatched"
	}
	r.httpRequests.WithLabelValues(route, method, strconv.Itoa(status)).Inc()
	r.httpLatency.WithLabelValues(route, method).Observe(d.Seconds())
}

func (r *Registry) ObserveExport(format string, cached bool, d time.Duration, err error) {
	r.exports.WithLabelValues(format, strconv.FormatBool(cached), result(err)).Inc()
	if err == nil && !cached {
		r.exportTime.WithLabelValues(format).Observe(d.Seconds())
	}
}

func (r *Registry) ObserveGeneration(backend string, err error) {
	r.generations.WithLabelValues(backend, result(err)).Inc()
}

// Handler serves the registry in the Prometheus exposition format.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{Registry: r.reg})
}

// Gatherer exposes the underlying registry for tests.
func (r *Registry) Gatherer() prometheus.Gatherer {
	return r.reg
}

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
