// Package metrics exposes Prometheus counters for the generation pipeline and
// keeps a short in-memory history of recent generations for the status page.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Namespace prefixes every metric name.
const Namespace = "promptpaint"

// Pipeline stages observed by ObserveStage.
const (
	StageClear  = "clear"
	StageSafety = "safety"
	StageRefine = "refine"
	StageRender = "render"
	StageSave   = "save"
)

// Collector owns the Prometheus series. All methods are safe on a nil
// *Collector so components can run without metrics in tests.
type Collector struct {
	generations      *prometheus.CounterVec
	safetyRejections *prometheus.CounterVec
	refinements      *prometheus.CounterVec
	stageDuration    *prometheus.HistogramVec
	httpRequests     *prometheus.CounterVec

	gatherer prometheus.Gatherer
}

// NewCollector registers the series on reg. Pass prometheus.NewRegistry()
// in tests to keep them isolated.
func NewCollector(reg *prometheus.Registry) *Collector {
	factory := promauto.With(reg)

	return &Collector{
		generations: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "generations_total",
			Help:      "Generation requests by outcome (success, unsafe, error).",
		}, []string{"outcome"}),

		safetyRejections: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "safety_rejections_total",
			Help:      "Prompts rejected by the safety filter, by matched term.",
		}, []string{"term"}),

		refinements: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "refinements_total",
			Help:      "Prompt refinement attempts by outcome.",
		}, []string{"outcome"}),

		stageDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: Namespace,
			Name:      "stage_duration_seconds",
			Help:      "Time spent in each pipeline stage.",
			Buckets:   []float64{0.001, 0.01, 0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		}, []string{"stage"}),

		httpRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests served by the web UI.",
		}, []string{"method", "path", "status"}),

		gatherer: reg,
	}
}

// RecordGeneration counts one finished Generate call by its status
// (StatusSuccess, StatusUnsafe or StatusError).
func (c *Collector) RecordGeneration(outcome string) {
	if c == nil {
		return
	}
	c.generations.WithLabelValues(outcome).Inc()
}

// RecordSafetyRejection counts a rejected prompt by the denylist term it hit.
func (c *Collector) RecordSafetyRejection(term string) {
	if c == nil {
		return
	}
	c.safetyRejections.WithLabelValues(term).Inc()
}

// RecordRefinement counts one refiner outcome.
func (c *Collector) RecordRefinement(outcome string) {
	if c == nil {
		return
	}
	c.refinements.WithLabelValues(outcome).Inc()
}

// ObserveStage records how long one pipeline stage took.
func (c *Collector) ObserveStage(stage string, d time.Duration) {
	if c == nil {
		return
	}
	c.stageDuration.WithLabelValues(stage).Observe(d.Seconds())
}

// RecordHTTPRequest counts one response. path should be a route pattern,
// not the raw URL, to bound cardinality.
func (c *Collector) RecordHTTPRequest(method, path string, status int) {
	if c == nil {
		return
	}
	c.httpRequests.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
}

// Handler serves the registry in the Prometheus text format.
func (c *Collector) Handler() http.Handler {
	if c == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(c.gatherer, promhttp.HandlerOpts{})
}
