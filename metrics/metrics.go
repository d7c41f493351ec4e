// Package metrics holds the Prometheus collectors for generation runs, HTTP traffic and the
// scratch reaper. Each Collector owns its registry so tests can build as many as they like.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/jitender-insights/AI-FlowChart-Generator/apperr"
	"github.com/jitender-insights/AI-FlowChart-Generator/scratch"
)

const namespace = "flowchart"

// Collector groups every metric the service exports.
type Collector struct {
	registry *prometheus.Registry

	Generations   *prometheus.CounterVec
	StageDuration *prometheus.HistogramVec
	ArtifactBytes *prometheus.HistogramVec
	ReapedFiles   *prometheus.CounterVec

	HTTPRequests *prometheus.CounterVec
	HTTPDuration *prometheus.HistogramVec
}

func New() *Collector {
	registry := prometheus.NewRegistry()

	c := &Collector{
		registry: registry,
		Generations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "generations_total",
			Help:      "Generation runs by outcome; outcome is ok or an error kind.",
		}, []string{"outcome"}),
		StageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "stage_duration_seconds",
			Help:      "Duration of pipeline stages.",
			Buckets:   []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 20, 40, 80},
		}, []string{"stage"}),
		ArtifactBytes: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "artifact_bytes",
			Help:      "Size of written artifacts.",
			Buckets:   prometheus.ExponentialBuckets(1024, 4, 8),
		}, []string{"format"}),
		ReapedFiles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reaped_files_total",
			Help:      "Files handled by the scratch reaper by outcome.",
		}, []string{"outcome"}),
		HTTPRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests.",
		}, []string{"method", "route", "status"}),
		HTTPDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}

	registry.MustRegister(
		c.Generations,
		c.StageDuration,
		c.ArtifactBytes,
		c.ReapedFiles,
		c.HTTPRequests,
		c.HTTPDuration,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return c
}

func (c *Collector) Registry() *prometheus.Registry { return c.registry }

// Handler serves the registry in the Prometheus text format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{Registry: c.registry})
}

// ObserveGeneration counts one run; a nil err counts as ok.
func (c *Collector) ObserveGeneration(err error) {
	if c == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = string(apperr.KindOf(err))
	}
	c.Generations.WithLabelValues(outcome).Inc()
}

func (c *Collector) ObserveStage(stage string, started time.Time) {
	if c == nil {
		return
	}
	c.StageDuration.WithLabelValues(stage).Observe(time.Since(started).Seconds())
}

func (c *Collector) ObserveArtifact(a scratch.Artifact) {
	if c == nil {
		return
	}
	c.ArtifactBytes.WithLabelValues(a.Ext()).Observe(float64(a.Size))
}

// ObserveReap is shaped to be passed straight to Store.RunReaper.
func (c *Collector) ObserveReap(report scratch.ReapReport) {
	if c == nil {
		return
	}
	if n := len(report.Removed()); n > 0 {
		c.ReapedFiles.WithLabelValues(string(scratch.Removed)).Add(float64(n))
	}
	if n := len(report.Failed()); n > 0 {
		c.ReapedFiles.WithLabelValues(string(scratch.Failed)).Add(float64(n))
	}
}

func (c *Collector) ObserveHTTP(method, route string, status int, d time.Duration) {
	if c == nil {
		return
	}
	c.HTTPRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	c.HTTPDuration.WithLabelValues(method, route).Observe(d.Seconds())
}
