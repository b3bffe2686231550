// Package metrics records discovery and HTTP metrics in a private Prometheus registry.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	labelOutcome      = "outcome"
	labelType         = "type"
	labelResourceType = "resource_type"
	labelReason       = "reason"
	labelCache        = "cache"
	labelRoute        = "route"
	labelStatus       = "status"
)

// Collector owns the topograph metric families. A nil *Collector is valid and records nothing.
type Collector struct {
	registry *prometheus.Registry

	runsTotal         *prometheus.CounterVec
	runDuration       prometheus.Histogram
	relationships     *prometheus.CounterVec
	extractorFailures *prometheus.CounterVec
	groupLookups      *prometheus.CounterVec
	httpRequests      *prometheus.CounterVec
}

// NewCollector registers every family in a fresh registry along with Go runtime collectors.
func NewCollector() *Collector {
	registry := prometheus.NewRegistry()
	c := &Collector{
		registry: registry,
		runsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "topograph_discovery_runs_total", Help: "Discovery runs by outcome"},
			[]string{labelOutcome},
		),
		runDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "topograph_discovery_duration_seconds",
			Help:    "Wall time of a discovery run",
			Buckets: prometheus.DefBuckets,
		}),
		relationships: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "topograph_relationships_discovered_total", Help: "Relationships returned after assembly"},
			[]string{labelType},
		),
		extractorFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "topograph_extractor_failures_total", Help: "Per-resource extractor failures"},
			[]string{labelResourceType, labelReason},
		),
		groupLookups: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "topograph_security_group_lookups_total", Help: "Security group rule lookups by cache result"},
			[]string{labelCache},
		),
		httpRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "topograph_http_requests_total", Help: "HTTP requests by route and status"},
			[]string{labelRoute, labelStatus},
		),
	}

	registry.MustRegister(
		c.runsTotal,
		c.runDuration,
		c.relationships,
		c.extractorFailures,
		c.groupLookups,
		c.httpRequests,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return c
}

// Registry exposes the underlying registry for tests and custom exporters.
func (c *Collector) Registry() *prometheus.Registry {
	if c == nil {
		return nil
	}
	return c.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	if c == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// ObserveRun records the outcome and duration of a discovery run.
func (c *Collector) ObserveRun(outcome string, duration time.Duration) {
	if c == nil {
		return
	}
	c.runsTotal.WithLabelValues(outcome).Inc()
	c.runDuration.Observe(duration.Seconds())
}

// AddRelationship counts a returned relationship by type.
func (c *Collector) AddRelationship(relType string) {
	if c == nil {
		return
	}
	c.relationships.WithLabelValues(relType).Inc()
}

// ExtractorFailed counts a resource whose extractor failed or timed out.
func (c *Collector) ExtractorFailed(resourceType, reason string) {
	if c == nil {
		return
	}
	c.extractorFailures.WithLabelValues(resourceType, reason).Inc()
}

// GroupLookups adds rule-cache hits and misses from a finished run.
func (c *Collector) GroupLookups(hits, misses int64) {
	if c == nil {
		return
	}
	c.groupLookups.WithLabelValues("hit").Add(float64(hits))
	c.groupLookups.WithLabelValues("miss").Add(float64(misses))
}

// ObserveRequest counts a served HTTP request.
func (c *Collector) ObserveRequest(route, status string) {
	if c == nil {
		return
	}
	c.httpRequests.WithLabelValues(route, status).Inc()
}
