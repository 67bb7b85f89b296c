// Package metrics exposes Prometheus collectors for scheduled jobs, provider
// webhooks and the notification dispatcher.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Webhook outcomes
const (
	OutcomeProcessed = "processed"
	OutcomeDuplicate = "duplicate"
	OutcomeIgnored   = "ignored"
	OutcomeRejected  = "rejected"
	OutcomeFailed    = "failed"
)

// Collector groups every metric the service records.
type Collector struct {
	registry *prometheus.Registry

	jobRuns     *prometheus.CounterVec
	jobFailures *prometheus.CounterVec
	jobDuration *prometheus.HistogramVec
	jobItems    *prometheus.CounterVec

	webhookEvents    *prometheus.CounterVec
	dispatchDropped  prometheus.Counter
	dispatchFailures *prometheus.CounterVec
}

// New creates a collector backed by its own registry, so several collectors
// can coexist in one process (tests, job run-once mode).
func New() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		jobRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "link2ur_job_runs_total",
			Help: "Total number of scheduled job runs",
		}, []string{"job"}),
		jobFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "link2ur_job_failures_total",
			Help: "Total number of scheduled job runs that returned an error",
		}, []string{"job"}),
		jobDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "link2ur_job_duration_seconds",
			Help:    "Scheduled job run duration in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"job"}),
		jobItems: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "link2ur_job_items_total",
			Help: "Total number of items processed by scheduled jobs",
		}, []string{"job"}),
		webhookEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "link2ur_webhook_events_total",
			Help: "Payment provider webhook events by type and outcome",
		}, []string{"type", "outcome"}),
		dispatchDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "link2ur_dispatch_dropped_total",
			Help: "External notification dispatches dropped because the queue was full",
		}),
		dispatchFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "link2ur_dispatch_failures_total",
			Help: "External notification deliveries that failed per channel",
		}, []string{"channel"}),
	}

	c.registry.MustRegister(
		c.jobRuns,
		c.jobFailures,
		c.jobDuration,
		c.jobItems,
		c.webhookEvents,
		c.dispatchDropped,
		c.dispatchFailures,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return c
}

// ObserveJob records one job run.
func (c *Collector) ObserveJob(job string, took time.Duration, items int, err error) {
	if c == nil {
		return
	}
	c.jobRuns.WithLabelValues(job).Inc()
	c.jobDuration.WithLabelValues(job).Observe(took.Seconds())
	if items > 0 {
		c.jobItems.WithLabelValues(job).Add(float64(items))
	}
	if err != nil {
		c.jobFailures.WithLabelValues(job).Inc()
	}
}

// WebhookEvent records a handled provider event.
func (c *Collector) WebhookEvent(eventType, outcome string) {
	if c == nil {
		return
	}
	c.webhookEvents.WithLabelValues(eventType, outcome).Inc()
}

// DispatchDropped records a dispatch that did not fit in the queue.
func (c *Collector) DispatchDropped() {
	if c == nil {
		return
	}
	c.dispatchDropped.Inc()
}

// DispatchFailed records a failed channel delivery.
func (c *Collector) DispatchFailed(channel string) {
	if c == nil {
		return
	}
	c.dispatchFailures.WithLabelValues(channel).Inc()
}

// Registry returns the underlying registry.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler serves the registry in the Prometheus text format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{Registry: c.registry})
}
