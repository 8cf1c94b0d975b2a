// Package metrics holds the Prometheus collectors for the listing pipeline.
// A nil *Metrics is valid and records nothing.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "shop_post_bot"

type Metrics struct {
	Registry *prometheus.Registry

	listingsSubmitted prometheus.Counter
	listingsPublished prometheus.Counter
	deliveryFailures  *prometheus.CounterVec
	renderFailures    prometheus.Counter
	listingsParked    prometheus.Counter
	schedulerTicks    prometheus.Counter
	publishDuration   prometheus.Histogram
}

func New() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		Registry: registry,
		listingsSubmitted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "listings_submitted_total",
			Help:      "Total number of listings submitted for moderation.",
		}),
		listingsPublished: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "listings_published_total",
			Help:      "Total number of listings delivered to the channel.",
		}),
		deliveryFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "delivery_failures_total",
			Help:      "Failed channel deliveries by failure kind.",
		}, []string{"kind"}),
		renderFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "render_failures_total",
			Help:      "Total number of listings that could not be rendered.",
		}),
		listingsParked: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "listings_parked_total",
			Help:      "Listings taken off the schedule after too many failed deliveries.",
		}),
		schedulerTicks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "scheduler_ticks_total",
			Help:      "Total number of scheduler ticks.",
		}),
		publishDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "publish_duration_seconds",
			Help:      "Time spent delivering one listing to the channel.",
			Buckets:   prometheus.DefBuckets,
		}),
	}

	registry.MustRegister(
		m.listingsSubmitted,
		m.listingsPublished,
		m.deliveryFailures,
		m.renderFailures,
		m.listingsParked,
		m.schedulerTicks,
		m.publishDuration,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Handler exposes the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})
}

func (m *Metrics) ListingSubmitted() {
	if m != nil {
		m.listingsSubmitted.Inc()
	}
}

func (m *Metrics) ListingPublished(took time.Duration) {
	if m != nil {
		m.listingsPublished.Inc()
		m.publishDuration.Observe(took.Seconds())
	}
}

// DeliveryFailed counts a failed send; kind is "transient" or "permanent".
func (m *Metrics) DeliveryFailed(kind string) {
	if m != nil {
		m.deliveryFailures.WithLabelValues(kind).Inc()
	}
}

func (m *Metrics) RenderFailed() {
	if m != nil {
		m.renderFailures.Inc()
	}
}

func (m *Metrics) ListingParked() {
	if m != nil {
		m.listingsParked.Inc()
	}
}

func (m *Metrics) SchedulerTick() {
	if m != nil {
		m.schedulerTicks.Inc()
	}
}
