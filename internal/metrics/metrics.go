package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the service collectors on a private registry so several
// instances can coexist in tests.
type Metrics struct {
	registry *prometheus.Registry

	Bookings        *prometheus.CounterVec
	Transitions     *prometheus.CounterVec
	FreeSlotLatency prometheus.Histogram
	JournalFailures prometheus.Counter
	SweptTotal      prometheus.Counter
	HTTPDuration    *prometheus.HistogramVec
}

func New(namespace string) *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		Bookings: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bookings_total",
			Help:      "Booking attempts by outcome",
		}, []string{"result"}),
		Transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transitions_total",
			Help:      "Appointment mutations by operation and outcome",
		}, []string{"operation", "result"}),
		FreeSlotLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "free_slots_duration_seconds",
			Help:      "Time spent computing free slots",
			Buckets:   []float64{.00005, .0001, .0005, .001, .005, .01, .05},
		}),
		JournalFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "journal_failures_total",
			Help:      "Mutations aborted because persistence failed",
		}),
		SweptTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "swept_appointments_total",
			Help:      "Confirmed appointments completed by the sweeper",
		}),
		HTTPDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),
	}

	m.registry.MustRegister(
		m.Bookings,
		m.Transitions,
		m.FreeSlotLatency,
		m.JournalFailures,
		m.SweptTotal,
		m.HTTPDuration,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Handler exposes the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
