// Package metrics exposes dispatch and container metrics through Prometheus.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/toyz/loom/internal/dispatch"
)

const namespace = "loom"

// Collector owns a dedicated registry so several applications can run in
// one process without colliding on the default registerer
type Collector struct {
	Registry *prometheus.Registry

	requests   *prometheus.CounterVec
	duration   *prometheus.HistogramVec
	components prometheus.Gauge
	inFlight   prometheus.Gauge
}

// NewCollector creates and registers the loom collectors
func NewCollector() *Collector {
	c := &Collector{
		Registry: prometheus.NewRegistry(),
		requests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "dispatch",
				Name:      "requests_total",
				Help:      "Dispatched requests by final state.",
			},
			[]string{"state"},
		),
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "dispatch",
				Name:      "duration_seconds",
				Help:      "Dispatch duration by matched route.",
				Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 12), // 0.5ms to ~1s
			},
			[]string{"route"},
		),
		components: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "container",
				Name:      "components",
				Help:      "Singletons held by the container.",
			},
		),
		inFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "http",
				Name:      "inflight_requests",
				Help:      "Requests currently being served by the HTTP adapter.",
			},
		),
	}

	c.Registry.MustRegister(
		c.requests,
		c.duration,
		c.components,
		c.inFlight,
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
		prometheus.NewGoCollector(),
	)
	return c
}

// ObserveDispatch implements dispatch.Observer
func (c *Collector) ObserveDispatch(route string, state dispatch.State, elapsed time.Duration) {
	c.requests.WithLabelValues(state.String()).Inc()
	if route == "" {
		route = "unmatched"
	}
	c.duration.WithLabelValues(route).Observe(elapsed.Seconds())
}

// SetComponents records the number of container singletons
func (c *Collector) SetComponents(n int) {
	c.components.Set(float64(n))
}

// Handler exposes the registry in the Prometheus text format
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.Registry, promhttp.HandlerOpts{})
}

// InstrumentHandler tracks in-flight requests around next
func (c *Collector) InstrumentHandler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c.inFlight.Inc()
		defer c.inFlight.Dec()
		next.ServeHTTP(w, r)
	})
}
