// Package metrics exposes operation counters and latencies on a private Prometheus
// registry.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "vaultsync"

// Outcome label values.
const (
	OutcomeOK       = "ok"
	OutcomeError    = "error"
	OutcomeConflict = "conflict"
)

// Collector is safe for concurrent use. A nil *Collector records nothing.
type Collector struct {
	registry   *prometheus.Registry
	operations *prometheus.CounterVec
	duration   *prometheus.HistogramVec
	conflicts  prometheus.Counter
}

// NewCollector registers the vaultsync metrics on registry, or on a fresh registry
// when registry is nil.
func NewCollector(registry *prometheus.Registry) *Collector {
	if registry == nil {
		registry = prometheus.NewRegistry()
	}

	c := &Collector{
		registry: registry,
		operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "operations_total",
			Help:      "Vault operations by command and outcome.",
		}, []string{"op", "outcome"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "operation_duration_seconds",
			Help:      "Vault operation latency.",
			Buckets:   []float64{0.005, 0.025, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"op"}),
		conflicts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "conflicts_total",
			Help:      "Conflicted paths reported by pulls.",
		}),
	}
	registry.MustRegister(c.operations, c.duration, c.conflicts)
	return c
}

// ObserveOperation records one finished operation.
func (c *Collector) ObserveOperation(op, outcome string, d time.Duration) {
	if c == nil {
		return
	}
	c.operations.WithLabelValues(op, outcome).Inc()
	c.duration.WithLabelValues(op).Observe(d.Seconds())
}

// AddConflicts counts conflicted paths.
func (c *Collector) AddConflicts(n int) {
	if c == nil || n <= 0 {
		return
	}
	c.conflicts.Add(float64(n))
}

// Registry returns the registry the metrics live on.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}
