package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics collects Prometheus metrics for cascade operations.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	operations *prometheus.CounterVec
	duration   *prometheus.HistogramVec
	objects    *prometheus.CounterVec
	skipped    *prometheus.CounterVec
}

// NewMetrics registers the collectors on registry.
// If registry is nil, uses the default Prometheus registry.
func NewMetrics(registry prometheus.Registerer, namespace string) *Metrics {
	if registry == nil {
		registry = prometheus.DefaultRegisterer
	}
	if namespace == "" {
		namespace = "lazarus"
	}

	factory := promauto.With(registry)

	return &Metrics{
		operations: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "operations_total",
				Help:      "Cascade operations by operation and outcome",
			},
			[]string{"operation", "outcome"},
		),

		duration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "operation_duration_seconds",
				Help:      "Cascade operation duration in seconds",
				Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 30},
			},
			[]string{"operation"},
		),

		objects: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "objects_total",
				Help:      "Records deleted or restored by cascades",
			},
			[]string{"operation", "entity_type"},
		),

		skipped: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "skipped_relations_total",
				Help:      "Relationship traversal steps skipped after a failure",
			},
			[]string{"operation"},
		),
	}
}

// ObserveOperation records one finished operation.
func (m *Metrics) ObserveOperation(operation, outcome string, duration time.Duration) {
	if m == nil {
		return
	}
	m.operations.WithLabelValues(operation, outcome).Inc()
	m.duration.WithLabelValues(operation).Observe(duration.Seconds())
}

// AddObjects counts records changed by an operation.
func (m *Metrics) AddObjects(operation, entityType string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.objects.WithLabelValues(operation, entityType).Add(float64(n))
}

// AddSkipped counts skipped relationship steps.
func (m *Metrics) AddSkipped(operation string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.skipped.WithLabelValues(operation).Add(float64(n))
}
