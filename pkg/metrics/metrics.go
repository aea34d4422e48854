// Package metrics provides Prometheus instrumentation for gateway
// operations. Metrics are opt-in: when InitRegistry was never called,
// constructors return no-op instances and recording costs nothing.
package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	mu       sync.Mutex
	registry *prometheus.Registry
)

// InitRegistry enables metrics collection. Call once at startup before
// constructing any metric set.
func InitRegistry() {
	mu.Lock()
	defer mu.Unlock()
	if registry != nil {
		return
	}
	registry = prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
}

// IsEnabled reports whether InitRegistry has been called.
func IsEnabled() bool {
	mu.Lock()
	defer mu.Unlock()
	return registry != nil
}

// Handler returns the HTTP handler for the /metrics endpoint, or a
// 404 handler when metrics are disabled.
func Handler() http.Handler {
	mu.Lock()
	defer mu.Unlock()
	if registry == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}

// OperationMetrics records gateway operation outcomes.
type OperationMetrics struct {
	operationsTotal   *prometheus.CounterVec
	operationDuration *prometheus.HistogramVec
	bytesTransferred  *prometheus.CounterVec
}

// NewOperationMetrics creates the operation metric set, or a no-op set
// when metrics are disabled.
func NewOperationMetrics() *OperationMetrics {
	mu.Lock()
	reg := registry
	mu.Unlock()
	if reg == nil {
		return &OperationMetrics{}
	}

	return &OperationMetrics{
		operationsTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "filegate_operations_total",
				Help: "Total gateway operations by operation, repository, and status",
			},
			[]string{"operation", "repository", "status"},
		),
		operationDuration: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "filegate_operation_duration_milliseconds",
				Help:    "Duration of gateway operations in milliseconds",
				Buckets: []float64{1, 10, 100, 1000, 10000},
			},
			[]string{"operation", "repository"},
		),
		bytesTransferred: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "filegate_bytes_transferred_total",
				Help: "Bytes moved through the gateway by direction",
			},
			[]string{"direction", "repository"},
		),
	}
}

// ObserveOperation records one completed operation.
func (m *OperationMetrics) ObserveOperation(operation, repository string, success bool, elapsed time.Duration) {
	if m.operationsTotal == nil {
		return
	}
	status := "success"
	if !success {
		status = "failure"
	}
	m.operationsTotal.WithLabelValues(operation, repository, status).Inc()
	m.operationDuration.WithLabelValues(operation, repository).Observe(float64(elapsed.Milliseconds()))
}

// AddBytes records payload bytes moved in or out.
func (m *OperationMetrics) AddBytes(direction, repository string, n int64) {
	if m.bytesTransferred == nil || n <= 0 {
		return
	}
	m.bytesTransferred.WithLabelValues(direction, repository).Add(float64(n))
}
