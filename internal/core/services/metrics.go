package services

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Result labels shared by the realtime metrics.
const (
	ResultSuccess = "success"
	ResultFailure = "failure"
	ResultDenied  = "denied"
)

// ConnectedClients tracks live registrations per transport.
var ConnectedClients = prometheus.NewGaugeVec(
	prometheus.GaugeOpts{
		Name: "petcare_realtime_connected_clients",
		Help: "Number of registered realtime connections",
	},
	[]string{"transport"},
)

// RoutedEvents counts fan-outs by event kind.
var RoutedEvents = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "petcare_realtime_routed_events_total",
		Help: "Total number of domain events routed",
	},
	[]string{"kind"},
)

// Deliveries counts per-recipient deliveries.
var Deliveries = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "petcare_realtime_deliveries_total",
		Help: "Total number of per-connection event deliveries",
	},
	[]string{"transport", "result"},
)

// Operations counts dispatched operations.
var Operations = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "petcare_operations_total",
		Help: "Total number of dispatched operations",
	},
	[]string{"operation", "result"},
)

// OperationDuration observes dispatched operation latency.
var OperationDuration = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Name:    "petcare_operation_duration_seconds",
		Help:    "Operation execution duration in seconds",
		Buckets: prometheus.DefBuckets,
	},
	[]string{"operation"},
)

// Authentications counts authentication attempts by resulting role.
var Authentications = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "petcare_realtime_authentications_total",
		Help: "Total number of connection authentication attempts",
	},
	[]string{"role", "result"},
)

// RegisterMetrics registers the realtime metrics with reg.
// Panics if registration fails (following prometheus convention).
func RegisterMetrics(reg prometheus.Registerer) {
	reg.MustRegister(ConnectedClients)
	reg.MustRegister(RoutedEvents)
	reg.MustRegister(Deliveries)
	reg.MustRegister(Operations)
	reg.MustRegister(OperationDuration)
	reg.MustRegister(Authentications)
}

func recordOperation(operation, result string, duration time.Duration) {
	Operations.WithLabelValues(operation, result).Inc()
	OperationDuration.WithLabelValues(operation).Observe(duration.Seconds())
}
