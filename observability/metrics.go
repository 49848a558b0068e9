package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics aggregates the prometheus collectors for the exchange: RPC traffic
// plus settlement throughput and volume, labelled by settlement kind
// (bid_accepted or purchase).
type Metrics struct {
	registry    *prometheus.Registry
	Requests    *prometheus.CounterVec
	Durations   *prometheus.HistogramVec
	Settlements *prometheus.CounterVec
	Volume      *prometheus.CounterVec
}

// NewMetrics builds and registers the exchange collectors on a private
// registry so tests can construct them repeatedly.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "bazaar"
	}
	registry := prometheus.NewRegistry()
	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "rpc_requests_total",
		Help:      "Total RPC requests processed by the exchange.",
	}, []string{"method", "status"})
	durations := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "rpc_request_duration_seconds",
		Help:      "Duration of RPC requests in seconds.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method"})
	settlements := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "settlements_total",
		Help:      "Total settlements executed, by kind.",
	}, []string{"kind"})
	volume := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "settlement_volume_total",
		Help:      "Cumulative settled payment value, by token.",
	}, []string{"token"})
	registry.MustRegister(requests, durations, settlements, volume)
	return &Metrics{
		registry:    registry,
		Requests:    requests,
		Durations:   durations,
		Settlements: settlements,
		Volume:      volume,
	}
}

// Handler exposes the registry for the /metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
