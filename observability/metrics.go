package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the orchestrator's self-monitoring instruments on a custom
// registry, so tests can run many instances without collisions.
type Metrics struct {
	Registry *prometheus.Registry

	ReconcileTotal    *prometheus.CounterVec
	ReconcileDuration *prometheus.HistogramVec
	QueueDepth        *prometheus.GaugeVec

	StoreItems    *prometheus.GaugeVec
	EventsTotal   *prometheus.CounterVec
	EventsDropped *prometheus.CounterVec

	RuntimeOps *prometheus.CounterVec
}

// NewMetrics creates and registers all instruments.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		Registry: reg,

		ReconcileTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "picokube_reconcile_total",
			Help: "Total number of reconcile invocations.",
		}, []string{"controller", "result"}),
		ReconcileDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "picokube_reconcile_duration_seconds",
			Help:    "Duration of reconcile invocations in seconds.",
			Buckets: prometheus.DefBuckets,
		}, []string{"controller"}),
		QueueDepth: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "picokube_workqueue_depth",
			Help: "Current number of keys waiting in a controller work queue.",
		}, []string{"controller"}),

		StoreItems: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "picokube_store_items",
			Help: "Current number of resources in the store.",
		}, []string{"kind"}),
		EventsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "picokube_store_events_total",
			Help: "Total number of store events published.",
		}, []string{"kind", "type"}),
		EventsDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "picokube_store_events_dropped_total",
			Help: "Store events dropped because a watcher was slow.",
		}, []string{"kind"}),

		RuntimeOps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "picokube_runtime_ops_total",
			Help: "Total number of container runtime operations.",
		}, []string{"op", "result"}),
	}

	reg.MustRegister(
		m.ReconcileTotal,
		m.ReconcileDuration,
		m.QueueDepth,
		m.StoreItems,
		m.EventsTotal,
		m.EventsDropped,
		m.RuntimeOps,
	)
	return m
}

// Handler serves the registry in Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})
}
