// Package metrics exposes store and provisioning counters to Prometheus.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "dirstore"

// Metrics records store calls and tenant provisioning outcomes. It
// satisfies blobstore.Recorder and tenant.Recorder.
type Metrics struct {
	registry     *prometheus.Registry
	storeCalls   *prometheus.CounterVec
	storeLatency *prometheus.HistogramVec
	tenantOps    *prometheus.CounterVec
}

// New registers the collectors on a fresh registry, together with the Go
// runtime and process collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		storeCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "store_calls_total",
			Help:      "Object store calls by operation and result.",
		}, []string{"op", "result"}),
		storeLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "store_call_duration_seconds",
			Help:      "Object store call latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"op"}),
		tenantOps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tenant_operations_total",
			Help:      "Tenant provisioning operations by result.",
		}, []string{"op", "result"}),
	}
	m.registry.MustRegister(
		m.storeCalls,
		m.storeLatency,
		m.tenantOps,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

// ObserveCall records one store call.
func (m *Metrics) ObserveCall(op string, elapsed time.Duration, err error) {
	m.storeCalls.WithLabelValues(op, result(err)).Inc()
	m.storeLatency.WithLabelValues(op).Observe(elapsed.Seconds())
}

// ObserveTenantOp records one provisioning operation.
func (m *Metrics) ObserveTenantOp(op string, err error) {
	m.tenantOps.WithLabelValues(op, result(err)).Inc()
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
