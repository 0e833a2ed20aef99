// Package metrics exposes Prometheus counters and gauges for device
// counts by status, assignment attempts/successes, session counts by
// status, and bytes served (SPEC_FULL.md §9 "Metrics"). This is ambient
// observability, not a spec-mandated feature, but is carried the same
// way the rest of the ambient stack is.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds every casterd Prometheus collector. It is safe for
// concurrent use — the underlying prometheus types already are.
type Metrics struct {
	DevicesByStatus   *prometheus.GaugeVec
	SessionsByStatus  *prometheus.GaugeVec
	AssignAttempts    prometheus.Counter
	AssignSuccesses   prometheus.Counter
	StreamBytesServed prometheus.Counter
	registry          *prometheus.Registry
}

// New registers a fresh set of collectors on their own registry, so
// multiple casterd instances in one process (as under
// internal/supervisor) never collide on Prometheus's default registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		DevicesByStatus: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "caster_devices_by_status",
			Help: "Number of known devices, partitioned by status.",
		}, []string{"status"}),
		SessionsByStatus: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "caster_stream_sessions_by_status",
			Help: "Number of streaming sessions, partitioned by status.",
		}, []string{"status"}),
		AssignAttempts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "caster_assign_attempts_total",
			Help: "Total play-assignment attempts across all devices.",
		}),
		AssignSuccesses: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "caster_assign_successes_total",
			Help: "Total successful play assignments across all devices.",
		}),
		StreamBytesServed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "caster_stream_bytes_total",
			Help: "Total bytes served by the streaming HTTP server pool.",
		}),
		registry: reg,
	}
	reg.MustRegister(m.DevicesByStatus, m.SessionsByStatus, m.AssignAttempts, m.AssignSuccesses, m.StreamBytesServed)
	return m
}

// Handler returns the /metrics HTTP handler for this Metrics instance.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// SetDeviceCounts replaces the device-by-status gauge values wholesale,
// the simplest way to keep a gauge vec consistent with a
// point-in-time snapshot (stale statuses are reset to 0 rather than
// left stuck at their last observed count).
func (m *Metrics) SetDeviceCounts(counts map[string]int) {
	m.DevicesByStatus.Reset()
	for status, n := range counts {
		m.DevicesByStatus.WithLabelValues(status).Set(float64(n))
	}
}

// SetSessionCounts is SetDeviceCounts' counterpart for streaming
// sessions.
func (m *Metrics) SetSessionCounts(counts map[string]int) {
	m.SessionsByStatus.Reset()
	for status, n := range counts {
		m.SessionsByStatus.WithLabelValues(status).Set(float64(n))
	}
}

// RecordAssignment increments the attempt counter, and the success
// counter too when ok.
func (m *Metrics) RecordAssignment(ok bool) {
	m.AssignAttempts.Inc()
	if ok {
		m.AssignSuccesses.Inc()
	}
}

// AddBytesServed adds n bytes to the cumulative bytes-served counter.
func (m *Metrics) AddBytesServed(n int64) {
	if n > 0 {
		m.StreamBytesServed.Add(float64(n))
	}
}
