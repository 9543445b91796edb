// Package metrics exposes the gateway client's Prometheus metrics,
// grounded on the teacher's root metrics.go. A nil *Metrics is safe to
// call methods on — every method is a no-op in that case — so components
// never need a separate "metrics enabled" check.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds one endpoint's Stream Client Service counters/gauges.
type Metrics struct {
	reconnectsTotal   prometheus.Counter
	connectsFailed    prometheus.Counter
	disconnectsTotal  *prometheus.CounterVec
	bufferGrowthTotal prometheus.Counter
	bufferBytesActive prometheus.Gauge
	bytesReceived     prometheus.Counter
	bytesSent         prometheus.Counter
	currentState      *prometheus.GaugeVec
}

// New registers and returns a Metrics bound to registry. logTag labels
// every series so multiple endpoints can share one registry.
func New(registry *prometheus.Registry, logTag string) *Metrics {
	constLabels := prometheus.Labels{"log_tag": logTag}

	m := &Metrics{
		reconnectsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "gatewayclient_reconnects_total",
			Help:        "Total number of reconnect attempts made after a disconnect.",
			ConstLabels: constLabels,
		}),
		connectsFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "gatewayclient_connects_failed_total",
			Help:        "Total number of connect attempts that failed before a transport opened.",
			ConstLabels: constLabels,
		}),
		disconnectsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "gatewayclient_disconnects_total",
			Help:        "Total disconnections by cause.",
			ConstLabels: constLabels,
		}, []string{"cause"}),
		bufferGrowthTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "gatewayclient_buffer_growth_total",
			Help:        "Total number of times the receive buffer pair doubled in size.",
			ConstLabels: constLabels,
		}),
		bufferBytesActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name:        "gatewayclient_buffer_bytes_active",
			Help:        "Current capacity, in bytes, of the active receive buffer.",
			ConstLabels: constLabels,
		}),
		bytesReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "gatewayclient_bytes_received_total",
			Help:        "Total bytes delivered by the transport.",
			ConstLabels: constLabels,
		}),
		bytesSent: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "gatewayclient_bytes_sent_total",
			Help:        "Total bytes accepted by the transport for send.",
			ConstLabels: constLabels,
		}),
		currentState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name:        "gatewayclient_state",
			Help:        "1 for the Service's current reconnect-state-machine state, 0 otherwise.",
			ConstLabels: constLabels,
		}, []string{"state"}),
	}

	registry.MustRegister(
		m.reconnectsTotal, m.connectsFailed, m.disconnectsTotal,
		m.bufferGrowthTotal, m.bufferBytesActive, m.bytesReceived,
		m.bytesSent, m.currentState,
	)
	return m
}

func (m *Metrics) ReconnectAttempted() {
	if m == nil {
		return
	}
	m.reconnectsTotal.Inc()
}

func (m *Metrics) ConnectFailed() {
	if m == nil {
		return
	}
	m.connectsFailed.Inc()
}

func (m *Metrics) Disconnected(cause string) {
	if m == nil {
		return
	}
	m.disconnectsTotal.WithLabelValues(cause).Inc()
}

func (m *Metrics) BufferGrew(newCapacityBytes int) {
	if m == nil {
		return
	}
	m.bufferGrowthTotal.Inc()
	m.bufferBytesActive.Set(float64(newCapacityBytes))
}

func (m *Metrics) BytesReceived(n int) {
	if m == nil {
		return
	}
	m.bytesReceived.Add(float64(n))
}

func (m *Metrics) BytesSent(n int) {
	if m == nil {
		return
	}
	m.bytesSent.Add(float64(n))
}

// SetState zeroes every other known state label and sets state to 1,
// giving a Grafana panel a clean single active series per Service.
func (m *Metrics) SetState(state string, known []string) {
	if m == nil {
		return
	}
	for _, s := range known {
		m.currentState.WithLabelValues(s).Set(0)
	}
	m.currentState.WithLabelValues(state).Set(1)
}

// Handler returns the HTTP handler cmd/ binaries mount at /metrics.
func Handler(registry *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}
