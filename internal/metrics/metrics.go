// Package metrics exposes the connection subsystem's Prometheus
// instrumentation: per-kind connection counts and cumulative bytes,
// grounded on the saucelabs/forwarder example's use of
// prometheus/client_golang for proxy instrumentation.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"relaylink/internal/connrec"
)

// Metrics bundles the registry-owned collectors. A nil *Metrics is
// valid and every method becomes a no-op, so instrumentation can be
// wired in without forcing a Prometheus registry on every caller
// (tests in particular).
type Metrics struct {
	connections  *prometheus.GaugeVec
	bytesRead    *prometheus.CounterVec
	bytesWritten *prometheus.CounterVec
	globalBucket prometheus.Gauge
}

// New registers the connection subsystem's collectors on reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		connections: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "relaylink",
			Name:      "connections",
			Help:      "Number of connections currently registered, by kind.",
		}, []string{"kind"}),
		bytesRead: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "relaylink",
			Name:      "bytes_read_total",
			Help:      "Total octets read, by kind.",
		}, []string{"kind"}),
		bytesWritten: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "relaylink",
			Name:      "bytes_written_total",
			Help:      "Total octets written, by kind.",
		}, []string{"kind"}),
		globalBucket: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "relaylink",
			Name:      "global_read_bucket",
			Help:      "Current global read-bucket allowance in octets.",
		}),
	}
	reg.MustRegister(m.connections, m.bytesRead, m.bytesWritten, m.globalBucket)
	return m
}

func (m *Metrics) SetConnections(k connrec.Kind, n int) {
	if m == nil {
		return
	}
	m.connections.WithLabelValues(k.String()).Set(float64(n))
}

func (m *Metrics) AddBytesRead(k connrec.Kind, n uint64) {
	if m == nil {
		return
	}
	m.bytesRead.WithLabelValues(k.String()).Add(float64(n))
}

func (m *Metrics) AddBytesWritten(k connrec.Kind, n uint64) {
	if m == nil {
		return
	}
	m.bytesWritten.WithLabelValues(k.String()).Add(float64(n))
}

func (m *Metrics) SetGlobalBucket(n int64) {
	if m == nil {
		return
	}
	m.globalBucket.Set(float64(n))
}
