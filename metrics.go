package dubbo

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics wraps the Prometheus collectors described in SPEC_FULL.md §5:
// ConnectionPool contributes an open-connections gauge and an invoke
// latency histogram, Registry contributes a watch-fired counter and a
// routing-entry size gauge. Grounded on m-lab-tcp-info and
// marmos91-dittofs, both of which register a small fixed collector set
// for a long-lived network service rather than using the default
// registry's auto-discovery.
//
// A nil *Metrics is valid and every method is a no-op on it, since
// RegistryConfig.Metrics and the pool's metrics are optional.
type Metrics struct {
	connsOpen      *prometheus.GaugeVec
	invokeLatency  *prometheus.HistogramVec
	watchFired     *prometheus.CounterVec
	routingEntries *prometheus.GaugeVec
}

// NewMetrics creates and registers the collectors against reg. Passing a
// fresh prometheus.NewRegistry() avoids collisions with other modules
// sharing the default registry.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		connsOpen: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "dubbo",
			Subsystem: "pool",
			Name:      "connections_open",
			Help:      "Number of currently open provider connections, by host.",
		}, []string{"host"}),
		invokeLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "dubbo",
			Subsystem: "pool",
			Name:      "invoke_latency_seconds",
			Help:      "Round-trip latency of Connection.Invoke, by host and outcome.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"host", "outcome"}),
		watchFired: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "dubbo",
			Subsystem: "registry",
			Name:      "watch_fired_total",
			Help:      "Number of times a ZooKeeper child watch fired, by interface and kind.",
		}, []string{"interface", "kind"}),
		routingEntries: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "dubbo",
			Subsystem: "registry",
			Name:      "routing_entry_hosts",
			Help:      "Number of provider hosts in the current routing entry, by interface.",
		}, []string{"interface"}),
	}
	reg.MustRegister(m.connsOpen, m.invokeLatency, m.watchFired, m.routingEntries)
	return m
}

func (m *Metrics) connOpened(host string) {
	if m == nil {
		return
	}
	m.connsOpen.WithLabelValues(host).Inc()
}

func (m *Metrics) connClosed(host string) {
	if m == nil {
		return
	}
	m.connsOpen.WithLabelValues(host).Dec()
}

func (m *Metrics) observeInvoke(host string, d time.Duration, success bool) {
	if m == nil {
		return
	}
	outcome := "error"
	if success {
		outcome = "ok"
	}
	m.invokeLatency.WithLabelValues(host, outcome).Observe(d.Seconds())
}

func (m *Metrics) watchFiredEvent(iface, kind string) {
	if m == nil {
		return
	}
	m.watchFired.WithLabelValues(iface, kind).Inc()
}

func (m *Metrics) setRoutingEntrySize(iface string, hosts int) {
	if m == nil {
		return
	}
	m.routingEntries.WithLabelValues(iface).Set(float64(hosts))
}
