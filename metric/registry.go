// Package metric provides Prometheus instrumentation for the stream
// subsystem. Exposing the registry over HTTP is left to the embedding
// process; this package only collects.
package metric

import (
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

const namespace = "pairstream"

// Registry manages metric registration and owns the underlying
// Prometheus registry.
type Registry struct {
	prom       *prometheus.Registry
	mu         sync.Mutex
	registered map[string]prometheus.Collector
}

// NewRegistry creates a registry with Go runtime and process collectors
// pre-registered.
func NewRegistry() *Registry {
	prom := prometheus.NewRegistry()
	prom.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return &Registry{
		prom:       prom,
		registered: make(map[string]prometheus.Collector),
	}
}

// Prometheus returns the underlying Prometheus registry, for callers
// that want to mount it on an HTTP handler.
func (r *Registry) Prometheus() *prometheus.Registry {
	return r.prom
}

// register adds a collector under a unique name. Registering the same
// name twice is an error; the stream and keepalive metric sets are
// created once per registry.
func (r *Registry) register(name string, c prometheus.Collector) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.registered[name]; exists {
		return fmt.Errorf("metric %q already registered", name)
	}
	if err := r.prom.Register(c); err != nil {
		return fmt.Errorf("register metric %q: %w", name, err)
	}
	r.registered[name] = c
	return nil
}

// StreamMetrics is the per-connection metric set. Counters are labeled
// by stream id so one set serves any number of connections.
type StreamMetrics struct {
	ConnectAttempts   *prometheus.CounterVec
	Reconnects        *prometheus.CounterVec
	EventsDispatched  *prometheus.CounterVec
	ErrorsTotal       *prometheus.CounterVec
	ConnectionsActive *prometheus.GaugeVec
}

// NewStreamMetrics creates and registers the connection metric set. A
// nil registry yields nil, which every recording site tolerates.
func NewStreamMetrics(r *Registry) (*StreamMetrics, error) {
	if r == nil {
		return nil, nil
	}

	m := &StreamMetrics{
		ConnectAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "stream",
			Name:      "connect_attempts_total",
			Help:      "Transport connection attempts",
		}, []string{"stream"}),
		Reconnects: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "stream",
			Name:      "reconnects_scheduled_total",
			Help:      "Reconnect timers scheduled after transient errors",
		}, []string{"stream"}),
		EventsDispatched: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "stream",
			Name:      "events_dispatched_total",
			Help:      "Inbound messages dispatched, by kind",
		}, []string{"stream", "kind"}),
		ErrorsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "stream",
			Name:      "errors_total",
			Help:      "Errors surfaced to the caller, by class",
		}, []string{"stream", "class"}),
		ConnectionsActive: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "stream",
			Name:      "connections_active",
			Help:      "Whether the stream currently holds an open transport",
		}, []string{"stream"}),
	}

	for name, c := range map[string]prometheus.Collector{
		"stream_connect_attempts":  m.ConnectAttempts,
		"stream_reconnects":        m.Reconnects,
		"stream_events_dispatched": m.EventsDispatched,
		"stream_errors":            m.ErrorsTotal,
		"stream_connections":       m.ConnectionsActive,
	} {
		if err := r.register(name, c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// KeepAliveMetrics is the metric set of the keep-alive coordinator.
type KeepAliveMetrics struct {
	Probes        *prometheus.CounterVec
	Registrations prometheus.Gauge
}

// NewKeepAliveMetrics creates and registers the keep-alive metric set.
// A nil registry yields nil.
func NewKeepAliveMetrics(r *Registry) (*KeepAliveMetrics, error) {
	if r == nil {
		return nil, nil
	}

	m := &KeepAliveMetrics{
		Probes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "keepalive",
			Name:      "probes_total",
			Help:      "Health probes issued, by outcome",
		}, []string{"outcome"}),
		Registrations: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "keepalive",
			Name:      "registrations_active",
			Help:      "Active keep-alive registrations across all backends",
		}),
	}

	if err := r.register("keepalive_probes", m.Probes); err != nil {
		return nil, err
	}
	if err := r.register("keepalive_registrations", m.Registrations); err != nil {
		return nil, err
	}
	return m, nil
}
