// Package metrics exposes Prometheus collectors for connection lifecycle,
// heartbeats, envelopes, the peer registry and the acceptor HTTP surface.
//
// A nil *Recorder is valid and records nothing, so components take one
// unconditionally.
package metrics

import (
	"errors"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Namespace prefixes every metric name.
const Namespace = "pulselink"

// Recorder holds the pulselink collectors.
type Recorder struct {
	gatherer prometheus.Gatherer

	transitions    *prometheus.CounterVec
	heartbeats     *prometheus.CounterVec
	envelopes      *prometheus.CounterVec
	parseErrors    *prometheus.CounterVec
	acks           prometheus.Counter
	sendsDropped   *prometheus.CounterVec
	reconnects     prometheus.Counter
	stale          *prometheus.CounterVec
	peers          prometheus.Gauge
	httpRequests   *prometheus.CounterVec
	httpDuration   *prometheus.HistogramVec
	handlerFailure *prometheus.CounterVec
	rejected       *prometheus.CounterVec
}

var (
	registerOnce sync.Once
	defaultRec   *Recorder
)

// Default returns the recorder registered with the global Prometheus registry.
func Default() *Recorder {
	registerOnce.Do(func() {
		defaultRec = New(prometheus.DefaultRegisterer)
		defaultRec.gatherer = prometheus.DefaultGatherer
	})
	return defaultRec
}

// NewIsolated returns a recorder backed by its own registry.
func NewIsolated() *Recorder {
	reg := prometheus.NewRegistry()
	r := New(reg)
	r.gatherer = reg
	return r
}

// New creates collectors and registers them with reg.
// Collectors already registered under the same names are reused.
func New(reg prometheus.Registerer) *Recorder {
	r := &Recorder{
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "connection_transitions_total",
			Help:      "Connection state transitions.",
		}, []string{"role", "from", "to"}),
		heartbeats: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "heartbeats_sent_total",
			Help:      "Heartbeat envelopes sent.",
		}, []string{"role"}),
		envelopes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "envelopes_received_total",
			Help:      "Envelopes received by kind.",
		}, []string{"role", "kind"}),
		parseErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "parse_errors_total",
			Help:      "Inbound frames discarded as malformed.",
		}, []string{"role"}),
		acks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "acks_sent_total",
			Help:      "Acks sent for received data.",
		}),
		sendsDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "sends_dropped_total",
			Help:      "Outbound envelopes dropped because the connection was not open.",
		}, []string{"role"}),
		reconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "reconnect_attempts_total",
			Help:      "Reconnection attempts scheduled.",
		}),
		stale: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "stale_connections_total",
			Help:      "Connections closed after the liveness window elapsed.",
		}, []string{"role"}),
		peers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "registry_peers",
			Help:      "Live peers in the acceptor registry.",
		}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests.",
		}, []string{"method", "path", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: Namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "path", "status"}),
		handlerFailure: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "handler_failures_total",
			Help:      "Application handler errors and panics.",
		}, []string{"role", "kind"}),
		rejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "upgrades_rejected_total",
			Help:      "Upgrade requests refused before a connection was created.",
		}, []string{"reason"}),
	}

	if reg != nil {
		r.transitions = register(reg, r.transitions)
		r.heartbeats = register(reg, r.heartbeats)
		r.envelopes = register(reg, r.envelopes)
		r.parseErrors = register(reg, r.parseErrors)
		r.acks = register(reg, r.acks)
		r.sendsDropped = register(reg, r.sendsDropped)
		r.reconnects = register(reg, r.reconnects)
		r.stale = register(reg, r.stale)
		r.peers = register(reg, r.peers)
		r.httpRequests = register(reg, r.httpRequests)
		r.httpDuration = register(reg, r.httpDuration)
		r.handlerFailure = register(reg, r.handlerFailure)
		r.rejected = register(reg, r.rejected)
	}
	return r
}

func register[C prometheus.Collector](reg prometheus.Registerer, c C) C {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing
			}
		}
		panic(err)
	}
	return c
}

// Gatherer returns the registry the recorder reports to.
func (r *Recorder) Gatherer() prometheus.Gatherer {
	if r == nil || r.gatherer == nil {
		return prometheus.DefaultGatherer
	}
	return r.gatherer
}

// Handler serves the recorder's registry in the Prometheus text format.
func (r *Recorder) Handler() http.Handler {
	if r == nil || r.gatherer == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(r.gatherer, promhttp.HandlerOpts{})
}

// Transition counts a connection state change.
func (r *Recorder) Transition(role, from, to string) {
	if r == nil {
		return
	}
	r.transitions.WithLabelValues(role, from, to).Inc()
}

// HeartbeatSent counts an emitted heartbeat.
func (r *Recorder) HeartbeatSent(role string) {
	if r == nil {
		return
	}
	r.heartbeats.WithLabelValues(role).Inc()
}

// EnvelopeReceived counts a decoded inbound envelope.
func (r *Recorder) EnvelopeReceived(role, kind string) {
	if r == nil {
		return
	}
	r.envelopes.WithLabelValues(role, kind).Inc()
}

// ParseError counts a discarded inbound frame.
func (r *Recorder) ParseError(role string) {
	if r == nil {
		return
	}
	r.parseErrors.WithLabelValues(role).Inc()
}

// AckSent counts an ack reply.
func (r *Recorder) AckSent() {
	if r == nil {
		return
	}
	r.acks.Inc()
}

// SendDropped counts an outbound envelope dropped while not open.
func (r *Recorder) SendDropped(role string) {
	if r == nil {
		return
	}
	r.sendsDropped.WithLabelValues(role).Inc()
}

// ReconnectScheduled counts a scheduled reconnection attempt.
func (r *Recorder) ReconnectScheduled() {
	if r == nil {
		return
	}
	r.reconnects.Inc()
}

// StaleConnection counts a liveness expiry.
func (r *Recorder) StaleConnection(role string) {
	if r == nil {
		return
	}
	r.stale.WithLabelValues(role).Inc()
}

// HandlerFailed counts a failed or panicking application handler.
func (r *Recorder) HandlerFailed(role, kind string) {
	if r == nil {
		return
	}
	r.handlerFailure.WithLabelValues(role, kind).Inc()
}

// UpgradeRejected counts a refused upgrade ("rate_limited", "shutting_down").
func (r *Recorder) UpgradeRejected(reason string) {
	if r == nil {
		return
	}
	r.rejected.WithLabelValues(reason).Inc()
}

// SetPeers records the registry size.
func (r *Recorder) SetPeers(n int) {
	if r == nil {
		return
	}
	r.peers.Set(float64(n))
}

// HTTPRequest records one served request.
func (r *Recorder) HTTPRequest(method, path string, status int, duration time.Duration) {
	if r == nil {
		return
	}
	statusLabel := strconv.Itoa(status)
	r.httpRequests.WithLabelValues(method, path, statusLabel).Inc()
	r.httpDuration.WithLabelValues(method, path, statusLabel).Observe(duration.Seconds())
}
