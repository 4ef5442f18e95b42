// Package metrics exposes counters for the synchronization core. A
// dedicated Registry keeps the client embeddable without touching the
// default prometheus registrar.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Set bundles every collector the session wires up.
type Set struct {
	Registry *prometheus.Registry

	FramesTotal      prometheus.Counter
	FramesDropped    prometheus.Counter
	EventsDispatched *prometheus.CounterVec
	ReconnectsTotal  prometheus.Counter
	SendFailures     prometheus.Counter
	ConnectionState  prometheus.Gauge
}

// New constructs and registers the collector set.
func New() *Set {
	s := &Set{
		Registry: prometheus.NewRegistry(),
		FramesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "hivechat",
			Name:      "frames_received_total",
			Help:      "Inbound WebSocket frames read from the transport.",
		}),
		FramesDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "hivechat",
			Name:      "frames_dropped_total",
			Help:      "Frames dropped as malformed or of unknown type.",
		}),
		EventsDispatched: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "hivechat",
			Name:      "events_dispatched_total",
			Help:      "Decoded events delivered to subscribers, by kind.",
		}, []string{"kind"}),
		ReconnectsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "hivechat",
			Name:      "reconnects_total",
			Help:      "Reconnect attempts scheduled after unexpected closes.",
		}),
		SendFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "hivechat",
			Name:      "send_failures_total",
			Help:      "Message sends that failed and were marked on the entry.",
		}),
		ConnectionState: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "hivechat",
			Name:      "connection_state",
			Help:      "Transport state: 0 idle, 1 connecting, 2 open, 3 reconnecting, 4 closed.",
		}),
	}

	s.Registry.MustRegister(
		s.FramesTotal,
		s.FramesDropped,
		s.EventsDispatched,
		s.ReconnectsTotal,
		s.SendFailures,
		s.ConnectionState,
	)
	return s
}
