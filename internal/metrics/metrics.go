// Package metrics exposes session counters through Prometheus.
// A nil *Metrics is valid and records nothing.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"pkt.systems/codesync/schema"
)

const namespace = "codesync"

// Metrics holds the session collectors.
type Metrics struct {
	registry         *prometheus.Registry
	framesRouted     *prometheus.CounterVec
	framesDiscarded  *prometheus.CounterVec
	reconnects       prometheus.Counter
	channelState     *prometheus.GaugeVec
	upstreamTotal    *prometheus.CounterVec
	upstreamDuration *prometheus.HistogramVec
	codeCoalesced    prometheus.Counter
}

// New registers the collectors on reg. A nil reg gets a private registry.
func New(reg *prometheus.Registry) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	factory := promauto.With(reg)
	return &Metrics{
		registry: reg,
		framesRouted: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "router",
			Name:      "frames_total",
			Help:      "Inbound push frames applied, by type",
		}, []string{"type"}),
		framesDiscarded: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "router",
			Name:      "frames_discarded_total",
			Help:      "Inbound push frames discarded, by reason",
		}, []string{"reason"}),
		reconnects: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "channel",
			Name:      "reconnects_total",
			Help:      "Push channel reconnect attempts",
		}),
		channelState: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "channel",
			Name:      "state",
			Help:      "Current push channel state (1 for the active state)",
		}, []string{"state"}),
		upstreamTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "upstream",
			Name:      "requests_total",
			Help:      "Outbound room API requests, by operation and result",
		}, []string{"op", "result"}),
		upstreamDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "upstream",
			Name:      "request_duration_seconds",
			Help:      "Outbound room API request latency",
			Buckets:   prometheus.DefBuckets,
		}, []string{"op"}),
		codeCoalesced: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "dispatch",
			Name:      "code_edits_coalesced_total",
			Help:      "Local edits superseded before their debounce window elapsed",
		}),
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// FrameRouted counts an applied frame.
func (m *Metrics) FrameRouted(frameType schema.FrameType) {
	if m == nil {
		return
	}
	m.framesRouted.WithLabelValues(string(frameType)).Inc()
}

// FrameDiscarded counts a dropped frame.
func (m *Metrics) FrameDiscarded(reason string) {
	if m == nil {
		return
	}
	m.framesDiscarded.WithLabelValues(reason).Inc()
}

// Reconnect counts a reconnect attempt.
func (m *Metrics) Reconnect() {
	if m == nil {
		return
	}
	m.reconnects.Inc()
}

// ChannelState marks state as the active channel state.
func (m *Metrics) ChannelState(state schema.ChannelState) {
	if m == nil {
		return
	}
	for _, s := range []schema.ChannelState{
		schema.ChannelIdle,
		schema.ChannelConnecting,
		schema.ChannelOpen,
		schema.ChannelErroring,
		schema.ChannelReconnecting,
		schema.ChannelClosed,
	} {
		value := 0.0
		if s == state {
			value = 1
		}
		m.channelState.WithLabelValues(string(s)).Set(value)
	}
}

// Upstream records an outbound request.
func (m *Metrics) Upstream(op string, err error, elapsed time.Duration) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.upstreamTotal.WithLabelValues(op, result).Inc()
	m.upstreamDuration.WithLabelValues(op).Observe(elapsed.Seconds())
}

// CodeCoalesced counts an edit that was superseded inside the debounce window.
func (m *Metrics) CodeCoalesced() {
	if m == nil {
		return
	}
	m.codeCoalesced.Inc()
}
