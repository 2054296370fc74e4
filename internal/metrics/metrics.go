// Package metrics exposes prometheus collectors for session and preview lifecycle events.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "docsession"

// Forced logout reasons.
const (
	ReasonExpired      = "expired"
	ReasonInvalidToken = "invalid_token"
	ReasonUnauthorized = "unauthorized"
)

// Metrics groups the collectors. A nil *Metrics is valid and records nothing,
// so components can take it as an optional dependency.
type Metrics struct {
	registry *prometheus.Registry

	forcedLogouts   *prometheus.CounterVec
	expiryWarnings  prometheus.Counter
	responses       *prometheus.CounterVec
	previewOpened   *prometheus.CounterVec
	previewReleased *prometheus.CounterVec
	previewLive     prometheus.Gauge
}

// New creates the collectors and registers them on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		forcedLogouts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "forced_logouts_total",
			Help:      "Sessions ended by the client without user action, by reason.",
		}, []string{"reason"}),
		expiryWarnings: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "expiry_warnings_total",
			Help:      "Expiring-soon warnings emitted.",
		}),
		responses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "gateway_responses_total",
			Help:      "Document service responses seen by the gateway, by status class.",
		}, []string{"class"}),
		previewOpened: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "preview_handles_opened_total",
			Help:      "Preview resource handles opened, by kind.",
		}, []string{"kind"}),
		previewReleased: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "preview_handles_released_total",
			Help:      "Preview resource handles revoked, by kind.",
		}, []string{"kind"}),
		previewLive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "preview_handles_live",
			Help:      "Revocable preview handles currently open.",
		}),
	}
	m.registry.MustRegister(
		m.forcedLogouts,
		m.expiryWarnings,
		m.responses,
		m.previewOpened,
		m.previewReleased,
		m.previewLive,
	)
	return m
}

// Handler serves the registry in the prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) ForcedLogout(reason string) {
	if m == nil {
		return
	}
	m.forcedLogouts.WithLabelValues(reason).Inc()
}

func (m *Metrics) ExpiryWarning() {
	if m == nil {
		return
	}
	m.expiryWarnings.Inc()
}

// Response records a gateway response by status class ("2xx", "4xx", ...).
func (m *Metrics) Response(status int) {
	if m == nil {
		return
	}
	m.responses.WithLabelValues(statusClass(status)).Inc()
}

func (m *Metrics) PreviewOpened(kind string, revocable bool) {
	if m == nil {
		return
	}
	m.previewOpened.WithLabelValues(kind).Inc()
	if revocable {
		m.previewLive.Inc()
	}
}

func (m *Metrics) PreviewReleased(kind string) {
	if m == nil {
		return
	}
	m.previewReleased.WithLabelValues(kind).Inc()
	m.previewLive.Dec()
}

func statusClass(status int) string {
	switch {
	case status >= 500:
		return "5xx"
	case status >= 400:
		return "4xx"
	case status >= 300:
		return "3xx"
	case status >= 200:
		return "2xx"
	default:
		return "1xx"
	}
}
