package monitoring

import (
	"sigrelay/internal/core/domain"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type PrometheusCollector struct {
	// Gauges
	connectionsActive    prometheus.Gauge
	identitiesRegistered prometheus.Gauge
	sessionsActive       prometheus.Gauge

	// Counters
	messagesTotal     *prometheus.CounterVec
	relayDroppedTotal *prometheus.CounterVec
	broadcastsTotal   *prometheus.CounterVec
	sessionsTotal     *prometheus.CounterVec
}

func NewPrometheusCollector() *PrometheusCollector {
	return &PrometheusCollector{
		connectionsActive: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "sigrelay_connections_active",
			Help: "Number of live WebSocket connections",
		}),

		identitiesRegistered: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "sigrelay_identities_registered",
			Help: "Number of identities currently in the presence registry",
		}),

		sessionsActive: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "sigrelay_sessions_active",
			Help: "Number of call sessions currently open",
		}),

		messagesTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "sigrelay_messages_total",
			Help: "Total inbound signaling messages by kind",
		}, []string{"kind"}),

		relayDroppedTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "sigrelay_relay_dropped_total",
			Help: "Relays dropped without delivery, by kind and reason",
		}, []string{"kind", "reason"}),

		broadcastsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "sigrelay_broadcasts_total",
			Help: "Presence and departure broadcasts by kind",
		}, []string{"kind"}),

		sessionsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "sigrelay_sessions_lifecycle_total",
			Help: "Session lifecycle events (opened, ended)",
		}, []string{"event"}),
	}
}

func (p *PrometheusCollector) RecordConnectionOpened() {
	p.connectionsActive.Inc()
}

func (p *PrometheusCollector) RecordConnectionClosed() {
	p.connectionsActive.Dec()
}

func (p *PrometheusCollector) RecordMessage(kind domain.MessageKind) {
	p.messagesTotal.WithLabelValues(string(kind)).Inc()
}

func (p *PrometheusCollector) RecordRelayDropped(kind domain.MessageKind, reason string) {
	p.relayDroppedTotal.WithLabelValues(string(kind), reason).Inc()
}

func (p *PrometheusCollector) RecordBroadcast(kind domain.MessageKind) {
	p.broadcastsTotal.WithLabelValues(string(kind)).Inc()
}

func (p *PrometheusCollector) RecordSessionOpened() {
	p.sessionsTotal.WithLabelValues("opened").Inc()
}

func (p *PrometheusCollector) RecordSessionEnded() {
	p.sessionsTotal.WithLabelValues("ended").Inc()
}

func (p *PrometheusCollector) SetRegisteredIdentities(n int) {
	p.identitiesRegistered.Set(float64(n))
}

func (p *PrometheusCollector) SetActiveSessions(n int) {
	p.sessionsActive.Set(float64(n))
}
