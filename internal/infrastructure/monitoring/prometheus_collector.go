package monitoring

import (
	"roomlink/internal/core/domain"
	"roomlink/pkg/circuitbreaker"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// PrometheusCollector implements ports.SessionMetrics for the peer agent and
// signal.Metrics for the relay. Only the half a process uses gets samples.
type PrometheusCollector struct {
	// Session
	remotePeers        *prometheus.GaugeVec
	peersAddedTotal    *prometheus.CounterVec
	peersRemovedTotal  *prometheus.CounterVec
	stateChangesTotal  *prometheus.CounterVec
	droppedEventsTotal *prometheus.CounterVec

	// Link quality
	roundTripTime    *prometheus.GaugeVec
	packetsLost      *prometheus.GaugeVec
	roundTripSeconds prometheus.Histogram

	// Relay
	relayRooms          prometheus.Gauge
	relayConnections    prometheus.Gauge
	relayMessagesTotal  *prometheus.CounterVec
	relayRejectedTotal  *prometheus.CounterVec
	circuitBreakerState *prometheus.GaugeVec
}

// NewPrometheusCollector registers every metric with reg, or with the default
// registerer when reg is nil.
func NewPrometheusCollector(reg prometheus.Registerer) *PrometheusCollector {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &PrometheusCollector{
		remotePeers: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "roomlink_remote_peers",
			Help: "Remote peers currently tracked by the session",
		}, []string{"role"}),

		peersAddedTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "roomlink_remote_peers_added_total",
			Help: "Remote peers added to the session",
		}, []string{"role"}),

		peersRemovedTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "roomlink_remote_peers_removed_total",
			Help: "Remote peers removed from the session",
		}, []string{"role", "reason"}),

		stateChangesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "roomlink_negotiation_state_changes_total",
			Help: "Negotiation state transitions observed",
		}, []string{"state"}),

		droppedEventsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "roomlink_dropped_events_total",
			Help: "Session events dropped as stale or duplicate",
		}, []string{"kind"}),

		roundTripTime: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "roomlink_link_round_trip_seconds",
			Help: "Latest round trip time per remote peer",
		}, []string{"peer_id"}),

		packetsLost: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "roomlink_link_packets_lost",
			Help: "Latest cumulative packets lost per remote peer",
		}, []string{"peer_id"}),

		roundTripSeconds: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "roomlink_link_round_trip_distribution_seconds",
			Help:    "Distribution of sampled round trip times",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
		}),

		relayRooms: factory.NewGauge(prometheus.GaugeOpts{
			Name: "roomlink_relay_rooms_active",
			Help: "Rooms with at least one member on this relay",
		}),

		relayConnections: factory.NewGauge(prometheus.GaugeOpts{
			Name: "roomlink_relay_connections",
			Help: "Open relay websocket connections",
		}),

		relayMessagesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "roomlink_relay_messages_total",
			Help: "Messages accepted by the relay",
		}, []string{"type"}),

		relayRejectedTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "roomlink_relay_rejected_total",
			Help: "Messages the relay refused",
		}, []string{"reason"}),

		circuitBreakerState: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "roomlink_circuit_breaker_state",
			Help: "Circuit breaker state (0 closed, 1 open, 2 half-open)",
		}, []string{"name"}),
	}
}

func (p *PrometheusCollector) RecordPeerAdded(role domain.Role) {
	p.peersAddedTotal.WithLabelValues(string(role)).Inc()
	p.remotePeers.WithLabelValues(string(role)).Inc()
}

func (p *PrometheusCollector) RecordPeerRemoved(role domain.Role, reason string) {
	p.peersRemovedTotal.WithLabelValues(string(role), reason).Inc()
	p.remotePeers.WithLabelValues(string(role)).Dec()
}

func (p *PrometheusCollector) RecordStateChange(state domain.NegotiationState) {
	p.stateChangesTotal.WithLabelValues(state.String()).Inc()
}

func (p *PrometheusCollector) RecordQualitySample(sample domain.QualitySample) {
	p.roundTripTime.WithLabelValues(string(sample.PeerID)).Set(sample.RoundTripTime)
	p.packetsLost.WithLabelValues(string(sample.PeerID)).Set(float64(sample.PacketsLost))
	p.roundTripSeconds.Observe(sample.RoundTripTime)
}

func (p *PrometheusCollector) RecordDroppedEvent(kind string) {
	p.droppedEventsTotal.WithLabelValues(kind).Inc()
}

func (p *PrometheusCollector) SetRelayRooms(n int) {
	p.relayRooms.Set(float64(n))
}

func (p *PrometheusCollector) SetRelayConnections(n int) {
	p.relayConnections.Set(float64(n))
}

func (p *PrometheusCollector) RecordRelayMessage(msgType string) {
	p.relayMessagesTotal.WithLabelValues(msgType).Inc()
}

func (p *PrometheusCollector) RecordRelayRejected(reason string) {
	p.relayRejectedTotal.WithLabelValues(reason).Inc()
}

// WatchCircuitBreaker mirrors cb's state into a gauge.
func (p *PrometheusCollector) WatchCircuitBreaker(cb *circuitbreaker.CircuitBreaker) {
	p.circuitBreakerState.WithLabelValues(cb.Name()).Set(float64(cb.GetState()))
	cb.OnStateChange(func(name string, _, to circuitbreaker.State) {
		p.circuitBreakerState.WithLabelValues(name).Set(float64(to))
	})
}
