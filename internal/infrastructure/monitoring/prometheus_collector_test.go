package monitoring

import (
	"context"
	"errors"
	"testing"
	"time"

	"roomlink/internal/core/domain"
	"roomlink/pkg/circuitbreaker"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestPrometheusCollector_SessionMetrics(t *testing.T) {
	p := NewPrometheusCollector(prometheus.NewRegistry())

	p.RecordPeerAdded(domain.RoleInitiator)
	p.RecordPeerAdded(domain.RoleInitiator)
	p.RecordPeerAdded(domain.RoleResponder)
	p.RecordPeerRemoved(domain.RoleInitiator, "left")

	assert.Equal(t, 1.0, testutil.ToFloat64(p.remotePeers.WithLabelValues("initiator")))
	assert.Equal(t, 1.0, testutil.ToFloat64(p.remotePeers.WithLabelValues("responder")))
	assert.Equal(t, 2.0, testutil.ToFloat64(p.peersAddedTotal.WithLabelValues("initiator")))
	assert.Equal(t, 1.0, testutil.ToFloat64(p.peersRemovedTotal.WithLabelValues("initiator", "left")))

	p.RecordStateChange(domain.StateConnected)
	assert.Equal(t, 1.0, testutil.ToFloat64(p.stateChangesTotal.WithLabelValues("connected")))

	p.RecordDroppedEvent("stale_signal")
	assert.Equal(t, 1.0, testutil.ToFloat64(p.droppedEventsTotal.WithLabelValues("stale_signal")))
}

func TestPrometheusCollector_QualitySample(t *testing.T) {
	p := NewPrometheusCollector(prometheus.NewRegistry())

	p.RecordQualitySample(domain.QualitySample{PeerID: "peer_a", RoundTripTime: 0.042, PacketsLost: 7})
	p.RecordQualitySample(domain.QualitySample{PeerID: "peer_a", RoundTripTime: 0.05, PacketsLost: 9})

	assert.Equal(t, 0.05, testutil.ToFloat64(p.roundTripTime.WithLabelValues("peer_a")))
	assert.Equal(t, 9.0, testutil.ToFloat64(p.packetsLost.WithLabelValues("peer_a")))
}

func TestPrometheusCollector_RelayMetrics(t *testing.T) {
	p := NewPrometheusCollector(prometheus.NewRegistry())

	p.SetRelayRooms(3)
	p.SetRelayConnections(5)
	p.RecordRelayMessage("signal")
	p.RecordRelayRejected("rate_limited")

	assert.Equal(t, 3.0, testutil.ToFloat64(p.relayRooms))
	assert.Equal(t, 5.0, testutil.ToFloat64(p.relayConnections))
	assert.Equal(t, 1.0, testutil.ToFloat64(p.relayMessagesTotal.WithLabelValues("signal")))
	assert.Equal(t, 1.0, testutil.ToFloat64(p.relayRejectedTotal.WithLabelValues("rate_limited")))
}

func TestPrometheusCollector_CircuitBreaker(t *testing.T) {
	p := NewPrometheusCollector(prometheus.NewRegistry())

	cfg := circuitbreaker.DefaultConfig()
	cfg.FailureThreshold = 1
	cfg.Timeout = time.Hour
	cb := circuitbreaker.New("transcripts", cfg)
	p.WatchCircuitBreaker(cb)

	gauge := p.circuitBreakerState.WithLabelValues("transcripts")
	assert.Equal(t, float64(circuitbreaker.StateClosed), testutil.ToFloat64(gauge))

	_ = cb.Execute(context.Background(), func() error { return errors.New("boom") })
	assert.Equal(t, float64(circuitbreaker.StateOpen), testutil.ToFloat64(gauge))
}

func TestPrometheusCollector_DistinctRegistries(t *testing.T) {
	assert.NotPanics(t, func() {
		NewPrometheusCollector(prometheus.NewRegistry())
		NewPrometheusCollector(prometheus.NewRegistry())
	})
}
