package services

import (
	"context"
	"testing"
	"time"

	"roomlink/internal/core/domain"
	"roomlink/internal/core/ports"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewQualityMonitor_Defaults(t *testing.T) {
	q := NewQualityMonitor(0, nil)
	assert.Equal(t, DefaultQualityInterval, q.Interval())
}

func TestQualityMonitor_WithStatsTimeout(t *testing.T) {
	q := NewQualityMonitor(time.Second, nil).WithStatsTimeout(200 * time.Millisecond)
	assert.Equal(t, 200*time.Millisecond, q.statsTimeout)

	q.WithStatsTimeout(0)
	assert.Equal(t, 200*time.Millisecond, q.statsTimeout)

	q.WithStatsTimeout(2 * time.Second)
	assert.Equal(t, 200*time.Millisecond, q.statsTimeout)
}

func TestQualityMonitor_RunEmitsTicks(t *testing.T) {
	q := NewQualityMonitor(5*time.Millisecond, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ticks := make(chan Event, 8)
	done := make(chan struct{})
	go func() {
		q.Run(ctx, func(ev Event) bool {
			select {
			case ticks <- ev:
			default:
			}
			return true
		})
		close(done)
	}()

	select {
	case ev := <-ticks:
		assert.Equal(t, EventQualityTick, ev.Kind)
		assert.False(t, ev.At.IsZero())
	case <-time.After(time.Second):
		t.Fatal("no tick emitted")
	}

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("monitor did not stop on cancel")
	}
}

func TestQualityMonitor_RunStopsWhenSinkCloses(t *testing.T) {
	q := NewQualityMonitor(time.Millisecond, nil)
	done := make(chan struct{})
	go func() {
		q.Run(context.Background(), func(Event) bool { return false })
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("monitor kept running after sink closed")
	}
}

func TestQualityMonitor_SampleCarriesGeneration(t *testing.T) {
	q := NewQualityMonitor(time.Second, nil)
	n := &fakeNegotiator{id: peerB, snap: ports.QualitySnapshot{RoundTripTime: 0.03, PacketsLost: 2, Found: true}}

	var got []Event
	q.Sample(context.Background(), qualityTarget{peerID: peerB, generation: 7, negotiator: n}, func(ev Event) bool {
		got = append(got, ev)
		return true
	})

	require.Len(t, got, 1)
	assert.Equal(t, EventQualitySampled, got[0].Kind)
	assert.Equal(t, peerB, got[0].PeerID)
	assert.Equal(t, uint64(7), got[0].generation)
	assert.NoError(t, got[0].Err)
	assert.Equal(t, 0.03, got[0].Snapshot.RoundTripTime)
}

func TestQualityMonitor_SampleReportsError(t *testing.T) {
	q := NewQualityMonitor(time.Second, nil)
	n := &fakeNegotiator{id: peerB, statsErr: errBoom}

	var got Event
	q.Sample(context.Background(), qualityTarget{peerID: peerB, negotiator: n}, func(ev Event) bool {
		got = ev
		return true
	})

	assert.ErrorIs(t, got.Err, errBoom)
}

func TestQualityMonitor_ToSample(t *testing.T) {
	q := NewQualityMonitor(time.Second, nil)
	at := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	s := q.ToSample(peerB, ports.QualitySnapshot{RoundTripTime: 0.25, PacketsLost: 4, Found: true}, at)
	assert.Equal(t, domain.QualitySample{PeerID: peerB, RoundTripTime: 0.25, PacketsLost: 4, SampledAt: at}, s)

	// Values without a matching report are discarded.
	s = q.ToSample(peerB, ports.QualitySnapshot{RoundTripTime: 0.25, PacketsLost: 4}, at)
	assert.Equal(t, domain.QualitySample{PeerID: peerB, SampledAt: at}, s)

	s = q.ToSample(peerB, ports.QualitySnapshot{}, time.Time{})
	assert.False(t, s.SampledAt.IsZero())
}
