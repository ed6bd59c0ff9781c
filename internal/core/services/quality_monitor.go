package services

import (
	"context"
	"time"

	"roomlink/internal/core/domain"
	"roomlink/internal/core/ports"

	"go.uber.org/zap"
)

const (
	DefaultQualityInterval = 3 * time.Second
	defaultStatsTimeout    = 2 * time.Second
)

type qualityTarget struct {
	peerID     domain.PeerID
	generation uint64
	negotiator ports.Negotiator
}

// QualityMonitor drives the link quality polling cycle. It owns the tick and
// the stats retrieval; the resulting samples are applied by the session loop.
type QualityMonitor struct {
	interval     time.Duration
	statsTimeout time.Duration
	logger       *zap.SugaredLogger
	now          func() time.Time
}

func NewQualityMonitor(interval time.Duration, logger *zap.SugaredLogger) *QualityMonitor {
	if interval <= 0 {
		interval = DefaultQualityInterval
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &QualityMonitor{
		interval:     interval,
		statsTimeout: defaultStatsTimeout,
		logger:       logger,
		now:          time.Now,
	}
}

// WithStatsTimeout bounds each stats retrieval. Values outside (0, interval]
// are ignored.
func (q *QualityMonitor) WithStatsTimeout(d time.Duration) *QualityMonitor {
	if d > 0 && d <= q.interval {
		q.statsTimeout = d
	}
	return q
}

func (q *QualityMonitor) Interval() time.Duration {
	return q.interval
}

// Run emits a quality tick every interval until ctx is done or emit reports
// that the session has stopped.
func (q *QualityMonitor) Run(ctx context.Context, emit func(Event) bool) {
	ticker := time.NewTicker(q.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case t := <-ticker.C:
			if !emit(Event{Kind: EventQualityTick, At: t}) {
				return
			}
		}
	}
}

// Sample reads one stats snapshot from the target and emits the result as a
// fresh event.
func (q *QualityMonitor) Sample(ctx context.Context, t qualityTarget, emit func(Event) bool) {
	statsCtx, cancel := context.WithTimeout(ctx, q.statsTimeout)
	defer cancel()

	snap, err := t.negotiator.Stats(statsCtx)
	if err != nil {
		q.logger.Debugw("stats retrieval failed", "peer_id", t.peerID, "error", err)
	}
	emit(Event{
		Kind:       EventQualitySampled,
		PeerID:     t.peerID,
		Snapshot:   snap,
		Err:        err,
		At:         q.now(),
		generation: t.generation,
	})
}

// ToSample builds the replacement sample for one cycle. A snapshot without a
// matching report yields zero values, never the previous reading.
func (q *QualityMonitor) ToSample(peerID domain.PeerID, snap ports.QualitySnapshot, at time.Time) domain.QualitySample {
	if at.IsZero() {
		at = q.now()
	}
	sample := domain.QualitySample{PeerID: peerID, SampledAt: at}
	if snap.Found {
		sample.RoundTripTime = snap.RoundTripTime
		sample.PacketsLost = snap.PacketsLost
	}
	return sample
}
