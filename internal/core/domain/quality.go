package domain

import (
	"time"

	"roomlink/pkg/utils"
)

// QualitySample is overwritten on every polling cycle.
type QualitySample struct {
	PeerID        PeerID    `json:"peer_id"`
	RoundTripTime float64   `json:"round_trip_time"` // seconds
	PacketsLost   int64     `json:"packets_lost"`
	SampledAt     time.Time `json:"sampled_at"`
}

// RTT returns the round trip time as a duration.
func (q QualitySample) RTT() time.Duration {
	return utils.SecondsToDuration(q.RoundTripTime)
}
