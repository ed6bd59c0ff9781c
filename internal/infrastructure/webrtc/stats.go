package webrtc

import (
	"time"

	"roomlink/internal/core/ports"

	"github.com/pion/rtcp"
)

// Seconds between the NTP epoch (1900) and the Unix epoch.
const ntpEpochOffset = 2208988800

// linkReading is what the remote side last reported about one of our
// outgoing streams.
type linkReading struct {
	roundTrip float64 // seconds, zero until the remote echoes a sender report
	lost      int64   // cumulative
}

// linkReadings holds the latest reading per outgoing SSRC.
type linkReadings map[uint32]linkReading

// record stores every reception block of rr, received at now.
func (l linkReadings) record(rr *rtcp.ReceiverReport, now time.Time) {
	for _, report := range rr.Reports {
		l[report.SSRC] = linkReading{
			roundTrip: roundTripSeconds(report, now),
			lost:      int64(report.TotalLost),
		}
	}
}

// snapshot reduces the readings to one measurement. With several outgoing
// streams the worst round trip and the total loss are kept.
func (l linkReadings) snapshot() ports.QualitySnapshot {
	var snap ports.QualitySnapshot
	for _, r := range l {
		snap.Found = true
		if r.roundTrip > snap.RoundTripTime {
			snap.RoundTripTime = r.roundTrip
		}
		snap.PacketsLost += r.lost
	}
	return snap
}

// roundTripSeconds derives the round trip from the echoed sender report
// timestamp and the remote's hold delay (RFC 3550 section 6.4.1).
func roundTripSeconds(report rtcp.ReceptionReport, now time.Time) float64 {
	if report.LastSenderReport == 0 {
		return 0
	}
	// Compact NTP wraps every 18 hours; uint32 arithmetic follows the wrap.
	rtt := compactNTP(now) - report.LastSenderReport - report.Delay
	if rtt >= 1<<31 {
		return 0
	}
	return float64(rtt) / 65536
}

// compactNTP returns the middle 32 bits of the NTP timestamp for t.
func compactNTP(t time.Time) uint32 {
	secs := uint64(t.Unix()) + ntpEpochOffset
	frac := uint64(t.Nanosecond()) << 32 / 1e9
	return uint32(secs<<16 | frac>>16)
}
