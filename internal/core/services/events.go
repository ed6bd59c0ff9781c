package services

import (
	"encoding/json"
	"time"

	"roomlink/internal/core/domain"
	"roomlink/internal/core/ports"

	"github.com/pion/webrtc/v3"
)

// EventKind enumerates everything that can mutate a session.
type EventKind int

const (
	EventJoin EventKind = iota
	EventPeerJoined
	EventSignalReceived
	EventPeerLeft
	EventLeave
	EventLocalSignal
	EventStateChanged
	EventRemoteTrack
	EventQualityTick
	EventQualitySampled
)

func (k EventKind) String() string {
	switch k {
	case EventJoin:
		return "join"
	case EventPeerJoined:
		return "peer_joined"
	case EventSignalReceived:
		return "signal_received"
	case EventPeerLeft:
		return "peer_left"
	case EventLeave:
		return "leave"
	case EventLocalSignal:
		return "local_signal"
	case EventStateChanged:
		return "state_changed"
	case EventRemoteTrack:
		return "remote_track"
	case EventQualityTick:
		return "quality_tick"
	case EventQualitySampled:
		return "quality_sampled"
	default:
		return "unknown"
	}
}

// Event is the single input type of the session state machine. Only the
// fields relevant to Kind are set.
type Event struct {
	Kind     EventKind
	RoomID   domain.RoomID
	PeerID   domain.PeerID
	Payload  json.RawMessage
	Stream   ports.LocalStream
	State    domain.NegotiationState
	Track    *webrtc.TrackRemote
	Snapshot ports.QualitySnapshot
	Err      error
	At       time.Time

	// generation ties negotiator callbacks to the entry that created them, so
	// callbacks from a torn down negotiator never touch a newer entry.
	generation uint64
	reply      chan error
}

// EventFromInbound translates a relay notification into a session event.
func EventFromInbound(in ports.Inbound) (Event, bool) {
	switch in.Kind {
	case ports.InboundUserJoined:
		return Event{Kind: EventPeerJoined, PeerID: in.PeerID}, true
	case ports.InboundSignal:
		return Event{Kind: EventSignalReceived, PeerID: in.PeerID, Payload: in.Payload}, true
	case ports.InboundUserLeft:
		return Event{Kind: EventPeerLeft, PeerID: in.PeerID}, true
	default:
		return Event{}, false
	}
}
