package domain

import "encoding/json"

// SignalEnvelope carries one opaque negotiation payload plus routing metadata.
// An empty To means broadcast to the room.
type SignalEnvelope struct {
	RoomID  RoomID          `json:"room_id"`
	From    PeerID          `json:"from,omitempty"`
	To      PeerID          `json:"to,omitempty"`
	Payload json.RawMessage `json:"signal"`
}

// IsDirected reports whether the envelope names a single recipient.
func (e SignalEnvelope) IsDirected() bool {
	return e.To != ""
}
