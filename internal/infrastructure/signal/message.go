package signal

import (
	"encoding/json"

	"roomlink/internal/core/domain"
)

// Relay message types. The names follow the socket events browser clients of
// the room already use.
const (
	MessageWelcome    = "welcome"
	MessageJoinRoom   = "join-room"
	MessageSignal     = "signal"
	MessageUserJoined = "user-joined"
	MessageUserLeft   = "user-left"
	MessageError      = "error"
)

// Message is the single JSON frame exchanged over the relay socket.
type Message struct {
	Type   string          `json:"type"`
	ID     domain.PeerID   `json:"id,omitempty"`
	RoomID domain.RoomID   `json:"room_id,omitempty"`
	To     domain.PeerID   `json:"to,omitempty"`
	From   domain.PeerID   `json:"from,omitempty"`
	Signal json.RawMessage `json:"signal,omitempty"`
	Error  string          `json:"error,omitempty"`
}

func errorMessage(text string) *Message {
	return &Message{Type: MessageError, Error: text}
}
