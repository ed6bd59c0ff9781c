package ports

import (
	"context"
	"encoding/json"

	"roomlink/internal/core/domain"
)

// InboundKind enumerates the relay notifications a transport delivers.
type InboundKind string

const (
	InboundUserJoined InboundKind = "user-joined"
	InboundSignal     InboundKind = "signal"
	InboundUserLeft   InboundKind = "user-left"
)

// Inbound is one message received from the relay.
type Inbound struct {
	Kind    InboundKind
	PeerID  domain.PeerID
	Payload json.RawMessage
}

// SignalTransport is the relay collaborator. Implementations must be safe for
// concurrent use.
type SignalTransport interface {
	// LocalID is the identity assigned to this session by the relay.
	LocalID() domain.PeerID
	JoinRoom(ctx context.Context, roomID domain.RoomID) error
	// SendSignal delivers payload to one peer, or to the whole room when to is empty.
	SendSignal(ctx context.Context, roomID domain.RoomID, to domain.PeerID, payload json.RawMessage) error
	Incoming() <-chan Inbound
	Close() error
}
