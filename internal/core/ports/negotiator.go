package ports

import (
	"context"
	"encoding/json"

	"roomlink/internal/core/domain"

	"github.com/pion/webrtc/v3"
)

// NegotiatorHandlers are invoked from the negotiator's own goroutines. They
// must not block.
type NegotiatorHandlers struct {
	OnSignal      func(payload json.RawMessage)
	OnStateChange func(state domain.NegotiationState)
	OnRemoteTrack func(track *webrtc.TrackRemote)
}

// QualitySnapshot is one stats reading. Found is false when no peer-reported
// inbound measurement was present.
type QualitySnapshot struct {
	RoundTripTime float64
	PacketsLost   int64
	Found         bool
}

// Negotiator wraps one point-to-point media connection.
type Negotiator interface {
	PeerID() domain.PeerID
	Role() domain.Role
	State() domain.NegotiationState
	// ApplyRemoteSignal feeds a remote payload. It is a logged no-op once Closed.
	ApplyRemoteSignal(payload json.RawMessage) error
	Stats(ctx context.Context) (QualitySnapshot, error)
	// Close is idempotent and never stops the shared local tracks.
	Close() error
}

// NegotiatorFactory creates negotiators bound to the local stream.
type NegotiatorFactory interface {
	NewNegotiator(peerID domain.PeerID, role domain.Role, stream LocalStream, handlers NegotiatorHandlers) (Negotiator, error)
}
