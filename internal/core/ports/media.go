package ports

import (
	"roomlink/internal/core/domain"

	"github.com/pion/webrtc/v3"
)

// LocalStream is the camera/microphone stream owned by the media controller
// and borrowed by every negotiator.
type LocalStream interface {
	ID() string
	Tracks() []webrtc.TrackLocal
	AudioEnabled() bool
	VideoEnabled() bool
}

// Playback receives remote media once a connection delivers it.
type Playback interface {
	Attach(peerID domain.PeerID, track *webrtc.TrackRemote)
	Detach(peerID domain.PeerID)
}
