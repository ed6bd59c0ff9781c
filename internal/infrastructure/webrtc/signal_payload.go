package webrtc

import (
	"encoding/json"
	"fmt"

	"roomlink/internal/core/domain"

	"github.com/pion/webrtc/v3"
)

const (
	SignalOffer       = "offer"
	SignalAnswer      = "answer"
	SignalCandidate   = "candidate"
	SignalRenegotiate = "renegotiate"
)

// SignalPayload is the wire shape of one negotiation message. It matches what
// browser peers using simple-peer emit, so pion and browser peers can share a
// room.
type SignalPayload struct {
	Type        string                   `json:"type"`
	SDP         string                   `json:"sdp,omitempty"`
	Candidate   *webrtc.ICECandidateInit `json:"candidate,omitempty"`
	Renegotiate bool                     `json:"renegotiate,omitempty"`
}

// ParseSignal decodes and checks a remote payload.
func ParseSignal(raw json.RawMessage) (SignalPayload, error) {
	var p SignalPayload
	if len(raw) == 0 {
		return p, fmt.Errorf("%w: empty payload", domain.ErrInvalidSignal)
	}
	if err := json.Unmarshal(raw, &p); err != nil {
		return p, fmt.Errorf("%w: %v", domain.ErrInvalidSignal, err)
	}

	switch p.Type {
	case SignalOffer, SignalAnswer:
		if p.SDP == "" {
			return p, fmt.Errorf("%w: %s without sdp", domain.ErrInvalidSignal, p.Type)
		}
	case SignalCandidate:
		if p.Candidate == nil {
			return p, fmt.Errorf("%w: candidate without body", domain.ErrInvalidSignal)
		}
	case SignalRenegotiate:
	default:
		return p, fmt.Errorf("%w: unsupported type %q", domain.ErrInvalidSignal, p.Type)
	}
	return p, nil
}

func descriptionSignal(desc webrtc.SessionDescription) SignalPayload {
	return SignalPayload{Type: desc.Type.String(), SDP: desc.SDP}
}

func candidateSignal(c webrtc.ICECandidateInit) SignalPayload {
	return SignalPayload{Type: SignalCandidate, Candidate: &c}
}

// SessionDescription converts an offer or answer payload.
func (p SignalPayload) SessionDescription() webrtc.SessionDescription {
	return webrtc.SessionDescription{Type: webrtc.NewSDPType(p.Type), SDP: p.SDP}
}

func (p SignalPayload) Marshal() (json.RawMessage, error) {
	return json.Marshal(p)
}
