package webrtc

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"roomlink/internal/core/domain"
	"roomlink/internal/core/ports"
	"roomlink/pkg/tracing"

	"github.com/pion/rtcp"
	"github.com/pion/webrtc/v3"
	"go.uber.org/zap"
)

// Negotiator wraps one PeerConnection to one remote peer.
type Negotiator struct {
	peerID   domain.PeerID
	role     domain.Role
	trickle  bool
	pc       *webrtc.PeerConnection
	handlers ports.NegotiatorHandlers
	logger   *zap.SugaredLogger

	mu      sync.Mutex
	state   domain.NegotiationState
	pending []webrtc.ICECandidateInit
	links   linkReadings

	closed    chan struct{}
	closeOnce sync.Once
}

func newNegotiator(
	pc *webrtc.PeerConnection,
	peerID domain.PeerID,
	role domain.Role,
	trickle bool,
	stream ports.LocalStream,
	handlers ports.NegotiatorHandlers,
	logger *zap.SugaredLogger,
) (*Negotiator, error) {
	n := &Negotiator{
		peerID:   peerID,
		role:     role,
		trickle:  trickle,
		pc:       pc,
		handlers: handlers,
		logger:   logger.With("peer_id", peerID, "role", role),
		state:    domain.StateCreated,
		links:    linkReadings{},
		closed:   make(chan struct{}),
	}

	for _, track := range stream.Tracks() {
		sender, err := pc.AddTrack(track)
		if err != nil {
			return nil, fmt.Errorf("failed to add track %s: %w", track.ID(), err)
		}
		go n.processRTCP(sender)
	}

	pc.OnICECandidate(n.handleICECandidate)
	pc.OnConnectionStateChange(n.handleConnectionState)
	pc.OnTrack(n.handleRemoteTrack)

	return n, nil
}

func (n *Negotiator) start() {
	n.setState(domain.StateNegotiating)
	if n.role == domain.RoleInitiator {
		go n.offer()
	}
}

func (n *Negotiator) PeerID() domain.PeerID {
	return n.peerID
}

func (n *Negotiator) Role() domain.Role {
	return n.role
}

func (n *Negotiator) State() domain.NegotiationState {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.state
}

// ApplyRemoteSignal feeds one remote offer, answer, candidate or renegotiation
// request.
func (n *Negotiator) ApplyRemoteSignal(raw json.RawMessage) error {
	if n.isClosed() {
		n.logger.Debugw("signal for closed negotiator ignored")
		return nil
	}

	p, err := ParseSignal(raw)
	if err != nil {
		return err
	}

	_, span := tracing.TraceWebRTC(context.Background(), "apply_"+p.Type, string(n.peerID))
	defer span.End()

	switch p.Type {
	case SignalOffer:
		return n.answer(p.SessionDescription())
	case SignalAnswer:
		if err := n.pc.SetRemoteDescription(p.SessionDescription()); err != nil {
			return fmt.Errorf("failed to set remote answer: %w", err)
		}
		return n.flushPendingCandidates()
	case SignalRenegotiate:
		n.renegotiate()
		return nil
	default:
		return n.addCandidate(*p.Candidate)
	}
}

// Stats returns what the remote side reported about our outgoing streams
// since the previous call. Found is false when no receiver report arrived in
// between.
func (n *Negotiator) Stats(ctx context.Context) (ports.QualitySnapshot, error) {
	if n.isClosed() {
		return ports.QualitySnapshot{}, domain.ErrNegotiatorClosed
	}
	if err := ctx.Err(); err != nil {
		return ports.QualitySnapshot{}, err
	}

	n.mu.Lock()
	links := n.links
	n.links = linkReadings{}
	n.mu.Unlock()

	return links.snapshot(), nil
}

// Close tears down the connection. The local tracks stay live for the other
// connections that share them.
func (n *Negotiator) Close() error {
	var err error
	n.closeOnce.Do(func() {
		n.mu.Lock()
		n.state = domain.StateClosed
		n.pending = nil
		n.links = nil
		n.mu.Unlock()

		close(n.closed)
		err = n.pc.Close()
		n.logger.Debugw("negotiator closed")
	})
	return err
}

func (n *Negotiator) offer() {
	_, span := tracing.TraceWebRTC(context.Background(), "create_offer", string(n.peerID))
	defer span.End()

	offer, err := n.pc.CreateOffer(nil)
	if err != nil {
		n.fail("create offer", err)
		return
	}
	if err := n.setLocalDescription(offer); err != nil {
		n.fail("set local offer", err)
	}
}

// renegotiate answers a peer's request for a fresh offer. Only the initiator
// offers, and only from a stable signaling state.
func (n *Negotiator) renegotiate() {
	if n.role != domain.RoleInitiator {
		n.logger.Debugw("renegotiation request ignored by responder")
		return
	}
	if state := n.pc.SignalingState(); state != webrtc.SignalingStateStable {
		n.logger.Debugw("renegotiation request ignored", "signaling_state", state)
		return
	}
	go n.offer()
}

func (n *Negotiator) answer(offer webrtc.SessionDescription) error {
	if err := n.pc.SetRemoteDescription(offer); err != nil {
		return fmt.Errorf("failed to set remote offer: %w", err)
	}
	if err := n.flushPendingCandidates(); err != nil {
		return err
	}

	answer, err := n.pc.CreateAnswer(nil)
	if err != nil {
		return fmt.Errorf("failed to create answer: %w", err)
	}
	if err := n.setLocalDescription(answer); err != nil {
		return fmt.Errorf("failed to set local answer: %w", err)
	}
	return nil
}

// setLocalDescription applies desc and emits it: immediately when trickling,
// otherwise once ICE gathering has completed so the SDP carries every candidate.
func (n *Negotiator) setLocalDescription(desc webrtc.SessionDescription) error {
	var gathered <-chan struct{}
	if !n.trickle {
		gathered = webrtc.GatheringCompletePromise(n.pc)
	}

	if err := n.pc.SetLocalDescription(desc); err != nil {
		return err
	}

	if gathered == nil {
		n.emit(descriptionSignal(desc))
		return nil
	}

	go func() {
		select {
		case <-gathered:
		case <-n.closed:
			return
		}
		if local := n.pc.LocalDescription(); local != nil {
			n.emit(descriptionSignal(*local))
		}
	}()
	return nil
}

// addCandidate queues candidates that arrive before the remote description.
func (n *Negotiator) addCandidate(c webrtc.ICECandidateInit) error {
	n.mu.Lock()
	if n.pc.RemoteDescription() == nil {
		n.pending = append(n.pending, c)
		n.mu.Unlock()
		return nil
	}
	n.mu.Unlock()

	if err := n.pc.AddICECandidate(c); err != nil {
		return fmt.Errorf("failed to add ICE candidate: %w", err)
	}
	return nil
}

func (n *Negotiator) flushPendingCandidates() error {
	n.mu.Lock()
	pending := n.pending
	n.pending = nil
	n.mu.Unlock()

	for _, c := range pending {
		if err := n.pc.AddICECandidate(c); err != nil {
			return fmt.Errorf("failed to add queued ICE candidate: %w", err)
		}
	}
	return nil
}

func (n *Negotiator) pendingCandidates() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.pending)
}

func (n *Negotiator) handleICECandidate(c *webrtc.ICECandidate) {
	if c == nil || !n.trickle {
		return
	}
	n.emit(candidateSignal(c.ToJSON()))
}

func (n *Negotiator) handleConnectionState(state webrtc.PeerConnectionState) {
	n.logger.Infow("peer connection state changed", "connection_state", state)

	switch state {
	case webrtc.PeerConnectionStateConnecting:
		n.setState(domain.StateNegotiating)
	case webrtc.PeerConnectionStateConnected:
		n.setState(domain.StateConnected)
	case webrtc.PeerConnectionStateFailed, webrtc.PeerConnectionStateClosed:
		n.setState(domain.StateClosed)
	case webrtc.PeerConnectionStateDisconnected:
		// ICE may still recover; pion reports Failed if it does not.
	}
}

func (n *Negotiator) handleRemoteTrack(track *webrtc.TrackRemote, receiver *webrtc.RTPReceiver) {
	n.logger.Infow("remote track started",
		"track_id", track.ID(),
		"kind", track.Kind(),
		"codec", track.Codec().MimeType,
	)

	if track.Kind() == webrtc.RTPCodecTypeVideo {
		// Ask the sender for a keyframe so decoding can start right away.
		err := n.pc.WriteRTCP([]rtcp.Packet{&rtcp.PictureLossIndication{MediaSSRC: uint32(track.SSRC())}})
		if err != nil {
			n.logger.Debugw("failed to send PLI", "error", err)
		}
	}

	if n.handlers.OnRemoteTrack != nil && !n.isClosed() {
		n.handlers.OnRemoteTrack(track)
	}
}

// processRTCP drains the feedback the remote side sends about our tracks. The
// interceptors only see these packets if they are read.
func (n *Negotiator) processRTCP(sender *webrtc.RTPSender) {
	for {
		packets, _, err := sender.ReadRTCP()
		if err != nil {
			return
		}

		for _, packet := range packets {
			switch p := packet.(type) {
			case *rtcp.ReceiverReport:
				n.recordReceiverReport(p, time.Now())
				for _, report := range p.Reports {
					n.logger.Debugw("receiver report",
						"ssrc", report.SSRC,
						"fraction_lost", report.FractionLost,
						"total_lost", report.TotalLost,
						"jitter", report.Jitter,
					)
				}
			case *rtcp.TransportLayerNack:
				n.logger.Debugw("received NACK", "nacks", len(p.Nacks))
			case *rtcp.PictureLossIndication:
				n.logger.Debugw("received PLI", "ssrc", p.MediaSSRC)
			}
		}
	}
}

func (n *Negotiator) recordReceiverReport(rr *rtcp.ReceiverReport, now time.Time) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.links != nil {
		n.links.record(rr, now)
	}
}

func (n *Negotiator) setState(state domain.NegotiationState) {
	n.mu.Lock()
	if n.state == state || n.state == domain.StateClosed {
		n.mu.Unlock()
		return
	}
	n.state = state
	n.mu.Unlock()

	if n.handlers.OnStateChange != nil {
		n.handlers.OnStateChange(state)
	}
}

func (n *Negotiator) emit(p SignalPayload) {
	if n.isClosed() || n.handlers.OnSignal == nil {
		return
	}
	raw, err := p.Marshal()
	if err != nil {
		n.logger.Warnw("failed to encode local signal", "type", p.Type, "error", err)
		return
	}
	n.handlers.OnSignal(raw)
}

// fail reports an asynchronous negotiation error as a Closed transition so
// the owner tears the entry down.
func (n *Negotiator) fail(step string, err error) {
	if n.isClosed() {
		return
	}
	n.logger.Warnw("negotiation failed", "step", step, "error", err)
	n.setState(domain.StateClosed)
}

func (n *Negotiator) isClosed() bool {
	select {
	case <-n.closed:
		return true
	default:
		return false
	}
}
