package services

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"roomlink/internal/core/domain"
	"roomlink/internal/core/ports"

	"github.com/pion/webrtc/v3"
	"github.com/stretchr/testify/require"
)

type sentSignal struct {
	room    domain.RoomID
	to      domain.PeerID
	payload json.RawMessage
}

type fakeTransport struct {
	mu       sync.Mutex
	localID  domain.PeerID
	joined   []domain.RoomID
	sent     []sentSignal
	closed   int
	joinErr  error
	incoming chan ports.Inbound
}

func newFakeTransport(localID domain.PeerID) *fakeTransport {
	return &fakeTransport{localID: localID, incoming: make(chan ports.Inbound, 16)}
}

func (f *fakeTransport) LocalID() domain.PeerID { return f.localID }

func (f *fakeTransport) JoinRoom(_ context.Context, roomID domain.RoomID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.joinErr != nil {
		return f.joinErr
	}
	f.joined = append(f.joined, roomID)
	return nil
}

func (f *fakeTransport) SendSignal(_ context.Context, roomID domain.RoomID, to domain.PeerID, payload json.RawMessage) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, sentSignal{room: roomID, to: to, payload: payload})
	return nil
}

func (f *fakeTransport) Incoming() <-chan ports.Inbound { return f.incoming }

func (f *fakeTransport) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed++
	return nil
}

func (f *fakeTransport) sentTo(id domain.PeerID) []sentSignal {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []sentSignal
	for _, s := range f.sent {
		if s.to == id {
			out = append(out, s)
		}
	}
	return out
}

type fakeNegotiator struct {
	mu       sync.Mutex
	id       domain.PeerID
	role     domain.Role
	state    domain.NegotiationState
	handlers ports.NegotiatorHandlers
	applied  []json.RawMessage
	applyErr error
	snap     ports.QualitySnapshot
	statsErr error
	closes   int
}

func (n *fakeNegotiator) PeerID() domain.PeerID { return n.id }
func (n *fakeNegotiator) Role() domain.Role     { return n.role }

func (n *fakeNegotiator) State() domain.NegotiationState {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.state
}

func (n *fakeNegotiator) ApplyRemoteSignal(payload json.RawMessage) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.state == domain.StateClosed {
		return nil
	}
	n.applied = append(n.applied, payload)
	return n.applyErr
}

func (n *fakeNegotiator) Stats(context.Context) (ports.QualitySnapshot, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.snap, n.statsErr
}

func (n *fakeNegotiator) Close() error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.closes++
	n.state = domain.StateClosed
	return nil
}

// emitSignal and setState simulate the connection's own goroutines.
func (n *fakeNegotiator) emitSignal(payload string) {
	n.handlers.OnSignal(json.RawMessage(payload))
}

func (n *fakeNegotiator) setState(s domain.NegotiationState) {
	n.mu.Lock()
	n.state = s
	n.mu.Unlock()
	n.handlers.OnStateChange(s)
}

func (n *fakeNegotiator) closeCount() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.closes
}

type fakeFactory struct {
	mu        sync.Mutex
	created   []*fakeNegotiator
	createErr error
	applyErr  map[domain.PeerID]error
}

func newFakeFactory() *fakeFactory {
	return &fakeFactory{applyErr: make(map[domain.PeerID]error)}
}

func (f *fakeFactory) NewNegotiator(peerID domain.PeerID, role domain.Role, _ ports.LocalStream, handlers ports.NegotiatorHandlers) (ports.Negotiator, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return nil, f.createErr
	}
	n := &fakeNegotiator{
		id:       peerID,
		role:     role,
		state:    domain.StateCreated,
		handlers: handlers,
		applyErr: f.applyErr[peerID],
	}
	f.created = append(f.created, n)
	return n, nil
}

func (f *fakeFactory) forPeer(id domain.PeerID) []*fakeNegotiator {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*fakeNegotiator
	for _, n := range f.created {
		if n.id == id {
			out = append(out, n)
		}
	}
	return out
}

func (f *fakeFactory) latest(t *testing.T, id domain.PeerID) *fakeNegotiator {
	t.Helper()
	ns := f.forPeer(id)
	require.NotEmpty(t, ns, "no negotiator created for %s", id)
	return ns[len(ns)-1]
}

type fakeStream struct {
	tracks []webrtc.TrackLocal
}

func newFakeStream(t *testing.T) *fakeStream {
	t.Helper()
	track, err := webrtc.NewTrackLocalStaticSample(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus, ClockRate: 48000, Channels: 2},
		"audio", "local",
	)
	require.NoError(t, err)
	return &fakeStream{tracks: []webrtc.TrackLocal{track}}
}

func (s *fakeStream) ID() string                  { return "local" }
func (s *fakeStream) Tracks() []webrtc.TrackLocal { return s.tracks }
func (s *fakeStream) AudioEnabled() bool          { return true }
func (s *fakeStream) VideoEnabled() bool          { return false }

type fakePlayback struct {
	mu       sync.Mutex
	attached map[domain.PeerID]int
	detached map[domain.PeerID]int
}

func newFakePlayback() *fakePlayback {
	return &fakePlayback{attached: map[domain.PeerID]int{}, detached: map[domain.PeerID]int{}}
}

func (p *fakePlayback) Attach(id domain.PeerID, _ *webrtc.TrackRemote) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.attached[id]++
}

func (p *fakePlayback) Detach(id domain.PeerID) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.detached[id]++
}

type recordingMetrics struct {
	mu      sync.Mutex
	added   int
	removed map[string]int
	dropped map[string]int
	samples []domain.QualitySample
}

func newRecordingMetrics() *recordingMetrics {
	return &recordingMetrics{removed: map[string]int{}, dropped: map[string]int{}}
}

func (r *recordingMetrics) RecordPeerAdded(domain.Role) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.added++
}

func (r *recordingMetrics) RecordPeerRemoved(_ domain.Role, reason string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.removed[reason]++
}

func (r *recordingMetrics) RecordStateChange(domain.NegotiationState) {}

func (r *recordingMetrics) RecordQualitySample(s domain.QualitySample) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.samples = append(r.samples, s)
}

func (r *recordingMetrics) RecordDroppedEvent(kind string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.dropped[kind]++
}

var errBoom = errors.New("boom")
