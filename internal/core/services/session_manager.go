package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"roomlink/internal/core/domain"
	"roomlink/internal/core/ports"
	"roomlink/pkg/tracing"

	"github.com/pion/webrtc/v3"
	"go.uber.org/zap"
)

const (
	eventQueueSize = 256

	// Quality ticks a departure is remembered for.
	departureTicks = 5
)

type remotePeer struct {
	id          domain.PeerID
	role        domain.Role
	negotiator  ports.Negotiator
	state       domain.NegotiationState
	quality     domain.QualitySample
	createdAt   time.Time
	connectedAt time.Time
	generation  uint64
}

// SessionManager is the authoritative table of remote peers for one local
// session. All mutation happens inside HandleEvent, which is only ever called
// from the Run loop (or directly by a single goroutine in tests).
type SessionManager struct {
	transport ports.SignalTransport
	factory   ports.NegotiatorFactory
	playback  ports.Playback
	metrics   ports.SessionMetrics
	monitor   *QualityMonitor
	logger    *zap.SugaredLogger

	negotiationTimeout time.Duration

	room     *domain.Room
	stream   ports.LocalStream
	peers    map[domain.PeerID]*remotePeer
	departed map[domain.PeerID]time.Time
	nextGen  uint64
	closed   bool

	events chan Event
	done   chan struct{}
	async  func(func())

	viewMu sync.RWMutex
	view   []domain.RemotePeerInfo
	roomID domain.RoomID
}

type Option func(*SessionManager)

func WithPlayback(p ports.Playback) Option {
	return func(m *SessionManager) { m.playback = p }
}

func WithMetrics(metrics ports.SessionMetrics) Option {
	return func(m *SessionManager) { m.metrics = metrics }
}

func WithLogger(logger *zap.SugaredLogger) Option {
	return func(m *SessionManager) { m.logger = logger }
}

// WithNegotiationTimeout closes peers that are not Connected within d.
// Zero disables the bound.
func WithNegotiationTimeout(d time.Duration) Option {
	return func(m *SessionManager) { m.negotiationTimeout = d }
}

func WithQualityMonitor(q *QualityMonitor) Option {
	return func(m *SessionManager) { m.monitor = q }
}

func NewSessionManager(transport ports.SignalTransport, factory ports.NegotiatorFactory, opts ...Option) *SessionManager {
	m := &SessionManager{
		transport: transport,
		factory:   factory,
		metrics:   noopMetrics{},
		logger:    zap.NewNop().Sugar(),
		peers:     make(map[domain.PeerID]*remotePeer),
		departed:  make(map[domain.PeerID]time.Time),
		events:    make(chan Event, eventQueueSize),
		done:      make(chan struct{}),
		async:     func(fn func()) { go fn() },
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.monitor == nil {
		m.monitor = NewQualityMonitor(DefaultQualityInterval, m.logger)
	}
	return m
}

// Run processes transport messages, negotiator callbacks and timer ticks one
// at a time until ctx is cancelled or Leave completes.
func (m *SessionManager) Run(ctx context.Context) error {
	defer close(m.done)

	monitorCtx, stopMonitor := context.WithCancel(ctx)
	defer stopMonitor()
	go m.monitor.Run(monitorCtx, m.post)

	incoming := m.transport.Incoming()
	for {
		select {
		case <-ctx.Done():
			if !m.closed {
				_ = m.HandleEvent(context.Background(), Event{Kind: EventLeave})
			}
			return ctx.Err()

		case in, ok := <-incoming:
			if !ok {
				m.logger.Warnw("signal transport closed", "room_id", m.roomIDOrEmpty())
				incoming = nil
				continue
			}
			if ev, known := EventFromInbound(in); known {
				_ = m.HandleEvent(ctx, ev)
			}

		case ev := <-m.events:
			err := m.HandleEvent(ctx, ev)
			if ev.reply != nil {
				ev.reply <- err
			}
		}

		if m.closed {
			return nil
		}
	}
}

// Join registers presence in roomID and retains stream for every negotiator
// created afterwards.
func (m *SessionManager) Join(ctx context.Context, roomID domain.RoomID, stream ports.LocalStream) error {
	return m.submit(ctx, Event{Kind: EventJoin, RoomID: roomID, Stream: stream})
}

func (m *SessionManager) OnPeerJoined(ctx context.Context, peerID domain.PeerID) error {
	return m.submit(ctx, Event{Kind: EventPeerJoined, PeerID: peerID})
}

func (m *SessionManager) OnSignalReceived(ctx context.Context, from domain.PeerID, payload json.RawMessage) error {
	return m.submit(ctx, Event{Kind: EventSignalReceived, PeerID: from, Payload: payload})
}

func (m *SessionManager) OnPeerLeft(ctx context.Context, peerID domain.PeerID) error {
	return m.submit(ctx, Event{Kind: EventPeerLeft, PeerID: peerID})
}

// Leave tears down every peer and the transport registration.
func (m *SessionManager) Leave(ctx context.Context) error {
	return m.submit(ctx, Event{Kind: EventLeave})
}

// Snapshot returns the remote peer table as of the last processed event,
// ordered by peer id.
func (m *SessionManager) Snapshot() []domain.RemotePeerInfo {
	m.viewMu.RLock()
	defer m.viewMu.RUnlock()
	out := make([]domain.RemotePeerInfo, len(m.view))
	copy(out, m.view)
	return out
}

// Peer returns one entry of the last published table.
func (m *SessionManager) Peer(id domain.PeerID) (domain.RemotePeerInfo, bool) {
	for _, p := range m.Snapshot() {
		if p.ID == id {
			return p, true
		}
	}
	return domain.RemotePeerInfo{}, false
}

// RoomID returns the joined room, or ErrNotJoined.
func (m *SessionManager) RoomID() (domain.RoomID, error) {
	m.viewMu.RLock()
	defer m.viewMu.RUnlock()
	if m.roomID == "" {
		return "", domain.ErrNotJoined
	}
	return m.roomID, nil
}

func (m *SessionManager) submit(ctx context.Context, ev Event) error {
	ev.reply = make(chan error, 1)
	select {
	case m.events <- ev:
	case <-m.done:
		return domain.ErrSessionClosed
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-ev.reply:
		return err
	case <-m.done:
		return domain.ErrSessionClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// post queues an event produced asynchronously. It reports false once the
// loop has stopped.
func (m *SessionManager) post(ev Event) bool {
	select {
	case m.events <- ev:
		return true
	case <-m.done:
		return false
	}
}

// HandleEvent runs one event to completion.
func (m *SessionManager) HandleEvent(ctx context.Context, ev Event) error {
	ctx, span := tracing.TraceSessionEvent(ctx, ev.Kind.String(), string(m.roomIDOrEmpty()), string(ev.PeerID))
	defer span.End()

	var err error
	switch ev.Kind {
	case EventJoin:
		err = m.handleJoin(ctx, ev)
	case EventLeave:
		m.handleLeave()
	default:
		if m.closed || m.room == nil {
			m.drop(ev, "no active room")
			break
		}
		m.dispatch(ctx, ev)
	}

	if err != nil {
		tracing.RecordError(ctx, err)
	}
	m.publish()
	return err
}

func (m *SessionManager) dispatch(ctx context.Context, ev Event) {
	switch ev.Kind {
	case EventPeerJoined:
		m.handlePeerJoined(ev.PeerID)
	case EventSignalReceived:
		m.handleSignal(ev.PeerID, ev.Payload)
	case EventPeerLeft:
		m.handlePeerLeft(ev.PeerID)
	case EventLocalSignal:
		m.handleLocalSignal(ctx, ev)
	case EventStateChanged:
		m.handleStateChanged(ev)
	case EventRemoteTrack:
		m.handleRemoteTrack(ev)
	case EventQualityTick:
		m.handleQualityTick(ctx, ev)
	case EventQualitySampled:
		m.handleQualitySampled(ev)
	default:
		m.drop(ev, "unknown event")
	}
}

func (m *SessionManager) handleJoin(ctx context.Context, ev Event) error {
	if m.closed {
		return domain.ErrSessionClosed
	}
	if m.room != nil {
		if m.room.ID == ev.RoomID {
			m.logger.Debugw("already joined room", "room_id", ev.RoomID)
			return nil
		}
		return fmt.Errorf("%w: joined %s, requested %s", domain.ErrAlreadyJoined, m.room.ID, ev.RoomID)
	}
	if ev.Stream == nil || len(ev.Stream.Tracks()) == 0 {
		m.logger.Errorw("cannot join without local media", "room_id", ev.RoomID)
		return domain.ErrMediaUnavailable
	}
	if err := m.transport.JoinRoom(ctx, ev.RoomID); err != nil {
		return fmt.Errorf("failed to join room %s: %w", ev.RoomID, err)
	}

	m.room = domain.NewRoom(ev.RoomID)
	m.stream = ev.Stream
	m.logger.Infow("joined room",
		"room_id", ev.RoomID,
		"local_id", m.transport.LocalID(),
		"stream_id", ev.Stream.ID(),
	)
	return nil
}

func (m *SessionManager) handlePeerJoined(id domain.PeerID) {
	if id == m.transport.LocalID() {
		return
	}
	if _, exists := m.peers[id]; exists {
		m.drop(Event{Kind: EventPeerJoined, PeerID: id}, "duplicate join")
		return
	}
	// A fresh join starts a new membership for this id.
	delete(m.departed, id)
	m.createPeer(id, domain.RoleInitiator, nil)
}

// handleSignal is the glare-sensitive path: the lookup-or-create step below is
// the only place a negotiator is created for an id that sent us a signal.
func (m *SessionManager) handleSignal(from domain.PeerID, payload json.RawMessage) {
	if p, exists := m.peers[from]; exists {
		if err := p.negotiator.ApplyRemoteSignal(payload); err != nil {
			m.signalFailed(p, err)
		}
		return
	}
	if _, gone := m.departed[from]; gone {
		m.drop(Event{Kind: EventSignalReceived, PeerID: from}, "signal from departed peer")
		return
	}
	m.createPeer(from, domain.RoleResponder, payload)
}

func (m *SessionManager) handlePeerLeft(id domain.PeerID) {
	m.departed[id] = time.Now()
	if _, exists := m.peers[id]; !exists {
		m.drop(Event{Kind: EventPeerLeft, PeerID: id}, "unknown peer left")
		return
	}
	m.removePeer(id, "left")
}

func (m *SessionManager) handleLeave() {
	if m.closed {
		return
	}
	for id := range m.peers {
		m.removePeer(id, "session_left")
	}
	if err := m.transport.Close(); err != nil {
		m.logger.Warnw("error closing signal transport", "error", err)
	}
	if m.room != nil {
		m.logger.Infow("left room", "room_id", m.room.ID)
	}
	m.room = nil
	m.stream = nil
	m.closed = true
}

func (m *SessionManager) handleLocalSignal(ctx context.Context, ev Event) {
	p := m.current(ev)
	if p == nil {
		m.drop(ev, "signal from stale negotiator")
		return
	}
	if err := m.transport.SendSignal(ctx, m.room.ID, p.id, ev.Payload); err != nil {
		m.logger.Warnw("failed to relay local signal",
			"peer_id", p.id,
			"room_id", m.room.ID,
			"error", err,
		)
	}
}

func (m *SessionManager) handleStateChanged(ev Event) {
	p := m.current(ev)
	if p == nil {
		m.drop(ev, "state change from stale negotiator")
		return
	}
	if p.state == ev.State {
		return
	}

	m.logger.Infow("peer connection state changed",
		"peer_id", p.id,
		"from", p.state,
		"to", ev.State,
	)
	p.state = ev.State
	m.metrics.RecordStateChange(ev.State)

	switch ev.State {
	case domain.StateConnected:
		p.connectedAt = time.Now()
	case domain.StateClosed:
		m.removePeer(p.id, "connection_closed")
	}
}

func (m *SessionManager) handleRemoteTrack(ev Event) {
	p := m.current(ev)
	if p == nil || ev.Track == nil {
		m.drop(ev, "track for stale negotiator")
		return
	}
	if m.playback != nil {
		m.playback.Attach(p.id, ev.Track)
	}
}

func (m *SessionManager) handleQualityTick(ctx context.Context, ev Event) {
	now := ev.At
	if now.IsZero() {
		now = time.Now()
	}

	m.pruneDepartures(now)

	var targets []qualityTarget
	for _, p := range m.peers {
		if m.negotiationTimeout > 0 && p.state != domain.StateConnected && now.Sub(p.createdAt) > m.negotiationTimeout {
			m.logger.Warnw("negotiation timed out", "peer_id", p.id, "state", p.state)
			m.removePeer(p.id, "negotiation_timeout")
			continue
		}
		if p.state != domain.StateConnected {
			continue
		}
		targets = append(targets, qualityTarget{peerID: p.id, generation: p.generation, negotiator: p.negotiator})
	}

	for _, t := range targets {
		t := t
		m.async(func() { m.monitor.Sample(ctx, t, m.post) })
	}
}

func (m *SessionManager) handleQualitySampled(ev Event) {
	p := m.current(ev)
	if p == nil || p.state != domain.StateConnected {
		m.drop(ev, "sample for inactive peer")
		return
	}
	if ev.Err != nil {
		m.logger.Warnw("quality poll failed", "peer_id", p.id, "error", ev.Err)
		m.metrics.RecordDroppedEvent("quality_poll_failed")
		return
	}
	p.quality = m.monitor.ToSample(p.id, ev.Snapshot, ev.At)
	m.metrics.RecordQualitySample(p.quality)
}

func (m *SessionManager) createPeer(id domain.PeerID, role domain.Role, initial json.RawMessage) {
	m.nextGen++
	gen := m.nextGen

	handlers := ports.NegotiatorHandlers{
		OnSignal: func(payload json.RawMessage) {
			m.post(Event{Kind: EventLocalSignal, PeerID: id, Payload: payload, generation: gen})
		},
		OnStateChange: func(state domain.NegotiationState) {
			m.post(Event{Kind: EventStateChanged, PeerID: id, State: state, generation: gen})
		},
		OnRemoteTrack: func(track *webrtc.TrackRemote) {
			m.post(Event{Kind: EventRemoteTrack, PeerID: id, Track: track, generation: gen})
		},
	}

	neg, err := m.factory.NewNegotiator(id, role, m.stream, handlers)
	if err != nil {
		m.logger.Warnw("failed to create negotiator", "peer_id", id, "role", role, "error", err)
		m.metrics.RecordDroppedEvent("negotiator_create_failed")
		return
	}

	// A negotiator starts negotiating as soon as it exists: the initiator
	// produces an offer and the responder consumes one.
	m.peers[id] = &remotePeer{
		id:         id,
		role:       role,
		negotiator: neg,
		state:      domain.StateNegotiating,
		createdAt:  time.Now(),
		generation: gen,
	}
	m.room.Peers[id] = struct{}{}
	m.metrics.RecordPeerAdded(role)
	m.logger.Infow("remote peer added", "peer_id", id, "role", role, "room_id", m.room.ID)

	if role == domain.RoleResponder {
		if err := neg.ApplyRemoteSignal(initial); err != nil {
			m.logger.Warnw("failed to apply initial signal", "peer_id", id, "error", err)
			reason := "negotiation_failed"
			if errors.Is(err, domain.ErrInvalidSignal) {
				reason = "invalid_signal"
			}
			m.removePeer(id, reason)
		}
	}
}

// signalFailed handles a payload an existing negotiator refused. A payload it
// cannot use is dropped and the link kept; only a failure to apply a valid one
// closes the peer.
func (m *SessionManager) signalFailed(p *remotePeer, err error) {
	if errors.Is(err, domain.ErrInvalidSignal) {
		m.logger.Debugw("unusable signal ignored", "peer_id", p.id, "state", p.state, "error", err)
		m.drop(Event{Kind: EventSignalReceived, PeerID: p.id}, "unusable signal")
		return
	}
	m.logger.Warnw("failed to apply remote signal",
		"peer_id", p.id,
		"role", p.role,
		"error", err,
	)
	m.removePeer(p.id, "negotiation_failed")
}

// pruneDepartures forgets departures older than departureTicks quality
// intervals.
func (m *SessionManager) pruneDepartures(now time.Time) {
	ttl := departureTicks * m.monitor.Interval()
	for id, leftAt := range m.departed {
		if now.Sub(leftAt) > ttl {
			delete(m.departed, id)
		}
	}
}

func (m *SessionManager) removePeer(id domain.PeerID, reason string) {
	p, exists := m.peers[id]
	if !exists {
		return
	}
	delete(m.peers, id)
	if m.room != nil {
		delete(m.room.Peers, id)
	}

	if err := p.negotiator.Close(); err != nil {
		m.logger.Warnw("error closing negotiator", "peer_id", id, "error", err)
	}
	if m.playback != nil {
		m.playback.Detach(id)
	}
	m.metrics.RecordPeerRemoved(p.role, reason)
	m.logger.Infow("remote peer removed", "peer_id", id, "reason", reason)
}

// current returns the entry an async event belongs to, or nil when that entry
// has since been removed or replaced.
func (m *SessionManager) current(ev Event) *remotePeer {
	p, exists := m.peers[ev.PeerID]
	if !exists || p.generation != ev.generation {
		return nil
	}
	return p
}

func (m *SessionManager) drop(ev Event, reason string) {
	m.logger.Debugw("event dropped", "kind", ev.Kind, "peer_id", ev.PeerID, "reason", reason)
	m.metrics.RecordDroppedEvent(ev.Kind.String())
}

func (m *SessionManager) publish() {
	view := make([]domain.RemotePeerInfo, 0, len(m.peers))
	for _, p := range m.peers {
		view = append(view, domain.RemotePeerInfo{
			ID:        p.id,
			Role:      p.role,
			State:     p.state,
			Quality:   p.quality,
			CreatedAt: p.createdAt,
		})
	}
	sort.Slice(view, func(i, j int) bool { return view[i].ID < view[j].ID })

	m.viewMu.Lock()
	m.view = view
	m.roomID = m.roomIDOrEmpty()
	m.viewMu.Unlock()
}

func (m *SessionManager) roomIDOrEmpty() domain.RoomID {
	if m.room == nil {
		return ""
	}
	return m.room.ID
}

type noopMetrics struct{}

func (noopMetrics) RecordPeerAdded(domain.Role) {}
func (noopMetrics) RecordPeerRemoved(domain.Role, string) {}
func (noopMetrics) RecordStateChange(domain.NegotiationState) {}
func (noopMetrics) RecordQualitySample(domain.QualitySample) {}
func (noopMetrics) RecordDroppedEvent(string) {}
