package signal

import (
	"context"
	"encoding/json"
	"sort"

	"roomlink/internal/core/domain"
	"roomlink/internal/infrastructure/distributed"
	"roomlink/pkg/tracing"
	"roomlink/pkg/validation"

	"go.uber.org/zap"
)

// Bridge shares room traffic with other relay instances.
type Bridge interface {
	PublishUserJoined(ctx context.Context, roomID domain.RoomID, peerID domain.PeerID) error
	PublishUserLeft(ctx context.Context, roomID domain.RoomID, peerID domain.PeerID) error
	PublishSignal(ctx context.Context, roomID domain.RoomID, from, to domain.PeerID, signal json.RawMessage) error
}

// Metrics receives relay observations.
type Metrics interface {
	SetRelayRooms(n int)
	SetRelayConnections(n int)
	RecordRelayMessage(messageType string)
	RecordRelayRejected(reason string)
}

type noopMetrics struct{}

func (noopMetrics) SetRelayRooms(int)          {}
func (noopMetrics) SetRelayConnections(int)    {}
func (noopMetrics) RecordRelayMessage(string)  {}
func (noopMetrics) RecordRelayRejected(string) {}

// HubStats is a point-in-time view of the hub.
type HubStats struct {
	Rooms       int `json:"rooms"`
	Connections int `json:"connections"`
}

type inboundMessage struct {
	conn    *connection
	msg     *Message
	limited bool
}

// Hub owns every room and connection. All state changes happen on the Run
// goroutine, one message at a time.
type Hub struct {
	rooms map[domain.RoomID]map[domain.PeerID]*connection
	conns map[domain.PeerID]*connection

	register   chan *connection
	unregister chan *connection
	inbound    chan inboundMessage
	remote     chan *distributed.Event
	queries    chan func()
	done       chan struct{}

	bridge  Bridge
	metrics Metrics
	logger  *zap.SugaredLogger
}

type HubOption func(*Hub)

// WithBridge relays room traffic through b as well as locally.
func WithBridge(b Bridge) HubOption {
	return func(h *Hub) { h.bridge = b }
}

func WithHubMetrics(m Metrics) HubOption {
	return func(h *Hub) { h.metrics = m }
}

func NewHub(logger *zap.SugaredLogger, opts ...HubOption) *Hub {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	h := &Hub{
		rooms:      make(map[domain.RoomID]map[domain.PeerID]*connection),
		conns:      make(map[domain.PeerID]*connection),
		register:   make(chan *connection),
		unregister: make(chan *connection),
		inbound:    make(chan inboundMessage, 64),
		remote:     make(chan *distributed.Event, 64),
		queries:    make(chan func()),
		done:       make(chan struct{}),
		metrics:    noopMetrics{},
		logger:     logger,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Run is the hub's main loop. It returns when ctx is cancelled, after closing
// every connection's send queue.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)

	for {
		select {
		case <-ctx.Done():
			for _, c := range h.conns {
				h.closeSend(c)
			}
			h.conns = map[domain.PeerID]*connection{}
			h.rooms = map[domain.RoomID]map[domain.PeerID]*connection{}
			h.updateGauges()
			return

		case c := <-h.register:
			h.conns[c.id] = c
			h.logger.Infow("relay client registered", "peer_id", c.id, "remote_addr", c.remoteAddr)
			h.deliver(c, &Message{Type: MessageWelcome, ID: c.id})
			h.updateGauges()

		case c := <-h.unregister:
			if _, ok := h.conns[c.id]; ok {
				h.remove(ctx, c)
			}

		case in := <-h.inbound:
			if _, ok := h.conns[in.conn.id]; !ok {
				continue
			}
			h.handle(ctx, in)

		case ev := <-h.remote:
			h.handleRemote(ev)

		case query := <-h.queries:
			query()
		}
	}
}

// Stats asks the hub loop for its current counts.
func (h *Hub) Stats(ctx context.Context) (HubStats, error) {
	var stats HubStats
	err := h.query(ctx, func() {
		stats = HubStats{Rooms: len(h.rooms), Connections: len(h.conns)}
	})
	return stats, err
}

// Members lists the local members of a room, sorted.
func (h *Hub) Members(ctx context.Context, roomID domain.RoomID) ([]domain.PeerID, error) {
	var members []domain.PeerID
	err := h.query(ctx, func() {
		for id := range h.rooms[roomID] {
			members = append(members, id)
		}
	})
	if err != nil {
		return nil, err
	}
	if len(members) == 0 {
		return nil, domain.ErrRoomNotFound
	}
	sort.Slice(members, func(i, j int) bool { return members[i] < members[j] })
	return members, nil
}

// query runs fn on the hub goroutine and waits for it.
func (h *Hub) query(ctx context.Context, fn func()) error {
	done := make(chan struct{})
	wrapped := func() {
		fn()
		close(done)
	}
	select {
	case h.queries <- wrapped:
	case <-h.done:
		return domain.ErrSessionClosed
	case <-ctx.Done():
		return ctx.Err()
	}
	<-done
	return nil
}

// Remote hands an event from another relay instance to the hub loop.
func (h *Hub) Remote(ev *distributed.Event) error {
	select {
	case h.remote <- ev:
		return nil
	case <-h.done:
		return domain.ErrSessionClosed
	}
}

func (h *Hub) registerConn(c *connection) bool {
	select {
	case h.register <- c:
		return true
	case <-h.done:
		return false
	}
}

func (h *Hub) unregisterConn(c *connection) {
	select {
	case h.unregister <- c:
	case <-h.done:
	}
}

func (h *Hub) submit(in inboundMessage) bool {
	select {
	case h.inbound <- in:
		return true
	case <-h.done:
		return false
	}
}

func (h *Hub) handle(ctx context.Context, in inboundMessage) {
	c, msg := in.conn, in.msg

	if in.limited {
		h.metrics.RecordRelayRejected("rate_limited")
		h.deliver(c, errorMessage("rate limit exceeded"))
		return
	}

	switch msg.Type {
	case MessageJoinRoom:
		h.joinRoom(ctx, c, msg.RoomID)
	case MessageSignal:
		h.relaySignal(ctx, c, msg)
	default:
		h.metrics.RecordRelayRejected("unknown_type")
		h.deliver(c, errorMessage("unknown message type: "+msg.Type))
	}
}

func (h *Hub) joinRoom(ctx context.Context, c *connection, roomID domain.RoomID) {
	if err := validation.ValidateRoomID(string(roomID)); err != nil {
		h.metrics.RecordRelayRejected("invalid_room")
		h.deliver(c, errorMessage(err.Error()))
		return
	}
	if c.room == roomID {
		return
	}
	if c.room != "" {
		h.metrics.RecordRelayRejected("already_in_room")
		h.deliver(c, errorMessage("already in room "+string(c.room)))
		return
	}

	_, span := tracing.TraceRelayMessage(ctx, MessageJoinRoom, string(roomID), string(c.id))
	defer span.End()

	members, ok := h.rooms[roomID]
	if !ok {
		members = make(map[domain.PeerID]*connection)
		h.rooms[roomID] = members
		h.logger.Infow("room created", "room_id", roomID)
	}

	joined := &Message{Type: MessageUserJoined, ID: c.id}
	for _, member := range members {
		h.deliver(member, joined)
	}
	// A slow member dropped above may have emptied and deleted the room.
	members[c.id] = c
	h.rooms[roomID] = members
	c.room = roomID

	h.logger.Infow("client joined room", "peer_id", c.id, "room_id", roomID, "members", len(members))
	h.metrics.RecordRelayMessage(MessageJoinRoom)
	h.updateGauges()

	if h.bridge != nil {
		if err := h.bridge.PublishUserJoined(ctx, roomID, c.id); err != nil {
			h.logger.Warnw("failed to publish join", "room_id", roomID, "error", err)
		}
	}
}

func (h *Hub) relaySignal(ctx context.Context, c *connection, msg *Message) {
	if c.room == "" {
		h.metrics.RecordRelayRejected("not_in_room")
		h.deliver(c, errorMessage("join a room first"))
		return
	}
	if msg.RoomID != "" && msg.RoomID != c.room {
		h.metrics.RecordRelayRejected("wrong_room")
		h.deliver(c, errorMessage("not a member of room "+string(msg.RoomID)))
		return
	}
	if len(msg.Signal) == 0 {
		h.metrics.RecordRelayRejected("empty_signal")
		h.deliver(c, errorMessage("signal is required"))
		return
	}

	_, span := tracing.TraceRelayMessage(ctx, MessageSignal, string(c.room), string(c.id))
	defer span.End()

	out := &Message{Type: MessageSignal, From: c.id, Signal: msg.Signal}
	members := h.rooms[c.room]

	if msg.To != "" {
		if target, ok := members[msg.To]; ok {
			h.deliver(target, out)
		} else if h.bridge == nil {
			h.metrics.RecordRelayRejected("unknown_target")
			h.logger.Debugw("signal target not in room", "from", c.id, "to", msg.To, "room_id", c.room)
			return
		}
	} else {
		for id, member := range members {
			if id != c.id {
				h.deliver(member, out)
			}
		}
	}
	h.metrics.RecordRelayMessage(MessageSignal)

	if h.bridge != nil {
		_, local := members[msg.To]
		if msg.To == "" || !local {
			if err := h.bridge.PublishSignal(ctx, c.room, c.id, msg.To, msg.Signal); err != nil {
				h.logger.Warnw("failed to publish signal", "room_id", c.room, "error", err)
			}
		}
	}
}

// handleRemote delivers another instance's room traffic to local members.
func (h *Hub) handleRemote(ev *distributed.Event) {
	members := h.rooms[ev.RoomID]
	if len(members) == 0 {
		return
	}

	switch ev.Type {
	case distributed.EventUserJoined:
		h.broadcast(members, ev.PeerID, &Message{Type: MessageUserJoined, ID: ev.PeerID})
	case distributed.EventUserLeft:
		h.broadcast(members, ev.PeerID, &Message{Type: MessageUserLeft, ID: ev.PeerID})
	case distributed.EventSignal:
		out := &Message{Type: MessageSignal, From: ev.PeerID, Signal: ev.Signal}
		if ev.To != "" {
			if target, ok := members[ev.To]; ok {
				h.deliver(target, out)
			}
			return
		}
		h.broadcast(members, ev.PeerID, out)
	default:
		h.logger.Debugw("unknown remote event", "type", ev.Type)
	}
}

func (h *Hub) broadcast(members map[domain.PeerID]*connection, except domain.PeerID, msg *Message) {
	for id, member := range members {
		if id != except {
			h.deliver(member, msg)
		}
	}
}

// remove drops a connection and tells the rest of its room.
func (h *Hub) remove(ctx context.Context, c *connection) {
	delete(h.conns, c.id)
	h.closeSend(c)

	if c.room != "" {
		members := h.rooms[c.room]
		delete(members, c.id)

		left := &Message{Type: MessageUserLeft, ID: c.id}
		for _, member := range members {
			h.deliver(member, left)
		}
		if len(members) == 0 {
			delete(h.rooms, c.room)
			h.logger.Infow("room deleted", "room_id", c.room)
		}

		if h.bridge != nil {
			if err := h.bridge.PublishUserLeft(ctx, c.room, c.id); err != nil {
				h.logger.Warnw("failed to publish leave", "room_id", c.room, "error", err)
			}
		}
	}

	h.logger.Infow("relay client unregistered", "peer_id", c.id, "room_id", c.room)
	h.updateGauges()
}

// deliver never blocks the hub: a client that cannot keep up is dropped.
func (h *Hub) deliver(c *connection, msg *Message) {
	if c.sendClosed {
		return
	}
	select {
	case c.send <- msg:
	default:
		h.logger.Warnw("send queue full, dropping client", "peer_id", c.id)
		h.metrics.RecordRelayRejected("slow_consumer")
		h.remove(context.Background(), c)
	}
}

func (h *Hub) closeSend(c *connection) {
	if !c.sendClosed {
		c.sendClosed = true
		close(c.send)
	}
}

func (h *Hub) updateGauges() {
	h.metrics.SetRelayRooms(len(h.rooms))
	h.metrics.SetRelayConnections(len(h.conns))
}
