package signal

import (
	"context"
	"net/http"
	"sync/atomic"
	"time"

	"roomlink/internal/core/domain"
	"roomlink/pkg/config"
	"roomlink/pkg/utils"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Should be configured properly for production
	},
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// ServerSettings are the per-connection limits of the relay.
type ServerSettings struct {
	PingInterval      time.Duration
	PongTimeout       time.Duration
	WriteTimeout      time.Duration
	MaxMessageSize    int64
	SendBuffer        int
	MessagesPerSecond float64
	Burst             int
	MaxConnections    int
}

func DefaultServerSettings() ServerSettings {
	return ServerSettings{
		PingInterval:   30 * time.Second,
		PongTimeout:    60 * time.Second,
		WriteTimeout:   10 * time.Second,
		MaxMessageSize: 64 * 1024,
		SendBuffer:     64,
	}
}

// SettingsFromConfig reads the relay limits from the application config.
func SettingsFromConfig(cfg *config.Config) ServerSettings {
	s := ServerSettings{
		PingInterval:   cfg.Signal.PingInterval,
		PongTimeout:    cfg.Signal.PongTimeout,
		WriteTimeout:   cfg.Signal.WriteTimeout,
		MaxMessageSize: cfg.Signal.MaxMessageSize,
		SendBuffer:     cfg.Signal.SendBuffer,
	}
	if cfg.RateLimiting.Enabled {
		s.MessagesPerSecond = cfg.RateLimiting.WebSocket.MessagesPerSecond
		s.Burst = cfg.RateLimiting.WebSocket.Burst
		s.MaxConnections = cfg.RateLimiting.WebSocket.MaxConcurrent
	}
	return s
}

// connection is one relay client. Fields other than send are owned by the hub.
type connection struct {
	id         domain.PeerID
	remoteAddr string
	conn       *websocket.Conn
	send       chan *Message
	limiter    *rate.Limiter

	room       domain.RoomID
	sendClosed bool
}

type WebSocketServer struct {
	hub      *Hub
	settings ServerSettings
	active   atomic.Int64
	logger   *zap.SugaredLogger
}

func NewWebSocketServer(hub *Hub, settings ServerSettings, logger *zap.SugaredLogger) *WebSocketServer {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &WebSocketServer{
		hub:      hub,
		settings: settings,
		logger:   logger,
	}
}

// ActiveConnections is the number of open sockets.
func (s *WebSocketServer) ActiveConnections() int64 {
	return s.active.Load()
}

// HandleWebSocket upgrades the request and serves the connection until it
// closes. Each connection gets a fresh relay id.
func (s *WebSocketServer) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	if limit := s.settings.MaxConnections; limit > 0 && s.active.Load() >= int64(limit) {
		s.hub.metrics.RecordRelayRejected("max_connections")
		http.Error(w, "too many connections", http.StatusServiceUnavailable)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Errorw("websocket upgrade failed", "error", err)
		return
	}

	s.active.Add(1)
	defer s.active.Add(-1)

	c := &connection{
		id:         domain.PeerID(utils.GeneratePeerID()),
		remoteAddr: r.RemoteAddr,
		conn:       conn,
		send:       make(chan *Message, s.settings.SendBuffer),
	}
	if s.settings.MessagesPerSecond > 0 {
		burst := s.settings.Burst
		if burst <= 0 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(s.settings.MessagesPerSecond), burst)
	}

	if !s.hub.registerConn(c) {
		conn.Close()
		return
	}

	go s.writePump(c)
	s.readPump(c)
}

// readPump feeds the hub. It is the only reader of the connection.
func (s *WebSocketServer) readPump(c *connection) {
	defer func() {
		s.hub.unregisterConn(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(s.settings.MaxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(s.settings.PongTimeout))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(s.settings.PongTimeout))
		return nil
	})

	for {
		var msg Message
		if err := c.conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				s.logger.Infow("error reading message from peer", "peer_id", c.id, "error", err)
			}
			return
		}
		c.conn.SetReadDeadline(time.Now().Add(s.settings.PongTimeout))

		limited := c.limiter != nil && !c.limiter.Allow()
		if !s.hub.submit(inboundMessage{conn: c, msg: &msg, limited: limited}) {
			return
		}
	}
}

// writePump drains the send queue and keeps the connection alive. It is the
// only writer of the connection.
func (s *WebSocketServer) writePump(c *connection) {
	ticker := time.NewTicker(s.settings.PingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(s.settings.WriteTimeout))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteJSON(msg); err != nil {
				s.logger.Infow("error writing to peer", "peer_id", c.id, "error", err)
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(s.settings.WriteTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				s.logger.Infow("error sending ping", "peer_id", c.id, "error", err)
				return
			}
		}
	}
}

// Health reports the hub's counts for the health endpoints.
func (s *WebSocketServer) Health(ctx context.Context) (map[string]interface{}, error) {
	stats, err := s.hub.Stats(ctx)
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{
		"rooms":       stats.Rooms,
		"connections": stats.Connections,
		"sockets":     s.active.Load(),
	}, nil
}
