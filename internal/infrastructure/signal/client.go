package signal

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"roomlink/internal/core/domain"
	"roomlink/internal/core/ports"
	"roomlink/pkg/config"
	"roomlink/pkg/retry"
	"roomlink/pkg/validation"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// TransportConfig configures the relay client.
type TransportConfig struct {
	URL            string
	DialAttempts   int
	JoinTimeout    time.Duration
	PingInterval   time.Duration
	PongTimeout    time.Duration
	WriteTimeout   time.Duration
	MaxMessageSize int64
}

func TransportConfigFromApp(cfg *config.Config) TransportConfig {
	return TransportConfig{
		URL:            cfg.Session.RelayURL,
		DialAttempts:   cfg.Session.DialAttempts,
		JoinTimeout:    cfg.Session.JoinTimeout,
		PingInterval:   cfg.Signal.PingInterval,
		PongTimeout:    cfg.Signal.PongTimeout,
		WriteTimeout:   cfg.Signal.WriteTimeout,
		MaxMessageSize: cfg.Signal.MaxMessageSize,
	}
}

// Transport is the relay client used by a peer session. It implements
// ports.SignalTransport.
type Transport struct {
	config  TransportConfig
	conn    *websocket.Conn
	localID domain.PeerID

	incoming chan ports.Inbound
	outgoing chan *Message
	done     chan struct{}

	closeOnce sync.Once
	logger    *zap.SugaredLogger
}

// Dial connects to the relay, retrying with backoff, and waits for the
// welcome message that carries this session's relay id.
func Dial(ctx context.Context, cfg TransportConfig, logger *zap.SugaredLogger) (*Transport, error) {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	if err := validation.ValidateRelayURL(cfg.URL); err != nil {
		return nil, err
	}

	retryCfg := retry.DefaultConfig()
	retryCfg.MaxAttempts = cfg.DialAttempts
	retryCfg.InitialDelay = 250 * time.Millisecond
	retryCfg.OnRetry = func(attempt int, err error, delay time.Duration) {
		logger.Warnw("relay dial failed, retrying",
			"url", cfg.URL,
			"attempt", attempt,
			"delay", delay,
			"error", err,
		)
	}

	conn, err := retry.RetryWithResult(ctx, retryCfg, func() (*websocket.Conn, error) {
		dialCtx, cancel := context.WithTimeout(ctx, cfg.JoinTimeout)
		defer cancel()
		c, _, err := websocket.DefaultDialer.DialContext(dialCtx, cfg.URL, nil)
		return c, err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to relay: %w", err)
	}

	conn.SetReadLimit(cfg.MaxMessageSize)
	conn.SetReadDeadline(time.Now().Add(cfg.JoinTimeout))

	var welcome Message
	if err := conn.ReadJSON(&welcome); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to read welcome: %w", err)
	}
	if welcome.Type != MessageWelcome || welcome.ID == "" {
		conn.Close()
		return nil, fmt.Errorf("unexpected first relay message %q", welcome.Type)
	}

	t := &Transport{
		config:   cfg,
		conn:     conn,
		localID:  welcome.ID,
		incoming: make(chan ports.Inbound, 64),
		outgoing: make(chan *Message, 16),
		done:     make(chan struct{}),
		logger:   logger.With("local_id", welcome.ID),
	}

	conn.SetReadDeadline(time.Now().Add(cfg.PongTimeout))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(cfg.PongTimeout))
		return nil
	})

	go t.readPump()
	go t.writePump()

	t.logger.Infow("connected to relay", "url", cfg.URL)
	return t, nil
}

func (t *Transport) LocalID() domain.PeerID {
	return t.localID
}

func (t *Transport) JoinRoom(ctx context.Context, roomID domain.RoomID) error {
	return t.send(ctx, &Message{Type: MessageJoinRoom, RoomID: roomID})
}

func (t *Transport) SendSignal(ctx context.Context, roomID domain.RoomID, to domain.PeerID, payload json.RawMessage) error {
	return t.send(ctx, &Message{Type: MessageSignal, RoomID: roomID, To: to, Signal: payload})
}

// Incoming is closed when the relay connection ends.
func (t *Transport) Incoming() <-chan ports.Inbound {
	return t.incoming
}

// Close sends a close frame and stops both pumps.
func (t *Transport) Close() error {
	t.closeOnce.Do(func() {
		close(t.done)
	})
	return nil
}

func (t *Transport) send(ctx context.Context, msg *Message) error {
	select {
	case <-t.done:
		return domain.ErrSessionClosed
	default:
	}

	select {
	case t.outgoing <- msg:
		return nil
	case <-t.done:
		return domain.ErrSessionClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (t *Transport) readPump() {
	defer func() {
		t.conn.Close()
		close(t.incoming)
	}()

	for {
		var msg Message
		if err := t.conn.ReadJSON(&msg); err != nil {
			select {
			case <-t.done:
			default:
				t.logger.Warnw("relay connection lost", "error", err)
			}
			return
		}
		t.conn.SetReadDeadline(time.Now().Add(t.config.PongTimeout))

		in, ok := t.translate(&msg)
		if !ok {
			continue
		}
		select {
		case t.incoming <- in:
		case <-t.done:
			return
		}
	}
}

func (t *Transport) translate(msg *Message) (ports.Inbound, bool) {
	switch msg.Type {
	case MessageUserJoined:
		return ports.Inbound{Kind: ports.InboundUserJoined, PeerID: msg.ID}, true
	case MessageUserLeft:
		return ports.Inbound{Kind: ports.InboundUserLeft, PeerID: msg.ID}, true
	case MessageSignal:
		return ports.Inbound{Kind: ports.InboundSignal, PeerID: msg.From, Payload: msg.Signal}, true
	case MessageError:
		t.logger.Warnw("relay reported an error", "error", msg.Error)
	default:
		t.logger.Debugw("ignoring relay message", "type", msg.Type)
	}
	return ports.Inbound{}, false
}

func (t *Transport) writePump() {
	ticker := time.NewTicker(t.config.PingInterval)
	defer func() {
		ticker.Stop()
		t.conn.Close()
	}()

	for {
		select {
		case msg := <-t.outgoing:
			t.conn.SetWriteDeadline(time.Now().Add(t.config.WriteTimeout))
			if err := t.conn.WriteJSON(msg); err != nil {
				t.logger.Warnw("failed to write to relay", "type", msg.Type, "error", err)
				t.Close()
				return
			}

		case <-ticker.C:
			t.conn.SetWriteDeadline(time.Now().Add(t.config.WriteTimeout))
			if err := t.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				t.Close()
				return
			}

		case <-t.done:
			t.conn.SetWriteDeadline(time.Now().Add(t.config.WriteTimeout))
			t.conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}
