package distributed

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"roomlink/internal/core/domain"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const relayChannel = "roomlink:relay"

// EventType represents the type of event
type EventType string

const (
	EventUserJoined EventType = "room.user_joined"
	EventUserLeft   EventType = "room.user_left"
	EventSignal     EventType = "room.signal"
)

// Event is one piece of room traffic shared between relay instances.
type Event struct {
	Type       EventType       `json:"type"`
	InstanceID string          `json:"instance_id"`
	Timestamp  time.Time       `json:"timestamp"`
	RoomID     domain.RoomID   `json:"room_id"`
	PeerID     domain.PeerID   `json:"peer_id"`
	To         domain.PeerID   `json:"to,omitempty"`
	Signal     json.RawMessage `json:"signal,omitempty"`
}

// EventBus bridges rooms across relay instances over Redis pub/sub. Each
// instance delivers remote events to its own members only.
type EventBus struct {
	client     redis.UniversalClient
	instanceID string
	channel    string
	logger     *zap.SugaredLogger
}

// NewEventBus creates a new event bus
func NewEventBus(client redis.UniversalClient, instanceID string, logger *zap.SugaredLogger) *EventBus {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &EventBus{
		client:     client,
		instanceID: instanceID,
		channel:    relayChannel,
		logger:     logger.With("instance_id", instanceID),
	}
}

func (eb *EventBus) InstanceID() string {
	return eb.instanceID
}

// Publish publishes an event to the event bus
func (eb *EventBus) Publish(ctx context.Context, event *Event) error {
	event.InstanceID = eb.instanceID
	event.Timestamp = time.Now()

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	if err := eb.client.Publish(ctx, eb.channel, data).Err(); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}

	eb.logger.Debugw("published event",
		"type", event.Type,
		"room_id", event.RoomID,
		"peer_id", event.PeerID,
	)
	return nil
}

// Subscribe delivers events from other instances to handler until ctx ends.
// ready, when non-nil, is closed once the subscription is active.
func (eb *EventBus) Subscribe(ctx context.Context, ready chan<- struct{}, handler func(*Event) error) error {
	pubsub := eb.client.Subscribe(ctx, eb.channel)
	defer pubsub.Close()

	if _, err := pubsub.Receive(ctx); err != nil {
		return fmt.Errorf("failed to subscribe: %w", err)
	}
	if ready != nil {
		close(ready)
	}

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			event, err := eb.decode(msg.Payload)
			if err != nil {
				eb.logger.Warnw("failed to unmarshal event", "error", err)
				continue
			}
			if event == nil {
				continue
			}
			if err := handler(event); err != nil {
				eb.logger.Warnw("error handling event",
					"type", event.Type,
					"error", err,
				)
			}
		}
	}
}

// decode returns nil for events this instance published itself.
func (eb *EventBus) decode(payload string) (*Event, error) {
	var event Event
	if err := json.Unmarshal([]byte(payload), &event); err != nil {
		return nil, err
	}
	if event.InstanceID == eb.instanceID {
		return nil, nil
	}
	return &event, nil
}

func (eb *EventBus) PublishUserJoined(ctx context.Context, roomID domain.RoomID, peerID domain.PeerID) error {
	return eb.Publish(ctx, &Event{Type: EventUserJoined, RoomID: roomID, PeerID: peerID})
}

func (eb *EventBus) PublishUserLeft(ctx context.Context, roomID domain.RoomID, peerID domain.PeerID) error {
	return eb.Publish(ctx, &Event{Type: EventUserLeft, RoomID: roomID, PeerID: peerID})
}

// PublishSignal forwards a signal; an empty to broadcasts within the room.
func (eb *EventBus) PublishSignal(ctx context.Context, roomID domain.RoomID, from, to domain.PeerID, signal json.RawMessage) error {
	return eb.Publish(ctx, &Event{
		Type:   EventSignal,
		RoomID: roomID,
		PeerID: from,
		To:     to,
		Signal: signal,
	})
}
