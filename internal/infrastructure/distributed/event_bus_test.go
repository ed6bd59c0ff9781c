package distributed

import (
	"context"
	"encoding/json"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestEventBus_DecodeSkipsOwnEvents(t *testing.T) {
	bus := NewEventBus(nil, "instance-a", nil)

	own, err := json.Marshal(Event{Type: EventUserJoined, InstanceID: "instance-a", RoomID: "room1", PeerID: "peer_1"})
	require.NoError(t, err)
	ev, err := bus.decode(string(own))
	require.NoError(t, err)
	assert.Nil(t, ev)

	other, err := json.Marshal(Event{Type: EventSignal, InstanceID: "instance-b", RoomID: "room1", PeerID: "peer_2", To: "peer_1"})
	require.NoError(t, err)
	ev, err = bus.decode(string(other))
	require.NoError(t, err)
	require.NotNil(t, ev)
	assert.Equal(t, EventSignal, ev.Type)
	assert.Equal(t, "instance-b", ev.InstanceID)

	_, err = bus.decode("not json")
	assert.Error(t, err)
}

// Requires a reachable Redis; set ROOMLINK_TEST_REDIS_ADDR to run.
func TestEventBus_PublishSubscribe(t *testing.T) {
	addr := os.Getenv("ROOMLINK_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("ROOMLINK_TEST_REDIS_ADDR not set")
	}

	client := redis.NewClient(&redis.Options{Addr: addr})
	defer client.Close()

	logger := zaptest.NewLogger(t).Sugar()
	a := NewEventBus(client, "instance-a", logger)
	b := NewEventBus(client, "instance-b", logger)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	received := make(chan *Event, 4)
	ready := make(chan struct{})
	go func() {
		_ = b.Subscribe(ctx, ready, func(ev *Event) error {
			received <- ev
			return nil
		})
	}()
	<-ready

	// b ignores its own traffic.
	require.NoError(t, b.PublishUserJoined(ctx, "room1", "peer_b"))
	require.NoError(t, a.PublishSignal(ctx, "room1", "peer_a", "peer_b", json.RawMessage(`{"type":"offer","sdp":"v=0"}`)))

	select {
	case ev := <-received:
		assert.Equal(t, EventSignal, ev.Type)
		assert.Equal(t, "instance-a", ev.InstanceID)
		assert.Equal(t, "peer_b", string(ev.To))
		assert.JSONEq(t, `{"type":"offer","sdp":"v=0"}`, string(ev.Signal))
	case <-ctx.Done():
		t.Fatal("event not received")
	}
}
