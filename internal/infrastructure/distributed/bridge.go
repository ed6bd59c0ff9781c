package distributed

import (
	"context"
	"encoding/json"

	"roomlink/internal/core/domain"

	"go.uber.org/zap"
)

// RelayBridge shares one relay instance's room traffic with its siblings.
// Presence is kept in the shared registry and events go over the bus.
type RelayBridge struct {
	bus      *EventBus
	registry *SharedPeerRegistry
	logger   *zap.SugaredLogger
}

func NewRelayBridge(bus *EventBus, registry *SharedPeerRegistry, logger *zap.SugaredLogger) *RelayBridge {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &RelayBridge{bus: bus, registry: registry, logger: logger}
}

func (b *RelayBridge) PublishUserJoined(ctx context.Context, roomID domain.RoomID, peerID domain.PeerID) error {
	if err := b.registry.RegisterPeer(ctx, roomID, peerID); err != nil {
		// presence is advisory; the event still goes out
		b.logger.Warnw("failed to register room member",
			"room_id", roomID,
			"peer_id", peerID,
			"error", err,
		)
	}
	return b.bus.PublishUserJoined(ctx, roomID, peerID)
}

func (b *RelayBridge) PublishUserLeft(ctx context.Context, roomID domain.RoomID, peerID domain.PeerID) error {
	if err := b.registry.UnregisterPeer(ctx, roomID, peerID); err != nil {
		b.logger.Warnw("failed to unregister room member",
			"room_id", roomID,
			"peer_id", peerID,
			"error", err,
		)
	}
	return b.bus.PublishUserLeft(ctx, roomID, peerID)
}

func (b *RelayBridge) PublishSignal(ctx context.Context, roomID domain.RoomID, from, to domain.PeerID, signal json.RawMessage) error {
	return b.bus.PublishSignal(ctx, roomID, from, to, signal)
}

// RoomMembers lists a room's members across all instances.
func (b *RelayBridge) RoomMembers(ctx context.Context, roomID domain.RoomID) ([]domain.PeerID, error) {
	return b.registry.RoomMembers(ctx, roomID)
}

// Shutdown drops this instance's presence entries.
func (b *RelayBridge) Shutdown(ctx context.Context) error {
	return b.registry.CleanupInstancePeers(ctx)
}
