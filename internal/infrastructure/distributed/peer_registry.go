package distributed

import (
	"context"
	"fmt"
	"sort"
	"time"

	"roomlink/internal/core/domain"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const registryTTL = 10 * time.Minute

// SharedPeerRegistry records room membership across relay instances. Each
// room is a hash of peer id to the instance holding its socket.
type SharedPeerRegistry struct {
	client     redis.UniversalClient
	instanceID string
	logger     *zap.SugaredLogger
}

// NewSharedPeerRegistry creates a new shared peer registry
func NewSharedPeerRegistry(client redis.UniversalClient, instanceID string, logger *zap.SugaredLogger) *SharedPeerRegistry {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &SharedPeerRegistry{
		client:     client,
		instanceID: instanceID,
		logger:     logger,
	}
}

// RegisterPeer adds a peer to a room
func (r *SharedPeerRegistry) RegisterPeer(ctx context.Context, roomID domain.RoomID, peerID domain.PeerID) error {
	pipe := r.client.TxPipeline()
	pipe.HSet(ctx, roomKey(roomID), string(peerID), r.instanceID)
	pipe.Expire(ctx, roomKey(roomID), registryTTL)
	pipe.SAdd(ctx, r.instanceKey(), string(roomID)+"/"+string(peerID))
	pipe.Expire(ctx, r.instanceKey(), registryTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to register peer: %w", err)
	}
	return nil
}

// UnregisterPeer removes a peer from a room
func (r *SharedPeerRegistry) UnregisterPeer(ctx context.Context, roomID domain.RoomID, peerID domain.PeerID) error {
	pipe := r.client.TxPipeline()
	pipe.HDel(ctx, roomKey(roomID), string(peerID))
	pipe.SRem(ctx, r.instanceKey(), string(roomID)+"/"+string(peerID))
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to unregister peer: %w", err)
	}
	return nil
}

// RoomMembers lists every member of a room on any instance, sorted.
func (r *SharedPeerRegistry) RoomMembers(ctx context.Context, roomID domain.RoomID) ([]domain.PeerID, error) {
	entries, err := r.client.HGetAll(ctx, roomKey(roomID)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get room members: %w", err)
	}
	if len(entries) == 0 {
		return nil, domain.ErrRoomNotFound
	}

	members := make([]domain.PeerID, 0, len(entries))
	for id := range entries {
		members = append(members, domain.PeerID(id))
	}
	sort.Slice(members, func(i, j int) bool { return members[i] < members[j] })
	return members, nil
}

// CleanupInstancePeers removes every registration this instance made, e.g. on
// shutdown.
func (r *SharedPeerRegistry) CleanupInstancePeers(ctx context.Context) error {
	entries, err := r.client.SMembers(ctx, r.instanceKey()).Result()
	if err != nil {
		return fmt.Errorf("failed to get instance peers: %w", err)
	}

	for _, entry := range entries {
		roomID, peerID, ok := splitEntry(entry)
		if !ok {
			continue
		}
		if err := r.client.HDel(ctx, roomKey(roomID), string(peerID)).Err(); err != nil {
			r.logger.Warnw("failed to unregister peer during cleanup",
				"room_id", roomID,
				"peer_id", peerID,
				"error", err,
			)
		}
	}

	return r.client.Del(ctx, r.instanceKey()).Err()
}

func roomKey(roomID domain.RoomID) string {
	return fmt.Sprintf("roomlink:room:%s:members", roomID)
}

func (r *SharedPeerRegistry) instanceKey() string {
	return fmt.Sprintf("roomlink:instance:%s:members", r.instanceID)
}

func splitEntry(entry string) (domain.RoomID, domain.PeerID, bool) {
	for i := 0; i < len(entry); i++ {
		if entry[i] == '/' {
			return domain.RoomID(entry[:i]), domain.PeerID(entry[i+1:]), true
		}
	}
	return "", "", false
}
