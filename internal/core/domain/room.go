package domain

import "time"

type RoomID string
type PeerID string
type SessionID string

// Room is the local view of a room: its id and the remote peers currently known.
type Room struct {
	ID       RoomID
	Peers    map[PeerID]struct{}
	JoinedAt time.Time
}

func NewRoom(id RoomID) *Room {
	return &Room{
		ID:       id,
		Peers:    make(map[PeerID]struct{}),
		JoinedAt: time.Now(),
	}
}

// Has reports whether the peer is a current room member.
func (r *Room) Has(id PeerID) bool {
	_, ok := r.Peers[id]
	return ok
}

// Size returns the number of known remote peers.
func (r *Room) Size() int {
	return len(r.Peers)
}
