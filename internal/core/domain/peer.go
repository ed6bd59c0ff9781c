package domain

import "time"

// Role is fixed by which side learned of the other first.
type Role string

const (
	RoleInitiator Role = "initiator"
	RoleResponder Role = "responder"
)

// NegotiationState is the lifecycle of one connection negotiator.
type NegotiationState int

const (
	StateCreated NegotiationState = iota
	StateNegotiating
	StateConnected
	StateClosed
)

func (s NegotiationState) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateNegotiating:
		return "negotiating"
	case StateConnected:
		return "connected"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// RemotePeerInfo is a read-only copy of a remote peer entry.
type RemotePeerInfo struct {
	ID        PeerID
	Role      Role
	State     NegotiationState
	Quality   QualitySample
	CreatedAt time.Time
}
