package domain

import "errors"

var (
	ErrMediaUnavailable   = errors.New("local media unavailable")
	ErrNotJoined          = errors.New("session has not joined a room")
	ErrAlreadyJoined      = errors.New("session already joined a different room")
	ErrSessionClosed      = errors.New("session closed")
	ErrNegotiatorClosed   = errors.New("negotiator closed")
	ErrInvalidSignal      = errors.New("invalid signal payload")
	ErrPeerNotFound       = errors.New("peer not found")
	ErrRoomNotFound       = errors.New("room not found")
	ErrTranscriptNotFound = errors.New("transcript not found")
	ErrInvalidTranscript  = errors.New("invalid transcript")
)
