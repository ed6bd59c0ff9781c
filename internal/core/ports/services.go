package ports

import (
	"context"

	"roomlink/internal/core/domain"
)

type MinutesService interface {
	SubmitTranscript(ctx context.Context, sessionID domain.SessionID, lines []string) error
	GetMinutes(ctx context.Context, sessionID domain.SessionID) (*domain.Minutes, error)
}

// SessionMetrics receives session lifecycle observations.
type SessionMetrics interface {
	RecordPeerAdded(role domain.Role)
	RecordPeerRemoved(role domain.Role, reason string)
	RecordStateChange(state domain.NegotiationState)
	RecordQualitySample(sample domain.QualitySample)
	RecordDroppedEvent(kind string)
}
