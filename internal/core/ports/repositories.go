package ports

import (
	"context"

	"roomlink/internal/core/domain"
)

type TranscriptRepository interface {
	Save(ctx context.Context, transcript *domain.Transcript) error
	GetByID(ctx context.Context, id domain.SessionID) (*domain.Transcript, error)
	Delete(ctx context.Context, id domain.SessionID) error
}
