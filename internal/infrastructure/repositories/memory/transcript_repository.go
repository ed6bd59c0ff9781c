package memory

import (
	"context"
	"sync"

	"roomlink/internal/core/domain"
	"roomlink/internal/core/ports"
)

type MemoryTranscriptRepository struct {
	transcripts map[domain.SessionID]*domain.Transcript
	mu          sync.RWMutex
}

func NewMemoryTranscriptRepository() ports.TranscriptRepository {
	return &MemoryTranscriptRepository{
		transcripts: make(map[domain.SessionID]*domain.Transcript),
	}
}

// Save replaces any transcript already stored under the same session.
func (r *MemoryTranscriptRepository) Save(ctx context.Context, transcript *domain.Transcript) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.transcripts[transcript.SessionID] = clone(transcript)
	return nil
}

func (r *MemoryTranscriptRepository) GetByID(ctx context.Context, id domain.SessionID) (*domain.Transcript, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	transcript, exists := r.transcripts[id]
	if !exists {
		return nil, domain.ErrTranscriptNotFound
	}

	return clone(transcript), nil
}

func (r *MemoryTranscriptRepository) Delete(ctx context.Context, id domain.SessionID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.transcripts[id]; !exists {
		return domain.ErrTranscriptNotFound
	}

	delete(r.transcripts, id)
	return nil
}

func clone(t *domain.Transcript) *domain.Transcript {
	c := *t
	c.Lines = append([]string(nil), t.Lines...)
	return &c
}
