package memory

import (
	"context"
	"testing"
	"time"

	"roomlink/internal/core/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryTranscriptRepository(t *testing.T) {
	repo := NewMemoryTranscriptRepository()
	ctx := context.Background()

	_, err := repo.GetByID(ctx, "s1")
	assert.ErrorIs(t, err, domain.ErrTranscriptNotFound)

	transcript := &domain.Transcript{SessionID: "s1", Lines: []string{"hello", "todo: ship"}, UpdatedAt: time.Now()}
	require.NoError(t, repo.Save(ctx, transcript))

	got, err := repo.GetByID(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, transcript.Lines, got.Lines)

	// stored copies are isolated from callers
	got.Lines[0] = "changed"
	transcript.Lines[1] = "changed"
	again, err := repo.GetByID(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, []string{"hello", "todo: ship"}, again.Lines)

	require.NoError(t, repo.Save(ctx, &domain.Transcript{SessionID: "s1", Lines: []string{"replaced"}}))
	again, err = repo.GetByID(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, []string{"replaced"}, again.Lines)

	require.NoError(t, repo.Delete(ctx, "s1"))
	assert.ErrorIs(t, repo.Delete(ctx, "s1"), domain.ErrTranscriptNotFound)
}
