package reliability

import (
	"context"
	"errors"
	"testing"
	"time"

	"roomlink/internal/core/domain"
	"roomlink/pkg/circuitbreaker"
	"roomlink/pkg/retry"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockTranscriptRepository struct {
	mock.Mock
}

func (m *mockTranscriptRepository) Save(ctx context.Context, transcript *domain.Transcript) error {
	return m.Called(ctx, transcript).Error(0)
}

func (m *mockTranscriptRepository) GetByID(ctx context.Context, id domain.SessionID) (*domain.Transcript, error) {
	args := m.Called(ctx, id)
	t, _ := args.Get(0).(*domain.Transcript)
	return t, args.Error(1)
}

func (m *mockTranscriptRepository) Delete(ctx context.Context, id domain.SessionID) error {
	return m.Called(ctx, id).Error(0)
}

func fastRetry() retry.Config {
	cfg := retry.DefaultConfig()
	cfg.MaxAttempts = 2
	cfg.InitialDelay = time.Millisecond
	cfg.MaxDelay = 5 * time.Millisecond
	return cfg
}

func TestTranscriptRepositoryWrapper_RetriesTransientErrors(t *testing.T) {
	repo := &mockTranscriptRepository{}
	transcript := &domain.Transcript{SessionID: "s1"}
	repo.On("Save", mock.Anything, transcript).Return(errors.New("i/o timeout")).Once()
	repo.On("Save", mock.Anything, transcript).Return(nil).Once()

	w := NewTranscriptRepositoryWrapper(repo, fastRetry(), circuitbreaker.DefaultConfig(), nil)
	require.NoError(t, w.Save(context.Background(), transcript))
	repo.AssertExpectations(t)
}

func TestTranscriptRepositoryWrapper_NotFoundIsNotRetried(t *testing.T) {
	repo := &mockTranscriptRepository{}
	repo.On("GetByID", mock.Anything, domain.SessionID("missing")).
		Return(nil, domain.ErrTranscriptNotFound).Once()

	cbCfg := circuitbreaker.DefaultConfig()
	cbCfg.FailureThreshold = 1
	w := NewTranscriptRepositoryWrapper(repo, fastRetry(), cbCfg, nil)

	_, err := w.GetByID(context.Background(), "missing")
	assert.ErrorIs(t, err, domain.ErrTranscriptNotFound)
	assert.Equal(t, circuitbreaker.StateClosed, w.CircuitBreaker().GetState())
	repo.AssertExpectations(t)
}

func TestTranscriptRepositoryWrapper_OpensCircuit(t *testing.T) {
	repo := &mockTranscriptRepository{}
	repo.On("Delete", mock.Anything, domain.SessionID("s1")).Return(errors.New("connection refused"))

	cbCfg := circuitbreaker.DefaultConfig()
	cbCfg.FailureThreshold = 2
	cbCfg.Timeout = time.Hour
	w := NewTranscriptRepositoryWrapper(repo, fastRetry(), cbCfg, nil)

	err := w.Delete(context.Background(), "s1")
	require.Error(t, err)
	assert.Equal(t, circuitbreaker.StateOpen, w.CircuitBreaker().GetState())

	// the open breaker short-circuits without reaching the store
	err = w.Delete(context.Background(), "s1")
	assert.ErrorIs(t, err, circuitbreaker.ErrOpen)
	repo.AssertNumberOfCalls(t, "Delete", 2)
}

func TestTranscriptRepositoryWrapper_RetryDisabled(t *testing.T) {
	repo := &mockTranscriptRepository{}
	repo.On("GetByID", mock.Anything, domain.SessionID("s1")).
		Return(&domain.Transcript{SessionID: "s1", Lines: []string{"a"}}, nil).Once()

	cfg := fastRetry()
	cfg.Enabled = false
	w := NewTranscriptRepositoryWrapper(repo, cfg, circuitbreaker.DefaultConfig(), nil)

	got, err := w.GetByID(context.Background(), "s1")
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, got.Lines)
}
