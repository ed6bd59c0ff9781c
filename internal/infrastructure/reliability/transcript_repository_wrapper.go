package reliability

import (
	"context"
	"errors"

	"roomlink/internal/core/domain"
	"roomlink/internal/core/ports"
	"roomlink/pkg/circuitbreaker"
	"roomlink/pkg/retry"

	"go.uber.org/zap"
)

// TranscriptRepositoryWrapper guards a remote transcript store with retries
// and a circuit breaker. A missing transcript is an answer, not a failure.
type TranscriptRepositoryWrapper struct {
	repo   ports.TranscriptRepository
	logger *zap.SugaredLogger

	retryConfig    retry.Config
	circuitBreaker *circuitbreaker.CircuitBreaker
}

// NewTranscriptRepositoryWrapper creates a new wrapper with retry and circuit breaker
func NewTranscriptRepositoryWrapper(
	repo ports.TranscriptRepository,
	retryConfig retry.Config,
	cbConfig circuitbreaker.Config,
	logger *zap.SugaredLogger,
) *TranscriptRepositoryWrapper {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	retryConfig.NonRetryableErrors = append(append([]error(nil), retryConfig.NonRetryableErrors...),
		domain.ErrTranscriptNotFound,
		circuitbreaker.ErrOpen,
	)

	wrapper := &TranscriptRepositoryWrapper{
		repo:           repo,
		logger:         logger,
		retryConfig:    retryConfig,
		circuitBreaker: circuitbreaker.New("transcripts", cbConfig),
	}

	wrapper.circuitBreaker.OnStateChange(func(name string, from, to circuitbreaker.State) {
		logger.Infow("circuit breaker state changed",
			"name", name,
			"from", from.String(),
			"to", to.String(),
		)
	})

	return wrapper
}

func (w *TranscriptRepositoryWrapper) Save(ctx context.Context, transcript *domain.Transcript) error {
	return w.do(ctx, func() error {
		return w.repo.Save(ctx, transcript)
	})
}

func (w *TranscriptRepositoryWrapper) GetByID(ctx context.Context, id domain.SessionID) (*domain.Transcript, error) {
	var transcript *domain.Transcript
	err := w.do(ctx, func() error {
		var err error
		transcript, err = w.repo.GetByID(ctx, id)
		return err
	})
	return transcript, err
}

func (w *TranscriptRepositoryWrapper) Delete(ctx context.Context, id domain.SessionID) error {
	return w.do(ctx, func() error {
		return w.repo.Delete(ctx, id)
	})
}

// CircuitBreaker exposes the breaker for metrics.
func (w *TranscriptRepositoryWrapper) CircuitBreaker() *circuitbreaker.CircuitBreaker {
	return w.circuitBreaker
}

func (w *TranscriptRepositoryWrapper) do(ctx context.Context, fn func() error) error {
	guarded := func() error {
		var notFound error
		err := w.circuitBreaker.Execute(ctx, func() error {
			err := fn()
			if errors.Is(err, domain.ErrTranscriptNotFound) {
				notFound = err
				return nil
			}
			return err
		})
		if err != nil {
			return err
		}
		return notFound
	}

	if !w.retryConfig.Enabled {
		return guarded()
	}
	return retry.Retry(ctx, w.retryConfig, guarded)
}
