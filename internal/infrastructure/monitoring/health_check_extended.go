package monitoring

import (
	"context"
	"errors"
	"fmt"
	"time"

	"roomlink/internal/core/domain"
	"roomlink/internal/core/ports"

	"github.com/redis/go-redis/v9"
)

// AddRedisCheck adds a Redis health check
func (h *HealthChecker) AddRedisCheck(client redis.UniversalClient, timeout time.Duration) {
	h.AddCheck("redis", func(ctx context.Context) (bool, error) {
		if err := client.Ping(ctx).Err(); err != nil {
			return false, err
		}
		return true, nil
	}, timeout)
}

// AddRepositoryCheck probes the transcript store with a lookup that is
// expected to miss.
func (h *HealthChecker) AddRepositoryCheck(repo ports.TranscriptRepository, timeout time.Duration) {
	h.AddCheck("repository", func(ctx context.Context) (bool, error) {
		_, err := repo.GetByID(ctx, "healthcheck")
		if err != nil && !errors.Is(err, domain.ErrTranscriptNotFound) {
			return false, err
		}
		return true, nil
	}, timeout)
}

// AddRelayCheck verifies the relay hub loop still answers queries.
func (h *HealthChecker) AddRelayCheck(stats func(ctx context.Context) (int, error), timeout time.Duration) {
	h.AddCheck("relay", func(ctx context.Context) (bool, error) {
		if _, err := stats(ctx); err != nil {
			return false, fmt.Errorf("relay hub not responding: %w", err)
		}
		return true, nil
	}, timeout)
}
