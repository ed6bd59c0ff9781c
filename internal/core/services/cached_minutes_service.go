package services

import (
	"context"
	"time"

	"roomlink/internal/core/domain"
	"roomlink/internal/core/ports"
	"roomlink/pkg/cache"
)

const minutesKeyPrefix = "minutes:"

// CachedMinutesService keeps generated minutes for ttl. A submission through
// this instance drops the cached entry for its session; submissions through
// other relay instances become visible once the entry expires.
type CachedMinutesService struct {
	base  ports.MinutesService
	cache *cache.Cache[*domain.Minutes]
}

func NewCachedMinutesService(base ports.MinutesService, ttl time.Duration) *CachedMinutesService {
	return &CachedMinutesService{
		base:  base,
		cache: cache.New[*domain.Minutes](ttl),
	}
}

func (s *CachedMinutesService) SubmitTranscript(ctx context.Context, sessionID domain.SessionID, lines []string) error {
	if err := s.base.SubmitTranscript(ctx, sessionID, lines); err != nil {
		return err
	}
	s.cache.Delete(minutesKeyPrefix + string(sessionID))
	return nil
}

func (s *CachedMinutesService) GetMinutes(ctx context.Context, sessionID domain.SessionID) (*domain.Minutes, error) {
	return s.cache.GetOrLoad(ctx, minutesKeyPrefix+string(sessionID), func(ctx context.Context) (*domain.Minutes, error) {
		return s.base.GetMinutes(ctx, sessionID)
	})
}

// Close stops the background sweep.
func (s *CachedMinutesService) Close() {
	s.cache.Stop()
}
