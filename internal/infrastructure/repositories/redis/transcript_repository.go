package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"roomlink/internal/core/domain"
	"roomlink/internal/core/ports"

	"github.com/redis/go-redis/v9"
)

const transcriptPrefix = "roomlink:transcript:"

type RedisTranscriptRepository struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
}

// NewRedisTranscriptRepository stores transcripts as JSON strings. A zero
// ttl keeps them forever.
func NewRedisTranscriptRepository(client redis.UniversalClient, ttl time.Duration) ports.TranscriptRepository {
	return &RedisTranscriptRepository{
		client: client,
		prefix: transcriptPrefix,
		ttl:    ttl,
	}
}

func (r *RedisTranscriptRepository) transcriptKey(id domain.SessionID) string {
	return r.prefix + string(id)
}

func (r *RedisTranscriptRepository) Save(ctx context.Context, transcript *domain.Transcript) error {
	data, err := json.Marshal(transcript)
	if err != nil {
		return fmt.Errorf("failed to marshal transcript: %w", err)
	}

	if err := r.client.Set(ctx, r.transcriptKey(transcript.SessionID), data, r.ttl).Err(); err != nil {
		return fmt.Errorf("failed to set transcript in Redis: %w", err)
	}
	return nil
}

func (r *RedisTranscriptRepository) GetByID(ctx context.Context, id domain.SessionID) (*domain.Transcript, error) {
	data, err := r.client.Get(ctx, r.transcriptKey(id)).Bytes()
	if err == redis.Nil {
		return nil, domain.ErrTranscriptNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get transcript from Redis: %w", err)
	}

	var transcript domain.Transcript
	if err := json.Unmarshal(data, &transcript); err != nil {
		return nil, fmt.Errorf("failed to unmarshal transcript: %w", err)
	}
	return &transcript, nil
}

func (r *RedisTranscriptRepository) Delete(ctx context.Context, id domain.SessionID) error {
	n, err := r.client.Del(ctx, r.transcriptKey(id)).Result()
	if err != nil {
		return fmt.Errorf("failed to delete transcript from Redis: %w", err)
	}
	if n == 0 {
		return domain.ErrTranscriptNotFound
	}
	return nil
}
