package repositories

import (
	"context"
	"testing"

	"roomlink/internal/infrastructure/repositories/memory"
	"roomlink/pkg/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestRepositoryFactory_MemoryByDefault(t *testing.T) {
	f := NewRepositoryFactory(config.DefaultConfig(), zaptest.NewLogger(t).Sugar())
	defer f.Close()

	assert.Nil(t, f.RedisClient())
	assert.IsType(t, &memory.MemoryTranscriptRepository{}, f.CreateTranscriptRepository())
	assert.NoError(t, f.HealthCheck(context.Background()))
}

func TestRepositoryFactory_FallsBackWhenRedisUnreachable(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Redis.Enabled = true
	cfg.Redis.Address = "127.0.0.1:1"

	f := NewRepositoryFactory(cfg, zaptest.NewLogger(t).Sugar())
	defer f.Close()

	require.Nil(t, f.RedisClient())
	assert.IsType(t, &memory.MemoryTranscriptRepository{}, f.CreateTranscriptRepository())
}
