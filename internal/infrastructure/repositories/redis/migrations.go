package redis

import (
	"context"
	"fmt"
	"time"

	"roomlink/pkg/distributed"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	schemaVersionKey = "roomlink:schema:version"
	migrationLockKey = "roomlink:lock:migrations"
)

// Migration is one versioned change to the key layout.
type Migration struct {
	Version int
	Up      func(ctx context.Context, client redis.UniversalClient) error
}

// Migrate runs every migration newer than the stored schema version. Relay
// instances starting together serialise on a shared lock.
func Migrate(ctx context.Context, client redis.UniversalClient, transcriptTTL time.Duration, logger *zap.SugaredLogger) error {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return distributed.WithLock(ctx, client, migrationLockKey, 30*time.Second, time.Minute, func(ctx context.Context) error {
		return migrate(ctx, client, transcriptTTL, logger)
	})
}

func migrate(ctx context.Context, client redis.UniversalClient, transcriptTTL time.Duration, logger *zap.SugaredLogger) error {
	currentVersion, err := getSchemaVersion(ctx, client)
	if err != nil {
		return fmt.Errorf("failed to get schema version: %w", err)
	}

	migrations := getMigrations(transcriptTTL)
	target := migrations[len(migrations)-1].Version
	if currentVersion >= target {
		logger.Debugw("schema is up to date",
			"current_version", currentVersion,
			"target_version", target,
		)
		return nil
	}

	for _, migration := range migrations {
		if migration.Version <= currentVersion {
			continue
		}

		logger.Infow("running migration", "version", migration.Version)
		if err := migration.Up(ctx, client); err != nil {
			return fmt.Errorf("migration %d failed: %w", migration.Version, err)
		}
		if err := setSchemaVersion(ctx, client, migration.Version); err != nil {
			return fmt.Errorf("failed to update schema version: %w", err)
		}
	}

	logger.Infow("all migrations completed", "final_version", target)
	return nil
}

func getSchemaVersion(ctx context.Context, client redis.UniversalClient) (int, error) {
	val, err := client.Get(ctx, schemaVersionKey).Int()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return val, nil
}

func setSchemaVersion(ctx context.Context, client redis.UniversalClient, version int) error {
	return client.Set(ctx, schemaVersionKey, version, 0).Err()
}

func getMigrations(transcriptTTL time.Duration) []Migration {
	return []Migration{
		{
			// Version marker only; transcripts are plain JSON strings.
			Version: 1,
			Up: func(ctx context.Context, client redis.UniversalClient) error {
				return nil
			},
		},
		{
			// Transcripts written before a TTL was configured get one now.
			Version: 2,
			Up: func(ctx context.Context, client redis.UniversalClient) error {
				if transcriptTTL <= 0 {
					return nil
				}
				iter := client.Scan(ctx, 0, transcriptPrefix+"*", 100).Iterator()
				for iter.Next(ctx) {
					ttl, err := client.TTL(ctx, iter.Val()).Result()
					if err != nil {
						return err
					}
					if ttl < 0 {
						if err := client.Expire(ctx, iter.Val(), transcriptTTL).Err(); err != nil {
							return err
						}
					}
				}
				return iter.Err()
			},
		},
	}
}
