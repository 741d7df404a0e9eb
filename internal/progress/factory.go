package progress

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"readaloud/internal/config"
)

// NewStore creates a store for the configured backend.
func NewStore(ctx context.Context, cfg config.ProgressConfig) (Store, error) {
	switch cfg.Backend {
	case "file", "":
		return NewFileStore(cfg.Path)
	case "memory":
		return NewMemoryStore(), nil
	case "redis":
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			client.Close()
			return nil, fmt.Errorf("failed to reach redis at %s: %w", cfg.Redis.Addr, err)
		}
		return NewRedisStore(client, WithPrefix(cfg.Redis.Prefix), WithTTL(cfg.Redis.TTL)), nil
	default:
		return nil, fmt.Errorf("unknown progress backend: %s", cfg.Backend)
	}
}
