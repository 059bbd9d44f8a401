package store

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"yt-relay/internal/config"
)

// Backend is an opened Store. Redis is set only for the redis backend so other
// components can share the connection.
type Backend struct {
	Store
	Redis *redis.Client
	close func() error
}

func (b *Backend) Close() error {
	if b.close == nil {
		return nil
	}
	return b.close()
}

// Open connects the backend selected by cfg.StoreBackend.
func Open(ctx context.Context, cfg config.Config) (*Backend, error) {
	switch cfg.StoreBackend {
	case config.BackendRedis:
		rdb := redis.NewClient(cfg.RedisOptions())
		if err := rdb.Ping(ctx).Err(); err != nil {
			rdb.Close()
			return nil, fmt.Errorf("failed to connect to redis at %s: %w", cfg.RedisAddr, err)
		}
		log.Info().Str("addr", cfg.RedisAddr).Msg("redis connection established")
		return &Backend{Store: NewRedisStore(rdb), Redis: rdb, close: rdb.Close}, nil
	case config.BackendPostgres:
		s, err := ConnectSQL(ctx, "postgres", cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		return &Backend{Store: s, close: s.Close}, nil
	case config.BackendSQLite:
		s, err := ConnectSQL(ctx, "sqlite3", cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		return &Backend{Store: s, close: s.Close}, nil
	case config.BackendMemory:
		log.Warn().Msg("using in-memory store, subscriptions are lost on restart")
		return &Backend{Store: NewMemoryStore()}, nil
	}
	return nil, fmt.Errorf("unknown store backend %q", cfg.StoreBackend)
}
