package repo

import (
	"context"
	"fmt"
	"time"

	"arena-service/internal/config"

	"github.com/redis/go-redis/v9"
)

// OpenRedis returns nil when Redis is disabled; callers fall back to
// in-process locking and fan-out.
func OpenRedis(ctx context.Context, conf config.RedisConfig) (*redis.Client, error) {
	if !conf.Enabled {
		return nil, nil
	}
	rdb := redis.NewClient(&redis.Options{
		Addr:     conf.Addr,
		Password: conf.Password,
		DB:       conf.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping %s: %w", conf.Addr, err)
	}
	return rdb, nil
}
