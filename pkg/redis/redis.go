package redis

import (
	"context"
	"time"

	"carematch/pkg/config"

	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("redis",
	fx.Provide(New),
)

const (
	pingAttempts = 5
	pingBackoff  = 3 * time.Second
)

// New returns nil when no redis address is configured; consumers treat a nil
// client as "redis disabled".
func New(lc fx.Lifecycle, c *config.Config) *redis.Client {
	if c.Redis.Addr == "" {
		zap.L().Info("[Redis] disabled, no address configured")
		return nil
	}

	zapLog := zap.L().With(
		zap.String("addr", c.Redis.Addr),
		zap.Int("db", c.Redis.DB),
		zap.Int("pool_size", c.Redis.PoolSize),
		zap.Duration("pool_timeout", c.Redis.PoolTimeout),
	)

	rdb := redis.NewClient(&redis.Options{
		Addr:        c.Redis.Addr,
		Password:    c.Redis.Password,
		DB:          c.Redis.DB,
		PoolSize:    c.Redis.PoolSize,
		PoolTimeout: c.Redis.PoolTimeout,
	})

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			var err error
			for i := 0; i < pingAttempts; i++ {
				if err = rdb.Ping(ctx).Err(); err == nil {
					zapLog.Info("[Redis] Connected to Redis")
					return nil
				}
				zapLog.Warn("[Redis] Redis not ready, retrying...", zap.Int("retry", i+1), zap.Error(err))
				select {
				case <-ctx.Done():
					return ctx.Err()
				case <-time.After(pingBackoff):
				}
			}
			// status mirroring is best effort; the process keeps serving without it
			zapLog.Error("[Redis] giving up on redis", zap.Error(err))
			return nil
		},
		OnStop: func(ctx context.Context) error {
			return rdb.Close()
		},
	})

	return rdb
}
