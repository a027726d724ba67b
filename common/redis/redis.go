// Package redis owns the shared redis client. Redis backs rate limiting and
// the async log queue; both fail open when it is absent, so a missing
// REDIS_HOST only degrades, never breaks, the gateway.
package redis

import (
	"context"
	"time"

	"github.com/Laisky/errors/v2"
	"github.com/Laisky/zap"
	goredis "github.com/go-redis/redis/v8"

	"github.com/shinmentakezo07/shinway-sub001/common/config"
	"github.com/shinmentakezo07/shinway-sub001/common/logger"
)

var client *goredis.Client

// Enabled reports whether a redis client is configured.
func Enabled() bool {
	return client != nil
}

// Client returns the shared client, or nil when redis is disabled.
func Client() *goredis.Client {
	return client
}

// Init connects to redis when REDIS_HOST is set. A ping failure is returned
// so the caller can decide between aborting boot and running degraded.
func Init(ctx context.Context) error {
	if config.RedisHost == "" {
		logger.Logger.Info("redis disabled, rate limiting and log queue degrade to no-ops")
		return nil
	}
	c := goredis.NewClient(&goredis.Options{
		Addr:         config.RedisHost + ":" + config.RedisPort,
		Password:     config.RedisPassword,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := c.Ping(pingCtx).Err(); err != nil {
		return errors.Wrap(err, "ping redis")
	}
	client = c
	logger.Logger.Info("redis connected", zap.String("host", config.RedisHost))
	return nil
}

// Close releases the client during shutdown.
func Close() {
	if client == nil {
		return
	}
	if err := client.Close(); err != nil {
		logger.Logger.Warn("close redis", zap.Error(err))
	}
	client = nil
}

// SetForTesting swaps the client; tests pair it with miniredis.
func SetForTesting(c *goredis.Client) {
	client = c
}
