package utils

import (
	"context"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/cppla/deptcms/config"
)

var (
	redisMu     sync.Mutex
	redisClient *redis.Client
)

func dialRedis(cfg config.AppConfig) *redis.Client {
	c := redis.NewClient(&redis.Options{
		Addr:         net.JoinHostPort(cfg.RedisHost, strconv.Itoa(cfg.RedisPort)),
		Password:     cfg.RedisPassword,
		DB:           cfg.RedisDB,
		DialTimeout:  3 * time.Second,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
		PoolTimeout:  3 * time.Second,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := c.Ping(ctx).Err(); err != nil {
		// every caller degrades without Redis: caches miss, throttles fail open
		Sugar.Warnw("redis unreachable", "addr", c.Options().Addr, "error", err)
	}
	return c
}

// GetRedis returns the shared client, dialing it from config on first use.
func GetRedis() *redis.Client {
	redisMu.Lock()
	defer redisMu.Unlock()
	if redisClient == nil {
		redisClient = dialRedis(config.Get())
	}
	return redisClient
}

// UseRedis installs c as the shared client, e.g. a miniredis backed one in tests.
func UseRedis(c *redis.Client) {
	redisMu.Lock()
	redisClient = c
	redisMu.Unlock()
}

// CloseRedis releases the shared client. The next GetRedis dials again.
func CloseRedis() {
	redisMu.Lock()
	defer redisMu.Unlock()
	if redisClient == nil {
		return
	}
	if err := redisClient.Close(); err != nil {
		Sugar.Warnw("redis close failed", "error", err)
	}
	redisClient = nil
}
