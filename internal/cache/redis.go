package cache

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const defaultRedisAddr = "localhost:6379"

// Client is the shared Redis connection, set by InitRedis.
var Client *redis.Client

// Hooks replaced in tests.
var (
	newRedisClient = redis.NewClient
	pingRedis      = func(ctx context.Context, c *redis.Client) error { return c.Ping(ctx).Err() }
	pingAttempts   = 3
	pingBackoff    = time.Second
)

// redisOptions accepts a bare host:port or a redis:// / rediss:// URL.
func redisOptions(raw string) (*redis.Options, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		raw = defaultRedisAddr
	}
	if !strings.Contains(raw, "://") {
		return &redis.Options{Addr: raw}, nil
	}
	opts, err := redis.ParseURL(raw)
	if err != nil {
		return nil, fmt.Errorf("parse REDIS_URL: %w", err)
	}
	return opts, nil
}

// InitRedis connects Client to REDIS_URL. The ping is retried a few times
// so the bot can start alongside a Redis container that is still booting.
func InitRedis(ctx context.Context) error {
	opts, err := redisOptions(os.Getenv("REDIS_URL"))
	if err != nil {
		return err
	}
	opts.PoolSize = 8
	opts.ReadTimeout = 3 * time.Second

	client := newRedisClient(opts)
	for attempt := 1; ; attempt++ {
		err = pingRedis(ctx, client)
		if err == nil || attempt >= pingAttempts {
			break
		}
		slog.Warn("redis not ready", "addr", opts.Addr, "attempt", attempt, "error", err)
		select {
		case <-ctx.Done():
			client.Close()
			return ctx.Err()
		case <-time.After(pingBackoff):
		}
	}
	if err != nil {
		client.Close()
		return fmt.Errorf("connect to redis at %s: %w", opts.Addr, err)
	}

	Client = client
	slog.Info("connected to redis", "addr", opts.Addr, "db", opts.DB)
	return nil
}
