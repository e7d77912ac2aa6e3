package redis

import (
	"context"
	"fmt"
	"strings"
	"time"

	"ai-answering-machine/internal/config"

	"github.com/go-redis/redis/v8"
)

// RedisClient is the slice of Redis the draft slot needs.
type RedisClient interface {
	Ping(ctx context.Context) error
	Get(ctx context.Context, key string) (string, error)
	Put(ctx context.Context, key, value string) error
	Del(ctx context.Context, key string) error
	Close() error
}

var _ RedisClient = (*redClient)(nil)

type redClient struct {
	cli *redis.Client
}

// NewClient dials cfg.URL, which is either a redis:// URL or a bare
// host:port, and pings it once.
func NewClient(ctx context.Context, cfg *config.RedisConfig) (*redClient, error) {
	opts, err := clientOptions(cfg)
	if err != nil {
		return nil, err
	}
	c := redis.NewClient(opts)
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := c.Ping(pingCtx).Err(); err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("redis ping %s: %w", opts.Addr, err)
	}
	return &redClient{cli: c}, nil
}

func clientOptions(cfg *config.RedisConfig) (*redis.Options, error) {
	if strings.HasPrefix(cfg.URL, "redis://") || strings.HasPrefix(cfg.URL, "rediss://") {
		opts, err := redis.ParseURL(cfg.URL)
		if err != nil {
			return nil, fmt.Errorf("redis url: %w", err)
		}
		if cfg.Password != "" {
			opts.Password = cfg.Password
		}
		if cfg.DB != 0 {
			opts.DB = cfg.DB
		}
		return opts, nil
	}
	return &redis.Options{Addr: cfg.URL, Password: cfg.Password, DB: cfg.DB}, nil
}

func (c *redClient) Ping(ctx context.Context) error { return c.cli.Ping(ctx).Err() }

func (c *redClient) Get(ctx context.Context, key string) (string, error) {
	return c.cli.Get(ctx, key).Result()
}

// Put stores value with no expiry.
func (c *redClient) Put(ctx context.Context, key, value string) error {
	return c.cli.Set(ctx, key, value, 0).Err()
}

func (c *redClient) Del(ctx context.Context, key string) error {
	return c.cli.Del(ctx, key).Err()
}

func (c *redClient) Close() error { return c.cli.Close() }
