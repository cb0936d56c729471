package database

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/geekconsole/geekconsole/internal/config"
)

// redisDialTimeout bounds the startup connectivity check.
const redisDialTimeout = 5 * time.Second

// NewRedis connects the client that backs Geek Console's ephemeral state:
// staged 2FA logins, OAuth state and onboarding profiles, and the
// permission cache. Durable state (sessions included) never lives here.
func NewRedis(cfg config.RedisConfig) (*redis.Client, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parsing redis URL: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), redisDialTimeout)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("pinging redis: %w", err)
	}

	return client, nil
}
