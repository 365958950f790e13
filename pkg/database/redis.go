package database

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"orgdirectory/configs"
)

// ConnectRedis returns nil, nil when no host is configured; the employee
// view cache is then disabled.
func ConnectRedis(cfg configs.Config) (*redis.Client, error) {
	if cfg.RedisHost == "" {
		return nil, nil
	}
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", cfg.RedisHost, cfg.RedisPort),
		Password: cfg.RedisPassword,
		DB:       0,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}
