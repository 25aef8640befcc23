// Package cache creates the Redis client used by the cached repository
// decorator.
package cache

import (
	"context"

	"github.com/redis/go-redis/v9"

	"github.com/forgeops/opcore/config"
)

// NewRedisClient creates a new Redis client and verifies connectivity.
func NewRedisClient(cfg *config.RedisConfig) (redis.UniversalClient, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	if err := client.Ping(context.Background()).Err(); err != nil {
		return nil, err
	}
	return client, nil
}

// Close closes the Redis client.
func Close(client redis.UniversalClient) error {
	return client.Close()
}
