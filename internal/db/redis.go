package db

import (
	"context"
	"errors"

	"github.com/redis/go-redis/v9"
)

// OpenRedis connects to Redis for hold records and distributed rate limiting.
// Returns nil when no address is configured; callers degrade gracefully.
func OpenRedis(ctx context.Context, addr, password string, dbNum int) (*redis.Client, error) {
	if addr == "" {
		return nil, nil
	}
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       dbNum,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, err
	}
	return client, nil
}

func RedisReadyCheck(client *redis.Client) func(context.Context) error {
	return func(ctx context.Context) error {
		if client == nil {
			return errors.New("redis not configured")
		}
		return client.Ping(ctx).Err()
	}
}
