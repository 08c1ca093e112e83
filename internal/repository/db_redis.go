// Package repository contains the repository layer for the Bhavcopy API
package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/nsvirk/bhavcopyapi/internal/config"
	"github.com/redis/go-redis/v9"
)

// ConnectRedis returns a client for the configured Redis, or nil when none is configured
func ConnectRedis(cfg *config.Config) (*redis.Client, error) {
	if !cfg.RedisEnabled() {
		return nil, nil
	}

	redisClient := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%s", cfg.RedisHost, cfg.RedisPort),
		Password: cfg.RedisPassword,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if _, err := redisClient.Ping(ctx).Result(); err != nil {
		redisClient.Close()
		return nil, err
	}
	return redisClient, nil
}
