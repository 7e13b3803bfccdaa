// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ManuGH/capd/internal/log"
)

// RedisConfig holds Redis connection configuration.
type RedisConfig struct {
	Addr     string // host:port
	Password string // optional
	DB       int
}

// RedisBackend keeps one hash per target at "capd:props:<target>", which
// lets several daemons share session state.
type RedisBackend struct {
	client *redis.Client
}

// NewRedisBackend connects and pings the server.
func NewRedisBackend(ctx context.Context, cfg RedisConfig) (*RedisBackend, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("property store: redis connection failed: %w", err)
	}

	logger := log.WithComponent("store")
	logger.Info().Str("addr", cfg.Addr).Int("db", cfg.DB).Msg("connected to Redis property store")
	return &RedisBackend{client: client}, nil
}

func hashKey(target string) string { return "capd:props:" + target }

func (r *RedisBackend) Get(ctx context.Context, target, key string) (string, bool, error) {
	v, err := r.client.HGet(ctx, hashKey(target), key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("property store: get %s/%s: %w", target, key, err)
	}
	return v, true, nil
}

func (r *RedisBackend) Set(ctx context.Context, target, key, value string) error {
	if err := r.client.HSet(ctx, hashKey(target), key, value).Err(); err != nil {
		return fmt.Errorf("property store: set %s/%s: %w", target, key, err)
	}
	return nil
}

func (r *RedisBackend) Delete(ctx context.Context, target, key string) error {
	if err := r.client.HDel(ctx, hashKey(target), key).Err(); err != nil {
		return fmt.Errorf("property store: delete %s/%s: %w", target, key, err)
	}
	return nil
}

func (r *RedisBackend) All(ctx context.Context, target string) (map[string]string, error) {
	m, err := r.client.HGetAll(ctx, hashKey(target)).Result()
	if err != nil {
		return nil, fmt.Errorf("property store: list %s: %w", target, err)
	}
	return m, nil
}

func (r *RedisBackend) Close() error { return r.client.Close() }
