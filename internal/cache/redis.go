// Package cache wraps Redis for the handful of hot paths that benefit
// from it: the public key set document and the login rate limiter.
// With Redis disabled every operation degrades to a harmless no-op or
// cache miss, so callers never branch on availability.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/calmid/go-grant/internal/config"
)

var ErrCacheMiss = errors.New("cache: miss")

// clientInterface abstracts the Redis operations we actually use.
type clientInterface interface {
	set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	get(ctx context.Context, key string) ([]byte, error)
	del(ctx context.Context, key string) error
	increment(ctx context.Context, key string, ttl time.Duration) (int64, error)
	ping(ctx context.Context) error
}

type Service struct {
	client clientInterface
	logger *slog.Logger
	prefix string
}

func NewService(cfg config.Redis, logger *slog.Logger) (*Service, error) {
	if !cfg.Enabled {
		return &Service{
			client: &noOpClient{},
			logger: logger,
			prefix: cfg.Prefix,
		}, nil
	}

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := redisClient.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connecting to redis at %s failed: %w", cfg.Addr, err)
	}

	logger.Info("connected to redis cache", "addr", cfg.Addr, "db", cfg.DB)

	return &Service{
		client: &redisClientWrapper{client: redisClient},
		logger: logger,
		prefix: cfg.Prefix,
	}, nil
}

func (s *Service) buildKey(key string) string {
	return s.prefix + key
}

func (s *Service) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshalling cache value failed: %w", err)
	}

	if err := s.client.set(ctx, s.buildKey(key), data, ttl); err != nil {
		s.logger.Warn("cache set failed", "key", key, "error", err)
		return err
	}

	return nil
}

func (s *Service) Get(ctx context.Context, key string, dest any) error {
	val, err := s.client.get(ctx, s.buildKey(key))
	if err != nil {
		if errors.Is(err, ErrCacheMiss) {
			return ErrCacheMiss
		}
		s.logger.Warn("cache get failed", "key", key, "error", err)
		return err
	}

	if err := json.Unmarshal(val, dest); err != nil {
		return fmt.Errorf("unmarshalling cache value failed: %w", err)
	}

	return nil
}

func (s *Service) Delete(ctx context.Context, key string) error {
	if err := s.client.del(ctx, s.buildKey(key)); err != nil {
		s.logger.Warn("cache delete failed", "key", key, "error", err)
		return err
	}
	return nil
}

// Increment bumps a fixed window counter, setting its expiry on first
// use, and returns the new count.
func (s *Service) Increment(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	return s.client.increment(ctx, s.buildKey(key), ttl)
}

func (s *Service) Ping(ctx context.Context) error {
	return s.client.ping(ctx)
}

type redisClientWrapper struct {
	client *redis.Client
}

func (w *redisClientWrapper) set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return w.client.Set(ctx, key, value, ttl).Err()
}

func (w *redisClientWrapper) get(ctx context.Context, key string) ([]byte, error) {
	val, err := w.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrCacheMiss
	}
	return val, err
}

func (w *redisClientWrapper) del(ctx context.Context, key string) error {
	return w.client.Del(ctx, key).Err()
}

func (w *redisClientWrapper) increment(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	count, err := w.client.Incr(ctx, key).Result()
	if err != nil {
		return 0, err
	}
	if count == 1 {
		if err := w.client.Expire(ctx, key, ttl).Err(); err != nil {
			return count, err
		}
	}
	return count, nil
}

func (w *redisClientWrapper) ping(ctx context.Context) error {
	return w.client.Ping(ctx).Err()
}

// noOpClient backs the service when Redis is disabled.
type noOpClient struct{}

func (c *noOpClient) set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return nil
}

func (c *noOpClient) get(ctx context.Context, key string) ([]byte, error) {
	return nil, ErrCacheMiss
}

func (c *noOpClient) del(ctx context.Context, key string) error {
	return nil
}

func (c *noOpClient) increment(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	return 0, nil
}

func (c *noOpClient) ping(ctx context.Context) error {
	return nil
}
