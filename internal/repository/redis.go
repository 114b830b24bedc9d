package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"comer/internal/config"
	"comer/internal/models"

	"github.com/redis/go-redis/v9"
)

const (
	ledgerKeyPrefix    = "ledger:"
	rateLimitKeyPrefix = "rate_limit:"
)

// RedisLedgerCache stores ledger snapshots as JSON strings.
type RedisLedgerCache struct {
	client *redis.Client
}

// NewRedisClient builds a client from the redis section.
func NewRedisClient(cfg config.RedisConfig) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	})
}

func NewRedisLedgerCache(client *redis.Client) *RedisLedgerCache {
	return &RedisLedgerCache{client: client}
}

// GetLedger returns nil, nil on a cache miss.
func (r *RedisLedgerCache) GetLedger(ctx context.Context, experienceID string) (*models.Ledger, error) {
	if r.client == nil {
		return nil, fmt.Errorf("redis client is nil")
	}
	val, err := r.client.Get(ctx, ledgerKeyPrefix+experienceID).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get ledger from redis: %w", err)
	}

	var l models.Ledger
	if err := json.Unmarshal(val, &l); err != nil {
		return nil, fmt.Errorf("failed to unmarshal ledger: %w", err)
	}
	return &l, nil
}

func (r *RedisLedgerCache) SetLedger(ctx context.Context, ledger *models.Ledger, ttl time.Duration) error {
	if r.client == nil {
		return fmt.Errorf("redis client is nil")
	}
	data, err := json.Marshal(ledger)
	if err != nil {
		return fmt.Errorf("failed to marshal ledger: %w", err)
	}
	if err := r.client.Set(ctx, ledgerKeyPrefix+ledger.ExperienceID, data, ttl).Err(); err != nil {
		return fmt.Errorf("failed to set ledger in redis: %w", err)
	}
	return nil
}

func (r *RedisLedgerCache) InvalidateLedger(ctx context.Context, experienceID string) error {
	if r.client == nil {
		return fmt.Errorf("redis client is nil")
	}
	if err := r.client.Del(ctx, ledgerKeyPrefix+experienceID).Err(); err != nil {
		return fmt.Errorf("failed to delete ledger from redis: %w", err)
	}
	return nil
}

// CheckRateLimit counts calls for key in a fixed window starting at the first call.
func (r *RedisLedgerCache) CheckRateLimit(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	if r.client == nil {
		return false, fmt.Errorf("redis client is nil")
	}
	k := rateLimitKeyPrefix + key

	count, err := r.client.Incr(ctx, k).Result()
	if err != nil {
		return false, fmt.Errorf("failed to increment rate limit: %w", err)
	}
	if count == 1 {
		if err := r.client.Expire(ctx, k, window).Err(); err != nil {
			return false, fmt.Errorf("failed to set rate limit window: %w", err)
		}
	}

	return count <= int64(limit), nil
}

// Ping checks the redis connection.
func Ping(ctx context.Context, client *redis.Client) error {
	if _, err := client.Ping(ctx).Result(); err != nil {
		return fmt.Errorf("failed to ping Redis: %w", err)
	}
	return nil
}

func Close(client *redis.Client) error {
	if client != nil {
		return client.Close()
	}
	return nil
}
