package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/insightgate/pkg/models"
	"github.com/redis/go-redis/v9"
)

// Cache is the caching interface. All cache operations go through here.
// Implementations must be safe for concurrent use.
type Cache interface {
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Delete(ctx context.Context, key string) error
	Ping(ctx context.Context) error
	SetRunArtifact(ctx context.Context, run *models.RunArtifact, ttl time.Duration) error
	GetRunArtifact(ctx context.Context, tenantID, runID uuid.UUID) (*models.RunArtifact, bool, error)
	IncrWithExpiry(ctx context.Context, key string, expiry time.Duration) (int64, error)
}

// RedisCache implements the Cache interface using go-redis/v9.
type RedisCache struct {
	client *redis.Client
}

// NewRedisCache creates a new RedisCache from a Redis URL.
func NewRedisCache(redisURL string) (*RedisCache, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}
	return &RedisCache{client: redis.NewClient(opts)}, nil
}

// Close releases the underlying connection pool.
func (c *RedisCache) Close() error {
	return c.client.Close()
}

func (c *RedisCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *RedisCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return c.client.Set(ctx, key, value, ttl).Err()
}

func (c *RedisCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	val, err := c.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return val, true, nil
}

func (c *RedisCache) Delete(ctx context.Context, key string) error {
	return c.client.Del(ctx, key).Err()
}

// SetRunArtifact caches a run's inputs as JSON under RunArtifactKey.
func (c *RedisCache) SetRunArtifact(ctx context.Context, run *models.RunArtifact, ttl time.Duration) error {
	data, err := json.Marshal(run)
	if err != nil {
		return fmt.Errorf("encode run artifact: %w", err)
	}
	return c.client.Set(ctx, RunArtifactKey(run.TenantID, run.RunID), data, ttl).Err()
}

// GetRunArtifact returns a cached run. An entry that no longer decodes is
// reported as a miss so the caller falls through to the store.
func (c *RedisCache) GetRunArtifact(ctx context.Context, tenantID, runID uuid.UUID) (*models.RunArtifact, bool, error) {
	data, found, err := c.Get(ctx, RunArtifactKey(tenantID, runID))
	if err != nil || !found {
		return nil, false, err
	}
	var run models.RunArtifact
	if err := json.Unmarshal(data, &run); err != nil {
		return nil, false, nil
	}
	return &run, true, nil
}

func (c *RedisCache) IncrWithExpiry(ctx context.Context, key string, expiry time.Duration) (int64, error) {
	pipe := c.client.TxPipeline()
	incr := pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, expiry)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, err
	}
	return incr.Val(), nil
}
