package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"bordereau/internal/company"
	"bordereau/internal/company/metrics"
	"bordereau/pkg/platform/sentinel"
	pstrings "bordereau/pkg/platform/strings"
)

const keyPrefix = "company:"

// RedisCache shares company records between instances. Entries expire
// through Redis TTLs.
type RedisCache struct {
	client   *redis.Client
	cacheTTL time.Duration
	metrics  *metrics.Metrics
}

func NewRedisCache(client *redis.Client, cacheTTL time.Duration, m *metrics.Metrics) *RedisCache {
	return &RedisCache{client: client, cacheTTL: cacheTTL, metrics: m}
}

func (c *RedisCache) Find(ctx context.Context, orgID string) (*company.Record, error) {
	raw, err := c.client.Get(ctx, keyPrefix+pstrings.CompactIdentifier(orgID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			c.metrics.RecordCacheMiss("redis")
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find company cache: %w", err)
	}
	var record company.Record
	if err := json.Unmarshal(raw, &record); err != nil {
		return nil, fmt.Errorf("decode company cache: %w", err)
	}
	c.metrics.RecordCacheHit("redis")
	return &record, nil
}

// Save writes record under its SIRET and VAT keys in one pipeline.
func (c *RedisCache) Save(ctx context.Context, record *company.Record) error {
	if record == nil {
		return nil
	}
	raw, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("encode company cache: %w", err)
	}
	pipe := c.client.TxPipeline()
	for _, key := range keysOf(record) {
		pipe.Set(ctx, keyPrefix+key, raw, c.cacheTTL)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("save company cache: %w", err)
	}
	return nil
}
