package infrastructure

import (
	"context"
	"encoding/json"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"

	"campusnexus/internal/service/promotion/engine"
)

const recommendationKeyPrefix = "promotion:recommendations:"

// RedisRecommendationCache 用 Redis 缓存推荐结果。
// 结果完全由缓存键决定，过期只是为了回收空间。
type RedisRecommendationCache struct {
	client redis.UniversalClient
	ttl    time.Duration
}

// NewRedisRecommendationCache 创建缓存适配器。
func NewRedisRecommendationCache(client redis.UniversalClient, ttl time.Duration) *RedisRecommendationCache {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &RedisRecommendationCache{client: client, ttl: ttl}
}

// Get 返回缓存的结果，未命中时返回 (nil, nil)。
func (c *RedisRecommendationCache) Get(ctx context.Context, key string) (*engine.Result, error) {
	data, err := c.client.Get(ctx, recommendationKeyPrefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "redis get recommendations")
	}
	var result engine.Result
	if err := json.Unmarshal(data, &result); err != nil {
		// 旧格式的缓存直接当作未命中
		return nil, nil
	}
	return &result, nil
}

// Set 写入结果。
func (c *RedisRecommendationCache) Set(ctx context.Context, key string, result *engine.Result) error {
	data, err := json.Marshal(result)
	if err != nil {
		return errors.Wrap(err, "marshal recommendations")
	}
	return errors.Wrap(c.client.Set(ctx, recommendationKeyPrefix+key, data, c.ttl).Err(), "redis set recommendations")
}
