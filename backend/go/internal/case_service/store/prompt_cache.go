package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"CaseForAI/backend/go/internal/models"

	"github.com/go-redis/redis/v8"
)

const promptCachePrefix = "prompt:"

// PromptCache 在 Redis 中缓存按 key 查询的提示词，键为 prompt:<key>。
type PromptCache struct {
	rdb redis.UniversalClient
	ttl time.Duration
}

// NewPromptCache 创建提示词缓存，ttl 为 0 时默认 10 分钟。
func NewPromptCache(rdb redis.UniversalClient, ttl time.Duration) *PromptCache {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &PromptCache{rdb: rdb, ttl: ttl}
}

// Get 返回缓存的提示词。未命中或缓存内容损坏时返回 false。
func (c *PromptCache) Get(ctx context.Context, key string) (*models.AgentPrompt, bool) {
	raw, err := c.rdb.Get(ctx, promptCachePrefix+key).Bytes()
	if err != nil {
		return nil, false
	}
	var p models.AgentPrompt
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, false
	}
	return &p, true
}

func (c *PromptCache) Set(ctx context.Context, p *models.AgentPrompt) error {
	raw, err := json.Marshal(p)
	if err != nil {
		return err
	}
	return c.rdb.Set(ctx, promptCachePrefix+p.Key, raw, c.ttl).Err()
}

// Invalidate 删除缓存项，键不存在不算错误。
func (c *PromptCache) Invalidate(ctx context.Context, key string) error {
	err := c.rdb.Del(ctx, promptCachePrefix+key).Err()
	if errors.Is(err, redis.Nil) {
		return nil
	}
	return err
}
