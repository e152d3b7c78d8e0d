package auth

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

// ErrNoSession 表示 session 不存在或已过期。
var ErrNoSession = errors.New("session 不存在或已过期")

// SessionStore 保存登录 session 与用户的对应关系。
type SessionStore interface {
	Create(ctx context.Context, userID uint) (string, error)
	Resolve(ctx context.Context, sessionID string) (uint, error)
	Delete(ctx context.Context, sessionID string) error
}

// RedisSessionStore 以 session:<id> → userID 的形式把 session 存在 Redis 中，过期由 TTL 控制。
type RedisSessionStore struct {
	rdb redis.UniversalClient
	ttl time.Duration
}

// NewRedisSessionStore 创建一个 RedisSessionStore。
func NewRedisSessionStore(rdb redis.UniversalClient, ttl time.Duration) *RedisSessionStore {
	return &RedisSessionStore{rdb: rdb, ttl: ttl}
}

func sessionKey(id string) string {
	return "session:" + id
}

// Create 为用户创建一个新的 session 并返回其 ID。
func (s *RedisSessionStore) Create(ctx context.Context, userID uint) (string, error) {
	id := uuid.New().String()
	if err := s.rdb.Set(ctx, sessionKey(id), userID, s.ttl).Err(); err != nil {
		return "", fmt.Errorf("写入 session 失败: %w", err)
	}
	return id, nil
}

// Resolve 返回 session 对应的用户 ID。
func (s *RedisSessionStore) Resolve(ctx context.Context, sessionID string) (uint, error) {
	if _, err := uuid.Parse(sessionID); err != nil {
		return 0, ErrNoSession
	}
	v, err := s.rdb.Get(ctx, sessionKey(sessionID)).Result()
	if errors.Is(err, redis.Nil) {
		return 0, ErrNoSession
	}
	if err != nil {
		return 0, fmt.Errorf("读取 session 失败: %w", err)
	}
	id, err := strconv.ParseUint(v, 10, 64)
	if err != nil {
		return 0, ErrNoSession
	}
	return uint(id), nil
}

// Delete 删除 session，不存在时不报错。
func (s *RedisSessionStore) Delete(ctx context.Context, sessionID string) error {
	if err := s.rdb.Del(ctx, sessionKey(sessionID)).Err(); err != nil {
		return fmt.Errorf("删除 session 失败: %w", err)
	}
	return nil
}

var _ SessionStore = (*RedisSessionStore)(nil)
